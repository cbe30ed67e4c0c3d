// Shoal is a Redfish aggregator service.
// Copyright (C) 2025  Matthew Burns
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package state

import (
	"errors"
	"testing"
	"time"
)

func TestTaskEngineCompletesSuccessfully(t *testing.T) {
	e := NewTaskEngine()
	defer e.Stop()

	task := e.New("TestOp", "/redfish/v1/Systems/vm1", func() error { return nil })

	deadline := time.Now().Add(15 * time.Second)
	last := -1
	for time.Now().Before(deadline) {
		pct := task.PercentComplete()
		if pct < last {
			t.Fatalf("percent_complete decreased: %d -> %d", last, pct)
		}
		last = pct
		if task.State() == TaskCompleted {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	if task.State() != TaskCompleted {
		t.Fatalf("task did not complete in time, state=%s", task.State())
	}
	if task.PercentComplete() != 100 {
		t.Fatalf("expected percent_complete=100, got %d", task.PercentComplete())
	}
	if task.Status() != StatusOK {
		t.Fatalf("expected status OK, got %s", task.Status())
	}
}

func TestTaskEngineNoFailureContract(t *testing.T) {
	e := NewTaskEngine()
	defer e.Stop()

	task := e.New("TestOp", "/redfish/v1/Systems/vm1", func() error {
		return errors.New("upstream unavailable")
	})

	deadline := time.Now().Add(15 * time.Second)
	for time.Now().Before(deadline) && task.State() != TaskCompleted {
		time.Sleep(20 * time.Millisecond)
	}

	if task.State() != TaskCompleted {
		t.Fatalf("expected task to still complete despite action error, state=%s", task.State())
	}
	if task.Status() != StatusWarning {
		t.Fatalf("expected Warning status per no-failure contract, got %s", task.Status())
	}
	if len(task.Messages()) == 0 {
		t.Fatal("expected a warning message to be recorded")
	}
}

func TestManagedVMBootOnceConsumed(t *testing.T) {
	vm := NewManagedVM("worker-1")
	vm.SetBootOverride(BootOverride{Target: BootPxe, Enabled: BootEnabledOnce, Mode: "UEFI"})
	vm.ConsumeBootOnce()
	if vm.BootOverride().Enabled != BootEnabledDisabled {
		t.Fatalf("expected Once to auto-reset to Disabled, got %s", vm.BootOverride().Enabled)
	}
	if vm.BootOverride().Target != BootPxe {
		t.Fatalf("expected target to persist across consumption, got %s", vm.BootOverride().Target)
	}
}

func TestEventStoreBoundedFIFO(t *testing.T) {
	gs := NewGlobalState()
	gs.RegisterVM(NewManagedVM("worker-1"))
	for i := 0; i < maxEventsPerVM+10; i++ {
		gs.AppendEvent("worker-1", "OK", "test event", "test")
	}
	events := gs.Events("worker-1")
	if len(events) != maxEventsPerVM {
		t.Fatalf("expected %d events retained, got %d", maxEventsPerVM, len(events))
	}
}
