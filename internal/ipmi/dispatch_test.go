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

package ipmi

import (
	"testing"

	"shoal/internal/state"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	gs := state.NewGlobalState()
	vm := state.NewManagedVM("vm1")
	gs.RegisterVM(vm)
	return &Engine{vm: vm, gs: gs, sessions: newSessionTable()}
}

func TestDispatchUnknownCommandReturnsInvalidCmd(t *testing.T) {
	e := newTestEngine(t)
	_, cc := dispatch(e, nil, 0xFF, 0xFF, nil)
	if cc != ccInvalidCmd {
		t.Errorf("cc = %#x, want %#x", cc, ccInvalidCmd)
	}
}

func TestHandleGetChassisStatusReflectsPowerState(t *testing.T) {
	e := newTestEngine(t)
	e.vm.SetPowerState(state.PowerOn)

	resp, cc := dispatch(e, nil, netFnChassis, 0x01, nil)
	if cc != ccSuccess {
		t.Fatalf("cc = %#x, want success", cc)
	}
	if resp[0]&0x01 == 0 {
		t.Error("power-on bit not set in chassis status byte")
	}

	e.vm.SetPowerState(state.PowerOff)
	resp, _ = dispatch(e, nil, netFnChassis, 0x01, nil)
	if resp[0]&0x01 != 0 {
		t.Error("power-on bit set while VM is powered off")
	}
}

func TestHandleSetSessionPrivilegeCapsAtAdministrator(t *testing.T) {
	e := newTestEngine(t)
	sess := &Session{Privilege: PrivilegeAdministrator}

	resp, cc := dispatch(e, sess, netFnApp, 0x3B, []byte{0x05}) // request level above admin
	if cc != ccSuccess {
		t.Fatalf("cc = %#x, want success", cc)
	}
	if resp[0] != PrivilegeAdministrator {
		t.Errorf("granted privilege = %#x, want %#x", resp[0], PrivilegeAdministrator)
	}
}

func TestHandleSetSessionPrivilegeQueryReturnsCurrent(t *testing.T) {
	e := newTestEngine(t)
	sess := &Session{Privilege: PrivilegeAdministrator}

	resp, cc := dispatch(e, sess, netFnApp, 0x3B, []byte{0x00})
	if cc != ccSuccess || resp[0] != PrivilegeAdministrator {
		t.Fatalf("resp = %v cc = %#x, want [%#x] success", resp, cc, PrivilegeAdministrator)
	}
}

func TestBootSelectorRoundTrip(t *testing.T) {
	for _, target := range []state.BootTarget{state.BootPxe, state.BootHdd, state.BootCd, state.BootBiosSetup, state.BootFloppy} {
		selector := bootTargetToSelector(target)
		got, ok := bootSelectorToTarget(selector)
		if !ok {
			t.Fatalf("bootSelectorToTarget(%#x): not ok", selector)
		}
		if got != target {
			t.Errorf("round trip %v -> %#x -> %v", target, selector, got)
		}
	}
}

func TestHandleSetSystemBootOptionsPersistsOverride(t *testing.T) {
	e := newTestEngine(t)
	// parameter 5, data1 valid (0x80) and persistent (0x40) bits set, data2 selector=Hdd(0x02)<<2
	data := []byte{0x05, 0xC0, byte(0x02) << 2}

	_, cc := dispatch(e, nil, netFnChassis, 0x08, data)
	if cc != ccSuccess {
		t.Fatalf("cc = %#x, want success", cc)
	}

	got := e.vm.BootOverride()
	if got.Target != state.BootHdd {
		t.Errorf("Target = %v, want %v", got.Target, state.BootHdd)
	}
	if got.Enabled != state.BootEnabledContinous {
		t.Errorf("Enabled = %v, want continuous", got.Enabled)
	}
}

func TestHandleGetSystemBootOptionsReflectsOverride(t *testing.T) {
	e := newTestEngine(t)
	e.vm.SetBootOverride(state.BootOverride{Target: state.BootPxe, Enabled: state.BootEnabledOnce, Mode: "Legacy"})

	resp, cc := dispatch(e, nil, netFnChassis, 0x09, nil)
	if cc != ccSuccess {
		t.Fatalf("cc = %#x, want success", cc)
	}
	selector := (resp[3] >> 2) & 0x0F
	target, ok := bootSelectorToTarget(selector)
	if !ok || target != state.BootPxe {
		t.Errorf("decoded target = %v (ok=%v), want %v", target, ok, state.BootPxe)
	}
}

func TestHandleGetSELEntryEmptyLog(t *testing.T) {
	e := newTestEngine(t)
	resp, cc := dispatch(e, nil, netFnStorage, 0x43, []byte{0x00, 0x00, 0xFF, 0xFF})
	if cc != ccSuccess {
		t.Fatalf("cc = %#x, want success", cc)
	}
	if resp[0] != 0xFF || resp[1] != 0xFF {
		t.Errorf("expected no-more-records sentinel, got %v", resp)
	}
}

func TestHandleCloseSessionRemovesSession(t *testing.T) {
	e := newTestEngine(t)
	sess := e.sessions.create("127.0.0.1:1000")
	e.sessions.bind(1, sess)

	_, cc := dispatch(e, sess, netFnApp, 0x3C, nil)
	if cc != ccSuccess {
		t.Fatalf("cc = %#x, want success", cc)
	}
	if sess.State() != StateClosed {
		t.Errorf("state = %v, want Closed", sess.State())
	}
	if _, ok := e.sessions.lookupByManaged("127.0.0.1:1000", sess.ManagedSessionID); ok {
		t.Error("session still present after close")
	}
}
