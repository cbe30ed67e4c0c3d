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

package bridge

import (
	"testing"

	"shoal/internal/config"
	"shoal/pkg/auth"
)

func TestNewRegistersEveryConfiguredVMWithHashedPassword(t *testing.T) {
	cfg := &config.Config{
		VMware: config.VMware{Host: "vcenter.invalid", User: "admin", Password: "vcpass"},
		VMs: []config.VM{
			{Name: "vm1", IPMIPort: 6230, RedfishPort: 8443, IPMIUser: "a", IPMIPassword: "b", RedfishUser: "admin", RedfishPassword: "topsecret"},
			{Name: "vm2", IPMIPort: 6231, RedfishPort: 8444, IPMIUser: "a", IPMIPassword: "b", RedfishUser: "admin", RedfishPassword: "topsecret2"},
		},
	}

	b, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	vms := b.GlobalState().AllVMs()
	if len(vms) != 2 {
		t.Fatalf("len(vms) = %d, want 2", len(vms))
	}

	for _, vm := range vms {
		if vm.RedfishPasswordHash == "" {
			t.Errorf("vm %s: RedfishPasswordHash not set", vm.Name)
		}
		if vm.RedfishPasswordHash == vm.RedfishPassword {
			t.Errorf("vm %s: password was not hashed", vm.Name)
		}
		if err := auth.VerifyPassword(vm.RedfishPassword, vm.RedfishPasswordHash); err != nil {
			t.Errorf("vm %s: hash does not verify against its own password: %v", vm.Name, err)
		}
	}

	if tasks := b.GlobalState().Tasks.All(); len(tasks) != 2 {
		t.Errorf("expected one seeded task per VM, got %d", len(tasks))
	}
}
