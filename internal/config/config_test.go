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

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func validConfigJSON() string {
	return `{
		"vmware": {"host": "vcenter.example.com", "user": "root", "password": "secret", "disable_ssl": true},
		"vms": [
			{"name": "worker-1", "ipmi_port": 6230, "redfish_port": 8443,
			 "ipmi_user": "admin", "ipmi_password": "password",
			 "redfish_user": "admin", "redfish_password": "password"}
		]
	}`
}

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoadValid(t *testing.T) {
	path := writeTemp(t, validConfigJSON())
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.VMware.Port != 443 {
		t.Errorf("expected default port 443, got %d", cfg.VMware.Port)
	}
	if len(cfg.VMs) != 1 || cfg.VMs[0].Name != "worker-1" {
		t.Errorf("unexpected VMs: %+v", cfg.VMs)
	}
}

func TestLoadDuplicatePorts(t *testing.T) {
	bad := `{
		"vmware": {"host": "vcenter.example.com", "user": "root"},
		"vms": [
			{"name": "a", "ipmi_port": 6230, "redfish_port": 8443, "ipmi_user": "u", "ipmi_password": "p", "redfish_user": "u", "redfish_password": "p"},
			{"name": "b", "ipmi_port": 6230, "redfish_port": 8444, "ipmi_user": "u", "ipmi_password": "p", "redfish_user": "u", "redfish_password": "p"}
		]
	}`
	path := writeTemp(t, bad)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for duplicate ipmi_port")
	} else if !strings.Contains(err.Error(), "ipmi_port") {
		t.Errorf("expected ipmi_port in error, got: %v", err)
	}
}

func TestLoadPasswordTooLong(t *testing.T) {
	bad := `{
		"vmware": {"host": "vcenter.example.com", "user": "root"},
		"vms": [
			{"name": "a", "ipmi_port": 6230, "redfish_port": 8443, "ipmi_user": "u",
			 "ipmi_password": "thispasswordiswaytoolongforipmi",
			 "redfish_user": "u", "redfish_password": "p"}
		]
	}`
	path := writeTemp(t, bad)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for over-length ipmi_password")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
