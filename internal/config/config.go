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

// Package config loads and validates the single JSON configuration file that
// describes the vCenter endpoint and the managed VMs.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"shoal/internal/bridgeerr"
)

// VMware describes the vCenter endpoint the adapter connects to.
type VMware struct {
	Host       string `json:"host"`
	User       string `json:"user"`
	Password   string `json:"password"`
	Port       int    `json:"port"`
	DisableSSL bool   `json:"disable_ssl"`
}

// SSL names an optional certificate/key pair used for Redfish TLS listeners
// that don't set a per-VM override.
type SSL struct {
	CertPath string `json:"cert_path"`
	KeyPath  string `json:"key_path"`
}

// DefaultISO names a datastore-relative ISO path used when a boot override
// targets Cd without the caller supplying a media image explicitly.
type DefaultISO struct {
	Datastore string `json:"datastore"`
	Path      string `json:"path"`
}

// VM is one managed virtual machine entry.
type VM struct {
	Name            string      `json:"name"`
	IPMIPort        int         `json:"ipmi_port"`
	RedfishPort     int         `json:"redfish_port"`
	IPMIUser        string      `json:"ipmi_user"`
	IPMIPassword    string      `json:"ipmi_password"`
	RedfishUser     string      `json:"redfish_user"`
	RedfishPassword string      `json:"redfish_password"`
	DisableSSL      bool        `json:"disable_ssl"`
	DefaultISO      *DefaultISO `json:"default_iso"`
}

// Config is the top-level configuration document.
type Config struct {
	VMware VMware `json:"vmware"`
	SSL    SSL    `json:"ssl"`
	VMs    []VM   `json:"vms"`
}

// Load reads and validates the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", bridgeerr.ErrConfigInvalid, path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %v", bridgeerr.ErrConfigInvalid, path, err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.VMware.Port == 0 {
		cfg.VMware.Port = 443
	}
}

// Validate checks the invariants spec.md §6 requires: unique names and
// ports, ports in range, non-empty credentials, and the IPMI password
// length cap the IPMI 2.0 wire format imposes.
func (c *Config) Validate() error {
	if c.VMware.Host == "" {
		return fmt.Errorf("%w: vmware.host is required", bridgeerr.ErrConfigInvalid)
	}
	if c.VMware.User == "" {
		return fmt.Errorf("%w: vmware.user is required", bridgeerr.ErrConfigInvalid)
	}
	if len(c.VMs) == 0 {
		return fmt.Errorf("%w: at least one VM must be configured", bridgeerr.ErrConfigInvalid)
	}

	names := make(map[string]bool, len(c.VMs))
	ipmiPorts := make(map[int]string, len(c.VMs))
	redfishPorts := make(map[int]string, len(c.VMs))

	for i, vm := range c.VMs {
		if vm.Name == "" {
			return fmt.Errorf("%w: vms[%d].name is required", bridgeerr.ErrConfigInvalid, i)
		}
		if names[vm.Name] {
			return fmt.Errorf("%w: duplicate VM name %q", bridgeerr.ErrConfigInvalid, vm.Name)
		}
		names[vm.Name] = true

		if err := validPort(vm.IPMIPort); err != nil {
			return fmt.Errorf("%w: vms[%s].ipmi_port: %v", bridgeerr.ErrConfigInvalid, vm.Name, err)
		}
		if err := validPort(vm.RedfishPort); err != nil {
			return fmt.Errorf("%w: vms[%s].redfish_port: %v", bridgeerr.ErrConfigInvalid, vm.Name, err)
		}
		if other, ok := ipmiPorts[vm.IPMIPort]; ok {
			return fmt.Errorf("%w: ipmi_port %d reused by %q and %q", bridgeerr.ErrConfigInvalid, vm.IPMIPort, other, vm.Name)
		}
		ipmiPorts[vm.IPMIPort] = vm.Name
		if other, ok := redfishPorts[vm.RedfishPort]; ok {
			return fmt.Errorf("%w: redfish_port %d reused by %q and %q", bridgeerr.ErrConfigInvalid, vm.RedfishPort, other, vm.Name)
		}
		redfishPorts[vm.RedfishPort] = vm.Name

		if vm.IPMIUser == "" || vm.IPMIPassword == "" {
			return fmt.Errorf("%w: vms[%s] requires non-empty ipmi_user/ipmi_password", bridgeerr.ErrConfigInvalid, vm.Name)
		}
		if vm.RedfishUser == "" || vm.RedfishPassword == "" {
			return fmt.Errorf("%w: vms[%s] requires non-empty redfish_user/redfish_password", bridgeerr.ErrConfigInvalid, vm.Name)
		}
		if len(vm.IPMIPassword) > 20 {
			return fmt.Errorf("%w: vms[%s].ipmi_password exceeds 20 bytes", bridgeerr.ErrConfigInvalid, vm.Name)
		}
	}

	return nil
}

func validPort(p int) error {
	if p < 1 || p > 65535 {
		return fmt.Errorf("port %d out of range 1-65535", p)
	}
	return nil
}
