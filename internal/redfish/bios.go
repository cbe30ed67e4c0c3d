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

package redfish

import "sync"

// biosAttrs is the per-VM cache of simulated BIOS settings. There is no
// vSphere equivalent to a BIOS setup page, so PATCHes here only ever mutate
// this in-memory map; spec.md §9 allows synthetic firmware state as long as
// it is stable across reads.
var (
	biosAttrsMu sync.Mutex
	biosAttrs   = map[string]map[string]interface{}{}
)

func defaultBiosAttrs() map[string]interface{} {
	return map[string]interface{}{
		"BootMode":            "Uefi",
		"NumaEnabled":         true,
		"PowerProfile":        "Balanced",
		"ProcTurboMode":       "Enabled",
		"ProcHyperThreading":  "Enabled",
		"SriovGlobalEnable":   false,
	}
}

func biosAttrsFor(vmName string) map[string]interface{} {
	biosAttrsMu.Lock()
	defer biosAttrsMu.Unlock()
	attrs, ok := biosAttrs[vmName]
	if !ok {
		attrs = defaultBiosAttrs()
		biosAttrs[vmName] = attrs
	}
	out := make(map[string]interface{}, len(attrs))
	for k, v := range attrs {
		out[k] = v
	}
	return out
}

func mergeBiosAttrs(vmName string, patch map[string]interface{}) {
	biosAttrsMu.Lock()
	defer biosAttrsMu.Unlock()
	attrs, ok := biosAttrs[vmName]
	if !ok {
		attrs = defaultBiosAttrs()
	}
	for k, v := range patch {
		attrs[k] = v
	}
	biosAttrs[vmName] = attrs
}

func resetBiosAttrs(vmName string) {
	biosAttrsMu.Lock()
	defer biosAttrsMu.Unlock()
	biosAttrs[vmName] = defaultBiosAttrs()
}

// secureBootState mirrors biosAttrs: a per-VM in-memory cache, since vSphere
// has no SecureBoot setting of its own for this bridge to read through to.
var (
	secureBootMu      sync.Mutex
	secureBootEnabled = map[string]bool{}
)

func secureBootFor(vmName string) bool {
	secureBootMu.Lock()
	defer secureBootMu.Unlock()
	enabled, ok := secureBootEnabled[vmName]
	if !ok {
		return true
	}
	return enabled
}

func setSecureBootFor(vmName string, enabled bool) {
	secureBootMu.Lock()
	defer secureBootMu.Unlock()
	secureBootEnabled[vmName] = enabled
}

func (s *Server) handleBios(rc *requestContext) {
	rc.writeJSON(200, Bios{
		ODataContext: "/redfish/v1/$metadata#Bios.Bios",
		ODataID:      rc.basePath() + "/Bios",
		ODataType:    "#Bios.v1_2_0.Bios",
		ID:           "Bios",
		Name:         "BIOS Configuration",
		Attributes:   biosAttrsFor(s.vm.Name),
		Actions: BiosActions{
			ResetBios: ActionTarget{Target: rc.basePath() + "/Bios/Actions/Bios.ResetBios"},
		},
	})
}

func (s *Server) handleBiosPatch(rc *requestContext) {
	var req struct {
		Attributes map[string]interface{} `json:"Attributes"`
	}
	if err := rc.decodeBody(&req); err != nil {
		rc.writeError(400, "MalformedJSON", "request body is not valid JSON")
		return
	}
	mergeBiosAttrs(s.vm.Name, req.Attributes)
	rc.w.WriteHeader(204)
}

func (s *Server) handleBiosReset(rc *requestContext) {
	resetBiosAttrs(s.vm.Name)
	rc.w.WriteHeader(204)
}

func (s *Server) handleSecureBoot(rc *requestContext) {
	enabled := secureBootFor(s.vm.Name)
	currentBoot := "Disabled"
	if enabled {
		currentBoot = "Enabled"
	}
	rc.writeJSON(200, SecureBoot{
		ODataContext:          "/redfish/v1/$metadata#SecureBoot.SecureBoot",
		ODataID:               rc.basePath() + "/SecureBoot",
		ODataType:             "#SecureBoot.v1_1_0.SecureBoot",
		ID:                    "SecureBoot",
		Name:                  "UEFI Secure Boot",
		SecureBootEnable:      enabled,
		SecureBootCurrentBoot: currentBoot,
		Actions: SecureBootActions{
			ResetKeys: ActionTarget{Target: rc.basePath() + "/SecureBoot/Actions/SecureBoot.ResetKeys"},
		},
	})
}

func (s *Server) handleSecureBootPatch(rc *requestContext) {
	var req struct {
		SecureBootEnable *bool `json:"SecureBootEnable"`
	}
	if err := rc.decodeBody(&req); err != nil {
		rc.writeError(400, "MalformedJSON", "request body is not valid JSON")
		return
	}
	if req.SecureBootEnable != nil {
		setSecureBootFor(s.vm.Name, *req.SecureBootEnable)
	}
	rc.w.WriteHeader(204)
}

func (s *Server) handleSecureBootResetKeys(rc *requestContext) {
	rc.w.WriteHeader(204)
}
