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
	"shoal/internal/bridgeerr"
	"shoal/internal/state"
)

// NetFn codes spec.md §4.3 names.
const (
	netFnChassis = 0x00
	netFnSensor  = 0x04
	netFnApp     = 0x06
	netFnStorage = 0x0A
	netFnDCMI    = 0x2C
)

// Completion codes, spec.md §4.3.
const (
	ccSuccess       = 0x00
	ccInvalidCmd    = 0xC1
	ccInvalidLength = 0xC7
	ccInvalidData   = 0xCC
)

// cmdKey identifies one NetFn/Cmd pair in the dispatch table.
type cmdKey struct {
	NetFn byte
	Cmd   byte
}

// cmdHandler decodes a request, performs the corresponding action, and
// returns the response data plus a completion code. Handlers never return
// an error for vSphere failure; they translate UpstreamUnavailable into
// cached/default state per the soft-success policy (spec.md §7, §9).
type cmdHandler func(e *Engine, sess *Session, data []byte) ([]byte, byte)

// dispatchTable is the tagged-variant command table spec.md §9 calls for:
// one entry per supported (NetFn, Cmd) pair, decode+handle in one step.
var dispatchTable = map[cmdKey]cmdHandler{
	{netFnApp, 0x01}:     handleGetDeviceID,
	{netFnApp, 0x38}:     handleGetChannelAuthCaps,
	{netFnApp, 0x3B}:     handleSetSessionPrivilege,
	{netFnApp, 0x3C}:     handleCloseSession,
	{netFnChassis, 0x01}: handleGetChassisStatus,
	{netFnChassis, 0x02}: handleChassisControl,
	{netFnChassis, 0x08}: handleSetSystemBootOptions,
	{netFnChassis, 0x09}: handleGetSystemBootOptions,
	{netFnSensor, 0x20}:  handleSDRReservation,
	{netFnSensor, 0x22}:  handleSDREmpty,
	{netFnSensor, 0x23}:  handleSDREmpty,
	{netFnSensor, 0x2D}:  handleSDREmpty,
	{netFnStorage, 0x40}: handleGetSELInfo,
	{netFnStorage, 0x42}: handleReserveSEL,
	{netFnStorage, 0x43}: handleGetSELEntry,
	{netFnDCMI, 0x01}:    handleGetDCMICapabilities,
}

// dispatch looks up and invokes the handler for (netFn, cmd). Unknown
// commands return 0xC1 with an empty body.
func dispatch(e *Engine, sess *Session, netFn, cmd byte, data []byte) ([]byte, byte) {
	h, ok := dispatchTable[cmdKey{netFn, cmd}]
	if !ok {
		return nil, ccInvalidCmd
	}
	return h(e, sess, data)
}

// --- App commands ---

func handleGetDeviceID(e *Engine, sess *Session, data []byte) ([]byte, byte) {
	// Device ID, device revision, firmware rev 1/2, IPMI version 2.0,
	// additional device support, manufacturer ID (3 bytes, 0), product ID (2 bytes, 0).
	resp := []byte{
		0x00,       // Device ID
		0x81,       // Device revision (bit7=1: device provides SDRs)
		0x01, 0x00, // Firmware revision 1.0
		0x02,       // IPMI version 2.0
		0xBF,       // Additional device support (sensor, SDR repo, SEL, FRU, chassis)
		0x00, 0x00, 0x00, // Manufacturer ID
		0x00, 0x00, // Product ID
	}
	return resp, ccSuccess
}

func handleGetChannelAuthCaps(e *Engine, sess *Session, data []byte) ([]byte, byte) {
	if len(data) < 2 {
		return nil, ccInvalidLength
	}
	resp := []byte{
		data[0] & 0x0F, // channel number echoed
		0x04,           // auth type support: MD5 bit cleared, RMCP+ only (IPMI 2.0 ext data present)
		0x04,           // bit2: Administrator level available
		0x02,           // IPMI 2.0 extended capabilities available (bit 1)
		0x00, 0x00, 0x00, // OEM ID
		0x00, // OEM aux data
	}
	return resp, ccSuccess
}

func handleSetSessionPrivilege(e *Engine, sess *Session, data []byte) ([]byte, byte) {
	if len(data) < 1 {
		return nil, ccInvalidLength
	}
	requested := data[0] & 0x0F
	if requested == 0 {
		return []byte{sess.Privilege}, ccSuccess
	}
	if requested > PrivilegeAdministrator {
		requested = PrivilegeAdministrator
	}
	sess.mu.Lock()
	sess.Privilege = requested
	sess.mu.Unlock()
	return []byte{requested}, ccSuccess
}

func handleCloseSession(e *Engine, sess *Session, data []byte) ([]byte, byte) {
	e.sessions.remove(sess)
	sess.setState(StateClosed)
	return nil, ccSuccess
}

// --- Chassis commands ---

func handleGetChassisStatus(e *Engine, sess *Session, data []byte) ([]byte, byte) {
	power := e.vm.PowerState()
	var statusByte byte
	if power == state.PowerOn {
		statusByte |= 0x01
	}
	statusByte |= 0x40 // power restore policy bits 6-5 = 10 (always power up); power fault bits cleared
	resp := []byte{
		statusByte,
		0x00, // last power event
		0x40, // misc chassis state: chassis identify supported
		0x00, // front panel button capabilities
	}
	return resp, ccSuccess
}

func handleChassisControl(e *Engine, sess *Session, data []byte) ([]byte, byte) {
	if len(data) < 1 {
		return nil, ccInvalidLength
	}
	var err error
	switch data[0] & 0x0F {
	case 0x00:
		err = e.adapter.PowerOff(e.ctx(), e.vm.Name, true)
		if err == nil || isUpstream(err) {
			e.vm.SetPowerState(state.PowerOff)
		}
	case 0x01:
		err = e.adapter.PowerOn(e.ctx(), e.vm.Name)
		if err == nil || isUpstream(err) {
			e.vm.SetPowerState(state.PowerOn)
			e.vm.ConsumeBootOnce()
		}
	case 0x02:
		_ = e.adapter.PowerOff(e.ctx(), e.vm.Name, true)
		err = e.adapter.PowerOn(e.ctx(), e.vm.Name)
		e.vm.SetPowerState(state.PowerOn)
		e.vm.ConsumeBootOnce()
	case 0x03:
		err = e.adapter.Reset(e.ctx(), e.vm.Name)
		if err == nil || isUpstream(err) {
			e.vm.SetPowerState(state.PowerOn)
		}
	case 0x05:
		err = e.adapter.ShutdownGuest(e.ctx(), e.vm.Name)
		if err == nil || isUpstream(err) {
			e.vm.SetPowerState(state.PowerOff)
		}
	default:
		return nil, ccInvalidData
	}
	// Soft-success: vSphere failure never surfaces as a bad completion code.
	_ = err
	return nil, ccSuccess
}

// bootSelectorToTarget maps an IPMI boot device selector (parameter 5,
// data byte 2, bits 5-2) to the cached BootTarget vocabulary.
func bootSelectorToTarget(selector byte) (state.BootTarget, bool) {
	switch selector {
	case 0x00:
		return state.BootNone, true
	case 0x01:
		return state.BootPxe, true
	case 0x02:
		return state.BootHdd, true
	case 0x05:
		return state.BootCd, true
	case 0x06:
		return state.BootBiosSetup, true
	case 0x09:
		return state.BootFloppy, true
	default:
		return "", false
	}
}

func bootTargetToSelector(t state.BootTarget) byte {
	switch t {
	case state.BootPxe:
		return 0x01
	case state.BootHdd:
		return 0x02
	case state.BootCd:
		return 0x05
	case state.BootBiosSetup:
		return 0x06
	case state.BootFloppy:
		return 0x09
	default:
		return 0x00
	}
}

func handleSetSystemBootOptions(e *Engine, sess *Session, data []byte) ([]byte, byte) {
	if len(data) < 1 {
		return nil, ccInvalidLength
	}
	param := data[0] & 0x7F
	if param != 0x05 {
		// Only boot flags (parameter 5) are meaningfully modeled; accept and ignore others.
		return nil, ccSuccess
	}
	if len(data) < 3 {
		return nil, ccInvalidLength
	}
	persistent := data[1]&0x40 != 0
	selector := (data[2] >> 2) & 0x0F
	target, ok := bootSelectorToTarget(selector)
	if !ok {
		return nil, ccInvalidData
	}

	enabled := state.BootEnabledOnce
	if persistent {
		enabled = state.BootEnabledContinous
	}
	mode := "Legacy"
	if data[1]&0x20 != 0 {
		mode = "UEFI"
	}
	e.vm.SetBootOverride(state.BootOverride{Target: target, Enabled: enabled, Mode: mode})

	if target == state.BootCd && e.vm.DefaultISODatastore != "" {
		_ = e.adapter.MountISO(e.ctx(), e.vm.Name, e.vm.DefaultISODatastore, e.vm.DefaultISOPath)
	}

	return nil, ccSuccess
}

func handleGetSystemBootOptions(e *Engine, sess *Session, data []byte) ([]byte, byte) {
	b := e.vm.BootOverride()
	persistence := byte(0x00)
	if b.Enabled == state.BootEnabledContinous {
		persistence = 0x40
	}
	var validBit byte
	if b.Enabled != state.BootEnabledDisabled {
		validBit = 0x80
	}
	modeBit := byte(0x00)
	if b.Mode == "UEFI" {
		modeBit = 0x20
	}
	resp := []byte{
		0x05,                                     // parameter selector echoed
		0x00,                                     // parameter version
		persistence | validBit,                   // data 1: persistence + valid bit
		modeBit | (bootTargetToSelector(b.Target) << 2), // data 2: mode + boot device selector
		0x00, 0x00, 0x00, 0x00, 0x00,
	}
	return resp, ccSuccess
}

// --- Sensor/SDR commands: empty repository, structurally valid ---

func handleSDRReservation(e *Engine, sess *Session, data []byte) ([]byte, byte) {
	return []byte{0x01, 0x00}, ccSuccess // reservation ID = 1
}

func handleSDREmpty(e *Engine, sess *Session, data []byte) ([]byte, byte) {
	// Get SDR / Get Device SDR / Get Sensor Reading family: report "no more records".
	return []byte{0xFF, 0xFF}, ccSuccess
}

// --- Storage/SEL commands ---

func handleGetSELInfo(e *Engine, sess *Session, data []byte) ([]byte, byte) {
	entries := e.gs.Events(e.vm.Name)
	resp := make([]byte, 14)
	resp[0] = 0x51 // SEL version 1.5/2.0 compliant
	resp[1] = byte(len(entries))
	resp[2] = byte(len(entries) >> 8)
	// bytes 3-6: free space (fixed plausible value)
	resp[3], resp[4] = 0xFF, 0x01
	// bytes 7-10: most recent addition/erase timestamps (zero = unknown)
	// byte 11: operation support
	resp[11] = 0x02 // reserve supported
	return resp, ccSuccess
}

func handleReserveSEL(e *Engine, sess *Session, data []byte) ([]byte, byte) {
	return []byte{0x01, 0x00}, ccSuccess
}

func handleGetSELEntry(e *Engine, sess *Session, data []byte) ([]byte, byte) {
	entries := e.gs.Events(e.vm.Name)
	if len(data) < 4 {
		return nil, ccInvalidLength
	}
	recordID := uint16(data[2]) | uint16(data[3])<<8
	var found *state.EventLogEntry
	for i := range entries {
		if entries[i].RecordID == recordID {
			found = &entries[i]
			break
		}
		if recordID == 0xFFFF {
			found = &entries[len(entries)-1]
			break
		}
	}
	if found == nil {
		return []byte{0xFF, 0xFF}, ccSuccess
	}
	resp := make([]byte, 18)
	resp[0] = 0xFF
	resp[1] = 0xFF // next record ID: none
	resp[2] = byte(found.RecordID)
	resp[3] = byte(found.RecordID >> 8)
	resp[4] = 0x02 // record type: system event
	resp[9] = 0x20 // generator ID placeholder
	resp[11] = 0x04
	resp[12] = severityToEventData(found.Severity)
	return resp, ccSuccess
}

func severityToEventData(sev string) byte {
	switch sev {
	case "Critical":
		return 0x02
	case "Warning":
		return 0x01
	default:
		return 0x00
	}
}

// --- DCMI ---

func handleGetDCMICapabilities(e *Engine, sess *Session, data []byte) ([]byte, byte) {
	resp := []byte{
		0xDC, 0x01, 0x05, // DCMI spec conformance: group extension, version 1.5
		0x01, // parameter revision
		0x00, 0x01, 0x02, // mandatory platform capabilities: power mgmt, identify, SEL
	}
	return resp, ccSuccess
}

func isUpstream(err error) bool {
	return err != nil && bridgeerr.IsUpstreamUnavailable(err)
}
