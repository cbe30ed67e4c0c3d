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

import (
	"context"
	"time"

	"shoal/internal/bridgeerr"
	"shoal/internal/state"
)

// resetOpTimeout bounds the vSphere call a Reset task performs once it
// starts running, independent of the HTTP request that queued it.
const resetOpTimeout = 20 * time.Second

func (s *Server) handleSystemsCollection(rc *requestContext) {
	rc.writeJSON(200, newCollection("/redfish/v1/Systems", "Computer System Collection", "ComputerSystem", []string{rc.basePath()}))
}

func (s *Server) handleSystem(rc *requestContext) {
	vm := s.vm
	power := vm.PowerState()
	boot := vm.BootOverride()
	inv := vm.Inventory()

	cpuCount, memGiB, cpuModel := 2, 16.0, "Virtual CPU"
	if inv != nil {
		cpuCount = inv.CPUCount
		memGiB = float64(inv.MemoryMB) / 1024.0
	}

	sys := ComputerSystem{
		ODataContext: "/redfish/v1/$metadata#ComputerSystem.ComputerSystem",
		ODataID:      rc.basePath(),
		ODataType:    "#ComputerSystem.v1_13_0.ComputerSystem",
		ID:           vm.Name,
		Name:         vm.Name,
		SystemType:   "Virtual",
		PowerState:   string(power),
		Status:       okStatus(),
		Boot: Boot{
			BootSourceOverrideTarget:  string(boot.Target),
			BootSourceOverrideEnabled: string(boot.Enabled),
			BootSourceOverrideMode:    boot.Mode,
			BootSourceOverrideTarget_AllowableValues: []string{
				"None", "Pxe", "Cd", "Hdd", "Usb", "BiosSetup", "Floppy",
			},
		},
		ProcessorSummary: ProcessorSummary{Count: cpuCount, Model: cpuModel, Status: okStatus()},
		MemorySummary:    MemorySummary{TotalSystemMemoryGiB: memGiB, Status: okStatus()},
		Actions: ComputerSystemActions{
			Reset: ActionTarget{
				Target: rc.basePath() + "/Actions/ComputerSystem.Reset",
				ResetTypeAllowableValues: []string{
					"On", "ForceOff", "GracefulShutdown", "GracefulRestart", "ForceRestart", "PushPowerButton", "PowerCycle",
				},
			},
		},
		Links: ComputerSystemLinks{
			Chassis:   []ODataIDRef{{ODataID: rc.chassisPath()}},
			ManagedBy: []ODataIDRef{{ODataID: rc.managerPath()}},
		},
	}
	rc.writeJSON(200, sys)
}

func (s *Server) handleSystemPatch(rc *requestContext) {
	var req BootPatchRequest
	if err := rc.decodeBody(&req); err != nil {
		rc.writeError(400, "MalformedJSON", "request body is not valid JSON")
		return
	}

	if req.Boot != nil {
		current := s.vm.BootOverride()
		if req.Boot.BootSourceOverrideTarget != "" {
			current.Target = state.BootTarget(req.Boot.BootSourceOverrideTarget)
		}
		if req.Boot.BootSourceOverrideEnabled != "" {
			current.Enabled = state.BootEnabled(req.Boot.BootSourceOverrideEnabled)
		}
		if req.Boot.BootSourceOverrideMode != "" {
			current.Mode = req.Boot.BootSourceOverrideMode
		}
		s.vm.SetBootOverride(current)

		if current.Target == state.BootCd {
			if s.vm.DefaultISODatastore != "" {
				_ = s.adapter.MountISO(rc.r.Context(), s.vm.Name, s.vm.DefaultISODatastore, s.vm.DefaultISOPath)
			}
		} else if current.Target == state.BootHdd || current.Target == state.BootNone {
			_ = s.adapter.UnmountISO(rc.r.Context(), s.vm.Name)
		}
	}

	rc.w.Header().Set("ETag", "W/\"boot-override\"")
	rc.w.WriteHeader(204)
}

// resetOp is the vSphere call one ResetType dispatches to, plus the cache
// update applied once the call has run (on success, or on an outage the
// no-failure contract still treats as good enough to reflect optimistically).
func (s *Server) resetOp(resetType string) (func(ctx context.Context) error, bool) {
	switch resetType {
	case "On", "PowerCycle":
		return func(ctx context.Context) error {
			err := s.adapter.PowerOn(ctx, s.vm.Name)
			if err == nil || bridgeerr.IsUpstreamUnavailable(err) {
				s.vm.SetPowerState(state.PowerOn)
				s.vm.ConsumeBootOnce()
			}
			return err
		}, true
	case "ForceOff":
		return func(ctx context.Context) error {
			err := s.adapter.PowerOff(ctx, s.vm.Name, true)
			if err == nil || bridgeerr.IsUpstreamUnavailable(err) {
				s.vm.SetPowerState(state.PowerOff)
			}
			return err
		}, true
	case "GracefulShutdown":
		return func(ctx context.Context) error {
			err := s.adapter.ShutdownGuest(ctx, s.vm.Name)
			if err == nil || bridgeerr.IsUpstreamUnavailable(err) {
				s.vm.SetPowerState(state.PowerOff)
			}
			return err
		}, true
	case "GracefulRestart":
		return func(ctx context.Context) error {
			return s.adapter.RebootGuest(ctx, s.vm.Name)
		}, true
	case "ForceRestart":
		return func(ctx context.Context) error {
			err := s.adapter.Reset(ctx, s.vm.Name)
			if err == nil || bridgeerr.IsUpstreamUnavailable(err) {
				s.vm.SetPowerState(state.PowerOn)
			}
			return err
		}, true
	case "PushPowerButton":
		return func(ctx context.Context) error {
			var err error
			if s.vm.PowerState() == state.PowerOn {
				err = s.adapter.ShutdownGuest(ctx, s.vm.Name)
				if err == nil || bridgeerr.IsUpstreamUnavailable(err) {
					s.vm.SetPowerState(state.PowerOff)
				}
			} else {
				err = s.adapter.PowerOn(ctx, s.vm.Name)
				if err == nil || bridgeerr.IsUpstreamUnavailable(err) {
					s.vm.SetPowerState(state.PowerOn)
				}
			}
			return err
		}, true
	default:
		return nil, false
	}
}

// handleSystemReset runs ComputerSystem.Reset. Per spec.md §8's vCenter
// outage scenario, the response to the caller is always a synchronous 204;
// a Task is created alongside it so that when the vSphere call underneath
// fails (or the upstream is unavailable), the outage is recorded as a
// completed Task carrying a Warning message rather than an HTTP error.
func (s *Server) handleSystemReset(rc *requestContext) {
	var req ResetRequest
	if err := rc.decodeBody(&req); err != nil {
		rc.writeError(400, "MalformedJSON", "request body is not valid JSON")
		return
	}

	op, ok := s.resetOp(req.ResetType)
	if !ok {
		rc.writeError(400, "ActionParameterNotSupported", "unsupported ResetType")
		return
	}

	s.gs.Tasks.New("Reset "+req.ResetType, rc.basePath(), func() error {
		ctx, cancel := context.WithTimeout(context.Background(), resetOpTimeout)
		defer cancel()
		return op(ctx)
	})

	rc.w.WriteHeader(204)
}
