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

// Package bridge wires one IPMI engine and one Redfish server per managed VM
// to the shared vSphere adapter and GlobalState, and runs the whole fleet of
// listeners under a single cancellation scope (spec.md §5).
package bridge

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"shoal/internal/config"
	"shoal/internal/ipmi"
	"shoal/internal/redfish"
	"shoal/internal/state"
	"shoal/internal/vsphere"
	"shoal/pkg/auth"
)

// Bridge owns every per-VM listener pair and the state they share.
type Bridge struct {
	cfg     *config.Config
	adapter *vsphere.Adapter
	gs      *state.GlobalState
	logger  *slog.Logger
}

// New builds a Bridge from a validated configuration. It registers every
// configured VM into the shared GlobalState, hashing each Redfish password
// once so listener goroutines never touch bcrypt concurrently for the same
// VM.
func New(cfg *config.Config, logger *slog.Logger) (*Bridge, error) {
	if logger == nil {
		logger = slog.Default()
	}

	adapter := vsphere.New(vsphere.Config{
		Host:       cfg.VMware.Host,
		User:       cfg.VMware.User,
		Password:   cfg.VMware.Password,
		Port:       cfg.VMware.Port,
		DisableSSL: cfg.VMware.DisableSSL,
	}, logger)

	gs := state.NewGlobalState()

	for _, vmCfg := range cfg.VMs {
		vm := state.NewManagedVM(vmCfg.Name)
		vm.IPMIPort = vmCfg.IPMIPort
		vm.RedfishPort = vmCfg.RedfishPort
		vm.IPMIUser = vmCfg.IPMIUser
		vm.IPMIPassword = vmCfg.IPMIPassword
		vm.RedfishUser = vmCfg.RedfishUser
		vm.RedfishPassword = vmCfg.RedfishPassword
		vm.DisableSSL = vmCfg.DisableSSL
		if vmCfg.DefaultISO != nil {
			vm.DefaultISODatastore = vmCfg.DefaultISO.Datastore
			vm.DefaultISOPath = vmCfg.DefaultISO.Path
		}

		hash, err := auth.HashPassword(vmCfg.RedfishPassword)
		if err != nil {
			return nil, err
		}
		vm.RedfishPasswordHash = hash

		gs.RegisterVM(vm)
		seedHistory(gs, vm.Name)
	}

	return &Bridge{cfg: cfg, adapter: adapter, gs: gs, logger: logger}, nil
}

// seedHistory pre-populates one completed task and one startup event per VM
// so an orchestrator's first poll is never empty, per spec.md §4.5/§4.6.
func seedHistory(gs *state.GlobalState, vmName string) {
	gs.Tasks.SeedCompleted("Bridge Startup", "/redfish/v1/Systems/"+vmName)
	gs.AppendEvent(vmName, "OK", "Managed system registered with bridge", "BridgeStartup")
}

// Run starts every VM's IPMI engine and Redfish server and blocks until ctx
// is cancelled or any listener returns a non-nil error, at which point every
// other listener is cancelled too (spec.md §5's all-or-nothing startup).
func (b *Bridge) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, vm := range b.gs.AllVMs() {
		vm := vm
		logger := b.logger.With("vm", vm.Name)

		engine := ipmi.NewEngine(vm, b.adapter, b.gs, logger)
		g.Go(func() error {
			return engine.ListenAndServe(ctx)
		})

		certFile, keyFile := "", ""
		if !vm.DisableSSL {
			certFile, keyFile = b.cfg.SSL.CertPath, b.cfg.SSL.KeyPath
		}
		rf := redfish.New(vm, b.adapter, b.gs, logger, certFile, keyFile)
		g.Go(func() error {
			return rf.ListenAndServe(ctx)
		})
	}

	err := g.Wait()
	b.gs.Tasks.Stop()
	_ = b.adapter.Disconnect(context.Background())
	return err
}

// GlobalState exposes the shared aggregate, mainly for tests.
func (b *Bridge) GlobalState() *state.GlobalState { return b.gs }
