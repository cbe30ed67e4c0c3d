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

// Package vsphere exposes the narrow, synchronous operation set the bridge
// needs from a vCenter: power control, boot order, virtual media, and
// read-only inventory. It hides session reconnection behind a single
// logical, lazily-established client, the way
// cluster-api-provider-vsphere's pkg/session does.
package vsphere

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/vmware/govmomi"
	"github.com/vmware/govmomi/find"
	"github.com/vmware/govmomi/object"
	"github.com/vmware/govmomi/session"
	"github.com/vmware/govmomi/vim25"
	"github.com/vmware/govmomi/vim25/methods"
	"github.com/vmware/govmomi/vim25/mo"
	"github.com/vmware/govmomi/vim25/soap"
	"github.com/vmware/govmomi/vim25/types"

	"shoal/internal/bridgeerr"
	"shoal/internal/metrics"
	"shoal/internal/state"
)

// Config is the subset of connection parameters the adapter needs.
type Config struct {
	Host       string
	User       string
	Password   string
	Port       int
	DisableSSL bool
}

// BootDevice is one entry of a requested boot order.
type BootDevice string

const (
	BootDeviceDisk    BootDevice = "Disk"
	BootDeviceCd      BootDevice = "Cd"
	BootDeviceNetwork BootDevice = "Network"
)

// Adapter is the bridge's single logical connection to vCenter. All
// exported methods are safe for concurrent use; mutating calls against the
// same VM name are serialized via a per-VM lock (spec.md §4.1).
type Adapter struct {
	cfg    Config
	logger *slog.Logger

	connMu sync.Mutex
	client *govmomi.Client
	finder *find.Finder

	vmLocksMu sync.Mutex
	vmLocks   map[string]*sync.Mutex
}

// New builds an adapter. The connection is established lazily on first use.
func New(cfg Config, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Port == 0 {
		cfg.Port = 443
	}
	return &Adapter{
		cfg:     cfg,
		logger:  logger,
		vmLocks: make(map[string]*sync.Mutex),
	}
}

func (a *Adapter) vmLock(name string) *sync.Mutex {
	a.vmLocksMu.Lock()
	defer a.vmLocksMu.Unlock()
	l, ok := a.vmLocks[name]
	if !ok {
		l = &sync.Mutex{}
		a.vmLocks[name] = l
	}
	return l
}

// ensureConnected returns a live govmomi client and finder, reconnecting if
// the cached session is absent or its keepalive probe fails.
func (a *Adapter) ensureConnected(ctx context.Context) (*govmomi.Client, *find.Finder, error) {
	a.connMu.Lock()
	defer a.connMu.Unlock()

	if a.client != nil {
		if userSession, err := a.client.SessionManager.UserSession(ctx); err == nil && userSession != nil {
			return a.client, a.finder, nil
		}
		a.logger.Warn("vsphere session stale, reconnecting", "host", a.cfg.Host)
		_ = a.client.Logout(ctx)
		a.client = nil
		a.finder = nil
	}

	u, err := soap.ParseURL(a.cfg.Host)
	if err != nil || u == nil {
		return nil, nil, fmt.Errorf("%w: parsing vcenter host %q: %v", bridgeerr.ErrConfigInvalid, a.cfg.Host, err)
	}
	u.User = url.UserPassword(a.cfg.User, a.cfg.Password)

	vc, err := a.newClient(ctx, u)
	if err != nil {
		return nil, nil, err
	}

	finder := find.NewFinder(vc.Client, true)
	dc, err := finder.DefaultDatacenter(ctx)
	if err != nil {
		_ = vc.Logout(ctx)
		return nil, nil, fmt.Errorf("%w: resolving default datacenter: %v", bridgeerr.ErrUpstreamUnavailable, err)
	}
	finder.SetDatacenter(dc)

	a.client = vc
	a.finder = finder
	a.logger.Info("vsphere session established", "host", a.cfg.Host)
	return a.client, a.finder, nil
}

// newClient builds and logs in a govmomi client, with a keepalive handler
// that re-logs-in transparently on a silently-expired session, mirroring
// cluster-api-provider-vsphere's pkg/session.newClient.
func (a *Adapter) newClient(ctx context.Context, u *url.URL) (*govmomi.Client, error) {
	soapClient := soap.NewClient(u, a.cfg.DisableSSL)

	vimClient, err := vim25.NewClient(ctx, soapClient)
	if err != nil {
		return nil, fmt.Errorf("%w: connecting to vcenter: %v", bridgeerr.ErrUpstreamUnavailable, err)
	}
	vimClient.UserAgent = "bmcbridge"

	vimClient.RoundTripper = session.KeepAliveHandler(vimClient.RoundTripper, 5*time.Minute, func(rt soap.RoundTripper) error {
		_, err := methods.GetCurrentTime(ctx, rt)
		if err != nil {
			a.logger.Warn("vsphere keepalive probe failed", "error", err)
		}
		return err
	})

	c := &govmomi.Client{
		Client:         vimClient,
		SessionManager: session.NewManager(vimClient),
	}

	if err := c.Login(ctx, u.User); err != nil {
		return nil, fmt.Errorf("%w: logging into vcenter: %v", bridgeerr.ErrAuthRejected, err)
	}

	return c, nil
}

func (a *Adapter) findVM(ctx context.Context, name string) (*object.VirtualMachine, error) {
	_, finder, err := a.ensureConnected(ctx)
	if err != nil {
		return nil, err
	}
	vm, err := finder.VirtualMachine(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("%w: looking up vm %q: %v", bridgeerr.ErrUpstreamUnavailable, name, err)
	}
	return vm, nil
}

// Disconnect logs out of vCenter. Called once at process shutdown.
func (a *Adapter) Disconnect(ctx context.Context) error {
	a.connMu.Lock()
	defer a.connMu.Unlock()
	if a.client == nil {
		return nil
	}
	err := a.client.Logout(ctx)
	a.client = nil
	a.finder = nil
	return err
}

// PowerOn powers a VM on. Idempotent: a VM already On returns success.
func (a *Adapter) PowerOn(ctx context.Context, name string) error {
	return withRetry(ctx, metrics.OpPowerOn, func(ctx context.Context) error {
		vm, err := a.findVM(ctx, name)
		if err != nil {
			return err
		}
		lock := a.vmLock(name)
		lock.Lock()
		defer lock.Unlock()

		state, err := vm.PowerState(ctx)
		if err != nil {
			return err
		}
		if state == types.VirtualMachinePowerStatePoweredOn {
			return nil
		}
		task, err := vm.PowerOn(ctx)
		if err != nil {
			return err
		}
		return task.Wait(ctx)
	})
}

// PowerOff powers a VM off. force=true is a hard power-off (Chassis Control
// 0x00 / ResetType=ForceOff); force=false still hard-powers-off since
// vSphere's PowerOffVM is always a hard stop — graceful paths go through
// ShutdownGuest instead.
func (a *Adapter) PowerOff(ctx context.Context, name string, force bool) error {
	return withRetry(ctx, metrics.OpPowerOff, func(ctx context.Context) error {
		vm, err := a.findVM(ctx, name)
		if err != nil {
			return err
		}
		lock := a.vmLock(name)
		lock.Lock()
		defer lock.Unlock()

		cur, err := vm.PowerState(ctx)
		if err != nil {
			return err
		}
		if cur == types.VirtualMachinePowerStatePoweredOff {
			return nil
		}
		task, err := vm.PowerOff(ctx)
		if err != nil {
			return err
		}
		return task.Wait(ctx)
	})
}

// Reset is a hard reset (Chassis Control 0x03).
func (a *Adapter) Reset(ctx context.Context, name string) error {
	return withRetry(ctx, metrics.OpReset, func(ctx context.Context) error {
		vm, err := a.findVM(ctx, name)
		if err != nil {
			return err
		}
		lock := a.vmLock(name)
		lock.Lock()
		defer lock.Unlock()

		task, err := vm.Reset(ctx)
		if err != nil {
			return err
		}
		return task.Wait(ctx)
	})
}

// ShutdownGuest requests an in-guest graceful shutdown (Chassis Control
// 0x05 / ResetType=GracefulShutdown). Requires VMware Tools; idempotent if
// the VM is already off.
func (a *Adapter) ShutdownGuest(ctx context.Context, name string) error {
	return withRetry(ctx, metrics.OpShutdownGuest, func(ctx context.Context) error {
		vm, err := a.findVM(ctx, name)
		if err != nil {
			return err
		}
		lock := a.vmLock(name)
		lock.Lock()
		defer lock.Unlock()

		cur, err := vm.PowerState(ctx)
		if err != nil {
			return err
		}
		if cur == types.VirtualMachinePowerStatePoweredOff {
			return nil
		}
		return vm.ShutdownGuest(ctx)
	})
}

// RebootGuest requests an in-guest graceful reboot (ResetType=GracefulRestart).
func (a *Adapter) RebootGuest(ctx context.Context, name string) error {
	return withRetry(ctx, metrics.OpRebootGuest, func(ctx context.Context) error {
		vm, err := a.findVM(ctx, name)
		if err != nil {
			return err
		}
		lock := a.vmLock(name)
		lock.Lock()
		defer lock.Unlock()

		return vm.RebootGuest(ctx)
	})
}

// GetPowerState returns the VM's live power state, mapped onto the
// On/Off vocabulary the bridge caches and exposes (spec.md §3). Suspended
// maps to Off since neither IPMI nor Redfish models a third state here.
func (a *Adapter) GetPowerState(ctx context.Context, name string) (state.PowerState, error) {
	var result state.PowerState
	err := withRetry(ctx, metrics.OpGetPowerState, func(ctx context.Context) error {
		vm, err := a.findVM(ctx, name)
		if err != nil {
			return err
		}
		ps, err := vm.PowerState(ctx)
		if err != nil {
			return err
		}
		if ps == types.VirtualMachinePowerStatePoweredOn {
			result = state.PowerOn
		} else {
			result = state.PowerOff
		}
		return nil
	})
	return result, err
}

// SetBootOrder reorders the VM's boot devices. Idempotent w.r.t. a no-op
// reorder.
func (a *Adapter) SetBootOrder(ctx context.Context, name string, devices []BootDevice) error {
	return withRetry(ctx, metrics.OpSetBootOrder, func(ctx context.Context) error {
		vm, err := a.findVM(ctx, name)
		if err != nil {
			return err
		}
		lock := a.vmLock(name)
		lock.Lock()
		defer lock.Unlock()

		order := make([]types.BaseVirtualMachineBootOptionsBootableDevice, 0, len(devices))
		for _, d := range devices {
			switch d {
			case BootDeviceCd:
				order = append(order, &types.VirtualMachineBootOptionsBootableCdromDevice{})
			case BootDeviceNetwork:
				order = append(order, &types.VirtualMachineBootOptionsBootableEthernetDevice{})
			default:
				order = append(order, &types.VirtualMachineBootOptionsBootableDiskDevice{})
			}
		}

		spec := types.VirtualMachineConfigSpec{
			BootOptions: &types.VirtualMachineBootOptions{
				BootOrder: order,
			},
		}
		task, err := vm.Reconfigure(ctx, spec)
		if err != nil {
			return err
		}
		return task.Wait(ctx)
	})
}

// findOrAddCdrom returns the VM's first CD-ROM device, creating an IDE
// CD-ROM (backed by the VM's first IDE controller, adding one if absent)
// when none exists yet.
func findOrAddCdrom(ctx context.Context, vm *object.VirtualMachine) (*types.VirtualCdrom, error) {
	devices, err := vm.Device(ctx)
	if err != nil {
		return nil, err
	}

	if cdroms := devices.SelectByType((*types.VirtualCdrom)(nil)); len(cdroms) > 0 {
		return cdroms[0].(*types.VirtualCdrom), nil
	}

	ide, err := devices.FindIDEController("")
	if err != nil {
		newIDE := &types.VirtualIDEController{}
		if err := vm.AddDevice(ctx, newIDE); err != nil {
			return nil, fmt.Errorf("adding IDE controller: %w", err)
		}
		devices, err = vm.Device(ctx)
		if err != nil {
			return nil, err
		}
		ide, err = devices.FindIDEController("")
		if err != nil {
			return nil, fmt.Errorf("locating IDE controller after add: %w", err)
		}
	}

	cdrom, err := devices.CreateCdrom(ide)
	if err != nil {
		return nil, err
	}
	if err := vm.AddDevice(ctx, cdrom); err != nil {
		return nil, fmt.Errorf("adding cdrom device: %w", err)
	}
	return cdrom, nil
}

// MountISO attaches datastore-relative iso_path as the VM's CD-ROM backing
// and connects it. Idempotent: mounting the same ISO twice is a no-op as
// observed through GetInventory/get state.
func (a *Adapter) MountISO(ctx context.Context, name, datastore, isoPath string) error {
	return withRetry(ctx, metrics.OpMountISO, func(ctx context.Context) error {
		vm, err := a.findVM(ctx, name)
		if err != nil {
			return err
		}
		lock := a.vmLock(name)
		lock.Lock()
		defer lock.Unlock()

		devices, err := vm.Device(ctx)
		if err != nil {
			return err
		}
		cdrom, err := findOrAddCdrom(ctx, vm)
		if err != nil {
			return err
		}

		isoFullPath := fmt.Sprintf("[%s] %s", datastore, isoPath)
		return vm.EditDevice(ctx, devices.InsertIso(cdrom, isoFullPath))
	})
}

// UnmountISO disconnects and detaches any ISO backing on the VM's CD-ROM.
// Idempotent: unmounting when nothing is mounted returns success.
func (a *Adapter) UnmountISO(ctx context.Context, name string) error {
	return withRetry(ctx, metrics.OpUnmountISO, func(ctx context.Context) error {
		vm, err := a.findVM(ctx, name)
		if err != nil {
			return err
		}
		lock := a.vmLock(name)
		lock.Lock()
		defer lock.Unlock()

		devices, err := vm.Device(ctx)
		if err != nil {
			return err
		}
		cdroms := devices.SelectByType((*types.VirtualCdrom)(nil))
		if len(cdroms) == 0 {
			return nil
		}
		cdrom := cdroms[0].(*types.VirtualCdrom)
		return vm.EditDevice(ctx, devices.InsertIso(cdrom, ""))
	})
}

// GetInventory returns a read-only snapshot of CPU, memory, NICs, disks,
// and guest OS, used to populate Redfish Processors/Memory/Storage/
// EthernetInterfaces and the IPMI DCMI/SDR surfaces.
func (a *Adapter) GetInventory(ctx context.Context, name string) (*state.InventorySnapshot, error) {
	var snap state.InventorySnapshot
	err := withRetry(ctx, metrics.OpGetInventory, func(ctx context.Context) error {
		vm, err := a.findVM(ctx, name)
		if err != nil {
			return err
		}

		var mvm mo.VirtualMachine
		if err := vm.Properties(ctx, vm.Reference(), []string{"config", "guest", "summary"}, &mvm); err != nil {
			return err
		}

		if mvm.Config != nil {
			snap.CPUCount = int(mvm.Config.Hardware.NumCPU)
			snap.MemoryMB = int(mvm.Config.Hardware.MemoryMB)
		}
		if mvm.Guest != nil {
			snap.GuestOS = mvm.Guest.GuestFullName
			for _, nic := range mvm.Guest.Net {
				snap.NICs = append(snap.NICs, state.NICInfo{
					Name:      nic.Network,
					MAC:       nic.MacAddress,
					Connected: nic.Connected,
				})
			}
		}

		devices, err := vm.Device(ctx)
		if err != nil {
			return err
		}
		for _, d := range devices.SelectByType((*types.VirtualDisk)(nil)) {
			disk := d.(*types.VirtualDisk)
			snap.Disks = append(snap.Disks, state.DiskInfo{
				Label:        devices.Name(disk),
				CapacityByte: disk.CapacityInBytes,
			})
		}

		snap.FetchedAt = time.Now()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &snap, nil
}
