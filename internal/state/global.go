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
	"fmt"
	"sync"
	"time"
)

const maxEventsPerVM = 512

// GlobalState is the single aggregate the bridge's listeners share by
// reference. It owns the managed VM table, the task registry, and the
// per-VM event stores. IPMI session state is owned by the IPMI engine
// itself (see internal/ipmi), since it carries protocol-specific key
// material that has no business living in a generic aggregate; the engine
// is handed this GlobalState by reference just like the Redfish server.
type GlobalState struct {
	vmsMu sync.RWMutex
	vms   map[string]*ManagedVM

	events *eventStore

	Tasks *TaskEngine
}

// NewGlobalState builds an empty aggregate ready to have VMs registered.
func NewGlobalState() *GlobalState {
	gs := &GlobalState{
		vms:    make(map[string]*ManagedVM),
		events: newEventStore(),
	}
	gs.Tasks = NewTaskEngine()
	return gs
}

// RegisterVM adds a VM to the read-mostly table. Called only during
// startup; the map is not mutated afterwards (spec.md §5).
func (g *GlobalState) RegisterVM(vm *ManagedVM) {
	g.vmsMu.Lock()
	defer g.vmsMu.Unlock()
	g.vms[vm.Name] = vm
	g.events.ensure(vm.Name)
}

// VM looks up a managed VM by name.
func (g *GlobalState) VM(name string) (*ManagedVM, bool) {
	g.vmsMu.RLock()
	defer g.vmsMu.RUnlock()
	vm, ok := g.vms[name]
	return vm, ok
}

// VMByIPMIPort resolves the VM bound to a given UDP port.
func (g *GlobalState) VMByIPMIPort(port int) (*ManagedVM, bool) {
	g.vmsMu.RLock()
	defer g.vmsMu.RUnlock()
	for _, vm := range g.vms {
		if vm.IPMIPort == port {
			return vm, true
		}
	}
	return nil, false
}

// AllVMs returns a snapshot slice of every registered VM.
func (g *GlobalState) AllVMs() []*ManagedVM {
	g.vmsMu.RLock()
	defer g.vmsMu.RUnlock()
	out := make([]*ManagedVM, 0, len(g.vms))
	for _, vm := range g.vms {
		out = append(out, vm)
	}
	return out
}

// AppendEvent records one SEL/LogService entry for vmName, evicting the
// oldest entry once the per-VM bound is exceeded.
func (g *GlobalState) AppendEvent(vmName, severity, message, source string) EventLogEntry {
	return g.events.append(vmName, severity, message, source)
}

// Events returns the ordered event log for vmName.
func (g *GlobalState) Events(vmName string) []EventLogEntry {
	return g.events.list(vmName)
}

// ClearEvents empties vmName's event log (LogService.ClearLog).
func (g *GlobalState) ClearEvents(vmName string) {
	g.events.clear(vmName)
}

// eventStore is a bounded, FIFO-evicting ring per VM.
type eventStore struct {
	mu      sync.Mutex
	perVM   map[string][]EventLogEntry
	nextRec map[string]uint16
}

func newEventStore() *eventStore {
	return &eventStore{
		perVM:   make(map[string][]EventLogEntry),
		nextRec: make(map[string]uint16),
	}
}

func (s *eventStore) ensure(vmName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.perVM[vmName]; !ok {
		s.perVM[vmName] = nil
		s.nextRec[vmName] = 1
	}
}

func (s *eventStore) append(vmName, severity, message, source string) EventLogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.nextRec[vmName]
	if rec == 0 {
		rec = 1
	}
	entry := EventLogEntry{
		RecordID: rec,
		Severity: severity,
		Message:  message,
		Source:   source,
	}
	entry.Timestamp = time.Now()

	list := append(s.perVM[vmName], entry)
	if len(list) > maxEventsPerVM {
		list = list[len(list)-maxEventsPerVM:]
	}
	s.perVM[vmName] = list
	s.nextRec[vmName] = rec + 1
	return entry
}

func (s *eventStore) list(vmName string) []EventLogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]EventLogEntry, len(s.perVM[vmName]))
	copy(out, s.perVM[vmName])
	return out
}

func (s *eventStore) clear(vmName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.perVM[vmName] = nil
}

// vmNotFound is a small helper error used by callers resolving a VM by name.
func vmNotFound(name string) error {
	return fmt.Errorf("managed VM %q not found", name)
}
