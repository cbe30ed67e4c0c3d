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
	"fmt"
	"strings"
	"sync"

	"shoal/internal/state"
)

// refreshInventory fetches this VM's vSphere inventory when the cache is
// empty; a cached snapshot is reused whatever its age. An upstream failure
// is never surfaced to the caller: the cached snapshot (possibly nil,
// handled by fallbacks below) is used instead.
func (s *Server) refreshInventory(rc *requestContext) *inventoryView {
	inv := s.vm.Inventory()
	if inv == nil {
		if fresh, err := s.adapter.GetInventory(rc.r.Context(), s.vm.Name); err == nil {
			s.vm.SetInventory(fresh)
			inv = fresh
		}
	}
	return newInventoryView(inv)
}

// inventoryView normalizes a possibly-nil InventorySnapshot into stable
// defaults so every read handler below can proceed without nil checks.
type inventoryView struct {
	cpuCount int
	memoryMB int
	nicCount int
	macs     []string
	diskCount int
	diskBytes []int64
}

func newInventoryView(inv *state.InventorySnapshot) *inventoryView {
	v := &inventoryView{cpuCount: 2, memoryMB: 16384}
	if inv == nil {
		v.nicCount = 1
		v.macs = []string{"00:50:56:00:00:01"}
		v.diskCount = 1
		v.diskBytes = []int64{107374182400}
		return v
	}
	v.cpuCount = inv.CPUCount
	v.memoryMB = inv.MemoryMB
	for _, n := range inv.NICs {
		v.macs = append(v.macs, n.MAC)
	}
	v.nicCount = len(v.macs)
	if v.nicCount == 0 {
		v.nicCount = 1
		v.macs = []string{"00:50:56:00:00:01"}
	}
	for _, d := range inv.Disks {
		v.diskBytes = append(v.diskBytes, d.CapacityByte)
	}
	v.diskCount = len(v.diskBytes)
	if v.diskCount == 0 {
		v.diskCount = 1
		v.diskBytes = []int64{107374182400}
	}
	return v
}

func (s *Server) handleProcessorsCollection(rc *requestContext) {
	view := s.refreshInventory(rc)
	members := make([]string, view.cpuCount)
	for i := range members {
		members[i] = fmt.Sprintf("%s/Processors/CPU%d", rc.basePath(), i+1)
	}
	rc.writeJSON(200, newCollection(rc.basePath()+"/Processors", "Processors Collection", "Processor", members))
}

func (s *Server) handleProcessor(rc *requestContext) {
	id := rc.params["id"]
	rc.writeJSON(200, Processor{
		ODataContext:  "/redfish/v1/$metadata#Processor.Processor",
		ODataID:       rc.basePath() + "/Processors/" + id,
		ODataType:     "#Processor.v1_13_0.Processor",
		ID:            id,
		Name:          id,
		ProcessorType: "CPU",
		Status:        okStatus(),
	})
}

func (s *Server) handleMemoryCollection(rc *requestContext) {
	rc.writeJSON(200, newCollection(rc.basePath()+"/Memory", "Memory Collection", "Memory", []string{rc.basePath() + "/Memory/DIMM1"}))
}

func (s *Server) handleMemoryModule(rc *requestContext) {
	view := s.refreshInventory(rc)
	id := rc.params["id"]
	rc.writeJSON(200, MemoryModule{
		ODataContext: "/redfish/v1/$metadata#Memory.Memory",
		ODataID:      rc.basePath() + "/Memory/" + id,
		ODataType:    "#Memory.v1_11_0.Memory",
		ID:           id,
		Name:         id,
		CapacityMiB:  view.memoryMB,
		Status:       okStatus(),
	})
}

func (s *Server) handleEthernetCollection(rc *requestContext) {
	view := s.refreshInventory(rc)
	base := ethernetBase(rc)
	members := make([]string, view.nicCount)
	for i := range members {
		members[i] = fmt.Sprintf("%s/NIC%d", base, i+1)
	}
	rc.writeJSON(200, newCollection(base, "Ethernet Interface Collection", "EthernetInterface", members))
}

func (s *Server) handleEthernetInterface(rc *requestContext) {
	view := s.refreshInventory(rc)
	id := rc.params["id"]
	mac := "00:50:56:00:00:01"
	if len(view.macs) > 0 {
		mac = view.macs[0]
	}
	base := ethernetBase(rc)
	rc.writeJSON(200, EthernetInterface{
		ODataContext: "/redfish/v1/$metadata#EthernetInterface.EthernetInterface",
		ODataID:      base + "/" + id,
		ODataType:    "#EthernetInterface.v1_9_0.EthernetInterface",
		ID:           id,
		Name:         id,
		MACAddress:   mac,
		Status:       okStatus(),
		LinkStatus:   "LinkUp",
	})
}

// ethernetBase maps the request path prefix onto the right parent container:
// Systems, Managers, and Chassis(NetworkAdapters) all share this handler.
func ethernetBase(rc *requestContext) string {
	switch {
	case strings.HasPrefix(rc.r.URL.Path, rc.managerPath()):
		return rc.managerPath() + "/EthernetInterfaces"
	case strings.HasPrefix(rc.r.URL.Path, rc.chassisPath()):
		return rc.chassisPath() + "/NetworkAdapters"
	default:
		return rc.basePath() + "/EthernetInterfaces"
	}
}

func (s *Server) handleStorageCollection(rc *requestContext) {
	rc.writeJSON(200, newCollection(rc.basePath()+"/Storage", "Storage Collection", "Storage", []string{rc.basePath() + "/Storage/1"}))
}

func (s *Server) handleStorage(rc *requestContext) {
	view := s.refreshInventory(rc)
	drives := make([]ODataIDRef, view.diskCount)
	for i := range drives {
		drives[i] = ODataIDRef{ODataID: fmt.Sprintf("%s/Storage/1/Drives/Disk%d", rc.basePath(), i+1)}
	}
	rc.writeJSON(200, StorageResource{
		ODataContext: "/redfish/v1/$metadata#Storage.Storage",
		ODataID:      rc.basePath() + "/Storage/1",
		ODataType:    "#Storage.v1_14_1.Storage",
		ID:           "1",
		Name:         "Storage Controller",
		Status:       okStatus(),
		Drives:       drives,
		Volumes:      ODataIDRef{ODataID: rc.basePath() + "/Storage/1/Volumes"},
	})
}

func (s *Server) handleDrive(rc *requestContext) {
	view := s.refreshInventory(rc)
	id := rc.params["id"]
	var bytes int64 = 107374182400
	if len(view.diskBytes) > 0 {
		bytes = view.diskBytes[0]
	}
	rc.writeJSON(200, Drive{
		ODataContext:  "/redfish/v1/$metadata#Drive.Drive",
		ODataID:       rc.basePath() + "/Storage/1/Drives/" + id,
		ODataType:     "#Drive.v1_17_0.Drive",
		ID:            id,
		Name:          id,
		CapacityBytes: bytes,
		Status:        okStatus(),
		MediaType:     "SSD",
	})
}

var volumeStore = newVolumeRegistry()

func (s *Server) handleVolumesCollection(rc *requestContext) {
	members := volumeStore.list(s.vm.Name, rc.basePath())
	rc.writeJSON(200, newCollection(rc.basePath()+"/Storage/1/Volumes", "Volumes Collection", "Volume", members))
}

func (s *Server) handleVolumeCreate(rc *requestContext) {
	var req VolumeCreateRequest
	if err := rc.decodeBody(&req); err != nil {
		rc.writeError(400, "MalformedJSON", "request body is not valid JSON")
		return
	}
	if req.Name == "" {
		req.Name = "Volume1"
	}

	volID := volumeStore.reserve(s.vm.Name, req.Name)
	task := s.gs.Tasks.New("Create Volume "+req.Name, rc.basePath()+"/Storage/1/Volumes", func() error {
		volumeStore.commit(s.vm.Name, volID)
		return nil
	})

	rc.w.Header().Set("Location", task.ResultLocation)
	rc.writeJSON(202, TaskResource{
		ODataContext: "/redfish/v1/$metadata#Task.Task",
		ODataID:      task.ResultLocation,
		ODataType:    "#Task.v1_7_1.Task",
		ID:           task.ID,
		Name:         task.Name,
		TaskState:    string(task.State()),
		TaskStatus:   string(task.Status()),
	})
}

func (s *Server) handleVolumeDelete(rc *requestContext) {
	id := rc.params["id"]
	volumeStore.remove(s.vm.Name, id)
	rc.w.WriteHeader(204)
}

// volumeRegistry tracks synthetic RAID volumes created through
// Storage/1/Volumes, keyed per VM. A volume exists in Members only once its
// creation task commits, matching how a real controller would not report a
// volume mid-build.
type volumeRegistry struct {
	mu      sync.Mutex
	byVM    map[string]map[string]*volumeEntry
	counter int
}

type volumeEntry struct {
	id        string
	name      string
	committed bool
}

func newVolumeRegistry() *volumeRegistry {
	return &volumeRegistry{byVM: make(map[string]map[string]*volumeEntry)}
}

func (r *volumeRegistry) reserve(vmName, name string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counter++
	id := fmt.Sprintf("Vol%d", r.counter)
	if r.byVM[vmName] == nil {
		r.byVM[vmName] = make(map[string]*volumeEntry)
	}
	r.byVM[vmName][id] = &volumeEntry{id: id, name: name}
	return id
}

func (r *volumeRegistry) commit(vmName, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.byVM[vmName][id]; ok {
		v.committed = true
	}
}

func (r *volumeRegistry) remove(vmName, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byVM[vmName], id)
}

func (r *volumeRegistry) list(vmName, basePath string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, v := range r.byVM[vmName] {
		if v.committed {
			out = append(out, basePath+"/Storage/1/Volumes/"+v.id)
		}
	}
	return out
}
