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
	"time"

	"github.com/google/uuid"
)

// logServiceBase resolves whether this request is under Systems or Managers,
// mirroring ethernetBase's shared-handler approach.
func logServiceBase(rc *requestContext) string {
	if strings.HasPrefix(rc.r.URL.Path, rc.managerPath()) {
		return rc.managerPath() + "/LogServices"
	}
	return rc.basePath() + "/LogServices"
}

func (s *Server) handleLogServicesCollection(rc *requestContext) {
	base := logServiceBase(rc)
	rc.writeJSON(200, newCollection(base, "Log Service Collection", "LogService", []string{base + "/SEL"}))
}

func (s *Server) handleLogService(rc *requestContext) {
	base := logServiceBase(rc)
	id := rc.params["log"]
	rc.writeJSON(200, LogService{
		ODataContext: "/redfish/v1/$metadata#LogService.LogService",
		ODataID:      base + "/" + id,
		ODataType:    "#LogService.v1_6_0.LogService",
		ID:           id,
		Name:         "System Event Log",
		Entries:      ODataIDRef{ODataID: base + "/" + id + "/Entries"},
		Actions: LogServiceActions{
			ClearLog: ActionTarget{Target: base + "/" + id + "/Actions/LogService.ClearLog"},
		},
	})
}

func (s *Server) handleLogEntries(rc *requestContext) {
	base := logServiceBase(rc)
	id := rc.params["log"]
	events := s.gs.Events(s.vm.Name)

	members := make([]string, len(events))
	for i, e := range events {
		members[i] = fmt.Sprintf("%s/%s/Entries/%d", base, id, e.RecordID)
	}
	rc.writeJSON(200, newCollection(base+"/"+id+"/Entries", "Log Entry Collection", "LogEntry", members))
}

func (s *Server) handleClearLog(rc *requestContext) {
	s.gs.ClearEvents(s.vm.Name)
	rc.w.WriteHeader(204)
}

func (s *Server) handleUpdateService(rc *requestContext) {
	rc.writeJSON(200, UpdateService{
		ODataContext:      "/redfish/v1/$metadata#UpdateService.UpdateService",
		ODataID:           "/redfish/v1/UpdateService",
		ODataType:         "#UpdateService.v1_11_1.UpdateService",
		ID:                "UpdateService",
		Name:              "Update Service",
		ServiceEnabled:    true,
		HTTPPushURI:       "/redfish/v1/UpdateService/update",
		FirmwareInventory: ODataIDRef{ODataID: "/redfish/v1/UpdateService/FirmwareInventory"},
		SoftwareInventory: ODataIDRef{ODataID: "/redfish/v1/UpdateService/SoftwareInventory"},
		Actions: UpdateServiceActions{
			SimpleUpdate: ActionTarget{Target: "/redfish/v1/UpdateService/Actions/UpdateService.SimpleUpdate"},
			StartUpdate:  ActionTarget{Target: "/redfish/v1/UpdateService/Actions/UpdateService.StartUpdate"},
		},
	})
}

var firmwareComponents = []struct {
	id, name, version string
}{
	{"BIOS", "System BIOS", "2.4.1"},
	{"BMC", "Baseboard Management Controller", "1.0.0"},
	{"NIC.Slot.1", "Network Interface Card", "20.5.13"},
	{"Storage", "Storage Controller", "25.5.9.0001"},
	{"CPU", "Processor Microcode", "0x0000096"},
	{"PSU", "Power Supply Firmware", "03.01"},
	{"PCIe", "PCIe Riser Firmware", "1.2.0"},
}

func (s *Server) handleFirmwareInventoryCollection(rc *requestContext) {
	members := make([]string, len(firmwareComponents))
	for i, c := range firmwareComponents {
		members[i] = "/redfish/v1/UpdateService/FirmwareInventory/" + c.id
	}
	rc.writeJSON(200, newCollection("/redfish/v1/UpdateService/FirmwareInventory", "Firmware Inventory Collection", "SoftwareInventory", members))
}

func (s *Server) handleFirmwareInventoryItem(rc *requestContext) {
	id := rc.params["id"]
	for _, c := range firmwareComponents {
		if c.id == id {
			rc.writeJSON(200, SoftwareInventoryItem{
				ODataContext: "/redfish/v1/$metadata#SoftwareInventory.SoftwareInventory",
				ODataID:      "/redfish/v1/UpdateService/FirmwareInventory/" + id,
				ODataType:    "#SoftwareInventory.v1_10_0.SoftwareInventory",
				ID:           id,
				Name:         c.name,
				Version:      c.version,
				Updateable:   true,
				Status:       okStatus(),
			})
			return
		}
	}
	rc.writeError(404, "ResourceNotFound", "firmware component not found")
}

func (s *Server) handleSimpleUpdate(rc *requestContext) {
	var req SimpleUpdateRequest
	if err := rc.decodeBody(&req); err != nil {
		rc.writeError(400, "MalformedJSON", "request body is not valid JSON")
		return
	}
	task := s.gs.Tasks.New("Firmware Update", "/redfish/v1/UpdateService", func() error { return nil })
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

func (s *Server) handleTaskService(rc *requestContext) {
	rc.writeJSON(200, TaskServiceResource{
		ODataContext:                    "/redfish/v1/$metadata#TaskService.TaskService",
		ODataID:                         "/redfish/v1/TaskService",
		ODataType:                       "#TaskService.v1_2_0.TaskService",
		ID:                              "TaskService",
		Name:                            "Task Service",
		DateTime:                        time.Now().UTC().Format(time.RFC3339),
		CompletedTaskOverWritePolicy:    "Oldest",
		LifeCycleEventOnTaskStateChange: true,
		ServiceEnabled:                  true,
		Status:                          okStatus(),
		Tasks:                           ODataIDRef{ODataID: "/redfish/v1/TaskService/Tasks"},
	})
}

func (s *Server) handleTasksCollection(rc *requestContext) {
	tasks := s.gs.Tasks.All()
	members := make([]string, len(tasks))
	for i, t := range tasks {
		members[i] = t.ResultLocation
	}
	rc.writeJSON(200, newCollection("/redfish/v1/TaskService/Tasks", "Tasks Collection", "Task", members))
}

func (s *Server) handleTask(rc *requestContext) {
	id := rc.params["id"]
	t, ok := s.gs.Tasks.Get(id)
	if !ok {
		rc.writeError(404, "ResourceNotFound", "task not found")
		return
	}
	start, end := t.Times()
	res := TaskResource{
		ODataContext:    "/redfish/v1/$metadata#Task.Task",
		ODataID:         t.ResultLocation,
		ODataType:       "#Task.v1_7_1.Task",
		ID:              t.ID,
		Name:            t.Name,
		TaskState:       string(t.State()),
		TaskStatus:      string(t.Status()),
		PercentComplete: t.PercentComplete(),
		StartTime:       start.UTC().Format(time.RFC3339),
	}
	if !end.IsZero() {
		res.EndTime = end.UTC().Format(time.RFC3339)
	}
	for _, m := range t.Messages() {
		res.Messages = append(res.Messages, TaskMessage{
			MessageID: "Base.1.0." + string(m.Severity),
			Message:   m.Text,
			Severity:  string(m.Severity),
		})
	}
	rc.writeJSON(200, res)
}

func (s *Server) handleEventService(rc *requestContext) {
	rc.writeJSON(200, EventServiceResource{
		ODataContext:                 "/redfish/v1/$metadata#EventService.EventService",
		ODataID:                      "/redfish/v1/EventService",
		ODataType:                    "#EventService.v1_9_0.EventService",
		ID:                           "EventService",
		Name:                         "Event Service",
		ServiceEnabled:               true,
		DeliveryRetryAttempts:        3,
		DeliveryRetryIntervalSeconds: 30,
		Subscriptions:                ODataIDRef{ODataID: "/redfish/v1/EventService/Subscriptions"},
	})
}

var subscriptionStore = newSubscriptionRegistry()

func (s *Server) handleSubscriptionsCollection(rc *requestContext) {
	members := subscriptionStore.list(s.vm.Name)
	rc.writeJSON(200, newCollection("/redfish/v1/EventService/Subscriptions", "Event Subscription Collection", "EventDestination", members))
}

func (s *Server) handleSubscriptionCreate(rc *requestContext) {
	var req SubscriptionCreateRequest
	if err := rc.decodeBody(&req); err != nil {
		rc.writeError(400, "MalformedJSON", "request body is not valid JSON")
		return
	}
	if req.Destination == "" {
		rc.writeError(400, "ActionParameterMissing", "Destination is required")
		return
	}
	sub := subscriptionStore.create(s.vm.Name, req.Destination, req.EventTypes)
	rc.w.Header().Set("Location", sub.path())
	rc.writeJSON(201, sub.toResource())
}

func (s *Server) handleSubscriptionDelete(rc *requestContext) {
	id := rc.params["id"]
	if !subscriptionStore.delete(s.vm.Name, id) {
		rc.writeError(404, "ResourceNotFound", "subscription not found")
		return
	}
	rc.w.WriteHeader(204)
}

// subscriptionRegistry is an in-memory EventService subscriber table, keyed
// per VM so a subscription created through one VM's Redfish port is neither
// visible nor deletable through another's, matching volumeRegistry's and
// biosAttrs's per-VM isolation. Nothing actually delivers events to these
// destinations yet: no transport in this bridge's scope originates Redfish
// eventing traffic, so this registry only satisfies the create/list/delete
// contract orchestrators probe for before deciding whether to poll instead.
type subscriptionRegistry struct {
	mu   sync.Mutex
	byVM map[string]map[string]*eventSubscriptionEntry
}

type eventSubscriptionEntry struct {
	id          string
	destination string
	eventTypes  []string
}

func newSubscriptionRegistry() *subscriptionRegistry {
	return &subscriptionRegistry{byVM: make(map[string]map[string]*eventSubscriptionEntry)}
}

func (r *subscriptionRegistry) create(vmName, destination string, eventTypes []string) *eventSubscriptionEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := &eventSubscriptionEntry{id: uuid.NewString(), destination: destination, eventTypes: eventTypes}
	if r.byVM[vmName] == nil {
		r.byVM[vmName] = make(map[string]*eventSubscriptionEntry)
	}
	r.byVM[vmName][e.id] = e
	return e
}

func (r *subscriptionRegistry) delete(vmName, id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byVM[vmName][id]; !ok {
		return false
	}
	delete(r.byVM[vmName], id)
	return true
}

func (r *subscriptionRegistry) list(vmName string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.byVM[vmName]))
	for _, e := range r.byVM[vmName] {
		out = append(out, e.path())
	}
	return out
}

func (e *eventSubscriptionEntry) path() string {
	return "/redfish/v1/EventService/Subscriptions/" + e.id
}

func (e *eventSubscriptionEntry) toResource() EventSubscription {
	return EventSubscription{
		ODataContext: "/redfish/v1/$metadata#EventDestination.EventDestination",
		ODataID:      e.path(),
		ODataType:    "#EventDestination.v1_14_1.EventDestination",
		ID:           e.id,
		Name:         "Event Subscription",
		Destination:  e.destination,
		EventTypes:   e.eventTypes,
		Protocol:     "Redfish",
	}
}
