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

import "net/http"

// buildRoutes assembles the declarative (method, path) -> handler table
// spec.md §4.4/§4.5 describe. Every listener is scoped to exactly one VM, so
// {vm} is baked into each pattern rather than carried as a route parameter.
func (s *Server) buildRoutes() []route {
	vm := s.vm.Name
	sys := "/redfish/v1/Systems/" + vm
	mgr := "/redfish/v1/Managers/" + vm + "-BMC"
	ch := "/redfish/v1/Chassis/" + vm + "-Chassis"

	r := []route{
		newRoute(http.MethodGet, "/redfish/v1/", s.handleServiceRoot),
		newRoute(http.MethodGet, "/redfish/v1", s.handleServiceRoot),

		newRoute(http.MethodGet, "/redfish/v1/Systems", s.handleSystemsCollection),
		newRoute(http.MethodGet, sys, s.handleSystem),
		newRoute(http.MethodPatch, sys, s.handleSystemPatch),
		newRoute(http.MethodPost, sys+"/Actions/ComputerSystem.Reset", s.handleSystemReset),

		newRoute(http.MethodGet, sys+"/Bios", s.handleBios),
		newRoute(http.MethodPatch, sys+"/Bios", s.handleBiosPatch),
		newRoute(http.MethodPost, sys+"/Bios/Actions/Bios.ResetBios", s.handleBiosReset),

		newRoute(http.MethodGet, sys+"/SecureBoot", s.handleSecureBoot),
		newRoute(http.MethodPatch, sys+"/SecureBoot", s.handleSecureBootPatch),
		newRoute(http.MethodPost, sys+"/SecureBoot/Actions/SecureBoot.ResetKeys", s.handleSecureBootResetKeys),

		newRoute(http.MethodGet, sys+"/Processors", s.handleProcessorsCollection),
		newRoute(http.MethodGet, sys+"/Processors/{id}", s.handleProcessor),
		newRoute(http.MethodGet, sys+"/Memory", s.handleMemoryCollection),
		newRoute(http.MethodGet, sys+"/Memory/{id}", s.handleMemoryModule),
		newRoute(http.MethodGet, sys+"/EthernetInterfaces", s.handleEthernetCollection),
		newRoute(http.MethodGet, sys+"/EthernetInterfaces/{id}", s.handleEthernetInterface),

		newRoute(http.MethodGet, sys+"/Storage", s.handleStorageCollection),
		newRoute(http.MethodGet, sys+"/Storage/1", s.handleStorage),
		newRoute(http.MethodGet, sys+"/Storage/1/Drives/{id}", s.handleDrive),
		newRoute(http.MethodGet, sys+"/Storage/1/Volumes", s.handleVolumesCollection),
		newRoute(http.MethodPost, sys+"/Storage/1/Volumes", s.handleVolumeCreate),
		newRoute(http.MethodDelete, sys+"/Storage/1/Volumes/{id}", s.handleVolumeDelete),

		newRoute(http.MethodGet, "/redfish/v1/Managers", s.handleManagersCollection),
		newRoute(http.MethodGet, mgr, s.handleManager),
		newRoute(http.MethodGet, mgr+"/VirtualMedia", s.handleVirtualMediaCollection),
		newRoute(http.MethodGet, mgr+"/VirtualMedia/{id}", s.handleVirtualMedia),
		newRoute(http.MethodPost, mgr+"/VirtualMedia/{id}/Actions/VirtualMedia.InsertMedia", s.handleInsertMedia),
		newRoute(http.MethodPost, mgr+"/VirtualMedia/{id}/Actions/VirtualMedia.EjectMedia", s.handleEjectMedia),
		newRoute(http.MethodGet, mgr+"/EthernetInterfaces", s.handleEthernetCollection),

		newRoute(http.MethodGet, "/redfish/v1/Chassis", s.handleChassisCollection),
		newRoute(http.MethodGet, ch, s.handleChassis),
		newRoute(http.MethodGet, ch+"/Power", s.handlePower),
		newRoute(http.MethodGet, ch+"/Thermal", s.handleThermal),
		newRoute(http.MethodGet, ch+"/NetworkAdapters", s.handleEthernetCollection),

		newRoute(http.MethodGet, sys+"/LogServices", s.handleLogServicesCollection),
		newRoute(http.MethodGet, sys+"/LogServices/{log}", s.handleLogService),
		newRoute(http.MethodGet, sys+"/LogServices/{log}/Entries", s.handleLogEntries),
		newRoute(http.MethodPost, sys+"/LogServices/{log}/Actions/LogService.ClearLog", s.handleClearLog),
		newRoute(http.MethodGet, mgr+"/LogServices", s.handleLogServicesCollection),
		newRoute(http.MethodGet, mgr+"/LogServices/{log}", s.handleLogService),
		newRoute(http.MethodGet, mgr+"/LogServices/{log}/Entries", s.handleLogEntries),

		newRoute(http.MethodGet, "/redfish/v1/UpdateService", s.handleUpdateService),
		newRoute(http.MethodGet, "/redfish/v1/UpdateService/FirmwareInventory", s.handleFirmwareInventoryCollection),
		newRoute(http.MethodGet, "/redfish/v1/UpdateService/FirmwareInventory/{id}", s.handleFirmwareInventoryItem),
		newRoute(http.MethodGet, "/redfish/v1/UpdateService/SoftwareInventory", s.handleFirmwareInventoryCollection),
		newRoute(http.MethodPost, "/redfish/v1/UpdateService/Actions/UpdateService.SimpleUpdate", s.handleSimpleUpdate),
		newRoute(http.MethodPost, "/redfish/v1/UpdateService/Actions/UpdateService.StartUpdate", s.handleSimpleUpdate),

		newRoute(http.MethodGet, "/redfish/v1/TaskService", s.handleTaskService),
		newRoute(http.MethodGet, "/redfish/v1/TaskService/Tasks", s.handleTasksCollection),
		newRoute(http.MethodGet, "/redfish/v1/TaskService/Tasks/{id}", s.handleTask),

		newRoute(http.MethodGet, "/redfish/v1/EventService", s.handleEventService),
		newRoute(http.MethodGet, "/redfish/v1/EventService/Subscriptions", s.handleSubscriptionsCollection),
		newRoute(http.MethodPost, "/redfish/v1/EventService/Subscriptions", s.handleSubscriptionCreate),
		newRoute(http.MethodDelete, "/redfish/v1/EventService/Subscriptions/{id}", s.handleSubscriptionDelete),

		newRoute(http.MethodGet, "/redfish/v1/SessionService", s.handleSessionService),
		newRoute(http.MethodGet, "/redfish/v1/SessionService/Sessions", s.handleSessionsCollection),
		newRoute(http.MethodPost, "/redfish/v1/SessionService/Sessions", s.handleSessionCreate),
		newRoute(http.MethodDelete, "/redfish/v1/SessionService/Sessions/{id}", s.handleSessionDelete),
	}
	return r
}
