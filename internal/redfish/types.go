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

// Package redfish serves the DMTF Redfish resource tree spec.md §4.4/§4.5
// describe: one TLS listener per managed VM, a declarative route table, and
// handlers that read and mutate the shared state.GlobalState/ManagedVM and
// drive vSphere through internal/vsphere.Adapter.
package redfish

// ODataIDRef is a bare @odata.id link, used wherever Redfish models a
// relation by identifier rather than embedding the target resource.
type ODataIDRef struct {
	ODataID string `json:"@odata.id"`
}

// Status is the common Redfish Status block. Health is always OK in this
// bridge: spec.md §4.5's no-failure-surface contract forbids anything else
// reaching an orchestrator's read path.
type Status struct {
	State  string `json:"State"`
	Health string `json:"Health"`
}

func okStatus() Status { return Status{State: "Enabled", Health: "OK"} }

// Collection is the generic Members/@odata.count envelope every Redfish
// collection resource shares.
type Collection struct {
	ODataContext string       `json:"@odata.context"`
	ODataID      string       `json:"@odata.id"`
	ODataType    string       `json:"@odata.type"`
	Name         string       `json:"Name"`
	Members      []ODataIDRef `json:"Members"`
	MembersCount int          `json:"Members@odata.count"`
}

func newCollection(id, name, odataType string, members []string) Collection {
	refs := make([]ODataIDRef, len(members))
	for i, m := range members {
		refs[i] = ODataIDRef{ODataID: m}
	}
	return Collection{
		ODataContext: "/redfish/v1/$metadata#" + odataType + ".Collection",
		ODataID:      id,
		ODataType:    "#" + odataType + ".Collection",
		Name:         name,
		Members:      refs,
		MembersCount: len(refs),
	}
}

// ErrorResponse is the Redfish extended error payload returned on 4xx/5xx.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code                string         `json:"code"`
	Message             string         `json:"message"`
	ExtendedInfo        []ExtendedInfo `json:"@Message.ExtendedInfo,omitempty"`
}

type ExtendedInfo struct {
	MessageID string `json:"MessageId"`
	Message   string `json:"Message"`
	Severity  string `json:"Severity"`
}

func newError(code, message string) ErrorResponse {
	return ErrorResponse{Error: ErrorDetail{
		Code:    code,
		Message: message,
		ExtendedInfo: []ExtendedInfo{{
			MessageID: "Base.1.0." + code,
			Message:   message,
			Severity:  "Critical",
		}},
	}}
}

// ServiceRoot is /redfish/v1/.
type ServiceRoot struct {
	ODataContext   string           `json:"@odata.context"`
	ODataID        string           `json:"@odata.id"`
	ODataType      string           `json:"@odata.type"`
	ID             string           `json:"Id"`
	Name           string           `json:"Name"`
	RedfishVersion string           `json:"RedfishVersion"`
	UUID           string           `json:"UUID"`
	Systems        ODataIDRef       `json:"Systems"`
	Chassis        ODataIDRef       `json:"Chassis"`
	Managers       ODataIDRef       `json:"Managers"`
	SessionService ODataIDRef       `json:"SessionService"`
	UpdateService  ODataIDRef       `json:"UpdateService"`
	TaskService    ODataIDRef       `json:"TaskService"`
	EventService   ODataIDRef       `json:"EventService"`
	Links          ServiceRootLinks `json:"Links"`
}

type ServiceRootLinks struct {
	Sessions ODataIDRef `json:"Sessions"`
}

// ComputerSystem is /redfish/v1/Systems/{vm}.
type ComputerSystem struct {
	ODataContext      string                 `json:"@odata.context"`
	ODataID           string                 `json:"@odata.id"`
	ODataType         string                 `json:"@odata.type"`
	ID                string                 `json:"Id"`
	Name              string                 `json:"Name"`
	SystemType        string                 `json:"SystemType"`
	AssetTag          string                 `json:"AssetTag"`
	PowerState        string                 `json:"PowerState"`
	Status            Status                 `json:"Status"`
	Boot              Boot                   `json:"Boot"`
	ProcessorSummary  ProcessorSummary       `json:"ProcessorSummary"`
	MemorySummary     MemorySummary          `json:"MemorySummary"`
	Actions           ComputerSystemActions  `json:"Actions"`
	Links             ComputerSystemLinks    `json:"Links"`
}

type Boot struct {
	BootSourceOverrideTarget           string   `json:"BootSourceOverrideTarget"`
	BootSourceOverrideEnabled          string   `json:"BootSourceOverrideEnabled"`
	BootSourceOverrideMode             string   `json:"BootSourceOverrideMode"`
	BootSourceOverrideTarget_AllowableValues []string `json:"BootSourceOverrideTarget@Redfish.AllowableValues"`
}

type ProcessorSummary struct {
	Count  int    `json:"Count"`
	Model  string `json:"Model"`
	Status Status `json:"Status"`
}

type MemorySummary struct {
	TotalSystemMemoryGiB float64 `json:"TotalSystemMemoryGiB"`
	Status               Status  `json:"Status"`
}

type ComputerSystemActions struct {
	Reset ActionTarget `json:"#ComputerSystem.Reset"`
}

type ActionTarget struct {
	Target                   string   `json:"target"`
	ResetTypeAllowableValues []string `json:"ResetType@Redfish.AllowableValues,omitempty"`
}

type ComputerSystemLinks struct {
	Chassis    []ODataIDRef `json:"Chassis"`
	ManagedBy  []ODataIDRef `json:"ManagedBy"`
}

// ResetRequest is the body of POST .../Actions/ComputerSystem.Reset.
type ResetRequest struct {
	ResetType string `json:"ResetType"`
}

// BootPatchRequest is the body of PATCH Systems/{vm} for Boot overrides.
type BootPatchRequest struct {
	Boot *struct {
		BootSourceOverrideTarget  string `json:"BootSourceOverrideTarget,omitempty"`
		BootSourceOverrideEnabled string `json:"BootSourceOverrideEnabled,omitempty"`
		BootSourceOverrideMode    string `json:"BootSourceOverrideMode,omitempty"`
	} `json:"Boot,omitempty"`
	AssetTag *string `json:"AssetTag,omitempty"`
}

// Manager is /redfish/v1/Managers/{vm}-BMC.
type Manager struct {
	ODataContext    string        `json:"@odata.context"`
	ODataID         string        `json:"@odata.id"`
	ODataType       string        `json:"@odata.type"`
	ID              string        `json:"Id"`
	Name            string        `json:"Name"`
	ManagerType     string        `json:"ManagerType"`
	FirmwareVersion string        `json:"FirmwareVersion"`
	Status          Status        `json:"Status"`
	Links           ManagerLinks  `json:"Links"`
	VirtualMedia    ODataIDRef    `json:"VirtualMedia"`
	LogServices     ODataIDRef    `json:"LogServices"`
	EthernetInterfaces ODataIDRef `json:"EthernetInterfaces"`
}

type ManagerLinks struct {
	ManagerForServers []ODataIDRef `json:"ManagerForServers"`
}

// VirtualMedia is /redfish/v1/Managers/{vm}-BMC/VirtualMedia/{CD|Floppy}.
type VirtualMedia struct {
	ODataContext   string               `json:"@odata.context"`
	ODataID        string               `json:"@odata.id"`
	ODataType      string               `json:"@odata.type"`
	ID             string               `json:"Id"`
	Name           string               `json:"Name"`
	MediaTypes     []string             `json:"MediaTypes"`
	Image          string               `json:"Image"`
	Inserted       bool                 `json:"Inserted"`
	WriteProtected bool                 `json:"WriteProtected"`
	ConnectedVia   string               `json:"ConnectedVia"`
	Actions        VirtualMediaActions  `json:"Actions"`
}

type VirtualMediaActions struct {
	InsertMedia ActionTarget `json:"#VirtualMedia.InsertMedia"`
	EjectMedia  ActionTarget `json:"#VirtualMedia.EjectMedia"`
}

type InsertMediaRequest struct {
	Image          string `json:"Image"`
	Inserted       *bool  `json:"Inserted,omitempty"`
	WriteProtected *bool  `json:"WriteProtected,omitempty"`
}

// Chassis is /redfish/v1/Chassis/{vm}-Chassis.
type Chassis struct {
	ODataContext string       `json:"@odata.context"`
	ODataID      string       `json:"@odata.id"`
	ODataType    string       `json:"@odata.type"`
	ID           string       `json:"Id"`
	Name         string       `json:"Name"`
	ChassisType  string       `json:"ChassisType"`
	Status       Status       `json:"Status"`
	Power        ODataIDRef   `json:"Power"`
	Thermal      ODataIDRef   `json:"Thermal"`
	NetworkAdapters ODataIDRef `json:"NetworkAdapters"`
	Links        ChassisLinks `json:"Links"`
}

type ChassisLinks struct {
	ComputerSystems []ODataIDRef `json:"ComputerSystems"`
	ManagedBy       []ODataIDRef `json:"ManagedBy"`
}

// Power is the Chassis Power sub-resource with synthetic telemetry.
type Power struct {
	ODataContext  string         `json:"@odata.context"`
	ODataID       string         `json:"@odata.id"`
	ODataType     string         `json:"@odata.type"`
	ID            string         `json:"Id"`
	Name          string         `json:"Name"`
	PowerControl  []PowerControl `json:"PowerControl"`
	Voltages      []Voltage      `json:"Voltages"`
	PowerSupplies []PowerSupply  `json:"PowerSupplies"`
}

type PowerControl struct {
	Name                string  `json:"Name"`
	PowerConsumedWatts  float64 `json:"PowerConsumedWatts"`
	PowerCapacityWatts  float64 `json:"PowerCapacityWatts"`
	Status              Status  `json:"Status"`
}

type Voltage struct {
	Name               string  `json:"Name"`
	ReadingVolts       float64 `json:"ReadingVolts"`
	Status             Status  `json:"Status"`
}

type PowerSupply struct {
	Name         string  `json:"Name"`
	PowerOutputWatts float64 `json:"PowerOutputWatts"`
	Status       Status  `json:"Status"`
}

// Thermal is the Chassis Thermal sub-resource.
type Thermal struct {
	ODataContext string        `json:"@odata.context"`
	ODataID      string        `json:"@odata.id"`
	ODataType    string        `json:"@odata.type"`
	ID           string        `json:"Id"`
	Name         string        `json:"Name"`
	Temperatures []Temperature `json:"Temperatures"`
	Fans         []Fan         `json:"Fans"`
}

type Temperature struct {
	Name          string  `json:"Name"`
	ReadingCelsius float64 `json:"ReadingCelsius"`
	Status        Status  `json:"Status"`
}

type Fan struct {
	Name         string  `json:"Name"`
	ReadingRPM   float64 `json:"Reading"`
	Status       Status  `json:"Status"`
}

// Bios is /redfish/v1/Systems/{vm}/Bios.
type Bios struct {
	ODataContext string                 `json:"@odata.context"`
	ODataID      string                 `json:"@odata.id"`
	ODataType    string                 `json:"@odata.type"`
	ID           string                 `json:"Id"`
	Name         string                 `json:"Name"`
	Attributes   map[string]interface{} `json:"Attributes"`
	Actions      BiosActions            `json:"Actions"`
}

type BiosActions struct {
	ResetBios ActionTarget `json:"#Bios.ResetBios"`
}

// SecureBoot is /redfish/v1/Systems/{vm}/SecureBoot.
type SecureBoot struct {
	ODataContext      string             `json:"@odata.context"`
	ODataID           string             `json:"@odata.id"`
	ODataType         string             `json:"@odata.type"`
	ID                string             `json:"Id"`
	Name              string             `json:"Name"`
	SecureBootEnable  bool               `json:"SecureBootEnable"`
	SecureBootCurrentBoot string         `json:"SecureBootCurrentBoot"`
	Actions           SecureBootActions  `json:"Actions"`
}

type SecureBootActions struct {
	ResetKeys ActionTarget `json:"#SecureBoot.ResetKeys"`
}

// EthernetInterfaceCollection member and NIC resources read from inventory.
type EthernetInterface struct {
	ODataContext string `json:"@odata.context"`
	ODataID      string `json:"@odata.id"`
	ODataType    string `json:"@odata.type"`
	ID           string `json:"Id"`
	Name         string `json:"Name"`
	MACAddress   string `json:"MACAddress"`
	Status       Status `json:"Status"`
	LinkStatus   string `json:"LinkStatus"`
}

// Drive is one Storage/Drives member read from inventory.
type Drive struct {
	ODataContext   string  `json:"@odata.context"`
	ODataID        string  `json:"@odata.id"`
	ODataType      string  `json:"@odata.type"`
	ID             string  `json:"Id"`
	Name           string  `json:"Name"`
	CapacityBytes  int64   `json:"CapacityBytes"`
	Status         Status  `json:"Status"`
	MediaType      string  `json:"MediaType"`
}

// StorageResource is /redfish/v1/Systems/{vm}/Storage/1.
type StorageResource struct {
	ODataContext string       `json:"@odata.context"`
	ODataID      string       `json:"@odata.id"`
	ODataType    string       `json:"@odata.type"`
	ID           string       `json:"Id"`
	Name         string       `json:"Name"`
	Status       Status       `json:"Status"`
	Drives       []ODataIDRef `json:"Drives"`
	Volumes      ODataIDRef   `json:"Volumes"`
}

// VolumeCreateRequest is the body of POST .../Storage/1/Volumes.
type VolumeCreateRequest struct {
	Name        string `json:"Name"`
	RAIDType    string `json:"RAIDType"`
	CapacityBytes int64 `json:"CapacityBytes"`
}

// Processor is one read-only Processors/{id} member.
type Processor struct {
	ODataContext      string `json:"@odata.context"`
	ODataID           string `json:"@odata.id"`
	ODataType         string `json:"@odata.type"`
	ID                string `json:"Id"`
	Name              string `json:"Name"`
	ProcessorType     string `json:"ProcessorType"`
	Status            Status `json:"Status"`
}

// MemoryModule is one read-only Memory/{id} member.
type MemoryModule struct {
	ODataContext      string `json:"@odata.context"`
	ODataID           string `json:"@odata.id"`
	ODataType         string `json:"@odata.type"`
	ID                string `json:"Id"`
	Name              string `json:"Name"`
	CapacityMiB       int    `json:"CapacityMiB"`
	Status            Status `json:"Status"`
}

// LogService is /redfish/v1/.../LogServices/{EventLog|SEL}.
type LogService struct {
	ODataContext string            `json:"@odata.context"`
	ODataID      string            `json:"@odata.id"`
	ODataType    string            `json:"@odata.type"`
	ID           string            `json:"Id"`
	Name         string            `json:"Name"`
	Entries      ODataIDRef        `json:"Entries"`
	Actions      LogServiceActions `json:"Actions"`
}

type LogServiceActions struct {
	ClearLog ActionTarget `json:"#LogService.ClearLog"`
}

type LogEntry struct {
	ODataContext string `json:"@odata.context"`
	ODataID      string `json:"@odata.id"`
	ODataType    string `json:"@odata.type"`
	ID           string `json:"Id"`
	Name         string `json:"Name"`
	Created      string `json:"Created"`
	Severity     string `json:"Severity"`
	Message      string `json:"Message"`
	EntryType    string `json:"EntryType"`
}

// UpdateService is /redfish/v1/UpdateService.
type UpdateService struct {
	ODataContext       string               `json:"@odata.context"`
	ODataID            string               `json:"@odata.id"`
	ODataType          string               `json:"@odata.type"`
	ID                 string               `json:"Id"`
	Name               string               `json:"Name"`
	ServiceEnabled     bool                 `json:"ServiceEnabled"`
	HTTPPushURI        string               `json:"HttpPushUri"`
	FirmwareInventory  ODataIDRef           `json:"FirmwareInventory"`
	SoftwareInventory  ODataIDRef           `json:"SoftwareInventory"`
	Actions            UpdateServiceActions `json:"Actions"`
}

type UpdateServiceActions struct {
	SimpleUpdate ActionTarget `json:"#UpdateService.SimpleUpdate"`
	StartUpdate  ActionTarget `json:"#UpdateService.StartUpdate"`
}

type SimpleUpdateRequest struct {
	ImageURI string `json:"ImageURI"`
	Targets  []string `json:"Targets,omitempty"`
}

// SoftwareInventoryItem is one FirmwareInventory/{id} member.
type SoftwareInventoryItem struct {
	ODataContext string `json:"@odata.context"`
	ODataID      string `json:"@odata.id"`
	ODataType    string `json:"@odata.type"`
	ID           string `json:"Id"`
	Name         string `json:"Name"`
	Version      string `json:"Version"`
	Updateable   bool   `json:"Updateable"`
	Status       Status `json:"Status"`
}

// TaskServiceResource is /redfish/v1/TaskService.
type TaskServiceResource struct {
	ODataContext                     string     `json:"@odata.context"`
	ODataID                          string     `json:"@odata.id"`
	ODataType                        string     `json:"@odata.type"`
	ID                               string     `json:"Id"`
	Name                             string     `json:"Name"`
	DateTime                         string     `json:"DateTime"`
	CompletedTaskOverWritePolicy     string     `json:"CompletedTaskOverWritePolicy"`
	LifeCycleEventOnTaskStateChange  bool       `json:"LifeCycleEventOnTaskStateChange"`
	ServiceEnabled                   bool       `json:"ServiceEnabled"`
	Status                           Status     `json:"Status"`
	Tasks                            ODataIDRef `json:"Tasks"`
}

// TaskResource is one /redfish/v1/TaskService/Tasks/{id} representation.
type TaskResource struct {
	ODataContext    string        `json:"@odata.context"`
	ODataID         string        `json:"@odata.id"`
	ODataType       string        `json:"@odata.type"`
	ID              string        `json:"Id"`
	Name            string        `json:"Name"`
	TaskState       string        `json:"TaskState"`
	TaskStatus      string        `json:"TaskStatus"`
	PercentComplete int           `json:"PercentComplete"`
	StartTime       string        `json:"StartTime"`
	EndTime         string        `json:"EndTime,omitempty"`
	Messages        []TaskMessage `json:"Messages,omitempty"`
}

type TaskMessage struct {
	MessageID string `json:"MessageId"`
	Message   string `json:"Message"`
	Severity  string `json:"Severity"`
}

// EventServiceResource is /redfish/v1/EventService.
type EventServiceResource struct {
	ODataContext           string     `json:"@odata.context"`
	ODataID                string     `json:"@odata.id"`
	ODataType              string     `json:"@odata.type"`
	ID                     string     `json:"Id"`
	Name                   string     `json:"Name"`
	ServiceEnabled         bool       `json:"ServiceEnabled"`
	DeliveryRetryAttempts  int        `json:"DeliveryRetryAttempts"`
	DeliveryRetryIntervalSeconds int `json:"DeliveryRetryIntervalSeconds"`
	Subscriptions          ODataIDRef `json:"Subscriptions"`
}

type EventSubscription struct {
	ODataContext string   `json:"@odata.context"`
	ODataID      string   `json:"@odata.id"`
	ODataType    string   `json:"@odata.type"`
	ID           string   `json:"Id"`
	Name         string   `json:"Name"`
	Destination  string   `json:"Destination"`
	EventTypes   []string `json:"EventTypes"`
	Protocol     string   `json:"Protocol"`
}

type SubscriptionCreateRequest struct {
	Destination string   `json:"Destination"`
	EventTypes  []string `json:"EventTypes"`
}

// Session is a Redfish session resource, returned from SessionService/Sessions.
type Session struct {
	ODataContext string `json:"@odata.context"`
	ODataID      string `json:"@odata.id"`
	ODataType    string `json:"@odata.type"`
	ID           string `json:"Id"`
	Name         string `json:"Name"`
	UserName     string `json:"UserName"`
}

type SessionCreateRequest struct {
	UserName string `json:"UserName"`
	Password string `json:"Password"`
}

// SessionServiceResource is /redfish/v1/SessionService.
type SessionServiceResource struct {
	ODataContext   string     `json:"@odata.context"`
	ODataID        string     `json:"@odata.id"`
	ODataType      string     `json:"@odata.type"`
	ID             string     `json:"Id"`
	Name           string     `json:"Name"`
	ServiceEnabled bool       `json:"ServiceEnabled"`
	SessionTimeout int        `json:"SessionTimeout"`
	Sessions       ODataIDRef `json:"Sessions"`
}
