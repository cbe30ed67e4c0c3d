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

func (s *Server) handleChassisCollection(rc *requestContext) {
	rc.writeJSON(200, newCollection("/redfish/v1/Chassis", "Chassis Collection", "Chassis", []string{rc.chassisPath()}))
}

func (s *Server) handleChassis(rc *requestContext) {
	rc.writeJSON(200, Chassis{
		ODataContext: "/redfish/v1/$metadata#Chassis.Chassis",
		ODataID:      rc.chassisPath(),
		ODataType:    "#Chassis.v1_22_0.Chassis",
		ID:           s.vm.Name + "-Chassis",
		Name:         "Virtual Chassis",
		ChassisType:  "RackMount",
		Status:       okStatus(),
		Power:        ODataIDRef{ODataID: rc.chassisPath() + "/Power"},
		Thermal:      ODataIDRef{ODataID: rc.chassisPath() + "/Thermal"},
		NetworkAdapters: ODataIDRef{ODataID: rc.chassisPath() + "/NetworkAdapters"},
		Links: ChassisLinks{
			ComputerSystems: []ODataIDRef{{ODataID: rc.basePath()}},
			ManagedBy:       []ODataIDRef{{ODataID: rc.managerPath()}},
		},
	})
}

// handlePower returns synthetic but stable power telemetry: spec.md §9
// allows fabricated sensor values as long as they read as plausible and
// don't change on every poll in a way that would look like noise.
func (s *Server) handlePower(rc *requestContext) {
	watts := 120.0
	if s.vm.PowerState() != "On" {
		watts = 4.0
	}
	rc.writeJSON(200, Power{
		ODataContext: "/redfish/v1/$metadata#Power.Power",
		ODataID:      rc.chassisPath() + "/Power",
		ODataType:    "#Power.v1_7_1.Power",
		ID:           "Power",
		Name:         "Power",
		PowerControl: []PowerControl{{
			Name:               "System Power Control",
			PowerConsumedWatts: watts,
			PowerCapacityWatts: 750,
			Status:             okStatus(),
		}},
		Voltages: []Voltage{
			{Name: "12V Rail", ReadingVolts: 12.0, Status: okStatus()},
			{Name: "5V Rail", ReadingVolts: 5.0, Status: okStatus()},
		},
		PowerSupplies: []PowerSupply{
			{Name: "PSU1", PowerOutputWatts: watts, Status: okStatus()},
		},
	})
}

func (s *Server) handleThermal(rc *requestContext) {
	fanRPM := 3200.0
	tempC := 38.0
	if s.vm.PowerState() != "On" {
		fanRPM = 800
		tempC = 22
	}
	rc.writeJSON(200, Thermal{
		ODataContext: "/redfish/v1/$metadata#Thermal.Thermal",
		ODataID:      rc.chassisPath() + "/Thermal",
		ODataType:    "#Thermal.v1_7_0.Thermal",
		ID:           "Thermal",
		Name:         "Thermal",
		Temperatures: []Temperature{
			{Name: "CPU Temp", ReadingCelsius: tempC, Status: okStatus()},
		},
		Fans: []Fan{
			{Name: "Fan1", ReadingRPM: fanRPM, Status: okStatus()},
		},
	})
}
