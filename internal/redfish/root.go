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

func (s *Server) handleServiceRoot(rc *requestContext) {
	root := ServiceRoot{
		ODataContext:   "/redfish/v1/$metadata#ServiceRoot.ServiceRoot",
		ODataID:        "/redfish/v1/",
		ODataType:      "#ServiceRoot.v1_15_0.ServiceRoot",
		ID:             "RootService",
		Name:           "BMC Bridge Service Root",
		RedfishVersion: "1.15.0",
		UUID:           serviceUUID(s.vm.Name),
		Systems:        ODataIDRef{ODataID: "/redfish/v1/Systems"},
		Chassis:        ODataIDRef{ODataID: "/redfish/v1/Chassis"},
		Managers:       ODataIDRef{ODataID: "/redfish/v1/Managers"},
		SessionService: ODataIDRef{ODataID: "/redfish/v1/SessionService"},
		UpdateService:  ODataIDRef{ODataID: "/redfish/v1/UpdateService"},
		TaskService:    ODataIDRef{ODataID: "/redfish/v1/TaskService"},
		EventService:   ODataIDRef{ODataID: "/redfish/v1/EventService"},
		Links:          ServiceRootLinks{Sessions: ODataIDRef{ODataID: "/redfish/v1/SessionService/Sessions"}},
	}
	rc.writeJSON(200, root)
}

// serviceUUID derives a stable, deterministic UUID-shaped string from the VM
// name; spec.md §9 notes synthetic identifiers need only be stable, not
// cryptographically derived.
func serviceUUID(name string) string {
	var sum uint64
	for i, c := range name {
		sum = sum*31 + uint64(c) + uint64(i)
	}
	return formatUUIDFromSeed(sum)
}

func formatUUIDFromSeed(seed uint64) string {
	b := make([]byte, 16)
	for i := 0; i < 16; i++ {
		seed = seed*6364136223846793005 + 1442695040888963407
		b[i] = byte(seed >> 56)
	}
	b[6] = (b[6] & 0x0f) | 0x40
	b[8] = (b[8] & 0x3f) | 0x80
	return hexUUID(b)
}

func hexUUID(b []byte) string {
	const hexd = "0123456789abcdef"
	out := make([]byte, 36)
	pos := 0
	dashAfter := map[int]bool{4: true, 6: true, 8: true, 10: true}
	for i, v := range b {
		if dashAfter[i] {
			out[pos] = '-'
			pos++
		}
		out[pos] = hexd[v>>4]
		out[pos+1] = hexd[v&0xF]
		pos += 2
	}
	return string(out)
}
