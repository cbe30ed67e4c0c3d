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
	"strings"

	"shoal/internal/state"
)

func (s *Server) handleManagersCollection(rc *requestContext) {
	rc.writeJSON(200, newCollection("/redfish/v1/Managers", "Manager Collection", "Manager", []string{rc.managerPath()}))
}

func (s *Server) handleManager(rc *requestContext) {
	rc.writeJSON(200, Manager{
		ODataContext:    "/redfish/v1/$metadata#Manager.Manager",
		ODataID:         rc.managerPath(),
		ODataType:       "#Manager.v1_17_0.Manager",
		ID:              s.vm.Name + "-BMC",
		Name:            "Bridge BMC",
		ManagerType:     "BMC",
		FirmwareVersion: "1.0.0",
		Status:          okStatus(),
		Links: ManagerLinks{
			ManagerForServers: []ODataIDRef{{ODataID: rc.basePath()}},
		},
		VirtualMedia:       ODataIDRef{ODataID: rc.managerPath() + "/VirtualMedia"},
		LogServices:        ODataIDRef{ODataID: rc.managerPath() + "/LogServices"},
		EthernetInterfaces: ODataIDRef{ODataID: rc.managerPath() + "/EthernetInterfaces"},
	})
}

func (s *Server) handleVirtualMediaCollection(rc *requestContext) {
	base := rc.managerPath() + "/VirtualMedia"
	rc.writeJSON(200, newCollection(base, "Virtual Media Collection", "VirtualMedia", []string{base + "/CD", base + "/Floppy"}))
}

func (s *Server) handleVirtualMedia(rc *requestContext) {
	id := rc.params["id"]
	device := "CD"
	mediaTypes := []string{"CD", "DVD"}
	if id == "Floppy" {
		device = "Floppy"
		mediaTypes = []string{"Floppy"}
	}
	m := s.vm.Media(device)
	base := rc.managerPath() + "/VirtualMedia/" + id

	connectedVia := "NotConnected"
	if m.Inserted {
		connectedVia = "URI"
	}

	rc.writeJSON(200, VirtualMedia{
		ODataContext:   "/redfish/v1/$metadata#VirtualMedia.VirtualMedia",
		ODataID:        base,
		ODataType:      "#VirtualMedia.v1_6_0.VirtualMedia",
		ID:             id,
		Name:           id + " Virtual Media",
		MediaTypes:     mediaTypes,
		Image:          m.ImageURI,
		Inserted:       m.Inserted,
		WriteProtected: m.WriteProtected,
		ConnectedVia:   connectedVia,
		Actions: VirtualMediaActions{
			InsertMedia: ActionTarget{Target: base + "/Actions/VirtualMedia.InsertMedia"},
			EjectMedia:  ActionTarget{Target: base + "/Actions/VirtualMedia.EjectMedia"},
		},
	})
}

func (s *Server) handleInsertMedia(rc *requestContext) {
	var req InsertMediaRequest
	if err := rc.decodeBody(&req); err != nil {
		rc.writeError(400, "MalformedJSON", "request body is not valid JSON")
		return
	}
	if req.Image == "" {
		rc.writeError(400, "ActionParameterMissing", "Image is required")
		return
	}

	id := rc.params["id"]
	device := "CD"
	if id == "Floppy" {
		device = "Floppy"
	}

	inserted := true
	if req.Inserted != nil {
		inserted = *req.Inserted
	}
	writeProtected := true
	if req.WriteProtected != nil {
		writeProtected = *req.WriteProtected
	}

	s.vm.SetMedia(device, state.VirtualMediaDevice{
		ImageURI:       req.Image,
		Inserted:       inserted,
		WriteProtected: writeProtected,
	})

	if device == "CD" && inserted {
		datastore, isoPath := splitDatastorePath(req.Image)
		if datastore == "" {
			datastore = s.vm.DefaultISODatastore
		}
		if datastore != "" {
			s.gs.Tasks.New("Insert Virtual Media "+id, rc.managerPath()+"/VirtualMedia/"+id, func() error {
				ctx, cancel := context.WithTimeout(context.Background(), resetOpTimeout)
				defer cancel()
				return s.adapter.MountISO(ctx, s.vm.Name, datastore, isoPath)
			})
		}
	}

	rc.w.WriteHeader(204)
}

func (s *Server) handleEjectMedia(rc *requestContext) {
	id := rc.params["id"]
	device := "CD"
	if id == "Floppy" {
		device = "Floppy"
	}
	s.vm.SetMedia(device, state.VirtualMediaDevice{})

	if device == "CD" {
		s.gs.Tasks.New("Eject Virtual Media "+id, rc.managerPath()+"/VirtualMedia/"+id, func() error {
			ctx, cancel := context.WithTimeout(context.Background(), resetOpTimeout)
			defer cancel()
			return s.adapter.UnmountISO(ctx, s.vm.Name)
		})
	}

	rc.w.WriteHeader(204)
}

// splitDatastorePath accepts either a bare datastore-relative path (using
// the VM's configured default datastore) or a "[datastore] path" form.
func splitDatastorePath(image string) (datastore, path string) {
	if strings.HasPrefix(image, "[") {
		if idx := strings.Index(image, "]"); idx > 0 {
			return image[1:idx], strings.TrimSpace(image[idx+1:])
		}
	}
	return "", image
}
