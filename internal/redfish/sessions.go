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

import "shoal/pkg/auth"

func (s *Server) handleSessionService(rc *requestContext) {
	rc.writeJSON(200, SessionServiceResource{
		ODataContext:   "/redfish/v1/$metadata#SessionService.SessionService",
		ODataID:        "/redfish/v1/SessionService",
		ODataType:      "#SessionService.v1_1_9.SessionService",
		ID:             "SessionService",
		Name:           "Session Service",
		ServiceEnabled: true,
		SessionTimeout: int(sessionIdleTimeout.Seconds()),
		Sessions:       ODataIDRef{ODataID: "/redfish/v1/SessionService/Sessions"},
	})
}

func (s *Server) handleSessionsCollection(rc *requestContext) {
	base := "/redfish/v1/SessionService/Sessions"
	members := s.sessions.list(base)
	rc.writeJSON(200, newCollection(base, "Session Collection", "Session", members))
}

func (s *Server) handleSessionCreate(rc *requestContext) {
	var req SessionCreateRequest
	if err := rc.decodeBody(&req); err != nil {
		rc.writeError(400, "MalformedJSON", "request body is not valid JSON")
		return
	}
	if req.UserName != s.vm.RedfishUser {
		rc.writeError(401, "InsufficientPrivilege", "invalid username or password")
		return
	}
	if err := auth.VerifyPassword(req.Password, s.vm.RedfishPasswordHash); err != nil {
		rc.writeError(401, "InsufficientPrivilege", "invalid username or password")
		return
	}

	sess := s.sessions.create(req.UserName)
	path := "/redfish/v1/SessionService/Sessions/" + sess.token

	rc.w.Header().Set("X-Auth-Token", sess.token)
	rc.w.Header().Set("Location", path)
	rc.writeJSON(201, Session{
		ODataContext: "/redfish/v1/$metadata#Session.Session",
		ODataID:      path,
		ODataType:    "#Session.v1_6_0.Session",
		ID:           sess.token,
		Name:         "User Session",
		UserName:     sess.userName,
	})
}

func (s *Server) handleSessionDelete(rc *requestContext) {
	id := rc.params["id"]
	if !s.sessions.delete(id) {
		rc.writeError(404, "ResourceNotFound", "session not found")
		return
	}
	rc.w.WriteHeader(204)
}
