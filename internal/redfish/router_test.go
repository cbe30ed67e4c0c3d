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
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"shoal/internal/state"
	"shoal/internal/vsphere"
	"shoal/pkg/auth"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	gs := state.NewGlobalState()
	vm := state.NewManagedVM("vm1")
	vm.RedfishUser = "admin"
	hash, err := auth.HashPassword("s3cr3t-password")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	vm.RedfishPasswordHash = hash
	gs.RegisterVM(vm)

	adapter := vsphere.New(vsphere.Config{Host: "vcenter.invalid"}, nil)
	return New(vm, adapter, gs, nil, "", "")
}

func doRequest(s *Server, method, path, user, pass string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if user != "" {
		req.SetBasicAuth(user, pass)
	}
	rec := httptest.NewRecorder()
	s.serveHTTP(rec, req)
	return rec
}

func TestServiceRootIsPublic(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(s, http.MethodGet, "/redfish/v1/", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var root ServiceRoot
	if err := json.Unmarshal(rec.Body.Bytes(), &root); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if root.Systems.ODataID != "/redfish/v1/Systems" {
		t.Errorf("Systems link = %q", root.Systems.ODataID)
	}
}

func TestProtectedResourceRequiresAuth(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(s, http.MethodGet, "/redfish/v1/Systems/vm1", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if rec.Header().Get("WWW-Authenticate") == "" {
		t.Error("missing WWW-Authenticate header on 401")
	}
}

func TestProtectedResourceAcceptsBasicAuth(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(s, http.MethodGet, "/redfish/v1/Systems/vm1", "admin", "s3cr3t-password")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestProtectedResourceRejectsWrongPassword(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(s, http.MethodGet, "/redfish/v1/Systems/vm1", "admin", "wrong")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestUnknownResourceReturns404(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(s, http.MethodGet, "/redfish/v1/Systems/does-not-exist-resource", "admin", "s3cr3t-password")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestWrongMethodReturns405WithAllowHeader(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(s, http.MethodDelete, "/redfish/v1/Systems/vm1", "admin", "s3cr3t-password")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
	if rec.Header().Get("Allow") == "" {
		t.Error("missing Allow header on 405")
	}
}

func TestSessionCreateThenTokenAuth(t *testing.T) {
	s := newTestServer(t)
	body := `{"UserName":"admin","Password":"s3cr3t-password"}`
	req := httptest.NewRequest(http.MethodPost, "/redfish/v1/SessionService/Sessions", strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.serveHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("session create status = %d, want 201, body=%s", rec.Code, rec.Body.String())
	}
	token := rec.Header().Get("X-Auth-Token")
	if token == "" {
		t.Fatal("missing X-Auth-Token on session create")
	}

	req2 := httptest.NewRequest(http.MethodGet, "/redfish/v1/Systems/vm1", nil)
	req2.Header.Set("X-Auth-Token", token)
	rec2 := httptest.NewRecorder()
	s.serveHTTP(rec2, req2)
	if rec2.Code != http.StatusOK {
		t.Fatalf("token-authed status = %d, want 200", rec2.Code)
	}
}
