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
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"net"
	"net/http"
	"strings"
	"time"

	"shoal/internal/ctxkeys"
	"shoal/internal/metrics"
	"shoal/internal/state"
	"shoal/internal/vsphere"
)

// publicExactPaths lists the exact paths reachable without authentication
// for any method: service root, the top-level collections, and the
// SessionService root. The Sessions collection is public only for POST
// (see isPublic), since creating a session requires no prior session.
var publicExactPaths = map[string]bool{
	"/redfish/v1/":                           true,
	"/redfish/v1":                            true,
	"/redfish/v1/Systems":                    true,
	"/redfish/v1/Managers":                   true,
	"/redfish/v1/Chassis":                    true,
	"/redfish/v1/SessionService":              true,
}

// handlerFunc is what every route table entry resolves to: read the request,
// mutate or read state, write a response.
type handlerFunc func(reqCtx *requestContext)

// route is one (method, exact-or-templated path) -> handler entry. Paths may
// contain "{param}" segments, matched positionally against the incoming URL.
type route struct {
	method  string
	pattern string
	segs    []string
	handler handlerFunc
}

func newRoute(method, pattern string, h handlerFunc) route {
	return route{method: method, pattern: pattern, segs: strings.Split(strings.Trim(pattern, "/"), "/"), handler: h}
}

// requestContext is the parsed, authenticated view of one incoming request
// that every handler receives, per spec.md §9's RequestContext design note.
type requestContext struct {
	w           http.ResponseWriter
	r           *http.Request
	params      map[string]string
	principal   string
	srv         *Server
}

func (rc *requestContext) writeJSON(status int, v interface{}) {
	rc.w.Header().Set("Content-Type", "application/json")
	rc.w.Header().Set("OData-Version", "4.0")
	rc.w.WriteHeader(status)
	_ = json.NewEncoder(rc.w).Encode(v)
}

func (rc *requestContext) writeError(status int, code, message string) {
	rc.writeJSON(status, newError(code, message))
}

func (rc *requestContext) decodeBody(v interface{}) error {
	defer rc.r.Body.Close()
	return json.NewDecoder(rc.r.Body).Decode(v)
}

func (rc *requestContext) basePath() string {
	return "/redfish/v1/Systems/" + rc.srv.vm.Name
}

func (rc *requestContext) managerPath() string {
	return "/redfish/v1/Managers/" + rc.srv.vm.Name + "-BMC"
}

func (rc *requestContext) chassisPath() string {
	return "/redfish/v1/Chassis/" + rc.srv.vm.Name + "-Chassis"
}

// Server is the per-VM Redfish HTTPS listener: one TLS endpoint, one route
// table, bound to the shared GlobalState/vSphere adapter and this VM's
// cached ManagedVM entry.
type Server struct {
	vm       *state.ManagedVM
	adapter  *vsphere.Adapter
	gs       *state.GlobalState
	logger   *slog.Logger
	sessions *sessionStore
	routes   []route
	certFile string
	keyFile  string
}

// New builds a Redfish server for one managed VM. certFile/keyFile are the
// operator-supplied TLS material (from SSL.cert_path/key_path); when empty,
// ListenAndServe falls back to a self-signed certificate.
func New(vm *state.ManagedVM, adapter *vsphere.Adapter, gs *state.GlobalState, logger *slog.Logger, certFile, keyFile string) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		vm:       vm,
		adapter:  adapter,
		gs:       gs,
		logger:   logger.With("vm", vm.Name, "component", "redfish"),
		sessions: newSessionStore(),
		certFile: certFile,
		keyFile:  keyFile,
	}
	s.routes = s.buildRoutes()
	return s
}

// ListenAndServe binds the VM's Redfish TLS port and serves until ctx is
// cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	cert, err := s.loadOrGenerateCert()
	if err != nil {
		return fmt.Errorf("tls cert: %w", err)
	}

	addr := fmt.Sprintf(":%d", s.vm.RedfishPort)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("bind failed: %w", err)
	}
	tlsLn := tls.NewListener(ln, &tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: []tls.Certificate{cert},
	})

	httpSrv := &http.Server{
		Handler:     http.HandlerFunc(s.serveHTTP),
		ReadTimeout: 30 * time.Second,
		// Plaintext handshakes against a TLS listener fail inside the TLS
		// layer itself and never reach this handler or its logging; spec.md
		// §4.4 only requires we never log the raw bytes, which this satisfies.
	}

	s.logger.Info("redfish listener bound", "port", s.vm.RedfishPort)

	errCh := make(chan error, 1)
	go func() { errCh <- httpSrv.Serve(tlsLn) }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) loadOrGenerateCert() (tls.Certificate, error) {
	if s.certFile != "" && s.keyFile != "" {
		return tls.LoadX509KeyPair(s.certFile, s.keyFile)
	}
	return generateSelfSignedCert(s.vm.Name)
}

func generateSelfSignedCert(cn string) (tls.Certificate, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return tls.Certificate{}, err
	}
	template := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject:      pkix.Name{CommonName: cn},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(10 * 365 * 24 * time.Hour),
		KeyUsage:     x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return tls.Certificate{}, err
	}
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key}, nil
}

// statusRecorder wraps a ResponseWriter so the dispatch loop can label
// metrics with the status each handler actually wrote.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (s *Server) serveHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, cid := ctxkeys.EnsureCorrelationID(r.Context())
	r = r.WithContext(ctx)
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

	matched, params, allowed := s.match(r.URL.Path, r.Method)
	if matched == nil {
		if len(allowed) > 0 {
			rec.Header().Set("Allow", strings.Join(allowed, ", "))
			s.writeStatus(rec, r, http.StatusMethodNotAllowed, "MethodNotAllowed", "method not supported for this resource", start)
			return
		}
		s.writeStatus(rec, r, http.StatusNotFound, "ResourceNotFound", "resource not found", start)
		return
	}

	rc := &requestContext{w: rec, r: r, params: params, srv: s}

	if !s.isPublic(r.URL.Path, r.Method) {
		principal := s.authenticate(r)
		if principal == "" {
			rec.Header().Set("WWW-Authenticate", `Basic realm="redfish"`)
			s.writeStatus(rec, r, http.StatusUnauthorized, "InsufficientPrivilege", "authentication required", start)
			return
		}
		rc.principal = principal
	}

	s.logger.Debug("redfish request", "method", r.Method, "path", r.URL.Path, "correlation_id", cid)
	matched(rc)
	metrics.ObserveRedfishRequest(s.routeLabel(r.URL.Path), rec.status, start)
}

func (s *Server) writeStatus(w http.ResponseWriter, r *http.Request, status int, code, message string, start time.Time) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(newError(code, message))
	metrics.ObserveRedfishRequest(s.routeLabel(r.URL.Path), status, start)
}

func (s *Server) routeLabel(path string) string {
	return path
}

func (s *Server) isPublic(path, method string) bool {
	if publicExactPaths[path] {
		return true
	}
	if path == "/redfish/v1/SessionService/Sessions" && method == http.MethodPost {
		return true
	}
	if path == "/redfish/v1/$metadata" {
		return true
	}
	return false
}

// match finds the first route whose method+pattern fits path, and also
// reports which methods would have matched the path under a different verb
// (for the 405 Allow header).
func (s *Server) match(path, method string) (handlerFunc, map[string]string, []string) {
	segs := strings.Split(strings.Trim(path, "/"), "/")
	var allowed []string
	for _, rt := range s.routes {
		params, ok := matchSegs(rt.segs, segs)
		if !ok {
			continue
		}
		if rt.method != method {
			allowed = append(allowed, rt.method)
			continue
		}
		return rt.handler, params, nil
	}
	return nil, nil, allowed
}

func matchSegs(pattern, segs []string) (map[string]string, bool) {
	if len(pattern) != len(segs) {
		return nil, false
	}
	params := map[string]string{}
	for i, p := range pattern {
		if strings.HasPrefix(p, "{") && strings.HasSuffix(p, "}") {
			params[strings.Trim(p, "{}")] = segs[i]
			continue
		}
		if p != segs[i] {
			return nil, false
		}
	}
	return params, true
}
