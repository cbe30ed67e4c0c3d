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

package ipmi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"shoal/internal/ctxkeys"
	"shoal/internal/metrics"
	"shoal/internal/state"
	"shoal/internal/vsphere"
)

// vsphereOpTimeout bounds every vSphere call a command handler makes
// (spec.md §5: "a vSphere operation has a 30 s hard timeout").
const vsphereOpTimeout = 30 * time.Second

// Engine is the per-VM IPMI BMC: one UDP listener, one session table, and
// the shared GlobalState/vSphere adapter every command handler reads or
// mutates through.
type Engine struct {
	vm      *state.ManagedVM
	adapter *vsphere.Adapter
	gs      *state.GlobalState
	logger  *slog.Logger

	sessions *sessionTable
	conn     *net.UDPConn
}

// NewEngine builds an IPMI engine bound to one managed VM.
func NewEngine(vm *state.ManagedVM, adapter *vsphere.Adapter, gs *state.GlobalState, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		vm:       vm,
		adapter:  adapter,
		gs:       gs,
		logger:   logger.With("vm", vm.Name, "component", "ipmi"),
		sessions: newSessionTable(),
	}
}

func (e *Engine) ctx() context.Context {
	ctx, _ := context.WithTimeout(context.Background(), vsphereOpTimeout) //nolint:govet // cancel fired by deadline
	return ctx
}

// ListenAndServe binds the VM's configured UDP port and runs the receive
// loop and the idle-session reaper until ctx is cancelled.
func (e *Engine) ListenAndServe(ctx context.Context) error {
	addr := &net.UDPAddr{IP: net.IPv4zero, Port: e.vm.IPMIPort}
	conn, err := net.ListenUDP("udp4", addr)
	if err != nil {
		return fmt.Errorf("bind failed: %w", err)
	}
	e.conn = conn
	e.logger.Info("ipmi listener bound", "port", e.vm.IPMIPort)

	reapTicker := time.NewTicker(10 * time.Second)
	defer reapTicker.Stop()

	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ctx.Done():
				close(done)
				return
			case <-reapTicker.C:
				e.sessions.reapIdle()
			}
		}
	}()

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	buf := make([]byte, 2048)
	for {
		n, remote, err := conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			var netErr net.Error
			if errors.As(err, &netErr) {
				continue
			}
			return err
		}
		packet := make([]byte, n)
		copy(packet, buf[:n])
		go e.handlePacket(remote, packet)
	}
}

func (e *Engine) handlePacket(remote *net.UDPAddr, data []byte) {
	_, payload, err := parseRMCPHeader(data)
	if err != nil {
		// Drop silently: not an IPMI-class packet (spec.md §4.2 step 1).
		return
	}

	hdr, body, err := parseSessionHeader(payload)
	if err != nil {
		return
	}

	switch hdr.PayloadType {
	case payloadTypeOpenSessReq:
		e.handleOpenSessionRequest(remote, body)
	case payloadTypeRAKP1:
		e.handleRAKP1(remote, body)
	case payloadTypeRAKP3:
		e.handleRAKP3(remote, hdr, body)
	case payloadTypeIPMIMessage:
		e.handleAuthenticatedMessage(remote, hdr, body)
	default:
		// Unsupported pre-session payload type; drop.
	}
}

func (e *Engine) send(remote *net.UDPAddr, hdr sessionHeader, payload []byte) {
	out := append(writeRMCPHeader(rmcpClassIPMI), writeSessionHeader(hdr, payload)...)
	_, _ = e.conn.WriteToUDP(out, remote)
}

func (e *Engine) handleOpenSessionRequest(remote *net.UDPAddr, body []byte) {
	req, err := parseOpenSessionRequest(body)
	if err != nil {
		return
	}
	sess := e.sessions.create(remote.String())
	e.sessions.bind(req.ConsoleSessionID, sess)
	sess.Privilege = req.RequestedPrivilege

	resp := buildOpenSessionResponse(ccSuccess, req.ConsoleSessionID, sess.ManagedSessionID)
	e.send(remote, sessionHeader{AuthType: authTypeRMCPPlus, PayloadType: payloadTypeOpenSessResp, SessionID: 0}, resp)
}

func (e *Engine) handleRAKP1(remote *net.UDPAddr, body []byte) {
	r1, err := parseRAKP1(body)
	if err != nil {
		return
	}
	sess, ok := e.sessions.lookupByManaged(remote.String(), r1.ManagedSessionID)
	if !ok {
		return
	}

	// Reject unknown usernames at RAKP2, per spec.md §4.2.
	if r1.Username != e.vm.IPMIUser {
		resp := buildRAKP2(0x0D /* Invalid User */, sess.ConsoleSessionID, nil, [16]byte{}, [16]byte{})
		e.send(remote, sessionHeader{AuthType: authTypeRMCPPlus, PayloadType: payloadTypeRAKP2, SessionID: 0}, resp)
		e.sessions.remove(sess)
		return
	}

	sess.consoleRandom = r1.ConsoleRandom
	sess.managedRandom = randomBytes16()
	sess.Username = r1.Username
	sess.Privilege = r1.Privilege

	guid := managedGUID()
	hmacVal := rakp2HMAC(e.vm.IPMIPassword, sess.ConsoleSessionID, sess.ManagedSessionID, sess.consoleRandom, sess.managedRandom, guid, sess.Privilege, sess.Username)
	resp := buildRAKP2(ccSuccess, sess.ConsoleSessionID, hmacVal, sess.managedRandom, guid)
	e.send(remote, sessionHeader{AuthType: authTypeRMCPPlus, PayloadType: payloadTypeRAKP2, SessionID: 0}, resp)
	sess.setState(StateRAKP2Sent)
}

func (e *Engine) handleRAKP3(remote *net.UDPAddr, hdr sessionHeader, body []byte) {
	if len(body) < 8 {
		return
	}
	managedSessID := hdr.SessionID
	sess, ok := e.sessions.lookupByManaged(remote.String(), managedSessID)
	if !ok {
		return
	}

	statusCode := body[1]
	hmacReceived := body[8:]
	expected := rakp3HMAC(e.vm.IPMIPassword, sess.managedRandom, sess.ConsoleSessionID, sess.Privilege, sess.Username)

	if statusCode != ccSuccess || !hmacEqual(hmacReceived, expected) {
		resp := buildRAKP4(0x0D, sess.ConsoleSessionID, nil)
		e.send(remote, sessionHeader{AuthType: authTypeRMCPPlus, PayloadType: payloadTypeRAKP4, SessionID: 0}, resp)
		e.sessions.remove(sess)
		return
	}

	sess.keys = deriveKeys(e.vm.IPMIPassword, sess.consoleRandom, sess.managedRandom, sess.Privilege, sess.Username)
	sess.setState(StateRAKP4Sent)

	guid := managedGUID()
	icv := rakp4HMAC(sess.keys.SIK, sess.consoleRandom, sess.ManagedSessionID, guid)
	resp := buildRAKP4(ccSuccess, sess.ConsoleSessionID, icv)
	e.send(remote, sessionHeader{AuthType: authTypeRMCPPlus, PayloadType: payloadTypeRAKP4, SessionID: 0}, resp)
}

func (e *Engine) handleAuthenticatedMessage(remote *net.UDPAddr, hdr sessionHeader, body []byte) {
	if hdr.SessionID == 0 {
		// Pre-session IPMI message: only Get Channel Auth Caps is legal here.
		msg, err := parseIPMIMessage(body)
		if err != nil {
			return
		}
		if msg.NetFn != netFnApp || msg.Cmd != 0x38 {
			return
		}
		respData, cc := dispatch(e, nil, msg.NetFn, msg.Cmd, msg.Data)
		metrics.ObserveIPMICommand(fmt.Sprintf("%02x/%02x", msg.NetFn, msg.Cmd), cc)
		out := buildIPMIMessage(0x20, msg.NetFn+1, 0x81, 0, msg.Cmd, cc, respData)
		e.send(remote, sessionHeader{AuthType: authTypeRMCPPlus, PayloadType: payloadTypeIPMIMessage, SessionID: 0}, out)
		return
	}

	sess, ok := e.sessions.lookupByManaged(remote.String(), hdr.SessionID)
	if !ok {
		return // unknown session: silently dropped (replay/auth-failure contract)
	}

	if !e.verifyAuthCode(sess, hdr, body) {
		return
	}
	if !sess.checkAndUpdateReplay(hdr.SessionSeq) {
		return // outside replay window: discarded with no response
	}
	if sess.State() != StateEstablished && sess.State() != StateRAKP4Sent {
		return
	}
	sess.setState(StateEstablished)

	payload := body
	if len(payload) > 12 {
		payload = payload[:len(payload)-12] // strip integrity pad + AuthCode before decoding
	}

	_, cid := ctxkeys.EnsureCorrelationID(context.Background())
	msg, err := parseIPMIMessage(payload)
	if err != nil {
		return
	}

	respData, cc := dispatch(e, sess, msg.NetFn, msg.Cmd, msg.Data)
	metrics.ObserveIPMICommand(fmt.Sprintf("%02x/%02x", msg.NetFn, msg.Cmd), cc)
	e.logger.Debug("ipmi command dispatched", "netfn", msg.NetFn, "cmd", msg.Cmd, "cc", cc, "correlation_id", cid)

	respBody := buildIPMIMessage(0x20, msg.NetFn+1, 0x81, 0, msg.Cmd, cc, respData)
	seq := sess.nextOutboundSeq()
	authed := writeSessionHeader(sessionHeader{
		AuthType:      authTypeRMCPPlus,
		PayloadType:   payloadTypeIPMIMessage,
		Authenticated: true,
		SessionID:     sess.ConsoleSessionID,
		SessionSeq:    seq,
	}, respBody)
	authCode := authCodeHMAC(sess.keys.K1, authed)
	out := append(writeRMCPHeader(rmcpClassIPMI), authed...)
	out = append(out, authCode...)
	_, _ = e.conn.WriteToUDP(out, remote)
}

// verifyAuthCode checks the trailing HMAC-SHA1-96 AuthCode on an
// authenticated packet, per spec.md §4.2 step 2.
func (e *Engine) verifyAuthCode(sess *Session, hdr sessionHeader, body []byte) bool {
	if !hdr.Authenticated {
		return false
	}
	if len(body) < 12 {
		return false
	}
	payload := body[:len(body)-12]
	received := body[len(body)-12:]

	reconstructed := writeSessionHeader(hdr, payload)
	expected := authCodeHMAC(sess.keys.K1, reconstructed)
	return hmacEqual(received, expected)
}

func hmacEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	var diff byte
	for i := range a {
		diff |= a[i] ^ b[i]
	}
	return diff == 0
}

// managedGUID is a fixed, stable synthetic managed-system GUID; spec.md §9
// notes concrete synthetic values are not protocol-critical.
func managedGUID() [16]byte {
	return [16]byte{0xBD, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0A, 0x0B, 0x0C, 0x0D, 0x0E, 0x0F}
}

func buildRAKP2(statusCode byte, consoleSessID uint32, hmacVal []byte, managedRandom, guid [16]byte) []byte {
	out := make([]byte, 8, 8+20+16+16)
	out[1] = statusCode
	putU32(out[4:8], consoleSessID)
	if statusCode != ccSuccess {
		return out
	}
	out = append(out, managedRandom[:]...)
	out = append(out, guid[:]...)
	out = append(out, hmacVal...)
	return out
}

func buildRAKP4(statusCode byte, consoleSessID uint32, icv []byte) []byte {
	out := make([]byte, 8, 8+20)
	out[1] = statusCode
	putU32(out[4:8], consoleSessID)
	if statusCode != ccSuccess {
		return out
	}
	out = append(out, icv...)
	return out
}

func putU32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}
