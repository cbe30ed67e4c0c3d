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

import "testing"

func TestRMCPHeaderRoundTrip(t *testing.T) {
	envelope := writeRMCPHeader(rmcpClassIPMI)
	payload := []byte{0xAA, 0xBB}
	full := append(envelope, payload...)

	hdr, rest, err := parseRMCPHeader(full)
	if err != nil {
		t.Fatalf("parseRMCPHeader: %v", err)
	}
	if hdr.Class != rmcpClassIPMI {
		t.Errorf("class = %#x, want %#x", hdr.Class, rmcpClassIPMI)
	}
	if string(rest) != string(payload) {
		t.Errorf("rest = %v, want %v", rest, payload)
	}
}

func TestParseRMCPHeaderRejectsShortPacket(t *testing.T) {
	if _, _, err := parseRMCPHeader([]byte{0x06, 0x00}); err != errShortPacket {
		t.Fatalf("err = %v, want errShortPacket", err)
	}
}

func TestParseRMCPHeaderRejectsWrongVersion(t *testing.T) {
	b := []byte{0x05, 0xFF, 0xFF, rmcpClassIPMI}
	if _, _, err := parseRMCPHeader(b); err != errBadRMCP {
		t.Fatalf("err = %v, want errBadRMCP", err)
	}
}

func TestSessionHeaderRoundTrip(t *testing.T) {
	h := sessionHeader{
		AuthType:      authTypeRMCPPlus,
		PayloadType:   payloadTypeIPMIMessage,
		Authenticated: true,
		SessionID:     0xDEADBEEF,
		SessionSeq:    7,
	}
	payload := []byte{0x01, 0x02, 0x03}
	wire := writeSessionHeader(h, payload)

	got, body, err := parseSessionHeader(wire)
	if err != nil {
		t.Fatalf("parseSessionHeader: %v", err)
	}
	if got.SessionID != h.SessionID {
		t.Errorf("SessionID = %#x, want %#x", got.SessionID, h.SessionID)
	}
	if got.SessionSeq != h.SessionSeq {
		t.Errorf("SessionSeq = %d, want %d", got.SessionSeq, h.SessionSeq)
	}
	if !got.Authenticated {
		t.Error("Authenticated flag lost in round trip")
	}
	if got.PayloadType != payloadTypeIPMIMessage {
		t.Errorf("PayloadType = %#x, want %#x", got.PayloadType, payloadTypeIPMIMessage)
	}
	if string(body) != string(payload) {
		t.Errorf("body = %v, want %v", body, payload)
	}
}

func TestParseSessionHeaderRejectsUnsupportedAuthType(t *testing.T) {
	if _, _, err := parseSessionHeader([]byte{0x02}); err == nil {
		t.Fatal("expected error for non-RMCP+ auth type")
	}
}

func TestIPMIMessageRoundTrip(t *testing.T) {
	data := []byte{0x11, 0x22, 0x33}
	wire := buildIPMIMessage(0x20, 0x07, 0x81, 0, 0x02, ccSuccess, data)

	msg, err := parseIPMIMessage(wire)
	if err != nil {
		t.Fatalf("parseIPMIMessage: %v", err)
	}
	if msg.NetFn != 0x07 {
		t.Errorf("NetFn = %#x, want 0x07", msg.NetFn)
	}
	if msg.Cmd != 0x02 {
		t.Errorf("Cmd = %#x, want 0x02", msg.Cmd)
	}
}

func TestParseIPMIMessageRejectsShortPacket(t *testing.T) {
	if _, err := parseIPMIMessage([]byte{0x01, 0x02}); err != errShortPacket {
		t.Fatalf("err = %v, want errShortPacket", err)
	}
}

func TestChecksumIsSelfInverse(t *testing.T) {
	b := []byte{0x20, 0x1C}
	sum := checksum(b)
	full := append(append([]byte{}, b...), sum)
	if checksum(full) != 0 {
		t.Errorf("checksum over data+checksum = %#x, want 0", checksum(full))
	}
}
