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

// Package ipmi implements the RMCP+ / IPMI 2.0 session engine and command
// dispatcher: framing, RAKP-HMAC-SHA1 authentication, per-session replay
// protection, and the narrow Chassis/App/Storage/Sensor/DCMI command subset
// spec.md §4.3 lists.
package ipmi

import (
	"encoding/binary"
	"errors"
)

// RMCP/ASF constants (spec.md §4.2).
const (
	rmcpVersion1_0 = 0x06
	rmcpClassASF   = 0x06
	rmcpClassIPMI  = 0x07
)

// Payload types carried in the IPMI 2.0 session header.
const (
	payloadTypeIPMIMessage  = 0x00
	payloadTypeOpenSessReq  = 0x10
	payloadTypeOpenSessResp = 0x11
	payloadTypeRAKP1        = 0x12
	payloadTypeRAKP2        = 0x13
	payloadTypeRAKP3        = 0x14
	payloadTypeRAKP4        = 0x15
)

var errShortPacket = errors.New("ipmi: packet too short")
var errBadRMCP = errors.New("ipmi: not an RMCP/IPMI class packet")

// rmcpHeader is the 4-byte envelope every UDP datagram carries.
// Layout: version(1) reserved(1) seq(1) class(1).
type rmcpHeader struct {
	Version  byte
	Reserved byte
	Sequence byte
	Class    byte
}

func parseRMCPHeader(b []byte) (rmcpHeader, []byte, error) {
	if len(b) < 4 {
		return rmcpHeader{}, nil, errShortPacket
	}
	h := rmcpHeader{Version: b[0], Reserved: b[1], Sequence: b[2], Class: b[3]}
	if h.Version != rmcpVersion1_0 {
		return h, nil, errBadRMCP
	}
	if h.Class != rmcpClassIPMI && h.Class != rmcpClassASF {
		return h, nil, errBadRMCP
	}
	return h, b[4:], nil
}

func writeRMCPHeader(class byte) []byte {
	return []byte{rmcpVersion1_0, 0xFF, 0xFF, class}
}

// sessionHeader is the IPMI 2.0/RMCP+ session header that follows the RMCP
// envelope. AuthType is always 0x06 ("RMCP+"/IPMI 2.0) for this bridge.
type sessionHeader struct {
	AuthType        byte
	PayloadType     byte // low 6 bits; top 2 bits are encrypted/authenticated flags
	Encrypted       bool
	Authenticated   bool
	SessionID       uint32
	SessionSeq      uint32
	PayloadLength   uint16
}

const authTypeRMCPPlus = 0x06

func parseSessionHeader(b []byte) (sessionHeader, []byte, error) {
	if len(b) < 1 {
		return sessionHeader{}, nil, errShortPacket
	}
	h := sessionHeader{AuthType: b[0]}
	b = b[1:]

	if h.AuthType != authTypeRMCPPlus {
		return h, nil, errors.New("ipmi: unsupported auth type, 2.0 required")
	}
	if len(b) < 1 {
		return h, nil, errShortPacket
	}
	h.PayloadType = b[0] & 0x3F
	h.Encrypted = b[0]&0x80 != 0
	h.Authenticated = b[0]&0x40 != 0
	b = b[1:]

	if len(b) < 4 {
		return h, nil, errShortPacket
	}
	h.SessionID = binary.LittleEndian.Uint32(b[0:4])
	b = b[4:]

	if len(b) < 4 {
		return h, nil, errShortPacket
	}
	h.SessionSeq = binary.LittleEndian.Uint32(b[0:4])
	b = b[4:]

	if len(b) < 2 {
		return h, nil, errShortPacket
	}
	h.PayloadLength = binary.LittleEndian.Uint16(b[0:2])
	b = b[2:]

	if len(b) < int(h.PayloadLength) {
		return h, nil, errShortPacket
	}
	payload := b[:h.PayloadLength]
	return h, payload, nil
}

func writeSessionHeader(h sessionHeader, payload []byte) []byte {
	flags := h.PayloadType & 0x3F
	if h.Encrypted {
		flags |= 0x80
	}
	if h.Authenticated {
		flags |= 0x40
	}

	out := make([]byte, 0, 12+len(payload))
	out = append(out, h.AuthType, flags)
	var sid, seq [4]byte
	binary.LittleEndian.PutUint32(sid[:], h.SessionID)
	binary.LittleEndian.PutUint32(seq[:], h.SessionSeq)
	out = append(out, sid[:]...)
	out = append(out, seq[:]...)
	var length [2]byte
	binary.LittleEndian.PutUint16(length[:], uint16(len(payload)))
	out = append(out, length[:]...)
	out = append(out, payload...)
	return out
}

// ipmiMessage is the payload carried when PayloadType == IPMI Message:
// rsAddr/netFn-LUN/checksum/rqAddr/rqSeq-LUN/cmd/data.../checksum, the
// classic IPMB framing IPMI reuses over RMCP+.
type ipmiMessage struct {
	NetFn byte
	Cmd   byte
	Data  []byte
}

// parseIPMIMessage strips the IPMB-style framing around a NetFn/Cmd/data
// request. It tolerates the simplified framing most software BMCs produce
// (rsAddr, netFn<<2|lun, checksum, rqAddr, rqSeq<<2|lun, cmd, data..., checksum).
func parseIPMIMessage(b []byte) (ipmiMessage, error) {
	if len(b) < 7 {
		return ipmiMessage{}, errShortPacket
	}
	netFnLUN := b[1]
	cmd := b[5]
	data := b[6 : len(b)-1]
	return ipmiMessage{NetFn: netFnLUN >> 2, Cmd: cmd, Data: data}, nil
}

// buildIPMIMessage reconstructs the IPMB-framed response body for netFn/cmd
// with completion code cc and the command's response data.
func buildIPMIMessage(rsAddr, netFn, rqAddr, rqSeq, cmd, cc byte, data []byte) []byte {
	out := make([]byte, 0, 7+len(data))
	out = append(out, rsAddr, (netFn<<2)|0)
	out = append(out, checksum(out))
	out = append(out, rqAddr, (rqSeq<<2)|0, cmd, cc)
	out = append(out, data...)
	out = append(out, checksum(out[3:]))
	return out
}

func checksum(b []byte) byte {
	var sum byte
	for _, v := range b {
		sum += v
	}
	return -sum
}
