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
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"encoding/binary"
)

// Privilege levels, spec.md §4.2/§4.3.
const (
	PrivilegeUser          = 0x02
	PrivilegeOperator      = 0x03
	PrivilegeAdministrator = 0x04
)

// openSessionRequest is the pre-session payload that proposes a session ID
// and requested privilege/cipher suite.
type openSessionRequest struct {
	RequestedPrivilege byte
	ConsoleSessionID   uint32
}

func parseOpenSessionRequest(b []byte) (openSessionRequest, error) {
	if len(b) < 8 {
		return openSessionRequest{}, errShortPacket
	}
	return openSessionRequest{
		RequestedPrivilege: b[0] & 0x0F,
		ConsoleSessionID:   binary.LittleEndian.Uint32(b[4:8]),
	}, nil
}

// buildOpenSessionResponse advertises RAKP-HMAC-SHA1 authentication and
// HMAC-SHA1-96 integrity with no confidentiality algorithm, the only suite
// this bridge negotiates; AES-CBC-128 is never offered.
func buildOpenSessionResponse(statusCode byte, consoleID, managedID uint32) []byte {
	out := make([]byte, 36)
	out[0] = statusCode
	out[1] = PrivilegeAdministrator
	out[2] = 0
	out[3] = 0
	binary.LittleEndian.PutUint32(out[4:8], consoleID)
	binary.LittleEndian.PutUint32(out[8:12], managedID)
	// Authentication payload (type 0), integrity payload (type 1), confidentiality (type 2),
	// each: type tag(1) reserved(2) payload-len(1) algorithm(1) reserved(3)
	copy(out[12:20], []byte{0x00, 0x00, 0x00, 0x08, 0x01, 0x00, 0x00, 0x00}) // RAKP-HMAC-SHA1
	copy(out[20:28], []byte{0x01, 0x00, 0x00, 0x08, 0x01, 0x00, 0x00, 0x00}) // HMAC-SHA1-96
	copy(out[28:36], []byte{0x02, 0x00, 0x00, 0x08, 0x00, 0x00, 0x00, 0x00}) // confidentiality none
	return out
}

// rakp1 is the console's RAKP Message 1.
type rakp1 struct {
	ManagedSessionID uint32
	ConsoleRandom    [16]byte
	Privilege        byte
	UsernameLength   byte
	Username         string
}

func parseRAKP1(b []byte) (rakp1, error) {
	if len(b) < 28 {
		return rakp1{}, errShortPacket
	}
	var r rakp1
	r.ManagedSessionID = binary.LittleEndian.Uint32(b[0:4])
	copy(r.ConsoleRandom[:], b[4:20])
	r.Privilege = b[20] & 0x0F
	r.UsernameLength = b[27]
	if len(b) < 28+int(r.UsernameLength) {
		return rakp1{}, errShortPacket
	}
	r.Username = string(b[28 : 28+int(r.UsernameLength)])
	return r, nil
}

// rakpKeyMaterial holds everything derived once RAKP3's HMAC has been
// validated: SIK and the integrity/confidentiality keys derived from it.
type rakpKeyMaterial struct {
	SIK [20]byte
	K1  [20]byte
	K2  [20]byte
}

// deriveKeys computes SIK = HMAC-SHA1(password, consoleRandom || managedRandom || role || usernameLen || username)
// and K1/K2 = HMAC-SHA1(SIK, 0x01.."/0x02..), per spec.md §4.2.
func deriveKeys(password string, consoleRandom, managedRandom [16]byte, role byte, username string) rakpKeyMaterial {
	mac := hmac.New(sha1.New, []byte(password))
	mac.Write(consoleRandom[:])
	mac.Write(managedRandom[:])
	mac.Write([]byte{role})
	mac.Write([]byte{byte(len(username))})
	mac.Write([]byte(username))
	sik := mac.Sum(nil)

	var km rakpKeyMaterial
	copy(km.SIK[:], sik)

	k1mac := hmac.New(sha1.New, km.SIK[:])
	k1mac.Write(bytesRepeat(0x01, 20))
	copy(km.K1[:], k1mac.Sum(nil))

	k2mac := hmac.New(sha1.New, km.SIK[:])
	k2mac.Write(bytesRepeat(0x02, 20))
	copy(km.K2[:], k2mac.Sum(nil))

	return km
}

func bytesRepeat(b byte, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = b
	}
	return out
}

// rakp2HMAC computes the managed-system's RAKP2 authentication code over
// (consoleSessID || managedSessID || consoleRandom || managedRandom || managedGUID || role || usernameLen || username).
func rakp2HMAC(password string, consoleSessID, managedSessID uint32, consoleRandom, managedRandom [16]byte, managedGUID [16]byte, role byte, username string) []byte {
	mac := hmac.New(sha1.New, []byte(password))
	var ids [8]byte
	binary.LittleEndian.PutUint32(ids[0:4], consoleSessID)
	binary.LittleEndian.PutUint32(ids[4:8], managedSessID)
	mac.Write(ids[:])
	mac.Write(consoleRandom[:])
	mac.Write(managedRandom[:])
	mac.Write(managedGUID[:])
	mac.Write([]byte{role})
	mac.Write([]byte{byte(len(username))})
	mac.Write([]byte(username))
	return mac.Sum(nil)
}

// rakp3HMAC computes the expected RAKP3 authentication code the console
// must present: HMAC(password, managedRandom || consoleSessID || role || usernameLen || username).
func rakp3HMAC(password string, managedRandom [16]byte, consoleSessID uint32, role byte, username string) []byte {
	mac := hmac.New(sha1.New, []byte(password))
	mac.Write(managedRandom[:])
	var sid [4]byte
	binary.LittleEndian.PutUint32(sid[:], consoleSessID)
	mac.Write(sid[:])
	mac.Write([]byte{role})
	mac.Write([]byte{byte(len(username))})
	mac.Write([]byte(username))
	return mac.Sum(nil)
}

// rakp4HMAC computes the managed-system's RAKP4 integrity check:
// HMAC(SIK, consoleRandom || managedSessID || managedGUID), truncated per
// the negotiated integrity algorithm (HMAC-SHA1-96: first 12 bytes).
func rakp4HMAC(sik [20]byte, consoleRandom [16]byte, managedSessID uint32, managedGUID [16]byte) []byte {
	mac := hmac.New(sha1.New, sik[:])
	mac.Write(consoleRandom[:])
	var sid [4]byte
	binary.LittleEndian.PutUint32(sid[:], managedSessID)
	mac.Write(sid[:])
	mac.Write(managedGUID[:])
	sum := mac.Sum(nil)
	return sum[:12]
}

func randomBytes16() [16]byte {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return b
}

// authCodeHMAC computes the HMAC-SHA1-96 AuthCode over an authenticated
// packet's session header + payload, keyed on K1.
func authCodeHMAC(k1 [20]byte, data []byte) []byte {
	mac := hmac.New(sha1.New, k1[:])
	mac.Write(data)
	sum := mac.Sum(nil)
	return sum[:12]
}
