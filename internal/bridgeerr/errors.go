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

// Package bridgeerr defines the internal error taxonomy shared by the
// vSphere adapter, the IPMI engine, and the Redfish server so every listener
// boundary can apply the same propagation policy.
package bridgeerr

import "errors"

// Sentinel kinds. Wrap these with fmt.Errorf("...: %w", ErrX) at the call
// site; callers identify a kind with errors.Is.
var (
	ErrConfigInvalid       = errors.New("config invalid")
	ErrBindFailed          = errors.New("bind failed")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrProtocolMalformed   = errors.New("protocol malformed")
	ErrAuthRejected        = errors.New("auth rejected")
	ErrNotFound            = errors.New("not found")
	ErrMethodNotAllowed    = errors.New("method not allowed")
	ErrConflict            = errors.New("conflict")
	ErrInternal            = errors.New("internal error")
)

// IsUpstreamUnavailable reports whether err (or anything it wraps) is a
// vSphere adapter soft-failure that callers must never surface as a hard
// error on a read path.
func IsUpstreamUnavailable(err error) bool {
	return errors.Is(err, ErrUpstreamUnavailable)
}
