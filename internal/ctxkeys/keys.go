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

// Package ctxkeys centralizes typed context keys so unrelated packages never
// collide on a bare string or int key.
package ctxkeys

type contextKey int

const (
	// CorrelationID keys the per-request/per-session trace ID in a context.Context.
	CorrelationID contextKey = iota
	// Principal keys the authenticated Redfish caller (username) in a context.Context.
	Principal
	// VMName keys the target ManagedVM name a request resolved to.
	VMName
)
