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

// Package metrics exposes Prometheus instrumentation for the vSphere
// adapter, the IPMI dispatcher, and the Redfish server.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Operation labels used across vsphereCalls/vsphereRetries.
const (
	OpPowerOn       = "power_on"
	OpPowerOff      = "power_off"
	OpReset         = "reset"
	OpShutdownGuest = "shutdown_guest"
	OpRebootGuest   = "reboot_guest"
	OpGetPowerState = "get_power_state"
	OpSetBootOrder  = "set_boot_order"
	OpMountISO      = "mount_iso"
	OpUnmountISO    = "unmount_iso"
	OpGetInventory  = "get_inventory"
)

var (
	vsphereCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bmcbridge_vsphere_calls_total",
		Help: "vSphere adapter operations by name and outcome.",
	}, []string{"op", "outcome"})

	vsphereCallDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bmcbridge_vsphere_call_duration_seconds",
		Help:    "vSphere adapter operation latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})

	vsphereRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bmcbridge_vsphere_retries_total",
		Help: "vSphere adapter retry attempts by operation.",
	}, []string{"op"})

	ipmiCommands = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bmcbridge_ipmi_commands_total",
		Help: "IPMI commands dispatched by netfn/cmd and completion code.",
	}, []string{"netfn_cmd", "completion"})

	redfishRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bmcbridge_redfish_requests_total",
		Help: "Redfish HTTP requests by route and status class.",
	}, []string{"route", "status"})

	redfishRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bmcbridge_redfish_request_duration_seconds",
		Help:    "Redfish HTTP request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})

	tasksCompleted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bmcbridge_tasks_completed_total",
		Help: "Redfish tasks completed by task status (OK/Warning).",
	}, []string{"status"})
)

func init() {
	prometheus.MustRegister(
		vsphereCalls,
		vsphereCallDuration,
		vsphereRetries,
		ipmiCommands,
		redfishRequests,
		redfishRequestDuration,
		tasksCompleted,
	)
}

// Handler returns the /metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveVsphereCall records the outcome and duration of one adapter call.
func ObserveVsphereCall(op string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	vsphereCalls.WithLabelValues(op, outcome).Inc()
	vsphereCallDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// IncVsphereRetry records one retry attempt for op.
func IncVsphereRetry(op string) {
	vsphereRetries.WithLabelValues(op).Inc()
}

// ObserveIPMICommand records one dispatched IPMI command.
func ObserveIPMICommand(netfnCmd string, completion byte) {
	ipmiCommands.WithLabelValues(netfnCmd, completionLabel(completion)).Inc()
}

func completionLabel(cc byte) string {
	switch cc {
	case 0x00:
		return "success"
	case 0xC1:
		return "invalid_command"
	case 0xC7:
		return "invalid_length"
	case 0xCC:
		return "invalid_data"
	default:
		return "other"
	}
}

// ObserveRedfishRequest records one completed HTTP request.
func ObserveRedfishRequest(route string, status int, start time.Time) {
	redfishRequests.WithLabelValues(route, statusClass(status)).Inc()
	redfishRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
}

func statusClass(status int) string {
	switch {
	case status < 300:
		return "2xx"
	case status < 400:
		return "3xx"
	case status < 500:
		return "4xx"
	default:
		return "5xx"
	}
}

// IncTaskCompleted records a task reaching a terminal state.
func IncTaskCompleted(status string) {
	tasksCompleted.WithLabelValues(status).Inc()
}
