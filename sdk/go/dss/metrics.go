// Copyright (C) The Arvados Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package dss

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects request and polling statistics for one or more
// Clients.
type Metrics struct {
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	polls           *prometheus.CounterVec
	waitDuration    prometheus.Histogram
}

// NewMetrics returns a Metrics whose collectors are registered with
// reg. If reg is nil, a new private registry is used.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dss",
			Subsystem: "client",
			Name:      "requests_total",
			Help:      "Number of API requests, by method and response code.",
		}, []string{"method", "code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "dss",
			Subsystem: "client",
			Name:      "request_duration_seconds",
			Help:      "Time until response headers were received.",
			Buckets:   []float64{.005, .01, .05, .1, .5, 1, 5, 10, 60},
		}, []string{"method"}),
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dss",
			Subsystem: "future",
			Name:      "polls_total",
			Help:      "Number of future state fetches, by mode (peek or full).",
		}, []string{"mode"}),
		waitDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "dss",
			Subsystem: "future",
			Name:      "wait_seconds",
			Help:      "Time spent in WaitForResult calls that polled the server.",
			Buckets:   []float64{.1, 1, 10, 60, 600, 3600},
		}),
	}
	reg.MustRegister(m.requests, m.requestDuration, m.polls, m.waitDuration)
	return m
}

func (m *Metrics) observeRequest(method string, code int, elapsed time.Duration) {
	if m == nil {
		return
	}
	label := "error"
	if code > 0 {
		label = strconv.Itoa(code)
	}
	m.requests.WithLabelValues(method, label).Inc()
	m.requestDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}

func (m *Metrics) observePoll(peek bool) {
	if m == nil {
		return
	}
	mode := "full"
	if peek {
		mode = "peek"
	}
	m.polls.WithLabelValues(mode).Inc()
}

func (m *Metrics) observeWait(elapsed time.Duration) {
	if m == nil {
		return
	}
	m.waitDuration.Observe(elapsed.Seconds())
}
