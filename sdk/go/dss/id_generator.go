// Copyright (C) The Arvados Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package dss

import (
	"math/rand/v2"
	"strconv"
	"sync"
	"time"
)

// IDGenerator generates X-Request-Id values of the form
// {Prefix}{timestamp}{random}, all lowercase alphanumeric. IDs from
// one IDGenerator sort by creation time and never repeat.
type IDGenerator struct {
	Prefix string

	mtx  sync.Mutex
	last int64
}

// Next returns a new ID. It is safe to call from multiple goroutines.
func (g *IDGenerator) Next() string {
	g.mtx.Lock()
	t := time.Now().UnixMilli()
	if t <= g.last {
		t = g.last + 1
	}
	g.last = t
	g.mtx.Unlock()
	// 4 random base-36 digits distinguish processes that start
	// requests in the same millisecond.
	suffix := strconv.FormatInt(36*36*36+rand.Int64N(35*36*36*36), 36)
	return g.Prefix + strconv.FormatInt(t, 36) + suffix
}
