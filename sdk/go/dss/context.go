// Copyright (C) The Arvados Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package dss

import (
	"context"
)

type contextKeyRequestID struct{}

// ContextWithRequestID returns a child context that (when used with
// any of the Client's Perform methods) sends the given X-Request-Id
// value instead of a generated one.
func ContextWithRequestID(ctx context.Context, reqid string) context.Context {
	return context.WithValue(ctx, contextKeyRequestID{}, reqid)
}
