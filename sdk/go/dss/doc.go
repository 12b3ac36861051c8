// Copyright (C) The Arvados Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

// Package dss is a client library for the public REST API of a Data
// Science Studio (DSS) server.
//
// A Client carries the server endpoint and credentials, and performs
// each API call as exactly one HTTP round trip. Non-2xx responses are
// returned as *Error values.
//
// Long-running server operations are represented by a Future, which
// polls the server's futures endpoint until the operation's result
// is available. StartAndWait covers the common "start an operation,
// then block until it finishes" pattern.
package dss
