// Copyright (C) The Arvados Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package dss

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
)

// StartKind tells whether an operation finished while the server
// handled the "start" request, or is still running.
type StartKind int

const (
	// The response carries the final result.
	StartImmediate StartKind = iota
	// The response carries a job id to poll.
	StartPending
)

func (k StartKind) String() string {
	switch k {
	case StartImmediate:
		return "immediate"
	case StartPending:
		return "pending"
	default:
		return fmt.Sprintf("StartKind(%d)", int(k))
	}
}

// StartResult is the decoded response to a request that starts a
// long-running operation.
type StartResult struct {
	Kind StartKind

	// Result is set if Kind is StartImmediate.
	Result json.RawMessage

	// JobID and State are set if Kind is StartPending. State is
	// the response itself, which has the same shape as a future
	// state.
	JobID string
	State *FutureState
}

// DecodeStartResult decodes the server's response to a "start"
// request. A response with a non-empty "jobId" is StartPending;
// anything else is StartImmediate, with the "result" field (if any)
// as its result.
func DecodeStartResult(raw []byte) (StartResult, error) {
	var probe struct {
		JobID  string          `json:"jobId"`
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return StartResult{}, fmt.Errorf("decoding start response: %w", err)
	}
	if probe.JobID == "" {
		return StartResult{Kind: StartImmediate, Result: probe.Result}, nil
	}
	var st FutureState
	if err := json.Unmarshal(raw, &st); err != nil {
		return StartResult{}, fmt.Errorf("decoding start response: %w", err)
	}
	return StartResult{Kind: StartPending, JobID: probe.JobID, State: &st}, nil
}

// PerformStart performs an API call that starts a long-running
// operation, and decodes the response with DecodeStartResult.
func (c *Client) PerformStart(ctx context.Context, method, path string, req *Request) (StartResult, error) {
	var raw json.RawMessage
	if err := c.PerformJSON(ctx, &raw, method, path, req); err != nil {
		return StartResult{}, err
	}
	return DecodeStartResult(raw)
}

// StartFuture returns a Future that tracks the started operation. For
// a StartImmediate result, the returned Future already has its result
// and never contacts the server.
//
// For a StartPending result, the start response is kept as a peek
// state: the server does not include the result in it, so the
// Future fetches the full state before returning a result.
func StartFuture[T any](c *Client, sr StartResult, wrap ResultWrapper[T]) *Future[T] {
	if sr.Kind == StartImmediate {
		return NewFuture[T](c, "", &FutureState{HasResult: true, Result: sr.Result}, wrap)
	}
	f := NewFuture[T](c, sr.JobID, sr.State, wrap)
	f.statePeek = true
	return f
}

// StartAndWait returns the result of a started operation, waiting for
// it if necessary. raw is the server's response to the "start"
// request.
func StartAndWait[T any](ctx context.Context, c *Client, raw []byte, wrap ResultWrapper[T]) (T, error) {
	sr, err := DecodeStartResult(raw)
	if err != nil {
		var zero T
		return zero, err
	}
	return StartFuture[T](c, sr, wrap).WaitForResult(ctx)
}
