// Copyright (C) The Arvados Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package dss

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Default polling schedule for WaitForResult: the first delay is
// DefaultPollMinWait, and each subsequent delay doubles until it
// reaches DefaultPollMaxWait.
var (
	DefaultPollMinWait = 500 * time.Millisecond
	DefaultPollMaxWait = 30 * time.Second
)

// FutureState is the server's report on a long-running job, as
// returned by the futures endpoint.
type FutureState struct {
	JobID          string `json:"jobId"`
	JobDisplayName string `json:"jobDisplayName,omitempty"`

	HasResult bool `json:"hasResult"`
	Aborted   bool `json:"aborted"`
	Alive     bool `json:"alive"`

	// Only present in a full (non-peek) state of a completed
	// job.
	Result json.RawMessage `json:"result,omitempty"`

	Progress json.RawMessage `json:"progress,omitempty"`

	// Milliseconds since epoch / milliseconds.
	StartTime   int64 `json:"startTime,omitempty"`
	RunningTime int64 `json:"runningTime,omitempty"`

	Error *ErrorDetail `json:"error,omitempty"`
}

// failed returns true if the job has ended without a result.
func (st *FutureState) failed() bool {
	return st != nil && !st.HasResult && (st.Aborted || st.Error != nil)
}

// ResultWrapper converts the raw result of a job into the value
// returned to the caller.
type ResultWrapper[T any] func(json.RawMessage) (T, error)

// DecodeResult is the default ResultWrapper. It unmarshals the result
// into a T. A missing result decodes to the zero value.
func DecodeResult[T any](raw json.RawMessage) (T, error) {
	var v T
	if len(raw) == 0 {
		return v, nil
	}
	err := json.Unmarshal(raw, &v)
	return v, err
}

// A Future tracks one long-running job on the server.
//
// A Future is not safe for concurrent use. Futures for different
// jobs are independent and can be used in separate goroutines.
type Future[T any] struct {
	// Backoff returns the delay before the next state fetch,
	// given the number of "not ready" fetches so far (starting
	// at 0). The default is retryablehttp.DefaultBackoff, which
	// doubles from MinWait up to MaxWait.
	Backoff retryablehttp.Backoff
	MinWait time.Duration
	MaxWait time.Duration

	client    *Client
	jobID     string
	state     *FutureState
	statePeek bool
	wrap      ResultWrapper[T]
	sleep     func(context.Context, time.Duration) error
}

// NewFuture returns a Future for the given job. If state is not nil,
// it is used as the Future's initial (full) state: in particular, if
// state.HasResult is true, the result is available without contacting
// the server. If wrap is nil, DecodeResult[T] is used.
func NewFuture[T any](client *Client, jobID string, state *FutureState, wrap ResultWrapper[T]) *Future[T] {
	if wrap == nil {
		wrap = DecodeResult[T]
	}
	return &Future[T]{
		Backoff: retryablehttp.DefaultBackoff,
		MinWait: DefaultPollMinWait,
		MaxWait: DefaultPollMaxWait,
		client:  client,
		jobID:   jobID,
		state:   state,
		wrap:    wrap,
		sleep:   sleepContext,
	}
}

// JobID returns the job identifier assigned by the server.
func (f *Future[T]) JobID() string {
	return f.jobID
}

// State returns the most recently fetched state, or nil.
func (f *Future[T]) State() *FutureState {
	return f.state
}

// StateIsPeek returns true if State() came from PeekState, in which
// case it might lack the result even if the job is done.
func (f *Future[T]) StateIsPeek() bool {
	return f.statePeek
}

// Abort asks the server to cancel the job. It does not wait for the
// job to stop, and it does not change the Future's state.
func (f *Future[T]) Abort(ctx context.Context) error {
	if f.jobID == "" {
		return ErrNoJobID
	}
	return f.client.PerformEmpty(ctx, http.MethodPost, f.path()+"/abort", nil)
}

// PeekState fetches the job's state without its result.
func (f *Future[T]) PeekState(ctx context.Context) (*FutureState, error) {
	return f.fetch(ctx, true)
}

// GetState fetches the job's state, including the result if the job
// is done.
func (f *Future[T]) GetState(ctx context.Context) (*FutureState, error) {
	return f.fetch(ctx, false)
}

func (f *Future[T]) fetch(ctx context.Context, peek bool) (*FutureState, error) {
	if f.jobID == "" {
		return nil, ErrNoJobID
	}
	var st FutureState
	err := f.client.PerformJSON(ctx, &st, http.MethodGet, f.path(), &Request{
		Params: url.Values{"peek": {strconv.FormatBool(peek)}},
	})
	f.client.Metrics.observePoll(peek)
	if err != nil {
		return nil, err
	}
	f.state = &st
	f.statePeek = peek
	return &st, nil
}

// HasResult returns true if the job's result is available. A cached
// "ready" state is trusted; otherwise the full state is fetched.
func (f *Future[T]) HasResult(ctx context.Context) (bool, error) {
	if f.state != nil && f.state.HasResult {
		return true, nil
	}
	st, err := f.GetState(ctx)
	if err != nil {
		return false, err
	}
	return st.HasResult, nil
}

// GetResult returns the job's result without waiting. It fetches the
// full state unless the cached full state already has the result.
//
// If the job is still running, GetResult returns ErrResultNotReady.
// If the job ended without a result, it returns a
// *FutureFailedError.
func (f *Future[T]) GetResult(ctx context.Context) (T, error) {
	var zero T
	if f.state == nil || !f.state.HasResult || f.statePeek {
		if _, err := f.GetState(ctx); err != nil {
			return zero, err
		}
	}
	if f.state.HasResult {
		return f.wrap(f.state.Result)
	}
	if f.state.failed() {
		return zero, f.failure()
	}
	return zero, ErrResultNotReady
}

// WaitForResult returns the job's result, polling the server until
// the result is available.
//
// If the Future already holds a full state with the result (from
// NewFuture or an earlier fetch), no request is made. A state from
// PeekState never has the result, so even a "ready" peek is followed
// by one full fetch.
//
// Delays between fetches follow f.Backoff. Errors from the server
// are returned immediately, without retrying. WaitForResult returns
// a *FutureFailedError if the server reports that the job was
// aborted or failed, and ctx.Err() if ctx is canceled while waiting.
// There is no other timeout.
func (f *Future[T]) WaitForResult(ctx context.Context) (T, error) {
	var zero T
	if f.state != nil && f.state.HasResult && !f.statePeek {
		return f.wrap(f.state.Result)
	}

	ctx, span := tracer.Start(ctx, "dss.future.wait",
		trace.WithAttributes(attribute.String("dss.job_id", f.jobID)))
	defer span.End()
	t0 := time.Now()
	defer func() { f.client.Metrics.observeWait(time.Since(t0)) }()
	logger := f.client.logger(ctx).WithField("JobID", f.jobID)

	if _, err := f.GetState(ctx); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return zero, err
	}
	for attempt := 0; !f.state.HasResult; attempt++ {
		if f.state.failed() {
			err := f.failure()
			span.SetStatus(codes.Error, err.Error())
			return zero, err
		}
		delay := f.Backoff(f.MinWait, f.MaxWait, attempt, nil)
		logger.WithFields(logrus.Fields{
			"Attempt": attempt,
			"Delay":   delay,
		}).Debug("job not done, waiting")
		if err := f.sleep(ctx, delay); err != nil {
			span.SetStatus(codes.Error, err.Error())
			return zero, err
		}
		if _, err := f.GetState(ctx); err != nil {
			span.SetStatus(codes.Error, err.Error())
			return zero, err
		}
	}
	if !f.state.HasResult {
		return zero, ErrNoResult
	}
	span.SetAttributes(attribute.Int64("dss.running_time_ms", f.state.RunningTime))
	logger.Debug("job done")
	return f.wrap(f.state.Result)
}

func (f *Future[T]) failure() error {
	return &FutureFailedError{
		JobID:   f.jobID,
		Aborted: f.state.Aborted,
		Detail:  f.state.Error,
	}
}

func (f *Future[T]) path() string {
	return "/futures/" + url.PathEscape(f.jobID)
}

// sleepContext waits for d, or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ListFutures returns the states of the jobs running on the server
// that are visible to the current user (or to all users, if allUsers
// is true and the caller is an administrator).
func (c *Client) ListFutures(ctx context.Context, allUsers bool) ([]FutureState, error) {
	var states []FutureState
	err := c.PerformJSON(ctx, &states, http.MethodGet, "/futures/", &Request{
		Params: url.Values{
			"allUsers":         {strconv.FormatBool(allUsers)},
			"withScenarios":    {"true"},
			"withNotScenarios": {"true"},
		},
	})
	return states, err
}

// GetFuture returns a Future for a job started earlier, e.g., one
// found with ListFutures.
func GetFuture[T any](c *Client, jobID string, wrap ResultWrapper[T]) *Future[T] {
	return NewFuture[T](c, jobID, nil, wrap)
}
