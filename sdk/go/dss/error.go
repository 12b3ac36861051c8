// Copyright (C) The Arvados Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package dss

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/goccy/go-json"
)

const (
	unknownErrorType = "Unknown error"
	noMessage        = "No message"
)

var (
	// ErrNoHost is returned by the Perform methods when the Client
	// has no Host.
	ErrNoHost = errors.New("dss.Client cannot perform request: Host is not set")

	// ErrNoJobID is returned when a Future with an empty job ID
	// needs to contact the server.
	ErrNoJobID = errors.New("future has no job id")

	// ErrResultNotReady is returned by (*Future)GetResult when the
	// server has not reported a result yet.
	ErrResultNotReady = errors.New("result not ready")

	// ErrNoResult is returned by (*Future)WaitForResult if polling
	// stops without the server ever reporting a result.
	ErrNoResult = errors.New("no result")
)

// Error is returned by the Perform methods when the server responds
// with a non-2xx status.
//
// ErrorType and Message are taken from the JSON error object in the
// response body. If the body is not a JSON object, ErrorType is
// "Unknown error" and Message is the raw response text.
type Error struct {
	Method     string
	URL        url.URL
	StatusCode int
	Status     string

	ErrorType       string
	Message         string
	DetailedMessage string
}

func (e *Error) Error() string {
	return e.ErrorType + ": " + e.Message
}

// HTTPStatus returns the HTTP status code of the failed response.
func (e *Error) HTTPStatus() int {
	return e.StatusCode
}

// IsErrorType returns true if err is (or wraps) an *Error with the
// given ErrorType.
func IsErrorType(err error, errorType string) bool {
	var e *Error
	return errors.As(err, &e) && e.ErrorType == errorType
}

// serverErrorBody is the JSON error object sent by the server.
type serverErrorBody struct {
	ErrorType       *string `json:"errorType"`
	Message         *string `json:"message"`
	DetailedMessage string  `json:"detailedMessage"`
}

func newError(req *http.Request, resp *http.Response, buf []byte) *Error {
	e := &Error{
		Method:     req.Method,
		URL:        *req.URL,
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		ErrorType:  unknownErrorType,
	}
	var body serverErrorBody
	trimmed := bytes.TrimSpace(buf)
	if len(trimmed) == 0 || trimmed[0] != '{' || json.Unmarshal(trimmed, &body) != nil {
		// Not a JSON object.
		e.Message = string(buf)
		return e
	}
	if body.ErrorType != nil {
		e.ErrorType = *body.ErrorType
	}
	if body.Message != nil {
		e.Message = *body.Message
	} else {
		e.Message = noMessage
	}
	e.DetailedMessage = body.DetailedMessage
	return e
}

// ErrorDetail is the failure information a server attaches to the
// state of a job that ended in error.
type ErrorDetail struct {
	ErrorType       string `json:"errorType"`
	Message         string `json:"message"`
	DetailedMessage string `json:"detailedMessage,omitempty"`
}

// FutureFailedError is returned when the server reports that a job
// finished (or was aborted) without producing a result.
type FutureFailedError struct {
	JobID   string
	Aborted bool
	Detail  *ErrorDetail
}

func (e *FutureFailedError) Error() string {
	switch {
	case e.Detail != nil:
		return fmt.Sprintf("job %s failed: %s: %s", e.JobID, e.Detail.ErrorType, e.Detail.Message)
	case e.Aborted:
		return fmt.Sprintf("job %s was aborted", e.JobID)
	default:
		return fmt.Sprintf("job %s failed", e.JobID)
	}
}
