// Copyright (C) The Arvados Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package dss

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	check "gopkg.in/check.v1"
)

var _ = check.Suite(&startSuite{})

type startSuite struct{}

func (s *startSuite) TestDecodeStartResult(c *check.C) {
	sr, err := DecodeStartResult([]byte(`{"result":{"value":7}}`))
	c.Assert(err, check.IsNil)
	c.Check(sr.Kind, check.Equals, StartImmediate)
	c.Check(string(sr.Result), check.Equals, `{"value":7}`)
	c.Check(sr.State, check.IsNil)

	sr, err = DecodeStartResult([]byte(`{"jobId":"j1","hasResult":false,"alive":true,"jobDisplayName":"Build"}`))
	c.Assert(err, check.IsNil)
	c.Check(sr.Kind, check.Equals, StartPending)
	c.Check(sr.JobID, check.Equals, "j1")
	c.Assert(sr.State, check.NotNil)
	c.Check(sr.State.Alive, check.Equals, true)
	c.Check(sr.State.JobDisplayName, check.Equals, "Build")

	// An empty job id means the operation already finished.
	sr, err = DecodeStartResult([]byte(`{"jobId":"","result":[1,2]}`))
	c.Assert(err, check.IsNil)
	c.Check(sr.Kind, check.Equals, StartImmediate)
	c.Check(string(sr.Result), check.Equals, `[1,2]`)

	_, err = DecodeStartResult([]byte(`not json`))
	c.Check(err, check.ErrorMatches, `(?s)decoding start response: .*`)

	c.Check(StartImmediate.String(), check.Equals, "immediate")
	c.Check(StartPending.String(), check.Equals, "pending")
	c.Check(StartKind(5).String(), check.Equals, "StartKind(5)")
}

func (s *startSuite) TestImmediate(c *check.C) {
	stub := &stubTransport{}
	client := stubClient(stub)
	v, err := StartAndWait[int](context.Background(), client, []byte(`{"result":{"value":7}}`), valueOf)
	c.Check(err, check.IsNil)
	c.Check(v, check.Equals, 7)
	c.Check(stub.Requests, check.HasLen, 0)

	sr, err := DecodeStartResult([]byte(`{"result":{"value":7}}`))
	c.Assert(err, check.IsNil)
	f := StartFuture[int](client, sr, valueOf)
	c.Check(f.JobID(), check.Equals, "")
	ok, err := f.HasResult(context.Background())
	c.Check(err, check.IsNil)
	c.Check(ok, check.Equals, true)
	v, err = f.GetResult(context.Background())
	c.Check(err, check.IsNil)
	c.Check(v, check.Equals, 7)
	c.Check(stub.Requests, check.HasLen, 0)
}

func (s *startSuite) TestPending(c *check.C) {
	jt := &jobTransport{jobID: "job1", states: []string{notReady, ready42}}
	client := stubClient(jt)
	var slept int
	sr, err := DecodeStartResult([]byte(`{"jobId":"job1","hasResult":false,"alive":true}`))
	c.Assert(err, check.IsNil)
	f := StartFuture[int](client, sr, valueOf)
	c.Check(f.JobID(), check.Equals, "job1")
	c.Check(f.StateIsPeek(), check.Equals, true)
	f.sleep = func(ctx context.Context, _ time.Duration) error {
		slept++
		return nil
	}
	v, err := f.WaitForResult(context.Background())
	c.Check(err, check.IsNil)
	c.Check(v, check.Equals, 42)
	c.Check(slept, check.Equals, 1)
	full, _, _ := jt.counts()
	c.Check(full, check.Equals, 2)
}

// The start response of a job that finished quickly says hasResult
// but doesn't carry the result.
func (s *startSuite) TestPendingAlreadyDone(c *check.C) {
	jt := &jobTransport{jobID: "job1", states: []string{ready42}}
	client := stubClient(jt)
	v, err := StartAndWait[int](context.Background(), client, []byte(`{"jobId":"job1","hasResult":true}`), valueOf)
	c.Check(err, check.IsNil)
	c.Check(v, check.Equals, 42)
	full, _, _ := jt.counts()
	c.Check(full, check.Equals, 1)
}

func (s *startSuite) TestPerformStart(c *check.C) {
	stub := &stubTransport{Responses: map[string]stubResponse{
		"/public/api/projects/P/scenarios/S/run/": {200, `{"jobId":"run-1","hasResult":false}`},
	}}
	sr, err := stubClient(stub).PerformStart(context.Background(), "POST", "/projects/P/scenarios/S/run/", &Request{Body: json.RawMessage(`{}`)})
	c.Assert(err, check.IsNil)
	c.Check(sr.Kind, check.Equals, StartPending)
	c.Check(sr.JobID, check.Equals, "run-1")

	_, err = stubClient(stub).PerformStart(context.Background(), "POST", "/missing", nil)
	c.Check(err, check.ErrorMatches, `NotFound: .*`)
}
