// Copyright (C) The Arvados Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package dss_test

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/dss-sdk/dss-go/sdk/go/ctxlog"
	"github.com/dss-sdk/dss-go/sdk/go/dss"
	"github.com/dss-sdk/dss-go/sdk/go/dsstest"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	check "gopkg.in/check.v1"
)

var _ = check.Suite(&serverSuite{})

// serverSuite runs the client against a stub server over a real HTTP
// connection.
type serverSuite struct {
	server *dsstest.Server
	client *dss.Client
	ctx    context.Context
}

func (s *serverSuite) SetUpTest(c *check.C) {
	s.server = dsstest.NewServer()
	s.server.APIKey = "secretkey"
	s.server.Logger = ctxlog.TestLogger(c)
	s.client = s.server.DSSClient()
	s.client.Timeout = 10 * time.Second
	s.client.Metrics = dss.NewMetrics(prometheus.NewRegistry())
	s.ctx = ctxlog.Context(context.Background(), ctxlog.TestLogger(c))
}

func (s *serverSuite) TearDownTest(c *check.C) {
	s.server.Close()
}

func (s *serverSuite) TestAuth(c *check.C) {
	s.server.Handle("GET", "/projects/", http.StatusOK, `["A","B"]`)
	var keys []string
	err := s.client.PerformJSON(s.ctx, &keys, "GET", "/projects/", nil)
	c.Check(err, check.IsNil)
	c.Check(keys, check.DeepEquals, []string{"A", "B"})

	bad := *s.client
	bad.APIKey = "wrong"
	err = bad.PerformJSON(s.ctx, &keys, "GET", "/projects/", nil)
	c.Check(err, check.ErrorMatches, dsstest.ErrorTypeUnauthorized+`: Not authenticated`)
	c.Check(dss.IsErrorType(err, dsstest.ErrorTypeUnauthorized), check.Equals, true)
}

func (s *serverSuite) TestErrorFromServer(c *check.C) {
	s.server.Handle("DELETE", "/projects/X/", http.StatusInternalServerError, "Internal error\n")
	err := s.client.PerformEmpty(s.ctx, "DELETE", "/projects/X/", nil)
	c.Check(err, check.ErrorMatches, "Unknown error: Internal error\n")

	err = s.client.PerformEmpty(s.ctx, "GET", "/nonexistent", nil)
	c.Check(err, check.ErrorMatches, dsstest.ErrorTypeUnknownObject+`: No route for GET /public/api/nonexistent`)
}

func (s *serverSuite) TestRequestDetails(c *check.C) {
	s.server.Handle("POST", "/projects/", http.StatusOK, `{"msg":"created"}`)
	err := s.client.WithActAs("ticket-x").PerformEmpty(
		ctxWithRequestID(s.ctx, "req-abc"),
		"POST", "/projects/",
		&dss.Request{
			Params: map[string]interface{}{"dryRun": true},
			Body:   map[string]string{"projectKey": "NEW"},
		})
	c.Assert(err, check.IsNil)
	reqs := s.server.Requests()
	c.Assert(reqs, check.HasLen, 1)
	c.Check(reqs[0].Path, check.Equals, "/public/api/projects/")
	c.Check(reqs[0].RawQuery, check.Equals, "dryRun=true")
	c.Check(reqs[0].Header.Get(dss.ActAsHeader), check.Equals, "ticket-x")
	c.Check(reqs[0].Header.Get("X-Request-Id"), check.Equals, "req-abc")
	c.Check(reqs[0].Header.Get("Content-Type"), check.Equals, "application/json")
	c.Check(string(reqs[0].Body), check.Equals, `{"projectKey":"NEW"}`)
}

type valueResult struct {
	Value int `json:"value"`
}

func ctxWithRequestID(ctx context.Context, reqid string) context.Context {
	return dss.ContextWithRequestID(ctx, reqid)
}

func (s *serverSuite) TestUpload(c *check.C) {
	var resp struct {
		Files int `json:"files"`
	}
	err := s.client.UploadFile(s.ctx, &resp, "/projects/P/datasets/D/upload", "data.csv", strings.NewReader("a,b\n"))
	c.Assert(err, check.IsNil)
	c.Check(resp.Files, check.Equals, 1)
	ups := s.server.Uploads()
	c.Assert(ups, check.HasLen, 1)
	c.Check(ups[0], check.DeepEquals, dsstest.Upload{
		Path:  "/projects/P/datasets/D/upload",
		Field: "file",
		Name:  "data.csv",
		Data:  []byte("a,b\n"),
	})
}

func (s *serverSuite) TestWaitForResult(c *check.C) {
	job := s.server.AddJob("job-1",
		dss.FutureState{Alive: true},
		dss.FutureState{Alive: true, Progress: json.RawMessage(`{"states":[]}`)},
		dss.FutureState{HasResult: true, Result: json.RawMessage(`{"value":42}`), RunningTime: 1234})
	f := dss.GetFuture[valueResult](s.client, "job-1", nil)
	f.MinWait = time.Millisecond
	f.MaxWait = 4 * time.Millisecond

	st, err := f.PeekState(s.ctx)
	c.Assert(err, check.IsNil)
	c.Check(st.JobID, check.Equals, "job-1")
	c.Check(st.Alive, check.Equals, true)

	v, err := f.WaitForResult(s.ctx)
	c.Check(err, check.IsNil)
	c.Check(v.Value, check.Equals, 42)
	c.Check(job.FullFetches(), check.Equals, 3)
	c.Check(job.PeekFetches(), check.Equals, 1)
	c.Check(f.State().RunningTime, check.Equals, int64(1234))
}

func (s *serverSuite) TestAbort(c *check.C) {
	job := s.server.AddJob("job-2",
		dss.FutureState{Alive: true},
		dss.FutureState{Aborted: true})
	f := dss.GetFuture[int](s.client, "job-2", nil)
	f.MinWait = time.Millisecond
	c.Check(f.Abort(s.ctx), check.IsNil)
	c.Check(job.Aborts(), check.Equals, 1)
	_, err := f.WaitForResult(s.ctx)
	c.Check(err, check.ErrorMatches, `job job-2 was aborted`)

	err = dss.GetFuture[int](s.client, "no-such-job", nil).Abort(s.ctx)
	c.Check(err, check.ErrorMatches, dsstest.ErrorTypeUnknownObject+`: Future not found: no-such-job`)
}

func (s *serverSuite) TestStartAndWait(c *check.C) {
	s.server.AddJob("job-3",
		dss.FutureState{Alive: true},
		dss.FutureState{HasResult: true, Result: json.RawMessage(`"done"`)})
	s.server.Handle("POST", "/projects/P/jobs/", http.StatusOK, `{"jobId":"job-3","hasResult":false,"alive":true}`)
	sr, err := s.client.PerformStart(s.ctx, "POST", "/projects/P/jobs/", &dss.Request{Body: map[string]string{"type": "BUILD"}})
	c.Assert(err, check.IsNil)
	c.Check(sr.Kind, check.Equals, dss.StartPending)
	f := dss.StartFuture[string](s.client, sr, nil)
	f.MinWait = time.Millisecond
	v, err := f.WaitForResult(s.ctx)
	c.Check(err, check.IsNil)
	c.Check(v, check.Equals, "done")
}

func (s *serverSuite) TestListFutures(c *check.C) {
	s.server.AddJob("job-4", dss.FutureState{Alive: true, JobDisplayName: "Build dataset"})
	states, err := s.client.ListFutures(s.ctx, false)
	c.Assert(err, check.IsNil)
	c.Assert(states, check.HasLen, 1)
	c.Check(states[0].JobID, check.Equals, "job-4")
	c.Check(states[0].JobDisplayName, check.Equals, "Build dataset")
}
