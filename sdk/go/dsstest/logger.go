// Copyright (C) The Arvados Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package dsstest

import (
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// logRequests wraps an http.Handler, logging each request and
// response via s.Logger (if not nil).
func (s *Server) logRequests(h http.Handler) http.Handler {
	return http.HandlerFunc(func(wrapped http.ResponseWriter, req *http.Request) {
		if s.Logger == nil {
			h.ServeHTTP(wrapped, req)
			return
		}
		w := &responseTimer{ResponseWriter: wrapped}
		lgr := s.Logger.WithFields(logrus.Fields{
			"RequestID": req.Header.Get("X-Request-Id"),
			"reqMethod": req.Method,
			"reqPath":   req.URL.Path[1:],
			"reqQuery":  req.URL.RawQuery,
			"reqBytes":  req.ContentLength,
		})
		lgr.Debug("request")
		tStart := time.Now()
		defer func() {
			respCode := w.status
			if respCode == 0 {
				respCode = http.StatusOK
			}
			lgr.WithFields(logrus.Fields{
				"timeTotal":      time.Since(tStart).String(),
				"respStatusCode": respCode,
				"respStatus":     http.StatusText(respCode),
				"respBytes":      w.bytes,
			}).Debug("response")
		}()
		h.ServeHTTP(w, req)
	})
}

type responseTimer struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (rt *responseTimer) WriteHeader(code int) {
	if rt.status == 0 {
		rt.status = code
	}
	rt.ResponseWriter.WriteHeader(code)
}

func (rt *responseTimer) Write(p []byte) (int, error) {
	if rt.status == 0 {
		rt.status = http.StatusOK
	}
	n, err := rt.ResponseWriter.Write(p)
	rt.bytes += n
	return n, err
}
