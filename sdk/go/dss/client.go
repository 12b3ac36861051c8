// Copyright (C) The Arvados Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package dss

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dss-sdk/dss-go/sdk/go/ctxlog"
	"github.com/goccy/go-json"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/oauth2"
)

const (
	DefaultRoutePrefix  = "/public/api"
	DefaultUploadPrefix = "/dip/publicapi"

	// ActAsHeader carries the impersonation ticket.
	ActAsHeader = "X-DKU-APITicket"

	userAgent = "dss-go"
)

// A Client is an HTTP client with a DSS API endpoint and a set of
// credentials.
//
// A Client is not modified by any of its methods, so a single Client
// can be used by multiple goroutines. Use WithActAs and WithRequestID
// to derive a Client with different per-request settings.
type Client struct {
	// HTTP client used to make requests. If nil,
	// DefaultSecureClient or InsecureHTTPClient will be used.
	// NewClient sets up a client with a cookie jar.
	Client *http.Client `json:"-"`

	// Protocol scheme: "http", "https", or "" (https)
	Scheme string

	// Hostname (or host:port) of the DSS server.
	Host string

	// Path prefix of the public API. Default "/public/api".
	RoutePrefix string

	// Path prefix used by UploadFile. Default "/dip/publicapi".
	UploadPrefix string

	// Workspace, if not empty, is inserted after the route
	// prefix as "/workspaces/{Workspace}".
	Workspace string

	// API key, sent as the HTTP basic auth username.
	APIKey string `json:"-"`

	// If not nil, bearer tokens from TokenSource are sent instead
	// of APIKey.
	TokenSource oauth2.TokenSource `json:"-"`

	// Accept unverified certificates. This works only if the
	// Client field is nil: otherwise, it has no effect.
	Insecure bool

	// Impersonation ticket sent with each request, unless
	// overridden by Request.ActAs.
	ActAs string `json:"-"`

	// HTTP headers to add/override in outgoing requests.
	SendHeader http.Header

	// Timeout for requests, including reading the response
	// body. Zero means no timeout other than the request
	// context's deadline.
	Timeout time.Duration

	// Metrics, if not nil, records request and polling
	// statistics.
	Metrics *Metrics `json:"-"`

	// Logger for debug messages. If nil, the logger attached to
	// each request's context is used.
	Logger logrus.FieldLogger `json:"-"`

	defaultRequestID string
}

// InsecureHTTPClient is the default http.Client used by a Client with
// Insecure==true and Client==nil.
var InsecureHTTPClient = &http.Client{
	Transport: &http.Transport{
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: true}}}

// DefaultSecureClient is the default http.Client used by a Client otherwise.
var DefaultSecureClient = &http.Client{}

var (
	reqIDGen = IDGenerator{Prefix: "req-"}
	tracer   = otel.Tracer("github.com/dss-sdk/dss-go/sdk/go/dss")
)

// NewClient returns a Client for the server at baseURL (e.g.,
// "https://dss.example:11200"), authenticating with apiKey.
//
// The returned Client has its own connection pool and cookie jar,
// which are shared by Clients derived from it with WithActAs and
// WithRequestID.
func NewClient(baseURL, apiKey string, insecure bool) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid server URL %q: %w", baseURL, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid server URL %q: no host", baseURL)
	}
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}
	var transport http.RoundTripper = http.DefaultTransport
	if insecure {
		transport = InsecureHTTPClient.Transport
	}
	// u.Path is non-empty if the server is mounted under a
	// path, e.g., behind a reverse proxy.
	routePrefix := u.Path + DefaultRoutePrefix
	uploadPrefix := u.Path + DefaultUploadPrefix
	return &Client{
		Client: &http.Client{
			Transport: transport,
			Jar:       jar,
		},
		Scheme:       u.Scheme,
		Host:         u.Host,
		RoutePrefix:  routePrefix,
		UploadPrefix: uploadPrefix,
		APIKey:       apiKey,
		Insecure:     insecure,
	}, nil
}

// WithActAs returns a new shallow copy of c that sends the given
// impersonation ticket with each subsequent request that doesn't
// provide its own via Request.ActAs.
func (c *Client) WithActAs(ticket string) *Client {
	cc := *c
	cc.ActAs = ticket
	return &cc
}

// WithRequestID returns a new shallow copy of c that sends the given
// X-Request-Id value (instead of a new randomly generated one) with
// each subsequent request that doesn't provide its own via context or
// header.
func (c *Client) WithRequestID(reqid string) *Client {
	cc := *c
	cc.defaultRequestID = reqid
	return &cc
}

// PerformEmpty performs an API call and discards the response body.
func (c *Client) PerformEmpty(ctx context.Context, method, path string, req *Request) error {
	body, err := c.perform(ctx, method, c.apiURL(path), req)
	if err != nil {
		return err
	}
	defer body.Close()
	_, err = io.Copy(io.Discard, body)
	return err
}

// PerformText performs an API call and returns the response body as
// a string.
func (c *Client) PerformText(ctx context.Context, method, path string, req *Request) (string, error) {
	body, err := c.perform(ctx, method, c.apiURL(path), req)
	if err != nil {
		return "", err
	}
	defer body.Close()
	buf, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	return string(buf), nil
}

// PerformJSON performs an API call and unmarshals the response (which
// must be JSON) into dst. If dst is nil, the response body is
// discarded.
func (c *Client) PerformJSON(ctx context.Context, dst interface{}, method, path string, req *Request) error {
	body, err := c.perform(ctx, method, c.apiURL(path), req)
	if err != nil {
		return err
	}
	defer body.Close()
	buf, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	if dst == nil {
		return nil
	}
	if err := json.Unmarshal(buf, dst); err != nil {
		return fmt.Errorf("decoding response from %s %s: %w", method, path, err)
	}
	return nil
}

// PerformRaw performs an API call and returns the response body
// without reading it. The caller must close the returned
// io.ReadCloser.
func (c *Client) PerformRaw(ctx context.Context, method, path string, req *Request) (io.ReadCloser, error) {
	return c.perform(ctx, method, c.apiURL(path), req)
}

// UploadFile posts r as a multipart file upload (form field "file")
// to path under the Client's UploadPrefix, and unmarshals the JSON
// response into dst (unless dst is nil).
func (c *Client) UploadFile(ctx context.Context, dst interface{}, path, name string, r io.Reader) error {
	body, err := c.perform(ctx, http.MethodPost, c.uploadURL(path), &Request{
		Files: []File{{Field: "file", Name: name, Reader: r}},
	})
	if err != nil {
		return err
	}
	defer body.Close()
	buf, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	if dst == nil || len(buf) == 0 {
		return nil
	}
	return json.Unmarshal(buf, dst)
}

// perform sends one request and returns the response body if the
// response status is 2xx. Otherwise it returns an *Error.
func (c *Client) perform(ctx context.Context, method, urlString string, req *Request) (io.ReadCloser, error) {
	if c.Host == "" {
		return nil, ErrNoHost
	}
	if req != nil && req.Params != nil {
		vals, err := anythingToValues(req.Params)
		if err != nil {
			return nil, fmt.Errorf("encoding query parameters: %w", err)
		}
		if len(vals) > 0 {
			urlString += "?" + vals.Encode()
		}
	}
	body, contentType, err := req.encodeBody()
	if err != nil {
		return nil, err
	}
	hreq, err := http.NewRequestWithContext(ctx, method, urlString, body)
	if err != nil {
		if rc, ok := body.(io.Closer); ok {
			rc.Close()
		}
		return nil, err
	}
	if contentType != "" {
		hreq.Header.Set("Content-Type", contentType)
	}
	hreq.Header.Set("User-Agent", userAgent)
	for k, v := range c.SendHeader {
		hreq.Header[k] = v
	}
	actAs := c.ActAs
	if req != nil {
		for k, v := range req.Header {
			hreq.Header[k] = v
		}
		if req.ActAs != "" {
			actAs = req.ActAs
		}
	}
	if actAs != "" {
		hreq.Header.Set(ActAsHeader, actAs)
	}

	resp, err := c.Do(hreq)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp.Body, nil
	}
	defer resp.Body.Close()
	buf, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %s: error reading response body: %w", method, hreq.URL.Path, resp.Status, err)
	}
	return nil, newError(hreq, resp, buf)
}

// Do adds Authorization and X-Request-Id headers and then sends req
// using the Client's http.Client. Each call is exactly one round
// trip: failed requests are never retried.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if err := c.authorize(req); err != nil {
		if req.Body != nil {
			req.Body.Close()
		}
		return nil, err
	}
	if req.Header.Get("X-Request-Id") == "" {
		var reqid string
		if ctxreqid, _ := req.Context().Value(contextKeyRequestID{}).(string); ctxreqid != "" {
			reqid = ctxreqid
		} else if c.defaultRequestID != "" {
			reqid = c.defaultRequestID
		} else {
			reqid = reqIDGen.Next()
		}
		req.Header.Set("X-Request-Id", reqid)
	}

	ctx, span := tracer.Start(req.Context(), "dss.request",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", req.Method),
			attribute.String("url.path", req.URL.Path),
			attribute.String("dss.request_id", req.Header.Get("X-Request-Id")),
		))
	var cancel context.CancelFunc
	if c.Timeout > 0 {
		ctx, cancel = context.WithDeadline(ctx, time.Now().Add(c.Timeout))
	}
	req = req.WithContext(ctx)

	logger := c.logger(ctx)
	// One per request, since the log hooks carry this request's
	// fields. Not NewClient, which allocates a pooled transport.
	rclient := &retryablehttp.Client{
		HTTPClient: c.sharedHTTPClient(),
		RetryMax:   0,
		CheckRetry: func(context.Context, *http.Response, error) (bool, error) {
			return false, nil
		},
		Backoff:      retryablehttp.DefaultBackoff,
		ErrorHandler: retryablehttp.PassthroughErrorHandler,
	}
	logger = logger.WithFields(logrus.Fields{
		"Method":    req.Method,
		"Path":      req.URL.Path,
		"RequestID": req.Header.Get("X-Request-Id"),
	})
	rclient.RequestLogHook = func(retryablehttp.Logger, *http.Request, int) {
		logger.Debug("sending request")
	}
	rclient.ResponseLogHook = func(_ retryablehttp.Logger, resp *http.Response) {
		logger.WithField("StatusCode", resp.StatusCode).Debug("received response")
	}

	finish := func(code int, err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else if code >= 400 {
			span.SetStatus(codes.Error, http.StatusText(code))
		}
		span.SetAttributes(attribute.Int("http.status_code", code))
		span.End()
		if cancel != nil {
			cancel()
		}
	}

	t0 := time.Now()
	// Not retryablehttp.FromRequest, which reads the whole body
	// into memory so it can be replayed. Requests are never
	// retried, so the body is sent as is.
	resp, err := rclient.Do(&retryablehttp.Request{Request: req})
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		c.Metrics.observeRequest(req.Method, 0, time.Since(t0))
		finish(0, err)
		return nil, err
	}
	c.Metrics.observeRequest(req.Method, resp.StatusCode, time.Since(t0))
	// The span and the request deadline have to stay alive until
	// the caller has finished reading the response body.
	resp.Body = &finishOnClose{ReadCloser: resp.Body, finish: func() { finish(resp.StatusCode, nil) }}
	return resp, nil
}

func (c *Client) authorize(req *http.Request) error {
	if c.TokenSource != nil {
		tok, err := c.TokenSource.Token()
		if err != nil {
			return fmt.Errorf("getting bearer token: %w", err)
		}
		tok.SetAuthHeader(req)
		return nil
	}
	if c.APIKey != "" {
		req.SetBasicAuth(c.APIKey, "")
	}
	return nil
}

// finishOnClose calls a provided func (once) when its wrapped
// ReadCloser's Close() method is called.
type finishOnClose struct {
	io.ReadCloser
	finish func()
	once   sync.Once
}

func (foc *finishOnClose) Close() error {
	err := foc.ReadCloser.Close()
	foc.once.Do(foc.finish)
	return err
}

func (c *Client) logger(ctx context.Context) logrus.FieldLogger {
	if c.Logger != nil {
		return c.Logger
	}
	return ctxlog.FromContext(ctx)
}

func (c *Client) httpClient() *http.Client {
	switch {
	case c.Client != nil:
		return c.Client
	case c.Insecure:
		return InsecureHTTPClient
	default:
		return DefaultSecureClient
	}
}

// sharedHTTPClient returns a copy of httpClient() whose
// CloseIdleConnections is a no-op. retryablehttp closes idle
// connections after a failed request, and the connection pool is
// shared with other requests (and other Clients).
func (c *Client) sharedHTTPClient() *http.Client {
	hc := *c.httpClient()
	rt := hc.Transport
	if rt == nil {
		rt = http.DefaultTransport
	}
	hc.Transport = keepIdleConns{rt}
	return &hc
}

// keepIdleConns hides the wrapped RoundTripper's
// CloseIdleConnections method.
type keepIdleConns struct {
	http.RoundTripper
}

func (c *Client) baseURL() string {
	scheme := c.Scheme
	if scheme == "" {
		scheme = "https"
	}
	return scheme + "://" + c.Host
}

func (c *Client) apiURL(path string) string {
	prefix := c.RoutePrefix
	if prefix == "" {
		prefix = DefaultRoutePrefix
	}
	if c.Workspace != "" {
		prefix += "/workspaces/" + url.PathEscape(c.Workspace)
	}
	return c.baseURL() + prefix + "/" + strings.TrimPrefix(path, "/")
}

func (c *Client) uploadURL(path string) string {
	prefix := c.UploadPrefix
	if prefix == "" {
		prefix = DefaultUploadPrefix
	}
	return c.baseURL() + prefix + "/" + strings.TrimPrefix(path, "/")
}
