// Copyright (C) The Arvados Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package dss

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"

	"github.com/goccy/go-json"
)

// Request holds the optional parts of an API call. A nil *Request is
// equivalent to an empty one.
type Request struct {
	// Query string parameters: url.Values, or any value that
	// encodes to a JSON object (see anythingToValues).
	Params interface{}

	// Body is encoded as JSON and sent as the request body.
	Body interface{}

	// RawBody is sent verbatim. If both RawBody and Body are
	// given, RawBody is used.
	RawBody []byte

	// Files switches the request to multipart/form-data. The
	// JSON payload (if any) is sent as an additional form field
	// named "json".
	Files []File

	// Header values added to (or replacing) the Client's
	// SendHeader.
	Header http.Header

	// ActAs, if not empty, overrides the Client's impersonation
	// ticket for this call.
	ActAs string
}

// File is one file part of a multipart request.
type File struct {
	// Form field name, e.g., "file".
	Field string
	// File name sent in the Content-Disposition header.
	Name   string
	Reader io.Reader
}

// payload returns the JSON payload to send, or nil.
func (r *Request) payload() ([]byte, error) {
	if r == nil {
		return nil, nil
	}
	if r.RawBody != nil {
		return r.RawBody, nil
	}
	if r.Body == nil {
		return nil, nil
	}
	return json.Marshal(r.Body)
}

// encodeBody returns the request body and its content type.
//
// A multipart body is streamed: files are read while the request is
// being sent, so an upload does not need to fit in memory. The
// returned reader must be read to EOF or closed.
func (r *Request) encodeBody() (io.Reader, string, error) {
	payload, err := r.payload()
	if err != nil {
		return nil, "", fmt.Errorf("encoding request body: %w", err)
	}
	if r == nil || len(r.Files) == 0 {
		if payload == nil {
			return nil, "", nil
		}
		return bytes.NewReader(payload), "application/json", nil
	}
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeMultipart(mw, r.Files, payload))
	}()
	return pr, mw.FormDataContentType(), nil
}

func writeMultipart(mw *multipart.Writer, files []File, payload []byte) error {
	for _, f := range files {
		field := f.Field
		if field == "" {
			field = "file"
		}
		w, err := mw.CreateFormFile(field, f.Name)
		if err != nil {
			return err
		}
		if _, err = io.Copy(w, f.Reader); err != nil {
			return fmt.Errorf("reading %q: %w", f.Name, err)
		}
	}
	if payload != nil {
		if err := mw.WriteField("json", string(payload)); err != nil {
			return err
		}
	}
	return mw.Close()
}

// Convert an arbitrary struct to url.Values. For example,
//
//	Foo{Bar: []int{1,2,3}, Baz: "waz"}
//
// becomes
//
//	url.Values{`bar`:`[1,2,3]`,`Baz`:`waz`}
//
// params itself is returned if it is already an url.Values.
func anythingToValues(params interface{}) (url.Values, error) {
	if params == nil {
		return nil, nil
	}
	if v, ok := params.(url.Values); ok {
		return v, nil
	}
	j, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	var generic map[string]interface{}
	dec := json.NewDecoder(bytes.NewBuffer(j))
	dec.UseNumber()
	err = dec.Decode(&generic)
	if err != nil {
		return nil, err
	}
	urlValues := url.Values{}
	for k, v := range generic {
		switch v := v.(type) {
		case string:
			urlValues.Set(k, v)
			continue
		case json.Number:
			urlValues.Set(k, v.String())
			continue
		case bool:
			// The server reads "false" as false.
			if v {
				urlValues.Set(k, "true")
			} else {
				urlValues.Set(k, "false")
			}
			continue
		case nil:
			continue
		}
		j, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		urlValues.Set(k, string(j))
	}
	return urlValues, nil
}
