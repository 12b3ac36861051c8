// Copyright (C) The Arvados Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dss-sdk/dss-go/lib/cmd"
	"github.com/dss-sdk/dss-go/sdk/go/dss"
	"github.com/goccy/go-json"
)

// APICall performs one API call and prints the response.
//
//	dss-client api [options] METHOD PATH [BODY]
//
// BODY is a JSON document, "@filename", or "-" to read stdin.
var APICall cmd.Handler = apiCallCmd{}

type apiCallCmd struct{}

func (apiCallCmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			printError(stderr, err)
		}
	}()

	flags, values := CommonFlagSet()
	if ok, code := cmd.ParseFlags(flags, prog, args, "METHOD PATH [BODY]", 2, 3, stderr); !ok {
		return code
	} else if !values.checkFormat(stderr) {
		return cmd.EX_USAGE
	}
	method := strings.ToUpper(flags.Arg(0))
	path := flags.Arg(1)

	var req *dss.Request
	if flags.NArg() == 3 {
		var body []byte
		body, err = readBody(flags.Arg(2), stdin)
		if err != nil {
			return 1
		}
		req = &dss.Request{RawBody: body}
	}

	ctx, client, err := values.setup(stderr)
	if err != nil {
		return 1
	}

	if values.Format == "raw" {
		var rdr io.ReadCloser
		rdr, err = client.PerformRaw(ctx, method, path, req)
		if err != nil {
			return 1
		}
		defer rdr.Close()
		_, err = io.Copy(stdout, rdr)
		if err != nil {
			return 1
		}
		return 0
	}

	var resp string
	resp, err = client.PerformText(ctx, method, path, req)
	if err != nil {
		return 1
	}
	err = printJSON(stdout, values.Format, []byte(resp))
	if err != nil {
		return 1
	}
	return 0
}

func readBody(arg string, stdin io.Reader) ([]byte, error) {
	var body []byte
	var err error
	switch {
	case arg == "-":
		body, err = io.ReadAll(stdin)
	case strings.HasPrefix(arg, "@"):
		body, err = os.ReadFile(arg[1:])
	default:
		body = []byte(arg)
	}
	if err != nil {
		return nil, fmt.Errorf("reading request body: %w", err)
	}
	if !json.Valid(body) {
		return nil, errors.New("request body is not valid JSON")
	}
	return body, nil
}
