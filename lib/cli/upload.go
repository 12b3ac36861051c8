// Copyright (C) The Arvados Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dss-sdk/dss-go/lib/cmd"
	"github.com/dustin/go-humanize"
	"github.com/goccy/go-json"
)

// Upload sends a local file to an upload endpoint.
//
//	dss-client upload [options] PATH FILE
var Upload cmd.Handler = uploadCmd{}

type uploadCmd struct{}

func (uploadCmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			printError(stderr, err)
		}
	}()
	flags, values := CommonFlagSet()
	name := flags.String("name", "", "File name to send (default: base name of FILE)")
	if ok, code := cmd.ParseFlags(flags, prog, args, "PATH FILE", 2, 2, stderr); !ok {
		return code
	} else if !values.checkFormat(stderr) {
		return cmd.EX_USAGE
	}
	path, fnm := flags.Arg(0), flags.Arg(1)
	if *name == "" {
		*name = filepath.Base(fnm)
	}

	f, err := os.Open(fnm)
	if err != nil {
		return 1
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return 1
	}

	ctx, client, err := values.setup(stderr)
	if err != nil {
		return 1
	}
	var resp json.RawMessage
	err = client.UploadFile(ctx, &resp, path, *name, f)
	if err != nil {
		return 1
	}
	fmt.Fprintf(stderr, "uploaded %s (%s)\n", *name, humanize.Bytes(uint64(fi.Size())))
	err = printJSON(stdout, values.Format, resp)
	if err != nil {
		return 1
	}
	return 0
}
