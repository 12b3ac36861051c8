// Copyright (C) The Arvados Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"fmt"
	"io"

	"github.com/ghodss/yaml"
	"github.com/goccy/go-json"
)

// printJSON writes a JSON document to stdout in the given format. An
// empty document prints nothing.
func printJSON(stdout io.Writer, format string, raw []byte) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	switch format {
	case "yaml":
		buf, err := yaml.JSONToYAML(raw)
		if err != nil {
			return fmt.Errorf("encoding yaml: %w", err)
		}
		_, err = stdout.Write(buf)
		return err
	case "json":
		var buf bytes.Buffer
		if err := json.Indent(&buf, raw, "", "  "); err != nil {
			// Not JSON after all.
			_, err = stdout.Write(raw)
			return err
		}
		buf.WriteByte('\n')
		_, err := buf.WriteTo(stdout)
		return err
	default:
		_, err := stdout.Write(raw)
		return err
	}
}

// printValue encodes v as JSON and writes it with printJSON.
func printValue(stdout io.Writer, format string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding: %w", err)
	}
	if format == "text" || format == "raw" {
		format = "json"
	}
	return printJSON(stdout, format, raw)
}
