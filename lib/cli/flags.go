// Copyright (C) The Arvados Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"flag"
	"fmt"
	"io"

	"github.com/dss-sdk/dss-go/lib/cmd"
	"github.com/dss-sdk/dss-go/sdk/go/ctxlog"
	"github.com/dss-sdk/dss-go/sdk/go/dss"
	"github.com/fatih/color"
	"rsc.io/getopt"
)

// CommonFlagValues holds the flags accepted by every subcommand.
type CommonFlagValues struct {
	Instance string
	Format   string
	ActAs    string
	Verbose  bool
}

// CommonFlagSet returns a flag set with the common flags, and the
// values they will be stored in.
func CommonFlagSet() (*getopt.FlagSet, *CommonFlagValues) {
	values := &CommonFlagValues{Format: "json"}
	flags := getopt.NewFlagSet("", flag.ContinueOnError)
	flags.StringVar(&values.Instance, "instance", "", "Name of DSS instance in settings file")
	flags.StringVar(&values.Format, "format", values.Format, "Output format: json, yaml, text, or raw")
	flags.Alias("f", "format")
	flags.StringVar(&values.ActAs, "act-as", "", "Send requests on behalf of the holder of this ticket")
	flags.Alias("a", "act-as")
	flags.BoolVar(&values.Verbose, "verbose", false, "Log each request on stderr")
	flags.Alias("v", "verbose")
	return flags, values
}

func (values *CommonFlagValues) checkFormat(stderr io.Writer) bool {
	switch values.Format {
	case "json", "yaml", "text", "raw":
		return true
	default:
		fmt.Fprintf(stderr, "invalid output format %q (must be json, yaml, text, or raw)\n", values.Format)
		return false
	}
}

// setup returns a context with a logger attached, and a client
// configured from the settings file and environment.
func (values *CommonFlagValues) setup(stderr io.Writer) (context.Context, *dss.Client, error) {
	level := "info"
	if values.Verbose {
		level = "debug"
	}
	// Messages logged without a context logger still go to
	// os.Stderr, at the same level.
	ctxlog.SetFormat("text")
	ctxlog.SetLevel(level)
	ctx := ctxlog.Context(context.Background(), ctxlog.New(stderr, "text", level))
	settings, err := dss.LoadSettings(values.Instance)
	if err != nil {
		return nil, nil, err
	}
	client, err := dss.NewClientFromSettings(settings)
	if err != nil {
		return nil, nil, err
	}
	if values.ActAs != "" {
		client = client.WithActAs(values.ActAs)
	}
	return ctx, client, nil
}

// withSubcommandToFront lets the common flags appear before a
// subcommand of a nested command, e.g., "future -f yaml state X".
func withSubcommandToFront(m cmd.Multi) cmd.Handler {
	return cmd.HandlerFunc(func(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
		flags, _ := CommonFlagSet()
		return m.RunCommand(prog, cmd.SubcommandToFront(args, flags), stdin, stdout, stderr)
	})
}

var errorColor = color.New(color.FgRed)

func printError(stderr io.Writer, err error) {
	errorColor.Fprintf(stderr, "%s\n", err)
}
