// Copyright (C) The Arvados Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"os"

	"github.com/dss-sdk/dss-go/lib/cli"
	"github.com/dss-sdk/dss-go/lib/cmd"
)

var (
	handler = cmd.Multi(map[string]cmd.Handler{
		"version":   cmd.Version,
		"-version":  cmd.Version,
		"--version": cmd.Version,

		"api":    cli.APICall,
		"future": cli.Future,
		"upload": cli.Upload,
	})
)

// fixArgs moves the subcommand in front of any common flags, so
// "dss-client -f yaml api GET /projects/" works.
func fixArgs(args []string) []string {
	flags, _ := cli.CommonFlagSet()
	return cmd.SubcommandToFront(args, flags)
}

func main() {
	os.Exit(handler.RunCommand(os.Args[0], fixArgs(os.Args[1:]), os.Stdin, os.Stdout, os.Stderr))
}
