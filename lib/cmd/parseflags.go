// Copyright (C) The Arvados Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"flag"
	"fmt"
	"io"
)

// Exit codes returned by command handlers.
const (
	EX_OK    = 0
	EX_ERROR = 1
	EX_USAGE = 2
)

// Unlimited can be passed to ParseFlags as maxArgs.
const Unlimited = -1

// ParseFlags calls f.Parse(args), checks the number of positional
// arguments, and prints appropriate error/help messages to stderr.
//
// positional is printed with the usage message, "usage: {prog}
// [options] {positional}". The number of positional arguments must be
// between minArgs and maxArgs (or at least minArgs, if maxArgs is
// Unlimited).
//
// The first return value, ok, is true if the program should continue
// running normally, or false if it should exit now. In that case the
// second return value is the exit code: EX_OK if "--help" was given,
// EX_USAGE otherwise.
func ParseFlags(f FlagSet, prog string, args []string, positional string, minArgs, maxArgs int, stderr io.Writer) (ok bool, exitCode int) {
	f.Init(prog, flag.ContinueOnError)
	f.SetOutput(io.Discard)
	err := f.Parse(args)
	switch err {
	case nil:
	case flag.ErrHelp:
		fmt.Fprintf(stderr, "usage: %s [options] %s\n", prog, positional)
		f.SetOutput(stderr)
		f.PrintDefaults()
		return false, EX_OK
	default:
		fmt.Fprintf(stderr, "error parsing command line arguments: %s (try --help)\n", err)
		return false, EX_USAGE
	}
	if n := f.NArg(); n < minArgs || (maxArgs != Unlimited && n > maxArgs) {
		if maxArgs == 0 {
			fmt.Fprintf(stderr, "unrecognized command line arguments: %v (try --help)\n", f.Args())
		} else {
			fmt.Fprintf(stderr, "usage: %s [options] %s\n", prog, positional)
		}
		return false, EX_USAGE
	}
	return true, EX_OK
}
