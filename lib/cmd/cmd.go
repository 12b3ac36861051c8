// Copyright (C) The Arvados Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

// package cmd helps define reusable functions that can be exposed as
// [subcommands of] command line programs.
package cmd

import (
	"flag"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"runtime"
	"sort"
	"strings"
)

// A Handler runs a command with the given args, and returns an exit
// code.
type Handler interface {
	RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int
}

// HandlerFunc is a func with the RunCommand signature.
type HandlerFunc func(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int

// RunCommand calls f.
func (f HandlerFunc) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	return f(prog, args, stdin, stdout, stderr)
}

// Overridden at build time with
// -ldflags "-X github.com/dss-sdk/dss-go/lib/cmd.version=..."
var version = "dev"

// Version is a Handler that prints the program name and version.
var Version versionCommand

type versionCommand struct{}

func (versionCommand) String() string {
	return fmt.Sprintf("%s (%s)", version, runtime.Version())
}

func (versionCommand) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	prog = regexp.MustCompile(` -*version$`).ReplaceAllLiteralString(prog, "")
	fmt.Fprintf(stdout, "%s %s (%s)\n", filepath.Base(prog), version, runtime.Version())
	return 0
}

// Multi is a Handler that looks up its first argument in a map, and
// invokes the resulting Handler with the remaining args.
//
// If the program itself is named "dss-{name}" (other than
// "dss-client") and {name} is in the map, that Handler gets all of the
// args instead. This lets a symlink "dss-future" behave like
// "dss-client future".
type Multi map[string]Handler

func (m Multi) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		fmt.Fprintf(stderr, "usage: %s command [args]\n", prog)
		m.Usage(stderr)
		return 2
	}
	_, basename := filepath.Split(prog)
	if cmd, ok := m[strings.TrimPrefix(basename, "dss-")]; ok && basename != "dss-client" {
		// "dss-future foo" is the same as "dss-client
		// future foo".
		return cmd.RunCommand(prog, args, stdin, stdout, stderr)
	} else if cmd, ok := m[args[0]]; ok {
		return cmd.RunCommand(prog+" "+args[0], args[1:], stdin, stdout, stderr)
	} else {
		fmt.Fprintf(stderr, "%s: unrecognized command %q\n", prog, args[0])
		m.Usage(stderr)
		return 2
	}
}

// Usage prints the names of the subcommands.
func (m Multi) Usage(stderr io.Writer) {
	var subcommands []string
	for sc := range m {
		if strings.HasPrefix(sc, "-") {
			// Some subcommands have alternate versions
			// like "--version" for compatibility. Don't
			// clutter the subcommand summary with those.
			continue
		}
		subcommands = append(subcommands, sc)
	}
	sort.Strings(subcommands)
	fmt.Fprintf(stderr, "\nAvailable commands:\n")
	for _, sc := range subcommands {
		fmt.Fprintf(stderr, "    %s\n", sc)
	}
}

// FlagSet is implemented by *flag.FlagSet and *getopt.FlagSet.
type FlagSet interface {
	Init(string, flag.ErrorHandling)
	Args() []string
	NArg() int
	Parse([]string) error
	SetOutput(io.Writer)
	PrintDefaults()
}

// SubcommandToFront parses args with flagset, discarding any errors,
// and returns a copy of args with the first positional argument moved
// to the front:
//
//	[--format yaml future state X] -> [future --format yaml state X]
//
// If parsing fails or finds no positional argument, args is returned
// unchanged. flagset should not be reused afterwards.
func SubcommandToFront(args []string, flagset FlagSet) []string {
	flagset.Init("", flag.ContinueOnError)
	flagset.SetOutput(io.Discard)
	if err := flagset.Parse(args); err != nil || flagset.NArg() == 0 {
		// No subcommand found.
		return args
	}
	// Move subcommand to the front.
	flagargs := len(args) - flagset.NArg()
	newargs := make([]string, len(args))
	newargs[0] = args[flagargs]
	copy(newargs[1:flagargs+1], args[:flagargs])
	copy(newargs[flagargs+1:], args[flagargs+1:])
	return newargs
}
