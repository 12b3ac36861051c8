// Copyright (C) The Arvados Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

// Package cmdtest provides tools for testing command line tools.
package cmdtest

import (
	"io"
	"os"

	check "gopkg.in/check.v1"
)

// LeakCheck fails the test if a command writes to the process's own
// os.Stdout or os.Stderr instead of the streams it was given.
//
//	defer cmdtest.LeakCheck(c)()
func LeakCheck(c *check.C) func() {
	dir := c.MkDir()
	capture := func(name string) *os.File {
		f, err := os.CreateTemp(dir, name)
		c.Assert(err, check.IsNil)
		return f
	}
	realStdout, realStderr := os.Stdout, os.Stderr
	os.Stdout, os.Stderr = capture("stdout"), capture("stderr")
	captured := map[string]*os.File{"stdout": os.Stdout, "stderr": os.Stderr}

	return func() {
		os.Stdout, os.Stderr = realStdout, realStderr
		for name, f := range captured {
			defer f.Close()
			_, err := f.Seek(0, io.SeekStart)
			c.Assert(err, check.IsNil)
			buf, err := io.ReadAll(f)
			c.Assert(err, check.IsNil)
			c.Check(string(buf), check.Equals, "", check.Commentf("command wrote to os.%s", name))
		}
	}
}
