// Copyright (C) The Arvados Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dss-sdk/dss-go/lib/cmd"
	"github.com/dss-sdk/dss-go/sdk/go/ctxlog"
	"github.com/dss-sdk/dss-go/sdk/go/dss"
	"github.com/dustin/go-humanize"
	"github.com/goccy/go-json"
	"golang.org/x/sync/errgroup"
)

// Future inspects and controls long-running jobs.
var Future = withSubcommandToFront(cmd.Multi{
	"state": futureStateCmd{peek: false},
	"peek":  futureStateCmd{peek: true},
	"abort": futureAbortCmd{},
	"wait":  futureWaitCmd{},
	"list":  futureListCmd{},
})

type futureStateCmd struct {
	peek bool
}

func (fc futureStateCmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			printError(stderr, err)
		}
	}()
	flags, values := CommonFlagSet()
	if ok, code := cmd.ParseFlags(flags, prog, args, "JOBID...", 1, cmd.Unlimited, stderr); !ok {
		return code
	} else if !values.checkFormat(stderr) {
		return cmd.EX_USAGE
	}
	ctx, client, err := values.setup(stderr)
	if err != nil {
		return 1
	}
	for _, id := range flags.Args() {
		f := dss.GetFuture[json.RawMessage](client, id, nil)
		var st *dss.FutureState
		if fc.peek {
			st, err = f.PeekState(ctx)
		} else {
			st, err = f.GetState(ctx)
		}
		if err != nil {
			return 1
		}
		if values.Format == "text" {
			fmt.Fprintf(stdout, "%s\t%s\n", st.JobID, status(st))
			continue
		}
		if err = printValue(stdout, values.Format, st); err != nil {
			return 1
		}
	}
	return 0
}

type futureAbortCmd struct{}

func (futureAbortCmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			printError(stderr, err)
		}
	}()
	flags, values := CommonFlagSet()
	if ok, code := cmd.ParseFlags(flags, prog, args, "JOBID...", 1, cmd.Unlimited, stderr); !ok {
		return code
	}
	ctx, client, err := values.setup(stderr)
	if err != nil {
		return 1
	}
	for _, id := range flags.Args() {
		err = dss.GetFuture[json.RawMessage](client, id, nil).Abort(ctx)
		if err != nil {
			return 1
		}
		ctxlog.FromContext(ctx).WithField("JobID", id).Info("abort requested")
	}
	return 0
}

type futureWaitCmd struct{}

func (futureWaitCmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			printError(stderr, err)
		}
	}()
	flags, values := CommonFlagSet()
	timeout := flags.Duration("timeout", 0, "Give up after this long (0 means wait forever)")
	if ok, code := cmd.ParseFlags(flags, prog, args, "JOBID...", 1, cmd.Unlimited, stderr); !ok {
		return code
	} else if !values.checkFormat(stderr) {
		return cmd.EX_USAGE
	}
	ctx, client, err := values.setup(stderr)
	if err != nil {
		return 1
	}
	if *timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *timeout)
		defer cancel()
	}

	ids := flags.Args()
	results := make([]json.RawMessage, len(ids))
	eg, ctx := errgroup.WithContext(ctx)
	for i, id := range ids {
		i, id := i, id
		eg.Go(func() error {
			f := dss.GetFuture[json.RawMessage](client, id, nil)
			result, err := f.WaitForResult(ctx)
			if err != nil {
				return err
			}
			ctxlog.FromContext(ctx).WithField("JobID", id).WithField("RunningTime", time.Duration(f.State().RunningTime)*time.Millisecond).Debug("job done")
			results[i] = result
			return nil
		})
	}
	err = eg.Wait()
	if err != nil {
		return 1
	}
	for _, result := range results {
		if err = printJSON(stdout, values.Format, result); err != nil {
			return 1
		}
		if values.Format == "text" || values.Format == "raw" {
			fmt.Fprintln(stdout)
		}
	}
	return 0
}

type futureListCmd struct{}

func (futureListCmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			printError(stderr, err)
		}
	}()
	flags, values := CommonFlagSet()
	values.Format = "text"
	all := flags.Bool("all", false, "List jobs of all users (requires admin)")
	if ok, code := cmd.ParseFlags(flags, prog, args, "", 0, 0, stderr); !ok {
		return code
	} else if !values.checkFormat(stderr) {
		return cmd.EX_USAGE
	}
	ctx, client, err := values.setup(stderr)
	if err != nil {
		return 1
	}
	states, err := client.ListFutures(ctx, *all)
	if err != nil {
		return 1
	}
	if values.Format != "text" {
		err = printValue(stdout, values.Format, states)
		if err != nil {
			return 1
		}
		return 0
	}
	tw := tabwriter.NewWriter(stdout, 0, 8, 2, ' ', 0)
	for _, st := range states {
		started := "-"
		if st.StartTime > 0 {
			started = humanize.Time(time.UnixMilli(st.StartTime))
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", st.JobID, status(&st), started, st.JobDisplayName)
	}
	err = tw.Flush()
	if err != nil {
		return 1
	}
	return 0
}

func status(st *dss.FutureState) string {
	switch {
	case st.HasResult:
		return "done"
	case st.Aborted:
		return "aborted"
	case st.Error != nil:
		return "failed"
	case st.Alive:
		return "running"
	default:
		return "pending"
	}
}
