// Copyright (C) The Arvados Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package dss

import (
	"fmt"
	"strconv"
	"time"

	"github.com/goccy/go-json"
)

// Duration is time.Duration but looks like "12s" in JSON, rather than
// a number of nanoseconds. A JSON number is read as milliseconds.
type Duration time.Duration

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		return d.UnmarshalText([]byte(s))
	}
	// The server reports durations as integer milliseconds.
	if ms, err := strconv.ParseInt(string(data), 10, 64); err == nil {
		*d = Duration(time.Duration(ms) * time.Millisecond)
		return nil
	}
	return fmt.Errorf("duration must be given as integer milliseconds or a string like \"600s\" or \"1h30m\"")
}

// UnmarshalText implements encoding.TextUnmarshaler, so Durations can
// be loaded from environment variables.
func (d *Duration) UnmarshalText(text []byte) error {
	dur, err := time.ParseDuration(string(text))
	*d = Duration(dur)
	return err
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// String implements fmt.Stringer.
func (d Duration) String() string {
	return time.Duration(d).String()
}

// Duration returns a time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
