// Copyright (C) The Arvados Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package dss

import (
	"time"

	"github.com/goccy/go-json"
	check "gopkg.in/check.v1"
)

var _ = check.Suite(&durationSuite{})

type durationSuite struct{}

func (s *durationSuite) TestMarshalJSON(c *check.C) {
	var st Settings
	err := json.Unmarshal([]byte(`{"timeout":"1.5s"}`), &st)
	c.Check(err, check.IsNil)
	c.Check(st.Timeout.Duration(), check.Equals, 1500*time.Millisecond)
	buf, err := json.Marshal(Duration(90 * time.Second))
	c.Check(err, check.IsNil)
	c.Check(string(buf), check.Equals, `"1m30s"`)
}

func (s *durationSuite) TestUnmarshalJSON(c *check.C) {
	var d Duration
	c.Check(d.UnmarshalJSON([]byte(`1.234`)), check.ErrorMatches, `duration must be given as integer milliseconds or a string.*`)
	c.Check(d.UnmarshalJSON([]byte(`"1.234"`)), check.ErrorMatches, `.*missing unit in duration "?1\.234"?`)
	c.Check(d.UnmarshalJSON([]byte(`"foobar"`)), check.ErrorMatches, `.*invalid duration "?foobar"?`)
	c.Check(d.UnmarshalJSON([]byte(`"5m"`)), check.IsNil)
	c.Check(d.Duration(), check.Equals, 5*time.Minute)
	c.Check(d.String(), check.Equals, "5m0s")

	d = Duration(time.Second)
	c.Check(d.UnmarshalJSON([]byte(`0`)), check.IsNil)
	c.Check(d.Duration(), check.Equals, time.Duration(0))

	c.Check(d.UnmarshalJSON([]byte(`1500`)), check.IsNil)
	c.Check(d.Duration(), check.Equals, 1500*time.Millisecond)
	c.Check(d.UnmarshalJSON([]byte(`-1`)), check.IsNil)
	c.Check(d.Duration(), check.Equals, -time.Millisecond)
	c.Check(d.UnmarshalJSON([]byte(`1e3`)), check.NotNil)
}

func (s *durationSuite) TestSettingsTimeoutMilliseconds(c *check.C) {
	var st Settings
	c.Check(json.Unmarshal([]byte(`{"timeout":30000}`), &st), check.IsNil)
	c.Check(st.Timeout.Duration(), check.Equals, 30*time.Second)
}
