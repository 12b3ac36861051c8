// Copyright (C) The Arvados Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package dss

import (
	"os"
	"path/filepath"
	"time"

	check "gopkg.in/check.v1"
)

var _ = check.Suite(&settingsSuite{})

type settingsSuite struct {
	savedEnv map[string]*string
}

var settingsEnvVars = []string{
	"DKU_DSS_URL",
	"DKU_API_KEY",
	"DKU_WORKSPACE",
	"DKU_NO_CHECK_CERTIFICATE",
	"DKU_ACT_AS",
	"DKU_TIMEOUT",
	"DKU_CONFIG",
}

func (s *settingsSuite) SetUpTest(c *check.C) {
	s.savedEnv = map[string]*string{}
	for _, k := range settingsEnvVars {
		if v, ok := os.LookupEnv(k); ok {
			s.savedEnv[k] = &v
		} else {
			s.savedEnv[k] = nil
		}
		os.Unsetenv(k)
	}
}

func (s *settingsSuite) TearDownTest(c *check.C) {
	for k, v := range s.savedEnv {
		if v == nil {
			os.Unsetenv(k)
		} else {
			os.Setenv(k, *v)
		}
	}
}

const testSettingsYAML = `
default_instance: prod
dss_instances:
  prod:
    url: https://dss.example:11200
    api_key: prodkey
    timeout: 30s
  dev:
    url: http://localhost:11200/
    api_key: devkey
    no_check_certificate: true
    workspace: sandbox
`

func (s *settingsSuite) writeFile(c *check.C, content string) string {
	path := filepath.Join(c.MkDir(), "config.yml")
	c.Assert(os.WriteFile(path, []byte(content), 0600), check.IsNil)
	return path
}

func (s *settingsSuite) TestFileOnly(c *check.C) {
	path := s.writeFile(c, testSettingsYAML)

	st, err := loadSettings(path, "")
	c.Assert(err, check.IsNil)
	c.Check(st.URL, check.Equals, "https://dss.example:11200")
	c.Check(st.APIKey, check.Equals, "prodkey")
	c.Check(st.Timeout.Duration(), check.Equals, 30*time.Second)

	st, err = loadSettings(path, "dev")
	c.Assert(err, check.IsNil)
	c.Check(st.URL, check.Equals, "http://localhost:11200/")
	c.Check(st.NoCheckCertificate, check.Equals, true)
	c.Check(st.Workspace, check.Equals, "sandbox")

	_, err = loadSettings(path, "staging")
	c.Check(err, check.ErrorMatches, `instance "staging" not found in settings file .*`)
}

func (s *settingsSuite) TestJSONFile(c *check.C) {
	path := s.writeFile(c, `{"dss_instances":{"default":{"url":"https://json.example","api_key":"k"}}}`)
	st, err := loadSettings(path, "")
	c.Assert(err, check.IsNil)
	c.Check(st.URL, check.Equals, "https://json.example")
	c.Check(st.APIKey, check.Equals, "k")
}

func (s *settingsSuite) TestEnvOverridesFile(c *check.C) {
	path := s.writeFile(c, testSettingsYAML)
	os.Setenv("DKU_API_KEY", "envkey")
	os.Setenv("DKU_ACT_AS", "ticket")
	os.Setenv("DKU_TIMEOUT", "2m")

	st, err := loadSettings(path, "")
	c.Assert(err, check.IsNil)
	c.Check(st.URL, check.Equals, "https://dss.example:11200")
	c.Check(st.APIKey, check.Equals, "envkey")
	c.Check(st.ActAs, check.Equals, "ticket")
	c.Check(st.Timeout.Duration(), check.Equals, 2*time.Minute)

	// An unset/false variable doesn't clear a file setting.
	os.Setenv("DKU_NO_CHECK_CERTIFICATE", "false")
	st, err = loadSettings(path, "dev")
	c.Assert(err, check.IsNil)
	c.Check(st.NoCheckCertificate, check.Equals, true)
	c.Check(st.Workspace, check.Equals, "sandbox")
}

func (s *settingsSuite) TestNoFile(c *check.C) {
	missing := filepath.Join(c.MkDir(), "nonexistent.json")
	os.Setenv("DKU_DSS_URL", "https://env.example")
	os.Setenv("DKU_API_KEY", "envkey")
	os.Setenv("DKU_NO_CHECK_CERTIFICATE", "true")

	st, err := loadSettings(missing, "")
	c.Assert(err, check.IsNil)
	c.Check(st, check.DeepEquals, Settings{
		URL:                "https://env.example",
		APIKey:             "envkey",
		NoCheckCertificate: true,
	})

	_, err = loadSettings(missing, "prod")
	c.Check(err, check.ErrorMatches, `instance "prod" requested but settings file .* does not exist`)
}

func (s *settingsSuite) TestBadFile(c *check.C) {
	path := s.writeFile(c, "dss_instances: [\n")
	_, err := loadSettings(path, "")
	c.Check(err, check.ErrorMatches, `(?s)error decoding settings file .*`)
}

func (s *settingsSuite) TestBadEnv(c *check.C) {
	os.Setenv("DKU_TIMEOUT", "forever")
	_, err := loadSettings("", "")
	c.Check(err, check.ErrorMatches, `(?s)error loading settings from environment: .*`)
}

func (s *settingsSuite) TestDefaultSettingsPath(c *check.C) {
	os.Setenv("DKU_CONFIG", "/tmp/dss.yml")
	c.Check(DefaultSettingsPath(), check.Equals, "/tmp/dss.yml")
	os.Unsetenv("DKU_CONFIG")
	c.Check(DefaultSettingsPath(), check.Matches, `.*/\.dataiku/config\.json`)
}

func (s *settingsSuite) TestLoadSettings(c *check.C) {
	os.Setenv("DKU_CONFIG", s.writeFile(c, testSettingsYAML))
	st, err := LoadSettings("dev")
	c.Assert(err, check.IsNil)
	c.Check(st.APIKey, check.Equals, "devkey")

	client, err := NewClientFromEnv()
	c.Assert(err, check.IsNil)
	c.Check(client.Host, check.Equals, "dss.example:11200")
	c.Check(client.APIKey, check.Equals, "prodkey")
	c.Check(client.Timeout, check.Equals, 30*time.Second)
}

func (s *settingsSuite) TestNewClientFromSettings(c *check.C) {
	client, err := NewClientFromSettings(Settings{
		URL:                "http://localhost:11200/",
		APIKey:             "k",
		Workspace:          "ws",
		ActAs:              "ticket",
		NoCheckCertificate: true,
	})
	c.Assert(err, check.IsNil)
	c.Check(client.Scheme, check.Equals, "http")
	c.Check(client.Host, check.Equals, "localhost:11200")
	c.Check(client.Workspace, check.Equals, "ws")
	c.Check(client.ActAs, check.Equals, "ticket")
	c.Check(client.Insecure, check.Equals, true)
	c.Check(client.Timeout, check.Equals, DefaultTimeout)

	_, err = NewClientFromSettings(Settings{APIKey: "k"})
	c.Check(err, check.ErrorMatches, `no DSS server URL configured.*`)
}
