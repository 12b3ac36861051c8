// Copyright (C) The Arvados Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package dss

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"dario.cat/mergo"
	"github.com/caarlos0/env/v11"
	"github.com/ghodss/yaml"
)

// DefaultTimeout is the request timeout used by clients created from
// Settings that don't specify one.
const DefaultTimeout = 5 * time.Minute

// Settings describe how to reach one DSS instance.
type Settings struct {
	URL                string   `json:"url" env:"DKU_DSS_URL"`
	APIKey             string   `json:"api_key" env:"DKU_API_KEY"`
	Workspace          string   `json:"workspace,omitempty" env:"DKU_WORKSPACE"`
	NoCheckCertificate bool     `json:"no_check_certificate,omitempty" env:"DKU_NO_CHECK_CERTIFICATE"`
	ActAs              string   `json:"act_as,omitempty" env:"DKU_ACT_AS"`
	Timeout            Duration `json:"timeout,omitempty" env:"DKU_TIMEOUT"`
}

// SettingsFile is the content of a settings file, e.g.,
//
//	default_instance: prod
//	dss_instances:
//	  prod:
//	    url: https://dss.example:11200
//	    api_key: xyzzy
//
// JSON is accepted too.
type SettingsFile struct {
	DefaultInstance string              `json:"default_instance"`
	Instances       map[string]Settings `json:"dss_instances"`
}

// DefaultSettingsPath returns $DKU_CONFIG if set, otherwise
// $HOME/.dataiku/config.json.
func DefaultSettingsPath() string {
	if p := os.Getenv("DKU_CONFIG"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".dataiku", "config.json")
}

// LoadSettingsFile reads and decodes a settings file.
func LoadSettingsFile(path string) (*SettingsFile, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sf SettingsFile
	if err := yaml.Unmarshal(buf, &sf); err != nil {
		return nil, fmt.Errorf("error decoding settings file %q: %w", path, err)
	}
	return &sf, nil
}

// LoadSettings returns the settings for the named instance (or the
// file's default instance, if instance is empty) from the file at
// DefaultSettingsPath, overridden by any DKU_* environment
// variables. A missing settings file is not an error.
func LoadSettings(instance string) (Settings, error) {
	return loadSettings(DefaultSettingsPath(), instance)
}

func loadSettings(path, instance string) (Settings, error) {
	var merged Settings
	if path != "" {
		sf, err := LoadSettingsFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			if instance != "" {
				return merged, fmt.Errorf("instance %q requested but settings file %q does not exist", instance, path)
			}
		case err != nil:
			return merged, err
		default:
			name := instance
			if name == "" {
				name = sf.DefaultInstance
			}
			if name == "" {
				name = "default"
			}
			s, ok := sf.Instances[name]
			if !ok && instance != "" {
				return merged, fmt.Errorf("instance %q not found in settings file %q", instance, path)
			}
			merged = s
		}
	}

	var fromEnv Settings
	if err := env.Parse(&fromEnv); err != nil {
		return merged, fmt.Errorf("error loading settings from environment: %w", err)
	}
	// Environment variables override the file, except that an
	// empty/false variable can't override a non-empty/true file
	// setting.
	if err := mergo.Merge(&merged, fromEnv, mergo.WithOverride); err != nil {
		return merged, err
	}
	return merged, nil
}

// NewClientFromSettings returns a Client configured by s.
func NewClientFromSettings(s Settings) (*Client, error) {
	if s.URL == "" {
		return nil, errors.New("no DSS server URL configured (set DKU_DSS_URL or add an instance to the settings file)")
	}
	client, err := NewClient(s.URL, s.APIKey, s.NoCheckCertificate)
	if err != nil {
		return nil, err
	}
	client.Workspace = s.Workspace
	client.ActAs = s.ActAs
	client.Timeout = s.Timeout.Duration()
	if client.Timeout == 0 {
		client.Timeout = DefaultTimeout
	}
	return client, nil
}

// NewClientFromEnv returns a Client configured by the default
// instance in the settings file and the DKU_* environment variables.
func NewClientFromEnv() (*Client, error) {
	s, err := LoadSettings("")
	if err != nil {
		return nil, err
	}
	return NewClientFromSettings(s)
}
