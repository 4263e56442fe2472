// Copyright 2025 omar16100
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads and persists the CLI's profile configuration.
// Profiles name an Atlassian site plus the identity used against it;
// tokens may live in the file, the environment, or the system keyring.
package config

import (
	"os"
	"path/filepath"
	"sort"

	"gitlab.com/tozd/go/errors"
)

// ErrNoProfile is returned when no profile can be resolved.
var ErrNoProfile = errors.Base("no profile configured")

// 🗂️ Config is the full on-disk CLI configuration.
type Config struct {
	DefaultProfile string             `json:"default_profile,omitempty" yaml:"default_profile,omitempty"`
	Profiles       map[string]Profile `json:"profiles,omitempty" yaml:"profiles,omitempty"`

	// location is the path the config was loaded from, for re-saving.
	location string
}

// 👤 Profile names an Atlassian Cloud site and the identity used against
// it. All fields are optional to support partially configured setups,
// e.g. when the token lives in the keyring instead of the file.
type Profile struct {
	BaseURL  string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	Email    string `json:"email,omitempty" yaml:"email,omitempty"`
	APIToken string `json:"api_token,omitempty" yaml:"api_token,omitempty"`
}

// DefaultPath returns the default config file location,
// ~/.atlassian-cli/config.yaml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".atlassian-cli", "config.yaml")
}

// Location returns the path this config was loaded from.
func (c *Config) Location() string {
	return c.location
}

// Profile retrieves a profile by name.
func (c *Config) Profile(name string) (Profile, bool) {
	p, ok := c.Profiles[name]
	return p, ok
}

// SetProfile adds or replaces a profile.
func (c *Config) SetProfile(name string, p Profile) {
	if c.Profiles == nil {
		c.Profiles = make(map[string]Profile)
	}
	c.Profiles[name] = p
}

// ResolveProfile returns the requested profile, falling back to the
// default profile and then to the first configured one by name.
func (c *Config) ResolveProfile(requested string) (string, Profile, error) {
	if requested != "" {
		if p, ok := c.Profiles[requested]; ok {
			return requested, p, nil
		}
		return "", Profile{}, errors.Errorf("%w: profile %q not found", ErrNoProfile, requested)
	}

	if c.DefaultProfile != "" {
		if p, ok := c.Profiles[c.DefaultProfile]; ok {
			return c.DefaultProfile, p, nil
		}
	}

	names := make([]string, 0, len(c.Profiles))
	for name := range c.Profiles {
		names = append(names, name)
	}
	if len(names) == 0 {
		return "", Profile{}, errors.WithStack(ErrNoProfile)
	}
	sort.Strings(names)
	return names[0], c.Profiles[names[0]], nil
}
