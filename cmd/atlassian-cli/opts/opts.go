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

// Package opts carries the dependencies shared by every command.
package opts

import (
	"context"
	"io"

	"gitlab.com/tozd/go/errors"

	"github.com/omar16100/atlassian-cli/pkg/api"
	"github.com/omar16100/atlassian-cli/pkg/auth"
	"github.com/omar16100/atlassian-cli/pkg/config"
	"github.com/omar16100/atlassian-cli/pkg/output"
)

// bitbucketBaseURL is fixed: Bitbucket Cloud is not served from the
// site's own domain like Jira and Confluence are.
const bitbucketBaseURL = "https://api.bitbucket.org"

// 🧰 RootOpts holds the flag values and initialized dependencies every
// command needs. Load populates the dependency fields after flag
// parsing.
type RootOpts struct {
	// Flag values, bound by the root command.
	ConfigPath  string
	ProfileName string
	Format      output.Format
	Debug       bool

	// Initialized by Load.
	Config *config.Config
	Auth   *auth.Store
}

// Load reads the config file and prepares the credential store.
func (o *RootOpts) Load(ctx context.Context) error {
	cfg, err := config.Load(ctx, o.ConfigPath)
	if err != nil {
		return errors.Errorf("loading config: %w", err)
	}
	o.Config = cfg
	o.Auth = auth.NewStore()
	return nil
}

// Credentials resolves the active profile and its API token.
func (o *RootOpts) Credentials(ctx context.Context) (string, config.Profile, string, error) {
	name, profile, err := o.Config.ResolveProfile(o.ProfileName)
	if err != nil {
		return "", config.Profile{}, "", err
	}
	token, err := o.Auth.ResolveToken(ctx, name, profile)
	if err != nil {
		return "", config.Profile{}, "", err
	}
	return name, profile, token, nil
}

// SiteClient builds an API client against the profile's Atlassian site,
// for Jira and Confluence endpoints.
func (o *RootOpts) SiteClient(ctx context.Context) (*api.Client, error) {
	name, profile, token, err := o.Credentials(ctx)
	if err != nil {
		return nil, err
	}
	if profile.BaseURL == "" {
		return nil, errors.Errorf("profile %q has no base_url; run `atlassian-cli auth login`", name)
	}
	return api.NewClient(profile.BaseURL, api.WithBasicAuth(profile.Email, token))
}

// BitbucketClient builds an API client against Bitbucket Cloud.
func (o *RootOpts) BitbucketClient(ctx context.Context) (*api.Client, error) {
	_, profile, token, err := o.Credentials(ctx)
	if err != nil {
		return nil, err
	}
	return api.NewClient(bitbucketBaseURL, api.WithBasicAuth(profile.Email, token))
}

// Renderer creates a result renderer in the selected output format.
func (o *RootOpts) Renderer(out io.Writer) *output.Renderer {
	return output.NewRenderer(o.Format, out)
}

// Progress creates a live progress renderer for bulk runs.
func (o *RootOpts) Progress(out io.Writer) *output.ProgressRenderer {
	return output.NewProgressRenderer(o.Format, out)
}
