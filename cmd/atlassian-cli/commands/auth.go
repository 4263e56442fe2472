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

package commands

import (
	"bufio"
	"net/url"
	"strings"

	"github.com/pterm/pterm"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"

	"github.com/omar16100/atlassian-cli/cmd/atlassian-cli/opts"
	"github.com/omar16100/atlassian-cli/pkg/config"
)

// NewAuthCmd creates the auth command group.
func NewAuthCmd(o *opts.RootOpts) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage profiles and API tokens",
	}

	cmd.AddCommand(
		newAuthLoginCmd(o),
		newAuthTestCmd(o),
		newAuthLogoutCmd(o),
	)
	return cmd
}

func newAuthLoginCmd(o *opts.RootOpts) *cobra.Command {
	var (
		profileName string
		site        string
		email       string
		token       string
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store credentials for an Atlassian site",
		Long: `Login writes a profile to the config file and stores the API token in
the system keyring. When the keyring is unavailable the token is kept
in the config file instead.

Create an API token at https://id.atlassian.com/manage-profile/security/api-tokens.`,
		Example: `  atlassian-cli auth login --name work --site https://acme.atlassian.net --email me@acme.com`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := zerolog.Ctx(ctx)

			parsed, err := url.Parse(site)
			if err != nil || !parsed.IsAbs() {
				return errors.Errorf("invalid Atlassian site URL %q", site)
			}

			if token == "" {
				pterm.Info.Print("API token: ")
				scanner := bufio.NewScanner(cmd.InOrStdin())
				if !scanner.Scan() {
					return errors.New("no token provided")
				}
				token = strings.TrimSpace(scanner.Text())
				if token == "" {
					return errors.New("no token provided")
				}
			}

			profile := config.Profile{BaseURL: site, Email: email}
			if err := o.Auth.Set(ctx, profileName, token); err != nil {
				logger.Warn().Err(err).Msg("keyring unavailable, storing token in config file")
				profile.APIToken = token
			}

			o.Config.SetProfile(profileName, profile)
			if o.Config.DefaultProfile == "" {
				o.Config.DefaultProfile = profileName
			}
			if err := config.Save(ctx, o.Config); err != nil {
				return err
			}

			pterm.Success.WithPrefix(pterm.Prefix{Text: "🔐"}).
				Printfln("Profile %s saved (%s)", profileName, site)
			return nil
		},
	}

	cmd.Flags().StringVar(&profileName, "name", "default", "profile name")
	cmd.Flags().StringVar(&site, "site", "", "Atlassian site URL, e.g. https://acme.atlassian.net")
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&token, "token", "", "API token (prompted when omitted)")
	cmd.MarkFlagRequired("site")
	cmd.MarkFlagRequired("email")
	return cmd
}

func newAuthTestCmd(o *opts.RootOpts) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "test",
		Short: "Verify the active profile's credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client, err := o.SiteClient(ctx)
			if err != nil {
				return err
			}

			var me struct {
				AccountID    string `json:"accountId"`
				DisplayName  string `json:"displayName"`
				EmailAddress string `json:"emailAddress"`
			}
			if err := client.Get(ctx, "/rest/api/3/myself", &me); err != nil {
				return errors.Errorf("credential check failed: %w", err)
			}

			pterm.Success.WithPrefix(pterm.Prefix{Text: "✅"}).
				Printfln("Authenticated as %s", me.DisplayName)
			return o.Renderer(cmd.OutOrStdout()).Render(map[string]string{
				"id":    me.AccountID,
				"name":  me.DisplayName,
				"email": me.EmailAddress,
			})
		},
	}
	return cmd
}

func newAuthLogoutCmd(o *opts.RootOpts) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Remove the active profile's stored token",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			name, profile, err := o.Config.ResolveProfile(o.ProfileName)
			if err != nil {
				return err
			}

			if err := o.Auth.Delete(ctx, name); err != nil {
				return err
			}
			if profile.APIToken != "" {
				profile.APIToken = ""
				o.Config.SetProfile(name, profile)
				if err := config.Save(ctx, o.Config); err != nil {
					return err
				}
			}

			pterm.Success.WithPrefix(pterm.Prefix{Text: "🔓"}).
				Printfln("Token removed for profile %s", name)
			return nil
		},
	}
	return cmd
}
