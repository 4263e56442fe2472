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

package main

import (
	"context"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/omar16100/atlassian-cli/cmd/atlassian-cli/commands"
	"github.com/omar16100/atlassian-cli/cmd/atlassian-cli/opts"
)

// newRootCmd creates the root command with shared flags and all
// product subcommands.
func newRootCmd() *cobra.Command {
	o := &opts.RootOpts{}

	rootCmd := &cobra.Command{
		Use:   "atlassian-cli",
		Short: "Bulk operations for Jira, Confluence and Bitbucket Cloud",
		Long: `atlassian-cli runs bulk operations against Atlassian Cloud products:
transition or relabel Jira issues by JQL, delete or label Confluence
pages by CQL, and clean up Bitbucket branches and repositories.

Every bulk run writes a JSONL transaction log recording the outcome of
each item, and --dry-run previews a run without changing anything.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			ctx := setupLogging(cmd, o.Debug)
			cmd.SetContext(ctx)
			return o.Load(ctx)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&o.ConfigPath, "config", "c", "", "config file path (default ~/.atlassian-cli/config.yaml)")
	flags.StringVarP(&o.ProfileName, "profile", "p", "", "profile to use (default from config)")
	flags.VarP(&o.Format, "output", "o", "output format: table, json, yaml, csv or quiet")
	flags.BoolVarP(&o.Debug, "debug", "d", false, "enable debug logging")

	rootCmd.AddCommand(
		commands.NewAuthCmd(o),
		commands.NewJiraCmd(o),
		commands.NewConfluenceCmd(o),
		commands.NewBitbucketCmd(o),
	)

	return rootCmd
}

// setupLogging configures a console zerolog logger on stderr and
// returns a context carrying it.
func setupLogging(cmd *cobra.Command, debug bool) context.Context {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().
		Timestamp().
		Logger()
	return logger.WithContext(cmd.Context())
}
