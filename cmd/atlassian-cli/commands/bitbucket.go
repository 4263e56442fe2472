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
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"

	"github.com/omar16100/atlassian-cli/cmd/atlassian-cli/opts"
	"github.com/omar16100/atlassian-cli/pkg/api"
	"github.com/omar16100/atlassian-cli/pkg/bulk"
)

// protectedBranches are never deleted, whatever the pattern matches.
var protectedBranches = []string{"main", "master", "develop", "development"}

// NewBitbucketCmd creates the bitbucket command group.
func NewBitbucketCmd(o *opts.RootOpts) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bitbucket",
		Short: "Bitbucket Cloud repository operations",
	}

	bulkCmd := &cobra.Command{
		Use:   "bulk",
		Short: "Bulk cleanup operations over branches and repositories",
	}
	bulkCmd.AddCommand(
		newBitbucketDeleteBranchesCmd(o),
		newBitbucketArchiveStaleReposCmd(o),
	)

	cmd.AddCommand(bulkCmd)
	return cmd
}

func newBitbucketDeleteBranchesCmd(o *opts.RootOpts) *cobra.Command {
	var (
		flags     bulkFlags
		workspace string
		repo      string
		pattern   string
	)

	cmd := &cobra.Command{
		Use:   "delete-branches",
		Short: "Delete branches matching a glob pattern",
		Long: `Delete every branch whose name matches the glob pattern. Patterns
support ** for nested segments, e.g. 'feature/**' or 'release/*-rc*'.
The branches main, master, develop and development are never deleted.`,
		Example: `  atlassian-cli bitbucket bulk delete-branches --workspace acme --repo api --pattern 'feature/**' --dry-run`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !doublestar.ValidatePattern(pattern) {
				return errors.Errorf("invalid glob pattern %q", pattern)
			}

			ctx := cmd.Context()
			client, err := o.BitbucketClient(ctx)
			if err != nil {
				return err
			}

			branches, err := listBranches(ctx, client, workspace, repo)
			if err != nil {
				return err
			}

			var items []bulk.Item
			for _, branch := range branches {
				if isProtectedBranch(branch) {
					continue
				}
				if ok, _ := doublestar.Match(pattern, branch); ok {
					items = append(items, bulk.NewItem(branch, nil))
				}
			}

			op := bulk.WithPreview(
				bulk.OperationFunc(func(ctx context.Context, item bulk.Item) (string, error) {
					path := fmt.Sprintf("/2.0/repositories/%s/%s/refs/branches/%s",
						workspace, repo, url.PathEscape(item.ID))
					if err := client.Delete(ctx, path, nil); err != nil {
						return "", err
					}
					return "deleted", nil
				}),
				func(ctx context.Context, item bulk.Item) (string, error) {
					return fmt.Sprintf("would delete branch %s from %s/%s", item.ID, workspace, repo), nil
				},
			)

			return runBulk(ctx, o, cmd, flags, "deleting branches", items, op)
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&workspace, "workspace", "", "Bitbucket workspace")
	cmd.Flags().StringVar(&repo, "repo", "", "repository slug")
	cmd.Flags().StringVar(&pattern, "pattern", "", "glob pattern selecting branches")
	cmd.MarkFlagRequired("workspace")
	cmd.MarkFlagRequired("repo")
	cmd.MarkFlagRequired("pattern")
	return cmd
}

func newBitbucketArchiveStaleReposCmd(o *opts.RootOpts) *cobra.Command {
	var (
		flags     bulkFlags
		workspace string
		days      int
	)

	cmd := &cobra.Command{
		Use:   "archive-stale-repos",
		Short: "Archive repositories with no activity for a number of days",
		Long: `Archive disables the issue tracker and wiki on every repository in
the workspace whose last update is older than the threshold.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := zerolog.Ctx(ctx)
			client, err := o.BitbucketClient(ctx)
			if err != nil {
				return err
			}

			repos, err := listRepositories(ctx, client, workspace)
			if err != nil {
				return err
			}

			cutoff := time.Now().Add(-time.Duration(days) * 24 * time.Hour)
			var items []bulk.Item
			for _, r := range repos {
				if r.UpdatedOn == "" {
					continue
				}
				updated, err := time.Parse(time.RFC3339, r.UpdatedOn)
				if err != nil {
					logger.Warn().Str("repo", r.Slug).Str("updated_on", r.UpdatedOn).
						Msg("unparseable update timestamp, skipping repository")
					continue
				}
				if updated.Before(cutoff) {
					items = append(items, bulk.NewItem(r.Slug, r.UpdatedOn))
				}
			}

			op := bulk.WithPreview(
				bulk.OperationFunc(func(ctx context.Context, item bulk.Item) (string, error) {
					payload := map[string]any{
						"has_issues": false,
						"has_wiki":   false,
					}
					path := fmt.Sprintf("/2.0/repositories/%s/%s", workspace, item.ID)
					if err := client.Put(ctx, path, payload, nil); err != nil {
						return "", err
					}
					return "archived", nil
				}),
				func(ctx context.Context, item bulk.Item) (string, error) {
					lastUpdated, _ := item.Payload.(string)
					return fmt.Sprintf("would archive %s/%s (last updated %s)", workspace, item.ID, lastUpdated), nil
				},
			)

			return runBulk(ctx, o, cmd, flags, "archiving stale repositories", items, op)
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&workspace, "workspace", "", "Bitbucket workspace")
	cmd.Flags().IntVar(&days, "days", 180, "staleness threshold in days")
	cmd.MarkFlagRequired("workspace")
	return cmd
}

func isProtectedBranch(name string) bool {
	for _, p := range protectedBranches {
		if name == p {
			return true
		}
	}
	return false
}

// bitbucketRepo is the subset of the repository envelope we use.
type bitbucketRepo struct {
	Slug      string `json:"slug"`
	UpdatedOn string `json:"updated_on"`
}

// listBranches walks Bitbucket's cursor-style pagination for branch
// names.
func listBranches(ctx context.Context, client *api.Client, workspace, repo string) ([]string, error) {
	type branch struct {
		Name string `json:"name"`
	}
	var names []string

	path := fmt.Sprintf("/2.0/repositories/%s/%s/refs/branches?pagelen=100", workspace, repo)
	for path != "" {
		var page struct {
			Values []branch `json:"values"`
			Next   string   `json:"next"`
		}
		if err := client.Get(ctx, path, &page); err != nil {
			return nil, errors.Errorf("listing branches for %s/%s: %w", workspace, repo, err)
		}
		for _, b := range page.Values {
			names = append(names, b.Name)
		}
		path = page.Next
	}
	return names, nil
}

// listRepositories walks every repository in the workspace.
func listRepositories(ctx context.Context, client *api.Client, workspace string) ([]bitbucketRepo, error) {
	var repos []bitbucketRepo

	path := fmt.Sprintf("/2.0/repositories/%s?pagelen=100", workspace)
	for path != "" {
		var page struct {
			Values []bitbucketRepo `json:"values"`
			Next   string          `json:"next"`
		}
		if err := client.Get(ctx, path, &page); err != nil {
			return nil, errors.Errorf("listing repositories in %s: %w", workspace, err)
		}
		repos = append(repos, page.Values...)
		path = page.Next
	}
	return repos, nil
}
