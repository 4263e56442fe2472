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
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/pterm/pterm"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"

	"github.com/omar16100/atlassian-cli/cmd/atlassian-cli/opts"
	"github.com/omar16100/atlassian-cli/pkg/api"
	"github.com/omar16100/atlassian-cli/pkg/bulk"
	"github.com/omar16100/atlassian-cli/pkg/query"
)

// NewConfluenceCmd creates the confluence command group.
func NewConfluenceCmd(o *opts.RootOpts) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "confluence",
		Short: "Confluence page operations",
	}

	bulkCmd := &cobra.Command{
		Use:   "bulk",
		Short: "Bulk operations over pages matched by CQL",
	}
	bulkCmd.AddCommand(
		newConfluenceDeletePagesCmd(o),
		newConfluenceLabelPagesCmd(o),
		newConfluenceExportPagesCmd(o),
	)

	cmd.AddCommand(bulkCmd)
	return cmd
}

// buildCQL combines the convenience --space filter with a raw --cql
// clause. The space filter is restricted to pages, matching what the
// bulk page operations can act on.
func buildCQL(space, cql string) (string, error) {
	var b query.Builder
	if space != "" {
		b.Eq("space", space).Eq("type", "page")
	}
	b.Raw(cql)

	q, err := b.Build()
	if err != nil {
		return "", errors.Errorf("selecting pages: %w (pass --cql or --space)", err)
	}
	return q, nil
}

func newConfluenceDeletePagesCmd(o *opts.RootOpts) *cobra.Command {
	var (
		flags bulkFlags
		cql   string
		space string
	)

	cmd := &cobra.Command{
		Use:   "delete-pages",
		Short: "Delete every page matching a CQL query",
		Example: `  atlassian-cli confluence bulk delete-pages --space ARCHIVE --dry-run
  atlassian-cli confluence bulk delete-pages --cql 'label = obsolete' --concurrency 10`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			q, err := buildCQL(space, cql)
			if err != nil {
				return err
			}
			client, err := o.SiteClient(ctx)
			if err != nil {
				return err
			}

			// Deletion can span thousands of pages; stream the search
			// pages into the run so workers start before the search
			// finishes.
			src := bulk.NewChannelSource(searchPageSize)
			go func() {
				err := api.ForEachPage(ctx, pageFetcher(client, q), searchPageSize, func(items []bulk.Item) error {
					for _, item := range items {
						if err := src.Send(ctx, item); err != nil {
							return err
						}
					}
					return nil
				})
				if err != nil {
					src.Fail(err)
					return
				}
				src.Close()
			}()

			op := bulk.WithPreview(
				bulk.OperationFunc(func(ctx context.Context, item bulk.Item) (string, error) {
					if err := client.Delete(ctx, "/wiki/api/v2/pages/"+item.ID, nil); err != nil {
						return "", err
					}
					return "deleted", nil
				}),
				func(ctx context.Context, item bulk.Item) (string, error) {
					title, _ := item.Payload.(string)
					return fmt.Sprintf("would delete page %s (%s)", item.ID, title), nil
				},
			)

			return runBulkStream(ctx, o, cmd, flags, "deleting pages", src, op)
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&cql, "cql", "", "CQL query selecting the pages")
	cmd.Flags().StringVar(&space, "space", "", "restrict to one space key")
	return cmd
}

func newConfluenceLabelPagesCmd(o *opts.RootOpts) *cobra.Command {
	var (
		flags  bulkFlags
		cql    string
		space  string
		labels []string
	)

	cmd := &cobra.Command{
		Use:   "label-pages",
		Short: "Add labels to every page matching a CQL query",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			q, err := buildCQL(space, cql)
			if err != nil {
				return err
			}
			client, err := o.SiteClient(ctx)
			if err != nil {
				return err
			}

			pages, err := searchPages(ctx, client, q)
			if err != nil {
				return err
			}

			payload := make([]map[string]string, len(labels))
			for i, label := range labels {
				payload[i] = map[string]string{"prefix": "global", "name": label}
			}

			op := bulk.WithPreview(
				bulk.OperationFunc(func(ctx context.Context, item bulk.Item) (string, error) {
					err := client.Post(ctx, fmt.Sprintf("/wiki/rest/api/content/%s/label", item.ID), payload, nil)
					if err != nil {
						return "", err
					}
					return "labelled " + strings.Join(labels, ","), nil
				}),
				func(ctx context.Context, item bulk.Item) (string, error) {
					return fmt.Sprintf("would add labels %v to page %s", labels, item.ID), nil
				},
			)

			return runBulk(ctx, o, cmd, flags, "labelling pages", pages, op)
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&cql, "cql", "", "CQL query selecting the pages")
	cmd.Flags().StringVar(&space, "space", "", "restrict to one space key")
	cmd.Flags().StringSliceVar(&labels, "labels", nil, "labels to add")
	cmd.MarkFlagRequired("labels")
	return cmd
}

func newConfluenceExportPagesCmd(o *opts.RootOpts) *cobra.Command {
	var (
		cql    string
		space  string
		file   string
		format string
	)

	cmd := &cobra.Command{
		Use:   "export-pages",
		Short: "Export every page matching a CQL query to a file",
		Example: `  atlassian-cli confluence bulk export-pages --space DOCS --file pages.json
  atlassian-cli confluence bulk export-pages --cql 'label = runbook' --file pages.csv --format csv`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "json" && format != "csv" {
				return errors.Errorf("unsupported export format %q (expected json or csv)", format)
			}

			ctx := cmd.Context()
			q, err := buildCQL(space, cql)
			if err != nil {
				return err
			}
			client, err := o.SiteClient(ctx)
			if err != nil {
				return err
			}

			pages, err := searchPageContent(ctx, client, q)
			if err != nil {
				return err
			}
			if len(pages) == 0 {
				zerolog.Ctx(ctx).Info().Msg("no pages matched, nothing to export")
				return nil
			}

			out, err := os.Create(file)
			if err != nil {
				return errors.Errorf("creating export file: %w", err)
			}
			defer out.Close()

			switch format {
			case "json":
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				err = enc.Encode(pages)
			case "csv":
				err = writePageCSV(out, pages)
			}
			if err != nil {
				return errors.Errorf("writing %s export: %w", format, err)
			}

			pterm.Success.WithPrefix(pterm.Prefix{Text: "📤"}).
				Printfln("Exported %d pages to %s", len(pages), file)
			return nil
		},
	}

	cmd.Flags().StringVar(&cql, "cql", "", "CQL query selecting the pages")
	cmd.Flags().StringVar(&space, "space", "", "restrict to one space key")
	cmd.Flags().StringVar(&file, "file", "", "destination file")
	cmd.Flags().StringVar(&format, "format", "json", "export format (json or csv)")
	cmd.MarkFlagRequired("file")
	return cmd
}

// pageFetcher returns a page fetcher over the CQL content search,
// yielding one item per page with the title as payload for dry-run
// previews.
func pageFetcher(client *api.Client, cql string) api.PageFetcher[bulk.Item] {
	type content struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	}
	type searchResponse struct {
		Results []content `json:"results"`
		Start   *int      `json:"start"`
		Limit   *int      `json:"limit"`
	}

	return func(ctx context.Context, startAt, maxResults int) (api.PagedResponse[bulk.Item], error) {
		path := fmt.Sprintf("/wiki/rest/api/content/search?cql=%s&start=%d&limit=%d",
			url.QueryEscape(cql), startAt, maxResults)
		var resp searchResponse
		if err := client.Get(ctx, path, &resp); err != nil {
			return api.PagedResponse[bulk.Item]{}, errors.Errorf("searching pages: %w", err)
		}

		items := make([]bulk.Item, len(resp.Results))
		for i, c := range resp.Results {
			items[i] = bulk.NewItem(c.ID, c.Title)
		}

		// The content search envelope has no total; a short page means
		// we are done.
		isLast := len(resp.Results) < maxResults
		return api.PagedResponse[bulk.Item]{
			Values:     items,
			StartAt:    resp.Start,
			MaxResults: resp.Limit,
			IsLast:     &isLast,
		}, nil
	}
}

// searchPages collects every matching page up front.
func searchPages(ctx context.Context, client *api.Client, cql string) ([]bulk.Item, error) {
	return api.FetchAll(ctx, pageFetcher(client, cql), searchPageSize, 0)
}

// searchPageContent pages through the CQL content search with storage
// bodies expanded, collecting the raw page documents for export.
func searchPageContent(ctx context.Context, client *api.Client, cql string) ([]map[string]any, error) {
	type searchResponse struct {
		Results []map[string]any `json:"results"`
		Start   *int             `json:"start"`
		Limit   *int             `json:"limit"`
	}

	fetch := func(ctx context.Context, startAt, maxResults int) (api.PagedResponse[map[string]any], error) {
		path := fmt.Sprintf("/wiki/rest/api/content/search?cql=%s&start=%d&limit=%d&expand=body.storage,space",
			url.QueryEscape(cql), startAt, maxResults)
		var resp searchResponse
		if err := client.Get(ctx, path, &resp); err != nil {
			return api.PagedResponse[map[string]any]{}, errors.Errorf("searching pages: %w", err)
		}

		isLast := len(resp.Results) < maxResults
		return api.PagedResponse[map[string]any]{
			Values:     resp.Results,
			StartAt:    resp.Start,
			MaxResults: resp.Limit,
			IsLast:     &isLast,
		}, nil
	}

	return api.FetchAll(ctx, fetch, searchPageSize, 0)
}

// writePageCSV flattens the page identity fields into rows.
func writePageCSV(out io.Writer, pages []map[string]any) error {
	w := csv.NewWriter(out)
	if err := w.Write([]string{"id", "title", "type", "space"}); err != nil {
		return errors.WithStack(err)
	}
	for _, page := range pages {
		row := []string{
			stringAt(page, "id"),
			stringAt(page, "title"),
			stringAt(page, "type"),
			stringAt(page, "space", "key"),
		}
		if err := w.Write(row); err != nil {
			return errors.WithStack(err)
		}
	}
	w.Flush()
	return errors.WithStack(w.Error())
}
