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
	"os"
	"slices"
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

const searchPageSize = 100

// NewJiraCmd creates the jira command group.
func NewJiraCmd(o *opts.RootOpts) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jira",
		Short: "Jira issue operations",
	}

	bulkCmd := &cobra.Command{
		Use:   "bulk",
		Short: "Bulk operations over issues matched by JQL",
	}
	bulkCmd.AddCommand(
		newJiraTransitionCmd(o),
		newJiraAssignCmd(o),
		newJiraLabelCmd(o),
		newJiraExportCmd(o),
		newJiraImportCmd(o),
	)

	cmd.AddCommand(bulkCmd)
	return cmd
}

// buildJQL combines the convenience --project filter with a raw --jql
// clause into one query. At least one of the two must be given.
func buildJQL(project, jql string) (string, error) {
	var b query.Builder
	if project != "" {
		b.Eq("project", project)
	}
	b.Raw(jql)

	q, err := b.Build()
	if err != nil {
		return "", errors.Errorf("selecting issues: %w (pass --jql or --project)", err)
	}
	return q, nil
}

func newJiraTransitionCmd(o *opts.RootOpts) *cobra.Command {
	var (
		flags      bulkFlags
		jql        string
		project    string
		transition string
	)

	cmd := &cobra.Command{
		Use:   "transition",
		Short: "Transition every issue matching a JQL query",
		Example: `  atlassian-cli jira bulk transition --jql 'project = OPS AND status = "In Review"' --transition Done
  atlassian-cli jira bulk transition --jql 'sprint = 42' --transition "In Progress" --dry-run`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			q, err := buildJQL(project, jql)
			if err != nil {
				return err
			}
			client, err := o.SiteClient(ctx)
			if err != nil {
				return err
			}

			keys, err := searchIssueKeys(ctx, client, q)
			if err != nil {
				return err
			}
			if len(keys) == 0 {
				return runBulk(ctx, o, cmd, flags, "transitioning issues", nil, nil)
			}

			// Transitions are workflow-specific; resolve the name to an
			// ID once against the first matched issue.
			transitionID, err := resolveTransitionID(ctx, client, keys[0], transition)
			if err != nil {
				return err
			}

			op := bulk.WithPreview(
				bulk.OperationFunc(func(ctx context.Context, item bulk.Item) (string, error) {
					payload := map[string]any{
						"transition": map[string]string{"id": transitionID},
					}
					err := client.Post(ctx, fmt.Sprintf("/rest/api/3/issue/%s/transitions", item.ID), payload, nil)
					if err != nil {
						return "", err
					}
					return "transitioned to " + transition, nil
				}),
				func(ctx context.Context, item bulk.Item) (string, error) {
					return fmt.Sprintf("would transition %s to %s", item.ID, transition), nil
				},
			)

			return runBulk(ctx, o, cmd, flags, "transitioning issues", bulk.Items(keys), op)
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&jql, "jql", "", "JQL query selecting the issues")
	cmd.Flags().StringVar(&project, "project", "", "restrict to one project key")
	cmd.Flags().StringVar(&transition, "transition", "", "transition name or ID to apply")
	cmd.MarkFlagRequired("transition")
	return cmd
}

func newJiraAssignCmd(o *opts.RootOpts) *cobra.Command {
	var (
		flags    bulkFlags
		jql      string
		project  string
		assignee string
	)

	cmd := &cobra.Command{
		Use:   "assign",
		Short: "Assign every issue matching a JQL query",
		Long: `Assign sets the assignee on every matched issue. The assignee is an
Atlassian account ID; pass "none" to unassign.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			q, err := buildJQL(project, jql)
			if err != nil {
				return err
			}
			client, err := o.SiteClient(ctx)
			if err != nil {
				return err
			}

			keys, err := searchIssueKeys(ctx, client, q)
			if err != nil {
				return err
			}

			var accountID any
			if assignee != "none" {
				accountID = assignee
			}

			op := bulk.WithPreview(
				bulk.OperationFunc(func(ctx context.Context, item bulk.Item) (string, error) {
					payload := map[string]any{"accountId": accountID}
					err := client.Put(ctx, fmt.Sprintf("/rest/api/3/issue/%s/assignee", item.ID), payload, nil)
					if err != nil {
						return "", err
					}
					return "assigned to " + assignee, nil
				}),
				func(ctx context.Context, item bulk.Item) (string, error) {
					return fmt.Sprintf("would assign %s to %s", item.ID, assignee), nil
				},
			)

			return runBulk(ctx, o, cmd, flags, "assigning issues", bulk.Items(keys), op)
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&jql, "jql", "", "JQL query selecting the issues")
	cmd.Flags().StringVar(&project, "project", "", "restrict to one project key")
	cmd.Flags().StringVar(&assignee, "assignee", "", `assignee account ID, or "none" to unassign`)
	cmd.MarkFlagRequired("assignee")
	return cmd
}

func newJiraLabelCmd(o *opts.RootOpts) *cobra.Command {
	var (
		flags   bulkFlags
		jql     string
		project string
		add     []string
		remove  []string
	)

	cmd := &cobra.Command{
		Use:   "label",
		Short: "Add or remove labels on every issue matching a JQL query",
		Example: `  atlassian-cli jira bulk label --jql 'project = OPS' --add triaged
  atlassian-cli jira bulk label --jql 'labels = legacy' --remove legacy --add migrated`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(add) == 0 && len(remove) == 0 {
				return errors.New("at least one of --add or --remove is required")
			}

			ctx := cmd.Context()
			q, err := buildJQL(project, jql)
			if err != nil {
				return err
			}
			client, err := o.SiteClient(ctx)
			if err != nil {
				return err
			}

			keys, err := searchIssueKeys(ctx, client, q)
			if err != nil {
				return err
			}

			op := bulk.WithPreview(
				bulk.OperationFunc(func(ctx context.Context, item bulk.Item) (string, error) {
					return relabelIssue(ctx, client, item.ID, add, remove)
				}),
				func(ctx context.Context, item bulk.Item) (string, error) {
					return fmt.Sprintf("would add %v and remove %v on %s", add, remove, item.ID), nil
				},
			)

			return runBulk(ctx, o, cmd, flags, "labelling issues", bulk.Items(keys), op)
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&jql, "jql", "", "JQL query selecting the issues")
	cmd.Flags().StringVar(&project, "project", "", "restrict to one project key")
	cmd.Flags().StringSliceVar(&add, "add", nil, "labels to add")
	cmd.Flags().StringSliceVar(&remove, "remove", nil, "labels to remove")
	return cmd
}

func newJiraExportCmd(o *opts.RootOpts) *cobra.Command {
	var (
		jql     string
		project string
		file    string
		format  string
		fields  []string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export every issue matching a JQL query to a file",
		Example: `  atlassian-cli jira bulk export --jql 'project = OPS' --file issues.json
  atlassian-cli jira bulk export --project OPS --file issues.csv --format csv`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "json" && format != "csv" {
				return errors.Errorf("unsupported export format %q (expected json or csv)", format)
			}

			ctx := cmd.Context()
			q, err := buildJQL(project, jql)
			if err != nil {
				return err
			}
			client, err := o.SiteClient(ctx)
			if err != nil {
				return err
			}

			issues, err := searchIssues(ctx, client, q, fields)
			if err != nil {
				return err
			}
			if len(issues) == 0 {
				zerolog.Ctx(ctx).Info().Msg("no issues matched, nothing to export")
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
				err = enc.Encode(issues)
			case "csv":
				err = writeIssueCSV(out, issues)
			}
			if err != nil {
				return errors.Errorf("writing %s export: %w", format, err)
			}

			pterm.Success.WithPrefix(pterm.Prefix{Text: "📤"}).
				Printfln("Exported %d issues to %s", len(issues), file)
			return nil
		},
	}

	cmd.Flags().StringVar(&jql, "jql", "", "JQL query selecting the issues")
	cmd.Flags().StringVar(&project, "project", "", "restrict to one project key")
	cmd.Flags().StringVar(&file, "file", "", "destination file")
	cmd.Flags().StringVar(&format, "format", "json", "export format (json or csv)")
	cmd.Flags().StringSliceVar(&fields, "fields", nil, "issue fields to fetch (default all)")
	cmd.MarkFlagRequired("file")
	return cmd
}

// importIssue is one row of a bulk import file.
type importIssue struct {
	Summary     string   `json:"summary"`
	IssueType   string   `json:"issue_type"`
	Description string   `json:"description,omitempty"`
	Assignee    string   `json:"assignee,omitempty"`
	Priority    string   `json:"priority,omitempty"`
	Labels      []string `json:"labels,omitempty"`
}

func newJiraImportCmd(o *opts.RootOpts) *cobra.Command {
	var (
		flags   bulkFlags
		file    string
		project string
	)

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Create issues in a project from a JSON file",
		Long: `Import reads a JSON array of issues and creates each one in the target
project. Each entry needs at least "summary" and "issue_type"; description,
assignee, priority and labels are optional.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			data, err := os.ReadFile(file)
			if err != nil {
				return errors.Errorf("reading import file: %w", err)
			}
			var issues []importIssue
			if err := json.Unmarshal(data, &issues); err != nil {
				return errors.Errorf("parsing import file %s: %w", file, err)
			}

			client, err := o.SiteClient(ctx)
			if err != nil {
				return err
			}

			items := make([]bulk.Item, len(issues))
			for i, is := range issues {
				items[i] = bulk.NewItem(fmt.Sprintf("row-%d", i+1), is)
			}

			op := bulk.WithPreview(
				bulk.OperationFunc(func(ctx context.Context, item bulk.Item) (string, error) {
					is := item.Payload.(importIssue)
					payload := map[string]any{"fields": buildIssueFields(project, is)}
					var resp struct {
						Key string `json:"key"`
					}
					if err := client.Post(ctx, "/rest/api/3/issue", payload, &resp); err != nil {
						return "", err
					}
					return "created " + resp.Key, nil
				}),
				func(ctx context.Context, item bulk.Item) (string, error) {
					is := item.Payload.(importIssue)
					return fmt.Sprintf("would create %q in %s", is.Summary, project), nil
				},
			)

			return runBulk(ctx, o, cmd, flags, "importing issues", items, op)
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&file, "file", "", "JSON file with the issues to create")
	cmd.Flags().StringVar(&project, "project", "", "project key to create the issues in")
	cmd.MarkFlagRequired("file")
	cmd.MarkFlagRequired("project")
	return cmd
}

// buildIssueFields maps one import row onto the issue-create fields
// payload. Descriptions become a single-paragraph Atlassian document.
func buildIssueFields(project string, is importIssue) map[string]any {
	fields := map[string]any{
		"project":   map[string]string{"key": project},
		"issuetype": map[string]string{"name": is.IssueType},
		"summary":   is.Summary,
	}
	if is.Description != "" {
		fields["description"] = map[string]any{
			"type":    "doc",
			"version": 1,
			"content": []map[string]any{{
				"type": "paragraph",
				"content": []map[string]any{{
					"type": "text",
					"text": is.Description,
				}},
			}},
		}
	}
	if is.Assignee != "" {
		fields["assignee"] = map[string]string{"id": is.Assignee}
	}
	if is.Priority != "" {
		fields["priority"] = map[string]string{"name": is.Priority}
	}
	if len(is.Labels) > 0 {
		fields["labels"] = is.Labels
	}
	return fields
}

// searchIssues pages through the Jira search API collecting the raw
// issue documents, optionally restricted to a set of fields.
func searchIssues(ctx context.Context, client *api.Client, jql string, fields []string) ([]map[string]any, error) {
	fieldList := []string{"*all"}
	if len(fields) > 0 {
		fieldList = fields
	}

	type searchResponse struct {
		Issues     []map[string]any `json:"issues"`
		StartAt    *int             `json:"startAt"`
		MaxResults *int             `json:"maxResults"`
		Total      *int             `json:"total"`
	}

	fetch := func(ctx context.Context, startAt, maxResults int) (api.PagedResponse[map[string]any], error) {
		payload := map[string]any{
			"jql":        jql,
			"startAt":    startAt,
			"maxResults": maxResults,
			"fields":     fieldList,
		}
		var resp searchResponse
		if err := client.Post(ctx, "/rest/api/3/search", payload, &resp); err != nil {
			return api.PagedResponse[map[string]any]{}, errors.Errorf("searching issues: %w", err)
		}
		return api.PagedResponse[map[string]any]{
			Values:     resp.Issues,
			StartAt:    resp.StartAt,
			MaxResults: resp.MaxResults,
			Total:      resp.Total,
		}, nil
	}

	return api.FetchAll(ctx, fetch, searchPageSize, 0)
}

// writeIssueCSV flattens the commonly wanted issue fields into rows.
func writeIssueCSV(out io.Writer, issues []map[string]any) error {
	w := csv.NewWriter(out)
	if err := w.Write([]string{"key", "summary", "status", "assignee", "reporter", "created"}); err != nil {
		return errors.WithStack(err)
	}
	for _, issue := range issues {
		row := []string{
			stringAt(issue, "key"),
			stringAt(issue, "fields", "summary"),
			stringAt(issue, "fields", "status", "name"),
			stringAt(issue, "fields", "assignee", "displayName"),
			stringAt(issue, "fields", "reporter", "displayName"),
			stringAt(issue, "fields", "created"),
		}
		if err := w.Write(row); err != nil {
			return errors.WithStack(err)
		}
	}
	w.Flush()
	return errors.WithStack(w.Error())
}

// stringAt digs a string out of nested JSON maps, returning "" when any
// step is missing or not a map.
func stringAt(m map[string]any, path ...string) string {
	var cur any = m
	for _, key := range path {
		mm, ok := cur.(map[string]any)
		if !ok {
			return ""
		}
		cur = mm[key]
	}
	s, _ := cur.(string)
	return s
}

// searchIssueKeys pages through the Jira search API collecting the keys
// of every issue matching jql.
func searchIssueKeys(ctx context.Context, client *api.Client, jql string) ([]string, error) {
	type issue struct {
		Key string `json:"key"`
	}
	type searchResponse struct {
		Issues     []issue `json:"issues"`
		StartAt    *int    `json:"startAt"`
		MaxResults *int    `json:"maxResults"`
		Total      *int    `json:"total"`
	}

	fetch := func(ctx context.Context, startAt, maxResults int) (api.PagedResponse[string], error) {
		payload := map[string]any{
			"jql":        jql,
			"startAt":    startAt,
			"maxResults": maxResults,
			"fields":     []string{"key"},
		}
		var resp searchResponse
		if err := client.Post(ctx, "/rest/api/3/search", payload, &resp); err != nil {
			return api.PagedResponse[string]{}, errors.Errorf("searching issues: %w", err)
		}

		keys := make([]string, len(resp.Issues))
		for i, is := range resp.Issues {
			keys[i] = is.Key
		}
		return api.PagedResponse[string]{
			Values:     keys,
			StartAt:    resp.StartAt,
			MaxResults: resp.MaxResults,
			Total:      resp.Total,
		}, nil
	}

	return api.FetchAll(ctx, fetch, searchPageSize, 0)
}

// resolveTransitionID maps a transition name (or ID) to the workflow
// transition ID, using the transitions available on a sample issue.
func resolveTransitionID(ctx context.Context, client *api.Client, key, transition string) (string, error) {
	type transitionEntry struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	var resp struct {
		Transitions []transitionEntry `json:"transitions"`
	}

	if err := client.Get(ctx, fmt.Sprintf("/rest/api/3/issue/%s/transitions", key), &resp); err != nil {
		return "", errors.Errorf("listing transitions for %s: %w", key, err)
	}

	names := make([]string, 0, len(resp.Transitions))
	for _, t := range resp.Transitions {
		if strings.EqualFold(t.Name, transition) || t.ID == transition {
			return t.ID, nil
		}
		names = append(names, t.Name)
	}
	return "", errors.Errorf("transition %q not found on %s (available: %s)",
		transition, key, strings.Join(names, ", "))
}

// relabelIssue reads the issue's current labels and writes the updated
// set back.
func relabelIssue(ctx context.Context, client *api.Client, key string, add, remove []string) (string, error) {
	var current struct {
		Fields struct {
			Labels []string `json:"labels"`
		} `json:"fields"`
	}
	if err := client.Get(ctx, fmt.Sprintf("/rest/api/3/issue/%s?fields=labels", key), &current); err != nil {
		return "", err
	}

	labels := current.Fields.Labels
	for _, label := range add {
		if !slices.Contains(labels, label) {
			labels = append(labels, label)
		}
	}
	if len(remove) > 0 {
		kept := labels[:0]
		for _, label := range labels {
			if !slices.Contains(remove, label) {
				kept = append(kept, label)
			}
		}
		labels = kept
	}

	payload := map[string]any{
		"fields": map[string]any{"labels": labels},
	}
	if err := client.Put(ctx, "/rest/api/3/issue/"+key, payload, nil); err != nil {
		return "", err
	}
	return "labels now " + strings.Join(labels, ","), nil
}
