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

package api

import (
	"context"

	"github.com/rs/zerolog"
)

// 📄 PagedResponse is the offset-based page envelope shared by the Jira
// and Confluence REST APIs. Not every endpoint sets every field; HasNext
// prefers the explicit isLast marker and falls back to offset arithmetic.
type PagedResponse[T any] struct {
	Values     []T   `json:"values"`
	StartAt    *int  `json:"startAt"`
	MaxResults *int  `json:"maxResults"`
	Total      *int  `json:"total"`
	IsLast     *bool `json:"isLast"`
}

// HasNext reports whether another page exists.
func (p PagedResponse[T]) HasNext() bool {
	if p.IsLast != nil {
		return !*p.IsLast
	}
	if p.StartAt != nil && p.MaxResults != nil && p.Total != nil {
		return *p.StartAt+*p.MaxResults < *p.Total
	}
	return false
}

// NextStart returns the offset of the next page, or -1 when exhausted.
func (p PagedResponse[T]) NextStart() int {
	if !p.HasNext() {
		return -1
	}
	if p.StartAt != nil && p.MaxResults != nil {
		return *p.StartAt + *p.MaxResults
	}
	return -1
}

// PageFetcher retrieves one page starting at the given offset.
type PageFetcher[T any] func(ctx context.Context, startAt, maxResults int) (PagedResponse[T], error)

// FetchAll walks every page and returns the concatenated values, stopping
// early at limit items when limit > 0.
func FetchAll[T any](ctx context.Context, fetch PageFetcher[T], maxResults, limit int) ([]T, error) {
	var all []T
	err := ForEachPage(ctx, fetch, maxResults, func(values []T) error {
		all = append(all, values...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// ForEachPage walks every page, invoking fn once per page. This is the
// streaming form: a bulk command can feed each page into a lazy item
// source while workers are already processing earlier pages.
func ForEachPage[T any](ctx context.Context, fetch PageFetcher[T], maxResults int, fn func(values []T) error) error {
	logger := zerolog.Ctx(ctx)
	startAt := 0
	fetched := 0

	for {
		logger.Debug().Int("start_at", startAt).Int("max_results", maxResults).Msg("fetching page")
		page, err := fetch(ctx, startAt, maxResults)
		if err != nil {
			return err
		}

		fetched += len(page.Values)
		if len(page.Values) > 0 {
			if err := fn(page.Values); err != nil {
				return err
			}
		}

		if !page.HasNext() || len(page.Values) == 0 {
			logger.Debug().Int("total_items", fetched).Msg("finished pagination")
			return nil
		}

		if next := page.NextStart(); next >= 0 {
			startAt = next
		} else {
			startAt += maxResults
		}
	}
}
