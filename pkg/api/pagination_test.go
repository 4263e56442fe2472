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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/tozd/go/errors"
)

func intp(v int) *int    { return &v }
func boolp(v bool) *bool { return &v }

func TestPagedResponseHasNext(t *testing.T) {
	tests := []struct {
		name string
		page PagedResponse[string]
		want bool
	}{
		{
			name: "is_last_false",
			page: PagedResponse[string]{IsLast: boolp(false)},
			want: true,
		},
		{
			name: "is_last_true",
			page: PagedResponse[string]{IsLast: boolp(true), StartAt: intp(0), MaxResults: intp(50), Total: intp(100)},
			want: false,
		},
		{
			name: "offset_arithmetic_more",
			page: PagedResponse[string]{StartAt: intp(0), MaxResults: intp(50), Total: intp(120)},
			want: true,
		},
		{
			name: "offset_arithmetic_done",
			page: PagedResponse[string]{StartAt: intp(100), MaxResults: intp(50), Total: intp(120)},
			want: false,
		},
		{
			name: "no_markers",
			page: PagedResponse[string]{},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.page.HasNext())
		})
	}
}

func TestFetchAllWalksPages(t *testing.T) {
	pages := [][]string{
		{"a", "b"},
		{"c", "d"},
		{"e"},
	}

	fetch := func(ctx context.Context, startAt, maxResults int) (PagedResponse[string], error) {
		idx := startAt / 2
		require.Less(t, idx, len(pages), "fetched past the last page")
		return PagedResponse[string]{
			Values:     pages[idx],
			StartAt:    intp(startAt),
			MaxResults: intp(2),
			Total:      intp(5),
		}, nil
	}

	all, err := FetchAll(context.Background(), fetch, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, all)
}

func TestFetchAllHonorsLimit(t *testing.T) {
	fetch := func(ctx context.Context, startAt, maxResults int) (PagedResponse[string], error) {
		return PagedResponse[string]{
			Values:     []string{"x", "y"},
			StartAt:    intp(startAt),
			MaxResults: intp(2),
			Total:      intp(100),
		}, nil
	}

	all, err := FetchAll(context.Background(), fetch, 2, 3)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestForEachPageStopsOnError(t *testing.T) {
	calls := 0
	fetch := func(ctx context.Context, startAt, maxResults int) (PagedResponse[string], error) {
		calls++
		if calls == 2 {
			return PagedResponse[string]{}, errors.New("page 2 unavailable")
		}
		return PagedResponse[string]{
			Values:     []string{"v"},
			StartAt:    intp(startAt),
			MaxResults: intp(1),
			Total:      intp(10),
		}, nil
	}

	err := ForEachPage(context.Background(), fetch, 1, func(values []string) error { return nil })
	require.Error(t, err)
	assert.Equal(t, 2, calls)
}

func TestForEachPageStopsOnEmptyPage(t *testing.T) {
	calls := 0
	fetch := func(ctx context.Context, startAt, maxResults int) (PagedResponse[string], error) {
		calls++
		// A lying endpoint that always claims more pages but returns none.
		return PagedResponse[string]{IsLast: boolp(false)}, nil
	}

	err := ForEachPage(context.Background(), fetch, 50, func(values []string) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, 1, calls, "an empty page must terminate pagination")
}
