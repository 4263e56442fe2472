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

package bulk

import "context"

// 🚰 Source yields the items of one run. Next returns the next item and
// true, or false once the source is exhausted. The executor does not know
// how items are produced; a source may be a bounded list or a lazy feed
// (e.g. paginated search results still being fetched).
type Source interface {
	Next(ctx context.Context) (Item, bool, error)
}

// SliceSource yields items from an in-memory slice.
type SliceSource struct {
	items []Item
	pos   int
}

// NewSliceSource creates a source over a bounded list of items.
func NewSliceSource(items []Item) *SliceSource {
	return &SliceSource{items: items}
}

// Next implements Source.
func (s *SliceSource) Next(ctx context.Context) (Item, bool, error) {
	if s.pos >= len(s.items) {
		return Item{}, false, nil
	}
	item := s.items[s.pos]
	s.pos++
	return item, true, nil
}

// Len returns the total number of items the source will yield.
func (s *SliceSource) Len() int {
	return len(s.items)
}

// ChannelSource yields items from a channel fed by a producer goroutine,
// typically a paginated remote query. The producer closes the channel when
// exhausted, or sends a terminal error through Fail.
type ChannelSource struct {
	ch  chan Item
	err chan error
}

// NewChannelSource creates a lazy source with the given buffer size.
func NewChannelSource(buffer int) *ChannelSource {
	return &ChannelSource{
		ch:  make(chan Item, buffer),
		err: make(chan error, 1),
	}
}

// Send delivers one item to the consumer, respecting ctx cancellation.
func (s *ChannelSource) Send(ctx context.Context, item Item) error {
	select {
	case s.ch <- item:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close marks the source exhausted. The producer must call it exactly once.
func (s *ChannelSource) Close() {
	close(s.ch)
}

// Fail reports a producer error and marks the source exhausted.
func (s *ChannelSource) Fail(err error) {
	s.err <- err
	close(s.ch)
}

// Next implements Source.
func (s *ChannelSource) Next(ctx context.Context) (Item, bool, error) {
	select {
	case item, ok := <-s.ch:
		if !ok {
			select {
			case err := <-s.err:
				return Item{}, false, err
			default:
				return Item{}, false, nil
			}
		}
		return item, true, nil
	case <-ctx.Done():
		return Item{}, false, ctx.Err()
	}
}
