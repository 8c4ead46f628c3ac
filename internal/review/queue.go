// Package review is the interactive duplicate-review queue.
package review

import (
	"context"
	"fmt"
	"sort"

	"github.com/amishk599/jobcatalog/internal/model"
)

// Item is one pending link with both sides loaded.
type Item struct {
	Link      model.DuplicateLink
	Canonical *model.CanonicalJob
	Duplicate *model.CanonicalJob
}

// Reader is the read side of the store the queue needs.
type Reader interface {
	ListUnreviewed(ctx context.Context, limit int) ([]model.DuplicateLink, error)
	GetCanonicals(ctx context.Context, ids []string, modelID string) ([]model.CanonicalJob, error)
}

// Resolver applies a decision to a link.
type Resolver interface {
	ResolveReview(ctx context.Context, linkID string, approve bool) (*model.DuplicateLink, error)
}

// LoadQueue reads up to limit unreviewed links and the jobs on both sides.
// Links whose jobs have disappeared are dropped.
func LoadQueue(ctx context.Context, r Reader, limit int) ([]Item, error) {
	links, err := r.ListUnreviewed(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list unreviewed: %w", err)
	}
	if len(links) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, 2*len(links))
	for _, l := range links {
		ids = append(ids, l.CanonicalID, l.DuplicateID)
	}
	jobs, err := r.GetCanonicals(ctx, ids, "")
	if err != nil {
		return nil, fmt.Errorf("load linked jobs: %w", err)
	}
	byID := make(map[string]*model.CanonicalJob, len(jobs))
	for i := range jobs {
		byID[jobs[i].ID] = &jobs[i]
	}

	items := make([]Item, 0, len(links))
	for _, l := range links {
		c, d := byID[l.CanonicalID], byID[l.DuplicateID]
		if c == nil || d == nil {
			continue
		}
		items = append(items, Item{Link: l, Canonical: c, Duplicate: d})
	}
	sortByConfidence(items)
	return items, nil
}

// Group is a strategy bucket offered by the picker.
type Group struct {
	Strategy model.Strategy // empty for all
	Count    int
}

// Label is the picker line for g.
func (g Group) Label() string {
	if g.Strategy == "" {
		return fmt.Sprintf("All pending (%d)", g.Count)
	}
	return fmt.Sprintf("%s matches (%d)", g.Strategy, g.Count)
}

// Groups buckets items by strategy, with the catch-all first.
func Groups(items []Item) []Group {
	counts := make(map[model.Strategy]int)
	for _, it := range items {
		counts[it.Link.Strategy]++
	}
	groups := []Group{{Count: len(items)}}
	for s, n := range counts {
		groups = append(groups, Group{Strategy: s, Count: n})
	}
	sort.Slice(groups[1:], func(i, j int) bool {
		return groups[i+1].Strategy < groups[j+1].Strategy
	})
	return groups
}

// Select returns the items in g.
func Select(items []Item, g Group) []Item {
	if g.Strategy == "" {
		return items
	}
	var out []Item
	for _, it := range items {
		if it.Link.Strategy == g.Strategy {
			out = append(out, it)
		}
	}
	return out
}

func sortByConfidence(items []Item) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Link.Confidence > items[j].Link.Confidence
	})
}
