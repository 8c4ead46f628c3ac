package loader

import (
	"context"
	"errors"
	"fmt"

	"github.com/amishk599/jobcatalog/internal/dedup"
	"github.com/amishk599/jobcatalog/internal/model"
	"github.com/amishk599/jobcatalog/internal/store"
)

// ErrAlreadyReviewed is returned when a link was resolved before.
var ErrAlreadyReviewed = errors.New("duplicate link already reviewed")

// ResolveReview applies a reviewer's decision to an unreviewed link. Approving
// supersedes the duplicate's chain root with the canonical's root and moves its
// sightings over; rejecting keeps both jobs. Either way the link is marked reviewed.
func (l *Loader) ResolveReview(ctx context.Context, linkID string, approve bool) (*model.DuplicateLink, error) {
	var out *model.DuplicateLink
	err := l.store.WithTx(ctx, func(q *store.Queries) error {
		link, err := q.GetDuplicateLink(ctx, linkID)
		if err != nil {
			return err
		}
		if link.Reviewed {
			return ErrAlreadyReviewed
		}

		resolution := model.ResolutionRejected
		if approve {
			resolution = model.ResolutionApproved
			if err := l.supersede(ctx, q, link); err != nil {
				return err
			}
		}
		now := l.clock.Now()
		if err := q.MarkReviewed(ctx, link.ID, resolution, now); err != nil {
			return err
		}
		link.Reviewed, link.Resolution, link.ReviewedAt = true, resolution, &now
		out = link
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("resolve review %s: %w", linkID, err)
	}
	l.logger.Info("review resolved", "link_id", linkID, "resolution", out.Resolution)
	return out, nil
}

func (l *Loader) supersede(ctx context.Context, q *store.Queries, link *model.DuplicateLink) error {
	root, err := q.ResolveRoot(ctx, link.CanonicalID)
	if err != nil {
		return err
	}
	dupRoot, err := q.ResolveRoot(ctx, link.DuplicateID)
	if err != nil {
		return err
	}
	if root == dupRoot {
		return nil
	}

	target, err := q.GetCanonical(ctx, root, "")
	if err != nil {
		return err
	}
	dup, err := q.GetCanonical(ctx, dupRoot, "")
	if err != nil {
		return err
	}

	now := l.clock.Now()
	if err := q.SetSupersededBy(ctx, dup.ID, root, now); err != nil {
		return err
	}
	if merged, changed := dedup.Merge(target, asStaged(dup), now); changed {
		if err := q.UpdateCanonical(ctx, merged); err != nil {
			return err
		}
		if merged.Description != target.Description {
			if err := l.dropEmbeddings(ctx, q, root); err != nil {
				return err
			}
		}
	}
	for _, ref := range dup.Sources {
		if _, err := q.AddSourceLink(ctx, root, ref); err != nil {
			return err
		}
	}
	return q.EnqueueIndex(ctx, dup.ID, store.OpDelete, "", now)
}

// asStaged views a canonical job as merge input. The embedding is left out:
// the target keeps its own vector unless the description changes.
func asStaged(c *model.CanonicalJob) *model.StagedJob {
	return &model.StagedJob{
		Title:          c.Title,
		Company:        c.Company,
		Location:       c.Location,
		Description:    c.Description,
		Salary:         c.Salary,
		EmploymentType: c.EmploymentType,
		Skills:         c.Skills,
		URL:            c.URL,
		ApplyURL:       c.ApplyURL,
		PostedAt:       c.PostedAt,
		ContentHash:    c.ContentHash,
		QualityScore:   c.QualityScore,
	}
}
