package store

import (
	"context"
	"database/sql"

	"github.com/amishk599/jobcatalog/internal/embed"
	"github.com/amishk599/jobcatalog/internal/model"
)

const stagedColumns = `id, processing_record_id, raw_collection_id, source, item_index, external_id, signature,
	title, company, location, description, title_norm, company_norm, location_norm,
	salary_min, salary_max, salary_currency, employment_type, skills, url, apply_url, posted_at,
	content_hash, quality_score, embedding_model, embedding, collected_at, status, canonical_id`

func (q *Queries) insertStaged(ctx context.Context, s *model.StagedJob) error {
	smin, smax, scur := salaryArgs(s.Salary)
	var embModel sql.NullString
	var vec []byte
	if s.Embedding != nil {
		embModel = nullString(s.Embedding.Model)
		vec = embed.Encode(s.Embedding.Vector)
	}
	if s.Status == "" {
		s.Status = model.StagedPending
	}
	_, err := q.exec(ctx, "insert staged job",
		`INSERT INTO staged_jobs (`+stagedColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT DO NOTHING`,
		s.ID, s.ProcessingRecordID, s.RawCollectionID, s.Source, s.ItemIndex, s.ExternalID, s.Signature,
		s.Title, s.Company, s.Location, s.Description, s.TitleNorm, s.CompanyNorm, s.LocationNorm,
		smin, smax, scur, s.EmploymentType, encodeStrings(s.Skills), s.URL, s.ApplyURL, nullMillis(s.PostedAt),
		s.ContentHash, s.QualityScore, embModel, vec, millis(s.CollectedAt), string(s.Status), nullString(s.CanonicalID))
	return err
}

// PendingStagedJobs lists staged jobs not yet loaded, in collection order.
func (q *Queries) PendingStagedJobs(ctx context.Context, limit int) ([]model.StagedJob, error) {
	var rows []stagedRow
	err := q.selectRows(ctx, "list pending staged jobs", &rows,
		`SELECT `+stagedColumns+` FROM staged_jobs WHERE status = ? ORDER BY collected_at, processing_record_id, item_index LIMIT ?`,
		string(model.StagedPending), limitOrDefault(limit))
	if err != nil {
		return nil, err
	}
	out := make([]model.StagedJob, 0, len(rows))
	for _, r := range rows {
		s, err := r.model()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// MarkStagedLoaded records which canonical job absorbed a staged job.
func (q *Queries) MarkStagedLoaded(ctx context.Context, stagedID, canonicalID string) error {
	_, err := q.exec(ctx, "mark staged job loaded",
		`UPDATE staged_jobs SET status = ?, canonical_id = ? WHERE id = ?`,
		string(model.StagedLoaded), canonicalID, stagedID)
	return err
}

// MarkStagedFailed takes a staged job out of the load queue and keeps the reason.
func (q *Queries) MarkStagedFailed(ctx context.Context, stagedID, reason string) error {
	_, err := q.exec(ctx, "mark staged job failed",
		`UPDATE staged_jobs SET status = ?, last_error = ? WHERE id = ?`,
		string(model.StagedFailed), reason, stagedID)
	return err
}

// CountStagedJobs counts staged jobs of a processing record.
func (q *Queries) CountStagedJobs(ctx context.Context, recordID string) (int, error) {
	var n int
	err := q.get(ctx, "count staged jobs", &n, `SELECT COUNT(*) FROM staged_jobs WHERE processing_record_id = ?`, recordID)
	return n, err
}

func (r stagedRow) model() (model.StagedJob, error) {
	s := model.StagedJob{
		ID:                 r.ID,
		ProcessingRecordID: r.ProcessingRecordID,
		RawCollectionID:    r.RawCollectionID,
		Source:             r.Source,
		ItemIndex:          r.ItemIndex,
		ExternalID:         r.ExternalID,
		Signature:          r.Signature,
		Title:              r.Title,
		Company:            r.Company,
		Location:           r.Location,
		Description:        r.Description,
		TitleNorm:          r.TitleNorm,
		CompanyNorm:        r.CompanyNorm,
		LocationNorm:       r.LocationNorm,
		Salary:             r.salary(),
		EmploymentType:     r.EmploymentType,
		Skills:             decodeStrings(r.Skills),
		URL:                r.URL,
		ApplyURL:           r.ApplyURL,
		PostedAt:           timePtr(r.PostedAt),
		ContentHash:        r.ContentHash,
		QualityScore:       r.QualityScore,
		CollectedAt:        fromMillis(r.CollectedAt),
		Status:             model.StagedStatus(r.Status),
		CanonicalID:        r.CanonicalID.String,
	}
	if r.EmbeddingModel.Valid && len(r.Embedding) > 0 {
		vec, err := embed.Decode(r.Embedding)
		if err != nil {
			return s, &model.StorageError{Op: "decode staged embedding " + r.ID, Err: err}
		}
		s.Embedding = &model.Embedding{Model: r.EmbeddingModel.String, Vector: vec}
	}
	return s, nil
}
