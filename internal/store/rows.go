package store

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/amishk599/jobcatalog/internal/model"
)

// Timestamps are stored as unix milliseconds so both dialects agree.
func millis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func timePtr(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromMillis(n.Int64)
	return &t
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func encodeStrings(v []string) string {
	if len(v) == 0 {
		return "[]"
	}
	b, _ := json.Marshal(v)
	return string(b)
}

func decodeStrings(s string) []string {
	var v []string
	if s == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(s), &v); err != nil || len(v) == 0 {
		return nil
	}
	return v
}

type salaryColumns struct {
	SalaryMin      sql.NullFloat64 `db:"salary_min"`
	SalaryMax      sql.NullFloat64 `db:"salary_max"`
	SalaryCurrency sql.NullString  `db:"salary_currency"`
}

func salaryArgs(s *model.Salary) (sql.NullFloat64, sql.NullFloat64, sql.NullString) {
	if s == nil {
		return sql.NullFloat64{}, sql.NullFloat64{}, sql.NullString{}
	}
	return sql.NullFloat64{Float64: s.Min, Valid: true},
		sql.NullFloat64{Float64: s.Max, Valid: true},
		sql.NullString{String: s.Currency, Valid: true}
}

func (c salaryColumns) salary() *model.Salary {
	if !c.SalaryMin.Valid && !c.SalaryMax.Valid {
		return nil
	}
	return &model.Salary{Min: c.SalaryMin.Float64, Max: c.SalaryMax.Float64, Currency: c.SalaryCurrency.String}
}

type processingRow struct {
	ID              string `db:"id"`
	RawCollectionID string `db:"raw_collection_id"`
	Source          string `db:"source"`
	Status          string `db:"status"`
	TotalItems      int    `db:"total_items"`
	Succeeded       int    `db:"succeeded"`
	Failed          int    `db:"failed"`
	Message         string `db:"message"`
	CreatedAt       int64  `db:"created_at"`
	UpdatedAt       int64  `db:"updated_at"`
}

func (r processingRow) model() model.ProcessingRecord {
	return model.ProcessingRecord{
		ID:              r.ID,
		RawCollectionID: r.RawCollectionID,
		Source:          r.Source,
		Status:          model.ProcessingStatus(r.Status),
		TotalItems:      r.TotalItems,
		Succeeded:       r.Succeeded,
		Failed:          r.Failed,
		Message:         r.Message,
		CreatedAt:       fromMillis(r.CreatedAt),
		UpdatedAt:       fromMillis(r.UpdatedAt),
	}
}

type itemErrorRow struct {
	RecordID  string `db:"record_id"`
	ItemIndex int    `db:"item_index"`
	Message   string `db:"message"`
	Payload   []byte `db:"payload"`
}

type stagedRow struct {
	ID                 string `db:"id"`
	ProcessingRecordID string `db:"processing_record_id"`
	RawCollectionID    string `db:"raw_collection_id"`
	Source             string `db:"source"`
	ItemIndex          int    `db:"item_index"`
	ExternalID         string `db:"external_id"`
	Signature          string `db:"signature"`
	Title              string `db:"title"`
	Company            string `db:"company"`
	Location           string `db:"location"`
	Description        string `db:"description"`
	TitleNorm          string `db:"title_norm"`
	CompanyNorm        string `db:"company_norm"`
	LocationNorm       string `db:"location_norm"`
	salaryColumns
	EmploymentType string         `db:"employment_type"`
	Skills         string         `db:"skills"`
	URL            string         `db:"url"`
	ApplyURL       string         `db:"apply_url"`
	PostedAt       sql.NullInt64  `db:"posted_at"`
	ContentHash    string         `db:"content_hash"`
	QualityScore   float64        `db:"quality_score"`
	EmbeddingModel sql.NullString `db:"embedding_model"`
	Embedding      []byte         `db:"embedding"`
	CollectedAt    int64          `db:"collected_at"`
	Status         string         `db:"status"`
	CanonicalID    sql.NullString `db:"canonical_id"`
}

type canonicalRow struct {
	ID          string `db:"id"`
	Signature   string `db:"signature"`
	Title       string `db:"title"`
	Company     string `db:"company"`
	Location    string `db:"location"`
	Description string `db:"description"`
	CompanyNorm string `db:"company_norm"`
	salaryColumns
	EmploymentType string         `db:"employment_type"`
	Skills         string         `db:"skills"`
	URL            string         `db:"url"`
	ApplyURL       string         `db:"apply_url"`
	PostedAt       sql.NullInt64  `db:"posted_at"`
	QualityScore   float64        `db:"quality_score"`
	ContentHash    string         `db:"content_hash"`
	SupersededBy   sql.NullString `db:"superseded_by"`
	CreatedAt      int64          `db:"created_at"`
	UpdatedAt      int64          `db:"updated_at"`
}

func (r canonicalRow) model() model.CanonicalJob {
	return model.CanonicalJob{
		ID:             r.ID,
		Signature:      r.Signature,
		Title:          r.Title,
		Company:        r.Company,
		Location:       r.Location,
		Description:    r.Description,
		Salary:         r.salary(),
		EmploymentType: r.EmploymentType,
		Skills:         decodeStrings(r.Skills),
		URL:            r.URL,
		ApplyURL:       r.ApplyURL,
		PostedAt:       timePtr(r.PostedAt),
		QualityScore:   r.QualityScore,
		ContentHash:    r.ContentHash,
		SupersededBy:   r.SupersededBy.String,
		CreatedAt:      fromMillis(r.CreatedAt),
		UpdatedAt:      fromMillis(r.UpdatedAt),
	}
}

type sourceLinkRow struct {
	CanonicalID     string `db:"canonical_id"`
	Source          string `db:"source"`
	ExternalID      string `db:"external_id"`
	RawCollectionID string `db:"raw_collection_id"`
	URL             string `db:"url"`
	ContentHash     string `db:"content_hash"`
	SeenAt          int64  `db:"seen_at"`
}

func (r sourceLinkRow) model() model.SourceRef {
	return model.SourceRef{
		Source:          r.Source,
		ExternalID:      r.ExternalID,
		RawCollectionID: r.RawCollectionID,
		URL:             r.URL,
		ContentHash:     r.ContentHash,
		SeenAt:          fromMillis(r.SeenAt),
	}
}

type embeddingRow struct {
	CanonicalID string `db:"canonical_id"`
	Model       string `db:"model"`
	Dimension   int    `db:"dimension"`
	Vector      []byte `db:"vector"`
	CreatedAt   int64  `db:"created_at"`
}

type duplicateRow struct {
	ID            string        `db:"id"`
	CanonicalID   string        `db:"canonical_id"`
	DuplicateID   string        `db:"duplicate_id"`
	Confidence    float64       `db:"confidence"`
	MatchedFields string        `db:"matched_fields"`
	Strategy      string        `db:"strategy"`
	Reviewed      bool          `db:"reviewed"`
	Resolution    string        `db:"resolution"`
	CreatedAt     int64         `db:"created_at"`
	ReviewedAt    sql.NullInt64 `db:"reviewed_at"`
}

func (r duplicateRow) model() model.DuplicateLink {
	return model.DuplicateLink{
		ID:            r.ID,
		CanonicalID:   r.CanonicalID,
		DuplicateID:   r.DuplicateID,
		Confidence:    r.Confidence,
		MatchedFields: decodeStrings(r.MatchedFields),
		Strategy:      model.Strategy(r.Strategy),
		Reviewed:      r.Reviewed,
		Resolution:    model.Resolution(r.Resolution),
		CreatedAt:     fromMillis(r.CreatedAt),
		ReviewedAt:    timePtr(r.ReviewedAt),
	}
}
