package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/amishk599/jobcatalog/internal/model"
	"github.com/amishk599/jobcatalog/internal/normalize"
	"github.com/amishk599/jobcatalog/internal/quality"
)

// item maps and normalizes one entry. embedded is false when the job is
// staged without a vector.
func (p *Processor) item(
	ctx context.Context,
	rec *model.ProcessingRecord,
	rc *model.RawCollection,
	parser model.PostingParser,
	index int,
	raw json.RawMessage,
	outage *atomic.Bool,
) (*model.StagedJob, bool, error) {
	posting, err := parser.Parse(raw)
	if err != nil {
		var malformed *model.MalformedDataError
		if errors.As(err, &malformed) {
			malformed.Index = index
		}
		return nil, false, err
	}

	s, err := p.stage(rec, rc, index, posting)
	if err != nil {
		return nil, false, &model.MalformedDataError{Index: index, Payload: raw, Err: err}
	}

	if outage.Load() {
		return s, false, nil
	}
	text := s.Description
	if text == "" {
		text = s.Title
	}
	emb, err := p.embed(ctx, text)
	if err != nil {
		// The first exhausted item marks an outage so the rest of the batch
		// is staged keyword-only without waiting out its own retries.
		if outage.CompareAndSwap(false, true) {
			p.logger.Warn("embedding unavailable, staging without vectors",
				"record_id", rec.ID, "error", err)
		}
		return s, false, nil
	}
	s.Embedding = emb
	return s, true, nil
}

// stage builds a staged job from a parsed posting.
func (p *Processor) stage(rec *model.ProcessingRecord, rc *model.RawCollection, index int, posting model.Posting) (*model.StagedJob, error) {
	title := normalize.Whitespace(posting.Title)
	company := normalize.Whitespace(posting.Company)
	if title == "" {
		return nil, errors.New("missing title")
	}
	if company == "" {
		return nil, errors.New("missing company")
	}
	externalID := strings.TrimSpace(posting.ExternalID)
	if externalID == "" {
		return nil, errors.New("missing external id")
	}

	location := normalize.Location(posting.Location)
	description := normalize.Text(posting.Description)

	salary := posting.Salary
	if salary == nil {
		salary = normalize.Salary(posting.SalaryText)
	}
	if salary == nil {
		salary = normalize.SalaryFromText(description)
	}

	employment := normalize.EmploymentType(posting.EmploymentType)
	posted := normalize.PostedDate(posting.PostedAt, posting.PostedText, rc.CollectedAt)

	var skills []string
	if p.taxonomy != nil {
		skills = p.taxonomy.Extract(title + "\n" + description)
	}

	titleKey := normalize.TitleKey(title)
	companyKey := normalize.CompanyKey(company)
	locationKey := normalize.LocationKey(location)

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate staged job id: %w", err)
	}

	s := &model.StagedJob{
		ID:                 id.String(),
		ProcessingRecordID: rec.ID,
		RawCollectionID:    rc.ID,
		Source:             rc.Source,
		ItemIndex:          index,
		ExternalID:         externalID,
		Signature:          normalize.Signature(titleKey, companyKey, locationKey),
		Title:              title,
		Company:            company,
		Location:           location,
		Description:        description,
		TitleNorm:          titleKey,
		CompanyNorm:        companyKey,
		LocationNorm:       locationKey,
		Salary:             salary,
		EmploymentType:     employment,
		Skills:             skills,
		URL:                normalize.URL(posting.URL),
		ApplyURL:           normalize.URL(posting.ApplyURL),
		PostedAt:           posted,
		CollectedAt:        rc.CollectedAt,
		Status:             model.StagedPending,
	}
	s.ContentHash = normalize.ContentHash(s.Title, s.Company, s.Location, s.Description, salaryText(s.Salary), s.EmploymentType)
	s.QualityScore = quality.OfStaged(s)
	return s, nil
}

func salaryText(s *model.Salary) string {
	if s == nil {
		return ""
	}
	return fmt.Sprintf("%.0f-%.0f %s", s.Min, s.Max, s.Currency)
}
