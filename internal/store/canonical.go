package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/amishk599/jobcatalog/internal/embed"
	"github.com/amishk599/jobcatalog/internal/model"
	"github.com/amishk599/jobcatalog/internal/normalize"
)

const canonicalColumns = `id, signature, title, company, location, description, company_norm,
	salary_min, salary_max, salary_currency, employment_type, skills, url, apply_url, posted_at,
	quality_score, content_hash, superseded_by, created_at, updated_at`

// InsertCanonical inserts a new active canonical job. A second active row
// with the same signature fails with *model.DuplicateConflictError.
func (q *Queries) InsertCanonical(ctx context.Context, j *model.CanonicalJob) error {
	smin, smax, scur := salaryArgs(j.Salary)
	_, err := q.ext.ExecContext(ctx, q.rebind(
		`INSERT INTO canonical_jobs (`+canonicalColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		j.ID, j.Signature, j.Title, j.Company, j.Location, j.Description, normalize.CompanyKey(j.Company),
		smin, smax, scur, j.EmploymentType, encodeStrings(j.Skills), j.URL, j.ApplyURL, nullMillis(j.PostedAt),
		j.QualityScore, j.ContentHash, nullString(j.SupersededBy), millis(j.CreatedAt), millis(j.UpdatedAt))
	return classify("insert canonical job", j.Signature, err)
}

// UpdateCanonical rewrites the mergeable fields of an existing job.
func (q *Queries) UpdateCanonical(ctx context.Context, j *model.CanonicalJob) error {
	smin, smax, scur := salaryArgs(j.Salary)
	res, err := q.exec(ctx, "update canonical job",
		`UPDATE canonical_jobs
		 SET description = ?, salary_min = ?, salary_max = ?, salary_currency = ?, employment_type = ?,
		     skills = ?, url = ?, apply_url = ?, posted_at = ?, quality_score = ?, content_hash = ?, updated_at = ?
		 WHERE id = ?`,
		j.Description, smin, smax, scur, j.EmploymentType,
		encodeStrings(j.Skills), j.URL, j.ApplyURL, nullMillis(j.PostedAt), j.QualityScore, j.ContentHash, millis(j.UpdatedAt),
		j.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update canonical job %s: %w", j.ID, ErrNotFound)
	}
	return nil
}

// SetSupersededBy points id at root. Only active rows can be superseded.
func (q *Queries) SetSupersededBy(ctx context.Context, id, root string, now time.Time) error {
	if id == root {
		return fmt.Errorf("set superseded_by: %s cannot supersede itself", id)
	}
	res, err := q.exec(ctx, "supersede canonical job",
		`UPDATE canonical_jobs SET superseded_by = ?, updated_at = ? WHERE id = ? AND superseded_by IS NULL`,
		root, millis(now), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("supersede canonical job %s: %w", id, ErrNotFound)
	}
	return nil
}

// GetCanonical loads a job with its source links and its embedding under modelID.
func (q *Queries) GetCanonical(ctx context.Context, id, modelID string) (*model.CanonicalJob, error) {
	var row canonicalRow
	if err := q.get(ctx, "get canonical job", &row,
		`SELECT `+canonicalColumns+` FROM canonical_jobs WHERE id = ?`, id); err != nil {
		return nil, err
	}
	jobs := []model.CanonicalJob{row.model()}
	if err := q.loadDetails(ctx, jobs, modelID); err != nil {
		return nil, err
	}
	return &jobs[0], nil
}

// GetCanonicals loads jobs by id, preserving the order of ids and skipping unknown ones.
func (q *Queries) GetCanonicals(ctx context.Context, ids []string, modelID string) ([]model.CanonicalJob, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`SELECT `+canonicalColumns+` FROM canonical_jobs WHERE id IN (?)`, ids)
	if err != nil {
		return nil, fmt.Errorf("build canonical lookup: %w", err)
	}
	var rows []canonicalRow
	if err := q.selectRows(ctx, "get canonical jobs", &rows, query, args...); err != nil {
		return nil, err
	}
	byID := make(map[string]model.CanonicalJob, len(rows))
	for _, r := range rows {
		byID[r.ID] = r.model()
	}
	out := make([]model.CanonicalJob, 0, len(rows))
	for _, id := range ids {
		if j, ok := byID[id]; ok {
			out = append(out, j)
		}
	}
	if err := q.loadDetails(ctx, out, modelID); err != nil {
		return nil, err
	}
	return out, nil
}

// ResolveRoot follows superseded_by pointers from id to the active record.
func (q *Queries) ResolveRoot(ctx context.Context, id string) (string, error) {
	seen := make(map[string]bool)
	for {
		if seen[id] {
			return "", &model.StorageError{Op: "resolve root", Err: fmt.Errorf("superseded_by cycle at %s", id)}
		}
		seen[id] = true

		var next sql.NullString
		if err := q.get(ctx, "resolve root", &next,
			`SELECT superseded_by FROM canonical_jobs WHERE id = ?`, id); err != nil {
			return "", err
		}
		if !next.Valid || next.String == "" {
			return id, nil
		}
		id = next.String
	}
}

// CandidateQuery selects active jobs that may duplicate a staged job.
type CandidateQuery struct {
	Signature   string
	CompanyNorm string
	URLs        []string // normalized posting and apply URLs
	Model       string   // embedding model to attach
	Limit       int
}

// Candidates returns active jobs sharing the signature, normalized company
// or a URL. Exact signature matches sort first.
func (q *Queries) Candidates(ctx context.Context, cq CandidateQuery) ([]model.CanonicalJob, error) {
	var conds []string
	var args []any
	if cq.Signature != "" {
		conds = append(conds, `signature = ?`)
		args = append(args, cq.Signature)
	}
	if cq.CompanyNorm != "" {
		conds = append(conds, `company_norm = ?`)
		args = append(args, cq.CompanyNorm)
	}
	var urls []string
	for _, u := range cq.URLs {
		if u != "" {
			urls = append(urls, u)
		}
	}
	if len(urls) > 0 {
		conds = append(conds, `url IN (?)`, `apply_url IN (?)`)
		args = append(args, urls, urls)
	}
	if len(conds) == 0 {
		return nil, nil
	}

	query := `SELECT ` + canonicalColumns + ` FROM canonical_jobs
		WHERE superseded_by IS NULL AND (` + strings.Join(conds, " OR ") + `)
		ORDER BY CASE WHEN signature = ? THEN 0 ELSE 1 END, created_at, id
		LIMIT ?`
	args = append(args, cq.Signature, limitOrDefault(cq.Limit))

	query, args, err := sqlx.In(query, args...)
	if err != nil {
		return nil, fmt.Errorf("build candidate query: %w", err)
	}
	var rows []canonicalRow
	if err := q.selectRows(ctx, "select candidates", &rows, query, args...); err != nil {
		return nil, err
	}
	out := make([]model.CanonicalJob, len(rows))
	for i, r := range rows {
		out[i] = r.model()
	}
	if err := q.loadDetails(ctx, out, cq.Model); err != nil {
		return nil, err
	}
	return out, nil
}

// KeywordQuery selects search candidates. The filter fields narrow the pool
// in SQL; callers still apply their full predicate to what comes back.
type KeywordQuery struct {
	Terms []string
	Model string // embedding model to attach
	Limit int

	Locations      []string // any; case-insensitive substring of the location
	CompanyNorm    string
	EmploymentType string
	SalaryMin      float64 // range must reach at least this
	SalaryMax      float64 // range must start at or below this
	Currency       string  // only applied together with a salary bound
}

// KeywordCandidates returns active jobs whose title, company or description
// contains any of the terms and that pass the filters. With no terms it
// returns the most recently updated jobs.
func (q *Queries) KeywordCandidates(ctx context.Context, kq KeywordQuery) ([]model.CanonicalJob, error) {
	query := `SELECT ` + canonicalColumns + ` FROM canonical_jobs WHERE superseded_by IS NULL`
	var args []any
	if len(kq.Terms) > 0 {
		var conds []string
		for _, t := range kq.Terms {
			like := "%" + escapeLike(strings.ToLower(t)) + "%"
			conds = append(conds,
				`LOWER(title) LIKE ? ESCAPE '\'`,
				`LOWER(company) LIKE ? ESCAPE '\'`,
				`LOWER(description) LIKE ? ESCAPE '\'`)
			args = append(args, like, like, like)
		}
		query += ` AND (` + strings.Join(conds, " OR ") + `)`
	}
	if len(kq.Locations) > 0 {
		conds := make([]string, len(kq.Locations))
		for i, loc := range kq.Locations {
			conds[i] = `LOWER(location) LIKE ? ESCAPE '\'`
			args = append(args, "%"+escapeLike(strings.ToLower(loc))+"%")
		}
		query += ` AND (` + strings.Join(conds, " OR ") + `)`
	}
	if kq.CompanyNorm != "" {
		query += ` AND company_norm = ?`
		args = append(args, kq.CompanyNorm)
	}
	if kq.EmploymentType != "" {
		query += ` AND employment_type = ?`
		args = append(args, kq.EmploymentType)
	}
	if kq.SalaryMin > 0 || kq.SalaryMax > 0 {
		query += ` AND (salary_min IS NOT NULL OR salary_max IS NOT NULL)`
		if kq.Currency != "" {
			query += ` AND UPPER(salary_currency) = ?`
			args = append(args, strings.ToUpper(kq.Currency))
		}
		if kq.SalaryMin > 0 {
			query += ` AND COALESCE(salary_max, 0) >= ?`
			args = append(args, kq.SalaryMin)
		}
		if kq.SalaryMax > 0 {
			query += ` AND COALESCE(salary_min, 0) <= ?`
			args = append(args, kq.SalaryMax)
		}
	}
	query += ` ORDER BY updated_at DESC, id LIMIT ?`
	args = append(args, limitOrDefault(kq.Limit))

	var rows []canonicalRow
	if err := q.selectRows(ctx, "keyword candidates", &rows, query, args...); err != nil {
		return nil, err
	}
	out := make([]model.CanonicalJob, len(rows))
	for i, r := range rows {
		out[i] = r.model()
	}
	if err := q.loadDetails(ctx, out, kq.Model); err != nil {
		return nil, err
	}
	return out, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// MissingEmbeddings lists active jobs without a vector for modelID.
func (q *Queries) MissingEmbeddings(ctx context.Context, modelID string, limit int) ([]model.CanonicalJob, error) {
	var rows []canonicalRow
	err := q.selectRows(ctx, "list jobs missing embeddings", &rows,
		`SELECT `+canonicalColumns+` FROM canonical_jobs c
		 WHERE c.superseded_by IS NULL
		   AND NOT EXISTS (SELECT 1 FROM job_embeddings e WHERE e.canonical_id = c.id AND e.model = ?)
		 ORDER BY c.created_at, c.id LIMIT ?`,
		modelID, limitOrDefault(limit))
	if err != nil {
		return nil, err
	}
	out := make([]model.CanonicalJob, len(rows))
	for i, r := range rows {
		out[i] = r.model()
	}
	if err := q.loadDetails(ctx, out, ""); err != nil {
		return nil, err
	}
	return out, nil
}

// CountCanonical counts active canonical jobs.
func (q *Queries) CountCanonical(ctx context.Context) (int, error) {
	var n int
	err := q.get(ctx, "count canonical jobs", &n, `SELECT COUNT(*) FROM canonical_jobs WHERE superseded_by IS NULL`)
	return n, err
}

// AddSourceLink records one sighting. It reports false when the exact
// sighting was already linked.
func (q *Queries) AddSourceLink(ctx context.Context, canonicalID string, ref model.SourceRef) (bool, error) {
	res, err := q.exec(ctx, "add source link",
		`INSERT INTO job_source_links (canonical_id, source, external_id, raw_collection_id, url, content_hash, seen_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT DO NOTHING`,
		canonicalID, ref.Source, ref.ExternalID, ref.RawCollectionID, ref.URL, ref.ContentHash, millis(ref.SeenAt))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, &model.StorageError{Op: "add source link", Err: err}
	}
	return n == 1, nil
}

// SourceLinks lists the sightings of a job, oldest first.
func (q *Queries) SourceLinks(ctx context.Context, canonicalID string) ([]model.SourceRef, error) {
	var rows []sourceLinkRow
	err := q.selectRows(ctx, "list source links", &rows,
		`SELECT canonical_id, source, external_id, raw_collection_id, url, content_hash, seen_at
		 FROM job_source_links WHERE canonical_id = ? ORDER BY seen_at, source, external_id`, canonicalID)
	if err != nil {
		return nil, err
	}
	out := make([]model.SourceRef, len(rows))
	for i, r := range rows {
		out[i] = r.model()
	}
	return out, nil
}

// UpsertEmbedding stores the vector for (canonicalID, model).
func (q *Queries) UpsertEmbedding(ctx context.Context, canonicalID string, e *model.Embedding, now time.Time) error {
	_, err := q.exec(ctx, "upsert embedding",
		`INSERT INTO job_embeddings (canonical_id, model, dimension, vector, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (canonical_id, model) DO UPDATE SET dimension = excluded.dimension, vector = excluded.vector, created_at = excluded.created_at`,
		canonicalID, e.Model, len(e.Vector), embed.Encode(e.Vector), millis(now))
	return err
}

// DeleteEmbeddings removes every vector of canonicalID and reports how many were removed.
func (q *Queries) DeleteEmbeddings(ctx context.Context, canonicalID string) (int, error) {
	res, err := q.exec(ctx, "delete embeddings",
		`DELETE FROM job_embeddings WHERE canonical_id = ?`, canonicalID)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// GetEmbedding returns the vector for (canonicalID, modelID), or nil.
func (q *Queries) GetEmbedding(ctx context.Context, canonicalID, modelID string) (*model.Embedding, error) {
	var rows []embeddingRow
	err := q.selectRows(ctx, "get embedding", &rows,
		`SELECT canonical_id, model, dimension, vector, created_at FROM job_embeddings WHERE canonical_id = ? AND model = ?`,
		canonicalID, modelID)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0].embedding()
}

func (r embeddingRow) embedding() (*model.Embedding, error) {
	vec, err := embed.Decode(r.Vector)
	if err != nil {
		return nil, &model.StorageError{Op: "decode embedding " + r.CanonicalID, Err: err}
	}
	return &model.Embedding{Model: r.Model, Vector: vec}, nil
}

// loadDetails attaches source links and, when modelID is set, embeddings.
func (q *Queries) loadDetails(ctx context.Context, jobs []model.CanonicalJob, modelID string) error {
	if len(jobs) == 0 {
		return nil
	}
	ids := make([]string, len(jobs))
	index := make(map[string]int, len(jobs))
	for i, j := range jobs {
		ids[i] = j.ID
		index[j.ID] = i
	}

	query, args, err := sqlx.In(
		`SELECT canonical_id, source, external_id, raw_collection_id, url, content_hash, seen_at
		 FROM job_source_links WHERE canonical_id IN (?) ORDER BY seen_at, source, external_id`, ids)
	if err != nil {
		return fmt.Errorf("build source link query: %w", err)
	}
	var links []sourceLinkRow
	if err := q.selectRows(ctx, "load source links", &links, query, args...); err != nil {
		return err
	}
	for _, l := range links {
		i := index[l.CanonicalID]
		jobs[i].Sources = append(jobs[i].Sources, l.model())
	}

	if modelID == "" {
		return nil
	}
	query, args, err = sqlx.In(
		`SELECT canonical_id, model, dimension, vector, created_at
		 FROM job_embeddings WHERE model = ? AND canonical_id IN (?)`, modelID, ids)
	if err != nil {
		return fmt.Errorf("build embedding query: %w", err)
	}
	var embs []embeddingRow
	if err := q.selectRows(ctx, "load embeddings", &embs, query, args...); err != nil {
		return err
	}
	for _, e := range embs {
		emb, err := e.embedding()
		if err != nil {
			return err
		}
		jobs[index[e.CanonicalID]].Embedding = emb
	}
	return nil
}
