package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/amishk599/jobcatalog/internal/filter"
	"github.com/amishk599/jobcatalog/internal/loader"
	"github.com/amishk599/jobcatalog/internal/model"
	"github.com/amishk599/jobcatalog/internal/orchestrator"
	"github.com/amishk599/jobcatalog/internal/search"
	"github.com/amishk599/jobcatalog/internal/store"
)

const (
	defaultReviewLimit = 50
	maxReviewLimit     = 500
)

func (s *Server) healthz(c *gin.Context) {
	resp := gin.H{"status": "ok", "run_state": string(s.deps.Runs.State())}
	if err := s.deps.Health.Ping(c.Request.Context()); err != nil {
		s.logger.Warn("health check failed", "error", err)
		resp["status"] = "unavailable"
		resp["error"] = err.Error()
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// searchRequest is the POST /search body. GET /search uses the same fields
// as query parameters, with locations and skills comma-separated.
type searchRequest struct {
	Query     string    `json:"q"`
	Locations []string  `json:"locations"`
	Company   string    `json:"company"`
	JobType   string    `json:"job_type"`
	SalaryMin float64   `json:"salary_min"`
	SalaryMax float64   `json:"salary_max"`
	Currency  string    `json:"currency"`
	Skills    []string  `json:"skills"`
	Limit     int       `json:"limit"`
	Embedding []float32 `json:"embedding"`
	Model     string    `json:"model"`
}

func (r searchRequest) query() search.Query {
	q := search.Query{
		Text: r.Query,
		Filters: filter.Criteria{
			Locations: r.Locations,
			Company:   r.Company,
			JobType:   r.JobType,
			SalaryMin: r.SalaryMin,
			SalaryMax: r.SalaryMax,
			Currency:  r.Currency,
			Skills:    r.Skills,
		},
		Limit: r.Limit,
	}
	if len(r.Embedding) > 0 {
		q.Embedding = &model.Embedding{Model: r.Model, Vector: r.Embedding}
	}
	return q
}

func (s *Server) searchGet(c *gin.Context) {
	req := searchRequest{
		Query:     c.Query("q"),
		Locations: splitList(c.Query("location")),
		Company:   c.Query("company"),
		JobType:   c.Query("job_type"),
		Currency:  c.Query("currency"),
		Skills:    splitList(c.Query("skills")),
	}
	var err error
	if req.SalaryMin, err = floatParam(c, "salary_min"); err != nil {
		badRequest(c, err)
		return
	}
	if req.SalaryMax, err = floatParam(c, "salary_max"); err != nil {
		badRequest(c, err)
		return
	}
	if req.Limit, err = intParam(c, "limit", 0); err != nil {
		badRequest(c, err)
		return
	}
	s.runSearch(c, req)
}

func (s *Server) searchPost(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if len(req.Embedding) > 0 && req.Model == "" {
		badRequest(c, errors.New("model is required with embedding"))
		return
	}
	s.runSearch(c, req)
}

func (s *Server) runSearch(c *gin.Context, req searchRequest) {
	if req.Limit < 0 {
		badRequest(c, errors.New("limit must not be negative"))
		return
	}
	if req.SalaryMin > 0 && req.SalaryMax > 0 && req.SalaryMin > req.SalaryMax {
		badRequest(c, errors.New("salary_min exceeds salary_max"))
		return
	}

	results, err := s.deps.Search.Search(c.Request.Context(), req.query())
	if err != nil {
		s.internalError(c, "search failed", err)
		return
	}

	views := make([]resultView, len(results))
	for i, r := range results {
		views[i] = newResultView(r)
	}
	c.JSON(http.StatusOK, gin.H{"results": views, "count": len(views)})
}

func (s *Server) latestRun(c *gin.Context) {
	r, err := s.deps.Runs.Latest(c.Request.Context())
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no runs recorded"})
		return
	}
	if err != nil {
		s.internalError(c, "load latest run", err)
		return
	}
	c.JSON(http.StatusOK, r)
}

// triggerRun starts a run in the background. The run outlives the request.
func (s *Server) triggerRun(c *gin.Context) {
	if state := s.deps.Runs.State(); state != model.RunIdle {
		c.JSON(http.StatusConflict, gin.H{"error": orchestrator.ErrRunInProgress.Error(), "run_state": string(state)})
		return
	}
	go func(ctx context.Context) {
		if _, err := s.deps.Runs.Run(ctx); err != nil && !errors.Is(err, orchestrator.ErrRunInProgress) {
			s.logger.Warn("triggered run failed", "error", err)
		}
	}(s.base)
	c.JSON(http.StatusAccepted, gin.H{"status": "started"})
}

func (s *Server) listReviews(c *gin.Context) {
	limit, err := intParam(c, "limit", defaultReviewLimit)
	if err != nil {
		badRequest(c, err)
		return
	}
	if limit <= 0 || limit > maxReviewLimit {
		limit = defaultReviewLimit
	}

	ctx := c.Request.Context()
	links, err := s.deps.Queue.ListUnreviewed(ctx, limit)
	if err != nil {
		s.internalError(c, "list reviews", err)
		return
	}
	total, err := s.deps.Queue.CountUnreviewed(ctx)
	if err != nil {
		s.internalError(c, "count reviews", err)
		return
	}

	views := make([]linkView, len(links))
	for i, l := range links {
		views[i] = newLinkView(l)
	}
	c.JSON(http.StatusOK, gin.H{"reviews": views, "total": total})
}

type resolveRequest struct {
	Decision string `json:"decision" binding:"required"`
}

func (s *Server) resolveReview(c *gin.Context) {
	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	var approve bool
	switch strings.ToLower(req.Decision) {
	case "approve":
		approve = true
	case "reject":
	default:
		badRequest(c, errors.New(`decision must be "approve" or "reject"`))
		return
	}

	link, err := s.deps.Resolver.ResolveReview(c.Request.Context(), c.Param("id"), approve)
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "review not found"})
	case errors.Is(err, loader.ErrAlreadyReviewed):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case err != nil:
		s.internalError(c, "resolve review", err)
	default:
		c.JSON(http.StatusOK, newLinkView(*link))
	}
}

func (s *Server) internalError(c *gin.Context, msg string, err error) {
	_ = c.Error(err)
	s.logger.Error(msg, "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func floatParam(c *gin.Context, name string) (float64, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 {
		return 0, errors.New(name + " must be a non-negative number")
	}
	return v, nil
}

func intParam(c *gin.Context, name string, def int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New(name + " must be an integer")
	}
	return v, nil
}
