package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/interview-coach/internal/model"
	"github.com/stemsi/interview-coach/internal/response"
	"github.com/stemsi/interview-coach/internal/service"
	"github.com/stemsi/interview-coach/internal/validator"
)

const (
	defaultPerPage = 20
	maxPerPage     = 100
)

// InterviewAPI is the part of service.InterviewService the REST surface uses.
type InterviewAPI interface {
	Create(ctx context.Context, req *model.CreateInterviewRequest) (*service.CreatedInterview, error)
	Get(ctx context.Context, id uuid.UUID) (*model.InterviewSession, error)
	List(ctx context.Context, filter model.InterviewFilter) ([]model.InterviewSummary, int64, error)
	Delete(ctx context.Context, id uuid.UUID) error
	ClearHistory(ctx context.Context) (int, error)
	Stats(ctx context.Context) (*model.InterviewStats, error)
	Integrity(ctx context.Context, id uuid.UUID) (*model.IntegrityData, error)
}

// InterviewHandler handles interview creation and history endpoints.
type InterviewHandler struct {
	interviews InterviewAPI
	log        zerolog.Logger
}

// NewInterviewHandler creates a new InterviewHandler.
func NewInterviewHandler(interviews InterviewAPI, log zerolog.Logger) *InterviewHandler {
	return &InterviewHandler{
		interviews: interviews,
		log:        log.With().Str("component", "interview_handler").Logger(),
	}
}

type listQuery struct {
	Verdict       string `form:"verdict" binding:"omitempty,oneof=high medium low"`
	InterviewType string `form:"interview_type" binding:"omitempty,interview_type"`
	Status        string `form:"status" binding:"omitempty,oneof=PENDING IN_PROGRESS COMPLETED TERMINATED ABANDONED"`
	Page          int    `form:"page" binding:"omitempty,min=1"`
	PerPage       int    `form:"per_page" binding:"omitempty,min=1,max=100"`
}

var verdictByQuery = map[string]model.Verdict{
	"high":   model.VerdictHigh,
	"medium": model.VerdictMedium,
	"low":    model.VerdictLow,
}

func (q listQuery) filter() model.InterviewFilter {
	f := model.InterviewFilter{Page: q.Page, PerPage: q.PerPage}
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PerPage < 1 || f.PerPage > maxPerPage {
		f.PerPage = defaultPerPage
	}
	if v, ok := verdictByQuery[q.Verdict]; ok {
		f.Verdict = &v
	}
	if q.InterviewType != "" {
		t := model.InterviewType(q.InterviewType)
		f.InterviewType = &t
	}
	if q.Status != "" {
		s := model.SessionStatus(q.Status)
		f.Status = &s
	}
	return f
}

// CreateInterview godoc
// POST /api/v1/interviews
// Stores the generated questions and issues the session token.
func (h *InterviewHandler) CreateInterview(c *gin.Context) {
	var req model.CreateInterviewRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	created, err := h.interviews.Create(c.Request.Context(), &req)
	if err != nil {
		if errors.Is(err, service.ErrQuestionCountMismatch) {
			response.Fail(c, http.StatusBadRequest, response.ErrQuestionMismatch)
			return
		}
		h.log.Error().Err(err).Msg("Failed to create interview")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusCreated, created)
}

// ListInterviews godoc
// GET /api/v1/interviews
func (h *InterviewHandler) ListInterviews(c *gin.Context) {
	var q listQuery
	if fields := validator.BindQuery(c, &q); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrInvalidQuery, fields)
		return
	}

	filter := q.filter()
	items, total, err := h.interviews.List(c.Request.Context(), filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list interviews")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.SuccessWithPagination(c, http.StatusOK, gin.H{"interviews": items},
		response.NewPagination(filter.Page, filter.PerPage, int(total)))
}

// GetInterview godoc
// GET /api/v1/interviews/:id
func (h *InterviewHandler) GetInterview(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	session, err := h.interviews.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, session)
}

// GetIntegrity godoc
// GET /api/v1/interviews/:id/integrity
// Returns the integrity report recorded when the session ended.
func (h *InterviewHandler) GetIntegrity(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	data, err := h.interviews.Integrity(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, data)
}

// DeleteInterview godoc
// DELETE /api/v1/interviews/:id
func (h *InterviewHandler) DeleteInterview(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	if err := h.interviews.Delete(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": id})
}

// ClearHistory godoc
// DELETE /api/v1/interviews
// Deletes every finished interview. Running ones are untouched.
func (h *InterviewHandler) ClearHistory(c *gin.Context) {
	n, err := h.interviews.ClearHistory(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": n})
}

// GetStats godoc
// GET /api/v1/interviews/stats
func (h *InterviewHandler) GetStats(c *gin.Context) {
	st, err := h.interviews.Stats(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, st)
}

func (h *InterviewHandler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInterviewNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrInterviewNotFound)
	case errors.Is(err, service.ErrIntegrityNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrIntegrityNotFound)
	default:
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("Interview request failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uuid.Nil, false
	}
	return id, true
}
