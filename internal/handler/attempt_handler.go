package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/vigilcbt/vigil-backend/internal/model"
	"github.com/vigilcbt/vigil-backend/internal/response"
	"github.com/vigilcbt/vigil-backend/internal/service"
	"github.com/vigilcbt/vigil-backend/internal/validator"
)

// AttemptHandler handles the student-facing attempt lifecycle: admission,
// paper download, timer start, autosave, violations, submit and resume.
type AttemptHandler struct {
	attemptService    *service.AttemptService
	timingService     *service.TimingService
	violationService  *service.ViolationService
	submissionService *service.SubmissionService
	questions         service.QuestionStore
}

// NewAttemptHandler creates a new AttemptHandler.
func NewAttemptHandler(
	attemptService *service.AttemptService,
	timingService *service.TimingService,
	violationService *service.ViolationService,
	submissionService *service.SubmissionService,
	questions service.QuestionStore,
) *AttemptHandler {
	return &AttemptHandler{
		attemptService:    attemptService,
		timingService:     timingService,
		violationService:  violationService,
		submissionService: submissionService,
		questions:         questions,
	}
}

// CreateAttempt godoc
// POST /api/v1/exams/:exam_id/attempts
// Admits a student into an exam and returns the attempt plus its session token.
func (h *AttemptHandler) CreateAttempt(c *gin.Context) {
	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.CreateAttemptRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	created, err := h.attemptService.CreateAttempt(c.Request.Context(), examID, &req)
	if err != nil {
		failFromErr(c, err)
		return
	}

	response.Success(c, http.StatusCreated, created)
}

// paperQuestion is a Question with the correct option stripped. The answer
// key never leaves the server while an attempt is live.
type paperQuestion struct {
	ID       uuid.UUID      `json:"id"`
	Text     string         `json:"text"`
	Options  []model.Option `json:"options"`
	Marks    int            `json:"marks"`
	OrderNum int            `json:"order_num"`
}

// GetPaper godoc
// GET /api/v1/attempts/:attempt_id/paper
// Returns the question set for the attempt's exam, without answer keys.
func (h *AttemptHandler) GetPaper(c *gin.Context) {
	claims := attemptClaims(c)
	if claims == nil {
		return
	}

	questions, err := h.questions.ListByExam(c.Request.Context(), claims.ExamID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	paper := make([]paperQuestion, 0, len(questions))
	for _, q := range questions {
		paper = append(paper, paperQuestion{
			ID:       q.ID,
			Text:     q.Text,
			Options:  q.Options,
			Marks:    q.Marks,
			OrderNum: q.OrderNum,
		})
	}

	response.Success(c, http.StatusOK, gin.H{"questions": paper})
}

// BeginTimer godoc
// POST /api/v1/attempts/:attempt_id/start
// Stamps the server-side timing window. Idempotent: repeat calls return the
// original window unchanged.
func (h *AttemptHandler) BeginTimer(c *gin.Context) {
	claims := attemptClaims(c)
	if claims == nil {
		return
	}

	window, err := h.timingService.BeginTimer(c.Request.Context(), claims.AttemptID)
	if err != nil {
		failFromErr(c, err)
		return
	}

	response.Success(c, http.StatusOK, window)
}

// SaveAnswer godoc
// PUT /api/v1/attempts/:attempt_id/answers
// Records a single answer change.
func (h *AttemptHandler) SaveAnswer(c *gin.Context) {
	claims := attemptClaims(c)
	if claims == nil {
		return
	}

	var req model.SaveAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	err := h.attemptService.SaveAnswer(c.Request.Context(), claims.AttemptID, req.QuestionID, req.OptionID)
	if err != nil {
		// Expired means the window is gone: tell the client to run its
		// timer-driven submit instead of retrying the save.
		if errors.Is(err, service.ErrAttemptExpired) {
			response.FailWithFields(c, http.StatusConflict, response.ErrAttemptExpired,
				map[string]string{"force_submit": "true"})
			return
		}
		failFromErr(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"status": "saved"})
}

// RecordViolation godoc
// POST /api/v1/attempts/:attempt_id/violations
// Reports a proctoring event and returns the updated counter.
func (h *AttemptHandler) RecordViolation(c *gin.Context) {
	claims := attemptClaims(c)
	if claims == nil {
		return
	}

	var req model.RecordViolationRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	result, err := h.violationService.Record(c.Request.Context(), claims.AttemptID, req.EventType, req.Metadata)
	if err != nil {
		failFromErr(c, err)
		return
	}

	response.Success(c, http.StatusOK, result)
}

// Submit godoc
// POST /api/v1/attempts/:attempt_id/submit
// Grades the attempt exactly once. A repeat call returns ALREADY_SUBMITTED.
func (h *AttemptHandler) Submit(c *gin.Context) {
	claims := attemptClaims(c)
	if claims == nil {
		return
	}

	result, err := h.submissionService.Submit(c.Request.Context(), claims.AttemptID)
	if err != nil {
		failFromErr(c, err)
		return
	}

	response.Success(c, http.StatusOK, result)
}

// Status godoc
// GET /api/v1/attempts/:attempt_id/status
// Returns the resume snapshot: window, answers, violation count.
func (h *AttemptHandler) Status(c *gin.Context) {
	claims := attemptClaims(c)
	if claims == nil {
		return
	}

	status, err := h.attemptService.Status(c.Request.Context(), claims.AttemptID)
	if err != nil {
		failFromErr(c, err)
		return
	}

	response.Success(c, http.StatusOK, status)
}
