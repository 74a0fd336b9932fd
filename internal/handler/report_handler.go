package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/vigilcbt/vigil-backend/internal/integrity"
	"github.com/vigilcbt/vigil-backend/internal/response"
	"github.com/vigilcbt/vigil-backend/internal/service"
)

// ReportHandler exposes the read-only integrity review endpoints for
// proctors. Reports are recomputed from the persisted event log on request,
// so they always reflect the latest events.
type ReportHandler struct {
	integrityService *service.IntegrityService
}

// NewReportHandler creates a new ReportHandler.
func NewReportHandler(integrityService *service.IntegrityService) *ReportHandler {
	return &ReportHandler{integrityService: integrityService}
}

// GetAttemptReport godoc
// GET /api/v1/proctor/attempts/:attempt_id/report
// Returns the full integrity report for one attempt.
func (h *ReportHandler) GetAttemptReport(c *gin.Context) {
	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	report, err := h.integrityService.ReportAttempt(c.Request.Context(), attemptID)
	if err != nil {
		failFromErr(c, err)
		return
	}

	response.Success(c, http.StatusOK, report)
}

// GetExamReports godoc
// GET /api/v1/proctor/exams/:exam_id/reports
// Returns integrity reports for every submitted attempt of an exam.
func (h *ReportHandler) GetExamReports(c *gin.Context) {
	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	reports, err := h.integrityService.ReportExam(c.Request.Context(), examID)
	if err != nil {
		failFromErr(c, err)
		return
	}

	if reports == nil {
		reports = []*integrity.Report{}
	}

	response.Success(c, http.StatusOK, gin.H{"reports": reports})
}
