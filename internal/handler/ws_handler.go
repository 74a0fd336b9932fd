package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/vigilcbt/vigil-backend/internal/middleware"
	"github.com/vigilcbt/vigil-backend/internal/model"
	"github.com/vigilcbt/vigil-backend/internal/service"
	ws "github.com/vigilcbt/vigil-backend/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler multiplexes the attempt session over one socket: autosave,
// violation reporting and submit, with the same authorities behind each
// action as the HTTP routes.
type WSHandler struct {
	attemptService    *service.AttemptService
	violationService  *service.ViolationService
	submissionService *service.SubmissionService
	log               zerolog.Logger
	upgrader          websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(
	attemptService *service.AttemptService,
	violationService *service.ViolationService,
	submissionService *service.SubmissionService,
	log zerolog.Logger,
	allowedOrigins []string,
) *WSHandler {
	return &WSHandler{
		attemptService:    attemptService,
		violationService:  violationService,
		submissionService: submissionService,
		log:               log.With().Str("component", "ws_handler").Logger(),
		upgrader:          buildUpgrader(allowedOrigins),
	}
}

// AttemptStream godoc
// WS /ws/v1/attempts/:attempt_id/stream
// Upgrades to WebSocket for real-time autosave, violations and submit.
func (h *WSHandler) AttemptStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	attemptID := claims.AttemptID
	wsLog := h.log.With().Str("attempt_id", attemptID.String()).Logger()
	wsLog.Info().Msg("Attempt connected")

	for {
		raw, err := ws.ReadRaw(conn)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			break
		}

		var envelope ws.RequestEnvelope
		if err := ws.DecodeJSON(raw, &envelope); err != nil {
			ws.WriteError(conn, "malformed message")
			continue
		}

		switch envelope.Action {
		case ws.ActionAutosave:
			h.handleAutosave(c, conn, attemptID, raw)
		case ws.ActionViolation:
			h.handleViolation(c, conn, attemptID, raw)
		case ws.ActionSubmit:
			h.handleSubmit(c, conn, wsLog, attemptID)
		case ws.ActionPing:
			ws.WriteTyped(conn, ws.PongResponse{Event: ws.EventPong})
		default:
			wsLog.Warn().Str("action", string(envelope.Action)).Msg("Unknown action")
			ws.WriteError(conn, "unknown action: "+string(envelope.Action))
		}
	}
}

func (h *WSHandler) handleAutosave(c *gin.Context, conn *websocket.Conn, attemptID uuid.UUID, raw []byte) {
	var msg ws.AutosaveRequest
	if err := ws.DecodeJSON(raw, &msg); err != nil || msg.QuestionID == "" || msg.OptionID == "" {
		ws.WriteError(conn, "question_id and option_id are required")
		return
	}

	// Question ids are UUIDs. Anything else is a malformed or hostile key.
	if _, err := uuid.Parse(msg.QuestionID); err != nil {
		ws.WriteError(conn, "invalid question_id format")
		return
	}

	if err := h.attemptService.SaveAnswer(c.Request.Context(), attemptID, msg.QuestionID, msg.OptionID); err != nil {
		ws.WriteError(conn, wsErrMessage(err))
		return
	}

	ws.WriteTyped(conn, ws.AutosaveResponse{Event: ws.EventSuccess, Status: "saved"})
}

func (h *WSHandler) handleViolation(c *gin.Context, conn *websocket.Conn, attemptID uuid.UUID, raw []byte) {
	var msg ws.ViolationRequest
	if err := ws.DecodeJSON(raw, &msg); err != nil || msg.EventType == "" {
		ws.WriteError(conn, "event_type is required")
		return
	}

	result, err := h.violationService.Record(c.Request.Context(), attemptID, model.EventType(msg.EventType), msg.Metadata)
	if err != nil {
		ws.WriteError(conn, wsErrMessage(err))
		return
	}

	remaining := result.MaxViolations - result.Violations
	if remaining < 0 {
		remaining = 0
	}
	ws.WriteTyped(conn, ws.ViolationResponse{
		Event:       ws.EventViolation,
		Violations:  result.Violations,
		Remaining:   remaining,
		ForceSubmit: result.ForceSubmit,
		TrustHint:   result.TrustScore,
	})
}

func (h *WSHandler) handleSubmit(c *gin.Context, conn *websocket.Conn, wsLog zerolog.Logger, attemptID uuid.UUID) {
	result, err := h.submissionService.Submit(c.Request.Context(), attemptID)
	if err != nil {
		ws.WriteError(conn, wsErrMessage(err))
		return
	}

	wsLog.Info().
		Float64("score", result.Score).
		Int("correct", result.CorrectAnswers).
		Int("total", result.TotalQuestions).
		Msg("Attempt submitted and graded")

	ws.WriteTyped(conn, ws.GradedResponse{
		Event:  ws.EventGraded,
		Status: "completed",
		Score:  result.Score,
		Late:   result.Late,
	})
}

// wsErrMessage exposes sentinel errors verbatim so the client can react to
// them, and collapses everything else into a generic message.
func wsErrMessage(err error) string {
	for _, sentinel := range []error{
		service.ErrAlreadySubmitted,
		service.ErrAttemptExpired,
		service.ErrNotStarted,
		service.ErrAttemptNotFound,
		service.ErrInvalidEventType,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return "request failed"
}
