package handler

import (
	"errors"   // for errors.Is comparisons
	"net/http" // HTTP status codes

	"github.com/labstack/echo/v4" // Echo web framework

	"github.com/iliyamo/concert-ticketing/internal/queue"
	"github.com/iliyamo/concert-ticketing/internal/utils"
)

// QueueHandler exposes the admission queue over HTTP: joining the
// waiting room, polling position, and the explicit terminal
// transitions.  All queue errors are synchronous and user-visible,
// unlike saga errors which stay inside the orchestrator.
type QueueHandler struct {
	Admission *queue.AdmissionService // admission queue operations
	JWTSecret string                  // secret for admission token signing
}

// NewQueueHandler constructs a QueueHandler.  The admission service
// must be non-nil.
func NewQueueHandler(admission *queue.AdmissionService, jwtSecret string) *QueueHandler {
	if admission == nil {
		panic("nil admission service passed to NewQueueHandler")
	}
	return &QueueHandler{Admission: admission, JWTSecret: jwtSecret}
}

// Join handles POST /v1/queue/tokens.  The body must contain user_id
// and concert_id.  On success it returns 201 with the token id, the
// status (ACTIVE when the window had room, WAITING otherwise), the
// 1-based position and the estimated wait in seconds.  A user who
// already holds a live token for the concert gets 409.
func (h *QueueHandler) Join(c echo.Context) error {
	var body struct {
		UserID    uint64 `json:"user_id"`
		ConcertID uint64 `json:"concert_id"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if body.UserID == 0 || body.ConcertID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "user_id and concert_id are required"})
	}

	issue, err := h.Admission.GenerateToken(c.Request().Context(), body.UserID, body.ConcertID)
	if err != nil {
		if errors.Is(err, queue.ErrTokenAlreadyIssued) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "a token is already active or waiting for this concert"})
		}
		c.Logger().Errorf("join queue: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to join queue"})
	}

	resp := echo.Map{
		"token_id":               issue.TokenID,
		"status":                 string(issue.Status),
		"position":               issue.Position,
		"estimated_wait_seconds": int64(issue.EstimatedWait.Seconds()),
	}
	if issue.ExpiresAt != nil {
		if adm, err := utils.NewAdmissionToken(h.JWTSecret, issue.TokenID, body.UserID, body.ConcertID, *issue.ExpiresAt); err == nil {
			resp["admission_token"] = adm.Token
			resp["expires_at"] = adm.Exp
		}
	}
	return c.JSON(http.StatusCreated, resp)
}

// Status handles GET /v1/queue/tokens/:id.  WAITING tokens report
// position and estimated wait; ACTIVE tokens report position 0 and a
// freshly signed admission token for the booking endpoints.
func (h *QueueHandler) Status(c echo.Context) error {
	st, err := h.Admission.GetQueueStatus(c.Request().Context(), c.Param("id"))
	if err != nil {
		return queueError(c, err)
	}

	resp := echo.Map{
		"token_id":               st.TokenID,
		"status":                 string(st.Status),
		"position":               st.Position,
		"estimated_wait_seconds": int64(st.EstimatedWait.Seconds()),
	}
	if st.ExpiresAt != nil {
		resp["expires_at"] = st.ExpiresAt
		// Re-derive ownership claims for the signed admission token.
		if tok, err := h.Admission.ValidateActiveToken(c.Request().Context(), st.TokenID); err == nil {
			if adm, err := utils.NewAdmissionToken(h.JWTSecret, tok.ID, tok.UserID, tok.ConcertID, *st.ExpiresAt); err == nil {
				resp["admission_token"] = adm.Token
			}
		}
	}
	return c.JSON(http.StatusOK, resp)
}

// Complete handles POST /v1/queue/tokens/:id/complete, the explicit
// terminal transition when the owning flow finishes.  Repeating the
// call is a no-op.
func (h *QueueHandler) Complete(c echo.Context) error {
	if err := h.Admission.CompleteToken(c.Request().Context(), c.Param("id")); err != nil {
		return queueError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Expire handles POST /v1/queue/tokens/:id/expire with an optional
// reason in the body.  Repeating the call is a no-op.
func (h *QueueHandler) Expire(c echo.Context) error {
	var body struct {
		Reason string `json:"reason"`
	}
	_ = c.Bind(&body)
	if body.Reason == "" {
		body.Reason = "expired by request"
	}
	if err := h.Admission.ExpireToken(c.Request().Context(), c.Param("id"), body.Reason); err != nil {
		return queueError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// queueError maps admission errors onto HTTP statuses: not-found to
// 404, state conflicts to 409, everything else to 500.
func queueError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, queue.ErrTokenNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "token not found"})
	case errors.Is(err, queue.ErrInvalidTokenStatus),
		errors.Is(err, queue.ErrTokenExpired),
		errors.Is(err, queue.ErrConcertMismatch):
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
	default:
		c.Logger().Errorf("queue operation: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "queue operation failed"})
	}
}
