package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/concert-ticketing/internal/middleware"
	"github.com/iliyamo/concert-ticketing/internal/queue"
	"github.com/iliyamo/concert-ticketing/internal/repository"
	"github.com/iliyamo/concert-ticketing/internal/saga"
	"github.com/iliyamo/concert-ticketing/internal/utils"
)

// PaymentHandler exposes the payment saga over HTTP.  Starting a
// payment only ever returns "accepted": the saga runs asynchronously
// and its outcome is observed by polling the saga resource or by
// consuming the status stream.
type PaymentHandler struct {
	Sagas     *saga.Orchestrator      // payment saga orchestration
	Admission *queue.AdmissionService // admission token validation guard
}

// NewPaymentHandler constructs a PaymentHandler.  Both dependencies
// must be non-nil.
func NewPaymentHandler(sagas *saga.Orchestrator, admission *queue.AdmissionService) *PaymentHandler {
	if sagas == nil || admission == nil {
		panic("nil dependency passed to NewPaymentHandler")
	}
	return &PaymentHandler{Sagas: sagas, Admission: admission}
}

// Start handles POST /v1/payments.  The route sits behind the
// admission guard, which has already verified the signed admission
// token; the claims it stored must name the same queue token as the
// body, and the token must still validate as ACTIVE against the
// store.  The paying user is taken from the token, not the body, so
// a token cannot be used to pay on someone else's behalf.  On
// success it returns 202 Accepted with the saga id.
func (h *PaymentHandler) Start(c echo.Context) error {
	var body struct {
		TokenID       string `json:"token_id"`
		ReservationID uint64 `json:"reservation_id"`
		SeatID        uint64 `json:"seat_id"`
		ConcertDateID uint64 `json:"concert_date_id"`
		PointsToUse   int64  `json:"points_to_use"`
		TotalAmount   int64  `json:"total_amount"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if body.TokenID == "" || body.SeatID == 0 || body.ReservationID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "token_id, reservation_id and seat_id are required"})
	}
	if claims, ok := c.Get(middleware.AdmissionContextKey).(utils.AdmissionClaims); ok && claims.TokenID != body.TokenID {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "admission token does not match token_id"})
	}

	tok, err := h.Admission.ValidateActiveToken(c.Request().Context(), body.TokenID)
	if err != nil {
		return queueError(c, err)
	}

	sagaID, err := h.Sagas.StartPaymentSaga(c.Request().Context(), saga.StartRequest{
		ReservationID: body.ReservationID,
		UserID:        tok.UserID,
		SeatID:        body.SeatID,
		ConcertDateID: body.ConcertDateID,
		PointsToUse:   body.PointsToUse,
		TotalAmount:   body.TotalAmount,
	})
	if err != nil {
		if errors.Is(err, saga.ErrInvalidAmount) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid payment amount"})
		}
		c.Logger().Errorf("start payment saga: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to start payment"})
	}

	return c.JSON(http.StatusAccepted, echo.Map{"saga_id": sagaID, "state": "INITIATED"})
}

// Get handles GET /v1/payments/:id.  Terminal sagas remain readable
// until their retention lapses or an operator acknowledges them.
func (h *PaymentHandler) Get(c echo.Context) error {
	s, err := h.Sagas.GetSaga(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrSagaNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "saga not found"})
		}
		c.Logger().Errorf("get saga: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load saga"})
	}
	resp := echo.Map{
		"saga_id":       s.ID,
		"state":         string(s.State),
		"user_id":       s.UserID,
		"seat_id":       s.SeatID,
		"points_to_use": s.PointsToUse,
		"total_amount":  s.TotalAmount,
		"started_at":    s.StartedAt,
	}
	if s.ActualReservationID != 0 {
		resp["reservation_id"] = s.ActualReservationID
	}
	if s.FailureReason != "" {
		resp["failure_reason"] = s.FailureReason
	}
	if s.CompletedAt != nil {
		resp["completed_at"] = s.CompletedAt
	}
	return c.JSON(http.StatusOK, resp)
}

// Acknowledge handles DELETE /v1/payments/:id, the operator action
// that removes an investigated terminal saga from the store.
func (h *PaymentHandler) Acknowledge(c echo.Context) error {
	err := h.Sagas.AcknowledgeFailure(c.Request().Context(), c.Param("id"))
	switch {
	case err == nil:
		return c.NoContent(http.StatusNoContent)
	case errors.Is(err, repository.ErrSagaNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "saga not found"})
	case errors.Is(err, saga.ErrSagaNotTerminal):
		return c.JSON(http.StatusConflict, echo.Map{"error": "saga is still running"})
	default:
		c.Logger().Errorf("acknowledge saga: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to acknowledge saga"})
	}
}
