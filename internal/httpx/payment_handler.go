package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/jbj338033/flick-api/internal/payment"
)

type PaymentHandler struct {
	Engine  *payment.Engine
	Sweeper *payment.Sweeper
}

type CreateReservationReq struct {
	Items []payment.ItemInput `json:"items"`
}

type ConfirmPaymentReq struct {
	UserID string `json:"user_id"`
}

type CancelOrderReq struct {
	UserID string `json:"user_id"`
}

func (h *PaymentHandler) Register(r *chi.Mux) {
	r.Post("/booths/{boothID}/reservations", h.createReservation)
	r.Get("/reservations/{code}", h.getReservation)
	r.Post("/reservations/{code}/confirm", h.confirmPayment)
	r.Post("/orders/{id}/cancel", h.cancelOrder)
	r.Post("/reservations/sweep", h.sweep)
}

func (h *PaymentHandler) createReservation(w http.ResponseWriter, r *http.Request) {
	boothID, err := uuid.Parse(chi.URLParam(r, "boothID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid booth id"})
		return
	}
	var req CreateReservationReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	res, err := h.Engine.CreateReservation(ctx, boothID, req.Items)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *PaymentHandler) getReservation(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if code == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing code"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	detail, err := h.Engine.GetReservation(ctx, code)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (h *PaymentHandler) confirmPayment(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	var req ConfirmPaymentReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	buyerID, err := uuid.Parse(req.UserID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid user id"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	res, err := h.Engine.ConfirmPayment(ctx, code, buyerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *PaymentHandler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order id"})
		return
	}
	var req CancelOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	requesterID, err := uuid.Parse(req.UserID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid user id"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Engine.CancelOrder(ctx, orderID, requesterID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "CANCELLED"})
}

// sweep is the external scheduler trigger; the same pass also runs on the
// built-in timer.
func (h *PaymentHandler) sweep(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	n, err := h.Sweeper.RunOnce(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"swept_count": n})
}
