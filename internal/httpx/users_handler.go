package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/jbj338033/flick-api/internal/users"
)

type UsersHandler struct {
	Service *users.Service
	Repo    users.Repo
}

type ChargeReq struct {
	Amount int `json:"amount"`
}

type BalanceResp struct {
	UserID  string `json:"user_id"`
	Balance int    `json:"balance"`
}

func (h *UsersHandler) Register(r *chi.Mux) {
	r.Get("/users/{id}/balance", h.getBalance)
	r.Post("/users/{id}/charge", h.charge)
	r.Post("/users/{id}/grant", h.claimGrant)
}

func (h *UsersHandler) getBalance(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid user id"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	u, err := h.Repo.Get(ctx, userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceResp{UserID: u.ID.String(), Balance: u.Balance})
}

func (h *UsersHandler) charge(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid user id"})
		return
	}
	var req ChargeReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	after, err := h.Service.Charge(ctx, userID, req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceResp{UserID: userID.String(), Balance: after})
}

func (h *UsersHandler) claimGrant(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid user id"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	after, err := h.Service.ClaimGrant(ctx, userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceResp{UserID: userID.String(), Balance: after})
}
