package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/jbj338033/flick-api/internal/orders"
)

// OrdersHandler serves the read-only order listings for booth dashboards and
// buyer history.
type OrdersHandler struct {
	Repo orders.Repo
}

type OrderWithLines struct {
	orders.Order
	Items []LineDetail `json:"items"`
}

type LineDetail struct {
	orders.LineWithProduct
	Options []orders.LineOption `json:"options,omitempty"`
}

func (h *OrdersHandler) Register(r *chi.Mux) {
	r.Get("/booths/{id}/orders", h.listByBooth)
	r.Get("/users/{id}/orders", h.listByBuyer)
}

func (h *OrdersHandler) listByBooth(w http.ResponseWriter, r *http.Request) {
	boothID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid booth id"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	list, err := h.Repo.ListByBooth(ctx, boothID)
	if err != nil {
		writeError(w, err)
		return
	}
	h.respondWithLines(ctx, w, list)
}

func (h *OrdersHandler) listByBuyer(w http.ResponseWriter, r *http.Request) {
	buyerID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid user id"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	list, err := h.Repo.ListByBuyer(ctx, buyerID)
	if err != nil {
		writeError(w, err)
		return
	}
	h.respondWithLines(ctx, w, list)
}

func (h *OrdersHandler) respondWithLines(ctx context.Context, w http.ResponseWriter, list []orders.Order) {
	out := make([]OrderWithLines, 0, len(list))
	for _, o := range list {
		lines, err := h.Repo.ListLinesWithProduct(ctx, o.ID)
		if err != nil {
			writeError(w, err)
			return
		}
		items := make([]LineDetail, 0, len(lines))
		for _, l := range lines {
			opts, err := h.Repo.ListLineOptions(ctx, l.ID)
			if err != nil {
				writeError(w, err)
				return
			}
			items = append(items, LineDetail{LineWithProduct: l, Options: opts})
		}
		out = append(out, OrderWithLines{Order: o, Items: items})
	}
	writeJSON(w, http.StatusOK, out)
}
