package api

import (
	"net/http"

	"pharmacy/m/internal/sales"
)

type estimateRequest struct {
	Items []sales.Line `json:"items"`
}

// estimate prices a cart without touching stock. Malformed lines are skipped
// rather than rejected.
func (h *Handler) estimate(w http.ResponseWriter, r *http.Request) {
	var req estimateRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := h.sales.Estimate(r.Context(), *currentUser(r.Context()), req.Items)
	if err != nil {
		h.handleError(w, r, "estimate", err)
		return
	}
	respondJSON(w, http.StatusOK, out)
}

func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	var cart sales.Cart
	if !h.decodeValid(w, r, &cart) {
		return
	}
	sale, err := h.sales.Checkout(r.Context(), *currentUser(r.Context()), cart)
	if err != nil {
		h.handleError(w, r, "checkout", err)
		return
	}
	respondJSON(w, http.StatusCreated, sale)
}

func (h *Handler) voidSale(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	sale, err := h.sales.Void(r.Context(), *currentUser(r.Context()), id)
	if err != nil {
		h.handleError(w, r, "voidSale", err)
		return
	}
	respondJSON(w, http.StatusOK, sale)
}

func (h *Handler) salesHistory(w http.ResponseWriter, r *http.Request) {
	list, err := h.sales.History(r.Context(), *currentUser(r.Context()), queryInt(r, "limit"), queryInt(r, "offset"))
	if err != nil {
		h.handleError(w, r, "salesHistory", err)
		return
	}
	respondJSON(w, http.StatusOK, list)
}

func (h *Handler) receipt(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	sale, err := h.sales.Receipt(r.Context(), *currentUser(r.Context()), id)
	if err != nil {
		h.handleError(w, r, "receipt", err)
		return
	}
	respondJSON(w, http.StatusOK, sale)
}
