package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"pharmacy/m/domain"
	"pharmacy/m/internal/store"
)

type drugRequest struct {
	Name                 string `json:"name" validate:"required"`
	GenericName          string `json:"generic_name"`
	Dosage               string `json:"dosage"`
	Category             string `json:"category"`
	Unit                 string `json:"unit"`
	ControlledDrug       bool   `json:"controlled_drug"`
	RequiresPrescription bool   `json:"requires_prescription"`
	MinStockQuantity     *int64 `json:"min_stock_quantity" validate:"omitempty,gte=0"`
}

func (req drugRequest) drug() domain.Drug {
	d := domain.Drug{
		Name:                 strings.TrimSpace(req.Name),
		GenericName:          strings.TrimSpace(req.GenericName),
		Dosage:               strings.TrimSpace(req.Dosage),
		Category:             strings.TrimSpace(req.Category),
		Unit:                 strings.TrimSpace(req.Unit),
		ControlledDrug:       req.ControlledDrug,
		RequiresPrescription: req.RequiresPrescription,
		MinStockQuantity:     domain.DefaultMinimumStock,
	}
	if d.Unit == "" {
		d.Unit = domain.DefaultDrugUnit
	}
	if req.MinStockQuantity != nil {
		d.MinStockQuantity = *req.MinStockQuantity
	}
	return d
}

func (h *Handler) listDrugs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.DrugFilter{
		Search:   strings.TrimSpace(q.Get("search")),
		Category: strings.TrimSpace(q.Get("category")),
	}
	if raw := q.Get("controlled"); raw != "" {
		controlled, err := strconv.ParseBool(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "controlled must be true or false")
			return
		}
		filter.Controlled = &controlled
	}

	drugs, err := h.store.ListDrugs(r.Context(), filter)
	if err != nil {
		h.handleError(w, r, "listDrugs", err)
		return
	}
	if drugs == nil {
		drugs = []domain.Drug{}
	}
	respondJSON(w, http.StatusOK, drugs)
}

func (h *Handler) createDrug(w http.ResponseWriter, r *http.Request) {
	var req drugRequest
	if !h.decodeValid(w, r, &req) {
		return
	}
	d, err := h.store.CreateDrug(r.Context(), req.drug())
	if store.IsUniqueViolation(err) {
		respondError(w, http.StatusConflict, "a drug with this name and dosage already exists")
		return
	}
	if err != nil {
		h.handleError(w, r, "createDrug", err)
		return
	}
	h.audit.Record(r.Context(), domain.ActionCreate, "drug", d.ID, map[string]any{"name": d.Name, "dosage": d.Dosage})
	respondJSON(w, http.StatusCreated, d)
}

func (h *Handler) updateDrug(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req drugRequest
	if !h.decodeValid(w, r, &req) {
		return
	}
	next := req.drug()
	next.ID = id
	d, err := h.store.UpdateDrug(r.Context(), next)
	if store.IsUniqueViolation(err) {
		respondError(w, http.StatusConflict, "a drug with this name and dosage already exists")
		return
	}
	if err != nil {
		h.handleError(w, r, "updateDrug", err)
		return
	}
	h.audit.Record(r.Context(), domain.ActionUpdate, "drug", d.ID, req)
	respondJSON(w, http.StatusOK, d)
}

type batchRequest struct {
	DrugID      int64           `json:"drug_id" validate:"required,gt=0"`
	Quantity    int64           `json:"quantity" validate:"gte=0"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	ExpiryDate  string          `json:"expiry_date" validate:"required,datetime=2006-01-02"`
	BatchNumber string          `json:"batch_number"`
	PharmacyID  *int64          `json:"pharmacy_id" validate:"omitempty,gt=0"`
}

func (h *Handler) listBatches(w http.ResponseWriter, r *http.Request) {
	var drugID int64
	if raw := r.URL.Query().Get("drug_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			respondError(w, http.StatusBadRequest, "invalid drug_id")
			return
		}
		drugID = id
	}
	batches, err := h.store.ListBatches(r.Context(), currentUser(r.Context()).PharmacyID, drugID)
	if err != nil {
		h.handleError(w, r, "listBatches", err)
		return
	}
	if batches == nil {
		batches = []domain.InventoryBatch{}
	}
	respondJSON(w, http.StatusOK, batches)
}

// createBatch receives stock. A caller bound to a pharmacy can only receive
// into it; an unscoped caller may target any pharmacy or the shared pool.
func (h *Handler) createBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if !h.decodeValid(w, r, &req) {
		return
	}
	if !req.UnitPrice.IsPositive() {
		respondJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "validation failed",
			"fields": map[string]string{"unit_price": "gt"},
		})
		return
	}

	user := currentUser(r.Context())
	pharmacyID := req.PharmacyID
	if user.PharmacyID != nil {
		if pharmacyID != nil && *pharmacyID != *user.PharmacyID {
			respondError(w, http.StatusForbidden, "cannot receive stock for another pharmacy")
			return
		}
		pharmacyID = user.PharmacyID
	} else if pharmacyID != nil {
		if _, err := h.store.GetPharmacy(r.Context(), *pharmacyID); err != nil {
			h.handleError(w, r, "createBatch", err)
			return
		}
	}
	if _, err := h.store.GetDrug(r.Context(), req.DrugID); err != nil {
		h.handleError(w, r, "createBatch", err)
		return
	}

	b, err := h.store.CreateBatch(r.Context(), store.NewBatch{
		DrugID:      req.DrugID,
		PharmacyID:  pharmacyID,
		Quantity:    req.Quantity,
		UnitPrice:   req.UnitPrice,
		BatchNumber: nullIfEmpty(req.BatchNumber),
		ExpiryDate:  req.ExpiryDate,
	})
	if err != nil {
		h.handleError(w, r, "createBatch", err)
		return
	}
	h.audit.Record(r.Context(), domain.ActionCreate, "inventory_batch", b.ID, map[string]any{
		"drug_id":     b.DrugID,
		"pharmacy_id": b.PharmacyID,
		"quantity":    b.Quantity,
		"unit_price":  b.UnitPrice,
		"expiry_date": b.ExpiryDate,
	})
	respondJSON(w, http.StatusCreated, b)
}

// updateBatch corrects the quantity on hand. Pool batches are only editable
// by unscoped callers. The drug lock keeps the write out of a running
// checkout.
func (h *Handler) updateBatch(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req struct {
		Quantity *int64 `json:"quantity" validate:"required,gte=0"`
	}
	if !h.decodeValid(w, r, &req) {
		return
	}

	ctx := r.Context()
	user := currentUser(ctx)
	current, err := h.store.GetBatch(ctx, id)
	if err != nil {
		h.handleError(w, r, "updateBatch", err)
		return
	}
	if user.PharmacyID != nil && (current.PharmacyID == nil || *current.PharmacyID != *user.PharmacyID) {
		respondError(w, http.StatusForbidden, "batch belongs to another pharmacy")
		return
	}

	unlock, err := h.locker.Lock(ctx, fmt.Sprintf("drug:%d", current.DrugID))
	if err != nil {
		h.handleError(w, r, "updateBatch", err)
		return
	}
	defer unlock()

	before, err := h.store.GetBatch(ctx, id)
	if err != nil {
		h.handleError(w, r, "updateBatch", err)
		return
	}
	if err := h.store.SetBatchQuantity(ctx, id, *req.Quantity); err != nil {
		h.handleError(w, r, "updateBatch", err)
		return
	}
	updated, err := h.store.GetBatch(ctx, id)
	if err != nil {
		h.handleError(w, r, "updateBatch", err)
		return
	}
	h.audit.Record(ctx, domain.ActionUpdate, "inventory_batch", id, map[string]any{
		"previous_quantity": before.Quantity,
		"quantity":          updated.Quantity,
	})
	respondJSON(w, http.StatusOK, updated)
}

func (h *Handler) stockAlerts(w http.ResponseWriter, r *http.Request) {
	out, err := h.alerts.Compute(r.Context(), currentUser(r.Context()).PharmacyID)
	if err != nil {
		h.handleError(w, r, "stockAlerts", err)
		return
	}
	respondJSON(w, http.StatusOK, out)
}

func (h *Handler) activeStock(w http.ResponseWriter, r *http.Request) {
	out, err := h.alerts.ActiveStock(r.Context(), currentUser(r.Context()).PharmacyID)
	if err != nil {
		h.handleError(w, r, "activeStock", err)
		return
	}
	respondJSON(w, http.StatusOK, out)
}
