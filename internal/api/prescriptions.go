package api

import (
	"net/http"
	"strings"

	"pharmacy/m/domain"
	"pharmacy/m/internal/prescriptions"
	"pharmacy/m/internal/store"
)

func (h *Handler) createPrescription(w http.ResponseWriter, r *http.Request) {
	var req prescriptions.Request
	if !h.decodeValid(w, r, &req) {
		return
	}
	p, err := h.prescriptions.Create(r.Context(), *currentUser(r.Context()), req)
	if err != nil {
		h.handleError(w, r, "createPrescription", err)
		return
	}
	respondJSON(w, http.StatusCreated, p)
}

// validatePrescription runs the checks without storing anything.
func (h *Handler) validatePrescription(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PatientAge      *float64                `json:"patient_age" validate:"omitempty,gte=0"`
		PatientWeight   *float64                `json:"patient_weight" validate:"omitempty,gt=0"`
		PrescribedDrugs []domain.PrescribedDrug `json:"prescribed_drugs" validate:"required,min=1,dive"`
	}
	if !h.decodeValid(w, r, &req) {
		return
	}
	v, err := h.prescriptions.Validate(r.Context(), req.PrescribedDrugs, req.PatientAge, req.PatientWeight)
	if err != nil {
		h.handleError(w, r, "validatePrescription", err)
		return
	}
	respondJSON(w, http.StatusOK, v)
}

func (h *Handler) listPrescriptions(w http.ResponseWriter, r *http.Request) {
	status := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("status")))
	switch status {
	case "", domain.PrescriptionPending, domain.PrescriptionApproved, domain.PrescriptionRejected:
	default:
		respondError(w, http.StatusBadRequest, "status must be PENDING, APPROVED or REJECTED")
		return
	}
	h.respondPrescriptions(w, r, status)
}

func (h *Handler) pendingPrescriptions(w http.ResponseWriter, r *http.Request) {
	h.respondPrescriptions(w, r, domain.PrescriptionPending)
}

func (h *Handler) respondPrescriptions(w http.ResponseWriter, r *http.Request, status string) {
	list, err := h.prescriptions.List(r.Context(), *currentUser(r.Context()), status, queryInt(r, "limit"))
	if err != nil {
		h.handleError(w, r, "listPrescriptions", err)
		return
	}
	respondJSON(w, http.StatusOK, list)
}

func (h *Handler) approvePrescription(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	p, err := h.prescriptions.Approve(r.Context(), *currentUser(r.Context()), id)
	if err != nil {
		h.handleError(w, r, "approvePrescription", err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (h *Handler) rejectPrescription(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req struct {
		Reason *string `json:"reason"`
	}
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	p, err := h.prescriptions.Reject(r.Context(), *currentUser(r.Context()), id, req.Reason)
	if err != nil {
		h.handleError(w, r, "rejectPrescription", err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (h *Handler) auditLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.AuditFilter{
		Role:     strings.TrimSpace(q.Get("role")),
		Action:   strings.ToUpper(strings.TrimSpace(q.Get("action"))),
		Resource: strings.TrimSpace(q.Get("resource")),
		From:     strings.TrimSpace(q.Get("from")),
		To:       strings.TrimSpace(q.Get("to")),
		UserID:   int64(queryInt(r, "user_id")),
		Limit:    queryInt(r, "limit"),
		Offset:   queryInt(r, "offset"),
	}
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 100
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	logs, err := h.store.ListAuditLogs(r.Context(), filter)
	if err != nil {
		h.handleError(w, r, "auditLogs", err)
		return
	}
	respondJSON(w, http.StatusOK, logs)
}
