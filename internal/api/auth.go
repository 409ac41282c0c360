package api

import (
	"errors"
	"net/http"
	"strings"

	"pharmacy/m/domain"
	"pharmacy/m/internal/auth"
	"pharmacy/m/internal/store"
)

type registerRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	FullName string `json:"full_name"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type authResponse struct {
	Token string       `json:"token"`
	User  *domain.User `json:"user"`
}

// register creates an unassigned STAFF profile. An admin links it to a
// pharmacy through assignUser before it can reach any tenant data.
func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !h.decodeValid(w, r, &req) {
		return
	}

	hashed, err := auth.HashPassword(req.Password)
	if err != nil {
		h.handleError(w, r, "register", err)
		return
	}
	user, err := h.store.CreateUser(r.Context(), domain.User{
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		FullName:     strings.TrimSpace(req.FullName),
		PasswordHash: hashed,
		Role:         domain.RoleStaff,
	})
	if store.IsUniqueViolation(err) {
		respondError(w, http.StatusConflict, "email already exists")
		return
	}
	if err != nil {
		h.handleError(w, r, "register", err)
		return
	}

	token, err := auth.GenerateToken(h.secret, *user, h.tokenTTL)
	if err != nil {
		h.handleError(w, r, "register", err)
		return
	}
	respondJSON(w, http.StatusCreated, authResponse{Token: token, User: user})
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.decodeValid(w, r, &req) {
		return
	}

	user, err := h.store.GetUserByEmail(r.Context(), strings.ToLower(strings.TrimSpace(req.Email)))
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err != nil {
		h.handleError(w, r, "login", err)
		return
	}
	if !auth.CheckPassword(user.PasswordHash, req.Password) {
		respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := auth.GenerateToken(h.secret, *user, h.tokenTTL)
	if err != nil {
		h.handleError(w, r, "login", err)
		return
	}
	respondJSON(w, http.StatusOK, authResponse{Token: token, User: user})
}

func (h *Handler) currentProfile(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, currentUser(r.Context()))
}

func (h *Handler) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		NewPassword string `json:"new_password" validate:"required,min=6"`
	}
	if !h.decodeValid(w, r, &req) {
		return
	}
	user := currentUser(r.Context())
	hashed, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		h.handleError(w, r, "resetPassword", err)
		return
	}
	if err := h.store.UpdateUserPassword(r.Context(), user.ID, hashed); err != nil {
		h.handleError(w, r, "resetPassword", err)
		return
	}
	h.audit.Record(r.Context(), domain.ActionUpdate, "user_password", user.ID, nil)
	respondJSON(w, http.StatusOK, map[string]string{"status": "password updated"})
}

type assignRequest struct {
	PharmacyID *int64 `json:"pharmacy_id" validate:"omitempty,gt=0"`
	Role       string `json:"role" validate:"omitempty,oneof=ADMIN STAFF"`
}

// assignUser links a profile to a pharmacy and sets its role. A pharmacy
// admin may only claim unassigned users or users of its own pharmacy, and only
// for that pharmacy. Only a super-admin may leave pharmacy_id empty, which
// requires role ADMIN.
func (h *Handler) assignUser(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req assignRequest
	if !h.decodeValid(w, r, &req) {
		return
	}
	if req.Role == "" {
		req.Role = domain.RoleStaff
	}

	caller := currentUser(r.Context())
	if !caller.Unscoped() {
		if req.PharmacyID == nil {
			req.PharmacyID = caller.PharmacyID
		}
		if *req.PharmacyID != *caller.PharmacyID {
			respondError(w, http.StatusForbidden, "cannot assign users to another pharmacy")
			return
		}
	}
	if req.PharmacyID == nil && req.Role != domain.RoleAdmin {
		respondError(w, http.StatusBadRequest, "pharmacy_id is required for staff")
		return
	}
	if req.PharmacyID != nil {
		if _, err := h.store.GetPharmacy(r.Context(), *req.PharmacyID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				respondError(w, http.StatusBadRequest, "pharmacy does not exist")
				return
			}
			h.handleError(w, r, "assignUser", err)
			return
		}
	}

	target, err := h.store.GetUser(r.Context(), id)
	if err != nil {
		h.handleError(w, r, "assignUser", err)
		return
	}
	if !caller.Unscoped() && target.PharmacyID == nil && target.IsAdmin() {
		respondError(w, http.StatusForbidden, "cannot reassign a super-admin")
		return
	}
	if !caller.Unscoped() && target.PharmacyID != nil && *target.PharmacyID != *caller.PharmacyID {
		respondError(w, http.StatusForbidden, "user belongs to another pharmacy")
		return
	}

	user, err := h.store.AssignUser(r.Context(), id, req.PharmacyID, req.Role)
	if err != nil {
		h.handleError(w, r, "assignUser", err)
		return
	}
	h.audit.Record(r.Context(), domain.ActionUpdate, "user", user.ID, map[string]any{
		"pharmacy_id": user.PharmacyID,
		"role":        user.Role,
	})
	respondJSON(w, http.StatusOK, user)
}

type pharmacyRequest struct {
	Name    string `json:"name" validate:"required"`
	Address string `json:"address"`
	Phone   string `json:"phone"`
}

func (h *Handler) listPharmacies(w http.ResponseWriter, r *http.Request) {
	pharmacies, err := h.store.ListPharmacies(r.Context())
	if err != nil {
		h.handleError(w, r, "listPharmacies", err)
		return
	}
	respondJSON(w, http.StatusOK, pharmacies)
}

// createPharmacy is limited to admins not bound to a pharmacy.
func (h *Handler) createPharmacy(w http.ResponseWriter, r *http.Request) {
	if !currentUser(r.Context()).Unscoped() {
		respondError(w, http.StatusForbidden, "only an unscoped admin can create pharmacies")
		return
	}
	var req pharmacyRequest
	if !h.decodeValid(w, r, &req) {
		return
	}
	p, err := h.store.CreatePharmacy(r.Context(), domain.Pharmacy{
		Name:    strings.TrimSpace(req.Name),
		Address: strings.TrimSpace(req.Address),
		Phone:   strings.TrimSpace(req.Phone),
	})
	if err != nil {
		h.handleError(w, r, "createPharmacy", err)
		return
	}
	h.audit.Record(r.Context(), domain.ActionCreate, "pharmacy", p.ID, map[string]any{"name": p.Name})
	respondJSON(w, http.StatusCreated, p)
}

// updatePharmacy edits a pharmacy. A pharmacy admin may only edit its own.
func (h *Handler) updatePharmacy(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	caller := currentUser(r.Context())
	if !caller.Unscoped() && (caller.PharmacyID == nil || *caller.PharmacyID != id) {
		respondError(w, http.StatusForbidden, "pharmacy belongs to another tenant")
		return
	}
	var req pharmacyRequest
	if !h.decodeValid(w, r, &req) {
		return
	}
	p, err := h.store.UpdatePharmacy(r.Context(), domain.Pharmacy{
		ID:      id,
		Name:    strings.TrimSpace(req.Name),
		Address: strings.TrimSpace(req.Address),
		Phone:   strings.TrimSpace(req.Phone),
	})
	if err != nil {
		h.handleError(w, r, "updatePharmacy", err)
		return
	}
	h.audit.Record(r.Context(), domain.ActionUpdate, "pharmacy", p.ID, map[string]any{
		"name":    p.Name,
		"address": p.Address,
		"phone":   p.Phone,
	})
	respondJSON(w, http.StatusOK, p)
}

// mySettings returns the caller's pharmacy, or a null pharmacy_id when the
// caller has none.
func (h *Handler) mySettings(w http.ResponseWriter, r *http.Request) {
	caller := currentUser(r.Context())
	if caller.PharmacyID == nil {
		respondJSON(w, http.StatusOK, map[string]any{"pharmacy_id": nil})
		return
	}
	p, err := h.store.GetPharmacy(r.Context(), *caller.PharmacyID)
	if err != nil {
		h.handleError(w, r, "mySettings", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"pharmacy_id": p.ID,
		"pharmacy":    p,
	})
}
