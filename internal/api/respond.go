package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"pharmacy/m/internal/fefo"
	"pharmacy/m/internal/lock"
	"pharmacy/m/internal/logging"
	"pharmacy/m/internal/prescriptions"
	"pharmacy/m/internal/sales"
	"pharmacy/m/internal/store"
)

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validationFields maps each failing field to the rule it broke, with the
// path relative to the request body (items[0].quantity).
func validationFields(errs validator.ValidationErrors) map[string]string {
	fields := make(map[string]string, len(errs))
	for _, fe := range errs {
		name := fe.Namespace()
		if i := strings.Index(name, "."); i >= 0 {
			name = name[i+1:]
		}
		fields[name] = fe.Tag()
	}
	return fields
}

// decodeJSON reads a request body, rejecting unknown fields.
func decodeJSON(r *http.Request, dest any) error {
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

// decodeValid decodes and validates a request body, writing the 400 itself.
// It reports whether the handler may continue.
func (h *Handler) decodeValid(w http.ResponseWriter, r *http.Request, dest any) bool {
	if err := decodeJSON(r, dest); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return false
	}
	if err := h.validate.StructCtx(r.Context(), dest); err != nil {
		var errs validator.ValidationErrors
		if errors.As(err, &errs) {
			respondJSON(w, http.StatusBadRequest, map[string]any{
				"error":  "validation failed",
				"fields": validationFields(errs),
			})
			return false
		}
		respondError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	_ = encoder.Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// handleError maps domain errors to responses. Anything unrecognised is
// logged and reported as a generic 500.
func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, funcName string, err error) {
	var stockErr *fefo.InsufficientStockError
	var rxErr *prescriptions.ValidationError

	switch {
	case errors.As(err, &stockErr):
		respondJSON(w, http.StatusBadRequest, map[string]any{
			"error":   stockErr.Error(),
			"drug_id": stockErr.DrugID,
		})
	case errors.As(err, &rxErr):
		respondJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "Prescription validation failed",
			"issues": rxErr.Issues,
		})
	case errors.Is(err, store.ErrNotFound):
		respondError(w, http.StatusNotFound, "not found")
	case errors.Is(err, sales.ErrForbidden), errors.Is(err, prescriptions.ErrForbidden),
		errors.Is(err, sales.ErrUnassigned), errors.Is(err, prescriptions.ErrUnassigned):
		respondError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, sales.ErrAlreadyVoided),
		errors.Is(err, sales.ErrEmptyCart),
		errors.Is(err, sales.ErrInvalidLine),
		errors.Is(err, sales.ErrNegativeDiscount),
		errors.Is(err, prescriptions.ErrInvalidTransition):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, lock.ErrNotObtained):
		respondError(w, http.StatusServiceUnavailable, "stock is busy, try again")
	case errors.Is(err, context.Canceled):
		// Client went away; nothing useful to write.
	default:
		logging.Error(h.logger, "api", funcName, r.Method+" "+r.URL.Path, nil, err)
		respondError(w, http.StatusInternalServerError, "internal server error")
	}
}

func urlID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return id, nil
}

func queryInt(r *http.Request, key string) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return 0
	}
	return n
}

func nullIfEmpty(val string) *string {
	trimmed := strings.TrimSpace(val)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
