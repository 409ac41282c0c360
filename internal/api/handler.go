package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"pharmacy/m/domain"
	"pharmacy/m/internal/alerts"
	"pharmacy/m/internal/audit"
	"pharmacy/m/internal/lock"
	"pharmacy/m/internal/prescriptions"
	"pharmacy/m/internal/sales"
	"pharmacy/m/internal/store"
)

// Deps are the collaborators the HTTP layer delegates to.
type Deps struct {
	Store         *store.Store
	Sales         *sales.Service
	Alerts        *alerts.Service
	Prescriptions *prescriptions.Service
	Audit         *audit.Recorder
	Locker        lock.Locker
	Logger        *logrus.Logger
	Secret        string
	TokenTTL      time.Duration
	CORSOrigins   []string
}

// Handler bundles dependencies for HTTP handlers.
type Handler struct {
	store         *store.Store
	sales         *sales.Service
	alerts        *alerts.Service
	prescriptions *prescriptions.Service
	audit         *audit.Recorder
	locker        lock.Locker
	logger        *logrus.Logger
	secret        string
	tokenTTL      time.Duration
	corsOrigins   []string
	validate      *validator.Validate
}

// New constructs a Handler.
func New(d Deps) *Handler {
	ttl := d.TokenTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	origins := d.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return &Handler{
		store:         d.Store,
		sales:         d.Sales,
		alerts:        d.Alerts,
		prescriptions: d.Prescriptions,
		audit:         d.Audit,
		locker:        d.Locker,
		logger:        d.Logger,
		secret:        d.Secret,
		tokenTTL:      ttl,
		corsOrigins:   origins,
		validate:      newValidator(),
	}
}

// Router wires up the HTTP API.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   h.corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	}))

	r.Get("/health", h.health)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.register)
		r.Post("/login", h.login)
		r.Group(func(protected chi.Router) {
			protected.Use(h.authMiddleware)
			protected.Get("/user", h.currentProfile)
			protected.Post("/reset-password", h.resetPassword)
		})
	})

	r.Group(func(pr chi.Router) {
		pr.Use(h.authMiddleware)

		pr.Route("/pharmacies", func(r chi.Router) {
			r.Get("/", h.listPharmacies)
			r.Get("/my-settings", h.mySettings)
			r.With(requireRole(domain.RoleAdmin)).Post("/", h.createPharmacy)
			r.With(requireRole(domain.RoleAdmin)).Put("/{id}", h.updatePharmacy)
		})

		pr.With(requireRole(domain.RoleAdmin)).Put("/admin/users/{id}", h.assignUser)
		pr.With(requireRole(domain.RoleAdmin)).Get("/admin/audit-logs", h.auditLogs)

		pr.Route("/inventory", func(r chi.Router) {
			r.Use(requirePharmacy)
			r.Get("/drugs", h.listDrugs)
			r.With(requireRole(domain.RoleAdmin)).Post("/drugs", h.createDrug)
			r.With(requireRole(domain.RoleAdmin)).Put("/drugs/{id}", h.updateDrug)

			r.Get("/batches", h.listBatches)
			r.Post("/batches", h.createBatch)
			r.Put("/batches/{id}", h.updateBatch)

			r.Get("/alerts", h.stockAlerts)
			r.Get("/active-stock", h.activeStock)
		})

		pr.Route("/sales", func(r chi.Router) {
			r.Use(requirePharmacy)
			r.Post("/estimate", h.estimate)
			r.Post("/checkout", h.checkout)
			r.Get("/history", h.salesHistory)
			r.Get("/receipt/{id}", h.receipt)
			r.With(requireRole(domain.RoleAdmin)).Post("/{id}/void", h.voidSale)
		})

		pr.Route("/prescriptions", func(r chi.Router) {
			r.Use(requirePharmacy)
			r.Get("/", h.listPrescriptions)
			r.Post("/", h.createPrescription)
			r.Post("/validate", h.validatePrescription)
			r.Group(func(admin chi.Router) {
				admin.Use(requireRole(domain.RoleAdmin))
				admin.Get("/pending", h.pendingPrescriptions)
				admin.Put("/{id}/approve", h.approvePrescription)
				admin.Put("/{id}/reject", h.rejectPrescription)
			})
		})
	})

	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DB().PingContext(r.Context()); err != nil {
		h.logger.WithError(err).Warn("health check failed")
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
