// Package audit records who did what. Recording is best effort: a failure is
// logged and never reaches the caller.
package audit

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/sirupsen/logrus"

	"pharmacy/m/domain"
	"pharmacy/m/internal/logging"
)

// Actor identifies the caller behind an audited action.
type Actor struct {
	UserID    int64
	Role      string
	IP        string
	UserAgent string
}

type actorKey struct{}

// WithActor attaches the caller to ctx for later audit records.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// ActorFrom returns the caller attached to ctx, if any.
func ActorFrom(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(Actor)
	return a, ok
}

// Writer persists audit entries.
type Writer interface {
	CreateAuditLog(ctx context.Context, l domain.AuditLog) error
}

type Recorder struct {
	w      Writer
	logger *logrus.Logger
}

func NewRecorder(w Writer, logger *logrus.Logger) *Recorder {
	return &Recorder{w: w, logger: logger}
}

// Record writes an audit entry for action on resource by the actor attached
// to ctx. details is encoded as JSON when non-nil.
func (r *Recorder) Record(ctx context.Context, action, resource string, resourceID int64, details any) {
	actor, _ := ActorFrom(ctx)
	entry := domain.AuditLog{
		Action:    action,
		Resource:  resource,
		Role:      optional(actor.Role),
		IP:        optional(actor.IP),
		UserAgent: optional(actor.UserAgent),
	}
	if actor.UserID > 0 {
		uid := actor.UserID
		entry.UserID = &uid
	}
	if resourceID > 0 {
		entry.ResourceID = optional(strconv.FormatInt(resourceID, 10))
	}
	if details != nil {
		raw, err := json.Marshal(details)
		if err != nil {
			logging.Error(r.logger, "audit", "Record", "encoding details", details, err)
		} else {
			entry.Details = optional(string(raw))
		}
	}

	if err := r.w.CreateAuditLog(ctx, entry); err != nil {
		logging.Error(r.logger, "audit", "Record", action+" "+resource, resourceID, err)
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
