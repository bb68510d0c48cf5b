package listaudit

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/corray333/backend-labs/fulfillment/internal/service/models/auditlog"
	"github.com/corray333/backend-labs/fulfillment/internal/transport/http/httperr"
	"github.com/gorilla/schema"
)

// service is an interface for the service layer.
type service interface {
	ListAuditEntries(ctx context.Context, filter *auditlog.QueryEntriesModel) ([]auditlog.Entry, error)
}

type queryAuditRequest struct {
	ResourceType string `schema:"resourceType,omitempty"`
	ResourceID   string `schema:"resourceId,omitempty"`
	ActorID      string `schema:"actorId,omitempty"`
	Limit        int    `schema:"limit,omitempty"`
	Offset       int    `schema:"offset,omitempty"`
}

// ListAuditEntries handles the admin audit trail request. Entries come back
// newest first; the ledger offers no other ordering.
func ListAuditEntries(w http.ResponseWriter, r *http.Request, service service) {
	decoder := schema.NewDecoder()
	query := &queryAuditRequest{}
	if err := decoder.Decode(query, r.URL.Query()); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		slog.Error("Error decoding request", "error", err)

		return
	}

	entries, err := service.ListAuditEntries(r.Context(), &auditlog.QueryEntriesModel{
		ResourceType: query.ResourceType,
		ResourceID:   query.ResourceID,
		ActorID:      query.ActorID,
		Limit:        query.Limit,
		Offset:       query.Offset,
	})
	if err != nil {
		httperr.Write(w, err)
		slog.Error("Error listing audit entries", "error", err)

		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(entries); err != nil {
		slog.Error("Error sending response", "error", err)
	}
}
