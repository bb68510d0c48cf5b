package httperr

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/corray333/backend-labs/fulfillment/internal/dal/gateway"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/actor"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/auditlog"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/order"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/refund"
	"github.com/corray333/backend-labs/fulfillment/internal/service/services/reconciler"
)

// Kinds reported to the admin console so it can tell "your edit was
// rejected" from "someone else changed this order" from "the provider is
// unreachable" from "this completed but audit logging failed".
const (
	KindValidation = "validation"
	KindConflict   = "conflict"
	KindUpstream   = "upstream"
	KindIntegrity  = "integrity"
	KindNotFound   = "not_found"
	KindAuth       = "unauthorized"
	KindInternal   = "internal"
)

type response struct {
	Kind  string `json:"kind"`
	Error string `json:"error"`
	// AuditCompromised marks mutations that committed without an audit
	// entry; a compliance-risk condition, not a failed request.
	AuditCompromised bool `json:"auditCompromised,omitempty"`
}

// Write maps a service error onto the console's error taxonomy.
func Write(w http.ResponseWriter, err error) {
	kind, status := classify(err)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := response{
		Kind:             kind,
		Error:            err.Error(),
		AuditCompromised: kind == KindIntegrity,
	}
	if encodeErr := json.NewEncoder(w).Encode(resp); encodeErr != nil {
		slog.Error("Error writing error response", "error", encodeErr)
	}
}

func classify(err error) (string, int) {
	switch {
	case errors.Is(err, order.ErrInvalidTransition),
		errors.Is(err, order.ErrInvalidOrder),
		errors.Is(err, refund.ErrInvalidAmount),
		errors.Is(err, refund.ErrInvalidState):
		return KindValidation, http.StatusUnprocessableEntity
	case errors.Is(err, order.ErrVersionConflict),
		errors.Is(err, reconciler.ErrConflict):
		return KindConflict, http.StatusConflict
	case errors.Is(err, order.ErrNotFound):
		return KindNotFound, http.StatusNotFound
	case errors.Is(err, refund.ErrDispatchFailed),
		errors.Is(err, reconciler.ErrUnresolved),
		errors.Is(err, gateway.ErrUnavailable):
		return KindUpstream, http.StatusBadGateway
	case errors.Is(err, auditlog.ErrWriteFailed):
		return KindIntegrity, http.StatusInternalServerError
	case errors.Is(err, actor.ErrNoActor):
		return KindAuth, http.StatusUnauthorized
	default:
		return KindInternal, http.StatusInternalServerError
	}
}
