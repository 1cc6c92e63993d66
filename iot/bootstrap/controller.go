package bootstrap

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/gorilla/mux"

	"github.com/relabs-tech/provisio/core/logger"
	"github.com/relabs-tech/provisio/core/schema"
	"github.com/relabs-tech/provisio/core/tenant"
	"github.com/relabs-tech/provisio/iot/bootstrap/schemas"
)

// Path is the public bootstrap endpoint. It must be on the JWT middleware's
// allow-list, devices have no token yet.
const Path = "/api/config/bootstrap"

const requestSchemaID = "bootstrap-request"

// Auditor receives a record of every completed bootstrap. Optional.
type Auditor interface {
	BootstrapCompleted(ctx context.Context, tenantID, deviceID, deviceType string, code int)
}

// API is the HTTP boundary of the bootstrap service.
type API struct {
	service   *Service
	validator *schema.Validator
	auditor   Auditor
}

// APIBuilder is a builder helper for the API
type APIBuilder struct {
	// Router is a mux router. This is mandatory.
	Router *mux.Router
	// Service assembles the provisioning responses. This is mandatory.
	Service *Service
	// Auditor publishes completion events. Optional.
	Auditor Auditor
}

// MustNewAPI realizes the bootstrap API and adds the route to the router.
func MustNewAPI(b *APIBuilder) *API {
	if b.Router == nil {
		panic("Router is missing")
	}
	if b.Service == nil {
		panic("Service is missing")
	}
	validator, err := schema.NewValidatorFromFS(schemas.FS)
	if err != nil {
		panic(err)
	}
	a := &API{
		service:   b.Service,
		validator: validator,
		auditor:   b.Auditor,
	}
	a.handleRoutes(b.Router)
	return a
}

func (a *API) handleRoutes(router *mux.Router) {
	logger.Default().Infoln("bootstrap: handle route " + Path + " POST")

	router.HandleFunc(Path, func(w http.ResponseWriter, r *http.Request) {
		rlog := logger.FromContext(r.Context())

		// preflight, the CORS headers come from the outer middleware
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			a.respond(w, r, NewErrorEnvelope(http.StatusBadRequest,
				"cannot read request body", ErrorCodeValidation, time.Now()))
			return
		}

		if err := a.validator.ValidateString(string(body), requestSchemaID); err != nil {
			a.respond(w, r, NewErrorEnvelope(http.StatusBadRequest,
				"invalid bootstrap request", ErrorCodeValidation, time.Now()).
				WithDetails(err.Error()))
			return
		}

		req := Request{}
		if err := json.Unmarshal(body, &req); err != nil {
			a.respond(w, r, NewErrorEnvelope(http.StatusBadRequest,
				"invalid bootstrap request", ErrorCodeValidation, time.Now()).
				WithDetails(err.Error()))
			return
		}

		t := tenant.FromContext(r.Context())
		envelope := a.service.Bootstrap(r.Context(), t, req)
		rlog.Debugf("bootstrap %s/%s -> %d", t.ID, req.DeviceID, envelope.Code)
		a.respond(w, r, envelope)

		if a.auditor != nil {
			a.auditor.BootstrapCompleted(r.Context(), t.ID, req.DeviceID, req.DeviceType, envelope.Code)
		}
	}).Methods(http.MethodOptions, http.MethodPost)
}

func (a *API) respond(w http.ResponseWriter, r *http.Request, envelope *ResponseEnvelope) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(envelope.Code)
	if err := json.NewEncoder(w).Encode(envelope); err != nil {
		logger.FromContext(r.Context()).WithError(err).Errorf("Error 4334: cannot write response")
	}
}
