package bootstrap_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/provisio/core/client"
	"github.com/relabs-tech/provisio/core/idempotency"
	"github.com/relabs-tech/provisio/core/logger"
	"github.com/relabs-tech/provisio/core/tenant"
	"github.com/relabs-tech/provisio/iot/bootstrap"
	"github.com/relabs-tech/provisio/iot/firmware"
)

type auditEvent struct {
	tenantID   string
	deviceID   string
	deviceType string
	code       int
}

type recordingAuditor struct {
	events []auditEvent
}

func (a *recordingAuditor) BootstrapCompleted(ctx context.Context, tenantID, deviceID, deviceType string, code int) {
	a.events = append(a.events, auditEvent{tenantID, deviceID, deviceType, code})
}

func newTestRouter(t *testing.T, auditor bootstrap.Auditor) client.Client {
	t.Helper()
	router := mux.NewRouter()
	logger.AddRequestID(router)
	router.Use(tenant.NewMiddleware(&tenant.Builder{}))
	router.Use(idempotency.NewMiddleware(&idempotency.Builder{
		Store: idempotency.NewMemoryStore(),
	}))

	issuer := bootstrap.NewTransientIssuer(time.Hour)
	service := bootstrap.NewService(&bootstrap.Builder{
		Issuer:     issuer,
		Catalog:    firmware.NewStaticCatalog(),
		SigningKey: []byte("factory-key"),
	})
	bootstrap.MustNewAPI(&bootstrap.APIBuilder{
		Router:  router,
		Service: service,
		Auditor: auditor,
	})
	return client.NewWithRouter(router)
}

func validBody(t *testing.T) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{
		"deviceType": "sensor",
		"deviceId":   "dev-1",
		"uniqueId":   "serial-0001",
		"firmware":   map[string]string{"version": "1.0.0"},
	})
	require.NoError(t, err)
	return body
}

func TestBootstrapEndpoint(t *testing.T) {
	cl := newTestRouter(t, nil)

	status, _, body, err := cl.WithHeader(tenant.HeaderTenantID, "acme").
		RawPost(bootstrap.Path, validBody(t))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, status)

	envelope := bootstrap.ResponseEnvelope{}
	require.NoError(t, json.Unmarshal(body, &envelope))
	assert.Equal(t, http.StatusOK, envelope.Code)
	assert.True(t, bootstrap.NewSigner([]byte("factory-key")).Verify(envelope.Data, envelope.Signature))

	data := bootstrap.Data{}
	require.NoError(t, json.Unmarshal(envelope.Data, &data))
	assert.Equal(t, "acme", data.Config.Device.TenantID)
	assert.Equal(t, "iot/acme/sensor/dev-1/telemetry", data.Topics.TelemetryPub)
}

func TestBootstrapEndpointSchemaValidation(t *testing.T) {
	cl := newTestRouter(t, nil)

	// deviceId is mandatory
	body, err := json.Marshal(map[string]interface{}{
		"deviceType": "sensor",
		"uniqueId":   "serial-0001",
	})
	require.NoError(t, err)

	status, _, responseBody, err := cl.RawPost(bootstrap.Path, body)
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, status)

	envelope := bootstrap.ResponseEnvelope{}
	require.NoError(t, json.Unmarshal(responseBody, &envelope))
	assert.Equal(t, bootstrap.ErrorCodeValidation, envelope.ErrorCode)
	assert.NotEmpty(t, envelope.ErrorDetails)
	assert.Nil(t, envelope.Data)
}

func TestBootstrapEndpointRejectsTopicDelimiters(t *testing.T) {
	cl := newTestRouter(t, nil)

	body, err := json.Marshal(map[string]interface{}{
		"deviceType": "sensor",
		"deviceId":   "dev/1",
		"uniqueId":   "serial-0001",
	})
	require.NoError(t, err)

	status, _, _, err := cl.RawPost(bootstrap.Path, body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestBootstrapEndpointPreflight(t *testing.T) {
	router := mux.NewRouter()
	bootstrap.MustNewAPI(&bootstrap.APIBuilder{
		Router: router,
		Service: bootstrap.NewService(&bootstrap.Builder{
			Issuer:     bootstrap.NewTransientIssuer(time.Hour),
			Catalog:    firmware.NewStaticCatalog(),
			SigningKey: []byte("factory-key"),
		}),
	})

	r := httptest.NewRequest(http.MethodOptions, bootstrap.Path, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, r)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.Bytes())
}

func TestBootstrapEndpointMalformedJSON(t *testing.T) {
	cl := newTestRouter(t, nil)

	status, _, _, err := cl.RawPost(bootstrap.Path, []byte("{not json"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestBootstrapEndpointIdempotentReplay(t *testing.T) {
	cl := newTestRouter(t, nil).WithHeader(tenant.HeaderTenantID, "acme").
		WithHeader(idempotency.MessageIDHeader, "msg-42")

	status, _, first, err := cl.RawPost(bootstrap.Path, validBody(t))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, status)

	// the replay is served from the cache, bit for bit, no second issuance
	status, _, second, err := cl.RawPost(bootstrap.Path, validBody(t))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, first, second)

	// a different message id reaches the service again, with a fresh password
	status, _, third, err := cl.WithHeader(idempotency.MessageIDHeader, "msg-43").
		RawPost(bootstrap.Path, validBody(t))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, status)
	assert.NotEqual(t, first, third)
}

func TestBootstrapEndpointAudit(t *testing.T) {
	auditor := &recordingAuditor{}
	cl := newTestRouter(t, auditor)

	status, _, _, err := cl.WithHeader(tenant.HeaderTenantID, "acme").
		RawPost(bootstrap.Path, validBody(t))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, status)

	require.Len(t, auditor.events, 1)
	assert.Equal(t, auditEvent{"acme", "dev-1", "sensor", http.StatusOK}, auditor.events[0])
}
