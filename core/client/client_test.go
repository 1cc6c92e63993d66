package client_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/provisio/core/access"
	"github.com/relabs-tech/provisio/core/client"
)

type echoRequest struct {
	Name string `json:"name"`
}

type echoResponse struct {
	Name   string   `json:"name"`
	UserID string   `json:"userId"`
	Roles  []string `json:"roles"`
	Header string   `json:"header"`
}

func newEchoRouter() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/echo", func(w http.ResponseWriter, r *http.Request) {
		req := echoRequest{}
		json.NewDecoder(r.Body).Decode(&req)
		res := echoResponse{Name: req.Name, Header: r.Header.Get("X-Test")}
		if auth := access.AuthorizationFromContext(r.Context()); auth != nil {
			res.UserID = auth.UserID
			res.Roles = auth.Roles
		}
		json.NewEncoder(w).Encode(res)
	}).Methods(http.MethodGet, http.MethodPost)
	return router
}

func TestRawGet(t *testing.T) {
	cl := client.NewWithRouter(newEchoRouter())

	status, body, err := cl.RawGet("/echo")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.NotEmpty(t, body)

	status, _, err = cl.RawGet("/nowhere")
	assert.Error(t, err)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestPostRoundTrip(t *testing.T) {
	cl := client.NewWithRouter(newEchoRouter()).WithHeader("X-Test", "value")

	res := echoResponse{}
	status, err := cl.Post("/echo", echoRequest{Name: "dev-1"}, &res)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "dev-1", res.Name)
	assert.Equal(t, "value", res.Header)
}

func TestWithAuthorization(t *testing.T) {
	auth := &access.Authorization{UserID: "u-1", Roles: []string{"admin"}}
	cl := client.NewWithRouter(newEchoRouter()).
		WithAuthorization(auth).
		WithContext(context.Background())

	res := echoResponse{}
	status, err := cl.Post("/echo", echoRequest{Name: "dev-1"}, &res)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "u-1", res.UserID)
	assert.Equal(t, []string{"admin"}, res.Roles)
}
