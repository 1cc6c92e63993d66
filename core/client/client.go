// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

/*
Package client provides easy and fast in-process access to a REST api

Instead of marshalling HTTP, the client talks directly to the mux router. It
is perfectly suited for unit tests.
*/
package client

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"

	"github.com/goccy/go-json"

	"github.com/gorilla/mux"

	"github.com/relabs-tech/provisio/core/access"
)

// Client provides easy access to the REST API.
type Client struct {
	router         *mux.Router
	auth           *access.Authorization
	ctx            context.Context
	defaultHeaders map[string]string
}

// NewWithRouter creates a client to make pseudo-REST requests to the backend,
// through the mux router.
func NewWithRouter(router *mux.Router) Client {
	return Client{
		router:         router,
		defaultHeaders: map[string]string{},
	}
}

// WithHeader returns a new client with a default header added
func (c Client) WithHeader(key string, value string) Client {
	headers := map[string]string{key: value}
	for k, v := range c.defaultHeaders {
		headers[k] = v
	}
	c.defaultHeaders = headers
	return c
}

// WithAuthorization returns a new client with a specific authorization
// injected into the request context, bypassing token verification.
func (c Client) WithAuthorization(auth *access.Authorization) Client {
	c.auth = auth
	return c
}

// WithContext returns a new client with a specific base request context
func (c Client) WithContext(ctx context.Context) Client {
	c.ctx = ctx
	return c
}

func (c Client) context() context.Context {
	ctx := c.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	if c.auth != nil {
		ctx = c.auth.ContextWithAuthorization(ctx)
	}
	return ctx
}

// RawGet gets the resource from path. Expects http.StatusOK as response,
// otherwise it will flag an error. Returns the status and the response body.
func (c Client) RawGet(path string) (int, []byte, error) {
	r := httptest.NewRequest(http.MethodGet, path, nil).WithContext(c.context())
	for k, v := range c.defaultHeaders {
		r.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	c.router.ServeHTTP(rec, r)
	res := rec.Result()
	status := res.StatusCode
	if status != http.StatusOK {
		return status, rec.Body.Bytes(), fmt.Errorf("got status %d for GET %s", status, path)
	}
	return status, rec.Body.Bytes(), nil
}

// RawPost posts body to path. Returns the status, the response header and the
// raw response body.
func (c Client) RawPost(path string, body []byte) (int, http.Header, []byte, error) {
	r := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body)).WithContext(c.context())
	r.Header.Set("Content-Type", "application/json")
	for k, v := range c.defaultHeaders {
		r.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	c.router.ServeHTTP(rec, r)
	res := rec.Result()
	return res.StatusCode, res.Header, rec.Body.Bytes(), nil
}

// Post posts body as JSON to path and unmarshals the JSON response into result.
// Result can be nil.
func (c Client) Post(path string, body interface{}, result interface{}) (int, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return 0, err
	}
	status, _, response, err := c.RawPost(path, data)
	if err != nil {
		return status, err
	}
	if result != nil && len(response) > 0 {
		if err := json.Unmarshal(response, result); err != nil {
			return status, fmt.Errorf("cannot unmarshal response for POST %s: %w", path, err)
		}
	}
	return status, nil
}
