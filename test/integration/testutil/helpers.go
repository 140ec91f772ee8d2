//go:build integration

package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gridshare/platform/internal/domain"
	"github.com/gridshare/platform/internal/provider"
)

// GET performs a GET request.
func (env *TestEnv) GET(path string) *http.Response {
	env.t.Helper()
	resp, err := http.Get(env.Server.URL + path)
	if err != nil {
		env.t.Fatalf("GET %s: %v", path, err)
	}
	return resp
}

// POST performs a JSON POST request.
func (env *TestEnv) POST(path string, body interface{}) *http.Response {
	env.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			env.t.Fatalf("POST %s: encode: %v", path, err)
		}
	}
	resp, err := http.Post(env.Server.URL+path, "application/json", &buf)
	if err != nil {
		env.t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

// Callback posts a callback signed with TestCallbackSecret.
func (env *TestEnv) Callback(id, permissionID string, status domain.Status) *http.Response {
	env.t.Helper()
	payload, err := json.Marshal(provider.Callback{ID: id, PermissionID: permissionID, Status: status})
	if err != nil {
		env.t.Fatalf("Callback: encode: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, env.Server.URL+"/region/callbacks", bytes.NewReader(payload))
	if err != nil {
		env.t.Fatalf("Callback: new request: %v", err)
	}
	req.Header.Set(provider.SignatureHeader, env.Engine.Verifier.Sign(payload, time.Now()))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		env.t.Fatalf("Callback: %v", err)
	}
	return resp
}

// CreatePermission opens a request and returns its projection.
func (env *TestEnv) CreatePermission(connectionID, dataNeedID string) domain.PermissionRequest {
	env.t.Helper()
	resp := env.POST("/permission-requests", domain.CreateRequest{ConnectionID: connectionID, DataNeedID: dataNeedID})
	if resp.StatusCode != http.StatusCreated {
		resp.Body.Close()
		env.t.Fatalf("CreatePermission: expected 201, got %d", resp.StatusCode)
	}
	var pr domain.PermissionRequest
	DecodeJSON(env.t, resp, &pr)
	return pr
}

// Permission fetches the current projection of a request.
func (env *TestEnv) Permission(pid string) domain.PermissionRequest {
	env.t.Helper()
	resp := env.GET("/permission-requests/" + pid)
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		env.t.Fatalf("Permission: expected 200, got %d", resp.StatusCode)
	}
	var pr domain.PermissionRequest
	DecodeJSON(env.t, resp, &pr)
	return pr
}

// DecodeJSON reads and decodes a JSON response body into dst.
func DecodeJSON(t interface {
	Helper()
	Fatalf(string, ...interface{})
}, resp *http.Response, dst interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		t.Fatalf("DecodeJSON: %v", err)
	}
}
