// Package testutil holds request builders and response assertions shared by
// the collector's handler and middleware tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// NewJSONRequest builds a request whose body is body encoded as JSON. A nil
// body sends none.
func NewJSONRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err, "encode request body")
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func NewRequest(t *testing.T, method, path string) *http.Request {
	t.Helper()
	return NewJSONRequest(t, method, path, nil)
}

// NewRequestWithBody sends body verbatim, for malformed payloads.
func NewRequestWithBody(t *testing.T, method, path, body string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// DoRequest serves req through h and returns the recorded response.
func DoRequest(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// decode reads the recorded body into dst. The body stays readable for
// later assertions on the same recorder.
func decode(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	raw := rec.Body.Bytes()
	require.NoError(t, json.Unmarshal(raw, dst), "decode response body: %s", raw)
}

func UnmarshalResponse[T any](t *testing.T, rec *httptest.ResponseRecorder) *T {
	t.Helper()
	var v T
	decode(t, rec, &v)
	return &v
}

// UnmarshalErrorResponse decodes the collector's error envelope.
func UnmarshalErrorResponse(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var v map[string]string
	decode(t, rec, &v)
	return v
}

func AssertStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	assert.Equal(t, want, rec.Code, "status code, body: %s", rec.Body.String())
}

func AssertStatusOK(t *testing.T, rec *httptest.ResponseRecorder) {
	t.Helper()
	AssertStatus(t, rec, http.StatusOK)
}

// AssertErrorCode checks the envelope's "error" field.
func AssertErrorCode(t *testing.T, rec *httptest.ResponseRecorder, want string) {
	t.Helper()
	assert.Equal(t, want, UnmarshalErrorResponse(t, rec)["error"], "error code")
}

func AssertStatusAndError(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	AssertStatus(t, rec, status)
	AssertErrorCode(t, rec, code)
}

// AssertJSONContains checks one top-level field of a JSON object body.
func AssertJSONContains(t *testing.T, rec *httptest.ResponseRecorder, key string, want any) {
	t.Helper()
	var v map[string]any
	decode(t, rec, &v)
	assert.Equal(t, want, v[key], "field %q", key)
}
