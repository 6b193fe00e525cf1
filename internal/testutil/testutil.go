// Package testutil provides shared test utilities and fixtures.
//
// This package centralises common test helpers to reduce code duplication
// across test files and improve test maintainability.
package testutil

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
)

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// DecodeJSON unmarshals a recorded response body into v.
func DecodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
}

// LogBuilder assembles a CSV datalog for tests.
type LogBuilder struct {
	delim  string
	header []string
	rows   [][]string
}

// NewLogBuilder starts a log with the given column headers.
func NewLogBuilder(header ...string) *LogBuilder {
	return &LogBuilder{delim: ",", header: header}
}

// Delimiter switches the field separator.
func (b *LogBuilder) Delimiter(d string) *LogBuilder {
	b.delim = d
	return b
}

// Row appends a row of raw cell values.
func (b *LogBuilder) Row(cells ...string) *LogBuilder {
	b.rows = append(b.rows, cells)
	return b
}

// Values appends a row of numbers formatted with minimal precision.
func (b *LogBuilder) Values(values ...float64) *LogBuilder {
	cells := make([]string, len(values))
	for i, v := range values {
		cells[i] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return b.Row(cells...)
}

// Pull appends rows sweeping rpm from start to end in step increments. The
// remaining columns are produced by cells for each rpm.
func (b *LogBuilder) Pull(start, end, step int, cells func(rpm int) []float64) *LogBuilder {
	for rpm := start; rpm <= end; rpm += step {
		b.Values(append([]float64{float64(rpm)}, cells(rpm)...)...)
	}
	return b
}

// String renders the log.
func (b *LogBuilder) String() string {
	var sb strings.Builder
	sb.WriteString(strings.Join(b.header, b.delim))
	sb.WriteString("\n")
	for _, row := range b.rows {
		sb.WriteString(strings.Join(row, b.delim))
		sb.WriteString("\n")
	}
	return sb.String()
}

// Bytes renders the log as bytes.
func (b *LogBuilder) Bytes() []byte {
	return []byte(b.String())
}

// NewUploadRequest builds a multipart POST with a "file" part and the given
// form fields.
func NewUploadRequest(t *testing.T, path, filename string, content []byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("write field %s: %v", k, err)
		}
	}
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := fw.Write(content); err != nil {
			t.Fatalf("write form file: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

// NewJSONRequest builds a request with a JSON-encoded body.
func NewJSONRequest(t *testing.T, method, path string, v any) *http.Request {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("encode request body: %v", err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}
