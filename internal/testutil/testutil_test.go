package testutil

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestAssertHelpersPass(t *testing.T) {
	t.Parallel()
	AssertStatusCode(t, http.StatusOK, http.StatusOK)
	AssertNoError(t, nil)
	AssertError(t, io.EOF)
}

func TestLogBuilder(t *testing.T) {
	t.Parallel()

	got := NewLogBuilder("RPM", "Load", "MAF").
		Values(3000, 0.5, 20).
		Row("3500", "", "n/a").
		String()
	want := "RPM,Load,MAF\n3000,0.5,20\n3500,,n/a\n"
	if got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestLogBuilderPull(t *testing.T) {
	t.Parallel()

	got := NewLogBuilder("RPM", "Load").
		Delimiter(";").
		Pull(3000, 4000, 500, func(rpm int) []float64 { return []float64{float64(rpm) / 10000} }).
		String()
	want := "RPM;Load\n3000;0.3\n3500;0.35\n4000;0.4\n"
	if got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestNewUploadRequest(t *testing.T) {
	t.Parallel()

	req := NewUploadRequest(t, "/api/runs", "pull.csv", []byte("RPM\n"), map[string]string{"gear": "4"})
	if err := req.ParseMultipartForm(1 << 20); err != nil {
		t.Fatalf("ParseMultipartForm: %v", err)
	}
	if got := req.FormValue("gear"); got != "4" {
		t.Errorf("gear = %q, want 4", got)
	}
	f, hdr, err := req.FormFile("file")
	if err != nil {
		t.Fatalf("FormFile: %v", err)
	}
	defer f.Close()
	data, _ := io.ReadAll(f)
	if hdr.Filename != "pull.csv" || string(data) != "RPM\n" {
		t.Errorf("file = %s %q", hdr.Filename, data)
	}
}

func TestJSONHelpers(t *testing.T) {
	t.Parallel()

	req := NewJSONRequest(t, http.MethodPost, "/api/vehicles", map[string]int{"weight_lb": 3000})
	if ct := req.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	body, _ := io.ReadAll(req.Body)
	if !strings.Contains(string(body), `"weight_lb":3000`) {
		t.Errorf("body = %s", body)
	}

	rec := httptest.NewRecorder()
	rec.WriteString(`{"ok":true}`)
	var v struct{ OK bool }
	DecodeJSON(t, rec, &v)
	if !v.OK {
		t.Error("DecodeJSON did not decode ok")
	}
}
