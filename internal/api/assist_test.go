package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/TanviPoddar/CodeGenie/internal/assist"
	"github.com/TanviPoddar/CodeGenie/internal/llm"
)

func TestAssistNotConfigured(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	for _, path := range []string{"/v1/assist/tests", "/v1/assist/debug", "/v1/assist/generate"} {
		resp := postJSON(t, ts.URL+path, map[string]string{"code": "x", "language": "python"})
		resp.Body.Close()
		if resp.StatusCode != http.StatusServiceUnavailable {
			t.Errorf("%s status = %d, want 503", path, resp.StatusCode)
		}
	}
}

func TestAssistEndpoints(t *testing.T) {
	gen := llm.GeneratorFunc(func(_ context.Context, p llm.Prompt) (string, error) {
		switch {
		case strings.Contains(p.System, "tester"):
			return "```python\ndef test_add(): assert add(1, 2) == 3\n```", nil
		case strings.Contains(p.System, "code reviewer"):
			return `Here you go: [{"type":"bug","line":1,"description":"off by one","originalCode":"i<=n","fixCode":"i<n"}]`, nil
		default:
			return "def add(a, b):\n    return a + b", nil
		}
	})
	srv := newTestServerWith(t, testOptions{generator: gen})
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	t.Run("tests", func(t *testing.T) {
		resp := postJSON(t, ts.URL+"/v1/assist/tests", map[string]string{"code": "def add(a, b): return a + b", "language": "python"})
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want 200", resp.StatusCode)
		}
		var body testsResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body.Tests != "def test_add(): assert add(1, 2) == 3" {
			t.Errorf("tests = %q", body.Tests)
		}
	})

	t.Run("debug", func(t *testing.T) {
		resp := postJSON(t, ts.URL+"/v1/assist/debug", map[string]string{"code": "for i in range(n+1): pass", "language": "python"})
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want 200", resp.StatusCode)
		}
		var body debugResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(body.Suggestions) != 1 || body.Suggestions[0].Type != assist.TypeBug {
			t.Errorf("suggestions = %+v, want one bug", body.Suggestions)
		}
	})

	t.Run("generate", func(t *testing.T) {
		resp := postJSON(t, ts.URL+"/v1/assist/generate", map[string]string{"prompt": "add two numbers", "language": "python"})
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want 200", resp.StatusCode)
		}
		var body generateResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body.GeneratedCode != "def add(a, b):\n    return a + b" {
			t.Errorf("generatedCode = %q", body.GeneratedCode)
		}
	})

	t.Run("missing input", func(t *testing.T) {
		resp := postJSON(t, ts.URL+"/v1/assist/generate", map[string]string{"language": "python"})
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", resp.StatusCode)
		}
	})
}

func TestAssistUpstreamFailure(t *testing.T) {
	gen := llm.GeneratorFunc(func(context.Context, llm.Prompt) (string, error) {
		return "", errors.New("upstream exploded with secret details")
	})
	srv := newTestServerWith(t, testOptions{generator: gen})
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/v1/assist/tests", map[string]string{"code": "x", "language": "python"})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["error"] != "code assistance failed" {
		t.Errorf("error = %q, want generic message", body["error"])
	}
}
