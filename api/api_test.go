package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/martinsuchenak/ipamd/internal/api"
	"github.com/martinsuchenak/ipamd/internal/registry"
	"github.com/martinsuchenak/ipamd/internal/storage"
)

const testToken = "integration-test-token"

// TestServer runs the full handler and middleware chain the way the server
// command assembles it: auth, request IDs, security headers.
type TestServer struct {
	server   *httptest.Server
	registry *registry.Registry
	storage  storage.Storage
}

// NewTestServer creates a new test server with auth enabled
func NewTestServer(t *testing.T) *TestServer {
	t.Helper()

	store, err := storage.NewStorage(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	reg := registry.New(store)
	if err := reg.Load(); err != nil {
		t.Fatalf("Failed to load registry: %v", err)
	}

	handler := api.NewHandler(reg, nil)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	chain := api.SecurityHeadersMiddleware(api.RequestIDMiddleware(api.AuthMiddleware(testToken, mux)))
	server := httptest.NewServer(chain)
	t.Cleanup(server.Close)

	return &TestServer{
		server:   server,
		registry: reg,
		storage:  store,
	}
}

// URL returns the base URL of the test server
func (ts *TestServer) URL() string {
	return ts.server.URL
}

// Do sends an authenticated request and returns the response
func (ts *TestServer) Do(t *testing.T, method, path string, body []byte) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequest(method, ts.URL()+path, reader)
	if err != nil {
		t.Fatalf("Failed to build request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+testToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	return resp
}

// CIDRJSON is a helper for building register payloads
func CIDRJSON(cidr, kind string, tags ...string) []byte {
	payload := map[string]interface{}{
		"cidr": cidr,
		"kind": kind,
		"tags": tags,
	}
	data, _ := json.Marshal(payload)
	return data
}

// TestAPI_Integration_Lifecycle walks a CIDR block through its full
// lifecycle: register a hierarchy, query it, carve a free block, delete the
// middle layer and verify the children move up.
func TestAPI_Integration_Lifecycle(t *testing.T) {
	ts := NewTestServer(t)

	// 1. Build a three-level hierarchy, children registered before parents
	// to exercise re-parenting on insert.
	t.Run("RegisterHierarchy", func(t *testing.T) {
		for _, block := range []struct {
			cidr, kind string
			tags       []string
		}{
			{"10.0.1.0/24", "SUBNET", []string{"team=platform"}},
			{"10.0.2.0/24", "SUBNET", []string{"team=data"}},
			{"10.0.0.0/16", "VPC", []string{"env=prod"}},
			{"10.0.0.0/8", "STATIC", nil},
		} {
			resp := ts.Do(t, "POST", "/api/cidrs", CIDRJSON(block.cidr, block.kind, block.tags...))
			if resp.StatusCode != http.StatusCreated {
				body, _ := io.ReadAll(resp.Body)
				resp.Body.Close()
				t.Fatalf("Expected status 201 for %s, got %d: %s", block.cidr, resp.StatusCode, string(body))
			}
			resp.Body.Close()
		}
	})

	// 2. The VPC should parent both subnets.
	t.Run("Children", func(t *testing.T) {
		resp := ts.Do(t, "GET", "/api/cidrs/children?cidr=10.0.0.0/16", nil)
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			t.Fatalf("Expected status 200, got %d", resp.StatusCode)
		}
		var body struct {
			Children []string `json:"children"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		if len(body.Children) != 2 {
			t.Errorf("Expected 2 children, got %v", body.Children)
		}
	})

	// 3. Carve a free /24 out of the VPC; the first two are taken.
	t.Run("FreeBlock", func(t *testing.T) {
		payload, _ := json.Marshal(map[string]interface{}{
			"parent":        "10.0.0.0/16",
			"prefix_length": 24,
		})
		resp := ts.Do(t, "POST", "/api/cidrs/free-block", payload)
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			t.Fatalf("Expected status 200, got %d", resp.StatusCode)
		}
		var body struct {
			CIDR string `json:"cidr"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		if body.CIDR != "10.0.0.0/24" {
			t.Errorf("Expected free block 10.0.0.0/24, got %s", body.CIDR)
		}
	})

	// 4. Delete the VPC; the subnets should re-parent under the /8.
	t.Run("DeleteReparents", func(t *testing.T) {
		resp := ts.Do(t, "DELETE", "/api/cidrs?cidr=10.0.0.0/16", nil)
		resp.Body.Close()
		if resp.StatusCode != http.StatusNoContent {
			t.Fatalf("Expected status 204, got %d", resp.StatusCode)
		}

		resp = ts.Do(t, "GET", "/api/cidrs/children?cidr=10.0.0.0/8", nil)
		defer resp.Body.Close()

		var body struct {
			Children []string `json:"children"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		if len(body.Children) != 2 {
			t.Errorf("Expected 2 re-parented children, got %v", body.Children)
		}
	})

	// 5. Deleted block no longer resolves.
	t.Run("DeletedGone", func(t *testing.T) {
		resp := ts.Do(t, "GET", "/api/cidrs/lookup?cidr=10.0.0.0/16", nil)
		resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("Expected status 404, got %d", resp.StatusCode)
		}
	})
}

// TestAPI_Integration_Auth checks that the token guard fronts the API.
func TestAPI_Integration_Auth(t *testing.T) {
	ts := NewTestServer(t)

	tests := []struct {
		name       string
		authHeader string
		wantStatus int
	}{
		{"no token", "", http.StatusUnauthorized},
		{"wrong token", "Bearer wrong-token", http.StatusUnauthorized},
		{"valid token", "Bearer " + testToken, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest("GET", ts.URL()+"/api/cidrs", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("Request failed: %v", err)
			}
			resp.Body.Close()

			if resp.StatusCode != tt.wantStatus {
				t.Errorf("Expected status %d, got %d", tt.wantStatus, resp.StatusCode)
			}
		})
	}
}

// TestAPI_Integration_Headers checks the cross-cutting response headers.
func TestAPI_Integration_Headers(t *testing.T) {
	ts := NewTestServer(t)

	resp := ts.Do(t, "GET", "/api/cidrs", nil)
	defer resp.Body.Close()

	if got := resp.Header.Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("Expected X-Content-Type-Options nosniff, got %q", got)
	}
	if got := resp.Header.Get("X-Request-ID"); got == "" {
		t.Error("Expected X-Request-ID to be set")
	}
}

// TestAPI_Integration_IPLookup registers a lease and resolves an address to
// its narrowest containing block.
func TestAPI_Integration_IPLookup(t *testing.T) {
	ts := NewTestServer(t)

	for _, block := range []string{"10.0.0.0/16", "10.0.1.0/24"} {
		resp := ts.Do(t, "POST", "/api/cidrs", CIDRJSON(block, "STATIC"))
		resp.Body.Close()
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("Expected status 201 for %s, got %d", block, resp.StatusCode)
		}
	}

	resp := ts.Do(t, "GET", fmt.Sprintf("/api/cidrs/ip?ip=%s", "10.0.1.77"), nil)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}
	var rec struct {
		CIDR string `json:"cidr"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if rec.CIDR != "10.0.1.0/24" {
		t.Errorf("Expected narrowest block 10.0.1.0/24, got %s", rec.CIDR)
	}
}
