package cmd

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/spf13/viper"
)

func resetViper() {
	viper.Reset()
	viper.SetEnvPrefix("PROJECTPLANE")
	viper.AutomaticEnv()
}

func setIdentity(serverURL string) {
	viper.Set("url", serverURL)
	viper.Set("tenant", "contoso")
	viper.Set("user", "2f9e4ddc-5b6b-4f1e-9a3c-111111111111")
}

func acceptedResponse(commandID string) map[string]interface{} {
	return map[string]interface{}{
		"command_id":     commandID,
		"runtime_status": "pending",
		"_links": map[string]string{
			"status": "http://api.test/orchestrator/commands/" + commandID,
		},
	}
}

func TestCreateCommand_Success(t *testing.T) {
	resetViper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST method, got %s", r.Method)
		}
		if r.URL.Path != "/api/projects" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("X-Tenant-ID") != "contoso" {
			t.Errorf("missing tenant header, got: %s", r.Header.Get("X-Tenant-ID"))
		}
		if r.Header.Get("X-User-ID") == "" {
			t.Error("missing user header")
		}

		var reqBody map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&reqBody); err != nil {
			t.Errorf("failed to decode request body: %v", err)
		}
		if reqBody["name"] != "web-shop" {
			t.Errorf("expected name=web-shop, got %v", reqBody["name"])
		}
		if reqBody["project_type"] != "default" {
			t.Errorf("expected project_type=default, got %v", reqBody["project_type"])
		}
		tags, _ := reqBody["tags"].(map[string]interface{})
		if tags["env"] != "dev" {
			t.Errorf("expected env=dev tag, got %v", tags)
		}

		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(acceptedResponse("cmd-123"))
	}))
	defer server.Close()

	setIdentity(server.URL)

	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stdout)
	rootCmd.SetArgs([]string{"create", "--name", "web-shop", "--type", "default", "--tag", "env=dev"})

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	output := stdout.String()
	if !strings.Contains(output, "Project creation accepted") {
		t.Errorf("expected success message, got: %s", output)
	}
	if !strings.Contains(output, "cmd-123") {
		t.Errorf("expected command ID in output, got: %s", output)
	}
}

func TestCreateCommand_MissingIdentity(t *testing.T) {
	resetViper()
	viper.Set("url", "http://localhost:6161")

	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stdout)
	rootCmd.SetArgs([]string{"create", "--name", "web-shop"})

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(stdout.String(), "Tenant not set") {
		t.Errorf("expected tenant error message, got: %s", stdout.String())
	}
}

func TestCreateCommand_MissingName(t *testing.T) {
	resetViper()
	createCmd.Flags().Set("name", "")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("server should not be called when validation fails")
	}))
	defer server.Close()

	setIdentity(server.URL)

	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stdout)
	rootCmd.SetArgs([]string{"create"})

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(stdout.String(), "--name is required") {
		t.Errorf("expected name required error, got: %s", stdout.String())
	}
}

func TestCreateCommand_ValidationError(t *testing.T) {
	resetViper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"Project type not found"}`))
	}))
	defer server.Close()

	setIdentity(server.URL)

	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stdout)
	rootCmd.SetArgs([]string{"create", "--name", "web-shop", "--type", "nope"})

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	output := stdout.String()
	if !strings.Contains(output, "Error (400)") {
		t.Errorf("expected error status in output, got: %s", output)
	}
}

func TestParseTags(t *testing.T) {
	tags := parseTags([]string{"env=dev", "team=web", "malformed"})
	if len(tags) != 2 {
		t.Errorf("expected 2 tags, got %v", tags)
	}
	if tags["env"] != "dev" || tags["team"] != "web" {
		t.Errorf("unexpected tags: %v", tags)
	}
	if parseTags(nil) != nil {
		t.Error("expected nil for empty input")
	}
}
