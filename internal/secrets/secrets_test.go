package secrets

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeSecrets(t *testing.T, content string, mode os.FileMode) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "secrets.yaml")
	if err := os.WriteFile(path, []byte(content), mode); err != nil {
		t.Fatalf("Failed to write test secrets file: %v", err)
	}
	if err := os.Chmod(path, mode); err != nil {
		t.Fatalf("Failed to chmod test secrets file: %v", err)
	}
	return path
}

func TestLoadSecretsFile(t *testing.T) {
	path := writeSecrets(t, `
database:
  password: "p@ss"
notifications:
  slack:
    webhook_url: "https://hooks.slack.com/services/T/B/X"
`, SecureFileMode)
	t.Setenv(SecretsFileEnvVar, path)

	config, err := Load()
	if err != nil {
		t.Fatalf("Failed to load secrets: %v", err)
	}
	if config.Database.Password != "p@ss" {
		t.Errorf("password = %q", config.Database.Password)
	}
	if config.Notifications.Slack.WebhookURL != "https://hooks.slack.com/services/T/B/X" {
		t.Errorf("webhook = %q", config.Notifications.Slack.WebhookURL)
	}
}

func TestLoadRejectsInsecurePermissions(t *testing.T) {
	path := writeSecrets(t, "database:\n  password: x\n", 0644)
	_, err := LoadFile(path)
	if err == nil || !strings.Contains(err.Error(), "insecure permissions") {
		t.Fatalf("expected a permissions error, got %v", err)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeSecrets(t, "database: [", SecureFileMode)
	if _, err := LoadFile(path); err == nil {
		t.Fatal("expected a parse error")
	}
}

func TestNotFound(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.yaml")
	_, err := LoadFile(path)
	if !IsNotFound(err) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
	if !strings.Contains(err.Error(), path) {
		t.Errorf("error should name the path: %v", err)
	}
}

func TestGetSecretsPath(t *testing.T) {
	t.Setenv(SecretsFileEnvVar, "/etc/immo/secrets.yaml")
	if got := GetSecretsPath(); got != "/etc/immo/secrets.yaml" {
		t.Errorf("GetSecretsPath() = %q", got)
	}

	t.Setenv(SecretsFileEnvVar, "")
	if got := GetSecretsPath(); !strings.HasSuffix(got, filepath.Join(DefaultSecretsDir, DefaultSecretsFile)) {
		t.Errorf("GetSecretsPath() = %q", got)
	}
}

func TestGenerateTemplate(t *testing.T) {
	path := writeSecrets(t, GenerateTemplate(), SecureFileMode)
	config, err := LoadFile(path)
	if err != nil {
		t.Fatalf("template does not parse: %v", err)
	}
	if config.Database.Password != "" {
		t.Errorf("template should not carry a password")
	}
}
