package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/CTAG07/markovbot/pkg/markov"
)

// writeTestConfig writes a config whose state lives in a temp dir and returns its path.
func writeTestConfig(t *testing.T, statePath string) string {
	t.Helper()
	dir := t.TempDir()
	if statePath == "" {
		statePath = filepath.Join(dir, "state.chain")
	}
	config := &Config{Server: DefaultServerConfig(), Generator: DefaultGeneratorConfig()}
	config.Server.StatePath = statePath
	data, err := json.Marshal(config)
	if err != nil {
		t.Fatalf("Failed to marshal config: %v", err)
	}
	path := filepath.Join(dir, "config.json")
	if err = os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := run(context.Background(), args, strings.NewReader(stdin), &out)
	return out.String(), err
}

func TestCLIIngestAndGenerate(t *testing.T) {
	configPath := writeTestConfig(t, "")

	if _, err := runCLI(t, "x y z.", "-config", configPath, "ingest"); err != nil {
		t.Fatalf("ingest failed: %v", err)
	}
	// Generation runs in a fresh process, so this also checks the state was persisted.
	out, err := runCLI(t, "", "-config", configPath, "generate", "-n", "2", "-max-length", "1")
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if out != "X z.\nX z.\n" {
		t.Errorf("Expected two copies of %q, got %q", "X z.", out)
	}
}

func TestCLIIngestFiles(t *testing.T) {
	configPath := writeTestConfig(t, "")
	dir := t.TempDir()
	first := filepath.Join(dir, "a.txt")
	second := filepath.Join(dir, "b.txt")
	if err := os.WriteFile(first, []byte("a b c."), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(second, []byte("d e f."), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := runCLI(t, "", "-config", configPath, "ingest", "-db", "docs", first, second); err != nil {
		t.Fatalf("ingest failed: %v", err)
	}
	out, err := runCLI(t, "", "-config", configPath, "stats")
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	var stats markov.StoreStats
	if err = json.Unmarshal([]byte(out), &stats); err != nil {
		t.Fatalf("stats output is not JSON: %v\n%s", err, out)
	}
	if got := stats.Stats["docs"].Keys; got != 2 {
		t.Errorf("Expected 2 keys in docs, got %d", got)
	}
}

func TestCLIIngestMissingFile(t *testing.T) {
	configPath := writeTestConfig(t, "")
	_, err := runCLI(t, "", "-config", configPath, "ingest", filepath.Join(t.TempDir(), "nope.txt"))
	if err == nil {
		t.Fatal("Expected an error for a missing corpus file")
	}
}

func TestCLIClear(t *testing.T) {
	configPath := writeTestConfig(t, "")
	if _, err := runCLI(t, "x y z.", "-config", configPath, "ingest", "-db", "extra"); err != nil {
		t.Fatalf("ingest failed: %v", err)
	}
	if _, err := runCLI(t, "", "-config", configPath, "clear", "-db", "extra"); err != nil {
		t.Fatalf("clear failed: %v", err)
	}

	_, err := runCLI(t, "", "-config", configPath, "generate", "-db", "extra")
	if err == nil {
		t.Fatal("Expected generation from a cleared database to fail")
	}

	_, err = runCLI(t, "", "-config", configPath, "clear", "-db", "missing")
	if err == nil {
		t.Fatal("Expected clearing an unknown database to fail")
	}
}

func TestCLIExportImport(t *testing.T) {
	configPath := writeTestConfig(t, "")
	if _, err := runCLI(t, "x y z.", "-config", configPath, "ingest"); err != nil {
		t.Fatalf("ingest failed: %v", err)
	}
	exported, err := runCLI(t, "", "-config", configPath, "export")
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}

	otherConfig := writeTestConfig(t, "")
	if _, err = runCLI(t, exported, "-config", otherConfig, "import", "-"); err != nil {
		t.Fatalf("import failed: %v", err)
	}
	out, err := runCLI(t, "", "-config", otherConfig, "generate", "-max-length", "1")
	if err != nil {
		t.Fatalf("generate after import failed: %v", err)
	}
	if out != "X z.\n" {
		t.Errorf("Expected %q, got %q", "X z.\n", out)
	}
}

func TestCLIErrors(t *testing.T) {
	configPath := writeTestConfig(t, "")
	testCases := []struct {
		name string
		args []string
	}{
		{"no command", []string{"-config", configPath}},
		{"unknown command", []string{"-config", configPath, "dance"}},
		{"empty default database", []string{"-config", configPath, "generate"}},
		{"bad count", []string{"-config", configPath, "generate", "-n", "0"}},
		{"import without file", []string{"-config", configPath, "import"}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := runCLI(t, "", tc.args...); err == nil {
				t.Error("Expected an error")
			}
		})
	}
}

func TestCLIVersion(t *testing.T) {
	out, err := runCLI(t, "", "version")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if !strings.HasPrefix(out, "markovbot dev") {
		t.Errorf("Unexpected version output %q", out)
	}
}

func TestCLIKeygen(t *testing.T) {
	out, err := runCLI(t, "", "keygen", "-scopes", "markov:read markov:write", "-description", "bot")
	if err != nil {
		t.Fatalf("keygen failed: %v", err)
	}
	keyLine, entryJSON, ok := strings.Cut(out, "\n")
	if !ok || !strings.HasPrefix(keyLine, "key: mkb_") {
		t.Fatalf("Unexpected keygen output %q", out)
	}
	var entry APIKey
	if err = json.Unmarshal([]byte(entryJSON), &entry); err != nil {
		t.Fatalf("keygen entry is not JSON: %v\n%s", err, entryJSON)
	}
	if entry.KeyHash != hashAPIKey(strings.TrimPrefix(keyLine, "key: ")) {
		t.Error("Printed hash does not match the printed key")
	}
	if len(entry.Scopes) != 2 || entry.Description != "bot" {
		t.Errorf("Unexpected entry %+v", entry)
	}

	config := &Config{Server: DefaultServerConfig(), Generator: DefaultGeneratorConfig()}
	config.Server.APIKeys = []APIKey{entry}
	if err = config.Validate(); err != nil {
		t.Errorf("Generated entry does not validate: %v", err)
	}

	if _, err = runCLI(t, "", "keygen", "-scopes", "root"); err == nil {
		t.Error("Expected an unknown scope to be rejected")
	}
}
