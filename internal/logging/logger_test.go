package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func resetState(t *testing.T) {
	t.Helper()
	CloseAll()
	logsDir = ""
	workspace = ""
	config = loggingConfig{}
	logLevel = LevelInfo
	t.Cleanup(func() {
		CloseAll()
		logsDir = ""
		config = loggingConfig{}
	})
}

func writeConfig(t *testing.T, dir, body string) {
	t.Helper()
	configDir := filepath.Join(dir, ".datamap")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("Failed to create config dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(configDir, "config.yaml"), []byte(body), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
}

// TestAllCategoriesLog tests that all categories create log files when debug_mode is true
func TestAllCategoriesLog(t *testing.T) {
	resetState(t)
	tempDir := t.TempDir()
	writeConfig(t, tempDir, `
logging:
  level: debug
  debug_mode: true
`)

	if err := Initialize(tempDir); err != nil {
		t.Fatalf("Failed to initialize logging: %v", err)
	}
	if !IsDebugMode() {
		t.Fatal("Expected debug mode to be enabled")
	}

	for _, cat := range AllCategories {
		if !IsCategoryEnabled(cat) {
			t.Errorf("Category %s should be enabled", cat)
		}
		Get(cat).Info("info for %s", cat)
		Get(cat).Debug("debug for %s", cat)
	}
	CloseAll()

	logsPath := filepath.Join(tempDir, ".datamap", "logs")
	entries, err := os.ReadDir(logsPath)
	if err != nil {
		t.Fatalf("Failed to read logs dir: %v", err)
	}
	for _, cat := range AllCategories {
		found := false
		for _, entry := range entries {
			if strings.HasSuffix(entry.Name(), "_"+string(cat)+".log") {
				found = true
				content, err := os.ReadFile(filepath.Join(logsPath, entry.Name()))
				if err != nil {
					t.Errorf("Failed to read log file for %s: %v", cat, err)
				} else if !strings.Contains(string(content), "[DEBUG] debug for "+string(cat)) {
					t.Errorf("Log file for %s missing debug line: %q", cat, content)
				}
			}
		}
		if !found {
			t.Errorf("No log file found for category: %s", cat)
		}
	}
}

// TestDebugModeDisabled tests that no logs are created when debug_mode is false
func TestDebugModeDisabled(t *testing.T) {
	resetState(t)
	tempDir := t.TempDir()
	writeConfig(t, tempDir, `
logging:
  level: debug
  debug_mode: false
`)

	if err := Initialize(tempDir); err != nil {
		t.Fatalf("Failed to initialize logging: %v", err)
	}
	if IsDebugMode() {
		t.Error("Expected debug mode to be disabled")
	}

	GraphDebug("not logged")
	Store("not logged")
	Get(CategoryMatch).Error("not logged")
	CloseAll()

	if _, err := os.Stat(filepath.Join(tempDir, ".datamap", "logs")); !os.IsNotExist(err) {
		t.Errorf("Expected no logs directory, stat err = %v", err)
	}
}

func TestMissingConfigIsSilent(t *testing.T) {
	resetState(t)
	tempDir := t.TempDir()

	if err := Initialize(tempDir); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if IsCategoryEnabled(CategoryBoot) {
		t.Error("categories must be disabled without a config file")
	}
}

func TestCategoryToggle(t *testing.T) {
	resetState(t)
	tempDir := t.TempDir()
	writeConfig(t, tempDir, `
logging:
  level: info
  debug_mode: true
  categories:
    graph: false
    store: true
`)

	if err := Initialize(tempDir); err != nil {
		t.Fatalf("Failed to initialize: %v", err)
	}
	if IsCategoryEnabled(CategoryGraph) {
		t.Error("graph should be disabled")
	}
	if !IsCategoryEnabled(CategoryStore) {
		t.Error("store should be enabled")
	}
	if !IsCategoryEnabled(CategoryWatch) {
		t.Error("watch (not in config) should default to enabled")
	}

	GraphDebug("suppressed")
	Store("kept")
	StoreDebug("below level")
	CloseAll()

	entries, _ := os.ReadDir(filepath.Join(tempDir, ".datamap", "logs"))
	for _, e := range entries {
		if strings.Contains(e.Name(), "graph") {
			t.Errorf("unexpected graph log %s", e.Name())
		}
		if strings.Contains(e.Name(), "store") {
			content, _ := os.ReadFile(filepath.Join(tempDir, ".datamap", "logs", e.Name()))
			if strings.Contains(string(content), "below level") {
				t.Error("debug line written at info level")
			}
		}
	}
}

func TestJSONFormat(t *testing.T) {
	resetState(t)
	tempDir := t.TempDir()
	writeConfig(t, tempDir, `
logging:
  level: debug
  debug_mode: true
  json_format: true
`)
	if err := Initialize(tempDir); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	Project("opened %s", "ws")
	CloseAll()

	entries, _ := os.ReadDir(filepath.Join(tempDir, ".datamap", "logs"))
	for _, e := range entries {
		if !strings.Contains(e.Name(), "project") {
			continue
		}
		content, _ := os.ReadFile(filepath.Join(tempDir, ".datamap", "logs", e.Name()))
		if !strings.Contains(string(content), `"cat":"project"`) || !strings.Contains(string(content), `"msg":"opened ws"`) {
			t.Errorf("expected JSON entry, got %q", content)
		}
		return
	}
	t.Error("no project log written")
}

func TestTimer(t *testing.T) {
	resetState(t)
	timer := StartTimer(CategorySweep, "reduce")
	if d := timer.Stop(); d < 0 {
		t.Errorf("negative duration %v", d)
	}
}

func TestTimer_StopWithThreshold(t *testing.T) {
	resetState(t)
	tempDir := t.TempDir()
	writeConfig(t, tempDir, `
logging:
  level: info
  debug_mode: true
`)
	if err := Initialize(tempDir); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	StartTimer(CategoryStore, "SaveGraph").StopWithThreshold(0)
	StartTimer(CategoryStore, "LoadGraph").StopWithThreshold(time.Hour)
	CloseAll()

	entries, _ := os.ReadDir(filepath.Join(tempDir, ".datamap", "logs"))
	for _, e := range entries {
		if !strings.Contains(e.Name(), "store") {
			continue
		}
		content, _ := os.ReadFile(filepath.Join(tempDir, ".datamap", "logs", e.Name()))
		if !strings.Contains(string(content), "[WARN] SaveGraph took") {
			t.Errorf("slow operation not warned: %q", content)
		}
		if strings.Contains(string(content), "LoadGraph") {
			t.Errorf("fast operation logged above debug level: %q", content)
		}
		return
	}
	t.Error("no store log written")
}
