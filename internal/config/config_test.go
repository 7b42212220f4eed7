package config

import (
	"os"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestApplyDefaults(t *testing.T) {
	t.Run("Config struct defaults", func(t *testing.T) {
		config := &Config{}
		applyDefaults(config)

		if config.Site.Name != "Folio" {
			t.Errorf("Expected site name 'Folio', got %q", config.Site.Name)
		}
		if config.Server.Port != "12600" {
			t.Errorf("Expected port '12600', got %q", config.Server.Port)
		}
		if config.Theme.Default != DarkTheme {
			t.Errorf("Expected theme %q, got %q", DarkTheme, config.Theme.Default)
		}
		if config.Backend.BaseURL != "http://localhost:8088/api" {
			t.Errorf("Expected backend URL default, got %q", config.Backend.BaseURL)
		}
		if config.Backend.Timeout != 15*time.Second {
			t.Errorf("Expected backend timeout 15s, got %v", config.Backend.Timeout)
		}
		if config.Features.Editor.AutosaveInterval != 30*time.Second {
			t.Errorf("Expected autosave interval 30s, got %v", config.Features.Editor.AutosaveInterval)
		}
		if config.Features.Editor.Authors != nil {
			t.Errorf("Expected no default authors, got %v", config.Features.Editor.Authors)
		}
		if config.Session.MaxAge != 30*24*time.Hour {
			t.Errorf("Expected session max age 720h, got %v", config.Session.MaxAge)
		}
		if config.Latex.DefaultLang != LangZh {
			t.Errorf("Expected latex lang %q, got %q", LangZh, config.Latex.DefaultLang)
		}
		if config.Upload.MaxBytes != 10<<20 {
			t.Errorf("Expected 10MiB upload limit, got %d", config.Upload.MaxBytes)
		}
		expectedKeywords := []string{"blog", "latex", "markdown"}
		if !reflect.DeepEqual(config.Meta.Keywords, expectedKeywords) {
			t.Errorf("Expected keywords %v, got %v", expectedKeywords, config.Meta.Keywords)
		}
		if config.Logging.Level != "info" {
			t.Errorf("Expected logging level 'info', got %q", config.Logging.Level)
		}
	})

	t.Run("Custom struct with various field types", func(t *testing.T) {
		type TestStruct struct {
			StringField   string        `default:"test-string"`
			BoolField     bool          `default:"true"`
			IntField      int           `default:"42"`
			Int64Field    int64         `default:"7"`
			DurationField time.Duration `default:"1m30s"`
			Float64Field  float64       `default:"3.14"`
			SliceField    []string      `default:"a,b,c"`
			NoDefault     string
		}

		test := &TestStruct{}
		applyDefaults(test)

		if test.StringField != "test-string" {
			t.Errorf("Expected string field 'test-string', got %q", test.StringField)
		}
		if !test.BoolField {
			t.Error("Expected bool field to be true")
		}
		if test.IntField != 42 {
			t.Errorf("Expected int field 42, got %d", test.IntField)
		}
		if test.Int64Field != 7 {
			t.Errorf("Expected int64 field 7, got %d", test.Int64Field)
		}
		if test.DurationField != 90*time.Second {
			t.Errorf("Expected duration 1m30s, got %v", test.DurationField)
		}
		if test.Float64Field != 3.14 {
			t.Errorf("Expected float64 field 3.14, got %f", test.Float64Field)
		}
		if !reflect.DeepEqual(test.SliceField, []string{"a", "b", "c"}) {
			t.Errorf("Expected slice [a b c], got %v", test.SliceField)
		}
		if test.NoDefault != "" {
			t.Errorf("Expected no default field to be empty, got %q", test.NoDefault)
		}
	})

	t.Run("Invalid default values", func(t *testing.T) {
		type InvalidStruct struct {
			BadBool     bool          `default:"not-a-bool"`
			BadInt      int           `default:"not-an-int"`
			BadDuration time.Duration `default:"soon"`
		}

		test := &InvalidStruct{}
		applyDefaults(test)

		if test.BadBool || test.BadInt != 0 || test.BadDuration != 0 {
			t.Errorf("Expected invalid defaults to leave zero values, got %+v", test)
		}
	})

	t.Run("Non-struct input", func(t *testing.T) {
		stringVar := "test"
		applyDefaults(&stringVar)
		applyDefaults(stringVar)
		applyDefaults(42)
		applyDefaults(nil)
	})
}

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	tempFile, err := os.CreateTemp(t.TempDir(), "test-config-*.yaml")
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	if _, err := tempFile.WriteString(content); err != nil {
		t.Fatalf("Failed to write config content: %v", err)
	}
	tempFile.Close()
	return tempFile.Name()
}

func TestLoadConfig(t *testing.T) {
	SetLogger(zerolog.New(os.Stdout).Level(zerolog.ErrorLevel))

	t.Run("Load non-existent config file", func(t *testing.T) {
		originalAppConfig := AppConfig
		defer func() { AppConfig = originalAppConfig }()

		if err := LoadConfig("non-existent-config.yaml"); err != nil {
			t.Errorf("Expected no error for non-existent config file, got %v", err)
		}
		if AppConfig == nil || AppConfig.Site.Name != "Folio" {
			t.Fatalf("Expected AppConfig to be set with defaults, got %+v", AppConfig)
		}
	})

	t.Run("Load valid config file", func(t *testing.T) {
		originalAppConfig := AppConfig
		defer func() { AppConfig = originalAppConfig }()

		path := writeTempConfig(t, `
version: "1"
site:
  name: "Test Blog"
backend:
  base_url: "https://api.example.com/api/"
  timeout: 5s
features:
  editor:
    authors: ["yueswater"]
    autosave_interval: 10s
render:
  engine: goldmark
  caption_lang: en
`)

		if err := LoadConfig(path); err != nil {
			t.Fatalf("Expected no error loading valid config, got %v", err)
		}

		if AppConfig.Site.Name != "Test Blog" {
			t.Errorf("Expected site name 'Test Blog', got %q", AppConfig.Site.Name)
		}
		if AppConfig.Backend.Timeout != 5*time.Second {
			t.Errorf("Expected backend timeout 5s, got %v", AppConfig.Backend.Timeout)
		}
		if AppConfig.Features.Editor.AutosaveInterval != 10*time.Second {
			t.Errorf("Expected autosave 10s, got %v", AppConfig.Features.Editor.AutosaveInterval)
		}
		if AppConfig.Render.Engine != RendererGoldmark {
			t.Errorf("Expected goldmark engine, got %q", AppConfig.Render.Engine)
		}
		// Unspecified fields keep their defaults
		if AppConfig.Site.Tagline != "Welcome to Folio" {
			t.Errorf("Expected default tagline, got %q", AppConfig.Site.Tagline)
		}
	})

	t.Run("Environment overrides backend URL", func(t *testing.T) {
		originalAppConfig := AppConfig
		defer func() { AppConfig = originalAppConfig }()

		t.Setenv(EnvBackendURL, "http://backend:9000/api")
		if err := LoadConfig("non-existent-config.yaml"); err != nil {
			t.Fatal(err)
		}
		if AppConfig.Backend.BaseURL != "http://backend:9000/api" {
			t.Errorf("Expected env override, got %q", AppConfig.Backend.BaseURL)
		}
	})

	t.Run("Load invalid YAML file", func(t *testing.T) {
		originalAppConfig := AppConfig
		defer func() { AppConfig = originalAppConfig }()

		path := writeTempConfig(t, `
site:
  name: "Test Blog"
  invalid yaml syntax [
`)
		err := LoadConfig(path)
		if err == nil {
			t.Fatal("Expected error loading invalid config file")
		}
		if !strings.Contains(err.Error(), "failed to parse config file") {
			t.Errorf("Expected parse error, got %v", err)
		}
	})
}

func TestIsAuthor(t *testing.T) {
	tests := []struct {
		name     string
		authors  []string
		username string
		want     bool
	}{
		{"anonymous is never an author", nil, "", false},
		{"empty list admits any user", nil, "alice", true},
		{"listed author", []string{"alice", "bob"}, "bob", true},
		{"unlisted user", []string{"alice"}, "mallory", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			c.Features.Editor.Authors = tt.authors
			if got := c.IsAuthor(tt.username); got != tt.want {
				t.Errorf("IsAuthor(%q) = %v, want %v", tt.username, got, tt.want)
			}
		})
	}
}

func TestConstants(t *testing.T) {
	matches := RegexCallout.FindStringSubmatch("// &lt;&lt;1&gt;&gt;")
	if len(matches) != 2 || matches[1] != "1" {
		t.Errorf("Expected callout regex to match '1', got %v", matches)
	}
	if StaticUrlPath != "/static/" {
		t.Errorf("Expected StaticUrlPath '/static/', got %q", StaticUrlPath)
	}
	if PostsUrlPath != "/posts/" {
		t.Errorf("Expected PostsUrlPath '/posts/', got %q", PostsUrlPath)
	}
	if HHxRedirect != "Hx-Redirect" {
		t.Errorf("Expected HHxRedirect 'Hx-Redirect', got %q", HHxRedirect)
	}
}
