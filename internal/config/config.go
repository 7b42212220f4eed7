// Package config loads the YAML configuration file and exposes application-wide constants.
package config

import (
	"fmt"
	"os"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

var configLogger zerolog.Logger

func SetLogger(l zerolog.Logger) {
	configLogger = l
}

// Config represents the complete configuration structure
type Config struct {
	Version  string         `yaml:"version" default:"1"`
	Site     SiteConfig     `yaml:"site"`
	Server   ServerConfig   `yaml:"server"`
	Theme    ThemeConfig    `yaml:"theme"`
	Content  ContentConfig  `yaml:"content"`
	Backend  BackendConfig  `yaml:"backend"`
	Session  SessionConfig  `yaml:"session"`
	Features FeaturesConfig `yaml:"features"`
	Render   RenderConfig   `yaml:"render"`
	Latex    LatexConfig    `yaml:"latex"`
	Upload   UploadConfig   `yaml:"upload"`
	Meta     MetaConfig     `yaml:"meta"`
	Social   SocialConfig   `yaml:"social"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type LoggingConfig struct {
	Level string `yaml:"level" default:"info"`
}

type SiteConfig struct {
	Name        string `yaml:"name" default:"Folio"`
	Description string `yaml:"description" default:"Notes on economics, statistics and typesetting"`
	Tagline     string `yaml:"tagline" default:"Welcome to Folio"`
}

type ServerConfig struct {
	Host     string `yaml:"host" default:"0.0.0.0"`
	Port     string `yaml:"port" default:"12600"`
	Compress bool   `yaml:"compress" default:"true"`
}

type ThemeConfig struct {
	Default            string       `yaml:"default" default:"dark"`
	AllowSwitching     bool         `yaml:"allow_switching" default:"true"`
	SyntaxHighlighting SyntaxConfig `yaml:"syntax_highlighting"`
}

type SyntaxConfig struct {
	DefaultDark  string `yaml:"default_dark" default:"gruvbox"`
	DefaultLight string `yaml:"default_light" default:"catppuccin-latte"`
}

// ContentConfig selects where published posts are read from.
type ContentConfig struct {
	Source         string        `yaml:"source" default:"api"`
	PostsDir       string        `yaml:"posts_dir" default:"posts"`
	ReloadInterval time.Duration `yaml:"reload_interval" default:"60s"`
	PostsPerPage   int           `yaml:"posts_per_page" default:"50"`
}

// BackendConfig points at the REST backend that owns all content.
type BackendConfig struct {
	BaseURL string        `yaml:"base_url" default:"http://localhost:8088/api"`
	Timeout time.Duration `yaml:"timeout" default:"15s"`
}

type SessionConfig struct {
	Store      string        `yaml:"store" default:"sqlite"`
	Path       string        `yaml:"path" default:"./sessions.db"`
	CookieName string        `yaml:"cookie_name" default:"folio-session"`
	MaxAge     time.Duration `yaml:"max_age" default:"720h"`
	// Marks the session cookie Secure. Enable behind HTTPS.
	Secure bool `yaml:"secure" default:"false"`
}

type FeaturesConfig struct {
	Editor     EditorConfig `yaml:"editor"`
	Comments   FeatureFlag  `yaml:"comments"`
	Newsletter FeatureFlag  `yaml:"newsletter"`
}

type EditorConfig struct {
	Enabled          bool          `yaml:"enabled" default:"true"`
	LivePreview      bool          `yaml:"live_preview" default:"true"`
	AutosaveInterval time.Duration `yaml:"autosave_interval" default:"30s"`
	// Authors may open the editor. An empty list admits any signed-in user.
	Authors []string `yaml:"authors"`
}

type FeatureFlag struct {
	Enabled bool `yaml:"enabled" default:"true"`
}

type RenderConfig struct {
	Engine      string `yaml:"engine" default:"mmark"`
	CaptionLang string `yaml:"caption_lang" default:"zh"`
}

type LatexConfig struct {
	Timeout     time.Duration `yaml:"timeout" default:"90s"`
	DefaultLang string        `yaml:"default_lang" default:"zh"`
}

type UploadConfig struct {
	Backend  string   `yaml:"backend" default:"api"`
	MaxBytes int      `yaml:"max_bytes" default:"10485760"`
	S3       S3Config `yaml:"s3"`
}

// S3Config holds the bucket settings. Credentials are read from the environment.
type S3Config struct {
	Bucket     string `yaml:"bucket" default:""`
	Region     string `yaml:"region" default:"us-east-1"`
	Endpoint   string `yaml:"endpoint" default:""`
	Prefix     string `yaml:"prefix" default:"images/"`
	PublicBase string `yaml:"public_base" default:""`
}

type MetaConfig struct {
	Author   string   `yaml:"author" default:""`
	Keywords []string `yaml:"keywords" default:"blog,latex,markdown"`
	Favicon  string   `yaml:"favicon" default:"/static/favicon.svg"`
}

type SocialConfig struct {
	GitHub   string `yaml:"github" default:""`
	Twitter  string `yaml:"twitter" default:""`
	LinkedIn string `yaml:"linkedin" default:""`
	Email    string `yaml:"email" default:""`
}

var AppConfig *Config

func init() {
	// Packages and tests that never call LoadConfig still see sane values.
	AppConfig = Default()
}

// Default returns a Config with every default tag applied.
func Default() *Config {
	c := &Config{}
	applyDefaults(c)
	return c
}

func LoadConfig(path string) error {
	config := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		// If file doesn't exist, just use defaults
		configLogger.Info().Str("path", path).Msg("Config file not found, using defaults")
		applyEnv(config)
		AppConfig = config
		return nil
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnv(config)

	if err := config.Validate(); err != nil {
		return err
	}

	AppConfig = config
	return nil
}

// applyEnv lets deployments override the backend location without a config file.
func applyEnv(c *Config) {
	if v := os.Getenv(EnvBackendURL); v != "" {
		c.Backend.BaseURL = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Logging.Level = v
	}
}

func (c *Config) Validate() error {
	if c.Version != SupportedVersion {
		return fmt.Errorf("unsupported configuration version %q (expected %q)", c.Version, SupportedVersion)
	}
	if !slices.Contains([]string{RendererMmark, RendererGoldmark}, c.Render.Engine) {
		return fmt.Errorf("unknown render engine %q", c.Render.Engine)
	}
	if !slices.Contains([]string{LangZh, LangEn}, c.Render.CaptionLang) {
		return fmt.Errorf("unknown caption language %q", c.Render.CaptionLang)
	}
	if !slices.Contains([]string{LangZh, LangEn}, c.Latex.DefaultLang) {
		return fmt.Errorf("unknown latex language %q", c.Latex.DefaultLang)
	}
	if !slices.Contains([]string{UploadBackendAPI, UploadBackendS3}, c.Upload.Backend) {
		return fmt.Errorf("unknown upload backend %q", c.Upload.Backend)
	}
	if c.Upload.Backend == UploadBackendS3 && c.Upload.S3.Bucket == "" {
		return fmt.Errorf("upload backend %q requires s3.bucket", UploadBackendS3)
	}
	if !slices.Contains([]string{SessionStoreSQLite, SessionStoreMemory}, c.Session.Store) {
		return fmt.Errorf("unknown session store %q", c.Session.Store)
	}
	if !slices.Contains([]string{ContentSourceAPI, ContentSourceFS}, c.Content.Source) {
		return fmt.Errorf("unknown content source %q", c.Content.Source)
	}
	return nil
}

// IsAuthor reports whether username may use the editor.
func (c *Config) IsAuthor(username string) bool {
	if username == "" {
		return false
	}
	if len(c.Features.Editor.Authors) == 0 {
		return true
	}
	return slices.Contains(c.Features.Editor.Authors, username)
}

func ApplyDefaults(config interface{}) {
	applyDefaults(config)
}

var durationType = reflect.TypeOf(time.Duration(0))

func applyDefaults(config interface{}) {
	v := reflect.ValueOf(config)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}

	if v.Kind() != reflect.Struct {
		return
	}

	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		if !field.IsValid() || !field.CanSet() {
			continue
		}

		// Recursively apply defaults to nested structs
		if field.Kind() == reflect.Struct {
			applyDefaults(field.Addr().Interface())
			continue
		}

		defaultValue := fieldType.Tag.Get("default")
		if defaultValue == "" {
			continue
		}

		switch field.Kind() {
		case reflect.String:
			field.SetString(defaultValue)
		case reflect.Bool:
			if val, err := strconv.ParseBool(defaultValue); err == nil {
				field.SetBool(val)
			}
		case reflect.Int:
			if val, err := strconv.ParseInt(defaultValue, 10, 64); err == nil {
				field.SetInt(val)
			}
		case reflect.Int64:
			if field.Type() == durationType {
				if val, err := time.ParseDuration(defaultValue); err == nil {
					field.SetInt(int64(val))
				}
			} else if val, err := strconv.ParseInt(defaultValue, 10, 64); err == nil {
				field.SetInt(val)
			}
		case reflect.Float64:
			if val, err := strconv.ParseFloat(defaultValue, 64); err == nil {
				field.SetFloat(val)
			}
		case reflect.Slice:
			if field.Len() == 0 && field.Type().Elem().Kind() == reflect.String {
				parts := strings.Split(defaultValue, ",")
				slice := reflect.MakeSlice(field.Type(), len(parts), len(parts))
				for j, part := range parts {
					slice.Index(j).SetString(strings.TrimSpace(part))
				}
				field.Set(slice)
			}
		default:
			configLogger.Warn().
				Str("field_name", fieldType.Name).
				Str("field_type", field.Kind().String()).
				Msg("Unsupported field type for default value")
		}
	}
}
