package internal

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"

	"github.com/starford/trevanbox/internal/inbox"
	"github.com/starford/trevanbox/internal/models"
	"github.com/starford/trevanbox/pkg/config"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Log formats.
const (
	LogFormatJSON = "json"
	LogFormatText = "text"
	LogFormatAuto = "auto"
)

// Config represents the application configuration.
type Config struct {
	App         ApplicationConfig         `yaml:"app" toml:"app"`
	Vault       VaultConfig               `yaml:"vault" toml:"vault"`
	Ollama      OllamaConfig              `yaml:"ollama" toml:"ollama"`
	Metadata    MetadataConfig            `yaml:"metadata" toml:"metadata"`
	Processing  ProcessingConfig          `yaml:"processing" toml:"processing"`
	AI          AIConfig                  `yaml:"ai" toml:"ai"`
	Directories []models.DirectoryMapping `yaml:"directories" toml:"directories"`
	Ledger      LedgerConfig              `yaml:"ledger" toml:"ledger"`
	Auth        AuthConfig                `yaml:"auth" toml:"auth"`
	Watch       WatchConfig               `yaml:"watch" toml:"watch"`
}

// LoadConfig reads path over the defaults. An empty or missing path yields
// the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := NewDefaultConfig()
	if err := config.LoadWithDefaults(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validators := []config.Validator{
		&c.App, &c.Vault, &c.Ollama, &c.Metadata, &c.Processing, &c.AI, &c.Auth, &c.Watch,
	}
	for _, v := range validators {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	seen := make(map[string]struct{}, len(c.Directories))
	for i := range c.Directories {
		d := &c.Directories[i]
		if err := validation.ValidateStruct(d,
			validation.Field(&d.Name, validation.Required),
			validation.Field(&d.Tag, validation.Required),
			validation.Field(&d.Type, validation.Required, validation.By(validNoteType)),
		); err != nil {
			return fmt.Errorf("directories[%d]: %w", i, err)
		}
		if _, dup := seen[d.Name]; dup {
			return fmt.Errorf("directories[%d]: duplicate name %q", i, d.Name)
		}
		seen[d.Name] = struct{}{}
	}
	return nil
}

// ProvenanceTags returns the tag of every directory mapping.
func (c *Config) ProvenanceTags() []string {
	out := make([]string, 0, len(c.Directories))
	for _, d := range c.Directories {
		out = append(out, d.Tag)
	}
	return out
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel  slog.Level `yaml:"log_level" toml:"log_level"`
	LogFormat string     `yaml:"log_format" toml:"log_format"`
	HTTP      HTTPConfig `yaml:"http" toml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	if c.LogFormat == "" {
		c.LogFormat = LogFormatJSON
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.LogFormat, validation.In(LogFormatJSON, LogFormatText, LogFormatAuto)),
	); err != nil {
		return err
	}
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port" toml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// VaultConfig locates the vault and its review queue.
type VaultConfig struct {
	Path string `yaml:"path" toml:"path"`
	// InboxDir is relative to Path.
	InboxDir string `yaml:"inbox_dir" toml:"inbox_dir"`
}

// Validate validates the vault configuration.
func (c *VaultConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
		validation.Field(&c.InboxDir, validation.Required),
	)
}

// OllamaConfig holds the inference service settings.
type OllamaConfig struct {
	BaseURL        string `yaml:"base_url" toml:"base_url"`
	Model          string `yaml:"model" toml:"model"`
	TimeoutSeconds int    `yaml:"timeout" toml:"timeout"`
	Retry          int    `yaml:"retry" toml:"retry"`
	SystemPrompt   string `yaml:"system_prompt" toml:"system_prompt"`
}

// Timeout returns the per-request timeout.
func (c *OllamaConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Validate validates the Ollama configuration.
func (c *OllamaConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.BaseURL, validation.Required),
		validation.Field(&c.Model, validation.Required),
		validation.Field(&c.TimeoutSeconds, validation.Min(1)),
		validation.Field(&c.Retry, validation.Min(0), validation.Max(10)),
	)
}

// MetadataConfig holds the defaults written into normalized headers.
type MetadataConfig struct {
	DefaultStatus models.Status   `yaml:"default_status" toml:"default_status"`
	DefaultType   models.NoteType `yaml:"default_type" toml:"default_type"`
}

// Validate validates the metadata defaults.
func (c *MetadataConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.DefaultStatus, validation.Required, validation.By(func(v any) error {
			if s, _ := v.(models.Status); !s.Valid() {
				return fmt.Errorf("must be one of %v", models.Statuses)
			}
			return nil
		})),
		validation.Field(&c.DefaultType, validation.Required, validation.By(validNoteType)),
	)
}

func validNoteType(v any) error {
	if t, _ := v.(models.NoteType); !t.Valid() {
		return fmt.Errorf("must be one of %v", models.NoteTypes)
	}
	return nil
}

// ByteSize is a size in bytes that also accepts strings such as "10MB".
type ByteSize int64

// UnmarshalText parses a human readable size.
func (b *ByteSize) UnmarshalText(text []byte) error {
	n, err := humanize.ParseBytes(string(text))
	if err != nil {
		return fmt.Errorf("invalid size %q: %w", text, err)
	}
	*b = ByteSize(n)
	return nil
}

// UnmarshalYAML accepts both plain integers and human readable sizes.
func (b *ByteSize) UnmarshalYAML(node *yaml.Node) error {
	return b.UnmarshalText([]byte(node.Value))
}

// String renders the size for logs.
func (b ByteSize) String() string {
	return humanize.IBytes(uint64(b))
}

// ProcessingConfig holds per-file processing switches.
type ProcessingConfig struct {
	MaxFileSize       ByteSize `yaml:"max_file_size" toml:"max_file_size"`
	BackupEnabled     bool     `yaml:"backup_enabled" toml:"backup_enabled"`
	MoveToInbox       bool     `yaml:"move_to_inbox" toml:"move_to_inbox"`
	EncodingDetection bool     `yaml:"encoding_detection" toml:"encoding_detection"`
}

// Validate validates the processing configuration.
func (c *ProcessingConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.MaxFileSize, validation.Min(ByteSize(0))),
	)
}

// AIConfig bounds what is requested from the model.
type AIConfig struct {
	TitleMaxLength int `yaml:"title_max_length" toml:"title_max_length"`
	TagsMaxCount   int `yaml:"tags_max_count" toml:"tags_max_count"`
	SummaryLength  int `yaml:"summary_length" toml:"summary_length"`
	BodyLimit      int `yaml:"body_limit" toml:"body_limit"`
}

// Validate validates the AI configuration.
func (c *AIConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.TitleMaxLength, validation.Required, validation.Min(1)),
		validation.Field(&c.TagsMaxCount, validation.Required, validation.Min(1)),
		validation.Field(&c.SummaryLength, validation.Required, validation.Min(1)),
		validation.Field(&c.BodyLimit, validation.Required, validation.Min(1)),
	)
}

// LedgerConfig holds the run history database location.
type LedgerConfig struct {
	// Path of the SQLite file; relative paths are taken from the vault root.
	// "-" disables the ledger.
	Path string `yaml:"path" toml:"path"`
}

// Enabled reports whether run history is kept.
func (c *LedgerConfig) Enabled() bool {
	return c.Path != "" && c.Path != "-"
}

// Resolve returns the database path for vaultRoot.
func (c *LedgerConfig) Resolve(vaultRoot string) string {
	if filepath.IsAbs(c.Path) {
		return c.Path
	}
	return filepath.Join(vaultRoot, c.Path)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local use.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode" toml:"mode"`
	Token string `yaml:"token" toml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// WatchConfig holds watch mode settings.
type WatchConfig struct {
	DebounceMillis int `yaml:"debounce_ms" toml:"debounce_ms"`
}

// Debounce returns the quiet period before a changed file is processed.
func (c *WatchConfig) Debounce() time.Duration {
	return time.Duration(c.DebounceMillis) * time.Millisecond
}

// Validate validates the watch configuration.
func (c *WatchConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.DebounceMillis, validation.Min(0)),
	)
}

// DefaultDirectories is the stock import directory mapping.
func DefaultDirectories() []models.DirectoryMapping {
	return []models.DirectoryMapping{
		{Name: "follow", Tag: "follow", Type: models.TypeArticle},
		{Name: "clippings", Tag: "clippings", Type: models.TypeExcerpt},
		{Name: "readwise", Tag: "readwise", Type: models.TypeReading},
		{Name: "zotero", Tag: "zotero", Type: models.TypeReference},
		{Name: "webdav", Tag: "webdav", Type: models.TypeSync},
		{Name: "manual", Tag: "manual", Type: models.TypeNote},
		{Name: "ainotes", Tag: "ainotes", Type: models.TypeAI},
	}
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel:  slog.LevelInfo,
			LogFormat: LogFormatJSON,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Vault: VaultConfig{
			Path:     ".",
			InboxDir: inbox.DefaultDir,
		},
		Ollama: OllamaConfig{
			BaseURL:        "http://localhost:11434",
			Model:          "qwen3:8b",
			TimeoutSeconds: 30,
			Retry:          3,
		},
		Metadata: MetadataConfig{
			DefaultStatus: models.StatusSprout,
			DefaultType:   models.TypeNote,
		},
		Processing: ProcessingConfig{
			MaxFileSize:       10 * humanize.MiByte,
			BackupEnabled:     true,
			EncodingDetection: true,
		},
		AI: AIConfig{
			TitleMaxLength: 15,
			TagsMaxCount:   7,
			SummaryLength:  200,
			BodyLimit:      2000,
		},
		Directories: DefaultDirectories(),
		Ledger: LedgerConfig{
			Path: ".prehandler/ledger.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Watch: WatchConfig{
			DebounceMillis: 2000,
		},
	}
}
