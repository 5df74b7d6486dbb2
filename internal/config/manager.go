package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"

	logx "vidbot/pkg/logx"
)

// envOverrides are applied on top of the parsed file. The original
// deployment configured the bot entirely through the environment, so these
// take precedence over file values.
type envOverrides struct {
	Token   string `env:"BOT_TOKEN"`
	OwnerID int64  `env:"OWNER_ID"`
	Port    int    `env:"PORT"`
}

// Manager loads and watches the config file. The file is optional; when it
// is absent the bot runs on defaults plus environment overrides.
type Manager struct {
	path string

	mu  sync.RWMutex
	cfg *Config

	log logx.Logger
}

func NewManager(path string) *Manager {
	return &Manager{path: path}
}

func (m *Manager) SetLogger(log logx.Logger) { m.log = log }

// Parse reads, decodes, and validates the config without committing it.
func (m *Manager) Parse() (*Config, error) {
	cfg := defaults()

	b, err := os.ReadFile(m.path)
	switch {
	case err == nil:
		jb, cerr := coerceToJSONBytes(m.path, b)
		if cerr != nil {
			return nil, cerr
		}
		dec := json.NewDecoder(bytes.NewReader(jb))
		dec.DisallowUnknownFields()
		if err := dec.Decode(cfg); err != nil {
			return nil, err
		}
		// reject trailing tokens (e.g. concatenated JSON)
		if err := dec.Decode(&struct{}{}); err != io.EOF {
			if err == nil {
				return nil, fmt.Errorf("invalid config: trailing data")
			}
			return nil, err
		}
	case errors.Is(err, os.ErrNotExist):
		// env-only operation
	default:
		return nil, err
	}

	var ov envOverrides
	if err := env.Parse(&ov); err != nil {
		return nil, fmt.Errorf("env overrides: %w", err)
	}
	if ov.Token != "" {
		cfg.Telegram.Token = ov.Token
	}
	if ov.OwnerID != 0 {
		cfg.Telegram.OwnerID = ov.OwnerID
	}
	if ov.Port != 0 {
		cfg.Health.Port = ov.Port
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate enforces required startup configuration. A violation here is
// fatal: the process must not start without an identity.
func validate(cfg *Config) error {
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		return errors.New("telegram.token (or BOT_TOKEN) is required")
	}
	if cfg.Telegram.OwnerID == 0 {
		return errors.New("telegram.owner_id (or OWNER_ID) is required")
	}
	if _, err := ParseDuration("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second); err != nil {
		return err
	}
	if cfg.Health.Port < 0 || cfg.Health.Port > 65535 {
		return fmt.Errorf("health.port out of range: %d", cfg.Health.Port)
	}
	return nil
}

// ParseDuration parses an optional Go duration string, applying def when the
// value is empty.
func ParseDuration(field, raw string, def time.Duration) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", field, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: negative duration %q", field, raw)
	}
	return d, nil
}

func (m *Manager) Load() (*Config, error) {
	cfg, err := m.Parse()
	if err != nil {
		return nil, err
	}
	m.commit(cfg)
	return cfg, nil
}

func (m *Manager) commit(cfg *Config) {
	m.mu.Lock()
	m.cfg = cfg
	m.mu.Unlock()
}

func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}
