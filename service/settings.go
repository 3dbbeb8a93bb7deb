package service

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/foomo/yuque-mcp/yuque"
)

// Environment variables consulted by LoadSettings. They override the config
// file; per-call tool arguments override both.
const (
	EnvSpace      = "YUQUE_SPACE"
	EnvToken      = "YUQUE_TOKEN"
	EnvGroupLogin = "YUQUE_GROUP_LOGIN"
	EnvBookSlug   = "YUQUE_BOOK_SLUG"
)

// Settings are the process-wide defaults for talking to Yuque. Any field may
// stay empty; resolution happens per call and the tools report what is still
// missing instead of refusing to start.
type Settings struct {
	Space      string `yaml:"space"`
	Token      string `yaml:"token"`
	GroupLogin string `yaml:"group_login"`
	BookSlug   string `yaml:"book_slug"`
}

// LoadSettings reads the optional YAML file at path, then applies environment
// overrides. An empty path skips the file entirely.
func LoadSettings(path string) (Settings, error) {
	var settings Settings
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Settings{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &settings); err != nil {
			return Settings{}, fmt.Errorf("failed to parse config file %q: %w", path, err)
		}
	}
	settings.Space = envOverride(EnvSpace, settings.Space)
	settings.Token = envOverride(EnvToken, settings.Token)
	settings.GroupLogin = envOverride(EnvGroupLogin, settings.GroupLogin)
	settings.BookSlug = envOverride(EnvBookSlug, settings.BookSlug)
	return settings, nil
}

func envOverride(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

// Resolve merges per-call overrides onto the process defaults and returns the
// scope for one remote call. Empty arguments keep the defaults; there is no
// failure mode, callers check Scope.Missing before issuing requests.
func (settings Settings) Resolve(groupLogin, bookSlug string) yuque.Scope {
	scope := yuque.Scope{
		Space:      settings.Space,
		Token:      settings.Token,
		GroupLogin: settings.GroupLogin,
		BookSlug:   settings.BookSlug,
	}
	if groupLogin = strings.TrimSpace(groupLogin); groupLogin != "" {
		scope.GroupLogin = groupLogin
	}
	if bookSlug = strings.TrimSpace(bookSlug); bookSlug != "" {
		scope.BookSlug = bookSlug
	}
	return scope
}
