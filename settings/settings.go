package settings

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/Masterminds/semver"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"matchable.io/sdk/v1/action"
)

const (
	EnvPrefix = "MATCHABLE_"

	DefaultHTTPTimeout = 30 * time.Second
)

// Provider hands out a snapshot of the current settings. Snapshots are never mutated,
// so an in-flight request keeps using the values it started with.
type Provider interface {
	Current() Settings
}

type Settings struct {
	// Enabled gates every network call the sdk makes
	Enabled bool `json:"enabled" env:"ENABLED" envDefault:"true"`

	AppKey      string              `json:"appKey" env:"APP_KEY"`
	PlayerId    string              `json:"playerId" env:"PLAYER_ID"`
	GameVersion string              `json:"gameVersion" env:"GAME_VERSION"`
	Identity    action.IdentityMode `json:"identity" env:"IDENTITY" envDefault:"version"`

	// LoggingEnabled logs every action body before it's sent
	LoggingEnabled bool `json:"loggingEnabled" env:"LOGGING_ENABLED"`

	ActionsEndpoint         string `json:"actionsEndpoint" env:"ACTIONS_ENDPOINT"`
	RecommendationsEndpoint string `json:"recommendationsEndpoint" env:"RECOMMENDATIONS_ENDPOINT"`
	StatsEndpoint           string `json:"statsEndpoint" env:"STATS_ENDPOINT"`
	AdvisorEndpoint         string `json:"advisorEndpoint" env:"ADVISOR_ENDPOINT"`

	HTTPTimeout Duration `json:"httpTimeout" env:"HTTP_TIMEOUT" envDefault:"30s"`

	// RetryMaxElapsed turns on exponential backoff for failed requests, zero sends each request once
	RetryMaxElapsed Duration `json:"retryMaxElapsed" env:"RETRY_MAX_ELAPSED"`
}

type Static Settings

func (s Static) Current() Settings {
	return Settings(s)
}

func Defaults() Settings {
	return Settings{
		Enabled:     true,
		Identity:    action.ByVersion,
		HTTPTimeout: Duration(DefaultHTTPTimeout),
	}
}

// FromEnv loads MATCHABLE_* variables, after filling the environment from the given
// dotenv files (or ./.env). Dotenv files never override variables that are already set
// and missing files are skipped.
func FromEnv(dotenvFiles ...string) (Settings, error) {
	var s Settings

	if len(dotenvFiles) == 0 {
		dotenvFiles = []string{".env"}
	}
	for _, file := range dotenvFiles {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, os.ErrNotExist) {
			return s, fmt.Errorf("failed to load %s: %w", file, err)
		}
	}

	if err := env.ParseWithOptions(&s, env.Options{Prefix: EnvPrefix}); err != nil {
		return s, fmt.Errorf("parse env: %w", err)
	}

	return s, nil
}

func (s Settings) Validate() error {
	if s.AppKey == "" {
		return fmt.Errorf("an app key is required")
	}

	if !s.Identity.Valid() {
		return fmt.Errorf("unknown identity %q, expected %q or %q", s.Identity, action.ByVersion, action.ByPlayerId)
	}

	if s.Identity == action.ByPlayerId && s.PlayerId == "" {
		return fmt.Errorf("a player id is required when actions are identified by player")
	}

	if s.Identity == action.ByVersion && s.GameVersion == "" {
		return fmt.Errorf("a game version is required when actions are identified by version")
	}

	if s.GameVersion != "" {
		if _, err := semver.NewVersion(s.GameVersion); err != nil {
			return fmt.Errorf("game version %q is not a semantic version: %w", s.GameVersion, err)
		}
	}

	endpoints := map[string]string{
		"actions":         s.ActionsEndpoint,
		"recommendations": s.RecommendationsEndpoint,
		"stats":           s.StatsEndpoint,
		"advisor":         s.AdvisorEndpoint,
	}
	for name, endpoint := range endpoints {
		if endpoint == "" {
			continue
		}
		if u, err := url.ParseRequestURI(endpoint); err != nil || u.Host == "" {
			return fmt.Errorf("%s endpoint %q is not an absolute url", name, endpoint)
		}
	}

	return nil
}

// ActionIdentity is the identifier embedded in every action, picked by the Identity setting
func (s Settings) ActionIdentity() action.Identity {
	if s.Identity == action.ByPlayerId {
		return action.Identity{Mode: action.ByPlayerId, Value: s.PlayerId}
	}
	return action.Identity{Mode: action.ByVersion, Value: s.GameVersion}
}
