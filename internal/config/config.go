// Package config loads and validates the mailtriage YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ErrInvalidConfig is wrapped by every configuration validation failure.
// Configuration errors are surfaced before any network or database I/O.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the top-level application configuration.
type Config struct {
	Output        OutputConfig        `mapstructure:"output"`
	Time          TimeConfig          `mapstructure:"time"`
	Accounts      []AccountConfig     `mapstructure:"accounts"`
	Rules         RulesConfig         `mapstructure:"rules"`
	Tickets       TicketsConfig       `mapstructure:"tickets"`
	Watch         WatchConfig         `mapstructure:"watch"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
}

// OutputConfig locates the report tree. Root must be absolute; the state
// database lives under <root>/.mailtriage/.
type OutputConfig struct {
	Root string `mapstructure:"root"`
}

// TimeConfig anchors triage windows to a local workday.
type TimeConfig struct {
	Timezone     string `mapstructure:"timezone"`      // IANA name, e.g. "Europe/Berlin"
	WorkdayStart string `mapstructure:"workday_start"` // "HH:MM" local time
}

// AccountConfig describes one mailbox to ingest.
type AccountConfig struct {
	ID       string         `mapstructure:"id"`
	IMAP     IMAPConfig     `mapstructure:"imap"`
	Identity IdentityConfig `mapstructure:"identity"`
	Secrets  SecretsConfig  `mapstructure:"secrets"`
}

// IMAPConfig holds connection settings for an IMAP server.
type IMAPConfig struct {
	Host    string   `mapstructure:"host"`
	Port    int      `mapstructure:"port"`
	SSL     bool     `mapstructure:"ssl"`
	Folders []string `mapstructure:"folders"`
}

// IdentityConfig is the set of addresses that count as "us" when deciding
// whether a message is inbound or outbound.
type IdentityConfig struct {
	PrimaryAddress string   `mapstructure:"primary_address"`
	Aliases        []string `mapstructure:"aliases"`
}

// SecretsConfig names the credential provider and the reference it resolves.
type SecretsConfig struct {
	Provider  string `mapstructure:"provider"` // "env", "keyring", "bitwarden"
	Reference string `mapstructure:"reference"`
}

// RulesConfig drives message classification.
type RulesConfig struct {
	HighPrioritySenders []string     `mapstructure:"high_priority_senders"`
	CollapseAutomated   bool         `mapstructure:"collapse_automated"`
	Suppress            PatternRules `mapstructure:"suppress"`
	ArrivalOnly         PatternRules `mapstructure:"arrival_only"`
}

// PatternRules holds case-insensitive substring patterns for senders and subjects.
type PatternRules struct {
	Senders  []string `mapstructure:"senders"`
	Subjects []string `mapstructure:"subjects"`
}

// TicketsConfig enables ticket-key extraction from subjects.
type TicketsConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Plugins []string `mapstructure:"plugins"`
}

// WatchConfig controls the background watch loop.
type WatchConfig struct {
	IngestLookbackDays int                  `mapstructure:"ingest_lookback_days"`
	Schedule           string               `mapstructure:"schedule"` // cron expression
	Unreplied          UnrepliedWatchConfig `mapstructure:"unreplied"`
}

// UnrepliedWatchConfig holds the unreplied-thread watch rules.
type UnrepliedWatchConfig struct {
	Enabled bool                  `mapstructure:"enabled"`
	Rules   []UnrepliedRuleConfig `mapstructure:"rules"`
}

// UnrepliedRuleConfig is one unreplied-thread SLA rule.
type UnrepliedRuleConfig struct {
	ID                    string   `mapstructure:"id"`
	TargetAddresses       []string `mapstructure:"target_addresses"`
	UnrepliedAfterMinutes int      `mapstructure:"unreplied_after_minutes"`
	LookbackDays          int      `mapstructure:"lookback_days"`
	NotifyCooldownMinutes int      `mapstructure:"notify_cooldown_minutes"`
}

// NotificationsConfig toggles desktop notifications.
type NotificationsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Load reads, decodes, and validates the configuration file at path.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: config file %s: %v", ErrInvalidConfig, path, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetDefault("rules.collapse_automated", true)
	v.SetDefault("watch.ingest_lookback_days", 7)
	v.SetDefault("watch.schedule", "0 * * * *")
	v.SetDefault("notifications.enabled", true)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrInvalidConfig, path, err)
	}

	if err := rejectUnknownKeys(v.AllSettings()); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrInvalidConfig, path, err)
	}

	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	for i := range cfg.Accounts {
		if len(cfg.Accounts[i].IMAP.Folders) == 0 {
			cfg.Accounts[i].IMAP.Folders = []string{"INBOX"}
		}
	}
	for i := range cfg.Watch.Unreplied.Rules {
		r := &cfg.Watch.Unreplied.Rules[i]
		if r.UnrepliedAfterMinutes == 0 {
			r.UnrepliedAfterMinutes = 60
		}
		if r.LookbackDays == 0 {
			r.LookbackDays = 14
		}
		if r.NotifyCooldownMinutes == 0 {
			r.NotifyCooldownMinutes = 60
		}
	}
}

// Validate checks every field that can be checked without I/O.
func (c *Config) Validate() error {
	if c.Output.Root == "" {
		return fmt.Errorf("%w: output.root is required", ErrInvalidConfig)
	}
	if !filepath.IsAbs(c.Output.Root) {
		return fmt.Errorf("%w: output.root must be an absolute path", ErrInvalidConfig)
	}

	if c.Time.Timezone == "" {
		return fmt.Errorf("%w: time.timezone is required", ErrInvalidConfig)
	}
	if _, err := time.LoadLocation(c.Time.Timezone); err != nil {
		return fmt.Errorf("%w: time.timezone %q: %v", ErrInvalidConfig, c.Time.Timezone, err)
	}
	if _, _, err := ParseWorkdayStart(c.Time.WorkdayStart); err != nil {
		return err
	}

	if len(c.Accounts) == 0 {
		return fmt.Errorf("%w: at least one account is required", ErrInvalidConfig)
	}
	seen := make(map[string]bool, len(c.Accounts))
	for _, a := range c.Accounts {
		if a.ID == "" {
			return fmt.Errorf("%w: account id is required", ErrInvalidConfig)
		}
		if seen[a.ID] {
			return fmt.Errorf("%w: duplicate account id %q", ErrInvalidConfig, a.ID)
		}
		seen[a.ID] = true
		if a.IMAP.Host == "" {
			return fmt.Errorf("%w: account %q: imap.host is required", ErrInvalidConfig, a.ID)
		}
		if a.IMAP.Port <= 0 || a.IMAP.Port > 65535 {
			return fmt.Errorf("%w: account %q: imap.port %d out of range", ErrInvalidConfig, a.ID, a.IMAP.Port)
		}
		if a.Identity.PrimaryAddress == "" {
			return fmt.Errorf("%w: account %q: identity.primary_address is required", ErrInvalidConfig, a.ID)
		}
		if a.Secrets.Provider == "" || a.Secrets.Reference == "" {
			return fmt.Errorf("%w: account %q: secrets.provider and secrets.reference are required", ErrInvalidConfig, a.ID)
		}
	}

	for _, r := range c.Watch.Unreplied.Rules {
		if r.ID == "" {
			return fmt.Errorf("%w: watch.unreplied.rules[].id is required", ErrInvalidConfig)
		}
		if r.UnrepliedAfterMinutes <= 0 || r.LookbackDays <= 0 || r.NotifyCooldownMinutes <= 0 {
			return fmt.Errorf("%w: watch.unreplied rule %q: minutes/days must be positive", ErrInvalidConfig, r.ID)
		}
	}

	return nil
}

// ParseWorkdayStart parses an "HH:MM" local time string.
func ParseWorkdayStart(s string) (hh, mm int, err error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("%w: time.workday_start must be HH:MM, got %q", ErrInvalidConfig, s)
	}
	hh, err1 := strconv.Atoi(parts[0])
	mm, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || hh < 0 || hh > 23 || mm < 0 || mm > 59 {
		return 0, 0, fmt.Errorf("%w: time.workday_start out of range: %q", ErrInvalidConfig, s)
	}
	return hh, mm, nil
}

// StateDBPath returns the path of the SQLite state database.
func (c *Config) StateDBPath() string {
	return filepath.Join(c.Output.Root, ".mailtriage", "state.db")
}

// IdentitySet returns the lowercased primary address plus aliases for an account.
func (a *AccountConfig) IdentitySet() map[string]bool {
	set := map[string]bool{strings.ToLower(a.Identity.PrimaryAddress): true}
	for _, alias := range a.Identity.Aliases {
		set[strings.ToLower(alias)] = true
	}
	return set
}

// allowedKeys mirrors the typed schema above. Unknown keys are a hard error
// so a typo never silently disables a rule.
var allowedKeys = map[string][]string{
	"":                    {"output", "time", "accounts", "rules", "tickets", "watch", "notifications"},
	"output":              {"root"},
	"time":                {"timezone", "workday_start"},
	"accounts[]":          {"id", "imap", "identity", "secrets"},
	"accounts[].imap":     {"host", "port", "ssl", "folders"},
	"accounts[].identity": {"primary_address", "aliases"},
	"accounts[].secrets":  {"provider", "reference"},
	"rules":               {"high_priority_senders", "collapse_automated", "suppress", "arrival_only"},
	"rules.suppress":      {"senders", "subjects"},
	"rules.arrival_only":  {"senders", "subjects"},
	"tickets":             {"enabled", "plugins"},
	"watch":               {"ingest_lookback_days", "schedule", "unreplied"},
	"watch.unreplied":     {"enabled", "rules"},
	"watch.unreplied.rules[]": {
		"id", "target_addresses", "unreplied_after_minutes", "lookback_days", "notify_cooldown_minutes",
	},
	"notifications": {"enabled"},
}

func rejectUnknownKeys(settings map[string]any) error {
	return checkSection(settings, "")
}

func checkSection(section map[string]any, context string) error {
	allowed, ok := allowedKeys[context]
	if !ok {
		return nil
	}
	allowedSet := make(map[string]bool, len(allowed))
	for _, k := range allowed {
		allowedSet[k] = true
	}

	var unknown []string
	for k := range section {
		if !allowedSet[strings.ToLower(k)] {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		where := context
		if where == "" {
			where = "root config"
		}
		return fmt.Errorf("%w: unknown key(s) in %s: %s", ErrInvalidConfig, where, strings.Join(unknown, ", "))
	}

	for k, val := range section {
		child := strings.ToLower(k)
		if context != "" {
			child = context + "." + child
		}
		switch v := val.(type) {
		case map[string]any:
			if err := checkSection(v, child); err != nil {
				return err
			}
		case []any:
			for _, item := range v {
				m, ok := item.(map[string]any)
				if !ok {
					continue
				}
				if err := checkSection(m, child+"[]"); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
