package config

import "time"

type Config struct {
	Logging LoggingConfig `json:"logging"`

	// Storage controls the persistence layer backing the task repository,
	// custom alarms, and the scheduled-alarm mirror.
	Storage *StorageConfig `json:"storage,omitempty"`

	// Alarms controls the task-alarm scheduler and facade.
	Alarms AlarmsConfig `json:"alarms"`

	// Enforce controls the app-blocking enforcement engine.
	Enforce EnforceConfig `json:"enforce"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig controls the persistence layer.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./blockd.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// AlarmsConfig controls the task-alarm scheduler.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
//
// Defaults (when fields are omitted/zero):
//   - look_ahead_days: 7
//   - bridge_timeout: "10s"
//   - retry_max: 3
type AlarmsConfig struct {
	// UserID binds the scheduler to one active user session.
	UserID string `json:"user_id"`

	LookAheadDays int `json:"look_ahead_days,omitempty"`

	// BridgeTimeout bounds every native bridge call so a stuck call
	// cannot block a scheduling batch.
	BridgeTimeout string `json:"bridge_timeout,omitempty"`

	RetryMax int `json:"retry_max,omitempty"`

	// Timezone for date keys and the midnight rollover. IANA TZ, e.g.
	// "Asia/Jakarta". Empty means host local time.
	Timezone string `json:"timezone,omitempty"`
}

// EnforceConfig controls the enforcement engine.
//
// Defaults: idle_poll "5m", active_poll "2m".
type EnforceConfig struct {
	Enabled    bool   `json:"enabled"`
	IdlePoll   string `json:"idle_poll,omitempty"`
	ActivePoll string `json:"active_poll,omitempty"`

	// AllowedApps are extra exact package identifiers that are never blocked,
	// merged with the built-in essential-system list.
	AllowedApps []string `json:"allowed_apps,omitempty"`

	// AllowedPrefixes are extra package-name prefixes that are never blocked.
	AllowedPrefixes []string `json:"allowed_prefixes,omitempty"`
}

// ---- Resolved accessors (parse duration strings, apply defaults) ----

func (c AlarmsConfig) ResolvedLookAhead() int {
	if c.LookAheadDays <= 0 {
		return 7
	}
	return c.LookAheadDays
}

func (c AlarmsConfig) ResolvedBridgeTimeout() time.Duration {
	d, err := ParseDurationField("alarms.bridge_timeout", c.BridgeTimeout)
	if err != nil || d <= 0 {
		return 10 * time.Second
	}
	return d
}

func (c AlarmsConfig) ResolvedRetryMax() int {
	if c.RetryMax <= 0 {
		return 3
	}
	return c.RetryMax
}

func (c EnforceConfig) ResolvedIdlePoll() time.Duration {
	d, err := ParseDurationField("enforce.idle_poll", c.IdlePoll)
	if err != nil || d <= 0 {
		return 5 * time.Minute
	}
	return d
}

func (c EnforceConfig) ResolvedActivePoll() time.Duration {
	d, err := ParseDurationField("enforce.active_poll", c.ActivePoll)
	if err != nil || d <= 0 {
		return 2 * time.Minute
	}
	return d
}

// Validate rejects configs that would leave a subsystem in a broken state.
// Called by the manager before committing a hot reload.
func (c *Config) Validate() error {
	if _, err := ParseDurationField("alarms.bridge_timeout", c.Alarms.BridgeTimeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("enforce.idle_poll", c.Enforce.IdlePoll); err != nil {
		return err
	}
	if _, err := ParseDurationField("enforce.active_poll", c.Enforce.ActivePoll); err != nil {
		return err
	}
	if c.Storage != nil {
		if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
			return err
		}
	}
	return nil
}
