package config

import (
	"reflect"
	"sort"
	"strings"

	logx "blockd/pkg/logx"
)

// SummarizeConfigChange returns (1) a compact list of changed sections and
// (2) safe structured attrs for logging.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 4)
	attrs := make([]logx.Field, 0, 12)

	// Logging
	if oldCfg.Logging.Level != newCfg.Logging.Level ||
		oldCfg.Logging.Console != newCfg.Logging.Console ||
		oldCfg.Logging.File.Enabled != newCfg.Logging.File.Enabled ||
		strings.TrimSpace(oldCfg.Logging.File.Path) != strings.TrimSpace(newCfg.Logging.File.Path) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	// Storage (nil means disabled)
	var oDriver, nDriver, oBusy, nBusy string
	var oPathSet, nPathSet bool
	if oldCfg.Storage != nil {
		oDriver = strings.TrimSpace(oldCfg.Storage.Driver)
		oBusy = strings.TrimSpace(oldCfg.Storage.BusyTimeout)
		oPathSet = strings.TrimSpace(oldCfg.Storage.Path) != ""
	}
	if newCfg.Storage != nil {
		nDriver = strings.TrimSpace(newCfg.Storage.Driver)
		nBusy = strings.TrimSpace(newCfg.Storage.BusyTimeout)
		nPathSet = strings.TrimSpace(newCfg.Storage.Path) != ""
	}
	if oDriver != nDriver || oBusy != nBusy || oPathSet != nPathSet {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", nDriver),
			logx.Bool("storage.path_set", nPathSet),
		)
	}

	// Alarms
	if !reflect.DeepEqual(oldCfg.Alarms, newCfg.Alarms) {
		changed = append(changed, "alarms")
		attrs = append(attrs,
			logx.Bool("alarms.user_set", strings.TrimSpace(newCfg.Alarms.UserID) != ""),
			logx.Int("alarms.look_ahead_days", newCfg.Alarms.ResolvedLookAhead()),
			logx.Duration("alarms.bridge_timeout", newCfg.Alarms.ResolvedBridgeTimeout()),
			logx.String("alarms.timezone", strings.TrimSpace(newCfg.Alarms.Timezone)),
		)
	}

	// Enforce
	if !reflect.DeepEqual(oldCfg.Enforce, newCfg.Enforce) {
		changed = append(changed, "enforce")
		attrs = append(attrs,
			logx.Bool("enforce.enabled", newCfg.Enforce.Enabled),
			logx.Duration("enforce.idle_poll", newCfg.Enforce.ResolvedIdlePoll()),
			logx.Duration("enforce.active_poll", newCfg.Enforce.ResolvedActivePoll()),
			logx.Int("enforce.allowed_apps", len(newCfg.Enforce.AllowedApps)),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}
