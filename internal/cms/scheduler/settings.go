package scheduler

import (
	"fmt"

	gconfig "github.com/Laisky/go-config/v2"

	"github.com/Laisky/laisky-blog-cms/internal/cms/revision"
)

const (
	// DefaultViewRetentionDays is how long view log rows are kept.
	DefaultViewRetentionDays = 90

	// Cron expressions of the built-in tasks, in UTC.
	PublishSpec       = "* * * * *"
	ViewCleanupSpec   = "0 0 * * *"
	RevisionPruneSpec = "0 3 * * 0"
)

// Settings holds runtime configuration for the scheduler.
type Settings struct {
	Enabled           bool
	ViewRetentionDays int
	RevisionKeep      int
}

// DefaultSettings returns the settings used when nothing is configured.
func DefaultSettings() Settings {
	return Settings{
		Enabled:           true,
		ViewRetentionDays: DefaultViewRetentionDays,
		RevisionKeep:      revision.DefaultKeep,
	}
}

// LoadSettingsFromConfig populates Settings from the shared configuration.
func LoadSettingsFromConfig() Settings {
	st := DefaultSettings()
	if gconfig.S.Get("settings.scheduler.enabled") != nil {
		st.Enabled = gconfig.S.GetBool("settings.scheduler.enabled")
	}
	st.ViewRetentionDays = intFromConfig("settings.scheduler.view_retention_days", st.ViewRetentionDays)
	st.RevisionKeep = intFromConfig("settings.scheduler.revision_keep", st.RevisionKeep)
	return st
}

// intFromConfig retrieves an integer configuration value with a default fallback.
func intFromConfig(key string, def int) int {
	switch v := gconfig.S.Get(key).(type) {
	case nil:
		return def
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		var parsed int
		if _, err := fmt.Sscanf(v, "%d", &parsed); err == nil {
			return parsed
		}
		return def
	default:
		return def
	}
}
