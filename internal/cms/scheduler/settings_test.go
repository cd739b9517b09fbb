package scheduler

import (
	"testing"

	gconfig "github.com/Laisky/go-config/v2"
	"github.com/stretchr/testify/require"
)

func TestLoadSettingsFromConfig(t *testing.T) {
	require.Equal(t, DefaultSettings(), LoadSettingsFromConfig())

	gconfig.S.Set("settings.scheduler.enabled", false)
	gconfig.S.Set("settings.scheduler.view_retention_days", "30")
	gconfig.S.Set("settings.scheduler.revision_keep", 5)

	st := LoadSettingsFromConfig()
	require.False(t, st.Enabled)
	require.Equal(t, 30, st.ViewRetentionDays)
	require.Equal(t, 5, st.RevisionKeep)
}
