package configs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/open-access-policies/policy-crew/internal/config"
)

func TestConfigTemplate_MatchesDefaults(t *testing.T) {
	// The template must load cleanly and fingerprint identically to the
	// built-in defaults, otherwise `ragharness init` output would drift.
	cfg, err := config.Parse([]byte(ConfigTemplate))
	require.NoError(t, err)

	require.NoError(t, cfg.Validate())
	assert.Equal(t, config.NewConfig().Fingerprint(), cfg.Fingerprint())
}
