package sysconfig

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewServiceWithDefaults(t *testing.T) {
	service, err := NewService(Default())
	require.NoError(t, err)

	cfg := service.Get()
	assert.Equal(t, PolicyRejectOnError, cfg.ReviewPolicy)
	assert.NotEmpty(t, cfg.ArtifactDir)
}

func TestNewServiceRejectsInvalidConfig(t *testing.T) {
	cfg := Default()
	cfg.ReviewPolicy = "reject-sometimes"

	_, err := NewService(cfg)
	require.Error(t, err)
}

func TestReload(t *testing.T) {
	service, err := NewService(Default())
	require.NoError(t, err)

	next := Default()
	next.ReviewPolicy = PolicyRejectOnWarning
	next.DisableStar = true
	next.PollInterval = 30 * time.Second

	require.NoError(t, service.Reload(next))

	cfg := service.Get()
	assert.Equal(t, PolicyRejectOnWarning, cfg.ReviewPolicy)
	assert.True(t, cfg.DisableStar)
}

func TestReloadKeepsPreviousConfigOnError(t *testing.T) {
	service, err := NewService(Default())
	require.NoError(t, err)

	bad := Default()
	bad.ArtifactDir = ""

	require.Error(t, service.Reload(bad))
	assert.Equal(t, Default().ArtifactDir, service.Get().ArtifactDir)
}
