package launcher

import (
	"testing"

	"cicadad/internal/backend"
	"cicadad/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsUnsupportedMode(t *testing.T) {
	store := backend.NewMemoryStore()
	_, err := New(config.SchedulingMode("BOGUS"), store, Options{})
	assert.Error(t, err)
}

func TestNewBuildsLocalLauncher(t *testing.T) {
	store := backend.NewMemoryStore()
	l, err := New(config.ModeLocal, store, Options{RuntimePath: "/opt/cicadad"})
	require.NoError(t, err)
	_, ok := l.(*LocalLauncher)
	assert.True(t, ok)
}

func TestNewBuildsKubeLauncher(t *testing.T) {
	store := backend.NewMemoryStore()
	kubeClient := newFakeKubeClient(t)
	l, err := New(config.ModeKube, store, Options{Namespace: "load-tests", KubeClient: kubeClient})
	require.NoError(t, err)
	_, ok := l.(*KubeLauncher)
	assert.True(t, ok)
}
