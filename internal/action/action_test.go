package action

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	thresholds := DefaultThresholds()

	tests := []struct {
		name  string
		score int
		want  Tier
	}{
		{"zero score", 0, TierNone},
		{"just below monitor", 19, TierNone},
		{"monitor boundary", 20, TierMonitor},
		{"mid monitor band", 35, TierMonitor},
		{"warning boundary", 50, TierWarning},
		{"just below ban", 89, TierWarning},
		{"ban boundary", 90, TierBan},
		{"maximum score", 100, TierBan},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Resolve(tt.score, thresholds))
		})
	}
}

func TestResolveIsDeterministic(t *testing.T) {
	// Same score, same thresholds, same tier; resolution keeps no state.
	r, err := NewResolver(DefaultThresholds())
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		assert.Equal(t, TierWarning, r.Resolve(60))
	}
}

func TestThresholdsValidate(t *testing.T) {
	t.Run("defaults are valid", func(t *testing.T) {
		assert.NoError(t, DefaultThresholds().Validate())
	})

	t.Run("unordered thresholds rejected", func(t *testing.T) {
		err := Thresholds{Monitor: 50, Warning: 20, Ban: 90}.Validate()
		assert.Error(t, err)
	})

	t.Run("ban above scale rejected", func(t *testing.T) {
		err := Thresholds{Monitor: 20, Warning: 50, Ban: 120}.Validate()
		assert.Error(t, err)
	})
}

func TestNewResolverRejectsInvalidThresholds(t *testing.T) {
	_, err := NewResolver(Thresholds{Monitor: 90, Warning: 50, Ban: 20})
	assert.Error(t, err)
}

func TestNopExecutor(t *testing.T) {
	exec := NewNopExecutor(slog.Default())
	err := exec.ExecuteBan(context.Background(), "p1", "c1", 95, []string{"view spike"})
	assert.NoError(t, err)
}
