package conf

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadForTest(t *testing.T) *Settings {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)

	s, err := Load()
	require.NoError(t, err, "loading default settings should not fail")
	return s
}

func TestLoadDefaults(t *testing.T) {
	s := loadForTest(t)

	assert.InDelta(t, 0.40, s.Verify.Threshold, 1e-9)
	assert.InDelta(t, 0.05, s.Verify.Margin, 1e-9)
	assert.InDelta(t, 0.35, s.Verify.ReviewBand.Low, 1e-9)
	assert.InDelta(t, 0.50, s.Verify.ReviewBand.High, 1e-9)
	assert.Equal(t, 224, s.Verify.MinSidePx)
	assert.Equal(t, 15*time.Second, s.Remote.Timeout)
	assert.Equal(t, 2, s.Remote.MaxRetries)
	assert.Equal(t, 60*time.Second, s.Scene.Timeout)
	assert.InDelta(t, 150.0, s.Geofence.DefaultRadius, 1e-9)
	assert.NotEmpty(t, s.Verify.Labels, "label vocabulary must have a default")

	// The scene vocabulary and the decision layer's gym vocabulary are
	// distinct sets: the former names scenes to pick between, the latter
	// names what counts as a gym.
	assert.NotEmpty(t, s.Verify.GymLabels)
	assert.Contains(t, s.Verify.GymLabels, "gym")
	assert.NotContains(t, s.Verify.GymLabels, "office")
	assert.Contains(t, s.Verify.Labels, "office")
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("GYMCHECK_VERIFY_THRESHOLD", "0.55")
	t.Setenv("GYMCHECK_REMOTE_MAXRETRIES", "4")

	s := loadForTest(t)

	assert.InDelta(t, 0.55, s.Verify.Threshold, 1e-9)
	assert.Equal(t, 4, s.Remote.MaxRetries)
}

func TestValidateSettings(t *testing.T) {
	base := loadForTest(t)

	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr bool
	}{
		{"defaults are valid", func(s *Settings) {}, false},
		{"threshold above one", func(s *Settings) { s.Verify.Threshold = 1.5 }, true},
		{"inverted review band", func(s *Settings) { s.Verify.ReviewBand.Low = 0.9 }, true},
		{"ratio bound below one", func(s *Settings) { s.Verify.RatioBound = 0.5 }, true},
		{"empty labels", func(s *Settings) { s.Verify.Labels = nil }, true},
		{"negative retries", func(s *Settings) { s.Remote.MaxRetries = -1 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := *base
			tt.mutate(&s)
			err := ValidateSettings(&s)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
