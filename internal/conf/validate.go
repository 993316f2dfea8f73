package conf

import (
	"fmt"
)

// ValidateSettings checks the loaded settings for values the pipeline cannot
// operate with. It returns the first problem found.
func ValidateSettings(s *Settings) error {
	if s.Verify.Threshold < 0 || s.Verify.Threshold > 1 {
		return fmt.Errorf("verify.threshold must be within [0,1], got %v", s.Verify.Threshold)
	}
	if s.Verify.Margin < 0 || s.Verify.Margin > 1 {
		return fmt.Errorf("verify.margin must be within [0,1], got %v", s.Verify.Margin)
	}
	if s.Verify.ReviewBand.Low > s.Verify.ReviewBand.High {
		return fmt.Errorf("verify.reviewband.low (%v) must not exceed verify.reviewband.high (%v)",
			s.Verify.ReviewBand.Low, s.Verify.ReviewBand.High)
	}
	if s.Verify.RatioBound < 1 {
		return fmt.Errorf("verify.ratiobound must be >= 1, got %v", s.Verify.RatioBound)
	}
	if s.Verify.MinSidePx <= 0 {
		return fmt.Errorf("verify.minsidepx must be positive, got %d", s.Verify.MinSidePx)
	}
	if s.Verify.MaxBytes <= s.Verify.MinBytes {
		return fmt.Errorf("verify.maxbytes (%d) must exceed verify.minbytes (%d)",
			s.Verify.MaxBytes, s.Verify.MinBytes)
	}
	if len(s.Verify.Labels) == 0 {
		return fmt.Errorf("verify.labels must not be empty")
	}
	if s.Geofence.DefaultRadius <= 0 {
		return fmt.Errorf("geofence.defaultradius must be positive, got %v", s.Geofence.DefaultRadius)
	}
	if s.Remote.MaxRetries < 0 {
		return fmt.Errorf("remote.maxretries must not be negative, got %d", s.Remote.MaxRetries)
	}
	return nil
}
