// Package decision fuses classification, geofence and capture provenance
// into a final verification verdict. Everything here is a pure function of
// its inputs so the same triple always yields the same verdict.
package decision

import (
	"strings"

	"github.com/gymcheck/gymcheck-go/internal/classifier"
	"github.com/gymcheck/gymcheck-go/internal/conf"
	"github.com/gymcheck/gymcheck-go/internal/geofence"
)

// Provenance describes how the submitted image was obtained. Camera
// captures are harder to spoof and rank higher in the trust tiers.
type Provenance string

const (
	ProvenanceCamera  Provenance = "camera"
	ProvenanceGallery Provenance = "gallery"
	ProvenanceUnknown Provenance = "unknown"
)

// Trust tiers in descending order of confidence. Informational context for
// the caller, never a pass/fail gate.
const (
	TrustHigh   = "high"
	TrustMedium = "medium"
	TrustLow    = "low"
)

// defaultGymLabels is the fallback vocabulary of gym-indicating scene
// labels, matched by case-insensitive substring.
var defaultGymLabels = []string{
	"gym", "fitness", "weight room", "exercise",
	"workout", "crossfit", "health club", "training room",
}

// Params holds the tunable knobs of the fusion step.
type Params struct {
	Threshold    float64
	Margin       float64
	ReviewLow    float64
	ReviewHigh   float64
	RelaxedFloor float64
	GymLabels    []string
}

// ParamsFromSettings translates the verify configuration into fusion
// parameters. The gym vocabulary comes from its own config key, never from
// the scene classifier's label list: that list carries non-gym scenes on
// purpose, so any label in it would match itself.
func ParamsFromSettings(v *conf.VerifySettings) Params {
	labels := v.GymLabels
	if len(labels) == 0 {
		labels = defaultGymLabels
	}
	return Params{
		Threshold:    v.Threshold,
		Margin:       v.Margin,
		ReviewLow:    v.ReviewBand.Low,
		ReviewHigh:   v.ReviewBand.High,
		RelaxedFloor: v.RelaxedFloor,
		GymLabels:    labels,
	}
}

// Input is one fusion request.
type Input struct {
	Classification classifier.Result
	Geofence       geofence.Result
	Provenance     Provenance

	// RelaxedRetry signals a checkin attempt that follows prior rejections.
	// It lowers the acceptance bar to the relaxed floor for gym-related
	// results. The profile flow never sets it.
	RelaxedRetry bool
}

// Verdict is the fused outcome of a verification request.
type Verdict struct {
	Verified       bool
	GymRelated     bool
	AboveThreshold bool
	MarginOK       bool
	RelaxedApplied bool
	ManualReview   bool
	Trust          string
	Reason         string
}

// Reason strings, selected by fixed priority so exactly one is returned.
const (
	reasonVerified       = "gym environment confirmed"
	reasonVerifiedRetry  = "gym environment accepted after retry review"
	reasonUncertain      = "the classifier could not determine the scene, please retake the photo"
	reasonNotGym         = "the photo does not appear to show a gym environment"
	reasonBelowThreshold = "confidence is too low to confirm a gym environment"
	reasonMarginTooSmall = "the top scene predictions are too close to call"
	reasonFallback       = "verification could not be completed"
)

// Evaluate fuses a classification result with the geofence outcome and
// capture provenance.
func Evaluate(p Params, in Input) Verdict {
	c := in.Classification

	v := Verdict{
		GymRelated:     labelGymRelated(c.Label, p.GymLabels),
		AboveThreshold: c.Confidence >= p.Threshold,
		MarginOK:       c.Margin() >= p.Margin,
	}
	v.Verified = v.GymRelated && v.AboveThreshold && v.MarginOK

	// Safety net for legitimate users stuck behind the strict gate: on a
	// flagged retry a gym-related result at or above the relaxed floor is
	// accepted even when threshold or margin would reject it.
	if !v.Verified && in.RelaxedRetry && v.GymRelated && c.Confidence >= p.RelaxedFloor {
		v.Verified = true
		v.RelaxedApplied = true
	}

	// The band deliberately overlaps the threshold so borderline results
	// stay flagged even when they clear the bar.
	v.ManualReview = c.Label == classifier.UncertainLabel ||
		(c.Confidence >= p.ReviewLow && c.Confidence <= p.ReviewHigh)

	v.Trust = trustTier(v.Verified, in.Geofence, in.Provenance)
	v.Reason = selectReason(v, c.Label)
	return v
}

func labelGymRelated(label string, gymLabels []string) bool {
	lower := strings.ToLower(strings.TrimSpace(label))

	// The remote tier answers within a closed vocabulary whose negative
	// label still contains "gym" as a substring. Match that vocabulary
	// exactly before any substring check.
	switch lower {
	case classifier.LabelGym:
		return true
	case classifier.LabelNotGym, classifier.UncertainLabel:
		return false
	}

	for _, gym := range gymLabels {
		if strings.Contains(lower, strings.ToLower(gym)) {
			return true
		}
	}
	return false
}

func trustTier(verified bool, geo geofence.Result, prov Provenance) string {
	if !verified {
		return TrustLow
	}
	if geo.Provided && geo.Matched && prov == ProvenanceCamera {
		return TrustHigh
	}
	if (geo.Provided && !geo.Matched) || prov == ProvenanceGallery || !geo.Provided {
		return TrustMedium
	}
	return TrustLow
}

func selectReason(v Verdict, label string) string {
	switch {
	case v.Verified && v.RelaxedApplied:
		return reasonVerifiedRetry
	case v.Verified:
		return reasonVerified
	case label == classifier.UncertainLabel:
		return reasonUncertain
	case !v.GymRelated:
		return reasonNotGym
	case !v.AboveThreshold:
		return reasonBelowThreshold
	case !v.MarginOK:
		return reasonMarginTooSmall
	default:
		return reasonFallback
	}
}
