package classifier

import (
	"math"
	"sort"
)

// Tier identifiers carried on every result so the decision layer and audit
// records can attribute the classification.
const (
	TierScene  = "scene"
	TierLegacy = "legacy"
	TierRemote = "remote"
	TierNone   = "none"
)

// UncertainLabel is the canonical label used when no tier produced a usable
// answer.
const UncertainLabel = "uncertain"

// Labels of the remote tier's closed answer schema. LabelNotGym contains
// "gym" as a substring, so consumers must compare these exactly rather than
// by substring.
const (
	LabelGym    = "gym"
	LabelNotGym = "not_gym"
)

// uncertainConfidence is the confidence assigned to the canonical uncertain
// result. Low enough to never verify, high enough to be visibly non-zero in
// audit records.
const uncertainConfidence = 0.2

// maxRanked bounds the ranked prediction list on every result.
const maxRanked = 3

// Prediction is one (label, score) pair in a ranked result.
type Prediction struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Result is the classifier output consumed by the decision layer. Scores are
// rounded to 2 decimals and Ranked leads with the winning label, so
// downstream logic never re-normalizes. The legacy adapter may rank its
// collapsed gym signal first even when a runner-up scored higher; Margin
// goes negative in that case.
type Result struct {
	Label      string       `json:"label"`
	Confidence float64      `json:"confidence"`
	Ranked     []Prediction `json:"ranked"`
	Tier       string       `json:"tier"`
}

// Uncertain returns the canonical stand-in result used when every tier
// failed. Downstream logic never branches on emptiness.
func Uncertain() Result {
	return Result{
		Label:      UncertainLabel,
		Confidence: uncertainConfidence,
		Ranked:     []Prediction{{Label: UncertainLabel, Score: uncertainConfidence}},
		Tier:       TierNone,
	}
}

// NewResult builds a Result from raw predictions: sorts descending, trims to
// the ranked cap, and rounds scores to 2 decimals.
func NewResult(tier string, predictions []Prediction) Result {
	if len(predictions) == 0 {
		r := Uncertain()
		r.Tier = tier
		return r
	}

	sorted := make([]Prediction, len(predictions))
	copy(sorted, predictions)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score > sorted[j].Score
	})

	if len(sorted) > maxRanked {
		sorted = sorted[:maxRanked]
	}
	for i := range sorted {
		sorted[i].Score = round2(sorted[i].Score)
	}

	return Result{
		Label:      sorted[0].Label,
		Confidence: sorted[0].Score,
		Ranked:     sorted,
		Tier:       tier,
	}
}

// Margin returns the score gap between the top-ranked and second-ranked
// prediction, or the top score itself when no runner-up exists.
func (r Result) Margin() float64 {
	if len(r.Ranked) < 2 {
		return r.Confidence
	}
	return round2(r.Ranked[0].Score - r.Ranked[1].Score)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
