package api

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/patrickmn/go-cache"

	"github.com/gymcheck/gymcheck-go/internal/classifier"
	"github.com/gymcheck/gymcheck-go/internal/datastore"
	"github.com/gymcheck/gymcheck-go/internal/decision"
	"github.com/gymcheck/gymcheck-go/internal/errors"
	"github.com/gymcheck/gymcheck-go/internal/geofence"
	"github.com/gymcheck/gymcheck-go/internal/imagecheck"
)

// VerifyResponse is the verification verdict payload. Internal classifier
// failure is represented here, never as a non-200 status.
type VerifyResponse struct {
	Verified     bool                    `json:"verified"`
	Label        string                  `json:"label"`
	Confidence   float64                 `json:"confidence"`
	Reason       string                  `json:"reason"`
	ManualReview bool                    `json:"manual_review"`
	Trust        string                  `json:"trust"`
	Ranked       []classifier.Prediction `json:"ranked"`
	Thresholds   ThresholdInfo           `json:"thresholds"`
	Geofence     GeofenceInfo            `json:"geofence"`
	AICheck      AICheckInfo             `json:"ai_check"`
}

// ThresholdInfo echoes the decision parameters that produced the verdict.
type ThresholdInfo struct {
	Threshold      float64 `json:"threshold"`
	Margin         float64 `json:"margin"`
	RelaxedApplied bool    `json:"relaxed_applied"`
}

// GeofenceInfo summarizes the geofence evaluation.
type GeofenceInfo struct {
	Provided  bool     `json:"provided"`
	Matched   bool     `json:"matched"`
	Nearest   string   `json:"nearest,omitempty"`
	DistanceM *float64 `json:"distance_m,omitempty"`
}

// AICheckInfo summarizes how the classification was obtained. Per-tier
// failure detail stays in the logs.
type AICheckInfo struct {
	Tier     string `json:"tier"`
	Degraded bool   `json:"degraded"`
}

// HandleCheckinVerify runs the full verification pipeline including the
// remote tier, the relaxed retry rule and an audit write.
func (c *Controller) HandleCheckinVerify(ctx echo.Context) error {
	return c.handleVerify(ctx, c.CheckinPipeline, true)
}

// HandleProfileVerify verifies a profile photo with the local tiers only.
func (c *Controller) HandleProfileVerify(ctx echo.Context) error {
	return c.handleVerify(ctx, c.ProfilePipeline, false)
}

func (c *Controller) handleVerify(ctx echo.Context, pipeline Pipeline, checkin bool) error {
	userID := ctx.FormValue("user_id")
	if userID == "" {
		userID = "anonymous"
	}

	if checkin {
		if limited := c.checkDailyLimit(userID); limited {
			return c.HandleError(ctx, nil,
				"daily checkin limit reached, try again tomorrow", http.StatusTooManyRequests)
		}
	}

	data, declaredMIME, err := readUpload(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "image upload missing or unreadable", http.StatusBadRequest)
	}

	cfg := imagecheck.Config{
		MinSidePx:       c.Settings.Verify.MinSidePx,
		MinBytes:        c.Settings.Verify.MinBytes,
		MaxBytes:        c.Settings.Verify.MaxBytes,
		RatioBound:      c.Settings.Verify.RatioBound,
		BrightnessFloor: c.Settings.Verify.BrightnessFloor,
	}
	checked, err := imagecheck.CheckGym(data, declaredMIME, cfg)
	if err != nil {
		return c.rejectImage(ctx, err)
	}

	point := parsePoint(ctx)
	geo := c.evaluateGeofence(point)

	result, failures := pipeline.Classify(ctx.Request().Context(), checked)
	if len(failures) > 0 {
		c.apiLogger.Warn("classifier tiers failed",
			"user", userID, "failures", failures, "tier", result.Tier)
	}

	provenance := parseProvenance(ctx.FormValue("source"))
	retry := checkin && ctx.FormValue("retry") == "true"

	params := decision.ParamsFromSettings(&c.Settings.Verify)
	verdict := decision.Evaluate(params, decision.Input{
		Classification: result,
		Geofence:       geo,
		Provenance:     provenance,
		RelaxedRetry:   retry,
	})

	c.metrics.RecordVerdict(verdict.Verified, verdict.Trust)

	if checkin {
		c.bumpDailyCount(userID)
		c.writeAudit(userID, result, geo, verdict, params, provenance)
	}

	return ctx.JSON(http.StatusOK, VerifyResponse{
		Verified:     verdict.Verified,
		Label:        result.Label,
		Confidence:   result.Confidence,
		Reason:       verdict.Reason,
		ManualReview: verdict.ManualReview,
		Trust:        verdict.Trust,
		Ranked:       result.Ranked,
		Thresholds: ThresholdInfo{
			Threshold:      params.Threshold,
			Margin:         params.Margin,
			RelaxedApplied: verdict.RelaxedApplied,
		},
		Geofence: GeofenceInfo{
			Provided:  geo.Provided,
			Matched:   geo.Matched,
			Nearest:   geo.NearestName,
			DistanceM: geo.DistanceM,
		},
		AICheck: AICheckInfo{
			Tier:     result.Tier,
			Degraded: result.Tier == classifier.TierNone || len(failures) > 0,
		},
	})
}

// readUpload pulls the image part out of the multipart form.
func readUpload(ctx echo.Context) (data []byte, declaredMIME string, err error) {
	fileHeader, err := ctx.FormFile("image")
	if err != nil {
		return nil, "", err
	}

	file, err := fileHeader.Open()
	if err != nil {
		return nil, "", err
	}
	defer file.Close()

	data, err = io.ReadAll(file)
	if err != nil {
		return nil, "", err
	}
	return data, fileHeader.Header.Get("Content-Type"), nil
}

// rejectImage maps a preconditioner rejection to a 400 with a distinct
// code and actionable remediation text.
func (c *Controller) rejectImage(ctx echo.Context, err error) error {
	category := errors.CategoryOf(err)
	remediation := map[errors.ErrorCategory]string{
		errors.CategoryUnsupportedFormat:   "only JPEG, PNG and WebP photos are accepted",
		errors.CategoryInvalidFile:         "the photo could not be read, please retake it",
		errors.CategoryImageDecode:         "the photo could not be read, please retake it",
		errors.CategoryTooSmall:            "the photo is too small, please upload a larger one",
		errors.CategoryTooLarge:            "the photo is too large, please upload a smaller one",
		errors.CategoryScreenshotSuspected: "screenshots are not accepted, please take a live photo",
		errors.CategoryTooDark:             "the photo is too dark, please retake it with more light",
	}[category]
	if remediation == "" {
		remediation = "the photo could not be processed"
	}

	c.apiLogger.Info("image rejected", "category", category, "ip", ctx.RealIP())
	resp := NewErrorResponse(err, remediation, http.StatusBadRequest)
	resp.Error = string(category)
	return ctx.JSON(http.StatusBadRequest, resp)
}

func parsePoint(ctx echo.Context) *geofence.Point {
	latStr, lonStr := ctx.FormValue("latitude"), ctx.FormValue("longitude")
	if latStr == "" || lonStr == "" {
		return nil
	}
	lat, latErr := strconv.ParseFloat(latStr, 64)
	lon, lonErr := strconv.ParseFloat(lonStr, 64)
	if latErr != nil || lonErr != nil {
		return nil
	}
	return &geofence.Point{Latitude: lat, Longitude: lon}
}

func parseProvenance(source string) decision.Provenance {
	switch source {
	case "camera":
		return decision.ProvenanceCamera
	case "gallery":
		return decision.ProvenanceGallery
	default:
		return decision.ProvenanceUnknown
	}
}

// evaluateGeofence loads the registry and evaluates the supplied point.
// Registry read failures degrade to a not-provided result.
func (c *Controller) evaluateGeofence(point *geofence.Point) geofence.Result {
	stored, err := c.DS.GetAllLocations()
	if err != nil {
		c.apiLogger.Error("location registry read failed", "error", err)
		stored = nil
	}

	locations := make([]geofence.Location, 0, len(stored))
	for _, l := range stored {
		locations = append(locations, geofence.Location{
			ID:        l.ID,
			Name:      l.Name,
			Latitude:  l.Latitude,
			Longitude: l.Longitude,
			RadiusM:   l.RadiusM,
		})
	}
	return geofence.Evaluate(locations, point, c.Settings.Geofence.DefaultRadius)
}

// writeAudit persists one verification record. Failures are logged, the
// response is already decided.
func (c *Controller) writeAudit(userID string, result classifier.Result, geo geofence.Result,
	verdict decision.Verdict, params decision.Params, provenance decision.Provenance) {

	record := &datastore.VerificationRecord{
		UserID:          userID,
		Date:            time.Now().Format("2006-01-02"),
		Verified:        verdict.Verified,
		Label:           result.Label,
		Confidence:      result.Confidence,
		Tier:            result.Tier,
		Trust:           verdict.Trust,
		Reason:          verdict.Reason,
		ManualReview:    verdict.ManualReview,
		Threshold:       params.Threshold,
		Margin:          params.Margin,
		GPSProvided:     geo.Provided,
		GeofenceMatched: geo.Matched,
		NearestLocation: geo.NearestName,
		DistanceM:       geo.DistanceM,
		Provenance:      string(provenance),
	}
	if err := c.DS.SaveVerification(record); err != nil {
		c.apiLogger.Error("audit write failed", "user", userID, "error", err)
	}
}

func (c *Controller) dailyKey(userID string) string {
	return fmt.Sprintf("%s:%s", userID, time.Now().Format("2006-01-02"))
}

func (c *Controller) checkDailyLimit(userID string) bool {
	limit := c.Settings.Verify.DailyLimit
	if limit <= 0 {
		return false
	}
	if n, found := c.limits.Get(c.dailyKey(userID)); found {
		return n.(int) >= limit
	}
	return false
}

func (c *Controller) bumpDailyCount(userID string) {
	key := c.dailyKey(userID)
	// Seed then increment: go-cache increments under its own lock, so
	// concurrent requests from one user cannot lose counts.
	_ = c.limits.Add(key, 0, cache.DefaultExpiration)
	if _, err := c.limits.IncrementInt(key, 1); err != nil {
		c.limits.Set(key, 1, cache.DefaultExpiration)
	}
}
