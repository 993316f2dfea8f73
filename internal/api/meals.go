package api

import (
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/gymcheck/gymcheck-go/internal/errors"
	"github.com/gymcheck/gymcheck-go/internal/imagecheck"
)

// MealDetectRequest carries one base64-encoded meal photo.
type MealDetectRequest struct {
	ImageBase64 string `json:"image_base64"`
}

// HandleMealDetect runs the meal photo through the remote food model and
// returns the normalized item list.
func (c *Controller) HandleMealDetect(ctx echo.Context) error {
	if c.Meals == nil || !c.Meals.Enabled() {
		return c.HandleError(ctx, nil, "meal detection is not configured", http.StatusServiceUnavailable)
	}

	var req MealDetectRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, err, "invalid request body", http.StatusBadRequest)
	}
	if req.ImageBase64 == "" {
		return c.HandleError(ctx, nil, "image_base64 is required", http.StatusBadRequest)
	}

	// Tolerate data-URL prefixes from mobile clients.
	encoded := req.ImageBase64
	if idx := strings.Index(encoded, ";base64,"); idx >= 0 {
		encoded = encoded[idx+len(";base64,"):]
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return c.HandleError(ctx, err, "image_base64 is not valid base64", http.StatusBadRequest)
	}

	checked, err := imagecheck.CheckMeal(data, "", imagecheck.Config{
		MaxBytes:        c.Settings.Verify.MaxBytes,
		RatioBound:      c.Settings.Verify.RatioBound,
		BrightnessFloor: c.Settings.Verify.BrightnessFloor,
	})
	if err != nil {
		return c.rejectImage(ctx, err)
	}

	scan, err := c.Meals.Detect(ctx.Request().Context(), checked)
	if err != nil {
		status := http.StatusBadGateway
		if errors.CategoryOf(err) == errors.CategoryProviderError {
			status = http.StatusServiceUnavailable
		}
		return c.HandleError(ctx, err, "meal detection is temporarily unavailable", status)
	}

	return ctx.JSON(http.StatusOK, scan)
}
