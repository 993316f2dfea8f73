package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/gymcheck/gymcheck-go/internal/datastore"
	"github.com/gymcheck/gymcheck-go/internal/errors"
)

const (
	historyDefaultLimit = 10
	historyMaxLimit     = 50
)

// HistoryEntry is one past verification attempt in the history listing.
type HistoryEntry struct {
	ID           uint     `json:"id"`
	Date         string   `json:"date"`
	Verified     bool     `json:"verified"`
	Label        string   `json:"label"`
	Confidence   float64  `json:"confidence"`
	Tier         string   `json:"tier"`
	Trust        string   `json:"trust"`
	Reason       string   `json:"reason"`
	ManualReview bool     `json:"manual_review"`
	Matched      bool     `json:"geofence_matched"`
	DistanceM    *float64 `json:"distance_m,omitempty"`
	CreatedAt    string   `json:"created_at"`
}

// HandleCheckinHistory lists a user's recent verification attempts, newest
// first.
func (c *Controller) HandleCheckinHistory(ctx echo.Context) error {
	userID := ctx.QueryParam("user_id")
	if userID == "" {
		userID = "anonymous"
	}

	limit := historyDefaultLimit
	if raw := ctx.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return c.HandleError(ctx, err, "limit must be a positive integer", http.StatusBadRequest)
		}
		limit = min(n, historyMaxLimit)
	}

	records, err := c.DS.RecentVerifications(userID, limit)
	if err != nil {
		return c.HandleError(ctx, err, "failed to read verification history", http.StatusInternalServerError)
	}

	entries := make([]HistoryEntry, 0, len(records))
	for i := range records {
		entries = append(entries, historyEntry(&records[i]))
	}
	return ctx.JSON(http.StatusOK, entries)
}

// HandleCheckinHistoryDetail returns one audit record by id.
func (c *Controller) HandleCheckinHistoryDetail(ctx echo.Context) error {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 32)
	if err != nil {
		return c.HandleError(ctx, err, "id must be numeric", http.StatusBadRequest)
	}

	record, err := c.DS.GetVerification(uint(id))
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return c.HandleError(ctx, err, "verification record not found", http.StatusNotFound)
	case err != nil:
		return c.HandleError(ctx, err, "failed to read verification record", http.StatusInternalServerError)
	}
	return ctx.JSON(http.StatusOK, historyEntry(&record))
}

func historyEntry(r *datastore.VerificationRecord) HistoryEntry {
	return HistoryEntry{
		ID:           r.ID,
		Date:         r.Date,
		Verified:     r.Verified,
		Label:        r.Label,
		Confidence:   r.Confidence,
		Tier:         r.Tier,
		Trust:        r.Trust,
		Reason:       r.Reason,
		ManualReview: r.ManualReview,
		Matched:      r.GeofenceMatched,
		DistanceM:    r.DistanceM,
		CreatedAt:    r.CreatedAt.Format(time.RFC3339),
	}
}
