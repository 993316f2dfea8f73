package datastore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gymcheck/gymcheck-go/internal/conf"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	settings := &conf.Settings{}
	settings.Database.Path = filepath.Join(t.TempDir(), "gymcheck.db")

	store := New(settings).(*SQLiteStore)
	require.NoError(t, store.Open())
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestVerificationRecordRoundTrip(t *testing.T) {
	store := openTestStore(t)

	distance := 42.7
	record := &VerificationRecord{
		UserID:          "user-1",
		Date:            "2026-08-29",
		Verified:        true,
		Label:           "gym interior",
		Confidence:      0.82,
		Tier:            "scene",
		Trust:           "high",
		Reason:          "gym environment confirmed",
		Threshold:       0.40,
		Margin:          0.05,
		GPSProvided:     true,
		GeofenceMatched: true,
		NearestLocation: "Downtown Gym",
		DistanceM:       &distance,
		Provenance:      "camera",
	}
	require.NoError(t, store.SaveVerification(record))
	require.NotZero(t, record.ID)

	got, err := store.GetVerification(record.ID)
	require.NoError(t, err)
	assert.Equal(t, "user-1", got.UserID)
	assert.Equal(t, "scene", got.Tier)
	require.NotNil(t, got.DistanceM)
	assert.InDelta(t, 42.7, *got.DistanceM, 1e-9)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestCountVerificationsForDate(t *testing.T) {
	store := openTestStore(t)

	for i := 0; i < 3; i++ {
		require.NoError(t, store.SaveVerification(&VerificationRecord{
			UserID: "user-1", Date: "2026-08-29",
		}))
	}
	require.NoError(t, store.SaveVerification(&VerificationRecord{
		UserID: "user-1", Date: "2026-08-28",
	}))
	require.NoError(t, store.SaveVerification(&VerificationRecord{
		UserID: "user-2", Date: "2026-08-29",
	}))

	count, err := store.CountVerificationsForDate("user-1", "2026-08-29")
	require.NoError(t, err)
	assert.EqualValues(t, 3, count)
}

func TestRecentVerificationsOrderAndLimit(t *testing.T) {
	store := openTestStore(t)

	labels := []string{"first", "second", "third"}
	for _, label := range labels {
		require.NoError(t, store.SaveVerification(&VerificationRecord{
			UserID: "user-1", Label: label,
		}))
	}

	records, err := store.RecentVerifications("user-1", 2)
	require.NoError(t, err)
	require.Len(t, records, 2)
}

func TestLocationRegistry(t *testing.T) {
	store := openTestStore(t)

	require.NoError(t, store.SaveLocation(&Location{
		Name: "Downtown Gym", Latitude: 52.52, Longitude: 13.405, RadiusM: 200,
	}))
	require.NoError(t, store.SaveLocation(&Location{
		Name: "Riverside Fitness", Latitude: 52.5, Longitude: 13.39,
	}))

	t.Run("upsert by name", func(t *testing.T) {
		require.NoError(t, store.SaveLocation(&Location{
			Name: "Downtown Gym", Latitude: 52.521, Longitude: 13.406, RadiusM: 120,
		}))

		locations, err := store.GetAllLocations()
		require.NoError(t, err)
		require.Len(t, locations, 2)
		assert.Equal(t, "Downtown Gym", locations[0].Name)
		assert.InDelta(t, 120, locations[0].RadiusM, 1e-9)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, store.DeleteLocation("Riverside Fitness"))
		locations, err := store.GetAllLocations()
		require.NoError(t, err)
		require.Len(t, locations, 1)
	})
}
