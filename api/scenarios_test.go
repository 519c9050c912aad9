/*
scenarios_test.go - Demo scenario tests

Tests for:
- Scenario listing
- Loading seeds resources and warms dashboards
- Reload resets previous data
- Unknown scenario handling
*/
package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScenarios_List(t *testing.T) {
	_, router := newTestAPI(t)

	rec := doJSON(t, router, "GET", "/api/scenarios", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	list := decodeJSON[[]ScenarioDTO](t, rec)
	require.NotEmpty(t, list)

	names := make([]string, 0, len(list))
	for _, s := range list {
		names = append(names, s.Name)
	}
	assert.Contains(t, names, "hospital")
	assert.Contains(t, names, "blood-drive")
	assert.Contains(t, names, "night-shift")
}

func TestScenarios_LoadHospital(t *testing.T) {
	// GIVEN: A fresh store
	_, router := newTestAPI(t)

	// WHEN: Loading the full hospital scenario
	rec := doJSON(t, router, "POST", "/api/scenarios/hospital", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// THEN: Rooms, bags, fleet and drivers all exist
	rec = doJSON(t, router, "GET", "/api/resources?kind=room", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeJSON[[]ResourceDTO](t, rec), 4)

	rec = doJSON(t, router, "GET", "/api/resources?kind=consumable-bag", nil)
	assert.Len(t, decodeJSON[[]ResourceDTO](t, rec), 16)

	rec = doJSON(t, router, "GET", "/api/resources?kind=vehicle", nil)
	assert.Len(t, decodeJSON[[]ResourceDTO](t, rec), 2)

	rec = doJSON(t, router, "GET", "/api/resources?kind=crew", nil)
	assert.Len(t, decodeJSON[[]ResourceDTO](t, rec), 3)

	// AND: The global dashboard is pre-warmed with the seeded units
	rec = doJSON(t, router, "GET", "/api/dashboards", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	snap := decodeJSON[SnapshotDTO](t, rec)
	assert.Equal(t, 25, snap.ResourcesTotal)
	assert.Zero(t, snap.UnitsOccupied)
}

func TestScenarios_ReloadResets(t *testing.T) {
	// GIVEN: The hospital scenario with extra data on top
	_, router := newTestAPI(t)
	rec := doJSON(t, router, "POST", "/api/scenarios/hospital", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = doJSON(t, router, "POST", "/api/rooms", CreateRoomRequest{
		Number: "999", Type: "single", Department: "extra",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	// WHEN: Loading the blood-drive scenario
	rec = doJSON(t, router, "POST", "/api/scenarios/blood-drive", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// THEN: Only the blood-drive inventory remains
	rec = doJSON(t, router, "GET", "/api/resources?kind=room", nil)
	assert.Empty(t, decodeJSON[[]ResourceDTO](t, rec))

	rec = doJSON(t, router, "GET", "/api/resources?kind=consumable-bag", nil)
	assert.Len(t, decodeJSON[[]ResourceDTO](t, rec), 4)
}

func TestScenarios_UnknownIs404(t *testing.T) {
	_, router := newTestAPI(t)

	rec := doJSON(t, router, "POST", "/api/scenarios/mars-base", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
