package geo

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medtransit/transport-bridge/internal/models"
)

func testFacilities() []models.Facility {
	return []models.Facility{
		{Name: "Memorial Hospital", Lat: 37.7849, Lng: -122.4094, City: "San Francisco", State: "CA"},
		{Name: "City Medical Center", Lat: 37.7749, Lng: -122.4194, City: "San Francisco", State: "CA"},
		{Name: "Regional Transplant Unit", Lat: 34.0522, Lng: -118.2437, City: "Los Angeles", State: "CA"},
	}
}

func TestNearest_SortedAscending(t *testing.T) {
	idx := NewFacilityIndex(testFacilities())

	results := idx.Nearest(37.7749, -122.4194, 3)
	require.Len(t, results, 3)

	assert.Equal(t, "City Medical Center", results[0].Name)
	assert.InDelta(t, 0, results[0].Distance, 0.001)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i].Distance, results[i-1].Distance)
	}
}

func TestNearest_Deterministic(t *testing.T) {
	idx := NewFacilityIndex(testFacilities())

	first := idx.Nearest(36.0, -120.0, 3)
	second := idx.Nearest(36.0, -120.0, 3)
	assert.Equal(t, first, second)
}

func TestNearest_StableTies(t *testing.T) {
	idx := NewFacilityIndex([]models.Facility{
		{Name: "First", Lat: 10, Lng: 10},
		{Name: "Second", Lat: 10, Lng: 10},
	})

	results := idx.Nearest(10, 10, 2)
	require.Len(t, results, 2)
	assert.Equal(t, "First", results[0].Name)
	assert.Equal(t, "Second", results[1].Name)
}

func TestNearest_KLargerThanSet(t *testing.T) {
	idx := NewFacilityIndex(testFacilities())
	assert.Len(t, idx.Nearest(0, 0, 10), 3)
}

func TestNearest_EmptyIndex(t *testing.T) {
	idx := NewFacilityIndex(nil)
	assert.Empty(t, idx.Nearest(0, 0, 5))
}

func TestHaversine(t *testing.T) {
	// SF to LA is roughly 347 miles great-circle.
	d := Haversine(37.7749, -122.4194, 34.0522, -118.2437)
	assert.InDelta(t, 347, d, 5)

	assert.Zero(t, Haversine(37.7749, -122.4194, 37.7749, -122.4194))
}

const facilityCSV = `NAME,CITY,STATE,LATITUDE,LONGITUDE,STATUS
Memorial Hospital,San Francisco,CA,37.7849,-122.4094,OPEN
Closed Clinic,Oakland,CA,37.8044,-122.2711,CLOSED
Duplicate Site,San Francisco,CA,37.7849,-122.4094,OPEN
No Coordinates,Fresno,CA,,,OPEN
Regional Transplant Unit,Los Angeles,CA,34.0522,-118.2437,OPEN
`

func TestConvertFacilityCSV(t *testing.T) {
	facilities, err := ConvertFacilityCSV(strings.NewReader(facilityCSV))
	require.NoError(t, err)

	require.Len(t, facilities, 2)
	assert.Equal(t, "Memorial Hospital", facilities[0].Name)
	assert.Equal(t, "San Francisco", facilities[0].City)
	assert.Equal(t, "CA", facilities[0].State)
	assert.Equal(t, 37.7849, facilities[0].Lat)
	assert.Equal(t, "Regional Transplant Unit", facilities[1].Name)
}

func TestConvertFacilityCSV_MissingColumns(t *testing.T) {
	_, err := ConvertFacilityCSV(strings.NewReader("FOO,BAR\n1,2\n"))
	assert.Error(t, err)
}
