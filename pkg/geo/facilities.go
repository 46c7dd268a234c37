package geo

import (
	"fmt"
	"math"
	"sort"

	"github.com/medtransit/transport-bridge/internal/models"
	"github.com/medtransit/transport-bridge/pkg/file"
)

// earthRadiusMiles is the radius used for great-circle distances.
const earthRadiusMiles = 3959

// FacilityIndex answers nearest-K queries over a static set of facilities.
// The set is loaded once at startup and read-only thereafter, so queries are
// safe to run concurrently with ingestion without coordination.
type FacilityIndex struct {
	facilities []models.Facility
}

// NewFacilityIndex builds an index over the given facilities.
func NewFacilityIndex(facilities []models.Facility) *FacilityIndex {
	return &FacilityIndex{facilities: facilities}
}

// LoadFacilityIndex reads the precomputed facility list from a JSON file.
func LoadFacilityIndex(filePath string, fileClient file.FileOperations) (*FacilityIndex, error) {
	var facilities []models.Facility
	if err := fileClient.ReadJsonFile(filePath, &facilities); err != nil {
		return nil, fmt.Errorf("failed to load facility list: %w", err)
	}
	return NewFacilityIndex(facilities), nil
}

// Len returns the number of facilities in the index.
func (idx *FacilityIndex) Len() int {
	return len(idx.facilities)
}

// Nearest returns the k facilities closest to the query point, sorted by
// ascending haversine distance. Ties keep the original list order.
func (idx *FacilityIndex) Nearest(lat, lng float64, k int) []models.FacilityDistance {
	results := make([]models.FacilityDistance, 0, len(idx.facilities))
	for _, f := range idx.facilities {
		results = append(results, models.FacilityDistance{
			Facility: f,
			Distance: Haversine(lat, lng, f.Lat, f.Lng),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Distance < results[j].Distance
	})

	if k < 0 {
		k = 0
	}
	if k > len(results) {
		k = len(results)
	}
	return results[:k]
}

// Haversine computes the great-circle distance in miles between two points.
func Haversine(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := (lat2 - lat1) * math.Pi / 180
	dLng := (lng2 - lng1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*
			math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusMiles * c
}
