package geo

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/medtransit/transport-bridge/internal/models"
)

// ConvertFacilityCSV reads a raw facility dataset and produces the
// lookup-ready list the bridge loads at startup. Rows without a name or
// parseable coordinates are skipped, only entries with STATUS "OPEN" are
// kept, and duplicate coordinates are collapsed to the first occurrence.
func ConvertFacilityCSV(r io.Reader) ([]models.Facility, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	col := func(name string) int {
		for i, h := range header {
			if strings.EqualFold(strings.TrimSpace(h), name) {
				return i
			}
		}
		return -1
	}

	nameIdx := col("NAME")
	latIdx := col("LATITUDE")
	lngIdx := col("LONGITUDE")
	cityIdx := col("CITY")
	stateIdx := col("STATE")
	statusIdx := col("STATUS")
	if nameIdx < 0 || latIdx < 0 || lngIdx < 0 {
		return nil, fmt.Errorf("CSV header missing NAME/LATITUDE/LONGITUDE columns")
	}

	field := func(record []string, idx int) string {
		if idx < 0 || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	var facilities []models.Facility
	seen := make(map[string]struct{})

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV record: %w", err)
		}

		name := field(record, nameIdx)
		lat, latErr := strconv.ParseFloat(field(record, latIdx), 64)
		lng, lngErr := strconv.ParseFloat(field(record, lngIdx), 64)
		if name == "" || latErr != nil || lngErr != nil {
			continue
		}
		if statusIdx >= 0 && field(record, statusIdx) != "OPEN" {
			continue
		}

		key := fmt.Sprintf("%v,%v", lat, lng)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		facilities = append(facilities, models.Facility{
			Name:  name,
			Lat:   lat,
			Lng:   lng,
			City:  field(record, cityIdx),
			State: field(record, stateIdx),
		})
	}

	return facilities, nil
}
