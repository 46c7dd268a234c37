package main

import (
	"flag"
	"os"

	"github.com/rs/zerolog"

	"github.com/medtransit/transport-bridge/pkg/file"
	"github.com/medtransit/transport-bridge/pkg/geo"
)

// facilityprep converts a raw facility CSV dataset into the lookup-ready
// JSON list the bridge and monitor load at startup. Only OPEN entries are
// kept and duplicate coordinates are collapsed.
func main() {
	inPath := flag.String("in", "facilities.csv", "path to the raw facility CSV")
	outPath := flag.String("out", "configs/facilities.json", "path to write the processed JSON list")
	flag.Parse()

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("component", "facilityprep").Logger()

	in, err := os.Open(*inPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to open facility CSV")
	}
	defer in.Close()

	facilities, err := geo.ConvertFacilityCSV(in)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to convert facility CSV")
	}

	fileClient := file.NewFileService()
	if err := fileClient.WriteJsonFile(*outPath, facilities); err != nil {
		logger.Fatal().Err(err).Msg("Failed to write facility list")
	}

	logger.Info().
		Int("facilities", len(facilities)).
		Str("output", *outPath).
		Msg("Facility list written")
}
