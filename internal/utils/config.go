package utils

import (
	"time"

	"github.com/medtransit/transport-bridge/internal/models"
	"github.com/medtransit/transport-bridge/pkg/file"
)

// Config represents the structure of the configuration file.
type Config struct {
	Server struct {
		Addr string `yaml:"addr"` // HTTP listen address for the bridge API
	} `yaml:"server"`

	Telemetry struct {
		DefaultDeviceID string `yaml:"default_device_id"` // Device ID assigned when a source omits one
	} `yaml:"telemetry"`

	Sources struct {
		Serial struct {
			Enabled  bool   `yaml:"enabled"`   // Enable/disable the serial ingestion source
			Port     string `yaml:"port"`      // Serial port the telemetry device is connected to
			BaudRate int    `yaml:"baud_rate"` // Baud rate for the serial connection
		} `yaml:"serial"`

		MQTT struct {
			Enabled       bool   `yaml:"enabled"`        // Enable/disable the MQTT ingestion source
			Broker        string `yaml:"broker"`         // MQTT broker address
			ClientID      string `yaml:"client_id"`      // MQTT client ID
			Topic         string `yaml:"topic"`          // Topic field devices publish raw telemetry to
			QOS           int    `yaml:"qos"`            // MQTT QoS level for ingestion messages
			CACertificate string `yaml:"ca_certificate"` // Optional path to the broker CA certificate
		} `yaml:"mqtt"`
	} `yaml:"sources"`

	Alerting struct {
		ShockWarningThreshold float64                     `yaml:"shock_warning_threshold"` // g-force above this = warning
		ShockAlertThreshold   float64                     `yaml:"shock_alert_threshold"`   // g-force above this = critical
		DefaultTempRange      models.TempRange            `yaml:"default_temp_range"`      // Safe range for unassigned devices
		OrganRanges           map[string]models.TempRange `yaml:"organ_ranges"`            // Safe range per organ/payload type
		DeviceOrgans          map[string]string           `yaml:"device_organs"`           // Device ID to organ type assignment
		SynthesizePath        bool                        `yaml:"synthesize_path"`         // Generate pseudo-path points without GPS
	} `yaml:"alerting"`

	Facilities struct {
		File string `yaml:"file"` // Path to the precomputed facility list (JSON)
	} `yaml:"facilities"`

	Monitor struct {
		BridgeURL       string        `yaml:"bridge_url"`       // WebSocket URL of the bridge
		ReconnectDelay  time.Duration `yaml:"reconnect_delay"`  // Fixed delay between reconnect attempts (in seconds)
		SuggestionCount int           `yaml:"suggestion_count"` // Facilities per redirect suggestion
	} `yaml:"monitor"`
}

// LoadConfig loads the YAML configuration from the specified file.
// It returns a pointer to the Config struct and an error if loading fails.
func LoadConfig(filename string, fileClient file.FileOperations) (*Config, error) {
	var config Config
	err := fileClient.ReadYamlFile(filename, &config)
	if err != nil {
		return nil, err
	}

	return &config, nil
}
