// config.go: settings struct and functions to load application configuration
// from file, environment and defaults.
package conf

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// LogConfig contains settings for application logging.
type LogConfig struct {
	Enabled bool   // true to enable file logging
	Path    string // path to log file
}

// MainSettings contains top level application settings.
type MainSettings struct {
	Name string    // instance name, used in log attributes
	Log  LogConfig // file log settings
}

// ServerSettings contains settings for the HTTP server.
type ServerSettings struct {
	Port         string // port to listen on
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DatabaseSettings contains settings for the sqlite datastore.
type DatabaseSettings struct {
	Path string // path to the sqlite database file
}

// ReviewBand is the confidence interval that forces a manual review flag.
type ReviewBand struct {
	Low  float64
	High float64
}

// VerifySettings contains thresholds and heuristics for the verification
// decision pipeline.
type VerifySettings struct {
	Labels          []string   // scene label vocabulary for the zero-shot tier
	GymLabels       []string   // gym-indicating labels for the decision layer
	Threshold       float64    // minimum confidence for a verified verdict
	Margin          float64    // minimum top-1/top-2 score gap
	ReviewBand      ReviewBand // confidence band that flags manual review
	RelaxedFloor    float64    // relaxed confidence floor for checkin retries
	MinSidePx       int        // minimum image short side, below this we upscale
	MinBytes        int        // minimum image payload size
	MaxBytes        int        // maximum image payload size (meal path)
	RatioBound      float64    // symmetric aspect ratio band for screenshot heuristic
	BrightnessFloor float64    // minimum mean brightness (0-255)
	DailyLimit      int        // max checkin attempts per user per day
}

// GeofenceSettings contains settings for the geofence engine.
type GeofenceSettings struct {
	DefaultRadius float64 // default location radius in meters
}

// SceneSettings contains settings for the primary zero-shot scene classifier.
type SceneSettings struct {
	ModelPath string        // path to the scene model file
	Timeout   time.Duration // hard inference timeout
	Threads   int           // interpreter threads, 0 for automatic
}

// LegacySettings contains settings for the legacy fallback classifier.
type LegacySettings struct {
	ModelPath string        // path to the legacy model file
	LabelPath string        // path to the legacy label file
	Timeout   time.Duration // hard inference timeout
}

// RemoteSettings contains settings for a remote chat-completion classifier.
type RemoteSettings struct {
	Endpoint   string        // chat-completion endpoint URL
	APIKey     string        // bearer token, never logged
	Model      string        // provider model identifier
	Timeout    time.Duration // per-request timeout
	MaxRetries int           // additional attempts after the first
}

// Settings contains all application settings
type Settings struct {
	Debug bool // true to enable debug log level

	Main     MainSettings
	Server   ServerSettings
	Database DatabaseSettings
	Verify   VerifySettings
	Geofence GeofenceSettings
	Scene    SceneSettings
	Legacy   LegacySettings
	Remote   RemoteSettings
	MealScan RemoteSettings
}

// Load reads the configuration from defaults, an optional config file and
// environment variables, and returns the populated settings.
func Load() (*Settings, error) {
	settings := &Settings{}

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, err
	}

	return settings, nil
}

// initViper initializes viper with default values and reads the configuration file.
func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("/etc/gymcheck")

	viper.SetEnvPrefix("GYMCHECK")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaultConfig()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// No config file is fine, defaults plus environment apply.
	}
	return nil
}

