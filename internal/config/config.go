package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/relabs-tech/automute/internal/classifier"
	"github.com/relabs-tech/automute/internal/engine"
)

// Config holds all application configuration values.
type Config struct {
	// Detection
	DebounceIntervalMS   int
	ClassifierKind       classifier.Kind
	ProximityThresholdCm float64
	LuxThreshold         float64
	TiltLowerDeg         float64
	TiltUpperDeg         float64
	GravityYThreshold    float64

	// Sensor source: "mqtt", "serial", "imu" or "mock"
	SensorSource string

	// MQTT
	MQTTBroker   string
	MQTTClientID string

	// Topics
	TopicProximity   string
	TopicLight       string
	TopicAccel       string
	TopicGuard       string
	TopicDisplay     string
	TopicCommand     string
	TopicRingerSet   string
	TopicRingerState string
	TopicEvaluations string

	// Serial sensor bridge
	SerialPort     string
	SerialBaudRate int

	// IMU Hardware
	IMUSPIDevice      string
	IMUCSPin          string
	IMUSampleInterval int // milliseconds

	// Persistence
	StateFile string
	HistoryDB string

	// Web Server
	WebServerPort int

	// Display
	DisplayEnabled        bool
	DisplayI2CBus         string
	DisplayUpdateInterval int // milliseconds
}

// Package-level unexported variables for singleton pattern:
//   - globalConfig: only reachable through InitGlobal and Get.
//   - configOnce: InitGlobal runs Load at most once.
//   - configMu: write lock during initialization, read lock in Get.
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Default returns a Config with every optional key at its default.
func Default() *Config {
	th := classifier.DefaultThresholds()
	return &Config{
		DebounceIntervalMS:   300,
		ClassifierKind:       classifier.LightTilt,
		ProximityThresholdCm: th.ProximityCm,
		LuxThreshold:         th.Lux,
		TiltLowerDeg:         th.TiltLower,
		TiltUpperDeg:         th.TiltUpper,
		GravityYThreshold:    th.GravityY,

		SensorSource: "mqtt",

		MQTTBroker:   "tcp://localhost:1883",
		MQTTClientID: "automute",

		TopicProximity:   "automute/sensor/proximity",
		TopicLight:       "automute/sensor/light",
		TopicAccel:       "automute/sensor/accel",
		TopicGuard:       "automute/host/guard",
		TopicDisplay:     "automute/host/display",
		TopicCommand:     "automute/host/command",
		TopicRingerSet:   "automute/ringer/set",
		TopicRingerState: "automute/ringer/state",
		TopicEvaluations: "automute/evaluations",

		SerialBaudRate: 115200,

		IMUSampleInterval: 100,

		StateFile: "automute_state.yaml",
		HistoryDB: "automute_history.db",

		WebServerPort: 8080,

		DisplayUpdateInterval: 500,
	}
}

// Load reads the configuration file and returns a Config struct.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	cfg := Default()
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=VALUE
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := cfg.setValue(key, value); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func parseFloat(key, value string) (float64, error) {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return f, nil
}

func parseInt(key, value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return n, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	var err error
	switch key {
	// Detection
	case "DEBOUNCE_INTERVAL_MS":
		c.DebounceIntervalMS, err = parseInt(key, value)
		if err == nil && c.DebounceIntervalMS < 0 {
			return fmt.Errorf("DEBOUNCE_INTERVAL_MS must be >= 0, got %d", c.DebounceIntervalMS)
		}
	case "CLASSIFIER_KIND":
		c.ClassifierKind, err = classifier.ParseKind(value)
	case "PROXIMITY_THRESHOLD_CM":
		c.ProximityThresholdCm, err = parseFloat(key, value)
	case "LUX_THRESHOLD":
		c.LuxThreshold, err = parseFloat(key, value)
	case "TILT_LOWER_DEG":
		c.TiltLowerDeg, err = parseFloat(key, value)
	case "TILT_UPPER_DEG":
		c.TiltUpperDeg, err = parseFloat(key, value)
	case "GRAVITY_Y_THRESHOLD":
		c.GravityYThreshold, err = parseFloat(key, value)
		if err == nil && (c.GravityYThreshold < -1 || c.GravityYThreshold > 1) {
			return fmt.Errorf("GRAVITY_Y_THRESHOLD must be within [-1, 1], got %g", c.GravityYThreshold)
		}

	case "SENSOR_SOURCE":
		switch value {
		case "mqtt", "serial", "imu", "mock":
			c.SensorSource = value
		default:
			return fmt.Errorf("SENSOR_SOURCE must be mqtt, serial, imu or mock, got %q", value)
		}

	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID":
		c.MQTTClientID = value

	// Topics
	case "TOPIC_PROXIMITY":
		c.TopicProximity = value
	case "TOPIC_LIGHT":
		c.TopicLight = value
	case "TOPIC_ACCEL":
		c.TopicAccel = value
	case "TOPIC_GUARD":
		c.TopicGuard = value
	case "TOPIC_DISPLAY":
		c.TopicDisplay = value
	case "TOPIC_COMMAND":
		c.TopicCommand = value
	case "TOPIC_RINGER_SET":
		c.TopicRingerSet = value
	case "TOPIC_RINGER_STATE":
		c.TopicRingerState = value
	case "TOPIC_EVALUATIONS":
		c.TopicEvaluations = value

	// Serial
	case "SERIAL_PORT":
		c.SerialPort = value
	case "SERIAL_BAUD_RATE":
		c.SerialBaudRate, err = parseInt(key, value)

	// IMU Hardware
	case "IMU_SPI_DEVICE":
		c.IMUSPIDevice = value
	case "IMU_CS_PIN":
		c.IMUCSPin = value
	case "IMU_SAMPLE_INTERVAL":
		c.IMUSampleInterval, err = parseInt(key, value)

	// Persistence
	case "STATE_FILE":
		c.StateFile = value
	case "HISTORY_DB":
		c.HistoryDB = value

	// Web Server
	case "WEB_SERVER_PORT":
		c.WebServerPort, err = parseInt(key, value)

	// Display
	case "DISPLAY_ENABLED":
		c.DisplayEnabled, err = strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid DISPLAY_ENABLED %q: %w", value, err)
		}
	case "DISPLAY_I2C_BUS":
		c.DisplayI2CBus = value
	case "DISPLAY_UPDATE_INTERVAL":
		c.DisplayUpdateInterval, err = parseInt(key, value)

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return err
}

// validate checks that all required fields are set and consistent.
func (c *Config) validate() error {
	if c.TiltLowerDeg >= c.TiltUpperDeg {
		return fmt.Errorf("TILT_LOWER_DEG (%g) must be below TILT_UPPER_DEG (%g)", c.TiltLowerDeg, c.TiltUpperDeg)
	}
	if c.TiltLowerDeg < 0 || c.TiltUpperDeg > 180 {
		return fmt.Errorf("tilt range must lie within [0, 180], got (%g, %g)", c.TiltLowerDeg, c.TiltUpperDeg)
	}
	if c.ProximityThresholdCm < 0 {
		return fmt.Errorf("PROXIMITY_THRESHOLD_CM must be >= 0, got %g", c.ProximityThresholdCm)
	}
	if c.MQTTBroker == "" {
		return fmt.Errorf("MQTT_BROKER is required")
	}
	switch c.SensorSource {
	case "serial":
		if c.SerialPort == "" {
			return fmt.Errorf("SERIAL_PORT is required when SENSOR_SOURCE=serial")
		}
		if c.SerialBaudRate <= 0 {
			return fmt.Errorf("SERIAL_BAUD_RATE must be > 0")
		}
	case "imu":
		if c.IMUSPIDevice == "" {
			return fmt.Errorf("IMU_SPI_DEVICE is required when SENSOR_SOURCE=imu")
		}
		if c.IMUSampleInterval <= 0 {
			return fmt.Errorf("IMU_SAMPLE_INTERVAL must be > 0")
		}
	}
	if c.DisplayEnabled && c.DisplayUpdateInterval <= 0 {
		return fmt.Errorf("DISPLAY_UPDATE_INTERVAL must be > 0")
	}
	return nil
}

// EngineSettings converts the detection keys into engine settings.
func (c *Config) EngineSettings() engine.Settings {
	return engine.Settings{
		Classifier: c.ClassifierKind,
		Thresholds: classifier.Thresholds{
			ProximityCm: c.ProximityThresholdCm,
			Lux:         c.LuxThreshold,
			GravityY:    c.GravityYThreshold,
			TiltLower:   c.TiltLowerDeg,
			TiltUpper:   c.TiltUpperDeg,
		},
		DebounceInterval: time.Duration(c.DebounceIntervalMS) * time.Millisecond,
	}
}

// InitGlobal initializes the global configuration from file.
// Uses sync.Once to ensure this only runs once, even if called multiple times.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance.
// InitGlobal must be called first, or this will return nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
