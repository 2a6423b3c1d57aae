package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
)

// Config holds all application configuration values.
type Config struct {
	// MQTT
	MQTTBroker           string
	MQTTClientIDProducer string
	MQTTClientIDConsole  string
	MQTTClientIDDisplay  string

	// Topics
	TopicRotation string // published camera rotation
	TopicSample   string // inbound raw orientation samples
	TopicScreen   string // inbound screen rotation events

	// Event source selection: "mock", "mqtt", "imu", "nmea"
	Source string

	// Permission flow
	RejectIfUnsupported bool
	DebugAlerts         bool

	// Screen rotation for headless sources with fixed mounting,
	// degrees: 0, 90, 180 or 270.
	ScreenRotationDeg float64

	// IMU Hardware
	IMUSPIDevice      string
	IMUCSPin          string
	IMUSampleInterval int // milliseconds

	// NMEA serial
	SerialPort string
	SerialBaud int

	// Timing
	TickInterval int // milliseconds, rotation publish rate

	// Web Server
	WebServerPort int

	// Display
	DisplayI2CAddr        uint16
	DisplayUpdateInterval int // milliseconds
}

// Package-level unexported variables for the singleton:
//   - globalConfig stays unexported so other packages cannot mutate it
//     without going through this package.
//   - configOnce ensures InitGlobal only runs once.
//   - configMu lets Get serve concurrent readers.
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Load reads the configuration file and returns a Config struct.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	cfg := &Config{}
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

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	switch key {
	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_PRODUCER":
		c.MQTTClientIDProducer = value
	case "MQTT_CLIENT_ID_CONSOLE":
		c.MQTTClientIDConsole = value
	case "MQTT_CLIENT_ID_DISPLAY":
		c.MQTTClientIDDisplay = value

	// Topics
	case "TOPIC_ROTATION":
		c.TopicRotation = value
	case "TOPIC_SAMPLE":
		c.TopicSample = value
	case "TOPIC_SCREEN":
		c.TopicScreen = value

	// Source
	case "SOURCE":
		switch value {
		case "mock", "mqtt", "imu", "nmea":
			c.Source = value
		default:
			return fmt.Errorf("SOURCE must be mock, mqtt, imu or nmea, got %q", value)
		}

	// Permission flow
	case "REJECT_IF_UNSUPPORTED":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid REJECT_IF_UNSUPPORTED %q: %w", value, err)
		}
		c.RejectIfUnsupported = b
	case "DEBUG_ALERTS":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid DEBUG_ALERTS %q: %w", value, err)
		}
		c.DebugAlerts = b

	// Screen rotation
	case "SCREEN_ROTATION_DEG":
		deg, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid SCREEN_ROTATION_DEG %q: %w", value, err)
		}
		if deg != 0 && deg != 90 && deg != 180 && deg != 270 {
			return fmt.Errorf("SCREEN_ROTATION_DEG must be 0, 90, 180 or 270, got %v", deg)
		}
		c.ScreenRotationDeg = deg

	// IMU Hardware
	case "IMU_SPI_DEVICE":
		c.IMUSPIDevice = value
	case "IMU_CS_PIN":
		c.IMUCSPin = value
	case "IMU_SAMPLE_INTERVAL":
		interval, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid IMU_SAMPLE_INTERVAL %q: %w", value, err)
		}
		c.IMUSampleInterval = interval

	// NMEA serial
	case "SERIAL_PORT":
		c.SerialPort = value
	case "SERIAL_BAUD":
		rate, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid SERIAL_BAUD %q: %w", value, err)
		}
		c.SerialBaud = rate

	// Timing
	case "TICK_INTERVAL":
		interval, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid TICK_INTERVAL %q: %w", value, err)
		}
		c.TickInterval = interval

	// Web Server
	case "WEB_SERVER_PORT":
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid WEB_SERVER_PORT %q: %w", value, err)
		}
		c.WebServerPort = port

	// Display
	case "DISPLAY_I2C_ADDR":
		addr, err := strconv.ParseUint(value, 0, 16)
		if err != nil {
			return fmt.Errorf("invalid DISPLAY_I2C_ADDR %q: %w", value, err)
		}
		c.DisplayI2CAddr = uint16(addr)
	case "DISPLAY_UPDATE_INTERVAL":
		interval, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid DISPLAY_UPDATE_INTERVAL %q: %w", value, err)
		}
		c.DisplayUpdateInterval = interval

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return nil
}

// validate checks that all required fields are set.
func (c *Config) validate() error {
	if c.MQTTBroker == "" {
		return fmt.Errorf("MQTT_BROKER is required")
	}
	if c.Source == "" {
		return fmt.Errorf("SOURCE is required")
	}
	if c.TickInterval == 0 {
		return fmt.Errorf("TICK_INTERVAL is required")
	}
	if c.TopicRotation == "" {
		return fmt.Errorf("TOPIC_ROTATION is required")
	}
	if c.Source == "imu" {
		if c.IMUSPIDevice == "" {
			return fmt.Errorf("IMU_SPI_DEVICE is required when SOURCE=imu")
		}
		if c.IMUCSPin == "" {
			return fmt.Errorf("IMU_CS_PIN is required when SOURCE=imu")
		}
		if c.IMUSampleInterval == 0 {
			return fmt.Errorf("IMU_SAMPLE_INTERVAL is required when SOURCE=imu")
		}
	}
	if c.Source == "nmea" {
		if c.SerialPort == "" {
			return fmt.Errorf("SERIAL_PORT is required when SOURCE=nmea")
		}
		if c.SerialBaud == 0 {
			return fmt.Errorf("SERIAL_BAUD is required when SOURCE=nmea")
		}
	}
	if c.Source == "mqtt" {
		if c.TopicSample == "" {
			return fmt.Errorf("TOPIC_SAMPLE is required when SOURCE=mqtt")
		}
		if c.TopicScreen == "" {
			return fmt.Errorf("TOPIC_SCREEN is required when SOURCE=mqtt")
		}
	}
	return nil
}

// InitGlobal initializes the global configuration from file. Uses
// sync.Once so repeated calls are harmless.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance. InitGlobal must be
// called first, or this will return nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
