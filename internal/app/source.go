package app

import (
	"fmt"
	"time"

	"github.com/relabs-tech/camera_orientation/internal/config"
	"github.com/relabs-tech/camera_orientation/internal/eventsource"
	"github.com/relabs-tech/camera_orientation/internal/permission"
)

// newSource builds the configured event source and its cleanup func.
// Headless sources (imu, nmea, mqtt, mock) have no consent capability,
// so the coordinator sees them as the ungated legacy variant.
func newSource(cfg *config.Config) (permission.EventSource, func(), error) {
	switch cfg.Source {
	case "mock":
		m := eventsource.NewMock()
		stop := m.Start(time.Duration(cfg.TickInterval) * time.Millisecond)
		return m, stop, nil

	case "mqtt":
		src, err := eventsource.NewMQTTSource(
			cfg.MQTTBroker,
			cfg.MQTTClientIDProducer+"-source",
			cfg.TopicSample,
			cfg.TopicScreen,
		)
		if err != nil {
			return nil, nil, fmt.Errorf("mqtt source: %w", err)
		}
		return src, src.Close, nil

	case "imu":
		src, err := eventsource.NewIMUSource(
			cfg.IMUSPIDevice,
			cfg.IMUCSPin,
			time.Duration(cfg.IMUSampleInterval)*time.Millisecond,
			cfg.ScreenRotationDeg,
		)
		if err != nil {
			return nil, nil, fmt.Errorf("imu source: %w", err)
		}
		return src, src.Close, nil

	case "nmea":
		src, err := eventsource.NewNMEASource(cfg.SerialPort, uint(cfg.SerialBaud), cfg.ScreenRotationDeg)
		if err != nil {
			return nil, nil, fmt.Errorf("nmea source: %w", err)
		}
		return src, func() { src.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unknown source %q", cfg.Source)
	}
}
