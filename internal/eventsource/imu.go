package eventsource

import (
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/devices/v3/mpu9250"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/camera_orientation/internal/orientation"
)

// IMUSource polls an MPU9250 over SPI and emits orientation samples
// from an accelerometer-only tilt estimate: beta/gamma from gravity,
// alpha 0 (no magnetometer fusion here). The screen rotation is fixed
// by mounting and reported once at subscribe time.
type IMUSource struct {
	mu        sync.Mutex
	imu       *mpu9250.MPU9250
	interval  time.Duration
	screenDeg float64
	orientFn  func(orientation.Sample)
	stop      chan struct{}
}

// NewIMUSource initializes the MPU9250 on the given SPI device with
// chip select on csPin, as on the inertial Pi rigs.
func NewIMUSource(spiDev, csPin string, interval time.Duration, screenDeg float64) (*IMUSource, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}

	cs := gpioreg.ByName(csPin)
	if cs == nil {
		return nil, fmt.Errorf("IMU CS pin %q not found", csPin)
	}

	tr, err := mpu9250.NewSpiTransport(spiDev, cs)
	if err != nil {
		return nil, fmt.Errorf("IMU SPI transport: %w", err)
	}

	imu, err := mpu9250.New(tr)
	if err != nil {
		return nil, fmt.Errorf("IMU new device: %w", err)
	}

	if err := imu.Init(); err != nil {
		return nil, fmt.Errorf("IMU init: %w", err)
	}

	if _, err := imu.SelfTest(); err != nil {
		return nil, fmt.Errorf("IMU self-test: %w", err)
	}
	if err := imu.Calibrate(); err != nil {
		return nil, fmt.Errorf("IMU calibrate: %w", err)
	}

	return &IMUSource{
		imu:       imu,
		interval:  interval,
		screenDeg: screenDeg,
		stop:      make(chan struct{}),
	}, nil
}

func (s *IMUSource) SubscribeOrientation(fn func(orientation.Sample)) (func(), error) {
	s.mu.Lock()
	first := s.orientFn == nil
	s.orientFn = fn
	s.mu.Unlock()

	if first {
		go s.poll()
	}
	return func() {
		s.mu.Lock()
		s.orientFn = nil
		s.mu.Unlock()
	}, nil
}

func (s *IMUSource) SubscribeScreen(fn func(deg float64)) (func(), error) {
	// Mounting is fixed; report the configured rotation once.
	fn(s.screenDeg)
	return func() {}, nil
}

func (s *IMUSource) poll() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			sample, err := s.read()
			if err != nil {
				log.Printf("imu source: read error: %v", err)
				continue
			}
			s.mu.Lock()
			fn := s.orientFn
			s.mu.Unlock()
			if fn != nil {
				fn(sample)
			}
		}
	}
}

// read computes a tilt-only sample from the accelerometer:
//
//	roll  = atan2(ay, az)
//	pitch = atan2(-ax, sqrt(ay^2 + az^2))
func (s *IMUSource) read() (orientation.Sample, error) {
	ax, err := s.imu.GetAccelerationX()
	if err != nil {
		return orientation.Sample{}, fmt.Errorf("acc X: %w", err)
	}
	ay, err := s.imu.GetAccelerationY()
	if err != nil {
		return orientation.Sample{}, fmt.Errorf("acc Y: %w", err)
	}
	az, err := s.imu.GetAccelerationZ()
	if err != nil {
		return orientation.Sample{}, fmt.Errorf("acc Z: %w", err)
	}

	// Relative ratios are enough for tilt; no unit conversion needed.
	fx := float64(ax)
	fy := float64(ay)
	fz := float64(az)

	rollDeg := math.Atan2(fy, fz) * 180 / math.Pi
	pitchDeg := math.Atan2(-fx, math.Sqrt(fy*fy+fz*fz)) * 180 / math.Pi

	// Device frame: beta is the front-back tilt, gamma the left-right
	// tilt. Alpha stays 0 until we fuse the magnetometer.
	return orientation.NewSample(0, pitchDeg, rollDeg), nil
}

// Close stops the poll loop.
func (s *IMUSource) Close() {
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
}
