package eventsource

import (
	"bufio"
	"io"
	"log"
	"strings"
	"sync"

	nmea "github.com/adrianmo/go-nmea"
	serial "github.com/jacobsa/go-serial/serial"

	"github.com/relabs-tech/camera_orientation/internal/orientation"
)

// NMEASource reads heading sentences from a serial compass or GNSS
// receiver and emits them as orientation samples: alpha from HDT true
// heading (RMC course over ground as fallback), beta and gamma levelled
// at 0 for a vehicle-mounted device. Screen rotation is fixed by
// mounting, as with the IMU source.
type NMEASource struct {
	mu        sync.Mutex
	port      io.ReadWriteCloser
	screenDeg float64
	orientFn  func(orientation.Sample)
	stop      chan struct{}
}

// NewNMEASource opens the serial port. 8N1, one-byte reads, same
// settings as the GNSS wiring on the Pi.
func NewNMEASource(portName string, baudRate uint, screenDeg float64) (*NMEASource, error) {
	serialOpts := serial.OpenOptions{
		PortName:              portName,
		BaudRate:              baudRate,
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       1,
		ParityMode:            serial.PARITY_NONE,
		InterCharacterTimeout: 0,
	}

	port, err := serial.Open(serialOpts)
	if err != nil {
		return nil, err
	}
	log.Printf("nmea source: serial port opened on %s at %d baud", portName, baudRate)

	return &NMEASource{
		port:      port,
		screenDeg: screenDeg,
		stop:      make(chan struct{}),
	}, nil
}

func (s *NMEASource) SubscribeOrientation(fn func(orientation.Sample)) (func(), error) {
	s.mu.Lock()
	first := s.orientFn == nil
	s.orientFn = fn
	s.mu.Unlock()

	if first {
		go s.readLoop()
	}
	return func() {
		s.mu.Lock()
		s.orientFn = nil
		s.mu.Unlock()
	}, nil
}

func (s *NMEASource) SubscribeScreen(fn func(deg float64)) (func(), error) {
	fn(s.screenDeg)
	return func() {}, nil
}

func (s *NMEASource) readLoop() {
	reader := bufio.NewReader(s.port)

	for {
		select {
		case <-s.stop:
			return
		default:
		}

		line, err := reader.ReadString('\n')
		if err != nil {
			log.Printf("nmea source: read error: %v", err)
			return
		}

		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "$") {
			continue
		}

		sentence, err := nmea.Parse(line)
		if err != nil {
			// noisy receivers emit partial sentences; skip quietly
			continue
		}

		var heading float64
		switch sentence.DataType() {
		case nmea.TypeHDT:
			heading = sentence.(nmea.HDT).Heading
		case nmea.TypeRMC:
			heading = sentence.(nmea.RMC).Course
		default:
			continue
		}

		s.mu.Lock()
		fn := s.orientFn
		s.mu.Unlock()
		if fn != nil {
			fn(orientation.NewSample(heading, 0, 0))
		}
	}
}

// Close stops the read loop and closes the port.
func (s *NMEASource) Close() error {
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
	return s.port.Close()
}
