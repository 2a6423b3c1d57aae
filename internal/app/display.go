package app

import (
	"encoding/json"
	"fmt"
	"image"
	"log"
	"math"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/camera_orientation/internal/config"
	"github.com/relabs-tech/camera_orientation/internal/orientation"
	"github.com/relabs-tech/camera_orientation/internal/rotation"
)

// displayData holds the latest rotation for the display loop.
type displayData struct {
	mu      sync.RWMutex
	rot     orientation.Rotation
	haveRot bool
}

// RunDisplay shows the current camera rotation on an SSD1306 OLED,
// fed from the MQTT rotation topic.
func RunDisplay() error {
	cfg := config.Get()

	// Initialize periph
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("failed to initialize periph: %w", err)
	}

	// Open I2C bus
	bus, err := i2creg.Open("")
	if err != nil {
		return fmt.Errorf("failed to open I2C bus: %w", err)
	}
	defer bus.Close()

	dev, err := ssd1306.NewI2C(bus, &ssd1306.DefaultOpts)
	if err != nil {
		return fmt.Errorf("failed to initialize display: %w", err)
	}
	log.Printf("display: initialized at 0x%02X", cfg.DisplayI2CAddr)

	if err := showSplash(dev); err != nil {
		log.Printf("display: error showing splash: %v", err)
	}

	data := &displayData{}

	// Connect to MQTT
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDDisplay)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	log.Printf("display: connected to MQTT broker at %s", cfg.MQTTBroker)

	token := client.Subscribe(cfg.TopicRotation, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var rot orientation.Rotation
		if err := json.Unmarshal(msg.Payload(), &rot); err != nil {
			log.Printf("display: rotation unmarshal error: %v", err)
			return
		}
		data.mu.Lock()
		data.rot = rot
		data.haveRot = true
		data.mu.Unlock()
	})
	token.Wait()
	if token.Error() != nil {
		return token.Error()
	}
	log.Printf("display: subscribed to %s", cfg.TopicRotation)

	ticker := time.NewTicker(time.Duration(cfg.DisplayUpdateInterval) * time.Millisecond)
	defer ticker.Stop()

	log.Println("display: starting update loop")

	rotMath := rotation.NewMath()
	for range ticker.C {
		data.mu.RLock()
		rot := data.rot
		haveRot := data.haveRot
		data.mu.RUnlock()

		if err := updateRotationDisplay(dev, rotMath, rot, haveRot); err != nil {
			log.Printf("display: error updating display: %v", err)
		}
	}
	return nil
}

func updateRotationDisplay(dev *ssd1306.Dev, m rotation.Math, rot orientation.Rotation, haveRot bool) error {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, 128, 64))

	// Blank image
	for i := 0; i < 1024; i++ {
		img.Pix[i] = 0
	}

	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}

	if !haveRot {
		drawer.Dot = fixed.P(0, 26)
		drawer.DrawBytes([]byte("Camera rotation"))
		drawer.Dot = fixed.P(0, 39)
		drawer.DrawBytes([]byte("Waiting..."))
	} else if rot.Quat {
		x, y, z := m.ToEuler(rot.Q, rotation.OrderYXZ)

		drawer.Dot = fixed.P(0, 13)
		drawer.DrawBytes([]byte(fmt.Sprintf("Y: %6.1f", y*180/math.Pi)))

		drawer.Dot = fixed.P(0, 26)
		drawer.DrawBytes([]byte(fmt.Sprintf("P: %6.1f", x*180/math.Pi)))

		drawer.Dot = fixed.P(0, 39)
		drawer.DrawBytes([]byte(fmt.Sprintf("R: %6.1f", z*180/math.Pi)))

		drawer.Dot = fixed.P(0, 52)
		drawer.DrawBytes([]byte(fmt.Sprintf("w: %6.3f", rot.Q.W)))
	} else {
		drawer.Dot = fixed.P(0, 13)
		drawer.DrawBytes([]byte(fmt.Sprintf("a: %6.3f", rot.Raw[0])))

		drawer.Dot = fixed.P(0, 26)
		drawer.DrawBytes([]byte(fmt.Sprintf("b: %6.3f", rot.Raw[1])))

		drawer.Dot = fixed.P(0, 39)
		drawer.DrawBytes([]byte(fmt.Sprintf("g: %6.3f", rot.Raw[2])))

		drawer.Dot = fixed.P(0, 52)
		drawer.DrawBytes([]byte(fmt.Sprintf("s: %6.3f", rot.Raw[3])))
	}

	return dev.Draw(dev.Bounds(), img, image.Point{})
}

func showSplash(dev *ssd1306.Dev) error {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, 128, 64))

	// Blank image
	for i := 0; i < 1024; i++ {
		img.Pix[i] = 0
	}

	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}

	drawer.Dot = fixed.P(10, 26)
	drawer.DrawBytes([]byte("Camera"))

	drawer.Dot = fixed.P(5, 43)
	drawer.DrawBytes([]byte("Orientation"))

	return dev.Draw(dev.Bounds(), img, image.Point{})
}
