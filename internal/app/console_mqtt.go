package app

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/camera_orientation/internal/config"
	"github.com/relabs-tech/camera_orientation/internal/orientation"
)

// RunConsoleMQTT subscribes to the published rotation topic and prints
// each message. Handy for checking what a renderer would receive.
func RunConsoleMQTT() error {
	cfg := config.Get()

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDConsole)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	log.Printf("console: connected to MQTT broker at %s", cfg.MQTTBroker)

	token := client.Subscribe(cfg.TopicRotation, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var rot orientation.Rotation
		if err := json.Unmarshal(msg.Payload(), &rot); err != nil {
			log.Printf("console: rotation unmarshal error: %v", err)
			return
		}

		if rot.Quat {
			fmt.Printf(
				"[ROT ]  x=%7.4f y=%7.4f z=%7.4f w=%7.4f\n",
				rot.Q.X, rot.Q.Y, rot.Q.Z, rot.Q.W,
			)
		} else {
			fmt.Printf(
				"[RAW ]  a=%7.4f b=%7.4f g=%7.4f screen=%7.4f\n",
				rot.Raw[0], rot.Raw[1], rot.Raw[2], rot.Raw[3],
			)
		}
	})
	token.Wait()
	if token.Error() != nil {
		return token.Error()
	}
	log.Printf("console: subscribed to %s", cfg.TopicRotation)

	// Wait for Ctrl+C
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Println("console: shutting down")
	client.Disconnect(250)
	return nil
}
