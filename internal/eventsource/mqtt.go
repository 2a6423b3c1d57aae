package eventsource

import (
	"encoding/json"
	"log"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/camera_orientation/internal/orientation"
)

// screenEvent is the JSON payload on the screen rotation topic.
type screenEvent struct {
	Deg float64 `json:"deg"` // 0, 90, 180 or 270
}

// MQTTSource feeds orientation samples and screen rotations from MQTT
// topics. Payloads are JSON; retained messages replay the latest state
// to late subscribers, which suits last-value-wins semantics.
type MQTTSource struct {
	client      mqtt.Client
	topicSample string
	topicScreen string
}

// NewMQTTSource connects to the broker and returns a source for the
// two topics.
func NewMQTTSource(broker, clientID, topicSample, topicScreen string) (*MQTTSource, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	log.Printf("mqtt source: connected to broker at %s", broker)

	return &MQTTSource{
		client:      client,
		topicSample: topicSample,
		topicScreen: topicScreen,
	}, nil
}

func (s *MQTTSource) SubscribeOrientation(fn func(orientation.Sample)) (func(), error) {
	token := s.client.Subscribe(s.topicSample, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var sample orientation.Sample
		if err := json.Unmarshal(msg.Payload(), &sample); err != nil {
			log.Printf("mqtt source: sample unmarshal error: %v", err)
			return
		}
		fn(sample)
	})
	token.Wait()
	if token.Error() != nil {
		return nil, token.Error()
	}
	log.Printf("mqtt source: subscribed to %s", s.topicSample)

	topic := s.topicSample
	return func() { s.client.Unsubscribe(topic) }, nil
}

func (s *MQTTSource) SubscribeScreen(fn func(deg float64)) (func(), error) {
	token := s.client.Subscribe(s.topicScreen, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var ev screenEvent
		if err := json.Unmarshal(msg.Payload(), &ev); err != nil {
			log.Printf("mqtt source: screen unmarshal error: %v", err)
			return
		}
		fn(ev.Deg)
	})
	token.Wait()
	if token.Error() != nil {
		return nil, token.Error()
	}
	log.Printf("mqtt source: subscribed to %s", s.topicScreen)

	topic := s.topicScreen
	return func() { s.client.Unsubscribe(topic) }, nil
}

// Close disconnects from the broker.
func (s *MQTTSource) Close() {
	s.client.Disconnect(250)
}
