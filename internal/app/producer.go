package app

import (
	"encoding/json"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/camera_orientation/internal/config"
	"github.com/relabs-tech/camera_orientation/internal/eventsource"
	"github.com/relabs-tech/camera_orientation/internal/orientation"
	"github.com/relabs-tech/camera_orientation/internal/permission"
	"github.com/relabs-tech/camera_orientation/internal/rotation"
)

// RunProducer feeds the configured event source through the permission
// coordinator and publishes the camera rotation as retained JSON on
// every tick.
func RunProducer() error {
	log.Println("starting camera-orientation rotation producer")

	cfg := config.Get()

	src, cleanup, err := newSource(cfg)
	if err != nil {
		log.Fatalf("failed to build event source: %v", err)
		return err
	}
	defer cleanup()

	coord := permission.New(permission.Options{
		Math:                rotation.NewMath(),
		Events:              src,
		RejectIfUnsupported: cfg.RejectIfUnsupported,
		DebugAlerts:         cfg.DebugAlerts,
	})
	defer coord.Teardown()

	if err := coord.Initialize().Wait(); err != nil {
		// Rejection means "proceed without this sensor", not a fatal
		// startup failure.
		log.Printf("WARNING: permission handshake rejected, running without sensor: %v", err)
	}
	tr := coord.Transformer()

	// Headless mock has no screen rotation events of its own; seed the
	// configured mounting once the subscription is live.
	if m, ok := src.(*eventsource.Mock); ok {
		m.EmitScreen(cfg.ScreenRotationDeg)
	}

	// --- connect to MQTT ---
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDProducer)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		log.Fatalf("MQTT connect error: %v", token.Error())
		return token.Error()
	}
	defer client.Disconnect(250)

	log.Println("connected to MQTT, starting publish loop")

	ticker := time.NewTicker(time.Duration(cfg.TickInterval) * time.Millisecond)
	defer ticker.Stop()

	for t := range ticker.C {
		rot := tr.Update()
		if rot == nil {
			continue
		}
		// Update reuses its output buffer; copy before handing off.
		out := *rot

		payload, err := json.Marshal(out)
		if err != nil {
			log.Printf("json marshal error (rotation): %v", err)
			continue
		}
		if token := client.Publish(cfg.TopicRotation, 0, true, payload); token.Wait() && token.Error() != nil {
			log.Printf("MQTT publish error (rotation): %v", token.Error())
			continue
		}

		logRotation(t, tr, &out)
	}
	return nil
}

func logRotation(t time.Time, tr *orientation.Transformer, rot *orientation.Rotation) {
	if !rot.Quat {
		log.Printf("%s tick: raw a=%.3f b=%.3f g=%.3f screen=%.3f",
			t.Format(time.RFC3339), rot.Raw[0], rot.Raw[1], rot.Raw[2], rot.Raw[3])
		return
	}

	yaw, yerr := tr.ExtractAxisAngle(rot.Q, orientation.AxisY)
	pitch, perr := tr.ExtractAxisAngle(rot.Q, orientation.AxisX)
	roll, rerr := tr.ExtractAxisAngle(rot.Q, orientation.AxisZ)
	if yerr != nil || perr != nil || rerr != nil {
		log.Printf("%s tick: quat x=%.4f y=%.4f z=%.4f w=%.4f",
			t.Format(time.RFC3339), rot.Q.X, rot.Q.Y, rot.Q.Z, rot.Q.W)
		return
	}
	log.Printf("%s tick: quat x=%.4f y=%.4f z=%.4f w=%.4f | yaw=%.3f pitch=%.3f roll=%.3f",
		t.Format(time.RFC3339), rot.Q.X, rot.Q.Y, rot.Q.Z, rot.Q.W, yaw, pitch, roll)
}
