package app

import (
	"fmt"
	"log"
	"time"

	"github.com/relabs-tech/camera_orientation/internal/config"
	"github.com/relabs-tech/camera_orientation/internal/eventsource"
	"github.com/relabs-tech/camera_orientation/internal/orientation"
	"github.com/relabs-tech/camera_orientation/internal/permission"
	"github.com/relabs-tech/camera_orientation/internal/rotation"
)

// RunConsole drives the pipeline from the mock source and prints the
// camera rotation per tick. Useful without any hardware or broker.
func RunConsole() error {
	cfg := config.Get()

	src := eventsource.NewMock()
	stopMock := src.Start(time.Duration(cfg.TickInterval) * time.Millisecond)
	defer stopMock()

	coord := permission.New(permission.Options{
		Math:        rotation.NewMath(),
		Events:      src,
		Permissions: src,
		DebugAlerts: cfg.DebugAlerts,
	})
	defer coord.Teardown()

	if err := coord.Initialize().Wait(); err != nil {
		return err
	}
	tr := coord.Transformer()
	src.EmitScreen(cfg.ScreenRotationDeg)

	log.Println("console: pipeline enabled, printing camera rotation")

	ticker := time.NewTicker(time.Duration(cfg.TickInterval) * time.Millisecond)
	defer ticker.Stop()

	for range ticker.C {
		rot := tr.Update()
		if rot == nil {
			continue
		}

		yaw, _ := tr.ExtractAxisAngle(rot.Q, orientation.AxisY)
		pitch, _ := tr.ExtractAxisAngle(rot.Q, orientation.AxisX)
		roll, _ := tr.ExtractAxisAngle(rot.Q, orientation.AxisZ)

		fmt.Printf(
			"QUAT x=%7.4f y=%7.4f z=%7.4f w=%7.4f  YAW=%6.2f PITCH=%6.2f ROLL=%6.2f\n",
			rot.Q.X, rot.Q.Y, rot.Q.Z, rot.Q.W,
			yaw, pitch, roll,
		)
	}
	return nil
}
