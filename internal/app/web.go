package app

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/relabs-tech/camera_orientation/internal/config"
	"github.com/relabs-tech/camera_orientation/internal/eventsource"
	"github.com/relabs-tech/camera_orientation/internal/permission"
	"github.com/relabs-tech/camera_orientation/internal/rotation"
)

// RunWeb serves the browser bridge: a page connects over the websocket,
// streams deviceorientation events up and answers the consent request;
// the latest camera rotation is exposed as JSON for anything that wants
// to poll it.
func RunWeb() error {
	cfg := config.Get()

	bridge := eventsource.NewBridge()

	// Page-wide clicks arriving over the bridge are the natural retry
	// surface for refused requests.
	permission.DefaultRetrySurface = bridge

	coord := permission.New(permission.Options{
		Math:        rotation.NewMath(),
		Events:      bridge,
		Permissions: bridge,
		Gesture:     bridge,
		OnGesture: func() {
			log.Println("web: user gesture received, requesting permission")
		},
		RejectIfUnsupported: cfg.RejectIfUnsupported,
		DebugAlerts:         cfg.DebugAlerts,
	})
	defer coord.Teardown()

	ready := coord.Initialize()
	go func() {
		if err := ready.Wait(); err != nil {
			log.Printf("web: permission handshake rejected, serving without sensor: %v", err)
			return
		}
		log.Println("web: sensor subscription enabled")
	}()
	tr := coord.Transformer()

	http.HandleFunc("/ws", bridge.Handler())

	// JSON API endpoint: latest camera rotation
	http.HandleFunc("/api/rotation", func(w http.ResponseWriter, r *http.Request) {
		rot := tr.Update()
		if rot == nil {
			http.Error(w, "no data yet", http.StatusServiceUnavailable)
			return
		}
		out := *rot

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(out); err != nil {
			log.Printf("json encode error: %v", err)
		}
	})

	// Static files from ./web as the root
	fs := http.FileServer(http.Dir("web"))
	http.Handle("/", fs)

	addr := fmt.Sprintf(":%d", cfg.WebServerPort)
	log.Printf("web server listening on %s", addr)
	return http.ListenAndServe(addr, nil)
}
