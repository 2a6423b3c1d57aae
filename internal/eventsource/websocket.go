package eventsource

import (
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/relabs-tech/camera_orientation/internal/orientation"
	"github.com/relabs-tech/camera_orientation/internal/permission"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// bridgeFrame is one JSON message on the browser websocket, both
// directions. The page streams deviceorientation / orientationchange /
// click events up; the server sends request_permission down and the
// page answers with a permission frame.
type bridgeFrame struct {
	Type string `json:"type"` // "orientation", "screen", "gesture", "permission", "request_permission"

	// orientation
	Alpha *float64 `json:"alpha,omitempty"`
	Beta  *float64 `json:"beta,omitempty"`
	Gamma *float64 `json:"gamma,omitempty"`

	// screen
	Deg *float64 `json:"deg,omitempty"`

	// permission reply
	Outcome string `json:"outcome,omitempty"` // "granted" / "denied"
	Error   string `json:"error,omitempty"`   // "not_allowed" or free text
}

// Bridge relays a browser page's sensor events to the pipeline over a
// websocket. It is the event source, the page-wide gesture surface and
// the permission requester in one: the actual consent prompt runs in
// the browser, the bridge just forwards the request and classifies the
// reply.
type Bridge struct {
	mu       sync.Mutex
	conn     *websocket.Conn
	orientFn func(orientation.Sample)
	screenFn func(deg float64)
	nextID   int
	gestures map[int]func()
	pending  chan bridgeFrame
}

// NewBridge returns a bridge with no page attached yet.
func NewBridge() *Bridge {
	return &Bridge{gestures: make(map[int]func())}
}

// Handler upgrades the request and runs the frame loop until the page
// disconnects. A new connection replaces the previous one.
func (b *Bridge) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("bridge: websocket upgrade error: %v", err)
			return
		}
		defer conn.Close()

		b.mu.Lock()
		b.conn = conn
		b.mu.Unlock()
		log.Printf("bridge: page connected from %s", r.RemoteAddr)

		for {
			var f bridgeFrame
			if err := conn.ReadJSON(&f); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Printf("bridge: websocket error: %v", err)
				}
				break
			}
			b.dispatch(f)
		}

		b.mu.Lock()
		if b.conn == conn {
			b.conn = nil
		}
		pending := b.pending
		b.pending = nil
		b.mu.Unlock()
		if pending != nil {
			// Unblock a permission request waiting on this page.
			pending <- bridgeFrame{Type: "permission", Error: "page disconnected"}
		}
		log.Printf("bridge: page disconnected")
	}
}

func (b *Bridge) dispatch(f bridgeFrame) {
	switch f.Type {
	case "orientation":
		b.mu.Lock()
		fn := b.orientFn
		b.mu.Unlock()
		if fn != nil {
			fn(orientation.Sample{Alpha: f.Alpha, Beta: f.Beta, Gamma: f.Gamma})
		}
	case "screen":
		b.mu.Lock()
		fn := b.screenFn
		b.mu.Unlock()
		if fn != nil && f.Deg != nil {
			fn(*f.Deg)
		}
	case "gesture":
		b.fireGestures()
	case "permission":
		b.mu.Lock()
		pending := b.pending
		b.pending = nil
		b.mu.Unlock()
		if pending != nil {
			pending <- f
		}
	default:
		log.Printf("bridge: unknown frame type %q", f.Type)
	}
}

func (b *Bridge) fireGestures() {
	b.mu.Lock()
	fns := make([]func(), 0, len(b.gestures))
	for _, fn := range b.gestures {
		fns = append(fns, fn)
	}
	b.gestures = make(map[int]func())
	b.mu.Unlock()
	// A listener may start a permission round trip over this same
	// socket; only the read loop can deliver the reply, so listeners
	// must not run on it.
	for _, fn := range fns {
		go fn()
	}
}

func (b *Bridge) SubscribeOrientation(fn func(orientation.Sample)) (func(), error) {
	b.mu.Lock()
	b.orientFn = fn
	b.mu.Unlock()
	return func() {
		b.mu.Lock()
		b.orientFn = nil
		b.mu.Unlock()
	}, nil
}

func (b *Bridge) SubscribeScreen(fn func(deg float64)) (func(), error) {
	b.mu.Lock()
	b.screenFn = fn
	b.mu.Unlock()
	return func() {
		b.mu.Lock()
		b.screenFn = nil
		b.mu.Unlock()
	}, nil
}

// OnceGesture implements permission.GestureSurface on page-wide clicks.
func (b *Bridge) OnceGesture(fn func()) (cancel func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	b.gestures[id] = fn
	return func() {
		b.mu.Lock()
		delete(b.gestures, id)
		b.mu.Unlock()
	}
}

// RequestPermission forwards the consent request to the page and
// blocks until it answers or disconnects.
func (b *Bridge) RequestPermission() (permission.Outcome, error) {
	b.mu.Lock()
	conn := b.conn
	if conn == nil {
		b.mu.Unlock()
		return 0, &permission.RequestError{Kind: permission.KindOther, Reason: "no page connected"}
	}
	reply := make(chan bridgeFrame, 1)
	b.pending = reply
	b.mu.Unlock()

	if err := conn.WriteJSON(bridgeFrame{Type: "request_permission"}); err != nil {
		b.mu.Lock()
		b.pending = nil
		b.mu.Unlock()
		return 0, &permission.RequestError{Kind: permission.KindOther, Reason: err.Error()}
	}

	f := <-reply
	switch {
	case f.Error == "not_allowed":
		return 0, &permission.RequestError{Kind: permission.KindNotAllowed, Reason: "request was not triggered by a user gesture"}
	case f.Error != "":
		return 0, &permission.RequestError{Kind: permission.KindOther, Reason: f.Error}
	case f.Outcome == "granted":
		return permission.OutcomeGranted, nil
	default:
		return permission.OutcomeDenied, nil
	}
}
