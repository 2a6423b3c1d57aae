package permission

import (
	"log"

	"github.com/relabs-tech/camera_orientation/internal/orientation"
)

// Outcome is the platform's answer to a permission request.
type Outcome int

const (
	OutcomeGranted Outcome = iota
	OutcomeDenied
)

func (o Outcome) String() string {
	switch o {
	case OutcomeGranted:
		return "granted"
	case OutcomeDenied:
		return "denied"
	default:
		return "unknown"
	}
}

// Requester is the platform's explicit-consent capability. A nil
// Requester in the options means the capability is absent.
type Requester interface {
	// RequestPermission asks the user for consent. On failure the error
	// should be a *RequestError so the coordinator can classify it.
	RequestPermission() (Outcome, error)
}

// EventSource delivers device orientation and screen rotation events.
// Subscriptions stay live until the returned unsubscribe func runs.
type EventSource interface {
	SubscribeOrientation(fn func(orientation.Sample)) (unsub func(), err error)
	SubscribeScreen(fn func(deg float64)) (unsub func(), err error)
}

// GestureSurface is anything that can report a single user gesture
// (a click, a tap) to a one-shot listener.
type GestureSurface interface {
	// OnceGesture registers fn to run on the next gesture. The returned
	// cancel removes the listener if the gesture never comes.
	OnceGesture(fn func()) (cancel func())
}

// DefaultRetrySurface is the surface the coordinator falls back to for
// retry gestures when none was configured, mirroring a page-wide click
// handler. Hosts that have a natural global surface (the websocket
// bridge, say) set it at startup.
var DefaultRetrySurface GestureSurface

// Variant is the platform flavor detected once at initialization.
type Variant int

const (
	// VariantLegacyUngated delivers orientation events without any
	// consent handshake.
	VariantLegacyUngated Variant = iota
	// VariantGestureGated requires an explicit permission request that
	// the platform only honors after a user gesture.
	VariantGestureGated
	// VariantUnsupported has no orientation event facility at all.
	VariantUnsupported
)

func (v Variant) String() string {
	switch v {
	case VariantLegacyUngated:
		return "legacy-ungated"
	case VariantGestureGated:
		return "gesture-gated"
	case VariantUnsupported:
		return "unsupported"
	default:
		return "unknown"
	}
}

// DetectFunc picks the platform variant from the configured
// collaborators. Pluggable so tests and unusual hosts can force one.
type DetectFunc func(events EventSource, req Requester) Variant

// DetectByProbe is the default detection strategy: no event source
// means no sensor at all, no requester means an ungated legacy
// platform, both present means the gated consent flow.
func DetectByProbe(events EventSource, req Requester) Variant {
	switch {
	case events == nil:
		return VariantUnsupported
	case req == nil:
		return VariantLegacyUngated
	default:
		return VariantGestureGated
	}
}

// Alerter is the diagnostic side channel behind the DebugAlerts option.
// It must never influence control flow.
type Alerter interface {
	Alert(msg string)
}

type logAlerter struct{}

func (logAlerter) Alert(msg string) {
	log.Printf("permission: %s", msg)
}
