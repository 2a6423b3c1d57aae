package eventsource

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/camera_orientation/internal/orientation"
	"github.com/relabs-tech/camera_orientation/internal/permission"
)

func dialBridge(t *testing.T, b *Bridge) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(b.Handler())
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	// The handler registers the connection just after the upgrade.
	require.Eventually(t, func() bool {
		b.mu.Lock()
		defer b.mu.Unlock()
		return b.conn != nil
	}, time.Second, 5*time.Millisecond)

	return conn
}

func TestBridgeOrientationFrames(t *testing.T) {
	t.Parallel()
	b := NewBridge()

	samples := make(chan orientation.Sample, 4)
	unsub, err := b.SubscribeOrientation(func(s orientation.Sample) { samples <- s })
	require.NoError(t, err)
	defer unsub()

	conn := dialBridge(t, b)

	alpha, beta, gamma := 30.0, 40.0, -10.0
	require.NoError(t, conn.WriteJSON(bridgeFrame{
		Type: "orientation", Alpha: &alpha, Beta: &beta, Gamma: &gamma,
	}))

	select {
	case s := <-samples:
		require.True(t, s.Valid())
		assert.Equal(t, alpha, *s.Alpha)
		assert.Equal(t, beta, *s.Beta)
		assert.Equal(t, gamma, *s.Gamma)
	case <-time.After(time.Second):
		t.Fatal("no sample delivered")
	}

	// Desktop pages report null angles; the frame still arrives and the
	// transformer is the one to discard it.
	require.NoError(t, conn.WriteJSON(bridgeFrame{Type: "orientation"}))
	select {
	case s := <-samples:
		assert.False(t, s.Valid())
	case <-time.After(time.Second):
		t.Fatal("no sample delivered")
	}
}

func TestBridgeScreenFrames(t *testing.T) {
	t.Parallel()
	b := NewBridge()

	degs := make(chan float64, 1)
	unsub, err := b.SubscribeScreen(func(deg float64) { degs <- deg })
	require.NoError(t, err)
	defer unsub()

	conn := dialBridge(t, b)

	deg := 90.0
	require.NoError(t, conn.WriteJSON(bridgeFrame{Type: "screen", Deg: &deg}))

	select {
	case got := <-degs:
		assert.Equal(t, 90.0, got)
	case <-time.After(time.Second):
		t.Fatal("no screen event delivered")
	}
}

func TestBridgeGestureIsOneShot(t *testing.T) {
	t.Parallel()
	b := NewBridge()

	fired := make(chan struct{}, 4)
	b.OnceGesture(func() { fired <- struct{}{} })

	conn := dialBridge(t, b)

	require.NoError(t, conn.WriteJSON(bridgeFrame{Type: "gesture"}))
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("gesture listener not fired")
	}

	require.NoError(t, conn.WriteJSON(bridgeFrame{Type: "gesture"}))
	select {
	case <-fired:
		t.Fatal("one-shot listener fired twice")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestBridgeGestureCancel(t *testing.T) {
	t.Parallel()
	b := NewBridge()

	fired := make(chan struct{}, 1)
	cancel := b.OnceGesture(func() { fired <- struct{}{} })
	cancel()

	conn := dialBridge(t, b)
	require.NoError(t, conn.WriteJSON(bridgeFrame{Type: "gesture"}))

	select {
	case <-fired:
		t.Fatal("cancelled listener fired")
	case <-time.After(100 * time.Millisecond):
	}
}

// TestBridgeGestureDrivenHandshake wires the bridge as the coordinator's
// event source, requester and gesture surface at once, the way the web
// app runs it, and drives the whole consent flow over one socket: the
// page click fires the gesture, the consent request goes back out on the
// same connection and the reply settles the ready signal.
func TestBridgeGestureDrivenHandshake(t *testing.T) {
	t.Parallel()
	b := NewBridge()

	coord := permission.New(permission.Options{
		Events:      b,
		Permissions: b,
		Gesture:     b,
	})
	defer coord.Teardown()

	conn := dialBridge(t, b)

	ready := coord.Initialize()
	require.Equal(t, permission.StateAwaitingGesture, coord.State())

	require.NoError(t, conn.WriteJSON(bridgeFrame{Type: "gesture"}))

	var f bridgeFrame
	require.NoError(t, conn.ReadJSON(&f))
	require.Equal(t, "request_permission", f.Type)
	require.NoError(t, conn.WriteJSON(bridgeFrame{Type: "permission", Outcome: "granted"}))

	done := make(chan error, 1)
	go func() { done <- ready.Wait() }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("ready signal never settled")
	}
	assert.Equal(t, permission.StateEnabled, coord.State())

	// Sensor frames on the same socket now reach the transformer.
	alpha, beta, gamma := 30.0, 40.0, -10.0
	require.NoError(t, conn.WriteJSON(bridgeFrame{
		Type: "orientation", Alpha: &alpha, Beta: &beta, Gamma: &gamma,
	}))
	require.Eventually(t, func() bool {
		return coord.Transformer().Update() != nil
	}, time.Second, 5*time.Millisecond)
}

// TestBridgeRetryViaPageClick covers the refused-then-retried flow with
// the bridge doubling as the page-wide retry surface.
func TestBridgeRetryViaPageClick(t *testing.T) {
	t.Parallel()
	b := NewBridge()

	coord := permission.New(permission.Options{
		Events:       b,
		Permissions:  b,
		RetryGesture: b,
	})
	defer coord.Teardown()

	conn := dialBridge(t, b)

	// Without a gesture gate Initialize issues the first request before
	// returning, and the bridge requester blocks on the page's answer.
	readyCh := make(chan *permission.Ready, 1)
	go func() { readyCh <- coord.Initialize() }()

	// First request goes out without a gesture; the page refuses it.
	var f bridgeFrame
	require.NoError(t, conn.ReadJSON(&f))
	require.Equal(t, "request_permission", f.Type)
	require.NoError(t, conn.WriteJSON(bridgeFrame{Type: "permission", Error: "not_allowed"}))

	var ready *permission.Ready
	select {
	case ready = <-readyCh:
	case <-time.After(2 * time.Second):
		t.Fatal("Initialize did not return after the refusal")
	}

	// The next page click retries on the same socket.
	require.Eventually(t, func() bool {
		return coord.State() == permission.StateRetryWait
	}, time.Second, 5*time.Millisecond)
	require.NoError(t, conn.WriteJSON(bridgeFrame{Type: "gesture"}))

	require.NoError(t, conn.ReadJSON(&f))
	require.Equal(t, "request_permission", f.Type)
	require.NoError(t, conn.WriteJSON(bridgeFrame{Type: "permission", Outcome: "granted"}))

	done := make(chan error, 1)
	go func() { done <- ready.Wait() }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("ready signal never settled after retry")
	}
	assert.Equal(t, permission.StateEnabled, coord.State())
}

func TestBridgeRequestPermission(t *testing.T) {
	t.Parallel()

	t.Run("granted", func(t *testing.T) {
		t.Parallel()
		b := NewBridge()
		conn := dialBridge(t, b)

		type res struct {
			outcome permission.Outcome
			err     error
		}
		done := make(chan res, 1)
		go func() {
			outcome, err := b.RequestPermission()
			done <- res{outcome, err}
		}()

		var f bridgeFrame
		require.NoError(t, conn.ReadJSON(&f))
		require.Equal(t, "request_permission", f.Type)

		require.NoError(t, conn.WriteJSON(bridgeFrame{Type: "permission", Outcome: "granted"}))

		r := <-done
		require.NoError(t, r.err)
		assert.Equal(t, permission.OutcomeGranted, r.outcome)
	})

	t.Run("not allowed classifies as retryable", func(t *testing.T) {
		t.Parallel()
		b := NewBridge()
		conn := dialBridge(t, b)

		errs := make(chan error, 1)
		go func() {
			_, err := b.RequestPermission()
			errs <- err
		}()

		var f bridgeFrame
		require.NoError(t, conn.ReadJSON(&f))
		require.NoError(t, conn.WriteJSON(bridgeFrame{Type: "permission", Error: "not_allowed"}))

		err := <-errs
		var rerr *permission.RequestError
		require.ErrorAs(t, err, &rerr)
		assert.Equal(t, permission.KindNotAllowed, rerr.Kind)
	})

	t.Run("no page connected", func(t *testing.T) {
		t.Parallel()
		b := NewBridge()

		_, err := b.RequestPermission()
		var rerr *permission.RequestError
		require.ErrorAs(t, err, &rerr)
		assert.Equal(t, permission.KindOther, rerr.Kind)
	})

	t.Run("page disconnect unblocks", func(t *testing.T) {
		t.Parallel()
		b := NewBridge()
		conn := dialBridge(t, b)

		errs := make(chan error, 1)
		go func() {
			_, err := b.RequestPermission()
			errs <- err
		}()

		var f bridgeFrame
		require.NoError(t, conn.ReadJSON(&f))
		conn.Close()

		select {
		case err := <-errs:
			var rerr *permission.RequestError
			require.ErrorAs(t, err, &rerr)
			assert.Equal(t, permission.KindOther, rerr.Kind)
		case <-time.After(time.Second):
			t.Fatal("RequestPermission did not unblock on disconnect")
		}
	})
}
