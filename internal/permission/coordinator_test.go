package permission_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/camera_orientation/internal/eventsource"
	"github.com/relabs-tech/camera_orientation/internal/orientation"
	"github.com/relabs-tech/camera_orientation/internal/permission"
	"github.com/relabs-tech/camera_orientation/internal/rotation"
)

func TestLegacyUngatedEnablesImmediately(t *testing.T) {
	t.Parallel()
	src := eventsource.NewMock()

	coord := permission.New(permission.Options{
		Math:   rotation.NewMath(),
		Events: src,
		// no Permissions: the ungated legacy platform
	})
	defer coord.Teardown()

	require.NoError(t, coord.Initialize().Wait())
	assert.Equal(t, permission.StateEnabled, coord.State())

	// Sensor events now land in the transformer.
	src.EmitSample(orientation.NewSample(30, 40, 10))
	assert.NotNil(t, coord.Transformer().Update())
}

func TestUnsupportedPlatform(t *testing.T) {
	t.Parallel()

	t.Run("enables unconditionally by default", func(t *testing.T) {
		t.Parallel()
		coord := permission.New(permission.Options{})
		defer coord.Teardown()

		require.NoError(t, coord.Initialize().Wait())
		assert.Equal(t, permission.StateEnabled, coord.State())
		assert.True(t, coord.Transformer().Enabled())
	})

	t.Run("rejects when asked to", func(t *testing.T) {
		t.Parallel()
		coord := permission.New(permission.Options{RejectIfUnsupported: true})
		defer coord.Teardown()

		err := coord.Initialize().Wait()
		assert.ErrorIs(t, err, permission.ErrUnsupported)
		assert.Equal(t, permission.StateRejected, coord.State())
		assert.Nil(t, coord.Transformer().Update())
	})
}

func TestGrantedEnables(t *testing.T) {
	t.Parallel()
	src := eventsource.NewMock()
	src.Script(eventsource.Grant())

	coord := permission.New(permission.Options{
		Events:      src,
		Permissions: src,
	})
	defer coord.Teardown()

	require.NoError(t, coord.Initialize().Wait())
	assert.Equal(t, 1, src.Requests())
	assert.Equal(t, permission.StateEnabled, coord.State())
}

func TestDeniedStillEnablesDegraded(t *testing.T) {
	t.Parallel()
	src := eventsource.NewMock()
	src.Script(eventsource.Deny())

	coord := permission.New(permission.Options{
		Events:      src,
		Permissions: src,
	})
	defer coord.Teardown()

	// A declined sensor must not block the pipeline.
	require.NoError(t, coord.Initialize().Wait())
	assert.Equal(t, permission.StateEnabled, coord.State())

	src.EmitSample(orientation.NewSample(1, 2, 3))
	assert.NotNil(t, coord.Transformer().Update())
}

func TestGestureGatedWaitsForGesture(t *testing.T) {
	t.Parallel()
	src := eventsource.NewMock()
	src.Script(eventsource.Grant())

	gestured := false
	coord := permission.New(permission.Options{
		Events:      src,
		Permissions: src,
		Gesture:     src,
		OnGesture:   func() { gestured = true },
	})
	defer coord.Teardown()

	ready := coord.Initialize()
	assert.Equal(t, permission.StateAwaitingGesture, coord.State())
	assert.Zero(t, src.Requests(), "no request before the gesture")

	src.Tap()
	require.NoError(t, ready.Wait())
	assert.True(t, gestured)
	assert.Equal(t, 1, src.Requests())
	assert.Equal(t, permission.StateEnabled, coord.State())
}

func TestNotAllowedRetriesOnceViaGesture(t *testing.T) {
	t.Parallel()
	src := eventsource.NewMock()
	retry := eventsource.NewMock()
	src.Script(eventsource.NotAllowed(), eventsource.Grant())

	coord := permission.New(permission.Options{
		Events:       src,
		Permissions:  src,
		RetryGesture: retry,
	})
	defer coord.Teardown()

	ready := coord.Initialize()
	assert.Equal(t, permission.StateRetryWait, coord.State())
	assert.Equal(t, 1, src.Requests())
	assert.Equal(t, 1, retry.GestureListeners(), "one-shot retry listener attached")

	retry.Tap()
	require.NoError(t, ready.Wait())
	assert.Equal(t, 2, src.Requests())
	assert.Zero(t, retry.GestureListeners())
	assert.Equal(t, permission.StateEnabled, coord.State())
}

func TestNotAllowedTwiceRejects(t *testing.T) {
	t.Parallel()
	src := eventsource.NewMock()
	retry := eventsource.NewMock()
	src.Script(eventsource.NotAllowed(), eventsource.NotAllowed())

	coord := permission.New(permission.Options{
		Events:       src,
		Permissions:  src,
		RetryGesture: retry,
	})
	defer coord.Teardown()

	ready := coord.Initialize()
	retry.Tap()

	err := ready.Wait()
	var rerr *permission.RequestError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, permission.KindNotAllowed, rerr.Kind)
	assert.Equal(t, 2, src.Requests(), "no infinite retry")
	assert.Zero(t, retry.GestureListeners())
	assert.Equal(t, permission.StateRejected, coord.State())
}

func TestNoRetryWhenGestureWasConfigured(t *testing.T) {
	t.Parallel()
	src := eventsource.NewMock()
	retry := eventsource.NewMock()
	src.Script(eventsource.NotAllowed())

	// The configured gesture should already satisfy the platform, so a
	// refusal after it is final even with a retry surface around.
	coord := permission.New(permission.Options{
		Events:       src,
		Permissions:  src,
		Gesture:      src,
		RetryGesture: retry,
	})
	defer coord.Teardown()

	ready := coord.Initialize()
	src.Tap()

	err := ready.Wait()
	var rerr *permission.RequestError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, 1, src.Requests())
	assert.Zero(t, retry.GestureListeners())
}

func TestOtherErrorRejects(t *testing.T) {
	t.Parallel()
	src := eventsource.NewMock()
	retry := eventsource.NewMock()
	src.Script(eventsource.Fail("sensor policy disabled"))

	coord := permission.New(permission.Options{
		Events:       src,
		Permissions:  src,
		RetryGesture: retry,
	})
	defer coord.Teardown()

	err := coord.Initialize().Wait()
	var rerr *permission.RequestError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, permission.KindOther, rerr.Kind)
	assert.Equal(t, 1, src.Requests())
	assert.Zero(t, retry.GestureListeners(), "other errors are not retryable")
}

func TestDefaultRetrySurface(t *testing.T) {
	// mutates the package-level default surface; not parallel
	surface := eventsource.NewMock()
	permission.DefaultRetrySurface = surface
	defer func() { permission.DefaultRetrySurface = nil }()

	src := eventsource.NewMock()
	src.Script(eventsource.NotAllowed(), eventsource.Grant())

	coord := permission.New(permission.Options{
		Events:      src,
		Permissions: src,
	})
	defer coord.Teardown()

	ready := coord.Initialize()
	assert.Equal(t, 1, surface.GestureListeners())

	surface.Tap()
	require.NoError(t, ready.Wait())
	assert.Equal(t, 2, src.Requests())
}

func TestTeardown(t *testing.T) {
	t.Parallel()

	t.Run("idempotent before initialize", func(t *testing.T) {
		t.Parallel()
		coord := permission.New(permission.Options{})
		coord.Teardown()
		coord.Teardown()
		assert.Equal(t, permission.StateIdle, coord.State())
	})

	t.Run("after enable", func(t *testing.T) {
		t.Parallel()
		src := eventsource.NewMock()
		coord := permission.New(permission.Options{Events: src})
		require.NoError(t, coord.Initialize().Wait())

		src.EmitSample(orientation.NewSample(1, 2, 3))
		require.NotNil(t, coord.Transformer().Update())

		coord.Teardown()
		assert.Nil(t, coord.Transformer().Update())
		assert.Equal(t, permission.StateIdle, coord.State())

		// Events after teardown no longer reach the transformer.
		src.EmitSample(orientation.NewSample(4, 5, 6))
		assert.Nil(t, coord.Transformer().Update())
	})

	t.Run("mid-handshake settles the ready signal", func(t *testing.T) {
		t.Parallel()
		src := eventsource.NewMock()
		coord := permission.New(permission.Options{
			Events:      src,
			Permissions: src,
			Gesture:     src,
		})

		ready := coord.Initialize()
		require.Equal(t, 1, src.GestureListeners())

		coord.Teardown()
		assert.ErrorIs(t, ready.Wait(), permission.ErrTornDown)
		assert.Zero(t, src.GestureListeners(), "pending gesture listener removed")

		// A gesture arriving late is a no-op.
		src.Tap()
		assert.Zero(t, src.Requests())
	})

	t.Run("pending retry listener removed", func(t *testing.T) {
		t.Parallel()
		src := eventsource.NewMock()
		retry := eventsource.NewMock()
		src.Script(eventsource.NotAllowed())

		coord := permission.New(permission.Options{
			Events:       src,
			Permissions:  src,
			RetryGesture: retry,
		})
		ready := coord.Initialize()
		require.Equal(t, permission.StateRetryWait, coord.State())

		coord.Teardown()
		assert.ErrorIs(t, ready.Wait(), permission.ErrTornDown)
		assert.Zero(t, retry.GestureListeners())
	})

	t.Run("reinitialize after teardown", func(t *testing.T) {
		t.Parallel()
		src := eventsource.NewMock()
		coord := permission.New(permission.Options{Events: src, Permissions: src})

		require.NoError(t, coord.Initialize().Wait())
		coord.Teardown()

		require.NoError(t, coord.Initialize().Wait())
		assert.Equal(t, permission.StateEnabled, coord.State())
		assert.Equal(t, 2, src.Requests())
	})
}

func TestInitializeReturnsSameSignal(t *testing.T) {
	t.Parallel()
	src := eventsource.NewMock()
	coord := permission.New(permission.Options{Events: src})
	defer coord.Teardown()

	a := coord.Initialize()
	b := coord.Initialize()
	assert.Same(t, a, b)
	assert.Equal(t, 0, src.Requests())
}

func TestDebugAlertsSideChannel(t *testing.T) {
	t.Parallel()
	src := eventsource.NewMock()

	var msgs []string
	coord := permission.New(permission.Options{
		Events:      src,
		Permissions: src,
		DebugAlerts: true,
		Alerter:     alertFunc(func(msg string) { msgs = append(msgs, msg) }),
	})
	defer coord.Teardown()

	require.NoError(t, coord.Initialize().Wait())
	assert.NotEmpty(t, msgs, "transitions surface through the alerter")
	assert.Equal(t, permission.StateEnabled, coord.State())
}

type alertFunc func(string)

func (f alertFunc) Alert(msg string) { f(msg) }
