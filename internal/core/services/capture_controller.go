package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"soundradius/internal/core/domain"
	"soundradius/internal/core/ports"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// CaptureConfig bounds the reconnect behavior and health checking.
type CaptureConfig struct {
	MaxReconnectAttempts int
	ReconnectBackoff     time.Duration
	HealthCheckInterval  time.Duration
	InitialTier          domain.QualityTier
}

func DefaultCaptureConfig() CaptureConfig {
	return CaptureConfig{
		MaxReconnectAttempts: 5,
		ReconnectBackoff:     2 * time.Second,
		HealthCheckInterval:  10 * time.Second,
		InitialTier:          domain.TierHigh,
	}
}

// captureController owns the local capture lifecycle:
//
//	Idle -> Acquiring -> Connected -> {Reconnecting -> Connected | Failed}
//
// Failed is terminal until an explicit Acquire. The attempt counter resets to
// zero only on reaching Connected. There is at most one active local capture
// handle: the old one is released before a replacement is installed.
type captureController struct {
	provider ports.CaptureProvider
	policy   *QualityPolicy
	sink     ports.NotificationSink
	metrics  ports.MetricsCollector
	clk      clock.Clock
	cfg      CaptureConfig
	logger   *zap.SugaredLogger

	notifier notifier

	mu            sync.Mutex
	state         domain.CaptureState
	tier          domain.QualityTier
	audioEnabled  bool
	videoEnabled  bool
	audioDeviceID string
	videoDeviceID string
	handle        ports.CaptureHandle
	screenHandle  ports.CaptureHandle
	sharing       bool
	attempts      int
	acquireCancel context.CancelFunc
	healthCancel  context.CancelFunc
	closed        bool
}

func NewCaptureController(
	provider ports.CaptureProvider,
	policy *QualityPolicy,
	sink ports.NotificationSink,
	metrics ports.MetricsCollector,
	clk clock.Clock,
	cfg CaptureConfig,
	logger *zap.SugaredLogger,
) ports.CaptureController {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	tier := cfg.InitialTier
	if !tier.Valid() {
		tier = domain.TierHigh
	}
	c := &captureController{
		provider:     provider,
		policy:       policy,
		sink:         sink,
		metrics:      metrics,
		clk:          clk,
		cfg:          cfg,
		logger:       logger,
		state:        domain.CaptureIdle,
		tier:         tier,
		audioEnabled: true,
		videoEnabled: true,
	}

	healthCtx, cancel := context.WithCancel(context.Background())
	c.healthCancel = cancel
	go c.healthLoop(healthCtx)

	return c
}

// Acquire starts a fresh acquisition run. A new call cancels any in-flight
// previous attempt and resets the attempt counter. The first attempt runs
// inline; on DeviceUnavailable the remaining attempts are scheduled in the
// background with fixed backoff.
func (c *captureController) Acquire(ctx context.Context, audioDeviceID, videoDeviceID string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return domain.ErrCaptureClosed
	}
	if c.acquireCancel != nil {
		c.acquireCancel()
	}
	if c.handle != nil {
		c.handle.Close()
		c.handle = nil
	}
	c.audioDeviceID = audioDeviceID
	c.videoDeviceID = videoDeviceID
	c.attempts = 0
	c.state = domain.CaptureAcquiring

	acqCtx, cancel := context.WithCancel(context.Background())
	c.acquireCancel = cancel
	c.mu.Unlock()
	c.notifier.publish()

	if err := c.attempt(acqCtx); err != nil {
		go c.retryLoop(acqCtx)
		return fmt.Errorf("%w: %v", domain.ErrDeviceUnavailable, err)
	}
	c.notifier.publish()
	return nil
}

// attempt performs one capture request and installs the handle on success.
func (c *captureController) attempt(ctx context.Context) error {
	c.mu.Lock()
	constraints := ports.CaptureConstraints{
		AudioDeviceID: c.audioDeviceID,
		VideoDeviceID: c.videoDeviceID,
		Params:        c.policy.ParamsFor(c.tier),
	}
	c.mu.Unlock()

	handle, err := c.provider.RequestCapture(ctx, constraints)

	c.mu.Lock()
	defer c.mu.Unlock()
	if ctx.Err() != nil {
		if handle != nil {
			handle.Close()
		}
		return ctx.Err()
	}
	c.attempts++
	if err != nil {
		c.logger.Warnw("capture acquisition failed",
			"attempt", c.attempts,
			"max_attempts", c.cfg.MaxReconnectAttempts,
			"error", err,
		)
		return err
	}

	if c.handle != nil {
		c.handle.Close()
	}
	c.handle = handle
	handle.SetAudioEnabled(c.audioEnabled)
	handle.SetVideoEnabled(c.videoEnabled)
	c.attempts = 0
	c.state = domain.CaptureConnected
	return nil
}

// retryLoop drives the bounded fixed-backoff reconnection. Cancelled by a
// new Acquire or Close via ctx.
func (c *captureController) retryLoop(ctx context.Context) {
	for {
		c.mu.Lock()
		if c.closed || ctx.Err() != nil {
			c.mu.Unlock()
			return
		}
		if c.attempts >= c.cfg.MaxReconnectAttempts {
			wasRecovering := c.state == domain.CaptureReconnecting
			c.state = domain.CaptureFailed
			c.mu.Unlock()

			eventType := domain.EventCaptureFailed
			if wasRecovering {
				eventType = domain.EventReconnectExhausted
			}
			exhausted := fmt.Errorf("%w after %d attempts", domain.ErrReconnectExhausted, c.cfg.MaxReconnectAttempts)
			c.logger.Errorw("capture reconnect attempts exhausted", "error", exhausted)
			c.metrics.RecordReconnectExhausted()
			c.sink.Notify(domain.Event{
				Type:      eventType,
				Component: "capture",
				Message:   exhausted.Error(),
				Timestamp: time.Now(),
			})
			c.notifier.publish()
			return
		}
		c.mu.Unlock()

		timer := c.clk.Timer(c.cfg.ReconnectBackoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		c.metrics.RecordReconnectAttempt()
		if err := c.attempt(ctx); err == nil {
			c.logger.Infow("capture recovered")
			c.sink.Notify(domain.Event{
				Type:      domain.EventCaptureRecovered,
				Component: "capture",
				Timestamp: time.Now(),
			})
			c.notifier.publish()
			return
		}
		c.notifier.publish()
	}
}

// recover re-acquires after an unexpected failure while Connected. The
// attempt counter keeps counting from its current value and resets only when
// Connected is reached again.
func (c *captureController) recover(cause error) {
	c.mu.Lock()
	if c.closed || c.state == domain.CaptureFailed {
		c.mu.Unlock()
		return
	}
	if c.acquireCancel != nil {
		c.acquireCancel()
	}
	if c.handle != nil {
		c.handle.Close()
		c.handle = nil
	}
	c.state = domain.CaptureReconnecting

	acqCtx, cancel := context.WithCancel(context.Background())
	c.acquireCancel = cancel
	c.mu.Unlock()

	c.logger.Warnw("capture recovery started", "error", cause)
	c.notifier.publish()

	go func() {
		c.metrics.RecordReconnectAttempt()
		if err := c.attempt(acqCtx); err != nil {
			c.retryLoop(acqCtx)
			return
		}
		c.sink.Notify(domain.Event{
			Type:      domain.EventCaptureRecovered,
			Component: "capture",
			Timestamp: time.Now(),
		})
		c.notifier.publish()
	}()
}

func (c *captureController) SetAudioEnabled(enabled bool) {
	c.mu.Lock()
	c.audioEnabled = enabled
	if c.handle != nil {
		c.handle.SetAudioEnabled(enabled)
	}
	c.mu.Unlock()
	c.notifier.publish()
}

// SetVideoEnabled toggles the video track. Re-enabling video on an ended
// hardware track is a recovery, not a toggle.
func (c *captureController) SetVideoEnabled(enabled bool) {
	c.mu.Lock()
	c.videoEnabled = enabled
	handle := c.handle
	needsRecovery := enabled && handle != nil && handle.VideoEnded()
	if handle != nil && !needsRecovery {
		handle.SetVideoEnabled(enabled)
	}
	c.mu.Unlock()

	if needsRecovery {
		c.recover(fmt.Errorf("%w: video track", domain.ErrTrackEnded))
		return
	}
	c.notifier.publish()
}

// SetQuality applies new constraints in place when possible; a constraint
// application failure falls back to a full re-acquisition.
func (c *captureController) SetQuality(ctx context.Context, tier domain.QualityTier) error {
	if !tier.Valid() {
		return fmt.Errorf("invalid quality tier %q", tier)
	}

	c.mu.Lock()
	if tier == c.tier {
		c.mu.Unlock()
		return nil
	}
	c.tier = tier
	handle := c.handle
	c.mu.Unlock()

	if handle != nil {
		if err := c.provider.ApplyConstraints(handle, c.policy.ParamsFor(tier)); err != nil {
			c.logger.Warnw("constraint application failed, reacquiring", "tier", tier)
			c.recover(fmt.Errorf("%w: %v", domain.ErrConstraintApplication, err))
		}
	}

	c.sink.Notify(domain.Event{
		Type:      domain.EventQualityChanged,
		Component: "capture",
		Tier:      tier,
		Timestamp: time.Now(),
	})
	c.notifier.publish()
	return nil
}

// ToggleScreenShare acquires or releases the independent display capture.
// Out-of-band stops (the user ending the share through the system UI) are
// detected via the handle's ended signal.
func (c *captureController) ToggleScreenShare(ctx context.Context) (bool, error) {
	c.mu.Lock()
	if c.sharing {
		if c.screenHandle != nil {
			c.screenHandle.Close()
			c.screenHandle = nil
		}
		c.sharing = false
		c.mu.Unlock()
		c.sink.Notify(domain.Event{
			Type:      domain.EventScreenShareEnded,
			Component: "capture",
			Timestamp: time.Now(),
		})
		c.notifier.publish()
		return false, nil
	}
	c.mu.Unlock()

	handle, err := c.provider.RequestCapture(ctx, ports.CaptureConstraints{
		Screen: true,
		Params: c.policy.ParamsFor(c.tier),
	})
	if err != nil {
		return false, fmt.Errorf("screen capture: %w", err)
	}

	c.mu.Lock()
	c.screenHandle = handle
	c.sharing = true
	c.mu.Unlock()

	handle.OnEnded(func() {
		c.mu.Lock()
		if c.screenHandle != handle {
			c.mu.Unlock()
			return
		}
		c.screenHandle = nil
		c.sharing = false
		c.mu.Unlock()
		c.logger.Infow("screen share ended by system action")
		c.sink.Notify(domain.Event{
			Type:      domain.EventScreenShareEnded,
			Component: "capture",
			Timestamp: time.Now(),
		})
		c.notifier.publish()
	})

	c.sink.Notify(domain.Event{
		Type:      domain.EventScreenShareStarted,
		Component: "capture",
		Timestamp: time.Now(),
	})
	c.notifier.publish()
	return true, nil
}

// ObserveNetwork maps the sample's effective class to a suggested tier and
// switches quality only when the suggestion differs from the current tier.
func (c *captureController) ObserveNetwork(ctx context.Context, sample domain.NetworkSample) {
	c.mu.Lock()
	current := c.tier
	c.mu.Unlock()

	suggested := c.policy.SuggestTier(sample, current)
	if suggested == current {
		return
	}
	c.logger.Infow("network-driven quality switch",
		"effective_class", sample.EffectiveClass,
		"from", current,
		"to", suggested,
	)
	if err := c.SetQuality(ctx, suggested); err != nil {
		c.logger.Warnw("network-driven quality switch failed", "error", err)
	}
}

// healthLoop watches for every owned track reporting ended while video is
// expected to be on, and treats that as an unexpected failure.
func (c *captureController) healthLoop(ctx context.Context) {
	ticker := c.clk.Ticker(c.cfg.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			dead := c.state == domain.CaptureConnected &&
				c.videoEnabled &&
				c.handle != nil &&
				c.handle.TracksEnded()
			c.mu.Unlock()
			if dead {
				c.recover(fmt.Errorf("%w: all tracks", domain.ErrTrackEnded))
			}
		}
	}
}

func (c *captureController) State() domain.CaptureState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *captureController) Quality() domain.QualityTier {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tier
}

func (c *captureController) AudioEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.audioEnabled
}

func (c *captureController) VideoEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.videoEnabled
}

func (c *captureController) ScreenSharing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sharing
}

func (c *captureController) Subscribe(fn func()) (unsubscribe func()) {
	return c.notifier.subscribe(fn)
}

// Close releases every owned handle and stops the recurring tasks.
func (c *captureController) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	if c.acquireCancel != nil {
		c.acquireCancel()
	}
	if c.healthCancel != nil {
		c.healthCancel()
	}
	if c.handle != nil {
		c.handle.Close()
		c.handle = nil
	}
	if c.screenHandle != nil {
		c.screenHandle.Close()
		c.screenHandle = nil
	}
	c.sharing = false
	c.state = domain.CaptureIdle
	c.mu.Unlock()
}

// nopMetrics is the collector used when the caller wires none.
type nopMetrics struct{}

func (nopMetrics) RecordPeerJoined()                        {}
func (nopMetrics) RecordPeerLeft()                          {}
func (nopMetrics) RecordQualitySwitch(domain.QualityTier)   {}
func (nopMetrics) RecordReconnectAttempt()                  {}
func (nopMetrics) RecordReconnectExhausted()                {}
func (nopMetrics) ObserveRecompute(time.Duration, int, int) {}
func (nopMetrics) SetCaptureState(domain.CaptureState)      {}
