package services

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"soundradius/internal/core/domain"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// LayoutConfig controls the spotlight transition timing and geometry.
type LayoutConfig struct {
	// SettleDelay is the gap between the entrance phase and the stable
	// placement phase.
	SettleDelay time.Duration
	// AnimationWindow is how long the animating flag stays set; the
	// presentation layer interpolates position changes inside this window.
	AnimationWindow time.Duration
	// CircleRadius is the spotlight circle radius in plane units.
	CircleRadius float64
}

func DefaultLayoutConfig() LayoutConfig {
	return LayoutConfig{
		SettleDelay:     100 * time.Millisecond,
		AnimationWindow: 2500 * time.Millisecond,
		CircleRadius:    35,
	}
}

// placement is the layout engine's per-participant position state. The
// manual override survives mode switches so a dragged participant settles
// back where the user put them.
type placement struct {
	pos     *domain.Position
	manual  *domain.Position
	movable bool
}

// LayoutService assigns screen positions for the grid and spotlight modes and
// drives the two-phase spotlight entrance transition. The transition is an
// explicit Settling -> Stable state machine on an injected clock, not a chain
// of wall-clock timeouts.
type LayoutService struct {
	cfg    LayoutConfig
	clk    clock.Clock
	rng    *rand.Rand
	logger *zap.SugaredLogger

	notifier notifier

	mu          sync.Mutex
	mode        domain.LayoutMode
	localID     domain.ParticipantID
	localPos    domain.Position
	localManual bool
	order       []domain.ParticipantID
	placements  map[domain.ParticipantID]*placement
	animating   bool
	settleTimer *clock.Timer
	windowTimer *clock.Timer
}

func NewLayoutService(cfg LayoutConfig, localID domain.ParticipantID, clk clock.Clock, rng *rand.Rand, logger *zap.SugaredLogger) *LayoutService {
	if clk == nil {
		clk = clock.New()
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &LayoutService{
		cfg:        cfg,
		clk:        clk,
		rng:        rng,
		logger:     logger,
		mode:       domain.LayoutGrid,
		localID:    localID,
		localPos:   domain.Position{X: 50, Y: 50},
		placements: make(map[domain.ParticipantID]*placement),
	}
}

func (l *LayoutService) Subscribe(fn func()) (unsubscribe func()) {
	return l.notifier.subscribe(fn)
}

func (l *LayoutService) Mode() domain.LayoutMode {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.mode
}

func (l *LayoutService) Animating() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.animating
}

// LocalPosition returns the local participant's position, or nil in grid mode
// where everyone is non-positioned.
func (l *LayoutService) LocalPosition() *domain.Position {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.mode != domain.LayoutSpotlight {
		return nil
	}
	pos := l.localPos
	return &pos
}

// PositionOf returns a remote participant's position and movable flag.
func (l *LayoutService) PositionOf(id domain.ParticipantID) (*domain.Position, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	pl, ok := l.placements[id]
	if !ok || l.mode != domain.LayoutSpotlight || pl.pos == nil {
		return nil, false
	}
	pos := *pl.pos
	return &pos, pl.movable
}

// SetParticipants replaces the tracked remote participant set, preserving
// placements of survivors. In spotlight mode a count change restarts the
// entrance transition.
func (l *LayoutService) SetParticipants(ids []domain.ParticipantID) {
	l.mu.Lock()

	changed := len(ids) != len(l.order)
	next := make(map[domain.ParticipantID]*placement, len(ids))
	for _, id := range ids {
		if pl, ok := l.placements[id]; ok {
			next[id] = pl
		} else {
			next[id] = &placement{}
			changed = true
		}
	}
	l.order = append([]domain.ParticipantID(nil), ids...)
	l.placements = next

	if !changed {
		l.mu.Unlock()
		return
	}

	if l.mode == domain.LayoutSpotlight {
		l.beginTransitionLocked()
	}
	l.mu.Unlock()
	l.notifier.publish()
}

// SetMode switches presentation modes. Switching cancels any in-flight
// transition; entering spotlight starts a fresh one.
func (l *LayoutService) SetMode(mode domain.LayoutMode) {
	l.mu.Lock()
	if mode == l.mode {
		l.mu.Unlock()
		return
	}
	l.cancelTransitionLocked()
	l.mode = mode

	switch mode {
	case domain.LayoutGrid:
		// Logical uniform grid is delegated to the presentation layer:
		// everyone is non-positioned here and movement is disabled.
		l.animating = false
		for _, pl := range l.placements {
			pl.pos = nil
			pl.movable = false
		}
	case domain.LayoutSpotlight:
		l.beginTransitionLocked()
	}
	l.mu.Unlock()
	l.notifier.publish()
}

// SetManualPosition applies a drag repositioning. Accepted only in spotlight
// mode and only for movable participants; it never feeds back into the
// phase transition logic.
func (l *LayoutService) SetManualPosition(id domain.ParticipantID, pos domain.Position) error {
	l.mu.Lock()
	if l.mode != domain.LayoutSpotlight {
		l.mu.Unlock()
		return domain.ErrWrongLayoutMode
	}

	if id == l.localID {
		l.localPos = pos
		l.localManual = true
		l.mu.Unlock()
		l.notifier.publish()
		return nil
	}

	pl, ok := l.placements[id]
	if !ok {
		l.mu.Unlock()
		return domain.ErrPeerNotFound
	}
	if !pl.movable {
		l.mu.Unlock()
		return domain.ErrNotMovable
	}
	manual := pos
	current := pos
	pl.manual = &manual
	pl.pos = &current
	l.mu.Unlock()
	l.notifier.publish()
	return nil
}

// beginTransitionLocked starts Phase 1: every remote participant gets a
// randomized off-screen-biased entrance position, then the settle and
// animation-window timers arm Phase 2 and the animating flag clearing.
func (l *LayoutService) beginTransitionLocked() {
	l.cancelTransitionLocked()
	l.animating = true

	for _, id := range l.order {
		pl := l.placements[id]
		x := -20.0
		if l.rng.Intn(2) == 1 {
			x = 120.0
		}
		pl.pos = &domain.Position{X: x, Y: l.rng.Float64() * 100}
		pl.movable = false
	}

	l.settleTimer = l.clk.AfterFunc(l.cfg.SettleDelay, l.settle)
	l.windowTimer = l.clk.AfterFunc(l.cfg.AnimationWindow, l.finishAnimation)
}

func (l *LayoutService) cancelTransitionLocked() {
	if l.settleTimer != nil {
		l.settleTimer.Stop()
		l.settleTimer = nil
	}
	if l.windowTimer != nil {
		l.windowTimer.Stop()
		l.windowTimer = nil
	}
}

// settle is Phase 2: stable positions on a circle around the local
// participant, except manually placed participants, which keep their spot.
func (l *LayoutService) settle() {
	l.mu.Lock()
	if l.mode != domain.LayoutSpotlight {
		l.mu.Unlock()
		return
	}

	center := l.localPos
	n := len(l.order)
	for i, id := range l.order {
		pl := l.placements[id]
		if pl.manual != nil {
			pos := *pl.manual
			pl.pos = &pos
		} else {
			angle := 2 * math.Pi * float64(i) / float64(n)
			pl.pos = &domain.Position{
				X: clampPlane(center.X + l.cfg.CircleRadius*math.Cos(angle)),
				Y: clampPlane(center.Y + l.cfg.CircleRadius*math.Sin(angle)),
			}
		}
		pl.movable = true
	}
	l.mu.Unlock()
	l.notifier.publish()
}

func (l *LayoutService) finishAnimation() {
	l.mu.Lock()
	if l.mode != domain.LayoutSpotlight {
		l.mu.Unlock()
		return
	}
	l.animating = false
	l.mu.Unlock()
	l.notifier.publish()
}

// clampPlane keeps settled positions on-plane with a margin.
func clampPlane(v float64) float64 {
	if v < 5 {
		return 5
	}
	if v > 95 {
		return 95
	}
	return v
}
