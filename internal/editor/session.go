package editor

import (
	"time"

	"github.com/arc-hci/arcgrid/internal/domain"
)

// Config holds the host-supplied editor settings.
type Config struct {
	ActionLimit      int
	WarningThreshold int
	MinCellSizePx    float64
	MaxDisplaySizePx float64
}

// DefaultConfig returns the settings used when the host supplies none.
func DefaultConfig() Config {
	return Config{
		ActionLimit:      1000,
		WarningThreshold: 900,
		MinCellSizePx:    6,
		MaxDisplaySizePx: 480,
	}
}

// Session is one participant's interaction with one task grid. It owns the
// grid store, recorder, limiter and mode controller for that grid. A Session
// is not safe for concurrent use.
type Session struct {
	cfg       Config
	now       func() time.Time
	lifecycle *Lifecycle
	resolver  Resolver

	store *GridStore
	rec   *Recorder
	ctrl  *ModeController
	truth domain.Grid

	onAction []func(domain.Action)
	onSignal []func(domain.Signal)
}

// NewSession creates a session in the NotStarted state. now may be nil.
func NewSession(cfg Config, now func() time.Time) *Session {
	if now == nil {
		now = time.Now
	}
	return &Session{
		cfg:       cfg,
		now:       now,
		lifecycle: NewLifecycle(),
		resolver:  Resolver{MinCellSizePx: cfg.MinCellSizePx},
	}
}

// Load installs the task's input grid and optional ground truth and moves the
// session to Active. A session loads exactly once; a new task needs a new
// Session, which also resets the counters.
func (s *Session) Load(input, truth domain.Grid) error {
	store, err := NewGridStore(input)
	if err != nil {
		return err
	}
	if truth != nil {
		if err := truth.Validate(); err != nil {
			return err
		}
	}
	if err := s.lifecycle.Transition(domain.SessionActive); err != nil {
		return err
	}
	s.store = store
	s.truth = truth.Clone()
	s.rec = NewRecorder(store, input, NewSafetyLimiter(s.cfg.ActionLimit, s.cfg.WarningThreshold), s.lifecycle, s.now)
	s.rec.OnAction(s.emitAction)
	s.rec.OnSignal(s.emitSignal)
	s.ctrl = NewModeController(s.rec, store, s.resolver)
	return nil
}

// Close finalizes the session. Closing twice is a no-op.
func (s *Session) Close() error {
	if s.lifecycle.State() == domain.SessionClosed {
		return nil
	}
	if s.ctrl != nil {
		s.ctrl.Cancel()
	}
	return s.lifecycle.Transition(domain.SessionClosed)
}

// State returns the lifecycle state.
func (s *Session) State() domain.SessionState { return s.lifecycle.State() }

// OnAction registers a subscriber for committed actions.
func (s *Session) OnAction(fn func(domain.Action)) { s.onAction = append(s.onAction, fn) }

// OnSignal registers a subscriber for limiter signals.
func (s *Session) OnSignal(fn func(domain.Signal)) { s.onSignal = append(s.onSignal, fn) }

func (s *Session) emitAction(a domain.Action) {
	for _, fn := range s.onAction {
		fn(a)
	}
}

func (s *Session) emitSignal(sig domain.Signal) {
	for _, fn := range s.onSignal {
		fn(sig)
	}
}

func (s *Session) loaded() error {
	if s.rec == nil {
		return domain.ErrSessionNotActive
	}
	return nil
}

// SetMode switches the interaction mode.
func (s *Session) SetMode(m domain.Mode) error {
	if err := s.loaded(); err != nil {
		return err
	}
	return s.ctrl.SetMode(m)
}

// SelectColor changes the paint color.
func (s *Session) SelectColor(color int) error {
	if err := s.loaded(); err != nil {
		return err
	}
	return s.ctrl.SelectColor(color)
}

// HandlePointer routes one pointer event through the mode controller. A zero
// MaxDisplaySizePx in vp falls back to the configured value.
func (s *Session) HandlePointer(ev domain.PointerEvent, vp domain.Viewport) (Outcome, error) {
	if err := s.loaded(); err != nil {
		return Outcome{}, err
	}
	if vp.MaxDisplaySizePx <= 0 {
		vp.MaxDisplaySizePx = s.cfg.MaxDisplaySizePx
	}
	return s.ctrl.HandlePointer(ev, vp)
}

// ClickCell is the cell-addressed equivalent of a press in the current mode.
// In select mode it is a complete 1x1 select_region and leaves no drag open.
func (s *Session) ClickCell(row, col int) (Outcome, error) {
	if err := s.loaded(); err != nil {
		return Outcome{}, err
	}
	cell := domain.Cell{Row: row, Col: col}
	if s.ctrl.Mode() == domain.ModeSelect {
		s.ctrl.Cancel()
		return s.rec.SelectRegion(domain.NormalizeRect(cell, cell), s.ctrl.Color())
	}
	return s.ctrl.Press(cell)
}

// SelectRegion paints a rect directly, bypassing the drag gesture.
func (s *Session) SelectRegion(a, b domain.Cell) (Outcome, error) {
	if err := s.loaded(); err != nil {
		return Outcome{}, err
	}
	return s.rec.SelectRegion(domain.NormalizeRect(a, b), s.ctrl.Color())
}

// FillAll fills the grid with the selected color.
func (s *Session) FillAll() (Outcome, error) {
	if err := s.loaded(); err != nil {
		return Outcome{}, err
	}
	return s.rec.FillAll(s.ctrl.Color())
}

// Reset clears the grid to zeros.
func (s *Session) Reset() (Outcome, error) {
	if err := s.loaded(); err != nil {
		return Outcome{}, err
	}
	return s.rec.Reset()
}

// CopyFromInput restores the input grid.
func (s *Session) CopyFromInput() (Outcome, error) {
	if err := s.loaded(); err != nil {
		return Outcome{}, err
	}
	return s.rec.CopyFromInput()
}

// Resize changes the grid dimensions.
func (s *Session) Resize(rows, cols int) (Outcome, error) {
	if err := s.loaded(); err != nil {
		return Outcome{}, err
	}
	return s.rec.Resize(rows, cols)
}

// ResizeTo parses a "<rows>x<cols>" request and resizes.
func (s *Session) ResizeTo(size string) (Outcome, error) {
	rows, cols, err := ParseSize(size)
	if err != nil {
		return Outcome{}, err
	}
	return s.Resize(rows, cols)
}

// TestSolution records a comparison of the current grid against the ground truth.
func (s *Session) TestSolution() (Outcome, error) {
	if err := s.loaded(); err != nil {
		return Outcome{}, err
	}
	if s.truth == nil {
		return Outcome{}, domain.ErrNoGroundTruth
	}
	return s.rec.TestSolution(s.truth)
}

// Grid returns a copy of the current grid, or nil before Load.
func (s *Session) Grid() domain.Grid {
	if s.store == nil {
		return nil
	}
	return s.store.Get()
}

// Log returns the committed actions in sequence order.
func (s *Session) Log() []domain.Action {
	if s.rec == nil {
		return nil
	}
	return s.rec.Log()
}

// Since returns committed actions with a sequence number greater than seq.
func (s *Session) Since(seq int) []domain.Action {
	if s.rec == nil {
		return nil
	}
	return s.rec.Since(seq)
}

// Signals returns the limiter signals emitted so far.
func (s *Session) Signals() []domain.Signal {
	if s.rec == nil {
		return nil
	}
	return s.rec.Signals()
}

// Counters returns the session counters.
func (s *Session) Counters() domain.Counters {
	c := domain.Counters{SelectedColor: DefaultColor}
	if s.rec != nil {
		c.ActionCount = s.rec.ActionCount()
		c.SelectedColor = s.ctrl.Color()
	}
	return c
}

// Snapshot returns a read-only view for rendering.
func (s *Session) Snapshot() domain.SessionSnapshot {
	snap := domain.SessionSnapshot{
		State:         s.lifecycle.State(),
		Mode:          domain.ModeEdit,
		SelectedColor: DefaultColor,
		ActionLimit:   s.cfg.ActionLimit,
		Scale:         1,
	}
	if s.rec == nil {
		return snap
	}
	snap.Mode = s.ctrl.Mode()
	snap.SelectedColor = s.ctrl.Color()
	snap.ActionCount = s.rec.ActionCount()
	snap.Warned = s.rec.limiter.Warned()
	snap.Grid = s.store.Get()
	snap.Scale = s.ctrl.Scale()
	if rect, ok := s.ctrl.Selection(); ok {
		snap.Selection = &rect
	}
	return snap
}

// SolvingResult packages the session outcome for the host. IsCorrect is nil
// when no ground truth was loaded.
func (s *Session) SolvingResult() domain.SolvingResult {
	res := domain.SolvingResult{
		Solution: s.Grid(),
		Actions:  s.Log(),
		Signals:  s.Signals(),
	}
	if s.truth != nil && res.Solution != nil {
		ok := Equals(res.Solution, s.truth)
		res.IsCorrect = &ok
	}
	return res
}
