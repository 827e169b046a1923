package editor

import "github.com/arc-hci/arcgrid/internal/domain"

// DefaultColor is the paint color selected when a session begins.
const DefaultColor = 1

// dragState is an in-progress select gesture.
type dragState struct {
	anchor domain.Cell
	cursor domain.Cell
}

// pinchState is an in-progress two-finger zoom gesture.
type pinchState struct {
	lastDistance float64
}

// ModeController interprets pointer input according to the active mode and
// gesture phase and turns committed gestures into Recorder calls.
type ModeController struct {
	rec      *Recorder
	store    *GridStore
	resolver Resolver

	mode  domain.Mode
	color int
	scale float64
	drag  *dragState
	pinch *pinchState
}

// NewModeController starts in edit mode with DefaultColor and zoom 1.
func NewModeController(rec *Recorder, store *GridStore, resolver Resolver) *ModeController {
	return &ModeController{
		rec:      rec,
		store:    store,
		resolver: resolver,
		mode:     domain.ModeEdit,
		color:    DefaultColor,
		scale:    1,
	}
}

// Mode returns the active mode.
func (m *ModeController) Mode() domain.Mode { return m.mode }

// Color returns the selected paint color.
func (m *ModeController) Color() int { return m.color }

// Scale returns the current zoom factor.
func (m *ModeController) Scale() float64 { return m.scale }

// Dragging reports whether a select gesture is in progress.
func (m *ModeController) Dragging() bool { return m.drag != nil }

// Selection returns the normalized rect of the in-progress select gesture.
func (m *ModeController) Selection() (domain.Rect, bool) {
	if m.drag == nil {
		return domain.Rect{}, false
	}
	return domain.NormalizeRect(m.drag.anchor, m.drag.cursor), true
}

// SetMode switches the active mode. A select gesture in progress is
// abandoned without an Action.
func (m *ModeController) SetMode(mode domain.Mode) error {
	if !mode.Valid() {
		return domain.ErrInvalidMode
	}
	m.drag = nil
	m.mode = mode
	return nil
}

// SelectColor changes the paint color. It is not an Action.
func (m *ModeController) SelectColor(color int) error {
	if !domain.ValidColor(color) {
		return domain.ErrInvalidColor
	}
	m.color = color
	return nil
}

// Press handles a press on a resolved cell.
func (m *ModeController) Press(cell domain.Cell) (Outcome, error) {
	switch m.mode {
	case domain.ModeEdit:
		return m.rec.ChangeCell(cell.Row, cell.Col, m.color)
	case domain.ModeFill:
		return m.rec.FillAll(m.color)
	case domain.ModeSelect:
		m.drag = &dragState{anchor: cell, cursor: cell}
	}
	return Outcome{}, nil
}

// Move updates the cursor of an in-progress select gesture.
func (m *ModeController) Move(cell domain.Cell) {
	if m.mode == domain.ModeSelect && m.drag != nil {
		m.drag.cursor = cell
	}
}

// Release commits an in-progress select gesture as a select_region action.
// Outside a select gesture it is a no-op.
func (m *ModeController) Release() (Outcome, error) {
	if m.mode != domain.ModeSelect || m.drag == nil {
		return Outcome{}, nil
	}
	rect := domain.NormalizeRect(m.drag.anchor, m.drag.cursor)
	m.drag = nil
	return m.rec.SelectRegion(rect, m.color)
}

// Cancel abandons an in-progress select gesture without an Action.
func (m *ModeController) Cancel() {
	m.drag = nil
}

// HandlePointer is the single entry point for mouse and touch input.
func (m *ModeController) HandlePointer(ev domain.PointerEvent, vp domain.Viewport) (Outcome, error) {
	if m.handlePinch(ev) {
		return Outcome{}, nil
	}

	rows, cols := m.store.Rows(), m.store.Cols()
	cell, ok := m.resolver.Resolve(ev.X, ev.Y, rows, cols, vp, m.scale)

	switch ev.Kind {
	case domain.PointerStart:
		if !ok {
			return Outcome{}, nil
		}
		return m.Press(cell)
	case domain.PointerMove:
		if ok {
			m.Move(cell)
		}
		return Outcome{}, nil
	case domain.PointerEnd:
		return m.Release()
	case domain.PointerCancel, domain.PointerLeave:
		m.Cancel()
		return Outcome{}, nil
	}
	return Outcome{}, nil
}

// handlePinch consumes two-finger events. It reports whether ev was part of
// a pinch gesture. Pinching never emits an Action or touches the grid.
func (m *ModeController) handlePinch(ev domain.PointerEvent) bool {
	twoFinger := ev.PointerCount >= 2 && len(ev.Points) >= 2
	switch {
	case twoFinger && (ev.Kind == domain.PointerStart || (ev.Kind == domain.PointerMove && m.pinch == nil)):
		m.drag = nil
		m.pinch = &pinchState{lastDistance: distance(ev.Points[0], ev.Points[1])}
		return true
	case twoFinger && ev.Kind == domain.PointerMove:
		cur := distance(ev.Points[0], ev.Points[1])
		if m.pinch.lastDistance > 0 && cur > 0 {
			m.scale = ClampZoom(m.scale * (cur / m.pinch.lastDistance))
		}
		m.pinch.lastDistance = cur
		return true
	case m.pinch != nil:
		// Lifting fingers ends the pinch; the remaining finger must start a new gesture.
		if ev.Kind == domain.PointerEnd || ev.Kind == domain.PointerCancel || ev.Kind == domain.PointerLeave {
			m.pinch = nil
		}
		return true
	case twoFinger:
		// Trailing lift of a pinch that already ended.
		return true
	}
	return false
}
