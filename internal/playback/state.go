package playback

// State is which surface is live.
type State int

const (
	StateMainActive State = iota
	StateFloatingActive
)

func (s State) String() string {
	switch s {
	case StateMainActive:
		return "main_active"
	case StateFloatingActive:
		return "floating_active"
	default:
		return "unknown"
	}
}

// SurfaceID identifies one of the two surfaces.
type SurfaceID string

const (
	SurfaceMain     SurfaceID = "main"
	SurfaceFloating SurfaceID = "floating"
)

// Handoff triggers, used as metric labels.
const (
	TriggerHidden  = "hidden"
	TriggerVisible = "visible"
	TriggerClose   = "close"
	TriggerEnded   = "ended"
)
