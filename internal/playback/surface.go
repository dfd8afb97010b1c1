package playback

// EventType names a signal emitted by a playback surface.
type EventType string

const (
	EventPlay         EventType = "play"
	EventPause        EventType = "pause"
	EventTimeUpdate   EventType = "timeupdate"
	EventEnded        EventType = "ended"
	EventVolumeChange EventType = "volumechange"
)

// Handler reacts to a surface signal. Handlers run one at a time on the
// owning cycle's event loop.
type Handler func()

// Surface is one video playback surface (main or floating).
type Surface interface {
	Load(mediaURL string)
	Play()
	Pause()
	Paused() bool
	// Ended reports whether playback reached the end of the media.
	Ended() bool

	CurrentTime() float64
	SetCurrentTime(seconds float64)
	// Duration is NaN until media is loaded.
	Duration() float64

	Volume() float64
	SetVolume(v float64)
	Muted() bool
	SetMuted(m bool)

	// Subscribe registers h for ev and returns a function that removes it.
	Subscribe(ev EventType, h Handler) (unsubscribe func())
}

// VisibilitySignal reports whether the main surface is in the viewport.
type VisibilitySignal interface {
	OnVisibilityChange(fn func(visible bool)) (unsubscribe func())
}

// Presenter shows and hides the floating presentation.
type Presenter interface {
	ShowFloating()
	HideFloating()
}

// Observer receives the signals of whichever surface is active.
type Observer interface {
	OnPlay()
	OnPause()
	OnTimeUpdate(position, duration float64)
	OnEnded()
	OnVolumeChange(volume float64, muted bool)
}
