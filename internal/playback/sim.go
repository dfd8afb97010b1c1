package playback

import "math"

// Dispatcher schedules fn to run on the owning event loop. A nil
// Dispatcher runs fn immediately.
type Dispatcher func(fn func())

type subscription struct {
	id int
	h  Handler
}

// SimSurface is an in-process Surface. Position only advances on Tick, and
// signals are delivered through the Dispatcher so they never run inside the
// call that caused them.
type SimSurface struct {
	name     string
	dispatch Dispatcher

	mediaURL string
	duration float64
	position float64
	volume   float64
	muted    bool
	paused   bool
	ended    bool

	nextID   int
	handlers map[EventType][]subscription
}

// NewSimSurface creates a paused, empty surface. duration is what the
// surface reports once media is loaded.
func NewSimSurface(name string, duration float64, dispatch Dispatcher) *SimSurface {
	return &SimSurface{
		name:     name,
		dispatch: dispatch,
		duration: duration,
		volume:   1,
		paused:   true,
		handlers: make(map[EventType][]subscription),
	}
}

func (s *SimSurface) Name() string     { return s.name }
func (s *SimSurface) MediaURL() string { return s.mediaURL }
func (s *SimSurface) Ended() bool      { return s.ended }

func (s *SimSurface) Load(mediaURL string) {
	s.mediaURL = mediaURL
	s.position = 0
	s.paused = true
	s.ended = false
}

func (s *SimSurface) Play() {
	if s.mediaURL == "" || !s.paused {
		return
	}
	if s.ended {
		s.position = 0
		s.ended = false
	}
	s.paused = false
	s.emit(EventPlay)
}

func (s *SimSurface) Pause() {
	if s.paused {
		return
	}
	s.paused = true
	s.emit(EventPause)
}

func (s *SimSurface) Paused() bool { return s.paused }

func (s *SimSurface) CurrentTime() float64 { return s.position }

func (s *SimSurface) SetCurrentTime(seconds float64) {
	if math.IsNaN(seconds) {
		return
	}
	if seconds < 0 {
		seconds = 0
	}
	if d := s.Duration(); !math.IsNaN(d) && seconds > d {
		seconds = d
	}
	s.position = seconds
	if s.ended && seconds < s.duration {
		s.ended = false
	}
	s.emit(EventTimeUpdate)
}

func (s *SimSurface) Duration() float64 {
	if s.mediaURL == "" {
		return math.NaN()
	}
	return s.duration
}

// SetDuration changes the reported media duration.
func (s *SimSurface) SetDuration(d float64) { s.duration = d }

func (s *SimSurface) Volume() float64 { return s.volume }

func (s *SimSurface) SetVolume(v float64) {
	v = math.Max(0, math.Min(1, v))
	if v == s.volume {
		return
	}
	s.volume = v
	s.emit(EventVolumeChange)
}

func (s *SimSurface) Muted() bool { return s.muted }

func (s *SimSurface) SetMuted(m bool) {
	if m == s.muted {
		return
	}
	s.muted = m
	s.emit(EventVolumeChange)
}

// Tick advances a playing surface by dt seconds, emitting timeupdate and,
// at the end of the media, ended.
func (s *SimSurface) Tick(dt float64) {
	if s.paused || s.ended || s.mediaURL == "" {
		return
	}
	s.position += dt
	if s.position < s.duration {
		s.emit(EventTimeUpdate)
		return
	}
	s.position = s.duration
	s.paused = true
	s.ended = true
	// no pause signal at natural end, so the tracker sends no pause beacon
	s.emit(EventTimeUpdate)
	s.emit(EventEnded)
}

func (s *SimSurface) Subscribe(ev EventType, h Handler) func() {
	s.nextID++
	id := s.nextID
	s.handlers[ev] = append(s.handlers[ev], subscription{id: id, h: h})

	return func() {
		subs := s.handlers[ev]
		for i, sub := range subs {
			if sub.id == id {
				s.handlers[ev] = append(subs[:i:i], subs[i+1:]...)
				return
			}
		}
	}
}

// emit delivers ev to the handlers registered when the signal is delivered,
// not when it was raised.
func (s *SimSurface) emit(ev EventType) {
	deliver := func() {
		subs := append([]subscription(nil), s.handlers[ev]...)
		for _, sub := range subs {
			sub.h()
		}
	}
	if s.dispatch == nil {
		deliver()
		return
	}
	s.dispatch(deliver)
}

// SimVisibility is a VisibilitySignal driven by Set.
type SimVisibility struct {
	dispatch Dispatcher
	visible  bool
	nextID   int
	subs     map[int]func(bool)
	order    []int
}

// NewSimVisibility starts visible.
func NewSimVisibility(dispatch Dispatcher) *SimVisibility {
	return &SimVisibility{
		dispatch: dispatch,
		visible:  true,
		subs:     make(map[int]func(bool)),
	}
}

func (v *SimVisibility) Visible() bool { return v.visible }

func (v *SimVisibility) OnVisibilityChange(fn func(bool)) func() {
	v.nextID++
	id := v.nextID
	v.subs[id] = fn
	v.order = append(v.order, id)
	return func() { delete(v.subs, id) }
}

// Set reports a new visibility. Unchanged values are not re-emitted.
func (v *SimVisibility) Set(visible bool) {
	if visible == v.visible {
		return
	}
	v.visible = visible
	deliver := func() {
		for _, id := range v.order {
			if fn, ok := v.subs[id]; ok {
				fn(visible)
			}
		}
	}
	if v.dispatch == nil {
		deliver()
		return
	}
	v.dispatch(deliver)
}
