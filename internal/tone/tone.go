// Package tone generates short fire-and-forget sound cues.
package tone

import (
	"math"
	"sync"
	"time"

	"github.com/MJE43/emoji-arcade/internal/engine"
	xlog "github.com/MJE43/emoji-arcade/internal/log"
	"github.com/MJE43/emoji-arcade/internal/metrics"
)

// Waveform is the oscillator shape.
type Waveform string

const (
	Sine     Waveform = "sine"
	Square   Waveform = "square"
	Sawtooth Waveform = "sawtooth"
	Triangle Waveform = "triangle"
)

// Tone is one decaying cue. The surface that plays it ramps the gain from
// Volume down to 0.01 over Duration.
type Tone struct {
	Frequency float64       `json:"frequency"` // Hz
	Duration  time.Duration `json:"duration"`
	Waveform  Waveform      `json:"waveform"`
	Volume    float64       `json:"volume"` // peak gain, 0..1
}

// New returns a tone with the defaults used across the arcade
// (0.3s sine at volume 0.3) overridden by the given frequency.
func New(freq float64) Tone {
	return Tone{Frequency: freq, Duration: 300 * time.Millisecond, Waveform: Sine, Volume: 0.3}
}

// Cue builds a fully specified tone.
func Cue(freq float64, d time.Duration, w Waveform, volume float64) Tone {
	return Tone{Frequency: freq, Duration: d, Waveform: w, Volume: volume}
}

// Normalize clamps volume to [0, 1] and fills empty fields.
func (t Tone) Normalize() Tone {
	if t.Waveform == "" {
		t.Waveform = Sine
	}
	if t.Duration <= 0 {
		t.Duration = 300 * time.Millisecond
	}
	t.Volume = math.Max(0, math.Min(1, t.Volume))
	return t
}

// Player plays tones without blocking and without reporting failure.
type Player interface {
	Play(t Tone)
}

// Nop discards every tone.
type Nop struct{}

func (Nop) Play(Tone) {}

// Safe wraps a player so a failing audio path (a panic in the sink, a
// missing frontend) never reaches the caller.
func Safe(p Player) Player {
	if p == nil {
		return Nop{}
	}
	return safePlayer{p}
}

type safePlayer struct{ next Player }

func (s safePlayer) Play(t Tone) {
	defer func() {
		if r := recover(); r != nil {
			metrics.ToneDropped()
			logger := xlog.WithComponent("tone")
			logger.Debug().Interface("panic", r).Float64("frequency", t.Frequency).Msg("audio output unavailable; tone dropped")
		}
	}()
	s.next.Play(t.Normalize())
}

// Sequence plays tones spaced step apart on clock, the first at offset 0.
// Relative order is guaranteed by the clock.
func Sequence(p Player, clock engine.Clock, step time.Duration, tones ...Tone) []engine.Timer {
	timers := make([]engine.Timer, 0, len(tones))
	for i, t := range tones {
		t := t
		if i == 0 {
			p.Play(t)
			continue
		}
		timers = append(timers, clock.AfterFunc(time.Duration(i)*step, func() { p.Play(t) }))
	}
	return timers
}

// Recorder captures played tones; useful for tests and for forwarding cues
// to a frontend that does the actual synthesis.
type Recorder struct {
	mu    sync.Mutex
	tones []Tone
}

func (r *Recorder) Play(t Tone) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tones = append(r.tones, t.Normalize())
}

// Tones returns a copy of everything played so far.
func (r *Recorder) Tones() []Tone {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Tone(nil), r.tones...)
}

// Frequencies returns the frequency of each recorded tone.
func (r *Recorder) Frequencies() []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]float64, len(r.tones))
	for i, t := range r.tones {
		out[i] = t.Frequency
	}
	return out
}

// Reset forgets recorded tones.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tones = nil
}

// Func adapts a function to Player.
type Func func(Tone)

func (f Func) Play(t Tone) { f(t) }
