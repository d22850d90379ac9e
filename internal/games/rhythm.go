package games

import (
	"fmt"
	"time"

	"github.com/MJE43/emoji-arcade/internal/content"
	"github.com/MJE43/emoji-arcade/internal/session"
	"github.com/MJE43/emoji-arcade/internal/tone"
)

var rhythmSpec = GameSpec{
	ID:          "rhythm",
	Name:        "Dance Rhythm",
	Emoji:       "💃",
	Description: "Tap each lane as its note reaches the line.",
	RecordName:  "rhythm_record",
	Actions:     []string{ActionTap},
}

// laneTones gives each lane its own pitch.
var laneTones = []float64{261.63, 329.63, 392.00, 523.25}

// RhythmNote is the payload of a falling note.
type RhythmNote struct {
	Lane int `json:"lane"`
	// At is the note's offset from the start of the run in milliseconds.
	At int `json:"at"`
}

// RhythmDetail is the rhythm part of a view.
type RhythmDetail struct {
	Lanes    int            `json:"lanes"`
	Tiers    []session.Tier `json:"tiers"`
	LastTier string         `json:"lastTier,omitempty"`
	Played   int            `json:"played"`
	Notes    int            `json:"notes"`
}

// rhythm presents each chart note Approach before its hit time. A tap is
// scored by its distance to the hit time through the tier table; a tap
// outside every tier is a miss, and a note nobody taps expires as one once
// the widest window has passed.
type rhythm struct {
	base
	cfg   RhythmSettings
	tiers session.Tiers

	chart    content.Chart
	started  time.Time
	played   int
	lastTier string
}

func newRhythm(d Deps) (Game, error) {
	tiers, err := session.NewTiers(d.Settings.Rhythm.Tiers...)
	if err != nil {
		return nil, err
	}
	g := &rhythm{base: newBase(rhythmSpec, d), cfg: d.Settings.Rhythm, tiers: tiers}
	g.sess = session.New(session.Config{
		GameID:       rhythmSpec.ID,
		ComboBonus:   g.cfg.ComboBonus,
		RecordName:   rhythmSpec.RecordName,
		RequireQueue: true,
	}, session.Rules{
		Plan:       g.plan,
		Discard:    g.discard,
		Setup:      g.setup,
		OnResolved: g.onResolved,
		OnEnd: func(tx *session.Tx, o session.Outcome) {
			if o == session.OutcomeCompleted {
				tx.Say("Chart complete!", session.MoodSuccess)
			}
		},
		Detail: func(*session.Tx) any {
			return RhythmDetail{
				Lanes:    g.chart.Lanes,
				Tiers:    g.tiers,
				LastTier: g.lastTier,
				Played:   g.played,
				Notes:    len(g.chart.Notes),
			}
		},
		SeedHash: g.seedHash,
	}, d.sessionOptions()...)
	return g, nil
}

func (g *rhythm) plan() []session.Challenge {
	g.refresh()
	window := g.window()
	out := make([]session.Challenge, 0, len(g.pack.Rhythm.Notes))
	for _, n := range g.pack.Rhythm.Notes {
		out = append(out, session.Challenge{
			Kind:     "note",
			Lifetime: g.cfg.Approach + window,
			Payload:  RhythmNote{Lane: n.Lane, At: n.At},
		})
	}
	return out
}

func (g *rhythm) window() time.Duration {
	return time.Duration(g.tiers.Widest() * float64(time.Millisecond))
}

func (g *rhythm) setup(tx *session.Tx) {
	g.chart = g.pack.Rhythm
	g.started = tx.Now()
	g.played = 0
	g.lastTier = ""
	// Notes are presented in chart order; ties keep their order on the
	// clock, so tx.Next always presents the note this timer belongs to.
	for _, n := range g.chart.Notes {
		at := time.Duration(n.At)*time.Millisecond - g.cfg.Approach
		if at < 0 {
			at = 0
		}
		tx.After(at, func(tx *session.Tx) { tx.Next() })
	}
}

// Act scores a tap against the closest outstanding note in its lane. A tap
// on an empty lane is ignored.
func (g *rhythm) Act(a Action) error {
	if a.Type != ActionTap {
		return unsupported(g.spec.ID, a)
	}
	return g.act(func(tx *session.Tx) error {
		if a.Lane < 0 || a.Lane >= g.chart.Lanes {
			return fmt.Errorf("%w: lane %d", session.ErrInvalidChoice, a.Lane)
		}
		now := tx.Now()
		var (
			best   session.Challenge
			offset time.Duration
			found  bool
		)
		for _, ch := range tx.Outstanding() {
			note := ch.Payload.(RhythmNote)
			if note.Lane != a.Lane {
				continue
			}
			d := now.Sub(g.started.Add(time.Duration(note.At) * time.Millisecond))
			if !found || abs(d) < abs(offset) {
				best, offset, found = ch, d, true
			}
		}
		if !found {
			return nil
		}
		tier, ok := g.tiers.ClassifyOffset(offset)
		if !ok {
			_, err := tx.Miss(best.ID)
			return err
		}
		if _, err := tx.Hit(best.ID, tier.Points, tier.Name); err != nil {
			return err
		}
		tx.Play(tone.Cue(laneTones[a.Lane%len(laneTones)], 200*time.Millisecond, tone.Triangle, 0.25))
		return nil
	})
}

func (g *rhythm) onResolved(tx *session.Tx, r session.Resolution) {
	g.played++
	g.lastTier = r.Tier
	if r.Result != session.ResultHit {
		g.lastTier = "miss"
	}
	if g.played >= len(g.chart.Notes) {
		tx.End(session.OutcomeCompleted)
	}
}

func abs(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
