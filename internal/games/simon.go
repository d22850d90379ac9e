package games

import (
	"fmt"
	"time"

	"github.com/MJE43/emoji-arcade/internal/content"
	"github.com/MJE43/emoji-arcade/internal/session"
	"github.com/MJE43/emoji-arcade/internal/tone"
)

var simonSpec = GameSpec{
	ID:          "simon",
	Name:        "Musical Simon Says",
	Emoji:       "🎵",
	Description: "Repeat the growing melody; one wrong pad ends the game.",
	RecordName:  "simon_record",
	Actions:     []string{ActionPress},
}

// SimonDetail is the Simon part of a view. The melody itself is only
// revealed through playback.
type SimonDetail struct {
	Round     int           `json:"round"`
	Pads      []content.Pad `json:"pads"`
	Lit       int           `json:"lit"` // -1 when no pad is lit
	Listening bool          `json:"listening"`
	Progress  int           `json:"progress"`
}

// simon plays a melody one pad longer each round. Each round is one
// challenge: repeating it fully is a hit, a wrong pad is a miss that ends
// the game. The best completed round is checkpointed as the record.
type simon struct {
	base
	cfg SimonSettings

	melody    []int
	pos       int
	round     int
	listening bool
	lit       int
	roundID   string
}

func newSimon(d Deps) (Game, error) {
	g := &simon{base: newBase(simonSpec, d), cfg: d.Settings.Simon, lit: -1}
	g.sess = session.New(session.Config{
		GameID:     simonSpec.ID,
		RecordName: simonSpec.RecordName,
	}, session.Rules{
		Plan: func() []session.Challenge {
			g.refresh()
			return nil
		},
		Setup: func(tx *session.Tx) {
			g.melody = g.melody[:0]
			g.round = 0
			g.nextRound(tx)
		},
		OnEnd: func(tx *session.Tx, o session.Outcome) {
			g.listening = false
			g.lit = -1
		},
		Detail: func(*session.Tx) any {
			return SimonDetail{
				Round:     g.round,
				Pads:      g.pack.Simon,
				Lit:       g.lit,
				Listening: g.listening,
				Progress:  g.pos,
			}
		},
		SeedHash: g.seedHash,
	}, d.sessionOptions()...)
	return g, nil
}

func (g *simon) nextRound(tx *session.Tx) {
	g.round++
	g.pos = 0
	g.listening = false
	g.melody = append(g.melody, g.src.Intn(len(g.pack.Simon)))
	tx.Say(fmt.Sprintf("Round %d: listen", g.round), session.MoodInfo)

	for i, pad := range g.melody {
		pad := pad
		tx.After(g.cfg.Step*time.Duration(i+1), func(tx *session.Tx) { g.flash(tx, pad) })
	}
	tx.After(g.cfg.Step*time.Duration(len(g.melody)+1), func(tx *session.Tx) {
		g.listening = true
		g.roundID = tx.Present(session.Challenge{Kind: "round", Payload: g.round}).ID
		tx.Say("Your turn!", session.MoodInfo)
	})
}

func (g *simon) flash(tx *session.Tx, pad int) {
	g.lit = pad
	tx.Play(tone.Cue(g.pack.Simon[pad].Frequency, 300*time.Millisecond, tone.Sine, 0.3))
	if g.cfg.FlashFor > 0 {
		tx.After(g.cfg.FlashFor, func(tx *session.Tx) {
			if g.lit == pad {
				g.lit = -1
			}
		})
	}
}

func (g *simon) Act(a Action) error {
	if a.Type != ActionPress {
		return unsupported(g.spec.ID, a)
	}
	return g.act(func(tx *session.Tx) error {
		if !g.listening {
			return ErrNotReady
		}
		if a.Option < 0 || a.Option >= len(g.pack.Simon) {
			return fmt.Errorf("%w: pad %d", session.ErrInvalidChoice, a.Option)
		}
		g.flash(tx, a.Option)

		if g.melody[g.pos] != a.Option {
			g.listening = false
			if _, err := tx.Miss(g.roundID); err != nil {
				return err
			}
			tx.Say(fmt.Sprintf("Missed! You reached round %d", g.round), session.MoodFailure)
			tx.Play(tone.Cue(150, 500*time.Millisecond, tone.Sawtooth, 0.2))
			tx.End(session.OutcomeFailed)
			return nil
		}

		g.pos++
		if g.pos < len(g.melody) {
			return nil
		}
		g.listening = false
		if _, err := tx.Hit(g.roundID, 1, ""); err != nil {
			return err
		}
		tx.Say("Correct!!", session.MoodSuccess)
		tx.Checkpoint(g.round)
		tx.After(g.cfg.RoundDelay, g.nextRound)
		return nil
	})
}
