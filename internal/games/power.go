package games

import (
	"fmt"
	"time"

	"github.com/MJE43/emoji-arcade/internal/content"
	"github.com/MJE43/emoji-arcade/internal/session"
	"github.com/MJE43/emoji-arcade/internal/tone"
)

var powerSpec = GameSpec{
	ID:            "power",
	Name:          "Power Level",
	Emoji:         "💥",
	Description:   "Charge your ki to 100. Fewer charges is better.",
	RecordName:    "power_record",
	LowerIsBetter: true,
	Actions:       []string{ActionCharge},
}

// PowerDetail is the power level part of a view.
type PowerDetail struct {
	Level   int          `json:"level"`
	Display int          `json:"display"` // level × 100, as shown on the scouter
	Rank    content.Rank `json:"rank"`
	Charges int          `json:"charges"`
	Max     int          `json:"max"`
}

// power has no challenges: every charge raises the level by a random amount
// and reaching the maximum completes the run. The session returns to idle
// after a short celebration, and the record is the fewest charges needed.
type power struct {
	base
	cfg     PowerSettings
	charges int
}

func newPower(d Deps) (Game, error) {
	g := &power{base: newBase(powerSpec, d), cfg: d.Settings.Power}
	g.sess = session.New(session.Config{
		GameID:        powerSpec.ID,
		RecordName:    powerSpec.RecordName,
		LowerIsBetter: true,
		ResetDelay:    g.cfg.ResetDelay,
	}, session.Rules{
		Plan: func() []session.Challenge {
			g.refresh()
			return nil
		},
		Setup: func(tx *session.Tx) { g.charges = 0 },
		RecordValue: func(s session.Summary) (int, bool) {
			return g.charges, s.Outcome == session.OutcomeCompleted
		},
		Detail: func(tx *session.Tx) any {
			level := 0
			if tx.Status() != session.StatusIdle {
				level = tx.Score()
			}
			return PowerDetail{
				Level:   level,
				Display: level * 100,
				Rank:    g.pack.RankFor(level),
				Charges: g.charges,
				Max:     g.cfg.Max,
			}
		},
		SeedHash: g.seedHash,
	}, d.sessionOptions()...)
	return g, nil
}

// Act charges the level, starting a run from idle.
func (g *power) Act(a Action) error {
	if a.Type != ActionCharge {
		return unsupported(g.spec.ID, a)
	}
	return g.sess.Do(func(tx *session.Tx) error {
		switch tx.Status() {
		case session.StatusEnded:
			return ErrNotReady
		case session.StatusIdle:
			if err := tx.Begin(); err != nil {
				return err
			}
		}
		g.charges++
		level := tx.Score() + g.src.Between(g.cfg.MinCharge, g.cfg.MaxCharge)
		if level > g.cfg.Max {
			level = g.cfg.Max
		}
		tx.SetScore(level)
		tx.Play(tone.Cue(200+float64(level)*8, 150*time.Millisecond, tone.Sawtooth, 0.15))
		if level < g.cfg.Max {
			return nil
		}
		tx.End(session.OutcomeCompleted)
		tx.Say(fmt.Sprintf("%s mastered in %d charges!", g.pack.RankFor(level).Label, g.charges), session.MoodSuccess)
		tx.PlaySequence(200*time.Millisecond,
			tone.Cue(800, 500*time.Millisecond, tone.Sawtooth, 0.2),
			tone.Cue(1000, 500*time.Millisecond, tone.Sawtooth, 0.2))
		return nil
	})
}
