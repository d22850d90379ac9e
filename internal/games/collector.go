package games

import (
	"fmt"
	"time"

	"github.com/MJE43/emoji-arcade/internal/session"
	"github.com/MJE43/emoji-arcade/internal/tone"
)

var collectorSpec = GameSpec{
	ID:            "collector",
	Name:          "Dragon Ball Collector",
	Emoji:         "🐉",
	Description:   "Catch seven dragon balls before time runs out.",
	RecordName:    "collector_best",
	LowerIsBetter: true,
	Actions:       []string{ActionHit},
}

// victoryArpeggio plays when every ball has been collected.
var victoryArpeggio = []float64{523, 659, 784, 1047}

// Collectible is the payload of a spawned target. X and Y are fractions of
// the play area.
type Collectible struct {
	Emoji string  `json:"emoji"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
}

// CollectorDetail is the collector part of a view.
type CollectorDetail struct {
	Collected int    `json:"collected"`
	Target    int    `json:"target"`
	SeedHash  string `json:"seedHash"`
}

// collector spawns short-lived targets on a fixed cadence. Reaching the
// target count wins; the deadline loses. The record is the fastest win in
// milliseconds.
type collector struct {
	base
	cfg       CollectorSettings
	collected int
}

func newCollector(d Deps) (Game, error) {
	g := &collector{base: newBase(collectorSpec, d), cfg: d.Settings.Collector}
	g.sess = session.New(session.Config{
		GameID:        collectorSpec.ID,
		TimeLimit:     g.cfg.TimeLimit,
		RecordName:    collectorSpec.RecordName,
		LowerIsBetter: true,
	}, session.Rules{
		Plan: func() []session.Challenge {
			g.refresh()
			return nil
		},
		Setup: func(tx *session.Tx) {
			g.collected = 0
			g.spawnLoop(tx)
		},
		OnResolved: g.onResolved,
		OnEnd:      g.onEnd,
		RecordValue: func(s session.Summary) (int, bool) {
			return int(s.Elapsed / time.Millisecond), s.Outcome == session.OutcomeWon
		},
		Detail: func(*session.Tx) any {
			return CollectorDetail{Collected: g.collected, Target: g.cfg.Target, SeedHash: g.seedHash()}
		},
		SeedHash: g.seedHash,
	}, d.sessionOptions()...)
	return g, nil
}

func (g *collector) spawnLoop(tx *session.Tx) {
	g.spawn(tx)
	tx.After(g.cfg.SpawnEvery, g.spawnLoop)
}

func (g *collector) spawn(tx *session.Tx) {
	balls := g.pack.Collectibles
	tx.Present(session.Challenge{
		Kind:     "ball",
		Lifetime: g.cfg.Lifetime,
		Payload: Collectible{
			Emoji: balls[g.src.Intn(len(balls))],
			X:     g.src.Float(),
			Y:     g.src.Float(),
		},
	})
}

func (g *collector) Act(a Action) error {
	if a.Type != ActionHit {
		return unsupported(g.spec.ID, a)
	}
	return g.act(func(tx *session.Tx) error {
		_, err := tx.Hit(a.ChallengeID, 1, "")
		return err
	})
}

func (g *collector) onResolved(tx *session.Tx, r session.Resolution) {
	if r.Result != session.ResultHit {
		return
	}
	g.collected++
	n := g.collected
	tx.Play(tone.Cue(400+float64(n)*100, 200*time.Millisecond, tone.Sine, 0.25))
	if n >= g.cfg.Target {
		tx.End(session.OutcomeWon)
	}
}

func (g *collector) onEnd(tx *session.Tx, o session.Outcome) {
	switch o {
	case session.OutcomeWon:
		tx.Say(fmt.Sprintf("You gathered all %d dragon balls! Make your wish!", g.cfg.Target), session.MoodSuccess)
		cues := make([]tone.Tone, len(victoryArpeggio))
		for i, f := range victoryArpeggio {
			cues[i] = tone.Cue(f, 300*time.Millisecond, tone.Sine, 0.2)
		}
		tx.PlaySequence(150*time.Millisecond, cues...)
	case session.OutcomeLost:
		tx.Say("Time's up! Try again!", session.MoodFailure)
		tx.Play(tone.Cue(200, 500*time.Millisecond, tone.Sawtooth, 0.15))
	}
}
