package games

import (
	"time"

	"github.com/MJE43/emoji-arcade/internal/session"
	"github.com/MJE43/emoji-arcade/internal/tone"
)

var bubblesSpec = GameSpec{
	ID:          "bubbles",
	Name:        "Bubble Pop",
	Emoji:       "🫧",
	Description: "Pop as many floating bubbles as you like.",
	RecordName:  "bubbles_record",
	Actions:     []string{ActionHit},
}

// Bubble is the payload of a floating bubble.
type Bubble struct {
	Emoji string  `json:"emoji"`
	X     float64 `json:"x"`
	Size  float64 `json:"size"` // fraction of the default bubble size, 1..1.8
}

// bubbles runs until stopped. Bubbles float away after their lifetime
// without penalty beyond breaking the combo, and each one pops only once.
type bubbles struct {
	base
	cfg BubbleSettings
}

func newBubbles(d Deps) (Game, error) {
	g := &bubbles{base: newBase(bubblesSpec, d), cfg: d.Settings.Bubbles}
	g.sess = session.New(session.Config{
		GameID:     bubblesSpec.ID,
		RecordName: bubblesSpec.RecordName,
	}, session.Rules{
		Plan: func() []session.Challenge {
			g.refresh()
			return nil
		},
		Setup:    g.setup,
		SeedHash: g.seedHash,
	}, d.sessionOptions()...)
	return g, nil
}

func (g *bubbles) setup(tx *session.Tx) {
	for i := 0; i < g.cfg.Initial; i++ {
		if i == 0 {
			g.spawn(tx)
			continue
		}
		tx.After(g.cfg.Stagger*time.Duration(i), g.spawn)
	}
	tx.After(g.cfg.SpawnEvery, g.spawnLoop)
}

func (g *bubbles) spawnLoop(tx *session.Tx) {
	g.spawn(tx)
	tx.After(g.cfg.SpawnEvery, g.spawnLoop)
}

func (g *bubbles) spawn(tx *session.Tx) {
	emoji := g.pack.Bubbles
	tx.Present(session.Challenge{
		Kind:     "bubble",
		Lifetime: g.cfg.Lifetime,
		Payload: Bubble{
			Emoji: emoji[g.src.Intn(len(emoji))],
			X:     g.src.Float(),
			Size:  1 + g.src.Float()*0.8,
		},
	})
}

func (g *bubbles) Act(a Action) error {
	if a.Type != ActionHit {
		return unsupported(g.spec.ID, a)
	}
	return g.act(func(tx *session.Tx) error {
		if _, err := tx.Hit(a.ChallengeID, 1, ""); err != nil {
			return err
		}
		tx.Play(tone.Cue(600+g.src.Float()*400, 150*time.Millisecond, tone.Sine, 0.25))
		return nil
	})
}
