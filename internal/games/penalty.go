package games

import (
	"fmt"
	"math"
	"time"

	"github.com/MJE43/emoji-arcade/internal/session"
	"github.com/MJE43/emoji-arcade/internal/tone"
)

var penaltySpec = GameSpec{
	ID:          "penalty",
	Name:        "Penalty Shootout",
	Emoji:       "🥅",
	Description: "Five shots. Aim for the corners and beat the keeper.",
	RecordName:  "penalty_record",
	Actions:     []string{ActionAim},
}

// Goal coordinates are normalised: (0,0) is the top-left corner of the goal
// mouth and (1,1) the bottom-right.
type point struct{ x, y float64 }

var keeperZones = map[string]point{
	"top-left":     {0.2, 0.25},
	"top-right":    {0.8, 0.25},
	"bottom-left":  {0.2, 0.75},
	"bottom-right": {0.8, 0.75},
	"center":       {0.5, 0.5},
}

var goalCorners = []point{{0, 0}, {1, 0}, {0, 1}, {1, 1}}

// ShotOutcome is the result of the last shot.
type ShotOutcome struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Keeper string  `json:"keeper"`
	Result string  `json:"result"` // goal, saved or wide
	Tier   string  `json:"tier,omitempty"`
}

// PenaltyDetail is the shootout part of a view.
type PenaltyDetail struct {
	Shot  int          `json:"shot"`
	Shots int          `json:"shots"`
	Goals int          `json:"goals"`
	Last  *ShotOutcome `json:"last,omitempty"`
}

// penalty presents one shot at a time. The keeper's dive is drawn when the
// shot is presented and revealed only after the player aims. Shots inside
// the save radius of the dive are saved; shots off the goal are wide; the
// rest score through the tier table by distance from the nearest corner.
type penalty struct {
	base
	cfg   PenaltySettings
	tiers session.Tiers

	keeper string
	shot   int
	goals  int
	aimed  bool
	last   *ShotOutcome
}

func newPenalty(d Deps) (Game, error) {
	tiers, err := session.NewTiers(d.Settings.Penalty.Tiers...)
	if err != nil {
		return nil, err
	}
	g := &penalty{base: newBase(penaltySpec, d), cfg: d.Settings.Penalty, tiers: tiers}
	g.sess = session.New(session.Config{
		GameID:       penaltySpec.ID,
		ComboBonus:   g.cfg.ComboBonus,
		RecordName:   penaltySpec.RecordName,
		RequireQueue: true,
	}, session.Rules{
		Plan: func() []session.Challenge {
			g.refresh()
			out := make([]session.Challenge, g.cfg.Shots)
			for i := range out {
				out[i] = session.Challenge{Kind: "shot", Payload: i + 1}
			}
			return out
		},
		Discard: g.discard,
		Setup: func(tx *session.Tx) {
			g.shot, g.goals, g.last = 0, 0, nil
			g.next(tx)
		},
		OnEnd: func(tx *session.Tx, o session.Outcome) {
			if o == session.OutcomeCompleted {
				tx.Say(fmt.Sprintf("Shootout over: %d of %d scored", g.goals, g.cfg.Shots), session.MoodSuccess)
			}
		},
		Detail: func(*session.Tx) any {
			return PenaltyDetail{Shot: g.shot, Shots: g.cfg.Shots, Goals: g.goals, Last: g.last}
		},
		SeedHash: g.seedHash,
	}, d.sessionOptions()...)
	return g, nil
}

func (g *penalty) next(tx *session.Tx) {
	if _, ok := tx.Next(); !ok {
		tx.End(session.OutcomeCompleted)
		return
	}
	zones := g.pack.Penalty.Zones
	g.keeper = zones[g.src.Intn(len(zones))]
	g.shot = tx.Cursor()
	g.aimed = false
}

func (g *penalty) Act(a Action) error {
	if a.Type != ActionAim {
		return unsupported(g.spec.ID, a)
	}
	return g.act(func(tx *session.Tx) error {
		ch, ok := tx.Current()
		if !ok {
			if g.aimed {
				return session.ErrAlreadyResolved
			}
			return ErrNotReady
		}
		g.aimed = true
		out := g.judge(a.X, a.Y)
		g.last = &out

		switch out.Result {
		case "goal":
			tier, _ := g.tiers.Classify(nearestCorner(point{a.X, a.Y}))
			if _, err := tx.Hit(ch.ID, tier.Points, tier.Name); err != nil {
				return err
			}
			g.goals++
			tx.Say("GOAL!", session.MoodSuccess)
			tx.PlaySequence(120*time.Millisecond,
				tone.Cue(523, 150*time.Millisecond, tone.Sine, 0.2),
				tone.Cue(784, 250*time.Millisecond, tone.Sine, 0.2))
		default:
			if _, err := tx.Miss(ch.ID); err != nil {
				return err
			}
			if out.Result == "saved" {
				tx.Say("Saved by the keeper!", session.MoodFailure)
			} else {
				tx.Say("Wide!", session.MoodFailure)
			}
			tx.Play(tone.Cue(200, 300*time.Millisecond, tone.Sawtooth, 0.15))
		}
		tx.After(g.cfg.RevealDelay, g.next)
		return nil
	})
}

func (g *penalty) judge(x, y float64) ShotOutcome {
	out := ShotOutcome{X: x, Y: y, Keeper: g.keeper}
	if math.IsNaN(x) || math.IsNaN(y) || x < 0 || x > 1 || y < 0 || y > 1 {
		out.Result = "wide"
		return out
	}
	// Zones the geometry does not know never save.
	if dive, ok := keeperZones[g.keeper]; ok && math.Hypot(x-dive.x, y-dive.y) <= g.cfg.SaveRadius {
		out.Result = "saved"
		return out
	}
	tier, ok := g.tiers.Classify(nearestCorner(point{x, y}))
	if !ok {
		out.Result = "wide"
		return out
	}
	out.Result = "goal"
	out.Tier = tier.Name
	return out
}

func nearestCorner(p point) float64 {
	best := math.Inf(1)
	for _, c := range goalCorners {
		if d := math.Hypot(p.x-c.x, p.y-c.y); d < best {
			best = d
		}
	}
	return best
}
