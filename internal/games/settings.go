package games

import (
	"errors"
	"fmt"
	"time"

	"github.com/MJE43/emoji-arcade/internal/session"
)

// QuizSettings tune the discrete-choice games.
type QuizSettings struct {
	RevealDelay    time.Duration `yaml:"reveal_delay"`
	ShuffleOptions bool          `yaml:"shuffle_options"`
}

// CollectorSettings tune the collector.
type CollectorSettings struct {
	TimeLimit  time.Duration `yaml:"time_limit"`
	SpawnEvery time.Duration `yaml:"spawn_every"`
	Lifetime   time.Duration `yaml:"lifetime"`
	Target     int           `yaml:"target"`
}

// SimonSettings tune Simon Says.
type SimonSettings struct {
	Step       time.Duration `yaml:"step"`
	FlashFor   time.Duration `yaml:"flash_for"`
	RoundDelay time.Duration `yaml:"round_delay"`
}

// BubbleSettings tune bubble pop.
type BubbleSettings struct {
	SpawnEvery time.Duration `yaml:"spawn_every"`
	Initial    int           `yaml:"initial"`
	Stagger    time.Duration `yaml:"stagger"`
	Lifetime   time.Duration `yaml:"lifetime"`
}

// PowerSettings tune the power level charger.
type PowerSettings struct {
	MinCharge  int           `yaml:"min_charge"`
	MaxCharge  int           `yaml:"max_charge"`
	Max        int           `yaml:"max"`
	ResetDelay time.Duration `yaml:"reset_delay"`
}

// RhythmSettings tune the rhythm game. Tier windows are milliseconds.
type RhythmSettings struct {
	Approach   time.Duration  `yaml:"approach"`
	ComboBonus int            `yaml:"combo_bonus"`
	Tiers      []session.Tier `yaml:"tiers"`
}

// PenaltySettings tune the shootout. Tier windows are distances in goal
// widths from the nearest corner.
type PenaltySettings struct {
	Shots       int            `yaml:"shots"`
	SaveRadius  float64        `yaml:"save_radius"`
	RevealDelay time.Duration  `yaml:"reveal_delay"`
	ComboBonus  int            `yaml:"combo_bonus"`
	Tiers       []session.Tier `yaml:"tiers"`
}

// Settings holds the tuning of every game.
type Settings struct {
	Quiz      QuizSettings      `yaml:"quiz"`
	Counting  QuizSettings      `yaml:"counting"`
	Collector CollectorSettings `yaml:"collector"`
	Simon     SimonSettings     `yaml:"simon"`
	Bubbles   BubbleSettings    `yaml:"bubbles"`
	Power     PowerSettings     `yaml:"power"`
	Rhythm    RhythmSettings    `yaml:"rhythm"`
	Penalty   PenaltySettings   `yaml:"penalty"`
}

// DefaultSettings mirrors the timings of the original arcade page.
func DefaultSettings() Settings {
	return Settings{
		Quiz:     QuizSettings{RevealDelay: 1500 * time.Millisecond},
		Counting: QuizSettings{RevealDelay: 1500 * time.Millisecond, ShuffleOptions: true},
		Collector: CollectorSettings{
			TimeLimit:  30 * time.Second,
			SpawnEvery: 1200 * time.Millisecond,
			Lifetime:   2500 * time.Millisecond,
			Target:     7,
		},
		Simon: SimonSettings{
			Step:       600 * time.Millisecond,
			FlashFor:   400 * time.Millisecond,
			RoundDelay: time.Second,
		},
		Bubbles: BubbleSettings{
			SpawnEvery: 800 * time.Millisecond,
			Initial:    3,
			Stagger:    200 * time.Millisecond,
			Lifetime:   6 * time.Second,
		},
		Power: PowerSettings{MinCharge: 3, MaxCharge: 10, Max: 100, ResetDelay: 3 * time.Second},
		Rhythm: RhythmSettings{
			Approach:   time.Second,
			ComboBonus: 10,
			Tiers: []session.Tier{
				{Name: "perfect", Within: 50, Points: 100},
				{Name: "good", Within: 120, Points: 50},
				{Name: "ok", Within: 200, Points: 20},
			},
		},
		Penalty: PenaltySettings{
			Shots:       5,
			SaveRadius:  0.2,
			RevealDelay: 1500 * time.Millisecond,
			ComboBonus:  1,
			Tiers: []session.Tier{
				{Name: "top-corner", Within: 0.15, Points: 3},
				{Name: "inside-post", Within: 0.35, Points: 2},
				{Name: "on-target", Within: 0.75, Points: 1},
			},
		},
	}
}

func (s Settings) isZero() bool {
	return s.Collector.Target == 0 && s.Penalty.Shots == 0 && s.Power.Max == 0 && len(s.Rhythm.Tiers) == 0
}

// Validate checks every section.
func (s Settings) Validate() error {
	var errs []error
	positive := func(name string, d time.Duration) {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	positive("quiz.reveal_delay", s.Quiz.RevealDelay)
	positive("counting.reveal_delay", s.Counting.RevealDelay)
	positive("collector.time_limit", s.Collector.TimeLimit)
	positive("collector.spawn_every", s.Collector.SpawnEvery)
	positive("collector.lifetime", s.Collector.Lifetime)
	if s.Collector.Target < 1 {
		errs = append(errs, errors.New("collector.target must be positive"))
	}
	positive("simon.step", s.Simon.Step)
	positive("simon.round_delay", s.Simon.RoundDelay)
	if s.Simon.FlashFor < 0 {
		errs = append(errs, errors.New("simon.flash_for must not be negative"))
	}
	positive("bubbles.spawn_every", s.Bubbles.SpawnEvery)
	positive("bubbles.lifetime", s.Bubbles.Lifetime)
	if s.Bubbles.Initial < 0 || s.Bubbles.Stagger < 0 {
		errs = append(errs, errors.New("bubbles.initial and bubbles.stagger must not be negative"))
	}
	if s.Power.MinCharge < 1 || s.Power.MaxCharge < s.Power.MinCharge || s.Power.Max < 1 {
		errs = append(errs, fmt.Errorf("power: bad charge range %d..%d up to %d", s.Power.MinCharge, s.Power.MaxCharge, s.Power.Max))
	}
	positive("power.reset_delay", s.Power.ResetDelay)
	if _, err := session.NewTiers(s.Rhythm.Tiers...); err != nil {
		errs = append(errs, fmt.Errorf("rhythm.tiers: %w", err))
	}
	positive("rhythm.approach", s.Rhythm.Approach)
	if s.Rhythm.ComboBonus < 0 || s.Penalty.ComboBonus < 0 {
		errs = append(errs, errors.New("combo_bonus must not be negative"))
	}
	if s.Penalty.Shots < 1 {
		errs = append(errs, errors.New("penalty.shots must be positive"))
	}
	if s.Penalty.SaveRadius < 0 {
		errs = append(errs, errors.New("penalty.save_radius must not be negative"))
	}
	positive("penalty.reveal_delay", s.Penalty.RevealDelay)
	if _, err := session.NewTiers(s.Penalty.Tiers...); err != nil {
		errs = append(errs, fmt.Errorf("penalty.tiers: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidSettings, errors.Join(errs...))
	}
	return nil
}
