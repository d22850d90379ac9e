package games

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/MJE43/emoji-arcade/internal/content"
	"github.com/MJE43/emoji-arcade/internal/engine"
	"github.com/MJE43/emoji-arcade/internal/records"
	"github.com/MJE43/emoji-arcade/internal/session"
	"github.com/MJE43/emoji-arcade/internal/tone"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type rig struct {
	clock *engine.ManualClock
	book  *records.Book
	tones *tone.Recorder
	game  Game
}

func newRig(t *testing.T, id string, mutate ...func(d *Deps)) *rig {
	t.Helper()
	r := &rig{
		clock: engine.NewManualClock(time.Unix(1_700_000_000, 0)),
		book:  records.NewBook(records.NewMemoryStore(), ""),
		tones: &tone.Recorder{},
	}
	d := Deps{
		Clock:   r.clock,
		Records: r.book,
		Player:  r.tones,
		Seeds:   engine.Seeds{Server: "arcade-test-server", Client: "arcade-test-client"},
	}
	for _, m := range mutate {
		m(&d)
	}
	g, err := New(id, d)
	require.NoError(t, err)
	r.game = g
	t.Cleanup(g.Close)
	return r
}

func (r *rig) view() session.View { return r.game.View() }

func (r *rig) current(t *testing.T) session.Challenge {
	t.Helper()
	v := r.view()
	require.NotEmpty(t, v.Challenges, "no outstanding challenge")
	return v.Challenges[0]
}

func TestRegistry(t *testing.T) {
	var ids []string
	for _, spec := range ListGames() {
		ids = append(ids, spec.ID)
		assert.NotEmpty(t, spec.Actions, spec.ID)
	}
	assert.Equal(t, []string{"bubbles", "collector", "counting", "penalty", "power", "quiz", "rhythm", "simon"}, ids)

	spec, ok := GetGame("quiz")
	require.True(t, ok)
	assert.True(t, spec.Choice)

	_, err := New("pinball", Deps{})
	assert.ErrorIs(t, err, ErrUnknownGame)
}

func TestUnsupportedAction(t *testing.T) {
	r := newRig(t, "quiz")
	require.NoError(t, r.game.Start())
	err := r.game.Act(Action{Type: ActionCharge})
	assert.ErrorIs(t, err, ErrUnsupportedAction)
}

func TestInvalidSettingsRejected(t *testing.T) {
	s := DefaultSettings()
	s.Rhythm.Tiers = []session.Tier{{Name: "a", Within: 10, Points: 5}, {Name: "b", Within: 20, Points: 50}}
	_, err := New("rhythm", Deps{Settings: s})
	assert.ErrorIs(t, err, ErrInvalidSettings)
	assert.ErrorIs(t, err, session.ErrInvalidTiers)
}

func TestQuizPerfectRunReloadsAndSetsRecord(t *testing.T) {
	r := newRig(t, "quiz")
	require.NoError(t, r.game.Start())
	total := r.view().Total
	require.Equal(t, 12, total)

	for i := 0; i < total; i++ {
		ch := r.current(t)
		answer := ch.Payload.(session.Choice).Answer
		require.NoError(t, r.game.Act(Action{Type: ActionAnswer, Option: answer}))
		assert.Equal(t, i+1, r.view().Score)

		err := r.game.Act(Action{Type: ActionAnswer, Option: answer})
		assert.ErrorIs(t, err, session.ErrAlreadyResolved, "first selection is final")

		r.clock.Advance(1500 * time.Millisecond)
	}

	v := r.view()
	assert.Equal(t, session.StatusActive, v.Status)
	assert.Equal(t, 0, v.Score)
	assert.Equal(t, 1, v.Cursor, "reloaded at the first question")
	assert.Equal(t, 12, v.Record)
	assert.True(t, v.RecordImproved)
	assert.Equal(t, 12, r.book.Int(t.Context(), "quiz_record", 0))
}

func TestQuizWrongAnswer(t *testing.T) {
	r := newRig(t, "quiz")
	require.NoError(t, r.game.Start())
	ch := r.current(t)
	c := ch.Payload.(session.Choice)
	wrong := (c.Answer + 1) % len(c.Options)

	require.NoError(t, r.game.Act(Action{Type: ActionAnswer, Option: wrong}))
	v := r.view()
	assert.Equal(t, 0, v.Score)
	assert.Equal(t, 1, v.Misses)
	assert.Equal(t, session.MoodFailure, v.Message.Mood)

	d := v.Detail.(ChoiceDetail)
	require.NotNil(t, d.Answer)
	assert.Equal(t, c.Answer, *d.Answer)
	assert.Equal(t, []float64{200}, r.tones.Frequencies())

	err := r.game.Act(Action{Type: ActionAnswer, Option: 99})
	assert.ErrorIs(t, err, session.ErrAlreadyResolved)
}

func TestQuizOutOfRangeOptionIsRejected(t *testing.T) {
	r := newRig(t, "quiz")
	require.NoError(t, r.game.Start())
	err := r.game.Act(Action{Type: ActionAnswer, Option: 7})
	assert.ErrorIs(t, err, session.ErrInvalidChoice)
	assert.Len(t, r.view().Challenges, 1, "invalid input does not resolve")
}

func TestQuizRequiresQuestions(t *testing.T) {
	p := content.Default()
	p.Quiz = nil
	r := newRig(t, "quiz", func(d *Deps) { d.Content = content.Static(p) })
	before := r.view()
	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, r.game.Start(), session.ErrNoChallenges)
	}
	after := r.view()
	assert.Equal(t, session.StatusIdle, after.Status)
	assert.Equal(t, before.Version, after.Version)
	assert.Equal(t, before.Detail.(ChoiceDetail).Nonce, after.Detail.(ChoiceDetail).Nonce,
		"a rejected start draws no randomness")
}

func TestQuizRecordFlagIsPerRun(t *testing.T) {
	r := newRig(t, "quiz")
	require.NoError(t, r.game.Start())
	total := r.view().Total

	play := func(correct bool) {
		for i := 0; i < total; i++ {
			c := r.current(t).Payload.(session.Choice)
			option := c.Answer
			if !correct {
				option = (c.Answer + 1) % len(c.Options)
			}
			require.NoError(t, r.game.Act(Action{Type: ActionAnswer, Option: option}))
			r.clock.Advance(1500 * time.Millisecond)
		}
	}

	play(true)
	assert.True(t, r.view().RecordImproved, "the restart still shows the record run")

	play(false)
	v := r.view()
	assert.Equal(t, 12, v.Record)
	assert.False(t, v.RecordImproved, "a scoreless run sets no record")
}

func TestCountingOptionsAreDistinct(t *testing.T) {
	r := newRig(t, "counting")
	require.NoError(t, r.game.Start())
	rounds := r.view().Total
	require.Equal(t, 10, rounds)

	for i := 0; i < rounds; i++ {
		c := r.current(t).Payload.(session.Choice)
		require.NoError(t, c.Validate(), "round %d", i)
		require.NoError(t, r.game.Act(Action{Type: ActionAnswer, Option: c.Answer}))
		r.clock.Advance(1500 * time.Millisecond)
	}
	v := r.view()
	assert.Equal(t, session.StatusEnded, v.Status)
	assert.Equal(t, session.OutcomeCompleted, v.Outcome)
	assert.Equal(t, 10, v.Score)
	assert.Equal(t, 10, v.Record)
}

func TestCollectorWinsBeforeDeadline(t *testing.T) {
	r := newRig(t, "collector")
	require.NoError(t, r.game.Start())

	for i := 0; i < 7; i++ {
		ch := r.current(t)
		require.NoError(t, r.game.Act(Action{Type: ActionHit, ChallengeID: ch.ID}))
		if i < 6 {
			r.clock.Advance(1200 * time.Millisecond)
		}
	}
	v := r.view()
	assert.Equal(t, session.StatusEnded, v.Status)
	assert.Equal(t, session.OutcomeWon, v.Outcome)
	assert.Equal(t, 7, v.Detail.(CollectorDetail).Collected)
	assert.Equal(t, 7200, v.Record, "fastest win in milliseconds")

	// The deadline can no longer turn a win into a loss.
	r.clock.Advance(time.Minute)
	assert.Equal(t, session.OutcomeWon, r.view().Outcome)

	assert.Equal(t,
		[]float64{500, 600, 700, 800, 900, 1000, 1100, 523, 659, 784, 1047},
		r.tones.Frequencies())
}

func TestCollectorLosesAtDeadline(t *testing.T) {
	r := newRig(t, "collector")
	require.NoError(t, r.game.Start())

	r.clock.Advance(29 * time.Second)
	assert.Equal(t, session.StatusActive, r.view().Status)
	r.clock.Advance(time.Second)

	v := r.view()
	assert.Equal(t, session.OutcomeLost, v.Outcome)
	assert.Zero(t, v.Score)
	assert.Empty(t, v.Challenges)
	assert.Equal(t, 0, r.book.Int(t.Context(), "collector_best", 0), "a loss never sets the record")
	assert.Equal(t, 200.0, r.tones.Frequencies()[len(r.tones.Frequencies())-1])
}

func TestCollectorTargetsExpire(t *testing.T) {
	r := newRig(t, "collector")
	require.NoError(t, r.game.Start())
	first := r.current(t)

	r.clock.Advance(2500 * time.Millisecond)
	err := r.game.Act(Action{Type: ActionHit, ChallengeID: first.ID})
	assert.ErrorIs(t, err, session.ErrAlreadyResolved)
	assert.Equal(t, 1, r.view().Misses)
}

func TestSimonRoundsAndFailure(t *testing.T) {
	r := newRig(t, "simon")
	g := r.game.(*simon)
	require.NoError(t, r.game.Start())

	err := r.game.Act(Action{Type: ActionPress, Option: 0})
	assert.ErrorIs(t, err, ErrNotReady, "input is ignored during playback")

	r.clock.Advance(1200 * time.Millisecond)
	require.True(t, r.view().Detail.(SimonDetail).Listening)
	require.NoError(t, r.game.Act(Action{Type: ActionPress, Option: g.melody[0]}))
	v := r.view()
	assert.Equal(t, 1, v.Score)
	assert.Equal(t, 1, v.Record, "completed round is checkpointed")

	// Round two: one second pause, then two notes at 600ms steps.
	r.clock.Advance(time.Second + 3*600*time.Millisecond)
	require.True(t, r.view().Detail.(SimonDetail).Listening)
	assert.Equal(t, 2, r.view().Detail.(SimonDetail).Round)

	wrong := (g.melody[0] + 1) % len(g.pack.Simon)
	require.NoError(t, r.game.Act(Action{Type: ActionPress, Option: wrong}))
	v = r.view()
	assert.Equal(t, session.OutcomeFailed, v.Outcome)
	assert.Equal(t, 1, v.Record)
	freqs := r.tones.Frequencies()
	assert.Equal(t, 150.0, freqs[len(freqs)-1])
}

func TestSimonPlaybackUsesPadPitches(t *testing.T) {
	r := newRig(t, "simon")
	g := r.game.(*simon)
	require.NoError(t, r.game.Start())
	r.clock.Advance(600 * time.Millisecond)
	assert.Equal(t, []float64{g.pack.Simon[g.melody[0]].Frequency}, r.tones.Frequencies())
	assert.Equal(t, g.melody[0], r.view().Detail.(SimonDetail).Lit)
	r.clock.Advance(400 * time.Millisecond)
	assert.Equal(t, -1, r.view().Detail.(SimonDetail).Lit)
}

func TestBubblesSpawnAndPopOnce(t *testing.T) {
	r := newRig(t, "bubbles")
	require.NoError(t, r.game.Start())
	assert.Len(t, r.view().Challenges, 1)
	r.clock.Advance(400 * time.Millisecond)
	assert.Len(t, r.view().Challenges, 3)
	r.clock.Advance(400 * time.Millisecond)
	assert.Len(t, r.view().Challenges, 4)

	b := r.current(t)
	require.NoError(t, r.game.Act(Action{Type: ActionHit, ChallengeID: b.ID}))
	err := r.game.Act(Action{Type: ActionHit, ChallengeID: b.ID})
	assert.ErrorIs(t, err, session.ErrAlreadyResolved)
	assert.Equal(t, 1, r.view().Score)

	f := r.tones.Frequencies()
	require.Len(t, f, 1)
	assert.GreaterOrEqual(t, f[0], 600.0)
	assert.Less(t, f[0], 1000.0)

	assert.True(t, r.game.Stop())
	v := r.view()
	assert.Equal(t, session.OutcomeStopped, v.Outcome)
	assert.Equal(t, 1, v.Record)
}

func TestPowerChargesToMaxAndResets(t *testing.T) {
	r := newRig(t, "power")
	charges := 0
	for r.view().Status != session.StatusEnded {
		before := r.view().Score
		require.NoError(t, r.game.Act(Action{Type: ActionCharge}))
		charges++
		after := r.view().Score
		gain := after - before
		if after < 100 {
			assert.GreaterOrEqual(t, gain, 3)
			assert.LessOrEqual(t, gain, 10)
		}
		require.Less(t, charges, 40)
	}
	v := r.view()
	assert.Equal(t, 100, v.Score)
	assert.Equal(t, charges, v.Record, "fewest charges is the record")
	d := v.Detail.(PowerDetail)
	assert.Equal(t, 10000, d.Display)
	assert.Contains(t, d.Rank.Label, "ULTRA INSTINCT")

	assert.ErrorIs(t, r.game.Act(Action{Type: ActionCharge}), ErrNotReady)

	r.clock.Advance(3 * time.Second)
	v = r.view()
	assert.Equal(t, session.StatusIdle, v.Status)
	assert.Equal(t, 0, v.Detail.(PowerDetail).Level)

	freqs := r.tones.Frequencies()
	assert.Equal(t, []float64{1000, 800}, []float64{freqs[len(freqs)-1], freqs[len(freqs)-2]})
}

func rhythmRig(t *testing.T, notes ...content.Note) *rig {
	p := content.Default()
	p.Rhythm = content.Chart{Lanes: 4, Notes: notes}
	return newRig(t, "rhythm", func(d *Deps) { d.Content = content.Static(p) })
}

func TestRhythmTiersAndCombo(t *testing.T) {
	r := rhythmRig(t, content.Note{At: 1000, Lane: 0}, content.Note{At: 2000, Lane: 1}, content.Note{At: 3000, Lane: 2})
	require.NoError(t, r.game.Start())

	r.clock.Advance(1000 * time.Millisecond)
	require.NoError(t, r.game.Act(Action{Type: ActionTap, Lane: 0}))
	assert.Equal(t, 100, r.view().Score)

	r.clock.Advance(1000 * time.Millisecond)
	require.NoError(t, r.game.Act(Action{Type: ActionTap, Lane: 1}))
	v := r.view()
	assert.Equal(t, 210, v.Score, "perfect plus one combo bonus")
	assert.Equal(t, 2, v.Combo)

	// 400ms early: the note is on screen but outside every tier.
	r.clock.Advance(600 * time.Millisecond)
	require.NoError(t, r.game.Act(Action{Type: ActionTap, Lane: 2}))
	v = r.view()
	assert.Equal(t, 0, v.Combo)
	assert.Equal(t, 210, v.Score)
	assert.Equal(t, session.OutcomeCompleted, v.Outcome)
	assert.Equal(t, 210, v.Record)
}

func TestRhythmGoodTierAndExpiry(t *testing.T) {
	r := rhythmRig(t, content.Note{At: 1000, Lane: 3}, content.Note{At: 1500, Lane: 0})
	require.NoError(t, r.game.Start())

	r.clock.Advance(1100 * time.Millisecond)
	require.NoError(t, r.game.Act(Action{Type: ActionTap, Lane: 3}))
	v := r.view()
	assert.Equal(t, 50, v.Score)
	assert.Equal(t, "good", v.Detail.(RhythmDetail).LastTier)

	// Nobody taps lane 0: the note expires once the widest window passes.
	r.clock.Advance(600 * time.Millisecond)
	v = r.view()
	assert.Equal(t, session.OutcomeCompleted, v.Outcome)
	assert.Equal(t, 1, v.Misses)

	assert.ErrorIs(t, r.game.Act(Action{Type: ActionTap, Lane: 0}), session.ErrNotActive)
}

func TestRhythmEmptyLaneIgnored(t *testing.T) {
	r := rhythmRig(t, content.Note{At: 2000, Lane: 1})
	require.NoError(t, r.game.Start())
	require.NoError(t, r.game.Act(Action{Type: ActionTap, Lane: 2}))
	assert.ErrorIs(t, r.game.Act(Action{Type: ActionTap, Lane: 9}), session.ErrInvalidChoice)
	assert.Zero(t, r.view().Misses)
}

func TestPenaltyShootout(t *testing.T) {
	r := newRig(t, "penalty")
	g := r.game.(*penalty)
	require.NoError(t, r.game.Start())

	for i := 0; i < 4; i++ {
		require.NoError(t, r.game.Act(Action{Type: ActionAim, X: 0.02, Y: 0.02}))
		last := r.view().Detail.(PenaltyDetail).Last
		require.NotNil(t, last)
		assert.Equal(t, "goal", last.Result)
		assert.Equal(t, "top-corner", last.Tier)
		assert.ErrorIs(t, r.game.Act(Action{Type: ActionAim, X: 0.5, Y: 0.5}), session.ErrAlreadyResolved)
		r.clock.Advance(1500 * time.Millisecond)
	}
	// 3 + 4 + 5 + 6 with one bonus point per prior goal in the streak.
	assert.Equal(t, 18, r.view().Score)

	dive := keeperZones[g.keeper]
	require.NoError(t, r.game.Act(Action{Type: ActionAim, X: dive.x, Y: dive.y}))
	v := r.view()
	assert.Equal(t, "saved", v.Detail.(PenaltyDetail).Last.Result)
	assert.Equal(t, 0, v.Combo)

	r.clock.Advance(1500 * time.Millisecond)
	v = r.view()
	assert.Equal(t, session.OutcomeCompleted, v.Outcome)
	assert.Equal(t, 4, v.Detail.(PenaltyDetail).Goals)
	assert.Equal(t, 18, v.Record)
}

func TestPenaltyWide(t *testing.T) {
	r := newRig(t, "penalty")
	require.NoError(t, r.game.Start())
	require.NoError(t, r.game.Act(Action{Type: ActionAim, X: 1.4, Y: 0.5}))
	assert.Equal(t, "wide", r.view().Detail.(PenaltyDetail).Last.Result)
}

func TestSeedsMakeRunsReplayable(t *testing.T) {
	a := newRig(t, "counting")
	b := newRig(t, "counting")
	require.NoError(t, a.game.Start())
	require.NoError(t, b.game.Start())
	assert.Equal(t, a.current(t).Payload, b.current(t).Payload)

	a.game.Stop()
	require.NoError(t, a.game.Start())
	assert.NotEqual(t, a.view().Detail.(ChoiceDetail).Nonce, b.view().Detail.(ChoiceDetail).Nonce,
		"each run advances the nonce")
}
