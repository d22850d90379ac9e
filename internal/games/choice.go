package games

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/MJE43/emoji-arcade/internal/session"
	"github.com/MJE43/emoji-arcade/internal/tone"
)

var quizSpec = GameSpec{
	ID:          "quiz",
	Name:        "Football Quiz",
	Emoji:       "⚽",
	Description: "Answer each question; the quiz starts over after the last one.",
	RecordName:  "quiz_record",
	Actions:     []string{ActionAnswer},
	Choice:      true,
}

var countingSpec = GameSpec{
	ID:          "counting",
	Name:        "Counting",
	Emoji:       "🔢",
	Description: "Count the emoji and pick the right number.",
	RecordName:  "counting_record",
	Actions:     []string{ActionAnswer},
	Choice:      true,
}

// ChoiceDetail is the discrete-choice part of a view.
type ChoiceDetail struct {
	Index    int      `json:"index"` // 1-based question number
	Total    int      `json:"total"`
	Prompt   string   `json:"prompt"`
	Emoji    string   `json:"emoji,omitempty"`
	Options  []string `json:"options"`
	Selected *int     `json:"selected,omitempty"`
	// Answer is revealed only after a selection.
	Answer   *int   `json:"answer,omitempty"`
	SeedHash string `json:"seedHash"`
	Nonce    uint64 `json:"nonce"`
}

// choiceGame runs a queue of discrete-choice challenges. The first
// selection for a challenge is final; the next challenge follows after a
// reveal delay.
type choiceGame struct {
	base
	reveal time.Duration
	plan   func() []session.Challenge

	current  session.Choice
	index    int
	total    int
	selected int
	revealed bool
}

func newQuiz(d Deps) (Game, error) {
	g := &choiceGame{base: newBase(quizSpec, d), reveal: d.Settings.Quiz.RevealDelay}
	shuffle := d.Settings.Quiz.ShuffleOptions
	g.plan = func() []session.Challenge {
		qs := g.pack.Quiz
		out := make([]session.Challenge, 0, len(qs))
		for _, q := range qs {
			c := session.Choice{Prompt: q.Prompt, Options: q.Options, Answer: q.Answer}
			if shuffle {
				c = c.Shuffled(g.src)
			}
			out = append(out, session.Challenge{Kind: "question", Payload: c})
		}
		return out
	}
	// The quiz reloads at the first question as soon as it is exhausted.
	g.sess = session.New(session.Config{
		GameID:       quizSpec.ID,
		RecordName:   quizSpec.RecordName,
		RequireQueue: true,
		AutoRestart:  true,
	}, g.rules(), d.sessionOptions()...)
	return g, nil
}

func newCounting(d Deps) (Game, error) {
	g := &choiceGame{base: newBase(countingSpec, d), reveal: d.Settings.Counting.RevealDelay}
	g.plan = func() []session.Challenge {
		c := g.pack.Counting
		out := make([]session.Challenge, 0, c.Rounds)
		for i := 0; i < c.Rounds; i++ {
			n := g.src.Between(c.Min, c.Max)
			emoji := c.Emoji[g.src.Intn(len(c.Emoji))]
			nums, answer, err := session.NumericOptions(g.src, n, c.Options, c.Spread, 1)
			if err != nil {
				// A pack that passed validation always leaves room for the
				// options; skip the round rather than present a broken one.
				continue
			}
			opts := make([]string, len(nums))
			for j, v := range nums {
				opts[j] = strconv.Itoa(v)
			}
			out = append(out, session.Challenge{Kind: "count", Payload: session.Choice{
				Prompt:  fmt.Sprintf("How many %s are there?", emoji),
				Emoji:   strings.Repeat(emoji, n),
				Options: opts,
				Answer:  answer,
			}})
		}
		return out
	}
	g.sess = session.New(session.Config{
		GameID:       countingSpec.ID,
		RecordName:   countingSpec.RecordName,
		RequireQueue: true,
	}, g.rules(), d.sessionOptions()...)
	return g, nil
}

func (g *choiceGame) rules() session.Rules {
	return session.Rules{
		Plan: func() []session.Challenge {
			g.refresh()
			return g.plan()
		},
		Discard:  g.discard,
		Setup:    g.next,
		OnEnd:    g.onEnd,
		Detail:   g.detail,
		SeedHash: g.seedHash,
	}
}

func (g *choiceGame) next(tx *session.Tx) {
	ch, ok := tx.Next()
	if !ok {
		tx.End(session.OutcomeCompleted)
		return
	}
	g.current = ch.Payload.(session.Choice)
	g.index, g.total = tx.Cursor(), tx.QueueLen()
	g.selected = -1
	g.revealed = false
}

func (g *choiceGame) Act(a Action) error {
	if a.Type != ActionAnswer {
		return unsupported(g.spec.ID, a)
	}
	return g.act(func(tx *session.Tx) error {
		ch, ok := tx.Current()
		if !ok {
			if g.revealed {
				return session.ErrAlreadyResolved
			}
			return ErrNotReady
		}
		correct, err := g.current.Correct(a.Option)
		if err != nil {
			return err
		}
		g.selected = a.Option
		g.revealed = true
		if correct {
			if _, err := tx.Hit(ch.ID, 1, "correct"); err != nil {
				return err
			}
			tx.Say("Correct!", session.MoodSuccess)
			tx.PlaySequence(150*time.Millisecond,
				tone.Cue(523, 150*time.Millisecond, tone.Sine, 0.2),
				tone.Cue(659, 150*time.Millisecond, tone.Sine, 0.2))
		} else {
			if _, err := tx.Miss(ch.ID); err != nil {
				return err
			}
			tx.Say(fmt.Sprintf("The answer was %s", g.current.Options[g.current.Answer]), session.MoodFailure)
			tx.Play(tone.Cue(200, 300*time.Millisecond, tone.Sawtooth, 0.15))
		}
		tx.After(g.reveal, g.next)
		return nil
	})
}

func (g *choiceGame) onEnd(tx *session.Tx, o session.Outcome) {
	if o != session.OutcomeCompleted {
		return
	}
	msg := fmt.Sprintf("Final score %d of %d", tx.Score(), tx.QueueLen())
	if tx.Score() > tx.Record() {
		msg += ". New record!"
	}
	tx.Say(msg, session.MoodSuccess)
}

func (g *choiceGame) detail(*session.Tx) any {
	d := ChoiceDetail{
		Index:    g.index,
		Total:    g.total,
		Prompt:   g.current.Prompt,
		Emoji:    g.current.Emoji,
		Options:  g.current.Options,
		SeedHash: g.seedHash(),
		Nonce:    g.src.Nonce(),
	}
	if g.selected >= 0 && g.revealed {
		sel, ans := g.selected, g.current.Answer
		d.Selected, d.Answer = &sel, &ans
	}
	return d
}
