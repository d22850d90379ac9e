package session

import (
	"fmt"

	"github.com/MJE43/emoji-arcade/internal/engine"
)

// Choice is a discrete-choice payload: a prompt with a fixed option set and
// exactly one correct option.
type Choice struct {
	Prompt  string   `json:"prompt"`
	Emoji   string   `json:"emoji,omitempty"`
	Options []string `json:"options"`
	// Answer is hidden from views until the challenge is resolved.
	Answer int `json:"-"`
}

// Validate checks that the answer indexes a distinct option.
func (c Choice) Validate() error {
	if len(c.Options) < 2 {
		return fmt.Errorf("%w: need at least two options", ErrInvalidChoice)
	}
	if c.Answer < 0 || c.Answer >= len(c.Options) {
		return fmt.Errorf("%w: answer %d out of range", ErrInvalidChoice, c.Answer)
	}
	seen := make(map[string]bool, len(c.Options))
	for _, o := range c.Options {
		if seen[o] {
			return fmt.Errorf("%w: duplicate option %q", ErrInvalidChoice, o)
		}
		seen[o] = true
	}
	return nil
}

// Correct reports whether option selects the right answer. Out-of-range
// selections are errors, not misses.
func (c Choice) Correct(option int) (bool, error) {
	if option < 0 || option >= len(c.Options) {
		return false, fmt.Errorf("%w: option %d of %d", ErrInvalidChoice, option, len(c.Options))
	}
	return option == c.Answer, nil
}

// Shuffled returns a copy with options permuted by src and Answer updated.
func (c Choice) Shuffled(src *engine.Source) Choice {
	opts := append([]string(nil), c.Options...)
	answer := c.Answer
	src.Shuffle(len(opts), func(i, j int) {
		opts[i], opts[j] = opts[j], opts[i]
		switch answer {
		case i:
			answer = j
		case j:
			answer = i
		}
	})
	c.Options = opts
	c.Answer = answer
	return c
}

// NumericOptions returns n distinct integers including correct, each drawn
// from [correct-spread, correct+spread] and never below min, in shuffled
// order, together with the index of correct.
func NumericOptions(src *engine.Source, correct, n, spread, min int) ([]int, int, error) {
	lo := correct - spread
	if lo < min {
		lo = min
	}
	hi := correct + spread
	if hi-lo+1 < n || correct < lo {
		return nil, 0, fmt.Errorf("%w: cannot draw %d distinct options around %d", ErrInvalidChoice, n, correct)
	}
	seen := map[int]bool{correct: true}
	opts := []int{correct}
	for len(opts) < n {
		v := src.Between(lo, hi)
		if seen[v] {
			continue
		}
		seen[v] = true
		opts = append(opts, v)
	}
	src.Shuffle(len(opts), func(i, j int) { opts[i], opts[j] = opts[j], opts[i] })
	for i, v := range opts {
		if v == correct {
			return opts, i, nil
		}
	}
	return opts, 0, nil
}
