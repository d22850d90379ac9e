// Package content loads the question banks, emoji sets and charts the games
// draw their challenges from.
package content

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultPack []byte

// Question is one discrete-choice quiz entry.
type Question struct {
	Prompt  string   `yaml:"prompt" json:"prompt"`
	Options []string `yaml:"options" json:"options"`
	Answer  int      `yaml:"answer" json:"-"`
}

// Counting configures the counting quiz generator.
type Counting struct {
	Emoji   []string `yaml:"emoji" json:"emoji"`
	Min     int      `yaml:"min" json:"min"`
	Max     int      `yaml:"max" json:"max"`
	Options int      `yaml:"options" json:"options"`
	Spread  int      `yaml:"spread" json:"spread"`
	Rounds  int      `yaml:"rounds" json:"rounds"`
}

// Pad is one Simon Says pad.
type Pad struct {
	Name      string  `yaml:"name" json:"name"`
	Color     string  `yaml:"color" json:"color"`
	Frequency float64 `yaml:"frequency" json:"frequency"`
}

// Rank labels a power level threshold.
type Rank struct {
	Min   int    `yaml:"min" json:"min"`
	Label string `yaml:"label" json:"label"`
	Color string `yaml:"color" json:"color"`
}

// Note is a rhythm chart entry; At is milliseconds from session start.
type Note struct {
	At   int `yaml:"at" json:"at"`
	Lane int `yaml:"lane" json:"lane"`
}

// Chart is a rhythm note chart.
type Chart struct {
	Lanes int    `yaml:"lanes" json:"lanes"`
	Notes []Note `yaml:"notes" json:"notes"`
}

// Penalty lists the zones the keeper may dive to.
type Penalty struct {
	Zones []string `yaml:"zones" json:"zones"`
}

// Pack is a complete content set.
type Pack struct {
	Quiz         []Question `yaml:"quiz"`
	Counting     Counting   `yaml:"counting"`
	Collectibles []string   `yaml:"collectibles"`
	Bubbles      []string   `yaml:"bubbles"`
	Simon        []Pad      `yaml:"simon"`
	PowerRanks   []Rank     `yaml:"power_ranks"`
	Rhythm       Chart      `yaml:"rhythm"`
	Penalty      Penalty    `yaml:"penalty"`
}

// Default returns the built-in pack.
func Default() *Pack {
	p, err := Parse(defaultPack)
	if err != nil {
		panic(fmt.Sprintf("content: built-in pack is invalid: %v", err))
	}
	return p
}

// Parse decodes and validates a pack. Unknown fields are rejected.
func Parse(data []byte) (*Pack, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var p Pack
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("content: decode: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Load reads a pack from path. An empty path yields the built-in pack.
func Load(path string) (*Pack, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("content: read %s: %w", path, err)
	}
	return Parse(data)
}

// Validate checks every section the games rely on.
func (p *Pack) Validate() error {
	var errs []error
	if len(p.Quiz) == 0 {
		errs = append(errs, errors.New("quiz: no questions"))
	}
	for i, q := range p.Quiz {
		if q.Prompt == "" {
			errs = append(errs, fmt.Errorf("quiz[%d]: empty prompt", i))
		}
		if len(q.Options) < 2 {
			errs = append(errs, fmt.Errorf("quiz[%d]: need at least two options", i))
		}
		if q.Answer < 0 || q.Answer >= len(q.Options) {
			errs = append(errs, fmt.Errorf("quiz[%d]: answer %d out of range", i, q.Answer))
		}
	}

	c := p.Counting
	switch {
	case len(c.Emoji) == 0:
		errs = append(errs, errors.New("counting: no emoji"))
	case c.Min < 1 || c.Max < c.Min:
		errs = append(errs, fmt.Errorf("counting: bad range %d..%d", c.Min, c.Max))
	case c.Options < 2:
		errs = append(errs, errors.New("counting: need at least two options"))
	case 2*c.Spread+1 < c.Options:
		errs = append(errs, fmt.Errorf("counting: spread %d too small for %d options", c.Spread, c.Options))
	case c.Rounds < 1:
		errs = append(errs, errors.New("counting: rounds must be positive"))
	}

	if len(p.Collectibles) == 0 {
		errs = append(errs, errors.New("collectibles: empty"))
	}
	if len(p.Bubbles) == 0 {
		errs = append(errs, errors.New("bubbles: empty"))
	}
	if len(p.Simon) < 2 {
		errs = append(errs, errors.New("simon: need at least two pads"))
	}
	for i, pad := range p.Simon {
		if pad.Frequency <= 0 {
			errs = append(errs, fmt.Errorf("simon[%d]: frequency must be positive", i))
		}
	}
	if len(p.PowerRanks) == 0 || p.PowerRanks[0].Min != 0 {
		errs = append(errs, errors.New("power_ranks: first rank must start at 0"))
	}
	for i := 1; i < len(p.PowerRanks); i++ {
		if p.PowerRanks[i].Min <= p.PowerRanks[i-1].Min {
			errs = append(errs, fmt.Errorf("power_ranks[%d]: thresholds must increase", i))
		}
	}

	if p.Rhythm.Lanes < 1 {
		errs = append(errs, errors.New("rhythm: lanes must be positive"))
	}
	if len(p.Rhythm.Notes) == 0 {
		errs = append(errs, errors.New("rhythm: empty chart"))
	}
	for i, n := range p.Rhythm.Notes {
		if n.Lane < 0 || n.Lane >= p.Rhythm.Lanes {
			errs = append(errs, fmt.Errorf("rhythm.notes[%d]: lane %d out of range", i, n.Lane))
		}
		if n.At < 0 || (i > 0 && n.At < p.Rhythm.Notes[i-1].At) {
			errs = append(errs, fmt.Errorf("rhythm.notes[%d]: offsets must be non-decreasing", i))
		}
	}
	if len(p.Penalty.Zones) == 0 {
		errs = append(errs, errors.New("penalty: no keeper zones"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("content: invalid pack: %w", errors.Join(errs...))
	}
	return nil
}

// RankFor returns the highest rank whose threshold level reaches.
func (p *Pack) RankFor(level int) Rank {
	var r Rank
	for _, candidate := range p.PowerRanks {
		if level >= candidate.Min {
			r = candidate
		}
	}
	return r
}
