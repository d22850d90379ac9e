package session

import (
	"time"

	"github.com/MJE43/emoji-arcade/internal/tone"
)

// Status is the lifecycle state of a session.
type Status string

const (
	StatusIdle   Status = "idle"
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
)

// Outcome describes why a session ended.
type Outcome string

const (
	OutcomeNone      Outcome = ""
	OutcomeWon       Outcome = "won"       // target reached before the deadline
	OutcomeLost      Outcome = "lost"      // deadline elapsed first
	OutcomeCompleted Outcome = "completed" // challenge queue exhausted
	OutcomeFailed    Outcome = "failed"    // terminating failure, e.g. a wrong Simon pad
	OutcomeStopped   Outcome = "stopped"   // player stopped the game
)

// Result is how a single challenge was resolved.
type Result string

const (
	ResultHit     Result = "hit"
	ResultMiss    Result = "miss"
	ResultTimeout Result = "timeout"
)

// Mood colours a message on the surface.
type Mood string

const (
	MoodInfo    Mood = "info"
	MoodSuccess Mood = "success"
	MoodFailure Mood = "failure"
)

// Challenge is one unit the player must resolve. It is immutable once
// presented.
type Challenge struct {
	ID          string        `json:"id"`
	Kind        string        `json:"kind"`
	Payload     any           `json:"payload,omitempty"`
	PresentedAt time.Time     `json:"presentedAt"`
	Lifetime    time.Duration `json:"lifetime,omitempty"`
}

// ExpiresAt is the zero time for challenges without a lifetime.
func (c Challenge) ExpiresAt() time.Time {
	if c.Lifetime <= 0 {
		return time.Time{}
	}
	return c.PresentedAt.Add(c.Lifetime)
}

// Resolution records the outcome of one challenge.
type Resolution struct {
	ChallengeID string    `json:"challengeId"`
	Kind        string    `json:"kind"`
	Result      Result    `json:"result"`
	Tier        string    `json:"tier,omitempty"`
	Points      int       `json:"points"`  // tier points before the combo bonus
	Awarded     int       `json:"awarded"` // points actually added to the score
	ComboBefore int       `json:"comboBefore"`
	At          time.Time `json:"at"`
}

// Message is transient feedback for the player.
type Message struct {
	Text string `json:"text"`
	Mood Mood   `json:"mood"`
}

// Summary is the settled state handed to record and history hooks.
type Summary struct {
	Game      string        `json:"game"`
	SessionID string        `json:"sessionId"`
	Outcome   Outcome       `json:"outcome"`
	Score     int           `json:"score"`
	Hits      int           `json:"hits"`
	Misses    int           `json:"misses"`
	BestCombo int           `json:"bestCombo"`
	StartedAt time.Time     `json:"startedAt"`
	Elapsed   time.Duration `json:"elapsed"`
}

// View is the immutable snapshot rendered by the presentation surface.
// Version increases with every snapshot so a surface can drop stale ones.
type View struct {
	Version        uint64      `json:"version"`
	Game           string      `json:"game"`
	SessionID      string      `json:"sessionId,omitempty"`
	Status         Status      `json:"status"`
	Outcome        Outcome     `json:"outcome,omitempty"`
	Score          int         `json:"score"`
	Combo          int         `json:"combo"`
	BestCombo      int         `json:"bestCombo"`
	Hits           int         `json:"hits"`
	Misses         int         `json:"misses"`
	Record         int         `json:"record"`
	RecordImproved bool        `json:"recordImproved"`
	Cursor         int         `json:"cursor"`
	Total          int         `json:"total"`
	RemainingMs    int64       `json:"remainingMs"`
	Challenges     []Challenge `json:"challenges"`
	Message        Message     `json:"message"`
	Tones          []tone.Tone `json:"tones,omitempty"`
	Detail         any         `json:"detail,omitempty"`
}

// EventKind classifies lifecycle events.
type EventKind string

const (
	EventStarted  EventKind = "started"
	EventResolved EventKind = "resolved"
	EventEnded    EventKind = "ended"
)

// Event is delivered to listeners after the transition that caused it.
type Event struct {
	Kind       EventKind   `json:"kind"`
	Game       string      `json:"game"`
	SessionID  string      `json:"sessionId"`
	Resolution *Resolution `json:"resolution,omitempty"`
	Summary    *Summary    `json:"summary,omitempty"`
	SeedHash   string      `json:"seedHash,omitempty"`
}

// Observer renders views.
type Observer interface {
	Render(v View)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(View)

func (f ObserverFunc) Render(v View) { f(v) }

// Listener receives lifecycle events, e.g. for history and metrics.
type Listener interface {
	OnEvent(e Event)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(Event)

func (f ListenerFunc) OnEvent(e Event) { f(e) }
