package arcade

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/MJE43/emoji-arcade/internal/autoplay"
	"github.com/MJE43/emoji-arcade/internal/engine"
	"github.com/MJE43/emoji-arcade/internal/games"
	"github.com/MJE43/emoji-arcade/internal/session"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type collector struct {
	mu      sync.Mutex
	updates []Update
}

func (c *collector) add(u Update) {
	c.mu.Lock()
	c.updates = append(c.updates, u)
	c.mu.Unlock()
}

func (c *collector) count(game string, tones bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, u := range c.updates {
		if u.Game == game && (u.Tone != nil) == tones {
			n++
		}
	}
	return n
}

func newHub(t *testing.T) (*Hub, *engine.ManualClock) {
	t.Helper()
	clock := engine.NewManualClock(time.Unix(0, 0))
	h := New(Options{
		Clock:    clock,
		Seeds:    engine.Seeds{Server: "hub-server", Client: "hub-client"},
		Autoplay: autoplay.Config{Delay: time.Millisecond},
	})
	t.Cleanup(h.Close)
	return h, clock
}

func TestHubDispatchesAndPublishes(t *testing.T) {
	h, clock := newHub(t)
	c := &collector{}
	cancel := h.Subscribe(c.add)

	v, err := h.Start("collector")
	require.NoError(t, err)
	assert.Equal(t, session.StatusActive, v.Status)
	require.Len(t, v.Challenges, 1)

	_, err = h.Start("collector")
	assert.ErrorIs(t, err, session.ErrAlreadyActive)

	v, err = h.Act("collector", games.Action{Type: games.ActionHit, ChallengeID: v.Challenges[0].ID})
	require.NoError(t, err)
	assert.Equal(t, 1, v.Score)
	assert.Positive(t, c.count("collector", false), "views are published")
	assert.Equal(t, 1, c.count("collector", true), "the pickup tone is published")

	cancel()
	before := c.count("collector", false)
	clock.Advance(30 * time.Second)
	assert.Equal(t, before, c.count("collector", false), "unsubscribed")

	v, err = h.View("collector")
	require.NoError(t, err)
	assert.Equal(t, session.OutcomeLost, v.Outcome)
}

func TestHubUnknownGame(t *testing.T) {
	h, _ := newHub(t)
	_, err := h.Start("pinball")
	assert.ErrorIs(t, err, games.ErrUnknownGame)
	_, err = h.Autoplay("pinball")
	assert.ErrorIs(t, err, games.ErrUnknownGame)
	_, err = h.Autoplay("quiz")
	assert.ErrorIs(t, err, ErrNoAutoplay)
}

func TestHubRecords(t *testing.T) {
	h, _ := newHub(t)
	_, err := h.Act("power", games.Action{Type: games.ActionCharge})
	require.NoError(t, err)
	for i := 0; i < 40; i++ {
		v, err := h.View("power")
		require.NoError(t, err)
		if v.Status == session.StatusEnded {
			break
		}
		_, err = h.Act("power", games.Action{Type: games.ActionCharge})
		require.NoError(t, err)
	}
	recs := h.Records(t.Context())
	assert.Positive(t, recs["power_record"])
}

func TestHubAutoplay(t *testing.T) {
	h, _ := newHub(t)
	_, err := h.StartAutoplay("collector", "function choose(v) { return 0; }")
	assert.ErrorIs(t, err, autoplay.ErrNotChoiceGame)

	snap, err := h.StartAutoplay("quiz", "function choose(v) { return 0; }")
	require.NoError(t, err)
	assert.Equal(t, autoplay.StateRunning, snap.State)
	require.Eventually(t, func() bool {
		s, _ := h.Autoplay("quiz")
		return s.Moves == 1
	}, 2*time.Second, 5*time.Millisecond)

	snap, err = h.StopAutoplay("quiz")
	require.NoError(t, err)
	assert.Equal(t, autoplay.StateStopped, snap.State)
}

func TestHubClose(t *testing.T) {
	h, _ := newHub(t)
	_, err := h.StartAutoplay("counting", "function choose(v) { return 0; }")
	require.NoError(t, err)
	h.Close()
	h.Close()
	_, err = h.Start("quiz")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestHubSeedRotation(t *testing.T) {
	h, _ := newHub(t)

	v, err := h.Start("quiz")
	require.NoError(t, err)
	shown := v.Detail.(games.ChoiceDetail)

	_, err = h.RotateSeeds("quiz", "")
	assert.ErrorIs(t, err, session.ErrAlreadyActive, "a live run keeps its seed hidden")

	_, err = h.Stop("quiz")
	require.NoError(t, err)
	reveal, err := h.RotateSeeds("quiz", "my-client")
	require.NoError(t, err)
	assert.Equal(t, "hub-server", reveal.ServerSeed)
	assert.Equal(t, "hub-client:quiz", reveal.ClientSeed)
	assert.Equal(t, shown.SeedHash, reveal.ServerSeedHash)
	assert.Equal(t, shown.Nonce, reveal.LastNonce)

	v, err = h.Start("quiz")
	require.NoError(t, err)
	next := v.Detail.(games.ChoiceDetail)
	assert.Equal(t, reveal.NextServerSeedHash, next.SeedHash)
	assert.NotEqual(t, shown.SeedHash, next.SeedHash)

	other, err := h.RotateSeeds("counting", "")
	require.NoError(t, err)
	assert.Equal(t, "hub-client:counting", other.ClientSeed, "games never share a stream")

	_, err = h.RotateSeeds("pinball", "")
	assert.ErrorIs(t, err, games.ErrUnknownGame)
}
