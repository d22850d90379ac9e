package engine

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
)

// Seeds identify one deterministic challenge stream. Publishing the server
// seed hash up front and the seed itself after the session lets a player
// replay exactly which questions, notes and targets were generated.
type Seeds struct {
	Server string // ASCII; do NOT hex-decode
	Client string
}

// RandomSeeds returns a fresh pair of seeds for a new session.
func RandomSeeds() Seeds {
	return Seeds{
		Server: strings.ReplaceAll(uuid.NewString(), "-", ""),
		Client: uuid.NewString(),
	}
}

// ServerHash returns the hex SHA-256 commitment of the server seed.
func (s Seeds) ServerHash() string {
	if s.Server == "" {
		return ""
	}
	h := sha256.Sum256([]byte(s.Server))
	return hex.EncodeToString(h[:])
}

// ByteGenerator generates bytes using HMAC-SHA256 rounds
// for streaming approach to float generation
type ByteGenerator struct {
	serverSeed   string
	clientSeed   string
	nonce        uint64
	currentRound uint64
	currentPos   int
	buffer       [32]byte
}

// NewByteGenerator creates a new byte generator with the given parameters
func NewByteGenerator(serverSeed, clientSeed string, nonce uint64, cursor uint64) *ByteGenerator {
	bg := &ByteGenerator{
		serverSeed:   serverSeed,
		clientSeed:   clientSeed,
		nonce:        nonce,
		currentRound: cursor / 32,
		currentPos:   int(cursor % 32),
	}
	bg.generateRound()
	return bg
}

// Next returns the next byte from the generator
func (bg *ByteGenerator) Next() byte {
	if bg.currentPos >= 32 {
		bg.currentRound++
		bg.currentPos = 0
		bg.generateRound()
	}

	b := bg.buffer[bg.currentPos]
	bg.currentPos++
	return b
}

// NextFloat generates the next float in [0, 1) using exactly 4 bytes
func (bg *ByteGenerator) NextFloat() float64 {
	return bytesToFloat([4]byte{bg.Next(), bg.Next(), bg.Next(), bg.Next()})
}

func (bg *ByteGenerator) generateRound() {
	h := hmac.New(sha256.New, []byte(bg.serverSeed))
	message := fmt.Sprintf("%s:%d:%d", bg.clientSeed, bg.nonce, bg.currentRound)
	h.Write([]byte(message))
	copy(bg.buffer[:], h.Sum(nil))
}

func bytesToFloat(bytes [4]byte) float64 {
	result := 0.0
	for i, b := range bytes {
		divider := math.Pow(256, float64(i+1))
		result += float64(b) / divider
	}
	return result
}

// Floats generates the specified number of floats starting from the given cursor
func Floats(serverSeed, clientSeed string, nonce uint64, cursor uint64, count int) []float64 {
	bg := NewByteGenerator(serverSeed, clientSeed, nonce, cursor)
	floats := make([]float64, count)
	for i := 0; i < count; i++ {
		floats[i] = bg.NextFloat()
	}
	return floats
}

// Source is a deterministic random source for challenge generation.
// Each session start bumps the nonce so consecutive sessions on the same
// seeds never replay the same sequence. A Source is not safe for
// concurrent use; sessions only touch it under their own lock.
type Source struct {
	seeds Seeds
	nonce uint64
	gen   *ByteGenerator
}

// NewSource returns a source positioned at nonce 1.
func NewSource(seeds Seeds) *Source {
	s := &Source{seeds: seeds}
	s.Advance()
	return s
}

// Seeds returns the seeds backing the source.
func (s *Source) Seeds() Seeds { return s.seeds }

// Nonce returns the current nonce.
func (s *Source) Nonce() uint64 { return s.nonce }

// Advance moves to the next nonce and restarts the byte stream.
func (s *Source) Advance() {
	s.nonce++
	s.gen = NewByteGenerator(s.seeds.Server, s.seeds.Client, s.nonce, 0)
}

// Reseed switches to seeds and restarts at nonce 1.
func (s *Source) Reseed(seeds Seeds) {
	s.seeds = seeds
	s.nonce = 0
	s.Advance()
}

// Float returns the next float in [0, 1).
func (s *Source) Float() float64 {
	return s.gen.NextFloat()
}

// Intn returns an int in [0, n). It panics when n <= 0, like math/rand.
func (s *Source) Intn(n int) int {
	if n <= 0 {
		panic("engine: Intn called with n <= 0")
	}
	idx := int(s.Float() * float64(n))
	if idx >= n {
		idx = n - 1
	}
	return idx
}

// Between returns an int in [lo, hi].
func (s *Source) Between(lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + s.Intn(hi-lo+1)
}

// Shuffle permutes n elements with a Fisher-Yates pass.
func (s *Source) Shuffle(n int, swap func(i, j int)) {
	for i := n - 1; i > 0; i-- {
		swap(i, s.Intn(i+1))
	}
}

// PickOther returns an index in [0, n) different from avoid when n > 1.
func (s *Source) PickOther(n, avoid int) int {
	if n <= 1 {
		return 0
	}
	if avoid < 0 || avoid >= n {
		return s.Intn(n)
	}
	idx := s.Intn(n - 1)
	if idx >= avoid {
		idx++
	}
	return idx
}
