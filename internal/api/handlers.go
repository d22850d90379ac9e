package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/MJE43/emoji-arcade/internal/engine"
	"github.com/MJE43/emoji-arcade/internal/games"
	"github.com/MJE43/emoji-arcade/internal/history"
	"github.com/MJE43/emoji-arcade/internal/session"
)

const (
	maxBodyBytes = 256 << 10

	defaultVerifyFloats = 8
	maxVerifyFloats     = 256
)

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, GetVersionInfo())
}

func (s *Server) handleListGames(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, GamesResponse{
		Games:         s.hub.Games(),
		EngineVersion: EngineVersion,
	})
}

func (s *Server) handleGetGame(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	spec, ok := games.GetGame(id)
	if !ok {
		s.errors.HandleError(w, r, fmt.Errorf("%w: %q", games.ErrUnknownGame, id))
		return
	}
	v, err := s.hub.View(id)
	if err != nil {
		s.errors.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, GameResponse{Game: spec, View: v})
}

// viewHandler adapts a hub call that returns the resulting view.
func (s *Server) viewHandler(fn func(id string) (session.View, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := fn(chi.URLParam(r, "id"))
		if err != nil {
			s.errors.HandleError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, v)
	}
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	s.viewHandler(s.hub.View)(w, r)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	s.viewHandler(s.hub.Start)(w, r)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.viewHandler(s.hub.Stop)(w, r)
}

func (s *Server) handleAct(w http.ResponseWriter, r *http.Request) {
	var a games.Action
	if !s.decode(w, r, &a) {
		return
	}
	if strings.TrimSpace(a.Type) == "" {
		s.errors.HandleValidationError(w, r, "type", "action type is required")
		return
	}
	s.viewHandler(func(id string) (session.View, error) { return s.hub.Act(id, a) })(w, r)
}

func (s *Server) handleRotateSeeds(w http.ResponseWriter, r *http.Request) {
	var req RotateSeedsRequest
	if !s.decode(w, r, &req) {
		return
	}
	reveal, err := s.hub.RotateSeeds(chi.URLParam(r, "id"), strings.TrimSpace(req.ClientSeed))
	if err != nil {
		s.errors.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, reveal)
}

func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, RecordsResponse{Records: s.hub.Records(r.Context())})
}

func (s *Server) handleGetAutoplay(w http.ResponseWriter, r *http.Request) {
	snap, err := s.hub.Autoplay(chi.URLParam(r, "id"))
	if err != nil {
		s.errors.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleStartAutoplay(w http.ResponseWriter, r *http.Request) {
	var req AutoplayRequest
	if !s.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Script) == "" {
		s.errors.HandleValidationError(w, r, "script", "script is required")
		return
	}
	snap, err := s.hub.StartAutoplay(chi.URLParam(r, "id"), req.Script)
	if err != nil {
		s.errors.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, snap)
}

func (s *Server) handleStopAutoplay(w http.ResponseWriter, r *http.Request) {
	snap, err := s.hub.StopAutoplay(chi.URLParam(r, "id"))
	if err != nil {
		s.errors.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	if s.hist == nil {
		s.errors.HandleUnavailable(w, r, "history")
		return
	}
	q := r.URL.Query()
	f := history.Filter{Game: q.Get("game")}
	var ok bool
	if f.Limit, ok = s.queryInt(w, r, "limit", 20, 1, 200); !ok {
		return
	}
	if f.Offset, ok = s.queryInt(w, r, "offset", 0, 0, -1); !ok {
		return
	}
	sessions, total, err := s.hist.ListSessions(r.Context(), f)
	if err != nil {
		s.errors.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, HistoryResponse{
		Sessions: sessions,
		Total:    total,
		Limit:    f.Limit,
		Offset:   f.Offset,
	})
}

func (s *Server) handleHistoryStats(w http.ResponseWriter, r *http.Request) {
	if s.hist == nil {
		s.errors.HandleUnavailable(w, r, "history")
		return
	}
	stats, err := s.hist.Stats(r.Context(), r.URL.Query().Get("game"))
	if err != nil {
		s.errors.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	if s.hist == nil {
		s.errors.HandleUnavailable(w, r, "history")
		return
	}
	sess, err := s.hist.GetSession(r.Context(), chi.URLParam(r, "sid"))
	if err != nil {
		s.errors.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleDeleteHistory(w http.ResponseWriter, r *http.Request) {
	if s.hist == nil {
		s.errors.HandleUnavailable(w, r, "history")
		return
	}
	if err := s.hist.DeleteSession(r.Context(), chi.URLParam(r, "sid")); err != nil {
		s.errors.HandleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHistoryResolutions(w http.ResponseWriter, r *http.Request) {
	if s.hist == nil {
		s.errors.HandleUnavailable(w, r, "history")
		return
	}
	sid := chi.URLParam(r, "sid")
	if _, err := s.hist.GetSession(r.Context(), sid); err != nil {
		s.errors.HandleError(w, r, err)
		return
	}
	page, ok := s.queryInt(w, r, "page", 1, 1, -1)
	if !ok {
		return
	}
	perPage, ok := s.queryInt(w, r, "per_page", 50, 1, 500)
	if !ok {
		return
	}
	res, err := s.hist.GetResolutions(r.Context(), sid, page, perPage)
	if err != nil {
		s.errors.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

// handleVerify regenerates the floats a run drew from its seeds so a player
// can check the questions they were given.
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if !s.decode(w, r, &req) {
		return
	}
	switch {
	case req.ServerSeed == "":
		s.errors.HandleValidationError(w, r, "serverSeed", "server seed is required")
		return
	case req.ClientSeed == "":
		s.errors.HandleValidationError(w, r, "clientSeed", "client seed is required")
		return
	case req.Nonce == 0:
		s.errors.HandleValidationError(w, r, "nonce", "nonce starts at 1")
		return
	case req.Count < 0 || req.Count > maxVerifyFloats:
		s.errors.HandleValidationError(w, r, "count", fmt.Sprintf("count must be between 0 and %d", maxVerifyFloats))
		return
	}
	if req.Count == 0 {
		req.Count = defaultVerifyFloats
	}

	seeds := engine.Seeds{Server: req.ServerSeed, Client: req.ClientSeed}
	s.logger.Debug().
		Str("server_hash", seeds.ServerHash()).
		Uint64("nonce", req.Nonce).
		Int("count", req.Count).
		Msg("verify_request")

	s.writeJSON(w, http.StatusOK, VerifyResponse{
		ServerSeedHash: seeds.ServerHash(),
		Nonce:          req.Nonce,
		Floats:         engine.Floats(seeds.Server, seeds.Client, req.Nonce, 0, req.Count),
		EngineVersion:  EngineVersion,
	})
}

// decode reads a JSON body into dst, rejecting unknown fields. An empty body
// leaves dst untouched.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		s.errors.HandleValidationError(w, r, "body", err.Error())
		return false
	}
	return true
}

// queryInt parses an optional integer query parameter. hi < 0 means no upper
// bound.
func (s *Server) queryInt(w http.ResponseWriter, r *http.Request, name string, def, lo, hi int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < lo || (hi >= 0 && n > hi) {
		s.errors.HandleValidationError(w, r, name, fmt.Sprintf("%s must be an integer in range", name))
		return 0, false
	}
	return n, true
}
