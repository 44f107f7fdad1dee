package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/signalsfoundry/satellite-telemetry-sim/core"
	"github.com/signalsfoundry/satellite-telemetry-sim/internal/logging"
	"github.com/signalsfoundry/satellite-telemetry-sim/internal/sim/state"
	"github.com/signalsfoundry/satellite-telemetry-sim/model"
)

const maxBodyBytes = 1 << 16

// ErrNoClassifier is returned by /api/classify when no predictor is wired.
var ErrNoClassifier = errors.New("no classifier configured")

type fieldInfo struct {
	Name  string      `json:"name"`
	Range model.Range `json:"range"`
}

type eventInfo struct {
	Name   string       `json:"name"`
	Deltas []core.Delta `json:"deltas"`
}

type actionInfo struct {
	Index   int           `json:"index"`
	Name    string        `json:"name"`
	Effects []core.Effect `json:"effects"`
}

type catalogResponse struct {
	Fields  []fieldInfo  `json:"fields"`
	Events  []eventInfo  `json:"events"`
	Actions []actionInfo `json:"actions"`
}

func (s *Server) handleCatalog(w http.ResponseWriter, _ *http.Request) {
	var resp catalogResponse
	for _, f := range model.Fields() {
		resp.Fields = append(resp.Fields, fieldInfo{Name: f.String(), Range: f.Range()})
	}
	for _, e := range core.Events() {
		resp.Events = append(resp.Events, eventInfo{Name: e.String(), Deltas: e.Deltas()})
	}
	for i, a := range core.Actions() {
		resp.Actions = append(resp.Actions, actionInfo{Index: i, Name: a.String(), Effects: a.Effects()})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSessions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"sessions": s.deps.Registry.List()})
}

func (s *Server) handleSessionByID(w http.ResponseWriter, r *http.Request) {
	info, err := s.deps.Registry.Get(chi.URLParam(r, "id"))
	if errors.Is(err, state.ErrSessionNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// telemetryRequest accepts either the flat field map or {"telemetry": {...}}.
type telemetryRequest struct {
	Telemetry model.Telemetry
}

func (t *telemetryRequest) UnmarshalJSON(data []byte) error {
	var env struct {
		Telemetry *model.Telemetry `json:"telemetry"`
	}
	if err := json.Unmarshal(data, &env); err == nil && env.Telemetry != nil {
		t.Telemetry = *env.Telemetry
		return nil
	}
	return json.Unmarshal(data, &t.Telemetry)
}

func (s *Server) handleRecalculate(w http.ResponseWriter, r *http.Request) {
	var req telemetryRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, core.Recalculate(req.Telemetry.Settle()))
}

type fixesRequest struct {
	Telemetry model.Telemetry  `json:"telemetry"`
	Flags     core.ActionFlags `json:"flags"`
	Seed      uint64           `json:"seed"`
}

type fixesResponse struct {
	Telemetry model.Telemetry `json:"telemetry"`
	Applied   []string        `json:"applied"`
}

func (s *Server) handleFixes(w http.ResponseWriter, r *http.Request) {
	var req fixesRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	seed := req.Seed
	if seed == 0 {
		seed = s.seq.Add(1)
	}
	out, applied, err := core.ApplyFixes(req.Telemetry.Settle(), req.Flags, core.NewRand(seed))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, fixesResponse{Telemetry: out, Applied: actionNames(applied)})
}

type classifyResponse struct {
	Flags   core.ActionFlags `json:"flags"`
	Actions []string         `json:"actions"`
}

func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	if s.deps.Predictor == nil {
		writeError(w, http.StatusNotImplemented, ErrNoClassifier)
		return
	}
	var req telemetryRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	ctx := r.Context()
	flags, err := s.deps.Predictor.Predict(ctx, req.Telemetry)
	if err == nil {
		err = flags.Validate()
	}
	if err != nil {
		loggerFrom(ctx, s.log).Warn(ctx, "classify failed", logging.Err(err))
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, classifyResponse{Flags: flags, Actions: actionNames(flags.Kinds())})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty request body")
		}
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}

func actionNames(kinds []core.ActionKind) []string {
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = k.String()
	}
	return names
}
