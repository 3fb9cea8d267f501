package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/nerrad567/felshare-bridge/internal/bridges/felshare"
)

// stateResponse is the hub snapshot plus the derived availability.
type stateResponse struct {
	felshare.State
	Available bool `json:"available"`
}

func (s *Server) stateView(st felshare.State) stateResponse {
	return stateResponse{State: st, Available: st.Available(s.now(), s.offlineAfter)}
}

func (s *Server) handleGetState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.stateView(s.hub.State()))
}

func (s *Server) handleStatusRequest(w http.ResponseWriter, _ *http.Request) {
	if err := s.hub.RequestStatus(); err != nil {
		writeCommandError(w, err)
		return
	}
	writeAccepted(w)
}

type switchRequest struct {
	On *bool `json:"on"`
}

func (s *Server) handleSetPower(w http.ResponseWriter, r *http.Request) {
	var req switchRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.On == nil {
		writeBadRequest(w, `"on" is required`)
		return
	}
	s.runCommand(w, s.hub.SetPower(*req.On))
}

func (s *Server) handleSetFan(w http.ResponseWriter, r *http.Request) {
	var req switchRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.On == nil {
		writeBadRequest(w, `"on" is required`)
		return
	}
	s.runCommand(w, s.hub.SetFan(*req.On))
}

func (s *Server) handleSetOilName(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name *string `json:"name"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Name == nil {
		writeBadRequest(w, `"name" is required`)
		return
	}
	s.runCommand(w, s.hub.SetOilName(*req.Name))
}

func (s *Server) handleSetConsumption(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MLPerHour *float64 `json:"ml_per_hour"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.MLPerHour == nil {
		writeBadRequest(w, `"ml_per_hour" is required`)
		return
	}
	s.runCommand(w, s.hub.SetConsumption(*req.MLPerHour))
}

type volumeRequest struct {
	ML *int `json:"ml"`
}

func (s *Server) handleSetCapacity(w http.ResponseWriter, r *http.Request) {
	var req volumeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ML == nil {
		writeBadRequest(w, `"ml" is required`)
		return
	}
	s.runCommand(w, s.hub.SetCapacity(*req.ML))
}

func (s *Server) handleSetRemainOil(w http.ResponseWriter, r *http.Request) {
	var req volumeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ML == nil {
		writeBadRequest(w, `"ml" is required`)
		return
	}
	s.runCommand(w, s.hub.SetRemainOil(*req.ML))
}

// scheduleRequest carries a partial schedule; absent fields keep their
// current value.
type scheduleRequest struct {
	Start       *string `json:"start"`
	End         *string `json:"end"`
	RunSeconds  *int    `json:"run_seconds"`
	StopSeconds *int    `json:"stop_seconds"`
	Enabled     *bool   `json:"enabled"`
	Days        *string `json:"days"`
	DaysMask    *int    `json:"days_mask"`
}

func (s *Server) handleSetSchedule(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if !decodeBody(w, r, &req) {
		return
	}

	change := felshare.ScheduleChange{
		Start:       req.Start,
		End:         req.End,
		RunSeconds:  req.RunSeconds,
		StopSeconds: req.StopSeconds,
		Enabled:     req.Enabled,
		Days:        req.Days,
	}
	if req.DaysMask != nil {
		if *req.DaysMask < 0 || *req.DaysMask > int(felshare.AllDays) {
			writeError(w, http.StatusBadRequest, ErrCodeValidation, "days_mask must be between 0 and 127")
			return
		}
		mask := felshare.DayMask(*req.DaysMask)
		change.DaysMask = &mask
	}
	if change == (felshare.ScheduleChange{}) {
		writeBadRequest(w, "at least one schedule field is required")
		return
	}
	s.runCommand(w, s.hub.SetWorkSchedule(change))
}

func (s *Server) runCommand(w http.ResponseWriter, err error) {
	if err != nil {
		writeCommandError(w, err)
		return
	}
	writeAccepted(w)
}

// writeAccepted answers a queued command with 202.
func writeAccepted(w http.ResponseWriter) {
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "queued"})
}

// decodeBody parses a JSON body into v, writing a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			writeError(w, http.StatusRequestEntityTooLarge, ErrCodeBadRequest, "request body too large")
		case errors.Is(err, io.EOF):
			writeBadRequest(w, "request body is required")
		default:
			writeBadRequest(w, fmt.Sprintf("invalid JSON: %v", err))
		}
		return false
	}
	return true
}
