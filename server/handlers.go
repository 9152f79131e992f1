package server

import (
	"net/http"

	"github.com/randalmurphal/esdiag/chat"
	"github.com/randalmurphal/esdiag/model"
	"github.com/randalmurphal/esdiag/session"
)

type replyResponse struct {
	Reply           string `json:"reply"`
	ToolCall        bool   `json:"toolCall,omitempty"`
	Endpoint        string `json:"endpoint,omitempty"`
	PolicyViolation string `json:"policyViolation,omitempty"`
}

type ackResponse struct {
	Status  string `json:"status"`
	Session string `json:"session"`
}

type usageResponse struct {
	Total         model.Usage         `json:"total"`
	EstimatedCost float64             `json:"estimated_cost_usd"`
	Models        []model.ModelReport `json:"models"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleUsage(w http.ResponseWriter, _ *http.Request) {
	if s.usage == nil {
		s.writeJSON(w, http.StatusOK, usageResponse{Models: []model.ModelReport{}})
		return
	}
	s.writeJSON(w, http.StatusOK, usageResponse{
		Total:         s.usage.TotalUsage(),
		EstimatedCost: s.usage.EstimatedCost(),
		Models:        s.usage.Report(),
	})
}

func (s *Server) handleSessions(w http.ResponseWriter, _ *http.Request) {
	infos := s.svc.Sessions()
	if infos == nil {
		infos = []session.Info{}
	}
	s.writeJSON(w, http.StatusOK, infos)
}

func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	raw, ok := s.schemas.raw[r.PathValue("name")]
	if !ok {
		s.writeJSON(w, http.StatusNotFound, errorResponse{Error: "unknown schema"})
		return
	}
	w.Header().Set("Content-Type", "application/schema+json")
	_, _ = w.Write(raw)
}

func (s *Server) handleInitStats(w http.ResponseWriter, r *http.Request) {
	cluster := r.URL.Query().Get("cluster_name")
	report, err := s.svc.InitStatsDebug(r.Context(), cluster)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleSeedStats(w http.ResponseWriter, r *http.Request) {
	body, err := s.readValidated(w, r, "seed-stats")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req seedStatsRequest
	if err := decodeInto(body, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.svc.SeedStats(r.Context(), req.ClusterName, req.Text); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, ackResponse{Status: "seeded", Session: chat.KeyStats})
}

func (s *Server) handleSeedTimeSeries(w http.ResponseWriter, r *http.Request) {
	body, err := s.readValidated(w, r, "seed-timeseries")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req struct {
		Records []chat.Record `json:"records"`
	}
	if err := decodeInto(body, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if _, err := s.svc.SeedTimeSeries(r.Context(), req.Records); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, ackResponse{Status: "seeded", Session: chat.KeyTimeSeries})
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	body, err := s.readValidated(w, r, "send")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req sendRequest
	if err := decodeInto(body, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	reply, err := s.svc.Send(r.Context(), chat.Metric(req.Metric), req.Message)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, replyResponse{Reply: reply})
}

func (s *Server) handleToolQuery(w http.ResponseWriter, r *http.Request) {
	body, err := s.readValidated(w, r, "tool-query")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req toolQueryRequest
	if err := decodeInto(body, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.svc.ToolQuery(r.Context(), req.ClusterName, req.Message)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, replyResponse{
		Reply:           res.Reply,
		ToolCall:        res.ToolCall,
		Endpoint:        res.Endpoint,
		PolicyViolation: res.PolicyViolation,
	})
}
