package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lazypower/totemic/internal/engine"
	"github.com/lazypower/totemic/internal/store"
)

func (s *Server) handleCreateDocument(w http.ResponseWriter, r *http.Request) {
	var in engine.DocumentInput
	if err := decode(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}

	doc, err := s.coord.CreateDocument(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.coord.Get(r.Context(), chi.URLParam(r, "documentID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleAddAnswer(w http.ResponseWriter, r *http.Request) {
	var in engine.AnswerInput
	if err := decode(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}

	doc, answerID, err := s.coord.AddAnswer(r.Context(), chi.URLParam(r, "documentID"), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"answer_id": answerID,
		"document":  doc,
	})
}

type engagementRequest struct {
	AnswerID   string `json:"answer_id"`
	Totem      string `json:"totem"`
	SubjectID  string `json:"subject_id"`
	Action     string `json:"action"`
	DecayModel string `json:"decay_model,omitempty"`
}

type engagementResponse struct {
	Outcome  engine.Outcome `json:"outcome"`
	AnswerID string         `json:"answer_id"`
	Totem    store.Totem    `json:"totem"`
	Version  int64          `json:"version"`
	Attempts int            `json:"attempts"`
}

func (s *Server) handleEngagement(w http.ResponseWriter, r *http.Request) {
	var req engagementRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	action, err := engine.ParseAction(req.Action)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.coord.Apply(r.Context(), engine.Request{
		DocumentID: chi.URLParam(r, "documentID"),
		AnswerID:   req.AnswerID,
		TotemName:  req.Totem,
		SubjectID:  req.SubjectID,
		Action:     action,
		DecayModel: store.DecayModel(req.DecayModel),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, engagementResponse{
		Outcome:  res.Outcome,
		AnswerID: res.AnswerID,
		Totem:    res.Totem,
		Version:  res.Document.Version,
		Attempts: res.Attempts,
	})
}

func (s *Server) handleRescore(w http.ResponseWriter, r *http.Request) {
	doc, err := s.coord.Rescore(r.Context(), chi.URLParam(r, "documentID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleRecomputeRelations(w http.ResponseWriter, r *http.Request) {
	edges, err := s.coord.RecomputeRelations(r.Context(), chi.URLParam(r, "documentID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"edges": edges})
}

func (s *Server) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	sugg, err := s.coord.Suggestions(r.Context(), chi.URLParam(r, "documentID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"suggestions": sugg})
}

func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	edges, err := s.coord.Graph(r.Context(), chi.URLParam(r, "documentID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"edges": edges})
}
