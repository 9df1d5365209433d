package play

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/LevelInteractive/people-manager-arena-sub000/internal/coach"
	"github.com/LevelInteractive/people-manager-arena-sub000/internal/content"
	"github.com/LevelInteractive/people-manager-arena-sub000/internal/engine"
	"github.com/LevelInteractive/people-manager-arena-sub000/internal/sessionstore"
)

// RegisterRoutes mounts the play endpoints under /api/play.
func RegisterRoutes(r chi.Router, svc *Service) {
	r.Route("/api/play", func(r chi.Router) {
		r.Post("/start", handleStart(svc))
		r.Post("/resume", handleResume(svc))
		r.Post("/discard", handleDiscard(svc))
		r.Route("/sessions/{sessionID}", func(r chi.Router) {
			r.Get("/", handleSession(svc))
			r.Post("/reflect", handleReflect(svc))
			r.Post("/coach", handleCoach(svc))
			r.Post("/choose", handleChoose(svc))
			r.Post("/advance", handleAdvance(svc))
			r.Post("/feedback", handleFeedback(svc))
		})
	})
}

type startRequest struct {
	UserID     string `json:"user_id"`
	ScenarioID string `json:"scenario_id"`
}

func handleStart(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req startRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if req.UserID == "" || req.ScenarioID == "" {
			http.Error(w, "user_id and scenario_id are required", http.StatusBadRequest)
			return
		}

		view, err := svc.Start(r.Context(), req.UserID, req.ScenarioID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, view)
	}
}

func handleResume(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req startRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		view, err := svc.Resume(r.Context(), req.UserID, req.ScenarioID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

func handleDiscard(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req startRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		if err := svc.Discard(r.Context(), req.UserID, req.ScenarioID); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleSession(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view, err := svc.Session(r.Context(), chi.URLParam(r, "sessionID"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

type reflectRequest struct {
	NodeID   string `json:"node_id"`
	Text     string `json:"text"`
	Coaching bool   `json:"coaching"`
}

func handleReflect(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req reflectRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		result, err := svc.Reflect(r.Context(), chi.URLParam(r, "sessionID"), req.NodeID, req.Text, req.Coaching)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

type coachRequest struct {
	Text string `json:"text"`
}

func handleCoach(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req coachRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		exchange, err := svc.CoachReply(r.Context(), chi.URLParam(r, "sessionID"), req.Text)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, exchange)
	}
}

type chooseRequest struct {
	NodeID   string `json:"node_id"`
	ChoiceID string `json:"choice_id"`
}

func handleChoose(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req chooseRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		result, err := svc.Choose(r.Context(), chi.URLParam(r, "sessionID"), req.NodeID, req.ChoiceID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

type advanceRequest struct {
	NodeID string `json:"node_id"`
}

func handleAdvance(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req advanceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		view, err := svc.Advance(r.Context(), chi.URLParam(r, "sessionID"), req.NodeID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

type feedbackRequest struct {
	NodeID string `json:"node_id"`
}

func handleFeedback(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req feedbackRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		feedback, err := svc.Feedback(r.Context(), chi.URLParam(r, "sessionID"), req.NodeID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, feedback)
	}
}

// writeError maps domain sentinels onto HTTP statuses: missing things are
// 404, state conflicts are 409, bad input is 400, everything else is 500.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, content.ErrNotFound),
		errors.Is(err, sessionstore.ErrNotFound),
		errors.Is(err, engine.ErrNoIncompleteSession),
		errors.Is(err, ErrSessionNotLive),
		errors.Is(err, ErrNoDialogue),
		errors.Is(err, ErrNoDecisionRecorded):
		status = http.StatusNotFound
	case errors.Is(err, engine.ErrIncompleteSessionExists),
		errors.Is(err, engine.ErrSessionFinalized),
		errors.Is(err, engine.ErrSessionComplete),
		errors.Is(err, engine.ErrOutOfOrder),
		errors.Is(err, engine.ErrWrongNodeType),
		errors.Is(err, coach.ErrDialogueClosed),
		errors.Is(err, coach.ErrExchangeInFlight):
		status = http.StatusConflict
	case errors.Is(err, engine.ErrEmptyReflection),
		errors.Is(err, engine.ErrInvalidChoice),
		errors.Is(err, engine.ErrInvalidScenario),
		errors.Is(err, coach.ErrChoiceNotInSet):
		status = http.StatusBadRequest
	}
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
