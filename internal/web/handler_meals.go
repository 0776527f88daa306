package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/vbonduro/mealsnap/internal/domain"
	"github.com/vbonduro/mealsnap/internal/photostore"
	"github.com/vbonduro/mealsnap/internal/service"
	"github.com/vbonduro/mealsnap/internal/store"
	"github.com/vbonduro/mealsnap/internal/vision"
)

type saveMealRequest struct {
	vision.Estimate
	CapturedAt *time.Time `json:"captured_at,omitempty"`
	Image      string     `json:"image,omitempty"`
}

func (s *Server) handleListMeals(w http.ResponseWriter, r *http.Request) {
	meals, err := s.service.AllMeals(r.Context())
	if err != nil {
		s.logger.Error("list meals failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list meals")
		return
	}
	writeJSON(w, http.StatusOK, meals)
}

func (s *Server) handleSaveMeal(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxAnalyzeBody)

	var req saveMealRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	in := service.SaveMealInput{Estimate: req.Estimate, Image: req.Image}
	if req.CapturedAt != nil {
		in.CapturedAt = *req.CapturedAt
	}

	rec, err := s.service.SaveMeal(r.Context(), in)
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, rec)
	case errors.Is(err, domain.ErrInvalid):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrDuplicateID):
		writeError(w, http.StatusConflict, err.Error())
	default:
		s.logger.Error("save meal failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save meal")
	}
}

func (s *Server) handleClearMeals(w http.ResponseWriter, r *http.Request) {
	if err := s.service.ClearMeals(r.Context()); err != nil {
		s.logger.Error("clear meals failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to clear meals")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleToday(w http.ResponseWriter, r *http.Request) {
	summary, err := s.service.TodaySummary(r.Context())
	if err != nil {
		s.logger.Error("today summary failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list today's meals")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	days := 0
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid days")
			return
		}
		days = n
	}

	history, err := s.service.History(r.Context(), days)
	if err != nil {
		s.logger.Error("history failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list meal history")
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func (s *Server) handleGetMeal(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rec, err := s.service.GetMeal(r.Context(), id)
	if errors.Is(err, service.ErrMealNotFound) {
		writeError(w, http.StatusNotFound, "meal not found")
		return
	}
	if err != nil {
		s.logger.Error("get meal failed", "meal_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get meal")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleDeleteMeal(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.service.DeleteMeal(r.Context(), id); err != nil {
		s.logger.Error("delete meal failed", "meal_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete meal")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetPhoto(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	reader, mimeType, err := s.service.MealPhoto(r.Context(), id)
	if errors.Is(err, photostore.ErrNotFound) {
		writeError(w, http.StatusNotFound, "photo not found")
		return
	}
	if err != nil {
		s.logger.Error("get photo failed", "meal_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get photo")
		return
	}
	defer closeWithLog(reader, "photo reader", s.logger)

	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Cache-Control", "private, max-age=86400")
	if _, err := io.Copy(w, reader); err != nil {
		s.logger.Error("write photo failed", "meal_id", id, "error", err)
	}
}
