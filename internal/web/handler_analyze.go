package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/vbonduro/mealsnap/internal/vision"
)

// maxAnalyzeBody caps the request body. It sits above the decoded image
// limit so oversized images are still reported as too large, not malformed.
const maxAnalyzeBody = 8 << 20

type analyzeRequest struct {
	Image string `json:"image"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	// A missing key outranks anything wrong with the request body.
	if err := s.service.CheckConfig(); err != nil {
		s.writeVisionError(w, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxAnalyzeBody)

	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeVisionError(w, vision.NewError(vision.ImageTooLarge, err))
			return
		}
		s.writeVisionError(w, vision.NewError(vision.NoImageProvided, err))
		return
	}

	est, err := s.service.Analyze(r.Context(), req.Image)
	if err != nil {
		s.writeVisionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, est)
}

// writeVisionError reports a failed analysis with the status of its kind.
func (s *Server) writeVisionError(w http.ResponseWriter, err error) {
	var ve *vision.Error
	if !errors.As(err, &ve) {
		ve = vision.NewError(vision.UpstreamOther, err)
	}
	if ve.Status() >= http.StatusInternalServerError {
		s.logger.Error("analyze failed", "kind", ve.Kind.String(), "error", err)
	}

	resp := errorResponse{Error: ve.Message}
	if s.debug {
		debug := map[string]string{"kind": ve.Kind.String()}
		if ve.Err != nil {
			debug["cause"] = ve.Err.Error()
		}
		resp.Debug = debug
	}
	writeJSON(w, ve.Status(), resp)
}
