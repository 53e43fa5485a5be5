package controller

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	appErrors "github.com/unclebandit/mailcampaign-backend/internal/errors"
)

type errorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.WithError(err).Warn("Failed to encode response")
	}
}

// writeError maps service errors to HTTP statuses. Anything unrecognized is
// logged and reported as a 500 without its details.
func writeError(w http.ResponseWriter, log logrus.FieldLogger, err error) {
	var (
		verr *appErrors.ValidationError
		nerr *appErrors.NotFoundError
		serr *appErrors.InvalidStateError
	)
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "validation failed", Fields: verr.Fields})
	case errors.As(err, &nerr):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: nerr.Error()})
	case errors.As(err, &serr):
		writeJSON(w, http.StatusConflict, errorResponse{Error: serr.Error()})
	default:
		if log == nil {
			log = logrus.StandardLogger()
		}
		log.WithError(err).Error("Request failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
	}
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
}

// idParam reads the {id} route parameter. ok is false after a 400 has been
// written.
func idParam(w http.ResponseWriter, r *http.Request, resource string) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		badRequest(w, "invalid "+resource+" id")
		return 0, false
	}
	return id, true
}

func pageParams(r *http.Request) (int, int) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	return page, pageSize
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		badRequest(w, "invalid body")
		return false
	}
	return true
}
