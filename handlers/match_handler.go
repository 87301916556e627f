package handlers

import (
	"fmt"
	"net/http"

	"github.com/Dosada05/tournament-brackets/middleware"
	"github.com/Dosada05/tournament-brackets/models"
	"github.com/Dosada05/tournament-brackets/repositories"
	"github.com/Dosada05/tournament-brackets/services"
)

type MatchHandler struct {
	matchService services.MatchService
}

func NewMatchHandler(matchService services.MatchService) *MatchHandler {
	return &MatchHandler{matchService: matchService}
}

type updateMatchStatusRequest struct {
	Status string `json:"status"`
}

// ListTournamentMatches godoc
// @Summary List the matches of a tournament
// @Tags matches
// @Produce json
// @Param tournamentID path int true "Tournament ID"
// @Param bracket_id query int false "Only matches of this bracket"
// @Param round query int false "Only matches of this round"
// @Param status query string false "Only matches in this status" Enums(SCHEDULED, IN_PROGRESS, COMPLETED, CANCELLED)
// @Success 200 {object} map[string]interface{} "matches"
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 500 {object} map[string]string
// @Router /tournaments/{tournamentID}/matches [get]
func (h *MatchHandler) ListTournamentMatches(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var filter repositories.MatchFilter
	if filter.BracketID, err = queryInt(r, "bracket_id"); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if filter.Round, err = queryInt(r, "round"); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status, err := models.ParseMatchStatus(raw)
		if err != nil {
			badRequestResponse(w, r, err)
			return
		}
		filter.Status = &status
	}

	matches, err := h.matchService.ListByTournament(r.Context(), tournamentID, filter)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"matches": matches}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// GetMatch godoc
// @Summary Get a match
// @Tags matches
// @Produce json
// @Param matchID path int true "Match ID"
// @Success 200 {object} models.Match
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 500 {object} map[string]string
// @Router /matches/{matchID} [get]
func (h *MatchHandler) GetMatch(w http.ResponseWriter, r *http.Request) {
	matchID, err := getIDFromURL(r, "matchID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	match, err := h.matchService.GetMatch(r.Context(), matchID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, match, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// RecordResult godoc
// @Summary Record a match result
// @Tags matches
// @Description Stores the score, completes the match and advances the winner. Results from organizers and admins are confirmed immediately.
// @Accept json
// @Produce json
// @Param matchID path int true "Match ID"
// @Param body body services.RecordResultInput true "Scores"
// @Success 201 {object} services.RecordedResult
// @Failure 400 {object} map[string]string "Invalid score, draw in elimination or match not ready"
// @Failure 401 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string "Match already completed or advancement conflict"
// @Failure 500 {object} map[string]string
// @Security BearerAuth
// @Router /matches/{matchID}/result [post]
func (h *MatchHandler) RecordResult(w http.ResponseWriter, r *http.Request) {
	matchID, err := getIDFromURL(r, "matchID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	actor, err := middleware.ActorFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, err.Error())
		return
	}

	var input services.RecordResultInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	recorded, err := h.matchService.RecordResult(r.Context(), matchID, input, actor)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	headers := make(http.Header)
	headers.Set("Location", fmt.Sprintf("/matches/%d", matchID))
	if err := writeJSON(w, http.StatusCreated, recorded, headers); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// ConfirmResult godoc
// @Summary Confirm the latest result of a match
// @Tags matches
// @Produce json
// @Param matchID path int true "Match ID"
// @Success 200 {object} map[string]interface{} "result"
// @Failure 400 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Failure 404 {object} map[string]string "Match or result not found"
// @Failure 500 {object} map[string]string
// @Security BearerAuth
// @Router /matches/{matchID}/result/confirm [patch]
func (h *MatchHandler) ConfirmResult(w http.ResponseWriter, r *http.Request) {
	matchID, err := getIDFromURL(r, "matchID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	result, err := h.matchService.ConfirmResult(r.Context(), matchID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"result": result}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// UpdateStatus godoc
// @Summary Change the status of a match
// @Tags matches
// @Accept json
// @Produce json
// @Param matchID path int true "Match ID"
// @Param body body updateMatchStatusRequest true "New status (IN_PROGRESS or CANCELLED)"
// @Success 200 {object} models.Match
// @Failure 400 {object} map[string]string "Invalid transition"
// @Failure 401 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Failure 500 {object} map[string]string
// @Security BearerAuth
// @Router /matches/{matchID}/status [patch]
func (h *MatchHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	matchID, err := getIDFromURL(r, "matchID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var req updateMatchStatusRequest
	if err := readJSON(w, r, &req); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	status, err := models.ParseMatchStatus(req.Status)
	if err != nil {
		failedValidationResponse(w, r, map[string]string{"status": err.Error()})
		return
	}

	match, err := h.matchService.UpdateStatus(r.Context(), matchID, status)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, match, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// AdvanceBye godoc
// @Summary Advance the only team of a bye match
// @Tags matches
// @Produce json
// @Param matchID path int true "Match ID"
// @Success 200 {object} services.RecordedResult
// @Failure 400 {object} map[string]string "Match does not have exactly one team"
// @Failure 401 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Failure 500 {object} map[string]string
// @Security BearerAuth
// @Router /matches/{matchID}/bye [post]
func (h *MatchHandler) AdvanceBye(w http.ResponseWriter, r *http.Request) {
	matchID, err := getIDFromURL(r, "matchID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	recorded, err := h.matchService.AdvanceBye(r.Context(), matchID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, recorded, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
