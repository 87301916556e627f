package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Dosada05/tournament-brackets/brackets"
	"github.com/Dosada05/tournament-brackets/handlers"
	"github.com/Dosada05/tournament-brackets/models"
	"github.com/Dosada05/tournament-brackets/repositories"
	"github.com/Dosada05/tournament-brackets/services"
	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "routes-secret"

type okBrackets struct{}

func (okBrackets) GenerateBracket(context.Context, int, services.GenerateBracketInput) (*services.BracketView, error) {
	return &services.BracketView{}, nil
}
func (okBrackets) GetBracket(context.Context, int) (*services.BracketView, error) {
	return &services.BracketView{}, nil
}
func (okBrackets) PairNextSwissRound(context.Context, int) (*services.BracketView, error) {
	return &services.BracketView{}, nil
}
func (okBrackets) Standings(context.Context, int) ([]*models.TournamentStanding, error) {
	return nil, nil
}

type okMatches struct{}

func (okMatches) ListByTournament(context.Context, int, repositories.MatchFilter) ([]*models.Match, error) {
	return nil, nil
}
func (okMatches) GetMatch(_ context.Context, id int) (*models.Match, error) {
	return &models.Match{ID: id}, nil
}
func (okMatches) RecordResult(_ context.Context, id int, _ services.RecordResultInput, _ models.Actor) (*services.RecordedResult, error) {
	return &services.RecordedResult{Match: &models.Match{ID: id}}, nil
}
func (okMatches) ConfirmResult(_ context.Context, id int) (*models.MatchResult, error) {
	return &models.MatchResult{MatchID: id}, nil
}
func (okMatches) UpdateStatus(_ context.Context, id int, status models.MatchStatus) (*models.Match, error) {
	return &models.Match{ID: id, Status: status}, nil
}
func (okMatches) AdvanceBye(_ context.Context, id int) (*services.RecordedResult, error) {
	return &services.RecordedResult{Match: &models.Match{ID: id}}, nil
}

func newRouter(t *testing.T) http.Handler {
	t.Helper()
	router := chi.NewRouter()
	SetupRoutes(router,
		Options{JWTSecret: secret, AllowedOrigins: []string{"https://brackets.example.com"}},
		handlers.NewBracketHandler(okBrackets{}),
		handlers.NewMatchHandler(okMatches{}),
		handlers.NewWebSocketHandler(brackets.NewHub(nil), nil, nil),
	)
	return router
}

func bearer(t *testing.T, role models.UserRole) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": 11,
		"role":    string(role),
		"exp":     time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(secret))
	require.NoError(t, err)
	return "Bearer " + token
}

func TestRouteAccess(t *testing.T) {
	router := newRouter(t)

	tests := []struct {
		name   string
		method string
		target string
		body   string
		role   models.UserRole
		status int
	}{
		{"health", http.MethodGet, "/healthz", "", "", http.StatusOK},
		{"metrics", http.MethodGet, "/metrics", "", "", http.StatusOK},
		{"public bracket", http.MethodGet, "/tournaments/1/bracket", "", "", http.StatusOK},
		{"public match", http.MethodGet, "/matches/3", "", "", http.StatusOK},
		{"generate anonymous", http.MethodPost, "/tournaments/1/bracket", `{"format":"ROUND_ROBIN"}`, "", http.StatusUnauthorized},
		{"generate as player", http.MethodPost, "/tournaments/1/bracket", `{"format":"ROUND_ROBIN"}`, models.RolePlayer, http.StatusForbidden},
		{"generate as organizer", http.MethodPost, "/tournaments/1/bracket", `{"format":"ROUND_ROBIN"}`, models.RoleOrganizer, http.StatusCreated},
		{"swiss next round as admin", http.MethodPost, "/tournaments/1/bracket/swiss/next-round", "", models.RoleAdmin, http.StatusOK},
		{"result anonymous", http.MethodPost, "/matches/3/result", `{"team1_score":1,"team2_score":0}`, "", http.StatusUnauthorized},
		{"result as player", http.MethodPost, "/matches/3/result", `{"team1_score":1,"team2_score":0}`, models.RolePlayer, http.StatusCreated},
		{"confirm as player", http.MethodPatch, "/matches/3/result/confirm", "", models.RolePlayer, http.StatusForbidden},
		{"confirm as organizer", http.MethodPatch, "/matches/3/result/confirm", "", models.RoleOrganizer, http.StatusOK},
		{"status as organizer", http.MethodPatch, "/matches/3/status", `{"status":"CANCELLED"}`, models.RoleOrganizer, http.StatusOK},
		{"bye as player", http.MethodPost, "/matches/3/bye", "", models.RolePlayer, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.target, strings.NewReader(tt.body))
			if tt.role != "" {
				req.Header.Set("Authorization", bearer(t, tt.role))
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	router := newRouter(t)

	req := httptest.NewRequest(http.MethodOptions, "/matches/3/result", nil)
	req.Header.Set("Origin", "https://brackets.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, "https://brackets.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}
