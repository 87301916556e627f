package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Dosada05/tournament-brackets/locks"
	"github.com/Dosada05/tournament-brackets/models"
	"github.com/Dosada05/tournament-brackets/repositories"
	"github.com/Dosada05/tournament-brackets/storage"
)

// memStore is an in-memory stand-in for the PostgreSQL repositories. A failed
// transaction restores the state captured when it began.
type memStore struct {
	mu   sync.Mutex
	txMu sync.Mutex

	nextID      int
	tournaments map[int]*models.Tournament
	teams       []*models.Team
	brackets    map[int]*models.Bracket
	matches     map[int]*models.Match
	results     []*models.MatchResult

	failures map[string]error
}

func newMemStore() *memStore {
	return &memStore{
		tournaments: make(map[int]*models.Tournament),
		brackets:    make(map[int]*models.Bracket),
		matches:     make(map[int]*models.Match),
		failures:    make(map[string]error),
	}
}

func (s *memStore) repos() Repositories {
	return Repositories{
		Tx:          memTransactor{s},
		Tournaments: memTournaments{s},
		Teams:       memTeams{s},
		Brackets:    memBrackets{s},
		Matches:     memMatches{s},
		Results:     memResults{s},
	}
}

func (s *memStore) id() int {
	s.nextID++
	return s.nextID
}

func (s *memStore) failOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = err
}

// failure must be called with mu held.
func (s *memStore) failure(op string) error {
	return s.failures[op]
}

func (s *memStore) addTournament(status models.TournamentStatus) *models.Tournament {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &models.Tournament{ID: s.id(), Name: "Cup", Status: status, CreatedAt: time.Now()}
	s.tournaments[t.ID] = t
	cp := *t
	return &cp
}

func (s *memStore) addTeams(tournamentID, n int) []*models.Team {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Team, 0, n)
	for i := 0; i < n; i++ {
		t := &models.Team{ID: s.id(), TournamentID: tournamentID, Name: fmt.Sprintf("Team %d", i+1)}
		s.teams = append(s.teams, t)
		cp := *t
		out = append(out, &cp)
	}
	return out
}

func (s *memStore) tournament(id int) *models.Tournament {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := *s.tournaments[id]
	return &t
}

func (s *memStore) bracketOf(tournamentID int, kind models.BracketKind) *models.Bracket {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.brackets {
		if b.TournamentID == tournamentID && b.Kind == kind {
			cp := *b
			return &cp
		}
	}
	return nil
}

// matchAt returns a copy of the match at (kind, round, position), or nil.
func (s *memStore) matchAt(tournamentID int, kind models.BracketKind, round, position int) *models.Match {
	b := s.bracketOf(tournamentID, kind)
	if b == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.matches {
		if m.BracketID == b.ID && m.Round == round && m.Position == position {
			return copyMatch(m)
		}
	}
	return nil
}

func (s *memStore) countMatches(tournamentID int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.matches {
		if m.TournamentID == tournamentID {
			n++
		}
	}
	return n
}

func (s *memStore) forceSlot(matchID int, slot models.Slot, teamID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.matches[matchID].SetTeam(slot, &teamID)
}

func copyMatch(m *models.Match) *models.Match {
	cp := *m
	if m.Team1ID != nil {
		v := *m.Team1ID
		cp.Team1ID = &v
	}
	if m.Team2ID != nil {
		v := *m.Team2ID
		cp.Team2ID = &v
	}
	cp.Team1, cp.Team2, cp.LatestResult = nil, nil, nil
	return &cp
}

type memSnapshot struct {
	nextID      int
	tournaments map[int]models.Tournament
	brackets    map[int]models.Bracket
	matches     map[int]*models.Match
	results     []models.MatchResult
}

func (s *memStore) snapshot() memSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := memSnapshot{
		nextID:      s.nextID,
		tournaments: make(map[int]models.Tournament, len(s.tournaments)),
		brackets:    make(map[int]models.Bracket, len(s.brackets)),
		matches:     make(map[int]*models.Match, len(s.matches)),
	}
	for id, t := range s.tournaments {
		snap.tournaments[id] = *t
	}
	for id, b := range s.brackets {
		snap.brackets[id] = *b
	}
	for id, m := range s.matches {
		snap.matches[id] = copyMatch(m)
	}
	for _, r := range s.results {
		snap.results = append(snap.results, *r)
	}
	return snap
}

func (s *memStore) restore(snap memSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID = snap.nextID
	s.tournaments = make(map[int]*models.Tournament, len(snap.tournaments))
	for id, t := range snap.tournaments {
		t := t
		s.tournaments[id] = &t
	}
	s.brackets = make(map[int]*models.Bracket, len(snap.brackets))
	for id, b := range snap.brackets {
		b := b
		s.brackets[id] = &b
	}
	s.matches = snap.matches
	s.results = nil
	for _, r := range snap.results {
		r := r
		s.results = append(s.results, &r)
	}
}

type memTransactor struct{ s *memStore }

func (t memTransactor) WithinTx(ctx context.Context, fn func(exec repositories.SQLExecutor) error) error {
	t.s.txMu.Lock()
	defer t.s.txMu.Unlock()

	snap := t.s.snapshot()
	if err := fn(nil); err != nil {
		t.s.restore(snap)
		return err
	}
	return nil
}

type memTournaments struct{ s *memStore }

func (r memTournaments) GetByID(ctx context.Context, id int) (*models.Tournament, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tournaments[id]
	if !ok {
		return nil, repositories.ErrTournamentNotFound
	}
	cp := *t
	return &cp, nil
}

func (r memTournaments) update(id int, fn func(t *models.Tournament)) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tournaments[id]
	if !ok {
		return repositories.ErrTournamentNotFound
	}
	fn(t)
	return nil
}

func (r memTournaments) UpdateStatus(ctx context.Context, exec repositories.SQLExecutor, id int, status models.TournamentStatus) error {
	return r.update(id, func(t *models.Tournament) { t.Status = status })
}

func (r memTournaments) UpdateFormat(ctx context.Context, exec repositories.SQLExecutor, id int, format models.FormatKind) error {
	return r.update(id, func(t *models.Tournament) { t.Format = &format })
}

func (r memTournaments) UpdateWinner(ctx context.Context, exec repositories.SQLExecutor, id int, winnerTeamID *int) error {
	return r.update(id, func(t *models.Tournament) { t.WinnerTeamID = winnerTeamID })
}

type memTeams struct{ s *memStore }

func (r memTeams) GetByID(ctx context.Context, id int) (*models.Team, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, t := range r.s.teams {
		if t.ID == id {
			cp := *t
			return &cp, nil
		}
	}
	return nil, repositories.ErrTeamNotFound
}

func (r memTeams) ListByTournament(ctx context.Context, tournamentID int) ([]*models.Team, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*models.Team, 0)
	for _, t := range r.s.teams {
		if t.TournamentID == tournamentID {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

type memBrackets struct{ s *memStore }

func (r memBrackets) Create(ctx context.Context, exec repositories.SQLExecutor, bracket *models.Bracket) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure("brackets.Create"); err != nil {
		return err
	}
	bracket.ID = r.s.id()
	bracket.CreatedAt = time.Now()
	cp := *bracket
	cp.Matches = nil
	r.s.brackets[bracket.ID] = &cp
	return nil
}

func (r memBrackets) GetByID(ctx context.Context, id int) (*models.Bracket, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.brackets[id]
	if !ok {
		return nil, repositories.ErrBracketNotFound
	}
	cp := *b
	return &cp, nil
}

func (r memBrackets) ListByTournament(ctx context.Context, tournamentID int) ([]*models.Bracket, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*models.Bracket, 0)
	for _, b := range r.s.brackets {
		if b.TournamentID == tournamentID {
			cp := *b
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memBrackets) DeleteByTournament(ctx context.Context, exec repositories.SQLExecutor, tournamentID int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, b := range r.s.brackets {
		if b.TournamentID == tournamentID {
			delete(r.s.brackets, id)
		}
	}
	return nil
}

type memMatches struct{ s *memStore }

func (r memMatches) Create(ctx context.Context, exec repositories.SQLExecutor, match *models.Match) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure("matches.Create"); err != nil {
		return err
	}
	for _, m := range r.s.matches {
		if m.BracketID == match.BracketID && m.Round == match.Round && m.Position == match.Position {
			return repositories.ErrMatchSlotTaken
		}
	}
	match.ID = r.s.id()
	match.CreatedAt = time.Now()
	r.s.matches[match.ID] = copyMatch(match)
	return nil
}

func (r memMatches) GetByID(ctx context.Context, id int) (*models.Match, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.matches[id]
	if !ok {
		return nil, repositories.ErrMatchNotFound
	}
	return copyMatch(m), nil
}

func (r memMatches) FindBySlot(ctx context.Context, exec repositories.SQLExecutor, tournamentID, bracketID, round, position int) (*models.Match, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, m := range r.s.matches {
		if m.TournamentID == tournamentID && m.BracketID == bracketID && m.Round == round && m.Position == position {
			return copyMatch(m), nil
		}
	}
	return nil, repositories.ErrMatchNotFound
}

func (r memMatches) ListByTournament(ctx context.Context, tournamentID int, filter repositories.MatchFilter) ([]*models.Match, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*models.Match, 0)
	for _, m := range r.s.matches {
		if m.TournamentID != tournamentID {
			continue
		}
		if filter.BracketID != nil && m.BracketID != *filter.BracketID {
			continue
		}
		if filter.Round != nil && m.Round != *filter.Round {
			continue
		}
		if filter.Status != nil && m.Status != *filter.Status {
			continue
		}
		out = append(out, copyMatch(m))
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.BracketID != b.BracketID {
			return a.BracketID < b.BracketID
		}
		if a.Round != b.Round {
			return a.Round < b.Round
		}
		return a.Position < b.Position
	})
	return out, nil
}

func (r memMatches) DeleteByTournament(ctx context.Context, exec repositories.SQLExecutor, tournamentID int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, m := range r.s.matches {
		if m.TournamentID == tournamentID {
			delete(r.s.matches, id)
		}
	}
	return nil
}

func (r memMatches) SetSlotIfEmpty(ctx context.Context, exec repositories.SQLExecutor, matchID int, slot models.Slot, teamID int) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure("matches.SetSlotIfEmpty"); err != nil {
		return false, err
	}
	m, ok := r.s.matches[matchID]
	if !ok {
		return false, nil
	}
	if m.TeamIn(slot) != nil || m.Status.IsTerminal() {
		return false, nil
	}
	if other := m.TeamIn(slot.Other()); other != nil && *other == teamID {
		return false, repositories.ErrMatchSameTeam
	}
	m.SetTeam(slot, &teamID)
	return true, nil
}

func (r memMatches) UpdateStatus(ctx context.Context, exec repositories.SQLExecutor, matchID int, status models.MatchStatus, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.matches[matchID]
	if !ok {
		return repositories.ErrMatchNotFound
	}
	m.Status = status
	if status == models.MatchStatusInProgress && m.StartedAt == nil {
		m.StartedAt = &at
	}
	return nil
}

func (r memMatches) Complete(ctx context.Context, exec repositories.SQLExecutor, matchID int, endedAt time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.matches[matchID]
	if !ok || m.Status.IsTerminal() {
		return false, nil
	}
	m.Status = models.MatchStatusCompleted
	m.EndedAt = &endedAt
	if m.StartedAt == nil {
		m.StartedAt = &endedAt
	}
	return true, nil
}

func (r memMatches) MarkBye(ctx context.Context, exec repositories.SQLExecutor, matchID int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.matches[matchID]
	if !ok {
		return repositories.ErrMatchNotFound
	}
	m.IsBye = true
	return nil
}

type memResults struct{ s *memStore }

func (r memResults) Create(ctx context.Context, exec repositories.SQLExecutor, result *models.MatchResult) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure("results.Create"); err != nil {
		return err
	}
	result.ID = r.s.id()
	result.CreatedAt = time.Now()
	cp := *result
	r.s.results = append(r.s.results, &cp)
	return nil
}

func (r memResults) LatestByMatch(ctx context.Context, matchID int) (*models.MatchResult, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i := len(r.s.results) - 1; i >= 0; i-- {
		if r.s.results[i].MatchID == matchID {
			cp := *r.s.results[i]
			return &cp, nil
		}
	}
	return nil, repositories.ErrMatchResultNotFound
}

func (r memResults) LatestByTournament(ctx context.Context, tournamentID int) (map[int]*models.MatchResult, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make(map[int]*models.MatchResult)
	for _, res := range r.s.results {
		m, ok := r.s.matches[res.MatchID]
		if !ok || m.TournamentID != tournamentID {
			continue
		}
		cp := *res
		out[res.MatchID] = &cp
	}
	return out, nil
}

func (r memResults) Confirm(ctx context.Context, exec repositories.SQLExecutor, resultID int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, res := range r.s.results {
		if res.ID == resultID {
			res.IsConfirmed = true
			return nil
		}
	}
	return repositories.ErrMatchResultNotFound
}

type publishedEvent struct {
	TournamentID int
	Event        string
	Payload      any
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (n *recordingNotifier) Publish(tournamentID int, event string, payload any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, publishedEvent{TournamentID: tournamentID, Event: event, Payload: payload})
}

func (n *recordingNotifier) count(event string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, e := range n.events {
		if e.Event == event {
			c++
		}
	}
	return c
}

// countingLocker records every key it locks.
type countingLocker struct {
	inner *locks.LocalLocker
	mu    sync.Mutex
	keys  []string
}

func newCountingLocker() *countingLocker {
	return &countingLocker{inner: locks.NewLocalLocker()}
}

func (l *countingLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	l.keys = append(l.keys, key)
	l.mu.Unlock()
	return l.inner.Lock(ctx, key)
}

func (l *countingLocker) locked(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, k := range l.keys {
		if k == key {
			n++
		}
	}
	return n
}

type memUploader struct {
	mu      sync.Mutex
	objects map[string]string
	err     error
}

func (u *memUploader) Upload(ctx context.Context, key string, contentType string, reader io.Reader) (*storage.UploadResult, error) {
	if u.err != nil {
		return nil, u.err
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.objects == nil {
		u.objects = make(map[string]string)
	}
	u.objects[key] = string(body)
	return &storage.UploadResult{Key: key, Location: u.GetPublicURL(key)}, nil
}

func (u *memUploader) Delete(ctx context.Context, key string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	delete(u.objects, key)
	return nil
}

func (u *memUploader) GetPublicURL(key string) string {
	return "https://cdn.example.com/" + strings.TrimPrefix(key, "/")
}

// testEnv wires the services over one memStore.
type testEnv struct {
	store    *memStore
	locker   *countingLocker
	notifier *recordingNotifier
	resolver *AdvancementResolver
	brackets *bracketService
	matches  *matchService
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := newMemStore()
	repos := store.repos()
	locker := newCountingLocker()
	notifier := &recordingNotifier{}
	logger := discardLogger()

	resolver := NewAdvancementResolver(repos.Matches, repos.Brackets, logger)
	return &testEnv{
		store:    store,
		locker:   locker,
		notifier: notifier,
		resolver: resolver,
		brackets: NewBracketService(repos, locker, nil, notifier, logger, 0).(*bracketService),
		matches:  NewMatchService(repos, resolver, locker, notifier, logger).(*matchService),
	}
}

// seed creates a tournament with n teams and generates its bracket.
func (e *testEnv) seed(t *testing.T, format models.FormatKind, n int) (*models.Tournament, []*models.Team) {
	t.Helper()
	tournament := e.store.addTournament(models.StatusRegistrationClosed)
	teams := e.store.addTeams(tournament.ID, n)
	if _, err := e.brackets.GenerateBracket(context.Background(), tournament.ID, GenerateBracketInput{Format: format}); err != nil {
		t.Fatalf("generate %s bracket: %v", format, err)
	}
	return tournament, teams
}

var organizer = models.Actor{UserID: 7, Role: models.RoleOrganizer}

// play records a result where the team in winnerSlot wins 2:1.
func (e *testEnv) play(t *testing.T, match *models.Match, winnerSlot models.Slot) *RecordedResult {
	t.Helper()
	if match == nil {
		t.Fatal("play: match is nil")
	}
	input := RecordResultInput{Team1Score: 2, Team2Score: 1}
	if winnerSlot == models.SlotTeam2 {
		input = RecordResultInput{Team1Score: 1, Team2Score: 2}
	}
	recorded, err := e.matches.RecordResult(context.Background(), match.ID, input, organizer)
	if err != nil {
		t.Fatalf("record result for match %d: %v", match.ID, err)
	}
	return recorded
}
