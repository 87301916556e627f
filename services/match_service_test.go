package services

import (
	"context"
	"errors"
	"testing"

	"github.com/Dosada05/tournament-brackets/brackets"
	"github.com/Dosada05/tournament-brackets/locks"
	"github.com/Dosada05/tournament-brackets/models"
	"github.com/Dosada05/tournament-brackets/repositories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordResult_AdvancesWinnerEightTeams(t *testing.T) {
	env := newTestEnv(t)
	tournament, teams := env.seed(t, models.FormatSingleElimination, 8)
	require.Equal(t, 7, env.store.countMatches(tournament.ID))

	r1p3 := env.store.matchAt(tournament.ID, models.BracketMain, 1, 3)
	require.Equal(t, teams[4].ID, *r1p3.Team1ID)

	recorded := env.play(t, r1p3, models.SlotTeam1)
	assert.Equal(t, models.MatchStatusCompleted, recorded.Match.Status)
	assert.NotNil(t, recorded.Match.EndedAt)
	require.Len(t, recorded.Advanced, 1)

	r2p2 := env.store.matchAt(tournament.ID, models.BracketMain, 2, 2)
	assert.Equal(t, r2p2.ID, recorded.Advanced[0].ID)
	require.NotNil(t, r2p2.Team1ID)
	assert.Equal(t, teams[4].ID, *r2p2.Team1ID)
	assert.Nil(t, r2p2.Team2ID)

	stored := env.store.matchAt(tournament.ID, models.BracketMain, 1, 3)
	assert.Equal(t, models.MatchStatusCompleted, stored.Status)
	assert.Equal(t, 2, env.locker.locked(locks.TournamentKey(tournament.ID)))
}

func TestRecordResult_Rejections(t *testing.T) {
	env := newTestEnv(t)
	tournament, _ := env.seed(t, models.FormatSingleElimination, 4)
	ctx := context.Background()

	r1p1 := env.store.matchAt(tournament.ID, models.BracketMain, 1, 1)
	r1p2 := env.store.matchAt(tournament.ID, models.BracketMain, 1, 2)
	final := env.store.matchAt(tournament.ID, models.BracketMain, 2, 1)

	_, err := env.matches.RecordResult(ctx, r1p1.ID, RecordResultInput{Team1Score: -1, Team2Score: 0}, organizer)
	assert.ErrorIs(t, err, ErrInvalidScore)
	assert.ErrorIs(t, err, ErrValidationFailed)

	_, err = env.matches.RecordResult(ctx, r1p1.ID, RecordResultInput{Team1Score: 1, Team2Score: 1}, organizer)
	assert.ErrorIs(t, err, ErrDrawNotAllowed)

	_, err = env.matches.RecordResult(ctx, final.ID, RecordResultInput{Team1Score: 3, Team2Score: 0}, organizer)
	assert.ErrorIs(t, err, ErrMatchNotReady)

	_, err = env.matches.RecordResult(ctx, 9999, RecordResultInput{Team1Score: 3, Team2Score: 0}, organizer)
	assert.ErrorIs(t, err, ErrMatchNotFound)

	env.play(t, r1p1, models.SlotTeam2)
	_, err = env.matches.RecordResult(ctx, r1p1.ID, RecordResultInput{Team1Score: 5, Team2Score: 0}, organizer)
	assert.ErrorIs(t, err, ErrMatchAlreadyCompleted)

	_, err = env.matches.UpdateStatus(ctx, r1p2.ID, models.MatchStatusCancelled)
	require.NoError(t, err)
	_, err = env.matches.RecordResult(ctx, r1p2.ID, RecordResultInput{Team1Score: 2, Team2Score: 0}, organizer)
	assert.ErrorIs(t, err, ErrMatchCancelled)

	// nothing but the one valid submission was stored
	results, err := env.store.repos().Results.LatestByTournament(ctx, tournament.ID)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestRecordResult_ConfirmationByRole(t *testing.T) {
	env := newTestEnv(t)
	tournament, _ := env.seed(t, models.FormatRoundRobin, 3)
	ctx := context.Background()

	player := models.Actor{UserID: 42, Role: models.RolePlayer}
	m := env.store.matchAt(tournament.ID, models.BracketRoundRobin, 1, 1)
	recorded, err := env.matches.RecordResult(ctx, m.ID, RecordResultInput{Team1Score: 0, Team2Score: 2}, player)
	require.NoError(t, err)
	assert.False(t, recorded.Result.IsConfirmed)
	require.NotNil(t, recorded.Result.SubmittedBy)
	assert.Equal(t, 42, *recorded.Result.SubmittedBy)

	confirmed, err := env.matches.ConfirmResult(ctx, m.ID)
	require.NoError(t, err)
	assert.True(t, confirmed.IsConfirmed)

	got, err := env.matches.GetMatch(ctx, m.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LatestResult)
	assert.True(t, got.LatestResult.IsConfirmed)

	admin := models.Actor{UserID: 1, Role: models.RoleAdmin}
	other := env.store.matchAt(tournament.ID, models.BracketRoundRobin, 1, 2)
	recorded, err = env.matches.RecordResult(ctx, other.ID, RecordResultInput{Team1Score: 1, Team2Score: 0}, admin)
	require.NoError(t, err)
	assert.True(t, recorded.Result.IsConfirmed)
}

func TestConfirmResult_NoResult(t *testing.T) {
	env := newTestEnv(t)
	tournament, _ := env.seed(t, models.FormatRoundRobin, 3)

	m := env.store.matchAt(tournament.ID, models.BracketRoundRobin, 1, 1)
	_, err := env.matches.ConfirmResult(context.Background(), m.ID)
	assert.ErrorIs(t, err, ErrNoResult)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRecordResult_FinalCompletesTournament(t *testing.T) {
	env := newTestEnv(t)
	tournament, teams := env.seed(t, models.FormatSingleElimination, 4)

	env.play(t, env.store.matchAt(tournament.ID, models.BracketMain, 1, 1), models.SlotTeam1)
	env.play(t, env.store.matchAt(tournament.ID, models.BracketMain, 1, 2), models.SlotTeam2)

	final := env.store.matchAt(tournament.ID, models.BracketMain, 2, 1)
	assert.Equal(t, teams[0].ID, *final.Team1ID)
	assert.Equal(t, teams[3].ID, *final.Team2ID)

	recorded := env.play(t, final, models.SlotTeam2)
	assert.Empty(t, recorded.Advanced)

	stored := env.store.tournament(tournament.ID)
	assert.Equal(t, models.StatusCompleted, stored.Status)
	require.NotNil(t, stored.WinnerTeamID)
	assert.Equal(t, teams[3].ID, *stored.WinnerTeamID)
	assert.Equal(t, 1, env.notifier.count(brackets.EventTournamentUpdated))

	_, err := env.brackets.GenerateBracket(context.Background(), tournament.ID, GenerateBracketInput{Format: models.FormatSingleElimination})
	assert.ErrorIs(t, err, ErrTournamentClosed)
}

func TestRecordResult_AdvancementConflictKeepsMatchCompleted(t *testing.T) {
	env := newTestEnv(t)
	tournament, teams := env.seed(t, models.FormatSingleElimination, 4)

	final := env.store.matchAt(tournament.ID, models.BracketMain, 2, 1)
	env.store.forceSlot(final.ID, models.SlotTeam1, teams[3].ID)

	r1p1 := env.store.matchAt(tournament.ID, models.BracketMain, 1, 1)
	_, err := env.matches.RecordResult(context.Background(), r1p1.ID, RecordResultInput{Team1Score: 4, Team2Score: 2}, organizer)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStructuralConflict)

	var advErr *AdvancementError
	require.True(t, errors.As(err, &advErr))
	assert.Equal(t, r1p1.ID, advErr.Match.ID)
	assert.Equal(t, models.MatchStatusCompleted, advErr.Match.Status)
	require.NotNil(t, advErr.Result)
	assert.Equal(t, 4, advErr.Result.Team1Score)

	stored := env.store.matchAt(tournament.ID, models.BracketMain, 1, 1)
	assert.Equal(t, models.MatchStatusCompleted, stored.Status)
	assert.Equal(t, teams[3].ID, *env.store.matchAt(tournament.ID, models.BracketMain, 2, 1).Team1ID)
}

func TestRecordResult_AdvancementStoreFailure(t *testing.T) {
	env := newTestEnv(t)
	tournament, _ := env.seed(t, models.FormatSingleElimination, 4)
	env.store.failOn("matches.SetSlotIfEmpty", errors.New("connection reset"))

	r1p1 := env.store.matchAt(tournament.ID, models.BracketMain, 1, 1)
	_, err := env.matches.RecordResult(context.Background(), r1p1.ID, RecordResultInput{Team1Score: 1, Team2Score: 0}, organizer)

	var advErr *AdvancementError
	require.True(t, errors.As(err, &advErr))
	assert.NotErrorIs(t, err, ErrStructuralConflict)
	assert.Equal(t, models.MatchStatusCompleted, env.store.matchAt(tournament.ID, models.BracketMain, 1, 1).Status)
}

func TestRecordResult_StoreFailureRollsBack(t *testing.T) {
	env := newTestEnv(t)
	tournament, _ := env.seed(t, models.FormatSingleElimination, 4)
	env.store.failOn("results.Create", errors.New("connection reset"))

	r1p1 := env.store.matchAt(tournament.ID, models.BracketMain, 1, 1)
	_, err := env.matches.RecordResult(context.Background(), r1p1.ID, RecordResultInput{Team1Score: 1, Team2Score: 0}, organizer)
	require.Error(t, err)

	var advErr *AdvancementError
	assert.False(t, errors.As(err, &advErr))
	assert.Equal(t, models.MatchStatusScheduled, env.store.matchAt(tournament.ID, models.BracketMain, 1, 1).Status)
}

func TestRecordResult_DoubleEliminationRun(t *testing.T) {
	env := newTestEnv(t)
	tournament, teams := env.seed(t, models.FormatDoubleElimination, 4)
	a, b, c, d := teams[0].ID, teams[1].ID, teams[2].ID, teams[3].ID

	at := func(kind models.BracketKind, round, position int) *models.Match {
		m := env.store.matchAt(tournament.ID, kind, round, position)
		require.NotNil(t, m, "%s r%d p%d", kind, round, position)
		return m
	}

	// winners round 1: A beats B, C beats D; both losers drop to losers round 1
	recorded := env.play(t, at(models.BracketWinners, 1, 1), models.SlotTeam1)
	assert.Len(t, recorded.Advanced, 2)
	env.play(t, at(models.BracketWinners, 1, 2), models.SlotTeam1)

	wFinal := at(models.BracketWinners, 2, 1)
	assert.Equal(t, a, *wFinal.Team1ID)
	assert.Equal(t, c, *wFinal.Team2ID)
	l1 := at(models.BracketLosers, 1, 1)
	assert.Equal(t, b, *l1.Team1ID)
	assert.Equal(t, d, *l1.Team2ID)

	// losers round 1: B survives into losers round 2 team1
	env.play(t, l1, models.SlotTeam1)
	assert.Equal(t, b, *at(models.BracketLosers, 2, 1).Team1ID)

	// winners final: A wins and goes to the grand final, C drops to losers round 2 team2
	env.play(t, wFinal, models.SlotTeam1)
	grandFinal := at(models.BracketWinners, 3, 1)
	assert.Equal(t, a, *grandFinal.Team1ID)
	l2 := at(models.BracketLosers, 2, 1)
	assert.Equal(t, c, *l2.Team2ID)

	// losers final: C wins and meets A in the grand final
	env.play(t, l2, models.SlotTeam2)
	grandFinal = at(models.BracketWinners, 3, 1)
	require.NotNil(t, grandFinal.Team2ID)
	assert.Equal(t, c, *grandFinal.Team2ID)
	assert.Equal(t, models.StatusInProgress, env.store.tournament(tournament.ID).Status)

	env.play(t, grandFinal, models.SlotTeam1)
	stored := env.store.tournament(tournament.ID)
	assert.Equal(t, models.StatusCompleted, stored.Status)
	assert.Equal(t, a, *stored.WinnerTeamID)
}

func TestRecordResult_DoubleEliminationTwoTeams(t *testing.T) {
	env := newTestEnv(t)
	tournament, teams := env.seed(t, models.FormatDoubleElimination, 2)

	first := env.store.matchAt(tournament.ID, models.BracketWinners, 1, 1)
	env.play(t, first, models.SlotTeam2)

	grandFinal := env.store.matchAt(tournament.ID, models.BracketWinners, 2, 1)
	require.True(t, grandFinal.HasBothTeams())
	assert.Equal(t, teams[1].ID, *grandFinal.Team1ID)
	assert.Equal(t, teams[0].ID, *grandFinal.Team2ID)
}

func TestRecordResult_RoundRobinCompletes(t *testing.T) {
	env := newTestEnv(t)
	tournament, teams := env.seed(t, models.FormatRoundRobin, 3)
	ctx := context.Background()

	// (0,1) draw, (0,2) team 0 wins, (1,2) team 2 wins
	_, err := env.matches.RecordResult(ctx, env.store.matchAt(tournament.ID, models.BracketRoundRobin, 1, 1).ID,
		RecordResultInput{Team1Score: 0, Team2Score: 0}, organizer)
	require.NoError(t, err)
	env.play(t, env.store.matchAt(tournament.ID, models.BracketRoundRobin, 1, 2), models.SlotTeam1)
	assert.Equal(t, models.StatusInProgress, env.store.tournament(tournament.ID).Status)

	env.play(t, env.store.matchAt(tournament.ID, models.BracketRoundRobin, 1, 3), models.SlotTeam2)

	stored := env.store.tournament(tournament.ID)
	assert.Equal(t, models.StatusCompleted, stored.Status)
	require.NotNil(t, stored.WinnerTeamID)
	assert.Equal(t, teams[0].ID, *stored.WinnerTeamID)
}

func TestAdvanceBye(t *testing.T) {
	env := newTestEnv(t)
	tournament, teams := env.seed(t, models.FormatSingleElimination, 5)
	ctx := context.Background()

	bye := env.store.matchAt(tournament.ID, models.BracketMain, 1, 3)
	require.True(t, bye.IsBye)

	recorded, err := env.matches.AdvanceBye(ctx, bye.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MatchStatusCompleted, recorded.Match.Status)
	assert.Nil(t, recorded.Result)
	require.Len(t, recorded.Advanced, 1)

	r2p2 := env.store.matchAt(tournament.ID, models.BracketMain, 2, 2)
	assert.Equal(t, teams[4].ID, *r2p2.Team1ID)

	_, err = env.matches.AdvanceBye(ctx, bye.ID)
	assert.ErrorIs(t, err, ErrMatchAlreadyCompleted)

	full := env.store.matchAt(tournament.ID, models.BracketMain, 1, 1)
	_, err = env.matches.AdvanceBye(ctx, full.ID)
	assert.ErrorIs(t, err, ErrNotAByeMatch)

	empty := env.store.matchAt(tournament.ID, models.BracketMain, 3, 1)
	_, err = env.matches.AdvanceBye(ctx, empty.ID)
	assert.ErrorIs(t, err, ErrNotAByeMatch)
}

func TestAdvanceBye_OneSidedLaterMatch(t *testing.T) {
	env := newTestEnv(t)
	tournament, teams := env.seed(t, models.FormatSingleElimination, 5)
	ctx := context.Background()

	// the bye winner waits in round 2 position 2 with no opponent coming
	_, err := env.matches.AdvanceBye(ctx, env.store.matchAt(tournament.ID, models.BracketMain, 1, 3).ID)
	require.NoError(t, err)

	r2p2 := env.store.matchAt(tournament.ID, models.BracketMain, 2, 2)
	_, err = env.matches.AdvanceBye(ctx, r2p2.ID)
	require.NoError(t, err)

	final := env.store.matchAt(tournament.ID, models.BracketMain, 3, 1)
	assert.Nil(t, final.Team1ID)
	require.NotNil(t, final.Team2ID)
	assert.Equal(t, teams[4].ID, *final.Team2ID)
	assert.True(t, env.store.matchAt(tournament.ID, models.BracketMain, 2, 2).IsBye)
}

func TestAdvanceBye_WaitsForFeeder(t *testing.T) {
	env := newTestEnv(t)
	tournament, _ := env.seed(t, models.FormatSingleElimination, 8)
	ctx := context.Background()

	r1p1 := env.store.matchAt(tournament.ID, models.BracketMain, 1, 1)
	env.play(t, r1p1, models.SlotTeam1)

	r2p1 := env.store.matchAt(tournament.ID, models.BracketMain, 2, 1)
	_, ok := r2p1.SoleTeam()
	require.True(t, ok)

	_, err := env.matches.AdvanceBye(ctx, r2p1.ID)
	require.ErrorIs(t, err, ErrByeFeederPending)

	r2p1 = env.store.matchAt(tournament.ID, models.BracketMain, 2, 1)
	assert.Equal(t, models.MatchStatusScheduled, r2p1.Status)
	assert.False(t, r2p1.IsBye)

	// the late feeder still reaches its slot
	r1p2 := env.store.matchAt(tournament.ID, models.BracketMain, 1, 2)
	env.play(t, r1p2, models.SlotTeam2)
	r2p1 = env.store.matchAt(tournament.ID, models.BracketMain, 2, 1)
	require.NotNil(t, r2p1.Team2ID)
	assert.Equal(t, *r1p2.Team2ID, *r2p1.Team2ID)
	assert.Nil(t, env.store.matchAt(tournament.ID, models.BracketMain, 3, 1).Team1ID)
}

func TestAdvanceBye_WaitsForLoserFeeder(t *testing.T) {
	env := newTestEnv(t)
	tournament, _ := env.seed(t, models.FormatDoubleElimination, 4)
	ctx := context.Background()

	// winners round 1 position 1 drops its loser into losers round 1
	env.play(t, env.store.matchAt(tournament.ID, models.BracketWinners, 1, 1), models.SlotTeam1)
	lr1p1 := env.store.matchAt(tournament.ID, models.BracketLosers, 1, 1)
	_, ok := lr1p1.SoleTeam()
	require.True(t, ok)

	_, err := env.matches.AdvanceBye(ctx, lr1p1.ID)
	assert.ErrorIs(t, err, ErrByeFeederPending)
}

func TestUpdateStatus(t *testing.T) {
	env := newTestEnv(t)
	tournament, _ := env.seed(t, models.FormatSingleElimination, 4)
	ctx := context.Background()

	r1p1 := env.store.matchAt(tournament.ID, models.BracketMain, 1, 1)
	final := env.store.matchAt(tournament.ID, models.BracketMain, 2, 1)

	m, err := env.matches.UpdateStatus(ctx, r1p1.ID, models.MatchStatusInProgress)
	require.NoError(t, err)
	assert.Equal(t, models.MatchStatusInProgress, m.Status)
	require.NotNil(t, m.StartedAt)
	startedAt := *m.StartedAt

	m, err = env.matches.UpdateStatus(ctx, r1p1.ID, models.MatchStatusInProgress)
	require.NoError(t, err)
	assert.Equal(t, startedAt, *m.StartedAt)

	_, err = env.matches.UpdateStatus(ctx, r1p1.ID, models.MatchStatusCompleted)
	assert.ErrorIs(t, err, ErrInvalidStatusTransition)

	_, err = env.matches.UpdateStatus(ctx, r1p1.ID, models.MatchStatusScheduled)
	assert.ErrorIs(t, err, ErrInvalidStatusTransition)

	_, err = env.matches.UpdateStatus(ctx, final.ID, models.MatchStatusInProgress)
	assert.ErrorIs(t, err, ErrMatchNotReady)

	m, err = env.matches.UpdateStatus(ctx, final.ID, models.MatchStatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, models.MatchStatusCancelled, m.Status)

	_, err = env.matches.UpdateStatus(ctx, final.ID, models.MatchStatusInProgress)
	assert.ErrorIs(t, err, ErrInvalidStatusTransition)

	_, err = env.matches.UpdateStatus(ctx, 9999, models.MatchStatusCancelled)
	assert.ErrorIs(t, err, ErrMatchNotFound)
}

func TestListByTournament(t *testing.T) {
	env := newTestEnv(t)
	tournament, _ := env.seed(t, models.FormatSingleElimination, 8)
	ctx := context.Background()

	all, err := env.matches.ListByTournament(ctx, tournament.ID, repositories.MatchFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 7)

	round := 2
	second, err := env.matches.ListByTournament(ctx, tournament.ID, repositories.MatchFilter{Round: &round})
	require.NoError(t, err)
	require.Len(t, second, 2)
	assert.Equal(t, 1, second[0].Position)
	assert.Equal(t, 2, second[1].Position)

	_, err = env.matches.ListByTournament(ctx, 404, repositories.MatchFilter{})
	assert.ErrorIs(t, err, ErrTournamentNotFound)
}
