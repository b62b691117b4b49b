package services_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"quest-battle-service/models"
	"quest-battle-service/services"
	"quest-battle-service/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// =============================================================================
// HELPERS
// =============================================================================

func newResolver(db *gorm.DB, now time.Time) *services.ResolutionService {
	svc := services.NewResolutionService(db, services.NewXPLedger())
	svc.SetClock(func() time.Time { return now })
	return svc
}

func scoreOf(t *testing.T, db *gorm.DB, userID string) int64 {
	t.Helper()
	var prog models.UserProgress
	err := db.Where("external_user_id = ?", userID).First(&prog).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0
	}
	require.NoError(t, err)
	return prog.TotalXP
}

func logsFor(t *testing.T, db *gorm.DB, userID string) []models.ActivityLog {
	t.Helper()
	var logs []models.ActivityLog
	require.NoError(t, db.Where("external_user_id = ?", userID).Find(&logs).Error)
	return logs
}

func reload(t *testing.T, db *gorm.DB, id string) models.Battle {
	t.Helper()
	var b models.Battle
	require.NoError(t, db.First(&b, "id = ?", id).Error)
	return b
}

// failCreditsFor makes every activity-log insert for userID fail while
// enabled is true.
func failCreditsFor(t *testing.T, db *gorm.DB, userID string, enabled *atomic.Bool) {
	t.Helper()
	err := db.Callback().Create().Before("gorm:create").Register("test:fail_credit", func(tx *gorm.DB) {
		if entry, ok := tx.Statement.Dest.(*models.ActivityLog); ok && entry.ExternalUserID == userID && enabled.Load() {
			_ = tx.AddError(errors.New("simulated store failure"))
		}
	})
	require.NoError(t, err)
}

var afterEnd = testutil.Day.Add(time.Hour)

// =============================================================================
// SINGLE BATTLE
// =============================================================================

func TestResolveBattle_Tie(t *testing.T) {
	// GIVEN: a 7-day battle where both sides have 150 approved XP
	db := testutil.NewDB(t)
	b := testutil.BattleFixture(t, db, "alice", "bob", models.BattleStatusActive, testutil.Day)
	testutil.ApprovedDays(t, db, b.ID, "alice", 50, 50, 50)
	testutil.ApprovedDays(t, db, b.ID, "bob", 100, 50)

	// WHEN: it is resolved
	st, err := newResolver(db, afterEnd).ResolveBattle(context.Background(), b.ID)

	// THEN: tie, both credited 150 and logged BATTLE_TIE
	require.NoError(t, err)
	assert.True(t, st.IsTie)
	assert.Nil(t, st.WinnerID)
	assert.Equal(t, int64(150), st.ChallengerXP)
	assert.Equal(t, int64(150), st.ChallengedXP)
	assert.Equal(t, int64(150), st.ChallengerCredit)
	assert.Equal(t, int64(150), st.ChallengedCredit)
	assert.Equal(t, afterEnd, st.ResolvedAt)

	stored := reload(t, db, b.ID)
	assert.Equal(t, models.BattleStatusCompleted, stored.Status)
	assert.Nil(t, stored.WinnerID)
	assert.True(t, stored.IsTie())
	assert.NotNil(t, stored.CompletedAt)

	for _, user := range []string{"alice", "bob"} {
		assert.Equal(t, int64(150), scoreOf(t, db, user))
		logs := logsFor(t, db, user)
		require.Len(t, logs, 1)
		assert.Equal(t, models.ReasonBattleTie, logs[0].Reason)
		assert.Equal(t, int64(150), logs[0].Amount)
		assert.Equal(t, models.SourceBattle, logs[0].SourceType)
		assert.Equal(t, b.ID, logs[0].SourceID)
	}
}

func TestResolveBattle_ChallengerWins(t *testing.T) {
	db := testutil.NewDB(t)
	b := testutil.BattleFixture(t, db, "alice", "bob", models.BattleStatusActive, testutil.Day)
	testutil.ApprovedDays(t, db, b.ID, "alice", 100, 100, 100, 100)
	testutil.ApprovedDays(t, db, b.ID, "bob", 100)

	st, err := newResolver(db, afterEnd).ResolveBattle(context.Background(), b.ID)
	require.NoError(t, err)

	require.NotNil(t, st.WinnerID)
	assert.Equal(t, "alice", *st.WinnerID)
	assert.False(t, st.IsTie)
	assert.Equal(t, int64(800), st.ChallengerCredit)
	assert.Equal(t, int64(100), st.ChallengedCredit)

	stored := reload(t, db, b.ID)
	require.NotNil(t, stored.WinnerID)
	assert.Equal(t, "alice", *stored.WinnerID)
	assert.Equal(t, int64(400), stored.ChallengerXP)
	assert.Equal(t, int64(100), stored.ChallengedXP)

	assert.Equal(t, int64(800), scoreOf(t, db, "alice"))
	assert.Equal(t, int64(100), scoreOf(t, db, "bob"))
	assert.Equal(t, models.ReasonBattleWon, logsFor(t, db, "alice")[0].Reason)
	assert.Equal(t, models.ReasonBattleLost, logsFor(t, db, "bob")[0].Reason)
}

func TestResolveBattle_ChallengedWinsAndLevelsUp(t *testing.T) {
	db := testutil.NewDB(t)
	b := testutil.BattleFixture(t, db, "alice", "bob", models.BattleStatusActive, testutil.Day)
	testutil.ApprovedDays(t, db, b.ID, "alice", 200)
	testutil.ApprovedDays(t, db, b.ID, "bob", 300, 300, 300)

	st, err := newResolver(db, afterEnd).ResolveBattle(context.Background(), b.ID)
	require.NoError(t, err)
	require.NotNil(t, st.WinnerID)
	assert.Equal(t, "bob", *st.WinnerID)
	assert.Equal(t, int64(200), st.ChallengerCredit)
	assert.Equal(t, int64(1800), st.ChallengedCredit)

	var bob models.UserProgress
	require.NoError(t, db.Where("external_user_id = ?", "bob").First(&bob).Error)
	assert.Equal(t, int64(1800), bob.TotalXP)
	assert.Equal(t, 2, bob.Level)
}

func TestResolveBattle_OnlyApprovedRecordsCount(t *testing.T) {
	db := testutil.NewDB(t)
	b := testutil.BattleFixture(t, db, "alice", "bob", models.BattleStatusActive, testutil.Day)
	testutil.RecordFixture(t, db, b.ID, "alice", 1, models.VerificationApproved, 40)
	testutil.RecordFixture(t, db, b.ID, "alice", 2, models.VerificationPending, 1000)
	testutil.RecordFixture(t, db, b.ID, "bob", 1, models.VerificationRejected, 1000)
	testutil.RecordFixture(t, db, b.ID, "bob", 2, models.VerificationApproved, 30)

	st, err := newResolver(db, afterEnd).ResolveBattle(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(40), st.ChallengerXP)
	assert.Equal(t, int64(30), st.ChallengedXP)
	assert.Equal(t, "alice", *st.WinnerID)
}

func TestResolveBattle_ZeroCreditIsSkipped(t *testing.T) {
	// GIVEN: bob has nothing approved
	db := testutil.NewDB(t)
	b := testutil.BattleFixture(t, db, "alice", "bob", models.BattleStatusActive, testutil.Day)
	testutil.ApprovedDays(t, db, b.ID, "alice", 25)
	testutil.RecordFixture(t, db, b.ID, "bob", 1, models.VerificationRejected, 90)

	st, err := newResolver(db, afterEnd).ResolveBattle(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(50), st.ChallengerCredit)
	assert.Zero(t, st.ChallengedCredit)

	// THEN: bob has no ledger row and no activity entry
	assert.Empty(t, logsFor(t, db, "bob"))
	var count int64
	db.Model(&models.UserProgress{}).Where("external_user_id = ?", "bob").Count(&count)
	assert.Zero(t, count)
}

func TestResolveBattle_EmptyBattleIsZeroTie(t *testing.T) {
	db := testutil.NewDB(t)
	b := testutil.BattleFixture(t, db, "alice", "bob", models.BattleStatusActive, testutil.Day)

	st, err := newResolver(db, afterEnd).ResolveBattle(context.Background(), b.ID)
	require.NoError(t, err)
	assert.True(t, st.IsTie)

	stored := reload(t, db, b.ID)
	assert.Equal(t, models.BattleStatusCompleted, stored.Status)
	assert.Nil(t, stored.WinnerID)

	var logCount int64
	db.Model(&models.ActivityLog{}).Count(&logCount)
	assert.Zero(t, logCount)
}

func TestResolveBattle_SecondCallIsAlreadyResolved(t *testing.T) {
	db := testutil.NewDB(t)
	b := testutil.BattleFixture(t, db, "alice", "bob", models.BattleStatusActive, testutil.Day)
	testutil.ApprovedDays(t, db, b.ID, "alice", 100)
	testutil.ApprovedDays(t, db, b.ID, "bob", 60)
	svc := newResolver(db, afterEnd)

	_, err := svc.ResolveBattle(context.Background(), b.ID)
	require.NoError(t, err)
	before := []int64{scoreOf(t, db, "alice"), scoreOf(t, db, "bob")}

	for i := 0; i < 3; i++ {
		st, err := svc.ResolveBattle(context.Background(), b.ID)
		assert.Nil(t, st)
		assert.ErrorIs(t, err, services.ErrAlreadyResolved)
		assert.Equal(t, services.CodeAlreadyResolved, services.ErrorCode(err))
	}

	after := []int64{scoreOf(t, db, "alice"), scoreOf(t, db, "bob")}
	assert.Equal(t, before, after)
	assert.Len(t, logsFor(t, db, "alice"), 1)
	assert.Len(t, logsFor(t, db, "bob"), 1)
}

func TestResolveBattle_Guards(t *testing.T) {
	db := testutil.NewDB(t)
	svc := newResolver(db, afterEnd)
	ctx := context.Background()

	_, err := svc.ResolveBattle(ctx, "does-not-exist")
	assert.ErrorIs(t, err, services.ErrBattleNotFound)

	for _, status := range []models.BattleStatus{
		models.BattleStatusPending,
		models.BattleStatusCancelled,
		models.BattleStatusDeclined,
	} {
		b := testutil.BattleFixture(t, db, "alice", "bob", status, testutil.Day)
		testutil.ApprovedDays(t, db, b.ID, "alice", 10)

		_, err := svc.ResolveBattle(ctx, b.ID)
		assert.ErrorIs(t, err, services.ErrBattleNotActive, "status %s", status)

		var resErr *services.ResolutionError
		require.ErrorAs(t, err, &resErr)
		assert.Equal(t, status, resErr.Status)
		assert.Equal(t, status, reload(t, db, b.ID).Status)
	}
	assert.Empty(t, logsFor(t, db, "alice"))
}

// =============================================================================
// ATOMICITY & CONCURRENCY
// =============================================================================

func TestResolveBattle_FailureRollsBackEverything(t *testing.T) {
	// GIVEN: the challenged side's credit will fail after the challenger's
	// credit and the status transition were already written in the tx
	db := testutil.NewDB(t)
	var failing atomic.Bool
	failing.Store(true)
	failCreditsFor(t, db, "bob", &failing)

	b := testutil.BattleFixture(t, db, "alice", "bob", models.BattleStatusActive, testutil.Day)
	testutil.ApprovedDays(t, db, b.ID, "alice", 300)
	testutil.ApprovedDays(t, db, b.ID, "bob", 100)
	svc := newResolver(db, afterEnd)

	// WHEN
	_, err := svc.ResolveBattle(context.Background(), b.ID)

	// THEN: nothing observable changed and the error is retryable
	require.ErrorIs(t, err, services.ErrTransactionFailed)
	assert.True(t, services.IsRetryable(err))
	stored := reload(t, db, b.ID)
	assert.Equal(t, models.BattleStatusActive, stored.Status)
	assert.Nil(t, stored.WinnerID)
	assert.Zero(t, scoreOf(t, db, "alice"))
	assert.Empty(t, logsFor(t, db, "alice"))

	// AND: once the store recovers the battle settles normally
	failing.Store(false)
	st, err := svc.ResolveBattle(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", *st.WinnerID)
	assert.Equal(t, int64(600), scoreOf(t, db, "alice"))
	assert.Equal(t, int64(100), scoreOf(t, db, "bob"))
}

func TestResolveBattle_ConditionalUpdateIsTheGate(t *testing.T) {
	// GIVEN: another resolver completes the battle between our status read
	// and our conditional update
	db := testutil.NewDB(t)
	b := testutil.BattleFixture(t, db, "alice", "bob", models.BattleStatusActive, testutil.Day)
	testutil.ApprovedDays(t, db, b.ID, "alice", 100)
	testutil.ApprovedDays(t, db, b.ID, "bob", 50)

	var fired atomic.Bool
	err := db.Callback().Update().Before("gorm:update").Register("test:steal_battle", func(tx *gorm.DB) {
		if tx.Statement.Table != "battles" || fired.Swap(true) {
			return
		}
		err := tx.Session(&gorm.Session{NewDB: true}).
			Exec("UPDATE battles SET status = ? WHERE id = ?", models.BattleStatusCompleted, b.ID).Error
		if err != nil {
			_ = tx.AddError(err)
		}
	})
	require.NoError(t, err)

	// WHEN
	_, err = newResolver(db, afterEnd).ResolveBattle(context.Background(), b.ID)

	// THEN: the loser observes AlreadyResolved and writes no credit
	require.ErrorIs(t, err, services.ErrAlreadyResolved)
	assert.True(t, fired.Load())
	assert.Empty(t, logsFor(t, db, "alice"))
	assert.Empty(t, logsFor(t, db, "bob"))
	assert.Zero(t, scoreOf(t, db, "alice"))
}

func TestResolveBattle_ConcurrentCallsSettleOnce(t *testing.T) {
	db := testutil.NewDB(t)
	b := testutil.BattleFixture(t, db, "alice", "bob", models.BattleStatusActive, testutil.Day)
	testutil.ApprovedDays(t, db, b.ID, "alice", 400)
	testutil.ApprovedDays(t, db, b.ID, "bob", 100)
	svc := newResolver(db, afterEnd)

	const callers = 4
	errs := make([]error, callers)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = svc.ResolveBattle(context.Background(), b.ID)
		}(i)
	}
	close(start)
	wg.Wait()

	var ok, already int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, services.ErrAlreadyResolved):
			already++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, callers-1, already)

	assert.Equal(t, int64(800), scoreOf(t, db, "alice"))
	assert.Equal(t, int64(100), scoreOf(t, db, "bob"))
	assert.Len(t, logsFor(t, db, "alice"), 1)
	assert.Len(t, logsFor(t, db, "bob"), 1)
}

// =============================================================================
// STANDINGS
// =============================================================================

func TestStandings_PreviewDoesNotWrite(t *testing.T) {
	db := testutil.NewDB(t)
	b := testutil.BattleFixture(t, db, "alice", "bob", models.BattleStatusActive, testutil.Day.AddDate(0, 0, 3))
	testutil.ApprovedDays(t, db, b.ID, "alice", 20)
	testutil.RecordFixture(t, db, b.ID, "bob", 1, models.VerificationApproved, 30)
	testutil.RecordFixture(t, db, b.ID, "bob", 2, models.VerificationPending, 30)

	st, err := newResolver(db, testutil.Day).Standings(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BattleStatusActive, st.Status)
	assert.Equal(t, int64(20), st.ChallengerXP)
	assert.Equal(t, int64(30), st.ChallengedXP)
	assert.Equal(t, 1, st.ChallengedPending)
	require.NotNil(t, st.LeaderID)
	assert.Equal(t, "bob", *st.LeaderID)
	assert.Equal(t, int64(60), st.ChallengedCredit)

	assert.Equal(t, models.BattleStatusActive, reload(t, db, b.ID).Status)
	assert.Empty(t, logsFor(t, db, "bob"))

	_, err = newResolver(db, testutil.Day).Standings(context.Background(), "missing")
	assert.ErrorIs(t, err, services.ErrBattleNotFound)
}

// =============================================================================
// BADGES
// =============================================================================

func TestResolveBattle_AwardsBadgesAfterCommit(t *testing.T) {
	db := testutil.NewDB(t)
	b := testutil.BattleFixture(t, db, "alice", "bob", models.BattleStatusActive, testutil.Day)
	testutil.ApprovedDays(t, db, b.ID, "alice", 10)
	testutil.ApprovedDays(t, db, b.ID, "bob", 5)

	svc := newResolver(db, afterEnd)
	badges := services.NewBadgeService(db)
	svc.Badges = badges

	_, err := svc.ResolveBattle(context.Background(), b.ID)
	require.NoError(t, err)

	aliceBadges, err := badges.ListBadges(context.Background(), "alice")
	require.NoError(t, err)
	codes := make([]string, 0, len(aliceBadges))
	for _, bd := range aliceBadges {
		codes = append(codes, bd.BadgeCode)
	}
	assert.ElementsMatch(t, []string{"FIRST_BATTLE", "FIRST_VICTORY"}, codes)

	bobBadges, err := badges.ListBadges(context.Background(), "bob")
	require.NoError(t, err)
	require.Len(t, bobBadges, 1)
	assert.Equal(t, "FIRST_BATTLE", bobBadges[0].BadgeCode)

	// Re-running the check does not duplicate badges.
	require.NoError(t, badges.AutoAwardBadges(context.Background(), "alice"))
	again, err := badges.ListBadges(context.Background(), "alice")
	require.NoError(t, err)
	assert.Len(t, again, 2)
}
