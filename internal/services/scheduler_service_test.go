package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldbook/ppv-settlement/internal/models"
)

const (
	day       = 24 * time.Hour
	oldEnough = 31 * day
)

func TestSweepIgnoresYoungQuestions(t *testing.T) {
	f := newFixture(t)
	q := f.question(t, createdAgo(29*day))
	f.answer(t, q, false)
	f.purchase(t, q, 1000)

	res, err := f.scheduler.RunSweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusSuccess, res.Status)
	assert.Zero(t, res.ProcessedPools)
	assert.Equal(t, models.PoolStatusPending, f.pool(t, q.ID).Status)
}

func TestSweepForceSettlesStalePools(t *testing.T) {
	f := newFixture(t)
	q := f.question(t, createdAgo(oldEnough))
	a1 := f.answer(t, q, false)
	a2 := f.answer(t, q, false)
	f.purchase(t, q, 1000)

	res, err := f.scheduler.RunSweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.ProcessedPools)
	assert.Zero(t, res.DistributedBest)
	assert.Equal(t, 1, res.DistributedOthers)
	assert.Empty(t, res.Errors)

	assert.Equal(t, models.PoolStatusDistributed, f.pool(t, q.ID).Status)
	assert.Equal(t, int64(200), f.balance(t, a1.ResponderID))
	assert.Equal(t, int64(200), f.balance(t, a2.ResponderID))
}

func TestSweepUsesChosenBestAnswer(t *testing.T) {
	f := newFixture(t)
	q := f.question(t, createdAgo(oldEnough))
	best := f.answer(t, q, false)
	other := f.answer(t, q, false)
	f.purchase(t, q, 1000)
	require.NoError(t, f.db.Model(&models.Question{}).Where("id = ?", q.ID).Update("best_answer_id", best.ID).Error)

	res, err := f.scheduler.RunSweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.DistributedBest)
	assert.Zero(t, res.DistributedOthers)

	assert.Equal(t, int64(240), f.balance(t, best.ResponderID))
	assert.Equal(t, int64(160), f.balance(t, other.ResponderID))
}

func TestSweepCollectsFailuresAndKeepsGoing(t *testing.T) {
	f := newFixture(t)

	broken := f.question(t, createdAgo(oldEnough+day))
	missing := uuid.New()
	require.NoError(t, f.db.Model(&models.Question{}).Where("id = ?", broken.ID).Update("best_answer_id", missing).Error)
	f.answer(t, broken, false)
	f.purchase(t, broken, 1000)

	healthy := f.question(t, createdAgo(oldEnough))
	f.answer(t, healthy, false)
	f.purchase(t, healthy, 1000)

	res, err := f.scheduler.RunSweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusPartial, res.Status)
	assert.Equal(t, 2, res.ProcessedPools)
	assert.Len(t, res.Errors, 1)
	assert.ErrorIs(t, res.Err(), ErrPartialSweep)

	// The others path still settles the pool whose best answer is gone.
	assert.Equal(t, 2, res.DistributedOthers)
	assert.Equal(t, models.PoolStatusDistributed, f.pool(t, broken.ID).Status)
	assert.Equal(t, models.PoolStatusDistributed, f.pool(t, healthy.ID).Status)

	run, err := f.scheduler.LastRun(context.Background())
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, models.RunStatusPartial, run.Status)
	assert.Equal(t, 2, run.ProcessedCount)
	assert.Len(t, run.Errors, 1)
}

func TestSweepIsRerunnable(t *testing.T) {
	f := newFixture(t)
	q := f.question(t, createdAgo(oldEnough))
	f.answer(t, q, false)
	f.purchase(t, q, 1000)

	first, err := f.scheduler.RunSweep(context.Background())
	require.NoError(t, err)
	second, err := f.scheduler.RunSweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, first.DistributedOthers)
	assert.Zero(t, second.ProcessedPools)
	assert.Len(t, f.shareRows(t, f.pool(t, q.ID).ID), 1)

	var runs int64
	f.db.Model(&models.CronRunLog{}).Where("job_name = ?", SweepJobName).Count(&runs)
	assert.Equal(t, int64(2), runs)
}

func TestSweepRepairsStuckPoolsFirst(t *testing.T) {
	f := newFixture(t)
	q := f.question(t)
	best := f.answer(t, q, false)
	f.purchase(t, q, 1000)
	pool := f.pool(t, q.ID)

	userID := best.ResponderID
	require.NoError(t, f.db.Create(&models.Transaction{
		Type:              models.TransactionTypeBestAnswerShare,
		Amount:            240,
		UserID:            &userID,
		RelatedQuestionID: q.ID,
		PoolID:            &pool.ID,
		Status:            models.TransactionStatusCompleted,
	}).Error)

	res, err := f.scheduler.RunSweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.RepairedPools)
	assert.Equal(t, models.PoolStatusDistributed, f.pool(t, q.ID).Status)
}

func TestLastRunBeforeAnySweep(t *testing.T) {
	f := newFixture(t)

	run, err := f.scheduler.LastRun(context.Background())
	require.NoError(t, err)
	assert.Nil(t, run)
}
