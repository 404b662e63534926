package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/fieldbook/ppv-settlement/internal/models"
)

func (f *fixture) holds(t *testing.T, questionID uuid.UUID) []models.EscrowHold {
	t.Helper()

	var holds []models.EscrowHold
	require.NoError(t, f.db.Where("question_id = ?", questionID).Order("created_at ASC").Find(&holds).Error)
	return holds
}

func TestReauthorizeCreatesFirstHold(t *testing.T) {
	f := newFixture(t)
	q := f.question(t, withBounty(5000))

	res, err := f.escrow.Reauthorize(context.Background(), q.ID, q.AskerID)
	require.NoError(t, err)
	assert.False(t, res.Reused)
	assert.Equal(t, f.clock().Add(testHoldTTL), res.ExpiresAt)
	assert.Equal(t, []string{res.PaymentIntentID}, f.processor.created)

	holds := f.holds(t, q.ID)
	require.Len(t, holds, 1)
	assert.Equal(t, models.HoldStatusActive, holds[0].Status)
	assert.Equal(t, int64(5000), holds[0].Amount)

	var question models.Question
	require.NoError(t, f.db.First(&question, "id = ?", q.ID).Error)
	assert.Equal(t, res.PaymentIntentID, question.EscrowPaymentIntentID)

	var audit models.AuditLog
	require.NoError(t, f.db.Where("action = ?", auditActionReauthorize).First(&audit).Error)
	assert.Equal(t, res.PaymentIntentID, audit.NewValues["payment_intent_id"])
	assert.Equal(t, "", audit.OldValues["payment_intent_id"])
}

func TestReauthorizeReusesLiveHold(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	q := f.question(t, withBounty(5000))

	first, err := f.escrow.Reauthorize(ctx, q.ID, q.AskerID)
	require.NoError(t, err)

	f.advance(6 * 24 * time.Hour)
	second, err := f.escrow.Reauthorize(ctx, q.ID, q.AskerID)
	require.NoError(t, err)

	assert.True(t, second.Reused)
	assert.Equal(t, first.PaymentIntentID, second.PaymentIntentID)
	assert.Len(t, f.processor.created, 1)
	assert.Empty(t, f.processor.cancelled)
}

func TestReauthorizeReusesHoldAwaitingConfirmation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	q := f.question(t, withBounty(5000))

	first, err := f.escrow.Reauthorize(ctx, q.ID, q.AskerID)
	require.NoError(t, err)
	f.processor.setHoldStatus(first.PaymentIntentID, HoldAwaitingConfirmation)

	second, err := f.escrow.Reauthorize(ctx, q.ID, q.AskerID)
	require.NoError(t, err)
	assert.Equal(t, first.PaymentIntentID, second.PaymentIntentID)
}

func TestReauthorizeReplacesExpiredHold(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	q := f.question(t, withBounty(5000))

	first, err := f.escrow.Reauthorize(ctx, q.ID, q.AskerID)
	require.NoError(t, err)

	f.advance(8 * 24 * time.Hour)
	second, err := f.escrow.Reauthorize(ctx, q.ID, q.AskerID)
	require.NoError(t, err)

	assert.NotEqual(t, first.PaymentIntentID, second.PaymentIntentID)
	assert.Equal(t, []string{first.PaymentIntentID}, f.processor.cancelled)

	active, err := f.escrow.ActiveHolds(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), active)

	holds := f.holds(t, q.ID)
	require.Len(t, holds, 2)
	byIntent := map[string]models.EscrowHold{}
	for _, h := range holds {
		byIntent[h.PaymentIntentID] = h
	}
	old, replacement := byIntent[first.PaymentIntentID], byIntent[second.PaymentIntentID]
	assert.Equal(t, models.HoldStatusSuperseded, old.Status)
	require.NotNil(t, old.ReplacedByID)
	assert.Equal(t, replacement.ID, *old.ReplacedByID)
	assert.Equal(t, models.HoldStatusActive, replacement.Status)
}

func TestReauthorizeReplacesCancelledHoldWithoutCancellingAgain(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	q := f.question(t, withBounty(5000))

	first, err := f.escrow.Reauthorize(ctx, q.ID, q.AskerID)
	require.NoError(t, err)
	f.processor.setHoldStatus(first.PaymentIntentID, HoldCanceled)

	second, err := f.escrow.Reauthorize(ctx, q.ID, q.AskerID)
	require.NoError(t, err)
	assert.NotEqual(t, first.PaymentIntentID, second.PaymentIntentID)
	assert.Empty(t, f.processor.cancelled)
}

func TestReauthorizeStaleCancelFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	q := f.question(t, withBounty(5000))

	_, err := f.escrow.Reauthorize(ctx, q.ID, q.AskerID)
	require.NoError(t, err)

	f.advance(8 * 24 * time.Hour)
	f.processor.cancelErr = errors.New("processor unavailable")
	_, err = f.escrow.Reauthorize(ctx, q.ID, q.AskerID)
	require.NoError(t, err)

	active, err := f.escrow.ActiveHolds(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), active)
}

func TestReauthorizeHidesQuestionFromNonOwner(t *testing.T) {
	f := newFixture(t)
	q := f.question(t, withBounty(5000))

	_, err := f.escrow.Reauthorize(context.Background(), q.ID, uuid.New())
	assert.ErrorIs(t, err, ErrQuestionNotFound)

	_, err = f.escrow.Reauthorize(context.Background(), uuid.New(), q.AskerID)
	assert.ErrorIs(t, err, ErrQuestionNotFound)
	assert.Empty(t, f.processor.created)
}

func TestReauthorizeWithoutBounty(t *testing.T) {
	f := newFixture(t)
	q := f.question(t)

	_, err := f.escrow.Reauthorize(context.Background(), q.ID, q.AskerID)
	assert.ErrorIs(t, err, ErrNoBounty)
}

func TestReauthorizeProcessorFailureIsFatal(t *testing.T) {
	f := newFixture(t)
	q := f.question(t, withBounty(5000))
	f.processor.createErr = errors.New("card declined")

	_, err := f.escrow.Reauthorize(context.Background(), q.ID, q.AskerID)
	assert.ErrorIs(t, err, ErrProcessorFailure)
	assert.Empty(t, f.holds(t, q.ID))
}

func TestReauthorizeRefusesCapturedHold(t *testing.T) {
	f := newFixture(t)
	q := f.question(t, withBounty(5000))

	first, err := f.escrow.Reauthorize(context.Background(), q.ID, q.AskerID)
	require.NoError(t, err)
	f.processor.setHoldStatus(first.PaymentIntentID, HoldSucceeded)

	_, err = f.escrow.Reauthorize(context.Background(), q.ID, q.AskerID)
	assert.ErrorIs(t, err, ErrHoldCaptured)
	assert.Len(t, f.processor.created, 1)
}

func TestReauthorizeCancelsNewHoldWhenPersistFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	q := f.question(t, withBounty(5000))

	require.NoError(t, f.db.Callback().Create().Before("gorm:create").Register("test:fail_escrow_holds", func(tx *gorm.DB) {
		if tx.Statement.Schema != nil && tx.Statement.Schema.Table == "escrow_holds" {
			tx.AddError(errors.New("disk full"))
		}
	}))

	_, err := f.escrow.Reauthorize(ctx, q.ID, q.AskerID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	require.Len(t, f.processor.created, 1)
	assert.Equal(t, f.processor.created, f.processor.cancelled)
	assert.Empty(t, f.holds(t, q.ID))

	var question models.Question
	require.NoError(t, f.db.First(&question, "id = ?", q.ID).Error)
	assert.Empty(t, question.EscrowPaymentIntentID)
}

func TestCaptureBountyWithoutHold(t *testing.T) {
	f := newFixture(t)
	q := f.question(t, withBounty(5000))

	_, err := f.escrow.CaptureBounty(context.Background(), q.ID, uuid.New())
	assert.ErrorIs(t, err, ErrNoBounty)
}

func TestSyncHoldStatusCancelsActiveHold(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	q := f.question(t, withBounty(5000))

	res, err := f.escrow.Reauthorize(ctx, q.ID, q.AskerID)
	require.NoError(t, err)

	require.NoError(t, f.escrow.SyncHoldStatus(ctx, res.PaymentIntentID, HoldCapturable))
	active, err := f.escrow.ActiveHolds(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), active)

	require.NoError(t, f.escrow.SyncHoldStatus(ctx, res.PaymentIntentID, HoldCanceled))
	active, err = f.escrow.ActiveHolds(ctx, q.ID)
	require.NoError(t, err)
	assert.Zero(t, active)
}

func TestCaptureBountyRetryAfterLocalFailureDoesNotCaptureTwice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	q := f.question(t, withBounty(5000))
	answerer := uuid.New()

	res, err := f.escrow.Reauthorize(ctx, q.ID, q.AskerID)
	require.NoError(t, err)

	require.NoError(t, f.db.Callback().Create().Before("gorm:create").Register("test:fail_escrow_credit", func(tx *gorm.DB) {
		if tx.Statement.Schema != nil && tx.Statement.Schema.Table == "transactions" {
			tx.AddError(errors.New("connection reset"))
		}
	}))

	_, err = f.escrow.CaptureBounty(ctx, q.ID, answerer)
	require.Error(t, err)
	assert.Equal(t, []string{res.PaymentIntentID}, f.processor.captured)
	active, err := f.escrow.ActiveHolds(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), active)
	assert.Zero(t, f.balance(t, answerer))

	// The processor refuses to capture a succeeded intent a second time.
	require.NoError(t, f.db.Callback().Create().Remove("test:fail_escrow_credit"))
	f.processor.captureErr = errors.New("payment_intent_unexpected_state")

	capture, err := f.escrow.CaptureBounty(ctx, q.ID, answerer)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), capture.Amount)
	assert.Equal(t, int64(5000), f.balance(t, answerer))
	assert.Len(t, f.processor.captured, 1)

	holds := f.holds(t, q.ID)
	require.Len(t, holds, 1)
	assert.Equal(t, models.HoldStatusCaptured, holds[0].Status)
}
