package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/fieldbook/ppv-settlement/internal/config"
	"github.com/fieldbook/ppv-settlement/internal/database"
	"github.com/fieldbook/ppv-settlement/internal/metrics"
	"github.com/fieldbook/ppv-settlement/internal/models"
)

const testHoldTTL = 7 * 24 * time.Hour

// fixture wires every service against one in-memory database and a fake
// processor. All services share the same adjustable clock.
type fixture struct {
	db         *gorm.DB
	processor  *fakeProcessor
	metrics    *metrics.Metrics
	wallet     *WalletService
	notifier   *NotificationService
	escrow     *EscrowService
	settlement *SettlementService
	pools      *PoolService
	scheduler  *SchedulerService
	webhooks   *WebhookService

	mu  sync.Mutex
	now time.Time
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// One connection keeps the in-memory database alive and serialises writers.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, database.RunMigrations(db))
	return db
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		db:      newTestDB(t),
		metrics: metrics.New(),
		now:     time.Now().UTC().Truncate(time.Second),
	}
	f.processor = newFakeProcessor(f.clock)
	f.wallet = NewWalletService(f.db, f.metrics)
	f.notifier = NewNotificationService(f.db)

	f.escrow = NewEscrowService(f.db, f.processor, f.wallet, f.notifier, f.metrics, testHoldTTL)
	f.escrow.now = f.clock

	f.settlement = NewSettlementService(f.db, f.wallet, f.escrow, f.notifier, f.metrics)
	f.settlement.now = f.clock

	f.pools = NewPoolService(f.db, f.wallet, f.processor, f.notifier, f.metrics)
	f.pools.now = f.clock

	f.scheduler = NewSchedulerService(f.db, f.settlement, f.metrics, config.SettlementConfig{
		GracePeriod: 30 * 24 * time.Hour,
		PoolTimeout: 5 * time.Second,
		BatchSize:   50,
	})
	f.scheduler.now = f.clock

	f.webhooks = NewWebhookService(f.processor, f.pools, f.escrow)
	return f
}

func (f *fixture) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fixture) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func (f *fixture) question(t *testing.T, opts ...func(*models.Question)) *models.Question {
	t.Helper()

	q := &models.Question{
		AskerID:  uuid.New(),
		Title:    "Why are my tomato leaves curling?",
		PPVPrice: 1000,
		Status:   models.QuestionStatusOpen,
	}
	for _, opt := range opts {
		opt(q)
	}
	require.NoError(t, f.db.Create(q).Error)
	return q
}

func withBounty(amount int64) func(*models.Question) {
	return func(q *models.Question) { q.BountyAmount = amount }
}

func createdAgo(d time.Duration) func(*models.Question) {
	return func(q *models.Question) { q.CreatedAt = time.Now().UTC().Add(-d) }
}

func (f *fixture) answer(t *testing.T, q *models.Question, blocked bool) *models.Answer {
	t.Helper()

	a := &models.Answer{
		QuestionID:  q.ID,
		ResponderID: uuid.New(),
		IsBlocked:   blocked,
	}
	require.NoError(t, f.db.Create(a).Error)
	return a
}

func (f *fixture) purchase(t *testing.T, q *models.Question, amount int64) uuid.UUID {
	t.Helper()

	buyer := uuid.New()
	_, err := f.pools.RecordPurchase(context.Background(), q.ID, buyer, amount)
	require.NoError(t, err)
	return buyer
}

func (f *fixture) pool(t *testing.T, questionID uuid.UUID) models.PPVPool {
	t.Helper()

	var pool models.PPVPool
	require.NoError(t, f.db.Where("question_id = ?", questionID).First(&pool).Error)
	return pool
}

func (f *fixture) balance(t *testing.T, userID uuid.UUID) int64 {
	t.Helper()

	w, err := f.wallet.GetBalance(context.Background(), userID)
	require.NoError(t, err)
	return w.BalanceAvailable
}

func (f *fixture) transactions(t *testing.T, query string, args ...interface{}) []models.Transaction {
	t.Helper()

	var rows []models.Transaction
	require.NoError(t, f.db.Where(query, args...).Order("amount DESC").Find(&rows).Error)
	return rows
}

func (f *fixture) shareRows(t *testing.T, poolID uuid.UUID) []models.Transaction {
	return f.transactions(t, "pool_id = ? AND type IN ?", poolID, models.ShareTypes)
}

// fakeProcessor is an in-memory Processor.
type fakeProcessor struct {
	mu    sync.Mutex
	now   func() time.Time
	seq   int
	holds map[string]*HoldHandle

	created   []string
	cancelled []string
	captured  []string
	charges   []string

	createErr  error
	cancelErr  error
	captureErr error

	event    *WebhookEvent
	eventErr error
}

func newFakeProcessor(now func() time.Time) *fakeProcessor {
	return &fakeProcessor{
		now:   now,
		holds: make(map[string]*HoldHandle),
	}
}

func (p *fakeProcessor) CreateManualCaptureHold(ctx context.Context, amount int64, reference string, metadata map[string]string) (*HoldHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.createErr != nil {
		return nil, p.createErr
	}
	p.seq++
	hold := &HoldHandle{
		ID:           fmt.Sprintf("pi_hold_%d", p.seq),
		ClientSecret: fmt.Sprintf("pi_hold_%d_secret", p.seq),
		Amount:       amount,
		Status:       HoldCapturable,
		CreatedAt:    p.now(),
	}
	p.holds[hold.ID] = hold
	p.created = append(p.created, hold.ID)
	copied := *hold
	return &copied, nil
}

func (p *fakeProcessor) GetHold(ctx context.Context, id string) (*HoldHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	hold, ok := p.holds[id]
	if !ok {
		return nil, errors.New("no such payment intent")
	}
	copied := *hold
	return &copied, nil
}

func (p *fakeProcessor) CaptureHold(ctx context.Context, id string) (*HoldHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.captureErr != nil {
		return nil, p.captureErr
	}
	hold, ok := p.holds[id]
	if !ok {
		return nil, errors.New("no such payment intent")
	}
	hold.Status = HoldSucceeded
	p.captured = append(p.captured, id)
	copied := *hold
	return &copied, nil
}

func (p *fakeProcessor) CancelHold(ctx context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancelErr != nil {
		return p.cancelErr
	}
	if hold, ok := p.holds[id]; ok {
		hold.Status = HoldCanceled
	}
	p.cancelled = append(p.cancelled, id)
	return nil
}

func (p *fakeProcessor) CreateImmediateCharge(ctx context.Context, amount int64, reference string, metadata map[string]string) (*ChargeHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.createErr != nil {
		return nil, p.createErr
	}
	p.seq++
	p.charges = append(p.charges, reference)
	return &ChargeHandle{
		ID:           fmt.Sprintf("pi_charge_%d", p.seq),
		ClientSecret: fmt.Sprintf("pi_charge_%d_secret", p.seq),
		Amount:       amount,
		Status:       HoldAwaitingConfirmation,
	}, nil
}

func (p *fakeProcessor) CreateTransfer(ctx context.Context, amount int64, destination, reference string) (*TransferHandle, error) {
	return &TransferHandle{ID: "tr_" + reference, Amount: amount}, nil
}

func (p *fakeProcessor) VerifyWebhookSignature(payload []byte, signature string) (*WebhookEvent, error) {
	if p.eventErr != nil {
		return nil, p.eventErr
	}
	return p.event, nil
}

// setHoldStatus changes what the processor reports for a hold.
func (p *fakeProcessor) setHoldStatus(id string, status ProcessorHoldStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.holds[id].Status = status
}
