package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/fieldbook/ppv-settlement/internal/config"
	"github.com/fieldbook/ppv-settlement/internal/database"
	"github.com/fieldbook/ppv-settlement/internal/metrics"
	"github.com/fieldbook/ppv-settlement/internal/models"
	"github.com/fieldbook/ppv-settlement/internal/services"
	"github.com/fieldbook/ppv-settlement/internal/utils"
)

func useTestEnv(t *testing.T) *env {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, database.RunMigrations(db))

	e := &env{
		db: db,
		services: services.NewContainer(db, nil, metrics.New(), config.SettlementConfig{
			GracePeriod: 30 * 24 * time.Hour,
			PoolTimeout: 5 * time.Second,
			BatchSize:   10,
			HoldTTL:     7 * 24 * time.Hour,
		}),
		close: func() {},
	}

	previous := openEnv
	openEnv = func() (*env, error) { return e, nil }
	t.Cleanup(func() { openEnv = previous })
	return e
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func seedPool(t *testing.T, e *env, age time.Duration) (*models.Question, *models.Answer) {
	t.Helper()

	q := &models.Question{AskerID: uuid.New(), Title: "Aphids on kale", PPVPrice: 1000, Status: models.QuestionStatusOpen}
	q.CreatedAt = time.Now().UTC().Add(-age)
	require.NoError(t, e.db.Create(q).Error)
	a := &models.Answer{QuestionID: q.ID, ResponderID: uuid.New()}
	require.NoError(t, e.db.Create(a).Error)

	_, err := e.services.Pools.RecordPurchase(context.Background(), q.ID, uuid.New(), 1000)
	require.NoError(t, err)
	return q, a
}

func TestSweepCommand(t *testing.T) {
	e := useTestEnv(t)
	_, a := seedPool(t, e, 40*24*time.Hour)

	out, err := run(t, "sweep")
	require.NoError(t, err)

	var result services.SweepResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, 1, result.DistributedOthers)

	w, err := e.services.Wallet.GetBalance(context.Background(), a.ResponderID)
	require.NoError(t, err)
	assert.Equal(t, int64(400), w.BalanceAvailable)
}

func TestReconcileCommand(t *testing.T) {
	e := useTestEnv(t)
	q, a := seedPool(t, e, time.Hour)

	out, err := run(t, "reconcile", "--question", q.ID.String(), "--best-answer", a.ID.String())
	require.NoError(t, err)

	var result services.DistributionResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.True(t, result.Distributed)
	assert.Equal(t, int64(240), result.BestAnswerAmount)

	_, err = run(t, "reconcile", "--question", "nope", "--best-answer", "")
	assert.Error(t, err)
}

func TestWalletVerifyCommand(t *testing.T) {
	e := useTestEnv(t)
	q, _ := seedPool(t, e, time.Hour)

	out, err := run(t, "wallet", "verify", q.AskerID.String())
	require.NoError(t, err)
	assert.Contains(t, out, `"consistent": true`)
}

func TestCronSecretCommand(t *testing.T) {
	out, err := run(t, "cron-secret")
	require.NoError(t, err)

	var secret, hash string
	for _, line := range bytes.Split([]byte(out), []byte("\n")) {
		switch {
		case bytes.HasPrefix(line, []byte("secret: ")):
			secret = string(bytes.TrimPrefix(line, []byte("secret: ")))
		case bytes.HasPrefix(line, []byte("CRON_SECRET_HASH=")):
			hash = string(bytes.TrimPrefix(line, []byte("CRON_SECRET_HASH=")))
		}
	}
	require.NotEmpty(t, secret)
	assert.True(t, utils.CheckCronSecret(hash, secret))
}
