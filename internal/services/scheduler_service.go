// internal/services/scheduler_service.go
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/fieldbook/ppv-settlement/internal/config"
	"github.com/fieldbook/ppv-settlement/internal/metrics"
	"github.com/fieldbook/ppv-settlement/internal/models"
)

// SweepJobName is the run-log job name of the settlement sweep.
const SweepJobName = "settlement-sweep"

type SchedulerService struct {
	db          *gorm.DB
	settlement  *SettlementService
	metrics     *metrics.Metrics
	gracePeriod time.Duration
	poolTimeout time.Duration
	batchSize   int
	now         func() time.Time
}

type SweepResult struct {
	Status            models.RunStatus `json:"status"`
	ProcessedPools    int              `json:"processedPools"`
	DistributedBest   int              `json:"distributedBest"`
	DistributedOthers int              `json:"distributedOthers"`
	RepairedPools     int              `json:"repairedPools"`
	Errors            []string         `json:"errors"`
}

// Err returns ErrPartialSweep when any pool failed.
func (r *SweepResult) Err() error {
	if len(r.Errors) > 0 {
		return fmt.Errorf("%w: %d failures", ErrPartialSweep, len(r.Errors))
	}
	return nil
}

// eligiblePool is one row of the sweep selection.
type eligiblePool struct {
	PoolID           uuid.UUID
	QuestionID       uuid.UUID
	BestAnswerAmount int64
	TotalAmount      int64
	BestAnswerID     *uuid.UUID
}

func NewSchedulerService(db *gorm.DB, settlement *SettlementService, m *metrics.Metrics, cfg config.SettlementConfig) *SchedulerService {
	return &SchedulerService{
		db:          db,
		settlement:  settlement,
		metrics:     m,
		gracePeriod: cfg.GracePeriod,
		poolTimeout: cfg.PoolTimeout,
		batchSize:   cfg.BatchSize,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// RunSweep force-settles pools whose question is older than the grace period.
// One pool failing never stops the sweep; failures are collected in the
// result and the run is logged as PARTIAL.
func (s *SchedulerService) RunSweep(ctx context.Context) (*SweepResult, error) {
	started := time.Now()
	result := &SweepResult{Errors: []string{}}

	repaired, err := s.settlement.RepairStuckPools(ctx)
	result.RepairedPools = repaired
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("repair: %v", err))
	}

	cutoff := s.now().Add(-s.gracePeriod)
	pools, err := s.eligiblePools(ctx, cutoff)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("select pools: %v", err))
	}

	for _, p := range pools {
		if ctx.Err() != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("sweep interrupted: %v", ctx.Err()))
			break
		}
		s.settlePool(ctx, p, result)
		result.ProcessedPools++
	}

	result.Status = models.RunStatusSuccess
	if len(result.Errors) > 0 {
		result.Status = models.RunStatusPartial
	}

	elapsed := time.Since(started)
	s.metrics.SweepDuration.Observe(elapsed.Seconds())

	log := logrus.WithFields(logrus.Fields{
		"processed":          result.ProcessedPools,
		"distributed_best":   result.DistributedBest,
		"distributed_others": result.DistributedOthers,
		"repaired":           result.RepairedPools,
		"errors":             len(result.Errors),
		"duration":           elapsed.String(),
	})
	if result.Status == models.RunStatusPartial {
		log.Warn("Settlement sweep finished with failures")
	} else {
		log.Info("Settlement sweep finished")
	}

	if err := s.saveRunLog(ctx, result, cutoff, elapsed); err != nil {
		return result, err
	}
	return result, nil
}

func (s *SchedulerService) settlePool(ctx context.Context, p eligiblePool, result *SweepResult) {
	poolCtx, cancel := context.WithTimeout(ctx, s.poolTimeout)
	defer cancel()

	if p.BestAnswerID != nil && p.BestAnswerAmount > 0 {
		res, err := s.settlement.Distribute(poolCtx, p.QuestionID, *p.BestAnswerID)
		switch {
		case err != nil:
			s.metrics.SweepPools.WithLabelValues("failed").Inc()
			result.Errors = append(result.Errors, fmt.Sprintf("pool %s best answer: %v", p.PoolID, err))
		case res.Distributed:
			s.metrics.SweepPools.WithLabelValues("distributed_best").Inc()
			result.DistributedBest++
		}
	}

	if p.TotalAmount > 0 {
		res, err := s.settlement.ForceDistribute(poolCtx, p.QuestionID)
		switch {
		case err != nil:
			s.metrics.SweepPools.WithLabelValues("failed").Inc()
			result.Errors = append(result.Errors, fmt.Sprintf("pool %s others: %v", p.PoolID, err))
		case res.Distributed:
			s.metrics.SweepPools.WithLabelValues("distributed_others").Inc()
			result.DistributedOthers++
		}
	}
}

func (s *SchedulerService) eligiblePools(ctx context.Context, cutoff time.Time) ([]eligiblePool, error) {
	var pools []eligiblePool
	err := s.db.WithContext(ctx).
		Table("ppv_pools").
		Select("ppv_pools.id AS pool_id, ppv_pools.question_id, ppv_pools.best_answer_amount, ppv_pools.total_amount, questions.best_answer_id").
		Joins("JOIN questions ON questions.id = ppv_pools.question_id AND questions.deleted_at IS NULL").
		Where("ppv_pools.status = ? AND ppv_pools.deleted_at IS NULL", models.PoolStatusPending).
		Where("(ppv_pools.best_answer_amount > 0 OR ppv_pools.total_amount > 0)").
		Where("questions.created_at < ?", cutoff).
		Order("questions.created_at ASC").
		Limit(s.batchSize).
		Scan(&pools).Error
	if err != nil {
		return nil, fmt.Errorf("failed to select eligible pools: %w", err)
	}
	return pools, nil
}

func (s *SchedulerService) saveRunLog(ctx context.Context, result *SweepResult, cutoff time.Time, elapsed time.Duration) error {
	run := models.CronRunLog{
		JobName:        SweepJobName,
		Status:         result.Status,
		ProcessedCount: result.ProcessedPools,
		Errors:         pq.StringArray(result.Errors),
		Metadata: models.JSONB{
			"distributedBest":   result.DistributedBest,
			"distributedOthers": result.DistributedOthers,
			"repairedPools":     result.RepairedPools,
			"errorCount":        len(result.Errors),
			"cutoff":            cutoff.Format(time.RFC3339),
			"durationMs":        elapsed.Milliseconds(),
		},
	}

	// A cancelled sweep still records its run.
	if err := s.db.WithContext(context.WithoutCancel(ctx)).Create(&run).Error; err != nil {
		return fmt.Errorf("failed to save run log: %w", err)
	}
	return nil
}

// LastRun returns the most recent sweep run log, or nil if the sweep never ran.
func (s *SchedulerService) LastRun(ctx context.Context) (*models.CronRunLog, error) {
	var runs []models.CronRunLog
	if err := s.db.WithContext(ctx).
		Where("job_name = ?", SweepJobName).
		Order("created_at DESC").
		Limit(1).
		Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("failed to load last run: %w", err)
	}
	if len(runs) == 0 {
		return nil, nil
	}
	return &runs[0], nil
}
