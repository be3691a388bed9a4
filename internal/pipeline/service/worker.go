package service

import (
	"context"
	"sync"
	"time"

	"github.com/smallbiznis/invoiceflow/internal/pipeline/domain"
	"go.uber.org/zap"
)

// Start launches the worker pool and the recovery sweep. Workers drain the
// submit queue; the sweep re-enters jobs that stopped heartbeating, which is
// how a crashed instance's half-done work gets finished.
func (s *Service) Start(ctx context.Context) {
	workers := s.cfg.PipelineWorkers
	if workers <= 0 {
		workers = 1
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			s.runWorker(ctx, worker)
		}(i)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.runRecoveryLoop(ctx)
	}()

	go func() {
		wg.Wait()
		close(s.done)
	}()
}

// Stop waits for in-flight work to drain after the start context is
// cancelled.
func (s *Service) Stop(ctx context.Context) error {
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) runWorker(ctx context.Context, worker int) {
	log := s.log.With(zap.Int("worker", worker))
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-s.queue:
			result, err := s.ProcessEvent(ctx, event)
			if err != nil {
				log.Error("queued event rejected",
					zap.String("payment_id", event.PaymentID),
					zap.Error(err),
				)
				continue
			}
			log.Debug("queued event processed",
				zap.String("payment_id", result.PaymentID),
				zap.String("status", string(result.Status)),
			)
		}
	}
}

func (s *Service) runRecoveryLoop(ctx context.Context) {
	interval := s.cfg.RecoveryInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			recovered, err := s.RecoverStalled(ctx)
			if err != nil {
				s.log.Error("recovery sweep failed", zap.Error(err))
				continue
			}
			if recovered > 0 {
				s.log.Info("recovery sweep resumed stalled jobs", zap.Int("count", recovered))
			}
		}
	}
}

// RecoverStalled resumes RUNNING jobs whose last heartbeat is older than the
// staleness threshold. The batch is capped so one sweep cannot monopolize the
// instance after a long outage.
func (s *Service) RecoverStalled(ctx context.Context) (int, error) {
	cutoff := s.clk.Now().Add(-s.cfg.RecoveryThreshold)

	var stalled []domain.Job
	err := s.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", domain.JobStatusRunning, cutoff).
		Order("updated_at asc").
		Limit(50).
		Find(&stalled).Error
	if err != nil {
		return 0, err
	}

	recovered := 0
	for i := range stalled {
		job := stalled[i]
		if _, err := s.resumeJob(ctx, &job); err != nil {
			s.log.Error("failed to resume stalled job",
				zap.String("job_id", job.ID.String()),
				zap.Error(err),
			)
			continue
		}
		recovered++
	}
	return recovered, nil
}
