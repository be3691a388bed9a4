// Package service runs the invoice pipeline: it takes a succeeded payment
// event through branding resolution, composition, rendering, notification and
// persistence, recording each completed stage so a crashed job resumes where
// it stopped instead of starting over.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	brandingdomain "github.com/smallbiznis/invoiceflow/internal/branding/domain"
	"github.com/smallbiznis/invoiceflow/internal/clock"
	"github.com/smallbiznis/invoiceflow/internal/config"
	"github.com/smallbiznis/invoiceflow/internal/invoice/compose"
	invoicedomain "github.com/smallbiznis/invoiceflow/internal/invoice/domain"
	"github.com/smallbiznis/invoiceflow/internal/locks"
	"github.com/smallbiznis/invoiceflow/internal/notify"
	"github.com/smallbiznis/invoiceflow/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/invoiceflow/internal/payment/domain"
	"github.com/smallbiznis/invoiceflow/internal/pipeline/domain"
	"github.com/smallbiznis/invoiceflow/internal/providers/email"
	"github.com/smallbiznis/invoiceflow/internal/providers/slack"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	pkgdb "github.com/smallbiznis/invoiceflow/pkg/db"
)

// Pipeline accepts payment events and drives them to a terminal job state.
type Pipeline interface {
	// ProcessEvent runs the event through the pipeline synchronously and
	// returns the terminal (or deduplicated) result. It returns an error only
	// for malformed events or when the job record itself cannot be written.
	ProcessEvent(ctx context.Context, event *paymentdomain.Event) (*domain.Result, error)

	// Submit queues the event for asynchronous processing by the worker pool.
	Submit(ctx context.Context, event *paymentdomain.Event) error

	// Lookup returns the current job result for a payment id, or
	// domain.ErrJobNotFound when no event was ever accepted for it.
	Lookup(ctx context.Context, paymentID string) (*domain.Result, error)

	// RecoverStalled resumes jobs stuck in RUNNING beyond the staleness
	// threshold and returns how many were picked up.
	RecoverStalled(ctx context.Context) (int, error)
}

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Cfg      config.Config
	Node     *snowflake.Node
	Clk      clock.Clock
	Resolver brandingdomain.Resolver
	Composer *compose.Composer
	Store    invoicedomain.Store
	Renderer invoicedomain.DocumentRenderer
	Notifier notify.Notifier
	Alerts   slack.Provider
	Locker   *locks.Locker `optional:"true"`
	Metrics  *metrics.Metrics
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	cfg      config.Config
	node     *snowflake.Node
	clk      clock.Clock
	resolver brandingdomain.Resolver
	composer *compose.Composer
	store    invoicedomain.Store
	renderer invoicedomain.DocumentRenderer
	notifier notify.Notifier
	alerts   slack.Provider
	locker   *locks.Locker
	metrics  *metrics.Metrics

	queue chan *paymentdomain.Event
	done  chan struct{}
}

func NewService(p Params) *Service {
	workers := p.Cfg.PipelineWorkers
	if workers <= 0 {
		workers = 1
	}
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("pipeline"),
		cfg:      p.Cfg,
		node:     p.Node,
		clk:      p.Clk,
		resolver: p.Resolver,
		composer: p.Composer,
		store:    p.Store,
		renderer: p.Renderer,
		notifier: p.Notifier,
		alerts:   p.Alerts,
		locker:   p.Locker,
		metrics:  p.Metrics,
		queue:    make(chan *paymentdomain.Event, workers*16),
		done:     make(chan struct{}),
	}
}

// runState carries the in-flight artifacts of one job execution. Only the job
// row and the invoice are durable; branding and the rendered document are
// rebuilt on resume, which is safe because resolution is read-only and
// rendering is deterministic.
type runState struct {
	job      *domain.Job
	event    *paymentdomain.Event
	branding *brandingdomain.MerchantBranding
	invoice  *invoicedomain.Invoice
	document []byte
}

func (s *Service) ProcessEvent(ctx context.Context, event *paymentdomain.Event) (*domain.Result, error) {
	if err := event.Validate(); err != nil {
		return nil, err
	}

	// Non-succeeded events are acknowledged without creating a job, so a
	// later succeeded event for the same payment id still goes through.
	if event.Status != paymentdomain.EventStatusSucceeded {
		s.log.Info("ignoring non-succeeded payment event",
			zap.String("payment_id", event.PaymentID),
			zap.String("status", string(event.Status)),
		)
		return &domain.Result{PaymentID: event.PaymentID, Ignored: true}, nil
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", paymentdomain.ErrInvalidEvent, err)
	}

	now := s.clk.Now()
	job := &domain.Job{
		ID:         s.node.Generate(),
		PaymentID:  event.PaymentID,
		MerchantID: event.MerchantID,
		Stage:      domain.StageReceived,
		Status:     domain.JobStatusRunning,
		Event:      payload,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.db.WithContext(ctx).Create(job).Error; err != nil {
		if pkgdb.IsDuplicateKeyErr(err) {
			return s.handleDuplicate(ctx, event.PaymentID)
		}
		return nil, fmt.Errorf("create job: %w", err)
	}

	s.metrics.JobsStarted.WithLabelValues(event.MerchantID).Inc()
	return s.run(ctx, &runState{job: job, event: event}), nil
}

func (s *Service) Submit(ctx context.Context, event *paymentdomain.Event) error {
	if err := event.Validate(); err != nil {
		return err
	}
	select {
	case s.queue <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) Lookup(ctx context.Context, paymentID string) (*domain.Result, error) {
	job, err := s.getJobByPaymentID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	return resultFromJob(job, true), nil
}

// handleDuplicate resolves an insert that collided with an existing job for
// the same payment id. Completed jobs ack with the original invoice id;
// retryable failures and stalled runs resume; everything else is reported
// as-is.
func (s *Service) handleDuplicate(ctx context.Context, paymentID string) (*domain.Result, error) {
	existing, err := s.getJobByPaymentID(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	switch existing.Status {
	case domain.JobStatusCompleted:
		s.metrics.JobsDeduped.Inc()
		s.log.Info("duplicate payment event acknowledged",
			zap.String("payment_id", paymentID),
			zap.String("job_id", existing.ID.String()),
		)
		return &domain.Result{
			JobID:        existing.ID,
			PaymentID:    paymentID,
			Status:       domain.JobStatusCompleted,
			InvoiceID:    existing.InvoiceID,
			Deduplicated: true,
		}, nil

	case domain.JobStatusFailed:
		if existing.FailureKind.Retryable() {
			return s.resumeJob(ctx, existing)
		}
		s.metrics.JobsDeduped.Inc()
		return resultFromJob(existing, true), nil

	default: // RUNNING
		cutoff := s.clk.Now().Add(-s.cfg.RecoveryThreshold)
		if existing.UpdatedAt.Before(cutoff) {
			return s.resumeJob(ctx, existing)
		}
		s.metrics.JobsDeduped.Inc()
		return resultFromJob(existing, true), nil
	}
}

// resumeJob re-enters the pipeline at the stage after the job's last durable
// one. The stored event payload is the source of truth; the invoice and the
// rendered document are reloaded or rebuilt as the recorded stage requires.
// The reopen is a conditional claim so the recovery sweep and a concurrent
// redelivery cannot both run the same job and double-send the customer.
func (s *Service) resumeJob(ctx context.Context, job *domain.Job) (*domain.Result, error) {
	var event paymentdomain.Event
	if err := json.Unmarshal(job.Event, &event); err != nil {
		return nil, fmt.Errorf("decode stored event for job %s: %w", job.ID, err)
	}

	cutoff := s.clk.Now().Add(-s.cfg.RecoveryThreshold)
	res := s.db.WithContext(ctx).Model(&domain.Job{}).
		Where("id = ? AND (status = ? OR (status = ? AND updated_at < ?))",
			job.ID, domain.JobStatusFailed, domain.JobStatusRunning, cutoff).
		Updates(map[string]interface{}{
			"status":       domain.JobStatusRunning,
			"failed_stage": "",
			"failure_kind": "",
			"last_error":   "",
			"updated_at":   s.clk.Now(),
		})
	if res.Error != nil {
		return nil, fmt.Errorf("reopen job %s: %w", job.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		// Another worker claimed the job first.
		current, err := s.getJobByPaymentID(ctx, job.PaymentID)
		if err != nil {
			return nil, err
		}
		s.metrics.JobsDeduped.Inc()
		return resultFromJob(current, true), nil
	}

	job.Status = domain.JobStatusRunning
	job.FailedStage = ""
	job.FailureKind = ""
	job.LastError = ""

	s.log.Info("resuming invoice job",
		zap.String("job_id", job.ID.String()),
		zap.String("payment_id", job.PaymentID),
		zap.String("stage", string(job.Stage)),
	)
	return s.run(ctx, &runState{job: job, event: &event}), nil
}

func (s *Service) run(ctx context.Context, st *runState) *domain.Result {
	if s.locker != nil {
		key := "invoiceflow:job:" + st.job.PaymentID
		token, ok, err := s.locker.TryLock(ctx, key, s.cfg.RecoveryThreshold)
		if err != nil {
			s.log.Warn("lock unavailable, proceeding unlocked",
				zap.String("payment_id", st.job.PaymentID),
				zap.Error(err),
			)
		} else if !ok {
			s.metrics.JobsDeduped.Inc()
			return resultFromJob(st.job, true)
		} else {
			defer func() {
				if err := s.locker.Release(context.WithoutCancel(ctx), key, token); err != nil {
					s.log.Warn("failed to release job lock", zap.Error(err))
				}
			}()
		}
	}

	if err := s.prepare(ctx, st); err != nil {
		return s.fail(ctx, st, st.job.Stage.Next(), err)
	}

	for st.job.Stage != domain.StageCompleted {
		target := st.job.Stage.Next()
		if err := s.executeStage(ctx, st, target); err != nil {
			return s.fail(ctx, st, target, err)
		}
		if err := s.advance(ctx, st.job, target); err != nil {
			// The stage side effect happened but the record did not stick;
			// leave the job RUNNING for the recovery sweep to resume.
			s.log.Error("failed to record completed stage",
				zap.String("job_id", st.job.ID.String()),
				zap.String("stage", string(target)),
				zap.Error(err),
			)
			return resultFromJob(st.job, false)
		}
	}

	if err := s.db.WithContext(ctx).Model(&domain.Job{}).
		Where("id = ?", st.job.ID).
		Updates(map[string]interface{}{
			"status":     domain.JobStatusCompleted,
			"updated_at": s.clk.Now(),
		}).Error; err != nil {
		s.log.Error("failed to mark job completed",
			zap.String("job_id", st.job.ID.String()),
			zap.Error(err),
		)
		return resultFromJob(st.job, false)
	}
	st.job.Status = domain.JobStatusCompleted

	s.metrics.JobsCompleted.Inc()
	s.report(ctx, st.job)
	return resultFromJob(st.job, false)
}

// prepare rebuilds in-memory artifacts a resumed job needs before its next
// stage can run.
func (s *Service) prepare(ctx context.Context, st *runState) error {
	if st.job.Stage.Before(domain.StageComposed) {
		// Resolution is read-only, so a job resumed between branding and
		// composition rebuilds the snapshot by resolving again.
		if st.job.Stage == domain.StageBrandingResolved && st.branding == nil {
			branding, err := s.resolver.Resolve(ctx, st.event.MerchantID)
			if err != nil {
				return err
			}
			st.branding = branding
		}
		return nil
	}
	invoice, err := s.store.GetByPaymentID(ctx, st.job.PaymentID)
	if err != nil {
		return err
	}
	st.invoice = invoice

	// Rendering is deterministic, so rebuilding the document for the notify
	// and persist stages reproduces the exact bytes of the first run.
	if !st.job.Stage.Before(domain.StageRendered) && st.job.Stage.Before(domain.StagePersisted) {
		document, err := s.renderer.Render(ctx, invoice)
		if err != nil {
			return err
		}
		st.document = document
	}
	return nil
}

// executeStage runs one stage under the configured timeout, retrying
// transient failures with linear backoff up to the attempt budget.
func (s *Service) executeStage(ctx context.Context, st *runState, stage domain.Stage) error {
	maxAttempts := s.cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		start := s.clk.Now()
		stageCtx, cancel := context.WithTimeout(ctx, s.cfg.StageTimeout)
		err := s.step(stageCtx, st, stage, attempt)
		cancel()
		s.metrics.StageDuration.WithLabelValues(string(stage)).Observe(s.clk.Now().Sub(start).Seconds())

		if err == nil {
			return nil
		}
		lastErr = err
		st.job.Attempts++

		kind := classify(err)
		if !kind.Retryable() || attempt == maxAttempts {
			return err
		}

		s.metrics.StageRetries.WithLabelValues(string(stage)).Inc()
		s.log.Warn("stage failed, retrying",
			zap.String("job_id", st.job.ID.String()),
			zap.String("stage", string(stage)),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		select {
		case <-time.After(s.cfg.RetryBackoff * time.Duration(attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}

func (s *Service) step(ctx context.Context, st *runState, stage domain.Stage, attempt int) error {
	switch stage {
	case domain.StageBrandingResolved:
		branding, err := s.resolver.Resolve(ctx, st.event.MerchantID)
		if err != nil {
			return err
		}
		st.branding = branding
		return nil

	case domain.StageComposed:
		invoice, err := s.composer.Compose(st.event, st.branding)
		if err != nil {
			return err
		}
		// Saving here makes the invoice durable before any outward side
		// effect, so a permanent notify failure still leaves a stored
		// invoice behind.
		if err := s.store.Save(ctx, invoice); err != nil {
			return err
		}
		st.invoice = invoice
		st.job.InvoiceID = &invoice.ID
		return nil

	case domain.StageRendered:
		document, err := s.renderer.Render(ctx, st.invoice)
		if err != nil {
			return err
		}
		st.document = document
		return nil

	case domain.StageNotified:
		record, err := s.notifier.Notify(ctx, st.invoice, st.document, s.renderer.ContentType(), attempt)
		if record != nil {
			s.metrics.Notifications.WithLabelValues(string(record.Outcome)).Inc()
		}
		return err

	case domain.StagePersisted:
		return s.store.Save(ctx, st.invoice)

	case domain.StageCompleted:
		return nil

	default:
		return fmt.Errorf("unknown stage %q", stage)
	}
}

// advance durably records the completed stage before the next one starts.
func (s *Service) advance(ctx context.Context, job *domain.Job, stage domain.Stage) error {
	updates := map[string]interface{}{
		"stage":      stage,
		"attempts":   job.Attempts,
		"updated_at": s.clk.Now(),
	}
	if job.InvoiceID != nil {
		updates["invoice_id"] = *job.InvoiceID
	}
	if err := s.db.WithContext(ctx).Model(&domain.Job{}).
		Where("id = ?", job.ID).
		Updates(updates).Error; err != nil {
		return err
	}
	job.Stage = stage
	return nil
}

func (s *Service) fail(ctx context.Context, st *runState, stage domain.Stage, cause error) *domain.Result {
	kind := classify(cause)
	job := st.job
	job.Status = domain.JobStatusFailed
	job.FailedStage = stage
	job.FailureKind = kind
	job.LastError = cause.Error()

	updates := map[string]interface{}{
		"status":       domain.JobStatusFailed,
		"failed_stage": stage,
		"failure_kind": kind,
		"last_error":   job.LastError,
		"attempts":     job.Attempts,
		"updated_at":   s.clk.Now(),
	}
	if job.InvoiceID != nil {
		updates["invoice_id"] = *job.InvoiceID
	}
	if err := s.db.WithContext(ctx).Model(&domain.Job{}).
		Where("id = ?", job.ID).
		Updates(updates).Error; err != nil {
		s.log.Error("failed to record job failure",
			zap.String("job_id", job.ID.String()),
			zap.Error(err),
		)
	}

	s.metrics.JobsFailed.WithLabelValues(string(stage), string(kind)).Inc()
	s.log.Error("invoice job failed",
		zap.String("job_id", job.ID.String()),
		zap.String("payment_id", job.PaymentID),
		zap.String("stage", string(stage)),
		zap.String("kind", string(kind)),
		zap.Error(cause),
	)
	s.report(ctx, job)
	return resultFromJob(job, false)
}

// report posts the terminal job summary to the alert sink. Delivery is best
// effort; the job outcome is already durable.
func (s *Service) report(ctx context.Context, job *domain.Job) {
	var message string
	if job.Status == domain.JobStatusCompleted {
		invoiceID := ""
		if job.InvoiceID != nil {
			invoiceID = job.InvoiceID.String()
		}
		message = fmt.Sprintf("invoice job completed: payment=%s merchant=%s invoice=%s",
			job.PaymentID, job.MerchantID, invoiceID)
	} else {
		message = fmt.Sprintf("invoice job failed: payment=%s merchant=%s stage=%s kind=%s error=%s",
			job.PaymentID, job.MerchantID, job.FailedStage, job.FailureKind, job.LastError)
	}
	if err := s.alerts.PostMessage(ctx, message); err != nil {
		s.log.Warn("failed to post job summary", zap.Error(err))
	}
}

func (s *Service) getJobByPaymentID(ctx context.Context, paymentID string) (*domain.Job, error) {
	var job domain.Job
	err := s.db.WithContext(ctx).First(&job, "payment_id = ?", paymentID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrJobNotFound
		}
		return nil, err
	}
	return &job, nil
}

func resultFromJob(job *domain.Job, deduplicated bool) *domain.Result {
	return &domain.Result{
		JobID:        job.ID,
		PaymentID:    job.PaymentID,
		Status:       job.Status,
		InvoiceID:    job.InvoiceID,
		FailedStage:  job.FailedStage,
		FailureKind:  job.FailureKind,
		Deduplicated: deduplicated,
	}
}

// classify maps component errors onto the failure taxonomy. Permanent kinds
// are checked before transient ones because wrapped errors can match both
// branches of a provider chain.
func classify(err error) domain.FailureKind {
	switch {
	case errors.Is(err, paymentdomain.ErrInvalidEvent),
		errors.Is(err, paymentdomain.ErrInvalidAmount),
		errors.Is(err, paymentdomain.ErrInvalidCurrency):
		return domain.KindInvalidEvent
	case errors.Is(err, brandingdomain.ErrNotFound),
		errors.Is(err, invoicedomain.ErrNotFound):
		return domain.KindNotFound
	case errors.Is(err, invoicedomain.ErrRender):
		return domain.KindRenderError
	case errors.Is(err, email.ErrPermanent):
		return domain.KindPermanent
	case errors.Is(err, invoicedomain.ErrStore):
		return domain.KindStoreError
	default:
		// Unavailable dependencies, provider transients and stage timeouts
		// all land here and stay retryable.
		return domain.KindTransient
	}
}
