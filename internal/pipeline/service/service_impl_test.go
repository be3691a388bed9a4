package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	brandingdomain "github.com/smallbiznis/invoiceflow/internal/branding/domain"
	"github.com/smallbiznis/invoiceflow/internal/clock"
	"github.com/smallbiznis/invoiceflow/internal/config"
	"github.com/smallbiznis/invoiceflow/internal/invoice/compose"
	invoicedomain "github.com/smallbiznis/invoiceflow/internal/invoice/domain"
	"github.com/smallbiznis/invoiceflow/internal/invoice/render"
	invoicerepo "github.com/smallbiznis/invoiceflow/internal/invoice/repository"
	"github.com/smallbiznis/invoiceflow/internal/notify"
	"github.com/smallbiznis/invoiceflow/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/invoiceflow/internal/payment/domain"
	"github.com/smallbiznis/invoiceflow/internal/pipeline/domain"
	"github.com/smallbiznis/invoiceflow/internal/providers/email"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fakeResolver struct {
	branding map[string]*brandingdomain.MerchantBranding
	errs     []error
	calls    int
}

func (f *fakeResolver) Resolve(ctx context.Context, merchantID string) (*brandingdomain.MerchantBranding, error) {
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	b, ok := f.branding[merchantID]
	if !ok {
		return nil, brandingdomain.ErrNotFound
	}
	return b, nil
}

type fakeNotifier struct {
	calls int
	errs  []error
}

func (f *fakeNotifier) Notify(ctx context.Context, invoice *invoicedomain.Invoice, document []byte, contentType string, attempt int) (*notify.Record, error) {
	f.calls++
	var err error
	if len(f.errs) > 0 {
		err = f.errs[0]
		f.errs = f.errs[1:]
	}
	record := &notify.Record{
		ID:        fmt.Sprintf("rec_%d", f.calls),
		InvoiceID: invoice.ID,
		Recipient: invoice.CustomerEmail,
		Channel:   "email",
		Outcome:   notify.OutcomeSent,
		Attempt:   attempt,
	}
	if err != nil {
		record.Outcome = notify.OutcomeFailed
	}
	return record, err
}

type fakeAlerts struct {
	messages []string
}

func (f *fakeAlerts) PostMessage(ctx context.Context, message string) error {
	f.messages = append(f.messages, message)
	return nil
}

type pipelineEnv struct {
	svc      *Service
	db       *gorm.DB
	store    invoicedomain.Store
	resolver *fakeResolver
	notifier *fakeNotifier
	alerts   *fakeAlerts
	metrics  *metrics.Metrics
	clk      *clock.FakeClock
}

func newPipelineEnv(t *testing.T, mutate func(*config.Config)) *pipelineEnv {
	t.Helper()
	return newPipelineEnvWithStore(t, mutate, nil)
}

func newPipelineEnvWithStore(t *testing.T, mutate func(*config.Config), wrapStore func(invoicedomain.Store) invoicedomain.Store) *pipelineEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Job{}, &invoicedomain.Invoice{}))

	cfg := config.Config{
		MaxAttempts:       3,
		StageTimeout:      time.Second,
		RetryBackoff:      time.Millisecond,
		RecoveryInterval:  time.Minute,
		RecoveryThreshold: 5 * time.Minute,
		PipelineWorkers:   1,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	node, err := snowflake.NewNode(7)
	require.NoError(t, err)

	clk := clock.NewFakeClock(time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC))
	resolver := &fakeResolver{branding: map[string]*brandingdomain.MerchantBranding{
		"m_42": {
			MerchantID:  "m_42",
			DisplayName: "Acme Traders",
			SenderEmail: "billing@acme.test",
			ThemeColor:  "#635bff",
		},
	}}
	notifier := &fakeNotifier{}
	alerts := &fakeAlerts{}
	m := metrics.New(prometheus.NewRegistry())
	store := invoicerepo.Provide(db)
	if wrapStore != nil {
		store = wrapStore(store)
	}

	svc := NewService(Params{
		DB:       db,
		Log:      zap.NewNop(),
		Cfg:      cfg,
		Node:     node,
		Clk:      clk,
		Resolver: resolver,
		Composer: compose.New(node, clk, 0),
		Store:    store,
		Renderer: render.NewHTMLRenderer(),
		Notifier: notifier,
		Alerts:   alerts,
		Metrics:  m,
	})

	return &pipelineEnv{
		svc:      svc,
		db:       db,
		store:    store,
		resolver: resolver,
		notifier: notifier,
		alerts:   alerts,
		metrics:  m,
		clk:      clk,
	}
}

func succeededEvent() *paymentdomain.Event {
	return &paymentdomain.Event{
		PaymentID:     "pay_1",
		MerchantID:    "m_42",
		CustomerName:  "Ravi",
		CustomerEmail: "ravi@example.test",
		Amount:        1000,
		Currency:      "INR",
		Status:        paymentdomain.EventStatusSucceeded,
		OrderID:       "ord_9",
		OccurredAt:    time.Date(2026, 8, 31, 11, 59, 0, 0, time.UTC),
	}
}

func TestProcessEvent_Success(t *testing.T) {
	env := newPipelineEnv(t, nil)

	result, err := env.svc.ProcessEvent(context.Background(), succeededEvent())
	require.NoError(t, err)

	assert.Equal(t, domain.JobStatusCompleted, result.Status)
	assert.False(t, result.Deduplicated)
	require.NotNil(t, result.InvoiceID)

	invoice, err := env.store.Get(context.Background(), *result.InvoiceID)
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusPaid, invoice.Status)
	assert.Equal(t, "pay_1", invoice.PaymentID)
	assert.Equal(t, "Acme Traders", invoice.Branding.DisplayName)
	assert.Contains(t, invoice.InvoiceNumber, "ord_9")

	assert.Equal(t, 1, env.notifier.calls)

	var job domain.Job
	require.NoError(t, env.db.First(&job, "payment_id = ?", "pay_1").Error)
	assert.Equal(t, domain.StageCompleted, job.Stage)
	assert.Equal(t, domain.JobStatusCompleted, job.Status)

	require.Len(t, env.alerts.messages, 1)
	assert.Contains(t, env.alerts.messages[0], "completed")
	assert.Contains(t, env.alerts.messages[0], "pay_1")

	assert.Equal(t, float64(1), testutil.ToFloat64(env.metrics.JobsCompleted))
}

func TestProcessEvent_DuplicateReturnsOriginalInvoice(t *testing.T) {
	env := newPipelineEnv(t, nil)

	first, err := env.svc.ProcessEvent(context.Background(), succeededEvent())
	require.NoError(t, err)

	second, err := env.svc.ProcessEvent(context.Background(), succeededEvent())
	require.NoError(t, err)

	assert.True(t, second.Deduplicated)
	assert.Equal(t, domain.JobStatusCompleted, second.Status)
	require.NotNil(t, second.InvoiceID)
	assert.Equal(t, *first.InvoiceID, *second.InvoiceID)

	assert.Equal(t, 1, env.notifier.calls)

	var invoices int64
	env.db.Model(&invoicedomain.Invoice{}).Count(&invoices)
	assert.Equal(t, int64(1), invoices)

	assert.Equal(t, float64(1), testutil.ToFloat64(env.metrics.JobsDeduped))
}

func TestProcessEvent_NonSucceededIsAcknowledged(t *testing.T) {
	env := newPipelineEnv(t, nil)

	event := succeededEvent()
	event.Status = paymentdomain.EventStatusFailed

	result, err := env.svc.ProcessEvent(context.Background(), event)
	require.NoError(t, err)
	assert.True(t, result.Ignored)

	var jobs int64
	env.db.Model(&domain.Job{}).Count(&jobs)
	assert.Equal(t, int64(0), jobs)
	assert.Equal(t, 0, env.notifier.calls)

	// A later succeeded event for the same payment still goes through.
	result, err = env.svc.ProcessEvent(context.Background(), succeededEvent())
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, result.Status)
}

func TestProcessEvent_InvalidEventRejected(t *testing.T) {
	env := newPipelineEnv(t, nil)

	event := succeededEvent()
	event.PaymentID = ""

	_, err := env.svc.ProcessEvent(context.Background(), event)
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidEvent)

	var jobs int64
	env.db.Model(&domain.Job{}).Count(&jobs)
	assert.Equal(t, int64(0), jobs)
}

func TestProcessEvent_BrandingNotFoundFailsWithoutRetry(t *testing.T) {
	env := newPipelineEnv(t, nil)

	event := succeededEvent()
	event.MerchantID = "m_missing"

	result, err := env.svc.ProcessEvent(context.Background(), event)
	require.NoError(t, err)

	assert.Equal(t, domain.JobStatusFailed, result.Status)
	assert.Equal(t, domain.StageBrandingResolved, result.FailedStage)
	assert.Equal(t, domain.KindNotFound, result.FailureKind)
	assert.Equal(t, 1, env.resolver.calls)
	assert.Nil(t, result.InvoiceID)

	var invoices int64
	env.db.Model(&invoicedomain.Invoice{}).Count(&invoices)
	assert.Equal(t, int64(0), invoices)

	require.Len(t, env.alerts.messages, 1)
	assert.Contains(t, env.alerts.messages[0], "failed")
}

func TestProcessEvent_TransientBrandingFailureRetries(t *testing.T) {
	env := newPipelineEnv(t, nil)
	env.resolver.errs = []error{
		fmt.Errorf("%w: connection reset", brandingdomain.ErrUnavailable),
		fmt.Errorf("%w: connection reset", brandingdomain.ErrUnavailable),
	}

	result, err := env.svc.ProcessEvent(context.Background(), succeededEvent())
	require.NoError(t, err)

	assert.Equal(t, domain.JobStatusCompleted, result.Status)
	assert.Equal(t, 3, env.resolver.calls)

	var job domain.Job
	require.NoError(t, env.db.First(&job, "payment_id = ?", "pay_1").Error)
	assert.Equal(t, 2, job.Attempts)
}

func TestProcessEvent_TransientExhaustionFailsJob(t *testing.T) {
	env := newPipelineEnv(t, func(cfg *config.Config) { cfg.MaxAttempts = 2 })
	env.resolver.errs = []error{
		fmt.Errorf("%w: down", brandingdomain.ErrUnavailable),
		fmt.Errorf("%w: down", brandingdomain.ErrUnavailable),
		fmt.Errorf("%w: down", brandingdomain.ErrUnavailable),
	}

	result, err := env.svc.ProcessEvent(context.Background(), succeededEvent())
	require.NoError(t, err)

	assert.Equal(t, domain.JobStatusFailed, result.Status)
	assert.Equal(t, domain.KindTransient, result.FailureKind)
	assert.Equal(t, 2, env.resolver.calls)

	var job domain.Job
	require.NoError(t, env.db.First(&job, "payment_id = ?", "pay_1").Error)
	assert.Equal(t, 2, job.Attempts)
}

func TestProcessEvent_PermanentNotifyFailureLeavesPaidInvoice(t *testing.T) {
	env := newPipelineEnv(t, nil)
	env.notifier.errs = []error{fmt.Errorf("%w: mailbox does not exist", email.ErrPermanent)}

	result, err := env.svc.ProcessEvent(context.Background(), succeededEvent())
	require.NoError(t, err)

	assert.Equal(t, domain.JobStatusFailed, result.Status)
	assert.Equal(t, domain.StageNotified, result.FailedStage)
	assert.Equal(t, domain.KindPermanent, result.FailureKind)
	assert.Equal(t, 1, env.notifier.calls)

	// The invoice was made durable before the send, so the merchant record
	// of the paid order survives the delivery failure.
	require.NotNil(t, result.InvoiceID)
	invoice, err := env.store.Get(context.Background(), *result.InvoiceID)
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusPaid, invoice.Status)
}

func TestProcessEvent_RedeliveryResumesRetryableFailure(t *testing.T) {
	env := newPipelineEnv(t, func(cfg *config.Config) { cfg.MaxAttempts = 1 })
	env.notifier.errs = []error{fmt.Errorf("%w: connection refused", email.ErrTransient)}

	first, err := env.svc.ProcessEvent(context.Background(), succeededEvent())
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, first.Status)
	assert.Equal(t, domain.KindTransient, first.FailureKind)

	// The redelivered event resumes from the recorded stage: no second
	// invoice is composed, only the notify step runs again.
	second, err := env.svc.ProcessEvent(context.Background(), succeededEvent())
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, second.Status)
	require.NotNil(t, second.InvoiceID)
	assert.Equal(t, *first.InvoiceID, *second.InvoiceID)

	assert.Equal(t, 2, env.notifier.calls)
	var invoices int64
	env.db.Model(&invoicedomain.Invoice{}).Count(&invoices)
	assert.Equal(t, int64(1), invoices)
}

func TestProcessEvent_PermanentFailureNotResumedOnRedelivery(t *testing.T) {
	env := newPipelineEnv(t, nil)
	env.notifier.errs = []error{fmt.Errorf("%w: rejected", email.ErrPermanent)}

	_, err := env.svc.ProcessEvent(context.Background(), succeededEvent())
	require.NoError(t, err)

	second, err := env.svc.ProcessEvent(context.Background(), succeededEvent())
	require.NoError(t, err)
	assert.True(t, second.Deduplicated)
	assert.Equal(t, domain.JobStatusFailed, second.Status)
	assert.Equal(t, 1, env.notifier.calls)
}

func TestRecoverStalled_ResumesAbandonedJob(t *testing.T) {
	env := newPipelineEnv(t, nil)

	// Complete once to produce a realistic job row, then rewind it to look
	// like an instance died after the Composed stage.
	result, err := env.svc.ProcessEvent(context.Background(), succeededEvent())
	require.NoError(t, err)
	env.notifier.calls = 0

	stale := env.clk.Now().Add(-time.Hour)
	require.NoError(t, env.db.Model(&domain.Job{}).
		Where("id = ?", result.JobID).
		Updates(map[string]interface{}{
			"status":     domain.JobStatusRunning,
			"stage":      domain.StageComposed,
			"updated_at": stale,
		}).Error)

	recovered, err := env.svc.RecoverStalled(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, recovered)

	var job domain.Job
	require.NoError(t, env.db.First(&job, "payment_id = ?", "pay_1").Error)
	assert.Equal(t, domain.JobStatusCompleted, job.Status)
	assert.Equal(t, domain.StageCompleted, job.Stage)

	// Resume re-rendered and re-sent, but never re-composed.
	assert.Equal(t, 1, env.notifier.calls)
	var invoices int64
	env.db.Model(&invoicedomain.Invoice{}).Count(&invoices)
	assert.Equal(t, int64(1), invoices)
}

func TestRecoverStalled_IgnoresFreshJobs(t *testing.T) {
	env := newPipelineEnv(t, nil)

	result, err := env.svc.ProcessEvent(context.Background(), succeededEvent())
	require.NoError(t, err)
	require.NoError(t, env.db.Model(&domain.Job{}).
		Where("id = ?", result.JobID).
		Updates(map[string]interface{}{
			"status":     domain.JobStatusRunning,
			"stage":      domain.StageComposed,
			"updated_at": env.clk.Now(),
		}).Error)

	recovered, err := env.svc.RecoverStalled(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, recovered)
}

type flakyStore struct {
	invoicedomain.Store
	saveErrs []error
}

func (f *flakyStore) Save(ctx context.Context, invoice *invoicedomain.Invoice) error {
	if len(f.saveErrs) > 0 {
		err := f.saveErrs[0]
		f.saveErrs = f.saveErrs[1:]
		if err != nil {
			return err
		}
	}
	return f.Store.Save(ctx, invoice)
}

func TestProcessEvent_ResumesAfterTransientComposeFailure(t *testing.T) {
	env := newPipelineEnvWithStore(t,
		func(cfg *config.Config) { cfg.MaxAttempts = 1 },
		func(s invoicedomain.Store) invoicedomain.Store {
			return &flakyStore{
				Store:    s,
				saveErrs: []error{fmt.Errorf("%w: connection reset", invoicedomain.ErrStore)},
			}
		})

	first, err := env.svc.ProcessEvent(context.Background(), succeededEvent())
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, first.Status)
	assert.Equal(t, domain.StageComposed, first.FailedStage)
	assert.Equal(t, domain.KindStoreError, first.FailureKind)

	var job domain.Job
	require.NoError(t, env.db.First(&job, "payment_id = ?", "pay_1").Error)
	assert.Equal(t, domain.StageBrandingResolved, job.Stage)

	// Redelivery lands between branding and composition; the resumed job
	// resolves the snapshot again and runs to completion.
	second, err := env.svc.ProcessEvent(context.Background(), succeededEvent())
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, second.Status)
	require.NotNil(t, second.InvoiceID)
	assert.Equal(t, 2, env.resolver.calls)
	assert.Equal(t, 1, env.notifier.calls)

	var invoices int64
	env.db.Model(&invoicedomain.Invoice{}).Count(&invoices)
	assert.Equal(t, int64(1), invoices)
}

func TestResume_AlreadyClaimedJobIsNotRerun(t *testing.T) {
	env := newPipelineEnv(t, func(cfg *config.Config) { cfg.MaxAttempts = 1 })
	env.notifier.errs = []error{fmt.Errorf("%w: connection refused", email.ErrTransient)}

	first, err := env.svc.ProcessEvent(context.Background(), succeededEvent())
	require.NoError(t, err)
	require.Equal(t, domain.JobStatusFailed, first.Status)

	var stale domain.Job
	require.NoError(t, env.db.First(&stale, "payment_id = ?", "pay_1").Error)

	// Another worker claims the job between the duplicate lookup and the
	// reopen: the row is RUNNING with a fresh heartbeat.
	require.NoError(t, env.db.Model(&domain.Job{}).
		Where("id = ?", stale.ID).
		Updates(map[string]interface{}{
			"status":     domain.JobStatusRunning,
			"updated_at": env.clk.Now(),
		}).Error)

	result, err := env.svc.resumeJob(context.Background(), &stale)
	require.NoError(t, err)
	assert.True(t, result.Deduplicated)
	assert.Equal(t, domain.JobStatusRunning, result.Status)
	assert.Equal(t, 1, env.notifier.calls)
}

func TestStageOrdering(t *testing.T) {
	assert.Equal(t, domain.StageBrandingResolved, domain.StageReceived.Next())
	assert.Equal(t, domain.StageCompleted, domain.StagePersisted.Next())
	assert.Equal(t, domain.StageCompleted, domain.StageCompleted.Next())
	assert.True(t, domain.StageReceived.Before(domain.StageNotified))
	assert.False(t, domain.StagePersisted.Before(domain.StageComposed))
}
