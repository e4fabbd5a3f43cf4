package usecase

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"flightwatch-service/internal/domain/entity"
	"flightwatch-service/internal/domain/repository"
	"flightwatch-service/pkg/logger"
	"flightwatch-service/pkg/metrics"
)

const claimLease = time.Minute

// Dispatcher turns granted events into outbound messages, respecting tenant
// rate caps, quiet hours and retry policy. Pending records live in the
// idempotency ledger and are swept on their own ticker, so a deferred or
// backed-off delivery survives restarts.
type Dispatcher struct {
	ledgerRepo    repository.LedgerRepository
	settingsRepo  repository.TenantSettingsRepository
	timezoneRepo  repository.TimezoneRepository
	messengerRepo repository.MessengerRepository
	detector      *ChangeDetector
	logger        logger.Logger
	metrics       *metrics.Metrics

	interval  time.Duration
	batchSize int

	sweepMu sync.Mutex
	now     func() time.Time
}

// NewDispatcher creates a new delivery pipeline
func NewDispatcher(
	ledgerRepo repository.LedgerRepository,
	settingsRepo repository.TenantSettingsRepository,
	timezoneRepo repository.TimezoneRepository,
	messengerRepo repository.MessengerRepository,
	detector *ChangeDetector,
	logger logger.Logger,
	m *metrics.Metrics,
	interval time.Duration,
	batchSize int,
) *Dispatcher {
	return &Dispatcher{
		ledgerRepo:    ledgerRepo,
		settingsRepo:  settingsRepo,
		timezoneRepo:  timezoneRepo,
		messengerRepo: messengerRepo,
		detector:      detector,
		logger:        logger,
		metrics:       m,
		interval:      interval,
		batchSize:     batchSize,
		now:           time.Now,
	}
}

// Enqueue reserves an event in the ledger. It returns false when the ledger
// already holds a record for the same (trip, kind, fingerprint), in which
// case nothing is sent.
func (d *Dispatcher) Enqueue(ctx context.Context, event entity.NotificationEvent) (bool, error) {
	if event.Kind == entity.EventBoarding {
		settings, err := d.settingsRepo.GetSettings(ctx, event.TenantID)
		if err != nil {
			d.logger.Warn("Failed to load tenant settings", "tenantID", event.TenantID, "error", err)
		} else if !settings.BoardingEnabled {
			return false, nil
		}
	}

	record := &entity.NotificationRecord{
		TripID:        event.TripID,
		TenantID:      event.TenantID,
		EventKind:     event.Kind,
		Fingerprint:   event.Fingerprint,
		Recipient:     event.Recipient,
		Origin:        event.Origin,
		TemplateID:    event.TemplateID,
		Variables:     event.Variables,
		NextAttemptAt: d.now(),
	}

	granted, err := d.ledgerRepo.TryReserve(ctx, record)
	if err != nil {
		return false, err
	}
	if !granted {
		// Normal skip, not an error
		d.metrics.DedupSkips.Inc()
		d.logger.Debug("Duplicate event skipped",
			"tripID", event.TripID, "kind", event.Kind, "fingerprint", event.Fingerprint)
		return false, nil
	}

	if event.Kind.IsTerminal() {
		// A terminal event makes any still-pending delay/gate retry for the
		// same trip stale; fail them rather than deliver after the fact.
		if err := d.ledgerRepo.FailPendingNonTerminal(ctx, event.TripID, "superseded by terminal event"); err != nil {
			d.logger.Error("Failed to supersede pending records", "tripID", event.TripID, "error", err)
		}
	}

	d.logger.Info("Notification reserved",
		"tripID", event.TripID, "kind", event.Kind, "template", event.TemplateID)
	return true, nil
}

// EnqueueReservationConfirmed is called by the trip-management collaborator
// at trip creation time
func (d *Dispatcher) EnqueueReservationConfirmed(ctx context.Context, trip *entity.Trip) (bool, error) {
	return d.Enqueue(ctx, d.detector.ReservationConfirmedEvent(ctx, trip))
}

// Run sweeps due ledger records until the context is cancelled
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("Dispatcher stopped")
			return
		case <-ticker.C:
			if err := d.Sweep(ctx); err != nil {
				d.logger.Error("Dispatch sweep failed", "error", err)
			}
		}
	}
}

// Sweep claims due pending records and attempts delivery. Overlapping
// sweeps from one instance are skipped; cross-instance overlap is handled
// by the claim lease in the ledger.
func (d *Dispatcher) Sweep(ctx context.Context) error {
	if !d.sweepMu.TryLock() {
		d.logger.Warn("Previous sweep still running, skipping")
		return nil
	}
	defer d.sweepMu.Unlock()

	records, err := d.ledgerRepo.ClaimDue(ctx, d.now(), claimLease, d.batchSize)
	if err != nil {
		return err
	}

	for _, record := range records {
		if err := d.deliver(ctx, record); err != nil {
			// Scoped to one record, never aborts the sweep
			d.logger.Error("Delivery failed",
				"recordID", record.ID, "tripID", record.TripID, "error", err)
		}
	}
	return nil
}

// deliver runs one record through caps -> quiet hours -> send -> state update
func (d *Dispatcher) deliver(ctx context.Context, record *entity.NotificationRecord) error {
	now := d.now()

	settings, err := d.settingsRepo.GetSettings(ctx, record.TenantID)
	if err != nil {
		d.logger.Warn("Failed to load tenant settings, using defaults",
			"tenantID", record.TenantID, "error", err)
		settings = entity.DefaultTenantSettings(record.TenantID)
	}

	if deferred, err := d.applyRateCaps(ctx, record, settings, now); deferred || err != nil {
		return err
	}

	if !record.EventKind.Urgent() {
		allowed := NextAllowedSend(now, d.originLocation(ctx, record.Origin), settings.QuietHoursStart, settings.QuietHoursEnd)
		if allowed.After(now) {
			d.logger.Info("Deferred to quiet hours end",
				"recordID", record.ID, "tripID", record.TripID, "resumeAt", allowed)
			return d.ledgerRepo.Defer(ctx, record.ID, allowed, "deferred: quiet hours")
		}
	}

	attempts := record.Attempts + 1
	messageID, sendErr := d.messengerRepo.SendTemplate(ctx, record.Recipient, record.TemplateID, record.Variables)
	if sendErr == nil {
		d.metrics.NotificationsSent.Inc()
		d.logger.Info("Notification sent",
			"recordID", record.ID, "tripID", record.TripID, "messageId", messageID)
		return d.ledgerRepo.MarkSent(ctx, record.ID, messageID, now)
	}

	if !entity.IsRetryableTransport(sendErr) {
		// More attempts cannot succeed, fail immediately
		d.metrics.DeliveryFailures.Inc()
		d.logger.Error("Permanent transport failure",
			"recordID", record.ID, "tripID", record.TripID, "error", sendErr)
		return d.ledgerRepo.MarkFailed(ctx, record.ID, attempts, sendErr.Error())
	}

	if attempts >= settings.MaxRetries {
		d.metrics.DeliveryFailures.Inc()
		d.logger.Error("Retry attempts exhausted",
			"recordID", record.ID, "tripID", record.TripID, "attempts", attempts, "error", sendErr)
		return d.ledgerRepo.MarkFailed(ctx, record.ID, attempts, sendErr.Error())
	}

	next := now.Add(backoffDelay(settings, attempts))
	d.metrics.DeliveryRetries.Inc()
	d.logger.Warn("Delivery attempt failed, backing off",
		"recordID", record.ID, "tripID", record.TripID, "attempts", attempts, "nextAttemptAt", next)
	return d.ledgerRepo.Reschedule(ctx, record.ID, attempts, next, sendErr.Error())
}

// applyRateCaps defers the record when the tenant is over its hourly or
// daily send cap. Deferrals do not consume a retry attempt.
func (d *Dispatcher) applyRateCaps(ctx context.Context, record *entity.NotificationRecord, settings *entity.TenantSettings, now time.Time) (bool, error) {
	hourly, err := d.ledgerRepo.CountSentSince(ctx, record.TenantID, now.Add(-time.Hour))
	if err != nil {
		return false, err
	}
	if hourly >= int64(settings.HourlySendCap) {
		// The counting window is a rolling hour; one hour from now every
		// send counted here has aged out of it
		resume := now.Add(time.Hour)
		d.logger.Warn("Hourly send cap reached", "tenantID", record.TenantID, "resumeAt", resume)
		return true, d.ledgerRepo.Defer(ctx, record.ID, resume, "deferred: hourly send cap")
	}

	daily, err := d.ledgerRepo.CountSentSince(ctx, record.TenantID, now.Add(-24*time.Hour))
	if err != nil {
		return false, err
	}
	if daily >= int64(settings.DailySendCap) {
		resume := now.Add(time.Hour)
		d.logger.Warn("Daily send cap reached", "tenantID", record.TenantID, "resumeAt", resume)
		return true, d.ledgerRepo.Defer(ctx, record.ID, resume, "deferred: daily send cap")
	}

	return false, nil
}

// originLocation resolves the trip origin timezone, falling back to UTC
func (d *Dispatcher) originLocation(ctx context.Context, origin string) *time.Location {
	if origin == "" {
		return time.UTC
	}
	tz, err := d.timezoneRepo.GetByAirportCode(ctx, origin)
	if err != nil {
		d.logger.Warn("Timezone lookup failed, using UTC", "origin", origin, "error", err)
		return time.UTC
	}
	loc, err := time.LoadLocation(tz.TzName)
	if err != nil {
		d.logger.Warn("Error loading origin location, using UTC", "tzName", tz.TzName, "error", err)
		return time.UTC
	}
	return loc
}

// backoffDelay computes the jittered exponential backoff for the given
// attempt count (1-based)
func backoffDelay(settings *entity.TenantSettings, attempts int) time.Duration {
	delay := time.Duration(float64(settings.RetryBase) * math.Pow(settings.RetryFactor, float64(attempts-1)))
	if delay > settings.RetryCap {
		delay = settings.RetryCap
	}
	// +-20% jitter to spread retries across many trips
	jitter := 0.8 + 0.4*rand.Float64()
	return time.Duration(float64(delay) * jitter)
}
