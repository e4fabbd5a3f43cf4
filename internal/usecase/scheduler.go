package usecase

import (
	"context"
	"sync"
	"time"

	"flightwatch-service/internal/domain/entity"
	"flightwatch-service/internal/domain/repository"
	"flightwatch-service/pkg/logger"
	"flightwatch-service/pkg/metrics"

	"golang.org/x/time/rate"
)

// Poll cadence by time-to-departure / flight phase
const (
	intervalFar      = 6 * time.Hour    // > 24h to departure
	intervalNear     = time.Hour        // 4h-24h to departure
	intervalImminent = 15 * time.Minute // <= 4h, still on the ground
	intervalAirborne = 30 * time.Minute // departed, not yet landed
)

// PollScheduler is the top-level control loop. Each tick fans due trips out
// to a bounded worker pool behind a shared provider rate limiter; per-trip
// failures are isolated and never abort the batch.
type PollScheduler struct {
	tripRepo     repository.TripRepository
	snapshotRepo repository.SnapshotRepository
	statusRepo   repository.FlightStatusRepository
	settingsRepo repository.TenantSettingsRepository
	detector     *ChangeDetector
	dispatcher   *Dispatcher
	logger       logger.Logger
	metrics      *metrics.Metrics

	limiter         *rate.Limiter
	workers         int
	batchSize       int
	providerTimeout time.Duration

	tickMu    sync.Mutex
	tripMu    sync.Mutex
	tripLocks map[string]*sync.Mutex
	now       func() time.Time
}

// NewPollScheduler creates a new poll scheduler
func NewPollScheduler(
	tripRepo repository.TripRepository,
	snapshotRepo repository.SnapshotRepository,
	statusRepo repository.FlightStatusRepository,
	settingsRepo repository.TenantSettingsRepository,
	detector *ChangeDetector,
	dispatcher *Dispatcher,
	logger logger.Logger,
	m *metrics.Metrics,
	providerRPS float64,
	workers int,
	batchSize int,
	providerTimeout time.Duration,
) *PollScheduler {
	return &PollScheduler{
		tripRepo:        tripRepo,
		snapshotRepo:    snapshotRepo,
		statusRepo:      statusRepo,
		settingsRepo:    settingsRepo,
		detector:        detector,
		dispatcher:      dispatcher,
		logger:          logger,
		metrics:         m,
		limiter:         rate.NewLimiter(rate.Limit(providerRPS), 1),
		workers:         workers,
		batchSize:       batchSize,
		providerTimeout: providerTimeout,
		tripLocks:       make(map[string]*sync.Mutex),
		now:             time.Now,
	}
}

// Run drives ticks until the context is cancelled
func (s *PollScheduler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Poll scheduler stopped")
			return
		case <-ticker.C:
			if err := s.Tick(ctx); err != nil {
				s.logger.Error("Tick failed", "error", err)
			}
		}
	}
}

// Tick polls every due trip once and sweeps 24h reminders. A tick still
// running when the next timer fires is not overlapped; the new invocation
// is skipped.
func (s *PollScheduler) Tick(ctx context.Context) error {
	if !s.tickMu.TryLock() {
		s.logger.Warn("Previous tick still running, skipping")
		return nil
	}
	defer s.tickMu.Unlock()

	start := s.now()
	defer func() {
		s.metrics.TickDuration.Observe(s.now().Sub(start).Seconds())
	}()

	trips, err := s.tripRepo.FindDue(ctx, start, s.batchSize)
	if err != nil {
		return err
	}
	s.logger.Info("Tick started", "dueTrips", len(trips))

	sem := make(chan struct{}, s.workers)
	var wg sync.WaitGroup
	for _, trip := range trips {
		wg.Add(1)
		sem <- struct{}{}
		go func(trip *entity.Trip) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := s.processTrip(ctx, trip); err != nil {
				// Isolated per trip, the batch continues
				s.logger.Error("Trip processing failed", "tripID", trip.ID, "error", err)
			}
		}(trip)
	}
	wg.Wait()

	s.sweepReminders(ctx, s.now())
	return nil
}

// processTrip runs one trip through fetch -> append -> detect -> dispatch
// and recomputes its next poll time
func (s *PollScheduler) processTrip(ctx context.Context, trip *entity.Trip) error {
	lock := s.tripLock(trip.ID)
	if !lock.TryLock() {
		// A concurrent poll for this trip is in flight; diffing against a
		// stale baseline would double-fire events
		s.logger.Debug("Poll already in flight", "tripID", trip.ID)
		return nil
	}
	defer lock.Unlock()

	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.providerTimeout)
	defer cancel()

	snapshot, err := s.statusRepo.FetchStatus(fetchCtx, trip.FlightNumber, trip.DepartureUTC, trip.DepartureUTC.AddDate(0, 0, 1))
	if err != nil {
		// Transient; nextPollDue stays put and the next tick retries
		s.metrics.PollErrors.Inc()
		s.logger.Warn("Provider fetch failed, will retry next tick",
			"tripID", trip.ID, "flightNumber", trip.FlightNumber, "error", err)
		return nil
	}
	s.metrics.PollsTotal.Inc()

	// Diff against the most recently appended snapshot, read before this
	// one is appended
	prev, err := s.snapshotRepo.LatestByTrip(ctx, trip.ID)
	if err != nil {
		return err
	}

	snapshot.TripID = trip.ID
	if err := s.snapshotRepo.Append(ctx, snapshot); err != nil {
		return err
	}

	for _, event := range s.detector.Detect(ctx, trip, prev, snapshot) {
		granted, err := s.dispatcher.Enqueue(ctx, event)
		if err != nil {
			s.logger.Error("Failed to enqueue event",
				"tripID", trip.ID, "kind", event.Kind, "error", err)
			continue
		}
		// Counted on grant only; dedup skips show up in DedupSkips
		if granted {
			s.metrics.EventsDetected.WithLabelValues(string(event.Kind)).Inc()
		}
	}

	return s.updateTripAfterPoll(ctx, trip, snapshot)
}

func (s *PollScheduler) updateTripAfterPoll(ctx context.Context, trip *entity.Trip, snapshot *entity.FlightSnapshot) error {
	status := EffectiveStatus(snapshot)

	update := repository.TripPollUpdate{
		Status:          status,
		DepartureGate:   snapshot.DepartureGate,
		EstDepartureUTC: snapshot.EstDeparture,
		ActDepartureUTC: snapshot.ActDeparture,
		EstArrivalUTC:   snapshot.EstArrival,
		ActArrivalUTC:   snapshot.ActArrival,
	}

	if interval := s.nextPollInterval(status, trip.DepartureUTC, s.now()); interval > 0 {
		due := s.now().Add(interval)
		update.NextPollDue = &due
	} else {
		s.logger.Info("Trip reached terminal state, polling stops",
			"tripID", trip.ID, "status", status)
	}

	return s.tripRepo.UpdateAfterPoll(ctx, trip.ID, update)
}

// nextPollInterval implements the cadence table. Zero means stop polling.
func (s *PollScheduler) nextPollInterval(status entity.TripStatus, departureUTC, now time.Time) time.Duration {
	if status.IsTerminal() {
		return 0
	}
	if status == entity.TripDeparted {
		return intervalAirborne
	}

	untilDeparture := departureUTC.Sub(now)
	switch {
	case untilDeparture > 24*time.Hour:
		return intervalFar
	case untilDeparture > 4*time.Hour:
		return intervalNear
	default:
		return intervalImminent
	}
}

// sweepReminders fires the 24h pre-departure reminder for trips entering
// the window. Time-based, independent of snapshot diffs; the constant
// per-trip fingerprint makes repeated sweeps harmless.
func (s *PollScheduler) sweepReminders(ctx context.Context, now time.Time) {
	trips, err := s.tripRepo.FindApproachingDeparture(ctx, now, now.Add(24*time.Hour))
	if err != nil {
		s.logger.Error("Reminder sweep query failed", "error", err)
		return
	}

	for _, trip := range trips {
		settings, err := s.settingsRepo.GetSettings(ctx, trip.TenantID)
		if err != nil {
			s.logger.Warn("Failed to load tenant settings for reminder",
				"tenantID", trip.TenantID, "error", err)
			settings = entity.DefaultTenantSettings(trip.TenantID)
		}
		if !settings.RemindersEnabled {
			continue
		}

		event := s.detector.ReminderEvent(ctx, trip)
		granted, err := s.dispatcher.Enqueue(ctx, event)
		if err != nil {
			s.logger.Error("Failed to enqueue reminder", "tripID", trip.ID, "error", err)
			continue
		}
		if granted {
			s.metrics.EventsDetected.WithLabelValues(string(entity.EventReminder24h)).Inc()
		}
	}
}

func (s *PollScheduler) tripLock(tripID string) *sync.Mutex {
	s.tripMu.Lock()
	defer s.tripMu.Unlock()
	lock, ok := s.tripLocks[tripID]
	if !ok {
		lock = &sync.Mutex{}
		s.tripLocks[tripID] = lock
	}
	return lock
}
