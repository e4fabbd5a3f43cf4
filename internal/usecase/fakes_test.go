package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"flightwatch-service/internal/domain/entity"
	"flightwatch-service/internal/domain/repository"
	"flightwatch-service/pkg/logger"
	"flightwatch-service/pkg/metrics"
)

// Shared across all tests; promauto registers against the default registry
// and a second registration would panic.
var (
	testMetricsOnce sync.Once
	testMetrics     *metrics.Metrics
)

func newTestMetrics() *metrics.Metrics {
	testMetricsOnce.Do(func() {
		testMetrics = metrics.NewMetrics("flightwatch_test")
	})
	return testMetrics
}

type noopLogger struct{}

func (noopLogger) Debug(msg string, keysAndValues ...interface{})  {}
func (noopLogger) Info(msg string, keysAndValues ...interface{})   {}
func (noopLogger) Warn(msg string, keysAndValues ...interface{})   {}
func (noopLogger) Error(msg string, keysAndValues ...interface{})  {}
func (noopLogger) Fatal(msg string, keysAndValues ...interface{})  {}
func (noopLogger) With(keysAndValues ...interface{}) logger.Logger { return noopLogger{} }

// fakeLedger enforces the same (trip, kind, fingerprint) uniqueness the
// mongo index provides
type fakeLedger struct {
	mu      sync.Mutex
	seq     int
	records map[string]*entity.NotificationRecord
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{records: make(map[string]*entity.NotificationRecord)}
}

func dedupKey(tripID string, kind entity.EventKind, fingerprint string) string {
	return tripID + "|" + string(kind) + "|" + fingerprint
}

func (l *fakeLedger) TryReserve(ctx context.Context, record *entity.NotificationRecord) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := dedupKey(record.TripID, record.EventKind, record.Fingerprint)
	for _, existing := range l.records {
		if dedupKey(existing.TripID, existing.EventKind, existing.Fingerprint) == key {
			return false, nil
		}
	}
	l.seq++
	record.ID = fmt.Sprintf("rec-%d", l.seq)
	record.Status = entity.DeliveryPending
	clone := *record
	l.records[record.ID] = &clone
	return true, nil
}

func (l *fakeLedger) ClaimDue(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]*entity.NotificationRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var claimed []*entity.NotificationRecord
	for _, record := range l.records {
		if len(claimed) >= limit {
			break
		}
		if record.Status == entity.DeliveryPending && !record.NextAttemptAt.After(now) {
			record.NextAttemptAt = now.Add(lease)
			clone := *record
			clone.NextAttemptAt = record.NextAttemptAt
			claimed = append(claimed, &clone)
		}
	}
	return claimed, nil
}

func (l *fakeLedger) MarkSent(ctx context.Context, id string, messageID string, sentAt time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	record, ok := l.records[id]
	if !ok {
		return errors.New("record not found")
	}
	record.Status = entity.DeliverySent
	record.MessageID = messageID
	record.SentAt = &sentAt
	return nil
}

func (l *fakeLedger) MarkFailed(ctx context.Context, id string, attempts int, lastError string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	record, ok := l.records[id]
	if !ok {
		return errors.New("record not found")
	}
	record.Status = entity.DeliveryFailed
	record.Attempts = attempts
	record.LastError = lastError
	return nil
}

func (l *fakeLedger) Reschedule(ctx context.Context, id string, attempts int, nextAttemptAt time.Time, lastError string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	record, ok := l.records[id]
	if !ok {
		return errors.New("record not found")
	}
	record.Attempts = attempts
	record.NextAttemptAt = nextAttemptAt
	record.LastError = lastError
	return nil
}

func (l *fakeLedger) Defer(ctx context.Context, id string, nextAttemptAt time.Time, reason string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	record, ok := l.records[id]
	if !ok {
		return errors.New("record not found")
	}
	record.NextAttemptAt = nextAttemptAt
	record.LastError = reason
	return nil
}

func (l *fakeLedger) CountSentSince(ctx context.Context, tenantID string, since time.Time) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var count int64
	for _, record := range l.records {
		if record.TenantID == tenantID && record.Status == entity.DeliverySent &&
			record.SentAt != nil && !record.SentAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (l *fakeLedger) FailPendingNonTerminal(ctx context.Context, tripID string, reason string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, record := range l.records {
		if record.TripID == tripID && record.Status == entity.DeliveryPending && !record.EventKind.IsTerminal() {
			record.Status = entity.DeliveryFailed
			record.LastError = reason
		}
	}
	return nil
}

func (l *fakeLedger) byKind(kind entity.EventKind) []*entity.NotificationRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*entity.NotificationRecord
	for _, record := range l.records {
		if record.EventKind == kind {
			clone := *record
			out = append(out, &clone)
		}
	}
	return out
}

func (l *fakeLedger) get(id string) *entity.NotificationRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	if record, ok := l.records[id]; ok {
		clone := *record
		return &clone
	}
	return nil
}

// fakeTripRepo holds trips in memory
type fakeTripRepo struct {
	mu    sync.Mutex
	trips map[string]*entity.Trip
}

func newFakeTripRepo(trips ...*entity.Trip) *fakeTripRepo {
	repo := &fakeTripRepo{trips: make(map[string]*entity.Trip)}
	for _, trip := range trips {
		clone := *trip
		repo.trips[trip.ID] = &clone
	}
	return repo
}

func (r *fakeTripRepo) FindDue(ctx context.Context, now time.Time, limit int) ([]*entity.Trip, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var due []*entity.Trip
	for _, trip := range r.trips {
		if len(due) >= limit {
			break
		}
		if trip.Status.IsTerminal() || trip.NextPollDue == nil {
			continue
		}
		if !trip.NextPollDue.After(now) {
			clone := *trip
			due = append(due, &clone)
		}
	}
	return due, nil
}

func (r *fakeTripRepo) FindApproachingDeparture(ctx context.Context, from, to time.Time) ([]*entity.Trip, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.Trip
	for _, trip := range r.trips {
		if trip.Status.IsTerminal() {
			continue
		}
		if !trip.DepartureUTC.Before(from) && trip.DepartureUTC.Before(to) {
			clone := *trip
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (r *fakeTripRepo) UpdateAfterPoll(ctx context.Context, tripID string, update repository.TripPollUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	trip, ok := r.trips[tripID]
	if !ok {
		return errors.New("trip not found")
	}
	trip.Status = update.Status
	if update.DepartureGate != "" {
		trip.DepartureGate = update.DepartureGate
	}
	trip.EstDepartureUTC = update.EstDepartureUTC
	trip.ActDepartureUTC = update.ActDepartureUTC
	trip.EstArrivalUTC = update.EstArrivalUTC
	trip.ActArrivalUTC = update.ActArrivalUTC
	trip.NextPollDue = update.NextPollDue
	return nil
}

func (r *fakeTripRepo) get(tripID string) *entity.Trip {
	r.mu.Lock()
	defer r.mu.Unlock()
	if trip, ok := r.trips[tripID]; ok {
		clone := *trip
		return &clone
	}
	return nil
}

// fakeSnapshotRepo is an in-memory append-only history
type fakeSnapshotRepo struct {
	mu        sync.Mutex
	snapshots map[string][]*entity.FlightSnapshot
}

func newFakeSnapshotRepo() *fakeSnapshotRepo {
	return &fakeSnapshotRepo{snapshots: make(map[string][]*entity.FlightSnapshot)}
}

func (r *fakeSnapshotRepo) Append(ctx context.Context, snapshot *entity.FlightSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *snapshot
	r.snapshots[snapshot.TripID] = append(r.snapshots[snapshot.TripID], &clone)
	return nil
}

func (r *fakeSnapshotRepo) LatestByTrip(ctx context.Context, tripID string) (*entity.FlightSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	history := r.snapshots[tripID]
	if len(history) == 0 {
		return nil, nil
	}
	clone := *history[len(history)-1]
	return &clone, nil
}

func (r *fakeSnapshotRepo) DeleteByTrip(ctx context.Context, tripID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.snapshots, tripID)
	return nil
}

func (r *fakeSnapshotRepo) count(tripID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snapshots[tripID])
}

// fakeSettingsRepo returns stored overrides or defaults
type fakeSettingsRepo struct {
	mu       sync.Mutex
	settings map[string]*entity.TenantSettings
}

func newFakeSettingsRepo() *fakeSettingsRepo {
	return &fakeSettingsRepo{settings: make(map[string]*entity.TenantSettings)}
}

func (r *fakeSettingsRepo) put(s *entity.TenantSettings) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settings[s.TenantID] = s
}

func (r *fakeSettingsRepo) GetSettings(ctx context.Context, tenantID string) (*entity.TenantSettings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.settings[tenantID]; ok {
		clone := *s
		return &clone, nil
	}
	return entity.DefaultTenantSettings(tenantID), nil
}

// fakeTimezoneRepo maps airport codes to IANA zone names
type fakeTimezoneRepo struct {
	zones map[string]string
}

func (r *fakeTimezoneRepo) GetByAirportCode(ctx context.Context, code string) (*entity.Timezone, error) {
	name, ok := r.zones[code]
	if !ok {
		return nil, errors.New("airport not found")
	}
	return &entity.Timezone{AirportCode: code, TzName: name}, nil
}

// fakeAirlineRepo maps carrier prefixes to display names
type fakeAirlineRepo struct {
	airlines map[string]string
}

func (r *fakeAirlineRepo) GetByCode(ctx context.Context, code string) (*entity.Airline, error) {
	name, ok := r.airlines[code]
	if !ok {
		return nil, errors.New("airline not found")
	}
	return &entity.Airline{Code: code, Name: name}, nil
}

// fakeMessenger records sends and pops queued errors
type fakeMessenger struct {
	mu    sync.Mutex
	calls []fakeSend
	errs  []error
}

type fakeSend struct {
	Recipient  string
	TemplateID string
	Variables  map[string]string
}

func (m *fakeMessenger) SendTemplate(ctx context.Context, recipient, templateID string, variables map[string]string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, fakeSend{Recipient: recipient, TemplateID: templateID, Variables: variables})
	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		return "", err
	}
	return fmt.Sprintf("msg-%d", len(m.calls)), nil
}

func (m *fakeMessenger) failWith(errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs = append(m.errs, errs...)
}

func (m *fakeMessenger) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// fakeStatusRepo returns queued snapshots, or errors for flagged flights
type fakeStatusRepo struct {
	mu        sync.Mutex
	snapshots map[string]*entity.FlightSnapshot
	failing   map[string]bool
	calls     int
	block     chan struct{} // when set, FetchStatus blocks until closed
}

func newFakeStatusRepo() *fakeStatusRepo {
	return &fakeStatusRepo{
		snapshots: make(map[string]*entity.FlightSnapshot),
		failing:   make(map[string]bool),
	}
}

func (r *fakeStatusRepo) set(flightNumber string, snapshot *entity.FlightSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots[flightNumber] = snapshot
}

func (r *fakeStatusRepo) fail(flightNumber string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failing[flightNumber] = true
}

func (r *fakeStatusRepo) FetchStatus(ctx context.Context, flightNumber string, dateFrom, dateTo time.Time) (*entity.FlightSnapshot, error) {
	r.mu.Lock()
	block := r.block
	r.calls++
	r.mu.Unlock()
	if block != nil {
		<-block
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failing[flightNumber] {
		return nil, &entity.ProviderError{StatusCode: 503, Message: "upstream unavailable"}
	}
	snapshot, ok := r.snapshots[flightNumber]
	if !ok {
		return nil, &entity.ProviderError{Message: "no flight data in response"}
	}
	clone := *snapshot
	return &clone, nil
}

func (r *fakeStatusRepo) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}
