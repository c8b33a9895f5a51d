package analytics

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/marketsage/journey-engine/internal/domain"
	"github.com/marketsage/journey-engine/internal/pkg/distlock"
)

// Config holds optional analytics service settings.
type Config struct {
	// Cache, when set, stores the most recent snapshot per journey and backs
	// the recompute lock.
	Cache    *redis.Client
	CacheTTL time.Duration

	// DB enables the advisory-lock fallback when Cache is nil.
	DB      *sql.DB
	LockTTL time.Duration
}

// Service computes journey analytics from progression history.
type Service struct {
	repo   Repository
	config Config
}

// NewService creates an analytics service. Zero-value config disables the
// snapshot cache and the recompute lock.
func NewService(repo Repository, config Config) *Service {
	if config.CacheTTL == 0 {
		config.CacheTTL = time.Minute
	}
	if config.LockTTL == 0 {
		config.LockTTL = 30 * time.Second
	}
	return &Service{repo: repo, config: config}
}

// CalculateJourneyAnalytics recomputes the journey's aggregate snapshot from
// raw progression data and upserts it for today's UTC date. Re-running within
// the same day overwrites the day's row.
func (s *Service) CalculateJourneyAnalytics(ctx context.Context, orgID, journeyID string) (*domain.AnalyticsSnapshot, error) {
	release, err := s.acquireRecomputeLock(ctx, journeyID)
	if err != nil {
		return nil, err
	}
	defer release()

	j, err := s.repo.GetJourney(ctx, orgID, journeyID)
	if err != nil {
		return nil, err
	}
	contacts, err := s.repo.ListContactJourneys(ctx, journeyID)
	if err != nil {
		return nil, fmt.Errorf("list contact journeys: %w", err)
	}
	visits, err := s.repo.ListJourneyVisits(ctx, journeyID)
	if err != nil {
		return nil, fmt.Errorf("list journey visits: %w", err)
	}

	now := time.Now().UTC()
	snap := buildSnapshot(j, contacts, visits, now)
	if err := s.repo.UpsertSnapshot(ctx, snap); err != nil {
		return nil, fmt.Errorf("upsert snapshot: %w", err)
	}

	s.cacheSnapshot(ctx, snap)
	return snap, nil
}

// LatestSnapshot returns the most recent snapshot, consulting the cache
// first.
func (s *Service) LatestSnapshot(ctx context.Context, orgID, journeyID string) (*domain.AnalyticsSnapshot, error) {
	if _, err := s.repo.GetJourney(ctx, orgID, journeyID); err != nil {
		return nil, err
	}
	if cached := s.cachedSnapshot(ctx, journeyID); cached != nil {
		return cached, nil
	}
	return s.repo.LatestSnapshot(ctx, journeyID)
}

// FlowDistribution reports the share of all enrolled contacts currently open
// in each stage, ordered by stage order.
func (s *Service) FlowDistribution(ctx context.Context, orgID, journeyID string) ([]domain.FlowDistributionEntry, error) {
	j, err := s.repo.GetJourney(ctx, orgID, journeyID)
	if err != nil {
		return nil, err
	}
	contacts, err := s.repo.ListContactJourneys(ctx, journeyID)
	if err != nil {
		return nil, fmt.Errorf("list contact journeys: %w", err)
	}
	visits, err := s.repo.ListJourneyVisits(ctx, journeyID)
	if err != nil {
		return nil, fmt.Errorf("list journey visits: %w", err)
	}

	openByStage := make(map[string]int)
	for _, v := range visits {
		if v.Open() {
			openByStage[v.StageID]++
		}
	}

	total := len(contacts)
	out := make([]domain.FlowDistributionEntry, 0, len(j.Stages))
	for _, st := range j.Stages {
		e := domain.FlowDistributionEntry{
			StageID:      st.ID,
			StageName:    st.Name,
			Order:        st.Order,
			ContactCount: openByStage[st.ID],
		}
		if total > 0 {
			e.Percentage = float64(e.ContactCount) / float64(total) * 100
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, k int) bool { return out[i].Order < out[k].Order })
	return out, nil
}

// completionBounds are the fixed histogram ranges in hours. A zero upper
// bound means unbounded.
var completionBounds = []struct {
	label    string
	min, max float64
}{
	{"under 1 hour", 0, 1},
	{"1-6 hours", 1, 6},
	{"6-24 hours", 6, 24},
	{"1-3 days", 24, 72},
	{"3-7 days", 72, 168},
	{"over 7 days", 168, 0},
}

// CompletionTimeDistribution buckets completed journeys' total duration into
// fixed ranges and reports count and percentage per bucket.
func (s *Service) CompletionTimeDistribution(ctx context.Context, orgID, journeyID string) ([]domain.CompletionBucket, error) {
	if _, err := s.repo.GetJourney(ctx, orgID, journeyID); err != nil {
		return nil, err
	}
	contacts, err := s.repo.ListContactJourneys(ctx, journeyID)
	if err != nil {
		return nil, fmt.Errorf("list contact journeys: %w", err)
	}

	buckets := make([]domain.CompletionBucket, len(completionBounds))
	for i, b := range completionBounds {
		buckets[i] = domain.CompletionBucket{Label: b.label, MinHours: b.min, MaxHours: b.max}
	}

	completed := 0
	for _, cj := range contacts {
		if cj.Status != domain.ProgressionCompleted || cj.CompletedAt == nil {
			continue
		}
		completed++
		hours := cj.Duration().Hours()
		for i, b := range completionBounds {
			if hours >= b.min && (b.max == 0 || hours < b.max) {
				buckets[i].Count++
				break
			}
		}
	}
	if completed > 0 {
		for i := range buckets {
			buckets[i].Percentage = float64(buckets[i].Count) / float64(completed) * 100
		}
	}
	return buckets, nil
}

// buildSnapshot derives a snapshot from raw progression records.
func buildSnapshot(j *domain.Journey, contacts []domain.ContactJourney, visits []domain.StageVisit, now time.Time) *domain.AnalyticsSnapshot {
	snap := &domain.AnalyticsSnapshot{
		ID:           uuid.New().String(),
		JourneyID:    j.ID,
		SnapshotDate: now.Truncate(24 * time.Hour),
		ComputedAt:   now,
	}

	var completedHours float64
	for _, cj := range contacts {
		snap.TotalContacts++
		switch cj.Status {
		case domain.ProgressionActive:
			snap.ActiveContacts++
		case domain.ProgressionPaused:
			snap.PausedContacts++
		case domain.ProgressionCompleted:
			snap.CompletedContacts++
			completedHours += cj.Duration().Hours()
		case domain.ProgressionDropped:
			snap.DroppedContacts++
		}
	}
	if snap.TotalContacts > 0 {
		snap.ConversionRate = float64(snap.CompletedContacts) / float64(snap.TotalContacts)
	}
	if snap.CompletedContacts > 0 {
		snap.AverageDurationHours = completedHours / float64(snap.CompletedContacts)
	}

	type stageAgg struct {
		open, entered, exited int
		closedHours           float64
	}
	aggs := make(map[string]*stageAgg, len(j.Stages))
	for _, st := range j.Stages {
		aggs[st.ID] = &stageAgg{}
	}
	for _, v := range visits {
		a := aggs[v.StageID]
		if a == nil {
			continue // stage deleted after the visit; not part of the report
		}
		a.entered++
		if v.Open() {
			a.open++
			continue
		}
		a.exited++
		a.closedHours += visitHours(v)
	}

	snap.Stages = make([]domain.StageSnapshot, 0, len(j.Stages))
	for _, st := range j.Stages {
		a := aggs[st.ID]
		ss := domain.StageSnapshot{
			StageID:             st.ID,
			StageName:           st.Name,
			Order:               st.Order,
			ContactsCurrentlyIn: a.open,
			EnteredCount:        a.entered,
			ExitedCount:         a.exited,
		}
		if a.entered > 0 {
			ss.ConversionRate = float64(a.exited) / float64(a.entered)
		}
		if a.exited > 0 {
			ss.AverageDurationHours = a.closedHours / float64(a.exited)
		}
		snap.Stages = append(snap.Stages, ss)
	}
	sort.SliceStable(snap.Stages, func(i, k int) bool { return snap.Stages[i].Order < snap.Stages[k].Order })
	return snap
}

func visitHours(v domain.StageVisit) float64 {
	if v.DurationSeconds != nil {
		return *v.DurationSeconds / 3600
	}
	if v.ExitedAt != nil {
		return v.ExitedAt.Sub(v.EnteredAt).Hours()
	}
	return 0
}

// acquireRecomputeLock takes the per-journey distributed lock. With no lock
// backend configured the returned release is a no-op.
func (s *Service) acquireRecomputeLock(ctx context.Context, journeyID string) (func(), error) {
	if s.config.Cache == nil && s.config.DB == nil {
		return func() {}, nil
	}
	lock := distlock.New(s.config.Cache, s.config.DB, "analytics:recompute:"+journeyID, s.config.LockTTL)
	ok, err := lock.TryAcquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire recompute lock: %w", err)
	}
	if !ok {
		return nil, ErrRecomputeInProgress
	}
	return func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			log.Printf("[analytics.Service] release recompute lock for %s: %v", journeyID, err)
		}
	}, nil
}

func (s *Service) cacheKey(journeyID string) string {
	return "journey:analytics:" + journeyID
}

func (s *Service) cacheSnapshot(ctx context.Context, snap *domain.AnalyticsSnapshot) {
	if s.config.Cache == nil {
		return
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return
	}
	if err := s.config.Cache.Set(ctx, s.cacheKey(snap.JourneyID), payload, s.config.CacheTTL).Err(); err != nil {
		log.Printf("[analytics.Service] cache snapshot for %s: %v", snap.JourneyID, err)
	}
}

func (s *Service) cachedSnapshot(ctx context.Context, journeyID string) *domain.AnalyticsSnapshot {
	if s.config.Cache == nil {
		return nil
	}
	payload, err := s.config.Cache.Get(ctx, s.cacheKey(journeyID)).Bytes()
	if err != nil {
		return nil
	}
	var snap domain.AnalyticsSnapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return nil
	}
	return &snap
}
