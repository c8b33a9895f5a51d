// Package memory implements the service repository interfaces with
// mutex-guarded maps. It backs unit tests and local development; production
// deployments use repository/postgres.
package memory

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/marketsage/journey-engine/internal/domain"
)

// Store is the shared in-memory state. The per-service repository types
// (JourneyRepo, ProgressionRepo, AnalyticsRepo, MetricsRepo) wrap one Store
// so that graph, progression, and analytics data stay consistent with each
// other, mirroring a single database.
type Store struct {
	mu sync.Mutex

	journeys     map[string]*domain.Journey
	stages       map[string]*domain.Stage
	transitions  map[string]*domain.Transition
	contacts     map[string]*domain.ContactJourney
	visits       map[string]*domain.StageVisit
	events       map[string]*domain.TransitionEvent
	metrics      map[string]*domain.Metric
	stageMetrics map[string]*domain.StageMetric       // keyed metricID + "/" + stageID
	snapshots    map[string]*domain.AnalyticsSnapshot // keyed journeyID + "/" + date
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		journeys:     make(map[string]*domain.Journey),
		stages:       make(map[string]*domain.Stage),
		transitions:  make(map[string]*domain.Transition),
		contacts:     make(map[string]*domain.ContactJourney),
		visits:       make(map[string]*domain.StageVisit),
		events:       make(map[string]*domain.TransitionEvent),
		metrics:      make(map[string]*domain.Metric),
		stageMetrics: make(map[string]*domain.StageMetric),
		snapshots:    make(map[string]*domain.AnalyticsSnapshot),
	}
}

// Journeys returns a journey repository over the store.
func (s *Store) Journeys() *JourneyRepo { return &JourneyRepo{s} }

// Progressions returns a progression repository over the store.
func (s *Store) Progressions() *ProgressionRepo { return &ProgressionRepo{s} }

// Analytics returns an analytics repository over the store.
func (s *Store) Analytics() *AnalyticsRepo { return &AnalyticsRepo{s} }

// Metrics returns a metrics repository over the store.
func (s *Store) Metrics() *MetricsRepo { return &MetricsRepo{s} }

// journeyWithGraph copies a journey and attaches its ordered stages and
// transitions. Caller holds the lock.
func (s *Store) journeyWithGraph(orgID, id string) *domain.Journey {
	j, ok := s.journeys[id]
	if !ok || j.OrganizationID != orgID {
		return nil
	}
	cp := *j
	cp.Stages = nil
	cp.Transitions = nil
	for _, st := range s.stages {
		if st.JourneyID == id {
			cp.Stages = append(cp.Stages, *st)
		}
	}
	sort.SliceStable(cp.Stages, func(i, k int) bool {
		if cp.Stages[i].Order != cp.Stages[k].Order {
			return cp.Stages[i].Order < cp.Stages[k].Order
		}
		return cp.Stages[i].Name < cp.Stages[k].Name
	})
	for _, t := range s.transitions {
		if t.JourneyID == id {
			cp.Transitions = append(cp.Transitions, *t)
		}
	}
	sort.SliceStable(cp.Transitions, func(i, k int) bool {
		return cp.Transitions[i].CreatedAt.Before(cp.Transitions[k].CreatedAt)
	})
	return &cp
}

// matches reports whether a journey passes a search term.
func matches(j *domain.Journey, search string) bool {
	if search == "" {
		return true
	}
	needle := strings.ToLower(search)
	return strings.Contains(strings.ToLower(j.Name), needle) ||
		strings.Contains(strings.ToLower(j.Description), needle)
}

func snapshotKey(journeyID string, date time.Time) string {
	return journeyID + "/" + date.UTC().Format("2006-01-02")
}
