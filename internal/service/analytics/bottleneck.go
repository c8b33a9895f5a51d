package analytics

import (
	"context"
	"fmt"
	"sort"

	"github.com/marketsage/journey-engine/internal/domain"
)

// Flagging and severity thresholds for the bottleneck report.
const (
	dropOffFlag   = 0.3
	dropOffHigh   = 0.5
	goalHighRatio = 0.7 // actual < 0.7 * goal
	goalMedRatio  = 0.85
	durHighRatio  = 1.5 // actual > 1.5 * expected
	durMedRatio   = 1.2
)

// IdentifyBottlenecks recomputes the journey's analytics and flags stages
// whose drop-off, conversion, or dwell time misses their targets. The report
// is sorted most severe first.
func (s *Service) IdentifyBottlenecks(ctx context.Context, orgID, journeyID string) ([]domain.Bottleneck, error) {
	snap, err := s.CalculateJourneyAnalytics(ctx, orgID, journeyID)
	if err != nil {
		return nil, err
	}
	j, err := s.repo.GetJourney(ctx, orgID, journeyID)
	if err != nil {
		return nil, err
	}

	stages := make(map[string]domain.Stage, len(j.Stages))
	for _, st := range j.Stages {
		stages[st.ID] = st
	}

	var out []domain.Bottleneck
	for _, ss := range snap.Stages {
		if ss.EnteredCount == 0 {
			continue // no traffic, no signal
		}
		st := stages[ss.StageID]
		b := evaluateStage(st, ss)
		if b != nil {
			out = append(out, *b)
		}
	}

	sort.SliceStable(out, func(i, k int) bool {
		if out[i].Severity != out[k].Severity {
			return out[i].Severity.Rank() < out[k].Severity.Rank()
		}
		return out[i].DropOffRate > out[k].DropOffRate
	})
	return out, nil
}

// evaluateStage returns a bottleneck when the stage misses any target, nil
// otherwise.
func evaluateStage(st domain.Stage, ss domain.StageSnapshot) *domain.Bottleneck {
	dropOff := 1 - ss.ConversionRate

	goalMissed := st.ConversionGoal != nil && ss.ConversionRate < *st.ConversionGoal
	durationExceeded := st.ExpectedDurationHours != nil && ss.AverageDurationHours > *st.ExpectedDurationHours

	if dropOff <= dropOffFlag && !goalMissed && !durationExceeded {
		return nil
	}

	b := &domain.Bottleneck{
		StageID:               ss.StageID,
		StageName:             ss.StageName,
		DropOffRate:           dropOff,
		ConversionRate:        ss.ConversionRate,
		AverageDurationHours:  ss.AverageDurationHours,
		ConversionGoal:        st.ConversionGoal,
		ExpectedDurationHours: st.ExpectedDurationHours,
		Severity:              severity(dropOff, st, ss),
	}

	if dropOff > dropOffFlag {
		b.Recommendations = append(b.Recommendations,
			fmt.Sprintf("drop-off rate %.0f%%: improve engagement in this stage", dropOff*100))
	}
	if goalMissed {
		b.Recommendations = append(b.Recommendations,
			fmt.Sprintf("stage conversion %.0f%% is below the %.0f%% goal: review stage content and follow-ups",
				ss.ConversionRate*100, *st.ConversionGoal*100))
	}
	if durationExceeded {
		b.Recommendations = append(b.Recommendations,
			"average duration exceeds the expected dwell time: streamline the stage")
	}
	if ss.EnteredCount > 0 && ss.ExitedCount == 0 {
		b.Recommendations = append(b.Recommendations,
			"contacts enter but never exit: check transition configuration")
	}
	return b
}

func severity(dropOff float64, st domain.Stage, ss domain.StageSnapshot) domain.BottleneckSeverity {
	switch {
	case dropOff > dropOffHigh,
		st.ConversionGoal != nil && ss.ConversionRate < goalHighRatio**st.ConversionGoal,
		st.ExpectedDurationHours != nil && ss.AverageDurationHours > durHighRatio**st.ExpectedDurationHours:
		return domain.SeverityHigh
	case dropOff > dropOffFlag,
		st.ConversionGoal != nil && ss.ConversionRate < goalMedRatio**st.ConversionGoal,
		st.ExpectedDurationHours != nil && ss.AverageDurationHours > durMedRatio**st.ExpectedDurationHours:
		return domain.SeverityMedium
	}
	return domain.SeverityLow
}
