package progression_test

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/marketsage/journey-engine/internal/domain"
	"github.com/marketsage/journey-engine/internal/events"
	"github.com/marketsage/journey-engine/internal/repository/memory"
	"github.com/marketsage/journey-engine/internal/service/journey"
	"github.com/marketsage/journey-engine/internal/service/progression"
)

const (
	testOrg     = "11111111-1111-1111-1111-111111111111"
	testContact = "33333333-3333-3333-3333-333333333333"
)

type captureNotifier struct {
	changes []events.StageChanged
}

func (n *captureNotifier) NotifyStageChanged(_ context.Context, ev events.StageChanged) error {
	n.changes = append(n.changes, ev)
	return nil
}

// fixture builds Signup -> Verified -> Active with linear transitions and
// returns the services sharing one store.
type fixture struct {
	journeys *journey.Service
	svc      *progression.Service
	notifier *captureNotifier
	j        *domain.Journey
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	js := journey.NewService(store.Journeys())
	n := &captureNotifier{}
	ps := progression.NewService(store.Progressions(), n)

	j, err := js.Create(context.Background(), testOrg, journey.CreateInput{
		Name: "Onboarding",
		Stages: []journey.StageInput{
			{Name: "Signup", Order: 0, IsEntryPoint: true},
			{Name: "Verified", Order: 1},
			{Name: "Active", Order: 2, IsExitPoint: true},
		},
	})
	if err != nil {
		t.Fatalf("create journey: %v", err)
	}
	for i := 0; i < len(j.Stages)-1; i++ {
		_, err := js.AddTransition(context.Background(), testOrg, j.ID, journey.TransitionInput{
			FromStageID: j.Stages[i].ID,
			ToStageID:   j.Stages[i+1].ID,
			TriggerType: domain.TriggerEvent,
		})
		if err != nil {
			t.Fatalf("add transition: %v", err)
		}
	}
	return &fixture{journeys: js, svc: ps, notifier: n, j: j}
}

func (f *fixture) stage(name string) domain.Stage {
	for _, s := range f.j.Stages {
		if s.Name == name {
			return s
		}
	}
	panic("unknown stage " + name)
}

func TestEnroll(t *testing.T) {
	f := newFixture(t)

	cj, created, err := f.svc.Enroll(context.Background(), testOrg, f.j.ID, testContact)
	if err != nil {
		t.Fatalf("enroll: %v", err)
	}
	if !created {
		t.Fatal("expected created=true on first enrollment")
	}
	if cj.Status != domain.ProgressionActive {
		t.Fatalf("expected active status, got %s", cj.Status)
	}
	if cj.CurrentStageID != f.stage("Signup").ID {
		t.Fatal("expected enrollment at entry stage")
	}

	got, err := f.svc.Get(context.Background(), testOrg, cj.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.Visits) != 1 || got.Visits[0].ExitedAt != nil {
		t.Fatalf("expected one open visit, got %+v", got.Visits)
	}
}

func TestEnrollIdempotent(t *testing.T) {
	f := newFixture(t)

	first, _, err := f.svc.Enroll(context.Background(), testOrg, f.j.ID, testContact)
	if err != nil {
		t.Fatalf("enroll: %v", err)
	}
	second, created, err := f.svc.Enroll(context.Background(), testOrg, f.j.ID, testContact)
	if err != nil {
		t.Fatalf("re-enroll: %v", err)
	}
	if created {
		t.Fatal("expected created=false for open enrollment")
	}
	if second.ID != first.ID {
		t.Fatalf("expected existing record %s, got %s", first.ID, second.ID)
	}
}

func TestEnrollAgainAfterDrop(t *testing.T) {
	f := newFixture(t)

	first, _, _ := f.svc.Enroll(context.Background(), testOrg, f.j.ID, testContact)
	if err := f.svc.Drop(context.Background(), testOrg, first.ID, "bounced"); err != nil {
		t.Fatalf("drop: %v", err)
	}

	second, created, err := f.svc.Enroll(context.Background(), testOrg, f.j.ID, testContact)
	if err != nil {
		t.Fatalf("enroll after drop: %v", err)
	}
	if !created || second.ID == first.ID {
		t.Fatal("expected a fresh enrollment after terminal drop")
	}
}

func TestEnrollInactiveJourney(t *testing.T) {
	f := newFixture(t)
	f.journeys.Deactivate(context.Background(), testOrg, f.j.ID)

	_, _, err := f.svc.Enroll(context.Background(), testOrg, f.j.ID, testContact)
	if !errors.Is(err, progression.ErrJourneyInactive) {
		t.Fatalf("expected ErrJourneyInactive, got %v", err)
	}
}

func TestEnrollNoEntryPoint(t *testing.T) {
	store := memory.NewStore()
	js := journey.NewService(store.Journeys())
	ps := progression.NewService(store.Progressions(), nil)

	j, _ := js.Create(context.Background(), testOrg, journey.CreateInput{
		Name:   "Headless",
		Stages: []journey.StageInput{{Name: "Middle"}},
	})
	_, _, err := ps.Enroll(context.Background(), testOrg, j.ID, testContact)
	if !errors.Is(err, progression.ErrNoEntryPoint) {
		t.Fatalf("expected ErrNoEntryPoint, got %v", err)
	}
}

func TestAdvance(t *testing.T) {
	f := newFixture(t)
	cj, _, _ := f.svc.Enroll(context.Background(), testOrg, f.j.ID, testContact)

	got, err := f.svc.AdvanceStage(context.Background(), testOrg, cj.ID, f.stage("Verified").ID, "email_opened")
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if got.CurrentStageID != f.stage("Verified").ID {
		t.Fatal("expected pointer moved to Verified")
	}
	if got.Status != domain.ProgressionActive {
		t.Fatalf("expected still active, got %s", got.Status)
	}

	full, _ := f.svc.Get(context.Background(), testOrg, cj.ID)
	if len(full.Visits) != 2 {
		t.Fatalf("expected 2 visits, got %d", len(full.Visits))
	}
	if full.Visits[0].ExitedAt == nil || full.Visits[0].DurationSeconds == nil {
		t.Fatal("expected first visit closed with duration")
	}
	if full.Visits[1].ExitedAt != nil {
		t.Fatal("expected second visit open")
	}
	if len(full.Events) != 1 || full.Events[0].TriggerSource != "email_opened" {
		t.Fatalf("expected one transition event with trigger source, got %+v", full.Events)
	}
}

func TestAdvanceSkipStage(t *testing.T) {
	f := newFixture(t)
	cj, _, _ := f.svc.Enroll(context.Background(), testOrg, f.j.ID, testContact)

	// No Signup -> Active transition is defined.
	_, err := f.svc.AdvanceStage(context.Background(), testOrg, cj.ID, f.stage("Active").ID, "")
	if !errors.Is(err, progression.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestAdvanceCompletesOnExit(t *testing.T) {
	f := newFixture(t)
	cj, _, _ := f.svc.Enroll(context.Background(), testOrg, f.j.ID, testContact)

	if _, err := f.svc.AdvanceStage(context.Background(), testOrg, cj.ID, f.stage("Verified").ID, ""); err != nil {
		t.Fatalf("advance to Verified: %v", err)
	}
	got, err := f.svc.AdvanceStage(context.Background(), testOrg, cj.ID, f.stage("Active").ID, "")
	if err != nil {
		t.Fatalf("advance to Active: %v", err)
	}
	if got.Status != domain.ProgressionCompleted {
		t.Fatalf("expected completed, got %s", got.Status)
	}
	if got.CompletedAt == nil {
		t.Fatal("expected CompletedAt set")
	}

	full, _ := f.svc.Get(context.Background(), testOrg, cj.ID)
	for _, v := range full.Visits {
		if v.ExitedAt == nil {
			t.Fatalf("expected no open visits after completion, visit %s open", v.ID)
		}
	}

	// Terminal journeys refuse further movement.
	_, err = f.svc.AdvanceStage(context.Background(), testOrg, cj.ID, f.stage("Verified").ID, "")
	if !errors.Is(err, progression.ErrJourneyNotActive) {
		t.Fatalf("expected ErrJourneyNotActive after completion, got %v", err)
	}
}

func TestAdvanceNotifies(t *testing.T) {
	f := newFixture(t)
	cj, _, _ := f.svc.Enroll(context.Background(), testOrg, f.j.ID, testContact)

	f.svc.AdvanceStage(context.Background(), testOrg, cj.ID, f.stage("Verified").ID, "")
	f.svc.AdvanceStage(context.Background(), testOrg, cj.ID, f.stage("Active").ID, "")

	if len(f.notifier.changes) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(f.notifier.changes))
	}
	last := f.notifier.changes[1]
	if last.ContactID != testContact || !last.Completed {
		t.Fatalf("expected completion notification for contact, got %+v", last)
	}
}

func TestPauseResume(t *testing.T) {
	f := newFixture(t)
	cj, _, _ := f.svc.Enroll(context.Background(), testOrg, f.j.ID, testContact)

	if err := f.svc.Pause(context.Background(), testOrg, cj.ID); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if err := f.svc.Pause(context.Background(), testOrg, cj.ID); !errors.Is(err, progression.ErrJourneyNotActive) {
		t.Fatalf("expected ErrJourneyNotActive on double pause, got %v", err)
	}
	if _, err := f.svc.AdvanceStage(context.Background(), testOrg, cj.ID, f.stage("Verified").ID, ""); !errors.Is(err, progression.ErrJourneyNotActive) {
		t.Fatalf("expected ErrJourneyNotActive advancing paused journey, got %v", err)
	}

	if err := f.svc.Resume(context.Background(), testOrg, cj.ID); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if err := f.svc.Resume(context.Background(), testOrg, cj.ID); !errors.Is(err, progression.ErrNotPaused) {
		t.Fatalf("expected ErrNotPaused on double resume, got %v", err)
	}
}

func TestDrop(t *testing.T) {
	f := newFixture(t)
	cj, _, _ := f.svc.Enroll(context.Background(), testOrg, f.j.ID, testContact)

	if err := f.svc.Drop(context.Background(), testOrg, cj.ID, "unsubscribed"); err != nil {
		t.Fatalf("drop: %v", err)
	}

	got, _ := f.svc.Get(context.Background(), testOrg, cj.ID)
	if got.Status != domain.ProgressionDropped {
		t.Fatalf("expected dropped, got %s", got.Status)
	}
	if got.DroppedAt == nil || got.DropReason != "unsubscribed" {
		t.Fatalf("expected drop metadata, got %+v", got)
	}
	if got.Visits[0].ExitedAt == nil {
		t.Fatal("expected open visit closed at drop time")
	}

	if err := f.svc.Drop(context.Background(), testOrg, cj.ID, "again"); !errors.Is(err, progression.ErrTerminal) {
		t.Fatalf("expected ErrTerminal on double drop, got %v", err)
	}
	if err := f.svc.Resume(context.Background(), testOrg, cj.ID); !errors.Is(err, progression.ErrNotPaused) {
		t.Fatalf("expected ErrNotPaused resuming dropped journey, got %v", err)
	}
}

func TestDropWhilePaused(t *testing.T) {
	f := newFixture(t)
	cj, _, _ := f.svc.Enroll(context.Background(), testOrg, f.j.ID, testContact)

	f.svc.Pause(context.Background(), testOrg, cj.ID)
	if err := f.svc.Drop(context.Background(), testOrg, cj.ID, ""); err != nil {
		t.Fatalf("drop paused journey: %v", err)
	}
}

func TestListForContact(t *testing.T) {
	f := newFixture(t)
	f.svc.Enroll(context.Background(), testOrg, f.j.ID, testContact)

	list, err := f.svc.ListForContact(context.Background(), testOrg, testContact)
	if err != nil {
		t.Fatalf("list for contact: %v", err)
	}
	if len(list) != 1 || list[0].JourneyID != f.j.ID {
		t.Fatalf("expected one enrollment in journey, got %+v", list)
	}

	list, _ = f.svc.ListForContact(context.Background(), "22222222-2222-2222-2222-222222222222", testContact)
	if len(list) != 0 {
		t.Fatal("expected no enrollments visible to foreign org")
	}
}

func TestListContactsInStage(t *testing.T) {
	f := newFixture(t)
	a, _, _ := f.svc.Enroll(context.Background(), testOrg, f.j.ID, testContact)
	f.svc.Enroll(context.Background(), testOrg, f.j.ID, "44444444-4444-4444-4444-444444444444")
	f.svc.AdvanceStage(context.Background(), testOrg, a.ID, f.stage("Verified").ID, "")

	inSignup, err := f.svc.ListContactsInStage(context.Background(), f.stage("Signup").ID)
	if err != nil {
		t.Fatalf("list contacts in stage: %v", err)
	}
	if len(inSignup) != 1 {
		t.Fatalf("expected 1 contact still in Signup, got %d", len(inSignup))
	}
	inVerified, _ := f.svc.ListContactsInStage(context.Background(), f.stage("Verified").ID)
	if len(inVerified) != 1 || inVerified[0].ID != a.ID {
		t.Fatalf("expected advanced contact in Verified, got %+v", inVerified)
	}
}

// TestStatusGraphNeverViolated runs a random operation sequence and checks
// every observed status change against the legal transition graph.
func TestStatusGraphNeverViolated(t *testing.T) {
	f := newFixture(t)
	cj, _, err := f.svc.Enroll(context.Background(), testOrg, f.j.ID, testContact)
	if err != nil {
		t.Fatalf("enroll: %v", err)
	}

	rng := rand.New(rand.NewSource(1))
	prev := cj.Status
	stageIDs := []string{f.stage("Signup").ID, f.stage("Verified").ID, f.stage("Active").ID}

	for i := 0; i < 200; i++ {
		switch rng.Intn(4) {
		case 0:
			f.svc.Pause(context.Background(), testOrg, cj.ID)
		case 1:
			f.svc.Resume(context.Background(), testOrg, cj.ID)
		case 2:
			f.svc.Drop(context.Background(), testOrg, cj.ID, "")
		case 3:
			f.svc.AdvanceStage(context.Background(), testOrg, cj.ID, stageIDs[rng.Intn(len(stageIDs))], "")
		}

		got, err := f.svc.Get(context.Background(), testOrg, cj.ID)
		if err != nil {
			t.Fatalf("step %d: get: %v", i, err)
		}
		if got.Status != prev && !prev.CanTransitionTo(got.Status) {
			t.Fatalf("step %d: illegal status change %s -> %s", i, prev, got.Status)
		}
		prev = got.Status

		open := 0
		for _, v := range got.Visits {
			if v.ExitedAt == nil {
				open++
			}
		}
		if got.Status.IsOpen() && open != 1 {
			t.Fatalf("step %d: open journey has %d open visits", i, open)
		}
		if got.Status.IsTerminal() && open != 0 {
			t.Fatalf("step %d: terminal journey has %d open visits", i, open)
		}
	}
}

func TestGetUnknown(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Get(context.Background(), testOrg, "55555555-5555-5555-5555-555555555555")
	if !errors.Is(err, progression.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
