package journey_test

import (
	"context"
	"errors"
	"testing"

	"github.com/marketsage/journey-engine/internal/domain"
	"github.com/marketsage/journey-engine/internal/repository/memory"
	"github.com/marketsage/journey-engine/internal/service/journey"
	"github.com/marketsage/journey-engine/internal/service/progression"
)

const testOrg = "11111111-1111-1111-1111-111111111111"

func newSvc() (*journey.Service, *memory.Store) {
	store := memory.NewStore()
	return journey.NewService(store.Journeys()), store
}

func onboardingInput() journey.CreateInput {
	return journey.CreateInput{
		Name:        "Onboarding",
		Description: "signup to activation",
		Stages: []journey.StageInput{
			{Name: "Signup", Order: 0, IsEntryPoint: true},
			{Name: "Verified", Order: 1},
			{Name: "Active", Order: 2, IsExitPoint: true},
		},
	}
}

func TestCreateWithStages(t *testing.T) {
	svc, _ := newSvc()

	j, err := svc.Create(context.Background(), testOrg, onboardingInput())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !j.Active {
		t.Fatal("expected new journey to be active")
	}

	got, err := svc.Get(context.Background(), testOrg, j.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.Stages) != 3 {
		t.Fatalf("expected 3 stages, got %d", len(got.Stages))
	}
	if got.Stages[0].Name != "Signup" || !got.Stages[0].IsEntryPoint {
		t.Fatalf("expected Signup entry stage first, got %+v", got.Stages[0])
	}
}

func TestCreateValidation(t *testing.T) {
	svc, _ := newSvc()

	if _, err := svc.Create(context.Background(), testOrg, journey.CreateInput{}); err == nil {
		t.Fatal("expected error for empty name")
	}

	bad := 1.5
	_, err := svc.Create(context.Background(), testOrg, journey.CreateInput{
		Name:   "J",
		Stages: []journey.StageInput{{Name: "S", ConversionGoal: &bad}},
	})
	if err == nil {
		t.Fatal("expected error for conversion goal > 1")
	}
}

func TestGetWrongOrg(t *testing.T) {
	svc, _ := newSvc()
	j, _ := svc.Create(context.Background(), testOrg, onboardingInput())

	_, err := svc.Get(context.Background(), "22222222-2222-2222-2222-222222222222", j.ID)
	if !errors.Is(err, journey.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign org, got %v", err)
	}
}

func TestAddTransition(t *testing.T) {
	svc, _ := newSvc()
	j, _ := svc.Create(context.Background(), testOrg, onboardingInput())

	tr, err := svc.AddTransition(context.Background(), testOrg, j.ID, journey.TransitionInput{
		FromStageID: j.Stages[0].ID,
		ToStageID:   j.Stages[1].ID,
		TriggerType: domain.TriggerEvent,
	})
	if err != nil {
		t.Fatalf("add transition: %v", err)
	}

	got, _ := svc.Get(context.Background(), testOrg, j.ID)
	if len(got.Transitions) != 1 || got.Transitions[0].ID != tr.ID {
		t.Fatalf("expected transition %s on journey, got %+v", tr.ID, got.Transitions)
	}
}

func TestAddTransitionCrossJourney(t *testing.T) {
	svc, _ := newSvc()
	a, _ := svc.Create(context.Background(), testOrg, onboardingInput())
	b, _ := svc.Create(context.Background(), testOrg, onboardingInput())

	_, err := svc.AddTransition(context.Background(), testOrg, a.ID, journey.TransitionInput{
		FromStageID: a.Stages[0].ID,
		ToStageID:   b.Stages[1].ID,
		TriggerType: domain.TriggerManual,
	})
	if !errors.Is(err, journey.ErrStageNotFound) && !errors.Is(err, journey.ErrCrossJourneyTransition) {
		t.Fatalf("expected cross-journey rejection, got %v", err)
	}
}

func TestAddTransitionUnknownTrigger(t *testing.T) {
	svc, _ := newSvc()
	j, _ := svc.Create(context.Background(), testOrg, onboardingInput())

	_, err := svc.AddTransition(context.Background(), testOrg, j.ID, journey.TransitionInput{
		FromStageID: j.Stages[0].ID,
		ToStageID:   j.Stages[1].ID,
		TriggerType: "telepathy",
	})
	if err == nil {
		t.Fatal("expected error for unknown trigger type")
	}
}

func TestDeleteStageInUse(t *testing.T) {
	svc, store := newSvc()
	j, _ := svc.Create(context.Background(), testOrg, onboardingInput())

	// Put a contact into the entry stage.
	prog := progression.NewService(store.Progressions(), nil)
	if _, _, err := prog.Enroll(context.Background(), testOrg, j.ID, "33333333-3333-3333-3333-333333333333"); err != nil {
		t.Fatalf("enroll: %v", err)
	}

	err := svc.DeleteStage(context.Background(), testOrg, j.ID, j.Stages[0].ID)
	if !errors.Is(err, journey.ErrStageInUse) {
		t.Fatalf("expected ErrStageInUse, got %v", err)
	}
	var inUse *journey.StageInUseError
	if !errors.As(err, &inUse) || inUse.OpenVisits != 1 {
		t.Fatalf("expected 1 open visit in error, got %+v", err)
	}

	// A stage nobody occupies deletes fine.
	if err := svc.DeleteStage(context.Background(), testOrg, j.ID, j.Stages[1].ID); err != nil {
		t.Fatalf("delete unused stage: %v", err)
	}
}

func TestDeleteJourneyCascade(t *testing.T) {
	svc, store := newSvc()
	j, _ := svc.Create(context.Background(), testOrg, onboardingInput())

	prog := progression.NewService(store.Progressions(), nil)
	cj, _, err := prog.Enroll(context.Background(), testOrg, j.ID, "33333333-3333-3333-3333-333333333333")
	if err != nil {
		t.Fatalf("enroll: %v", err)
	}

	if err := svc.Delete(context.Background(), testOrg, j.ID); err != nil {
		t.Fatalf("delete journey: %v", err)
	}
	if _, err := svc.Get(context.Background(), testOrg, j.ID); !errors.Is(err, journey.ErrNotFound) {
		t.Fatalf("expected journey gone, got %v", err)
	}
	if _, err := prog.Get(context.Background(), testOrg, cj.ID); !errors.Is(err, progression.ErrNotFound) {
		t.Fatalf("expected enrollment gone, got %v", err)
	}
}

func TestActivateDeactivate(t *testing.T) {
	svc, _ := newSvc()
	j, _ := svc.Create(context.Background(), testOrg, onboardingInput())

	if err := svc.Deactivate(context.Background(), testOrg, j.ID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	got, _ := svc.Get(context.Background(), testOrg, j.ID)
	if got.Active {
		t.Fatal("expected journey inactive")
	}

	if err := svc.Activate(context.Background(), testOrg, j.ID); err != nil {
		t.Fatalf("activate: %v", err)
	}
	got, _ = svc.Get(context.Background(), testOrg, j.ID)
	if !got.Active {
		t.Fatal("expected journey active")
	}
}

func TestListWithFilter(t *testing.T) {
	svc, _ := newSvc()

	a, _ := svc.Create(context.Background(), testOrg, journey.CreateInput{Name: "Onboarding"})
	svc.Create(context.Background(), testOrg, journey.CreateInput{Name: "Winback"})
	svc.Deactivate(context.Background(), testOrg, a.ID)

	list, total, err := svc.List(context.Background(), testOrg, journey.ListFilter{ActiveOnly: true, Limit: 10})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 1 || len(list) != 1 || list[0].Name != "Winback" {
		t.Fatalf("expected only Winback, got %+v (total %d)", list, total)
	}

	list, total, _ = svc.List(context.Background(), testOrg, journey.ListFilter{Search: "onboard", Limit: 10})
	if total != 1 || list[0].Name != "Onboarding" {
		t.Fatalf("expected search hit Onboarding, got %+v", list)
	}
}

func TestUpdateStageClearGoal(t *testing.T) {
	svc, _ := newSvc()
	goal := 0.8
	j, _ := svc.Create(context.Background(), testOrg, journey.CreateInput{
		Name:   "J",
		Stages: []journey.StageInput{{Name: "S", IsEntryPoint: true, ConversionGoal: &goal}},
	})

	err := svc.UpdateStage(context.Background(), testOrg, j.ID, j.Stages[0].ID, journey.StageUpdateFields{
		SetConversionGoal: true,
		ConversionGoal:    nil,
	})
	if err != nil {
		t.Fatalf("update stage: %v", err)
	}

	got, _ := svc.Get(context.Background(), testOrg, j.ID)
	if got.Stages[0].ConversionGoal != nil {
		t.Fatalf("expected goal cleared, got %v", *got.Stages[0].ConversionGoal)
	}
}
