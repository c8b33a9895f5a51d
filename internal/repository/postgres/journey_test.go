package postgres_test

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/marketsage/journey-engine/internal/domain"
	"github.com/marketsage/journey-engine/internal/repository"
	"github.com/marketsage/journey-engine/internal/repository/postgres"
	"github.com/marketsage/journey-engine/internal/service/journey"
)

func TestGetJourneyConnectionFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT (.+) FROM journeys").
		WillReturnError(errors.New("driver: bad connection"))

	repo := postgres.NewJourneyRepo(db)
	_, err = repo.GetJourney(context.Background(), "org-1", "j-1")
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, repository.ErrUnavailable) {
		t.Fatalf("connection failure not classified as unavailable: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestGetJourneyNoRowsIsNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT (.+) FROM journeys").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "organization_id", "created_by_id", "name",
			"description", "active", "created_at", "updated_at",
		}))

	repo := postgres.NewJourneyRepo(db)
	_, err = repo.GetJourney(context.Background(), "org-1", "j-1")
	if !errors.Is(err, journey.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if errors.Is(err, repository.ErrUnavailable) {
		t.Fatalf("missing row must not look like an outage: %v", err)
	}
}

func TestCreateStageServerErrorKeepsIdentity(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	mock.ExpectExec("INSERT INTO journey_stages").
		WillReturnError(&pq.Error{Code: "23503"})

	repo := postgres.NewJourneyRepo(db)
	_, err = repo.CreateStage(context.Background(), &domain.Stage{
		ID:        "stage-1",
		JourneyID: "j-missing",
		Name:      "Signup",
	})
	if err == nil {
		t.Fatal("expected error")
	}
	// The server answered; this is a statement failure, not an outage.
	if errors.Is(err, repository.ErrUnavailable) {
		t.Fatalf("server-side error misclassified as unavailable: %v", err)
	}
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != "23503" {
		t.Fatalf("expected wrapped pq error, got %v", err)
	}
}
