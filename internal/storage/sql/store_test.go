package sql

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/accessops/idm-access-manager/internal/domain"
	"github.com/jmoiron/sqlx"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New failed: %v", err)
	}
	store := newWithDB(sqlx.NewDb(db, "sqlmock"), "postgres")
	t.Cleanup(func() { _ = store.Close() })
	return store, mock
}

func TestCreateApplication_DuplicateMapsToAlreadyExists(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO applications").
		WillReturnError(errors.New(`pq: duplicate key value violates unique constraint "applications_pkey"`))

	now := time.Now()
	err := store.CreateApplication(context.Background(), &domain.Application{
		Name:         "webapp",
		Realms:       []string{"ACME"},
		Environments: []domain.Environment{{Name: "DEV", HostPattern: "*{app}*dev*", Roles: []string{"full"}}},
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if !errors.Is(err, domain.ErrAlreadyExists) {
		t.Errorf("Expected ErrAlreadyExists, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet expectations: %v", err)
	}
}

func TestGetApplication_DecodesJSONColumns(t *testing.T) {
	store, mock := newMockStore(t)

	now := time.Now()
	applied := now.Add(time.Minute)
	rows := sqlmock.NewRows([]string{
		"name", "description", "realms", "environments",
		"created_at", "updated_at", "last_applied", "last_apply_results",
	}).AddRow(
		"webapp", "frontend",
		`["ACME","CORP"]`,
		`[{"name":"DEV","hostPattern":"*{app}*dev*","roles":["full"]}]`,
		now, now, applied,
		`{"hostgroup":{"webapp-dev-hosts":{"success":true,"message":"created"}}}`,
	)
	mock.ExpectQuery("SELECT (.+) FROM applications WHERE name").
		WithArgs("webapp").
		WillReturnRows(rows)

	app, err := store.GetApplication(context.Background(), "webapp")
	if err != nil {
		t.Fatalf("GetApplication failed: %v", err)
	}
	if len(app.Realms) != 2 || app.Realms[1] != "CORP" {
		t.Errorf("Unexpected realms: %v", app.Realms)
	}
	if len(app.Environments) != 1 || app.Environments[0].HostPattern != "*{app}*dev*" {
		t.Errorf("Unexpected environments: %v", app.Environments)
	}
	if app.LastApplyResults == nil {
		t.Fatal("Expected apply results to be decoded")
	}
	if !(*app.LastApplyResults)[domain.CategoryHostGroup]["webapp-dev-hosts"].Success {
		t.Error("Expected host group result success")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet expectations: %v", err)
	}
}

func TestGetApplication_NotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT (.+) FROM applications WHERE name").
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"name"}))

	_, err := store.GetApplication(context.Background(), "ghost")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestSetApplyResults_MissingApplication(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("UPDATE applications SET last_applied").
		WillReturnResult(sqlmock.NewResult(0, 0))

	results := domain.ApplyResultSet{}
	results.Record(domain.CategoryHostGroup, "webapp-dev-hosts", true, "created")
	err := store.SetApplyResults(context.Background(), "ghost", time.Now(), results)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestUpdateAccessRequest_PersistsTransition(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("UPDATE access_requests").
		WillReturnResult(sqlmock.NewResult(0, 1))

	now := time.Now()
	err := store.UpdateAccessRequest(context.Background(), &domain.AccessRequest{
		ID:          "req-1",
		User:        "jdoe",
		Domain:      "ACME",
		Application: "webapp",
		Environment: "PRD",
		Role:        "devops",
		RequestedAt: now,
		ExpiresAt:   now.Add(4 * time.Hour),
		Status:      domain.StatusApproved,
		ApprovedBy:  "ops",
	})
	if err != nil {
		t.Fatalf("UpdateAccessRequest failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet expectations: %v", err)
	}
}
