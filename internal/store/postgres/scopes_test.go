package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"

	"projectplane/internal/model"
)

func TestSetDeploymentScope_UpsertsIndexedColumns(t *testing.T) {
	store, mock := newMockStore(t)
	defer store.db.Close()

	scope := &model.DeploymentScope{
		ID:            uuid.New(),
		Tenant:        "contoso",
		Name:          "shared-pool",
		Subscriptions: []uuid.UUID{uuid.New()},
		Default:       true,
	}
	doc, _ := json.Marshal(scope)

	mock.ExpectExec(`INSERT INTO deployment_scopes`).
		WithArgs(scope.ID, scope.Tenant, scope.Default, doc).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.SetDeploymentScope(context.Background(), nil, scope); err != nil {
		t.Fatalf("SetDeploymentScope failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestGetDefaultDeploymentScope(t *testing.T) {
	store, mock := newMockStore(t)
	defer store.db.Close()

	scope := model.DeploymentScope{ID: uuid.New(), Tenant: "contoso", Name: "shared-pool", Default: true}
	doc, _ := json.Marshal(scope)

	mock.ExpectQuery(`SELECT document FROM deployment_scopes`).
		WithArgs("contoso").
		WillReturnRows(sqlmock.NewRows([]string{"document"}).AddRow(doc))

	got, err := store.GetDefaultDeploymentScope(context.Background(), "contoso")
	if err != nil {
		t.Fatalf("GetDefaultDeploymentScope failed: %v", err)
	}
	if got.Name != "shared-pool" || !got.Default {
		t.Errorf("decoded scope mismatch: %+v", got)
	}
}

func TestGetDefaultDeploymentScope_NotConfigured(t *testing.T) {
	store, mock := newMockStore(t)
	defer store.db.Close()

	mock.ExpectQuery(`SELECT document FROM deployment_scopes`).
		WithArgs("contoso").
		WillReturnError(sql.ErrNoRows)

	_, err := store.GetDefaultDeploymentScope(context.Background(), "contoso")
	if !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("got %v, want sql.ErrNoRows", err)
	}
}
