package pg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"covena.org/internal/auth"
	"covena.org/internal/directory"
	"covena.org/internal/violation"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewWithDB(db), mock
}

func TestGetIdentityNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("select id, email, password_hash, status, created_at, updated_at").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "password_hash", "status", "created_at", "updated_at"}))

	_, err := store.GetIdentity(context.Background(), "missing")
	if !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateIdentityDuplicateEmailIsConflict(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("insert into identities").
		WithArgs(sqlmock.AnyArg(), "a@example.com", "hash", auth.IdentityStatusActive).
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation})

	_, err := store.CreateIdentity(context.Background(), "a@example.com", "hash", auth.IdentityStatusActive)
	if !errors.Is(err, auth.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateMembershipDuplicateIsConflict(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("insert into memberships").
		WithArgs(sqlmock.AnyArg(), "id-1", "assoc-a").
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation})

	_, err := store.CreateMembership(context.Background(), "id-1", "assoc-a")
	if !errors.Is(err, directory.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestListMembershipsOrdersByJoinedAt(t *testing.T) {
	store, mock := newMockStore(t)
	joined := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	cols := []string{
		"m.id", "m.identity_id", "m.association_id", "m.active", "m.joined_at",
		"a.id", "a.name", "abbreviation", "street", "city",
		"state", "zip", "contact_email", "contact_phone",
		"a.deleted", "a.created_at", "a.updated_at",
	}
	mock.ExpectQuery("select m.id, m.identity_id, m.association_id").
		WithArgs("id-1").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("m-1", "id-1", "assoc-a", true, joined,
				"assoc-a", "Alder Grove", "", "", "", "", "", "", "", false, joined, joined).
			AddRow("m-2", "id-1", "assoc-b", true, joined.Add(24*time.Hour),
				"assoc-b", "Birchwood", "", "", "", "", "", "", "", false, joined, joined))

	entries, err := store.ListMemberships(context.Background(), "id-1")
	if err != nil {
		t.Fatalf("ListMemberships: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Membership.AssociationID != "assoc-a" || entries[1].Association.Name != "Birchwood" {
		t.Fatalf("unexpected entries: %+v", entries)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestListAssignedRolesDecodesPermissions(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()
	cols := []string{"id", "name", "description", "permissions", "system", "association_id", "created_at", "updated_at"}
	mock.ExpectQuery("from role_assignments ra").
		WithArgs("id-1").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("role-1", "board", "", []byte(`["view_violations","manage_violations"]`), false, "assoc-a", now, now))

	roles, err := store.ListAssignedRoles(context.Background(), "id-1")
	if err != nil {
		t.Fatalf("ListAssignedRoles: %v", err)
	}
	if len(roles) != 1 {
		t.Fatalf("expected 1 role, got %d", len(roles))
	}
	if len(roles[0].Permissions) != 2 || roles[0].Permissions[0] != directory.PermViewViolations {
		t.Fatalf("permissions not decoded: %+v", roles[0].Permissions)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSetViolationStatusNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("update violations").
		WithArgs("assoc-a", "v-1", violation.StatusResolved, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	now := time.Now().UTC()
	_, err := store.SetViolationStatus(context.Background(), "assoc-a", "v-1", violation.StatusResolved, "p-1", &now)
	if !errors.Is(err, violation.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSoftDeleteAssociation(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("update associations set deleted = true").
		WithArgs("assoc-a").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.SoftDeleteAssociation(context.Background(), "assoc-a"); err != nil {
		t.Fatalf("SoftDeleteAssociation: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
