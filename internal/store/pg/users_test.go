package pg

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mockilo/MockAuth-sub001/internal/auth"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewWithDB(db), mock
}

const selectByEmail = `select id, email, username, roles, permissions, active, created_at, password_hash
		from users where email=\$1`

func userColumns() []string {
	return []string{"id", "email", "username", "roles", "permissions", "active", "created_at", "password_hash"}
}

func TestAuthenticate(t *testing.T) {
	store, mock := newMockStore(t)
	hash, err := auth.HashPassword("correct-horse")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(selectByEmail).
		WithArgs("dev@example.com").
		WillReturnRows(sqlmock.NewRows(userColumns()).
			AddRow("user_1", "dev@example.com", "dev", []byte(`["user"]`), []byte(`[]`), true, created, hash))

	user, err := store.Authenticate(context.Background(), " Dev@Example.com ", "correct-horse")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if user == nil || user.ID != "user_1" {
		t.Fatalf("unexpected identity: %+v", user)
	}
	if len(user.Roles) != 1 || user.Roles[0] != "user" {
		t.Fatalf("roles not decoded: %v", user.Roles)
	}
	if len(user.Permissions) != 0 {
		t.Fatalf("permissions should decode empty: %v", user.Permissions)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestAuthenticateWrongPassword(t *testing.T) {
	store, mock := newMockStore(t)
	hash, _ := auth.HashPassword("correct-horse")

	mock.ExpectQuery(selectByEmail).
		WithArgs("dev@example.com").
		WillReturnRows(sqlmock.NewRows(userColumns()).
			AddRow("user_1", "dev@example.com", "dev", []byte(`[]`), []byte(`[]`), true, time.Now(), hash))

	user, err := store.Authenticate(context.Background(), "dev@example.com", "battery-staple")
	if err != nil {
		t.Fatalf("wrong password must not error: %v", err)
	}
	if user != nil {
		t.Fatalf("wrong password must return nil identity")
	}
}

func TestAuthenticateUnknownEmail(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(selectByEmail).
		WithArgs("nobody@example.com").
		WillReturnRows(sqlmock.NewRows(userColumns()))

	user, err := store.Authenticate(context.Background(), "nobody@example.com", "whatever")
	if err != nil || user != nil {
		t.Fatalf("unknown email must return nil, nil; got user=%v err=%v", user, err)
	}
}

func TestRegister(t *testing.T) {
	store, mock := newMockStore(t)
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(`insert into users`)).
		WithArgs(sqlmock.AnyArg(), "new@example.com", "new", []byte(`["user"]`), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(created))

	user, err := store.Register(context.Background(), auth.Registration{
		Email:    "New@Example.com",
		Username: "new",
		Password: "new-secret",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if user.Email != "new@example.com" {
		t.Fatalf("email not normalized: %q", user.Email)
	}
	if !user.CreatedAt.Equal(created) {
		t.Fatalf("created_at not returned: %v", user.CreatedAt)
	}
	if len(user.Roles) != 1 || user.Roles[0] != "user" {
		t.Fatalf("default role not applied: %v", user.Roles)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`insert into users`)).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	_, err := store.Register(context.Background(), auth.Registration{
		Email:    "dup@example.com",
		Password: "dup-secret",
	})
	if !errors.Is(err, auth.ErrAlreadyExists) {
		t.Fatalf("err = %v, want ErrAlreadyExists", err)
	}
}

func TestGetByID(t *testing.T) {
	store, mock := newMockStore(t)
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(`select id, email, username, roles, permissions, active, created_at
		from users where id=$1`)).
		WithArgs("user_1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "username", "roles", "permissions", "active", "created_at"}).
			AddRow("user_1", "dev@example.com", "dev", []byte(`["admin"]`), []byte(`["documents:write"]`), true, created))

	user, err := store.GetByID(context.Background(), "user_1")
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if user.Roles[0] != "admin" || user.Permissions[0] != "documents:write" {
		t.Fatalf("decoded identity wrong: %+v", user)
	}
}

func TestGetByIDNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`select id, email, username, roles, permissions, active, created_at
		from users where id=$1`)).
		WithArgs("user_missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := store.GetByID(context.Background(), "user_missing")
	if !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestUpdateRoles(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta(`update users set roles=$2, permissions=$3 where id=$1`)).
		WithArgs("user_1", []byte(`["admin"]`), []byte(`[]`)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.UpdateRoles(context.Background(), "user_1", []string{"admin"}, nil); err != nil {
		t.Fatalf("update roles: %v", err)
	}

	mock.ExpectExec(regexp.QuoteMeta(`update users set roles=$2, permissions=$3 where id=$1`)).
		WithArgs("user_missing", []byte(`[]`), []byte(`[]`)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := store.UpdateRoles(context.Background(), "user_missing", nil, nil); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestSetActive(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta(`update users set active=$2 where id=$1`)).
		WithArgs("user_1", false).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.SetActive(context.Background(), "user_1", false); err != nil {
		t.Fatalf("set active: %v", err)
	}
}
