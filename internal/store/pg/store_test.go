package pg

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"camguard.dev/internal/access"
	"camguard.dev/internal/audit"
	"camguard.dev/internal/auth"
	"camguard.dev/internal/monitor"
	"camguard.dev/internal/provision"
	"camguard.dev/internal/tenancy"
)

var ts = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("expectations: %v", err)
		}
		db.Close()
	})
	return New(db), mock
}

func TestMapErr(t *testing.T) {
	notFound := errors.New("nf")
	conflict := errors.New("cf")
	cases := []struct {
		in   error
		want error
	}{
		{sql.ErrNoRows, notFound},
		{&pgconn.PgError{Code: pgErrUniqueViolation}, conflict},
		{&pgconn.PgError{Code: pgErrForeignKeyViolation}, notFound},
	}
	for _, tc := range cases {
		if got := mapErr(tc.in, notFound, conflict); got != tc.want {
			t.Fatalf("mapErr(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
	other := errors.New("boom")
	if got := mapErr(other, notFound, conflict); got != other {
		t.Fatalf("unknown errors must pass through, got %v", got)
	}
}

func TestNilDB(t *testing.T) {
	s := &Store{}
	if _, err := s.ListAssignments(context.Background(), "u"); !errors.Is(err, errNoDB) {
		t.Fatalf("expected errNoDB, got %v", err)
	}
	if err := s.SetPrimaryDomain(context.Background(), "t", "d"); !errors.Is(err, errNoDB) {
		t.Fatalf("expected errNoDB, got %v", err)
	}
}

func TestListAssignmentsKeepsPlatformScope(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery("from user_roles").WithArgs("u1").WillReturnRows(
		sqlmock.NewRows([]string{"id", "user_id", "role", "tenant_id", "created_at"}).
			AddRow("a1", "u1", "super_admin", nil, ts).
			AddRow("a2", "u1", "partner_admin", "t1", ts),
	)
	as, err := s.ListAssignments(context.Background(), "u1")
	if err != nil {
		t.Fatalf("ListAssignments: %v", err)
	}
	if len(as) != 2 || as[0].TenantID != "" || as[1].Role != access.RolePartnerAdmin || as[1].TenantID != "t1" {
		t.Fatalf("assignments = %+v", as)
	}
}

var domainCols = []string{"id", "tenant_id", "domain", "subdomain", "is_primary", "ssl_enabled", "is_active", "created_at", "updated_at"}

func TestSetPrimaryDomainRunsInOneTransaction(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery("select 1 from tenant_domains").WithArgs("t1", "d2").WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectExec("set is_primary = false").WithArgs("t1", "d2").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("set is_primary = true").WithArgs("t1", "d2").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := s.SetPrimaryDomain(context.Background(), "t1", "d2"); err != nil {
		t.Fatalf("SetPrimaryDomain: %v", err)
	}
}

func TestSetPrimaryDomainRollsBackWhenSecondUpdateFails(t *testing.T) {
	s, mock := newMock(t)
	reset := errors.New("conn reset")
	mock.ExpectBegin()
	mock.ExpectQuery("select 1 from tenant_domains").WithArgs("t1", "d2").WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectExec("set is_primary = false").WithArgs("t1", "d2").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("set is_primary = true").WithArgs("t1", "d2").WillReturnError(reset)
	mock.ExpectRollback()

	err := s.SetPrimaryDomain(context.Background(), "t1", "d2")
	if !errors.Is(err, reset) {
		t.Fatalf("expected the update error without a commit, got %v", err)
	}
}

func TestSetPrimaryDomainUnknownChangesNothing(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery("select 1 from tenant_domains").WithArgs("t1", "other-tenant-domain").WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	err := s.SetPrimaryDomain(context.Background(), "t1", "other-tenant-domain")
	if !errors.Is(err, tenancy.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAddDomainDuplicateHost(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery("insert into tenant_domains").
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation})

	_, err := s.AddDomain(context.Background(), tenancy.Domain{ID: "d1", TenantID: "t1", Domain: "cams.example.com"})
	if !errors.Is(err, tenancy.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestFindActiveDomainByHost(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery("where is_active and").WithArgs("cams.example.com").WillReturnRows(
		sqlmock.NewRows(domainCols).AddRow("d1", "t1", "cams.example.com", nil, true, true, true, ts, ts))

	d, err := s.FindActiveDomainByHost(context.Background(), "cams.example.com")
	if err != nil || d.TenantID != "t1" || d.Subdomain != "" {
		t.Fatalf("domain = %+v, %v", d, err)
	}
}

func provisionPlan() provision.Plan {
	return provision.Plan{
		User:       auth.User{ID: "u1", Email: "p@example.com", FullName: "P", PasswordHash: "hash", CreatedAt: ts, UpdatedAt: ts},
		NewTenant:  &monitor.Tenant{ID: "t1", Name: "Acme", Status: monitor.TenantActive, Plan: monitor.PlanBasic, CreatedAt: ts, UpdatedAt: ts},
		Assignment: access.Assignment{ID: "a1", UserID: "u1", Role: access.RolePartnerAdmin, TenantID: "t1", CreatedAt: ts},
		Profile:    provision.Profile{ID: "u1", Email: "p@example.com", FullName: "P", Role: access.RolePartnerAdmin, TenantID: "t1"},
		Audit:      audit.Entry{ID: "e1", UserID: "admin", TenantID: "t1", Action: "CREATE_USER", ResourceType: "user", ResourceID: "u1", CreatedAt: ts},
	}
}

func TestProvisionWritesEverythingInOrder(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery("insert into tenants").WillReturnRows(
		sqlmock.NewRows([]string{"id", "name", "email", "phone", "address", "status", "plan", "created_at", "updated_at"}).
			AddRow("t1", "Acme", nil, nil, nil, "active", "basic", ts, ts))
	mock.ExpectExec("insert into users").WithArgs("u1", "p@example.com", "P", "hash", ts, ts).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("insert into user_roles").WithArgs("a1", "u1", "partner_admin", sqlmock.AnyArg(), ts).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("insert into profiles").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("insert into audit_logs").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	if err := s.Provision(context.Background(), provisionPlan()); err != nil {
		t.Fatalf("Provision: %v", err)
	}
}

func TestProvisionDuplicateEmailRollsBack(t *testing.T) {
	s, mock := newMock(t)
	plan := provisionPlan()
	plan.NewTenant = nil
	mock.ExpectBegin()
	mock.ExpectExec("insert into users").WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation})
	mock.ExpectRollback()

	if err := s.Provision(context.Background(), plan); !errors.Is(err, provision.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestProvisionUnknownTenantRollsBack(t *testing.T) {
	s, mock := newMock(t)
	plan := provisionPlan()
	plan.NewTenant = nil
	mock.ExpectBegin()
	mock.ExpectExec("insert into users").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("insert into user_roles").WillReturnError(&pgconn.PgError{Code: pgErrForeignKeyViolation})
	mock.ExpectRollback()

	if err := s.Provision(context.Background(), plan); !errors.Is(err, provision.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

var alertCols = []string{"id", "tenant_id", "client_id", "camera_id", "type", "severity", "message", "metadata", "is_acknowledged", "acknowledged_by", "acknowledged_at", "created_at"}

func TestListAlertsIsTenantScoped(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery(`from alerts where tenant_id = \$1 and client_id = \$2 order by created_at desc limit \$3`).
		WithArgs("t1", "c1", 5).
		WillReturnRows(sqlmock.NewRows(alertCols).
			AddRow("al1", "t1", "c1", "cam1", "intrusion", "high", "door", []byte(`{"zone":"a"}`), false, nil, nil, ts))

	alerts, err := s.ListAlerts(context.Background(), monitor.AlertFilter{TenantID: "t1", ClientID: "c1", Limit: 5})
	if err != nil {
		t.Fatalf("ListAlerts: %v", err)
	}
	if len(alerts) != 1 || string(alerts[0].Metadata) != `{"zone":"a"}` || alerts[0].AcknowledgedAt != nil {
		t.Fatalf("alerts = %+v", alerts)
	}
}

func TestAcknowledgeAlertSecondCallKeepsFirst(t *testing.T) {
	s, mock := newMock(t)
	first := ts.Add(-time.Hour)
	mock.ExpectQuery("update alerts").WithArgs("t1", "al1", sqlmock.AnyArg(), ts).WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("from alerts where tenant_id").WithArgs("t1", "al1").WillReturnRows(
		sqlmock.NewRows(alertCols).AddRow("al1", "t1", "c1", "cam1", "intrusion", "high", "door", []byte(`{}`), true, "u0", first, ts))

	a, changed, err := s.AcknowledgeAlert(context.Background(), "t1", "al1", "u2", ts)
	if err != nil {
		t.Fatalf("AcknowledgeAlert: %v", err)
	}
	if changed || a.AcknowledgedBy != "u0" || !a.AcknowledgedAt.Equal(first) {
		t.Fatalf("alert = %+v changed=%v", a, changed)
	}
}

func TestAcknowledgeAlertMissing(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery("update alerts").WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("from alerts where tenant_id").WillReturnError(sql.ErrNoRows)

	if _, _, err := s.AcknowledgeAlert(context.Background(), "t1", "nope", "u1", ts); !errors.Is(err, monitor.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateTenantWritesOnlyPatchedFields(t *testing.T) {
	s, mock := newMock(t)
	name := "Renamed"
	mock.ExpectQuery(`update tenants set updated_at = \$2, name = \$3 where id = \$1`).
		WithArgs("t1", ts, "Renamed").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email", "phone", "address", "status", "plan", "created_at", "updated_at"}).
			AddRow("t1", "Renamed", nil, nil, nil, "active", "basic", ts, ts))

	got, err := s.UpdateTenant(context.Background(), "t1", monitor.TenantPatch{Name: &name}, ts)
	if err != nil || got.Name != "Renamed" {
		t.Fatalf("UpdateTenant = %+v, %v", got, err)
	}
}

func TestDeactivateUnknownSession(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectExec("update sessions set is_active = false").WithArgs("s1").WillReturnResult(sqlmock.NewResult(0, 0))
	if err := s.DeactivateSession(context.Background(), "s1"); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
