package scheduling

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/healthmate/healthmate/internal/platform/auth"
	"github.com/healthmate/healthmate/internal/platform/db"
	"github.com/healthmate/healthmate/internal/platform/db/dbtest"
	"github.com/healthmate/healthmate/internal/platform/messaging"
	"github.com/healthmate/healthmate/internal/platform/notification"
)

type pgFixture struct {
	pool  *pgxpool.Pool
	repo  AppointmentRepository
	svc   *Service
	roles mockRoles
}

func newPGFixture(t *testing.T) *pgFixture {
	pool := dbtest.Pool(t)
	f := &pgFixture{pool: pool, repo: NewAppointmentRepoPG(pool), roles: mockRoles{}}
	f.svc = NewService(f.repo, db.NewTransactor(pool), f.roles, messaging.NopPublisher{},
		notification.NewMailer(&notification.MockEmailSender{}, nil), nil, zerolog.Nop())
	return f
}

func (f *pgFixture) account(t *testing.T, role, username, fullName string) auth.Caller {
	id := dbtest.Account(t, f.pool, role, username, fullName)
	f.roles[id] = role
	return auth.Caller{ID: id, Role: role}
}

func day(d, hour, min int) time.Time {
	return time.Date(2031, 3, d, hour, min, 0, 0, time.UTC)
}

func TestAppointmentRepoPG_OverlapScenario(t *testing.T) {
	f := newPGFixture(t)
	ctx := context.Background()
	d := f.account(t, auth.RoleDoctor, "dr_lee", "Dana Lee")
	p := f.account(t, auth.RolePatient, "pat", "Pat Doe")
	q := f.account(t, auth.RolePatient, "quinn", "Quinn Roe")

	first, err := f.svc.Book(ctx, p, BookRequest{DoctorID: d.ID, StartTime: day(3, 10, 0), EndTime: day(3, 10, 30)})
	if err != nil {
		t.Fatalf("Book: %v", err)
	}
	if first.Status != StatusPending {
		t.Errorf("expected pending, got %s", first.Status)
	}

	_, err = f.svc.Book(ctx, q, BookRequest{DoctorID: d.ID, StartTime: day(3, 10, 15), EndTime: day(3, 10, 45)})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	if _, err := f.svc.Book(ctx, q, BookRequest{DoctorID: d.ID, StartTime: day(3, 10, 30), EndTime: day(3, 11, 0)}); err != nil {
		t.Fatalf("touching interval should book: %v", err)
	}

	if _, err := f.svc.UpdateStatus(ctx, d, first.ID, StatusCancelled); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := f.svc.Book(ctx, p, BookRequest{DoctorID: d.ID, StartTime: day(3, 10, 0), EndTime: day(3, 10, 30)}); err != nil {
		t.Fatalf("cancelled slot should be free: %v", err)
	}
}

func TestAppointmentRepoPG_ExclusionConstraintMapsToConflict(t *testing.T) {
	f := newPGFixture(t)
	ctx := context.Background()
	d := f.account(t, auth.RoleDoctor, "dr_kim", "")
	p := f.account(t, auth.RolePatient, "p1", "")
	q := f.account(t, auth.RolePatient, "p2", "")

	a := &Appointment{PatientID: p.ID, DoctorID: d.ID, StartTime: day(4, 9, 0), EndTime: day(4, 10, 0), Status: StatusConfirmed}
	if err := f.repo.Create(ctx, a); err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Written without the service check, so only the constraint can reject it.
	b := &Appointment{PatientID: q.ID, DoctorID: d.ID, StartTime: day(4, 9, 30), EndTime: day(4, 10, 30), Status: StatusPending}
	if err := f.repo.Create(ctx, b); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected doctor overlap conflict, got %v", err)
	}

	other := f.account(t, auth.RoleDoctor, "dr_other", "")
	c := &Appointment{PatientID: p.ID, DoctorID: other.ID, StartTime: day(4, 9, 45), EndTime: day(4, 10, 15), Status: StatusPending}
	if err := f.repo.Create(ctx, c); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected patient overlap conflict, got %v", err)
	}

	// Inactive rows are outside the constraint.
	c.Status = StatusCancelled
	if err := f.repo.Create(ctx, c); err != nil {
		t.Fatalf("cancelled overlap should insert: %v", err)
	}
}

func TestAppointmentRepoPG_ConcurrentBookingsOneWins(t *testing.T) {
	f := newPGFixture(t)
	d := f.account(t, auth.RoleDoctor, "dr_race", "")
	patients := []auth.Caller{
		f.account(t, auth.RolePatient, "r1", ""),
		f.account(t, auth.RolePatient, "r2", ""),
		f.account(t, auth.RolePatient, "r3", ""),
	}

	var (
		wg    sync.WaitGroup
		start = make(chan struct{})
		errs  = make([]error, len(patients))
	)
	for i, p := range patients {
		wg.Add(1)
		go func(i int, p auth.Caller) {
			defer wg.Done()
			<-start
			_, errs[i] = f.svc.Book(context.Background(), p,
				BookRequest{DoctorID: d.ID, StartTime: day(5, 14, 0), EndTime: day(5, 14, 30)})
		}(i, p)
	}
	close(start)
	wg.Wait()

	booked := 0
	for _, err := range errs {
		switch {
		case err == nil:
			booked++
		case errors.Is(err, ErrConflict):
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if booked != 1 {
		t.Errorf("expected exactly one booking, got %d", booked)
	}
}

func TestAppointmentRepoPG_CompleteElapsed(t *testing.T) {
	f := newPGFixture(t)
	ctx := context.Background()
	d := f.account(t, auth.RoleDoctor, "dr_sweep", "")
	p := f.account(t, auth.RolePatient, "sweep", "")

	now := time.Now().UTC().Truncate(time.Second)
	ended := &Appointment{PatientID: p.ID, DoctorID: d.ID, StartTime: now.Add(-3 * time.Hour), EndTime: now.Add(-2 * time.Hour), Status: StatusConfirmed}
	pendingPast := &Appointment{PatientID: p.ID, DoctorID: d.ID, StartTime: now.Add(-90 * time.Minute), EndTime: now.Add(-time.Hour), Status: StatusPending}
	upcoming := &Appointment{PatientID: p.ID, DoctorID: d.ID, StartTime: now.Add(time.Hour), EndTime: now.Add(2 * time.Hour), Status: StatusConfirmed}
	for _, a := range []*Appointment{ended, pendingPast, upcoming} {
		if err := f.repo.Create(ctx, a); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	n, err := f.svc.CompleteElapsed(ctx)
	if err != nil {
		t.Fatalf("CompleteElapsed: %v", err)
	}
	if n < 1 {
		t.Errorf("expected at least one completed appointment, got %d", n)
	}

	want := map[uuid.UUID]string{
		ended.ID:       StatusCompleted,
		pendingPast.ID: StatusPending,
		upcoming.ID:    StatusConfirmed,
	}
	for id, status := range want {
		got, err := f.repo.GetByID(ctx, id)
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		if got.Status != status {
			t.Errorf("appointment %s: status %s, want %s", id, got.Status, status)
		}
	}
}

func TestAppointmentRepoPG_ListConfirmedStartingNames(t *testing.T) {
	f := newPGFixture(t)
	ctx := context.Background()
	d := f.account(t, auth.RoleDoctor, "dr_named", "Dana Named")
	p := f.account(t, auth.RolePatient, "patuser", "")

	a := &Appointment{PatientID: p.ID, DoctorID: d.ID, StartTime: day(6, 8, 0), EndTime: day(6, 8, 30), Status: StatusConfirmed}
	if err := f.repo.Create(ctx, a); err != nil {
		t.Fatalf("Create: %v", err)
	}

	reminders, err := f.repo.ListConfirmedStarting(ctx, day(6, 0, 0), day(6, 23, 59))
	if err != nil {
		t.Fatalf("ListConfirmedStarting: %v", err)
	}
	var found *Reminder
	for _, rm := range reminders {
		if rm.Appointment.ID == a.ID {
			found = rm
		}
	}
	if found == nil {
		t.Fatal("expected the confirmed appointment in the window")
	}
	if found.PatientName != "patuser" {
		t.Errorf("patient name should fall back to username, got %q", found.PatientName)
	}
	if found.DoctorName != "Dana Named" {
		t.Errorf("doctor name = %q", found.DoctorName)
	}
}
