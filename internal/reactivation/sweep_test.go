package reactivation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"crm_pipeline_backend/internal/events"
	"crm_pipeline_backend/internal/leads/domain"
	"crm_pipeline_backend/internal/tasks"
	"crm_pipeline_backend/platform/logger"

	"github.com/google/uuid"
)

type fakeLeadLister struct {
	leads []domain.Lead
	err   error
}

func (f *fakeLeadLister) ListReactivationDue(ctx context.Context, asOf time.Time) ([]domain.Lead, error) {
	return f.leads, f.err
}

type fakeTaskCreator struct {
	mu       sync.Mutex
	created  []tasks.CreateParams
	existing map[string]bool
	failFor  map[uuid.UUID]error
}

func (f *fakeTaskCreator) CreateIfSourceAbsent(ctx context.Context, p tasks.CreateParams) (tasks.Task, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.failFor[p.LeadID]; err != nil {
		return tasks.Task{}, false, err
	}
	if p.Source != nil && f.existing[*p.Source] {
		return tasks.Task{}, false, nil
	}
	f.created = append(f.created, p)
	return tasks.Task{ID: uuid.New(), LeadID: p.LeadID, Source: p.Source}, true, nil
}

type fakeBus struct {
	mu        sync.Mutex
	published []events.Event
}

func (f *fakeBus) Publish(ctx context.Context, e events.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, e)
}

func (f *fakeBus) PublishSync(ctx context.Context, e events.Event) error {
	f.Publish(ctx, e)
	return nil
}

func (f *fakeBus) Subscribe(name string, h events.Handler) {}

func lostLead(name string, reactivation time.Time) domain.Lead {
	return domain.Lead{
		ID:               uuid.New(),
		Name:             name,
		OwnerID:          uuid.New(),
		ReactivationDate: &reactivation,
	}
}

func newSweep(lister *fakeLeadLister, creator *fakeTaskCreator, bus *fakeBus) *Sweep {
	s := New(lister, creator, bus, logger.New("development"), 4)
	s.now = func() time.Time { return time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC) }
	return s
}

func TestRun_CreatesReminderAndNotifiesOwner(t *testing.T) {
	due := lostLead("Acme BV", time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC))
	lister := &fakeLeadLister{leads: []domain.Lead{due}}
	creator := &fakeTaskCreator{}
	bus := &fakeBus{}

	report, err := newSweep(lister, creator, bus).Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Created != 1 || report.Failed != 0 || report.Skipped != 0 {
		t.Fatalf("report = %+v", report)
	}

	if len(creator.created) != 1 {
		t.Fatalf("created %d tasks, want 1", len(creator.created))
	}
	task := creator.created[0]
	if task.Type != tasks.TypeTask {
		t.Fatalf("task type = %q, want task", task.Type)
	}
	if task.Title != "Reactivate lead: Acme BV" {
		t.Fatalf("title = %q", task.Title)
	}
	if task.Source == nil || *task.Source != "reactivation:"+due.ID.String()+":2026-03-10" {
		t.Fatalf("source = %v", task.Source)
	}
	wantDue := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	if !task.DueDate.Equal(wantDue) {
		t.Fatalf("due = %s, want %s", task.DueDate, wantDue)
	}

	if len(bus.published) != 1 {
		t.Fatalf("published %d events, want 1", len(bus.published))
	}
	ev, ok := bus.published[0].(events.LeadReactivationDue)
	if !ok {
		t.Fatalf("event = %T", bus.published[0])
	}
	if ev.LeadID != due.ID || ev.OwnerID != due.OwnerID {
		t.Fatalf("event = %+v", ev)
	}
}

func TestRun_SkipsFutureDates(t *testing.T) {
	future := lostLead("Later BV", time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC))
	lister := &fakeLeadLister{leads: []domain.Lead{future}}
	creator := &fakeTaskCreator{}
	bus := &fakeBus{}

	report, err := newSweep(lister, creator, bus).Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Skipped != 1 || report.Created != 0 {
		t.Fatalf("report = %+v", report)
	}
	if len(creator.created) != 0 {
		t.Fatal("no task expected for a future date")
	}
}

func TestRun_SecondSweepIsIdempotent(t *testing.T) {
	due := lostLead("Acme BV", time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC))
	lister := &fakeLeadLister{leads: []domain.Lead{due}}
	creator := &fakeTaskCreator{existing: map[string]bool{
		"reactivation:" + due.ID.String() + ":2026-03-08": true,
	}}
	bus := &fakeBus{}

	report, err := newSweep(lister, creator, bus).Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Created != 0 || report.Skipped != 1 {
		t.Fatalf("report = %+v", report)
	}
	if len(bus.published) != 0 {
		t.Fatal("a deduplicated reminder must not notify again")
	}
}

func TestRun_IsolatesPerLeadFailures(t *testing.T) {
	broken := lostLead("Broken BV", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	fine := lostLead("Fine BV", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	lister := &fakeLeadLister{leads: []domain.Lead{broken, fine}}
	creator := &fakeTaskCreator{failFor: map[uuid.UUID]error{broken.ID: errors.New("connection refused")}}
	bus := &fakeBus{}

	report, err := newSweep(lister, creator, bus).Run(context.Background())
	if err != nil {
		t.Fatalf("a per-lead failure must not fail the sweep: %v", err)
	}
	if report.Failed != 1 || report.Created != 1 {
		t.Fatalf("report = %+v", report)
	}
	if len(creator.created) != 1 || creator.created[0].LeadID != fine.ID {
		t.Fatal("the healthy lead must still be processed")
	}
}

func TestRun_ListFailureFailsTheRun(t *testing.T) {
	lister := &fakeLeadLister{err: errors.New("connection refused")}
	creator := &fakeTaskCreator{}
	bus := &fakeBus{}

	if _, err := newSweep(lister, creator, bus).Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}
