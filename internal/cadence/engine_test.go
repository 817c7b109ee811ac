package cadence

import (
	"context"
	"testing"
	"time"

	"crm_pipeline_backend/internal/events"
	"crm_pipeline_backend/internal/leads/domain"
	"crm_pipeline_backend/internal/leads/lock"
	"crm_pipeline_backend/internal/leads/repository"
	"crm_pipeline_backend/internal/leads/transition"
	pipeline "crm_pipeline_backend/internal/pipeline/domain"
	"crm_pipeline_backend/internal/playbooks"
	"crm_pipeline_backend/internal/tasks"
	"crm_pipeline_backend/platform/apperr"
	"crm_pipeline_backend/platform/logger"

	"github.com/google/uuid"
)

type fakeLeadStore struct {
	lead        domain.Lead
	applied     *repository.ApplyPlaybookParams
	deactivated bool
}

func (f *fakeLeadStore) GetByID(ctx context.Context, id uuid.UUID) (domain.Lead, error) {
	if id != f.lead.ID {
		return domain.Lead{}, repository.ErrNotFound
	}
	return f.lead, nil
}

func (f *fakeLeadStore) ApplyPlaybook(ctx context.Context, p repository.ApplyPlaybookParams) (domain.Lead, error) {
	f.applied = &p
	updated := f.lead
	active := p.Active
	updated.ActivePlaybook = &active
	updated.Version++
	return updated, nil
}

func (f *fakeLeadStore) DeactivatePlaybook(ctx context.Context, leadID, playbookID uuid.UUID, expectedVersion int64) (domain.Lead, error) {
	f.deactivated = true
	updated := f.lead
	updated.ActivePlaybook = nil
	updated.Version++
	return updated, nil
}

type fakePlaybookReader struct {
	byID map[uuid.UUID]playbooks.Playbook
}

func (f *fakePlaybookReader) GetByID(ctx context.Context, id uuid.UUID) (playbooks.Playbook, error) {
	pb, ok := f.byID[id]
	if !ok {
		return playbooks.Playbook{}, playbooks.ErrNotFound
	}
	return pb, nil
}

type fakeTaskReader struct {
	tasks []tasks.Task
}

func (f *fakeTaskReader) ListByCadence(ctx context.Context, leadID, playbookID uuid.UUID) ([]tasks.Task, error) {
	return f.tasks, nil
}

type fakeStageReader struct {
	stages []pipeline.Stage
}

func (f *fakeStageReader) ListStages(ctx context.Context, boardID uuid.UUID) ([]pipeline.Stage, error) {
	return f.stages, nil
}

type fakeAdvancer struct {
	leadID  uuid.UUID
	stageID uuid.UUID
	cause   transition.Cause
	calls   int
}

func (f *fakeAdvancer) Transition(ctx context.Context, leadID, newStageID uuid.UUID, cause transition.Cause, actorName string) (transition.Result, error) {
	f.leadID = leadID
	f.stageID = newStageID
	f.cause = cause
	f.calls++
	return transition.Result{}, nil
}

type fakeBus struct {
	published []events.Event
}

func (f *fakeBus) Publish(ctx context.Context, e events.Event) { f.published = append(f.published, e) }
func (f *fakeBus) PublishSync(ctx context.Context, e events.Event) error {
	f.published = append(f.published, e)
	return nil
}
func (f *fakeBus) Subscribe(name string, h events.Handler) {}

type fixture struct {
	engine   *Engine
	leads    *fakeLeadStore
	pbs      *fakePlaybookReader
	tasks    *fakeTaskReader
	stages   *fakeStageReader
	advancer *fakeAdvancer
	bus      *fakeBus

	open     pipeline.Stage
	followUp pipeline.Stage
	won      pipeline.Stage
	playbook playbooks.Playbook
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	board := uuid.New()
	f := &fixture{
		open:     pipeline.Stage{ID: uuid.New(), BoardID: board, Title: "New", Type: pipeline.StageTypeOpen, Position: 0},
		followUp: pipeline.Stage{ID: uuid.New(), BoardID: board, Title: "Follow-up", Type: pipeline.StageTypeFollowUp, Position: 1},
		won:      pipeline.Stage{ID: uuid.New(), BoardID: board, Title: "Won", Type: pipeline.StageTypeWon, Position: 2},
	}

	f.leads = &fakeLeadStore{lead: domain.Lead{
		ID:      uuid.New(),
		BoardID: board,
		OwnerID: uuid.New(),
		Name:    "Acme BV",
		Version: 7,
	}}
	f.leads.lead.ColumnID = f.open.ID

	f.playbook = playbooks.Playbook{
		ID:       uuid.New(),
		Name:     "New Lead Outreach",
		StageIDs: []uuid.UUID{f.open.ID},
		Steps: []playbooks.Step{
			{Day: 1, Type: "call", Instructions: "Intro call"},
			{Day: 3, Type: "email", Instructions: "Send pricing"},
			{Day: 7, Type: "call", Instructions: "Follow up on pricing"},
		},
	}
	f.pbs = &fakePlaybookReader{byID: map[uuid.UUID]playbooks.Playbook{f.playbook.ID: f.playbook}}
	f.tasks = &fakeTaskReader{}
	f.stages = &fakeStageReader{stages: []pipeline.Stage{f.open, f.followUp, f.won}}
	f.advancer = &fakeAdvancer{}
	f.bus = &fakeBus{}

	f.engine = New(f.leads, f.pbs, f.tasks, f.stages, f.advancer, f.bus, lock.NewKeyed(), logger.New("development"))
	f.engine.now = func() time.Time { return time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC) }
	return f
}

func TestApply_MaterializesOneTaskPerStep(t *testing.T) {
	f := newFixture(t)

	updated, err := f.engine.Apply(context.Background(), f.leads.lead.ID, f.playbook.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.ActivePlaybook == nil || updated.ActivePlaybook.PlaybookID != f.playbook.ID {
		t.Fatalf("active playbook = %+v", updated.ActivePlaybook)
	}

	p := f.leads.applied
	if p == nil {
		t.Fatal("expected a write")
	}
	if p.ExpectedVersion != 7 {
		t.Fatalf("expected version check against 7, got %d", p.ExpectedVersion)
	}
	if len(p.Tasks) != 3 {
		t.Fatalf("created %d tasks, want 3", len(p.Tasks))
	}

	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	wantDue := []time.Time{day.AddDate(0, 0, 1), day.AddDate(0, 0, 3), day.AddDate(0, 0, 7)}
	for i, task := range p.Tasks {
		if task.PlaybookID == nil || *task.PlaybookID != f.playbook.ID {
			t.Fatalf("task %d missing playbook id", i)
		}
		if task.PlaybookStepIndex == nil || *task.PlaybookStepIndex != i {
			t.Fatalf("task %d step index = %v, want %d", i, task.PlaybookStepIndex, i)
		}
		if !task.DueDate.Equal(wantDue[i]) {
			t.Fatalf("task %d due = %s, want %s", i, task.DueDate, wantDue[i])
		}
		if task.Title != f.playbook.Steps[i].Instructions {
			t.Fatalf("task %d title = %q", i, task.Title)
		}
		if task.UserID != f.leads.lead.OwnerID {
			t.Fatalf("task %d must be assigned to the lead owner", i)
		}
	}

	if len(f.bus.published) != 1 || f.bus.published[0].EventName() != "playbooks.applied" {
		t.Fatalf("published = %v", f.bus.published)
	}
}

func TestApply_SupersedesActiveCadence(t *testing.T) {
	f := newFixture(t)

	previous := uuid.New()
	f.leads.lead.ActivePlaybook = &domain.ActivePlaybook{PlaybookID: previous, PlaybookName: "Old", StartedAt: time.Now()}

	_, err := f.engine.Apply(context.Background(), f.leads.lead.ID, f.playbook.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p := f.leads.applied
	if p.ReplacePlaybookID == nil || *p.ReplacePlaybookID != previous {
		t.Fatal("superseded cadence's pending tasks must be replaced")
	}
}

func TestApply_RejectsPlaybookOutsideCurrentStage(t *testing.T) {
	f := newFixture(t)
	f.leads.lead.ColumnID = f.followUp.ID

	_, err := f.engine.Apply(context.Background(), f.leads.lead.ID, f.playbook.ID)
	if apperr.GetKind(err) != apperr.KindValidation {
		t.Fatalf("kind = %v, want validation", apperr.GetKind(err))
	}
	if f.leads.applied != nil {
		t.Fatal("nothing should be written")
	}
}

func TestApply_UnknownLeadOrPlaybook(t *testing.T) {
	f := newFixture(t)

	if _, err := f.engine.Apply(context.Background(), uuid.New(), f.playbook.ID); apperr.GetKind(err) != apperr.KindNotFound {
		t.Fatalf("unknown lead: kind = %v, want not found", apperr.GetKind(err))
	}
	if _, err := f.engine.Apply(context.Background(), f.leads.lead.ID, uuid.New()); apperr.GetKind(err) != apperr.KindNotFound {
		t.Fatalf("unknown playbook: kind = %v, want not found", apperr.GetKind(err))
	}
}

func TestDeactivate_NoActivePlaybookIsNoop(t *testing.T) {
	f := newFixture(t)

	lead, err := f.engine.Deactivate(context.Background(), f.leads.lead.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.leads.deactivated {
		t.Fatal("nothing should be written")
	}
	if len(f.bus.published) != 0 {
		t.Fatal("no event expected")
	}
	if lead.ID != f.leads.lead.ID {
		t.Fatal("the unchanged lead should be returned")
	}
}

func TestDeactivate_ClearsCadence(t *testing.T) {
	f := newFixture(t)
	f.leads.lead.ActivePlaybook = &domain.ActivePlaybook{PlaybookID: f.playbook.ID, PlaybookName: f.playbook.Name, StartedAt: time.Now()}

	lead, err := f.engine.Deactivate(context.Background(), f.leads.lead.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !f.leads.deactivated {
		t.Fatal("expected a write")
	}
	if lead.ActivePlaybook != nil {
		t.Fatal("active playbook must be cleared")
	}
	if len(f.bus.published) != 1 || f.bus.published[0].EventName() != "playbooks.deactivated" {
		t.Fatalf("published = %v", f.bus.published)
	}
}

func cadenceTask(leadID, playbookID uuid.UUID, idx int, status tasks.Status) tasks.Task {
	i := idx
	pbID := playbookID
	return tasks.Task{
		ID:                uuid.New(),
		LeadID:            leadID,
		Status:            status,
		PlaybookID:        &pbID,
		PlaybookStepIndex: &i,
	}
}

func TestOnTaskStatusChanged_AdvancesWhenCadenceCompletes(t *testing.T) {
	f := newFixture(t)
	f.leads.lead.ActivePlaybook = &domain.ActivePlaybook{PlaybookID: f.playbook.ID, PlaybookName: f.playbook.Name, StartedAt: time.Now()}

	done := cadenceTask(f.leads.lead.ID, f.playbook.ID, 2, tasks.StatusCompleted)
	f.tasks.tasks = []tasks.Task{
		cadenceTask(f.leads.lead.ID, f.playbook.ID, 0, tasks.StatusCompleted),
		cadenceTask(f.leads.lead.ID, f.playbook.ID, 1, tasks.StatusCompleted),
		done,
	}

	if err := f.engine.OnTaskStatusChanged(context.Background(), done); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.advancer.calls != 1 {
		t.Fatalf("advancer called %d times, want 1", f.advancer.calls)
	}
	if f.advancer.stageID != f.followUp.ID {
		t.Fatalf("advanced to %s, want next stage %s", f.advancer.stageID, f.followUp.ID)
	}
	if f.advancer.cause != transition.CauseCadenceCompletion {
		t.Fatalf("cause = %q, want cadence_completion", f.advancer.cause)
	}

	if len(f.bus.published) != 1 || f.bus.published[0].EventName() != "cadence.completed" {
		t.Fatalf("published = %v", f.bus.published)
	}
}

func TestOnTaskStatusChanged_WaitsForRemainingTasks(t *testing.T) {
	f := newFixture(t)
	f.leads.lead.ActivePlaybook = &domain.ActivePlaybook{PlaybookID: f.playbook.ID, PlaybookName: f.playbook.Name, StartedAt: time.Now()}

	done := cadenceTask(f.leads.lead.ID, f.playbook.ID, 0, tasks.StatusCompleted)
	f.tasks.tasks = []tasks.Task{
		done,
		cadenceTask(f.leads.lead.ID, f.playbook.ID, 1, tasks.StatusPending),
	}

	if err := f.engine.OnTaskStatusChanged(context.Background(), done); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.advancer.calls != 0 {
		t.Fatal("must not advance while cadence tasks are pending")
	}
}

func TestOnTaskStatusChanged_IgnoresForeignAndManualTasks(t *testing.T) {
	f := newFixture(t)
	f.leads.lead.ActivePlaybook = &domain.ActivePlaybook{PlaybookID: f.playbook.ID, PlaybookName: f.playbook.Name, StartedAt: time.Now()}

	manual := tasks.Task{ID: uuid.New(), LeadID: f.leads.lead.ID, Status: tasks.StatusCompleted}
	if err := f.engine.OnTaskStatusChanged(context.Background(), manual); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	foreign := cadenceTask(f.leads.lead.ID, uuid.New(), 0, tasks.StatusCompleted)
	if err := f.engine.OnTaskStatusChanged(context.Background(), foreign); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	pending := cadenceTask(f.leads.lead.ID, f.playbook.ID, 0, tasks.StatusPending)
	if err := f.engine.OnTaskStatusChanged(context.Background(), pending); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if f.advancer.calls != 0 {
		t.Fatal("no advancement expected")
	}
}

func TestOnTaskStatusChanged_NoNextStageIsNoop(t *testing.T) {
	f := newFixture(t)
	f.leads.lead.ColumnID = f.won.ID
	f.leads.lead.ActivePlaybook = &domain.ActivePlaybook{PlaybookID: f.playbook.ID, PlaybookName: f.playbook.Name, StartedAt: time.Now()}

	done := cadenceTask(f.leads.lead.ID, f.playbook.ID, 0, tasks.StatusCompleted)
	f.tasks.tasks = []tasks.Task{done}

	if err := f.engine.OnTaskStatusChanged(context.Background(), done); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.advancer.calls != 0 {
		t.Fatal("a lead in the last stage must not advance")
	}
}
