// Package reactivation scans lost leads whose scheduled reactivation date has
// arrived and creates a reminder task plus an owner notification for each.
// The sweep is idempotent: every reminder carries a deterministic source key
// and the insert deduplicates on it, so overlapping sweeps cannot double up.
package reactivation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"crm_pipeline_backend/internal/events"
	"crm_pipeline_backend/internal/leads/domain"
	"crm_pipeline_backend/internal/tasks"
	"crm_pipeline_backend/platform/logger"

	"golang.org/x/sync/errgroup"
)

// LeadLister returns the leads whose reactivation date is due.
type LeadLister interface {
	ListReactivationDue(ctx context.Context, asOf time.Time) ([]domain.Lead, error)
}

// TaskCreator inserts reminder tasks with source-key deduplication.
type TaskCreator interface {
	CreateIfSourceAbsent(ctx context.Context, p tasks.CreateParams) (tasks.Task, bool, error)
}

// Report summarizes one sweep run.
type Report struct {
	Scanned int
	Created int
	Skipped int
	Failed  int
}

// Sweep is the reactivation scanner.
type Sweep struct {
	leads       LeadLister
	tasks       TaskCreator
	bus         events.Bus
	log         *logger.Logger
	concurrency int
	now         func() time.Time
}

// New creates a sweep that processes up to concurrency leads in parallel.
func New(leads LeadLister, taskCreator TaskCreator, bus events.Bus, log *logger.Logger, concurrency int) *Sweep {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Sweep{
		leads:       leads,
		tasks:       taskCreator,
		bus:         bus,
		log:         log,
		concurrency: concurrency,
		now:         time.Now,
	}
}

// SourceKey is the deterministic idempotency key of one lead's reminder for
// one reactivation date.
func SourceKey(leadID fmt.Stringer, day time.Time) string {
	return fmt.Sprintf("reactivation:%s:%s", leadID, day.Format("2006-01-02"))
}

// Run executes one sweep. Per-lead failures are logged and counted but never
// abort the run; only the initial listing can fail the sweep as a whole.
func (s *Sweep) Run(ctx context.Context) (Report, error) {
	today := s.now().Truncate(24 * time.Hour)

	due, err := s.leads.ListReactivationDue(ctx, today)
	if err != nil {
		return Report{}, err
	}

	var (
		mu     sync.Mutex
		report = Report{Scanned: len(due)}
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for _, lead := range due {
		lead := lead
		g.Go(func() error {
			created, err := s.processLead(ctx, lead, today)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				report.Failed++
				s.log.SweepFailure(lead.ID.String(), err)
			case created:
				report.Created++
			default:
				report.Skipped++
			}
			return nil
		})
	}

	// Goroutines never return errors; Wait only joins them.
	_ = g.Wait()

	s.log.Info("reactivation_sweep_done",
		"scanned", report.Scanned,
		"created", report.Created,
		"skipped", report.Skipped,
		"failed", report.Failed,
	)
	return report, nil
}

func (s *Sweep) processLead(ctx context.Context, lead domain.Lead, today time.Time) (bool, error) {
	if lead.ReactivationDate == nil {
		return false, nil
	}
	day := lead.ReactivationDate.Truncate(24 * time.Hour)
	if day.After(today) {
		return false, nil
	}

	source := SourceKey(lead.ID, day)
	task, created, err := s.tasks.CreateIfSourceAbsent(ctx, tasks.CreateParams{
		LeadID:  lead.ID,
		UserID:  lead.OwnerID,
		Type:    tasks.TypeTask,
		Title:   fmt.Sprintf("Reactivate lead: %s", lead.Name),
		DueDate: today,
		Source:  &source,
	})
	if err != nil {
		return false, err
	}
	if !created {
		return false, nil
	}

	s.bus.Publish(ctx, events.LeadReactivationDue{
		BaseEvent: events.NewBaseEvent(),
		LeadID:    lead.ID,
		LeadName:  lead.Name,
		OwnerID:   lead.OwnerID,
		TaskID:    task.ID,
		DueDate:   today,
	})
	return true, nil
}
