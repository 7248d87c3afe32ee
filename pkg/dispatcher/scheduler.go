package dispatcher

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/campusflow/campusflow/pkg/events"
	"github.com/campusflow/campusflow/pkg/models"
)

type scheduleEntry struct {
	entryID cron.EntryID
	expr    string
}

// scheduler evaluates cron expressions for schedule-triggered definitions.
// At most one scheduled execution per definition runs at a time; an
// overlapping fire is skipped and logged against the still-running execution.
type scheduler struct {
	logger *slog.Logger
	d      *Dispatcher
	cron   *cron.Cron

	mu       sync.Mutex
	entries  map[string]scheduleEntry
	inflight map[string]string // definition id -> running scheduled execution id
}

func newScheduler(logger *slog.Logger, d *Dispatcher) *scheduler {
	return &scheduler{
		logger:   logger,
		d:        d,
		cron:     cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger))),
		entries:  make(map[string]scheduleEntry),
		inflight: make(map[string]string),
	}
}

func (s *scheduler) start() {
	s.cron.Start()
}

func (s *scheduler) stop() {
	s.cron.Stop()
}

// reload reconciles cron entries with the given definition id -> cron
// expression set.
func (s *scheduler) reload(schedules map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, entry := range s.entries {
		expr, keep := schedules[id]
		if keep && expr == entry.expr {
			continue
		}

		s.cron.Remove(entry.entryID)
		delete(s.entries, id)
	}

	for id, expr := range schedules {
		if _, ok := s.entries[id]; ok {
			continue
		}

		definitionID := id

		entryID, err := s.cron.AddFunc(expr, func() {
			s.fire(definitionID)
		})
		if err != nil {
			s.logger.Error("Failed to register schedule",
				"definition_id", id, "cron", expr, "error", err)

			continue
		}

		s.entries[id] = scheduleEntry{entryID: entryID, expr: expr}
	}
}

// fire handles one cron firing for a definition. The per-definition lock is
// held only for the overlap check and slot reservation, never across the
// execution itself.
func (s *scheduler) fire(definitionID string) {
	ctx := context.Background()

	s.mu.Lock()
	runningID, busy := s.inflight[definitionID]

	if busy {
		s.mu.Unlock()
		s.skipOverlap(ctx, definitionID, runningID)

		return
	}

	s.inflight[definitionID] = ""
	s.mu.Unlock()

	def, err := s.d.persist.DefinitionByID(ctx, definitionID)
	if err != nil || !def.IsActive {
		s.release(definitionID)

		if err != nil {
			s.logger.ErrorContext(ctx, "Failed to load scheduled definition",
				"definition_id", definitionID, "error", err)
		}

		return
	}

	payload := map[string]any{
		"scheduled_at": time.Now().UTC().Format(time.RFC3339),
	}

	handle, err := s.d.engine.Execute(ctx, def, payload)
	if err != nil {
		s.release(definitionID)
		s.logger.ErrorContext(ctx, "Failed to start scheduled execution",
			"definition_id", definitionID, "error", err)

		return
	}

	s.mu.Lock()
	s.inflight[definitionID] = handle.ExecutionID
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "Started scheduled execution",
		"definition_id", definitionID, "execution_id", handle.ExecutionID)

	go func() {
		<-handle.Done
		s.release(definitionID)
	}()
}

// skipOverlap records a skipped firing: a warn entry on the still-running
// execution's log plus a lifecycle event, and no new execution.
func (s *scheduler) skipOverlap(ctx context.Context, definitionID, runningID string) {
	s.logger.WarnContext(ctx, "Skipping scheduled firing, previous run still in flight",
		"code", models.LogCodeSkippedOverlap,
		"definition_id", definitionID,
		"running_execution_id", runningID)

	if runningID != "" {
		entry := models.LogEntry{
			ID:        uuid.New().String(),
			Timestamp: time.Now().UTC(),
			Level:     models.LogLevelWarn,
			Code:      models.LogCodeSkippedOverlap,
			Message:   "scheduled firing skipped: previous run of this definition is still running",
		}

		if err := s.d.persist.AppendLog(ctx, runningID, entry); err != nil {
			s.logger.ErrorContext(ctx, "Failed to append overlap log entry",
				"execution_id", runningID, "error", err)
		}
	}

	if s.d.bus != nil {
		event := events.ExecutionSkipped{
			BaseEvent:          events.NewBaseEvent(events.ExecutionSkippedEvent, definitionID),
			RunningExecutionID: runningID,
			Reason:             "scheduled overlap",
		}

		if err := s.d.bus.Publish(ctx, definitionID, event); err != nil {
			s.logger.ErrorContext(ctx, "Failed to publish skip event",
				"definition_id", definitionID, "error", err)
		}
	}
}

func (s *scheduler) release(definitionID string) {
	s.mu.Lock()
	delete(s.inflight, definitionID)
	s.mu.Unlock()
}
