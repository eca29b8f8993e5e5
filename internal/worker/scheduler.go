package worker

import (
	"context"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/martinsuchenak/ipamd/internal/log"
)

// SyncFunc runs one synchronization pass
type SyncFunc func(ctx context.Context) error

// Scheduler runs periodic source synchronization on a cron schedule.
// TriggerSync runs a pass out of band; concurrent passes are coalesced
// so a slow sync never stacks up behind the schedule.
type Scheduler struct {
	mu       sync.Mutex
	cron     *cron.Cron
	syncFn   SyncFunc
	schedule string
	running  bool
	syncing  bool
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewScheduler creates a scheduler with a cron schedule expression
// (e.g. "@every 10m" or "0 */4 * * *")
func NewScheduler(schedule string, syncFn SyncFunc) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:     cron.New(),
		syncFn:   syncFn,
		schedule: schedule,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start registers the cron entry and begins scheduling
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	if _, err := s.cron.AddFunc(s.schedule, func() { s.runSync("schedule") }); err != nil {
		return err
	}

	s.cron.Start()
	s.running = true
	log.Info("Sync scheduler started", "schedule", s.schedule)
	return nil
}

// Stop cancels the running sync (if any) and waits for it to finish
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	log.Info("Stopping sync scheduler")
	<-s.cron.Stop().Done()
	s.cancel()
	s.wg.Wait()
}

// TriggerSync starts a sync pass immediately. Returns false when a pass
// is already in flight.
func (s *Scheduler) TriggerSync() bool {
	s.mu.Lock()
	if s.syncing {
		s.mu.Unlock()
		return false
	}
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runSync("manual")
	}()
	return true
}

func (s *Scheduler) runSync(trigger string) {
	s.mu.Lock()
	if s.syncing {
		s.mu.Unlock()
		log.Debug("Sync already in progress, skipping", "trigger", trigger)
		return
	}
	s.syncing = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.syncing = false
		s.mu.Unlock()
	}()

	log.Info("Running sync", "trigger", trigger)
	if err := s.syncFn(s.ctx); err != nil {
		log.Error("Sync finished with errors", "trigger", trigger, "error", err)
		return
	}
	log.Info("Sync completed", "trigger", trigger)
}
