package services

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/docuflow/backend/internal/config"
	"github.com/docuflow/backend/internal/domain/models"
)

// SchedulerService is the periodic driver of the engine. Each concern
// (expiry alerts, overdue detection, automatic workflows, integration sync)
// ticks on its own interval; discovered work runs on a bounded worker pool so
// a slow batch never blocks the driver loop, and per-item failures stay
// inside their job.
type SchedulerService struct {
	expiry   *ExpiryService
	workflow *WorkflowService
	sync     *IntegrationSyncService
	cfg      *config.Config

	slots    chan struct{}
	stopChan chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
	running  bool
	stopped  bool // Prevents double-close of stopChan
}

// NewSchedulerService creates a new scheduler service
func NewSchedulerService(expiry *ExpiryService, workflow *WorkflowService, sync *IntegrationSyncService, cfg *config.Config) *SchedulerService {
	poolSize := cfg.WorkerPoolSize
	if poolSize < 1 {
		poolSize = 1
	}
	return &SchedulerService{
		expiry:   expiry,
		workflow: workflow,
		sync:     sync,
		cfg:      cfg,
		slots:    make(chan struct{}, poolSize),
		stopChan: make(chan struct{}),
	}
}

// Start begins the scheduler background loop. Blocks until Stop is called.
func (s *SchedulerService) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	log.Println("⏰ Scheduler starting...")

	expiryTicker := time.NewTicker(s.cfg.ExpiryInterval)
	overdueTicker := time.NewTicker(s.cfg.OverdueInterval)
	triggerTicker := time.NewTicker(s.cfg.TriggerInterval)
	syncTicker := time.NewTicker(s.cfg.SyncInterval)
	defer expiryTicker.Stop()
	defer overdueTicker.Stop()
	defer triggerTicker.Stop()
	defer syncTicker.Stop()

	// Run every concern once on start
	s.runExpiryTick()
	s.runOverdueTick()
	s.runTriggerTick()
	s.runSyncTick()

	for {
		select {
		case <-expiryTicker.C:
			s.runExpiryTick()
		case <-overdueTicker.C:
			s.runOverdueTick()
		case <-triggerTicker.C:
			s.runTriggerTick()
		case <-syncTicker.C:
			s.runSyncTick()
		case <-s.stopChan:
			log.Println("⏰ Scheduler stopping...")
			s.wg.Wait() // Wait for in-flight jobs to complete
			log.Println("⏰ Scheduler stopped")
			return
		}
	}
}

// Stop gracefully stops the scheduler
func (s *SchedulerService) Stop() {
	s.mu.Lock()
	if !s.running || s.stopped {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.stopped = true
	s.mu.Unlock()

	close(s.stopChan)
}

// submit runs a job on the bounded pool. If every slot is busy the job is
// skipped; the next tick re-discovers the same work, which is safe because
// discovery is idempotent.
func (s *SchedulerService) submit(name string, job func(ctx context.Context)) {
	select {
	case s.slots <- struct{}{}:
	default:
		log.Printf("⚠️ Worker pool saturated, deferring %s to next tick", name)
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() { <-s.slots }()
		defer func() {
			if r := recover(); r != nil {
				log.Printf("🔥 Panic in scheduled job %s: %v", name, r)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.DispatchTimeout*4)
		defer cancel()
		job(ctx)
	}()
}

func (s *SchedulerService) runExpiryTick() {
	for _, tier := range []models.AlertTier{
		models.Tier30Days, models.Tier15Days, models.Tier7Days, models.TierExpired,
	} {
		t := tier
		s.submit("expiry-"+string(t), func(ctx context.Context) {
			fired, err := s.expiry.ProcessAlerts(ctx, t, time.Now().UTC())
			if err != nil {
				log.Printf("❌ Expiry tick (%s) failed: %v", t, err)
				return
			}
			if fired > 0 {
				log.Printf("✅ Expiry tick (%s): %d alert(s) fired", t, fired)
			}
		})
	}
}

func (s *SchedulerService) runOverdueTick() {
	s.submit("overdue", func(ctx context.Context) {
		notified, err := s.workflow.ProcessOverdue(ctx, time.Now().UTC())
		if err != nil {
			log.Printf("❌ Overdue tick failed: %v", err)
			return
		}
		if notified > 0 {
			log.Printf("✅ Overdue tick: %d instance(s) flagged", notified)
		}
	})
}

func (s *SchedulerService) runTriggerTick() {
	s.submit("trigger", func(ctx context.Context) {
		started, err := s.workflow.TriggerDueAutomaticWorkflows(ctx, time.Now().UTC())
		if err != nil {
			log.Printf("❌ Trigger tick failed: %v", err)
			return
		}
		if started > 0 {
			log.Printf("✅ Trigger tick: %d instance(s) started", started)
		}
	})
}

func (s *SchedulerService) runSyncTick() {
	s.submit("sync", func(ctx context.Context) {
		synced, err := s.sync.SyncDue(ctx, time.Now().UTC())
		if err != nil {
			log.Printf("❌ Sync tick failed: %v", err)
			return
		}
		if synced > 0 {
			log.Printf("✅ Sync tick: %d integration(s) synced", synced)
		}
	})
}
