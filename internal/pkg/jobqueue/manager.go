package jobqueue

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/CreatorVault/internal/pkg/env"
)

// Schedule sets how often the manager enqueues the ledger maintenance jobs.
type Schedule struct {
	ReconcileInterval time.Duration
	PurgeInterval     time.Duration
}

// ScheduleFromEnv reads RECONCILE_INTERVAL_MINUTES and PURGE_INTERVAL_HOURS.
func ScheduleFromEnv() Schedule {
	return Schedule{
		ReconcileInterval: time.Duration(env.GetEnvInt("RECONCILE_INTERVAL_MINUTES", 10)) * time.Minute,
		PurgeInterval:     time.Duration(env.GetEnvInt("PURGE_INTERVAL_HOURS", 24)) * time.Hour,
	}
}

// Manager runs the job queue and the tickers that feed it
type Manager struct {
	queue           *Queue
	schedule        Schedule
	reconcileTicker *time.Ticker
	purgeTicker     *time.Ticker
	stopCh          chan struct{}
	wg              sync.WaitGroup
	mu              sync.Mutex
	running         bool
}

func NewManager(queue *Queue, schedule Schedule) *Manager {
	if schedule.ReconcileInterval <= 0 {
		schedule.ReconcileInterval = 10 * time.Minute
	}
	if schedule.PurgeInterval <= 0 {
		schedule.PurgeInterval = 24 * time.Hour
	}
	return &Manager{
		queue:    queue,
		schedule: schedule,
		stopCh:   make(chan struct{}),
	}
}

// GetQueue returns the managed job queue
func (m *Manager) GetQueue() *Queue {
	return m.queue
}

// Start starts the job queue and background tasks
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	// Recreate stop channel for each start cycle so manager can be restarted safely.
	m.stopCh = make(chan struct{})
	m.running = true
	log.Info("[JobQueue Manager] Starting job queue and background tasks")

	m.queue.Start()

	m.reconcileTicker = time.NewTicker(m.schedule.ReconcileInterval)
	m.wg.Add(1)
	go m.tick(m.reconcileTicker, m.stopCh, JobTypeReconcileRefunds)

	m.purgeTicker = time.NewTicker(m.schedule.PurgeInterval)
	m.wg.Add(1)
	go m.tick(m.purgeTicker, m.stopCh, JobTypePurgeWebhooks)

	log.Infof("[JobQueue Manager] Started (reconcile every %s, purge every %s)",
		m.schedule.ReconcileInterval, m.schedule.PurgeInterval)
}

// Stop stops the job queue and background tasks
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[JobQueue Manager] Stopping job queue and background tasks...")

	if m.reconcileTicker != nil {
		m.reconcileTicker.Stop()
	}
	if m.purgeTicker != nil {
		m.purgeTicker.Stop()
	}

	close(m.stopCh)
	m.running = false
	m.wg.Wait()

	m.queue.Stop()

	log.Info("[JobQueue Manager] Stopped successfully")
}

func (m *Manager) tick(t *time.Ticker, stopCh chan struct{}, jobType JobType) {
	defer m.wg.Done()
	for {
		select {
		case <-stopCh:
			log.Infof("[JobQueue Manager] %s ticker stopping", jobType)
			return
		case <-t.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if _, err := m.queue.EnqueueJob(ctx, jobType, TriggerPayload{Trigger: "schedule"}.ToMap()); err != nil {
				log.Errorf("[JobQueue Manager] Failed to enqueue %s: %v", jobType, err)
			}
			cancel()
		}
	}
}

// Trigger enqueues a maintenance job on demand (admin endpoint).
func (m *Manager) Trigger(ctx context.Context, jobType JobType, initiatedBy uint) (*Job, error) {
	return m.queue.EnqueueJob(ctx, jobType, TriggerPayload{Trigger: "admin", InitiatedBy: initiatedBy}.ToMap())
}

// IsRunning returns whether the manager is currently running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}
