package jobqueue

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/FactFox/app/repository"
	"github.com/ManuelReschke/FactFox/internal/pkg/analyzer"
	"github.com/ManuelReschke/FactFox/internal/pkg/database"
	"github.com/ManuelReschke/FactFox/internal/pkg/env"
	"github.com/ManuelReschke/FactFox/internal/pkg/fetcher"
	counter "github.com/ManuelReschke/FactFox/internal/pkg/metrics/counter"
)

const defaultCounterFlushInterval = time.Minute

// Manager manages the global job queue and background tasks
type Manager struct {
	queue              *Queue
	counterFlushTicker *time.Ticker
	stopCh             chan struct{}
	wg                 sync.WaitGroup
	mu                 sync.Mutex
	running            bool
}

var (
	globalManager *Manager
	managerOnce   sync.Once
)

// GetManager returns the global job queue manager (singleton)
func GetManager() *Manager {
	managerOnce.Do(func() {
		workerCount := env.GetEnvInt("JOBQUEUE_WORKERS", 3)
		if workerCount <= 0 {
			workerCount = 3
		}

		repos := repository.NewRepositories(database.GetDB())
		processor := NewFactCheckProcessor(
			repos,
			fetcher.NewClient(),
			analyzer.NewClient(analyzer.ConfigFromEnv(), analyzer.NewSearchProviderFromEnv()),
		)

		globalManager = &Manager{
			queue:  NewQueue(workerCount, processor),
			stopCh: make(chan struct{}),
		}
	})
	return globalManager
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

	// Periodically flush the Redis pipeline counters into MySQL
	m.counterFlushTicker = time.NewTicker(defaultCounterFlushInterval)
	m.wg.Add(1)
	go m.counterFlushWorker()
}

// Stop stops the job queue and background tasks
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[JobQueue Manager] Stopping job queue and background tasks")
	close(m.stopCh)
	m.running = false

	if m.counterFlushTicker != nil {
		m.counterFlushTicker.Stop()
	}

	m.queue.Stop()
	m.wg.Wait()
	log.Info("[JobQueue Manager] Stopped")
}

// counterFlushWorker flushes the pipeline counters on a fixed interval
func (m *Manager) counterFlushWorker() {
	defer m.wg.Done()

	for {
		select {
		case <-m.stopCh:
			// Final flush so counts survive a graceful shutdown
			if err := counter.FlushAll(); err != nil {
				log.Errorf("[JobQueue Manager] Final counter flush failed: %v", err)
			}
			return
		case <-m.counterFlushTicker.C:
			if err := counter.FlushAll(); err != nil {
				log.Errorf("[JobQueue Manager] Counter flush failed: %v", err)
			}
		}
	}
}
