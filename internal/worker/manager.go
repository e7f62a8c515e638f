package worker

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"microblog/internal/queue"
)

const (
	// DefaultWorkerCount is the default number of worker goroutines.
	DefaultWorkerCount = 2

	// DefaultBatchSize is the number of messages to read per batch.
	DefaultBatchSize = 10

	// DefaultBlockTimeout is how long to block waiting for new messages.
	DefaultBlockTimeout = 5 * time.Second

	// DefaultMaxDeliveries bounds redelivery: a message still failing after
	// this many deliveries is dead-lettered.
	DefaultMaxDeliveries = 5
)

// Manager orchestrates worker goroutines draining the feed stream.
type Manager struct {
	consumer      queue.Consumer
	handler       *Handler
	workerCount   int
	batchSize     int64
	blockTime     time.Duration
	maxDeliveries int64

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// ManagerConfig holds configuration for the worker manager.
type ManagerConfig struct {
	WorkerCount   int
	BatchSize     int64
	BlockTimeout  time.Duration
	MaxDeliveries int64
}

// DefaultManagerConfig returns sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		WorkerCount:   DefaultWorkerCount,
		BatchSize:     DefaultBatchSize,
		BlockTimeout:  DefaultBlockTimeout,
		MaxDeliveries: DefaultMaxDeliveries,
	}
}

// NewManager creates a new worker manager.
func NewManager(consumer queue.Consumer, handler *Handler, cfg ManagerConfig) *Manager {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = DefaultWorkerCount
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BlockTimeout <= 0 {
		cfg.BlockTimeout = DefaultBlockTimeout
	}
	if cfg.MaxDeliveries <= 0 {
		cfg.MaxDeliveries = DefaultMaxDeliveries
	}

	return &Manager{
		consumer:      consumer,
		handler:       handler,
		workerCount:   cfg.WorkerCount,
		batchSize:     cfg.BatchSize,
		blockTime:     cfg.BlockTimeout,
		maxDeliveries: cfg.MaxDeliveries,
	}
}

// Start begins the worker goroutines. Call Stop to shut down.
func (m *Manager) Start(ctx context.Context) error {
	m.ctx, m.cancel = context.WithCancel(ctx)

	if err := m.consumer.EnsureGroup(m.ctx, queue.StreamFeed, queue.ConsumerGroupFeed); err != nil {
		return err
	}

	log.Printf("[Manager] Starting %d workers for stream=%s group=%s",
		m.workerCount, queue.StreamFeed, queue.ConsumerGroupFeed)

	for i := 0; i < m.workerCount; i++ {
		workerID := i + 1
		consumerName := consumerNameForWorker(workerID)

		m.wg.Add(1)
		go m.runWorker(workerID, consumerName)
	}

	return nil
}

// Stop gracefully shuts down all workers. Blocks until they have finished.
func (m *Manager) Stop() {
	log.Printf("[Manager] Stopping workers...")
	m.cancel()
	m.wg.Wait()
	log.Printf("[Manager] All workers stopped")
}

func (m *Manager) runWorker(workerID int, consumerName string) {
	defer m.wg.Done()

	log.Printf("[Worker-%d] Started (consumer=%s)", workerID, consumerName)

	for {
		select {
		case <-m.ctx.Done():
			log.Printf("[Worker-%d] Shutting down", workerID)
			return
		default:
			m.processMessages(workerID, consumerName)
		}
	}
}

func (m *Manager) processMessages(workerID int, consumerName string) {
	messages, err := m.consumer.Read(
		m.ctx,
		queue.StreamFeed,
		queue.ConsumerGroupFeed,
		consumerName,
		m.batchSize,
		m.blockTime,
	)
	if err != nil {
		if m.ctx.Err() != nil {
			return
		}
		log.Printf("[Worker-%d] Error reading: %v", workerID, err)
		time.Sleep(time.Second) // back off on error
		return
	}

	for _, msg := range messages {
		m.handleMessage(workerID, msg)
	}
}

// handleMessage processes one delivery: ack on success, redeliver on
// failure, dead-letter once the delivery budget is exhausted.
func (m *Manager) handleMessage(workerID int, msg queue.Message) {
	err := m.handler.HandleEvent(m.ctx, msg.Event)
	if err == nil {
		if err := m.consumer.Ack(m.ctx, queue.StreamFeed, queue.ConsumerGroupFeed, msg.ID); err != nil {
			log.Printf("[Worker-%d] ACK error msgID=%s: %v", workerID, msg.ID, err)
		}
		return
	}

	if msg.Attempts >= m.maxDeliveries {
		reason := fmt.Sprintf("handler failed after %d deliveries: %v", msg.Attempts, err)
		if dlErr := m.consumer.DeadLetter(m.ctx, queue.StreamFeed, queue.ConsumerGroupFeed, msg, reason); dlErr != nil {
			log.Printf("[Worker-%d] dead-letter error msgID=%s: %v", workerID, msg.ID, dlErr)
		}
		return
	}

	log.Printf("[Worker-%d] Handler error msgID=%s attempt=%d/%d: %v",
		workerID, msg.ID, msg.Attempts, m.maxDeliveries, err)
	if nackErr := m.consumer.Nack(m.ctx, queue.StreamFeed, queue.ConsumerGroupFeed, msg.ID); nackErr != nil {
		log.Printf("[Worker-%d] NACK error msgID=%s: %v", workerID, msg.ID, nackErr)
	}
}

// consumerNameForWorker generates a consumer name unique across worker
// processes sharing the group.
func consumerNameForWorker(workerID int) string {
	return fmt.Sprintf("worker-%d-%s", workerID, uuid.NewString()[:8])
}
