package jobqueue

import (
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func offlineClient() *redis.Client {
	return redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
}

// TestNewQueue tests the queue constructor
func TestNewQueue(t *testing.T) {
	tests := []struct {
		name            string
		workers         int
		expectedWorkers int
	}{
		{"Valid worker count", 5, 5},
		{"Zero workers", 0, 3},
		{"Negative workers", -1, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			queue := NewQueue(offlineClient(), tt.workers)

			assert.NotNil(t, queue)
			assert.Equal(t, tt.expectedWorkers, queue.workers)
			assert.NotNil(t, queue.workerPool)
			assert.Equal(t, tt.expectedWorkers, cap(queue.workerPool))
			assert.NotNil(t, queue.stopCh)
			assert.Empty(t, queue.handlers)
			assert.False(t, queue.running)
		})
	}
}

func TestQueue_Register(t *testing.T) {
	queue := NewQueue(offlineClient(), 1)
	RegisterLedgerJobs(queue, &fakeLedger{})

	_, ok := queue.handler(JobTypeReconcileRefunds)
	assert.True(t, ok)
	_, ok = queue.handler(JobTypePurgeWebhooks)
	assert.True(t, ok)
	_, ok = queue.handler(JobType("unknown"))
	assert.False(t, ok)
}

func TestConstants(t *testing.T) {
	assert.Equal(t, "job:", JobKeyPrefix)
	assert.Equal(t, "job_queue", JobQueueKey)
	assert.Equal(t, "job_processing", JobProcessingKey)
	assert.Equal(t, "job_stats", JobStatsKey)

	assert.Equal(t, 3, DefaultMaxRetries)
	assert.Equal(t, 24*time.Hour, JobTTL)
	assert.Equal(t, time.Hour, CompletedJobTTL)
}
