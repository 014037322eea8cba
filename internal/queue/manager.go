// -----------------------------------------------------------------------
// Last Modified: Monday, 16th February 2026 8:55:19 am
// Modified By: Bob McAllan
// -----------------------------------------------------------------------

package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
)

const defaultQueueName = "enrich"

// envelope wraps a queue message with delivery bookkeeping. Stored at
// queue:{name}:msg:{id}; a visibility index key at
// queue:{name}:index:{visibleAt}:{id} keeps FIFO scans cheap.
type envelope struct {
	Message      models.QueueMessage `json:"message"`
	VisibleAt    time.Time           `json:"visible_at"`
	ReceiveCount int                 `json:"receive_count"`
}

// Manager is the durable FIFO work queue. Message durability lives in a
// raw Badger keyspace; execution bookkeeping lives in the JobRecord
// registry so terminal history survives message deletion.
type Manager struct {
	db                *badger.DB
	jobs              interfaces.JobStorage
	events            interfaces.EventService
	logger            arbor.ILogger
	queueName         string
	visibilityTimeout time.Duration
	maxReceive        int
}

// NewManager creates a queue manager on the shared Badger database.
func NewManager(db *badger.DB, jobs interfaces.JobStorage, events interfaces.EventService, logger arbor.ILogger, config *common.QueueConfig) (*Manager, error) {
	if db == nil {
		return nil, errors.New("badger db is required")
	}
	if jobs == nil {
		return nil, errors.New("job storage is required")
	}

	visibility := common.Duration(config.VisibilityTimeout, 10*time.Minute)
	maxReceive := config.MaxReceive
	if maxReceive <= 0 {
		maxReceive = 3
	}

	return &Manager{
		db:                db,
		jobs:              jobs,
		events:            events,
		logger:            logger,
		queueName:         defaultQueueName,
		visibilityTimeout: visibility,
		maxReceive:        maxReceive,
	}, nil
}

// Enqueue appends a task to the tail of the queue and registers a queued
// JobRecord. No duplicate check is performed; entity-level idempotence in
// the task functions makes duplicate submissions harmless.
func (m *Manager) Enqueue(ctx context.Context, kind models.JobKind, entityKey string, args []string) (string, error) {
	if !kind.IsValid() {
		return "", fmt.Errorf("unknown job kind %q", kind)
	}
	if entityKey == "" && kind != models.JobKindCrawl {
		return "", errors.New("entity key is required")
	}
	if len(args) == 0 && entityKey != "" {
		args = []string{entityKey}
	}

	id := uuid.New().String()
	now := time.Now()

	env := envelope{
		Message: models.QueueMessage{
			ID:         id,
			Kind:       kind,
			EntityKey:  entityKey,
			Args:       args,
			EnqueuedAt: now,
		},
		VisibleAt:    now, // immediately visible
		ReceiveCount: 0,
	}

	data, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("failed to marshal queue message: %w", err)
	}

	err = m.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(m.msgKey(id), data); err != nil {
			return err
		}
		return txn.Set(m.indexKey(env.VisibleAt, id), []byte{})
	})
	if err != nil {
		return "", fmt.Errorf("failed to enqueue message: %w", err)
	}

	record := &models.JobRecord{
		JobID:      id,
		Kind:       kind,
		EntityKey:  entityKey,
		Args:       args,
		Status:     models.QueueStatusQueued,
		EnqueuedAt: now,
	}
	if err := m.jobs.SaveRecord(ctx, record); err != nil {
		return "", fmt.Errorf("failed to register job record: %w", err)
	}

	m.publish(models.EventJobEnqueued, record, nil)
	m.logger.Debug().
		Str("job_id", id).
		Str("kind", string(kind)).
		Str("entity_key", entityKey).
		Msg("Job enqueued")

	return id, nil
}

// Receive pulls the earliest visible message, marks it invisible for the
// visibility window, and transitions its record to started. Returns
// models.ErrNoMessage when the queue is empty.
func (m *Manager) Receive(ctx context.Context) (*models.QueueMessage, error) {
	var claimed envelope

	err := m.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		prefix := []byte(fmt.Sprintf("queue:%s:index:", m.queueName))
		it := txn.NewIterator(opts)
		defer it.Close()

		now := time.Now()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			indexKey := it.Item().KeyCopy(nil)

			visibleAt, id, err := m.parseIndexKey(indexKey)
			if err != nil {
				continue
			}
			if visibleAt.After(now) {
				// Index keys sort by timestamp; nothing later is ready.
				break
			}

			item, err := txn.Get(m.msgKey(id))
			if err != nil {
				if err == badger.ErrKeyNotFound {
					// Orphaned index entry, clean it up.
					if err := txn.Delete(indexKey); err != nil {
						return err
					}
					continue
				}
				return err
			}

			var env envelope
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &env)
			}); err != nil {
				return err
			}

			if env.ReceiveCount >= m.maxReceive {
				// Poison pill: remove it and surface the loss in the
				// registry instead of looping forever.
				if err := txn.Delete(indexKey); err != nil {
					return err
				}
				if err := txn.Delete(m.msgKey(id)); err != nil {
					return err
				}
				m.logger.Warn().
					Str("job_id", id).
					Int("receive_count", env.ReceiveCount).
					Msg("Message exceeded max receive count, dropping")
				if err := m.jobs.MarkFailed(ctx, id, fmt.Sprintf("exceeded max receive count (%d)", m.maxReceive)); err != nil {
					m.logger.Warn().Err(err).Str("job_id", id).Msg("Failed to fail poison message record")
				}
				continue
			}

			// Claim: bump receive count and push visibility forward.
			env.ReceiveCount++
			env.VisibleAt = now.Add(m.visibilityTimeout)

			data, err := json.Marshal(env)
			if err != nil {
				return err
			}
			if err := txn.Set(m.msgKey(id), data); err != nil {
				return err
			}
			if err := txn.Delete(indexKey); err != nil {
				return err
			}
			if err := txn.Set(m.indexKey(env.VisibleAt, id), []byte{}); err != nil {
				return err
			}

			claimed = env
			return nil
		}

		return models.ErrNoMessage
	})
	if err != nil {
		return nil, err
	}

	if err := m.jobs.MarkStarted(ctx, claimed.Message.ID); err != nil {
		m.logger.Warn().Err(err).Str("job_id", claimed.Message.ID).Msg("Failed to mark job record started")
	}
	if record, err := m.jobs.GetRecord(ctx, claimed.Message.ID); err == nil {
		m.publish(models.EventJobStarted, record, nil)
	}

	return &claimed.Message, nil
}

// Complete acknowledges a message and finalizes its record as finished.
func (m *Manager) Complete(ctx context.Context, jobID string, result string) error {
	if err := m.deleteMessage(jobID); err != nil {
		return err
	}
	if err := m.jobs.MarkFinished(ctx, jobID, result); err != nil {
		return err
	}
	if record, err := m.jobs.GetRecord(ctx, jobID); err == nil {
		m.publish(models.EventJobFinished, record, nil)
	}
	return nil
}

// Fail acknowledges a message and finalizes its record as failed with the
// diagnostic text.
func (m *Manager) Fail(ctx context.Context, jobID string, errText string) error {
	if err := m.deleteMessage(jobID); err != nil {
		return err
	}
	if err := m.jobs.MarkFailed(ctx, jobID, errText); err != nil {
		return err
	}
	if record, err := m.jobs.GetRecord(ctx, jobID); err == nil {
		m.publish(models.EventJobFailed, record, map[string]any{"error": errText})
	}
	return nil
}

// Cancel removes a job that has not been received yet. The check and the
// message removal happen in one transaction, so a cancel racing a worker
// receive cannot both succeed.
func (m *Manager) Cancel(ctx context.Context, jobID string) (bool, error) {
	err := m.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(m.msgKey(jobID))
		if err != nil {
			return err
		}

		var env envelope
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &env)
		}); err != nil {
			return err
		}

		if env.ReceiveCount > 0 {
			// Already claimed by a worker at least once.
			return errNotQueued
		}

		if err := txn.Delete(m.indexKey(env.VisibleAt, jobID)); err != nil && err != badger.ErrKeyNotFound {
			return err
		}
		return txn.Delete(m.msgKey(jobID))
	})
	if err != nil {
		if err == badger.ErrKeyNotFound || err == errNotQueued || err == badger.ErrConflict {
			return false, nil
		}
		return false, fmt.Errorf("failed to cancel job %s: %w", jobID, err)
	}

	if err := m.jobs.MarkCanceled(ctx, jobID); err != nil {
		m.logger.Warn().Err(err).Str("job_id", jobID).Msg("Failed to mark job record canceled")
	}
	if record, err := m.jobs.GetRecord(ctx, jobID); err == nil {
		m.publish(models.EventJobCanceled, record, nil)
	}

	m.logger.Info().Str("job_id", jobID).Msg("Job canceled")
	return true, nil
}

// Retry re-enqueues a failed job with its original arguments under a
// fresh identity. Any non-failed status returns an empty id and no error.
func (m *Manager) Retry(ctx context.Context, jobID string) (string, error) {
	record, err := m.jobs.GetRecord(ctx, jobID)
	if err != nil {
		return "", err
	}
	if record.Status != models.QueueStatusFailed {
		return "", nil
	}

	newID, err := m.Enqueue(ctx, record.Kind, record.EntityKey, record.Args)
	if err != nil {
		return "", err
	}

	if newRecord, err := m.jobs.GetRecord(ctx, newID); err == nil {
		newRecord.RetryOf = jobID
		if err := m.jobs.SaveRecord(ctx, newRecord); err != nil {
			m.logger.Warn().Err(err).Str("job_id", newID).Msg("Failed to link retry record")
		}
		m.publish(models.EventJobRetried, newRecord, map[string]any{"retry_of": jobID})
	}

	m.logger.Info().
		Str("job_id", jobID).
		Str("new_job_id", newID).
		Msg("Failed job re-enqueued")
	return newID, nil
}

// Position reports the 1-based FIFO position of a job among the
// messages currently visible to workers. The boolean is false when the
// job is not waiting in the queue (already claimed, terminal, or
// unknown).
func (m *Manager) Position(ctx context.Context, jobID string) (int, bool, error) {
	position := 0
	found := false

	err := m.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		prefix := []byte(fmt.Sprintf("queue:%s:index:", m.queueName))
		it := txn.NewIterator(opts)
		defer it.Close()

		now := time.Now()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			visibleAt, id, err := m.parseIndexKey(it.Item().KeyCopy(nil))
			if err != nil {
				continue
			}
			if visibleAt.After(now) {
				break
			}
			position++
			if id == jobID {
				found = true
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return 0, false, fmt.Errorf("failed to scan queue for job %s: %w", jobID, err)
	}
	if !found {
		return 0, false, nil
	}
	return position, true, nil
}

// Depth returns the number of jobs currently queued.
func (m *Manager) Depth(ctx context.Context) (int, error) {
	stats, err := m.jobs.CountByStatus(ctx)
	if err != nil {
		return 0, err
	}
	return stats.Queued, nil
}

// Stats returns the per-status census of the registry.
func (m *Manager) Stats(ctx context.Context) (*models.QueueStats, error) {
	return m.jobs.CountByStatus(ctx)
}

// deleteMessage removes a message and its visibility index entry. Missing
// messages are not an error; acknowledgement is idempotent.
func (m *Manager) deleteMessage(jobID string) error {
	return m.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(m.msgKey(jobID))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return nil
			}
			return err
		}

		var env envelope
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &env)
		}); err != nil {
			return err
		}

		if err := txn.Delete(m.indexKey(env.VisibleAt, jobID)); err != nil && err != badger.ErrKeyNotFound {
			return err
		}
		return txn.Delete(m.msgKey(jobID))
	})
}

func (m *Manager) publish(eventType models.EventType, record *models.JobRecord, data map[string]any) {
	if m.events == nil {
		return
	}
	m.events.Publish(&models.Event{
		Type:      eventType,
		JobID:     record.JobID,
		Kind:      record.Kind,
		EntityKey: record.EntityKey,
		Timestamp: time.Now(),
		Data:      data,
	})
}

var errNotQueued = errors.New("job already received")

func (m *Manager) msgKey(id string) []byte {
	return []byte(fmt.Sprintf("queue:%s:msg:%s", m.queueName, id))
}

// indexKey zero-pads the timestamp to 20 digits so lexicographic key
// order matches numeric time order.
func (m *Manager) indexKey(visibleAt time.Time, id string) []byte {
	return []byte(fmt.Sprintf("queue:%s:index:%020d:%s", m.queueName, visibleAt.UnixNano(), id))
}

func (m *Manager) parseIndexKey(key []byte) (time.Time, string, error) {
	prefix := fmt.Sprintf("queue:%s:index:", m.queueName)
	if len(key) <= len(prefix) {
		return time.Time{}, "", fmt.Errorf("invalid index key length")
	}

	suffix := string(key[len(prefix):])
	if len(suffix) < 21 { // 20 digits + 1 colon
		return time.Time{}, "", fmt.Errorf("invalid index key suffix")
	}

	var ts int64
	if _, err := fmt.Sscanf(suffix[:20], "%d", &ts); err != nil {
		return time.Time{}, "", err
	}
	return time.Unix(0, ts), suffix[21:], nil
}
