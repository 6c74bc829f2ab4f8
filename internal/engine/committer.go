package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"capsim/internal/store"
)

// retryBaseDelay is doubled on each failed flush attempt.
const retryBaseDelay = 50 * time.Millisecond

// Committer buffers persistence writes and flushes them in batches so the
// event loop never blocks on the database per event. Participant and trend
// buffers deduplicate by id, last write wins; event and history buffers are
// append-only and preserve order.
type Committer struct {
	repo store.Repository
	log  zerolog.Logger

	batchSize  int
	timeout    time.Duration
	everyN     int
	maxRetries int

	participants map[uuid.UUID]store.ParticipantRow
	history      []store.AttributeHistoryRow
	trendRows    map[uuid.UUID]store.TrendRow
	eventRows    []store.EventRow

	lastFlush   time.Time
	sinceFlush  int
	flushes     int64
	rowsFlushed int64
}

// NewCommitter returns a committer flushing at batchSize buffered rows, after
// timeout wall time (realtime pacing), or every everyN processed events (fast
// pacing).
func NewCommitter(repo store.Repository, log zerolog.Logger, batchSize int, timeout time.Duration, everyN, maxRetries int) *Committer {
	return &Committer{
		repo:         repo,
		log:          log,
		batchSize:    batchSize,
		timeout:      timeout,
		everyN:       everyN,
		maxRetries:   maxRetries,
		participants: make(map[uuid.UUID]store.ParticipantRow),
		trendRows:    make(map[uuid.UUID]store.TrendRow),
		lastFlush:    time.Now(),
	}
}

// AddParticipant buffers an agent snapshot, replacing any buffered snapshot
// for the same agent.
func (c *Committer) AddParticipant(row store.ParticipantRow) {
	c.participants[row.PersonID] = row
}

// AddHistory buffers attribute change rows in order.
func (c *Committer) AddHistory(rows ...store.AttributeHistoryRow) {
	c.history = append(c.history, rows...)
}

// AddTrend buffers a trend snapshot, last write wins.
func (c *Committer) AddTrend(row store.TrendRow) {
	c.trendRows[row.ID] = row
}

// AddEvent buffers a processed event record.
func (c *Committer) AddEvent(row store.EventRow) {
	c.eventRows = append(c.eventRows, row)
	c.sinceFlush++
}

// Size returns the number of buffered rows across all buffers.
func (c *Committer) Size() int {
	return len(c.participants) + len(c.history) + len(c.trendRows) + len(c.eventRows)
}

// ShouldFlush reports whether the buffers are due. Realtime pacing uses the
// wall timeout; fast pacing counts processed events between flushes.
func (c *Committer) ShouldFlush(realtime bool) bool {
	if c.Size() == 0 {
		return false
	}
	if c.Size() >= c.batchSize {
		return true
	}
	if realtime {
		return time.Since(c.lastFlush) >= c.timeout
	}
	return c.sinceFlush >= c.everyN
}

// Flush writes all buffered rows, participants first so attribute history
// and trends never reference agents with stale snapshots. Transient store
// errors are retried with exponential backoff; on success the buffers reset.
func (c *Committer) Flush(ctx context.Context) error {
	if c.Size() == 0 {
		c.lastFlush = time.Now()
		c.sinceFlush = 0
		return nil
	}

	parts := make([]store.ParticipantRow, 0, len(c.participants))
	for _, row := range c.participants {
		parts = append(parts, row)
	}
	trendRows := make([]store.TrendRow, 0, len(c.trendRows))
	for _, row := range c.trendRows {
		trendRows = append(trendRows, row)
	}

	var err error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := retryBaseDelay << (attempt - 1)
			c.log.Warn().Err(err).Int("attempt", attempt).Dur("backoff", delay).Msg("flush retry")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
		err = c.flushOnce(ctx, parts, trendRows)
		if err == nil {
			rows := int64(c.Size())
			c.participants = make(map[uuid.UUID]store.ParticipantRow)
			c.history = c.history[:0]
			c.trendRows = make(map[uuid.UUID]store.TrendRow)
			c.eventRows = c.eventRows[:0]
			c.lastFlush = time.Now()
			c.sinceFlush = 0
			c.flushes++
			c.rowsFlushed += rows
			return nil
		}
		if !store.IsRetryable(err) {
			break
		}
	}
	return err
}

func (c *Committer) flushOnce(ctx context.Context, parts []store.ParticipantRow, trendRows []store.TrendRow) error {
	if err := c.repo.UpsertParticipants(ctx, parts); err != nil {
		return err
	}
	if err := c.repo.AppendAttributeHistory(ctx, c.history); err != nil {
		return err
	}
	if err := c.repo.UpsertTrends(ctx, trendRows); err != nil {
		return err
	}
	return c.repo.AppendEvents(ctx, c.eventRows)
}

// Stats returns flush count and total rows written so far.
func (c *Committer) Stats() (flushes, rows int64) {
	return c.flushes, c.rowsFlushed
}
