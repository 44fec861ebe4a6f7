package audio

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultMaxBuffered is how much caller audio an ingest queue holds before
// the oldest chunks are dropped.
const DefaultMaxBuffered = 2 * time.Second

var ErrQueueClosed = errors.New("audio queue closed")

// Chunk is one contiguous slice of caller audio as received from the media bridge.
type Chunk struct {
	CallID     string
	Sequence   uint64
	Data       []byte
	CapturedAt time.Time
}

type PushResult int

const (
	PushAccepted PushResult = iota
	PushOverflow
	PushOutOfOrder
	PushEmpty
	PushClosed
)

func (r PushResult) String() string {
	switch r {
	case PushAccepted:
		return "accepted"
	case PushOverflow:
		return "overflow"
	case PushOutOfOrder:
		return "out_of_order"
	case PushEmpty:
		return "empty"
	case PushClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Accepted reports whether the pushed chunk was queued.
func (r PushResult) Accepted() bool {
	return r == PushAccepted || r == PushOverflow
}

type QueueStats struct {
	Accepted      uint64 `json:"accepted"`
	OutOfOrder    uint64 `json:"out_of_order"`
	Overflow      uint64 `json:"overflow"`
	BufferedBytes int    `json:"buffered_bytes"`
}

// ChunkQueue is a single-consumer FIFO of audio chunks bounded by byte size.
// Push never blocks: chunks that do not advance the sequence are rejected and
// the oldest queued audio is dropped when the budget is exceeded.
type ChunkQueue struct {
	maxBytes int

	mu      sync.Mutex
	chunks  []Chunk
	bytes   int
	lastSeq uint64
	seen    bool
	closed  bool

	notify chan struct{}
	done   chan struct{}

	accepted   atomic.Uint64
	outOfOrder atomic.Uint64
	overflow   atomic.Uint64
}

func NewChunkQueue(maxBuffered time.Duration) *ChunkQueue {
	if maxBuffered <= 0 {
		maxBuffered = DefaultMaxBuffered
	}
	return &ChunkQueue{
		maxBytes: PCMBytesFor(maxBuffered),
		notify:   make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// Push enqueues c if its sequence is strictly greater than the last one seen.
func (q *ChunkQueue) Push(c Chunk) PushResult {
	if len(c.Data) == 0 {
		return PushEmpty
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return PushClosed
	}
	if q.seen && c.Sequence <= q.lastSeq {
		q.mu.Unlock()
		q.outOfOrder.Add(1)
		return PushOutOfOrder
	}
	result := q.enqueueLocked(c)
	q.mu.Unlock()

	q.signal()
	return result
}

// Append enqueues data under the next sequence number. Numbering and
// enqueueing happen under one lock, so concurrent appends never collide.
func (q *ChunkQueue) Append(callID string, data []byte) PushResult {
	if len(data) == 0 {
		return PushEmpty
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return PushClosed
	}
	next := uint64(0)
	if q.seen {
		next = q.lastSeq + 1
	}
	result := q.enqueueLocked(Chunk{CallID: callID, Sequence: next, Data: data, CapturedAt: time.Now()})
	q.mu.Unlock()

	q.signal()
	return result
}

// enqueueLocked appends c, evicting the oldest chunks past the byte limit.
// q.mu must be held.
func (q *ChunkQueue) enqueueLocked(c Chunk) PushResult {
	q.lastSeq = c.Sequence
	q.seen = true

	result := PushAccepted
	for len(q.chunks) > 0 && q.bytes+len(c.Data) > q.maxBytes {
		q.bytes -= len(q.chunks[0].Data)
		q.chunks[0] = Chunk{}
		q.chunks = q.chunks[1:]
		q.overflow.Add(1)
		result = PushOverflow
	}
	q.chunks = append(q.chunks, c)
	q.bytes += len(c.Data)
	q.accepted.Add(1)
	return result
}

func (q *ChunkQueue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Pop blocks until a chunk is available, the queue is closed, or ctx ends.
func (q *ChunkQueue) Pop(ctx context.Context) (Chunk, error) {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return Chunk{}, ErrQueueClosed
		}
		if len(q.chunks) > 0 {
			c := q.chunks[0]
			q.chunks[0] = Chunk{}
			q.chunks = q.chunks[1:]
			q.bytes -= len(c.Data)
			q.mu.Unlock()
			return c, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return Chunk{}, ctx.Err()
		case <-q.done:
		case <-q.notify:
		}
	}
}

// Close discards buffered audio and wakes the consumer. Safe to call more than once.
func (q *ChunkQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.chunks = nil
	q.bytes = 0
	close(q.done)
}

func (q *ChunkQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.chunks)
}

func (q *ChunkQueue) Stats() QueueStats {
	q.mu.Lock()
	buffered := q.bytes
	q.mu.Unlock()
	return QueueStats{
		Accepted:      q.accepted.Load(),
		OutOfOrder:    q.outOfOrder.Load(),
		Overflow:      q.overflow.Load(),
		BufferedBytes: buffered,
	}
}
