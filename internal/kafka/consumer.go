package kafka

import (
	"context"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Handler returns nil only when the message is fully processed and its offset
// may be committed.
type Handler func(ctx context.Context, m kafka.Message) error

type reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	r          reader
	workers    int
	backoff    time.Duration
	maxBackoff time.Duration
	log        *zap.Logger
}

func NewConsumer(brokers []string, group, topic string, workers int, log *zap.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        group,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit
	})
	return newConsumer(r, workers, log)
}

func newConsumer(r reader, workers int, log *zap.Logger) *Consumer {
	if workers <= 0 {
		workers = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Consumer{r: r, workers: workers, backoff: 200 * time.Millisecond, maxBackoff: 10 * time.Second, log: log}
}

// Start fetches until ctx is done or the reader fails. The reader never
// fetches a message twice, so a failing handler is retried in place with
// backoff until it succeeds or ctx is done. Offsets are committed per
// partition only up to the first message not yet handled.
func (c *Consumer) Start(ctx context.Context, h Handler) error {
	defer c.r.Close()

	offsets := newTracker()
	jobs := make(chan kafka.Message, c.workers)
	var wg sync.WaitGroup
	for i := 0; i < c.workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for m := range jobs {
				if !c.handle(ctx, id, h, m) {
					continue
				}
				offsets.finish(m, func(upto kafka.Message) {
					if err := c.r.CommitMessages(ctx, upto); err != nil && ctx.Err() == nil {
						c.log.Error("commit failed", zap.Int("partition", upto.Partition), zap.Int64("offset", upto.Offset), zap.Error(err))
					}
				})
			}
		}(i)
	}
	defer wg.Wait()
	defer close(jobs)

	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		offsets.fetched(m)
		select {
		case jobs <- m:
		case <-ctx.Done():
			return nil
		}
	}
}

// handle reports whether h eventually succeeded. It gives up only when ctx
// is done, leaving the offset uncommitted for the next group member.
func (c *Consumer) handle(ctx context.Context, worker int, h Handler, m kafka.Message) bool {
	delay := c.backoff
	for attempt := 1; ; attempt++ {
		err := h(ctx, m)
		if err == nil {
			return true
		}
		c.log.Warn("handler failed",
			zap.Int("worker", worker),
			zap.String("topic", m.Topic),
			zap.Int("partition", m.Partition),
			zap.Int64("offset", m.Offset),
			zap.Int("attempt", attempt),
			zap.Error(err))
		if !sleep(ctx, delay) {
			return false
		}
		delay = min(delay*2, c.maxBackoff)
	}
}

// tracker holds fetched offsets per partition in fetch order.
type tracker struct {
	mu      sync.Mutex
	pending map[int][]kafka.Message
	done    map[int]map[int64]bool
}

func newTracker() *tracker {
	return &tracker{pending: map[int][]kafka.Message{}, done: map[int]map[int64]bool{}}
}

func (t *tracker) fetched(m kafka.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending[m.Partition] = append(t.pending[m.Partition], m)
}

// finish marks m handled and calls commit with the last message of the
// handled prefix of its partition, if the prefix grew. commit runs under the
// lock so commits stay ordered.
func (t *tracker) finish(m kafka.Message, commit func(kafka.Message)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	done := t.done[m.Partition]
	if done == nil {
		done = map[int64]bool{}
		t.done[m.Partition] = done
	}
	done[m.Offset] = true

	queue := t.pending[m.Partition]
	n := 0
	for n < len(queue) && done[queue[n].Offset] {
		delete(done, queue[n].Offset)
		n++
	}
	if n == 0 {
		return
	}
	upto := queue[n-1]
	t.pending[m.Partition] = queue[n:]
	commit(upto)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
