package ledger

import (
	"context"
	"log"
	"sync"
	"time"
)

// AsyncWriter drains generation records to the backing store off the request
// path. A full buffer falls back to a synchronous write rather than dropping
// the record: the ledger is an audit trail.
type AsyncWriter struct {
	store Store
	ch    chan *Record
	wg    sync.WaitGroup
}

const writeTimeout = 10 * time.Second

func NewAsyncWriter(store Store, buffer int) *AsyncWriter {
	if buffer <= 0 {
		buffer = 256
	}
	return &AsyncWriter{
		store: store,
		ch:    make(chan *Record, buffer),
	}
}

// Start launches the drain loop. Close must be called on shutdown so buffered
// records reach the store.
func (w *AsyncWriter) Start() {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for rec := range w.ch {
			w.write(rec)
		}
	}()
}

// Append queues the record for background persistence.
func (w *AsyncWriter) Append(ctx context.Context, rec *Record) error {
	select {
	case w.ch <- rec:
		return nil
	default:
		w.write(rec)
		return nil
	}
}

func (w *AsyncWriter) write(rec *Record) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := w.store.Append(ctx, rec); err != nil {
		log.Printf("ledger: failed to persist record for tenant %s: %v", rec.TenantID, err)
	}
}

// Close stops accepting records and blocks until the buffer is drained.
func (w *AsyncWriter) Close() {
	close(w.ch)
	w.wg.Wait()
}
