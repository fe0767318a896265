package logger

import (
	"bufio"
	"errors"
	"io"
	"log/slog"
	"sync"
)

// sinkOutput pairs a destination with the lowest level it receives.
// The main log gets everything the handler passes; a warn floor is what
// makes an errors-only file possible on the same pipeline.
type sinkOutput struct {
	w   io.Writer
	min slog.Level
}

type queuedLine struct {
	line  []byte
	level slog.Level
}

type levelSink struct {
	buf *bufio.Writer
	min slog.Level
}

// fanoutWriter decouples handlers from sink latency: lines are queued and
// a single goroutine writes them to every sink in order. Once a sink write
// fails the error sticks and later writes are refused.
type fanoutWriter struct {
	queue chan queuedLine
	syncs chan chan error
	done  chan struct{}
	stop  sync.Once

	mu    sync.Mutex
	sinks []levelSink
	fail  error
}

func newFanoutWriter(outputs []sinkOutput, bufSize int) *fanoutWriter {
	if bufSize <= 0 {
		bufSize = 64 * 1024
	}
	w := &fanoutWriter{
		queue: make(chan queuedLine, 256),
		syncs: make(chan chan error),
		done:  make(chan struct{}),
	}
	for _, out := range outputs {
		if out.w != nil {
			w.sinks = append(w.sinks, levelSink{
				buf: bufio.NewWriterSize(out.w, bufSize),
				min: out.min,
			})
		}
	}
	go w.drain()
	return w
}

func (w *fanoutWriter) drain() {
	defer close(w.done)
	for {
		select {
		case q, ok := <-w.queue:
			if !ok {
				w.flushSinks()
				return
			}
			if err := w.writeSinks(q); err != nil {
				w.recordFailure(err)
			}
		case ack := <-w.syncs:
			ack <- w.flushSinks()
		}
	}
}

// Write queues one line. When the queue is full the caller blocks rather
// than dropping the line.
func (w *fanoutWriter) Write(p []byte, level slog.Level) error {
	if err := w.failure(); err != nil {
		return err
	}
	if len(p) == 0 {
		return nil
	}
	line := make([]byte, len(p))
	copy(line, p)
	w.queue <- queuedLine{line: line, level: level}
	return nil
}

// Flush blocks until everything queued so far reaches the sinks.
func (w *fanoutWriter) Flush() error {
	if err := w.failure(); err != nil {
		return err
	}
	ack := make(chan error, 1)
	w.syncs <- ack
	return <-ack
}

// Close drains the queue, flushes the sinks and reports the first write
// error seen over the writer's lifetime.
func (w *fanoutWriter) Close() error {
	w.stop.Do(func() { close(w.queue) })
	<-w.done
	return w.failure()
}

func (w *fanoutWriter) writeSinks(q queuedLine) error {
	if len(q.line) == 0 {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, sink := range w.sinks {
		if q.level < sink.min {
			continue
		}
		if _, err := sink.buf.Write(q.line); err != nil {
			return err
		}
		if err := sink.buf.Flush(); err != nil {
			return err
		}
	}
	return nil
}

func (w *fanoutWriter) flushSinks() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	var errs []error
	for _, sink := range w.sinks {
		if err := sink.buf.Flush(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (w *fanoutWriter) failure() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fail
}

func (w *fanoutWriter) recordFailure(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fail == nil {
		w.fail = err
	}
}
