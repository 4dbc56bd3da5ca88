package notification

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

type worker struct {
	id         int
	workerPool chan chan *Message
	jobChannel chan *Message
	logger     *slog.Logger
}

func newWorker(id int, workerPool chan chan *Message, logger *slog.Logger) *worker {
	return &worker{
		id:         id,
		workerPool: workerPool,
		jobChannel: make(chan *Message),
		logger:     logger,
	}
}

func (w *worker) start(ctx context.Context, wg *sync.WaitGroup, processFunc func(*Message)) {
	wg.Add(1)
	go func() {
		defer wg.Done()

		for {
			w.workerPool <- w.jobChannel

			select {
			case msg := <-w.jobChannel:
				w.logger.Debug("worker delivering notification", "worker_id", w.id, "channel", msg.Channel)
				processFunc(msg)
			case <-ctx.Done():
				w.logger.Debug("worker shutting down", "worker_id", w.id)
				return
			}
		}
	}()
}

// Dispatcher queues messages and delivers them through every registered
// sink using a bounded worker pool.
type Dispatcher struct {
	sinks       []Sink
	sendTimeout time.Duration
	logger      *slog.Logger

	jobQueue   chan *Message
	workerPool chan chan *Message
	maxWorkers int
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	once       sync.Once
}

type Config struct {
	MaxWorkers  int
	QueueSize   int
	SendTimeout time.Duration
}

func NewDispatcher(config Config, logger *slog.Logger, sinks ...Sink) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())

	maxWorkers := config.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = 4
	}

	queueSize := config.QueueSize
	if queueSize <= 0 {
		queueSize = 100
	}

	sendTimeout := config.SendTimeout
	if sendTimeout <= 0 {
		sendTimeout = 10 * time.Second
	}

	d := &Dispatcher{
		sinks:       sinks,
		sendTimeout: sendTimeout,
		logger:      logger,

		maxWorkers: maxWorkers,
		jobQueue:   make(chan *Message, queueSize),
		workerPool: make(chan chan *Message, maxWorkers),
		ctx:        ctx,
		cancel:     cancel,
	}

	d.startWorkerPool()

	return d
}

func (d *Dispatcher) startWorkerPool() {
	d.once.Do(func() {
		for i := 0; i < d.maxWorkers; i++ {
			w := newWorker(i, d.workerPool, d.logger)
			w.start(d.ctx, &d.wg, d.deliver)
		}

		go d.dispatch()

		d.logger.Info("notification dispatcher started",
			"max_workers", d.maxWorkers,
			"queue_size", cap(d.jobQueue),
			"sinks", len(d.sinks))
	})
}

func (d *Dispatcher) dispatch() {
	d.wg.Add(1)
	defer d.wg.Done()

	for {
		select {
		case msg := <-d.jobQueue:
			select {
			case jobChannel := <-d.workerPool:
				select {
				case jobChannel <- msg:
				case <-d.ctx.Done():
					d.logger.Info("dispatcher shutting down")
					return
				}
			case <-d.ctx.Done():
				d.logger.Info("dispatcher shutting down")
				return
			}
		case <-d.ctx.Done():
			d.logger.Info("dispatcher shutting down")
			return
		}
	}
}

// Notify enqueues a message. A full queue drops the message rather than
// blocking the caller; workflows must not stall on notification load.
func (d *Dispatcher) Notify(msg *Message) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	select {
	case d.jobQueue <- msg:
		return nil
	default:
		d.logger.Warn("notification queue full, dropping message",
			"channel", msg.Channel,
			"kind", msg.Kind,
			"queue_capacity", cap(d.jobQueue))
		return fmt.Errorf("notification queue full")
	}
}

func (d *Dispatcher) deliver(msg *Message) {
	for _, sink := range d.sinks {
		ctx, cancel := context.WithTimeout(d.ctx, d.sendTimeout)
		err := sink.Send(ctx, msg)
		cancel()
		if err != nil {
			d.logger.Error("notification delivery failed",
				"sink", sink.Name(),
				"channel", msg.Channel,
				"kind", msg.Kind,
				"error", err)
		}
	}
}

func (d *Dispatcher) Shutdown() {
	d.logger.Info("shutting down notification dispatcher")
	d.cancel()
	d.wg.Wait()
	d.logger.Info("notification dispatcher shutdown complete")
}
