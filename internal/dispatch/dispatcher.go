package dispatch

import (
	"github.com/rs/zerolog"

	"smartspeech-client/internal/observability/logging"
	"smartspeech-client/internal/observability/metrics"
)

// Dispatcher owns the single goroutine that drains a Queue and routes each
// completion to its call. Because there is exactly one such goroutine per
// queue, Proceed is never reentered for any call sharing the queue.
type Dispatcher struct {
	queue   *Queue
	done    chan struct{}
	log     zerolog.Logger
	metrics *metrics.Metrics
}

// Start spins the dispatch goroutine for q.
func Start(q *Queue, m *metrics.Metrics) *Dispatcher {
	if m == nil {
		m = metrics.DefaultMetrics
	}
	d := &Dispatcher{
		queue:   q,
		done:    make(chan struct{}),
		log:     logging.WithComponent("dispatcher"),
		metrics: m,
	}
	go d.run()
	return d
}

func (d *Dispatcher) run() {
	defer close(d.done)
	d.log.Debug().Msg("dispatch loop started")

	for {
		c, ok := d.queue.Next()
		if !ok {
			break
		}
		if c.Handler == nil {
			continue
		}
		d.metrics.RecordDispatch(c.Cause.String(), c.OK)
		c.Handler.Proceed(c.Cause, c.OK)
	}

	d.log.Debug().Msg("dispatch loop exited")
}

// Shutdown stops the queue and waits for the dispatch goroutine to drain
// what was already queued and exit.
func (d *Dispatcher) Shutdown() {
	d.queue.Shutdown()
	<-d.done
}

// Done is closed once the dispatch goroutine has exited.
func (d *Dispatcher) Done() <-chan struct{} {
	return d.done
}
