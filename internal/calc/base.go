package calc

import (
	"log/slog"
	"runtime"
	"sync"
)

// PipeLine represents a compute pipeline. Row and bundle jobs are fanned out
// to numPoper workers through an order channel.
type PipeLine struct {
	numPoper int
	debug    bool
	log      *slog.Logger
}

// Init returns a compute PipeLine with the given number of workers (all CPUs when < 1)
func Init(workers int, debug bool, logger *slog.Logger) *PipeLine {
	if workers < 1 {
		workers = runtime.NumCPU()
	}
	if logger == nil {
		logger = slog.Default()
	}

	pl := PipeLine{
		numPoper: workers,
		debug:    debug,
		log:      logger.With(slog.String("component", "calc")),
	}

	return &pl
}

// GetNP returns the number of workers
func (p *PipeLine) GetNP() int {
	return p.numPoper
}

// rows runs job(index) for index in [0, n) on numPoper workers and waits for all of them.
func (p *PipeLine) rows(n int, job func(index int)) {
	order := make(chan int, p.numPoper)
	var wg sync.WaitGroup

	wg.Add(n)

	for i := 0; i < p.numPoper; i++ {
		go func() {
			for {
				index, ok := <-order
				if ok {
					job(index)
					wg.Done()
				} else {
					break
				}
			}
		}()
	}

	for i := 0; i < n; i++ {
		order <- i
	}

	wg.Wait()
	close(order)
	return
}

func (p *PipeLine) debugf(msg string, args ...any) {
	if p.debug {
		p.log.Debug(msg, args...)
	}
}
