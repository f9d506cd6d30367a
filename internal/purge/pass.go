package purge

import (
	"context"
	"sync"

	"github.com/vk/twinctl/internal/ctxlog"
)

// runPass deletes every model of one pass on a bounded worker pool and
// returns once all deletes finished. outcomes[i] belongs to batch[i].
func (p *Purger) runPass(ctx context.Context, pass int, batch []Model) []error {
	logger := ctxlog.FromContext(ctx)
	outcomes := make([]error, len(batch))
	jobs := make(chan int, len(batch))

	var wg sync.WaitGroup
	wg.Add(len(batch))

	numWorkers := min(p.workers, len(batch))
	logger.Debug("Starting worker pool.", "pass", pass, "workers", numWorkers)
	for i := 0; i < numWorkers; i++ {
		go p.worker(ctx, pass, i, batch, jobs, outcomes, &wg)
	}

	for i := range batch {
		jobs <- i
	}
	close(jobs)

	wg.Wait()
	return outcomes
}

// worker is the processing loop for a single concurrent delete worker. Each
// index is owned by exactly one worker, so outcomes needs no lock.
func (p *Purger) worker(ctx context.Context, pass, workerID int, batch []Model, jobs <-chan int, outcomes []error, wg *sync.WaitGroup) {
	logger := ctxlog.FromContext(ctx)

	for i := range jobs {
		id := batch[i].ID
		workerLogger := logger.With("workerID", workerID, "pass", pass, "model", id)

		if err := ctx.Err(); err != nil {
			workerLogger.Warn("Context canceled, skipping delete.")
			outcomes[i] = err
			wg.Done()
			continue
		}

		workerLogger.Debug("Deleting model.")
		if err := p.deleter.DeleteModel(ctx, id); err != nil {
			workerLogger.Error("Model delete failed.", "error", err)
			outcomes[i] = err
		} else {
			workerLogger.Debug("Model deleted.")
		}
		wg.Done()
	}
}
