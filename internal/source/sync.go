package source

import (
	"context"
	"errors"
	"fmt"

	"github.com/martinsuchenak/ipamd/internal/log"
	"github.com/martinsuchenak/ipamd/internal/registry"
	"github.com/martinsuchenak/ipamd/internal/worker"
)

// fetchWorkers bounds concurrent source fetches per sync pass
const fetchWorkers = 4

// Syncer pulls records from every configured source and registers them.
// Sources are fetched concurrently; a failing source is logged and
// skipped so one unreachable provider does not block the rest.
type Syncer struct {
	reg     *registry.Registry
	sources []Source
}

// NewSyncer creates a syncer over the given sources
func NewSyncer(reg *registry.Registry, sources ...Source) *Syncer {
	return &Syncer{reg: reg, sources: sources}
}

// Sources returns the number of configured sources
func (sy *Syncer) Sources() int {
	return len(sy.sources)
}

// Sync fetches all sources and registers their records. Records that
// fail validation (bad CIDR text, partial overlap with a registered
// block) are skipped and counted, not fatal.
func (sy *Syncer) Sync(ctx context.Context) error {
	type fetch struct {
		records []Record
		err     error
	}
	fetches := make([]fetch, len(sy.sources))

	pool := worker.NewPool(fetchWorkers)
	pool.Start()
	for i, src := range sy.sources {
		i, src := i, src
		err := pool.Submit(worker.Job{
			Name: src.Name(),
			Handler: func(context.Context) error {
				records, err := src.Fetch(ctx)
				fetches[i] = fetch{records: records, err: err}
				return err
			},
		})
		if err != nil {
			fetches[i] = fetch{err: err}
		}
	}
	// Stop drains queued jobs and waits for in-flight fetches
	pool.Stop()

	var errs []error
	for i, src := range sy.sources {
		if fetches[i].err != nil {
			log.Error("Source fetch failed", "source", src.Name(), "error", fetches[i].err)
			errs = append(errs, fmt.Errorf("%s: %w", src.Name(), fetches[i].err))
			continue
		}

		registered := 0
		skipped := 0
		for _, rec := range fetches[i].records {
			if _, err := sy.reg.Register(rec.CIDR, rec.Kind, rec.Tags, src.Name()); err != nil {
				log.Warn("Skipping record", "source", src.Name(), "cidr", rec.CIDR, "error", err)
				skipped++
				continue
			}
			registered++
		}
		log.Info("Source synced", "source", src.Name(), "registered", registered, "skipped", skipped)
	}

	return errors.Join(errs...)
}
