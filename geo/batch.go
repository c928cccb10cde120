package geo

import (
	"context"
	"runtime"
	"sync"

	"github.com/ic-timon/ipgeo/mmdb"
)

// BatchResult is the outcome of one address in LookupBatch.
type BatchResult struct {
	IP    string
	Value mmdb.Value
	Found bool
	Err   error
}

type batchJob struct {
	ctx context.Context
	ip  string
	res *BatchResult
	wg  *sync.WaitGroup
}

// lookupPool is a fixed set of workers serving batch lookups, so large
// batches do not spawn a goroutine per address.
type lookupPool struct {
	l    *Locator
	jobs chan batchJob
	wg   sync.WaitGroup

	mtx    sync.RWMutex
	closed bool
}

func newLookupPool(l *Locator, nWorkers, bufSize int) *lookupPool {
	if nWorkers <= 0 {
		nWorkers = runtime.NumCPU()
	}
	p := &lookupPool{
		l:    l,
		jobs: make(chan batchJob, bufSize),
	}
	for i := 0; i < nWorkers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

func (p *lookupPool) worker() {
	defer p.wg.Done()
	for job := range p.jobs {
		job.res.Value, job.res.Found, job.res.Err = p.l.Lookup(job.ctx, job.ip)
		job.wg.Done()
	}
}

// submit queues a job. It returns false once the pool is closed.
func (p *lookupPool) submit(job batchJob) bool {
	p.mtx.RLock()
	defer p.mtx.RUnlock()
	if p.closed {
		return false
	}
	p.jobs <- job
	return true
}

func (p *lookupPool) close() {
	p.mtx.Lock()
	if p.closed {
		p.mtx.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mtx.Unlock()
	p.wg.Wait()
}

// LookupBatch looks up ips on the worker pool. Results are in input order;
// per-address failures are reported in BatchResult.Err.
func (l *Locator) LookupBatch(ctx context.Context, ips []string) []BatchResult {
	results := make([]BatchResult, len(ips))
	var wg sync.WaitGroup
	for i, ip := range ips {
		results[i].IP = ip
		wg.Add(1)
		if !l.pool.submit(batchJob{ctx: ctx, ip: ip, res: &results[i], wg: &wg}) {
			results[i].Err = mmdb.ErrClosed
			wg.Done()
		}
	}
	wg.Wait()
	return results
}
