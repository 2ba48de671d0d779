// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TaskHive Contributors

package auth

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"
)

// hashOp is the kind of work submitted to the pool.
type hashOp int

const (
	opHash hashOp = iota
	opVerify
)

type hashJob struct {
	op       hashOp
	password string
	hash     string
	result   chan hashResult
}

type hashResult struct {
	hash  string
	match bool
	err   error
}

// HashPool runs bcrypt work on a fixed set of workers so the CPU-heavy
// hashing never saturates the request path. Requests block only on their own
// submission; the pool bounds how many hashes run at once.
//
// Call Close() to stop the workers and release resources.
type HashPool struct {
	hasher   PasswordHasher
	jobs     chan hashJob
	stopChan chan struct{}
	wg       sync.WaitGroup

	// Histogram of hash/verify latency (nil if no registry provided).
	duration prometheus.Histogram
}

// NewHashPool creates a pool with the given number of workers. A non-positive
// worker count defaults to GOMAXPROCS.
func NewHashPool(hasher PasswordHasher, workers int) *HashPool {
	return newHashPool(hasher, workers, nil)
}

// NewHashPoolWithRegistry creates a pool and registers a latency histogram
// with the provided Prometheus registry.
func NewHashPoolWithRegistry(hasher PasswordHasher, workers int, reg prometheus.Registerer) *HashPool {
	return newHashPool(hasher, workers, reg)
}

func newHashPool(hasher PasswordHasher, workers int, reg prometheus.Registerer) *HashPool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	p := &HashPool{
		hasher:   hasher,
		jobs:     make(chan hashJob),
		stopChan: make(chan struct{}),
	}

	if reg != nil {
		p.duration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "taskhive_password_hash_duration_seconds",
			Help:    "Latency of password hash and verify operations",
			Buckets: prometheus.DefBuckets,
		})
		reg.MustRegister(p.duration)
	}

	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}

	return p
}

func (p *HashPool) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopChan:
			return
		case job := <-p.jobs:
			start := time.Now()
			var res hashResult
			switch job.op {
			case opHash:
				res.hash, res.err = p.hasher.Hash(job.password)
			case opVerify:
				res.match = p.hasher.Verify(job.password, job.hash)
			}
			if p.duration != nil {
				p.duration.Observe(time.Since(start).Seconds())
			}
			job.result <- res
		}
	}
}

// Hash submits a hash operation and waits for its result.
func (p *HashPool) Hash(ctx context.Context, password string) (string, error) {
	res, err := p.submit(ctx, hashJob{op: opHash, password: password})
	if err != nil {
		return "", err
	}
	return res.hash, res.err
}

// Verify submits a verify operation and waits for its result.
func (p *HashPool) Verify(ctx context.Context, password, hash string) (bool, error) {
	res, err := p.submit(ctx, hashJob{op: opVerify, password: password, hash: hash})
	if err != nil {
		return false, err
	}
	return res.match, nil
}

func (p *HashPool) submit(ctx context.Context, job hashJob) (hashResult, error) {
	// Buffered so a worker never blocks handing back a result the caller
	// abandoned on context cancellation.
	job.result = make(chan hashResult, 1)

	select {
	case p.jobs <- job:
	case <-ctx.Done():
		return hashResult{}, oops.Code("HASH_POOL_CANCELED").Wrap(ctx.Err())
	case <-p.stopChan:
		return hashResult{}, oops.Code("HASH_POOL_CLOSED").Errorf("hash pool is closed")
	}

	select {
	case res := <-job.result:
		return res, nil
	case <-ctx.Done():
		return hashResult{}, oops.Code("HASH_POOL_CANCELED").Wrap(ctx.Err())
	}
}

// Close stops the workers and blocks until they have exited.
func (p *HashPool) Close() {
	close(p.stopChan)
	p.wg.Wait()
}
