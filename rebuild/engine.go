// Copyright 2026 The restitch Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package rebuild

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/restitch/restitch/internal"
)

// Engine coordinates one reconstruction session end to end: skim for
// seeds, expand them through a bounded worker pool, then assemble the
// output from whatever resolved.
type Engine struct {
	conf  *internal.Config
	ref   *Reference
	idx   *ChunkIndex
	src   SectorSource
	store SessionStore

	rmap *ReconstructionMap
	perf *PerfCalculator

	state         atomic.Int32
	sectorsRead   atomic.Int64
	badSectors    atomic.Int64
	activeWorkers atomic.Int32

	sessionID string

	// OnProgress, when set, receives periodic status updates. It is
	// called from the engine's ticker goroutine and must not block.
	OnProgress func(Progress)
}

// New validates the run parameters and prepares an engine. store may be
// nil; the engine then runs without checkpointing.
func New(conf *internal.Config, ref *Reference, src SectorSource, store SessionStore) (*Engine, error) {
	if conf.Concurrency <= 0 {
		conf.Concurrency = DefaultConcurrency
	}
	if conf.Oversample < 1 {
		conf.Oversample = DefaultOversample
	}
	if conf.Tolerance < 0 {
		conf.Tolerance = DefaultTolerance
	}
	if src.SectorCount() == 0 {
		return nil, fmt.Errorf("device has no addressable sectors")
	}
	if conf.StartSector < 0 || conf.StartSector >= src.SectorCount() {
		return nil, fmt.Errorf("start sector %d outside device range [0, %d)", conf.StartSector, src.SectorCount())
	}
	id := conf.SessionID
	if id == "" {
		id = uuid.New().String()
	}

	e := &Engine{
		conf:      conf,
		ref:       ref,
		idx:       NewChunkIndex(ref),
		src:       src,
		store:     store,
		rmap:      NewReconstructionMap(ref.SectorCount()),
		sessionID: id,
	}
	e.state.Store(int32(StateIdle))
	return e, nil
}

func (e *Engine) SessionID() string { return e.sessionID }

func (e *Engine) State() State { return State(e.state.Load()) }

// Placements exposes the final mapping for verification and verbose
// reporting.
func (e *Engine) Placements() []Placement { return e.rmap.Placements() }

// Run drives the whole reconstruction. Cancelling ctx stops all scanning
// within one sector-read latency; whatever is resolved by then is still
// assembled into the sink, so a partial result is always a valid result.
func (e *Engine) Run(ctx context.Context, sink SectorSink) (*Result, error) {
	begin := time.Now()

	if err := e.prepareSession(); err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	skimCtx, stopSkim := context.WithCancel(runCtx)
	defer stopSkim()

	skimSrc := &countingSource{src: e.src, reads: &e.sectorsRead, bad: &e.badSectors}
	expSrc := &countingSource{src: e.src, reads: &e.sectorsRead, bad: &e.badSectors}
	skim := NewSkimScanner(e.idx, skimSrc, e.conf.StartSector, e.conf.Oversample)
	e.perf = NewPerfCalculator(skim.SampleCount())
	skimSrc.perf = e.perf
	worker := NewExpansionWorker(e.ref, e.idx, expSrc, e.rmap, e.conf.Tolerance)

	logger.Infof("session %s: %d reference sectors, %d device sectors, stride %d, concurrency %d, tolerance %d",
		e.sessionID, e.ref.SectorCount(), e.src.SectorCount(), skim.Stride(), e.conf.Concurrency, e.conf.Tolerance)

	seeds := make(chan MatchEvent, seedQueueDepth)
	e.state.Store(int32(StateSkimming))
	go func() {
		if err := skim.Run(skimCtx, seeds); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warnf("skim stopped: %v", err)
		}
		close(seeds)
	}()

	stopAux := e.startAux(runCtx)

	sem := make(chan struct{}, e.conf.Concurrency)
	var wg sync.WaitGroup
	for seed := range seeds {
		if e.rmap.Complete() {
			stopSkim()
			continue
		}
		if addr, _, ok := e.rmap.Lookup(seed.Index); ok && addr == seed.Addr {
			continue // this diagonal is already claimed
		}
		sem <- struct{}{}
		wg.Add(1)
		e.activeWorkers.Add(1)
		go func(seed MatchEvent) {
			defer func() {
				e.activeWorkers.Add(-1)
				<-sem
				wg.Done()
			}()
			n := worker.Expand(runCtx, seed)
			logger.Debugf("seed (%d->%d) expanded into a chain of %d", seed.Index, seed.Addr, n)
			if e.rmap.Complete() {
				stopSkim()
			}
		}(seed)
	}
	e.state.Store(int32(StateDraining))
	wg.Wait()
	stopAux()
	e.state.Store(int32(StateDone))

	e.checkpoint()

	// Assembly must survive cancellation: partial results are valid.
	res, err := e.assemble(context.WithoutCancel(ctx), expSrc, sink)
	if err != nil {
		return nil, err
	}
	res.SessionID = e.sessionID
	res.SectorsRead = e.sectorsRead.Load()
	res.UnreadableSectors = e.badSectors.Load()
	res.Interrupted = ctx.Err() != nil
	res.Elapsed = time.Since(begin)

	if e.store != nil && !res.Interrupted {
		if err := e.store.Complete(e.sessionID); err != nil {
			logger.Warnf("failed to complete session %s: %v", e.sessionID, err)
		}
	}
	return res, nil
}

// prepareSession either registers a fresh session with the store or, on
// resume, preloads the map and prunes the index so the skim skips what an
// earlier run already found.
func (e *Engine) prepareSession() error {
	if e.store == nil {
		return nil
	}
	if e.conf.Resume {
		meta, err := e.store.LoadMeta(e.sessionID)
		if err != nil {
			return fmt.Errorf("failed to load session %s: %w", e.sessionID, err)
		}
		if meta.ReferenceBytes != e.ref.Length() {
			return fmt.Errorf("session %s was created for a %d-byte reference, got %d bytes", e.sessionID, meta.ReferenceBytes, e.ref.Length())
		}
		entries, err := e.store.LoadEntries(e.sessionID)
		if err != nil {
			return fmt.Errorf("failed to load session %s entries: %w", e.sessionID, err)
		}
		e.rmap.Restore(entries)
		for _, p := range entries {
			e.idx.Remove(p.Index)
		}
		logger.Infof("resumed session %s with %d resolved sectors", e.sessionID, len(entries))
		return nil
	}
	meta := &SessionMeta{
		ID:             e.sessionID,
		ReferenceBytes: e.ref.Length(),
		StartSector:    e.conf.StartSector,
		CreatedAt:      time.Now(),
	}
	if err := e.store.Create(meta); err != nil {
		return fmt.Errorf("failed to create session %s: %w", e.sessionID, err)
	}
	return nil
}

func (e *Engine) checkpoint() {
	if e.store == nil {
		return
	}
	dirty := e.rmap.TakeDirty()
	if len(dirty) == 0 {
		return
	}
	if err := e.store.SaveEntries(e.sessionID, dirty); err != nil {
		logger.Warnf("failed to checkpoint session %s: %v", e.sessionID, err)
	}
}

// startAux runs the progress and checkpoint tickers; the returned func
// stops them and waits for the goroutine to exit.
func (e *Engine) startAux(ctx context.Context) func() {
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		tick := time.NewTicker(progressInterval)
		defer tick.Stop()
		var ckpt <-chan time.Time
		if e.store != nil && e.conf.CheckpointEvery > 0 {
			t := time.NewTicker(e.conf.CheckpointEvery)
			defer t.Stop()
			ckpt = t.C
		}
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-tick.C:
				e.reportProgress()
			case <-ckpt:
				e.checkpoint()
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}

func (e *Engine) reportProgress() {
	if e.OnProgress == nil {
		return
	}
	e.OnProgress(Progress{
		State:          e.State(),
		ResolvedChunks: e.rmap.ResolvedCount(),
		TotalChunks:    e.rmap.TotalCount(),
		ActiveWorkers:  e.activeWorkers.Load(),
		SectorsRead:    e.sectorsRead.Load(),
		ETASeconds:     e.perf.RemainingSeconds(),
	})
}
