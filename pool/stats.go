package pool

// Stats is a snapshot of the pool's counters. Collecting the counters is
// always on; they are plain integers updated under the pool lock.
type Stats struct {
	UsedBytes int64 // payload capacity of live blocks
	PeakBytes int64 // high-water mark of UsedBytes

	Allocs           uint64 // successful allocations (Alloc, Calloc, Realloc moves)
	RegularAllocs    uint64 // served by a size class
	NonRegularAllocs uint64 // served by the non-regular chunk
	Failures         uint64 // ErrNoSpace results
	Frees            uint64
	Reallocs         uint64
	ReallocsInPlace  uint64
	ReallocsMoved    uint64

	PredictHits   uint64 // regular allocations served by the prediction stack
	PredictMisses uint64 // regular allocations that fell back to a bitmap scan
	CursorHits    uint64 // non-regular searches started at the cursor
	CursorMisses  uint64 // non-regular searches started at the chunk start

	Splits      uint64 // free remainders cut off non-regular blocks
	LazyMerges  uint64 // merges performed while searching
	EagerMerges uint64 // merges performed on free or in-place growth

	Classes    [NumClasses]ClassStats
	NonRegular NonRegularStats
}

// ClassStats describes one regular class.
type ClassStats struct {
	Size      int
	Blocks    int
	Free      int
	HighWater int
	Predicted int // entries currently on the prediction stack
}

// NonRegularStats summarises the non-regular chunk.
type NonRegularStats struct {
	Size        int // chunk bytes, headers included
	Headers     int
	FreeHeaders int
	FreeBytes   int // free payload bytes
	LargestFree int // largest single free payload
}

// Stats returns a snapshot of the pool's counters. Summarising the
// non-regular chunk visits every header, so this is a diagnostic call.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshot()
}

func (p *Pool) snapshot() Stats {
	s := p.stats
	for i := range p.classes {
		c := &p.classes[i]
		s.Classes[i] = ClassStats{
			Size:      c.size,
			Blocks:    c.blocks,
			Free:      c.free,
			HighWater: c.highWater,
			Predicted: c.stack.len(),
		}
	}
	s.NonRegular.Size = p.nr.end - p.nr.start
	s.NonRegular.Headers = len(p.nr.hdrs)
	for _, h := range p.nr.hdrs {
		if !h.free {
			continue
		}
		s.NonRegular.FreeHeaders++
		s.NonRegular.FreeBytes += h.size
		s.NonRegular.LargestFree = max(s.NonRegular.LargestFree, h.size)
	}
	return s
}

// PredictHitRate returns the share of regular allocations served by the
// prediction stack, in percent.
func (s Stats) PredictHitRate() float64 {
	total := s.PredictHits + s.PredictMisses
	if total == 0 {
		return 0
	}
	return float64(s.PredictHits) / float64(total) * 100
}

// CursorHitRate returns the share of non-regular searches that started at
// the cursor, in percent.
func (s Stats) CursorHitRate() float64 {
	total := s.CursorHits + s.CursorMisses
	if total == 0 {
		return 0
	}
	return float64(s.CursorHits) / float64(total) * 100
}
