package pool

// predictStack is a bounded LIFO of block indices believed to be free.
// Entries pushed beyond capacity are dropped.
type predictStack struct {
	idx []int32
}

func newPredictStack(depth int) predictStack {
	return predictStack{idx: make([]int32, 0, depth)}
}

func (s *predictStack) push(i int) {
	if len(s.idx) == cap(s.idx) {
		return
	}
	s.idx = append(s.idx, int32(i))
}

func (s *predictStack) pop() (int, bool) {
	n := len(s.idx)
	if n == 0 {
		return 0, false
	}
	i := s.idx[n-1]
	s.idx = s.idx[:n-1]
	return int(i), true
}

func (s *predictStack) len() int {
	return len(s.idx)
}

func (s *predictStack) reset() {
	s.idx = s.idx[:0]
}

// seed fills the stack with the first min(cap, blocks) indices, index 0 on top.
func (s *predictStack) seed(blocks int) {
	s.reset()
	for i := min(cap(s.idx), blocks) - 1; i >= 0; i-- {
		s.idx = append(s.idx, int32(i))
	}
}

// noCursor marks the non-regular cursor as unset.
const noCursor = -1

// cursorStart returns the header offset the non-regular search should start
// from: the cursor when it is set, inside the chunk and names a free header,
// the chunk start otherwise.
func (p *Pool) cursorStart() int {
	if !p.opts.predict {
		return p.nr.start
	}
	c := p.nr.cursor
	if c == noCursor || c < p.nr.start || c >= p.nr.end {
		p.stats.CursorMisses++
		return p.nr.start
	}
	if h, ok := p.nr.hdrs[c]; !ok || !h.free {
		p.stats.CursorMisses++
		return p.nr.start
	}
	p.stats.CursorHits++
	return c
}

// setCursor points the cursor at a freshly freed or residual header.
func (p *Pool) setCursor(off int) {
	if p.opts.predict {
		p.nr.cursor = off
	}
}

// dropCursor invalidates the cursor if it names a header that no longer exists.
func (p *Pool) dropCursor(off int) {
	if p.nr.cursor == off {
		p.nr.cursor = noCursor
	}
}
