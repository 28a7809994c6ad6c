package pool

import (
	"io"

	"github.com/dustin/go-humanize"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Dump writes a human-readable report of the pool's layout, occupancy and
// counters to w.
func (p *Pool) Dump(w io.Writer) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	pr := message.NewPrinter(language.English)
	if !p.active {
		_, err := pr.Fprintf(w, "pool: not initialised\n")
		return err
	}
	s := p.snapshot()
	l := p.layout

	ew := &errWriter{w: w, pr: pr}
	ew.printf("pool: %s buffer (%d bytes skipped for alignment), tag %#x\n",
		humanize.IBytes(uint64(l.Size)), l.Pad, p.tag)
	ew.printf("  used %s, peak %s\n", humanize.IBytes(uint64(s.UsedBytes)), humanize.IBytes(uint64(s.PeakBytes)))

	ew.printf("regular chunks (%d blocks, bitmap %s at %#x, %d bits set):\n",
		l.TotalBlocks, humanize.IBytes(uint64(l.Bitmap.Len)), l.Bitmap.Off,
		onesCount(p.buf[p.bitmapOff:p.bitmapOff+p.bitmapLen]))
	fmsg := "  %5dB  base %#08x  blocks %7d  free %7d  high-water %7d  predicted %3d  utilz %6.2f%%\n"
	for i, c := range s.Classes {
		z := 0.0
		if c.Blocks > 0 {
			z = float64(c.Blocks-c.Free) / float64(c.Blocks) * 100
		}
		ew.printf(fmsg, c.Size, l.Classes[i].Base, c.Blocks, c.Free, c.HighWater, c.Predicted, z)
	}

	nr := s.NonRegular
	ew.printf("non-regular chunk %s at %#x: %d headers, %d free (%s free, largest %s)",
		humanize.IBytes(uint64(nr.Size)), l.NonRegular.Off, nr.Headers, nr.FreeHeaders,
		humanize.IBytes(uint64(nr.FreeBytes)), humanize.IBytes(uint64(nr.LargestFree)))
	if p.nr.cursor == noCursor {
		ew.printf(", cursor unset\n")
	} else {
		ew.printf(", cursor %#x\n", p.nr.cursor)
	}

	ew.printf("allocs %d (regular %d, non-regular %d), failures %d, frees %d\n",
		s.Allocs, s.RegularAllocs, s.NonRegularAllocs, s.Failures, s.Frees)
	ew.printf("reallocs %d (in place %d, moved %d)\n", s.Reallocs, s.ReallocsInPlace, s.ReallocsMoved)
	ew.printf("prediction hits %d, misses %d (%.1f%%); cursor hits %d, misses %d (%.1f%%)\n",
		s.PredictHits, s.PredictMisses, s.PredictHitRate(), s.CursorHits, s.CursorMisses, s.CursorHitRate())
	ew.printf("splits %d, lazy merges %d, eager merges %d\n", s.Splits, s.LazyMerges, s.EagerMerges)
	return ew.err
}

// errWriter keeps the first write error so Dump can print unconditionally.
type errWriter struct {
	w   io.Writer
	pr  *message.Printer
	err error
}

func (ew *errWriter) printf(fmsg string, args ...any) {
	if ew.err != nil {
		return
	}
	_, ew.err = ew.pr.Fprintf(ew.w, fmsg, args...)
}
