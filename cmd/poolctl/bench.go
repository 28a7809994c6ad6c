package main

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	"github.com/joshuapare/fixedpool/internal/logger"
	"github.com/joshuapare/fixedpool/pool"
	"github.com/joshuapare/fixedpool/pool/metrics"
)

var (
	benchOps     int
	benchMin     int
	benchMax     int
	benchLive    int
	benchSeed    uint64
	benchDump    bool
	benchMetrics bool
)

func init() {
	cmd := newBenchCmd()
	cmd.Flags().IntVar(&benchOps, "ops", 1_000_000, "Number of operations")
	cmd.Flags().IntVar(&benchMin, "min", 1, "Smallest request in bytes")
	cmd.Flags().IntVar(&benchMax, "max", 2048, "Largest request in bytes")
	cmd.Flags().IntVar(&benchLive, "live", 256, "Maximum number of live blocks")
	cmd.Flags().Uint64Var(&benchSeed, "seed", 1, "Random seed")
	cmd.Flags().BoolVar(&benchDump, "dump", false, "Print the pool report after the run")
	cmd.Flags().BoolVar(&benchMetrics, "metrics", false, "Print Prometheus metrics after the run")
	rootCmd.AddCommand(cmd)
}

func newBenchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Run a random allocate/free workload and report throughput",
		Long: `The bench command drives a pool with a seeded random mix of allocations
and frees of sizes in [--min, --max] while keeping at most --live blocks
alive, then reports throughput, prediction hit rates and occupancy.

Example:
  poolctl bench --size 16MiB --ops 5000000
  poolctl bench --max 64KiB --no-predict --dump`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBench()
		},
	}
	return cmd
}

type benchResult struct {
	Ops        int     `json:"ops"`
	Failures   uint64  `json:"failures"`
	Seconds    float64 `json:"seconds"`
	OpsPerSec  float64 `json:"ops_per_sec"`
	PeakBytes  int64   `json:"peak_bytes"`
	PredictHit float64 `json:"predict_hit_percent"`
	CursorHit  float64 `json:"cursor_hit_percent"`
}

func runBench() error {
	if benchMin <= 0 || benchMax < benchMin {
		return fmt.Errorf("invalid size range [%d, %d]", benchMin, benchMax)
	}
	if benchLive <= 0 {
		return fmt.Errorf("--live must be positive")
	}

	p, closeFn, err := openPool()
	if err != nil {
		return err
	}
	defer closeFn()

	rng := rand.New(rand.NewPCG(benchSeed, benchSeed))
	live := make([]pool.Ptr, 0, benchLive)

	start := time.Now()
	for range benchOps {
		if len(live) == benchLive || (len(live) > 0 && rng.IntN(2) == 0) {
			k := rng.IntN(len(live))
			if err := p.Free(live[k]); err != nil {
				return err
			}
			live[k] = live[len(live)-1]
			live = live[:len(live)-1]
			continue
		}
		n := benchMin + rng.IntN(benchMax-benchMin+1)
		ptr, _, err := p.Alloc(n)
		if errors.Is(err, pool.ErrNoSpace) {
			continue
		}
		if err != nil {
			return err
		}
		live = append(live, ptr)
	}
	elapsed := time.Since(start)
	logger.Info("bench finished", "ops", benchOps, "elapsed", elapsed)

	s := p.Stats()
	res := benchResult{
		Ops:        benchOps,
		Failures:   s.Failures,
		Seconds:    elapsed.Seconds(),
		OpsPerSec:  float64(benchOps) / elapsed.Seconds(),
		PeakBytes:  s.PeakBytes,
		PredictHit: s.PredictHitRate(),
		CursorHit:  s.CursorHitRate(),
	}

	if jsonOut {
		if err := printJSON(res); err != nil {
			return err
		}
	} else {
		heading("Benchmark")
		printInfo("Ops:        %s in %s (%s ops/s)\n",
			humanize.Comma(int64(res.Ops)), elapsed.Round(time.Microsecond), humanize.Comma(int64(res.OpsPerSec)))
		failures := humanize.Comma(int64(res.Failures))
		if res.Failures > 0 {
			failures = warnStyle.Render(failures)
		}
		printInfo("Failures:   %s\n", failures)
		printInfo("Peak:       %s\n", humanize.IBytes(uint64(res.PeakBytes)))
		printInfo("Prediction: %.1f%% hits, cursor %.1f%% hits\n", res.PredictHit, res.CursorHit)
	}

	if benchDump && !quiet {
		if err := p.Dump(os.Stdout); err != nil {
			return err
		}
	}
	if benchMetrics {
		return writeMetrics(p)
	}
	return nil
}

// writeMetrics prints the pool's metrics in the Prometheus text format.
func writeMetrics(p *pool.Pool) error {
	reg := prometheus.NewRegistry()
	if err := reg.Register(metrics.NewCollector("poolctl", nil, map[string]metrics.Source{"bench": p})); err != nil {
		return err
	}
	mfs, err := reg.Gather()
	if err != nil {
		return err
	}
	for _, mf := range mfs {
		if _, err := expfmt.MetricFamilyToText(os.Stdout, mf); err != nil {
			return err
		}
	}
	return nil
}
