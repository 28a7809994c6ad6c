package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/joshuapare/fixedpool/internal/logger"
	"github.com/joshuapare/fixedpool/pool"
)

var (
	replayVerify bool
	replayDump   bool
)

func init() {
	cmd := newReplayCmd()
	cmd.Flags().BoolVar(&replayVerify, "verify", false, "Run a full consistency check after every operation")
	cmd.Flags().BoolVar(&replayDump, "dump", false, "Print the pool report and live allocations at the end")
	rootCmd.AddCommand(cmd)
}

func newReplayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay <trace|->",
		Short: "Replay an allocation trace against a checked pool",
		Long: `The replay command runs an allocation trace through the checked allocator,
which records the trace line of every allocation and rejects frees of
pointers that are not live. Trace lines:

  a <id> <size>           allocate
  c <id> <count> <size>   allocate zeroed
  r <id> <size>           resize
  f <id>                  free

Example:
  poolctl replay app.trace --size 4MiB
  generate-trace | poolctl replay - --verify --dump`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(args)
		},
	}
	return cmd
}

type replayResult struct {
	Ops          int     `json:"ops"`
	Failures     int     `json:"failures"`
	Live         int     `json:"live"`
	NeededBytes  int64   `json:"needed_bytes"`
	RealBytes    int64   `json:"real_bytes"`
	PeakNeeded   int64   `json:"peak_needed_bytes"`
	WastePercent float64 `json:"waste_percent"`
}

func runReplay(args []string) error {
	path := args[0]
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open trace: %w", err)
		}
		defer f.Close()
		r = f
	}
	ops, err := parseTrace(r)
	if err != nil {
		return fmt.Errorf("failed to parse trace: %w", err)
	}
	printVerbose("Parsed %d operations from %s\n", len(ops), path)

	p, closeFn, err := openPool()
	if err != nil {
		return err
	}
	defer closeFn()

	var copts []pool.CheckedOption
	if replayVerify {
		copts = append(copts, pool.VerifyEachCall())
	}
	c := pool.NewChecked(p, copts...)

	failures, err := replay(c, path, ops)
	if err != nil {
		return err
	}

	s := c.Stats()
	logger.Info("replay finished", "trace", path, "ops", len(ops), "failures", failures, "live", s.Live)
	res := replayResult{
		Ops:          len(ops),
		Failures:     failures,
		Live:         s.Live,
		NeededBytes:  s.NeededBytes,
		RealBytes:    s.RealBytes,
		PeakNeeded:   s.PeakNeeded,
		WastePercent: s.WastePercent,
	}
	if jsonOut {
		return printJSON(res)
	}

	heading("Replay")
	printInfo("Replayed %d operations, %d out of space\n", res.Ops, res.Failures)
	printInfo("Live:   %d blocks, needed %s, real %s (%.1f%% waste)\n", res.Live,
		humanize.IBytes(uint64(res.NeededBytes)), humanize.IBytes(uint64(res.RealBytes)), res.WastePercent)
	printInfo("Peak:   %s needed\n", humanize.IBytes(uint64(res.PeakNeeded)))
	if replayDump && !quiet {
		return c.Dump(os.Stdout)
	}
	return nil
}

// replay applies ops to c and returns how many allocations ran out of space.
// Each allocation is attributed to its trace line.
func replay(c *pool.Checked, name string, ops []traceOp) (int, error) {
	ids := make(map[string]pool.Ptr)
	failures := 0
	for _, op := range ops {
		if _, dup := ids[op.ID]; dup && (op.Kind == 'a' || op.Kind == 'c') {
			return failures, fmt.Errorf("line %d: id %q is already live", op.Line, op.ID)
		}
		site := pool.Site{Func: string(op.Kind) + " " + op.ID, File: name, Line: op.Line}

		var (
			ptr pool.Ptr
			err error
		)
		switch op.Kind {
		case 'a':
			ptr, _, err = c.AllocAt(op.Size, site)
		case 'c':
			ptr, _, err = c.CallocAt(op.Count, op.Size, site)
		case 'r':
			ptr, _, err = c.ReallocAt(ids[op.ID], op.Size, site)
		case 'f':
			old, ok := ids[op.ID]
			if !ok {
				return failures, fmt.Errorf("line %d: free of unknown id %q", op.Line, op.ID)
			}
			if err := c.Free(old); err != nil {
				return failures, fmt.Errorf("line %d: %w", op.Line, err)
			}
			delete(ids, op.ID)
			continue
		}

		if errors.Is(err, pool.ErrNoSpace) {
			failures++
			printVerbose("line %d: %c %s %d: out of space\n", op.Line, op.Kind, op.ID, op.Size)
			continue
		}
		if err != nil {
			return failures, fmt.Errorf("line %d: %w", op.Line, err)
		}
		if ptr == pool.Nil {
			delete(ids, op.ID)
		} else {
			ids[op.ID] = ptr
		}
	}
	return failures, nil
}
