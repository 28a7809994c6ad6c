package main

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/spf13/cobra"

	"github.com/joshuapare/fixedpool/pool"
)

var (
	checkOps  int
	checkSeed uint64
	checkMax  int
)

func init() {
	cmd := newCheckCmd()
	cmd.Flags().IntVar(&checkOps, "ops", 20_000, "Number of operations")
	cmd.Flags().Uint64Var(&checkSeed, "seed", 1, "Random seed")
	cmd.Flags().IntVar(&checkMax, "max", 16384, "Largest request in bytes")
	rootCmd.AddCommand(cmd)
}

func newCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run a randomised workload with full verification after every call",
		Long: `The check command drives a checked pool with a seeded mix of allocations,
resizes and frees, verifying every payload and running the pool's
consistency check after each call. Any corruption aborts the run.

Example:
  poolctl check --ops 100000 --seed 7
  poolctl check --size 64KiB --no-predict`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck()
		},
	}
	return cmd
}

type checkResult struct {
	Ops      int    `json:"ops"`
	Seed     uint64 `json:"seed"`
	Failures int    `json:"failures"`
	Live     int    `json:"live"`
	OK       bool   `json:"ok"`
}

func runCheck() error {
	if checkMax <= 0 {
		return fmt.Errorf("--max must be positive")
	}
	p, closeFn, err := openPool()
	if err != nil {
		return err
	}
	defer closeFn()

	c := pool.NewChecked(p, pool.VerifyEachCall())
	res, err := stress(c, checkOps, checkSeed, checkMax)
	if err != nil {
		return err
	}

	if jsonOut {
		return printJSON(res)
	}
	printInfo("%s %d operations (seed %d), %d out of space, %d live\n",
		okStyle.Render("OK:"), res.Ops, res.Seed, res.Failures, res.Live)
	return nil
}

type stressBlock struct {
	ptr  pool.Ptr
	size int
	fill byte
}

// stress runs the randomised workload. Inconsistencies detected by the
// checked allocator panic; payload mismatches are returned as errors.
func stress(c *pool.Checked, ops int, seed uint64, maxSize int) (res checkResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			rerr, ok := r.(error)
			if !ok {
				panic(r)
			}
			err = fmt.Errorf("consistency check failed: %w", rerr)
		}
	}()

	rng := rand.New(rand.NewPCG(seed, ^seed))
	var live []stressBlock
	res = checkResult{Ops: ops, Seed: seed}

	verify := func(b stressBlock) error {
		for i, x := range c.Bytes(b.ptr, b.size) {
			if x != b.fill {
				return fmt.Errorf("block %#x byte %d is %#x, expected %#x", uint64(b.ptr), i, x, b.fill)
			}
		}
		return nil
	}

	for i := range ops {
		switch op := rng.IntN(10); {
		case op < 5 || len(live) == 0:
			n := 1 + rng.IntN(maxSize)
			ptr, b, aerr := c.Alloc(n)
			if errors.Is(aerr, pool.ErrNoSpace) {
				res.Failures++
				continue
			}
			if aerr != nil {
				return res, aerr
			}
			v := byte(i) | 1
			for j := range b {
				b[j] = v
			}
			live = append(live, stressBlock{ptr: ptr, size: n, fill: v})

		case op < 7:
			k := rng.IntN(len(live))
			if err := verify(live[k]); err != nil {
				return res, err
			}
			n := 1 + rng.IntN(maxSize)
			ptr, b, rerr := c.Realloc(live[k].ptr, n)
			if errors.Is(rerr, pool.ErrNoSpace) {
				res.Failures++
				continue
			}
			if rerr != nil {
				return res, rerr
			}
			for j := range b {
				b[j] = live[k].fill
			}
			live[k].ptr, live[k].size = ptr, n

		default:
			k := rng.IntN(len(live))
			if err := verify(live[k]); err != nil {
				return res, err
			}
			if err := c.Free(live[k].ptr); err != nil {
				return res, err
			}
			live[k] = live[len(live)-1]
			live = live[:len(live)-1]
		}
	}
	res.Live = len(live)
	res.OK = true
	return res, nil
}
