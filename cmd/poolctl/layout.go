package main

import (
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/joshuapare/fixedpool/pool"
)

func init() {
	rootCmd.AddCommand(newLayoutCmd())
}

func newLayoutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "layout",
		Short: "Show how a buffer of --size bytes is partitioned",
		Long: `The layout command computes the partition a pool would use for a buffer
of the given size without allocating it: the pool header, one chunk per
regular size class, the non-regular chunk and the tracking bitmap.

Example:
  poolctl layout --size 64KiB
  poolctl layout --size 16MiB --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLayout()
		},
	}
	return cmd
}

type layoutClass struct {
	Size   int `json:"size"`
	Blocks int `json:"blocks"`
	Base   int `json:"base"`
	Bytes  int `json:"bytes"`
}

type layoutResult struct {
	Size          int           `json:"size"`
	Header        pool.Span     `json:"header"`
	Classes       []layoutClass `json:"classes"`
	NonRegular    pool.Span     `json:"non_regular"`
	Bitmap        pool.Span     `json:"bitmap"`
	RegularBlocks int           `json:"regular_blocks"`
}

func runLayout() error {
	size, err := poolSize()
	if err != nil {
		return err
	}
	l, err := pool.Plan(size)
	if err != nil {
		return err
	}

	res := layoutResult{
		Size:          l.Size,
		Header:        l.Header,
		NonRegular:    l.NonRegular,
		Bitmap:        l.Bitmap,
		RegularBlocks: l.TotalBlocks,
	}
	for _, c := range l.Classes {
		res.Classes = append(res.Classes, layoutClass{
			Size:   c.Size,
			Blocks: c.Blocks,
			Base:   c.Base,
			Bytes:  c.Size * c.Blocks,
		})
	}
	if jsonOut {
		return printJSON(res)
	}

	heading("Pool layout")
	printInfo("Buffer:      %s\n", humanize.IBytes(uint64(l.Size)))
	printInfo("Header:      %#08x  %s\n", l.Header.Off, humanize.IBytes(uint64(l.Header.Len)))
	for _, c := range res.Classes {
		printInfo("Class %5dB: %#08x  %6d blocks  %s\n", c.Size, c.Base, c.Blocks, humanize.IBytes(uint64(c.Bytes)))
	}
	printInfo("Non-regular: %#08x  %s\n", l.NonRegular.Off, humanize.IBytes(uint64(l.NonRegular.Len)))
	printInfo("Bitmap:      %#08x  %s (%d blocks tracked)\n",
		l.Bitmap.Off, humanize.IBytes(uint64(l.Bitmap.Len)), l.TotalBlocks)
	return nil
}
