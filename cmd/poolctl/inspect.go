package main

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/joshuapare/fixedpool/pool"
)

func init() {
	rootCmd.AddCommand(newInspectCmd())
}

func newInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect <file>",
		Short: "Decode a pool image written with --file",
		Long: `The inspect command reads a pool image left behind by a file-backed run and
reports occupancy decoded from the in-band header, bitmap and boundary tags.

Example:
  poolctl bench --file /tmp/pool.bin --ops 100000
  poolctl inspect /tmp/pool.bin`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(args)
		},
	}
	return cmd
}

type inspectResult struct {
	File             string `json:"file"`
	Size             int    `json:"size"`
	Version          uint32 `json:"version"`
	RegularUsedBytes int    `json:"regular_used_bytes"`
	ClassUsed        []int  `json:"class_used_blocks"`
	UsedHeaders      int    `json:"nonregular_used"`
	FreeHeaders      int    `json:"nonregular_free"`
	UsedBytes        int    `json:"nonregular_used_bytes"`
	FreeBytes        int    `json:"nonregular_free_bytes"`
	LargestFree      int    `json:"nonregular_largest_free"`
}

func runInspect(args []string) error {
	path := args[0]
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read image: %w", err)
	}
	im, err := pool.Inspect(data)
	if err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}

	res := inspectResult{
		File:             path,
		Size:             im.Layout.Size,
		Version:          im.Version,
		RegularUsedBytes: im.RegularUsedBytes(),
		ClassUsed:        im.ClassUsed[:],
		UsedHeaders:      im.UsedHeaders,
		FreeHeaders:      im.FreeHeaders,
		UsedBytes:        im.UsedBytes,
		FreeBytes:        im.FreeBytes,
		LargestFree:      im.LargestFree,
	}
	if jsonOut {
		return printJSON(res)
	}

	heading("Pool image")
	printInfo("%s: %s pool, header version %d\n", path, humanize.IBytes(uint64(res.Size)), res.Version)
	printInfo("Regular:     %s in use\n", humanize.IBytes(uint64(res.RegularUsedBytes)))
	for i, c := range im.Layout.Classes {
		printInfo("  %5dB  %6d / %6d blocks\n", c.Size, im.ClassUsed[i], c.Blocks)
	}
	printInfo("Non-regular: %d used (%s), %d free (%s, largest %s)\n",
		res.UsedHeaders, humanize.IBytes(uint64(res.UsedBytes)),
		res.FreeHeaders, humanize.IBytes(uint64(res.FreeBytes)), humanize.IBytes(uint64(res.LargestFree)))
	return nil
}
