package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/joshuapare/fixedpool/internal/logger"
	"github.com/joshuapare/fixedpool/internal/region"
	"github.com/joshuapare/fixedpool/pool"
)

var (
	// Global flags
	verbose   bool
	quiet     bool
	jsonOut   bool
	sizeFlag  string
	useMmap   bool
	fileFlag  string
	pinPages  bool
	noPredict bool
	noColor   bool
)

var rootCmd = &cobra.Command{
	Use:   "poolctl",
	Short: "Inspect and exercise fixed-region memory pools",
	Long: `poolctl builds a fixed-region pool over a heap or mmap'd buffer and lets you
inspect its layout, benchmark it, replay allocation traces against it and run
randomised consistency checks.`,
	Version: version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		logger.Init(logger.Options{Enabled: verbose, Level: level, JSON: jsonOut})
		if noColor {
			disableColor()
		}
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().
		BoolVarP(&quiet, "quiet", "q", false, "Suppress all output except errors")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().
		StringVarP(&sizeFlag, "size", "s", "1MiB", "Pool buffer size (e.g. 64KiB, 16MB)")
	rootCmd.PersistentFlags().
		BoolVar(&useMmap, "mmap", false, "Back the pool with an anonymous mapping instead of the Go heap")
	rootCmd.PersistentFlags().
		StringVar(&fileFlag, "file", "", "Back the pool with a shared mapping of this file")
	rootCmd.PersistentFlags().BoolVar(&pinPages, "mlock", false, "Lock the pool's pages into RAM")
	rootCmd.PersistentFlags().
		BoolVar(&noPredict, "no-predict", false, "Disable the prediction caches")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
}

func execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// poolSize parses the --size flag.
func poolSize() (int, error) {
	n, err := humanize.ParseBytes(sizeFlag)
	if err != nil {
		return 0, fmt.Errorf("invalid --size %q: %w", sizeFlag, err)
	}
	if n == 0 || n > 1<<40 {
		return 0, fmt.Errorf("invalid --size %q: out of range", sizeFlag)
	}
	return int(n), nil
}

// openPool acquires a buffer according to the global flags and initialises a
// pool over it. The returned close function exits the pool and releases the
// buffer.
func openPool() (*pool.Pool, func() error, error) {
	size, err := poolSize()
	if err != nil {
		return nil, nil, err
	}
	buf, release, err := region.Acquire(size, useMmap, fileFlag)
	if err != nil {
		return nil, nil, err
	}
	if pinPages {
		if err := region.Pin(buf); err != nil {
			_ = release()
			return nil, nil, err
		}
	}

	opts := []pool.Option{pool.WithLogger(logger.L)}
	if noPredict {
		opts = append(opts, pool.WithoutPrediction())
	}
	p, err := pool.New(buf, opts...)
	if err != nil {
		_ = release()
		return nil, nil, fmt.Errorf("failed to initialise pool: %w", err)
	}
	printVerbose("Pool: %s (%s)\n", humanize.IBytes(uint64(size)), backing())
	logger.Debug("pool opened", "size", size, "backing", backing(), "predict", !noPredict)

	closeFn := func() error {
		// A file-backed pool is left intact for poolctl inspect.
		if fileFlag == "" {
			p.Exit()
		}
		if pinPages {
			if err := region.Unpin(buf); err != nil {
				_ = release()
				return err
			}
		}
		return release()
	}
	return p, closeFn, nil
}

func backing() string {
	if fileFlag != "" {
		return "file " + fileFlag
	}
	if useMmap {
		return "mmap"
	}
	return "heap"
}

// Helper functions for output

// printInfo prints an info message if not in quiet mode
func printInfo(format string, args ...any) {
	if !quiet {
		fmt.Fprintf(os.Stdout, format, args...)
	}
}

// printVerbose prints a verbose message if verbose mode is enabled
func printVerbose(format string, args ...any) {
	if verbose && !quiet {
		fmt.Fprintf(os.Stdout, format, args...)
	}
}

// printJSON outputs data as JSON
func printJSON(v any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
