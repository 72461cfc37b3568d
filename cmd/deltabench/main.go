// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// deltabench runs a concurrent write/read workload against an in-memory delta
// store and reports per-operation latencies.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/cockroachdb/deltamem"
	"github.com/spf13/cobra"
)

var cfg = defaultBenchConfig()

var rootCmd = &cobra.Command{
	Use:   "deltabench [command] (flags)",
	Short: "delta store benchmarking tool",
	Long:  ``,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "run a concurrent update and scan workload",
	Long: `
Run writers that update random rows in transactions and readers that scan
every row under fresh snapshots, printing latency percentiles each second.
`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.options != "" {
			data, err := os.ReadFile(cfg.options)
			if err != nil {
				return err
			}
			cfg.options = string(data)
		}
		b, err := newBench(cfg)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		return b.run(ctx, cmd.OutOrStdout())
	},
}

var optionsCmd = &cobra.Command{
	Use:   "options",
	Short: "print the default store options",
	Long: `
Print the default store options in the format accepted by "run --options".
`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		opts := &deltamem.Options{}
		opts.EnsureDefaults()
		fmt.Fprint(cmd.OutOrStdout(), opts.String())
	},
}

func init() {
	runCmd.Flags().IntVarP(
		&cfg.writers, "concurrency", "c", cfg.writers, "number of concurrent writers")
	runCmd.Flags().IntVar(
		&cfg.readers, "readers", cfg.readers, "number of concurrent readers")
	runCmd.Flags().DurationVarP(
		&cfg.duration, "duration", "d", cfg.duration, "the duration to run (0, run until --max-txns)")
	runCmd.Flags().Uint64VarP(
		&cfg.maxTxns, "max-txns", "n", 0, "maximum number of write transactions (0 means unlimited)")
	runCmd.Flags().IntVar(
		&cfg.rows, "rows", cfg.rows, "number of rows in the row set")
	runCmd.Flags().IntVar(
		&cfg.rowsPerTxn, "rows-per-txn", cfg.rowsPerTxn, "number of rows updated by each transaction")
	runCmd.Flags().IntVar(
		&cfg.batchSize, "batch", cfg.batchSize, "number of rows in each scan batch")
	runCmd.Flags().Float64Var(
		&cfg.writeRate, "write-rate", 0, "maximum write transactions per second (0 means unlimited)")
	runCmd.Flags().StringVar(
		&cfg.options, "options", "", "path to a file holding store options")
	runCmd.Flags().BoolVar(
		&cfg.verify, "verify", false, "scan every snapshot twice and compare checksums")
	runCmd.Flags().BoolVar(
		&cfg.plot, "plot", false, "plot write throughput when done")
	runCmd.Flags().Uint64Var(
		&cfg.seed, "seed", cfg.seed, "random seed")
}

func main() {
	log.SetFlags(0)

	cobra.EnableCommandSorting = false
	rootCmd.AddCommand(runCmd, optionsCmd)

	if err := rootCmd.Execute(); err != nil {
		// Cobra has already printed the error message.
		os.Exit(1)
	}
}
