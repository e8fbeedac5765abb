package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caffeineduck/rvmhost/guest"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run <module.wasm>",
	Short: "Run a guest wasm module",
	Long: `Execute a guest wasm module with the granted capabilities.

The guest reaches the host through call frames on stderr; everything else
it prints passes through. Grants default to compute only:

  rvmhost run guest.wasm
  rvmhost run guest.wasm --grant compute --grant secret_read --secret-env CLIENT_SECRET
  rvmhost run guest.wasm --grant all --allow-host api.example.com`,
	Args: cobra.ExactArgs(1),
	Run:  runRun,
}

func init() {
	runCmd.Flags().Duration("timeout", 30*time.Second, "Execution timeout")
	runCmd.Flags().Bool("no-cache", false, "Disable compilation cache")
	runCmd.Flags().Uint32("memory-pages", 0, "Max guest memory in 64KB pages (0 = default)")
	runCmd.Flags().StringSlice("env", nil, "Guest environment variable key=value (repeatable)")
	runCmd.Flags().StringSlice("arg", nil, "Guest argv entry (repeatable)")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) {
	timeout, _ := cmd.Flags().GetDuration("timeout")
	noCache, _ := cmd.Flags().GetBool("no-cache")
	memoryPages, _ := cmd.Flags().GetUint32("memory-pages")
	envs, _ := cmd.Flags().GetStringSlice("env")
	guestArgs, _ := cmd.Flags().GetStringSlice("arg")

	wasm, err := os.ReadFile(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	log := newLogger(cmd)
	broker, err := buildBroker(cmd, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer broker.Close()

	grants, err := grantedCategories(cmd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	runnerOpts := []guest.RunnerOption{guest.WithLogger(log)}
	if !noCache {
		runnerOpts = append(runnerOpts, guest.WithDiskCache())
	}
	if memoryPages > 0 {
		runnerOpts = append(runnerOpts, guest.WithMemoryLimit(memoryPages))
	}

	runner, err := guest.New(broker, runnerOpts...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer runner.Close()

	runOpts := []guest.Option{
		guest.WithTimeout(timeout),
		guest.WithGrants(grants),
	}
	if len(guestArgs) > 0 {
		runOpts = append(runOpts, guest.WithArgs(guestArgs...))
	}
	for _, kv := range envs {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			fmt.Fprintf(os.Stderr, "Error: invalid env %q (expected key=value)\n", kv)
			os.Exit(1)
		}
		runOpts = append(runOpts, guest.WithEnv(k, v))
	}

	result := runner.Run(context.Background(), wasm, runOpts...)
	fmt.Print(result.Output)

	if result.Error != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", result.Error)
		os.Exit(1)
	}
}
