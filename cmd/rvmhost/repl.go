package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/caffeineduck/rvmhost/hostcap"
	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
)

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Interactive capability shell",
	Long: `Start an interactive shell against the capability broker.

Commands:
  issue [category...]   Issue a handle (defaults to the --grant set)
  invoke <op> [json]    Invoke an operation through the current handle
  grants                Show the current handle's granted categories
  ops                   List mounted operations
  revoke                Revoke the current handle
  exit                  Quit (or Ctrl+D)

Type 'exit' or 'quit' to end the session, or press Ctrl+D.`,
	Run: runRepl,
}

func init() {
	replCmd.Flags().String("history", "", "History file path (default: ~/.rvmhost_history)")
	rootCmd.AddCommand(replCmd)
}

func runRepl(cmd *cobra.Command, args []string) {
	historyFile, _ := cmd.Flags().GetString("history")
	if historyFile == "" {
		home, _ := os.UserHomeDir()
		historyFile = filepath.Join(home, ".rvmhost_history")
	}

	log := newLogger(cmd)
	broker, err := buildBroker(cmd, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer broker.Close()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:            "rvm> ",
		HistoryFile:       historyFile,
		HistoryLimit:      1000,
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing readline: %v\n", err)
		os.Exit(1)
	}
	defer rl.Close()

	fmt.Fprintln(os.Stderr, "rvmhost capability shell (type 'exit' to quit, Ctrl+D to exit)")

	var handle hostcap.Handle

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			if err == io.EOF {
				fmt.Println()
				break
			}
			fmt.Fprintf(os.Stderr, "Error reading input: %v\n", err)
			break
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}

		fields := strings.Fields(line)
		switch fields[0] {
		case "issue":
			requested, err := grantedCategories(cmd)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				continue
			}
			if len(fields) > 1 {
				requested, err = hostcap.ParseCategories(fields[1:])
				if err != nil {
					fmt.Fprintf(os.Stderr, "Error: %v\n", err)
					continue
				}
			}
			h, herr := broker.Issue(requested)
			if herr != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", herr)
				continue
			}
			if handle != 0 {
				broker.Revoke(handle)
			}
			handle = h
			granted, _ := broker.Grants(h)
			fmt.Printf("handle %s granted %s\n", h, granted)

		case "invoke":
			if len(fields) < 2 {
				fmt.Fprintln(os.Stderr, "usage: invoke <op> [json args]")
				continue
			}
			if handle == 0 {
				fmt.Fprintln(os.Stderr, "no handle; run 'issue' first")
				continue
			}
			var opArgs map[string]any
			rest := strings.TrimSpace(strings.TrimPrefix(line, "invoke"))
			raw := strings.TrimSpace(strings.TrimPrefix(rest, fields[1]))
			if raw != "" {
				if err := json.Unmarshal([]byte(raw), &opArgs); err != nil {
					fmt.Fprintf(os.Stderr, "Error: invalid args json: %v\n", err)
					continue
				}
			}
			v, herr := broker.Invoke(context.Background(), handle, fields[1], opArgs)
			if herr != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", herr)
				continue
			}
			out, _ := json.Marshal(v)
			fmt.Println(string(out))

		case "grants":
			if handle == 0 {
				fmt.Fprintln(os.Stderr, "no handle; run 'issue' first")
				continue
			}
			granted, herr := broker.Grants(handle)
			if herr != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", herr)
				continue
			}
			fmt.Println(granted)

		case "ops":
			ops := broker.Ops()
			names := make([]string, 0, len(ops))
			for name := range ops {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Printf("%-28s %s\n", name, ops[name])
			}

		case "revoke":
			if handle == 0 {
				fmt.Fprintln(os.Stderr, "no handle; run 'issue' first")
				continue
			}
			broker.Revoke(handle)
			handle = 0
			fmt.Println("revoked")

		default:
			fmt.Fprintf(os.Stderr, "unknown command %q (issue, invoke, grants, ops, revoke, exit)\n", fields[0])
		}
	}

	if handle != 0 {
		broker.Revoke(handle)
	}
}
