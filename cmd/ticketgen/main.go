package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
)

func main() {
	os.Exit(run(os.Args, os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout io.Writer, stderr io.Writer) int {
	env := cliEnv{
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
		log:    newLogger(stderr, debugEnabled()),
	}
	cmd := newRootCommand(args, env)
	err := cmd.ExecuteContext(context.Background())
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errNoTickets):
		return 0
	case errors.Is(err, errNoProjects):
		fmt.Fprintln(stdout, "No generated projects to publish.")
		return 0
	case errors.Is(err, errCancelled):
		fmt.Fprintln(stdout, "Cancelled.")
		return 0
	default:
		fmt.Fprintln(stderr, "ticketgen error:", err)
		return 1
	}
}
