// Command envload drives virtual users against the environmental
// monitoring platform.
//
// Usage:
//
//	envload run [flags]
//	envload catalog [flags]
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

const (
	ExitSuccess         = 0
	ExitThresholdFailed = 1
	ExitError           = 2
)

var version = "0.1.0"

// exitError carries a process exit code through cobra's error return.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}

// execute runs the CLI with args and returns the process exit code.
func execute(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)
	err := root.Execute()
	if err == nil {
		return ExitSuccess
	}

	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			fmt.Fprintf(stderr, "error: %v\n", ee.err)
		}
		return ee.code
	}
	fmt.Fprintf(stderr, "error: %v\n", err)
	return ExitError
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:   "envload",
		Short: "Load generator for the environmental monitoring platform",
		Long: `envload spawns virtual users that send sensor readings and query alerts,
notifications and service health on the monitoring gateway, then reports
per-action statistics.

Examples:
  envload run                                   # built-in scenario against localhost:8010
  envload run --host http://gateway:8010 -u 50 -d 5m
  envload run --config scenario.yaml --output json
  envload catalog                               # show classes and action weights`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.AddCommand(newRunCmd(stdout, stderr))
	root.AddCommand(newCatalogCmd(stdout))
	return root
}
