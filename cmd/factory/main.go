// cmd/factory/main.go
//
// Entry point for the factory CLI. Every command works on a project
// directory (--project, default cwd) that holds .factory/ with the config,
// logs and pipeline state.

package main

import (
	"errors"
	"fmt"
	"io"
	"os"
)

func main() {
	os.Exit(execute(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// exitError carries the process exit code out of a command. err is printed
// when set; commands that already reported their failure leave it nil.
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

func (e *exitError) Unwrap() error {
	return e.err
}

func exitCode(code int, err error) error {
	return &exitError{code: code, err: err}
}

// execute runs the CLI and returns the process exit code.
func execute(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	app := &cli{stdin: stdin, stdout: stdout, stderr: stderr}
	defer app.close()

	cmd := newRootCommand(app)
	cmd.SetArgs(args)
	cmd.SetIn(stdin)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.Execute()
	if err == nil {
		return 0
	}
	var exit *exitError
	if errors.As(err, &exit) {
		if exit.err != nil {
			fmt.Fprintf(stderr, "factory: %v\n", exit.err)
		}
		return exit.code
	}
	fmt.Fprintf(stderr, "factory: %v\n", err)
	return 1
}
