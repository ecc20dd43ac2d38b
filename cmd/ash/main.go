// Command ash is the CLI embedding surface for the language (§6): no
// arguments opens an interactive REPL, one argument runs a script file.
// Exit codes follow §6 exactly: 0 OK, 65 compile error, 70 runtime error,
// 74 I/O failure.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-multierror"
	"github.com/peterh/liner"

	"github.com/ashlang/ash"
)

const (
	exitOK           = 0
	exitCompileError = 65
	exitRuntimeError = 70
	exitIOFailure    = 74

	historyFile = ".ash_history"
	promptMain  = "> "
)

func red(s string) string { return "\x1b[31m" + s + "\x1b[0m" }

func main() {
	switch len(os.Args) {
	case 1:
		os.Exit(runRepl())
	case 2:
		os.Exit(runFile(os.Args[1]))
	default:
		fmt.Fprintln(os.Stderr, "usage: ash [script]")
		os.Exit(2)
	}
}

func runFile(path string) int {
	src, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ash: cannot read %s: %v\n", path, err)
		return exitIOFailure
	}

	res, out, err := ash.Interpret(string(src))
	if out != "" {
		fmt.Print(out)
	}
	switch res {
	case ash.OK:
		return exitOK
	case ash.CompileError:
		printCompileError(err)
		return exitCompileError
	case ash.RuntimeError:
		fmt.Fprintln(os.Stderr, red(err.Error()))
		return exitRuntimeError
	default:
		return exitIOFailure
	}
}

// printCompileError unwraps a *multierror.Error so each accumulated
// "[line L] Error at ..." entry prints on its own line (§7), instead of
// multierror's bulleted summary format.
func printCompileError(err error) {
	var merr *multierror.Error
	if errors.As(err, &merr) {
		for _, e := range merr.Errors {
			fmt.Fprintln(os.Stderr, red(e.Error()))
		}
		return
	}
	fmt.Fprintln(os.Stderr, red(err.Error()))
}

func runRepl() int {
	fmt.Println("ash REPL. Ctrl+D to exit.")

	home, _ := os.UserHomeDir()
	histPath := filepath.Join(home, historyFile)

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	if f, err := os.Open(histPath); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}
	defer func() {
		if f, err := os.Create(histPath); err == nil {
			_, _ = ln.WriteHistory(f)
			_ = f.Close()
		}
	}()

	vm := ash.NewVM(nil)
	defer vm.Close()

	for {
		line, err := ln.Prompt(promptMain)
		if errors.Is(err, io.EOF) {
			fmt.Println()
			return exitOK
		}
		if err != nil {
			return exitOK
		}
		if line == "" {
			continue
		}
		ln.AppendHistory(line)

		res, out, runErr := vm.Run(line)
		if out != "" {
			fmt.Print(out)
		}
		switch {
		case res == ash.CompileError:
			printCompileError(runErr)
		case runErr != nil:
			fmt.Fprintln(os.Stderr, red(runErr.Error()))
		}
	}
}
