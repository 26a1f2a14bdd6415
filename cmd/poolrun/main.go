package main

import (
	"fmt"
	"io"
	"os"
)

// Dispatcher
func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// startServer is a variable to allow mocking in tests
var startServer = runServer

// Run is the entrypoint for testing
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		// Default to server
		return startServer()
	}

	switch args[1] {
	case "server", "serve":
		return startServer()
	case "health":
		return runHealthCmd(stdout, stderr)
	case "token":
		return runTokenCmd(args[2:], stdout, stderr)
	case "templates":
		return runTemplatesCmd(stdout, stderr)
	case "version":
		_, _ = fmt.Fprintln(stdout, "poolrun "+version)
		return 0
	case "help", "-h", "--help":
		printUsage(stdout)
		return 0
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n", args[1])
		printUsage(stderr)
		return 2
	}
}

const version = "1.0.0"

func printUsage(w io.Writer) {
	_, _ = fmt.Fprint(w, `poolrun - run lifecycle and settlement engine

Usage:
  poolrun [server]     start the API server (default)
  poolrun health       probe a running server
  poolrun token        mint a bearer token for an identity
  poolrun templates    list configured run templates
  poolrun version      print the version
`)
}
