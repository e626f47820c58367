// Package main provides the entry point for the hostprep CLI.
package main

import "os"

func main() {
	os.Exit(execute(os.Args[1:], newCLI(os.Stdout, os.Stderr)))
}
