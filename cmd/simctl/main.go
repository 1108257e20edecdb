// Package main is the entry point for the simctl command line tool.
package main

import "github.com/patient-similarity-server/internal/cli"

func main() {
	cli.Execute()
}
