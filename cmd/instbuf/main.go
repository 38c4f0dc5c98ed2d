// Package main provides the instbuf command-line tool, which runs programs
// and fetch benchmarks through the cycle-level instruction buffer model.
package main

func main() {
	Execute()
}
