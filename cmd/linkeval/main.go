// Command linkeval clusters addresses by behavioral features and measures
// how well the clusters recover wallets and roles hidden by address
// shuffling.
package main

import (
	"fmt"
	"io"
	"os"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes the root command and reports any failure on stderr, since
// the command itself is built with SilenceErrors.
func run(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(stderr, "linkeval:", err)
		return 1
	}
	return 0
}
