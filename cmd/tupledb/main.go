// Command tupledb inspects and edits a tupledb store from the shell.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "tupledb:", err)
		os.Exit(1)
	}
}
