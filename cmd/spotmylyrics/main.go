package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newCLI(os.Stdin, os.Stdout).Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}
