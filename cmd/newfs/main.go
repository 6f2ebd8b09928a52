package main

import (
	"fmt"
	"os"

	"github.com/mit-pdos/go-newfs/fs"
)

func main() {
	app := newApp(os.Stdout, os.Stdin)
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "newfs: %v\n", err)
		os.Exit(int(fs.Errno(err)))
	}
}
