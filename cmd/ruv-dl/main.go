package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

func main() {
	cmd, cctx := newRootCommand()
	err := cmd.Execute()
	cctx.close()
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
