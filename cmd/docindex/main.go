package main

import (
	"context"
	"os"

	"github.com/markdave123-py/docindex/internal/cli"
)

func main() {
	if err := cli.Execute(context.Background()); err != nil {
		os.Exit(1)
	}
}
