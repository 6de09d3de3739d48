package main

import (
	"context"
	"fmt"
	"os"

	"examportal/internal/cli"
)

func main() {
	if err := cli.Execute(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "examportal:", err)
		os.Exit(1)
	}
}
