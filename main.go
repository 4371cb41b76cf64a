package main

import (
	"context"
	"fmt"
	"os"

	"github.com/gewnthar/parkalerts/cmd"
)

func main() {
	if err := cmd.Execute(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
