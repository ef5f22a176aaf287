package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/esomin/gpu-market-intel/cmd/cli/cmd"
)

func main() {
	err := cmd.Execute()
	if err == nil {
		return
	}

	fmt.Fprintln(os.Stderr, err)
	if errors.Is(err, cmd.ErrPartialSuccess) {
		os.Exit(2)
	}
	os.Exit(1)
}
