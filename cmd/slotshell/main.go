package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/Iron-Ham/slotshell/internal/cmd"
)

func main() {
	err := cmd.Execute()
	var exitErr *cmd.ExitError
	if err != nil && !errors.As(err, &exitErr) && !errors.Is(err, cmd.ErrSessionLimit) {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	os.Exit(cmd.ExitCode(err))
}
