package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ternarybob/pricewatch/internal/app"
	"github.com/ternarybob/pricewatch/internal/models"
	"github.com/ternarybob/pricewatch/internal/services/runner"
)

const foregroundPoll = 100 * time.Millisecond

// runForeground executes one reconciliation, copying its output to out.
// Returns the process exit code.
func runForeground(application *app.App, out io.Writer) int {
	run, err := application.Runner.Start(models.RunTriggerCLI)
	if err != nil {
		fmt.Fprintf(out, "Failed to start run: %v\n", err)
		return 1
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	ticker := time.NewTicker(foregroundPoll)
	defer ticker.Stop()

	cursor := 0
	for {
		select {
		case <-run.Done():
			copyOutput(run.Output(), &cursor, out)
			if run.State() != models.RunStateCompleted {
				return 1
			}
			return 0
		case <-sigChan:
			if err := application.Runner.Cancel(run.ID()); err != nil {
				application.Logger.Warn().Err(err).Msg("Cancel failed")
			}
		case <-ticker.C:
			copyOutput(run.Output(), &cursor, out)
		}
	}
}

func copyOutput(buf *runner.OutputBuffer, cursor *int, out io.Writer) {
	chunks, next := buf.ReadSince(*cursor)
	for _, chunk := range chunks {
		io.WriteString(out, chunk)
	}
	*cursor = next
}
