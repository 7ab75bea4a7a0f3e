package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// Runner provides a high-level interface to run the console application
type Runner struct {
	app *Application
	out io.Writer
}

// NewRunner creates a new application runner. Banner and session summary
// are written to out.
func NewRunner(app *Application, out io.Writer) *Runner {
	if out == nil {
		out = os.Stdout
	}

	return &Runner{
		app: app,
		out: out,
	}
}

// Run starts the application and blocks until it's stopped by the user, a
// signal or a port failure
func (r *Runner) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	r.printBanner()

	err := r.app.Run(ctx)
	if r.app.GetSession() != nil {
		r.printSessionSummary()
	}

	if err != nil {
		return fmt.Errorf("session failed: %w", err)
	}
	return nil
}

// printBanner prints the session parameters before the session starts
func (r *Runner) printBanner() {
	config := r.app.config
	fmt.Fprintf(r.out, "\n=== Serial Console Session ===\n")
	fmt.Fprintf(r.out, "Port: %s\n", config.SerialConfig.Port)
	fmt.Fprintf(r.out, "Settings: %s\n", config.SerialConfig.String())
	if config.Headless {
		fmt.Fprintf(r.out, "Headless: lines are printed as they complete, stdin lines are sent\n")
		fmt.Fprintf(r.out, "Press Ctrl+C to exit\n")
	} else {
		fmt.Fprintf(r.out, "Press Ctrl+Q to exit, F1 for help\n")
	}
	fmt.Fprintf(r.out, "==============================\n\n")
}

// printSessionSummary prints a summary of the session
func (r *Runner) printSessionSummary() {
	bytesSent, bytesRecv, duration := r.app.GetStats()

	fmt.Fprintf(r.out, "\n=== Session Summary ===\n")
	fmt.Fprintf(r.out, "Session: %s\n", r.app.GetSession().ID)
	fmt.Fprintf(r.out, "Duration: %v\n", duration.Round(time.Millisecond))
	fmt.Fprintf(r.out, "Bytes Sent: %d\n", bytesSent)
	fmt.Fprintf(r.out, "Bytes Received: %d\n", bytesRecv)
	fmt.Fprintf(r.out, "=======================\n")
}
