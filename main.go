// Package main is the entry point for the WarpTrace log analysis service.
package main

import (
	"context"
	"fmt"
	"os"

	"warptrace/bootstrap"
	"warptrace/cmd"
	_ "warptrace/docs"
)

// runServer boots the full service and blocks until a shutdown signal
// arrives.
func runServer() error {
	ctx := context.Background()

	app, err := bootstrap.NewApp(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	if err := app.Start(ctx); err != nil {
		app.Shutdown()
		return fmt.Errorf("failed to start application: %w", err)
	}

	app.WaitForShutdown()
	app.Shutdown()

	return nil
}

// runAnalyze runs the one-shot CLI analysis instead of the server.
func runAnalyze() error {
	analyzeCmd := cmd.NewAnalyzeCmd()
	// Everything after the subcommand name belongs to the analyze command.
	analyzeCmd.SetArgs(os.Args[2:])
	return analyzeCmd.Execute()
}

func main() {
	var err error
	if len(os.Args) > 1 && os.Args[1] == "analyze" {
		err = runAnalyze()
	} else {
		err = runServer()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
