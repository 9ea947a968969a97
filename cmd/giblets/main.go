package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jgivc/giblets/internal/app"
	"github.com/jgivc/giblets/internal/common"
)

func main() {
	cfgFileName := flag.String("c", "giblets.yml", "Path to config file")
	manifest := flag.String("m", "", "Path to manifest file, overrides config")
	outputDir := flag.String("o", "", "Output directory, overrides config")
	environment := flag.String("e", "", "Manifest environment, overrides config")
	noAdapt := flag.Bool("no-adapt", false, "Do not adapt module formats unless an entry asks for it")
	dumpLedger := flag.String("dump-ledger", "", "Dump the last recorded run to file (- for stdout) and exit")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(c)

	go func() {
		select {
		case <-c:
			fmt.Fprintln(os.Stderr, "Received termination signal. Shutting down...")
			cancel()
		case <-ctx.Done():
		}
	}()

	a := app.New(*cfgFileName)

	var err error
	if *dumpLedger != "" {
		err = a.DumpLedger(ctx, *dumpLedger)
	} else {
		err = a.Run(ctx, app.Overrides{
			ManifestPath: *manifest,
			OutputDir:    *outputDir,
			Environment:  *environment,
			NoAdapt:      *noAdapt,
		})
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "giblets: %s\n", err)

		if errors.Is(err, common.ErrRunFailed) {
			os.Exit(1)
		}
		os.Exit(2)
	}
}
