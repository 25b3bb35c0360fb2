// Command appose-worker is a reference, fully Go-native worker executable
// (spec component H end to end). It speaks the Appose wire protocol over
// its own stdio and evaluates scripts by looking them up as named
// functions in a worker.Registry, per this module's pluggable-Evaluator
// design (see DESIGN.md).
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/apposed/appose-go/shm"
	"github.com/apposed/appose-go/worker"
	flags "github.com/jessevdk/go-flags"
	log "github.com/sirupsen/logrus"
)

type options struct {
	LogLevel string `long:"log-level" default:"warn" description:"log level: debug, info, warn, error"`
}

func main() {
	var opts options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		os.Exit(1)
	}

	logger := log.New()
	logger.SetOutput(os.Stderr)
	if level, err := log.ParseLevel(opts.LogLevel); err == nil {
		logger.SetLevel(level)
	} else {
		logger.SetLevel(log.WarnLevel)
	}

	registry := worker.NewRegistry()
	registerBuiltins(registry)

	rt := worker.New(os.Stdout, registry, worker.WithLogger(logrusRuntimeLogger{logger}))

	// Worker-mode allocation: shared-memory regions this process attaches
	// are never unlinked locally, per spec §4.2's caller-owns-unlink policy.
	alloc := &shm.Allocator{WorkerMode: true}
	decodeCtx := rt.DecodeContext(alloc)

	if initPath := os.Getenv("APPOSE_INIT_SCRIPT"); initPath != "" {
		if err := runInitScript(rt, initPath); err != nil {
			logger.WithError(err).Error("init script failed")
		}
	}

	if err := rt.Run(context.Background(), os.Stdin, decodeCtx); err != nil {
		fmt.Fprintln(os.Stderr, "appose-worker:", err)
		os.Exit(1)
	}
}

// runInitScript runs the one-shot init script named by path and deletes
// it, per spec §4.9's "some platforms deadlock if heavy imports run
// concurrently with stdin I/O" rationale: the init script's own top-level
// bindings become worker exports before any EXECUTE request is read.
func runInitScript(rt *worker.Runtime, path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading init script: %w", err)
	}
	defer os.Remove(path)

	return rt.RunInit(context.Background(), strings.TrimSpace(string(content)))
}

type logrusRuntimeLogger struct {
	logger *log.Logger
}

func (l logrusRuntimeLogger) Log(level log.Level, fields log.Fields, msg string) {
	l.logger.WithFields(fields).Log(level, msg)
}
