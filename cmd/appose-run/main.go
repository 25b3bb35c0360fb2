// Command appose-run is a demo driver CLI exercising a Service end to end
// against a worker subprocess (spec components A-G): it starts the
// worker, runs one registered script, prints progress as it arrives, and
// reports the final result in color.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/apposed/appose-go/env"
	"github.com/apposed/appose-go/task"
	"github.com/fatih/color"
	flags "github.com/jessevdk/go-flags"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
)

type options struct {
	Worker  string `long:"worker" default:"appose-worker" description:"path to the worker executable"`
	Script  string `long:"script" default:"collatz" description:"registered script name to run"`
	N       int64  `long:"n" default:"27" description:"starting value for the collatz demo script"`
	Timeout int    `long:"timeout" default:"30" description:"seconds to wait for the task to finish"`
}

func main() {
	var opts options
	if _, err := flags.NewParser(&opts, flags.Default).Parse(); err != nil {
		os.Exit(1)
	}
	if err := run(opts); err != nil {
		fmt.Fprintln(os.Stderr, red("error:"), err)
		os.Exit(1)
	}
}

func run(opts options) error {
	svc, err := env.New(opts.Worker).Start()
	if err != nil {
		return fmt.Errorf("starting worker: %w", err)
	}
	defer svc.Close()

	t, err := svc.StartTask(opts.Script, map[string]any{"n": opts.N}, "")
	if err != nil {
		return fmt.Errorf("starting task: %w", err)
	}

	t.Listen(task.ListenerFunc(func(e task.Event) {
		if e.Status == task.Running && e.Current != 0 {
			fmt.Printf("%s %s: step %d\n", yellow("progress"), t.UUID(), e.Current)
		}
	}))

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(opts.Timeout)*time.Second)
	defer cancel()

	outputs, err := t.Result(ctx)
	if err != nil {
		return fmt.Errorf("task failed: %w", err)
	}
	fmt.Printf("%s %v\n", green("result:"), outputs["result"])
	return nil
}
