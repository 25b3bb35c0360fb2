package worker

import "context"

// mainThreadKey distinguishes, within an Evaluator call, whether the
// current task was dispatched onto the worker's main-thread queue
// (request.Queue == "main") or its own goroutine.
//
// Go goroutines are not bound one-to-one with OS threads, so there is no
// true "current thread identity" to report the way spec §8 scenario 3
// (main-thread queue) expects. This context flag is the idiomatic Go
// stand-in: the worker's main loop (the single goroutine spec §5 calls
// "the worker's primary thread") tags every task it runs directly, and
// every goroutine-dispatched task is tagged false, so a registered
// Evaluator can still distinguish the two dispatch paths and report it
// back to the caller (see MainThreadID).
type mainThreadKey struct{}

// MainThreadID is the value ThreadID reports for a task run on the
// worker's main-thread queue, standing in for spec §8 scenario 3's "the
// worker's designated main-thread identifier".
const MainThreadID = "main"

// WorkerThreadID is the value ThreadID reports for a task run on its
// own dispatched goroutine.
const WorkerThreadID = "worker"

func withMainThread(ctx context.Context, main bool) context.Context {
	return context.WithValue(ctx, mainThreadKey{}, main)
}

// IsMainThread reports whether ctx (as passed to an Evaluator.Evaluate
// call) belongs to a task dispatched via queue:"main".
func IsMainThread(ctx context.Context) bool {
	v, _ := ctx.Value(mainThreadKey{}).(bool)
	return v
}

// ThreadID renders IsMainThread(ctx) as the identifier string a script
// would report for "which thread am I running on" (spec §8 scenario 3).
func ThreadID(ctx context.Context) string {
	if IsMainThread(ctx) {
		return MainThreadID
	}
	return WorkerThreadID
}
