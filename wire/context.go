package wire

import "github.com/apposed/appose-go/shm"

// Exporter assigns a worker-local variable name to an arbitrary value so it
// can be referenced later by a Proxy, and returns that name. It is invoked
// by Encode, in worker mode, for any value that is not itself representable
// on the wire (not nil/bool/string/a number, a []any/map[string]any tree of
// those, a *shm.Region, or an *ndarray.NDArray).
type Exporter interface {
	AutoExport(value any) (varName string)
}

// Context carries the per-call, side-dependent policy that Encode and
// Decode need but that the wire Value types themselves must not carry
// (doing so would make wire depend on the packages that implement that
// policy, inverting the module's dependency direction).
type Context struct {
	// Worker is true when encoding is happening on the worker side of the
	// connection. Only a worker auto-exports; a caller/service never does,
	// since the caller is not in a position to host the exported object.
	Worker bool

	// Exporter is consulted when Worker is true and a value needs to be
	// auto-exported. It must be non-nil whenever Worker is true.
	Exporter Exporter

	// Allocator attaches the shared-memory regions backing *shm.Region and
	// *ndarray.NDArray values encountered during Decode. Encode does not use
	// it.
	Allocator *shm.Allocator
}
