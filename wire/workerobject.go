package wire

// WorkerObjectRef is the wire projection of a value that cannot cross the
// process boundary by value: a live worker-side object that must instead be
// addressed remotely through a Proxy.
//
// Decode never constructs a live proxy itself (that would require wire to
// import the proxy package, which in turn needs a handle back to the
// service that decoded the message — an import cycle). Callers that want a
// usable handle convert a WorkerObjectRef into a proxy via their own
// service/task layer.
type WorkerObjectRef struct {
	VarName string
}
