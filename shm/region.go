// Package shm implements named, cross-process shared-memory regions.
//
// A Region is created by one process (typically the caller/service side)
// and attached by another (typically the worker side). Exactly one side is
// responsible for destroying the underlying OS resource; see Allocator and
// Region.SetUnlinkOnDispose for how unlink-on-dispose is assigned.
package shm

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// AllocationError is returned when the OS cannot satisfy a Create request.
type AllocationError struct {
	Name string
	Size int64
	Err  error
}

func (e *AllocationError) Error() string {
	return fmt.Sprintf("shm: allocating region %q of %d bytes: %v", e.Name, e.Size, e.Err)
}

func (e *AllocationError) Unwrap() error { return e.Err }

// NotFoundError is returned when Attach cannot find an existing OS block.
type NotFoundError struct {
	Name string
	Err  error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("shm: region %q not found: %v", e.Name, e.Err)
}

func (e *NotFoundError) Unwrap() error { return e.Err }

// Region is a named, cross-process byte buffer backed by an OS-level shared
// memory block. Two processes referring to the same Name share the same
// underlying bytes.
type Region struct {
	name   string
	rsize  int64
	size   int64
	buffer []byte

	mu              sync.Mutex
	closed          bool
	unlinked        bool
	unlinkOnDispose bool
}

// Name is the OS-global identifier of the region.
func (r *Region) Name() string { return r.name }

// RSize is the requested logical size, in bytes.
func (r *Region) RSize() int64 { return r.rsize }

// Size is the actual allocated size, which may exceed RSize due to page
// rounding.
func (r *Region) Size() int64 { return r.size }

// Bytes is a host-addressable view over the region. It is valid until Close
// or Dispose is called.
func (r *Region) Bytes() []byte { return r.buffer }

// UnlinkOnDispose reports whether Dispose will unlink the OS block in
// addition to closing the local mapping.
func (r *Region) UnlinkOnDispose() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.unlinkOnDispose
}

// SetUnlinkOnDispose overrides the unlink-on-dispose policy for this region.
// The service process always unlinks regardless of which side created the
// block (see Allocator), so a worker-side attachment must call this with
// false for any region it does not itself own.
func (r *Region) SetUnlinkOnDispose(v bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unlinkOnDispose = v
}

// Close releases the local mapping. It is idempotent.
func (r *Region) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	if r.buffer == nil {
		return nil
	}
	err := munmap(r.buffer)
	r.buffer = nil
	if err == nil {
		atomic.AddInt64(&activeRegions, -1)
	}
	return err
}

// Unlink destroys the OS block. It is idempotent and may legitimately race
// with a concurrent close (but not a concurrent unlink) in the peer process.
func (r *Region) Unlink() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.unlinked {
		return nil
	}
	r.unlinked = true
	err := unlinkNamed(r.name)
	if err == nil {
		atomic.AddInt64(&allocatedBytes, -r.size)
	}
	return err
}

// Dispose is the scope-exit primitive: it always closes, and additionally
// unlinks iff UnlinkOnDispose is set.
func (r *Region) Dispose() error {
	var unlinkErr error
	if r.UnlinkOnDispose() {
		unlinkErr = r.Unlink()
	}
	closeErr := r.Close()
	if unlinkErr != nil {
		return unlinkErr
	}
	return closeErr
}

// Allocator creates and attaches Regions under a single worker-mode policy.
// Per the package design, "worker mode" is an explicit, injected property of
// the allocator rather than global mutable process state: a Service holds an
// Allocator with WorkerMode false, and a worker runtime holds one with
// WorkerMode true.
type Allocator struct {
	// WorkerMode marks an allocator owned by a worker process. Create and
	// Attach do not consult it: in either mode an attached region starts
	// with UnlinkOnDispose false, a created region starts with it true, and
	// no OS-level auto-cleanup is registered.
	WorkerMode bool
}

// Create allocates a new OS-named block of at least rsize bytes.
func (a *Allocator) Create(rsize int64) (*Region, error) {
	if rsize < 0 {
		return nil, fmt.Errorf("shm: negative size %d", rsize)
	}
	name := generateName()
	buf, size, err := createNamed(name, rsize)
	if err != nil {
		return nil, &AllocationError{Name: name, Size: rsize, Err: err}
	}
	atomic.AddInt64(&activeRegions, 1)
	atomic.AddInt64(&allocatedBytes, size)
	return &Region{
		name:            name,
		rsize:           rsize,
		size:            size,
		buffer:          buf,
		unlinkOnDispose: true,
	}, nil
}

// Attach opens an existing block by name. rsize is the caller's logical
// view of the region and is not validated against the OS-reported size.
func (a *Allocator) Attach(name string, rsize int64) (*Region, error) {
	buf, size, err := attachNamed(name, rsize)
	if err != nil {
		if errors.Is(err, errNotFound) {
			return nil, &NotFoundError{Name: name, Err: err}
		}
		return nil, fmt.Errorf("shm: attaching region %q: %w", name, err)
	}
	atomic.AddInt64(&activeRegions, 1)
	return &Region{
		name:  name,
		rsize: rsize,
		size:  size,
		// An attachment never owns cleanup: the creator (or, under the
		// appose policy, the service) unlinks. A worker-mode attachment
		// must never unlink regardless of who created the block.
		unlinkOnDispose: false,
		buffer:          buf,
	}, nil
}

// Stats returns process-wide counters used by service.MetricsCollector.
func Stats() (activeCount, bytesAllocated int64) {
	return atomic.LoadInt64(&activeRegions), atomic.LoadInt64(&allocatedBytes)
}

var (
	activeRegions  int64
	allocatedBytes int64
)
