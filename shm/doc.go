// Package shm implements a kernel-bypass IPC queue: a FIFO of fixed-size
// records exchanged between cooperating processes through a POSIX-style
// shared-memory object, synchronized entirely by spin-locks that live
// inside the shared region itself.
//
// Three types compose the engine: Segment owns the mapping lifecycle of a
// named shared-memory object, Spinlock is an 8-byte busy-wait mutex
// overlaid on a cell inside a Segment, and Queue[T] overlays a header and
// ring of T records on top of a Segment and implements push, pop, and the
// on-demand doubling protocol that grows the ring without kernel
// involvement on the fast path.
package shm
