// Package buffer implements GPU buffers over three memory strategies that
// share one map/unmap contract.
//
// A DeviceLocal buffer can only be written by the GPU. A HostMappable buffer
// lives in host-visible, host-coherent memory and is mapped directly. A Staged
// buffer lives in device-local memory; mapping it hands out a temporary
// host-mappable staging buffer whose contents are copied into place when the
// mapping is released.
package buffer

import (
	"bytes"
	"encoding/binary"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/common"
	"github.com/vkngwrapper/core/core1_0"
)

var (
	// ErrOutOfBounds is returned when a requested range does not fit the buffer.
	ErrOutOfBounds = errors.New("range outside buffer")
	// ErrUnsupportedOperation is returned when mapping a device-local buffer.
	ErrUnsupportedOperation = errors.New("device-local buffers cannot be mapped")
	// ErrAlreadyMapped is returned when a buffer is mapped while an accessor
	// for it is still outstanding.
	ErrAlreadyMapped = errors.New("buffer already mapped")
	// ErrDestroyed is returned when a mapping outlives its buffer.
	ErrDestroyed = errors.New("buffer destroyed")
)

type Kind int

const (
	DeviceLocal Kind = iota
	HostMappable
	Staged
)

func (k Kind) String() string {
	switch k {
	case DeviceLocal:
		return "DeviceLocal"
	case HostMappable:
		return "HostMappable"
	case Staged:
		return "Staged"
	}
	return "Kind(unknown)"
}

// memory returns the memory properties and final usage flags for a buffer of
// this kind created with usage.
func (k Kind) memory(usage core1_0.BufferUsageFlags) (core1_0.MemoryPropertyFlags, core1_0.BufferUsageFlags, error) {
	switch k {
	case DeviceLocal:
		return core1_0.MemoryPropertyDeviceLocal, usage, nil
	case HostMappable:
		return core1_0.MemoryPropertyHostVisible | core1_0.MemoryPropertyHostCoherent, usage, nil
	case Staged:
		return core1_0.MemoryPropertyDeviceLocal, usage | core1_0.BufferUsageTransferDst, nil
	}
	return 0, 0, errors.Newf("unknown buffer kind %d", int(k))
}

// Backend allocates buffer memory and runs one-shot transfer commands.
type Backend interface {
	Allocate(size int, usage core1_0.BufferUsageFlags, properties core1_0.MemoryPropertyFlags) (Allocation, error)
	BeginOneTime() (Commands, error)
	// SubmitOneTime ends recording, submits to the graphics queue and blocks
	// until the queue is idle.
	SubmitOneTime(cmds Commands) error
	// Discard frees commands that will not be submitted.
	Discard(cmds Commands)
}

// Allocation is a buffer handle bound to its own memory.
type Allocation interface {
	Handle() core1_0.Buffer
	Map(offset, size int) (unsafe.Pointer, error)
	Unmap()
	Free()
}

type Commands interface {
	CopyBuffer(src, dst Allocation, srcOffset, dstOffset, size int) error
}

type Buffer struct {
	kind    Kind
	backend Backend
	alloc   Allocation
	size    int

	mapped  bool
	staging *Buffer
}

func New(backend Backend, kind Kind, size int, usage core1_0.BufferUsageFlags) (*Buffer, error) {
	if size <= 0 {
		return nil, errors.Newf("cannot create %s buffer of %d bytes", kind, size)
	}

	properties, usage, err := kind.memory(usage)
	if err != nil {
		return nil, err
	}

	alloc, err := backend.Allocate(size, usage, properties)
	if err != nil {
		return nil, errors.Wrapf(err, "allocate %s buffer of %d bytes", kind, size)
	}

	return &Buffer{
		kind:    kind,
		backend: backend,
		alloc:   alloc,
		size:    size,
	}, nil
}

func (b *Buffer) Kind() Kind { return b.kind }
func (b *Buffer) Size() int { return b.size }
func (b *Buffer) Handle() core1_0.Buffer { return b.alloc.Handle() }

// Map exposes size bytes at offset for writing. The returned accessor must be
// released exactly once; the mapping is only valid until then.
func (b *Buffer) Map(offset, size int) (*Accessor, error) {
	if b.alloc == nil {
		return nil, errors.WithStack(ErrDestroyed)
	}

	if b.kind == DeviceLocal {
		return nil, errors.WithStack(ErrUnsupportedOperation)
	}

	if !inBounds(offset, size, b.size) {
		return nil, errors.Wrapf(ErrOutOfBounds, "map %d bytes at %d of %d-byte buffer", size, offset, b.size)
	}

	if b.mapped {
		return nil, errors.WithStack(ErrAlreadyMapped)
	}

	var ptr unsafe.Pointer
	var err error

	switch b.kind {
	case HostMappable:
		ptr, err = b.alloc.Map(offset, size)
		if err != nil {
			return nil, errors.Wrap(err, "map memory")
		}
	case Staged:
		staging, err := New(b.backend, HostMappable, size, core1_0.BufferUsageTransferSrc)
		if err != nil {
			return nil, errors.Wrap(err, "create staging buffer")
		}

		ptr, err = staging.alloc.Map(0, size)
		if err != nil {
			staging.Destroy()
			return nil, errors.Wrap(err, "map staging buffer")
		}
		b.staging = staging
	default:
		return nil, errors.Newf("unknown buffer kind %d", int(b.kind))
	}

	b.mapped = true
	return &Accessor{buf: b, offset: offset, size: size, ptr: ptr}, nil
}

// inBounds reports whether [offset, offset+size) is a non-empty range inside
// a buffer of capacity bytes, without overflowing.
func inBounds(offset, size, capacity int) bool {
	return offset >= 0 && size > 0 && offset <= capacity && size <= capacity-offset
}

func (b *Buffer) unmap(offset, size int) error {
	b.mapped = false

	if b.alloc == nil {
		return errors.WithStack(ErrDestroyed)
	}

	switch b.kind {
	case HostMappable:
		b.alloc.Unmap()
		return nil
	case Staged:
		return b.upload(offset, size)
	}
	return errors.WithStack(ErrUnsupportedOperation)
}

// upload copies the staging contents into the device-local buffer and
// releases the staging buffer, whether or not the copy succeeds.
func (b *Buffer) upload(offset, size int) error {
	staging := b.staging
	b.staging = nil
	defer staging.Destroy()

	staging.alloc.Unmap()

	cmds, err := b.backend.BeginOneTime()
	if err != nil {
		return errors.Wrap(err, "begin upload")
	}

	err = cmds.CopyBuffer(staging.alloc, b.alloc, 0, offset, size)
	if err != nil {
		b.backend.Discard(cmds)
		return errors.Wrap(err, "record upload")
	}

	return errors.Wrap(b.backend.SubmitOneTime(cmds), "submit upload")
}

// WithMapped maps the range, hands it to fn and releases the mapping on every
// exit path, including a panic in fn.
func (b *Buffer) WithMapped(offset, size int, fn func(data []byte) error) (err error) {
	acc, err := b.Map(offset, size)
	if err != nil {
		return err
	}
	defer func() {
		releaseErr := acc.Release()
		if err == nil {
			err = releaseErr
		}
	}()

	return fn(acc.Bytes())
}

// Write encodes data in the device byte order and stores it at offset.
func (b *Buffer) Write(offset int, data any) error {
	buf := &bytes.Buffer{}
	err := binary.Write(buf, common.ByteOrder, data)
	if err != nil {
		return errors.Wrap(err, "encode buffer data")
	}

	return b.WithMapped(offset, buf.Len(), func(mapped []byte) error {
		copy(mapped, buf.Bytes())
		return nil
	})
}

// CopyTo records a GPU copy from this buffer into dst and waits for it.
func (b *Buffer) CopyTo(dst *Buffer, srcOffset, dstOffset, size int) error {
	if !inBounds(srcOffset, size, b.size) {
		return errors.Wrapf(ErrOutOfBounds, "copy %d bytes from %d of %d-byte buffer", size, srcOffset, b.size)
	}
	if !inBounds(dstOffset, size, dst.size) {
		return errors.Wrapf(ErrOutOfBounds, "copy %d bytes to %d of %d-byte buffer", size, dstOffset, dst.size)
	}

	cmds, err := b.backend.BeginOneTime()
	if err != nil {
		return errors.Wrap(err, "begin copy")
	}

	err = cmds.CopyBuffer(b.alloc, dst.alloc, srcOffset, dstOffset, size)
	if err != nil {
		b.backend.Discard(cmds)
		return errors.Wrap(err, "record copy")
	}

	return errors.Wrap(b.backend.SubmitOneTime(cmds), "submit copy")
}

// Destroy frees the buffer. An outstanding staging buffer is dropped without
// being uploaded.
func (b *Buffer) Destroy() {
	if b.staging != nil {
		b.staging.Destroy()
		b.staging = nil
	}

	if b.alloc != nil {
		b.alloc.Free()
		b.alloc = nil
	}
}

// Accessor is a live mapping of a buffer range.
type Accessor struct {
	buf      *Buffer
	offset   int
	size     int
	ptr      unsafe.Pointer
	released bool
}

func (a *Accessor) Pointer() unsafe.Pointer { return a.ptr }
func (a *Accessor) Size() int { return a.size }

// Bytes returns the mapped range. It must not be retained past Release.
func (a *Accessor) Bytes() []byte {
	return unsafe.Slice((*byte)(a.ptr), a.size)
}

// Release unmaps the range. For staged buffers this performs the blocking
// upload. Calls after the first are no-ops.
func (a *Accessor) Release() error {
	if a.released {
		return nil
	}
	a.released = true
	a.ptr = nil

	return a.buf.unmap(a.offset, a.size)
}
