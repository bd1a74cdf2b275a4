package buffer

import (
	"bytes"
	"math"
	"testing"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/core1_0"
)

type fakeAllocation struct {
	mem        []byte
	usage      core1_0.BufferUsageFlags
	properties core1_0.MemoryPropertyFlags
	maps       int
	unmaps     int
	freed      bool
}

func (a *fakeAllocation) Handle() core1_0.Buffer { return nil }

func (a *fakeAllocation) Map(offset, size int) (unsafe.Pointer, error) {
	a.maps++
	return unsafe.Pointer(&a.mem[offset]), nil
}

func (a *fakeAllocation) Unmap() { a.unmaps++ }
func (a *fakeAllocation) Free()  { a.freed = true }

type fakeCopy struct {
	src, dst                   *fakeAllocation
	srcOffset, dstOffset, size int
}

type fakeCommands struct {
	copies  []fakeCopy
	copyErr error
}

func (c *fakeCommands) CopyBuffer(src, dst Allocation, srcOffset, dstOffset, size int) error {
	if c.copyErr != nil {
		return c.copyErr
	}
	c.copies = append(c.copies, fakeCopy{
		src: src.(*fakeAllocation), dst: dst.(*fakeAllocation),
		srcOffset: srcOffset, dstOffset: dstOffset, size: size,
	})
	return nil
}

// fakeBackend executes copies on submit, the way the queue would.
type fakeBackend struct {
	allocations []*fakeAllocation
	submits     int
	submitErr   error
	copyErr     error
	begun       int
	discarded   int
}

func (b *fakeBackend) Allocate(size int, usage core1_0.BufferUsageFlags, properties core1_0.MemoryPropertyFlags) (Allocation, error) {
	alloc := &fakeAllocation{mem: make([]byte, size), usage: usage, properties: properties}
	b.allocations = append(b.allocations, alloc)
	return alloc, nil
}

func (b *fakeBackend) BeginOneTime() (Commands, error) {
	b.begun++
	return &fakeCommands{copyErr: b.copyErr}, nil
}

func (b *fakeBackend) Discard(Commands) {
	b.discarded++
}

func (b *fakeBackend) SubmitOneTime(cmds Commands) error {
	b.submits++
	if b.submitErr != nil {
		return b.submitErr
	}

	for _, c := range cmds.(*fakeCommands).copies {
		copy(c.dst.mem[c.dstOffset:c.dstOffset+c.size], c.src.mem[c.srcOffset:c.srcOffset+c.size])
	}
	return nil
}

func pattern(size int) []byte {
	p := make([]byte, size)
	for i := range p {
		p[i] = byte(i*7 + 3)
	}
	return p
}

func TestDeviceLocalCannotMap(t *testing.T) {
	backend := &fakeBackend{}
	buf, err := New(backend, DeviceLocal, 64, core1_0.BufferUsageVertexBuffer)
	require.NoError(t, err)

	for _, r := range [][2]int{{0, 64}, {0, 1}, {100, 100}} {
		acc, err := buf.Map(r[0], r[1])
		require.Nil(t, acc)
		require.True(t, errors.Is(err, ErrUnsupportedOperation), "%+v", err)
	}
	require.Equal(t, core1_0.MemoryPropertyDeviceLocal, backend.allocations[0].properties)
}

func TestHostMappableMapsDirectly(t *testing.T) {
	backend := &fakeBackend{}
	buf, err := New(backend, HostMappable, 32, core1_0.BufferUsageUniformBuffer)
	require.NoError(t, err)
	alloc := backend.allocations[0]
	require.Equal(t, core1_0.MemoryPropertyHostVisible|core1_0.MemoryPropertyHostCoherent, alloc.properties)

	err = buf.WithMapped(8, 4, func(data []byte) error {
		copy(data, []byte{1, 2, 3, 4})
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3, 4}, alloc.mem[8:12])
	require.Equal(t, 1, alloc.maps)
	require.Equal(t, 1, alloc.unmaps)
	require.Zero(t, backend.submits)
}

func TestMapOutOfBounds(t *testing.T) {
	for _, kind := range []Kind{HostMappable, Staged} {
		t.Run(kind.String(), func(t *testing.T) {
			buf, err := New(&fakeBackend{}, kind, 16, core1_0.BufferUsageVertexBuffer)
			require.NoError(t, err)

			for _, r := range [][2]int{{0, 17}, {8, 9}, {16, 1}, {-1, 4}, {0, 0}, {8, math.MaxInt}, {math.MaxInt, 1}, {17, -1}} {
				acc, err := buf.Map(r[0], r[1])
				require.Nil(t, acc, "range %v", r)
				require.True(t, errors.Is(err, ErrOutOfBounds), "range %v: %+v", r, err)
			}

			acc, err := buf.Map(0, 16)
			require.NoError(t, err)
			require.NoError(t, acc.Release())
		})
	}
}

func TestStagedRoundTrip(t *testing.T) {
	const size = 96
	p := pattern(size)

	backend := &fakeBackend{}
	staged, err := New(backend, Staged, size, core1_0.BufferUsageVertexBuffer)
	require.NoError(t, err)
	dest := backend.allocations[0]
	require.Equal(t, core1_0.BufferUsageVertexBuffer|core1_0.BufferUsageTransferDst, dest.usage)

	acc, err := staged.Map(0, size)
	require.NoError(t, err)
	require.Len(t, backend.allocations, 2)
	stagingAlloc := backend.allocations[1]
	require.Equal(t, core1_0.BufferUsageTransferSrc, stagingAlloc.usage)

	copy(acc.Bytes(), p)
	require.Equal(t, make([]byte, size), dest.mem, "nothing reaches the device before release")

	require.NoError(t, acc.Release())
	require.Equal(t, 1, backend.submits)
	require.Equal(t, 1, stagingAlloc.unmaps)
	require.True(t, stagingAlloc.freed)

	readback, err := New(backend, HostMappable, size, core1_0.BufferUsageTransferDst)
	require.NoError(t, err)
	require.NoError(t, staged.CopyTo(readback, 0, 0, size))

	err = readback.WithMapped(0, size, func(data []byte) error {
		require.True(t, bytes.Equal(p, data))
		return nil
	})
	require.NoError(t, err)
}

func TestStagedPartialUpload(t *testing.T) {
	backend := &fakeBackend{}
	staged, err := New(backend, Staged, 16, core1_0.BufferUsageVertexBuffer)
	require.NoError(t, err)

	acc, err := staged.Map(10, 4)
	require.NoError(t, err)
	require.Len(t, backend.allocations[1].mem, 4, "staging is sized to the request")
	copy(acc.Bytes(), []byte{9, 8, 7, 6})
	require.NoError(t, acc.Release())

	require.Equal(t, []byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 9, 8, 7, 6, 0, 0}, backend.allocations[0].mem)
}

func TestSecondMapRejected(t *testing.T) {
	for _, kind := range []Kind{HostMappable, Staged} {
		t.Run(kind.String(), func(t *testing.T) {
			backend := &fakeBackend{}
			buf, err := New(backend, kind, 16, core1_0.BufferUsageVertexBuffer)
			require.NoError(t, err)

			first, err := buf.Map(0, 8)
			require.NoError(t, err)
			allocated := len(backend.allocations)

			second, err := buf.Map(8, 8)
			require.Nil(t, second)
			require.True(t, errors.Is(err, ErrAlreadyMapped), "%+v", err)
			require.Len(t, backend.allocations, allocated)

			require.NoError(t, first.Release())

			third, err := buf.Map(8, 8)
			require.NoError(t, err)
			require.NoError(t, third.Release())
		})
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	backend := &fakeBackend{}
	buf, err := New(backend, Staged, 8, core1_0.BufferUsageVertexBuffer)
	require.NoError(t, err)

	acc, err := buf.Map(0, 8)
	require.NoError(t, err)
	require.NoError(t, acc.Release())
	require.NoError(t, acc.Release())
	require.Equal(t, 1, backend.submits)
}

func TestWithMappedReleasesOnError(t *testing.T) {
	backend := &fakeBackend{}
	buf, err := New(backend, Staged, 8, core1_0.BufferUsageVertexBuffer)
	require.NoError(t, err)

	failure := errors.New("write failed")
	err = buf.WithMapped(0, 8, func(data []byte) error {
		return failure
	})
	require.ErrorIs(t, err, failure)
	require.Equal(t, 1, backend.submits)
	require.True(t, backend.allocations[1].freed)

	acc, err := buf.Map(0, 8)
	require.NoError(t, err, "mapping is available again")
	require.NoError(t, acc.Release())
}

func TestWithMappedReleasesOnPanic(t *testing.T) {
	backend := &fakeBackend{}
	buf, err := New(backend, HostMappable, 8, core1_0.BufferUsageVertexBuffer)
	require.NoError(t, err)

	require.Panics(t, func() {
		_ = buf.WithMapped(0, 8, func(data []byte) error {
			panic("boom")
		})
	})
	require.Equal(t, 1, backend.allocations[0].unmaps)
}

func TestStagedUploadFailureFreesStaging(t *testing.T) {
	backend := &fakeBackend{submitErr: errors.New("device lost")}
	buf, err := New(backend, Staged, 8, core1_0.BufferUsageVertexBuffer)
	require.NoError(t, err)

	err = buf.Write(0, []uint32{1, 2})
	require.Error(t, err)
	require.True(t, backend.allocations[1].freed)
}

func TestWriteEncodesData(t *testing.T) {
	backend := &fakeBackend{}
	buf, err := New(backend, Staged, 8, core1_0.BufferUsageVertexBuffer)
	require.NoError(t, err)

	require.NoError(t, buf.Write(0, []uint16{0x0201, 0x0403, 0x0605, 0x0807}))
	require.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, backend.allocations[0].mem)
}

func TestDestroyFreesAllocation(t *testing.T) {
	backend := &fakeBackend{}
	buf, err := New(backend, Staged, 8, core1_0.BufferUsageVertexBuffer)
	require.NoError(t, err)

	_, err = buf.Map(0, 8)
	require.NoError(t, err)
	buf.Destroy()

	require.True(t, backend.allocations[0].freed)
	require.True(t, backend.allocations[1].freed)
	require.Zero(t, backend.submits)
}

func TestNewRejectsEmpty(t *testing.T) {
	_, err := New(&fakeBackend{}, HostMappable, 0, core1_0.BufferUsageVertexBuffer)
	require.Error(t, err)
}

func TestCopyToOutOfBounds(t *testing.T) {
	backend := &fakeBackend{}
	src, err := New(backend, HostMappable, 16, core1_0.BufferUsageTransferSrc)
	require.NoError(t, err)
	dst, err := New(backend, HostMappable, 16, core1_0.BufferUsageTransferDst)
	require.NoError(t, err)

	for _, r := range [][3]int{{8, 0, math.MaxInt}, {0, 8, math.MaxInt}, {0, 12, 8}, {-1, 0, 4}} {
		err := src.CopyTo(dst, r[0], r[1], r[2])
		require.True(t, errors.Is(err, ErrOutOfBounds), "copy %v: %+v", r, err)
	}
	require.Zero(t, backend.begun)
}

func TestRecordFailureDiscardsCommands(t *testing.T) {
	failure := errors.New("recording failed")
	backend := &fakeBackend{copyErr: failure}

	staged, err := New(backend, Staged, 8, core1_0.BufferUsageVertexBuffer)
	require.NoError(t, err)
	err = staged.Write(0, []uint32{1, 2})
	require.ErrorIs(t, err, failure)
	require.Equal(t, 1, backend.discarded)
	require.True(t, backend.allocations[1].freed)

	readback, err := New(backend, HostMappable, 8, core1_0.BufferUsageTransferDst)
	require.NoError(t, err)
	err = staged.CopyTo(readback, 0, 0, 8)
	require.ErrorIs(t, err, failure)
	require.Equal(t, 2, backend.discarded)
	require.Zero(t, backend.submits)
}

func TestReleaseAfterDestroy(t *testing.T) {
	for _, kind := range []Kind{HostMappable, Staged} {
		t.Run(kind.String(), func(t *testing.T) {
			backend := &fakeBackend{}
			buf, err := New(backend, kind, 8, core1_0.BufferUsageVertexBuffer)
			require.NoError(t, err)

			acc, err := buf.Map(0, 8)
			require.NoError(t, err)
			buf.Destroy()

			err = acc.Release()
			require.True(t, errors.Is(err, ErrDestroyed), "%+v", err)
			require.Zero(t, backend.submits)

			_, err = buf.Map(0, 8)
			require.True(t, errors.Is(err, ErrDestroyed), "%+v", err)
		})
	}
}
