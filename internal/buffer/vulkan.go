package buffer

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/core1_0"
)

// DeviceBackend allocates buffers on a logical device and runs one-shot
// commands from pool on queue.
type DeviceBackend struct {
	physicalDevice core1_0.PhysicalDevice
	device         core1_0.Device
	pool           core1_0.CommandPool
	queue          core1_0.Queue
}

func NewDeviceBackend(physicalDevice core1_0.PhysicalDevice, device core1_0.Device, pool core1_0.CommandPool, queue core1_0.Queue) *DeviceBackend {
	return &DeviceBackend{
		physicalDevice: physicalDevice,
		device:         device,
		pool:           pool,
		queue:          queue,
	}
}

func (d *DeviceBackend) Allocate(size int, usage core1_0.BufferUsageFlags, properties core1_0.MemoryPropertyFlags) (Allocation, error) {
	buffer, _, err := d.device.CreateBuffer(nil, core1_0.BufferCreateInfo{
		Size:        size,
		Usage:       usage,
		SharingMode: core1_0.SharingModeExclusive,
	})
	if err != nil {
		return nil, err
	}

	memRequirements := buffer.MemoryRequirements()
	memoryTypeIndex, err := d.findMemoryType(memRequirements.MemoryTypeBits, properties)
	if err != nil {
		buffer.Destroy(nil)
		return nil, err
	}

	memory, _, err := d.device.AllocateMemory(nil, core1_0.MemoryAllocateInfo{
		AllocationSize:  memRequirements.Size,
		MemoryTypeIndex: memoryTypeIndex,
	})
	if err != nil {
		buffer.Destroy(nil)
		return nil, err
	}

	_, err = buffer.BindBufferMemory(memory, 0)
	if err != nil {
		buffer.Destroy(nil)
		memory.Free(nil)
		return nil, err
	}

	return &deviceAllocation{buffer: buffer, memory: memory}, nil
}

func (d *DeviceBackend) findMemoryType(typeFilter uint32, properties core1_0.MemoryPropertyFlags) (int, error) {
	memProperties := d.physicalDevice.MemoryProperties()
	for i, memoryType := range memProperties.MemoryTypes {
		typeBit := uint32(1 << i)

		if (typeFilter&typeBit) != 0 && (memoryType.PropertyFlags&properties) == properties {
			return i, nil
		}
	}

	return 0, errors.Newf("no memory type with properties %s in type mask %#x", properties, typeFilter)
}

func (d *DeviceBackend) BeginOneTime() (Commands, error) {
	buffers, _, err := d.device.AllocateCommandBuffers(core1_0.CommandBufferAllocateInfo{
		CommandPool:        d.pool,
		Level:              core1_0.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	})
	if err != nil {
		return nil, err
	}

	buffer := buffers[0]
	_, err = buffer.Begin(core1_0.CommandBufferBeginInfo{
		Flags: core1_0.CommandBufferUsageOneTimeSubmit,
	})
	if err != nil {
		d.device.FreeCommandBuffers(buffers)
		return nil, err
	}

	return &deviceCommands{buffer: buffer}, nil
}

func (d *DeviceBackend) SubmitOneTime(cmds Commands) error {
	buffer := cmds.(*deviceCommands).buffer
	defer d.device.FreeCommandBuffers([]core1_0.CommandBuffer{buffer})

	_, err := buffer.End()
	if err != nil {
		return err
	}

	_, err = d.queue.Submit(nil, []core1_0.SubmitInfo{
		{
			CommandBuffers: []core1_0.CommandBuffer{buffer},
		},
	})
	if err != nil {
		return err
	}

	_, err = d.queue.WaitIdle()
	return err
}

func (d *DeviceBackend) Discard(cmds Commands) {
	d.device.FreeCommandBuffers([]core1_0.CommandBuffer{cmds.(*deviceCommands).buffer})
}

type deviceAllocation struct {
	buffer core1_0.Buffer
	memory core1_0.DeviceMemory
}

func (a *deviceAllocation) Handle() core1_0.Buffer {
	return a.buffer
}

func (a *deviceAllocation) Map(offset, size int) (unsafe.Pointer, error) {
	ptr, _, err := a.memory.Map(offset, size, 0)
	return ptr, err
}

func (a *deviceAllocation) Unmap() {
	a.memory.Unmap()
}

func (a *deviceAllocation) Free() {
	a.buffer.Destroy(nil)
	a.memory.Free(nil)
}

type deviceCommands struct {
	buffer core1_0.CommandBuffer
}

func (c *deviceCommands) CopyBuffer(src, dst Allocation, srcOffset, dstOffset, size int) error {
	return c.buffer.CmdCopyBuffer(src.Handle(), dst.Handle(), []core1_0.BufferCopy{
		{
			SrcOffset: srcOffset,
			DstOffset: dstOffset,
			Size:      size,
		},
	})
}
