package mesh

import (
	"bytes"
	"encoding/binary"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/core/v3/loader"
)

// Device is the slice of the logical-device driver used for buffer setup
// and teardown.
type Device interface {
	CreateBuffer(allocator *loader.AllocationCallbacks, options core1_0.BufferCreateInfo) (core1_0.Buffer, common.VkResult, error)
	DestroyBuffer(buffer core1_0.Buffer, callbacks *loader.AllocationCallbacks)
	GetBufferMemoryRequirements(buffer core1_0.Buffer) *core1_0.MemoryRequirements
	AllocateMemory(allocator *loader.AllocationCallbacks, options core1_0.MemoryAllocateInfo) (core1_0.DeviceMemory, common.VkResult, error)
	FreeMemory(memory core1_0.DeviceMemory, callbacks *loader.AllocationCallbacks)
	BindBufferMemory(buffer core1_0.Buffer, memory core1_0.DeviceMemory, offset int) (common.VkResult, error)
	MapMemory(memory core1_0.DeviceMemory, offset int, size int, flags core1_0.MemoryMapFlags) (unsafe.Pointer, common.VkResult, error)
	UnmapMemory(memory core1_0.DeviceMemory)
}

// MemoryQuerier reports the physical device's memory types.
type MemoryQuerier interface {
	GetPhysicalDeviceMemoryProperties(device core1_0.PhysicalDevice) *core1_0.PhysicalDeviceMemoryProperties
}

// Buffer is the single vertex buffer and its backing allocation.
type Buffer struct {
	Buffer      core1_0.Buffer
	Memory      core1_0.DeviceMemory
	VertexCount int
}

// NewVertexBuffer creates a host-visible, host-coherent vertex buffer and
// fills it with the given vertices. The allocation is written once here and
// never touched again.
func NewVertexBuffer(device Device, instance MemoryQuerier, physicalDevice core1_0.PhysicalDevice, vertices []Vertex) (*Buffer, error) {
	bufferSize := binary.Size(vertices)

	vertexBuffer, _, err := device.CreateBuffer(nil, core1_0.BufferCreateInfo{
		Size:        bufferSize,
		Usage:       core1_0.BufferUsageVertexBuffer,
		SharingMode: core1_0.SharingModeExclusive,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create vertex buffer")
	}

	buf := &Buffer{
		Buffer:      vertexBuffer,
		VertexCount: len(vertices),
	}

	memRequirements := device.GetBufferMemoryRequirements(vertexBuffer)
	memProperties := instance.GetPhysicalDeviceMemoryProperties(physicalDevice)

	memoryTypeIndex, err := FindMemoryType(memProperties, memRequirements.MemoryTypeBits,
		core1_0.MemoryPropertyHostVisible|core1_0.MemoryPropertyHostCoherent)
	if err != nil {
		buf.Destroy(device)
		return nil, err
	}

	buf.Memory, _, err = device.AllocateMemory(nil, core1_0.MemoryAllocateInfo{
		AllocationSize:  memRequirements.Size,
		MemoryTypeIndex: memoryTypeIndex,
	})
	if err != nil {
		buf.Destroy(device)
		return nil, errors.Wrap(err, "allocate vertex buffer memory")
	}

	_, err = device.BindBufferMemory(vertexBuffer, buf.Memory, 0)
	if err != nil {
		buf.Destroy(device)
		return nil, errors.Wrap(err, "bind vertex buffer memory")
	}

	err = writeData(device, buf.Memory, bufferSize, vertices)
	if err != nil {
		buf.Destroy(device)
		return nil, err
	}

	return buf, nil
}

// FindMemoryType returns the index of the first memory type accepted by the
// type filter that has all required property flags. Failing to find one is
// unrecoverable for the renderer.
func FindMemoryType(memProperties *core1_0.PhysicalDeviceMemoryProperties, typeFilter uint32, required core1_0.MemoryPropertyFlags) (int, error) {
	for i, memoryType := range memProperties.MemoryTypes {
		typeBit := uint32(1 << i)

		if (typeFilter&typeBit) != 0 && (memoryType.PropertyFlags&required) == required {
			return i, nil
		}
	}

	return 0, errors.New("failed to find a suitable memory type")
}

func writeData(device Device, memory core1_0.DeviceMemory, size int, data any) error {
	memoryPtr, _, err := device.MapMemory(memory, 0, size, 0)
	if err != nil {
		return errors.Wrap(err, "map vertex buffer memory")
	}
	defer device.UnmapMemory(memory)

	buf := &bytes.Buffer{}
	err = binary.Write(buf, common.ByteOrder, data)
	if err != nil {
		return errors.Wrap(err, "encode vertex data")
	}

	dataBuffer := unsafe.Slice((*byte)(memoryPtr), size)
	copy(dataBuffer, buf.Bytes())

	return nil
}

// Destroy releases the buffer and frees its memory.
func (b *Buffer) Destroy(device Device) {
	if b.Buffer.Initialized() {
		device.DestroyBuffer(b.Buffer, nil)
		b.Buffer = core1_0.Buffer{}
	}

	if b.Memory.Initialized() {
		device.FreeMemory(b.Memory, nil)
		b.Memory = core1_0.DeviceMemory{}
	}
}
