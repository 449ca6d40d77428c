package gpu

import (
	"bytes"
	"encoding/binary"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
)

type DescriptorBufferInfo struct {
	Buffer BufferID
	Offset int
	Range  int
}

// Buffer is a buffer handle with its own memory block. Its size never changes; a bigger
// buffer means a new Buffer.
type Buffer struct {
	device *Device

	Handle     BufferID
	Memory     MemoryID
	Size       int
	Alignment  int
	Usage      core1_0.BufferUsageFlags
	Properties core1_0.MemoryPropertyFlags

	// Descriptor is only meaningful after SetDescriptor.
	Descriptor DescriptorBufferInfo

	coherent  bool
	mapped    []byte
	mapOffset int
}

func (b *Buffer) Mapped() []byte {
	return b.mapped
}

// Map maps size bytes starting at offset. WholeSize maps to the end of the buffer. Mapping
// the live range again returns it; any other range fails until Unmap.
func (b *Buffer) Map(size, offset int) ([]byte, error) {
	if b.Handle == 0 {
		return nil, ErrDestroyed
	}
	if size == WholeSize {
		size = b.Size - offset
	}
	if b.mapped != nil {
		if offset != b.mapOffset || size != len(b.mapped) {
			return nil, errors.Wrapf(ErrAlreadyMapped, "map %d+%d while %d+%d is mapped",
				offset, size, b.mapOffset, len(b.mapped))
		}
		return b.mapped, nil
	}
	if offset < 0 || size <= 0 || offset+size > b.Size {
		return nil, errors.Newf("map range %d+%d outside buffer of %d bytes", offset, size, b.Size)
	}

	data, err := b.device.Driver.MapMemory(b.Memory, offset, size)
	if err != nil {
		return nil, errors.Wrap(err, "vkMapMemory")
	}
	b.mapped = data
	b.mapOffset = offset
	return data, nil
}

func (b *Buffer) Unmap() {
	if b.mapped == nil {
		return
	}
	b.device.Driver.UnmapMemory(b.Memory)
	b.mapped = nil
	b.mapOffset = 0
}

// Write copies data into the mapped range. offset is relative to the start of the buffer.
func (b *Buffer) Write(offset int, data []byte) error {
	if b.mapped == nil {
		return ErrNotMapped
	}
	start := offset - b.mapOffset
	if start < 0 || start+len(data) > len(b.mapped) {
		return errors.Wrapf(ErrBufferTooSmall, "write %d bytes at %d", len(data), offset)
	}
	copy(b.mapped[start:], data)
	return nil
}

// WriteValue serializes v in the driver's byte order and writes it at offset.
func (b *Buffer) WriteValue(offset int, v any) error {
	buf := &bytes.Buffer{}
	if err := binary.Write(buf, common.ByteOrder, v); err != nil {
		return errors.Wrap(err, "encode buffer value")
	}
	return b.Write(offset, buf.Bytes())
}

// Flush makes host writes visible to the device. Only needed for non-coherent memory.
func (b *Buffer) Flush(size, offset int) error {
	if b.Handle == 0 {
		return ErrDestroyed
	}
	return errors.Wrap(b.device.Driver.FlushMappedMemory(b.Memory, offset, size), "vkFlushMappedMemoryRanges")
}

func (b *Buffer) Coherent() bool {
	return b.coherent
}

func (b *Buffer) SetDescriptor(size, offset int) {
	if size == WholeSize {
		size = b.Size - offset
	}
	b.Descriptor = DescriptorBufferInfo{
		Buffer: b.Handle,
		Offset: offset,
		Range:  size,
	}
}

func (b *Buffer) Bind(offset int) error {
	if b.Handle == 0 {
		return ErrDestroyed
	}
	return errors.Wrap(b.device.Driver.BindBufferMemory(b.Handle, b.Memory, offset), "vkBindBufferMemory")
}

// Destroy unmaps and releases the buffer and its memory. Calling it twice is harmless.
func (b *Buffer) Destroy() {
	if b == nil || b.Handle == 0 {
		return
	}
	b.Unmap()
	b.device.Driver.DestroyBuffer(b.Handle)
	b.device.Driver.FreeMemory(b.Memory)
	b.Handle = 0
	b.Memory = 0
	b.Descriptor = DescriptorBufferInfo{}
}
