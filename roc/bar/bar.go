// Package bar provides access to a PCIe Base Address Register resource,
// the register-level control surface of the card underneath Card Ops.
package bar

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Bar is a 32-bit-register-addressed memory region. Offset is in bytes
// and must be 4-byte aligned.
type Bar interface {
	ReadRegister(offset uint32) (uint32, error)
	WriteRegister(offset uint32, value uint32) error
	Size() uint64
	Close() error
}

// MmapBar memory-maps a PCIe BAR sysfs resource file (e.g.
// /sys/bus/pci/devices/0000:<addr>/resource0) and exposes it as 32-bit
// little-endian registers.
type MmapBar struct {
	file *os.File
	data []byte
}

// OpenMmapBar opens and maps path, sized size bytes.
func OpenMmapBar(path string, size uint64) (*MmapBar, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("bar: open %s: %w", path, err)
	}
	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("bar: mmap %s: %w", path, err)
	}
	return &MmapBar{file: f, data: data}, nil
}

func (b *MmapBar) checkOffset(offset uint32) error {
	if offset%4 != 0 {
		return fmt.Errorf("bar: register offset %d is not 4-byte aligned", offset)
	}
	if uint64(offset)+4 > uint64(len(b.data)) {
		return fmt.Errorf("bar: register offset %d out of range (size=%d)", offset, len(b.data))
	}
	return nil
}

// ReadRegister performs a volatile 32-bit little-endian load.
func (b *MmapBar) ReadRegister(offset uint32) (uint32, error) {
	if err := b.checkOffset(offset); err != nil {
		return 0, err
	}
	return loadUint32(b.data[offset : offset+4]), nil
}

// WriteRegister performs a volatile 32-bit little-endian store.
func (b *MmapBar) WriteRegister(offset uint32, value uint32) error {
	if err := b.checkOffset(offset); err != nil {
		return err
	}
	storeUint32(b.data[offset:offset+4], value)
	return nil
}

func (b *MmapBar) Size() uint64 { return uint64(len(b.data)) }

func (b *MmapBar) Close() error {
	err := unix.Munmap(b.data)
	if cerr := b.file.Close(); err == nil {
		err = cerr
	}
	return err
}

// FakeBar is an in-memory Bar with no real hardware behind it, for tests
// and for roc-sanity-check when no real BAR can be mapped.
type FakeBar struct {
	data []uint32
}

// NewFakeBar constructs a zeroed FakeBar with sizeBytes bytes of
// addressable space.
func NewFakeBar(sizeBytes uint64) *FakeBar {
	return &FakeBar{data: make([]uint32, sizeBytes/4)}
}

func (b *FakeBar) ReadRegister(offset uint32) (uint32, error) {
	i := offset / 4
	if offset%4 != 0 || int(i) >= len(b.data) {
		return 0, fmt.Errorf("bar: register offset %d out of range (size=%d)", offset, len(b.data)*4)
	}
	return b.data[i], nil
}

func (b *FakeBar) WriteRegister(offset uint32, value uint32) error {
	i := offset / 4
	if offset%4 != 0 || int(i) >= len(b.data) {
		return fmt.Errorf("bar: register offset %d out of range (size=%d)", offset, len(b.data)*4)
	}
	b.data[i] = value
	return nil
}

func (b *FakeBar) Size() uint64 { return uint64(len(b.data)) * 4 }

func (b *FakeBar) Close() error { return nil }

func loadUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func storeUint32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}
