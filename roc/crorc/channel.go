// Package crorc implements roc.Channel for the C-RORC card family: a
// hardware-backed 128-entry Ready-FIFO descriptor ring, 1 MiB superpage
// granularity, and the full deferred-start DMA engine.
package crorc

import (
	"errors"
	"fmt"
	"strconv"
	"unsafe"

	"github.com/maersdal/readoutcard/roc"
	"github.com/maersdal/readoutcard/roc/bar"
	"github.com/maersdal/readoutcard/roc/cardops"
	"github.com/maersdal/readoutcard/roc/internal/dmaengine"
	"github.com/maersdal/readoutcard/roc/internal/readyfifo"
	"github.com/maersdal/readoutcard/roc/internal/superpagequeue"
	"github.com/maersdal/readoutcard/roc/internal/xlog"
	"github.com/maersdal/readoutcard/roc/interprocess"
)

// SuperpageAlignment is the required multiple for every pushed
// superpage's size, matching the original's 1 MiB check.
const SuperpageAlignment = 1024 * 1024

// TransferQueueCapacity bounds Pushing+Arrivals together.
const TransferQueueCapacity = 32

// ReadyQueueCapacity is the ready capacity passed to the superpage
// queue. The queue does not enforce it, and the engine moves filled
// superpages into Filled without checking it.
const ReadyQueueCapacity = 32

// Channel is the C-RORC roc.Channel implementation.
type Channel struct {
	params roc.Parameters

	bufferBase uintptr
	bufferSize uint64

	bar  bar.Bar
	ops  cardops.CardOps
	fifo *readyfifo.Ring

	queue  *superpagequeue.Queue
	engine *dmaengine.Engine

	lock  *interprocess.Lock
	paths interprocess.ChannelPaths
}

// Open constructs a Channel from params, acquiring the per-channel
// cross-process lock and wiring the DMA engine against ops/cardBar.
// Callers that don't have real hardware pass a cardops.Sim and
// bar.FakeBar.
func Open(params roc.Parameters, ops cardops.CardOps, cardBar bar.Bar, logger *xlog.Logger) (*Channel, error) {
	params.CardType = roc.CardTypeCrorc
	if err := params.Validate(); err != nil {
		return nil, err
	}

	base, size, err := bufferAddr(params)
	if err != nil {
		return nil, err
	}

	paths := interprocess.ChannelPaths{
		CardType: roc.CardTypeCrorc.String(),
		Serial:   serialTag(params.CardID),
		Channel:  params.ChannelNumber,
	}
	lock := interprocess.New(paths.Lock(), paths.NamedMutex())
	if err := lock.TryLock(); err != nil {
		return nil, err
	}

	c := &Channel{
		params:     params,
		bufferBase: base,
		bufferSize: size,
		bar:        cardBar,
		ops:        ops,
		fifo:       &readyfifo.Ring{},
		queue:      superpagequeue.New(TransferQueueCapacity, ReadyQueueCapacity),
		lock:       lock,
		paths:      paths,
	}

	cfg := dmaengine.Config{
		PageSize:           params.DmaPageSize,
		InitialResetLevel:  roc.ResetInternal,
		LoopbackMode:       params.GeneratorLoopback,
		ReadoutMode:        params.ReadoutMode,
		GeneratorEnabled:   params.GeneratorEnabled,
		GeneratorPattern:   params.GeneratorPattern,
		GeneratorDataSize:  params.GeneratorDataSize,
		GeneratorMaxEvents: 0,
		SendRDYRXTrigger:   params.SendRDYRXTrigger,
		PatchEventSize:     params.PatchEventSize,
		Logger:             logger,
	}
	c.engine = dmaengine.New(cfg, ops, c.queue, c.fifo, c)
	return c, nil
}

func serialTag(id roc.CardID) string {
	if id.HasSerial {
		return strconv.Itoa(int(id.Serial))
	}
	return id.Address.String()
}

func bufferAddr(params roc.Parameters) (uintptr, uint64, error) {
	switch {
	case params.BufferParameters.Memory != nil:
		return params.BufferParameters.Memory.Ptr, params.BufferParameters.Memory.Size, nil
	case params.BufferParameters.File != nil:
		return 0, params.BufferParameters.File.Size, nil
	default:
		return 0, 0, nil
	}
}

// PatchEventSize implements dmaengine.SDHPatcher: it writes the four
// 32-bit words [0,0,0,length] at bufferBase+pageOffset+16, the original
// C-RORC firmware's Sub-event Data Header event-size workaround.
func (c *Channel) PatchEventSize(pageOffset uint64, length uint32) {
	if c.bufferBase == 0 {
		return
	}
	addr := c.bufferBase + uintptr(pageOffset) + uintptr(dmaengine.SDHEventSizeOffset)
	words := (*[4]uint32)(unsafe.Pointer(addr))
	words[0] = 0
	words[1] = 0
	words[2] = 0
	words[3] = length
}

func (c *Channel) validateSuperpage(sp roc.Superpage) error {
	if sp.Size == 0 || sp.Size%SuperpageAlignment != 0 {
		return &roc.ParameterError{
			Message: fmt.Sprintf("superpage size must be a non-zero multiple of 1 MiB (offset=%d size=%d)", sp.Offset, sp.Size),
		}
	}
	if sp.Offset%4 != 0 {
		return &roc.AlignmentError{Message: "superpage offset must be 4-byte aligned", Offset: sp.Offset, Size: sp.Size}
	}
	if sp.Offset+sp.Size > c.bufferSize {
		return &roc.OutOfRangeError{Offset: sp.Offset, Size: sp.Size, BufferSize: c.bufferSize}
	}
	return nil
}

func (c *Channel) PushSuperpage(sp roc.Superpage) error {
	if err := c.validateSuperpage(sp); err != nil {
		return err
	}
	maxPages := uint32(sp.Size / c.params.DmaPageSize)
	entry := superpagequeue.Entry{
		Superpage:  sp,
		BusAddress: uint64(c.bufferBase) + sp.Offset,
		MaxPages:   maxPages,
	}
	if err := c.queue.AddToQueue(entry); err != nil {
		if fe, ok := err.(interface{ Capacity() int }); ok {
			return &roc.QueueFullError{Capacity: fe.Capacity()}
		}
		return err
	}
	return nil
}

func (c *Channel) PopSuperpage() (roc.Superpage, error) {
	entry, ok := c.queue.RemoveFromFilledQueue()
	if !ok {
		return roc.Superpage{}, &roc.QueueEmptyError{}
	}
	return entry.Superpage, nil
}

func (c *Channel) GetSuperpage() (roc.Superpage, error) {
	entry, ok := c.queue.FilledFront()
	if !ok {
		return roc.Superpage{}, &roc.QueueEmptyError{}
	}
	return entry.Superpage, nil
}

func (c *Channel) GetTransferQueueAvailable() int { return c.queue.TransferAvailable() }

func (c *Channel) GetReadyQueueSize() int { return c.queue.ReadyLen() }

func (c *Channel) FillSuperpages() error { return c.engine.Tick() }

func (c *Channel) StartDMA() error { return c.engine.Start() }

func (c *Channel) StopDMA() error { return c.engine.Stop() }

func (c *Channel) ResetChannel(level roc.ResetLevel) error { return c.engine.ResetChannel(level) }

func (c *Channel) GetCardType() roc.CardType { return roc.CardTypeCrorc }

func (c *Channel) GetSerial() (int32, bool) {
	serial, ok, err := c.ops.GetSerial()
	if err != nil {
		return 0, false
	}
	return serial, ok
}

func (c *Channel) GetFirmwareInfo() (string, bool) {
	info, err := c.ops.GetFirmwareInfo()
	if err != nil {
		return "", false
	}
	return info, true
}

func (c *Channel) GetTemperature() (float32, bool) { return 0, false }

func (c *Channel) GetPciAddress() roc.PciAddress { return c.params.CardID.Address }

func (c *Channel) GetNumaNode() int { return -1 }

// Close is a clean, deliberate shutdown: it releases both lock halves.
// Both halves are flock locks, so a process that exits without calling
// Close also has both released by the OS; the named-mutex half stays
// held only while its process is still running.
func (c *Channel) Close() error {
	return errors.Join(c.lock.ReleaseNamedMutex(), c.lock.Unlock())
}
