// Package dummy implements roc.Channel with a software-only model that
// needs no hardware: FillSuperpages immediately completes whatever fits
// in the ready queue, rather than going through a Ready-FIFO descriptor
// ring. Useful for development and CI against the public Channel API.
package dummy

import (
	"fmt"
	"sync"

	"github.com/maersdal/readoutcard/roc"
	"github.com/maersdal/readoutcard/roc/cardops"
	"github.com/maersdal/readoutcard/roc/internal/superpagequeue"
)

// SuperpageAlignment is the required multiple for every pushed
// superpage's size, matching the original DummyDmaChannel's 32 KiB
// check.
const SuperpageAlignment = 32 * 1024

// TransferQueueCapacity and ReadyQueueCapacity mirror the original's
// fixed TRANSFER_QUEUE_SIZE/READY_QUEUE_SIZE constants.
const (
	TransferQueueCapacity = 16
	ReadyQueueCapacity    = 32
)

// Channel is the Dummy roc.Channel implementation.
type Channel struct {
	mu sync.Mutex

	params     roc.Parameters
	bufferSize uint64

	queue   *superpagequeue.Queue
	running bool

	serial int32
}

// Open constructs a dummy Channel from params. Params.CardID.Serial is
// reported directly if set; otherwise GetSerial reports unavailable.
func Open(params roc.Parameters) (*Channel, error) {
	params.CardType = roc.CardTypeDummy
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Channel{
		params:     params,
		bufferSize: params.BufferSize(),
		queue:      superpagequeue.New(TransferQueueCapacity, ReadyQueueCapacity),
		serial:     params.CardID.Serial,
	}, nil
}

func (c *Channel) validateSuperpage(sp roc.Superpage) error {
	if sp.Size == 0 || sp.Size%SuperpageAlignment != 0 {
		return &roc.ParameterError{
			Message: fmt.Sprintf("superpage size must be a non-zero multiple of 32 KiB (offset=%d size=%d)", sp.Offset, sp.Size),
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
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.validateSuperpage(sp); err != nil {
		return err
	}
	entry := superpagequeue.Entry{Superpage: sp, MaxPages: 1}
	if err := c.queue.AddToQueue(entry); err != nil {
		if fe, ok := err.(interface{ Capacity() int }); ok {
			return &roc.QueueFullError{Capacity: fe.Capacity()}
		}
		return err
	}
	return nil
}

func (c *Channel) PopSuperpage() (roc.Superpage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.queue.RemoveFromFilledQueue()
	if !ok {
		return roc.Superpage{}, &roc.QueueEmptyError{}
	}
	return entry.Superpage, nil
}

func (c *Channel) GetSuperpage() (roc.Superpage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.queue.FilledFront()
	if !ok {
		return roc.Superpage{}, &roc.QueueEmptyError{}
	}
	return entry.Superpage, nil
}

func (c *Channel) GetTransferQueueAvailable() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queue.TransferAvailable()
}

func (c *Channel) GetReadyQueueSize() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queue.ReadyLen()
}

// FillSuperpages completes every pending superpage immediately, moving
// it straight from Pushing to Filled (there is no Arrivals phase without
// a hardware ring), bounded by the ready queue's remaining capacity —
// matching the original DummyDmaChannel's fillSuperpages.
func (c *Channel) FillSuperpages() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return nil
	}
	for !c.queue.PushingEmpty() && c.queue.ReadyLen() < ReadyQueueCapacity {
		entry := c.queue.PushingFront()
		entry.Superpage.Received = entry.Superpage.Size
		entry.Superpage.Ready = true
		entry.PushedPages = entry.MaxPages
		c.queue.RemoveFromPushingQueue()
		c.queue.MoveFromArrivalsToFilledQueue()
	}
	return nil
}

func (c *Channel) StartDMA() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queue.Clear()
	c.running = true
	return nil
}

func (c *Channel) StopDMA() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = false
	return nil
}

func (c *Channel) ResetChannel(level roc.ResetLevel) error { return nil }

func (c *Channel) GetCardType() roc.CardType { return roc.CardTypeDummy }

func (c *Channel) GetSerial() (int32, bool) {
	if !c.params.CardID.HasSerial {
		return 0, false
	}
	return c.serial, true
}

func (c *Channel) GetFirmwareInfo() (string, bool) { return "dummy-0.0:0-0-0", true }

// GetTemperature returns a jittered reading in [37, 43) degrees, the
// original's documented range for its std::mt19937-seeded model.
func (c *Channel) GetTemperature() (float32, bool) {
	return cardops.Temperature(), true
}

func (c *Channel) GetPciAddress() roc.PciAddress { return c.params.CardID.Address }

func (c *Channel) GetNumaNode() int { return -1 }
