// Package dmaengine implements the DMA superpage engine: the state
// machine and ring-management algorithm that drives page pushes into the
// card's hardware descriptor FIFO and harvests arrivals back into the
// client-facing superpage queue.
package dmaengine

import (
	"time"

	"golang.org/x/sys/unix"

	"github.com/maersdal/readoutcard/roc"
	"github.com/maersdal/readoutcard/roc/cardops"
	"github.com/maersdal/readoutcard/roc/internal/readyfifo"
	"github.com/maersdal/readoutcard/roc/internal/superpagequeue"
	"github.com/maersdal/readoutcard/roc/internal/xlog"
)

// pollWait blocks for d using poll(2) with no file descriptors, a
// timeout-only call that the kernel satisfies itself. This gives the
// primer a cancellation-free timed wait without reaching for a second
// timer API purely to sleep.
func pollWait(d time.Duration) {
	ms := int(d / time.Millisecond)
	if ms <= 0 {
		ms = 1
	}
	unix.Poll(nil, ms)
}

// State is one of the four DMA engine states.
type State int

const (
	Stopped State = iota
	PendingStart
	Running
	Stopping
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "Stopped"
	case PendingStart:
		return "PendingStart"
	case Running:
		return "Running"
	case Stopping:
		return "Stopping"
	default:
		return "Unknown"
	}
}

// SDHEventSizeOffset is the byte offset of the Sub-event Data Header's
// event-size field within an arrived page. This is a firmware
// workaround, applied only when Config.PatchEventSize is set.
const SDHEventSizeOffset = 16

// SDHPatcher patches the event-size field of an arrived page's Sub-event
// Data Header. Implementations own the client DMA buffer and perform the
// write with volatile/non-reorderable semantics; the engine only knows
// the page's offset within the buffer.
type SDHPatcher interface {
	PatchEventSize(pageOffset uint64, length uint32)
}

// Config bundles every engine parameter that's fixed for the lifetime of
// a channel. Sleep and Logger default to time.Sleep and a stderr logger
// if left zero.
type Config struct {
	PageSize         uint64
	FifoQueueMax     int
	ReadyFifoBusAddr uint64

	InitialResetLevel roc.ResetLevel
	LoopbackMode      roc.LoopbackMode
	ReadoutMode       roc.ReadoutMode

	GeneratorEnabled   bool
	GeneratorPattern   roc.GeneratorPattern
	GeneratorDataSize  uint64
	GeneratorSeed      uint32
	GeneratorMaxEvents uint64

	SendRDYRXTrigger bool
	PatchEventSize   bool

	PrimerPollInterval  time.Duration
	PrimerTimeout       time.Duration
	ResetSettleDelay    time.Duration
	LoopbackSettleDelay time.Duration
	SiuSettleDelay      time.Duration
	FreeFifoResetDelay  time.Duration

	Sleep func(time.Duration)

	// PrimerWait is the timed wait pollForArrival uses between checks of
	// the primed ring slot. It defaults to a poll(2)-backed wait rather
	// than Sleep, since it's on the Start() hot path and tests may want
	// to substitute a no-op independently of the settle-delay Sleep hook.
	PrimerWait func(time.Duration)

	Logger *xlog.Logger
}

func (c *Config) setDefaults() {
	if c.FifoQueueMax == 0 || c.FifoQueueMax > readyfifo.Entries {
		c.FifoQueueMax = readyfifo.Entries
	}
	if c.PageSize == 0 {
		c.PageSize = roc.DefaultDmaPageSize
	}
	if c.PrimerPollInterval == 0 {
		c.PrimerPollInterval = time.Millisecond
	}
	if c.PrimerTimeout == 0 {
		c.PrimerTimeout = 10 * time.Millisecond
	}
	if c.ResetSettleDelay == 0 {
		c.ResetSettleDelay = 100 * time.Millisecond
	}
	if c.LoopbackSettleDelay == 0 {
		c.LoopbackSettleDelay = 100 * time.Millisecond
	}
	if c.SiuSettleDelay == 0 {
		c.SiuSettleDelay = 100 * time.Millisecond
	}
	if c.FreeFifoResetDelay == 0 {
		c.FreeFifoResetDelay = 10 * time.Millisecond
	}
	if c.Sleep == nil {
		c.Sleep = time.Sleep
	}
	if c.PrimerWait == nil {
		c.PrimerWait = pollWait
	}
	if c.Logger == nil {
		c.Logger = xlog.New(nil)
	}
}

// Engine owns the hardware ring, the Ready-FIFO view, and the superpage
// queue, and drives the DMA state machine. It is strictly
// single-threaded cooperative: Tick is the only method that
// advances state, and it never blocks except for the bounded settle
// delays and primer poll.
type Engine struct {
	cfg     Config
	ops     cardops.CardOps
	queue   *superpagequeue.Queue
	fifo    *readyfifo.Ring
	patcher SDHPatcher

	state           State
	pendingDmaStart bool
	fifoBack        int
	fifoSize        int
	diu             cardops.DiuConfig
	fault           error
}

// New constructs an Engine in the Stopped state.
func New(cfg Config, ops cardops.CardOps, queue *superpagequeue.Queue, fifo *readyfifo.Ring, patcher SDHPatcher) *Engine {
	cfg.setDefaults()
	return &Engine{
		cfg:     cfg,
		ops:     ops,
		queue:   queue,
		fifo:    fifo,
		patcher: patcher,
		state:   Stopped,
	}
}

// State returns the engine's current state.
func (e *Engine) State() State { return e.state }

// FifoSize returns the number of outstanding descriptors in the
// hardware ring (for invariant checks/tests).
func (e *Engine) FifoSize() int { return e.fifoSize }

// Fault returns the error that failed the channel, if any. Once set, it
// is only cleared by Start.
func (e *Engine) Fault() error { return e.fault }

// Start transitions Stopped->PendingStart: it clears all three queue
// regions, resets every Ready-FIFO slot and the ring bookkeeping, and
// arms the deferred-start protocol. No hardware traffic begins until the
// next Tick that finds Pushing non-empty.
func (e *Engine) Start() error {
	e.cfg.Logger.Infof("DMA start deferred until superpage available")
	e.queue.Clear()
	e.fifo.Reset()
	e.fifoBack = 0
	e.fifoSize = 0
	e.fault = nil
	e.pendingDmaStart = true
	e.state = PendingStart
	return nil
}

// Stop transitions Running/PendingStart->Stopping->Stopped. It is
// idempotent: calling it again, or calling it on an already-Stopped
// engine, is a no-op. Errors from Card Ops during stop are logged, never
// returned, so shutdown always completes.
func (e *Engine) Stop() error {
	if e.state == Stopped {
		return nil
	}
	e.state = Stopping

	if e.cfg.GeneratorEnabled {
		// The firmware only accepts a stop_data_generator command while
		// the generator is running, so a stopped-but-enabled generator
		// is briefly restarted here just to be stopped cleanly.
		if err := e.startDataGenerator(); err != nil {
			e.cfg.Logger.Warnf("stop_dma: restart-before-stop failed: %v", err)
		}
		if err := e.ops.StopDataGenerator(); err != nil {
			e.cfg.Logger.Warnf("stop_dma: stop_data_generator failed: %v", err)
		}
		if err := e.ops.StopDataReceiver(); err != nil {
			e.cfg.Logger.Warnf("stop_dma: stop_data_receiver failed: %v", err)
		}
	} else if e.cfg.SendRDYRXTrigger {
		if err := e.ops.StopTrigger(e.diu); err != nil {
			e.cfg.Logger.Warnf("stop_dma: stop_trigger failed: %v", err)
		}
	}

	e.pendingDmaStart = false
	e.state = Stopped
	return nil
}

// ResetChannel delegates a reset sequence to Card Ops. Permitted in any
// state. ResetLevel(Nothing) is a no-op.
func (e *Engine) ResetChannel(level roc.ResetLevel) error {
	return e.resetChannel(level)
}

// Tick performs at most one push-phase and one arrival-phase step. The
// client must call it regularly to avoid Ready-FIFO starvation. Once
// the channel has faulted (DataArrivalError), Tick keeps
// returning that fault until ResetChannel+Start are called again.
func (e *Engine) Tick() error {
	if e.fault != nil {
		return e.fault
	}

	if !e.queue.PushingEmpty() {
		entry := e.queue.PushingFront()
		if e.pendingDmaStart {
			return e.startPendingDma(entry)
		}
		if err := e.pushPhase(entry); err != nil {
			return err
		}
	}

	if !e.queue.ArrivalsEmpty() {
		if err := e.arrivalPhase(); err != nil {
			e.fault = err
			return err
		}
	}
	return nil
}

func (e *Engine) pushPhase(entry *superpagequeue.Entry) error {
	free := e.cfg.FifoQueueMax - e.fifoSize
	unpushed := int(entry.UnpushedPages())
	n := free
	if unpushed < n {
		n = unpushed
	}
	for i := 0; i < n; i++ {
		if err := e.pushPage(entry); err != nil {
			return err
		}
	}
	if entry.FullyPushed() {
		e.queue.RemoveFromPushingQueue()
	}
	return nil
}

func (e *Engine) pushPage(entry *superpagequeue.Entry) error {
	busAddr := entry.BusAddress + uint64(entry.PushedPages)*e.cfg.PageSize
	slot := (e.fifoBack + e.fifoSize) % readyfifo.Entries
	words := uint32(e.cfg.PageSize / 4)
	if err := e.ops.PushRxFreeFifo(busAddr, words, slot); err != nil {
		return e.cardErr("push_rx_free_fifo", err)
	}
	e.fifoSize++
	entry.PushedPages++
	return nil
}

func (e *Engine) arrivalPhase() error {
	for e.fifoSize > 0 {
		slot := &e.fifo.Slots[e.fifoBack]
		switch slot.Arrived() {
		case readyfifo.NoneArrived, readyfifo.PartArrived:
			// Nothing more can have arrived in order; stop.
			return nil
		case readyfifo.WholeArrived:
			if slot.Errored() {
				return &roc.DataArrivalError{
					Status: slot.Status(),
					Length: slot.Length(),
					Index:  e.fifoBack,
				}
			}
			front := e.queue.ArrivalsFront()
			length := slot.Length()
			if e.cfg.PatchEventSize {
				pageOffset := front.Superpage.Offset + front.Superpage.Received
				e.patcher.PatchEventSize(pageOffset, length)
			}
			slot.Reset()
			e.fifoSize--
			e.fifoBack = (e.fifoBack + 1) % readyfifo.Entries
			front.Superpage.Received += e.cfg.PageSize
			if front.Superpage.IsFilled() {
				front.Superpage.Ready = true
				e.queue.MoveFromArrivalsToFilledQueue()
			}
		default:
			return &roc.DataArrivalError{
				Status: slot.Status(),
				Length: slot.Length(),
				Index:  e.fifoBack,
			}
		}
	}
	return nil
}

// startPendingDma executes the deferred-start protocol: it arms the
// card, primes the ring with exactly readyfifo.Entries descriptors from
// entry, waits briefly for the initial pages, and credits entry's
// Received accordingly.
func (e *Engine) startPendingDma(entry *superpagequeue.Entry) error {
	if entry.MaxPages < uint32(readyfifo.Entries) {
		return &roc.ParameterError{
			Message: "first superpage pushed after StartDMA must supply at least readyfifo.Entries pages",
		}
	}

	e.cfg.Logger.Infof("starting pending DMA")

	if e.cfg.ReadoutMode == roc.ReadoutContinuous {
		if err := e.ops.InitReadoutContinuous(); err != nil {
			return e.cardErr("init_readout_continuous", err)
		}
	}

	diu, err := e.ops.InitDiuVersion()
	if err != nil {
		return e.cardErr("init_diu_version", err)
	}
	e.diu = diu

	if err := e.resetChannel(e.cfg.InitialResetLevel); err != nil {
		return err
	}

	if err := e.startDataReceiving(); err != nil {
		return err
	}

	for i := 0; i < readyfifo.Entries; i++ {
		e.fifo.Slots[i].Reset()
		if err := e.pushPage(entry); err != nil {
			return err
		}
	}

	if entry.FullyPushed() {
		e.queue.RemoveFromPushingQueue()
	}

	if e.cfg.GeneratorEnabled {
		e.cfg.Logger.Infof("starting data generator")
		if err := e.startDataGenerator(); err != nil {
			return err
		}
	} else if e.cfg.SendRDYRXTrigger {
		e.cfg.Logger.Infof("starting trigger")
		if err := e.ops.AssertLinkUp(); err != nil {
			return e.cardErr("assert_link_up", err)
		}
		if err := e.ops.SiuCommand(cardops.CommandRandCIFST); err != nil {
			return e.cardErr("siu_command", err)
		}
		if err := e.ops.DiuCommand(cardops.CommandRandCIFST); err != nil {
			return e.cardErr("diu_command", err)
		}
		if err := e.ops.StartTrigger(e.diu); err != nil {
			return e.cardErr("start_trigger", err)
		}
	}

	lastSlot := readyfifo.Entries - 1
	if !e.pollForArrival(lastSlot) {
		e.cfg.Logger.Warnf("initial pages not arrived within primer timeout")
	}

	entry.Superpage.Received += uint64(readyfifo.Entries) * e.cfg.PageSize
	if entry.Superpage.IsFilled() {
		entry.Superpage.Ready = true
		e.queue.MoveFromArrivalsToFilledQueue()
	}

	e.fifo.Reset()
	e.fifoBack = 0
	e.fifoSize = 0
	e.pendingDmaStart = false
	e.state = Running
	e.cfg.Logger.Infof("DMA started")

	if e.cfg.ReadoutMode == roc.ReadoutContinuous {
		if err := e.ops.StartReadoutContinuous(); err != nil {
			return e.cardErr("start_readout_continuous", err)
		}
	}
	return nil
}

// pollForArrival bounded-polls slot index until it reports WholeArrived
// or the primer timeout elapses: repeated short checks over a total
// budget rather than one fixed sleep, best-effort, since a timeout here
// only warns and never fails Start.
func (e *Engine) pollForArrival(slotIndex int) bool {
	var elapsed time.Duration
	for {
		if e.fifo.Slots[slotIndex].Arrived() == readyfifo.WholeArrived {
			return true
		}
		if elapsed >= e.cfg.PrimerTimeout {
			return false
		}
		e.cfg.PrimerWait(e.cfg.PrimerPollInterval)
		elapsed += e.cfg.PrimerPollInterval
	}
}

func (e *Engine) startDataReceiving() error {
	if _, err := e.ops.InitDiuVersion(); err != nil {
		return e.cardErr("init_diu_version", err)
	}

	if e.cfg.LoopbackMode == roc.LoopbackSiu {
		if err := e.resetChannel(roc.ResetInternalDiuSiu); err != nil {
			return err
		}
		if err := e.ops.AssertLinkUp(); err != nil {
			return e.cardErr("assert_link_up", err)
		}
		if err := e.ops.SiuCommand(cardops.CommandRandCIFST); err != nil {
			return e.cardErr("siu_command", err)
		}
		if err := e.ops.DiuCommand(cardops.CommandRandCIFST); err != nil {
			return e.cardErr("diu_command", err)
		}
	}

	if err := e.ops.Reset(cardops.ResetFF, e.diu); err != nil {
		return e.cardErr("reset_ff", err)
	}
	e.cfg.Sleep(e.cfg.FreeFifoResetDelay)
	if err := e.ops.AssertFreeFifoEmpty(); err != nil {
		return e.cardErr("assert_free_fifo_empty", err)
	}
	if err := e.ops.StartDataReceiver(e.cfg.ReadyFifoBusAddr); err != nil {
		return e.cardErr("start_data_receiver", err)
	}
	return nil
}

func (e *Engine) startDataGenerator() error {
	if e.cfg.LoopbackMode == roc.LoopbackNone {
		if err := e.ops.StartTrigger(e.diu); err != nil {
			return e.cardErr("start_trigger", err)
		}
	}

	if err := e.ops.ArmDataGenerator(0, 0, e.cfg.GeneratorPattern, e.cfg.GeneratorDataSize, e.cfg.GeneratorSeed); err != nil {
		return e.cardErr("arm_data_generator", err)
	}

	if e.cfg.LoopbackMode == roc.LoopbackInternal {
		if err := e.ops.SetLoopbackInternal(); err != nil {
			return e.cardErr("set_loopback_internal", err)
		}
		e.cfg.Sleep(e.cfg.LoopbackSettleDelay)
	}

	if e.cfg.LoopbackMode == roc.LoopbackSiu {
		if err := e.ops.SetLoopbackSiu(e.diu); err != nil {
			return e.cardErr("set_loopback_siu", err)
		}
		e.cfg.Sleep(e.cfg.LoopbackSettleDelay)
		if err := e.ops.AssertLinkUp(); err != nil {
			return e.cardErr("assert_link_up", err)
		}
		if err := e.ops.SiuCommand(cardops.CommandRandCIFST); err != nil {
			return e.cardErr("siu_command", err)
		}
		if err := e.ops.DiuCommand(cardops.CommandRandCIFST); err != nil {
			return e.cardErr("diu_command", err)
		}
	}

	if err := e.ops.StartDataGenerator(e.cfg.GeneratorMaxEvents); err != nil {
		return e.cardErr("start_data_generator", err)
	}
	return nil
}

func (e *Engine) resetChannel(level roc.ResetLevel) error {
	if level == roc.ResetNothing {
		return nil
	}

	if level >= roc.ResetInternal {
		if err := e.ops.Reset(cardops.ResetFF, e.diu); err != nil {
			return e.cardErrLevel("reset_ff", level, err)
		}
		if err := e.ops.Reset(cardops.ResetRORC, e.diu); err != nil {
			return e.cardErrLevel("reset_rorc", level, err)
		}
	}

	if e.cfg.LoopbackMode.IsExternal() {
		if err := e.ops.ArmDdl(cardops.ResetDIU, e.diu); err != nil {
			return e.cardErrLevel("arm_ddl_diu", level, err)
		}

		if level == roc.ResetInternalDiuSiu && e.cfg.LoopbackMode != roc.LoopbackDiu {
			e.cfg.Sleep(e.cfg.SiuSettleDelay)
			if err := e.ops.ArmDdl(cardops.ResetSIU, e.diu); err != nil {
				return e.cardErrLevel("arm_ddl_siu", level, err)
			}
			if err := e.ops.ArmDdl(cardops.ResetDIU, e.diu); err != nil {
				return e.cardErrLevel("arm_ddl_diu", level, err)
			}
		}

		if err := e.ops.ArmDdl(cardops.ResetRORC, e.diu); err != nil {
			return e.cardErrLevel("arm_ddl_rorc", level, err)
		}
	}

	e.cfg.Sleep(e.cfg.ResetSettleDelay)
	return nil
}

func (e *Engine) cardErr(op string, cause error) error {
	return &roc.CardError{Op: op, Loopback: e.cfg.LoopbackMode, Cause: cause}
}

func (e *Engine) cardErrLevel(op string, level roc.ResetLevel, cause error) error {
	return &roc.CardError{Op: op, ResetLevel: level, Loopback: e.cfg.LoopbackMode, Cause: cause}
}
