package cardops

import (
	"math/rand/v2"
	"sync"

	"github.com/maersdal/readoutcard/roc"
	"github.com/maersdal/readoutcard/roc/internal/readyfifo"
)

// Sim is a software model of a C-RORC's Card Ops surface. It drives the
// Ready-FIFO itself when PushRxFreeFifo is called, so a DMA engine wired
// to a Sim advances exactly as it would against real silicon, without
// needing a BAR or a kernel driver. It is the Card Ops backend of the
// engine tests in roc/internal/dmaengine and the crorc channel tests;
// the Dummy channel does not use it.
type Sim struct {
	mu sync.Mutex

	fifo *readyfifo.Ring

	serial       int32
	hasSerial    bool
	firmwareInfo string

	diuVersion uint32

	// Fault, if set, is returned by every subsequent call, modeling a
	// wedged card.
	Fault error

	// ArriveImmediately makes PushRxFreeFifo mark the slot as arrived
	// with PageSize bytes as soon as it is pushed, rather than requiring
	// a separate test-driven Arrive call. Tests that control arrival
	// timing explicitly leave it false.
	ArriveImmediately bool
	PageSize          uint32

	resetReceiver bool
}

// NewSim constructs a Sim bound to fifo. serial/firmwareInfo seed the
// identity accessors; a zero serial with hasSerial=false reports
// "unavailable" like the original's serial-endpoint-not-configured case.
func NewSim(fifo *readyfifo.Ring, serial int32, hasSerial bool, firmwareInfo string, pageSize uint32) *Sim {
	return &Sim{
		fifo:         fifo,
		serial:       serial,
		hasSerial:    hasSerial,
		firmwareInfo: firmwareInfo,
		PageSize:     pageSize,
	}
}

func (s *Sim) InitDiuVersion() (DiuConfig, error) {
	if s.Fault != nil {
		return DiuConfig{}, s.Fault
	}
	s.diuVersion = 1
	return DiuConfig{Version: s.diuVersion}, nil
}

func (s *Sim) Reset(kind Reset, diu DiuConfig) error { return s.Fault }

func (s *Sim) ArmDdl(target Reset, diu DiuConfig) error { return s.Fault }

func (s *Sim) StartDataReceiver(readyFifoBusAddr uint64) error {
	if s.Fault != nil {
		return s.Fault
	}
	s.mu.Lock()
	s.resetReceiver = true
	s.mu.Unlock()
	return nil
}

func (s *Sim) StopDataReceiver() error {
	s.mu.Lock()
	s.resetReceiver = false
	s.mu.Unlock()
	return s.Fault
}

// PushRxFreeFifo models a hardware descriptor push. If ArriveImmediately
// is set, it also marks the slot arrived in the same call, simulating a
// card that completes DMA synchronously; otherwise the slot is left
// NoneArrived for a test to complete explicitly via Arrive.
func (s *Sim) PushRxFreeFifo(busAddr uint64, words uint32, slotIndex int) error {
	if s.Fault != nil {
		return s.Fault
	}
	if s.ArriveImmediately {
		s.Arrive(slotIndex, s.PageSize, false)
	}
	return nil
}

// Arrive injects a descriptor-trailer status word into fifo.Slots[index],
// for use by engine tests and by Sim itself when ArriveImmediately is
// set. errored sets the hardware-error bit.
func (s *Sim) Arrive(index int, length uint32, errored bool) {
	status := int32(readyfifo.DTSW)
	if errored {
		status |= int32(-1 << 31)
	}
	s.fifo.Slots[index].Set(status, length)
}

func (s *Sim) ArmDataGenerator(initValue, initWord uint32, pattern roc.GeneratorPattern, dataSize uint64, seed uint32) error {
	return s.Fault
}

func (s *Sim) StartDataGenerator(maxEvents uint64) error { return s.Fault }

func (s *Sim) StopDataGenerator() error { return s.Fault }

func (s *Sim) StartTrigger(diu DiuConfig) error { return s.Fault }

func (s *Sim) StopTrigger(diu DiuConfig) error { return s.Fault }

func (s *Sim) SetLoopbackInternal() error { return s.Fault }

func (s *Sim) SetLoopbackSiu(diu DiuConfig) error { return s.Fault }

func (s *Sim) AssertLinkUp() error { return s.Fault }

func (s *Sim) SiuCommand(op DdlCommand) error { return s.Fault }

func (s *Sim) DiuCommand(op DdlCommand) error { return s.Fault }

func (s *Sim) AssertFreeFifoEmpty() error {
	if s.Fault != nil {
		return s.Fault
	}
	for i := range s.fifo.Slots {
		if s.fifo.Slots[i].Arrived() != readyfifo.NoneArrived {
			return &roc.FifoError{EntrySize: 0, FifoSize: uint64(readyfifo.Entries)}
		}
	}
	return nil
}

func (s *Sim) ReadRegister(addr uint32) (uint32, error) {
	if s.Fault != nil {
		return 0, s.Fault
	}
	return 0, nil
}

func (s *Sim) GetSerial() (int32, bool, error) {
	if s.Fault != nil {
		return 0, false, s.Fault
	}
	return s.serial, s.hasSerial, nil
}

func (s *Sim) GetFirmwareInfo() (string, error) {
	if s.Fault != nil {
		return "", s.Fault
	}
	return s.firmwareInfo, nil
}

func (s *Sim) InitReadoutContinuous() error { return s.Fault }

func (s *Sim) StartReadoutContinuous() error { return s.Fault }

// Temperature returns a jittered reading in the documented 37-43
// degree range, using math/rand/v2's auto-seeded global generator.
func Temperature() float32 {
	return 37 + rand.Float32()*6
}
