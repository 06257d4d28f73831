package crorc

import (
	"testing"

	"github.com/maersdal/readoutcard/roc"
	"github.com/maersdal/readoutcard/roc/bar"
	"github.com/maersdal/readoutcard/roc/cardops"
	"github.com/maersdal/readoutcard/roc/internal/readyfifo"
	"github.com/maersdal/readoutcard/roc/internal/xlog"
)

const testPageSize = 8 * 1024

// openTestChannel wires a Channel against a cardops.Sim the way Open
// wires it against real hardware, so these tests exercise the lock
// acquisition, PatchEventSize plumbing, and engine construction that
// validateSuperpage-only unit tests skip. Each call uses a distinct
// serial so parallel channel locks never collide across test cases.
func openTestChannel(t *testing.T, serial int32, arriveImmediately bool) (*Channel, *cardops.Sim) {
	t.Helper()
	fifo := &readyfifo.Ring{}
	sim := cardops.NewSim(fifo, serial, true, "1.0:2026-1-1", testPageSize)
	sim.ArriveImmediately = arriveImmediately

	params := roc.Parameters{
		CardID:           roc.CardID{Serial: serial, HasSerial: true},
		BufferParameters: roc.BufferParameters{File: &roc.FileBuffer{Size: 64 * 1024 * 1024}},
		DmaPageSize:      testPageSize,
	}
	ch, err := Open(params, sim, bar.NewFakeBar(256), xlog.New(nil))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { ch.Close() })
	return ch, sim
}

// S1: cold start. One 1 MiB superpage fills completely on the priming
// tick and becomes poppable.
func TestScenarioColdStart(t *testing.T) {
	ch, _ := openTestChannel(t, 9001, true)

	if err := ch.StartDMA(); err != nil {
		t.Fatalf("StartDMA: %v", err)
	}
	if err := ch.PushSuperpage(roc.Superpage{Offset: 0, Size: SuperpageAlignment}); err != nil {
		t.Fatalf("PushSuperpage: %v", err)
	}
	if err := ch.FillSuperpages(); err != nil {
		t.Fatalf("FillSuperpages: %v", err)
	}

	sp, err := ch.PopSuperpage()
	if err != nil {
		t.Fatalf("PopSuperpage: %v", err)
	}
	if sp.Offset != 0 || sp.Size != SuperpageAlignment || sp.Received != SuperpageAlignment || !sp.Ready {
		t.Fatalf("PopSuperpage() = %+v, want offset=0 size=%d received=%d ready=true", sp, SuperpageAlignment, SuperpageAlignment)
	}
}

// S2: multiple superpages fill and pop in push order.
func TestScenarioMultiSuperpage(t *testing.T) {
	ch, _ := openTestChannel(t, 9002, true)

	if err := ch.StartDMA(); err != nil {
		t.Fatalf("StartDMA: %v", err)
	}
	for i := 0; i < 3; i++ {
		sp := roc.Superpage{Offset: uint64(i) * SuperpageAlignment, Size: SuperpageAlignment}
		if err := ch.PushSuperpage(sp); err != nil {
			t.Fatalf("PushSuperpage(%d): %v", i, err)
		}
	}

	for ticks := 0; ch.GetReadyQueueSize() < 3; ticks++ {
		if ticks > 10 {
			t.Fatalf("GetReadyQueueSize() never reached 3, stuck at %d", ch.GetReadyQueueSize())
		}
		if err := ch.FillSuperpages(); err != nil {
			t.Fatalf("FillSuperpages: %v", err)
		}
	}

	for i := 0; i < 3; i++ {
		sp, err := ch.PopSuperpage()
		if err != nil {
			t.Fatalf("PopSuperpage(%d): %v", i, err)
		}
		want := uint64(i) * SuperpageAlignment
		if sp.Offset != want {
			t.Errorf("PopSuperpage(%d).Offset = %d, want %d", i, sp.Offset, want)
		}
	}
}

// S3: validation. Bad size is a ParameterError, bad offset alignment is
// an AlignmentError, and a full transfer queue is a QueueFullError.
func TestScenarioValidation(t *testing.T) {
	ch, _ := openTestChannel(t, 9003, true)

	err := ch.PushSuperpage(roc.Superpage{Offset: 0, Size: SuperpageAlignment / 2})
	if _, ok := err.(*roc.ParameterError); !ok {
		t.Fatalf("bad size: err = %v (%T), want *roc.ParameterError", err, err)
	}

	err = ch.PushSuperpage(roc.Superpage{Offset: 3, Size: SuperpageAlignment})
	if _, ok := err.(*roc.AlignmentError); !ok {
		t.Fatalf("bad offset: err = %v (%T), want *roc.AlignmentError", err, err)
	}

	for i := 0; i < TransferQueueCapacity; i++ {
		sp := roc.Superpage{Offset: uint64(i) * SuperpageAlignment, Size: SuperpageAlignment}
		if err := ch.PushSuperpage(sp); err != nil {
			t.Fatalf("PushSuperpage(%d) filling the queue: %v", i, err)
		}
	}
	err = ch.PushSuperpage(roc.Superpage{Offset: uint64(TransferQueueCapacity) * SuperpageAlignment, Size: SuperpageAlignment})
	if _, ok := err.(*roc.QueueFullError); !ok {
		t.Fatalf("full queue: err = %v (%T), want *roc.QueueFullError", err, err)
	}
}

// S4: a hardware error bit on the sole outstanding page faults the
// channel with a DataArrivalError and leaves the superpage out of Filled.
func TestScenarioHardwareError(t *testing.T) {
	ch, sim := openTestChannel(t, 9004, false)

	// One page beyond the priming ring, so after the priming tick it's
	// still the only entry, sitting in Arrivals with nothing arrived yet.
	pages := uint64(readyfifo.Entries + 1)
	sp := roc.Superpage{Offset: 0, Size: pages * testPageSize}
	if err := ch.StartDMA(); err != nil {
		t.Fatalf("StartDMA: %v", err)
	}
	if err := ch.PushSuperpage(sp); err != nil {
		t.Fatalf("PushSuperpage: %v", err)
	}
	if err := ch.FillSuperpages(); err != nil {
		t.Fatalf("priming FillSuperpages: %v", err)
	}
	if err := ch.FillSuperpages(); err != nil {
		t.Fatalf("trailing-page FillSuperpages: %v", err)
	}

	sim.Arrive(0, testPageSize, true)

	err := ch.FillSuperpages()
	arrivalErr, ok := err.(*roc.DataArrivalError)
	if !ok {
		t.Fatalf("FillSuperpages() err = %v (%T), want *roc.DataArrivalError", err, err)
	}
	if arrivalErr.Index != 0 {
		t.Errorf("DataArrivalError.Index = %d, want 0", arrivalErr.Index)
	}

	if _, err := ch.PopSuperpage(); err == nil {
		t.Error("PopSuperpage() succeeded, want QueueEmptyError: faulted superpage must not reach Filled")
	}
}

func TestValidateSuperpageRejectsNonMegabyteMultiple(t *testing.T) {
	c := &Channel{bufferSize: 16 * 1024 * 1024}
	err := c.validateSuperpage(roc.Superpage{Size: SuperpageAlignment - 1})
	if _, ok := err.(*roc.ParameterError); !ok {
		t.Fatalf("err = %v (%T), want *roc.ParameterError", err, err)
	}
}

func TestValidateSuperpageRejectsUnalignedOffset(t *testing.T) {
	c := &Channel{bufferSize: 4 * SuperpageAlignment}
	err := c.validateSuperpage(roc.Superpage{Offset: 3, Size: SuperpageAlignment})
	if _, ok := err.(*roc.AlignmentError); !ok {
		t.Fatalf("err = %v (%T), want *roc.AlignmentError", err, err)
	}
}

func TestValidateSuperpageRejectsOutOfRange(t *testing.T) {
	c := &Channel{bufferSize: SuperpageAlignment}
	err := c.validateSuperpage(roc.Superpage{Offset: SuperpageAlignment, Size: SuperpageAlignment})
	if _, ok := err.(*roc.OutOfRangeError); !ok {
		t.Fatalf("err = %v (%T), want *roc.OutOfRangeError", err, err)
	}
}

func TestValidateSuperpageAcceptsAlignedRegion(t *testing.T) {
	c := &Channel{bufferSize: 4 * SuperpageAlignment}
	if err := c.validateSuperpage(roc.Superpage{Offset: SuperpageAlignment, Size: SuperpageAlignment}); err != nil {
		t.Fatalf("validateSuperpage: unexpected error: %v", err)
	}
}
