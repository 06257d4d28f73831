package dummy

import (
	"testing"

	"github.com/maersdal/readoutcard/roc"
)

func newTestChannel(t *testing.T) *Channel {
	t.Helper()
	params := roc.Parameters{
		CardID:        roc.CardID{Serial: 42, HasSerial: true},
		ChannelNumber: 0,
		BufferParameters: roc.BufferParameters{
			Memory: &roc.MemoryBuffer{Size: 4 * 1024 * 1024},
		},
	}
	ch, err := Open(params)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return ch
}

func TestPushSuperpageRejectsBadSize(t *testing.T) {
	ch := newTestChannel(t)
	err := ch.PushSuperpage(roc.Superpage{Size: 1000}) // not a multiple of 32 KiB
	if _, ok := err.(*roc.ParameterError); !ok {
		t.Fatalf("err = %v (%T), want *roc.ParameterError", err, err)
	}
}

func TestPushSuperpageRejectsUnalignedOffset(t *testing.T) {
	ch := newTestChannel(t)
	err := ch.PushSuperpage(roc.Superpage{Offset: 3, Size: SuperpageAlignment})
	if _, ok := err.(*roc.AlignmentError); !ok {
		t.Fatalf("err = %v (%T), want *roc.AlignmentError", err, err)
	}
}

func TestPushSuperpageRejectsOutOfRange(t *testing.T) {
	ch := newTestChannel(t)
	err := ch.PushSuperpage(roc.Superpage{Offset: 4 * 1024 * 1024, Size: SuperpageAlignment})
	if _, ok := err.(*roc.OutOfRangeError); !ok {
		t.Fatalf("err = %v (%T), want *roc.OutOfRangeError", err, err)
	}
}

func TestStartPushFillPop(t *testing.T) {
	ch := newTestChannel(t)
	if err := ch.StartDMA(); err != nil {
		t.Fatalf("StartDMA: %v", err)
	}
	if err := ch.PushSuperpage(roc.Superpage{Size: SuperpageAlignment}); err != nil {
		t.Fatalf("PushSuperpage: %v", err)
	}
	if err := ch.FillSuperpages(); err != nil {
		t.Fatalf("FillSuperpages: %v", err)
	}
	if got := ch.GetReadyQueueSize(); got != 1 {
		t.Fatalf("GetReadyQueueSize() = %d, want 1", got)
	}
	sp, err := ch.PopSuperpage()
	if err != nil {
		t.Fatalf("PopSuperpage: %v", err)
	}
	if !sp.IsFilled() {
		t.Error("popped superpage is not fully filled")
	}
}

func TestPopSuperpageOnEmptyQueue(t *testing.T) {
	ch := newTestChannel(t)
	if _, err := ch.PopSuperpage(); err == nil {
		t.Fatal("expected *roc.QueueEmptyError")
	} else if _, ok := err.(*roc.QueueEmptyError); !ok {
		t.Fatalf("err = %v (%T), want *roc.QueueEmptyError", err, err)
	}
}

func TestFillSuperpagesNoopBeforeStart(t *testing.T) {
	ch := newTestChannel(t)
	if err := ch.PushSuperpage(roc.Superpage{Size: SuperpageAlignment}); err != nil {
		t.Fatalf("PushSuperpage: %v", err)
	}
	if err := ch.FillSuperpages(); err != nil {
		t.Fatalf("FillSuperpages: %v", err)
	}
	if got := ch.GetReadyQueueSize(); got != 0 {
		t.Errorf("GetReadyQueueSize() = %d, want 0 (DMA not started)", got)
	}
}

func TestGetTemperatureInDocumentedRange(t *testing.T) {
	ch := newTestChannel(t)
	temp, ok := ch.GetTemperature()
	if !ok {
		t.Fatal("GetTemperature() reported unavailable")
	}
	if temp < 37 || temp >= 43 {
		t.Errorf("GetTemperature() = %v, want [37, 43)", temp)
	}
}
