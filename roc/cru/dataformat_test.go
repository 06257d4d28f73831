package cru

import "testing"

func TestLinkIDAndEventSizeRoundTrip(t *testing.T) {
	header := make([]byte, HeaderSize)
	PutLinkID(header, 0x2a)
	PutEventSize(header, 0x1234)

	if got := GetLinkID(header); got != 0x2a {
		t.Errorf("GetLinkID() = 0x%x, want 0x2a", got)
	}
	if got := GetEventSize(header); got != 0x1234 {
		t.Errorf("GetEventSize() = 0x%x, want 0x1234", got)
	}
}

func TestPutLinkIDLeavesEventSizeUntouched(t *testing.T) {
	header := make([]byte, HeaderSize)
	PutEventSize(header, 0x00ff) // word 3, which PutLinkID (word 2) must not touch
	PutLinkID(header, 0xab)

	if got := GetEventSize(header); got != 0x00ff {
		t.Errorf("GetEventSize() = 0x%x, want 0x00ff after an unrelated PutLinkID", got)
	}
	if got := GetLinkID(header); got != 0xab {
		t.Errorf("GetLinkID() = 0x%x, want 0xab", got)
	}
}

func TestEventSizeMasksTo16Bits(t *testing.T) {
	header := make([]byte, HeaderSize)
	PutEventSize(header, 0xffff)
	if got := GetEventSize(header); got != 0xffff {
		t.Errorf("GetEventSize() = 0x%x, want 0xffff", got)
	}
}
