package readyfifo

import "testing"

func TestArrivedClassification(t *testing.T) {
	cases := []struct {
		name   string
		status int32
		length uint32
		want   ArrivalStatus
	}{
		{"none", StatusNone, 0, NoneArrived},
		{"partial", StatusPartial, 0, PartArrived},
		{"whole", DTSW, 128, WholeArrived},
		{"whole with upper bits set", 0x1234_0082, 128, WholeArrived},
		{"malformed", 0x55, 0, Malformed},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			var e Entry
			e.Set(c.status, c.length)
			if got := e.Arrived(); got != c.want {
				t.Errorf("Arrived() = %v, want %v", got, c.want)
			}
		})
	}
}

func TestErroredChecksBit31(t *testing.T) {
	var e Entry
	e.Set(DTSW, 64)
	if e.Errored() {
		t.Error("Errored() = true for a clean arrival")
	}
	e.Set(DTSW|-1<<31, 64)
	if !e.Errored() {
		t.Error("Errored() = false with bit 31 set")
	}
}

func TestResetClearsSlot(t *testing.T) {
	var e Entry
	e.Set(DTSW, 64)
	e.Reset()
	if got := e.Arrived(); got != NoneArrived {
		t.Errorf("Arrived() after Reset() = %v, want NoneArrived", got)
	}
	if e.Length() != 0 {
		t.Errorf("Length() after Reset() = %d, want 0", e.Length())
	}
}

func TestRingResetClearsEveryEntry(t *testing.T) {
	var r Ring
	for i := range r.Slots {
		r.Slots[i].Set(DTSW, 8)
	}
	r.Reset()
	for i := range r.Slots {
		if r.Slots[i].Arrived() != NoneArrived {
			t.Fatalf("slot %d not cleared by Ring.Reset()", i)
		}
	}
}
