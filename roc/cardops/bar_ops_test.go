package cardops

import (
	"testing"

	"github.com/maersdal/readoutcard/roc/bar"
)

func TestGetFirmwareInfoDecodesRfidBitField(t *testing.T) {
	cases := []struct {
		name string
		rfid uint32
		want string
	}{
		{
			name: "decoded major.minor:year-month-day",
			// reserved=0x2, major=3, minor=12, year=2006, month=7, day=15
			rfid: (2 << 24) | (3 << 20) | (12 << 13) | (6 << 9) | (7 << 5) | 15,
			want: "3.12:2006-7-15",
		},
		{
			name: "all-zero fields still decode",
			rfid: 2 << 24,
			want: "0.0:2000-0-0",
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			b := bar.NewFakeBar(256)
			if err := b.WriteRegister(regRfid, c.rfid); err != nil {
				t.Fatalf("WriteRegister: %v", err)
			}
			ops := NewBAR(b)
			got, err := ops.GetFirmwareInfo()
			if err != nil {
				t.Fatalf("GetFirmwareInfo: %v", err)
			}
			if got != c.want {
				t.Errorf("GetFirmwareInfo() = %q, want %q", got, c.want)
			}
		})
	}
}

func TestGetFirmwareInfoRejectsWrongReservedBits(t *testing.T) {
	b := bar.NewFakeBar(256)
	if err := b.WriteRegister(regRfid, 0x01000000); err != nil {
		t.Fatalf("WriteRegister: %v", err)
	}
	ops := NewBAR(b)
	if _, err := ops.GetFirmwareInfo(); err == nil {
		t.Fatal("expected an error when the reserved byte isn't 0x2")
	}
}
