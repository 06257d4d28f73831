package roc

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestValidateAppliesDefaults(t *testing.T) {
	p := Parameters{
		CardID: CardID{Serial: 1, HasSerial: true},
		BufferParameters: BufferParameters{
			Memory: &MemoryBuffer{Size: 1024},
		},
	}
	if err := p.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	want := Parameters{
		CardID: CardID{Serial: 1, HasSerial: true},
		BufferParameters: BufferParameters{
			Memory: &MemoryBuffer{Size: 1024},
		},
		DmaPageSize:       DefaultDmaPageSize,
		GeneratorEnabled:  true,
		GeneratorPattern:  GeneratorIncremental,
		GeneratorLoopback: LoopbackInternal,
		GeneratorDataSize: DefaultDmaPageSize,
		PatchEventSize:    true,
	}

	diff := cmp.Diff(want, p, cmp.AllowUnexported(Parameters{}), cmp.Comparer(func(a, b *MemoryBuffer) bool {
		if a == nil || b == nil {
			return a == b
		}
		return *a == *b
	}))
	if diff != "" {
		t.Errorf("Validate() produced unexpected defaults (-want +got):\n%s", diff)
	}
}

func TestValidateRequiresCardID(t *testing.T) {
	p := Parameters{BufferParameters: BufferParameters{Null: true}}
	if err := p.Validate(); err == nil {
		t.Fatal("expected an error when neither PCI address nor serial is set")
	}
}

func TestValidateRequiresBufferParameters(t *testing.T) {
	p := Parameters{CardID: CardID{Serial: 1, HasSerial: true}}
	if err := p.Validate(); err == nil {
		t.Fatal("expected an error when no BufferParameters variant is set")
	}
}

func TestValidateRejectsChannelNumberOutOfRangeForCardType(t *testing.T) {
	cases := []struct {
		name     string
		cardType CardType
		channel  int
		wantErr  bool
	}{
		{"crorc within range", CardTypeCrorc, 5, false},
		{"crorc out of range", CardTypeCrorc, 6, true},
		{"dummy within range", CardTypeDummy, 7, false},
		{"dummy out of range", CardTypeDummy, 8, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			p := Parameters{
				CardID:           CardID{Serial: 1, HasSerial: true},
				CardType:         c.cardType,
				ChannelNumber:    c.channel,
				BufferParameters: BufferParameters{Null: true},
			}
			err := p.Validate()
			if c.wantErr && err == nil {
				t.Fatalf("Validate() with channel_number=%d for %v: expected an error", c.channel, c.cardType)
			}
			if !c.wantErr && err != nil {
				t.Fatalf("Validate() with channel_number=%d for %v: unexpected error: %v", c.channel, c.cardType, err)
			}
			if c.wantErr {
				if _, ok := err.(*ParameterError); !ok {
					t.Fatalf("err = %v (%T), want *ParameterError", err, err)
				}
			}
		})
	}
}

func TestWithBuildersOverrideDefaults(t *testing.T) {
	p := Parameters{
		CardID:           CardID{Serial: 1, HasSerial: true},
		BufferParameters: BufferParameters{Null: true},
	}.WithGeneratorEnabled(false).WithDmaPageSize(4096)

	if err := p.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if p.GeneratorEnabled {
		t.Error("GeneratorEnabled should stay false after WithGeneratorEnabled(false)")
	}
	if p.DmaPageSize != 4096 {
		t.Errorf("DmaPageSize = %d, want 4096", p.DmaPageSize)
	}
}
