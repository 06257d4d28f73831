package config

import (
	"flag"
	"testing"

	"github.com/maersdal/readoutcard/roc"
)

func TestParseS6Scenario(t *testing.T) {
	args := []string{
		"--address=0x100",
		"--regrange=200",
		"--value=0x250",
		"--cp-dma-pagesize=300",
		"--cp-dma-bufmb=400",
		"--cp-gen-enable=true",
		"--cp-gen-loopb=RORC",
		"--serial=500",
	}

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	opts, err := Parse(fs, args)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if opts.Address != 0x100 {
		t.Errorf("Address = 0x%x, want 0x100", opts.Address)
	}
	if opts.RegRange != 200 {
		t.Errorf("RegRange = %d, want 200", opts.RegRange)
	}
	if opts.Value != 0x250 {
		t.Errorf("Value = 0x%x, want 0x250", opts.Value)
	}
	if want := uint64(300 * 1024); opts.DmaPageSize != want {
		t.Errorf("DmaPageSize = %d, want %d", opts.DmaPageSize, want)
	}
	if want := uint64(400 * 1024 * 1024); opts.BufferSize != want {
		t.Errorf("BufferSize = %d, want %d", opts.BufferSize, want)
	}
	if !opts.GeneratorEnabled {
		t.Error("GeneratorEnabled = false, want true")
	}
	if opts.GeneratorLoopback != roc.LoopbackRORC {
		t.Errorf("GeneratorLoopback = %v, want RORC", opts.GeneratorLoopback)
	}
	if opts.Serial != 500 {
		t.Errorf("Serial = %d, want 500", opts.Serial)
	}
}

func TestParseRejectsUnknownLoopback(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	_, err := Parse(fs, []string{"--cp-gen-loopb=BOGUS"})
	if err == nil {
		t.Fatal("expected an error for an unrecognized loopback mode")
	}
}
