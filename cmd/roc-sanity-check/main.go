// Command roc-sanity-check does basic sanity checks on a card: resetting
// it and dumping its firmware/serial identity. Because a card in a bad
// state can wedge or crash the host, it requires interactive
// confirmation before touching hardware, unless run with -y.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"golang.org/x/sys/unix"

	"github.com/maersdal/readoutcard/roc"
	"github.com/maersdal/readoutcard/roc/bar"
	"github.com/maersdal/readoutcard/roc/cardops"
	"github.com/maersdal/readoutcard/roc/config"
	"github.com/maersdal/readoutcard/roc/crorc"
	"github.com/maersdal/readoutcard/roc/internal/xlog"
)

// confirm blocks on a one-byte stdin answer, but races it against SIGINT
// so a Ctrl-c during the prompt aborts immediately instead of waiting
// for a newline that may never come.
func confirm() bool {
	fmt.Fprintln(os.Stderr, "Warning: if the card is in a bad state, this program may result in a crash and reboot of the host")
	fmt.Fprintln(os.Stderr, "  To proceed, type 'y'")
	fmt.Fprintln(os.Stderr, "  To abort, type anything else or give SIGINT (usually Ctrl-c)")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, unix.SIGINT)
	defer signal.Stop(sigCh)

	answer := make(chan byte, 1)
	go func() {
		b, err := bufio.NewReader(os.Stdin).ReadByte()
		if err != nil {
			b = 0
		}
		answer <- b
	}()

	select {
	case <-sigCh:
		fmt.Fprintln(os.Stderr, "\naborted by SIGINT")
		return false
	case b := <-answer:
		return b == 'y'
	}
}

func main() {
	fs := flag.NewFlagSet("roc-sanity-check", flag.ExitOnError)
	opts, err := config.Parse(fs, os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if !opts.Yes && !confirm() {
		fmt.Fprintln(os.Stderr, "aborted")
		return
	}

	const resourcePath = "/sys/bus/pci/devices/0000:01:00.0/resource0"

	var cardBar bar.Bar
	realBar, err := bar.OpenMmapBar(resourcePath, 1<<20)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not map real BAR (%v); using an in-memory model\n", err)
		cardBar = bar.NewFakeBar(1 << 20)
	} else {
		cardBar = realBar
	}

	ops := cardops.NewBAR(cardBar)

	params := roc.Parameters{
		CardID:        roc.CardID{Serial: opts.Serial, HasSerial: true},
		ChannelNumber: 0,
		BufferParameters: roc.BufferParameters{
			// One 128-entry Ready-FIFO ring of 8 KiB pages.
			Memory: &roc.MemoryBuffer{Size: 128 * 8 * 1024},
		},
	}
	if err := params.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ch, err := crorc.Open(params, ops, cardBar, xlog.New(nil))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer ch.Close()

	if opts.RegRange > 0 {
		for i := 0; i < opts.RegRange; i++ {
			v, err := ops.ReadRegister(uint32(opts.Address) + uint32(i)*4)
			if err != nil {
				fmt.Fprintf(os.Stderr, "read register 0x%x: %v\n", opts.Address+uint64(i)*4, err)
				os.Exit(1)
			}
			fmt.Printf("0x%08x: 0x%08x\n", opts.Address+uint64(i)*4, v)
		}
	}
	if opts.Value != 0 {
		if err := cardBar.WriteRegister(uint32(opts.Address), uint32(opts.Value)); err != nil {
			fmt.Fprintf(os.Stderr, "write register 0x%x: %v\n", opts.Address, err)
			os.Exit(1)
		}
	}

	if err := ch.ResetChannel(roc.ResetInternal); err != nil {
		fmt.Fprintf(os.Stderr, "reset failed: %v\n", err)
		os.Exit(1)
	}

	serial, ok := ch.GetSerial()
	if ok {
		fmt.Printf("serial: %d\n", serial)
	} else {
		fmt.Println("serial: unavailable")
	}

	firmware, ok := ch.GetFirmwareInfo()
	if ok {
		fmt.Printf("firmware: %s\n", firmware)
	} else {
		fmt.Println("firmware: unavailable")
	}

	fmt.Println("sanity check complete")
}
