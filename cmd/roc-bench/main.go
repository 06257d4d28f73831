// Command roc-bench drives a Channel's push/fill/pop cycle against a
// software card model and reports superpage throughput, mirroring the
// teacher's recv/send benchmarks applied to superpages instead of
// packets.
package main

import (
	"flag"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/maersdal/readoutcard/ratelimit"
	"github.com/maersdal/readoutcard/roc"
	"github.com/maersdal/readoutcard/roc/dummy"
)

func must(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	fPageSize := flag.Uint64("p", 32*1024, "superpage size in bytes (multiple of 32 KiB)")
	fBufMB := flag.Uint64("buf-mb", 64, "DMA buffer size in MiB")
	fDuration := flag.Duration("d", 5*time.Second, "benchmark duration")
	fMaxPPS := flag.Uint64("rate", 0, "max superpages pushed per second (0 = unlimited)")
	flag.Parse()

	bufSize := *fBufMB * 1024 * 1024
	params := roc.Parameters{
		CardID:        roc.CardID{Serial: 1, HasSerial: true},
		ChannelNumber: 0,
		BufferParameters: roc.BufferParameters{
			Memory: &roc.MemoryBuffer{Size: bufSize},
		},
	}
	params = params.WithDmaPageSize(*fPageSize)
	must(params.Validate())

	ch, err := dummy.Open(params)
	must(err)
	must(ch.StartDMA())

	throttle := ratelimit.New(*fMaxPPS)

	var pushed, popped atomic.Uint64
	stop := make(chan struct{})

	go func() {
		var offset uint64
		for {
			select {
			case <-stop:
				return
			default:
			}
			sp := roc.Superpage{Offset: offset % (bufSize - *fPageSize), Size: *fPageSize}
			if err := ch.PushSuperpage(sp); err != nil {
				continue
			}
			pushed.Add(1)
			offset += *fPageSize
			throttle.ThrottleN(1)

			must(ch.FillSuperpages())
			for {
				if _, err := ch.PopSuperpage(); err != nil {
					break
				}
				popped.Add(1)
			}
		}
	}()

	printer := message.NewPrinter(language.English)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	deadline := time.Now().Add(*fDuration)
	var lastPushed uint64
	lastTime := time.Now()

	for now := range ticker.C {
		if now.After(deadline) {
			break
		}
		cur := pushed.Load()
		elapsed := now.Sub(lastTime).Seconds()
		sps := float64(cur-lastPushed) / elapsed
		bytesPerSec := sps * float64(*fPageSize)

		printer.Printf("pushed=%d popped=%d | rate=%.0f superpages/s (%s/s)\n",
			cur, popped.Load(), sps, humanize.Bytes(uint64(bytesPerSec)))

		lastPushed = cur
		lastTime = now
	}

	close(stop)
	must(ch.StopDMA())

	fmt.Fprintf(os.Stderr, "total pushed=%s popped=%s\n",
		humanize.Comma(int64(pushed.Load())), humanize.Comma(int64(popped.Load())))
}
