// Package readyfifo provides a typed view over the card-shared Ready-FIFO
// descriptor ring. Each slot reports whether a previously-pushed page has
// arrived, and if so, how long it was and whether the card flagged an
// error on it.
package readyfifo

import "sync/atomic"

// Entries is the Ready-FIFO ring depth for the C-RORC variant, matching
// the hardware's fixed descriptor FIFO size.
const Entries = 128

// DTSW is the magic low byte of Status indicating a whole-event
// descriptor-trailer status word.
const DTSW = 0x82

// errorBit is bit 31 of Status, set by the card on a hardware error.
const errorBit = -1 << 31

// Entry is one slot of the Ready-FIFO, shared with the card over DMA.
// Length and Status are accessed with atomic loads/stores to mirror the
// volatile semantics the hardware interface requires (the card writes
// Status from its own DMA engine, concurrently with this process reading
// it).
type Entry struct {
	length atomic.Uint32
	status atomic.Int32
}

// Status constants for a slot's Status word.
const (
	StatusNone    int32 = -1
	StatusPartial int32 = 0
)

// Reset marks the slot as empty, ready to be re-armed by a hardware
// descriptor push.
func (e *Entry) Reset() {
	e.status.Store(StatusNone)
	e.length.Store(0)
}

// Length returns the slot's reported length in bytes.
func (e *Entry) Length() uint32 { return e.length.Load() }

// Status returns the slot's current status word.
func (e *Entry) Status() int32 { return e.status.Load() }

// set is used by test/simulation doubles to inject arrivals; production
// code never writes these fields — the card does, over DMA.
func (e *Entry) set(status int32, length uint32) {
	e.length.Store(length)
	e.status.Store(status)
}

// Set injects a descriptor status+length, for use by card-ops
// simulations and tests that stand in for the hardware.
func (e *Entry) Set(status int32, length uint32) { e.set(status, length) }

// ArrivalStatus classifies a slot's current Status word.
type ArrivalStatus int

const (
	// NoneArrived means the slot has not been written since its last
	// Reset.
	NoneArrived ArrivalStatus = iota
	// PartArrived means the card has started, but not finished,
	// writing this page.
	PartArrived
	// WholeArrived means a complete page arrived. Check Errored to see
	// whether the card also flagged a hardware error on it.
	WholeArrived
	// Malformed means the status word didn't match any recognized
	// pattern.
	Malformed
)

// Arrived classifies the entry's current status per spec: -1 is no
// data, 0 is partial, status&0xff==DTSW is a whole arrival (bit 31 of
// which may additionally flag a hardware error), anything else is
// malformed.
func (e *Entry) Arrived() ArrivalStatus {
	status := e.status.Load()
	switch {
	case status == StatusNone:
		return NoneArrived
	case status == StatusPartial:
		return PartArrived
	case status&0xff == DTSW:
		return WholeArrived
	default:
		return Malformed
	}
}

// Errored reports whether a WholeArrived slot also carries the
// hardware error bit.
func (e *Entry) Errored() bool {
	return e.status.Load()&errorBit != 0
}

// Ring is the fixed-depth Ready-FIFO view. It is a plain array of
// Entries, typically the tail of a larger shared-memory mapping obtained
// from a Bus Mapper collaborator. In the zero value every slot has
// Status 0 and so reads as PartArrived; Reset makes every slot
// NoneArrived.
type Ring struct {
	Slots [Entries]Entry
}

// Reset clears every slot in the ring.
func (r *Ring) Reset() {
	for i := range r.Slots {
		r.Slots[i].Reset()
	}
}
