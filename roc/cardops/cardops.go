// Package cardops defines the Card Ops contract: the external
// collaborator responsible for programming the C-RORC's hardware
// registers, link state, and data generator. The DMA engine consumes
// this interface without knowing whether it talks to real silicon
// (cardops.BAR) or a software model (cardops.Sim).
package cardops

import "github.com/maersdal/readoutcard/roc"

// Reset selects the depth of a hardware reset command, distinct from
// roc.ResetLevel in that it names the specific register sequence rather
// than the client-facing level.
type Reset int

const (
	ResetFF Reset = iota
	ResetRORC
	ResetDIU
	ResetSIU
)

// DiuConfig is the DIU link configuration discovered by InitDiuVersion,
// required by ArmDdl and the trigger/command calls.
type DiuConfig struct {
	Version uint32
}

// DdlCommand selects a SIU/DIU command word.
type DdlCommand int

const (
	CommandRandCIFST DdlCommand = iota
)

// CardOps is the synchronous hardware-programming contract consumed by
// the DMA engine and the channel facade. Every method may fail with a
// *roc.CardError (or a value the caller wraps into one).
type CardOps interface {
	InitDiuVersion() (DiuConfig, error)
	Reset(kind Reset, diu DiuConfig) error
	ArmDdl(target Reset, diu DiuConfig) error
	StartDataReceiver(readyFifoBusAddr uint64) error
	StopDataReceiver() error
	PushRxFreeFifo(busAddr uint64, words uint32, slotIndex int) error
	ArmDataGenerator(initValue, initWord uint32, pattern roc.GeneratorPattern, dataSize uint64, seed uint32) error
	StartDataGenerator(maxEvents uint64) error
	StopDataGenerator() error
	StartTrigger(diu DiuConfig) error
	StopTrigger(diu DiuConfig) error
	SetLoopbackInternal() error
	SetLoopbackSiu(diu DiuConfig) error
	AssertLinkUp() error
	SiuCommand(op DdlCommand) error
	DiuCommand(op DdlCommand) error
	AssertFreeFifoEmpty() error
	ReadRegister(addr uint32) (uint32, error)
	GetSerial() (int32, bool, error)
	GetFirmwareInfo() (string, error)
	InitReadoutContinuous() error
	StartReadoutContinuous() error
}
