package roc

import "fmt"

// CardType identifies the backend driving a Channel.
type CardType int

const (
	CardTypeUnknown CardType = iota
	CardTypeCrorc
	CardTypeCru
	CardTypeDummy
)

func (t CardType) String() string {
	switch t {
	case CardTypeCrorc:
		return "Crorc"
	case CardTypeCru:
		return "Cru"
	case CardTypeDummy:
		return "Dummy"
	default:
		return "Unknown"
	}
}

// ResetLevel orders the depth of a reset_channel call. Higher levels
// imply the lower levels' actions plus their own.
type ResetLevel int

const (
	ResetNothing ResetLevel = iota
	ResetInternal
	ResetInternalDiuSiu
)

func (r ResetLevel) String() string {
	switch r {
	case ResetNothing:
		return "Nothing"
	case ResetInternal:
		return "Internal"
	case ResetInternalDiuSiu:
		return "InternalDiuSiu"
	default:
		return "Unknown"
	}
}

// LoopbackMode routes generated data back through link stages for
// self-test.
type LoopbackMode int

const (
	LoopbackNone LoopbackMode = iota
	LoopbackInternal
	LoopbackSiu
	LoopbackDiu
	LoopbackRORC
)

func (m LoopbackMode) String() string {
	switch m {
	case LoopbackNone:
		return "NONE"
	case LoopbackInternal:
		return "INTERNAL"
	case LoopbackSiu:
		return "SIU"
	case LoopbackDiu:
		return "DIU"
	case LoopbackRORC:
		return "RORC"
	default:
		return "UNKNOWN"
	}
}

// IsExternal reports whether the loopback mode routes through the DIU/SIU
// link stages, as opposed to staying purely internal to the card.
func (m LoopbackMode) IsExternal() bool {
	switch m {
	case LoopbackSiu, LoopbackDiu, LoopbackRORC:
		return true
	default:
		return false
	}
}

// ParseLoopbackMode parses the CLI-facing spelling used by
// --cp-gen-loopb (S6).
func ParseLoopbackMode(s string) (LoopbackMode, error) {
	switch s {
	case "NONE":
		return LoopbackNone, nil
	case "INTERNAL":
		return LoopbackInternal, nil
	case "SIU":
		return LoopbackSiu, nil
	case "DIU":
		return LoopbackDiu, nil
	case "RORC":
		return LoopbackRORC, nil
	default:
		return 0, &ParameterError{Message: fmt.Sprintf("unknown loopback mode %q", s)}
	}
}

// GeneratorPattern selects the data pattern produced by the on-card data
// generator.
type GeneratorPattern int

const (
	GeneratorConstant GeneratorPattern = iota
	GeneratorIncremental
	GeneratorAlternating
	GeneratorFlying0
	GeneratorFlying1
	GeneratorRandom
)

func (p GeneratorPattern) String() string {
	switch p {
	case GeneratorConstant:
		return "Constant"
	case GeneratorIncremental:
		return "Incremental"
	case GeneratorAlternating:
		return "Alternating"
	case GeneratorFlying0:
		return "Flying0"
	case GeneratorFlying1:
		return "Flying1"
	case GeneratorRandom:
		return "Random"
	default:
		return "Unknown"
	}
}

// ReadoutMode selects between continuous and triggered readout.
type ReadoutMode int

const (
	ReadoutContinuous ReadoutMode = iota
	ReadoutTriggered
)

func (m ReadoutMode) String() string {
	switch m {
	case ReadoutContinuous:
		return "Continuous"
	default:
		return "Triggered"
	}
}

// CardID identifies a card either by PCI address or serial number.
// Exactly one of Address/Serial should be set.
type CardID struct {
	Address   PciAddress
	Serial    int32
	HasAddr   bool
	HasSerial bool
}

// PciAddress is a PCI bus/device/function triple.
type PciAddress struct {
	Bus      int
	Device   int
	Function int
}

func (a PciAddress) String() string {
	return fmt.Sprintf("%02x:%02x.%x", a.Bus, a.Device, a.Function)
}

// BufferParameters selects how the client's DMA buffer is backed.
// Exactly one variant applies.
type BufferParameters struct {
	Memory *MemoryBuffer
	File   *FileBuffer
	Null   bool
}

// MemoryBuffer is a pre-allocated in-process buffer region.
type MemoryBuffer struct {
	Ptr  uintptr
	Size uint64
}

// FileBuffer is a memory-mapped file used as the DMA buffer.
type FileBuffer struct {
	Path string
	Size uint64
}

const (
	DefaultDmaPageSize = 8 * 1024
)

// Parameters holds the construction-time configuration for a Channel.
// CardID and ChannelNumber are required; every other field has a
// documented default applied by Validate. CardType is set by the
// backend's Open constructor and determines ChannelNumber's valid
// range, not by the caller.
type Parameters struct {
	CardID        CardID
	CardType      CardType
	ChannelNumber int

	DmaPageSize uint64

	GeneratorEnabled  bool
	GeneratorPattern  GeneratorPattern
	GeneratorLoopback LoopbackMode
	GeneratorDataSize uint64

	ReadoutMode ReadoutMode

	// SendRDYRXTrigger controls whether RDYRX/EOBTR trigger commands are
	// sent to the front-end electronics when the data generator is
	// disabled. Named explicitly rather than as a negated flag, since the
	// legacy mNoRDYRX option was always observed suppressing the trigger
	// regardless of its documented default.
	SendRDYRXTrigger bool

	// PatchEventSize enables the C-RORC SDH event-size firmware
	// workaround. Defaults to true; a future firmware-version boundary
	// can flip it per-channel.
	PatchEventSize bool

	BufferParameters BufferParameters

	generatorEnabledSet  bool
	generatorPatternSet  bool
	generatorLoopbackSet bool
	generatorDataSizeSet bool
	dmaPageSizeSet       bool
	patchEventSizeSet    bool
}

// WithGeneratorEnabled sets GeneratorEnabled explicitly so Validate does
// not apply the default.
func (p Parameters) WithGeneratorEnabled(v bool) Parameters {
	p.GeneratorEnabled, p.generatorEnabledSet = v, true
	return p
}

// WithGeneratorPattern sets GeneratorPattern explicitly.
func (p Parameters) WithGeneratorPattern(v GeneratorPattern) Parameters {
	p.GeneratorPattern, p.generatorPatternSet = v, true
	return p
}

// WithGeneratorLoopback sets GeneratorLoopback explicitly.
func (p Parameters) WithGeneratorLoopback(v LoopbackMode) Parameters {
	p.GeneratorLoopback, p.generatorLoopbackSet = v, true
	return p
}

// WithGeneratorDataSize sets GeneratorDataSize explicitly.
func (p Parameters) WithGeneratorDataSize(v uint64) Parameters {
	p.GeneratorDataSize, p.generatorDataSizeSet = v, true
	return p
}

// WithDmaPageSize sets DmaPageSize explicitly.
func (p Parameters) WithDmaPageSize(v uint64) Parameters {
	p.DmaPageSize, p.dmaPageSizeSet = v, true
	return p
}

// WithPatchEventSize sets PatchEventSize explicitly.
func (p Parameters) WithPatchEventSize(v bool) Parameters {
	p.PatchEventSize, p.patchEventSizeSet = v, true
	return p
}

// Validate applies defaults to unset optional fields and checks that the
// required fields (CardID, BufferParameters) are present.
func (p *Parameters) Validate() error {
	if !p.CardID.HasAddr && !p.CardID.HasSerial {
		return &ParameterError{Message: "CardID requires either a PCI address or a serial number"}
	}
	switch p.CardType {
	case CardTypeCrorc:
		if p.ChannelNumber < 0 || p.ChannelNumber > 5 {
			return &ParameterError{Message: fmt.Sprintf("channel_number %d out of range for C-RORC (0..5)", p.ChannelNumber)}
		}
	case CardTypeDummy:
		if p.ChannelNumber < 0 || p.ChannelNumber > 7 {
			return &ParameterError{Message: fmt.Sprintf("channel_number %d out of range for Dummy (0..7)", p.ChannelNumber)}
		}
	}
	if !p.dmaPageSizeSet || p.DmaPageSize == 0 {
		p.DmaPageSize = DefaultDmaPageSize
	}
	if !p.generatorEnabledSet {
		p.GeneratorEnabled = true
	}
	if !p.generatorPatternSet {
		p.GeneratorPattern = GeneratorIncremental
	}
	if !p.generatorLoopbackSet {
		p.GeneratorLoopback = LoopbackInternal
	}
	if !p.generatorDataSizeSet || p.GeneratorDataSize == 0 {
		p.GeneratorDataSize = p.DmaPageSize
	}
	if !p.patchEventSizeSet {
		p.PatchEventSize = true
	}
	if p.BufferParameters.Memory == nil && p.BufferParameters.File == nil && !p.BufferParameters.Null {
		return &ParameterError{Message: "Parameters requires BufferParameters"}
	}
	return nil
}

// BufferSize returns the size in bytes of the configured buffer.
func (p Parameters) BufferSize() uint64 {
	switch {
	case p.BufferParameters.Memory != nil:
		return p.BufferParameters.Memory.Size
	case p.BufferParameters.File != nil:
		return p.BufferParameters.File.Size
	default:
		return 0
	}
}
