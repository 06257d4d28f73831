package cardops

import (
	"fmt"

	"github.com/maersdal/readoutcard/roc"
	"github.com/maersdal/readoutcard/roc/bar"
)

// Register offsets, named for the RORC/DIU/SIU register blocks described
// in the original firmware interface documentation.
const (
	regControl       = 0x00
	regStatus        = 0x04
	regRfid          = 0x08
	regSerialNumber  = 0x0c
	regRxFreeFifoLo  = 0x10
	regRxFreeFifoHi  = 0x14
	regRxFreeFifoLen = 0x18
	regRxFreeFifoIdx = 0x1c
	regGeneratorCtrl = 0x20
	regGeneratorSeed = 0x24
	regLoopbackCtrl  = 0x28
	regDdlCommand    = 0x2c
)

const rfidReservedMask = 0x2 << 24

// BAR is the real-hardware Card Ops implementation, translating each
// method into a handful of register reads/writes against bar.Bar,
// replacing direct mPdaBar/getCrorc() register pokes with explicit
// named registers and bounds-checked volatile MMIO access.
type BAR struct {
	Bar bar.Bar
}

// NewBAR wraps b.
func NewBAR(b bar.Bar) *BAR { return &BAR{Bar: b} }

func (c *BAR) wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &roc.CardError{Op: op, Cause: err}
}

func (c *BAR) InitDiuVersion() (DiuConfig, error) {
	v, err := c.Bar.ReadRegister(regStatus)
	if err != nil {
		return DiuConfig{}, c.wrap("init_diu_version", err)
	}
	return DiuConfig{Version: v}, nil
}

func (c *BAR) Reset(kind Reset, diu DiuConfig) error {
	return c.wrap("reset", c.Bar.WriteRegister(regControl, uint32(kind)))
}

func (c *BAR) ArmDdl(target Reset, diu DiuConfig) error {
	return c.wrap("arm_ddl", c.Bar.WriteRegister(regDdlCommand, uint32(target)))
}

func (c *BAR) StartDataReceiver(readyFifoBusAddr uint64) error {
	if err := c.Bar.WriteRegister(regRxFreeFifoLo, uint32(readyFifoBusAddr)); err != nil {
		return c.wrap("start_data_receiver", err)
	}
	if err := c.Bar.WriteRegister(regRxFreeFifoHi, uint32(readyFifoBusAddr>>32)); err != nil {
		return c.wrap("start_data_receiver", err)
	}
	return c.wrap("start_data_receiver", c.Bar.WriteRegister(regControl, 1))
}

func (c *BAR) StopDataReceiver() error {
	return c.wrap("stop_data_receiver", c.Bar.WriteRegister(regControl, 0))
}

func (c *BAR) PushRxFreeFifo(busAddr uint64, words uint32, slotIndex int) error {
	if err := c.Bar.WriteRegister(regRxFreeFifoIdx, uint32(slotIndex)); err != nil {
		return c.wrap("push_rx_free_fifo", err)
	}
	return c.wrap("push_rx_free_fifo", c.Bar.WriteRegister(regRxFreeFifoLen, words))
}

func (c *BAR) ArmDataGenerator(initValue, initWord uint32, pattern roc.GeneratorPattern, dataSize uint64, seed uint32) error {
	if err := c.Bar.WriteRegister(regGeneratorSeed, seed); err != nil {
		return c.wrap("arm_data_generator", err)
	}
	return c.wrap("arm_data_generator", c.Bar.WriteRegister(regGeneratorCtrl, uint32(pattern)))
}

func (c *BAR) StartDataGenerator(maxEvents uint64) error {
	return c.wrap("start_data_generator", c.Bar.WriteRegister(regGeneratorCtrl, 1))
}

func (c *BAR) StopDataGenerator() error {
	return c.wrap("stop_data_generator", c.Bar.WriteRegister(regGeneratorCtrl, 0))
}

func (c *BAR) StartTrigger(diu DiuConfig) error {
	return c.wrap("start_trigger", c.Bar.WriteRegister(regDdlCommand, uint32(CommandRandCIFST)))
}

func (c *BAR) StopTrigger(diu DiuConfig) error {
	return c.wrap("stop_trigger", c.Bar.WriteRegister(regDdlCommand, 0))
}

func (c *BAR) SetLoopbackInternal() error {
	return c.wrap("set_loopback_internal", c.Bar.WriteRegister(regLoopbackCtrl, uint32(roc.LoopbackInternal)))
}

func (c *BAR) SetLoopbackSiu(diu DiuConfig) error {
	return c.wrap("set_loopback_siu", c.Bar.WriteRegister(regLoopbackCtrl, uint32(roc.LoopbackSiu)))
}

func (c *BAR) AssertLinkUp() error {
	status, err := c.Bar.ReadRegister(regStatus)
	if err != nil {
		return c.wrap("assert_link_up", err)
	}
	if status&1 == 0 {
		return c.wrap("assert_link_up", fmt.Errorf("link down (status=0x%08x)", status))
	}
	return nil
}

func (c *BAR) SiuCommand(op DdlCommand) error {
	return c.wrap("siu_command", c.Bar.WriteRegister(regDdlCommand, uint32(op)))
}

func (c *BAR) DiuCommand(op DdlCommand) error {
	return c.wrap("diu_command", c.Bar.WriteRegister(regDdlCommand, uint32(op)))
}

func (c *BAR) AssertFreeFifoEmpty() error {
	status, err := c.Bar.ReadRegister(regRxFreeFifoLen)
	if err != nil {
		return c.wrap("assert_free_fifo_empty", err)
	}
	if status != 0 {
		return c.wrap("assert_free_fifo_empty", fmt.Errorf("free FIFO not empty (len=%d)", status))
	}
	return nil
}

func (c *BAR) ReadRegister(addr uint32) (uint32, error) {
	v, err := c.Bar.ReadRegister(addr)
	return v, c.wrap("read_register", err)
}

func (c *BAR) GetSerial() (int32, bool, error) {
	v, err := c.Bar.ReadRegister(regSerialNumber)
	if err != nil {
		return 0, false, c.wrap("get_serial", err)
	}
	if v == 0xffffffff {
		return 0, false, nil
	}
	return int32(v), true, nil
}

// GetFirmwareInfo decodes the RFID register's bit-field layout, per the
// original's getFirmwareInfo: reserved[24:31] must equal 0x2,
// major[20:23], minor[13:19], year[9:12]+2000, month[5:8], day[0:4].
func (c *BAR) GetFirmwareInfo() (string, error) {
	rfid, err := c.Bar.ReadRegister(regRfid)
	if err != nil {
		return "", c.wrap("get_firmware_info", err)
	}
	if rfid&0xff000000 != rfidReservedMask {
		return "", c.wrap("get_firmware_info", fmt.Errorf("unrecognized RFID register 0x%08x", rfid))
	}
	major := (rfid >> 20) & 0xf
	minor := (rfid >> 13) & 0x7f
	year := 2000 + (rfid>>9)&0xf
	month := (rfid >> 5) & 0xf
	day := rfid & 0x1f
	return fmt.Sprintf("%d.%d:%d-%d-%d", major, minor, year, month, day), nil
}

func (c *BAR) InitReadoutContinuous() error {
	return c.wrap("init_readout_continuous", c.Bar.WriteRegister(regControl, 2))
}

func (c *BAR) StartReadoutContinuous() error {
	return c.wrap("start_readout_continuous", c.Bar.WriteRegister(regControl, 3))
}
