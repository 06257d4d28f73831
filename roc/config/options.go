// Package config parses the command-line and YAML file configuration
// of cmd/roc-sanity-check: a loaded YAML file supplies defaults, and a
// flag passed on the command line with a non-empty, non-zero value
// overrides the corresponding file value. A flag set to its zero value
// leaves the file value in place, and --cp-gen-enable is OR-ed with the
// file's cp-gen-enable.
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/maersdal/readoutcard/roc"
)

// FileConfig is the subset of Options that may also come from a YAML
// file passed with -config. A flag with a non-zero value takes
// precedence over the loaded file (see the package comment).
type FileConfig struct {
	Address     string `yaml:"address"`
	RegRange    int    `yaml:"regrange"`
	Value       string `yaml:"value"`
	DmaPageSize int    `yaml:"cp-dma-pagesize"`
	DmaBufMB    int    `yaml:"cp-dma-bufmb"`
	GenEnable   bool   `yaml:"cp-gen-enable"`
	GenLoopback string `yaml:"cp-gen-loopb"`
	Serial      int    `yaml:"serial"`
}

// Options is the parsed, validated configuration for the CLI tools.
type Options struct {
	Address  uint64
	RegRange int
	Value    uint64

	DmaPageSize uint64
	BufferSize  uint64

	GeneratorEnabled bool
	GeneratorLoopback roc.LoopbackMode

	Serial int32

	ConfigPath string
	Yes        bool
}

// Parse registers the tool's flags against fs, parses args, optionally
// loads -config as a YAML FileConfig base layer, and applies explicit
// flags on top of it. This mirrors --cp-dma-pagesize/--cp-dma-bufmb
// being specified in kilobytes/megabytes respectively (S6: 300 ->
// 300*1024, 400 -> 400*1024*1024).
func Parse(fs *flag.FlagSet, args []string) (*Options, error) {
	var (
		configPath  = fs.String("config", "", "path to a YAML config file")
		address     = fs.String("address", "", "PCI BAR register base address, hex")
		regRange    = fs.Int("regrange", 0, "register dump range")
		value       = fs.String("value", "", "register write value, hex")
		dmaPageSize = fs.Int("cp-dma-pagesize", 0, "DMA page size in KiB")
		dmaBufMB    = fs.Int("cp-dma-bufmb", 0, "DMA buffer size in MiB")
		genEnable   = fs.Bool("cp-gen-enable", false, "enable the on-card data generator")
		genLoopback = fs.String("cp-gen-loopb", "", "generator loopback mode: NONE/INTERNAL/SIU/DIU/RORC")
		serial      = fs.Int("serial", 0, "card serial number")
		yes         = fs.Bool("y", false, "skip the interactive confirmation prompt")
	)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	var file FileConfig
	if *configPath != "" {
		data, err := os.ReadFile(*configPath)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", *configPath, err)
		}
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", *configPath, err)
		}
	}

	opts := &Options{ConfigPath: *configPath, Yes: *yes}

	addrStr := firstNonEmpty(*address, file.Address)
	if addrStr != "" {
		v, err := strconv.ParseUint(trimHexPrefix(addrStr), 16, 64)
		if err != nil {
			return nil, fmt.Errorf("config: invalid --address %q: %w", addrStr, err)
		}
		opts.Address = v
	}

	opts.RegRange = firstNonZeroInt(*regRange, file.RegRange)

	valStr := firstNonEmpty(*value, file.Value)
	if valStr != "" {
		v, err := strconv.ParseUint(trimHexPrefix(valStr), 16, 64)
		if err != nil {
			return nil, fmt.Errorf("config: invalid --value %q: %w", valStr, err)
		}
		opts.Value = v
	}

	pageSizeKB := firstNonZeroInt(*dmaPageSize, file.DmaPageSize)
	opts.DmaPageSize = uint64(pageSizeKB) * 1024

	bufMB := firstNonZeroInt(*dmaBufMB, file.DmaBufMB)
	opts.BufferSize = uint64(bufMB) * 1024 * 1024

	opts.GeneratorEnabled = *genEnable || file.GenEnable

	loopbackStr := firstNonEmpty(*genLoopback, file.GenLoopback)
	if loopbackStr != "" {
		mode, err := roc.ParseLoopbackMode(loopbackStr)
		if err != nil {
			return nil, err
		}
		opts.GeneratorLoopback = mode
	}

	serialVal := firstNonZeroInt(*serial, file.Serial)
	opts.Serial = int32(serialVal)

	return opts, nil
}

func firstNonEmpty(flagVal, fileVal string) string {
	if flagVal != "" {
		return flagVal
	}
	return fileVal
}

func firstNonZeroInt(flagVal, fileVal int) int {
	if flagVal != 0 {
		return flagVal
	}
	return fileVal
}

func trimHexPrefix(s string) string {
	if len(s) > 2 && (s[0:2] == "0x" || s[0:2] == "0X") {
		return s[2:]
	}
	return s
}
