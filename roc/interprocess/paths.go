// Package interprocess provides the per-channel filesystem paths and
// cross-process locking used to detect another live process (or a
// crashed one) already owning a channel.
package interprocess

import "fmt"

// ShmRoot is the directory under which channel state files live,
// matching the original's /dev/shm placement for shared, tmpfs-backed
// coordination state.
const ShmRoot = "/dev/shm"

// ChannelPaths names the lock, Ready-FIFO, and named-mutex files for one
// card serial + channel number pair.
type ChannelPaths struct {
	CardType string
	Serial   string
	Channel  int
}

func (p ChannelPaths) base(suffix string) string {
	return fmt.Sprintf("%s/AliceO2_RoC_%s_Channel_%d%s", ShmRoot, p.idTag(), p.Channel, suffix)
}

func (p ChannelPaths) idTag() string {
	if p.Serial != "" {
		return fmt.Sprintf("%s_%s", p.CardType, p.Serial)
	}
	return p.CardType
}

// Lock returns the file-lock path.
func (p ChannelPaths) Lock() string { return p.base(".lock") }

// Fifo returns the Ready-FIFO shared-memory-region path.
func (p ChannelPaths) Fifo() string { return p.base(".fifo") }

// NamedMutex returns the named-mutex path (a second, distinctly-suffixed
// lock file never released across a simulated crash, used purely as a
// liveness marker).
func (p ChannelPaths) NamedMutex() string { return p.base(".mutex") }
