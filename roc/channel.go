package roc

// Channel is the public, single-threaded interface exposed to clients of
// a DMA channel. All operations are non-blocking except for the bounded
// settle delays of ResetChannel and of the FillSuperpages call that
// performs the deferred DMA start; no operation performs blocking I/O on
// the caller's behalf.
//
// A Channel is not safe for concurrent use: the client must serialize
// its own calls, and must call FillSuperpages regularly to advance the
// state machine and avoid Ready-FIFO starvation.
type Channel interface {
	// PushSuperpage enqueues sp for DMA. It fails with *QueueFullError,
	// *AlignmentError, *ParameterError, or *OutOfRangeError without
	// mutating channel state.
	PushSuperpage(sp Superpage) error

	// PopSuperpage removes and returns the head of the Filled queue.
	// It fails with *QueueEmptyError if the Filled queue is empty.
	PopSuperpage() (Superpage, error)

	// GetSuperpage peeks the head of the Filled queue without removing
	// it. It fails with *QueueEmptyError if the Filled queue is empty.
	GetSuperpage() (Superpage, error)

	// GetTransferQueueAvailable returns the remaining capacity of the
	// combined Pushing+Arrivals queue.
	GetTransferQueueAvailable() int

	// GetReadyQueueSize returns the number of superpages currently in
	// the Filled queue.
	GetReadyQueueSize() int

	// FillSuperpages performs one engine tick: at most one push-phase
	// and one arrival-phase step. The client must call it regularly.
	FillSuperpages() error

	// StartDMA transitions Stopped->PendingStart. DMA traffic does not
	// begin until the first FillSuperpages call that finds a superpage
	// pushed.
	StartDMA() error

	// StopDMA transitions Running/PendingStart->Stopped. It is
	// idempotent and best-effort: a second call, or one made while
	// already Stopped, is a no-op.
	StopDMA() error

	// ResetChannel delegates a reset sequence to the Card Ops
	// collaborator. Valid in any state.
	ResetChannel(level ResetLevel) error

	GetCardType() CardType
	GetSerial() (int32, bool)
	GetFirmwareInfo() (string, bool)
	GetTemperature() (float32, bool)
	GetPciAddress() PciAddress
	GetNumaNode() int
}
