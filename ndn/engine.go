package ndn

import (
	"time"

	enc "github.com/named-data/Consumer-Producer-API/encoding"
)

// EncodedData is the result of encoding a Data packet.
type EncodedData struct {
	Wire   enc.Wire
	Config *DataConfig
	// Parsed is the packet re-read from its own wire, so that the
	// producer can treat freshly built and cached packets uniformly.
	Parsed Data
}

// EncodedInterest is the result of encoding an Interest.
type EncodedInterest struct {
	Wire   enc.Wire
	Config *InterestConfig
	// FinalName includes the params/digest components appended during
	// encoding, if any.
	FinalName enc.Name
}

// InterestResult is the outcome of an expressed Interest.
type InterestResult int

const (
	// InterestResultNone is the invalid result.
	InterestResultNone InterestResult = iota
	// InterestResultData means a matching Data arrived.
	InterestResultData
	// InterestResultTimeout means the Interest lifetime elapsed.
	InterestResultTimeout
	// InterestCancelled means the pending entry was removed locally.
	InterestCancelled
	// InterestResultError is a local failure described by Error.
	InterestResultError
)

// ExpressCallbackArgs is passed to the Interest result callback.
type ExpressCallbackArgs struct {
	Result     InterestResult
	Data       Data
	RawData    enc.Buffer
	SigCovered enc.Wire
	Error      error
}

type ExpressCallbackFunc func(args ExpressCallbackArgs)

// PendingID identifies one pending Interest at the engine.
type PendingID uint64

// InterestHandlerArgs is passed to a registered prefix handler.
type InterestHandlerArgs struct {
	Interest    Interest
	RawInterest enc.Buffer
	SigCovered  enc.Wire
	Deadline    time.Time
	// Reply emits a Data wire toward the requester.
	Reply func(dataWire enc.Wire) error
}

type InterestHandler func(args InterestHandlerArgs)

// Face provides the packet transport under an engine.
type Face interface {
	Open() error
	Close() error
	Send(pkt enc.Wire) error
	IsRunning() bool
	IsLocal() bool
	OnPacket(onPkt func(frame []byte))
	OnError(onError func(err error))
	OnUp(onUp func()) (cancel func())
	OnDown(onDown func()) (cancel func())
}

// Timer provides scheduling to the engine and the contexts.
type Timer interface {
	Now() time.Time
	Sleep(d time.Duration)
	// Schedule runs f after d. The returned function cancels the
	// event; it errors when the event already fired or was cancelled.
	Schedule(d time.Duration, f func()) func() error
	// Nonce returns a fresh random nonce buffer.
	Nonce() []byte
}

// Engine is the event loop the contexts run on. All callbacks fire on
// the engine goroutine.
type Engine interface {
	Timer() Timer
	Start() error
	Stop() error
	IsRunning() bool
	// Express sends an Interest and registers its callbacks.
	Express(interest *EncodedInterest, callback ExpressCallbackFunc) (PendingID, error)
	// RemovePending cancels one pending Interest without a callback.
	RemovePending(id PendingID) error
	// RemoveAllPending cancels every pending Interest.
	RemoveAllPending()
	// AttachHandler registers an Interest handler under a prefix.
	AttachHandler(prefix enc.Name, handler InterestHandler) error
	DetachHandler(prefix enc.Name) error
	// Put emits a Data wire to the network.
	Put(dataWire enc.Wire) error
	// Post schedules a task onto the engine goroutine.
	Post(task func())
}
