// Package face provides packet transports for the engine: an
// in-process loopback for tests, stream sockets, and WebSocket.
package face

import (
	"sync"
	"sync/atomic"
)

// baseFace is the shared state of face implementations.
type baseFace struct {
	running atomic.Bool
	local   bool
	onPkt   func(frame []byte)
	onError func(err error)
	sendMut sync.Mutex

	onUp     sync.Map
	onDown   sync.Map
	onUpHndl int
	onDnHndl int
}

func newBaseFace(local bool) baseFace {
	return baseFace{local: local}
}

// IsRunning returns whether the face is currently up.
func (f *baseFace) IsRunning() bool {
	return f.running.Load()
}

// IsLocal returns whether the face connects to a local forwarder.
func (f *baseFace) IsLocal() bool {
	return f.local
}

// OnPacket sets the callback invoked for each received frame.
func (f *baseFace) OnPacket(onPkt func(frame []byte)) {
	f.onPkt = onPkt
}

// OnError sets the callback invoked on transport errors.
func (f *baseFace) OnError(onError func(err error)) {
	f.onError = onError
}

// OnUp registers a callback fired when the face comes up.
func (f *baseFace) OnUp(onUp func()) (cancel func()) {
	hndl := f.onUpHndl
	f.onUp.Store(hndl, onUp)
	f.onUpHndl++
	return func() { f.onUp.Delete(hndl) }
}

// OnDown registers a callback fired when the face goes down.
func (f *baseFace) OnDown(onDown func()) (cancel func()) {
	hndl := f.onDnHndl
	f.onDown.Store(hndl, onDown)
	f.onDnHndl++
	return func() { f.onDown.Delete(hndl) }
}

// setStateDown marks the face down, firing down callbacks if it was up.
func (f *baseFace) setStateDown() {
	if f.running.Swap(false) {
		f.onDown.Range(func(_, cb any) bool {
			cb.(func())()
			return true
		})
	}
}

// setStateUp marks the face up, firing up callbacks if it was down.
func (f *baseFace) setStateUp() {
	if !f.running.Swap(true) {
		f.onUp.Range(func(_, cb any) bool {
			cb.(func())()
			return true
		})
	}
}

// setStateClosed marks the face down without firing callbacks.
// Returns whether the face was running.
func (f *baseFace) setStateClosed() bool {
	return f.running.Swap(false)
}
