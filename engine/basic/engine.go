// Package basic gives the default implementation of the ndn.Engine
// interface: a single-goroutine event loop multiplexing incoming
// packets, posted tasks and timer events over one face.
package basic

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	enc "github.com/named-data/Consumer-Producer-API/encoding"
	"github.com/named-data/Consumer-Producer-API/log"
	"github.com/named-data/Consumer-Producer-API/ndn"
	"github.com/named-data/Consumer-Producer-API/spec"
)

const DefaultInterestLife = 4 * time.Second
const TimeoutMargin = 10 * time.Millisecond

type pendInt struct {
	id            ndn.PendingID
	callback      ndn.ExpressCallbackFunc
	deadline      time.Time
	impSha256     []byte
	timeoutCancel func() error
}

type pitEntry = []*pendInt

type pendRef struct {
	node  *NameTrie[pitEntry]
	entry *pendInt
}

type Engine struct {
	face  ndn.Face
	timer ndn.Timer

	// fib holds the registered Interest handlers.
	fib *NameTrie[ndn.InterestHandler]
	// pit holds pending outgoing Interests.
	pit *NameTrie[pitEntry]
	// pending maps ids to their PIT entries for O(1) removal.
	pending map[ndn.PendingID]pendRef
	nextID  atomic.Uint64

	fibLock sync.Mutex
	pitLock sync.Mutex

	// inQueue is the incoming packet queue; the face blocks when full.
	inQueue chan []byte
	// taskQueue holds tasks posted onto the engine goroutine.
	taskQueue chan func()
	close     chan struct{}
	running   atomic.Bool
}

// NewEngine creates an engine over the given face and timer.
func NewEngine(face ndn.Face, timer ndn.Timer) *Engine {
	if face == nil || timer == nil {
		return nil
	}
	return &Engine{
		face:  face,
		timer: timer,

		fib:     NewNameTrie[ndn.InterestHandler](func(h ndn.InterestHandler) bool { return h == nil }),
		pit:     NewNameTrie[pitEntry](func(e pitEntry) bool { return len(e) == 0 }),
		pending: map[ndn.PendingID]pendRef{},

		inQueue:   make(chan []byte, 256),
		taskQueue: make(chan func(), 512),
		close:     make(chan struct{}),
	}
}

func (e *Engine) String() string {
	return "basic-engine"
}

func (e *Engine) Timer() ndn.Timer {
	return e.timer
}

func (e *Engine) Face() ndn.Face {
	return e.face
}

// AttachHandler registers an Interest handler under a prefix.
func (e *Engine) AttachHandler(prefix enc.Name, handler ndn.InterestHandler) error {
	e.fibLock.Lock()
	defer e.fibLock.Unlock()
	n := e.fib.MatchAlways(prefix)
	if n.Value() != nil {
		return fmt.Errorf("%w: %s", ndn.ErrMultipleHandlers, prefix)
	}
	n.SetValue(handler)
	return nil
}

// DetachHandler removes the handler registered under a prefix.
func (e *Engine) DetachHandler(prefix enc.Name) error {
	e.fibLock.Lock()
	defer e.fibLock.Unlock()

	n := e.fib.ExactMatch(prefix)
	if n == nil || n.Value() == nil {
		return ndn.ErrInvalidValue{Item: "prefix", Value: prefix}
	}
	n.SetValue(nil)
	n.Prune()
	return nil
}

// Start opens the face and runs the engine goroutine.
func (e *Engine) Start() error {
	if e.face.IsRunning() {
		return fmt.Errorf("face is already running")
	}

	e.face.OnPacket(func(frame []byte) {
		// copy so the face can reuse its receive buffer
		frameCopy := make([]byte, len(frame))
		copy(frameCopy, frame)
		e.inQueue <- frameCopy
	})
	e.face.OnError(func(err error) {
		log.Error(e, "Error on face", "err", err, "face", e.face)
		e.Stop()
	})

	if err := e.face.Open(); err != nil {
		return err
	}

	e.running.Store(true)
	go func() {
		defer e.face.Close()
		defer e.running.Store(false)

		for {
			select {
			case frame := <-e.inQueue:
				e.onPacket(frame)
			case task := <-e.taskQueue:
				task()
			case <-e.close:
				return
			}
		}
	}()

	return nil
}

// Stop terminates the engine goroutine and closes the face.
func (e *Engine) Stop() error {
	if !e.IsRunning() {
		return fmt.Errorf("engine is not running")
	}
	e.close <- struct{}{} // closes face too
	return nil
}

func (e *Engine) IsRunning() bool {
	return e.running.Load()
}

// Post schedules a task onto the engine goroutine.
func (e *Engine) Post(task func()) {
	select {
	case e.taskQueue <- task:
	default:
		// Do not block in case this is called from the engine
		// goroutine itself.
		go func() { e.taskQueue <- task }()
	}
}

// Put emits a Data wire to the network.
func (e *Engine) Put(dataWire enc.Wire) error {
	if dataWire == nil {
		return nil
	}
	if !e.IsRunning() || !e.face.IsRunning() {
		return ndn.ErrFaceDown
	}
	return e.face.Send(dataWire)
}

// onPacket dispatches one received frame by its outer TLV type.
func (e *Engine) onPacket(frame []byte) {
	if len(frame) == 0 {
		return
	}
	outer, _ := enc.ParseTLNum(frame)
	switch outer {
	case spec.TypeInterest:
		interest, err := spec.ReadInterest(enc.NewView(frame))
		if err != nil {
			// recoverable, keep the loop running
			log.Error(e, "Failed to parse Interest", "err", err)
			return
		}
		log.Trace(e, "Interest received", "name", interest.Name())
		e.onInterest(interest, frame)
	case spec.TypeData:
		data, sigCovered, err := spec.ReadData(enc.NewView(frame))
		if err != nil {
			log.Error(e, "Failed to parse Data", "err", err)
			return
		}
		log.Trace(e, "Data received", "name", data.Name())
		e.onData(data, sigCovered, frame)
	default:
		log.Warn(e, "Unknown packet type - DROP", "type", uint64(outer))
	}
}

// onInterest dispatches an incoming Interest to the longest-prefix
// handler.
func (e *Engine) onInterest(interest *spec.Interest, raw enc.Buffer) {
	name := interest.Name()

	handler := func() ndn.InterestHandler {
		e.fibLock.Lock()
		defer e.fibLock.Unlock()
		n := e.fib.PrefixMatch(name)
		for n != nil && n.Value() == nil {
			n = n.Parent()
		}
		if n != nil {
			return n.Value()
		}
		return nil
	}()
	if handler == nil {
		log.Warn(e, "No handler for interest", "name", name)
		return
	}

	deadline := e.timer.Now().Add(interest.Lifetime().GetOr(DefaultInterestLife))

	// handlers with Data at hand reply inline; the call stays on the
	// engine goroutine
	handler(ndn.InterestHandlerArgs{
		Interest:    interest,
		RawInterest: raw,
		Deadline:    deadline,
		Reply:       e.Put,
	})
}

// onDataMatch pops every pending entry along the Data name's node
// path that the packet satisfies.
func (e *Engine) onDataMatch(data *spec.Data, raw enc.Buffer) pitEntry {
	e.pitLock.Lock()
	defer e.pitLock.Unlock()

	n := e.pit.ExactMatch(data.Name())
	if n == nil {
		n = e.pit.PrefixMatch(data.Name())
	}
	if n == nil {
		return nil
	}

	var digest []byte
	ret := make(pitEntry, 0, 4)
	for cur := n; cur != nil; cur = cur.Parent() {
		entries := cur.Value()
		for i := 0; i < len(entries); i++ {
			entry := entries[i]

			if entry.impSha256 != nil {
				if digest == nil {
					d := sha256.Sum256(raw)
					digest = d[:]
				}
				if !bytes.Equal(entry.impSha256, digest) {
					continue
				}
			}

			// pop entry
			entries[i] = entries[len(entries)-1]
			entries = entries[:len(entries)-1]
			i--
			ret = append(ret, entry)
			delete(e.pending, entry.id)
		}
		cur.SetValue(entries)
		cur.PruneIf(func(lst pitEntry) bool { return len(lst) == 0 })
	}

	return ret
}

// onData satisfies pending Interests with a received Data packet.
func (e *Engine) onData(data *spec.Data, sigCovered enc.Wire, raw enc.Buffer) {
	matched := e.onDataMatch(data, raw)
	if len(matched) == 0 {
		log.Warn(e, "Received data for an unknown interest - DROP", "name", data.Name())
		return
	}

	for _, entry := range matched {
		entry.timeoutCancel()
		entry.callback(ndn.ExpressCallbackArgs{
			Result:     ndn.InterestResultData,
			Data:       data,
			RawData:    raw,
			SigCovered: sigCovered,
		})
	}
}

// onExpressTimeout fires expired entries on a PIT node.
func (e *Engine) onExpressTimeout(n *NameTrie[pitEntry]) {
	now := e.timer.Now()

	expired := func() pitEntry {
		e.pitLock.Lock()
		defer e.pitLock.Unlock()

		ret := make(pitEntry, 0, 4)
		entries := n.Value()
		for i := 0; i < len(entries); i++ {
			entry := entries[i]
			if entry.deadline.After(now) {
				continue
			}
			entries[i] = entries[len(entries)-1]
			entries = entries[:len(entries)-1]
			i--
			ret = append(ret, entry)
			delete(e.pending, entry.id)
		}
		n.SetValue(entries)
		n.PruneIf(func(lst pitEntry) bool { return len(lst) == 0 })
		return ret
	}()

	for _, entry := range expired {
		entry.callback(ndn.ExpressCallbackArgs{
			Result: ndn.InterestResultTimeout,
		})
	}
}

// Express sends an Interest and registers its result callback.
func (e *Engine) Express(interest *ndn.EncodedInterest, callback ndn.ExpressCallbackFunc) (ndn.PendingID, error) {
	if callback == nil {
		callback = func(ndn.ExpressCallbackArgs) {}
	}

	finalName := interest.FinalName
	if len(finalName) == 0 {
		return 0, ndn.ErrInvalidValue{Item: "finalName", Value: finalName}
	}

	// digest-pinned Interests match on the digestless node
	var impSha256 []byte = nil
	nodeName := finalName
	if last := finalName.At(-1); last.IsDigest() {
		impSha256 = last.Val
		nodeName = finalName.Prefix(-1)
	}

	lifetime := interest.Config.Lifetime.GetOr(DefaultInterestLife)
	deadline := e.timer.Now().Add(lifetime)
	id := ndn.PendingID(e.nextID.Add(1))

	func() {
		e.pitLock.Lock()
		defer e.pitLock.Unlock()

		n := e.pit.MatchAlways(nodeName)
		entry := &pendInt{
			id:        id,
			callback:  callback,
			deadline:  deadline,
			impSha256: impSha256,
			timeoutCancel: e.timer.Schedule(lifetime+TimeoutMargin, func() {
				e.onExpressTimeout(n)
			}),
		}
		n.SetValue(append(n.Value(), entry))
		e.pending[id] = pendRef{node: n, entry: entry}
	}()

	if err := e.face.Send(interest.Wire); err != nil {
		log.Error(e, "Failed to send interest", "err", err)
		return id, err
	}

	log.Trace(e, "Interest sent", "name", finalName)
	return id, nil
}

// RemovePending cancels one pending Interest without firing its
// callback.
func (e *Engine) RemovePending(id ndn.PendingID) error {
	e.pitLock.Lock()
	defer e.pitLock.Unlock()

	ref, ok := e.pending[id]
	if !ok {
		return ndn.ErrInvalidValue{Item: "id", Value: id}
	}
	delete(e.pending, id)
	ref.entry.timeoutCancel()

	entries := ref.node.Value()
	for i, entry := range entries {
		if entry == ref.entry {
			entries[i] = entries[len(entries)-1]
			entries = entries[:len(entries)-1]
			break
		}
	}
	ref.node.SetValue(entries)
	ref.node.PruneIf(func(lst pitEntry) bool { return len(lst) == 0 })
	return nil
}

// RemoveAllPending cancels every pending Interest.
func (e *Engine) RemoveAllPending() {
	e.pitLock.Lock()
	defer e.pitLock.Unlock()

	for id, ref := range e.pending {
		ref.entry.timeoutCancel()
		entries := ref.node.Value()
		for i, entry := range entries {
			if entry == ref.entry {
				entries[i] = entries[len(entries)-1]
				entries = entries[:len(entries)-1]
				break
			}
		}
		ref.node.SetValue(entries)
		ref.node.PruneIf(func(lst pitEntry) bool { return len(lst) == 0 })
		delete(e.pending, id)
	}
}
