package basic

import (
	"crypto/rand"
	"fmt"
	"time"

	"github.com/named-data/Consumer-Producer-API/ndn"
)

type Timer struct{}

// NewTimer creates the wall-clock timer.
func NewTimer() ndn.Timer {
	return Timer{}
}

func (Timer) Sleep(d time.Duration) {
	time.Sleep(d)
}

func (Timer) Schedule(d time.Duration, f func()) func() error {
	t := time.AfterFunc(d, f)
	return func() error {
		if t != nil {
			t.Stop()
			t = nil
			return nil
		}
		return fmt.Errorf("event has already been canceled")
	}
}

func (Timer) Now() time.Time {
	return time.Now()
}

func (Timer) Nonce() []byte {
	buf := make([]byte, 8)
	n, _ := rand.Read(buf) // always succeeds
	return buf[:n]
}
