package cli

import (
	"fmt"
	"net/url"

	basic_engine "github.com/named-data/Consumer-Producer-API/engine/basic"
	"github.com/named-data/Consumer-Producer-API/engine/face"
	"github.com/named-data/Consumer-Producer-API/ndn"
)

// newEngine dials the configured forwarder address and starts an
// engine over it.
func newEngine() (ndn.Engine, error) {
	u, err := url.Parse(config.Face)
	if err != nil {
		return nil, fmt.Errorf("invalid face address %q: %w", config.Face, err)
	}

	var f ndn.Face
	switch u.Scheme {
	case "unix":
		f = face.NewStreamFace("unix", u.Path, true)
	case "tcp", "tcp4", "tcp6":
		f = face.NewStreamFace(u.Scheme, u.Host, false)
	case "ws", "wss":
		f = face.NewWebSocketFace(config.Face, false)
	default:
		return nil, fmt.Errorf("unknown face scheme %q", u.Scheme)
	}

	engine := basic_engine.NewEngine(f, basic_engine.NewTimer())
	if err := engine.Start(); err != nil {
		return nil, err
	}
	return engine, nil
}
