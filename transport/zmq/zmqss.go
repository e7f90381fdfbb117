package zmq

import (
	"github.com/helioscore/cosim/transport"
	"github.com/helioscore/cosim/transport/tcpss"
	"github.com/helioscore/cosim/wire"
)

// SSAdapter is the --coretype=ZMQ_SS counterpart to Adapter, wrapping
// transport/tcpss the same way Adapter wraps transport/tcp: a real,
// working single-socket transport standing in for the 0MQ binding the
// corpus doesn't have.
type SSAdapter struct {
	*tcpss.Adapter
}

func NewSS(self wire.FederateID, listenAddr string) (*SSAdapter, error) {
	inner, err := tcpss.New(self, listenAddr)
	if err != nil {
		return nil, err
	}
	return &SSAdapter{Adapter: inner}, nil
}

func (a *SSAdapter) Kind() string { return "ZMQ_SS" }

var _ transport.Adapter = (*SSAdapter)(nil)
