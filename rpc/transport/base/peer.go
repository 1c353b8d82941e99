package base

import (
	"sync"

	"github.com/ValentinKolb/pKV/rpc/transport"
)

// peerConn is a registered connection with its outbound queue
type peerConn struct {
	conn      IFrameConn
	info      transport.PeerInfo
	out       chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newPeerConn(conn IFrameConn, info transport.PeerInfo, queueSize int) *peerConn {
	return &peerConn{
		conn: conn,
		info: info,
		out:  make(chan []byte, queueSize),
		done: make(chan struct{}),
	}
}

// send queues data without blocking
func (p *peerConn) send(data []byte) error {
	select {
	case <-p.done:
		return transport.ErrUnknownPeer
	default:
	}
	select {
	case p.out <- data:
		return nil
	case <-p.done:
		return transport.ErrUnknownPeer
	default:
		return transport.ErrQueueFull
	}
}

// close closes the connection once; the reader then exits
func (p *peerConn) close() {
	p.closeOnce.Do(func() {
		close(p.done)
		_ = p.conn.Close()
	})
}

// writeLoop drains the outbound queue until the connection closes
func (p *peerConn) writeLoop() {
	for {
		select {
		case <-p.done:
			return
		case data := <-p.out:
			if err := p.conn.WriteFrame(FrameData, data); err != nil {
				Logger.Debugf("Write to %s failed: %v", p.info.Address, err)
				p.close()
				return
			}
		}
	}
}

// readLoop passes inbound data frames to handler until the connection fails
func (p *peerConn) readLoop(handler transport.HandleFunc) {
	for {
		kind, data, err := p.conn.ReadFrame()
		if err != nil {
			select {
			case <-p.done:
			default:
				Logger.Debugf("Read from %s failed: %v", p.info.Address, err)
			}
			return
		}
		if kind != FrameData {
			Logger.Warningf("Ignoring frame of kind %d from %s", kind, p.info.Address)
			continue
		}
		if handler != nil {
			handler(data, p.info.Address)
		}
	}
}
