package transport

import (
	"net"

	"github.com/libp2p/go-reuseport"
)

// tcpTransport adapts a net.Conn to the Transport interface. AsyncReadSome and
// AsyncWrite each spawn a short-lived goroutine to perform the blocking
// net.Conn call, since net.Conn has no native completion-callback API; the
// handler that owns this transport is responsible for posting done's
// invocation back onto its io-executor before touching handler state.
type tcpTransport struct {
	conn net.Conn
}

// NewTCP wraps an established net.Conn as a Transport.
func NewTCP(conn net.Conn) Transport {
	return &tcpTransport{conn: conn}
}

func (t *tcpTransport) AsyncReadSome(buf []byte, done CompletionFunc) {
	go func() {
		n, err := t.conn.Read(buf)
		done(n, err)
	}()
}

func (t *tcpTransport) AsyncWrite(buf []byte, done CompletionFunc) {
	go func() {
		n, err := t.conn.Write(buf)
		done(n, err)
	}()
}

func (t *tcpTransport) Close() error {
	return t.conn.Close()
}

func (t *tcpTransport) LocalAddr() net.Addr  { return t.conn.LocalAddr() }
func (t *tcpTransport) RemoteAddr() net.Addr { return t.conn.RemoteAddr() }

// tcpAcceptor listens for inbound TCP connections, bound with SO_REUSEPORT so
// that multiple acceptors (one per accept-executor) can share a single
// listen address.
type tcpAcceptor struct {
	ln net.Listener
}

// NewTCPAcceptor binds address using SO_REUSEPORT/SO_REUSEADDR, allowing the
// accept pool to run one acceptor per executor against the same address.
func NewTCPAcceptor(address string) (Acceptor, error) {
	ln, err := reuseport.Listen("tcp", address)
	if err != nil {
		return nil, err
	}
	return &tcpAcceptor{ln: ln}, nil
}

func (a *tcpAcceptor) AsyncAccept() (Transport, error) {
	conn, err := a.ln.Accept()
	if err != nil {
		return nil, err
	}
	return NewTCP(conn), nil
}

func (a *tcpAcceptor) Close() error { return a.ln.Close() }
func (a *tcpAcceptor) Addr() net.Addr { return a.ln.Addr() }

// tcpConnector dials outbound TCP connections for client use.
type tcpConnector struct{}

// NewTCPConnector returns a Connector that dials plain TCP.
func NewTCPConnector() Connector { return tcpConnector{} }

func (tcpConnector) AsyncConnect(network, address string, done func(Transport, error)) {
	go func() {
		conn, err := net.Dial(network, address)
		if err != nil {
			done(nil, err)
			return
		}
		done(NewTCP(conn), nil)
	}()
}
