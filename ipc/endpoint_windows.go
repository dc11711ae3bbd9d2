//go:build windows

package ipc

import (
	"net"
	"time"

	"github.com/Microsoft/go-winio"
)

// listenEndpoint binds a duplex named pipe whose name is derived from
// the logical socket path. The pipe allows concurrent client instances.
func listenEndpoint(socketPath string) (net.Listener, error) {
	return winio.ListenPipe(PipeName(socketPath), nil)
}

// dialEndpoint connects to the derived pipe name with a timeout.
func dialEndpoint(socketPath string, timeout time.Duration) (net.Conn, error) {
	return winio.DialPipe(PipeName(socketPath), &timeout)
}

// removeEndpoint is a no-op on Windows: pipe instances vanish when the
// listener closes its handles.
func removeEndpoint(string) error { return nil }
