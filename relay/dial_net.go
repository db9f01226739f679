package relay

import (
	"io"
	"net"
)

func dialNet(proto, addr string) (io.ReadWriteCloser, error) {
	return net.Dial(proto, addr)
}

func DialTCP(addr string) (io.ReadWriteCloser, error) {
	return dialNet("tcp", addr)
}

func DialUnix(addr string) (io.ReadWriteCloser, error) {
	return dialNet("unix", addr)
}
