package relay

import (
	"io"
	"os"
)

type ioduplex struct {
	io.WriteCloser
	io.ReadCloser
}

func (d *ioduplex) Close() error {
	if err := d.WriteCloser.Close(); err != nil {
		return err
	}
	if err := d.ReadCloser.Close(); err != nil {
		return err
	}
	return nil
}

// DialIO returns a relay connection using a WriterCloser and ReadCloser.
func DialIO(out io.WriteCloser, in io.ReadCloser) (io.ReadWriteCloser, error) {
	return &ioduplex{out, in}, nil
}

// DialStdio returns a relay connection using Stdout and Stdin.
func DialStdio() (io.ReadWriteCloser, error) {
	return DialIO(os.Stdout, os.Stdin)
}
