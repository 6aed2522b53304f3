package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/x/term"
	"github.com/fatih/color"
	"go.bug.st/serial"
)

type transport struct {
	name string
	r    io.ReadCloser
	// w is nil for read-only inputs.
	w io.Writer
}

func openTransport() (*transport, error) {
	switch {
	case config.InputPath != "":
		f, err := os.Open(config.InputPath)
		if err != nil {
			return nil, err
		}
		return &transport{name: config.InputPath, r: paced(f, config.Pace)}, nil
	case config.Port == "" || config.Port == "-":
		if term.IsTerminal(os.Stdin.Fd()) {
			return nil, fmt.Errorf("no input: pass -port <device>, -in <file> or pipe data to stdin (see -list)")
		}
		return &transport{name: "stdin", r: paced(io.NopCloser(os.Stdin), config.Pace)}, nil
	}
	port, err := serial.Open(config.Port, &serial.Mode{BaudRate: config.BaudRate})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", config.Port, err)
	}
	return &transport{name: config.Port, r: port, w: port}, nil
}

func (t *transport) Close() error { return t.r.Close() }

// paced returns r unchanged when pace is zero. Otherwise every Read yields at
// most one line and sleeps pace afterwards.
func paced(r io.ReadCloser, pace time.Duration) io.ReadCloser {
	if pace <= 0 {
		return r
	}
	return &pacedReader{br: bufio.NewReader(r), c: r, pace: pace}
}

type pacedReader struct {
	br   *bufio.Reader
	c    io.Closer
	pace time.Duration
}

func (p *pacedReader) Read(b []byte) (int, error) {
	n := 0
	for n < len(b) {
		c, err := p.br.ReadByte()
		if err != nil {
			return n, err
		}
		b[n] = c
		n++
		if c == '\n' {
			time.Sleep(p.pace)
			break
		}
	}
	return n, nil
}

func (p *pacedReader) Close() error { return p.c.Close() }

func defaultPortLister() ([]string, error) { return serial.GetPortsList() }

func listPorts(w io.Writer, lister func() ([]string, error)) error {
	ports, err := lister()
	if err != nil {
		return fmt.Errorf("list serial ports: %w", err)
	}
	if len(ports) == 0 {
		color.New(color.FgYellow).Fprintln(w, "no serial ports found")
		return nil
	}
	name := color.New(color.FgGreen, color.Bold)
	for _, p := range ports {
		name.Fprintln(w, p)
	}
	return nil
}
