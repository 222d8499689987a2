package netio

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// -------------------------------------------------------------------------
// Capture: pcap trace of BPDU traffic
// -------------------------------------------------------------------------

// Capture writes every received and transmitted BPDU frame to a pcap
// stream. It is safe for concurrent use; a nil *Capture discards frames.
type Capture struct {
	mu     sync.Mutex
	w      *pcapgo.Writer
	closer io.Closer
}

// NewCapture writes the pcap file header to w and returns a Capture.
func NewCapture(w io.Writer) (*Capture, error) {
	pw := pcapgo.NewWriter(w)
	if err := pw.WriteFileHeader(bpduSnapLen, layers.LinkTypeEthernet); err != nil {
		return nil, fmt.Errorf("write pcap header: %w", err)
	}
	c := &Capture{w: pw}
	if cl, ok := w.(io.Closer); ok {
		c.closer = cl
	}
	return c, nil
}

// CreateCapture creates (or truncates) a pcap file at path.
func CreateCapture(path string) (*Capture, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o640)
	if err != nil {
		return nil, fmt.Errorf("create capture %s: %w", path, err)
	}
	c, err := NewCapture(f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("create capture %s: %w", path, err)
	}
	return c, nil
}

// Write records one frame with the given timestamp.
func (c *Capture) Write(ts time.Time, frame []byte) error {
	if c == nil {
		return nil
	}

	ci := gopacket.CaptureInfo{
		Timestamp:     ts,
		CaptureLength: len(frame),
		Length:        len(frame),
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.w.WritePacket(ci, frame); err != nil {
		return fmt.Errorf("write pcap record: %w", err)
	}
	return nil
}

// Close closes the underlying file, if the Capture owns one.
func (c *Capture) Close() error {
	if c == nil || c.closer == nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.closer.Close(); err != nil {
		return fmt.Errorf("close capture: %w", err)
	}
	return nil
}
