package comm

import (
	"fmt"

	"github.com/luca-patrignani/procomm/stream"
)

// SendStream sends the raw data of s as a length message followed by the
// bytes.
func (c *Communicator) SendStream(s *stream.Stream, dest, tag int) error {
	raw := s.RawData()
	if err := Send(c, []int64{int64(len(raw))}, dest, tag); err != nil {
		return fmt.Errorf("send stream length: %w", err)
	}
	return c.Send(raw, Char, dest, tag)
}

// ReceiveStream replaces the content of s with a stream sent by SendStream.
// Byte order differences with the sender are resolved by s.
func (c *Communicator) ReceiveStream(s *stream.Stream, source, tag int) error {
	length := make([]int64, 1)
	if _, err := Receive(c, length, source, tag); err != nil {
		return fmt.Errorf("receive stream length: %w", err)
	}
	raw := make([]byte, length[0])
	if err := c.Receive(raw, Char, c.LastSource(), tag); err != nil {
		return err
	}
	return s.SetRawData(raw[:c.Count()])
}

// BroadcastStream replaces s on every rank with s of rank root.
func (c *Communicator) BroadcastStream(s *stream.Stream, root int) error {
	var raw []byte
	if c.Rank() == root {
		raw = s.RawData()
	}
	length := []int64{int64(len(raw))}
	if err := Broadcast(c, length, root); err != nil {
		return fmt.Errorf("broadcast stream length: %w", err)
	}
	if c.Rank() != root {
		raw = make([]byte, length[0])
	}
	if err := c.Broadcast(raw, Char, root); err != nil {
		return err
	}
	if c.Rank() == root {
		return nil
	}
	return s.SetRawData(raw)
}
