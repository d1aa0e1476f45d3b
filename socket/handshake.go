package socket

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/luca-patrignani/procomm/stream"
)

// hello is what each end announces during the handshake.
type hello struct {
	endian  stream.Endian
	version int32
	hash    []byte
	wideIDs bool
}

// Handshake runs the connection handshake. The server receives the client's
// announcement before sending its own; the client does the opposite. Both
// ends then validate what they received, so both report the same mismatch.
func (c *Communicator) Handshake(server bool) error {
	local := hello{endian: c.endian, version: ProtocolVersion, hash: c.hash, wideIDs: c.wideIDs}
	var remote hello
	var err error
	if server {
		if remote, err = c.receiveHello(); err == nil {
			err = c.sendHello(local)
		}
	} else {
		if err = c.sendHello(local); err == nil {
			remote, err = c.receiveHello()
		}
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrHandshake, err)
	}
	if err := c.validate(local, remote); err != nil {
		c.logger.Error("handshake rejected", "remote", c.conn.RemoteAddr(), "error", err)
		return err
	}
	c.swap = remote.endian != local.endian
	c.logger.Debug("handshake complete", "remote", c.conn.RemoteAddr(), "swap", c.swap)
	return nil
}

func (c *Communicator) sendHello(h hello) error {
	version := byteOrder(h.endian).AppendUint32(nil, uint32(h.version))
	wide := byte(4)
	if h.wideIDs {
		wide = 8
	}
	return errors.Join(
		c.writeMessage(EndianTag, []byte{byte(h.endian)}),
		c.writeMessage(VersionTag, version),
		c.writeMessage(HashTag, h.hash),
		c.writeMessage(IDTypeSizeTag, []byte{wide}),
	)
}

func (c *Communicator) receiveHello() (hello, error) {
	var h hello
	b, err := c.expect(EndianTag, 1)
	if err != nil {
		return h, err
	}
	h.endian = stream.Endian(b[0])
	if h.endian != stream.BigEndian && h.endian != stream.LittleEndian {
		return h, fmt.Errorf("%w: endianness marker %d", ErrProtocol, b[0])
	}
	if b, err = c.expect(VersionTag, 4); err != nil {
		return h, err
	}
	h.version = int32(byteOrder(h.endian).Uint32(b))
	if h.hash, err = c.expect(HashTag, -1); err != nil {
		return h, err
	}
	if b, err = c.expect(IDTypeSizeTag, 1); err != nil {
		return h, err
	}
	h.wideIDs = b[0] == 8
	return h, nil
}

// byteOrder is the order an end announcing e writes its handshake integers in.
func byteOrder(e stream.Endian) interface {
	binary.ByteOrder
	binary.AppendByteOrder
} {
	if e == stream.BigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// expect reads the next message, which must carry tag and, unless size is
// negative, exactly size bytes.
func (c *Communicator) expect(tag, size int) ([]byte, error) {
	actual, payload, err := c.readMessage()
	if err != nil {
		return nil, err
	}
	if actual != tag {
		return nil, fmt.Errorf("%w: expected handshake tag %d, received %d", ErrWrongTag, tag, actual)
	}
	if size >= 0 && len(payload) != size {
		return nil, fmt.Errorf("%w: handshake message with tag %d has %d bytes, want %d", ErrProtocol, tag, len(payload), size)
	}
	return payload, nil
}

func (c *Communicator) validate(local, remote hello) error {
	var errs []error
	if remote.version != local.version {
		errs = append(errs, fmt.Errorf("protocol version %d, remote has %d", local.version, remote.version))
	}
	if !bytes.Equal(remote.hash, local.hash) {
		errs = append(errs, fmt.Errorf("protocol hash %x, remote has %x", local.hash, remote.hash))
	}
	if remote.wideIDs != local.wideIDs {
		errs = append(errs, fmt.Errorf("64 bit identifiers %t, remote has %t", local.wideIDs, remote.wideIDs))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrHandshake, errors.Join(errs...))
	}
	return nil
}
