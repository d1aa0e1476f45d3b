package controller

import (
	"encoding/binary"
	"errors"
	"fmt"
	"slices"

	"github.com/luca-patrignani/procomm/comm"
)

// Tags of the control messages.
const (
	RMITag      = 315167
	RMIArgTag   = 315168
	BreakRMITag = 239954
)

// A trigger message is a header of four little-endian int32 (tag, argument
// length, source rank, propagate flag) followed by the argument when it
// fits in the remaining capacity. Longer arguments follow in a message
// tagged RMIArgTag.
const (
	triggerSize    = 128
	headerSize     = 16
	inlineCapacity = triggerSize - headerSize
)

// RMIFunc is invoked with the local argument given at registration, the
// argument sent by the triggering rank and the rank of that process.
type RMIFunc func(localArg any, remoteArg []byte, remoteProcessID int)

type callback struct {
	id       int
	fn       RMIFunc
	localArg any
}

type trigger struct {
	tag       int
	length    int
	source    int
	propagate bool
}

func (t trigger) encode(arg []byte) []byte {
	b := make([]byte, headerSize, triggerSize)
	binary.LittleEndian.PutUint32(b[0:], uint32(int32(t.tag)))
	binary.LittleEndian.PutUint32(b[4:], uint32(int32(t.length)))
	binary.LittleEndian.PutUint32(b[8:], uint32(int32(t.source)))
	if t.propagate {
		binary.LittleEndian.PutUint32(b[12:], 1)
	}
	if len(arg) <= inlineCapacity {
		b = append(b, arg...)
	}
	return b
}

func decodeTrigger(b []byte) (trigger, error) {
	if len(b) < headerSize {
		return trigger{}, fmt.Errorf("trigger message of %d bytes", len(b))
	}
	t := trigger{
		tag:       int(int32(binary.LittleEndian.Uint32(b[0:]))),
		length:    int(int32(binary.LittleEndian.Uint32(b[4:]))),
		source:    int(int32(binary.LittleEndian.Uint32(b[8:]))),
		propagate: binary.LittleEndian.Uint32(b[12:]) != 0,
	}
	if t.length < 0 || (t.length <= inlineCapacity && len(b) != headerSize+t.length) {
		return trigger{}, fmt.Errorf("trigger message of %d bytes announces an argument of %d", len(b), t.length)
	}
	return t, nil
}

// AddRMICallback registers fn for tag after the callbacks already
// registered for it and returns an identifier for RemoveRMICallback.
func (c *Controller) AddRMICallback(tag int, fn RMIFunc, localArg any) int {
	c.nextID++
	c.rmis[tag] = append(c.rmis[tag], callback{id: c.nextID, fn: fn, localArg: localArg})
	return c.nextID
}

// AddRMI makes fn the only callback of tag.
func (c *Controller) AddRMI(tag int, fn RMIFunc, localArg any) int {
	c.RemoveAllRMICallbacks(tag)
	return c.AddRMICallback(tag, fn, localArg)
}

// RemoveRMICallback removes the callback with the given identifier and
// reports whether it existed. The callback stopping ProcessRMIs cannot be
// removed.
func (c *Controller) RemoveRMICallback(id int) bool {
	if id == c.breakID {
		return false
	}
	for tag, cbs := range c.rmis {
		if i := slices.IndexFunc(cbs, func(cb callback) bool { return cb.id == id }); i >= 0 {
			c.setCallbacks(tag, slices.Delete(cbs, i, i+1))
			return true
		}
	}
	return false
}

// RemoveFirstRMI removes the oldest removable callback of tag.
func (c *Controller) RemoveFirstRMI(tag int) bool {
	for _, cb := range c.rmis[tag] {
		if cb.id != c.breakID {
			return c.RemoveRMICallback(cb.id)
		}
	}
	return false
}

// RemoveAllRMICallbacks removes every removable callback of tag.
func (c *Controller) RemoveAllRMICallbacks(tag int) {
	c.setCallbacks(tag, slices.DeleteFunc(c.rmis[tag], func(cb callback) bool {
		return cb.id != c.breakID
	}))
}

func (c *Controller) setCallbacks(tag int, cbs []callback) {
	if len(cbs) == 0 {
		delete(c.rmis, tag)
		return
	}
	c.rmis[tag] = cbs
}

// Callbacks is the number of callbacks registered for tag.
func (c *Controller) Callbacks(tag int) int {
	return len(c.rmis[tag])
}

// TriggerRMI invokes the callbacks of tag on rank remote with arg. When
// remote is the calling rank the callbacks run immediately without any
// communication.
func (c *Controller) TriggerRMI(remote int, arg []byte, tag int) error {
	if tag == BreakRMITag {
		return fmt.Errorf("%w: %d is used by TriggerBreakRMIs", ErrReservedTag, tag)
	}
	return c.triggerRMI(remote, arg, tag, false)
}

func (c *Controller) triggerRMI(remote int, arg []byte, tag int, propagate bool) error {
	if remote == c.rmi.Rank() {
		return c.processRMI(remote, arg, tag)
	}
	t := trigger{tag: tag, length: len(arg), source: c.rmi.Rank(), propagate: propagate}
	if err := c.rmi.Send(t.encode(arg), comm.Char, remote, RMITag); err != nil {
		return fmt.Errorf("trigger rmi %d on %d: %w", tag, remote, err)
	}
	if len(arg) > inlineCapacity {
		if err := c.rmi.Send(arg, comm.Char, remote, RMIArgTag); err != nil {
			return fmt.Errorf("trigger rmi %d on %d: argument: %w", tag, remote, err)
		}
	}
	return nil
}

// TriggerRMIOnAllChildren invokes the callbacks of tag on every descendant
// of the calling rank in the binary tree where rank r has children 2r+1
// and 2r+2. Receivers forward the message to their own children. In
// broadcast mode the message is broadcast from rank 0 instead, and only
// rank 0 may call it.
func (c *Controller) TriggerRMIOnAllChildren(arg []byte, tag int) error {
	if tag == BreakRMITag {
		return fmt.Errorf("%w: %d is used by TriggerBreakRMIs", ErrReservedTag, tag)
	}
	return c.triggerOnAllChildren(trigger{tag: tag, length: len(arg), source: c.rmi.Rank(), propagate: true}, arg)
}

func (c *Controller) triggerOnAllChildren(t trigger, arg []byte) error {
	if c.broadcastTrigger {
		if c.rmi.Rank() != 0 {
			return fmt.Errorf("%w: broadcast trigger from rank %d", ErrNotRoot, c.rmi.Rank())
		}
		return c.broadcastRMI(t, arg)
	}
	return c.triggerOnChildren(t, arg)
}

func (c *Controller) triggerOnChildren(t trigger, arg []byte) error {
	rank := c.rmi.Rank()
	for _, child := range []int{2*rank + 1, 2*rank + 2} {
		if child >= c.rmi.Size() {
			break
		}
		if err := c.rmi.Send(t.encode(arg), comm.Char, child, RMITag); err != nil {
			return fmt.Errorf("trigger rmi %d on child %d: %w", t.tag, child, err)
		}
		if len(arg) > inlineCapacity {
			if err := c.rmi.Send(arg, comm.Char, child, RMIArgTag); err != nil {
				return fmt.Errorf("trigger rmi %d on child %d: argument: %w", t.tag, child, err)
			}
		}
	}
	return nil
}

func (c *Controller) broadcastRMI(t trigger, arg []byte) error {
	msg := make([]byte, triggerSize)
	copy(msg, t.encode(arg))
	if err := c.rmi.Broadcast(msg, comm.Char, 0); err != nil {
		return fmt.Errorf("broadcast rmi %d: %w", t.tag, err)
	}
	if len(arg) > inlineCapacity {
		if err := c.rmi.Broadcast(arg, comm.Char, 0); err != nil {
			return fmt.Errorf("broadcast rmi %d: argument: %w", t.tag, err)
		}
	}
	return nil
}

// TriggerBreakRMIs stops ProcessRMIs on every other rank. Only rank 0 may
// call it.
func (c *Controller) TriggerBreakRMIs() error {
	if c.rmi.Rank() != 0 {
		return fmt.Errorf("%w: break from rank %d", ErrNotRoot, c.rmi.Rank())
	}
	if c.broadcastTrigger {
		return c.broadcastRMI(trigger{tag: BreakRMITag, source: 0}, nil)
	}
	for i := 1; i < c.rmi.Size(); i++ {
		if err := c.triggerRMI(i, nil, BreakRMITag, false); err != nil {
			return err
		}
	}
	return nil
}

// BreakProcessRMIs makes ProcessRMIs return after the current dispatch.
func (c *Controller) BreakProcessRMIs() {
	c.breakFlag = true
}

// ProcessRMIs receives trigger messages and runs the callbacks they name,
// one message when dontLoop is set and otherwise until a break arrives. A
// message for a tag without callbacks is skipped: it is logged when
// reportErrors is set and returned, wrapping ErrNoHandler, once processing
// ends. Any other failure stops processing immediately.
func (c *Controller) ProcessRMIs(reportErrors, dontLoop bool) error {
	var unhandled []error
	for {
		err := c.processNext()
		if err != nil && reportErrors {
			c.logger.Error("processing rmi failed", "rank", c.rmi.Rank(), "error", err)
		}
		switch {
		case errors.Is(err, ErrNoHandler):
			unhandled = append(unhandled, err)
		case err != nil:
			c.breakFlag = false
			return errors.Join(append(unhandled, err)...)
		}
		if c.breakFlag || dontLoop {
			c.breakFlag = false
			return errors.Join(unhandled...)
		}
	}
}

func (c *Controller) processNext() error {
	msg := make([]byte, triggerSize)
	var t trigger
	var err error
	source := comm.AnySource
	if c.broadcastTrigger {
		if err := c.rmi.Broadcast(msg, comm.Char, 0); err != nil {
			return fmt.Errorf("receive rmi broadcast: %w", err)
		}
		if n := int(int32(binary.LittleEndian.Uint32(msg[4:]))); n >= 0 && n <= inlineCapacity {
			msg = msg[:headerSize+n]
		} else {
			msg = msg[:headerSize]
		}
	} else {
		if err := c.rmi.Receive(msg, comm.Char, comm.AnySource, RMITag); err != nil {
			return fmt.Errorf("receive rmi: %w", err)
		}
		msg = msg[:c.rmi.Count()]
		source = c.rmi.LastSource()
	}
	if t, err = decodeTrigger(msg); err != nil {
		return err
	}
	arg := msg[headerSize:]
	if t.length > inlineCapacity {
		arg = make([]byte, t.length)
		if c.broadcastTrigger {
			err = c.rmi.Broadcast(arg, comm.Char, 0)
		} else {
			err = c.rmi.Receive(arg, comm.Char, source, RMIArgTag)
		}
		if err != nil {
			return fmt.Errorf("receive argument of rmi %d: %w", t.tag, err)
		}
	}
	remote := t.source
	if !t.propagate && source != comm.AnySource {
		remote = source
	}
	if t.propagate && !c.broadcastTrigger && c.rmi.Size() > 3 {
		if err := c.triggerOnChildren(t, arg); err != nil {
			return err
		}
	}
	return c.processRMI(remote, arg, t.tag)
}

func (c *Controller) processRMI(remote int, arg []byte, tag int) error {
	cbs := c.rmis[tag]
	if len(cbs) == 0 {
		return fmt.Errorf("%w: %d triggered by %d", ErrNoHandler, tag, remote)
	}
	c.logger.Debug("dispatching rmi", "rank", c.rmi.Rank(), "tag", tag, "source", remote, "callbacks", len(cbs))
	for _, cb := range slices.Clone(cbs) {
		cb.fn(cb.localArg, arg, remote)
	}
	return nil
}
