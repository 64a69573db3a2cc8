package appmessage

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Frame commands.
const (
	CmdPush byte = 0x01
	CmdAck  byte = 0xFF
	CmdNack byte = 0x7F
)

// Frame is one AppMessage exchanged over the link. UUID and Dict are only
// meaningful for pushes.
type Frame struct {
	Command       byte
	TransactionID uint8
	UUID          uuid.UUID
	Dict          Dictionary
}

// MarshalBinary encodes f.
func (f Frame) MarshalBinary() ([]byte, error) {
	switch f.Command {
	case CmdAck, CmdNack:
		return []byte{f.Command, f.TransactionID}, nil
	case CmdPush:
		dict, err := f.Dict.MarshalBinary()
		if err != nil {
			return nil, err
		}
		out := make([]byte, 0, 2+16+len(dict))
		out = append(out, f.Command, f.TransactionID)
		out = append(out, f.UUID[:]...)
		return append(out, dict...), nil
	default:
		return nil, fmt.Errorf("unknown command 0x%02x", f.Command)
	}
}

// ParseFrame decodes a frame received from the watch.
func ParseFrame(b []byte) (Frame, error) {
	if len(b) < 2 {
		return Frame{}, errors.New("frame too short")
	}
	f := Frame{Command: b[0], TransactionID: b[1]}
	switch f.Command {
	case CmdAck, CmdNack:
		return f, nil
	case CmdPush:
		if len(b) < 2+16 {
			return Frame{}, errors.New("push frame missing uuid")
		}
		copy(f.UUID[:], b[2:18])
		d, n, err := UnmarshalDictionary(b[18:])
		if err != nil {
			return Frame{}, err
		}
		if 18+n != len(b) {
			return Frame{}, fmt.Errorf("push frame has %d trailing bytes", len(b)-18-n)
		}
		f.Dict = d
		return f, nil
	default:
		return Frame{}, fmt.Errorf("unknown command 0x%02x", f.Command)
	}
}
