package protocol

import (
	"encoding/binary"
	"io"
)

// ReadFrame reads exactly one frame from r. The wire format is
// self-delimiting: each command's fixed header carries whatever length
// fields are needed to know how many further bytes to read, so no outer
// message framing is required. This lets the same decoder run over a raw
// TCP stream or over a websocket connection's Read method.
func ReadFrame(r io.Reader) (Frame, error) {
	var tag [1]byte
	if _, err := io.ReadFull(r, tag[:]); err != nil {
		return Frame{}, err
	}
	cmd := Command(tag[0])

	switch cmd {
	case CmdConnect:
		var hdr [8]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			return Frame{}, err
		}
		id := StreamId(binary.BigEndian.Uint32(hdr[0:4]))
		port := binary.BigEndian.Uint16(hdr[4:6])
		hostLen := int(binary.BigEndian.Uint16(hdr[6:8]))
		host := make([]byte, hostLen)
		if _, err := io.ReadFull(r, host); err != nil {
			return Frame{}, err
		}
		return Frame{Command: CmdConnect, StreamId: id, Host: string(host), Port: port}, nil

	case CmdData, CmdDNSQuery, CmdDNSResponse:
		var hdr [8]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			return Frame{}, err
		}
		id := StreamId(binary.BigEndian.Uint32(hdr[0:4]))
		payloadLen := binary.BigEndian.Uint32(hdr[4:8])
		if payloadLen > MaxFrameSize {
			return Frame{}, ErrFrameTooLarge
		}
		payload := make([]byte, payloadLen)
		if _, err := io.ReadFull(r, payload); err != nil {
			return Frame{}, err
		}
		return Frame{Command: cmd, StreamId: id, Payload: payload}, nil

	case CmdClose:
		var hdr [4]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			return Frame{}, err
		}
		id := StreamId(binary.BigEndian.Uint32(hdr[0:4]))
		return Frame{Command: CmdClose, StreamId: id}, nil

	case CmdErrorReply:
		var hdr [8]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			return Frame{}, err
		}
		id := StreamId(binary.BigEndian.Uint32(hdr[0:4]))
		code := binary.BigEndian.Uint16(hdr[4:6])
		msgLen := int(binary.BigEndian.Uint16(hdr[6:8]))
		msg := make([]byte, msgLen)
		if _, err := io.ReadFull(r, msg); err != nil {
			return Frame{}, err
		}
		return Frame{Command: CmdErrorReply, StreamId: id, Code: code, Message: string(msg)}, nil

	case CmdPing:
		return Frame{Command: CmdPing}, nil
	case CmdPong:
		return Frame{Command: CmdPong}, nil

	default:
		return Frame{}, ErrInvalidCommand
	}
}

// WriteFrame encodes f and writes it to w in a single Write call, so that
// transports which preserve message boundaries (e.g. a websocket
// connection) emit exactly one wire message per frame.
func WriteFrame(w io.Writer, f Frame) error {
	b, err := Encode(f)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}
