package listener

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"github.com/oddjobs/oj/pkg/ojproto"
)

// maxFrameSize guards against a misbehaving client sending an unbounded
// length prefix, the unix-socket equivalent of the teacher's
// maxMessageSize websocket read limit.
const maxFrameSize = 8 * 1024 * 1024

// readFrame reads one length-prefixed (uint32 big-endian) JSON frame from
// r and unmarshals it into a Message. This is the only framing difference
// from the teacher's pkg/websocket: a Unix domain socket has no built-in
// message boundaries the way a websocket frame does, so the wire adds an
// explicit length prefix in front of the same JSON body.
func readFrame(r *bufio.Reader) (*ojproto.Message, error) {
	var length uint32
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return nil, err
	}
	if length == 0 || length > maxFrameSize {
		return nil, fmt.Errorf("listener: frame length %d out of bounds", length)
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	var msg ojproto.Message
	if err := json.Unmarshal(buf, &msg); err != nil {
		return nil, fmt.Errorf("listener: decode frame: %w", err)
	}
	return &msg, nil
}

// writeFrame encodes msg as JSON and writes it length-prefixed to w.
func writeFrame(w io.Writer, msg *ojproto.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("listener: encode frame: %w", err)
	}
	if len(data) > maxFrameSize {
		return fmt.Errorf("listener: outgoing frame too large (%d bytes)", len(data))
	}
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(data)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}
