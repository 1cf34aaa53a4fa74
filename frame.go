package usftp

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// sendFrame writes a length-prefixed message: a 4-byte big-endian length
// followed by body, matching the C source's send_msg. It is the client's
// only write path, so every request goes through here.
func sendFrame(w io.Writer, body []byte) error {
	if len(body) > sftpMaxMsgLength {
		return &ProtocolError{cause: errors.Errorf("outbound message too long: %d bytes", len(body))}
	}
	frame := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(frame, uint32(len(body)))
	copy(frame[4:], body)

	for written := 0; written < len(frame); {
		n, err := w.Write(frame[written:])
		if err != nil {
			return &ConnError{cause: errors.Wrap(err, "write frame")}
		}
		written += n
	}
	return nil
}

// recvFrame reads one length-prefixed message and returns its body,
// matching the C source's get_msg. EOF and closed-pipe errors are reported
// as a *ConnError (recoverable at the connection level, per spec §7.1).
func recvFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, &ConnError{cause: errors.Wrap(err, "connection closed")}
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > sftpMaxMsgLength {
		return nil, &ProtocolError{cause: errors.Errorf("received message too long: %d bytes", n)}
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, &ConnError{cause: errors.Wrap(err, "connection closed")}
	}
	return body, nil
}
