package usftp

import (
	"fmt"

	"github.com/pkg/errors"
)

// fxText renders an SSH_FX_* status code the way OpenSSH's fx2txt does.
var fxText = map[uint32]string{
	sshFxOk:               "Success",
	sshFxEOF:              "End of file",
	sshFxNoSuchFile:       "No such file or directory",
	sshFxPermissionDenied: "Permission denied",
	sshFxFailure:          "Failure",
	sshFxBadMessage:       "Bad message",
	sshFxNoConnection:     "No connection",
	sshFxConnectionLost:   "Connection lost",
	sshFxOpUnsupported:    "Operation unsupported",
}

func fx2txt(code uint32) string {
	if s, ok := fxText[code]; ok {
		return s
	}
	return fmt.Sprintf("Unknown status %d", code)
}

// StatusError wraps a SSH_FXP_STATUS reply whose code was not SSH_FX_OK.
// These are expected, per-operation outcomes (spec §7.3), not protocol
// violations.
type StatusError struct {
	Code uint32
	Msg  string
	Lang string
}

func (e *StatusError) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("sftp: %s (%s)", fx2txt(e.Code), e.Msg)
	}
	return fmt.Sprintf("sftp: %s", fx2txt(e.Code))
}

// IsEOF reports whether err is a *StatusError carrying SSH_FX_EOF.
func IsEOF(err error) bool {
	se, ok := err.(*StatusError)
	return ok && se.Code == sshFxEOF
}

// ProtocolError indicates a wire-level violation: an unexpected opcode, a
// reply id with no matching request, or a message larger than it claimed
// to hold. The Conn that produced it is poisoned and must not be reused.
//
// cause is built with errors.Errorf/errors.Wrap so it carries a stack
// trace and can be unwrapped to its root with errors.Cause, while Error
// still renders the short message callers log.
type ProtocolError struct {
	cause error
}

func (e *ProtocolError) Error() string { return "sftp: protocol error: " + e.cause.Error() }
func (e *ProtocolError) Unwrap() error { return e.cause }

// ConnError wraps an I/O failure on the underlying streams: EOF, a closed
// pipe, or any other transport error. Recoverable at the protocol layer —
// cleanup is the caller's responsibility.
type ConnError struct {
	cause error
}

func (e *ConnError) Error() string { return "sftp: connection error: " + e.cause.Error() }
func (e *ConnError) Unwrap() error { return e.cause }

// ErrClosedConn is a *ProtocolError describing a Conn that is no longer
// usable. No operation in this package returns it: a poisoned Conn
// returns the error that poisoned it.
var ErrClosedConn = &ProtocolError{cause: errors.New("connection is no longer usable")}
