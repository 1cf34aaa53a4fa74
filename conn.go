package usftp

import (
	"io"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	defaultTransferBuflen = 32768
	defaultNumRequests    = 64
)

// Conn is a live SFTP connection: the negotiated protocol state plus the
// two byte streams it speaks over (spec's SftpConn). A Conn is not safe
// for concurrent use — exactly one operation may be in flight at a time,
// because the id space and the underlying stream are shared (spec §5).
//
// Once an operation fails with a *ConnError, or with a *ProtocolError for
// an oversized frame, a reply id that matches no request, or an unexpected
// reply type, the Conn is poisoned: every subsequent call returns that
// same error immediately without touching the wire. A *ProtocolError for
// a reply body too short for its fields does not poison the Conn.
type Conn struct {
	in  io.Reader
	out io.Writer

	version        uint32
	transferBuflen uint32
	numRequests    uint32
	msgID          uint32
	exts           extensionSet

	logger *logrus.Logger

	err error
}

// Option configures a Conn at construction time.
type Option func(*Conn)

// WithTransferBuflen overrides the default maximum payload size per
// read/write request issued by Download/Upload.
func WithTransferBuflen(n uint32) Option {
	return func(c *Conn) { c.transferBuflen = n }
}

// WithNumRequests overrides the default pipeline window depth used by
// Download/Upload.
func WithNumRequests(n uint32) Option {
	return func(c *Conn) { c.numRequests = n }
}

// WithLogger injects a logging sink. The default is logrus's standard
// logger; callers that want silence can pass a logger with output
// discarded.
func WithLogger(l *logrus.Logger) Option {
	return func(c *Conn) { c.logger = l }
}

// NewConn performs the SFTP handshake (SSH_FXP_INIT/SSH_FXP_VERSION) over
// in/out and returns a ready-to-use Conn. in and out must already be
// connected to a remote sftp-server; obtaining them (an SSH subsystem
// channel, a subprocess's stdio) is the caller's responsibility.
func NewConn(in io.Reader, out io.Writer, opts ...Option) (*Conn, error) {
	c := &Conn{
		in:             in,
		out:            out,
		transferBuflen: defaultTransferBuflen,
		numRequests:    defaultNumRequests,
		msgID:          1,
		logger:         logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}

	initBody := putUint32([]byte{fxpInit}, 3)
	if err := sendFrame(c.out, initBody); err != nil {
		return nil, err
	}

	respBody, err := recvFrame(c.in)
	if err != nil {
		return nil, err
	}
	rb := newBuffer(respBody)
	typ, err := rb.getUint8()
	if err != nil {
		return nil, err
	}
	if typ != fxpVersion {
		return nil, &ProtocolError{cause: errors.Errorf("expected SSH_FXP_VERSION in response to SSH_FXP_INIT, got type %d", typ)}
	}
	version, err := rb.getUint32()
	if err != nil {
		return nil, err
	}
	c.version = version

	for rb.len() > 0 {
		name, err := rb.getString()
		if err != nil {
			return nil, err
		}
		value, err := rb.getString()
		if err != nil {
			return nil, err
		}
		known := false
		if name == "posix-rename@openssh.com" && value == "1" {
			c.exts |= extPosixRename
			known = true
		}
		if name == "statvfs@openssh.com" && value == "2" {
			c.exts |= extStatVfs
			known = true
		}
		if name == "fstatvfs@openssh.com" && value == "2" {
			c.exts |= extFStatVfs
			known = true
		}
		if known {
			c.logger.Debugf("sftp: server supports extension %q revision %s", name, value)
		} else {
			c.logger.Debugf("sftp: unrecognized server extension %q", name)
		}
	}

	// Some filexfer v.0 servers don't support large packets.
	if version == 0 && c.transferBuflen > legacyTransferBuflen {
		c.transferBuflen = legacyTransferBuflen
	}

	return c, nil
}

// ProtoVersion returns the protocol version negotiated with the server.
func (c *Conn) ProtoVersion() uint32 { return c.version }

// HasPosixRename reports whether the server advertised
// posix-rename@openssh.com.
func (c *Conn) HasPosixRename() bool { return c.exts&extPosixRename != 0 }

func (c *Conn) hasExt(e extensionSet) bool { return c.exts&e != 0 }

func (c *Conn) poison(err error) error {
	if c.err == nil {
		c.err = err
	}
	return err
}

func (c *Conn) nextID() uint32 {
	id := c.msgID
	c.msgID++
	return id
}

// roundTrip sends one request (opcode, a fresh id, then payload) and
// returns the decoded reply type, the echoed id, and the remaining reply
// body for the caller to decode further. Any I/O failure or id mismatch
// poisons the Conn.
func (c *Conn) roundTrip(opcode uint8, payload []byte) (respType uint8, body *buffer, err error) {
	if c.err != nil {
		return 0, nil, c.err
	}
	id := c.nextID()
	return c.roundTripWithID(opcode, id, payload)
}

// roundTripWithID is roundTrip with caller-supplied id, used by the bulk
// transfer engines which must track ids across multiple outstanding
// requests themselves.
func (c *Conn) roundTripWithID(opcode uint8, id uint32, payload []byte) (respType uint8, body *buffer, err error) {
	if c.err != nil {
		return 0, nil, c.err
	}
	req := make([]byte, 0, 5+len(payload))
	req = putUint8(req, opcode)
	req = putUint32(req, id)
	req = append(req, payload...)
	if err := sendFrame(c.out, req); err != nil {
		return 0, nil, c.poison(err)
	}
	return c.recvReply(id)
}

// sendOnly writes a request without blocking for its reply; used by the
// pipelined transfer engines to issue several requests before draining
// replies.
func (c *Conn) sendOnly(opcode uint8, id uint32, payload []byte) error {
	if c.err != nil {
		return c.err
	}
	req := make([]byte, 0, 5+len(payload))
	req = putUint8(req, opcode)
	req = putUint32(req, id)
	req = append(req, payload...)
	if err := sendFrame(c.out, req); err != nil {
		return c.poison(err)
	}
	return nil
}

// recvReply reads one reply and verifies its id against expectedID. A
// mismatch is a recoverable *ProtocolError that poisons the Conn (Design
// Notes: the id-mismatch policy is unified to recoverable-with-poisoning
// across every call site, rather than the source's fatal-here,
// recoverable-there split).
func (c *Conn) recvReply(expectedID uint32) (respType uint8, body *buffer, err error) {
	if c.err != nil {
		return 0, nil, c.err
	}
	raw, err := recvFrame(c.in)
	if err != nil {
		return 0, nil, c.poison(err)
	}
	rb := newBuffer(raw)
	typ, err := rb.getUint8()
	if err != nil {
		return 0, nil, c.poison(err)
	}
	id, err := rb.getUint32()
	if err != nil {
		return 0, nil, c.poison(err)
	}
	if id != expectedID {
		return 0, nil, c.poison(&ProtocolError{cause: errors.Errorf("id mismatch (%d != %d)", id, expectedID)})
	}
	return typ, rb, nil
}

// recvAny reads one reply without checking its id against any particular
// expectation, returning the id alongside the decoded type and body. Used
// by the pipelined transfer engines (Download/Upload), which issue several
// requests ahead of their replies and match a reply to its request by id
// (spec §4.6, §5) rather than assuming replies arrive in request order —
// the server is free to complete them out of order.
func (c *Conn) recvAny() (respType uint8, id uint32, body *buffer, err error) {
	if c.err != nil {
		return 0, 0, nil, c.err
	}
	raw, err := recvFrame(c.in)
	if err != nil {
		return 0, 0, nil, c.poison(err)
	}
	rb := newBuffer(raw)
	typ, err := rb.getUint8()
	if err != nil {
		return 0, 0, nil, c.poison(err)
	}
	id, err = rb.getUint32()
	if err != nil {
		return 0, 0, nil, c.poison(err)
	}
	return typ, id, rb, nil
}

// decodeStatus decodes a SSH_FXP_STATUS body into a *StatusError, or nil
// if the code is SSH_FX_OK.
func decodeStatus(body *buffer) error {
	code, err := body.getUint32()
	if err != nil {
		return err
	}
	msg, err := body.getString()
	if err != nil {
		return err
	}
	lang, err := body.getString()
	if err != nil {
		return err
	}
	if code == sshFxOk {
		return nil
	}
	return &StatusError{Code: code, Msg: msg, Lang: lang}
}

// expectStatus rounds-trips a request that is expected to produce only a
// SSH_FXP_STATUS reply (mkdir, rmdir, remove, rename, symlink, setstat,
// fsetstat, close).
func (c *Conn) expectStatus(opcode uint8, payload []byte) error {
	typ, body, err := c.roundTrip(opcode, payload)
	if err != nil {
		return err
	}
	if typ != fxpStatus {
		return c.poison(&ProtocolError{cause: errors.Errorf("expected SSH_FXP_STATUS(%d), got %d", fxpStatus, typ)})
	}
	return decodeStatus(body)
}
