package usftp

import (
	"context"

	"github.com/pkg/errors"
)

// Close releases a handle returned by Open or ReadDir's internal opendir.
func (c *Conn) Close(ctx context.Context, handle string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.expectStatus(fxpClose, putString(nil, handle))
}

// Remove deletes a single file. It must not be used on directories; use
// Rmdir for those.
func (c *Conn) Remove(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.expectStatus(fxpRemove, putString(nil, path))
}

// Mkdir creates a directory. attrs may be the zero Attrib to request
// server-default permissions.
func (c *Conn) Mkdir(ctx context.Context, path string, attrs Attrib) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload := putString(nil, path)
	payload = encodeAttrib(payload, attrs)
	return c.expectStatus(fxpMkdir, payload)
}

// Rmdir removes an empty directory.
func (c *Conn) Rmdir(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.expectStatus(fxpRmdir, putString(nil, path))
}

// statLike implements both Stat and Lstat: they differ only in opcode
// (and, at protocol version 0, Lstat falls back to the single SSH_FXP_STAT
// opcode that version predates the split on).
func (c *Conn) statLike(opcode uint8, path string) (Attrib, error) {
	typ, body, err := c.roundTrip(opcode, putString(nil, path))
	if err != nil {
		return Attrib{}, err
	}
	switch typ {
	case fxpAttrs:
		return decodeAttrib(body)
	case fxpStatus:
		return Attrib{}, decodeStatus(body)
	default:
		return Attrib{}, c.poison(&ProtocolError{cause: errors.Errorf("unexpected reply type %d to stat", typ)})
	}
}

// Stat follows symlinks (SSH_FXP_STAT). quiet suppresses the debug log
// line Stat writes when the request fails; it changes neither the wire
// behavior nor the returned error.
func (c *Conn) Stat(ctx context.Context, path string, quiet bool) (Attrib, error) {
	if err := ctx.Err(); err != nil {
		return Attrib{}, err
	}
	a, err := c.statLike(fxpStat, path)
	if err != nil && !quiet {
		c.logger.WithError(err).Debugf("sftp: stat %q failed", path)
	}
	return a, err
}

// Lstat does not follow symlinks (SSH_FXP_LSTAT). Protocol version 0 has
// no distinct LSTAT opcode, so this falls back to STAT on that version,
// matching the source's do_lstat.
func (c *Conn) Lstat(ctx context.Context, path string, quiet bool) (Attrib, error) {
	if err := ctx.Err(); err != nil {
		return Attrib{}, err
	}
	var a Attrib
	var err error
	if c.version == 0 {
		a, err = c.statLike(fxpStatVersion0, path)
	} else {
		a, err = c.statLike(fxpLstat, path)
	}
	if err != nil && !quiet {
		c.logger.WithError(err).Debugf("sftp: lstat %q failed", path)
	}
	return a, err
}

// Setstat changes attributes of a path.
func (c *Conn) Setstat(ctx context.Context, path string, attrs Attrib) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload := putString(nil, path)
	payload = encodeAttrib(payload, attrs)
	return c.expectStatus(fxpSetstat, payload)
}

// Fsetstat changes attributes of an already-open handle.
func (c *Conn) Fsetstat(ctx context.Context, handle string, attrs Attrib) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload := putString(nil, handle)
	payload = encodeAttrib(payload, attrs)
	return c.expectStatus(fxpFsetstat, payload)
}

// Realpath resolves path to a canonical absolute path on the server.
func (c *Conn) Realpath(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	typ, body, err := c.roundTrip(fxpRealpath, putString(nil, path))
	if err != nil {
		return "", err
	}
	switch typ {
	case fxpName:
		count, err := body.getUint32()
		if err != nil {
			return "", err
		}
		if count != 1 {
			return "", c.poison(&ProtocolError{cause: errors.Errorf("realpath returned %d names, want 1", count)})
		}
		name, err := body.getString()
		if err != nil {
			return "", err
		}
		// Longname and attrs follow but are unused by realpath callers.
		return name, nil
	case fxpStatus:
		return "", decodeStatus(body)
	default:
		return "", c.poison(&ProtocolError{cause: errors.Errorf("unexpected reply type %d to realpath", typ)})
	}
}

// Rename renames oldpath to newpath. If the server advertised
// posix-rename@openssh.com, that extension is used so the rename can
// atomically replace an existing newpath; otherwise the plain
// SSH_FXP_RENAME request is sent, which most servers refuse if newpath
// already exists.
func (c *Conn) Rename(ctx context.Context, oldpath, newpath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload := putString(nil, oldpath)
	payload = putString(payload, newpath)
	if c.HasPosixRename() {
		req := putString(nil, "posix-rename@openssh.com")
		req = putString(req, oldpath)
		req = putString(req, newpath)
		return c.expectStatus(fxpExtended, req)
	}
	return c.expectStatus(fxpRename, payload)
}

// Symlink creates linkpath as a symbolic link to target. SSH_FXP_SYMLINK
// was not defined before protocol version 3; on an older server this
// returns a *StatusError carrying SSH_FX_OP_UNSUPPORTED without sending
// anything, matching the source's do_symlink guard.
func (c *Conn) Symlink(ctx context.Context, target, linkpath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.version < 3 {
		return &StatusError{Code: sshFxOpUnsupported, Msg: "SSH_FXP_SYMLINK requires protocol version 3"}
	}
	// OpenSSH's sftp-server has always swapped the two arguments from
	// what the protocol draft specifies; real servers expect (target,
	// linkpath) on the wire to match the symlink(2) calling convention,
	// so that's what gets sent here for interop.
	payload := putString(nil, target)
	payload = putString(payload, linkpath)
	return c.expectStatus(fxpSymlink, payload)
}

// Open issues SSH_FXP_OPEN and returns the resulting handle. pflags is an
// OR of the Open* constants; attrs applies when pflags includes OpenCreat.
func (c *Conn) Open(ctx context.Context, path string, pflags uint32, attrs Attrib) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	payload := putString(nil, path)
	payload = putUint32(payload, pflags)
	payload = encodeAttrib(payload, attrs)
	typ, body, err := c.roundTrip(fxpOpen, payload)
	if err != nil {
		return "", err
	}
	switch typ {
	case fxpHandle:
		return body.getString()
	case fxpStatus:
		return "", decodeStatus(body)
	default:
		return "", c.poison(&ProtocolError{cause: errors.Errorf("unexpected reply type %d to open", typ)})
	}
}
