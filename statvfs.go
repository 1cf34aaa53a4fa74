package usftp

import (
	"context"

	"github.com/pkg/errors"
)

// Wire-side statvfs@openssh.com flag bits (sftp-common.h's
// SSH2_FXE_STATVFS_ST_*), and the local struct statvfs bits
// (sys/statvfs.h's ST_*) decodeStatVfs translates them into. The two
// namespaces happen to share numeric values, but StatVfs.Flag is always
// expressed in the local namespace — callers must never interpret it as
// the raw wire bitmask.
const (
	sshFxeStatVfsStRdonly = 0x1
	sshFxeStatVfsStNosuid = 0x2

	StRdonly = 0x1
	StNosuid = 0x2
)

// StatVfs mirrors struct statvfs as carried by the statvfs@openssh.com
// extension reply.
type StatVfs struct {
	Bsize   uint64
	Frsize  uint64
	Blocks  uint64
	Bfree   uint64
	Bavail  uint64
	Files   uint64
	Ffree   uint64
	Favail  uint64
	Fsid    uint64
	Flag    uint64
	Namemax uint64
}

// RootInodes reports the filesystem's total inode count, a convenience
// over the raw Files field for callers that only care about capacity.
func (s StatVfs) RootInodes() uint64 { return s.Files }

// IsReadOnly reports whether the filesystem is mounted read-only.
func (s StatVfs) IsReadOnly() bool { return s.Flag&StRdonly != 0 }

// NoSetuid reports whether the filesystem ignores setuid/setgid bits.
func (s StatVfs) NoSetuid() bool { return s.Flag&StNosuid != 0 }

// StatVfs queries filesystem statistics for path via the
// statvfs@openssh.com extension. Servers that never advertised the
// extension during the handshake cannot serve this request at all, so it
// fails locally — with SSH_FX_OP_UNSUPPORTED, as the source's do_statvfs
// does — without sending a single byte. quiet suppresses the failure log
// line, the same way it does for Stat/Lstat.
func (c *Conn) StatVfs(ctx context.Context, path string, quiet bool) (StatVfs, error) {
	if err := ctx.Err(); err != nil {
		return StatVfs{}, err
	}
	if !c.hasExt(extStatVfs) {
		err := &StatusError{Code: sshFxOpUnsupported, Msg: "server does not support statvfs@openssh.com"}
		if !quiet {
			c.logger.WithError(err).Debugf("sftp: statvfs %q failed", path)
		}
		return StatVfs{}, err
	}

	req := putString(nil, "statvfs@openssh.com")
	req = putString(req, path)
	typ, body, err := c.roundTrip(fxpExtended, req)
	if err != nil {
		return StatVfs{}, err
	}
	switch typ {
	case fxpExtendedReply:
		return decodeStatVfs(body)
	case fxpStatus:
		return StatVfs{}, decodeStatus(body)
	default:
		return StatVfs{}, c.poison(&ProtocolError{cause: errors.Errorf("unexpected reply type %d to statvfs", typ)})
	}
}

func decodeStatVfs(body *buffer) (StatVfs, error) {
	var s StatVfs
	var rawFlag uint64
	fields := []*uint64{
		&s.Bsize, &s.Frsize, &s.Blocks, &s.Bfree, &s.Bavail,
		&s.Files, &s.Ffree, &s.Favail, &s.Fsid, &rawFlag, &s.Namemax,
	}
	for _, f := range fields {
		v, err := body.getUint64()
		if err != nil {
			return StatVfs{}, err
		}
		*f = v
	}
	s.Flag = translateStatVfsFlags(rawFlag)
	return s, nil
}

// translateStatVfsFlags converts the server's SSH2_FXE_STATVFS_ST_* wire
// bits into the local struct statvfs ST_* bits, matching the source's
// do_statvfs translation rather than passing the wire bitmask through
// unchanged.
func translateStatVfsFlags(wire uint64) uint64 {
	var flag uint64
	if wire&sshFxeStatVfsStRdonly != 0 {
		flag |= StRdonly
	}
	if wire&sshFxeStatVfsStNosuid != 0 {
		flag |= StNosuid
	}
	return flag
}
