package usftp

import (
	"context"
	"strings"

	"github.com/pkg/errors"
)

// DirEntry is one entry from SSH_FXP_READDIR: a name as the server lists
// it, the server's pre-rendered "ls -l" style line, and its attributes
// (whatever the server chose to include — same flag gating as Attrib
// anywhere else on the wire).
type DirEntry struct {
	Filename string
	Longname string
	Attribs  Attrib
}

// ReadDir lists the contents of a remote directory. It opens path,
// drains SSH_FXP_READDIR replies until the server signals EOF, and
// closes the handle — even on error, so a failed listing never leaks a
// server-side directory handle.
//
// Entries named "." and ".." are dropped, and any entry whose filename
// contains a path separator is dropped with a warning logged: a
// conforming server never sends one, and accepting it would let a
// malicious or buggy server smuggle a traversal outside the requested
// directory (ported from the source's do_lsreaddir strchr check).
func (c *Conn) ReadDir(ctx context.Context, path string) ([]DirEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	handle, err := c.opendir(path)
	if err != nil {
		return nil, err
	}

	var entries []DirEntry
	var readErr error

readLoop:
	for {
		if err := ctx.Err(); err != nil {
			readErr = err
			break
		}
		typ, body, err := c.roundTrip(fxpReaddir, putString(nil, handle))
		if err != nil {
			readErr = err
			break
		}
		switch typ {
		case fxpName:
			count, err := body.getUint32()
			if err != nil {
				readErr = err
				break readLoop
			}
			for i := uint32(0); i < count; i++ {
				name, err := body.getString()
				if err != nil {
					readErr = err
					break readLoop
				}
				longname, err := body.getString()
				if err != nil {
					readErr = err
					break readLoop
				}
				attrs, err := decodeAttrib(body)
				if err != nil {
					readErr = err
					break readLoop
				}
				if name == "." || name == ".." {
					continue
				}
				if strings.ContainsRune(name, '/') {
					c.logger.Warnf("sftp: server sent directory entry %q containing a path separator, dropping it", name)
					continue
				}
				entries = append(entries, DirEntry{Filename: name, Longname: longname, Attribs: attrs})
			}
		case fxpStatus:
			statusErr := decodeStatus(body)
			if statusErr == nil || IsEOF(statusErr) {
				// EOF: normal termination of the listing.
			} else {
				readErr = statusErr
			}
			break readLoop
		default:
			readErr = c.poison(&ProtocolError{cause: errors.Errorf("unexpected reply type %d to readdir", typ)})
			break readLoop
		}
	}

	if closeErr := c.Close(context.Background(), handle); closeErr != nil && readErr == nil {
		readErr = closeErr
	}

	if readErr != nil {
		// Interruption and failure both discard whatever partial listing was
		// collected: a caller cannot tell a partial list from a complete one,
		// so returning one would be worse than returning none.
		return nil, readErr
	}
	return entries, nil
}

func (c *Conn) opendir(path string) (string, error) {
	typ, body, err := c.roundTrip(fxpOpendir, putString(nil, path))
	if err != nil {
		return "", err
	}
	switch typ {
	case fxpHandle:
		return body.getString()
	case fxpStatus:
		return "", decodeStatus(body)
	default:
		return "", c.poison(&ProtocolError{cause: errors.Errorf("unexpected reply type %d to opendir", typ)})
	}
}
