package usftp

import (
	"context"
	"io"
	"os"

	"github.com/pkg/errors"
)

// outstandingAck records a write request this client has sent but not
// yet seen the SSH_FXP_STATUS reply for.
type outstandingAck struct {
	id     uint32
	length uint32
}

// Upload sends local (localSize bytes, with local permission bits
// localMode) to remotePath using a pipelined window of outstanding
// SSH_FXP_WRITE requests — the write-side mirror of Download. attrs, if
// non-nil, supplies attributes for the initial SSH_FXP_OPEN; per the
// source's do_upload, these are normalized before being put on the wire:
// SIZE and UID/GID are always stripped (the remote side determines
// those), permissions are masked to the low 9 bits, and access/modify
// times are included only when preserve is true.
//
// Cancelling ctx stops new writes from being queued and drains the ones
// already sent, then returns ctx.Err(). When preserve is true and attrs
// carried timestamps, Upload applies them to the remote file with
// SSH_FXP_FSETSTAT after the transfer completes.
func (c *Conn) Upload(ctx context.Context, local io.ReaderAt, localSize int64, localMode os.FileMode, remotePath string, attrs *Attrib, preserve bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	openAttrs := Attrib{Flags: attrPermissions, Permissions: uint32(localMode.Perm())}
	var preserveTimes bool
	if attrs != nil {
		if attrs.Flags&attrPermissions != 0 {
			openAttrs.Permissions = attrs.Permissions & 0777
		}
		if preserve && attrs.Flags&attrACModTime != 0 {
			openAttrs.Flags |= attrACModTime
			openAttrs.Atime = attrs.Atime
			openAttrs.Mtime = attrs.Mtime
			preserveTimes = true
		}
	}

	handle, err := c.Open(ctx, remotePath, OpenWrite|OpenCreat|OpenTrunc, openAttrs)
	if err != nil {
		return err
	}

	buflen := int64(c.transferBuflen)
	readBuf := make([]byte, buflen)

	var acks []outstandingAck
	var offset int64
	doneReading := localSize <= 0
	var firstErr error

	for !doneReading || len(acks) > 0 {
		for !doneReading && firstErr == nil && ctx.Err() == nil && uint32(len(acks)) < c.numRequests {
			n := buflen
			if remaining := localSize - offset; remaining < n {
				n = remaining
			}
			chunk := readBuf[:n]
			read, rerr := local.ReadAt(chunk, offset)
			if read > 0 {
				id := c.nextID()
				payload := putString(nil, handle)
				payload = putUint64(payload, uint64(offset))
				payload = putBytes(payload, chunk[:read])
				if sendErr := c.sendOnly(fxpWrite, id, payload); sendErr != nil {
					firstErr = sendErr
					doneReading = true
					break
				}
				acks = append(acks, outstandingAck{id: id, length: uint32(read)})
				offset += int64(read)
			}
			if rerr != nil && rerr != io.EOF {
				firstErr = rerr
				doneReading = true
				break
			}
			if offset >= localSize {
				doneReading = true
			}
		}

		if ctx.Err() != nil {
			doneReading = true
		}

		if len(acks) == 0 {
			break
		}

		typ, id, body, err := c.recvAny()
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			doneReading = true
			continue
		}

		// Writes can complete out of order on the server, so match the
		// reply to its request by id via a linear scan of the bounded
		// outstanding-ack queue rather than assuming FIFO order.
		idx := -1
		for i, a := range acks {
			if a.id == id {
				idx = i
				break
			}
		}
		if idx < 0 {
			perr := c.poison(&ProtocolError{cause: errors.Errorf("reply id %d matches no outstanding write", id)})
			if firstErr == nil {
				firstErr = perr
			}
			doneReading = true
			continue
		}
		acks = append(acks[:idx], acks[idx+1:]...)

		if typ != fxpStatus {
			perr := c.poison(&ProtocolError{cause: errors.Errorf("unexpected reply type %d to write", typ)})
			if firstErr == nil {
				firstErr = perr
			}
			doneReading = true
			continue
		}
		if statusErr := decodeStatus(body); statusErr != nil && firstErr == nil {
			firstErr = statusErr
			doneReading = true
		}
	}

	if firstErr == nil && preserveTimes {
		firstErr = c.Fsetstat(context.Background(), handle, Attrib{
			Flags: attrACModTime,
			Atime: openAttrs.Atime,
			Mtime: openAttrs.Mtime,
		})
	}

	if closeErr := c.Close(context.Background(), handle); closeErr != nil && firstErr == nil {
		firstErr = closeErr
	}

	if firstErr != nil {
		return firstErr
	}
	return ctx.Err()
}
