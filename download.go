package usftp

import (
	"context"
	"io"
	"os"

	"github.com/pkg/errors"
)

// pendingRead records a read request this client has sent but not yet
// seen the reply for.
type pendingRead struct {
	id     uint32
	offset uint64
	length uint32
}

// attrPreserver is satisfied by an io.WriterAt that can also apply the
// permission bits fetched from the remote file. *os.File implements it;
// a caller downloading into an in-memory buffer or any other sink simply
// doesn't, and preserve becomes a no-op for that destination rather than
// an error.
type attrPreserver interface {
	Chmod(os.FileMode) error
}

// Download fetches remotePath into local using a pipelined window of
// outstanding SSH_FXP_READ requests (spec's bulk download engine). No
// goroutine is spawned: the window is maintained purely by how many
// requests are sent before the next reply is drained, so pipelining
// comes from send-ahead ordering on a single stream.
//
// Cancelling ctx stops new requests from being issued and drains the
// ones already in flight so the connection is left in a consistent
// state, then returns ctx.Err(). preserve, when true and local supports
// it, applies the remote file's permission bits to local after a
// successful transfer.
func (c *Conn) Download(ctx context.Context, remotePath string, local io.WriterAt, preserve bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	handle, err := c.Open(ctx, remotePath, OpenRead, Attrib{})
	if err != nil {
		return err
	}

	var remoteAttrs Attrib
	if preserve {
		remoteAttrs, err = c.Stat(ctx, remotePath, true)
		if err != nil {
			_ = c.Close(context.Background(), handle)
			return err
		}
	}

	buflen := c.transferBuflen
	maxReq := uint32(1)
	var pending []pendingRead
	var offset uint64
	eof := false
	var firstErr error

	for !eof || len(pending) > 0 {
		for !eof && firstErr == nil && ctx.Err() == nil && uint32(len(pending)) < maxReq {
			id := c.nextID()
			payload := putString(nil, handle)
			payload = putUint64(payload, offset)
			payload = putUint32(payload, buflen)
			if sendErr := c.sendOnly(fxpRead, id, payload); sendErr != nil {
				firstErr = sendErr
				eof = true
				break
			}
			pending = append(pending, pendingRead{id: id, offset: offset, length: buflen})
			offset += uint64(buflen)
		}

		if len(pending) == 0 {
			break
		}

		typ, id, body, err := c.recvAny()
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			eof = true
			continue
		}

		// The server is free to complete outstanding reads out of order, so
		// the reply is matched to its request by id via a linear scan of
		// the bounded (num_requests-sized) pending queue rather than
		// assuming the head of the queue is always next.
		idx := -1
		for i, p := range pending {
			if p.id == id {
				idx = i
				break
			}
		}
		if idx < 0 {
			perr := c.poison(&ProtocolError{cause: errors.Errorf("reply id %d matches no pending read", id)})
			if firstErr == nil {
				firstErr = perr
			}
			eof = true
			continue
		}
		req := pending[idx]
		pending = append(pending[:idx], pending[idx+1:]...)

		switch typ {
		case fxpData:
			data, derr := body.getBytes()
			if derr != nil {
				if firstErr == nil {
					firstErr = derr
				}
				eof = true
				continue
			}
			if _, werr := local.WriteAt(data, int64(req.offset)); werr != nil {
				if firstErr == nil {
					firstErr = werr
				}
				eof = true
				continue
			}
			if uint32(len(data)) == req.length {
				// A full read: grow the window additively, same as the
				// source's max_req++ on a full-sized reply.
				if maxReq < c.numRequests {
					maxReq++
				}
			} else {
				// Short read: re-request the missing tail under a fresh id.
				// If the reply was shorter than the current request size,
				// later requests use its length (never below minReadSize).
				// The window is not grown on a short read.
				tailOffset := req.offset + uint64(len(data))
				tailLength := req.length - uint32(len(data))
				tailID := c.nextID()
				payload := putString(nil, handle)
				payload = putUint64(payload, tailOffset)
				payload = putUint32(payload, tailLength)
				if sendErr := c.sendOnly(fxpRead, tailID, payload); sendErr != nil {
					if firstErr == nil {
						firstErr = sendErr
					}
					eof = true
					continue
				}
				pending = append(pending, pendingRead{id: tailID, offset: tailOffset, length: tailLength})
				if uint32(len(data)) < buflen {
					if uint32(len(data)) > minReadSize {
						buflen = uint32(len(data))
					} else {
						buflen = minReadSize
					}
				}
			}
		case fxpStatus:
			statusErr := decodeStatus(body)
			if statusErr == nil {
				// SSH_FX_OK with no data is not meaningful for read; treat
				// as EOF defensively.
				eof = true
			} else if IsEOF(statusErr) {
				eof = true
			} else if firstErr == nil {
				firstErr = statusErr
				eof = true
			}
		default:
			perr := c.poison(&ProtocolError{cause: errors.Errorf("unexpected reply type %d to read", typ)})
			if firstErr == nil {
				firstErr = perr
			}
			eof = true
		}

		if ctx.Err() != nil && firstErr == nil {
			// Let already-sent requests finish draining (the loop condition
			// above keeps doing that), but stop issuing new ones; surface
			// the cancellation once draining completes.
			eof = true
		}
	}

	if closeErr := c.Close(context.Background(), handle); closeErr != nil && firstErr == nil {
		firstErr = closeErr
	}

	if firstErr != nil {
		return firstErr
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if preserve && remoteAttrs.Flags&attrPermissions != 0 {
		if ap, ok := local.(attrPreserver); ok {
			if err := ap.Chmod(os.FileMode(remoteAttrs.Permissions & 0777)); err != nil {
				return err
			}
		}
	}
	return nil
}
