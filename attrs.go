package usftp

// Attrib is the SFTP attribute record (spec §3). Only the fields selected
// by Flags are meaningful; encode/decode preserve that gating so a
// round-trip through encodeAttrib/decodeAttrib reproduces the original
// value exactly.
type Attrib struct {
	Flags       uint32
	Size        uint64
	UID         uint32
	GID         uint32
	Permissions uint32
	Atime       uint32
	Mtime       uint32
}

func encodeAttrib(dst []byte, a Attrib) []byte {
	dst = putUint32(dst, a.Flags)
	if a.Flags&attrSize != 0 {
		dst = putUint64(dst, a.Size)
	}
	if a.Flags&attrUIDGID != 0 {
		dst = putUint32(dst, a.UID)
		dst = putUint32(dst, a.GID)
	}
	if a.Flags&attrPermissions != 0 {
		dst = putUint32(dst, a.Permissions)
	}
	if a.Flags&attrACModTime != 0 {
		dst = putUint32(dst, a.Atime)
		dst = putUint32(dst, a.Mtime)
	}
	return dst
}

func decodeAttrib(r *buffer) (Attrib, error) {
	var a Attrib
	flags, err := r.getUint32()
	if err != nil {
		return a, err
	}
	a.Flags = flags
	if flags&attrSize != 0 {
		if a.Size, err = r.getUint64(); err != nil {
			return a, err
		}
	}
	if flags&attrUIDGID != 0 {
		if a.UID, err = r.getUint32(); err != nil {
			return a, err
		}
		if a.GID, err = r.getUint32(); err != nil {
			return a, err
		}
	}
	if flags&attrPermissions != 0 {
		if a.Permissions, err = r.getUint32(); err != nil {
			return a, err
		}
	}
	if flags&attrACModTime != 0 {
		if a.Atime, err = r.getUint32(); err != nil {
			return a, err
		}
		if a.Mtime, err = r.getUint32(); err != nil {
			return a, err
		}
	}
	// SSH_FILEXFER_ATTR_EXTENDED is never requested by this client and its
	// payload is opaque per-pair data with no fixed schema; the
	// (type, data) string pairs are read and discarded so that anything
	// following the record in the same message (the next entry of a
	// readdir reply) is decoded from the right position.
	if flags&attrExtended != 0 {
		count, err := r.getUint32()
		if err != nil {
			return a, err
		}
		for i := uint32(0); i < count; i++ {
			if _, err := r.getString(); err != nil {
				return a, err
			}
			if _, err := r.getString(); err != nil {
				return a, err
			}
		}
	}
	return a, nil
}

// IsDir reports whether the permissions bits, if present, mark a directory.
func (a Attrib) IsDir() bool {
	return a.Flags&attrPermissions != 0 && FileMode(a.Permissions).IsDir()
}

// IsRegular reports whether the permissions bits, if present, mark a
// regular file.
func (a Attrib) IsRegular() bool {
	return a.Flags&attrPermissions != 0 && FileMode(a.Permissions).IsRegular()
}
