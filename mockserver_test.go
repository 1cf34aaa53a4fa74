package usftp

import (
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// mockEntry is one path in the mock filesystem's flat namespace.
type mockEntry struct {
	isDir   bool
	content []byte
	perm    uint32
	atime   uint32
	mtime   uint32
}

// mockServer is a minimal in-memory sftp-server good enough to exercise
// this package's wire behavior without a real network or a real
// filesystem. It speaks exactly the subset of the protocol this client
// uses.
type mockServer struct {
	t    *testing.T
	conn net.Conn

	mu        sync.Mutex
	fs        map[string]*mockEntry
	handles   map[string]string // handle -> path
	dirRead   map[string]bool   // directory handles whose listing was already sent
	nextH     int
	extStatVfs bool
	extRename  bool
}

func newMockServer(t *testing.T, server net.Conn) *mockServer {
	return &mockServer{
		t:          t,
		conn:       server,
		fs:         map[string]*mockEntry{"/": {isDir: true, perm: 0755}},
		handles:    map[string]string{},
		dirRead:    map[string]bool{},
		extStatVfs: true,
		extRename:  true,
	}
}

// newMockConn wires a Conn to a freshly started mockServer over an
// in-process net.Pipe and returns both, plus a cleanup func.
func newMockConn(t *testing.T, opts ...Option) (*Conn, *mockServer, func()) {
	t.Helper()
	clientSide, serverSide := net.Pipe()
	srv := newMockServer(t, serverSide)
	go srv.serve()

	c, err := NewConn(clientSide, clientSide, opts...)
	if err != nil {
		t.Fatalf("NewConn: %v", err)
	}
	cleanup := func() {
		_ = clientSide.Close()
		_ = serverSide.Close()
	}
	return c, srv, cleanup
}

func (s *mockServer) putFile(path string, content []byte, perm uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fs[path] = &mockEntry{content: content, perm: perm}
}

func (s *mockServer) putDir(path string, perm uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fs[path] = &mockEntry{isDir: true, perm: perm}
}

// entryContent returns a copy of the content stored at path, for tests
// that want to assert on what the mock received without racing the
// server goroutine.
func (s *mockServer) entryContent(path string) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.fs[path]
	if !ok {
		return nil
	}
	return append([]byte(nil), e.content...)
}

func (s *mockServer) serve() {
	defer func() { _ = s.conn.Close() }()
	// Requests are read on their own goroutine: net.Pipe writes are
	// unbuffered, so a client that sends several requests before reading
	// any reply would otherwise block against a reply being written back.
	reqs := make(chan []byte, 1024)
	go func() {
		defer close(reqs)
		for {
			body, err := recvFrame(s.conn)
			if err != nil {
				return
			}
			reqs <- body
		}
	}()
	for body := range reqs {
		rb := newBuffer(body)
		typ, err := rb.getUint8()
		if err != nil {
			return
		}
		if typ == fxpInit {
			s.handleInit(rb)
			continue
		}
		id, err := rb.getUint32()
		if err != nil {
			return
		}
		if err := s.dispatch(typ, id, rb); err != nil {
			return
		}
	}
}

func (s *mockServer) handleInit(rb *buffer) {
	resp := []byte{fxpVersion}
	resp = putUint32(resp, 3)
	if s.extRename {
		resp = putString(resp, "posix-rename@openssh.com")
		resp = putString(resp, "1")
	}
	if s.extStatVfs {
		resp = putString(resp, "statvfs@openssh.com")
		resp = putString(resp, "2")
	}
	_ = sendFrame(s.conn, resp)
}

func (s *mockServer) status(id uint32, code uint32, msg string) error {
	resp := []byte{fxpStatus}
	resp = putUint32(resp, id)
	resp = putUint32(resp, code)
	resp = putString(resp, msg)
	resp = putString(resp, "en")
	return sendFrame(s.conn, resp)
}

func (s *mockServer) ok(id uint32) error { return s.status(id, sshFxOk, "") }

func (s *mockServer) dispatch(typ uint8, id uint32, rb *buffer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch typ {
	case fxpOpen:
		path, _ := rb.getString()
		pflags, _ := rb.getUint32()
		attrs, _ := decodeAttrib(rb)
		e, ok := s.fs[path]
		if !ok {
			if pflags&sshFxfCreat == 0 {
				return s.status(id, sshFxNoSuchFile, "no such file")
			}
			e = &mockEntry{perm: 0644}
			if attrs.Flags&attrPermissions != 0 {
				e.perm = attrs.Permissions
			}
			s.fs[path] = e
		}
		h := s.allocHandle(path)
		resp := []byte{fxpHandle}
		resp = putUint32(resp, id)
		resp = putString(resp, h)
		return sendFrame(s.conn, resp)

	case fxpOpendir:
		path, _ := rb.getString()
		if e, ok := s.fs[path]; !ok || !e.isDir {
			return s.status(id, sshFxNoSuchFile, "no such directory")
		}
		h := s.allocHandle(path)
		resp := []byte{fxpHandle}
		resp = putUint32(resp, id)
		resp = putString(resp, h)
		return sendFrame(s.conn, resp)

	case fxpClose:
		h, _ := rb.getString()
		delete(s.handles, h)
		return s.ok(id)

	case fxpRead:
		h, _ := rb.getString()
		offset, _ := rb.getUint64()
		length, _ := rb.getUint32()
		path := s.handles[h]
		e := s.fs[path]
		if e == nil || offset >= uint64(len(e.content)) {
			return s.status(id, sshFxEOF, "EOF")
		}
		end := offset + uint64(length)
		if end > uint64(len(e.content)) {
			end = uint64(len(e.content))
		}
		data := e.content[offset:end]
		resp := []byte{fxpData}
		resp = putUint32(resp, id)
		resp = putBytes(resp, data)
		return sendFrame(s.conn, resp)

	case fxpWrite:
		h, _ := rb.getString()
		offset, _ := rb.getUint64()
		data, _ := rb.getBytes()
		path := s.handles[h]
		e := s.fs[path]
		if e == nil {
			e = &mockEntry{perm: 0644}
			s.fs[path] = e
		}
		need := int(offset) + len(data)
		if need > len(e.content) {
			grown := make([]byte, need)
			copy(grown, e.content)
			e.content = grown
		}
		copy(e.content[offset:], data)
		return s.ok(id)

	case fxpRemove:
		path, _ := rb.getString()
		if _, ok := s.fs[path]; !ok {
			return s.status(id, sshFxNoSuchFile, "no such file")
		}
		delete(s.fs, path)
		return s.ok(id)

	case fxpMkdir:
		path, _ := rb.getString()
		attrs, _ := decodeAttrib(rb)
		perm := uint32(0755)
		if attrs.Flags&attrPermissions != 0 {
			perm = attrs.Permissions
		}
		s.fs[path] = &mockEntry{isDir: true, perm: perm}
		return s.ok(id)

	case fxpRmdir:
		path, _ := rb.getString()
		e, ok := s.fs[path]
		if !ok || !e.isDir {
			return s.status(id, sshFxNoSuchFile, "no such directory")
		}
		delete(s.fs, path)
		return s.ok(id)

	case fxpStat, fxpLstat:
		path, _ := rb.getString()
		e, ok := s.fs[path]
		if !ok {
			return s.status(id, sshFxNoSuchFile, "no such file")
		}
		return s.sendAttrs(id, e)

	case fxpSetstat:
		path, _ := rb.getString()
		attrs, _ := decodeAttrib(rb)
		e, ok := s.fs[path]
		if !ok {
			return s.status(id, sshFxNoSuchFile, "no such file")
		}
		s.applyAttrs(e, attrs)
		return s.ok(id)

	case fxpFsetstat:
		h, _ := rb.getString()
		attrs, _ := decodeAttrib(rb)
		e := s.fs[s.handles[h]]
		if e == nil {
			return s.status(id, sshFxNoSuchFile, "no such file")
		}
		s.applyAttrs(e, attrs)
		return s.ok(id)

	case fxpRealpath:
		path, _ := rb.getString()
		resp := []byte{fxpName}
		resp = putUint32(resp, id)
		resp = putUint32(resp, 1)
		resp = putString(resp, path)
		resp = putString(resp, path)
		resp = encodeAttrib(resp, Attrib{})
		return sendFrame(s.conn, resp)

	case fxpRename:
		oldpath, _ := rb.getString()
		newpath, _ := rb.getString()
		e, ok := s.fs[oldpath]
		if !ok {
			return s.status(id, sshFxNoSuchFile, "no such file")
		}
		if _, exists := s.fs[newpath]; exists {
			return s.status(id, sshFxFailure, "destination exists")
		}
		s.fs[newpath] = e
		delete(s.fs, oldpath)
		return s.ok(id)

	case fxpSymlink:
		// OpenSSH's sftp-server reads (targetpath, linkpath) in that order,
		// not the protocol draft's (linkpath, targetpath); the client
		// matches that for interop, so the mock must decode the same way.
		target, _ := rb.getString()
		linkpath, _ := rb.getString()
		s.fs[linkpath] = &mockEntry{content: []byte(target), perm: 0777}
		return s.ok(id)

	case fxpReaddir:
		h, _ := rb.getString()
		dir := s.handles[h]
		if s.dirRead[h] {
			return s.status(id, sshFxEOF, "EOF")
		}
		s.dirRead[h] = true
		return s.sendReaddir(id, dir)

	case fxpExtended:
		name, _ := rb.getString()
		switch name {
		case "posix-rename@openssh.com":
			oldpath, _ := rb.getString()
			newpath, _ := rb.getString()
			e, ok := s.fs[oldpath]
			if !ok {
				return s.status(id, sshFxNoSuchFile, "no such file")
			}
			s.fs[newpath] = e
			delete(s.fs, oldpath)
			return s.ok(id)
		case "statvfs@openssh.com":
			_, _ = rb.getString()
			resp := []byte{fxpExtendedReply}
			resp = putUint32(resp, id)
			for i := 0; i < 11; i++ {
				resp = putUint64(resp, uint64(i+1))
			}
			return sendFrame(s.conn, resp)
		default:
			return s.status(id, sshFxOpUnsupported, "unsupported extension")
		}

	default:
		return s.status(id, sshFxBadMessage, "unsupported opcode")
	}
}

func (s *mockServer) applyAttrs(e *mockEntry, attrs Attrib) {
	if attrs.Flags&attrPermissions != 0 {
		e.perm = attrs.Permissions
	}
	if attrs.Flags&attrACModTime != 0 {
		e.atime, e.mtime = attrs.Atime, attrs.Mtime
	}
}

func (s *mockServer) sendAttrs(id uint32, e *mockEntry) error {
	a := Attrib{
		Flags:       attrSize | attrPermissions | attrACModTime,
		Size:        uint64(len(e.content)),
		Permissions: e.perm,
		Atime:       e.atime,
		Mtime:       e.mtime,
	}
	if e.isDir {
		a.Permissions |= ModeDir
	} else {
		a.Permissions |= ModeRegular
	}
	resp := []byte{fxpAttrs}
	resp = putUint32(resp, id)
	resp = encodeAttrib(resp, a)
	return sendFrame(s.conn, resp)
}

func (s *mockServer) sendReaddir(id uint32, dir string) error {
	prefix := dir
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	var names []string
	for path := range s.fs {
		if path == dir || !strings.HasPrefix(path, prefix) {
			continue
		}
		rest := strings.TrimPrefix(path, prefix)
		if rest == "" || strings.Contains(rest, "/") {
			continue
		}
		names = append(names, rest)
	}
	if len(names) == 0 {
		return s.status(id, sshFxEOF, "EOF")
	}
	resp := []byte{fxpName}
	resp = putUint32(resp, id)
	resp = putUint32(resp, uint32(len(names)))
	for _, n := range names {
		e := s.fs[prefix+n]
		resp = putString(resp, n)
		resp = putString(resp, n)
		a := Attrib{Flags: attrSize | attrPermissions, Size: uint64(len(e.content)), Permissions: e.perm}
		if e.isDir {
			a.Permissions |= ModeDir
		} else {
			a.Permissions |= ModeRegular
		}
		resp = encodeAttrib(resp, a)
	}
	return sendFrame(s.conn, resp)
}

func (s *mockServer) allocHandle(path string) string {
	s.nextH++
	h := "h" + strconv.Itoa(s.nextH)
	s.handles[h] = path
	return h
}
