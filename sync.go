package usftp

import "path/filepath"

// SyncEntry pairs a DirEntry with the remote directory it was listed
// from, since ReadDir itself only returns bare filenames.
type SyncEntry struct {
	Dir   string
	Entry DirEntry
}

// Path joins Dir and the entry's filename.
func (s SyncEntry) Path() string {
	return filepath.Join(s.Dir, s.Entry.Filename)
}

// SyncPlanner decides which remote entries a caller still needs to act
// on, given what it has already seen. It is the same shape as a
// mark-and-sweep visitor: feed it every entry from one or more ReadDir
// calls and it returns the subset that is new or changed.
type SyncPlanner struct {
	exclude map[string]struct{}
	seen    map[string]SyncEntry
	planned []SyncEntry
}

// NewSyncPlanner builds a planner against a prior seen-set (path ->
// SyncEntry, typically the result of a previous run) and a set of paths
// to skip unconditionally regardless of their state.
func NewSyncPlanner(seen map[string]SyncEntry, exclude []string) *SyncPlanner {
	p := &SyncPlanner{
		seen:    seen,
		exclude: make(map[string]struct{}, len(exclude)),
	}
	for _, e := range exclude {
		p.exclude[e] = struct{}{}
	}
	if p.seen == nil {
		p.seen = make(map[string]SyncEntry)
	}
	return p
}

// Planned returns every entry accepted by Consider so far, in the order
// they were accepted.
func (p *SyncPlanner) Planned() []SyncEntry {
	return p.planned
}

// Consider evaluates one remote entry against the exclude set and the
// prior seen-set. A file already seen at an identical size is assumed
// unchanged and is skipped; everything else — new files, files whose
// size differs from what was last seen, and all directories — is
// accepted and reported true.
func (p *SyncPlanner) Consider(dir string, entry DirEntry) bool {
	se := SyncEntry{Dir: dir, Entry: entry}
	path := se.Path()

	if _, skip := p.exclude[path]; skip {
		return false
	}
	if prior, ok := p.seen[path]; ok {
		if entry.Attribs.IsRegular() && prior.Entry.Attribs.Size == entry.Attribs.Size {
			return false
		}
	}
	p.planned = append(p.planned, se)
	return true
}
