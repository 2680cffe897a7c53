// Package dat reads and writes the indexed .dat containers the client
// ships its assets in. An archive is an ordered, case-insensitively keyed
// set of entries over one backing byte source; the source is either an
// owned in-memory buffer (patchable, savable) or a read-only memory-mapped
// region for large archives that are only ever sliced.
package dat

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/exp/mmap"
)

var (
	// ErrMalformed is returned when an index contradicts the backing
	// source: truncated header, overlapping or out-of-range entries, a
	// final offset that is not the file length, or duplicate names.
	ErrMalformed = errors.New("dat: malformed archive")

	// ErrNameTooLong is returned when an entry name does not fit the
	// fixed-width name field of the target format.
	ErrNameTooLong = errors.New("dat: entry name too long")

	// ErrReadOnly is returned when Patch or Save is attempted on a
	// memory-mapped archive.
	ErrReadOnly = errors.New("dat: archive is memory-mapped and read-only")

	// ErrDisposed is returned by any call made after Close.
	ErrDisposed = errors.New("dat: archive is closed")

	// ErrNotFound is returned when no entry carries the requested name.
	ErrNotFound = errors.New("dat: entry not found")
)

// Entry is one named byte range of an archive. It stays valid only as long
// as its owning Archive is open.
type Entry struct {
	Name   string
	Offset uint32
	Length uint32
}

// Archive is an open .dat container.
type Archive struct {
	path    string
	format  Format
	entries []Entry
	byName  map[string]int // lower-cased name -> entries index

	mem    []byte         // owned buffer; nil when memory-mapped
	mapped *mmap.ReaderAt // nil when in-memory

	logger *slog.Logger
	closed bool
}

// Load reads the whole file into an owned buffer, producing a patchable
// archive in the classic format.
func Load(path string) (*Archive, error) {
	return LoadFormat(path, FormatClassic)
}

// LoadFormat is Load with an explicit record format.
func LoadFormat(path string, format Format) (*Archive, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read archive: %w", err)
	}

	a, err := FromBytesFormat(buf, format)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	a.path = path
	a.logger = slog.With("archive", path)
	a.logger.Debug("loaded archive into memory",
		"entries", len(a.entries),
		"size", len(buf),
	)
	return a, nil
}

// OpenMapped memory-maps the file read-only. Lookups slice through the
// mapping; Patch and Save are rejected with ErrReadOnly.
func OpenMapped(path string) (*Archive, error) {
	return OpenMappedFormat(path, FormatClassic)
}

// OpenMappedFormat is OpenMapped with an explicit record format.
func OpenMappedFormat(path string, format Format) (*Archive, error) {
	r, err := mmap.Open(path)
	if err != nil {
		return nil, fmt.Errorf("map archive: %w", err)
	}

	// The index is tiny; read it up front so parsing is shared with the
	// in-memory path.
	head := make([]byte, 4)
	if _, err := r.ReadAt(head, 0); err != nil {
		r.Close()
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	count := int(binary.LittleEndian.Uint32(head))
	if count < 1 {
		r.Close()
		return nil, fmt.Errorf("%w: entry count field %d", ErrMalformed, count)
	}
	count--

	indexLen := 4 + count*format.recordSize() + 4
	if indexLen > r.Len() {
		r.Close()
		return nil, fmt.Errorf("%w: index of %d entries does not fit %d bytes", ErrMalformed, count, r.Len())
	}
	index := make([]byte, indexLen)
	if _, err := r.ReadAt(index, 0); err != nil {
		r.Close()
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	entries, err := parseIndex(index, int64(r.Len()), format)
	if err != nil {
		r.Close()
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	a := &Archive{
		path:    path,
		format:  format,
		entries: entries,
		byName:  nameIndex(entries),
		mapped:  r,
		logger:  slog.With("archive", path),
	}
	a.logger.Debug("mapped archive",
		"entries", len(entries),
		"size", r.Len(),
	)
	return a, nil
}

// FromBytes builds an in-memory archive over buf in the classic format.
// The archive takes ownership of buf.
func FromBytes(buf []byte) (*Archive, error) {
	return FromBytesFormat(buf, FormatClassic)
}

// FromBytesFormat is FromBytes with an explicit record format.
func FromBytesFormat(buf []byte, format Format) (*Archive, error) {
	entries, err := parseIndex(buf, int64(len(buf)), format)
	if err != nil {
		return nil, err
	}
	return &Archive{
		format:  format,
		entries: entries,
		byName:  nameIndex(entries),
		mem:     buf,
		logger:  slog.Default(),
	}, nil
}

// parseIndex decodes the archive index from buf. The count field stores
// one more than the real entry count: the final record slot is only the
// end-of-file offset. Entry lengths are the deltas between consecutive
// offsets, with the final offset required to equal the source length.
func parseIndex(buf []byte, totalLen int64, format Format) ([]Entry, error) {
	if len(buf) < 8 {
		return nil, fmt.Errorf("%w: %d bytes is too short for an index", ErrMalformed, len(buf))
	}

	count := int(binary.LittleEndian.Uint32(buf[:4]))
	if count < 1 {
		return nil, fmt.Errorf("%w: entry count field %d", ErrMalformed, count)
	}
	count--

	recSize := format.recordSize()
	if len(buf) < 4+count*recSize+4 {
		return nil, fmt.Errorf("%w: index of %d entries does not fit %d bytes", ErrMalformed, count, len(buf))
	}

	offsets := make([]uint32, count+1)
	entries := make([]Entry, count)
	pos := 4
	for i := 0; i < count; i++ {
		name, offset, err := format.decodeRecord(buf[pos : pos+recSize])
		if err != nil {
			return nil, fmt.Errorf("%w: entry %d: %v", ErrMalformed, i, err)
		}
		entries[i] = Entry{Name: name, Offset: offset}
		offsets[i] = offset
		pos += recSize
	}
	offsets[count] = binary.LittleEndian.Uint32(buf[pos : pos+4])

	if int64(offsets[count]) != totalLen {
		return nil, fmt.Errorf("%w: final offset %d but source is %d bytes", ErrMalformed, offsets[count], totalLen)
	}

	seen := make(map[string]struct{}, count)
	for i := range entries {
		if offsets[i+1] < offsets[i] || int64(offsets[i+1]) > totalLen {
			return nil, fmt.Errorf("%w: entry %q spans %d..%d", ErrMalformed, entries[i].Name, offsets[i], offsets[i+1])
		}
		entries[i].Length = offsets[i+1] - offsets[i]

		key := strings.ToLower(entries[i].Name)
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("%w: duplicate entry name %q", ErrMalformed, entries[i].Name)
		}
		seen[key] = struct{}{}
	}

	return entries, nil
}

func nameIndex(entries []Entry) map[string]int {
	m := make(map[string]int, len(entries))
	for i, e := range entries {
		m[strings.ToLower(e.Name)] = i
	}
	return m
}

// Entries returns the entries in archive order.
func (a *Archive) Entries() []Entry {
	return a.entries
}

// Entry looks an entry up by name, case-insensitively.
func (a *Archive) Entry(name string) (Entry, error) {
	if a.closed {
		return Entry{}, ErrDisposed
	}
	i, ok := a.byName[strings.ToLower(name)]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return a.entries[i], nil
}

// EntryReader returns a read-only view over an entry's byte range. The
// reader must not outlive the archive.
func (a *Archive) EntryReader(name string) (*io.SectionReader, error) {
	e, err := a.Entry(name)
	if err != nil {
		return nil, err
	}
	return io.NewSectionReader(a.readerAt(), int64(e.Offset), int64(e.Length)), nil
}

// ReadEntry returns a copy of an entry's bytes.
func (a *Archive) ReadEntry(name string) ([]byte, error) {
	e, err := a.Entry(name)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, e.Length)
	if _, err := a.readerAt().ReadAt(buf, int64(e.Offset)); err != nil && err != io.EOF {
		return nil, fmt.Errorf("read entry %s: %w", name, err)
	}
	return buf, nil
}

func (a *Archive) readerAt() io.ReaderAt {
	if a.mapped != nil {
		return a.mapped
	}
	return bytes.NewReader(a.mem)
}

// sourceLen returns the current backing source length.
func (a *Archive) sourceLen() int64 {
	if a.mapped != nil {
		return int64(a.mapped.Len())
	}
	return int64(len(a.mem))
}

// Patch appends payload to the backing buffer and points the named entry
// at it. An existing entry keeps its position in archive order; a new name
// is appended. The bytes previously referenced are left in place, so the
// buffer only grows; Save re-packs without the dead ranges.
func (a *Archive) Patch(name string, payload []byte) error {
	if a.closed {
		return ErrDisposed
	}
	if a.mapped != nil {
		return ErrReadOnly
	}

	e := Entry{
		Name:   name,
		Offset: uint32(len(a.mem)),
		Length: uint32(len(payload)),
	}
	a.mem = append(a.mem, payload...)

	key := strings.ToLower(name)
	if i, ok := a.byName[key]; ok {
		a.entries[i] = e
	} else {
		a.byName[key] = len(a.entries)
		a.entries = append(a.entries, e)
	}

	a.logger.Debug("patched entry",
		"name", name,
		"size", len(payload),
	)
	return nil
}

// Close releases the backing source. Subsequent calls fail with
// ErrDisposed.
func (a *Archive) Close() error {
	if a.closed {
		return nil
	}
	a.closed = true
	a.mem = nil
	if a.mapped != nil {
		return a.mapped.Close()
	}
	return nil
}
