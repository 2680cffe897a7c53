package dat

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// encodeArchive lays out a canonical archive: count+1 header, one index
// record per entry, the end-of-file offset, then the payloads back to
// back in entry order.
func encodeArchive(format Format, names []string, payloads [][]byte) ([]byte, error) {
	indexLen := 4 + len(names)*format.recordSize() + 4
	total := indexLen
	for _, p := range payloads {
		total += len(p)
	}

	buf := make([]byte, 0, total)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(names)+1))

	offset := uint32(indexLen)
	for i, name := range names {
		rec, err := format.encodeRecord(name, offset)
		if err != nil {
			return nil, err
		}
		buf = append(buf, rec...)
		offset += uint32(len(payloads[i]))
	}
	buf = binary.LittleEndian.AppendUint32(buf, uint32(total))

	for _, p := range payloads {
		buf = append(buf, p...)
	}
	return buf, nil
}

// Save re-packs the archive contiguously and writes it to path. Dead
// ranges left behind by Patch are dropped in the process.
func (a *Archive) Save(path string) error {
	if a.closed {
		return ErrDisposed
	}
	if a.mapped != nil {
		return ErrReadOnly
	}

	names := make([]string, len(a.entries))
	payloads := make([][]byte, len(a.entries))
	for i, e := range a.entries {
		names[i] = e.Name
		payloads[i] = a.mem[e.Offset : e.Offset+e.Length]
	}

	buf, err := encodeArchive(a.format, names, payloads)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return fmt.Errorf("write archive: %w", err)
	}

	a.logger.Info("saved archive",
		"path", path,
		"entries", len(a.entries),
		"size", len(buf),
	)
	return nil
}

// ExtractTo writes every entry verbatim as dir/<name>.
func (a *Archive) ExtractTo(dir string) error {
	if a.closed {
		return ErrDisposed
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	for _, e := range a.entries {
		data, err := a.ReadEntry(e.Name)
		if err != nil {
			return err
		}
		dest := filepath.Join(dir, e.Name)
		if err := os.WriteFile(dest, data, 0o644); err != nil {
			return fmt.Errorf("extract %s: %w", e.Name, err)
		}
		a.logger.Debug("extracted entry",
			"name", e.Name,
			"size", len(data),
		)
	}

	a.logger.Info("extracted archive",
		"dir", dir,
		"entries", len(a.entries),
	)
	return nil
}

// FromDirectory builds an in-memory classic archive from the regular files
// of dir, in directory enumeration order. Callers that need a particular
// entry order must name their files accordingly.
func FromDirectory(dir string) (*Archive, error) {
	return FromDirectoryFormat(dir, FormatClassic)
}

// FromDirectoryFormat is FromDirectory with an explicit record format.
func FromDirectoryFormat(dir string, format Format) (*Archive, error) {
	list, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read directory: %w", err)
	}

	var names []string
	var payloads [][]byte
	for _, de := range list {
		if de.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, de.Name()))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", de.Name(), err)
		}
		names = append(names, de.Name())
		payloads = append(payloads, data)
	}

	buf, err := encodeArchive(format, names, payloads)
	if err != nil {
		return nil, err
	}

	a, err := FromBytesFormat(buf, format)
	if err != nil {
		return nil, err
	}
	a.logger = slog.With("archive", dir)
	return a, nil
}

// Compile builds an archive from the files of fromDir and writes it to
// toPath in one step.
func Compile(fromDir, toPath string) error {
	return CompileFormat(fromDir, toPath, FormatClassic)
}

// CompileFormat is Compile with an explicit record format.
func CompileFormat(fromDir, toPath string, format Format) error {
	a, err := FromDirectoryFormat(fromDir, format)
	if err != nil {
		return err
	}
	defer a.Close()
	return a.Save(toPath)
}
