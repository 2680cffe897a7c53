package dat

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/go-restruct/restruct"
)

// Format selects the on-disk entry record layout.
type Format int

const (
	// FormatClassic is the original layout: 13-byte NUL-padded names.
	FormatClassic Format = iota

	// FormatExtended is the later client layout: 12-byte names followed
	// by 20 bytes whose meaning is unknown. They are not kept: reading
	// skips them and writing fills them with zeros.
	FormatExtended
)

// classicRecord is one index record of a classic archive.
type classicRecord struct {
	Offset uint32 `struct:"uint32"`
	Name   [13]byte
}

// extendedRecord is one index record of an extended archive.
type extendedRecord struct {
	Offset  uint32 `struct:"uint32"`
	Name    [12]byte
	Unknown [20]byte
}

const (
	classicRecordSize  = 17
	extendedRecordSize = 36
)

func (f Format) recordSize() int {
	if f == FormatExtended {
		return extendedRecordSize
	}
	return classicRecordSize
}

func (f Format) maxNameLen() int {
	if f == FormatExtended {
		return 12
	}
	return 13
}

// decodeRecord unpacks one index record from data and returns the entry
// name (trailing NULs stripped) and start offset.
func (f Format) decodeRecord(data []byte) (name string, offset uint32, err error) {
	if f == FormatExtended {
		var rec extendedRecord
		if err := restruct.Unpack(data, binary.LittleEndian, &rec); err != nil {
			return "", 0, fmt.Errorf("unpack entry record: %w", err)
		}
		return trimName(rec.Name[:]), rec.Offset, nil
	}

	var rec classicRecord
	if err := restruct.Unpack(data, binary.LittleEndian, &rec); err != nil {
		return "", 0, fmt.Errorf("unpack entry record: %w", err)
	}
	return trimName(rec.Name[:]), rec.Offset, nil
}

// encodeRecord packs one index record for an entry at the given offset.
func (f Format) encodeRecord(name string, offset uint32) ([]byte, error) {
	if len(name) > f.maxNameLen() {
		return nil, fmt.Errorf("%w: %q is %d bytes (max %d)", ErrNameTooLong, name, len(name), f.maxNameLen())
	}

	if f == FormatExtended {
		rec := extendedRecord{Offset: offset}
		copy(rec.Name[:], name)
		return restruct.Pack(binary.LittleEndian, &rec)
	}

	rec := classicRecord{Offset: offset}
	copy(rec.Name[:], name)
	return restruct.Pack(binary.LittleEndian, &rec)
}

// trimName strips the NUL padding from a fixed-width name field.
func trimName(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}
