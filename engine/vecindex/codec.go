package vecindex

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Binary layout: magic, version, dimension, row count, then rows of
// little-endian float32 values. Rows are persisted in their stored
// (normalized) form.
var fileMagic = [4]byte{'T', 'A', 'V', 'I'}

const fileVersion uint32 = 1

type fileHeader struct {
	Magic   [4]byte
	Version uint32
	Dim     uint32
	Count   uint32
}

// Save writes the index to path, creating parent directories as needed.
func (f *Flat) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("vecindex: save %s: %w", path, err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("vecindex: save %s: %w", path, err)
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	hdr := fileHeader{Magic: fileMagic, Version: fileVersion, Dim: uint32(f.dim), Count: uint32(len(f.rows))}
	if err := binary.Write(w, binary.LittleEndian, hdr); err != nil {
		return fmt.Errorf("vecindex: save %s: %w", path, err)
	}
	for _, row := range f.rows {
		if err := binary.Write(w, binary.LittleEndian, row); err != nil {
			return fmt.Errorf("vecindex: save %s: %w", path, err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("vecindex: save %s: %w", path, err)
	}
	return file.Sync()
}

// Load reads an index from path. A missing file is not an error: Load
// returns (nil, nil) so callers can treat it as "no database yet". A
// truncated or malformed file is an error.
func Load(path string) (*Flat, error) {
	file, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("vecindex: load %s: %w", path, err)
	}
	defer file.Close()

	r := bufio.NewReader(file)
	var hdr fileHeader
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("vecindex: load %s: read header: %w", path, err)
	}
	if hdr.Magic != fileMagic {
		return nil, fmt.Errorf("vecindex: load %s: bad magic", path)
	}
	if hdr.Version != fileVersion {
		return nil, fmt.Errorf("vecindex: load %s: unsupported version %d", path, hdr.Version)
	}
	if hdr.Dim == 0 {
		return nil, fmt.Errorf("vecindex: load %s: zero dimension", path)
	}

	// The count comes from an untrusted file; cap the preallocation and let
	// append grow, so a corrupt header cannot demand gigabytes up front.
	f := &Flat{dim: int(hdr.Dim), rows: make([][]float32, 0, min(hdr.Count, 1<<16))}
	for i := uint32(0); i < hdr.Count; i++ {
		row := make([]float32, hdr.Dim)
		if err := binary.Read(r, binary.LittleEndian, row); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return nil, fmt.Errorf("vecindex: load %s: truncated at row %d of %d", path, i, hdr.Count)
			}
			return nil, fmt.Errorf("vecindex: load %s: row %d: %w", path, i, err)
		}
		f.rows = append(f.rows, row)
	}
	return f, nil
}
