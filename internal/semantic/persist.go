package semantic

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// indexFile is the on-disk form of an Index.
type indexFile struct {
	// Version is the format version for compatibility checking.
	// Check against CurrentIndexVersion when loading.
	Version int

	ModelName  string
	Dimensions int
	Generation string
	CreatedAt  time.Time

	Vectors [][]float32
	Deleted []int
}

// Save writes the index to path, replacing any existing file only once the
// new one is complete.
func (idx *Index) Save(path string) error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	file := indexFile{
		Version:    CurrentIndexVersion,
		ModelName:  idx.modelName,
		Dimensions: idx.dims,
		Generation: idx.generation,
		CreatedAt:  idx.createdAt,
		Vectors:    idx.vectors,
		Deleted:    make([]int, 0, len(idx.deleted)),
	}
	for pos := range idx.deleted {
		file.Deleted = append(file.Deleted, pos)
	}
	sort.Ints(file.Deleted)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}

	// Write to a temp file first, then rename for atomicity
	tempPath := path + ".tmp"
	f, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}

	if err := gob.NewEncoder(f).Encode(&file); err != nil {
		f.Close()
		os.Remove(tempPath)
		return fmt.Errorf("encoding index: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("closing file: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}

	return nil
}

// Load reads an index from path. It returns ErrIndexNotFound if the file is
// missing, ErrUnsupportedVersion for a different format version and
// ErrCorruptIndex if the contents cannot be decoded or are inconsistent.
func Load(path string) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrIndexNotFound
		}
		return nil, fmt.Errorf("opening index file: %w", err)
	}
	defer f.Close()

	var file indexFile
	if err := gob.NewDecoder(f).Decode(&file); err != nil {
		return nil, fmt.Errorf("%w: decoding: %w", ErrCorruptIndex, err)
	}

	if file.Version != CurrentIndexVersion {
		return nil, fmt.Errorf("%w: got %d, want %d (rebuild with 'pdx index build')",
			ErrUnsupportedVersion, file.Version, CurrentIndexVersion)
	}
	if file.Dimensions <= 0 || file.Generation == "" {
		return nil, fmt.Errorf("%w: missing header fields", ErrCorruptIndex)
	}

	idx := &Index{
		modelName:  file.ModelName,
		dims:       file.Dimensions,
		generation: file.Generation,
		createdAt:  file.CreatedAt,
		vectors:    file.Vectors,
		deleted:    make(map[int]struct{}, len(file.Deleted)),
	}
	for pos, v := range idx.vectors {
		if len(v) != idx.dims {
			return nil, fmt.Errorf("%w: vector %d has %d dimensions, want %d", ErrCorruptIndex, pos, len(v), idx.dims)
		}
	}
	for _, pos := range file.Deleted {
		if pos < 0 || pos >= len(idx.vectors) {
			return nil, fmt.Errorf("%w: tombstone %d out of range", ErrCorruptIndex, pos)
		}
		idx.deleted[pos] = struct{}{}
	}

	return idx, nil
}

// FileSize returns the size of the index file in bytes.
func FileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, ErrIndexNotFound
		}
		return 0, err
	}
	return info.Size(), nil
}

// Exists checks if the index file exists.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
