package migrator

import (
	"bufio"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"
)

type (
	// SumFile is the migration integrity ledger: each migration file's hash
	// chained with the previous file's hash, plus a total hash over all
	// entries. A modified, reordered, or removed migration changes every
	// hash after it, so the ledger detects history tampering, not just
	// single-file corruption.
	SumFile struct {
		files     []fileEntry
		TotalHash string
	}

	fileEntry struct {
		Name string
		Hash []byte
	}
)

// NewSumFile creates an empty SumFile ready to accept files.
func NewSumFile() *SumFile {
	return &SumFile{files: make([]fileEntry, 0)}
}

// LoadSumFile reads a SumFile in the format produced by WriteTo:
//   - first line: total hash (h1:base64)
//   - following lines: <filename> h1:base64
func LoadSumFile(r io.Reader) (*SumFile, error) {
	scanner := bufio.NewScanner(r)
	sumFile := NewSumFile()

	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, errors.Wrap(err, "failed to read total hash line")
		}
		return sumFile, nil
	}

	totalHashLine := strings.TrimSpace(scanner.Text())
	if totalHashLine == "" {
		return sumFile, nil
	}
	if !strings.HasPrefix(totalHashLine, "h1:") {
		return nil, errors.Errorf("invalid total hash format: %s", totalHashLine)
	}
	sumFile.TotalHash = totalHashLine

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		parts := strings.SplitN(line, " ", 2)
		if len(parts) != 2 {
			return nil, errors.Errorf("invalid file entry format: %s", line)
		}

		name, h1 := parts[0], parts[1]
		if !strings.HasPrefix(h1, "h1:") {
			return nil, errors.Errorf("invalid hash format for file %s: %s", name, h1)
		}

		hash, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(h1, "h1:"))
		if err != nil {
			return nil, errors.Wrapf(err, "failed to decode hash for file %s", name)
		}

		sumFile.files = append(sumFile.files, fileEntry{Name: name, Hash: hash})
	}

	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "error reading sum file")
	}

	return sumFile, nil
}

// AddFile appends a file and computes its chained hash:
//   - first file: SHA256(content)
//   - subsequent files: SHA256(content || previousHash)
//
// The total hash is computed lazily by WriteTo.
func (s *SumFile) AddFile(name string, content []byte) {
	hasher := sha256.New()
	hasher.Write(content)

	if len(s.files) > 0 {
		hasher.Write(s.files[len(s.files)-1].Hash)
	}

	s.files = append(s.files, fileEntry{Name: name, Hash: hasher.Sum(nil)})
}

// Files returns the number of entries in the sum file.
func (s *SumFile) Files() int {
	return len(s.files)
}

// Equal reports whether two sum files record the same entries in the same
// order with the same hashes.
func (s *SumFile) Equal(other *SumFile) bool {
	if len(s.files) != len(other.files) {
		return false
	}
	for i, f := range s.files {
		o := other.files[i]
		if f.Name != o.Name || !strings.EqualFold(
			base64.StdEncoding.EncodeToString(f.Hash),
			base64.StdEncoding.EncodeToString(o.Hash),
		) {
			return false
		}
	}
	return true
}

// WriteTo serializes the sum file, computing the total hash first.
// It implements io.WriterTo.
func (s *SumFile) WriteTo(w io.Writer) (int64, error) {
	var total int64

	s.computeTotalHash()

	n, err := fmt.Fprintf(w, "%s\n", s.TotalHash)
	if err != nil {
		return total, err
	}
	total += int64(n)

	for _, file := range s.files {
		h1 := "h1:" + base64.StdEncoding.EncodeToString(file.Hash)
		n, err := fmt.Fprintf(w, "%s %s\n", file.Name, h1)
		if err != nil {
			return total, err
		}
		total += int64(n)
	}

	return total, nil
}

func (s *SumFile) computeTotalHash() {
	if len(s.files) == 0 {
		s.TotalHash = ""
		return
	}

	hasher := sha256.New()
	for _, file := range s.files {
		hasher.Write(file.Hash)
	}
	s.TotalHash = "h1:" + base64.StdEncoding.EncodeToString(hasher.Sum(nil))
}
