package common

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/klauspost/pgzip"
)

// WriteFileAtomic writes through a temp file and renames it into place, so a
// failed write never leaves a truncated output behind. Paths ending in .gz
// are gzip-compressed on the fly.
func WriteFileAtomic(path string, write func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create directory failed: %w", err)
	}

	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create file failed: %w", err)
	}

	err = writeTo(f, path, write)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmpPath)
		return err
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename failed: %w", err)
	}
	return nil
}

func writeTo(f *os.File, path string, write func(io.Writer) error) error {
	bw := bufio.NewWriter(f)

	if strings.HasSuffix(path, ".gz") {
		gz := pgzip.NewWriter(bw)
		if err := write(gz); err != nil {
			gz.Close()
			return err
		}
		if err := gz.Close(); err != nil {
			return fmt.Errorf("gzip close failed: %w", err)
		}
	} else if err := write(bw); err != nil {
		return err
	}

	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flush failed: %w", err)
	}
	return nil
}

// OpenMaybeGzip opens path for reading, decompressing with parallel gzip when
// the name ends in .gz.
func OpenMaybeGzip(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(path, ".gz") {
		return f, nil
	}

	gz, err := pgzip.NewReaderN(f, 256*1024, runtime.NumCPU())
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("gzip open %s: %w", filepath.Base(path), err)
	}
	return &gzipFile{Reader: gz, f: f}, nil
}

type gzipFile struct {
	*pgzip.Reader
	f *os.File
}

func (g *gzipFile) Close() error {
	err := g.Reader.Close()
	if ferr := g.f.Close(); err == nil {
		err = ferr
	}
	return err
}
