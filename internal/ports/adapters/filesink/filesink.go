// Package filesink persists run artifacts into a directory. Every write
// lands under a temporary name first and is renamed into place.
package filesink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/forPelevin/storyreel/internal/types"
)

type Sink struct {
	dir string
}

func New(dir string) *Sink { return &Sink{dir: dir} }

func (s *Sink) Dir() string { return s.dir }

// Persist stores u as dir/name. Text is written as-is. Media files are moved
// when possible and copied otherwise.
func (s *Sink) Persist(ctx context.Context, name string, u types.Unit) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", fmt.Errorf("invalid artifact name %q", name)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", err
	}
	dst := filepath.Join(s.dir, name)

	if !u.Kind.IsMedia() {
		return dst, s.writeAtomic(dst, strings.NewReader(u.Text))
	}
	if u.Path == "" {
		return "", errors.New("media artifact without a file")
	}
	if u.Path == dst {
		return dst, nil
	}
	if err := os.Rename(u.Path, dst); err == nil {
		return dst, nil
	}
	f, err := os.Open(u.Path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return dst, s.writeAtomic(dst, f)
}

func (s *Sink) writeAtomic(dst string, r io.Reader) error {
	tmp, err := os.CreateTemp(s.dir, "."+filepath.Base(dst)+".*")
	if err != nil {
		return err
	}
	_, err = io.Copy(tmp, r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(tmp.Name(), dst)
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", filepath.Base(dst), err)
	}
	return nil
}
