package router

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/teemow/mailroute/internal/inbox"
)

// errDestinationExists is returned by moveFile instead of overwriting.
var errDestinationExists = errors.New("destination exists")

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

// linkFile is swapped in tests to simulate failing moves.
var linkFile = os.Link

// moveFile moves src to dst without ever replacing an existing dst.
// Moves across filesystems fall back to copy, sync and remove.
func moveFile(src, dst string) error {
	err := place(src, dst)
	if !errors.Is(err, syscall.EXDEV) {
		return err
	}
	if err := copyFile(src, dst); err != nil {
		return err
	}
	return os.Remove(src)
}

// place hard-links src at dst and removes src. The link fails when dst
// exists, so a concurrent writer cannot be clobbered. Filesystems without
// hard links get a checked rename.
func place(src, dst string) error {
	err := linkFile(src, dst)
	switch {
	case err == nil:
		if err := os.Remove(src); err != nil {
			return fmt.Errorf("linked %s but failed to remove source: %w", dst, err)
		}
		return nil
	case errors.Is(err, fs.ErrExist):
		return fmt.Errorf("%w: %s", errDestinationExists, dst)
	case errors.Is(err, syscall.EXDEV), errors.Is(err, fs.ErrNotExist):
		return err
	}
	if exists(dst) {
		return fmt.Errorf("%w: %s", errDestinationExists, dst)
	}
	return os.Rename(src, dst)
}

func copyFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*.tmp")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = io.Copy(tmp, in); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Chmod(tmp.Name(), info.Mode().Perm()); err != nil {
		return err
	}
	return place(tmp.Name(), dst)
}

// hash8 returns the first 8 hex digits of the SHA-256 of the file at path.
func hash8(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return "00000000"
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "00000000"
	}
	return hex.EncodeToString(h.Sum(nil))[:8]
}

// dupName inserts __DUP__<hash> before the extension.
func dupName(name, hash string) string {
	ext := filepath.Ext(name)
	return strings.TrimSuffix(name, ext) + "__DUP__" + hash + ext
}

// freeName returns a payload name under dir for which neither the payload
// nor its sidecar exist. It tries name, then the __DUP__ variant, then
// numbered __DUP__ variants.
func freeName(dir, name, hash string) string {
	free := func(n string) bool {
		return !exists(filepath.Join(dir, n)) && !exists(filepath.Join(dir, inbox.MetaName(n)))
	}
	if free(name) {
		return name
	}
	dup := dupName(name, hash)
	if free(dup) {
		return dup
	}
	for i := 2; ; i++ {
		if n := inbox.NumberedName(dup, i); free(n) {
			return n
		}
	}
}

// freeMetaName is freeName for a lone sidecar.
func freeMetaName(dir, meta, hash string) string {
	return inbox.MetaName(freeName(dir, inbox.PayloadName(meta), hash))
}
