package fs

import (
	"fmt"
	"os"
	"path/filepath"
)

// SimpleAtomicMove moves the file at src to dst by renaming it. Any file
// already at dst is replaced atomically. Directories are refused on either
// side: this is used to put single files, such as decrypted keys, into place.
func SimpleAtomicMove(src, dst string) error {
	srcInfo, err := os.Lstat(src)
	if err != nil {
		return fmt.Errorf("failed to move %s to %s: %w", src, dst, err)
	}
	if srcInfo.IsDir() {
		return fmt.Errorf("failed to move %s to %s: source is a directory", src, dst)
	}
	if dstInfo, err := os.Lstat(dst); err == nil && dstInfo.IsDir() {
		return fmt.Errorf("failed to move %s to %s: destination is a directory", src, dst)
	}
	if err = os.Rename(src, dst); err != nil {
		return fmt.Errorf("failed to move %s to %s: %w", src, dst, err)
	}
	return nil
}

// TempFileFor creates an empty temporary file in the same directory as path,
// so that it can later be moved to path with SimpleAtomicMove. The caller is
// responsible for removing the file if it is never moved.
func TempFileFor(path string) (string, error) {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return "", fmt.Errorf("failed to create temporary file for %s: %w", path, err)
	}
	name := f.Name()
	if err = f.Close(); err != nil {
		_ = os.Remove(name)
		return "", fmt.Errorf("failed to close temporary file %s: %w", name, err)
	}
	return name, nil
}

// WriteFileAtomic writes data to path with the provided permissions. The data
// is written to a temporary file first, so path either keeps its previous
// content or receives all of data, never a partial write.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) (err error) {
	tmp, err := TempFileFor(path)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp)
		}
	}()
	if err = os.Chmod(tmp, perm); err != nil {
		return fmt.Errorf("failed to set permissions on %s: %w", tmp, err)
	}
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", tmp, err)
	}
	if _, err = f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err = f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to sync %s: %w", tmp, err)
	}
	if err = f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", tmp, err)
	}
	return SimpleAtomicMove(tmp, path)
}
