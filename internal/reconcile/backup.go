package reconcile

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// backupTimestamp is the layout of backup directory suffixes.
const backupTimestamp = "20060102-150405"

// backupProject copies the whole project directory to a sibling directory
// before a destructive apply. Returns the backup directory path.
func backupProject(root string) (string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	dest := fmt.Sprintf("%s.backup-%s", abs, time.Now().UTC().Format(backupTimestamp))
	if _, err := os.Stat(dest); err == nil {
		return "", fmt.Errorf("backup directory already exists: %s", dest)
	}
	if err := copyTree(abs, dest); err != nil {
		os.RemoveAll(dest)
		return "", err
	}
	return dest, nil
}

func copyTree(src, dest string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dest, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		return copyFile(path, target)
	})
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
