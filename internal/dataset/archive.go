package dataset

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

// ExtractArchive unpacks zipPath into a sibling directory named after the archive
// without its extension and returns that directory. An existing directory is reused
// as is. Entries resolving outside the target are rejected.
func ExtractArchive(zipPath string) (string, error) {
	target := strings.TrimSuffix(zipPath, filepath.Ext(zipPath))
	if info, err := os.Stat(target); err == nil && info.IsDir() {
		log.Info().Str("dir", target).Msg("archive already extracted, skipping")
		return target, nil
	}

	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return "", fmt.Errorf("failed to open archive %s: %w", zipPath, err)
	}
	defer r.Close()

	root, err := filepath.Abs(target)
	if err != nil {
		return "", err
	}
	tmp := target + ".partial"
	if err := os.RemoveAll(tmp); err != nil {
		return "", err
	}
	tmpRoot, err := filepath.Abs(tmp)
	if err != nil {
		return "", err
	}

	for _, f := range r.File {
		dest := filepath.Join(tmpRoot, f.Name)
		if dest != tmpRoot && !strings.HasPrefix(dest, tmpRoot+string(os.PathSeparator)) {
			os.RemoveAll(tmp)
			return "", fmt.Errorf("archive entry %q escapes the extraction directory", f.Name)
		}
		if err := extractEntry(f, dest); err != nil {
			os.RemoveAll(tmp)
			return "", err
		}
	}

	if err := os.Rename(tmpRoot, root); err != nil {
		os.RemoveAll(tmp)
		return "", fmt.Errorf("failed to finalize extraction of %s: %w", zipPath, err)
	}
	log.Info().Str("archive", zipPath).Str("dir", target).Int("entries", len(r.File)).Msg("archive extracted")
	return target, nil
}

func extractEntry(f *zip.File, dest string) error {
	if f.FileInfo().IsDir() {
		return os.MkdirAll(dest, os.ModePerm)
	}
	if err := os.MkdirAll(filepath.Dir(dest), os.ModePerm); err != nil {
		return err
	}

	src, err := f.Open()
	if err != nil {
		return fmt.Errorf("failed to open archive entry %s: %w", f.Name, err)
	}
	defer src.Close()

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return fmt.Errorf("failed to extract %s: %w", f.Name, err)
	}
	return out.Close()
}

// ResolveCaptureRoot descends through directories holding nothing but a single
// sub-directory, the usual shape of a zipped capture folder.
func ResolveCaptureRoot(dir string) (string, error) {
	for {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return "", err
		}
		var dirs []os.DirEntry
		files := 0
		for _, e := range entries {
			if strings.HasPrefix(e.Name(), ".") || e.Name() == "__MACOSX" {
				continue
			}
			if e.IsDir() {
				dirs = append(dirs, e)
			} else {
				files++
			}
		}
		if files > 0 || len(dirs) != 1 {
			return dir, nil
		}
		dir = filepath.Join(dir, dirs[0].Name())
	}
}
