// Package archive implements the archive facade: it drives a TAR-style
// walk of the include paths into a temp file, then streams that temp
// file through the encrypt/decrypt pipeline (and back again for
// extraction).
package archive

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	goglob "github.com/ryanuber/go-glob"

	"github.com/WKHAllen/encrypted-backup/internal/apperrors"
	"github.com/WKHAllen/encrypted-backup/internal/applog"
	"github.com/WKHAllen/encrypted-backup/internal/cryptoutil"
	"github.com/WKHAllen/encrypted-backup/internal/pipeline"
	"github.com/WKHAllen/encrypted-backup/internal/section"
)

// validateNoDuplicateIncludeNames rejects include paths that share a
// final path component, since they would collide at the same archive
// root entry.
func validateNoDuplicateIncludeNames(includePaths []string) error {
	seen := make(map[string]struct{}, len(includePaths))

	for _, p := range includePaths {
		name := filepath.Base(filepath.Clean(p))
		if _, ok := seen[name]; ok {
			return &apperrors.DuplicateIncludeNameError{Name: name}
		}
		seen[name] = struct{}{}
	}

	return nil
}

func validatePathDoesNotExist(path string) error {
	if _, err := os.Stat(path); err == nil {
		return &apperrors.PathAlreadyExistsError{Path: path}
	} else if !os.IsNotExist(err) {
		return apperrors.NewIOError(err)
	}
	return nil
}

// globExcluded reports whether relPath matches any of the exclude
// globs, which are matched against the archive-relative path (using
// forward slashes regardless of host OS, so backups built on Windows and
// extracted on Linux, or vice versa, exclude consistently).
func globExcluded(relPath string, excludeGlobs []string) bool {
	slashed := filepath.ToSlash(relPath)
	for _, g := range excludeGlobs {
		if goglob.Glob(g, slashed) {
			return true
		}
	}
	return false
}

// appendToArchive recursively writes entryPath (relative to the archive
// root as archiveRelPath) into the tar writer. Directories are written
// explicitly, even when empty, so extraction reproduces them. A
// permission error reading any individual entry is logged and skipped,
// never fatal; any other error aborts the walk.
func appendToArchive(tw *tar.Writer, entryPath, archiveRelPath string, excludeGlobs []string) error {
	if globExcluded(archiveRelPath, excludeGlobs) {
		return nil
	}

	info, err := os.Lstat(entryPath)
	if err != nil {
		if os.IsPermission(err) {
			applog.Log.Warnf("skipping %s: permission denied", entryPath)
			return nil
		}
		return apperrors.NewIOError(fmt.Errorf("stat %s: %w", entryPath, err))
	}

	if info.Mode()&os.ModeSymlink != 0 {
		// Symlinks are neither a file nor a directory the spec asks us
		// to recurse into; skip rather than follow, to avoid cycles.
		return nil
	}

	if info.IsDir() {
		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return apperrors.NewIOError(err)
		}
		header.Name = archiveRelPath + "/"

		if err := tw.WriteHeader(header); err != nil {
			return apperrors.NewIOError(err)
		}

		entries, err := os.ReadDir(entryPath)
		if err != nil {
			if os.IsPermission(err) {
				applog.Log.Warnf("skipping contents of %s: permission denied", entryPath)
				return nil
			}
			return apperrors.NewIOError(fmt.Errorf("reading directory %s: %w", entryPath, err))
		}

		// Sort for deterministic archive layout across runs.
		sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

		for _, entry := range entries {
			childPath := filepath.Join(entryPath, entry.Name())
			childRel := archiveRelPath + "/" + entry.Name()

			if err := appendToArchive(tw, childPath, childRel, excludeGlobs); err != nil {
				return err
			}
		}

		return nil
	}

	if !info.Mode().IsRegular() {
		return nil
	}

	file, err := os.Open(entryPath)
	if err != nil {
		if os.IsPermission(err) {
			applog.Log.Warnf("skipping %s: permission denied", entryPath)
			return nil
		}
		return apperrors.NewIOError(fmt.Errorf("opening %s: %w", entryPath, err))
	}
	defer func() { _ = file.Close() }()

	header, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return apperrors.NewIOError(err)
	}
	header.Name = archiveRelPath

	if err := tw.WriteHeader(header); err != nil {
		return apperrors.NewIOError(err)
	}

	if _, err := io.Copy(tw, file); err != nil {
		if os.IsPermission(err) {
			applog.Log.Warnf("skipping remainder of %s: permission denied", entryPath)
			return nil
		}
		return apperrors.NewIOError(fmt.Errorf("reading %s: %w", entryPath, err))
	}

	return nil
}

// tempFilePath builds a collision-resistant path for an ephemeral file
// inside dir, named with a random UUID so concurrent backup/extract
// invocations never contend for the same temp file.
func tempFilePath(dir, suffix string) string {
	return filepath.Join(dir, fmt.Sprintf(".%s%s", uuid.NewString(), suffix))
}

// Backup writes a TAR-style archive of includePaths (skipping anything
// matched by excludeGlobs) to a temp file, encrypts that temp file to
// outPath using the given password, chunkSize, and pool size, and
// deletes the temp file before returning. It returns outPath on success.
func Backup(includePaths []string, excludeGlobs []string, outPath string, password string, chunkSize, poolSize int) (string, error) {
	if err := validateNoDuplicateIncludeNames(includePaths); err != nil {
		return "", err
	}
	if err := validatePathDoesNotExist(outPath); err != nil {
		return "", err
	}

	tarPath := tempFilePath(filepath.Dir(outPath), ".tar")
	tarFile, err := os.Create(tarPath)
	if err != nil {
		return "", apperrors.NewIOError(fmt.Errorf("creating temp archive: %w", err))
	}

	// The temp file is removed on every exit path, even when tar
	// construction or encryption fails partway through.
	defer func() {
		_ = tarFile.Close()
		_ = os.Remove(tarPath)
	}()

	tw := tar.NewWriter(tarFile)

	for _, includePath := range includePaths {
		cleanPath := filepath.Clean(includePath)
		name := filepath.Base(cleanPath)

		if err := appendToArchive(tw, cleanPath, name, excludeGlobs); err != nil {
			_ = tw.Close()
			return "", err
		}
	}

	if err := tw.Close(); err != nil {
		return "", apperrors.NewIOError(fmt.Errorf("finalizing archive: %w", err))
	}

	if _, err := tarFile.Seek(0, io.SeekStart); err != nil {
		return "", apperrors.NewIOError(err)
	}

	outFile, err := os.Create(outPath)
	if err != nil {
		return "", apperrors.NewIOError(fmt.Errorf("creating output file: %w", err))
	}
	defer func() { _ = outFile.Close() }()

	key := cryptoutil.DeriveKey([]byte(password))

	applog.Log.Debugf("encrypting archive to %s (chunk size %d, pool size %d)", outPath, chunkSize, poolSize)

	if err := pipeline.Encrypt(tarFile, outFile, key, chunkSize, poolSize); err != nil {
		_ = os.Remove(outPath)
		return "", err
	}

	applog.Log.Infof("backup written to %s", outPath)

	return outPath, nil
}

// Extract decrypts src with password into a temp file, then unpacks that
// temp file (a TAR-style archive) into outDir, which must not already
// exist.
func Extract(src, outDir, password string, poolSize int) error {
	if err := validatePathDoesNotExist(outDir); err != nil {
		return err
	}

	inFile, err := os.Open(src)
	if err != nil {
		return apperrors.NewIOError(fmt.Errorf("opening backup file: %w", err))
	}
	defer func() { _ = inFile.Close() }()

	tarPath := tempFilePath(filepath.Dir(outDir), ".dec")
	tarFile, err := os.Create(tarPath)
	if err != nil {
		return apperrors.NewIOError(fmt.Errorf("creating temp archive: %w", err))
	}
	defer func() {
		_ = tarFile.Close()
		_ = os.Remove(tarPath)
	}()

	key := cryptoutil.DeriveKey([]byte(password))

	applog.Log.Debugf("decrypting %s (pool size %d)", src, poolSize)

	if err := pipeline.Decrypt(inFile, tarFile, key, poolSize); err != nil {
		return err
	}

	if _, err := tarFile.Seek(0, io.SeekStart); err != nil {
		return apperrors.NewIOError(err)
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return apperrors.NewIOError(fmt.Errorf("creating output directory: %w", err))
	}

	if err := unpackTar(tarFile, outDir); err != nil {
		return err
	}

	applog.Log.Infof("extracted backup to %s", outDir)

	return nil
}

// unpackTar writes every entry in the tar stream r into outDir,
// reproducing the directory structure (including empty directories)
// recorded at backup time.
func unpackTar(r io.Reader, outDir string) error {
	tr := tar.NewReader(r)

	for {
		header, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return apperrors.NewIOError(fmt.Errorf("reading archive entry: %w", err))
		}

		target := filepath.Join(outDir, filepath.FromSlash(header.Name))

		if !strings.HasPrefix(target, filepath.Clean(outDir)+string(os.PathSeparator)) && target != filepath.Clean(outDir) {
			return apperrors.NewIOError(fmt.Errorf("archive entry escapes output directory: %s", header.Name))
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, os.FileMode(header.Mode)|0o700); err != nil {
				return apperrors.NewIOError(err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return apperrors.NewIOError(err)
			}

			out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, os.FileMode(header.Mode)|0o600)
			if err != nil {
				return apperrors.NewIOError(err)
			}

			if _, err := io.Copy(out, tr); err != nil {
				_ = out.Close()
				return apperrors.NewIOError(err)
			}

			if err := out.Close(); err != nil {
				return apperrors.NewIOError(err)
			}
		default:
			// Symlinks and other special entries are never written by
			// Backup, so encountering one means a foreign or corrupted
			// archive; skip rather than fail the whole extraction.
			applog.Log.Warnf("skipping unsupported archive entry %s (type %d)", header.Name, header.Typeflag)
		}
	}
}

// BackupChunkSize reads the first 5-byte section length prefix of src
// and returns its decoded value: the declared length of the first
// encrypted chunk (nonce + ciphertext + tag), not the plaintext chunk
// size. It requires only that those 5 bytes exist; it does not validate
// the rest of the file.
func BackupChunkSize(src string) (int64, error) {
	file, err := os.Open(src)
	if err != nil {
		return 0, apperrors.NewIOError(fmt.Errorf("opening backup file: %w", err))
	}
	defer func() { _ = file.Close() }()

	var lenBuf [section.LenSize]byte
	if _, err := io.ReadFull(file, lenBuf[:]); err != nil {
		return 0, apperrors.NewIOError(fmt.Errorf("reading first section length prefix: %w", err))
	}

	return int64(section.DecodeLen(lenBuf)), nil
}
