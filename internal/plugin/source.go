// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vessel Contributors

package plugin

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/samber/oops"
)

// ManifestFile is a raw manifest plus the directory it was found in.
type ManifestFile struct {
	Dir  string
	Data []byte
}

// ManifestSource yields candidate plugin manifests for discovery.
type ManifestSource interface {
	Manifests() ([]ManifestFile, error)
}

// DirSource reads plugin.yaml files from immediate subdirectories of a
// plugins directory.
type DirSource struct {
	root string
}

// NewDirSource creates a source rooted at the given plugins directory.
func NewDirSource(root string) *DirSource {
	return &DirSource{root: root}
}

// Manifests scans the root for plugin directories. Directories without a
// manifest and manifests over the size limit are logged and skipped; a
// missing root yields no manifests.
func (s *DirSource) Manifests() ([]ManifestFile, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, oops.Code(CodeConfigInvalid).
			With("dir", s.root).
			Wrapf(err, "failed to read plugins directory")
	}

	var files []ManifestFile
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		dir := filepath.Join(s.root, entry.Name())
		path := filepath.Join(dir, "plugin.yaml")

		info, err := os.Lstat(path)
		if err != nil {
			if !os.IsNotExist(err) {
				slog.Warn("skipping unreadable plugin manifest", "dir", entry.Name(), "error", err)
			}
			continue
		}
		if !info.Mode().IsRegular() {
			slog.Warn("skipping non-regular plugin manifest", "dir", entry.Name(), "mode", info.Mode().String())
			continue
		}
		if info.Size() > MaxManifestSize {
			slog.Warn("skipping oversized plugin manifest",
				"dir", entry.Name(),
				"size", info.Size(),
				"max", int64(MaxManifestSize))
			continue
		}

		data, err := os.ReadFile(path) //nolint:gosec // path is constructed from ReadDir entries
		if err != nil {
			slog.Warn("skipping plugin without readable manifest", "dir", entry.Name(), "error", err)
			continue
		}

		files = append(files, ManifestFile{Dir: dir, Data: data})
	}

	return files, nil
}

// ReadManifest reads, parses, and validates plugin.yaml from a single
// plugin directory.
func ReadManifest(dir string) (*Manifest, error) {
	data, err := readManifestFile(dir)
	if err != nil {
		return nil, err
	}
	return ParseManifest(data)
}

// readManifestFile reads plugin.yaml from a plugin directory, enforcing
// the manifest size limit.
func readManifestFile(dir string) ([]byte, error) {
	path := filepath.Join(dir, "plugin.yaml")
	info, err := os.Lstat(path)
	if err != nil {
		return nil, oops.Code(CodeManifestInvalid).With("dir", dir).Wrapf(err, "cannot stat manifest")
	}
	if info.Size() > MaxManifestSize {
		return nil, oops.Code(CodeManifestTooLarge).
			With("dir", dir).
			With("size", info.Size()).
			New("manifest exceeds size limit")
	}
	data, err := os.ReadFile(path) //nolint:gosec // fixed name under the plugin dir
	if err != nil {
		return nil, oops.Code(CodeManifestInvalid).With("dir", dir).Wrapf(err, "cannot read manifest")
	}
	return data, nil
}

// FSSource reads manifests from an fs.FS, used in tests and for embedded
// plugin bundles.
type FSSource struct {
	fsys fs.FS
}

// NewFSSource creates a source over an fs.FS whose top-level directories
// are plugin directories.
func NewFSSource(fsys fs.FS) *FSSource {
	return &FSSource{fsys: fsys}
}

// Manifests scans the filesystem root for plugin directories.
func (s *FSSource) Manifests() ([]ManifestFile, error) {
	entries, err := fs.ReadDir(s.fsys, ".")
	if err != nil {
		return nil, oops.Code(CodeConfigInvalid).Wrapf(err, "failed to read plugin bundle")
	}

	var files []ManifestFile
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		data, err := fs.ReadFile(s.fsys, entry.Name()+"/plugin.yaml")
		if err != nil {
			slog.Warn("skipping bundled plugin without manifest", "dir", entry.Name(), "error", err)
			continue
		}
		if len(data) > MaxManifestSize {
			slog.Warn("skipping oversized bundled manifest", "dir", entry.Name(), "size", len(data))
			continue
		}
		files = append(files, ManifestFile{Dir: entry.Name(), Data: data})
	}

	return files, nil
}
