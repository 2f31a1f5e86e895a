// Package hostfs is the filesystem collaborator the extension runtime talks
// to. The runtime only ever sees the FS interface; OS implements it on top
// of a vault directory laid out as:
//
//	<vault>/.kairo/extensions/<folder>/manifest.json
//	<vault>/.kairo/extensions/<folder>/<main>
//	<vault>/.kairo/extension-settings.json
package hostfs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"

	"github.com/tidwall/gjson"
)

// ManifestFile is the manifest file name inside an extension folder.
const ManifestFile = "manifest.json"

// Default vault-relative locations.
const (
	DefaultExtensionsDir = ".kairo/extensions"
	DefaultSettingsFile  = ".kairo/extension-settings.json"
)

// Errors returned by OS.
var (
	ErrNotDirectory    = errors.New("path is not a directory")
	ErrManifestMissing = errors.New("manifest.json not found")
	ErrExtensionExists = errors.New("extension already installed")
	ErrInvalidID       = errors.New("invalid extension id")
)

// FS is the narrow host interface consumed by the extension registry.
type FS interface {
	// ListExtensionFolders returns every directory under root that holds a
	// manifest, in directory-listing order. A missing root yields no folders.
	ListExtensionFolders(root string) ([]string, error)

	// ReadExtensionManifest returns the raw manifest of a folder.
	ReadExtensionManifest(folder string) ([]byte, error)

	// ReadFileText returns the content of a source file.
	ReadFileText(path string) (string, error)

	// ReadExtensionSettings returns the persisted settings document.
	// A missing document is reported with an error wrapping fs.ErrNotExist.
	ReadExtensionSettings(vault string) ([]byte, error)

	// SaveExtensionSettings replaces the persisted settings document.
	SaveExtensionSettings(vault string, data []byte) error

	// RemoveExtensionFolder deletes an installed extension folder. A folder
	// that no longer exists is not an error.
	RemoveExtensionFolder(folder string) error
}

var idPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,63}$`)

// OS implements FS on the local filesystem.
type OS struct {
	// ExtensionsDir is the vault-relative extensions directory.
	ExtensionsDir string

	// SettingsFile is the vault-relative settings document.
	SettingsFile string
}

// NewOS returns an OS using the default vault layout.
func NewOS() *OS {
	return &OS{
		ExtensionsDir: DefaultExtensionsDir,
		SettingsFile:  DefaultSettingsFile,
	}
}

// ExtensionsPath returns the extensions directory of a vault.
func (o *OS) ExtensionsPath(vault string) string {
	dir := o.ExtensionsDir
	if dir == "" {
		dir = DefaultExtensionsDir
	}
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(vault, filepath.FromSlash(dir))
}

// SettingsPath returns the settings document path of a vault.
func (o *OS) SettingsPath(vault string) string {
	file := o.SettingsFile
	if file == "" {
		file = DefaultSettingsFile
	}
	return filepath.Join(vault, filepath.FromSlash(file))
}

// EnsureExtensionsDirectory creates the extensions directory if needed and
// returns its path.
func (o *OS) EnsureExtensionsDirectory(vault string) (string, error) {
	dir := o.ExtensionsPath(vault)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create extensions directory: %w", err)
	}
	return dir, nil
}

// ListExtensionFolders implements FS.
func (o *OS) ListExtensionFolders(root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s: %w", root, ErrNotDirectory)
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}

	var folders []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		folder := filepath.Join(root, entry.Name())
		if _, err := os.Stat(filepath.Join(folder, ManifestFile)); err == nil {
			folders = append(folders, folder)
		}
	}
	return folders, nil
}

// ReadExtensionManifest implements FS.
func (o *OS) ReadExtensionManifest(folder string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(folder, ManifestFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", folder, ErrManifestMissing)
		}
		return nil, err
	}
	return data, nil
}

// ReadFileText implements FS.
func (o *OS) ReadFileText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ReadExtensionSettings implements FS.
func (o *OS) ReadExtensionSettings(vault string) ([]byte, error) {
	return os.ReadFile(o.SettingsPath(vault))
}

// SaveExtensionSettings implements FS. The document is written to a
// temporary file and renamed into place.
func (o *OS) SaveExtensionSettings(vault string, data []byte) error {
	path := o.SettingsPath(vault)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create settings directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".extension-settings-*")
	if err != nil {
		return fmt.Errorf("create temp settings: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close settings: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace settings: %w", err)
	}
	return nil
}

// RemoveExtension deletes the folder whose manifest declares id from the
// extensions directory of the vault. Folder names are not consulted.
// Removing an extension that is not installed is a no-op.
func (o *OS) RemoveExtension(vault, id string) error {
	if !idPattern.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}

	folder, err := o.findByID(o.ExtensionsPath(vault), id)
	if err != nil || folder == "" {
		return err
	}
	return os.RemoveAll(folder)
}

// RemoveExtensionFolder implements FS. The folder must still hold a
// manifest, so a stray path never takes a directory tree with it.
func (o *OS) RemoveExtensionFolder(folder string) error {
	info, err := os.Stat(folder)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s: %w", folder, ErrNotDirectory)
	}
	if _, err := os.Stat(filepath.Join(folder, ManifestFile)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%s: %w", folder, ErrManifestMissing)
		}
		return err
	}
	return os.RemoveAll(folder)
}

// ExtensionExists reports whether an extension with the id is installed.
func (o *OS) ExtensionExists(vault, id string) bool {
	if !idPattern.MatchString(id) {
		return false
	}
	folder, err := o.findByID(o.ExtensionsPath(vault), id)
	return err == nil && folder != ""
}

// ImportExtension copies the extension folder src into the vault under a
// folder named after its manifest id and returns the installed path.
func (o *OS) ImportExtension(vault, src string) (string, error) {
	data, err := o.ReadExtensionManifest(src)
	if err != nil {
		return "", err
	}
	id := gjson.GetBytes(data, "id").String()
	if !idPattern.MatchString(id) {
		return "", fmt.Errorf("%w: %q", ErrInvalidID, id)
	}

	root, err := o.EnsureExtensionsDirectory(vault)
	if err != nil {
		return "", err
	}
	if o.ExtensionExists(vault, id) {
		return "", fmt.Errorf("%s: %w", id, ErrExtensionExists)
	}

	dest := filepath.Join(root, id)
	if _, err := os.Stat(dest); err == nil {
		return "", fmt.Errorf("%s: folder taken: %w", dest, ErrExtensionExists)
	}
	if err := os.CopyFS(dest, os.DirFS(src)); err != nil {
		return "", fmt.Errorf("copy extension %s: %w", id, err)
	}
	return dest, nil
}

// findByID returns the folder under root whose manifest declares id.
func (o *OS) findByID(root, id string) (string, error) {
	folders, err := o.ListExtensionFolders(root)
	if err != nil {
		return "", err
	}
	for _, folder := range folders {
		data, err := o.ReadExtensionManifest(folder)
		if err != nil {
			continue
		}
		if gjson.GetBytes(data, "id").String() == id {
			return folder, nil
		}
	}
	return "", nil
}
