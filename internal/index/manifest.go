package index

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const (
	// ManifestVersion is the current artifact schema version.
	ManifestVersion = 1

	ContentStoreFile  = "content_store.json"
	InvertedIndexFile = "inverted_index.json"
	RoleIndexFile     = "role_index.json"
	IDFIndexFile      = "idf_index.json"
	ManifestFile      = "manifest.json"
	LockFile          = "build.lock"
)

// ArtifactFiles lists the artifacts in write order. The manifest is always written after them.
var ArtifactFiles = []string{ContentStoreFile, InvertedIndexFile, RoleIndexFile, IDFIndexFile}

// Manifest describes a complete artifact set. It is written last, so its
// presence means every artifact it lists was fully renamed into place.
type Manifest struct {
	Version int               `json:"version"`
	Pages   int               `json:"pages"`
	Terms   int               `json:"terms"`
	Roles   int               `json:"roles"`
	Digests map[string]string `json:"digests"`
}

// LoadManifest reads the manifest in dir. A missing manifest returns (nil, nil).
func LoadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("%w: manifest: %w", ErrArtifactCorrupt, err)
	}
	if manifest.Version != ManifestVersion {
		return nil, fmt.Errorf("%w: unsupported manifest version %d", ErrArtifactCorrupt, manifest.Version)
	}
	return &manifest, nil
}

// Save writes the manifest into dir atomically.
func (m *Manifest) Save(dir string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	return writeFileAtomic(filepath.Join(dir, ManifestFile), append(data, '\n'))
}

// Verify checks data against the recorded digest for name.
// Artifacts the manifest does not list are accepted.
func (m *Manifest) Verify(name string, data []byte) error {
	want, ok := m.Digests[name]
	if !ok {
		return nil
	}
	if got := digest(data); got != want {
		return fmt.Errorf("%w: %s digest mismatch", ErrArtifactCorrupt, name)
	}
	return nil
}

func digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// writeFileAtomic writes to a temp file in the same directory and renames it over path.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create index directory: %w", err)
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(tempPath), err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename %s: %w", filepath.Base(path), err)
	}
	return nil
}
