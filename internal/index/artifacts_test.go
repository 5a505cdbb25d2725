package index

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/sha1n/relic-rag/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleArtifacts() *Artifacts {
	a := NewArtifacts()
	a.AddPage("fin_sec_0", domain.Page{Title: "Report", RoleAccess: []string{"finance"}, Content: "revenue revenue"},
		map[string]int{"revenue": 2})
	a.AddPage("all_sec_0", domain.Page{Title: "Handbook", RoleAccess: []string{"employee", "finance"}, Content: "revenue leave"},
		map[string]int{"revenue": 1, "leave": 1})
	a.Finalize()
	return a
}

func TestArtifacts_Finalize(t *testing.T) {
	a := sampleArtifacts()

	assert.Equal(t, []domain.Posting{{PageID: "all_sec_0", TF: 1}, {PageID: "fin_sec_0", TF: 2}}, a.Inverted["revenue"])
	assert.Equal(t, []string{"all_sec_0", "fin_sec_0"}, a.Roles["finance"])
	assert.Equal(t, []string{"all_sec_0"}, a.Roles["employee"])

	// N=2: revenue df=2, leave df=1
	assert.InDelta(t, math.Log(2.0/3.0)+1, a.IDF["revenue"], 1e-12)
	assert.InDelta(t, 1.0, a.IDF["leave"], 1e-12)
}

func TestIDF_AlwaysPositive(t *testing.T) {
	for n := 1; n <= 50; n++ {
		for df := 1; df <= n; df++ {
			if w := idf(float64(n), df); w <= 0 {
				t.Fatalf("idf(%d, %d) = %f, want > 0", n, df, w)
			}
		}
	}
}

func TestArtifacts_WriteAndRead(t *testing.T) {
	dir := t.TempDir()
	a := sampleArtifacts()

	manifest, err := a.Write(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, manifest.Pages)
	assert.Equal(t, 2, manifest.Terms)
	assert.Len(t, manifest.Digests, len(ArtifactFiles))

	for _, name := range append(ArtifactFiles, ManifestFile) {
		assert.FileExists(t, filepath.Join(dir, name))
		assert.NoFileExists(t, filepath.Join(dir, name+".tmp"))
	}

	read, readManifest, err := ReadArtifacts(dir)
	require.NoError(t, err)
	assert.Equal(t, manifest, readManifest)
	assert.Equal(t, a.Pages, read.Pages)
	assert.Equal(t, a.Inverted, read.Inverted)
	assert.Equal(t, a.Roles, read.Roles)
	assert.Equal(t, a.IDF, read.IDF)
}

func TestArtifacts_WriteDeterministic(t *testing.T) {
	dirA, dirB := t.TempDir(), t.TempDir()
	_, err := sampleArtifacts().Write(dirA)
	require.NoError(t, err)
	_, err = sampleArtifacts().Write(dirB)
	require.NoError(t, err)

	for _, name := range append(ArtifactFiles, ManifestFile) {
		a, err := os.ReadFile(filepath.Join(dirA, name))
		require.NoError(t, err)
		b, err := os.ReadFile(filepath.Join(dirB, name))
		require.NoError(t, err)
		assert.Equal(t, string(a), string(b), name)
	}
}

func TestReadArtifacts_MissingRequired(t *testing.T) {
	for _, name := range []string{ContentStoreFile, InvertedIndexFile, RoleIndexFile} {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			_, err := sampleArtifacts().Write(dir)
			require.NoError(t, err)
			require.NoError(t, os.Remove(filepath.Join(dir, name)))

			_, _, err = ReadArtifacts(dir)
			assert.ErrorIs(t, err, ErrArtifactMissing)
		})
	}
}

func TestReadArtifacts_EmptyDir(t *testing.T) {
	_, _, err := ReadArtifacts(t.TempDir())
	assert.ErrorIs(t, err, ErrArtifactMissing)
}

func TestReadArtifacts_MissingIDF(t *testing.T) {
	dir := t.TempDir()
	_, err := sampleArtifacts().Write(dir)
	require.NoError(t, err)
	require.NoError(t, os.Remove(filepath.Join(dir, IDFIndexFile)))

	a, _, err := ReadArtifacts(dir)
	require.NoError(t, err)
	assert.Nil(t, a.IDF)
}

func TestReadArtifacts_DigestMismatch(t *testing.T) {
	dir := t.TempDir()
	_, err := sampleArtifacts().Write(dir)
	require.NoError(t, err)

	// a torn rebuild: content store replaced after the manifest was written
	require.NoError(t, os.WriteFile(filepath.Join(dir, ContentStoreFile), []byte("{}\n"), 0644))

	_, _, err = ReadArtifacts(dir)
	assert.ErrorIs(t, err, ErrArtifactCorrupt)
}

func TestReadArtifacts_InvalidJSON(t *testing.T) {
	dir := t.TempDir()
	_, err := sampleArtifacts().Write(dir)
	require.NoError(t, err)
	require.NoError(t, os.Remove(filepath.Join(dir, ManifestFile)))
	require.NoError(t, os.WriteFile(filepath.Join(dir, RoleIndexFile), []byte("{broken"), 0644))

	_, _, err = ReadArtifacts(dir)
	assert.ErrorIs(t, err, ErrArtifactCorrupt)
}

func TestReadArtifacts_DanglingReference(t *testing.T) {
	dir := t.TempDir()
	_, err := sampleArtifacts().Write(dir)
	require.NoError(t, err)
	require.NoError(t, os.Remove(filepath.Join(dir, ManifestFile)))
	require.NoError(t, os.WriteFile(filepath.Join(dir, RoleIndexFile), []byte(`{"finance": ["ghost_sec_0"]}`), 0644))

	_, _, err = ReadArtifacts(dir)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrArtifactCorrupt))
	assert.Contains(t, err.Error(), "ghost_sec_0")
}

func TestReadArtifacts_WithoutManifest(t *testing.T) {
	dir := t.TempDir()
	_, err := sampleArtifacts().Write(dir)
	require.NoError(t, err)
	require.NoError(t, os.Remove(filepath.Join(dir, ManifestFile)))

	a, manifest, err := ReadArtifacts(dir)
	require.NoError(t, err)
	assert.Nil(t, manifest)
	assert.Len(t, a.Pages, 2)
}
