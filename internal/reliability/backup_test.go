package reliability

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/kairoslabs/perpsentinel/internal/database"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackupService_RunContext_StagesArchiveLocallyWithoutS3Client(t *testing.T) {
	dataDir := t.TempDir()
	stores, err := database.OpenStores(dataDir)
	require.NoError(t, err)
	defer stores.Close()

	svc := New(stores, nil, dataDir, zerolog.Nop())
	require.NoError(t, svc.RunContext(context.Background()))

	localDir := filepath.Join(dataDir, "backups")
	entries, err := os.ReadDir(localDir)
	require.NoError(t, err)

	var sawArchive bool
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".gz" {
			sawArchive = true
		}
	}
	assert.True(t, sawArchive, "expected a .tar.gz archive to remain staged")
}

func TestBackupService_Name_ReportsJobName(t *testing.T) {
	svc := New(nil, nil, t.TempDir(), zerolog.Nop())
	assert.Equal(t, "sqlite_backup", svc.Name())
}

func TestChecksumFile_IsDeterministicForSameContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0644))

	a, err := checksumFile(path)
	require.NoError(t, err)
	b, err := checksumFile(path)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Contains(t, a, "sha256:")
}
