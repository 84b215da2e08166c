// Package reliability implements the engine's backup-and-restore surface
// (SPEC_FULL §2 ambient stack): periodic SQLite snapshots of the four stores,
// archived and shipped to an S3-compatible bucket.
package reliability

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/kairoslabs/perpsentinel/internal/database"
	"github.com/rs/zerolog"

	_ "modernc.org/sqlite"
)

// BackupService snapshots the engine's four SQLite stores via VACUUM INTO,
// archives them into a single tar.gz, and ships the archive to an
// S3-compatible bucket, mirroring the teacher's local-then-cloud split.
type BackupService struct {
	stores  *database.Stores
	s3      *S3Client
	dataDir string
	log     zerolog.Logger
}

// New creates a backup service. s3 may be nil, in which case backups are
// staged locally but never uploaded (used when BackupConfig.Enabled is
// false, or credentials are absent).
func New(stores *database.Stores, s3 *S3Client, dataDir string, log zerolog.Logger) *BackupService {
	return &BackupService{
		stores:  stores,
		s3:      s3,
		dataDir: dataDir,
		log:     log.With().Str("component", "backup").Logger(),
	}
}

// archiveMetadata describes the contents of one backup archive.
type archiveMetadata struct {
	Timestamp time.Time    `json:"timestamp"`
	Databases []dbMetadata `json:"databases"`
}

type dbMetadata struct {
	Name      string `json:"name"`
	Filename  string `json:"filename"`
	SizeBytes int64  `json:"size_bytes"`
	Checksum  string `json:"checksum"`
}

// BackupInfo describes one archive stored in the bucket.
type BackupInfo struct {
	Filename  string
	Timestamp time.Time
	SizeBytes int64
	AgeHours  int64
}

const archivePrefix = "perpsentinel-backup-"

// Run performs one full backup cycle: snapshot every store, archive, upload.
// This is the scheduler.Job entry point (see Job below).
func (s *BackupService) Run() error {
	ctx := context.Background()
	return s.RunContext(ctx)
}

// Name satisfies scheduler.Job.
func (s *BackupService) Name() string { return "sqlite_backup" }

// RunContext performs the same work as Run but accepts a caller-supplied
// context, used by the one-shot CLI backup path.
func (s *BackupService) RunContext(ctx context.Context) error {
	s.log.Info().Msg("starting backup")
	start := time.Now()

	stagingDir := filepath.Join(s.dataDir, "backup-staging")
	if err := os.MkdirAll(stagingDir, 0755); err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(stagingDir)

	meta := archiveMetadata{Timestamp: time.Now().UTC()}

	for _, db := range s.stores.All() {
		name := string(db.Name())
		dest := filepath.Join(stagingDir, name+".db")

		if err := s.snapshotOne(db, dest); err != nil {
			return fmt.Errorf("failed to snapshot %s: %w", name, err)
		}
		if err := s.verify(dest); err != nil {
			os.Remove(dest)
			return fmt.Errorf("backup verification failed for %s: %w", name, err)
		}

		info, err := os.Stat(dest)
		if err != nil {
			return fmt.Errorf("failed to stat %s snapshot: %w", name, err)
		}
		checksum, err := checksumFile(dest)
		if err != nil {
			return fmt.Errorf("failed to checksum %s snapshot: %w", name, err)
		}
		meta.Databases = append(meta.Databases, dbMetadata{
			Name: name, Filename: name + ".db", SizeBytes: info.Size(), Checksum: checksum,
		})
	}

	metaPath := filepath.Join(stagingDir, "backup-metadata.json")
	if err := writeMetadata(metaPath, meta); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}

	timestamp := time.Now().Format("2006-01-02-150405")
	archiveName := fmt.Sprintf("%s%s.tar.gz", archivePrefix, timestamp)
	archivePath := filepath.Join(stagingDir, archiveName)

	names := make([]string, 0, len(meta.Databases)+1)
	for _, d := range meta.Databases {
		names = append(names, d.Filename)
	}
	names = append(names, "backup-metadata.json")
	if err := createArchive(archivePath, stagingDir, names); err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}

	if s.s3 == nil {
		localDir := filepath.Join(s.dataDir, "backups")
		if err := os.MkdirAll(localDir, 0755); err != nil {
			return fmt.Errorf("failed to create local backup directory: %w", err)
		}
		if err := copyFile(archivePath, filepath.Join(localDir, archiveName)); err != nil {
			return fmt.Errorf("failed to stage local backup: %w", err)
		}
		s.log.Warn().Str("archive", archiveName).Msg("no s3 client configured, backup kept locally only")
		return nil
	}

	archiveInfo, err := os.Stat(archivePath)
	if err != nil {
		return fmt.Errorf("failed to stat archive: %w", err)
	}
	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer f.Close()

	if err := s.s3.Upload(ctx, archiveName, f, archiveInfo.Size()); err != nil {
		return fmt.Errorf("failed to upload backup: %w", err)
	}

	s.log.Info().
		Dur("duration_ms", time.Since(start)).
		Str("archive", archiveName).
		Int64("size_mb", archiveInfo.Size()/1024/1024).
		Msg("backup completed")
	return nil
}

// snapshotOne uses SQLite's VACUUM INTO for an atomic, WAL-free copy.
func (s *BackupService) snapshotOne(db *database.DB, dest string) error {
	_, err := db.Conn().Exec(fmt.Sprintf("VACUUM INTO '%s'", dest))
	if err != nil {
		return fmt.Errorf("VACUUM INTO failed: %w", err)
	}
	return nil
}

func (s *BackupService) verify(path string) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("failed to open snapshot for verification: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check query failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}
	return nil
}

// ListBackups lists every archive in the bucket, newest first.
func (s *BackupService) ListBackups(ctx context.Context) ([]BackupInfo, error) {
	if s.s3 == nil {
		return nil, fmt.Errorf("backup service has no s3 client configured")
	}
	objects, err := s.s3.List(ctx, archivePrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list backups: %w", err)
	}

	backups := make([]BackupInfo, 0, len(objects))
	now := time.Now()
	for _, obj := range objects {
		if obj.Key == nil {
			continue
		}
		name := *obj.Key
		if !strings.HasPrefix(name, archivePrefix) || !strings.HasSuffix(name, ".tar.gz") {
			continue
		}
		stamp := strings.TrimSuffix(strings.TrimPrefix(name, archivePrefix), ".tar.gz")
		ts, err := time.Parse("2006-01-02-150405", stamp)
		if err != nil {
			s.log.Warn().Str("filename", name).Msg("failed to parse backup timestamp")
			continue
		}
		var size int64
		if obj.Size != nil {
			size = *obj.Size
		}
		backups = append(backups, BackupInfo{Filename: name, Timestamp: ts, SizeBytes: size, AgeHours: int64(now.Sub(ts).Hours())})
	}

	sort.Slice(backups, func(i, j int) bool { return backups[i].Timestamp.After(backups[j].Timestamp) })
	return backups, nil
}

// RotateOldBackups deletes archives older than retentionDays, always keeping
// at least the 3 most recent regardless of age.
func (s *BackupService) RotateOldBackups(ctx context.Context, retentionDays int) error {
	const minKeep = 3

	backups, err := s.ListBackups(ctx)
	if err != nil {
		return err
	}
	if len(backups) <= minKeep || retentionDays <= 0 {
		return nil
	}

	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	deleted := 0
	for i, b := range backups {
		if i < minKeep || !b.Timestamp.Before(cutoff) {
			continue
		}
		if err := s.s3.Delete(ctx, b.Filename); err != nil {
			s.log.Error().Err(err).Str("filename", b.Filename).Msg("failed to delete old backup")
			continue
		}
		deleted++
	}
	s.log.Info().Int("deleted", deleted).Int("remaining", len(backups)-deleted).Msg("backup rotation completed")
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}

func checksumFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("sha256:%x", h.Sum(nil)), nil
}

func writeMetadata(path string, meta archiveMetadata) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(meta)
}

func createArchive(archivePath, sourceDir string, fileNames []string) error {
	f, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("failed to create archive file: %w", err)
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	defer gz.Close()
	tw := tar.NewWriter(gz)
	defer tw.Close()

	for _, name := range fileNames {
		if err := addFile(tw, filepath.Join(sourceDir, name), name); err != nil {
			return fmt.Errorf("failed to add %s to archive: %w", name, err)
		}
	}
	return nil
}

func addFile(tw *tar.Writer, path, nameInArchive string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	header := &tar.Header{
		Name:    nameInArchive,
		Size:    info.Size(),
		Mode:    int64(info.Mode()),
		ModTime: info.ModTime(),
	}
	if err := tw.WriteHeader(header); err != nil {
		return err
	}
	_, err = io.Copy(tw, f)
	return err
}
