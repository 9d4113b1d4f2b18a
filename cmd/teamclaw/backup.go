package main

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/spf13/cobra"
	"github.com/teamclaw/teamclaw/internal/config"
	"github.com/teamclaw/teamclaw/internal/store"
)

// archivePrefix is the directory every entry of a backup archive lives in.
const archivePrefix = "teamclaw-store"

var restoreOverwrite bool

var backupCmd = &cobra.Command{
	Use:   "backup <output.tar.zst>",
	Short: "Back up the store to a zstd-compressed tar archive",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		size, err := runBackup(cfg.Store.Path, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Backup complete: %s\n", formatSize(size))
		return nil
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore <backup.tar.zst>",
	Short: "Restore the store from a backup archive",
	Long: `Restores the store database from an archive written by "teamclaw backup".
The gateway must not be running.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := runRestore(args[0], cfg.Store.Path, restoreOverwrite); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Restore complete: %s\n", cfg.Store.Path)
		return nil
	},
}

func init() {
	restoreCmd.Flags().BoolVar(&restoreOverwrite, "overwrite", false, "replace an existing store")
}

// runBackup snapshots the store at dbPath and writes it to outputPath. It
// returns the archive size.
func runBackup(dbPath, outputPath string) (int64, error) {
	if _, err := os.Stat(dbPath); err != nil {
		return 0, fmt.Errorf("store not found: %w", err)
	}

	db, err := store.New(config.StoreConfig{Path: dbPath})
	if err != nil {
		return 0, fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	tmpDir, err := os.MkdirTemp("", "teamclaw-backup-")
	if err != nil {
		return 0, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	snapshot := filepath.Join(tmpDir, filepath.Base(dbPath))
	if err := db.Snapshot(snapshot); err != nil {
		return 0, err
	}

	f, err := os.Create(outputPath)
	if err != nil {
		return 0, fmt.Errorf("create output file: %w", err)
	}
	defer f.Close()

	zw, err := zstd.NewWriter(f)
	if err != nil {
		return 0, fmt.Errorf("create zstd writer: %w", err)
	}
	defer zw.Close()

	tw := tar.NewWriter(zw)
	defer tw.Close()

	slog.Info("backing up store", "path", dbPath)
	if err := addFile(tw, snapshot, path.Join(archivePrefix, filepath.Base(dbPath))); err != nil {
		return 0, err
	}

	// Close everything explicitly to catch write errors
	if err := tw.Close(); err != nil {
		return 0, fmt.Errorf("close tar: %w", err)
	}
	if err := zw.Close(); err != nil {
		return 0, fmt.Errorf("close zstd: %w", err)
	}
	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("close file: %w", err)
	}

	info, err := os.Stat(outputPath)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func addFile(tw *tar.Writer, src, name string) error {
	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	hdr := &tar.Header{
		Name:    name,
		Mode:    0o644,
		Size:    info.Size(),
		ModTime: time.Now(),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("write tar header: %w", err)
	}
	if _, err := io.Copy(tw, f); err != nil {
		return fmt.Errorf("write tar data: %w", err)
	}
	return nil
}

// runRestore extracts the store database from inputPath to dbPath.
func runRestore(inputPath, dbPath string, overwrite bool) error {
	if _, err := os.Stat(dbPath); err == nil && !overwrite {
		return fmt.Errorf("store %s already exists, add --overwrite to replace it", dbPath)
	}

	f, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		return fmt.Errorf("create zstd reader: %w", err)
	}
	defer zr.Close()

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	tr := tar.NewReader(zr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read tar entry: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg || archiveEntry(hdr.Name) == "" {
			continue
		}

		// Write next to the target first so a broken archive leaves the
		// existing store untouched.
		tmp := dbPath + ".restore"
		if err := writeFile(tmp, tr); err != nil {
			os.Remove(tmp)
			return err
		}
		for _, suffix := range []string{"-wal", "-shm"} {
			if err := os.Remove(dbPath + suffix); err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("remove stale %s: %w", suffix, err)
			}
		}
		if err := os.Rename(tmp, dbPath); err != nil {
			return fmt.Errorf("replace store: %w", err)
		}
		slog.Info("store restored", "path", dbPath)
		return nil
	}

	return fmt.Errorf("archive %s contains no store", inputPath)
}

func writeFile(dst string, r io.Reader) error {
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return fmt.Errorf("write %s: %w", dst, err)
	}
	return out.Close()
}

// archiveEntry returns the file name of a store entry such as
// "teamclaw-store/teamclaw.db", or "" for anything else.
func archiveEntry(name string) string {
	// Clean leading slashes/dots
	name = strings.TrimLeft(name, "./")
	dir, file, ok := strings.Cut(name, "/")
	if !ok || dir != archivePrefix {
		return ""
	}
	if file == "" || strings.Contains(file, "/") || file == ".." {
		return ""
	}
	return file
}

func formatSize(bytes int64) string {
	const (
		kb = 1024
		mb = kb * 1024
		gb = mb * 1024
	)
	switch {
	case bytes >= gb:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(gb))
	case bytes >= mb:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(mb))
	case bytes >= kb:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(kb))
	default:
		return fmt.Sprintf("%d bytes", bytes)
	}
}
