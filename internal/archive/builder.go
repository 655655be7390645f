package archive

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/craftops/agent/pkg/logger"
)

// Selectors choose which parts of the server tree go into an archive
type Selectors struct {
	Worlds     bool
	PluginData bool
	Configs    bool
}

// Any reports whether at least one selector is set
func (s Selectors) Any() bool {
	return s.Worlds || s.PluginData || s.Configs
}

// WorldDirs is the fixed set of world-data directories bundled by the
// worlds selector, when present on disk.
var WorldDirs = []string{"world", "world_nether", "world_the_end"}

// PluginDataDir is the plugin-data root bundled by the plugin-data selector
const PluginDataDir = "plugins"

// ConfigFiles is the fixed set of top-level config files bundled by the
// configs selector. Missing files are silently skipped.
var ConfigFiles = []string{
	"server.properties",
	"bukkit.yml",
	"spigot.yml",
	"paper-global.yml",
	"ops.json",
	"whitelist.json",
	"banned-players.json",
	"banned-ips.json",
}

// ConfigDir is the optional config directory bundled by the configs selector
const ConfigDir = "config"

// Builder produces compressed archives from the server working tree
type Builder struct {
	serverDir string
}

// NewBuilder creates a new archive builder rooted at the server directory
func NewBuilder(serverDir string) *Builder {
	return &Builder{serverDir: serverDir}
}

// Filename returns a second-resolution timestamped archive name.
// Pre-update safety backups carry a distinguishing prefix.
func Filename(prefix string, t time.Time) string {
	return fmt.Sprintf("%sbackup_%s.tar.gz", prefix, t.Format("2006-01-02_15-04-05"))
}

// Build writes one compressed archive for the selected content into
// destDir and returns its path and size. Missing optional sources are
// skipped; an unreadable selected source or an unwritable destination
// fails the build.
func (b *Builder) Build(selectors Selectors, destDir, filename string) (string, int64, error) {
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return "", 0, fmt.Errorf("failed to create backup directory: %w", err)
	}

	archivePath := filepath.Join(destDir, filename)
	archiveFile, err := os.Create(archivePath)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create archive file: %w", err)
	}

	gzipWriter := gzip.NewWriter(archiveFile)
	tarWriter := tar.NewWriter(gzipWriter)

	err = b.addSelected(tarWriter, selectors)
	if err == nil {
		err = tarWriter.Close()
	} else {
		tarWriter.Close()
	}
	if cerr := gzipWriter.Close(); err == nil {
		err = cerr
	}
	if cerr := archiveFile.Close(); err == nil {
		err = cerr
	}

	if err != nil {
		os.Remove(archivePath)
		return "", 0, fmt.Errorf("failed to build archive: %w", err)
	}

	info, err := os.Stat(archivePath)
	if err != nil {
		return "", 0, fmt.Errorf("failed to stat archive: %w", err)
	}

	return archivePath, info.Size(), nil
}

func (b *Builder) addSelected(tw *tar.Writer, selectors Selectors) error {
	if selectors.Worlds {
		for _, dir := range WorldDirs {
			if err := b.addDirIfPresent(tw, dir); err != nil {
				return err
			}
		}
	}

	if selectors.PluginData {
		if err := b.addDirIfPresent(tw, PluginDataDir); err != nil {
			return err
		}
	}

	if selectors.Configs {
		for _, name := range ConfigFiles {
			if err := b.addFileIfPresent(tw, name); err != nil {
				return err
			}
		}
		if err := b.addDirIfPresent(tw, ConfigDir); err != nil {
			return err
		}
	}

	return nil
}

// addDirIfPresent recursively adds a directory under the server root,
// preserving relative paths as entry names. Absent directories are skipped.
func (b *Builder) addDirIfPresent(tw *tar.Writer, relDir string) error {
	root := filepath.Join(b.serverDir, relDir)
	info, err := os.Stat(root)
	if os.IsNotExist(err) {
		logger.Debug("Archive source missing, skipping", map[string]interface{}{
			"path": relDir,
		})
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", relDir, err)
	}
	if !info.IsDir() {
		return b.addFileIfPresent(tw, relDir)
	}

	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		relPath, err := filepath.Rel(b.serverDir, path)
		if err != nil {
			return err
		}
		return b.writeEntry(tw, path, relPath, info)
	})
}

// addFileIfPresent adds a single file under the server root. Absent
// files are skipped silently.
func (b *Builder) addFileIfPresent(tw *tar.Writer, relPath string) error {
	path := filepath.Join(b.serverDir, relPath)
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", relPath, err)
	}
	if info.IsDir() {
		return nil
	}
	return b.writeEntry(tw, path, relPath, info)
}

func (b *Builder) writeEntry(tw *tar.Writer, path, relPath string, info os.FileInfo) error {
	header := &tar.Header{
		Name:    filepath.ToSlash(relPath),
		Size:    info.Size(),
		Mode:    int64(info.Mode()),
		ModTime: info.ModTime(),
	}
	if err := tw.WriteHeader(header); err != nil {
		return err
	}

	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	if _, err := io.Copy(tw, file); err != nil {
		return err
	}
	return nil
}
