package storage

import (
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/craftops/agent/internal/events"
	"github.com/craftops/agent/pkg/logger"
)

// OffsiteConfig holds the SFTP target for offsite archive copies
type OffsiteConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Path     string // remote directory archives land in
}

// OffsiteReplicator mirrors backup archives to a remote SFTP target.
// It subscribes to backup lifecycle events, so replication never sits
// on the backup hot path; a broken offsite link costs copies, not
// backups.
type OffsiteReplicator struct {
	cfg       OffsiteConfig
	backupDir string

	mu          sync.Mutex
	sshClient   *ssh.Client
	sftpClient  *sftp.Client
	lastUsed    time.Time
	idleTimeout time.Duration
}

// NewOffsiteReplicator creates an offsite replicator
func NewOffsiteReplicator(cfg OffsiteConfig, backupDir string) (*OffsiteReplicator, error) {
	if cfg.Host == "" || cfg.User == "" || cfg.Password == "" {
		return nil, fmt.Errorf("offsite replication needs host, user and password")
	}
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if cfg.Path == "" {
		cfg.Path = "/backups"
	}
	return &OffsiteReplicator{
		cfg:         cfg,
		backupDir:   backupDir,
		idleTimeout: 5 * time.Minute,
	}, nil
}

// Start subscribes the replicator to backup lifecycle events
func (r *OffsiteReplicator) Start(bus *events.EventBus) {
	bus.Subscribe(events.EventBackupCreated, r.onBackupCreated)
	bus.Subscribe(events.EventBackupDeleted, r.onBackupRemoved)
	bus.Subscribe(events.EventBackupPruned, r.onBackupRemoved)
	logger.Info("OFFSITE: Replication enabled", map[string]interface{}{
		"host": r.cfg.Host,
		"path": r.cfg.Path,
	})
}

func (r *OffsiteReplicator) onBackupCreated(event events.Event) {
	filename, ok := event.Data["filename"].(string)
	if !ok || filename == "" {
		return
	}
	if err := r.Upload(filepath.Join(r.backupDir, filename), filename); err != nil {
		logger.Warn("OFFSITE: Failed to replicate archive", map[string]interface{}{
			"filename": filename,
			"error":    err.Error(),
		})
	}
}

func (r *OffsiteReplicator) onBackupRemoved(event events.Event) {
	filename, ok := event.Data["filename"].(string)
	if !ok || filename == "" {
		return
	}
	if err := r.Delete(filename); err != nil {
		logger.Warn("OFFSITE: Failed to delete replicated archive", map[string]interface{}{
			"filename": filename,
			"error":    err.Error(),
		})
	}
}

// ensureConnected reconnects stale or missing sessions. Caller holds mu.
func (r *OffsiteReplicator) ensureConnected() error {
	if r.sftpClient != nil && time.Since(r.lastUsed) > r.idleTimeout {
		r.closeLocked()
	}
	if r.sftpClient != nil {
		r.lastUsed = time.Now()
		return nil
	}

	sshConfig := &ssh.ClientConfig{
		User: r.cfg.User,
		Auth: []ssh.AuthMethod{
			ssh.Password(r.cfg.Password),
		},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         30 * time.Second,
	}

	address := fmt.Sprintf("%s:%d", r.cfg.Host, r.cfg.Port)
	sshClient, err := ssh.Dial("tcp", address, sshConfig)
	if err != nil {
		return fmt.Errorf("failed to connect to offsite host: %w", err)
	}

	sftpClient, err := sftp.NewClient(sshClient)
	if err != nil {
		sshClient.Close()
		return fmt.Errorf("failed to open sftp session: %w", err)
	}

	if err := sftpClient.MkdirAll(r.cfg.Path); err != nil {
		logger.Warn("OFFSITE: Failed to create remote path (may already exist)", map[string]interface{}{
			"path":  r.cfg.Path,
			"error": err.Error(),
		})
	}

	r.sshClient = sshClient
	r.sftpClient = sftpClient
	r.lastUsed = time.Now()
	logger.Info("OFFSITE: Connected", map[string]interface{}{
		"host": r.cfg.Host,
	})
	return nil
}

// Upload copies a local archive to the offsite target
func (r *OffsiteReplicator) Upload(localPath, remoteName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.ensureConnected(); err != nil {
		return err
	}

	localFile, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open local archive: %w", err)
	}
	defer localFile.Close()

	remotePath := path.Join(r.cfg.Path, remoteName)
	remoteFile, err := r.sftpClient.Create(remotePath)
	if err != nil {
		r.closeLocked()
		return fmt.Errorf("failed to create remote file: %w", err)
	}
	defer remoteFile.Close()

	started := time.Now()
	written, err := io.Copy(remoteFile, localFile)
	if err != nil {
		r.closeLocked()
		return fmt.Errorf("failed to upload archive: %w", err)
	}

	logger.Info("OFFSITE: Archive replicated", map[string]interface{}{
		"remote_path": remotePath,
		"size_mb":     written / 1024 / 1024,
		"duration":    time.Since(started).Round(time.Second).String(),
	})
	return nil
}

// Delete removes a replicated archive from the offsite target.
// A file already absent remotely is not an error.
func (r *OffsiteReplicator) Delete(remoteName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.ensureConnected(); err != nil {
		return err
	}

	remotePath := path.Join(r.cfg.Path, remoteName)
	if err := r.sftpClient.Remove(remotePath); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		r.closeLocked()
		return fmt.Errorf("failed to delete remote archive: %w", err)
	}
	return nil
}

// ListArchives lists replicated archives on the offsite target
func (r *OffsiteReplicator) ListArchives() ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.ensureConnected(); err != nil {
		return nil, err
	}

	infos, err := r.sftpClient.ReadDir(r.cfg.Path)
	if err != nil {
		r.closeLocked()
		return nil, fmt.Errorf("failed to list remote archives: %w", err)
	}

	archives := []string{}
	for _, info := range infos {
		if !info.IsDir() && filepath.Ext(info.Name()) == ".gz" {
			archives = append(archives, info.Name())
		}
	}
	return archives, nil
}

// Close tears down the offsite session
func (r *OffsiteReplicator) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeLocked()
}

func (r *OffsiteReplicator) closeLocked() {
	if r.sftpClient != nil {
		r.sftpClient.Close()
		r.sftpClient = nil
	}
	if r.sshClient != nil {
		r.sshClient.Close()
		r.sshClient = nil
	}
}
