package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	// MaxBackups is the maximum number of user config backups to keep.
	MaxBackups = 3

	// BackupSuffix is appended to backup filenames.
	BackupSuffix = ".bak"
)

// BackupUserConfig creates a timestamped backup of the user configuration.
// Returns the backup path, or empty string if no config exists to back up.
func BackupUserConfig() (string, error) {
	configPath := GetUserConfigPath()
	if !fileExists(configPath) {
		return "", nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return "", fmt.Errorf("failed to read config for backup: %w", err)
	}

	timestamp := time.Now().Format("20060102-150405")
	backupPath := fmt.Sprintf("%s.%s%s", configPath, timestamp, BackupSuffix)

	if err := os.WriteFile(backupPath, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write backup: %w", err)
	}

	if err := cleanupOldBackups(); err != nil {
		// Backup succeeded; cleanup failure is not fatal
		return backupPath, nil
	}

	return backupPath, nil
}

// ListUserConfigBackups returns backup paths sorted newest first.
func ListUserConfigBackups() ([]string, error) {
	configPath := GetUserConfigPath()
	configDir := filepath.Dir(configPath)
	configName := filepath.Base(configPath)

	entries, err := os.ReadDir(configDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list config directory: %w", err)
	}

	var backups []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, configName+".") && strings.HasSuffix(name, BackupSuffix) {
			backups = append(backups, filepath.Join(configDir, name))
		}
	}

	// Timestamped names sort lexically; newest first
	sort.Sort(sort.Reverse(sort.StringSlice(backups)))

	return backups, nil
}

// RestoreUserConfig restores the user configuration from a backup file.
func RestoreUserConfig(backupPath string) error {
	if !fileExists(backupPath) {
		return fmt.Errorf("backup file does not exist: %s", backupPath)
	}

	data, err := os.ReadFile(backupPath)
	if err != nil {
		return fmt.Errorf("failed to read backup: %w", err)
	}

	// Validate before overwriting the live config
	cfg := NewConfig()
	tmpFile, err := os.CreateTemp("", "cividex-restore-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer os.Remove(tmpPath)

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	tmpFile.Close()

	if err := cfg.loadYAML(tmpPath); err != nil {
		return fmt.Errorf("backup is not a valid config: %w", err)
	}

	configPath := GetUserConfigPath()
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to restore config: %w", err)
	}

	return nil
}

// cleanupOldBackups removes backups beyond MaxBackups, oldest first.
func cleanupOldBackups() error {
	backups, err := ListUserConfigBackups()
	if err != nil {
		return err
	}

	if len(backups) <= MaxBackups {
		return nil
	}

	for _, path := range backups[MaxBackups:] {
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("failed to remove old backup %s: %w", path, err)
		}
	}

	return nil
}
