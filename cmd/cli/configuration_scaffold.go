package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

const (
	configurationScopeLocalConstant = "local"
	configurationScopeUserConstant  = "user"
	configurationDirectoryMode      = 0o755
	configurationFileMode           = 0o600
)

var errConfigurationExists = errors.New("configuration file already exists")

// scaffoldConfiguration writes the embedded defaults to the scope chosen with --init.
func (application *Application) scaffoldConfiguration() error {
	targetPath, resolveError := configurationScaffoldPath(application.flagValues.initializeScope)
	if resolveError != nil {
		return resolveError
	}

	content, _ := EmbeddedDefaultConfiguration()
	if writeError := writeConfigurationScaffold(targetPath, content, application.flagValues.forceOverwrite); writeError != nil {
		return writeError
	}

	application.logger.Info("configuration file created", zap.String("config_file", targetPath))
	return nil
}

// configurationScaffoldPath maps an --init scope onto the config.yaml it produces.
func configurationScaffoldPath(scope string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(scope)) {
	case "", configurationScopeLocalConstant:
		workingDirectory, workingDirectoryError := os.Getwd()
		if workingDirectoryError != nil {
			return "", fmt.Errorf("unable to determine working directory: %w", workingDirectoryError)
		}
		return filepath.Join(workingDirectory, configurationFileNameConstant), nil
	case configurationScopeUserConstant:
		homeDirectory, homeError := os.UserHomeDir()
		if homeError != nil {
			return "", fmt.Errorf("unable to determine user home directory: %w", homeError)
		}
		return filepath.Join(homeDirectory, userConfigurationDirectoryNameConstant, configurationFileNameConstant), nil
	default:
		return "", fmt.Errorf("unsupported initialization scope %q", strings.TrimSpace(scope))
	}
}

// writeConfigurationScaffold creates the parent directory as needed and refuses to replace
// an existing file unless overwrite is set.
func writeConfigurationScaffold(targetPath string, content []byte, overwrite bool) error {
	if len(content) == 0 {
		return errors.New("embedded configuration content is unavailable")
	}

	directory := filepath.Dir(targetPath)
	if directoryInfo, statError := os.Stat(directory); statError == nil && !directoryInfo.IsDir() {
		return fmt.Errorf("configuration directory path %s is not a directory", directory)
	}
	if mkdirError := os.MkdirAll(directory, configurationDirectoryMode); mkdirError != nil {
		return fmt.Errorf("unable to ensure configuration directory %s: %w", directory, mkdirError)
	}

	existing, statError := os.Stat(targetPath)
	switch {
	case statError == nil && existing.IsDir():
		return fmt.Errorf("configuration path %s is a directory", targetPath)
	case statError == nil && !overwrite:
		return fmt.Errorf("%w at %s (use --force to overwrite)", errConfigurationExists, targetPath)
	case statError != nil && !errors.Is(statError, os.ErrNotExist):
		return fmt.Errorf("unable to inspect configuration file %s: %w", targetPath, statError)
	}

	if writeError := os.WriteFile(targetPath, content, configurationFileMode); writeError != nil {
		return fmt.Errorf("unable to write configuration file %s: %w", targetPath, writeError)
	}
	return nil
}
