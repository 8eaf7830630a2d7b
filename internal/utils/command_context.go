package utils

import (
	"context"
	"strings"
)

type commandContextKey int

const (
	configurationFilePathKey commandContextKey = iota
	logLevelKey
	runIdentifierKey
)

// CommandContextAccessor stores and retrieves per-invocation values carried on a command context.
type CommandContextAccessor struct{}

// NewCommandContextAccessor returns a CommandContextAccessor.
func NewCommandContextAccessor() CommandContextAccessor {
	return CommandContextAccessor{}
}

// WithConfigurationFilePath records the configuration file that was merged. An empty path is
// stored as-is so callers can tell "no file" from "not initialized".
func (CommandContextAccessor) WithConfigurationFilePath(parent context.Context, configurationFilePath string) context.Context {
	return context.WithValue(orBackground(parent), configurationFilePathKey, configurationFilePath)
}

// WithLogLevel records the effective log level.
func (CommandContextAccessor) WithLogLevel(parent context.Context, logLevel string) context.Context {
	return withNonEmpty(parent, logLevelKey, logLevel)
}

// WithRunIdentifier records the identifier of the current batch run.
func (CommandContextAccessor) WithRunIdentifier(parent context.Context, runIdentifier string) context.Context {
	return withNonEmpty(parent, runIdentifierKey, runIdentifier)
}

func (CommandContextAccessor) ConfigurationFilePath(executionContext context.Context) (string, bool) {
	return lookupString(executionContext, configurationFilePathKey)
}

func (CommandContextAccessor) LogLevel(executionContext context.Context) (string, bool) {
	return lookupString(executionContext, logLevelKey)
}

func (CommandContextAccessor) RunIdentifier(executionContext context.Context) (string, bool) {
	return lookupString(executionContext, runIdentifierKey)
}

func orBackground(parent context.Context) context.Context {
	if parent == nil {
		return context.Background()
	}
	return parent
}

func withNonEmpty(parent context.Context, key commandContextKey, value string) context.Context {
	if value = strings.TrimSpace(value); len(value) == 0 {
		return orBackground(parent)
	}
	return context.WithValue(orBackground(parent), key, value)
}

func lookupString(executionContext context.Context, key commandContextKey) (string, bool) {
	if executionContext == nil {
		return "", false
	}
	value, found := executionContext.Value(key).(string)
	return value, found
}
