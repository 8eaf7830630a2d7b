package utils

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const (
	environmentKeySeparatorConstant             = "_"
	configurationKeySeparatorConstant           = "."
	embeddedConfigurationReadErrorTemplate      = "unable to read embedded configuration: %w"
	configurationFileReadErrorTemplate          = "unable to read configuration file %s: %w"
	configurationDecodeErrorTemplate            = "unable to decode configuration: %w"
	configurationTargetMissingErrorMessage      = "configuration target is required"
	configurationStringSliceSeparatorConstant   = ","
	configurationMapstructureTagNameConstant    = "mapstructure"
	configurationFileExtensionSeparatorConstant = "."
)

// LoadedConfiguration describes where the effective configuration came from.
type LoadedConfiguration struct {
	ConfigFileUsed string
}

// ConfigurationLoader layers defaults, embedded configuration, a configuration
// file, and environment overrides (in increasing precedence).
type ConfigurationLoader struct {
	configurationName         string
	configurationType         string
	environmentPrefix         string
	searchPaths               []string
	embeddedConfigurationData []byte
	embeddedConfigurationType string
}

// NewConfigurationLoader constructs a loader for files named <name>.<type> in the provided search paths.
func NewConfigurationLoader(configurationName string, configurationType string, environmentPrefix string, searchPaths []string) *ConfigurationLoader {
	copiedSearchPaths := make([]string, 0, len(searchPaths))
	for _, searchPath := range searchPaths {
		trimmedSearchPath := strings.TrimSpace(searchPath)
		if len(trimmedSearchPath) == 0 {
			continue
		}
		copiedSearchPaths = append(copiedSearchPaths, trimmedSearchPath)
	}

	return &ConfigurationLoader{
		configurationName: configurationName,
		configurationType: configurationType,
		environmentPrefix: environmentPrefix,
		searchPaths:       copiedSearchPaths,
	}
}

// SetEmbeddedConfiguration installs configuration content applied beneath any file-based configuration.
func (loader *ConfigurationLoader) SetEmbeddedConfiguration(configurationData []byte, configurationType string) {
	loader.embeddedConfigurationData = append([]byte(nil), configurationData...)
	loader.embeddedConfigurationType = configurationType
}

// LoadConfiguration resolves the effective configuration into target.
func (loader *ConfigurationLoader) LoadConfiguration(configurationFilePath string, defaultValues map[string]any, target any) (LoadedConfiguration, error) {
	if target == nil {
		return LoadedConfiguration{}, errors.New(configurationTargetMissingErrorMessage)
	}

	viperInstance := viper.New()
	viperInstance.SetConfigType(loader.configurationType)
	for configurationKey, defaultValue := range defaultValues {
		viperInstance.SetDefault(configurationKey, defaultValue)
	}

	if len(loader.embeddedConfigurationData) > 0 {
		embeddedType := loader.embeddedConfigurationType
		if len(strings.TrimSpace(embeddedType)) == 0 {
			embeddedType = loader.configurationType
		}
		viperInstance.SetConfigType(embeddedType)
		if readError := viperInstance.MergeConfig(bytes.NewReader(loader.embeddedConfigurationData)); readError != nil {
			return LoadedConfiguration{}, fmt.Errorf(embeddedConfigurationReadErrorTemplate, readError)
		}
	}

	viperInstance.SetEnvPrefix(loader.environmentPrefix)
	viperInstance.SetEnvKeyReplacer(strings.NewReplacer(configurationKeySeparatorConstant, environmentKeySeparatorConstant))
	viperInstance.AutomaticEnv()

	metadata := LoadedConfiguration{}
	resolvedFilePath := strings.TrimSpace(configurationFilePath)
	if len(resolvedFilePath) == 0 {
		resolvedFilePath = loader.locateConfigurationFile()
	}
	if len(resolvedFilePath) > 0 {
		viperInstance.SetConfigFile(resolvedFilePath)
		if readError := viperInstance.MergeInConfig(); readError != nil {
			return LoadedConfiguration{}, fmt.Errorf(configurationFileReadErrorTemplate, resolvedFilePath, readError)
		}
		metadata.ConfigFileUsed = resolvedFilePath
	}

	decoder, decoderError := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          configurationMapstructureTagNameConstant,
		Result:           target,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(configurationStringSliceSeparatorConstant),
		),
	})
	if decoderError != nil {
		return LoadedConfiguration{}, fmt.Errorf(configurationDecodeErrorTemplate, decoderError)
	}
	if decodeError := decoder.Decode(loader.collectSettings(viperInstance)); decodeError != nil {
		return LoadedConfiguration{}, fmt.Errorf(configurationDecodeErrorTemplate, decodeError)
	}

	return metadata, nil
}

func (loader *ConfigurationLoader) collectSettings(viperInstance *viper.Viper) map[string]any {
	settings := map[string]any{}
	for _, configurationKey := range viperInstance.AllKeys() {
		assignNestedValue(settings, strings.Split(configurationKey, configurationKeySeparatorConstant), viperInstance.Get(configurationKey))
	}
	return settings
}

func (loader *ConfigurationLoader) locateConfigurationFile() string {
	fileName := loader.configurationName + configurationFileExtensionSeparatorConstant + loader.configurationType
	for _, searchPath := range loader.searchPaths {
		candidatePath := filepath.Join(searchPath, fileName)
		fileInfo, statError := os.Stat(candidatePath)
		if statError != nil || fileInfo.IsDir() {
			continue
		}
		return candidatePath
	}
	return ""
}

func assignNestedValue(target map[string]any, keyPath []string, value any) {
	current := target
	for index, segment := range keyPath {
		if index == len(keyPath)-1 {
			current[segment] = value
			return
		}
		next, exists := current[segment].(map[string]any)
		if !exists {
			next = map[string]any{}
			current[segment] = next
		}
		current = next
	}
}
