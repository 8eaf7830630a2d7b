package docs_test

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/tyemirov/reqbatch/cmd/cli"
	"github.com/tyemirov/reqbatch/internal/utils"
)

// readmeConfigurationBlock matches the fenced yaml block whose first line is "# config.yaml".
var readmeConfigurationBlock = regexp.MustCompile("(?s)```yaml\\s*\\n(# config\\.yaml\\n.*?)```")

func readmeConfiguration(t *testing.T) string {
	t.Helper()
	readme, readError := os.ReadFile(filepath.Join("..", "README.md"))
	require.NoError(t, readError)

	match := readmeConfigurationBlock.FindSubmatch(readme)
	require.NotNil(t, match, "README has no yaml block starting with # config.yaml")
	return string(match[1])
}

func flattenKeys(prefix string, document map[string]any) []string {
	var keys []string
	for key, value := range document {
		if len(prefix) > 0 {
			key = prefix + "." + key
		}
		keys = append(keys, key)
		if nested, ok := value.(map[string]any); ok {
			keys = append(keys, flattenKeys(key, nested)...)
		}
	}
	sort.Strings(keys)
	return keys
}

func TestReadmeConfigurationKeysExistInDefaults(t *testing.T) {
	var readmeDocument map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(readmeConfiguration(t)), &readmeDocument))

	embedded, _ := cli.EmbeddedDefaultConfiguration()
	var defaultDocument map[string]any
	require.NoError(t, yaml.Unmarshal(embedded, &defaultDocument))

	knownKeys := flattenKeys("", defaultDocument)
	for _, key := range flattenKeys("", readmeDocument) {
		require.Containsf(t, knownKeys, key, "README key %s is missing from the embedded defaults", key)
	}
}

func TestReadmeConfigurationLoads(t *testing.T) {
	snippetPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(snippetPath, []byte(readmeConfiguration(t)), 0o600))

	loader := utils.NewConfigurationLoader("config", "yaml", "READMEDOCS", nil)
	loader.SetEmbeddedConfiguration(cli.EmbeddedDefaultConfiguration())

	var configuration cli.ApplicationConfiguration
	loaded, loadError := loader.LoadConfiguration(snippetPath, nil, &configuration)
	require.NoError(t, loadError)
	require.Equal(t, snippetPath, loaded.ConfigFileUsed)
	require.Equal(t, 100, configuration.Batch.Concurrency)
	require.Equal(t, 2*time.Second, configuration.Requests.PollInterval)
	require.NotEmpty(t, configuration.Requests.PayeeAddress)
}
