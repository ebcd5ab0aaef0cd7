package clconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestCreateExampleConfig(t *testing.T) {
	tempFile := filepath.Join(t.TempDir(), "test_config.yaml")

	_, err := CreateExampleConfig(tempFile)
	require.NoError(t, err)

	data, err := os.ReadFile(tempFile)
	require.NoError(t, err)

	var config Config
	require.NoError(t, yaml.Unmarshal(data, &config))
	assert.Equal(t, "Mon Portfolio", config.Site.SiteName)
	assert.Equal(t, "admin", config.User.Login)
	assert.Equal(t, 30*time.Second, config.Analytics.MinUpdate)
	assert.Equal(t, "ipapi", config.GeoIP.Provider)
}

func TestLoadConfig(t *testing.T) {
	tempFile := filepath.Join(t.TempDir(), "test_load_config.yaml")
	config := &Config{
		Database: DatabaseConfig{
			Db:   "sqlite",
			Path: "test.db",
		},
		User: UserConfig{
			Login: "testadmin",
		},
		Site: SiteConfig{SiteName: "Test Site"},
	}
	require.NoError(t, WriteConfigYaml(tempFile, config))

	loaded, err := LoadConfig(tempFile)
	require.NoError(t, err)
	assert.Equal(t, "Test Site", loaded.Site.SiteName)
	assert.Equal(t, "testadmin", loaded.User.Login)

	// Tester avec un fichier inexistant
	_, err = LoadConfig(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	assert.Error(t, err)
}

func TestLoadAndValidateHashesPassword(t *testing.T) {
	tempFile := filepath.Join(t.TempDir(), "portfolio.yaml")
	require.NoError(t, WriteConfigYaml(tempFile, &Config{
		Database: DatabaseConfig{Db: "sqlite", Path: "p.db"},
		User:     UserConfig{Login: "admin", Pass: "un-mot-de-passe"},
		Listen:   ListenConfig{Website: ":9000"},
	}))

	conf, err := LoadAndValidate(tempFile)
	require.NoError(t, err)
	assert.Empty(t, conf.User.Pass)
	assert.NotEmpty(t, conf.User.Hash)
	assert.Equal(t, "localhost:9000", conf.Listen.Website)

	// valeurs par défaut
	assert.Equal(t, 30*time.Second, conf.Analytics.MinUpdate)
	assert.Equal(t, 5*time.Minute, conf.Analytics.ActiveWindow)
	assert.Equal(t, 5, conf.Analytics.TopPages)
	assert.Equal(t, 5*time.Minute, conf.GeoIP.FailureTTL)

	// le fichier réécrit ne contient plus le mot de passe en clair
	reloaded, err := LoadConfig(tempFile)
	require.NoError(t, err)
	assert.Empty(t, reloaded.User.Pass)
	assert.Equal(t, conf.User.Hash, reloaded.User.Hash)
}

func TestLoadAndValidateErrors(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		conf Config
	}{
		{"no database", Config{}},
		{"sqlite without path", Config{Database: DatabaseConfig{Db: "sqlite"}}},
		{"mysql without dsn", Config{Database: DatabaseConfig{Db: "mysql"}}},
		{"short password", Config{Database: DatabaseConfig{Db: "sqlite", Path: "p.db"}, User: UserConfig{Pass: "court"}}},
		{"unknown samesite", Config{Database: DatabaseConfig{Db: "sqlite", Path: "p.db"}, Session: SessionConfig{SameSite: "parfois"}}},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			file := filepath.Join(dir, string(rune('a'+i))+".yaml")
			require.NoError(t, WriteConfigYaml(file, &tt.conf))
			_, err := LoadAndValidate(file)
			assert.Error(t, err)
		})
	}
}

func TestSameSiteDefault(t *testing.T) {
	conf := &Config{Session: SessionConfig{SameSite: " None "}}
	conf.ApplyDefaults()
	assert.Equal(t, "none", conf.Session.SameSite)

	conf = &Config{}
	conf.ApplyDefaults()
	assert.Equal(t, "lax", conf.Session.SameSite)
}

func TestLocation(t *testing.T) {
	assert.Equal(t, time.Local, AnalyticsConfig{}.Location())
	assert.Equal(t, time.Local, AnalyticsConfig{Timezone: "Nulle/Part"}.Location())
	assert.Equal(t, "UTC", AnalyticsConfig{Timezone: "UTC"}.Location().String())
}
