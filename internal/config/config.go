package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application level configuration aggregated from env/config files.
type Config struct {
	Scan struct {
		Dir     string
		Pattern string
	}
	Storage struct {
		Driver    string
		Bucket    string
		KeyPrefix string
		Region    string
		Endpoint  string
		UseSSL    bool
		AccessKey string
		SecretKey string
	}
	AWS struct {
		Profile string
	}
	Upload struct {
		ContinueOnError bool
		Concurrency     int
	}
	Database struct {
		Path string
	}
	History struct {
		Enabled bool
	}
	Server struct {
		Addr string
	}
	Auth struct {
		JWTSecret       string
		PasswordHash    string
		TokenTTLMinutes int
	}
	Log struct {
		Level string
	}
}

// Load reads configuration from environment variables and optional config files.
// Variables already present in the environment win over values from .env.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("CSVUP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("scan.dir", ".")
	v.SetDefault("scan.pattern", ".csv")
	v.SetDefault("storage.driver", "s3")
	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.keyprefix", "downloads/")
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.endpoint", "")
	v.SetDefault("storage.usessl", true)
	v.SetDefault("storage.accesskey", "")
	v.SetDefault("storage.secretkey", "")
	v.SetDefault("aws.profile", "")
	v.SetDefault("upload.continueonerror", false)
	v.SetDefault("upload.concurrency", 1)
	v.SetDefault("database.path", DefaultDatabasePath())
	v.SetDefault("history.enabled", true)
	v.SetDefault("server.addr", "127.0.0.1:8080")
	v.SetDefault("auth.jwtsecret", "")
	v.SetDefault("auth.passwordhash", "")
	v.SetDefault("auth.tokenttlminutes", 60)
	v.SetDefault("log.level", "info")

	v.SetConfigName("config")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // optional file

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// DefaultDatabasePath places the run ledger in the per-user cache directory so
// that a run never writes into the directory it scans.
func DefaultDatabasePath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "csv-uploader", "uploader.db")
}
