package config

import (
	"strings"

	"github.com/spf13/viper"
)

// envBinding maps a viper key to the environment variables that may set it.
// Each key accepts a SNAPFIND_ prefixed name and the bare name used by
// existing .env files.
type envBinding struct {
	key   string
	names []string
	apply func(cfg *Config, value string)
}

var envBindings = []envBinding{
	{"college", []string{"SNAPFIND_COLLEGE", "COLLEGE_NAME"}, func(c *Config, v string) { c.College = v }},
	{"database_url", []string{"SNAPFIND_DATABASE_URL", "DATABASE_URL"}, applyDatabaseURL},
	{"images_db_name", []string{"SNAPFIND_STORAGE_TABLE", "IMAGES_DB_NAME"}, func(c *Config, v string) { c.Storage.Table = v }},
	{"auth_token", []string{"SNAPFIND_AUTH_TOKEN", "AUTH_TOKEN"}, func(c *Config, v string) { c.Auth.StaticToken = v }},
	{"auth_refno", []string{"SNAPFIND_AUTH_REFNO", "AUTH_REFNO"}, func(c *Config, v string) { c.Auth.StaticRefNo = v }},
	{"jwt_secret", []string{"SNAPFIND_JWT_SECRET", "JWT_SECRET"}, func(c *Config, v string) { c.Auth.JWTSecret = v }},
	{"algorithm", []string{"SNAPFIND_JWT_ALGORITHM", "ALGORITHM"}, func(c *Config, v string) { c.Auth.Algorithm = v }},
	{"space_name", []string{"SNAPFIND_S3_BUCKET", "DO_SPACE_NAME"}, applyBucket},
	{"space_region", []string{"SNAPFIND_S3_REGION", "DO_SPACE_REGION"}, func(c *Config, v string) { c.ObjectStore.Region = v }},
	{"space_key", []string{"SNAPFIND_S3_ACCESS_KEY", "DO_SPACE_KEY"}, func(c *Config, v string) { c.ObjectStore.AccessKey = v }},
	{"space_secret", []string{"SNAPFIND_S3_SECRET_KEY", "DO_SPACE_SECRET"}, func(c *Config, v string) { c.ObjectStore.SecretKey = v }},
	{"redis_addr", []string{"SNAPFIND_REDIS_ADDR", "REDIS_ADDR"}, func(c *Config, v string) { c.Embedding.RedisAddr = v }},
	{"debug", []string{"SNAPFIND_DEBUG"}, func(c *Config, v string) { c.Debug = isTruthy(v) }},
}

// ApplyEnv overrides cfg with values from the environment. Unset or empty
// variables leave the file value in place.
func ApplyEnv(cfg *Config) {
	v := viper.New()
	for _, b := range envBindings {
		_ = v.BindEnv(append([]string{b.key}, b.names...)...)
	}
	for _, b := range envBindings {
		if value := strings.TrimSpace(v.GetString(b.key)); value != "" {
			b.apply(cfg, value)
		}
	}
}

// applyDatabaseURL switches to the postgres driver for postgres URLs and
// treats a scheme-less value as a SQLite file path. Other schemes are ignored.
func applyDatabaseURL(c *Config, v string) {
	switch {
	case strings.HasPrefix(v, "postgres://"), strings.HasPrefix(v, "postgresql://"):
		c.Storage.Driver = DriverPostgres
		c.Storage.DatabaseURL = v
	case !strings.Contains(v, "://"):
		c.Storage.DatabasePath = v
	}
}

func applyBucket(c *Config, v string) {
	c.ObjectStore.Bucket = v
	if c.ObjectStore.Type == "" {
		c.ObjectStore.Type = ObjectStoreS3
	}
}

func isTruthy(v string) bool {
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
