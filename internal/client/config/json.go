package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/medkeeper/internal/flagx"
	"github.com/dmitrijs2005/medkeeper/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Empty values
// keep the current setting; RestoreSessions is a pointer so that an explicit
// false can be told apart from an absent key.
type JsonConfig struct {
	ServerURL         string         `json:"server_url"`
	DatabasePath      string         `json:"database_path"`
	InactivityTimeout timex.Duration `json:"inactivity_timeout"`
	PBKDF2Iterations  int            `json:"pbkdf2_iterations"`
	BackupDir         string         `json:"backup_dir"`
	S3AccessKey       string         `json:"s3_access_key"`
	S3SecretKey       string         `json:"s3_secret_key"`
	S3Endpoint        string         `json:"s3_endpoint"`
	S3Region          string         `json:"s3_region"`
	S3Bucket          string         `json:"s3_bucket"`
	RestoreSessions   *bool          `json:"restore_sessions"`
}

// parseJson overlays cfg with the values present in the file given by -c or
// -config. It panics on read or unmarshal errors.
func parseJson(cfg *Config, args []string) {
	jsonConfigFile := flagx.ConfigPath(args)
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	setString(&cfg.ServerURL, jc.ServerURL)
	setString(&cfg.DatabasePath, jc.DatabasePath)
	setString(&cfg.BackupDir, jc.BackupDir)
	setString(&cfg.S3AccessKey, jc.S3AccessKey)
	setString(&cfg.S3SecretKey, jc.S3SecretKey)
	setString(&cfg.S3Endpoint, jc.S3Endpoint)
	setString(&cfg.S3Region, jc.S3Region)
	setString(&cfg.S3Bucket, jc.S3Bucket)

	if jc.InactivityTimeout.Duration != 0 {
		cfg.InactivityTimeout = time.Duration(jc.InactivityTimeout.Duration)
	}
	if jc.PBKDF2Iterations != 0 {
		cfg.PBKDF2Iterations = jc.PBKDF2Iterations
	}
	if jc.RestoreSessions != nil {
		cfg.RestoreSessions = *jc.RestoreSessions
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
