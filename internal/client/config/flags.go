package config

import (
	"flag"
	"time"

	"github.com/dmitrijs2005/medkeeper/internal/flagx"
)

// parseFlags populates Config fields from command-line flags. Only the flags
// listed in doc.go are considered; everything else in args is ignored.
func parseFlags(cfg *Config, osArgs []string) {
	args := flagx.FilterArgs(osArgs, []string{"-a", "-d", "-i", "-k", "-b", "-u", "-p", "-e", "-g", "-n", "-r"})

	fs := flag.NewFlagSet("client", flag.ContinueOnError)

	fs.StringVar(&cfg.ServerURL, "a", cfg.ServerURL, "credential server base URL")
	fs.StringVar(&cfg.DatabasePath, "d", cfg.DatabasePath, "local database path")
	inactivity := fs.Int("i", int(cfg.InactivityTimeout.Minutes()), "inactivity timeout (in minutes)")
	fs.IntVar(&cfg.PBKDF2Iterations, "k", cfg.PBKDF2Iterations, "PBKDF2 iterations")
	fs.StringVar(&cfg.BackupDir, "b", cfg.BackupDir, "backup directory")
	fs.StringVar(&cfg.S3AccessKey, "u", cfg.S3AccessKey, "S3 access key")
	fs.StringVar(&cfg.S3SecretKey, "p", cfg.S3SecretKey, "S3 secret key")
	fs.StringVar(&cfg.S3Endpoint, "e", cfg.S3Endpoint, "S3 endpoint")
	fs.StringVar(&cfg.S3Region, "g", cfg.S3Region, "S3 region")
	fs.StringVar(&cfg.S3Bucket, "n", cfg.S3Bucket, "S3 bucket")
	fs.BoolVar(&cfg.RestoreSessions, "r", cfg.RestoreSessions, "restore unlocked session within the process")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.InactivityTimeout = time.Duration(*inactivity) * time.Minute
}
