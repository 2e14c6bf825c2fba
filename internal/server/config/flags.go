package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/resvault/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   resource protocol bind address (e.g., ":8080")
//	-l string   liveness (gRPC health) bind address, "" disables
//	-m string   metrics bind address, "" disables
//	-v string   log level
//	-r string   resources directory
//	-f string   user directory file
//	-d string   PostgreSQL DSN for the user directory
//	-t int      directory save interval, minutes
//	-s string   token HMAC secret key
//	-x string   default storage name
//	-u string   S3 root user
//	-p string   S3 root password
//	-b string   S3 bucket name
//	-g string   S3 region
//	-e string   S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//	-encrypt    encrypt the user directory file (bool)
//
// Only these flags are considered; everything else in os.Args is left for
// other parsers (see flagx.FilterArgs).
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:],
		[]string{"-a", "-l", "-m", "-v", "-r", "-f", "-d", "-t", "-s", "-x", "-u", "-p", "-b", "-g", "-e"},
		"-encrypt")

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddr, "a", config.EndpointAddr, "address and port to run server")
	fs.StringVar(&config.LivenessAddr, "l", config.LivenessAddr, "liveness channel address")
	fs.StringVar(&config.MetricsAddr, "m", config.MetricsAddr, "metrics address")
	fs.StringVar(&config.LogLevel, "v", config.LogLevel, "log level")
	fs.StringVar(&config.ResourcesDir, "r", config.ResourcesDir, "resources directory")
	fs.StringVar(&config.DirectoryPath, "f", config.DirectoryPath, "user directory file")
	fs.StringVar(&config.DirectoryDSN, "d", config.DirectoryDSN, "user directory database DSN")

	saveInterval := fs.Int("t", int(config.DirectorySaveInterval.Minutes()), "directory save interval (in minutes)")

	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")
	fs.StringVar(&config.DefaultStorage, "x", config.DefaultStorage, "default storage name")
	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 root bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 root region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")
	fs.BoolVar(&config.DirectoryEncrypted, "encrypt", config.DirectoryEncrypted, "encrypt user directory file")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	fs.Visit(func(f *flag.Flag) {
		if f.Name == "t" {
			config.DirectorySaveInterval = time.Duration(*saveInterval) * time.Minute
		}
	})
}
