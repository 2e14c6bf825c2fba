package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	tests := []struct {
		name   string
		args   []string
		check  func(t *testing.T, c *Config)
		panics bool
	}{
		{
			name: "all flags",
			args: []string{"cmd",
				"-a", "127.0.0.1:9090", "-l", ":7001", "-m", ":7002", "-v", "debug",
				"-r", "/srv/res", "-f", "/srv/users.json", "-d", "db", "-t", "1", "-s", "secret",
				"-x", "remote", "-u", "user", "-p", "password", "-b", "bucket", "-g", "us-west-1",
				"-e", "http://endpoint", "-encrypt=false",
			},
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, "127.0.0.1:9090", c.EndpointAddr)
				assert.Equal(t, ":7001", c.LivenessAddr)
				assert.Equal(t, ":7002", c.MetricsAddr)
				assert.Equal(t, "debug", c.LogLevel)
				assert.Equal(t, "/srv/res", c.ResourcesDir)
				assert.Equal(t, "/srv/users.json", c.DirectoryPath)
				assert.Equal(t, "db", c.DirectoryDSN)
				assert.Equal(t, time.Minute, c.DirectorySaveInterval)
				assert.Equal(t, "secret", c.SecretKey)
				assert.Equal(t, "remote", c.DefaultStorage)
				assert.Equal(t, "user", c.S3RootUser)
				assert.Equal(t, "password", c.S3RootPassword)
				assert.Equal(t, "bucket", c.S3Bucket)
				assert.Equal(t, "us-west-1", c.S3Region)
				assert.Equal(t, "http://endpoint", c.S3BaseEndpoint)
				assert.False(t, c.DirectoryEncrypted)
			},
		},
		{
			name: "interval untouched when -t absent",
			args: []string{"cmd", "-a", ":1"},
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, 30*time.Second, c.DirectorySaveInterval)
				assert.True(t, c.DirectoryEncrypted)
			},
		},
		{
			name:   "bad int panics",
			args:   []string{"cmd", "-t", "soon"},
			panics: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Args = tt.args
			c := &Config{DirectorySaveInterval: 30 * time.Second, DirectoryEncrypted: true}

			if tt.panics {
				require.Panics(t, func() { parseFlags(c) })
				return
			}
			require.NotPanics(t, func() { parseFlags(c) })
			tt.check(t, c)
		})
	}
}
