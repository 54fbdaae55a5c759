// Package config loads the two configuration files of the host: the site
// file (ini) with database, path, download and kafka settings, and the
// instance file (yaml) listing the configured report modules.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	ini "github.com/lars-t-hansen/ini"

	"github.com/happyface/jobeff"
)

var ErrSite = errors.New("invalid site configuration")

// MT: Constant after initialization
var (
	p = ini.NewParser()

	database         = p.AddSection("database")
	DatabaseURL      = database.AddString("url")
	DatabasePoolSize = database.AddString("pool_size")
	DatabaseEcho     = database.AddString("echo")

	paths          = p.AddSection("paths")
	PathTmpDir     = paths.AddString("tmp-dir")
	PathArchiveDir = paths.AddString("archive-dir")

	download              = p.AddSection("download")
	DownloadTimeout       = download.AddString("timeout")
	DownloadMaxSize       = download.AddString("max-size")
	DownloadSSHKeyFile    = download.AddString("ssh-key-file")
	DownloadSSHKnownHosts = download.AddString("ssh-known-hosts")

	kafka        = p.AddSection("kafka")
	KafkaBrokers = kafka.AddString("brokers")
	KafkaTopic   = kafka.AddString("topic")
)

const (
	DefaultDatabaseURL = "sqlite:///jobeff.db"
	DefaultTmpDir      = "tmp"
	DefaultArchiveDir  = "archive"
	DefaultTimeout     = 30 * time.Second
	DefaultMaxSize     = 64 << 20
)

type Site struct {
	// Key/value pairs of the [database] section.
	Database map[string]string

	TmpDir     string
	ArchiveDir string

	DownloadTimeout time.Duration
	MaxSize         jobeff.Bytes
	SSHKeyFile      string
	SSHKnownHosts   string

	// Kafka notification is off when no broker is set.
	KafkaBrokers []string
	KafkaTopic   string
}

// LoadSite reads the site file filename. A missing file gives the defaults.
func LoadSite(filename string) (*Site, error) {
	f, err := os.Open(filename)
	if errors.Is(err, os.ErrNotExist) {
		return ParseSite(strings.NewReader(""))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open site config %v: %w", filename, err)
	}
	defer f.Close()
	site, err := ParseSite(f)
	if err != nil {
		return nil, fmt.Errorf("failed to load site config %v: %w", filename, err)
	}
	return site, nil
}

func ParseSite(r io.Reader) (*Site, error) {
	store, err := p.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse site config: %w", err)
	}
	val := func(f *ini.Field, def string) string {
		if !f.Present(store) {
			return def
		}
		return strings.TrimSpace(os.ExpandEnv(f.StringVal(store)))
	}

	site := &Site{
		Database: map[string]string{
			"url": val(DatabaseURL, DefaultDatabaseURL),
		},
		TmpDir:        val(PathTmpDir, DefaultTmpDir),
		ArchiveDir:    val(PathArchiveDir, DefaultArchiveDir),
		SSHKeyFile:    val(DownloadSSHKeyFile, ""),
		SSHKnownHosts: val(DownloadSSHKnownHosts, ""),
		KafkaTopic:    val(KafkaTopic, "jobeff-results"),
	}
	if v := val(DatabasePoolSize, ""); v != "" {
		site.Database["pool_size"] = v
	}
	if v := val(DatabaseEcho, ""); v != "" {
		site.Database["echo"] = v
	}

	site.DownloadTimeout = DefaultTimeout
	if v := val(DownloadTimeout, ""); v != "" {
		site.DownloadTimeout, err = time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("%w: download timeout: %w", ErrSite, err)
		}
	}
	site.MaxSize = DefaultMaxSize
	if v := val(DownloadMaxSize, ""); v != "" {
		site.MaxSize, err = jobeff.ParseBytes(v)
		if err != nil {
			return nil, fmt.Errorf("%w: download max-size: %w", ErrSite, err)
		}
	}

	for _, b := range strings.Split(val(KafkaBrokers, ""), ",") {
		b = strings.TrimSpace(b)
		if b != "" {
			site.KafkaBrokers = append(site.KafkaBrokers, b)
		}
	}
	return site, nil
}
