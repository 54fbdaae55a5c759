// Package download fetches the module input files of a run into a temporary
// directory and lays out the archive directory that run outputs are written
// to.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/happyface/jobeff"
)

var ErrNotDownloaded = errors.New("file was not downloaded")

type Options struct {
	TmpDir     string
	ArchiveDir string
	Timeout    time.Duration
	MaxSize    jobeff.Bytes

	SSHKeyFile    string
	SSHKnownHosts string
}

type Service struct {
	opts   Options
	client *http.Client
	files  map[string]*file
	order  []*file
}

type file struct {
	url  string
	path string
	err  error
	done bool
	tmp  bool
}

func (f *file) SourceURL() string {
	return f.url
}

func (f *file) TmpPath() (string, error) {
	if !f.done {
		return "", fmt.Errorf("%w: %v", ErrNotDownloaded, f.url)
	}
	if f.err != nil {
		return "", f.err
	}
	return f.path, nil
}

func New(opts Options) *Service {
	return &Service{
		opts:   opts,
		client: &http.Client{Timeout: opts.Timeout},
		files:  make(map[string]*file),
	}
}

// AddDownload registers url for the next PerformDownloads. Registering the
// same url twice returns the same file.
func (s *Service) AddDownload(url string) jobeff.Download {
	if f, ok := s.files[url]; ok {
		return f
	}
	f := &file{url: url}
	s.files[url] = f
	s.order = append(s.order, f)
	return f
}

// PerformDownloads fetches every registered file that has not been fetched
// yet. Failures are kept on the file and reported by its TmpPath; the
// returned error only covers problems with the temporary directory.
func (s *Service) PerformDownloads(ctx context.Context) error {
	err := os.MkdirAll(s.opts.TmpDir, 0755)
	if err != nil {
		return fmt.Errorf("failed to create tmp dir %v: %w", s.opts.TmpDir, err)
	}
	for _, f := range s.order {
		if f.done {
			continue
		}
		start := time.Now()
		f.path, f.tmp, f.err = s.fetch(ctx, f.url)
		f.done = true
		if f.err != nil {
			slog.Error("download failed", "url", f.url, "err", f.err)
			continue
		}
		slog.Debug("downloaded", "url", f.url, "path", f.path, "took", time.Since(start))
	}
	return nil
}

// fetch returns the local path of rawURL and whether it is a temporary copy.
func (s *Service) fetch(ctx context.Context, rawURL string) (string, bool, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", false, fmt.Errorf("failed to parse url %v: %w", rawURL, err)
	}
	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	var path string
	switch u.Scheme {
	case "":
		path, err = localPath(rawURL)
		return path, false, err
	case "file":
		path, err = localPath(u.Path)
		return path, false, err
	case "http", "https":
		path, err = s.toTmpFile(func(w io.Writer) error {
			return s.fetchHTTP(ctx, rawURL, w)
		})
		return path, true, err
	case "ssh":
		path, err = s.toTmpFile(func(w io.Writer) error {
			return s.fetchSSH(ctx, u, w)
		})
		return path, true, err
	}
	return "", false, fmt.Errorf("unsupported url scheme %q in %v", u.Scheme, rawURL)
}

// Local files are read in place.
func localPath(p string) (string, error) {
	st, err := os.Stat(p)
	if err != nil {
		return "", fmt.Errorf("failed to stat local file %v: %w", p, err)
	}
	if st.IsDir() {
		return "", fmt.Errorf("local file %v is a directory", p)
	}
	return p, nil
}

func (s *Service) toTmpFile(fetch func(w io.Writer) error) (string, error) {
	f, err := os.CreateTemp(s.opts.TmpDir, "download-*")
	if err != nil {
		return "", fmt.Errorf("failed to create tmp file: %w", err)
	}
	w := &limitedWriter{w: f, left: int64(s.opts.MaxSize), limit: s.opts.MaxSize}
	err = fetch(w)
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

func (s *Service) fetchHTTP(ctx context.Context, rawURL string, w io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request for %v: %w", rawURL, err)
	}
	res, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to get %v: %w", rawURL, err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to get %v: unexpected status %v", rawURL, res.Status)
	}
	_, err = io.Copy(w, res.Body)
	if err != nil {
		return fmt.Errorf("failed to read %v: %w", rawURL, err)
	}
	return nil
}

var errTooLarge = errors.New("download exceeds size limit")

// limitedWriter fails once more than limit bytes are written. A zero limit
// means no limit.
type limitedWriter struct {
	w     io.Writer
	left  int64
	limit jobeff.Bytes
}

func (l *limitedWriter) Write(p []byte) (int, error) {
	if l.limit > 0 {
		if int64(len(p)) > l.left {
			return 0, fmt.Errorf("%w of %v", errTooLarge, l.limit)
		}
		l.left -= int64(len(p))
	}
	return l.w.Write(p)
}

// Cleanup removes fetched temporary files. Local files are left alone.
func (s *Service) Cleanup() {
	for _, f := range s.order {
		if !f.tmp || f.path == "" {
			continue
		}
		err := os.Remove(f.path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Warn("failed to remove tmp file", "path", f.path, "err", err)
		}
	}
}

// RunDir is the archive directory of run relative to the archive root.
func RunDir(run jobeff.Run) string {
	return run.Time.UTC().Format("2006/01/02/15/04")
}

// ArchivePath returns where filename is stored for run, creating the
// directory if needed.
func (s *Service) ArchivePath(run jobeff.Run, filename string) (string, error) {
	if filename != filepath.Base(filename) {
		return "", fmt.Errorf("archive filename %q must not contain a directory", filename)
	}
	dir := filepath.Join(s.opts.ArchiveDir, filepath.FromSlash(RunDir(run)))
	err := os.MkdirAll(dir, 0755)
	if err != nil {
		return "", fmt.Errorf("failed to create archive dir %v: %w", dir, err)
	}
	return filepath.Join(dir, filename), nil
}
