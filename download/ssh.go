package download

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/url"
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// fetchSSH streams the remote file of an ssh://user@host[:port]/path url
// through "cat" on the remote host.
func (s *Service) fetchSSH(ctx context.Context, u *url.URL, w io.Writer) error {
	client, err := s.dialSSH(ctx, u)
	if err != nil {
		return err
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return fmt.Errorf("failed to create ssh session on %v: %w", u.Host, err)
	}
	defer session.Close()
	session.Stdout = w
	var stderr strings.Builder
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() {
		done <- session.Run("cat -- " + shellQuote(u.Path))
	}()
	select {
	case <-ctx.Done():
		// Closing the client unblocks Run.
		client.Close()
		<-done
		return fmt.Errorf("failed to fetch %v from %v: %w", u.Path, u.Host, ctx.Err())
	case err = <-done:
	}
	if err != nil {
		return fmt.Errorf("failed to fetch %v from %v: %w: %s", u.Path, u.Host, err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

func (s *Service) dialSSH(ctx context.Context, u *url.URL) (*ssh.Client, error) {
	username := u.User.Username()
	if username == "" {
		current, err := user.Current()
		if err != nil {
			return nil, fmt.Errorf("failed to get current user: %w", err)
		}
		username = current.Username
	}

	keyFile := s.opts.SSHKeyFile
	if keyFile == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to find home dir for ssh key: %w", err)
		}
		keyFile = filepath.Join(home, ".ssh", "id_rsa")
	}
	key, err := os.ReadFile(keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key %s: %w", keyFile, err)
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key %s: %w", keyFile, err)
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if s.opts.SSHKnownHosts != "" {
		hostKeyCallback, err = knownhosts.New(s.opts.SSHKnownHosts)
		if err != nil {
			return nil, fmt.Errorf("failed to load known hosts %s: %w", s.opts.SSHKnownHosts, err)
		}
	} else {
		slog.Warn("not verifying ssh host key, set ssh-known-hosts to enable", "host", u.Host)
	}

	config := &ssh.ClientConfig{
		User: username,
		Auth: []ssh.AuthMethod{
			ssh.PublicKeys(signer),
		},
		HostKeyCallback: hostKeyCallback,
	}

	addr := u.Host
	if u.Port() == "" {
		addr = net.JoinHostPort(u.Hostname(), "22")
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial host %s: %w", addr, err)
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open ssh connection to %s: %w", addr, err)
	}
	return ssh.NewClient(c, chans, reqs), nil
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
