package usftp

import (
	"fmt"
	"os"
	"path/filepath"

	sshagent "github.com/xanzy/ssh-agent"
	"golang.org/x/crypto/ssh"

	"github.com/skeema/knownhosts"
)

// DialConfig describes how to reach and authenticate to a remote
// sftp-server over SSH. At least one of PrivateKeyPath or UseAgent must
// produce a usable credential; if both are set, the private key is
// tried first and the agent second.
type DialConfig struct {
	User string
	Host string
	Port int

	// PrivateKeyPath, if non-empty, is read and parsed as an SSH private
	// key (unencrypted — passphrase-protected keys are not handled here).
	PrivateKeyPath string

	// UseAgent, if true, adds every identity offered by a running
	// ssh-agent (via SSH_AUTH_SOCK) as an auth method.
	UseAgent bool

	// KnownHostsPath overrides the known_hosts file used for host key
	// verification. Defaults to ~/.ssh/known_hosts.
	KnownHostsPath string
}

// Dial opens an SSH connection per cfg and returns a Client ready to
// open sftp sessions on it. Host keys are verified against a
// known_hosts file — there is no InsecureIgnoreHostKey escape hatch
// here, unlike a quick-and-dirty client; an unrecognized host key fails
// the dial rather than being silently accepted.
func Dial(cfg DialConfig) (*Client, error) {
	var auths []ssh.AuthMethod

	if cfg.PrivateKeyPath != "" {
		b, err := os.ReadFile(cfg.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("sftp: read private key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(b)
		if err != nil {
			return nil, fmt.Errorf("sftp: parse private key: %w", err)
		}
		auths = append(auths, ssh.PublicKeys(signer))
	}

	if cfg.UseAgent {
		agentConn, _, err := sshagent.New()
		if err != nil {
			return nil, fmt.Errorf("sftp: connect to ssh-agent: %w", err)
		}
		signers, err := agentConn.Signers()
		if err != nil {
			return nil, fmt.Errorf("sftp: list ssh-agent identities: %w", err)
		}
		auths = append(auths, ssh.PublicKeys(signers...))
	}

	if len(auths) == 0 {
		return nil, fmt.Errorf("sftp: no authentication method configured")
	}

	khPath := cfg.KnownHostsPath
	if khPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("sftp: locate known_hosts: %w", err)
		}
		khPath = filepath.Join(home, ".ssh", "known_hosts")
	}
	khCallback, err := knownhosts.New(khPath)
	if err != nil {
		return nil, fmt.Errorf("sftp: load known_hosts: %w", err)
	}

	config := &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            auths,
		HostKeyCallback: khCallback,
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	conn, err := ssh.Dial("tcp", addr, config)
	if err != nil {
		return nil, fmt.Errorf("sftp: dial %s: %w", addr, err)
	}
	return &Client{conn: conn}, nil
}
