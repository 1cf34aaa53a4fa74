package usftp

import (
	"golang.org/x/crypto/ssh"
)

// Client wraps an established SSH connection that sftp sessions are
// opened on. Obtain one with Dial.
type Client struct {
	conn *ssh.Client
}

// NewClientSession opens a new "sftp" subsystem channel on the
// underlying SSH connection and performs the protocol handshake over
// it, returning a ready-to-use Conn. The SSH session backing it is torn
// down along with the rest of the connection when Client.Close is
// called.
func (c *Client) NewClientSession(opts ...Option) (*Conn, error) {
	session, err := c.conn.NewSession()
	if err != nil {
		return nil, err
	}
	if err := session.RequestSubsystem("sftp"); err != nil {
		_ = session.Close()
		return nil, err
	}
	w, err := session.StdinPipe()
	if err != nil {
		_ = session.Close()
		return nil, err
	}
	r, err := session.StdoutPipe()
	if err != nil {
		_ = session.Close()
		return nil, err
	}
	conn, err := NewConn(r, w, opts...)
	if err != nil {
		_ = session.Close()
		return nil, err
	}
	return conn, nil
}

// Close tears down the underlying SSH connection and every session
// opened on it.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}
