// Package client implements the interactive terminal peer of the bank
// protocol: it connects, identifies itself with CLIENT_ID, and then
// drives command dialogues, answering server-initiated INPUT prompts
// with lines typed by the human.
package client

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/wlfb/bankline/internal/consts"
	"github.com/wlfb/bankline/internal/wire"
)

// Config holds client configuration
type Config struct {
	// ServerAddr is the TCP address of the bank server
	ServerAddr string
	// ClientID is the account identifier this connection operates on
	ClientID string
	// ConnectTimeout is the timeout for the initial connection
	ConnectTimeout time.Duration
	// In is the source of typed lines (normally os.Stdin)
	In io.Reader
	// Out receives rendered output (normally os.Stdout)
	Out io.Writer
	// Plain disables terminal styling
	Plain bool
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		ServerAddr:     "localhost:4545",
		ConnectTimeout: consts.DefaultDialTimeout,
		In:             os.Stdin,
		Out:            os.Stdout,
	}
}

type styles struct {
	dim  lipgloss.Style
	err  lipgloss.Style
	wait lipgloss.Style
}

func newStyles(plain bool) styles {
	if plain {
		s := lipgloss.NewStyle()
		return styles{dim: s, err: s, wait: s}
	}
	return styles{
		dim:  lipgloss.NewStyle().Faint(true),
		err:  lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
		wait: lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
	}
}

// Client is an interactive protocol peer.
type Client struct {
	cfg    *Config
	ch     *wire.Channel
	in     *bufio.Reader
	out    io.Writer
	styles styles
}

// New creates a client. The client id must be set.
func New(cfg *Config) (*Client, error) {
	if cfg.ClientID == "" {
		return nil, errors.New("client id is required")
	}
	if cfg.In == nil {
		cfg.In = os.Stdin
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = consts.DefaultDialTimeout
	}

	return &Client{
		cfg:    cfg,
		in:     bufio.NewReader(cfg.In),
		out:    cfg.Out,
		styles: newStyles(cfg.Plain),
	}, nil
}

// Connect dials the server and fires the CLIENT_ID handshake.
func (c *Client) Connect() error {
	conn, err := net.DialTimeout("tcp", c.cfg.ServerAddr, c.cfg.ConnectTimeout)
	if err != nil {
		return fmt.Errorf("unable to connect to %s: %w", c.cfg.ServerAddr, err)
	}

	return c.Attach(conn)
}

// Attach runs the handshake over an established stream. Split out from
// Connect so tests can drive the client over a pipe.
func (c *Client) Attach(rwc io.ReadWriteCloser) error {
	c.ch = wire.NewChannel(rwc)
	if err := c.ch.Send(wire.TypeClientID, c.cfg.ClientID); err != nil {
		return fmt.Errorf("handshake failed: %w", err)
	}

	fmt.Fprintf(c.out, "Client %s connected to server at %s\n", c.cfg.ClientID, c.cfg.ServerAddr)
	return nil
}

// Close releases the connection.
func (c *Client) Close() error {
	if c.ch == nil {
		return nil
	}
	return c.ch.Close()
}

// Run loops over commands until the user quits or the server goes away.
func (c *Client) Run() error {
	defer c.Close()

	for {
		command, err := c.promptLine("Enter command (add, sub, transfer or quit):")
		if err != nil {
			// End of user input ends the session locally
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		if strings.EqualFold(strings.TrimSpace(command), "quit") {
			fmt.Fprintf(c.out, "Client %s exiting.\n", c.cfg.ClientID)
			return nil
		}

		if err := c.ch.Send(wire.TypeNone, command); err != nil {
			return fmt.Errorf("failed to send command: %w", err)
		}

		if done, err := c.dialogue(); err != nil {
			return err
		} else if done {
			fmt.Fprintln(c.out, "Server closed the connection.")
			return nil
		}
	}
}

// dialogue reads server messages until END (dialogue complete, returns
// false) or end of stream (session complete, returns true).
func (c *Client) dialogue() (closed bool, err error) {
	for {
		msg, err := c.ch.ReadMessage()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return true, nil
			}
			return false, err
		}

		switch msg.Type {
		case wire.TypeInput:
			answer, err := c.promptLine(c.styles.dim.Render("[server] ") + msg.Content)
			if err != nil {
				return false, err
			}
			if err := c.ch.Send(wire.TypeNone, answer); err != nil {
				return false, err
			}
		case wire.TypeMessage:
			fmt.Fprintln(c.out, c.styles.dim.Render("[server] "+msg.Content))
		case wire.TypeError:
			fmt.Fprintln(c.out, c.styles.err.Render("[error] "+msg.Content))
		case wire.TypeWait:
			fmt.Fprintln(c.out, c.styles.wait.Render("[wait] "+msg.Content))
		case wire.TypeEnd:
			return false, nil
		default:
			fmt.Fprintln(c.out, c.styles.dim.Render("[unknown] "+msg.Content))
		}
	}
}

// promptLine shows a prompt and reads one line of user input.
func (c *Client) promptLine(prompt string) (string, error) {
	fmt.Fprintln(c.out, prompt)
	fmt.Fprint(c.out, "> ")

	line, err := c.in.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return strings.TrimRight(line, "\r\n"), nil
		}
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
