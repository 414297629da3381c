// Package wire implements the tagged-line message protocol spoken between
// the bank server and its clients.
//
// Each message is one line. Tagged messages are written as
//
//	[TAG] content
//
// with a single space after the closing bracket. NONE messages (client
// commands and prompt answers) are written as the bare content with no
// brackets. An end of stream on the read side is reported as io.EOF and
// means the session is over for the receiver.
package wire

import (
	"bufio"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/wlfb/bankline/internal/consts"
)

// Channel is a bidirectional message channel over a byte stream. Writes
// are flushed per message so prompts reach the peer before the channel
// blocks on the reply.
type Channel struct {
	r   *bufio.Reader
	w   *bufio.Writer
	rwc io.ReadWriteCloser

	wmu sync.Mutex
}

// NewChannel wraps a byte stream (normally a net.Conn) in a Channel.
func NewChannel(rwc io.ReadWriteCloser) *Channel {
	return &Channel{
		r:   bufio.NewReaderSize(rwc, consts.LineBufferSize),
		w:   bufio.NewWriterSize(rwc, consts.LineBufferSize),
		rwc: rwc,
	}
}

// Send writes one message line. TypeNone is written as the bare content;
// every other type as "[TYPE] content".
func (c *Channel) Send(t Type, content string) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	line := content
	if t != TypeNone {
		line = "[" + string(t) + "] " + content
	}

	if _, err := c.w.WriteString(line + "\n"); err != nil {
		return err
	}
	return c.w.Flush()
}

// ReadLine blocks for the next line, stripped of its terminator. A closed
// peer yields io.EOF, which the receiver must treat as session
// termination.
func (c *Channel) ReadLine() (string, error) {
	line, err := c.r.ReadString('\n')
	if err != nil {
		// A final line without a terminator still counts
		if errors.Is(err, io.EOF) && line != "" {
			return strings.TrimRight(line, "\r\n"), nil
		}
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// ReadMessage reads one line and classifies it per the tag grammar.
func (c *Channel) ReadMessage() (*Message, error) {
	line, err := c.ReadLine()
	if err != nil {
		return nil, err
	}
	return Parse(line), nil
}

// Ask sends an INPUT prompt and blocks for exactly one raw reply line.
// On the wire it is indistinguishable from an unsolicited INPUT message,
// so the peer handles both uniformly.
func (c *Channel) Ask(prompt string) (string, error) {
	if err := c.Send(TypeInput, prompt); err != nil {
		return "", err
	}
	return c.ReadLine()
}

// Close flushes pending writes and closes the underlying stream. Both the
// read and write paths are released even if one step fails.
func (c *Channel) Close() error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	return errors.Join(c.w.Flush(), c.rwc.Close())
}
