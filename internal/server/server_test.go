package server

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/wlfb/bankline/internal/config"
	"github.com/wlfb/bankline/internal/wire"
)

func startTestServer(t *testing.T) *Server {
	t.Helper()

	cfg := config.Default()
	cfg.ListenAddr = "127.0.0.1:0"
	cfg.LockPollIntervalMs = 5
	cfg.LogLevel = "none"

	srv, err := New(cfg)
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	t.Cleanup(func() {
		if err := srv.Stop(); err != nil {
			t.Errorf("Failed to stop server: %v", err)
		}
	})

	return srv
}

// testClient is a minimal protocol peer for driving the server in tests.
type testClient struct {
	t    *testing.T
	conn net.Conn
	ch   *wire.Channel
}

func dialTestClient(t *testing.T, srv *Server, clientID string) *testClient {
	t.Helper()

	conn, err := net.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatalf("Failed to dial server: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	c := &testClient{t: t, conn: conn, ch: wire.NewChannel(conn)}
	c.sendTagged(wire.TypeClientID, clientID)
	return c
}

func (c *testClient) sendTagged(typ wire.Type, content string) {
	c.t.Helper()
	if err := c.ch.Send(typ, content); err != nil {
		c.t.Fatalf("Failed to send %s message: %v", typ, err)
	}
}

func (c *testClient) send(line string) {
	c.t.Helper()
	c.sendTagged(wire.TypeNone, line)
}

func (c *testClient) read() (*wire.Message, error) {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return c.ch.ReadMessage()
}

func (c *testClient) expect(typ wire.Type) *wire.Message {
	c.t.Helper()
	msg, err := c.read()
	if err != nil {
		c.t.Fatalf("Expected %s message, got read error: %v", typ, err)
	}
	if msg.Type != typ {
		c.t.Fatalf("Expected %s message, got %s %q", typ, msg.Type, msg.Content)
	}
	return msg
}

func TestStartStop(t *testing.T) {
	srv := startTestServer(t)
	if !srv.IsRunning() {
		t.Fatal("Server should be running after Start")
	}
	if err := srv.Stop(); err != nil {
		t.Fatalf("Failed to stop server: %v", err)
	}
	if srv.IsRunning() {
		t.Fatal("Server should not be running after Stop")
	}
}

func TestAddDialogue(t *testing.T) {
	srv := startTestServer(t)
	c := dialTestClient(t, srv, "CLIENT_A")

	c.send("add")
	msg := c.expect(wire.TypeInput)
	if msg.Content != "Enter amount to add:" {
		t.Errorf("Unexpected prompt: %q", msg.Content)
	}

	c.send("100")
	msg = c.expect(wire.TypeMessage)
	want := "Added 100.0 to account CLIENT_A. New balance: 1100.0"
	if msg.Content != want {
		t.Errorf("Result message = %q, want %q", msg.Content, want)
	}
	c.expect(wire.TypeEnd)
}

func TestSubtractDialogue(t *testing.T) {
	srv := startTestServer(t)
	c := dialTestClient(t, srv, "CLIENT_B")

	// Balances may go negative; only a warning is due, no refusal
	c.send("subtract")
	c.expect(wire.TypeInput)
	c.send("1500")
	msg := c.expect(wire.TypeMessage)
	want := "Subtracted 1500.0 from account CLIENT_B. New balance: -500.0"
	if msg.Content != want {
		t.Errorf("Result message = %q, want %q", msg.Content, want)
	}
	c.expect(wire.TypeEnd)
}

func TestTransferDialogue(t *testing.T) {
	srv := startTestServer(t)
	c := dialTestClient(t, srv, "CLIENT_A")

	c.send("transfer")
	msg := c.expect(wire.TypeInput)
	if msg.Content != "Enter the receiver's account ID:" {
		t.Errorf("Unexpected prompt: %q", msg.Content)
	}
	c.send("CLIENT_B")
	c.expect(wire.TypeInput)
	c.send("250")

	msg = c.expect(wire.TypeMessage)
	want := "Transferred 250.0 from CLIENT_A to CLIENT_B. Sender's new balance: 750.0"
	if msg.Content != want {
		t.Errorf("Result message = %q, want %q", msg.Content, want)
	}
	c.expect(wire.TypeEnd)

	if balance, err := srv.Ledger().Balance("client_b"); err != nil || balance != 1250.0 {
		t.Errorf("Receiver balance = %v (err %v), want 1250", balance, err)
	}
}

func TestTransferOverdraftWarning(t *testing.T) {
	srv := startTestServer(t)
	c := dialTestClient(t, srv, "CLIENT_A")

	c.send("transfer")
	c.expect(wire.TypeInput)
	c.send("CLIENT_B")
	c.expect(wire.TypeInput)
	c.send("5000")

	msg := c.expect(wire.TypeMessage)
	if !strings.Contains(msg.Content, "Warning") {
		t.Errorf("Expected overdraft warning before the result, got %q", msg.Content)
	}
	msg = c.expect(wire.TypeMessage)
	if !strings.Contains(msg.Content, "Transferred 5000.0") {
		t.Errorf("Expected transfer result, got %q", msg.Content)
	}
	c.expect(wire.TypeEnd)
}

func TestTransferToSelf(t *testing.T) {
	srv := startTestServer(t)
	c := dialTestClient(t, srv, "CLIENT_A")

	c.send("transfer")
	c.expect(wire.TypeInput)
	c.send("client_a")
	c.expect(wire.TypeInput)
	c.send("50")

	c.expect(wire.TypeError)
	c.expect(wire.TypeEnd)

	if balance, err := srv.Ledger().Balance("client_a"); err != nil || balance != 1000.0 {
		t.Errorf("Balance = %v (err %v), want unchanged 1000", balance, err)
	}
}

func TestUnknownCommand(t *testing.T) {
	srv := startTestServer(t)
	c := dialTestClient(t, srv, "CLIENT_C")

	c.send("balance")
	msg := c.expect(wire.TypeError)
	if !strings.Contains(msg.Content, "Supported commands are: add, sub, transfer.") {
		t.Errorf("Unexpected error message: %q", msg.Content)
	}
	c.expect(wire.TypeEnd)
}

func TestInvalidAmountDoesNotLeakLock(t *testing.T) {
	srv := startTestServer(t)
	c := dialTestClient(t, srv, "CLIENT_A")

	c.send("add")
	c.expect(wire.TypeInput)
	c.send("not-a-number")
	msg := c.expect(wire.TypeError)
	if !strings.Contains(msg.Content, "not a number") {
		t.Errorf("Unexpected error message: %q", msg.Content)
	}
	c.expect(wire.TypeEnd)

	// The lock must have been released: the next command completes
	// without a WAIT.
	c.send("add")
	c.expect(wire.TypeInput)
	c.send("10")
	c.expect(wire.TypeMessage)
	c.expect(wire.TypeEnd)
}

func TestHandshakeRejectsUnknownClient(t *testing.T) {
	srv := startTestServer(t)
	c := dialTestClient(t, srv, "intruder")

	msg := c.expect(wire.TypeMessage)
	if msg.Content != RefusalMessage {
		t.Errorf("Refusal = %q, want %q", msg.Content, RefusalMessage)
	}

	// The server closes without further messages
	if _, err := c.read(); err == nil {
		t.Error("Expected the connection to be closed after refusal")
	}
}

func TestHandshakeIsCaseSensitive(t *testing.T) {
	srv := startTestServer(t)
	c := dialTestClient(t, srv, "client_a")

	msg := c.expect(wire.TypeMessage)
	if msg.Content != RefusalMessage {
		t.Errorf("Lowercase id should be refused, got %q", msg.Content)
	}
}

func TestWaitOnContendedLock(t *testing.T) {
	srv := startTestServer(t)
	first := dialTestClient(t, srv, "CLIENT_A")
	second := dialTestClient(t, srv, "CLIENT_B")

	// First client opens a transfer dialogue: once its INPUT prompt
	// arrives, the ledger lock is held and stays held until the dialogue
	// completes.
	first.send("transfer")
	first.expect(wire.TypeInput)

	// Second client now attempts a locked command and must observe WAIT.
	second.send("add")
	msg := second.expect(wire.TypeWait)
	if !strings.Contains(msg.Content, "Waiting for lock") {
		t.Errorf("Unexpected WAIT content: %q", msg.Content)
	}

	// First client finishes, releasing the lock.
	first.send("CLIENT_B")
	first.expect(wire.TypeInput)
	first.send("50")
	first.expect(wire.TypeMessage)
	first.expect(wire.TypeEnd)

	// Second client's command now proceeds.
	second.expect(wire.TypeInput)
	second.send("10")
	second.expect(wire.TypeMessage)
	second.expect(wire.TypeEnd)
}

func TestConcurrentAddsAreSerialized(t *testing.T) {
	srv := startTestServer(t)

	const perClient = 10
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := dialTestClient(t, srv, "CLIENT_A")
			for j := 0; j < perClient; j++ {
				c.send("add")
				for {
					msg, err := c.read()
					if err != nil {
						t.Errorf("Read failed: %v", err)
						return
					}
					if msg.Type == wire.TypeInput {
						c.send("1")
					}
					if msg.Type == wire.TypeEnd {
						break
					}
				}
			}
		}()
	}
	wg.Wait()

	balance, err := srv.Ledger().Balance("client_a")
	if err != nil {
		t.Fatalf("Balance lookup failed: %v", err)
	}
	if want := 1000.0 + 2*perClient; balance != want {
		t.Errorf("Balance = %v, want %v (no lost updates)", balance, want)
	}
}

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{100, "100.0"},
		{-500, "-500.0"},
		{0, "0.0"},
		{12.34, "12.34"},
		{0.5, "0.5"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := formatAmount(tt.in); got != tt.want {
				t.Errorf("formatAmount(%v) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSessionCount(t *testing.T) {
	srv := startTestServer(t)

	c := dialTestClient(t, srv, "CLIENT_A")
	c.send("add")
	c.expect(wire.TypeInput)

	if n := srv.SessionCount(); n != 1 {
		t.Errorf("SessionCount = %d, want 1", n)
	}

	// Finish cleanly so Stop does not race the dialogue
	c.send("1")
	c.expect(wire.TypeMessage)
	c.expect(wire.TypeEnd)
}

func TestDisconnectEndsSession(t *testing.T) {
	srv := startTestServer(t)

	c := dialTestClient(t, srv, "CLIENT_A")
	c.send("add")
	c.expect(wire.TypeInput)
	c.conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for srv.SessionCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("Session did not exit after client disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func ExampleServer() {
	cfg := config.Default()
	cfg.ListenAddr = "127.0.0.1:0"
	cfg.LogLevel = "none"

	srv, _ := New(cfg)
	_ = srv.Start(context.Background())
	defer srv.Stop()

	fmt.Println(srv.IsRunning())
	// Output: true
}
