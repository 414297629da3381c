package main

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"syscall"

	"github.com/wlfb/bankline/internal/client"
	"golang.org/x/term"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := client.DefaultConfig()

	serverAddr := flag.String("server", cfg.ServerAddr, "bank server address")
	clientID := flag.String("id", "", "client account id (required)")
	plain := flag.Bool("plain", false, "disable terminal styling")
	flag.Parse()

	if *clientID == "" {
		flag.Usage()
		return errors.New("the -id flag is required")
	}

	cfg.ServerAddr = *serverAddr
	cfg.ClientID = *clientID
	cfg.Plain = *plain || !term.IsTerminal(int(os.Stdout.Fd()))

	c, err := client.New(cfg)
	if err != nil {
		return err
	}

	if err := c.Connect(); err != nil {
		var netErr net.Error
		switch {
		case errors.As(err, &netErr) && netErr.Timeout():
			return errors.New("connection attempt timed out. Is the server running?")
		case errors.Is(err, syscall.ECONNREFUSED):
			return errors.New("unable to connect to the server. It might be down.")
		default:
			return err
		}
	}

	return c.Run()
}
