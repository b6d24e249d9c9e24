package main

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/jtconnors/go-socket/internal/config"
	"github.com/jtconnors/go-socket/internal/diag"
	"github.com/jtconnors/go-socket/internal/multicast"
	"github.com/jtconnors/go-socket/internal/socket"
)

var cfg config.Config

var rootCmd = &cobra.Command{
	Use:   "socketcast",
	Short: "Line-oriented socket broadcast demos",
	Long: `socketcast — demo programs for the go-socket broadcast engine.

serve       broadcast server: every stdin line is fanned out to all clients
client      connect to a broadcast server and print received lines
mcast send  send stdin lines as datagrams to a multicast group
mcast recv  join a multicast group and print received datagrams`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		godotenv.Load() //nolint:errcheck
		loaded, err := config.Load()
		if err != nil {
			return err
		}
		// Flags win over environment.
		if !cmd.Flags().Changed("host") {
			cfg.Host = loaded.Host
		}
		if !cmd.Flags().Changed("port") {
			cfg.Port = loaded.Port
		}
		if !cmd.Flags().Changed("group") {
			cfg.GroupAddr = loaded.GroupAddr
		}
		if !cmd.Flags().Changed("debug") {
			cfg.Debug = loaded.Debug
		}
		cfg.MaxDatagram = loaded.MaxDatagram
		cfg.FanoutWorkers = loaded.FanoutWorkers
		cfg.RatePerSec = loaded.RatePerSec
		cfg.WriteTimeout = loaded.WriteTimeout
		return nil
	},
}

func newLogger() (*diag.Logger, error) {
	flags, err := diag.Parse(cfg.Debug)
	if err != nil {
		return nil, err
	}
	return diag.New(os.Stderr, flags), nil
}

// ─── serve ──────────────────────────────────────────────────────────────────

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a broadcast server fed from stdin",
	RunE: func(cmd *cobra.Command, args []string) error {
		log, err := newLogger()
		if err != nil {
			return err
		}

		var b *socket.Broadcaster
		b = socket.NewBroadcaster(socket.BroadcasterConfig{
			Port:          cfg.Port,
			FanoutWorkers: cfg.FanoutWorkers,
			RatePerSec:    cfg.RatePerSec,
			WriteTimeout:  cfg.WriteTimeout,
		}, socket.HandlerFuncs{
			Message: func(msg string) {
				fmt.Printf("recv< %s\n", msg)
			},
			ClosedStatus: func(closed bool) {
				fmt.Printf("connections: %d\n", b.NumPeers())
			},
		}, log)
		if err := b.Start(); err != nil {
			return err
		}
		defer b.Shutdown()

		fmt.Printf("broadcasting on %s — type lines to send, Ctrl-D to quit\n", b.Addr())
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			b.Post(scanner.Text())
		}
		return scanner.Err()
	},
}

// ─── client ─────────────────────────────────────────────────────────────────

var clientCmd = &cobra.Command{
	Use:   "client",
	Short: "Connect to a broadcast server and print received lines",
	RunE: func(cmd *cobra.Command, args []string) error {
		log, err := newLogger()
		if err != nil {
			return err
		}

		done := make(chan struct{})
		c, err := socket.Dial(socket.ClientConfig{
			Host:         cfg.Host,
			Port:         cfg.Port,
			WriteTimeout: cfg.WriteTimeout,
		}, socket.HandlerFuncs{
			Message: func(msg string) {
				fmt.Println(msg)
			},
			ClosedStatus: func(closed bool) {
				if closed {
					select {
					case <-done:
					default:
						close(done)
					}
				}
			},
		}, log)
		if err != nil {
			return err
		}
		defer c.Close()

		// stdin lines go back to the server.
		go func() {
			scanner := bufio.NewScanner(os.Stdin)
			for scanner.Scan() {
				if err := c.Send(scanner.Text()); err != nil {
					return
				}
			}
			c.Close() //nolint:errcheck
		}()

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-done:
		case <-sig:
		}
		return nil
	},
}

// ─── mcast ──────────────────────────────────────────────────────────────────

var mcastCmd = &cobra.Command{
	Use:   "mcast",
	Short: "Multicast group demos",
}

var mcastSendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send stdin lines as datagrams to the group",
	RunE: func(cmd *cobra.Command, args []string) error {
		log, err := newLogger()
		if err != nil {
			return err
		}
		c, err := multicast.Join(multicast.Config{
			GroupAddr:   cfg.GroupAddr,
			Port:        cfg.Port,
			MaxDatagram: cfg.MaxDatagram,
		}, socket.HandlerFuncs{}, log)
		if err != nil {
			return err
		}
		defer c.Leave()

		fmt.Printf("sending to %s — type lines to send, Ctrl-D to quit\n", c.Group())
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			if err := c.Send(scanner.Text()); err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
			}
		}
		return scanner.Err()
	},
}

var mcastRecvCmd = &cobra.Command{
	Use:   "recv",
	Short: "Join the group and print received datagrams",
	RunE: func(cmd *cobra.Command, args []string) error {
		log, err := newLogger()
		if err != nil {
			return err
		}

		done := make(chan struct{})
		opened := false
		c, err := multicast.Join(multicast.Config{
			GroupAddr:   cfg.GroupAddr,
			Port:        cfg.Port,
			MaxDatagram: cfg.MaxDatagram,
		}, socket.HandlerFuncs{
			Message: func(msg string) {
				fmt.Println(msg)
			},
			ClosedStatus: func(closed bool) {
				// The first report is the conventional initial closed
				// state, before the group is joined.
				if !closed {
					opened = true
					return
				}
				if opened {
					close(done)
				}
			},
		}, log)
		if err != nil {
			return err
		}
		defer c.Leave()

		fmt.Printf("listening on %s\n", c.Group())
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-done:
		case <-sig:
		}
		return nil
	},
}

func main() {
	rootCmd.PersistentFlags().StringVar(&cfg.Host, "host", config.DefaultHost, "remote host (client)")
	rootCmd.PersistentFlags().IntVar(&cfg.Port, "port", config.DefaultPort, "port")
	rootCmd.PersistentFlags().StringVar(&cfg.GroupAddr, "group", config.DefaultGroupAddr, "multicast group address")
	rootCmd.PersistentFlags().StringVar(&cfg.Debug, "debug", "", "diagnostic channels (send,recv,status,exceptions,io,all)")

	mcastCmd.AddCommand(mcastSendCmd, mcastRecvCmd)
	rootCmd.AddCommand(serveCmd, clientCmd, mcastCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
