package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/progrium/tabtalk-go/relay"
	"github.com/spf13/cobra"
)

var relayCmd = &cobra.Command{
	Use:   "relay [addr]",
	Short: "run a relay so contexts in different processes can talk",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runRelay,
}

func runRelay(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		v.Set("transport.addr", args[0])
	}
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	c, err := cfg.Codec()
	if err != nil {
		return err
	}

	srv := &relay.Server{Codec: c, Logger: log}
	var l relay.Listener
	addr := cfg.Transport.Addr
	switch cfg.Transport.Kind {
	case "tcp":
		l, err = relay.ListenTCP(addr)
	case "unix":
		l, err = relay.ListenUnix(addr)
	case "ws":
		l, err = relay.ListenWS(addr, srv)
	case "quic":
		l, err = relay.ListenQUIC(addr, nil)
	default:
		return fmt.Errorf("cannot run a relay on transport %q", cfg.Transport.Kind)
	}
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("relay listening", "transport", cfg.Transport.Kind, "addr", l.Addr().String(), "codec", cfg.Transport.Codec)
	errs := make(chan error, 1)
	go func() {
		errs <- srv.Serve(l)
	}()

	select {
	case <-ctx.Done():
		log.Info("relay shutting down", "channels", srv.ChannelNames())
		return l.Close()
	case err := <-errs:
		return err
	}
}
