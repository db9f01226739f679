package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/progrium/tabtalk-go/bus"
	"github.com/progrium/tabtalk-go/packet"
	"github.com/spf13/cobra"
)

var listenHidden bool

var listenCmd = &cobra.Command{
	Use:   "listen <channel> [action]",
	Short: "print packets received on a channel as JSON lines",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runListen,
}

func init() {
	listenCmd.Flags().BoolVar(&listenHidden, "hidden", false, "start hidden: drop everything and never acknowledge")
}

func runListen(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b, log, closeBus, err := openBus(ctx, bus.NewFlag(!listenHidden))
	if err != nil {
		return err
	}
	defer closeBus()

	channel := args[0]
	var actions []packet.Action
	if len(args) > 1 {
		actions = append(actions, packet.ParseAction(args[1]))
	}
	sub, err := b.GetChannelMessages(channel, actions...)
	if err != nil {
		return err
	}
	defer sub.Close()
	log.Info("listening", "channel", channel, "tab", b.Identity().ID(), "hidden", listenHidden)

	enc := json.NewEncoder(os.Stdout)
	for {
		select {
		case p, ok := <-sub.Packets():
			if !ok {
				if err := sub.Err(); err != nil {
					return fmt.Errorf("%s: %w", channel, err)
				}
				return nil
			}
			if err := enc.Encode(p); err != nil {
				return err
			}
		case <-ctx.Done():
			// announce closing like a tab being closed
			if err := b.SendMessage(channel, packet.Packet{Action: packet.TabClosed}); err != nil {
				log.Warn("sending tab closed", "err", err)
			}
			return nil
		}
	}
}
