package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/progrium/tabtalk-go/bus"
	"github.com/spf13/cobra"
)

var errNotAcked = errors.New("not acknowledged")

var (
	ackSlave     bool
	ackExtraWait bool
)

var ackCmd = &cobra.Command{
	Use:   "ack <channel> <action> [data...]",
	Short: "send a packet and wait for a peer to acknowledge it",
	Long: `ack posts a packet asking for an acknowledgment and prints true or
false. It exits with status 1 when no peer acknowledged in time.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runAck,
}

func init() {
	ackCmd.Flags().BoolVar(&ackSlave, "slave", false, "send with the slave sender id")
	ackCmd.Flags().BoolVar(&ackExtraWait, "extra-wait", false, "wait the extra ack time")
}

func runAck(cmd *cobra.Command, args []string) error {
	p, err := parsePacket(args[1], args[2:])
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b, _, closeBus, err := openBus(ctx, nil)
	if err != nil {
		return err
	}
	defer closeBus()

	opts := bus.AckOptions{ExtraWait: ackExtraWait}
	if ackSlave {
		opts.Role = bus.Slave
	}
	ok := b.SendMessageWithAck(ctx, args[0], p, opts)
	fmt.Fprintln(cmd.OutOrStdout(), ok)
	if !ok {
		return errNotAcked
	}
	return nil
}
