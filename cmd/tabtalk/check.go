package main

import (
	"context"
	"fmt"
	"time"

	"github.com/progrium/tabtalk-go/bus"
	"github.com/progrium/tabtalk-go/packet"
	"github.com/spf13/cobra"
)

var checkLocal bool

var checkCmd = &cobra.Command{
	Use:   "check [channel]",
	Short: "check bus behavior on the configured hub",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCheck,
}

func init() {
	checkCmd.Flags().BoolVar(&checkLocal, "local", false, "use an in-process hub instead of the configured one")
}

func runCheck(cmd *cobra.Command, args []string) error {
	channel := "check"
	if len(args) > 0 {
		channel = args[0]
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	hidden := bus.NewFlag(false)
	tabs, closeTabs, err := openTabs(ctx, checkLocal, nil, nil, hidden)
	if err != nil {
		return err
	}
	defer closeTabs()
	sender, listener, sleeper := tabs[0], tabs[1], tabs[2]

	sub, err := listener.GetChannelMessages(channel, packet.Add)
	if err != nil {
		return err
	}
	defer sub.Close()
	asleep, err := sleeper.GetChannelMessages(channel)
	if err != nil {
		return err
	}
	defer asleep.Close()

	out := cmd.OutOrStdout()
	report := func(name string, ok bool) error {
		if !ok {
			fmt.Fprintln(out, name+": FAIL")
			return fmt.Errorf("check %s failed", name)
		}
		fmt.Fprintln(out, name+": ok")
		return nil
	}

	// Send check
	if err := sender.SendMessage(channel, packet.Packet{Action: packet.Add, Data: "check"}); err != nil {
		return err
	}
	var got bool
	select {
	case p, ok := <-sub.Packets():
		got = ok && p.Action == packet.Add && !p.NeedAck
	case <-time.After(2 * time.Second):
	}
	if err := report("Send", got); err != nil {
		return err
	}

	// Ack check
	ok := sender.SendMessageWithAck(ctx, channel, packet.Packet{Action: packet.Add}, bus.AckOptions{})
	if err := report("Ack", ok); err != nil {
		return err
	}

	// Hidden check: the only tab left on the channel is hidden
	sub.Close()
	ok = !sender.SendMessageWithAck(ctx, channel, packet.Packet{Action: packet.Reset}, bus.AckOptions{})
	if err := report("Hidden", ok); err != nil {
		return err
	}
	select {
	case p := <-asleep.Packets():
		return report("Hidden drop "+p.String(), false)
	default:
	}
	return nil
}
