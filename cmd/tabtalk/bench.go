package main

import (
	"context"
	"fmt"
	"time"

	"github.com/progrium/tabtalk-go/bus"
	"github.com/progrium/tabtalk-go/packet"
	"github.com/spf13/cobra"
)

var (
	benchCount int
	benchLocal bool
)

var benchCmd = &cobra.Command{
	Use:   "bench [channel]",
	Short: "measure acknowledgment round trips",
	Long: `bench opens a listening tab and a sending tab on the configured hub and
times acknowledged sends between them. Round trips include the frame delay.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runBench,
}

func init() {
	benchCmd.Flags().IntVarP(&benchCount, "count", "n", 100, "number of acknowledged sends")
	benchCmd.Flags().BoolVar(&benchLocal, "local", false, "use an in-process hub instead of the configured one")
}

func runBench(cmd *cobra.Command, args []string) error {
	channel := "bench"
	if len(args) > 0 {
		channel = args[0]
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	tabs, closeTabs, err := openTabs(ctx, benchLocal, nil, nil)
	if err != nil {
		return err
	}
	defer closeTabs()
	sender, listener := tabs[0], tabs[1]

	sub, err := listener.GetChannelMessages(channel)
	if err != nil {
		return err
	}
	defer sub.Close()
	go func() {
		for range sub.Packets() {
		}
	}()

	var (
		acked         int
		total         time.Duration
		fastest, slow time.Duration
	)
	for i := 0; i < benchCount; i++ {
		start := time.Now()
		ok := sender.SendMessageWithAck(ctx, channel, packet.Packet{Action: packet.NeedData, Data: i}, bus.AckOptions{})
		rtt := time.Since(start)
		if !ok {
			continue
		}
		acked++
		total += rtt
		if fastest == 0 || rtt < fastest {
			fastest = rtt
		}
		if rtt > slow {
			slow = rtt
		}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Acks:", acked, "/", benchCount)
	if acked > 0 {
		fmt.Fprintln(out, "RTT min:", fastest, "avg:", total/time.Duration(acked), "max:", slow)
	}
	return nil
}
