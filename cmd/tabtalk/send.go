package main

import (
	"context"

	"github.com/progrium/clon-go"
	"github.com/progrium/tabtalk-go/packet"
	"github.com/spf13/cobra"
)

var sendCmd = &cobra.Command{
	Use:   "send <channel> <action> [data...]",
	Short: "send a packet without waiting for an acknowledgment",
	Long: `send posts a packet on a channel. Data arguments are parsed as CLON,
for example: send cards add front=hola back=hello`,
	Args: cobra.MinimumNArgs(2),
	RunE: runSend,
}

// parsePacket builds a packet from an action and CLON data arguments.
func parsePacket(action string, data []string) (packet.Packet, error) {
	p := packet.Packet{Action: packet.ParseAction(action)}
	if len(data) > 0 {
		v, err := clon.Parse(data)
		if err != nil {
			return p, err
		}
		p.Data = v
	}
	return p, nil
}

func runSend(cmd *cobra.Command, args []string) error {
	p, err := parsePacket(args[1], args[2:])
	if err != nil {
		return err
	}
	b, log, closeBus, err := openBus(context.Background(), nil)
	if err != nil {
		return err
	}
	defer closeBus()

	if !p.Action.Known() {
		log.Warn("unknown action", "action", string(p.Action))
	}
	return b.SendMessage(args[0], p)
}
