package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/progrium/tabtalk-go/config"
	"github.com/spf13/cobra"
)

var (
	v       = config.New()
	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "tabtalk",
	Short: "tabtalk is a utility for talking on tab message bus channels",
	Long: `tabtalk opens contexts on a tab message bus. Contexts in different
processes meet through a relay or a Redis server.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&cfgFile, "config", "c", "", "config file")
	flags.String("transport", "", "relay transport (tcp, unix, ws, quic) or redis")
	flags.String("addr", "", "relay address")
	flags.String("codec", "", "wire codec (json, cbor)")
	flags.String("log-level", "", "log level (DEBUG, INFO, WARN, ERROR)")

	_ = v.BindPFlag("transport.kind", flags.Lookup("transport"))
	_ = v.BindPFlag("transport.addr", flags.Lookup("addr"))
	_ = v.BindPFlag("transport.codec", flags.Lookup("codec"))
	_ = v.BindPFlag("logging.level", flags.Lookup("log-level"))

	rootCmd.AddCommand(relayCmd)
	rootCmd.AddCommand(listenCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(ackCmd)
	rootCmd.AddCommand(benchCmd)
	rootCmd.AddCommand(checkCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errNotAcked) {
			fmt.Fprintln(os.Stderr, "tabtalk:", err)
		}
		os.Exit(1)
	}
}
