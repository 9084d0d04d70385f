package commands

import (
	"fmt"

	"github.com/bryanchriswhite/illuminate/internal/control"
	"github.com/spf13/cobra"
)

var sendCmd = &cobra.Command{
	Use:   "send ADDRESS [ARGS...]",
	Short: "Send an OSC control message",
	Long: `Send one OSC message to a running installation.

Arguments are sent as int32 when they parse as integers, float32 when they
parse as numbers, bool for true/false and string otherwise.`,
	Example: `  # Zoom halfway
  illuminate send /1/zoom 0.5

  # Switch to the second camera
  illuminate send /1/camera 1

  # Save settings on another machine
  illuminate send --host 192.168.1.20 /1/save`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSend,
}

var (
	sendHost string
	sendPort int
)

func init() {
	rootCmd.AddCommand(sendCmd)

	sendCmd.Flags().StringVar(&sendHost, "host", "127.0.0.1", "installation host")
	sendCmd.Flags().IntVarP(&sendPort, "port", "p", 0, "OSC port (default from config, 8000)")
}

func runSend(cmd *cobra.Command, args []string) error {
	port := sendPort
	if port == 0 {
		_, cfg, err := loadConfig()
		if err != nil {
			return err
		}
		port = cfg.OSC.Port
	}

	oscArgs := make([]interface{}, 0, len(args)-1)
	for _, a := range args[1:] {
		oscArgs = append(oscArgs, control.ParseArg(a))
	}

	if err := control.Send(sendHost, port, args[0], oscArgs...); err != nil {
		return err
	}

	msg := control.Message{Address: args[0], Args: oscArgs}
	fmt.Printf("Sent %s to %s:%d\n", msg, sendHost, port)
	return nil
}
