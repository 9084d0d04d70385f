package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/bryanchriswhite/illuminate/internal/capture"
	"github.com/spf13/cobra"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List capture sources",
	Long: `List every selectable capture source with its index.

The index is what /1/camera and --select expect. Each physical device is
listed once per configured resolution.`,
	Example: `  # List sources in table format (default)
  illuminate devices

  # Only list sources that can actually be opened
  illuminate devices --probe

  # List sources in JSON format
  illuminate devices --format json`,
	RunE: runDevices,
}

var (
	devicesFormat string
	devicesProbe  bool
	devicesTest   bool
)

func init() {
	rootCmd.AddCommand(devicesCmd)

	devicesCmd.Flags().StringVarP(&devicesFormat, "format", "f", "table", "output format (table or json)")
	devicesCmd.Flags().BoolVar(&devicesProbe, "probe", false, "open each source and hide the ones that fail")
	devicesCmd.Flags().BoolVar(&devicesTest, "test-pattern", false, "include the built-in test pattern")
}

func runDevices(cmd *cobra.Command, args []string) error {
	_, cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if devicesProbe {
		cfg.Capture.Enumerate = string(capture.EnumerateProbe)
	}
	if devicesTest {
		cfg.Capture.TestPattern = true
	}

	catalog, _, err := newCatalog(cfg)
	if err != nil {
		return err
	}
	sources, err := catalog.Enumerate()
	if err != nil {
		return err
	}

	switch devicesFormat {
	case "json":
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(sources)
	case "table":
		return printDevicesTable(sources)
	default:
		return fmt.Errorf("unsupported format: %s (use 'table' or 'json')", devicesFormat)
	}
}

func printDevicesTable(sources []capture.Descriptor) error {
	if len(sources) == 0 {
		fmt.Println("No capture sources found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "INDEX\tNAME\tDEVICE\tRESOLUTION")
	fmt.Fprintln(w, "-----\t----\t------\t----------")
	for i, d := range sources {
		fmt.Fprintf(w, "%d\t%s\t%s\t%dx%d\n", i, d.Name, d.DeviceID, d.Width, d.Height)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Printf("\nTotal: %d sources\n", len(sources))
	return nil
}
