package cmd

import (
	"fmt"

	"github.com/audiolibrelab/miditake/internal/midiio"

	"github.com/spf13/cobra"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List available MIDI ports",
	Long: `List the MIDI input and output ports visible on this system. Use the
names with midi.input_port and midi.output_port in the config file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		defer midiio.Close()
		ports := midiio.ListPorts()

		fmt.Printf("MIDI inputs (%d):\n", len(ports.In))
		for i, name := range ports.In {
			fmt.Printf("  %d. %s\n", i+1, name)
		}
		fmt.Printf("\nMIDI outputs (%d):\n", len(ports.Out))
		for i, name := range ports.Out {
			fmt.Printf("  %d. %s\n", i+1, name)
		}
		return nil
	},
}
