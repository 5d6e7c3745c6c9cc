package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"opendeckmcp/pkg/midiport"
)

var (
	cmdPorts = &cobra.Command{
		Use:   "ports",
		Short: "List MIDI ports",
		Long:  ``,
		RunE:  runPorts,
	}
)

// throughOnlyHint is printed when the OS only exposes the loopback port.
const throughOnlyHint = `only "MIDI Through" ports are visible: the board is not detected by the operating system.
Check the USB cable and that the board is powered.`

func init() {
	rootCmd.AddCommand(cmdPorts)
}

func runPorts(_ *cobra.Command, _ []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ins, outs, err := midiport.List(a.driver)
	if err != nil {
		return fmt.Errorf("listing ports: %w", err)
	}

	fmt.Println("Outputs:")
	for _, p := range outs {
		fmt.Printf("  %s%s\n", p, portTags(p))
	}
	fmt.Println("Inputs:")
	for _, p := range ins {
		fmt.Printf("  %s%s\n", p, portTags(p))
	}

	if len(ins)+len(outs) == 0 {
		fmt.Println("no MIDI ports found")
	} else if midiport.OnlyThrough(append(ins, outs...)) {
		fmt.Println(throughOnlyHint)
	}
	return nil
}

func portTags(p midiport.PortInfo) string {
	switch {
	case midiport.IsBootloader(p.Name):
		return "  [bootloader]"
	case midiport.IsThrough(p.Name):
		return "  [through]"
	}
	return ""
}
