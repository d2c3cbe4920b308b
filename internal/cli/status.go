package cli

import (
	"fmt"
	"os"

	"github.com/eralabs/clcl/internal/channel"
	"github.com/eralabs/clcl/internal/config"
)

// RunStatus displays the current configuration status with styled output.
func RunStatus(cfg *config.Config, regs []channel.Registration) {
	cfgPath := config.ConfigPath()

	fmt.Println()
	fmt.Println(TitleStyle.Render(fmt.Sprintf("  %s clcl Status", Logo)))
	fmt.Println()

	fmt.Printf("  %-12s %s  %s\n", "Config", StatusBadge(fileExists(cfgPath)), DimStyle.Render(cfgPath))

	inbox := cfg.InboxDir()
	fmt.Printf("  %-12s %s  %s\n", "Inbox", StatusBadge(fileExists(inbox)), DimStyle.Render(inbox))

	if cfg.Channels.Email.Address != "" {
		fmt.Printf("  %-12s %s\n", "Address", cfg.Channels.Email.Address)
	} else {
		fmt.Printf("  %-12s %s\n", "Address", DimStyle.Render("(not set)"))
	}
	fmt.Println()

	fmt.Println("  " + BoldStyle.Render("Channels"))
	for _, r := range regs {
		badge := StatusBadge(channelConfigured(cfg, r.Name))
		note := ""
		if !r.Available() {
			note = DimStyle.Render("  (not available on this platform)")
		}
		fmt.Printf("    %s  %s%s\n", badge, r.Name, note)
	}
	fmt.Println()
}

func channelConfigured(cfg *config.Config, name string) bool {
	switch name {
	case "email":
		return cfg.Channels.Email.Address != "" && cfg.Channels.Email.AppPassword != ""
	case "webchat":
		return cfg.Channels.Webchat.Token != ""
	case "native-message":
		return fileExists(cfg.NativeDBPath())
	default:
		return false
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
