package cli

import (
	"fmt"
	"strings"

	"github.com/eralabs/clcl/internal/channel"
)

// RunChannels lists the registered channels and their availability on this
// host.
func RunChannels(regs []channel.Registration) {
	fmt.Println()
	fmt.Println(TitleStyle.Render(fmt.Sprintf("  %s clcl Channels", Logo)))
	fmt.Println()

	for _, r := range regs {
		platforms := "all platforms"
		if len(r.Platforms) > 0 {
			platforms = strings.Join(r.Platforms, ", ")
		}
		fmt.Printf("    %s  %-16s %s\n",
			StatusBadge(r.Available()), r.Name, DimStyle.Render(platforms))
	}
	fmt.Println()
}
