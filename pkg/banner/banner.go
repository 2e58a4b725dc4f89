package banner

import (
	"fmt"

	"msgsync/pkg/config"
)

const banner = `
███╗   ███╗███████╗ ██████╗ ███████╗██╗   ██╗███╗   ██╗ ██████╗
████╗ ████║██╔════╝██╔════╝ ██╔════╝╚██╗ ██╔╝████╗  ██║██╔════╝
██╔████╔██║███████╗██║  ███╗███████╗ ╚████╔╝ ██║╚██╗██║██║
██║╚██╔╝██║╚════██║██║   ██║╚════██║  ╚██╔╝  ██║ ╚████║██║
██║ ╚═╝ ██║███████║╚██████╔╝███████║   ██║   ██║  ╚████║╚██████╗
╚═╝     ╚═╝╚══════╝ ╚═════╝ ╚══════╝   ╚═╝   ╚═╝   ╚═══╝ ╚═════╝
`

// Print shows the startup summary: upstream API, debug listener and the
// effective polling cadence.
func Print(cfg *config.Config, sources, version string) {
	fmt.Print(banner)
	fmt.Println("== Config =====================================================")
	fmt.Printf("API base:   %s\n", cfg.Server.APIBase)
	fmt.Printf("Debug addr: %s\n", cfg.Server.DebugAddr)
	fmt.Printf("State dir:  %s\n", cfg.Auth.StatePath)
	fmt.Printf("Polling:    summary %s, thread %s, page %d\n",
		cfg.Poll.SummaryInterval.Duration(), cfg.Poll.ThreadInterval.Duration(), cfg.Poll.PageSize)
	fmt.Printf("Transport:  %s\n", cfg.Transport.Engine)
	if version != "" {
		fmt.Printf("Version:    %s\n", version)
	}
	if sources != "" {
		fmt.Printf("Config sources: %s\n", sources)
	}
	fmt.Println("\n== Endpoints ==================================================")
	fmt.Println("GET  /debug/conversations - conversation summaries, newest first")
	fmt.Println("GET  /debug/thread/<partner> - full thread for a partner")
	fmt.Println("GET  /debug/badge - total unread count")
	fmt.Println("POST /intents/select - {partner_id} switch active thread")
	fmt.Println("POST /intents/send - {partner_id, content, listing_id}")
	fmt.Println("POST /intents/retry - {partner_id, message_id}")
	fmt.Println("POST /intents/mark-read - {partner_id}")
	fmt.Println("\n== Examples ===================================================")
	fmt.Printf("curl 'http://%s/debug/conversations'\n", cfg.Server.DebugAddr)
	fmt.Printf("curl -X POST 'http://%s/intents/send' -d '{\"partner_id\":\"u2\",\"content\":\"hi\"}'\n", cfg.Server.DebugAddr)
}
