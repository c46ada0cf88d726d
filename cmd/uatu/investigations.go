package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// auditRecordView mirrors investigate.AuditRecord's on-disk JSON shape
// (see internal/investigate/audit.go's AuditRecord.MarshalJSON) for
// read-only display purposes; cmd/uatu has no need for the full
// investigate package just to tail this log.
type auditRecordView struct {
	Timestamp time.Time `json:"timestamp"`
	Event     struct {
		Type     string `json:"type"`
		Severity string `json:"severity"`
		Message  string `json:"message"`
	} `json:"event"`
	Investigation struct {
		ID         string `json:"id"`
		Analysis   string `json:"analysis"`
		Cached     bool   `json:"cached"`
		CacheCount int    `json:"cache_count"`
	} `json:"investigation"`
}

func newInvestigationsCmd() *cobra.Command {
	var last int
	var full bool

	investigationsCmd := &cobra.Command{
		Use:   "investigations",
		Short: "Tail investigations.jsonl",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := dataDir()
			if err != nil {
				return err
			}
			lines, err := tailLines(dir+"/investigations.jsonl", last)
			if err != nil {
				return err
			}
			if len(lines) == 0 {
				fmt.Println("no investigations recorded yet")
				return nil
			}
			for _, line := range lines {
				var rec auditRecordView
				if err := json.Unmarshal([]byte(line), &rec); err != nil {
					fmt.Println(line)
					continue
				}
				origin := "investigated"
				if rec.Investigation.Cached {
					origin = fmt.Sprintf("cached, seen %d times", rec.Investigation.CacheCount)
				}
				fmt.Printf("%s [%s] %s (%s)\n",
					rec.Timestamp.Format("2006-01-02 15:04:05"), rec.Event.Severity, rec.Event.Message, origin)
				if full {
					fmt.Printf("id: %s\n%s\n\n", rec.Investigation.ID, rec.Investigation.Analysis)
				}
			}
			return nil
		},
	}
	investigationsCmd.Flags().IntVar(&last, "last", 10, "show the last N investigations")
	investigationsCmd.Flags().BoolVar(&full, "full", false, "include the full analysis text")
	return investigationsCmd
}
