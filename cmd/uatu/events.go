package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fractalops/uatu/internal/model"
)

// tailLines returns the last n non-empty lines of the file at path, or
// every line if the file holds fewer than n. A missing file yields an
// empty slice, not an error — there is simply nothing to tail yet.
func tailLines(path string, n int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		lines = append(lines, line)
		if len(lines) > n {
			lines = lines[1:]
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return lines, nil
}

func newEventsCmd() *cobra.Command {
	var last int

	eventsCmd := &cobra.Command{
		Use:   "events",
		Short: "Tail events.jsonl",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := dataDir()
			if err != nil {
				return err
			}
			lines, err := tailLines(dir+"/events.jsonl", last)
			if err != nil {
				return err
			}
			if len(lines) == 0 {
				fmt.Println("no events recorded yet")
				return nil
			}
			for _, line := range lines {
				var event model.AnomalyEvent
				if err := json.Unmarshal([]byte(line), &event); err != nil {
					fmt.Println(line)
					continue
				}
				fmt.Printf("%s [%s] %s: %s\n",
					event.Timestamp.Format("2006-01-02 15:04:05"),
					event.Severity.String(), event.Type.String(), event.Message)
			}
			return nil
		},
	}
	eventsCmd.Flags().IntVar(&last, "last", 20, "show the last N events")
	return eventsCmd
}
