// Package main implements tenderctl, a small operator CLI for the
// tenderfeed service API.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/tkearney/tenderfeed/internal/tender"
)

func main() {
	addr := flag.String("addr", "http://localhost:8080", "Base URL of the tenderfeed service")
	apiKey := flag.String("api-key", "", "API key, when the service has auth enabled")
	refresh := flag.Bool("refresh", false, "Trigger a refresh cycle and print its stats")
	timeout := flag.Duration("timeout", 5*time.Minute, "Request timeout")
	flag.Parse()

	client := &http.Client{Timeout: *timeout}
	base := strings.TrimRight(*addr, "/")

	var err error
	if *refresh {
		err = runRefresh(client, base, *apiKey)
	} else {
		err = printLatest(client, base, *apiKey)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "tenderctl: %v\n", err)
		os.Exit(1)
	}
}

func runRefresh(client *http.Client, base, apiKey string) error {
	var stats tender.CycleStats
	if err := call(client, http.MethodPost, base+"/v1/refresh", apiKey, &stats); err != nil {
		return err
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Source", "Collected"})
	for source, count := range stats.PerSourceCounts {
		t.AppendRow(table.Row{source, count})
	}
	t.AppendFooter(table.Row{"final", stats.FinalCount})
	t.Render()

	if stats.UpdatedAt != nil {
		fmt.Printf("updated at %s (%dms)\n", stats.UpdatedAt.Format(time.RFC3339), stats.DurationMs)
	}
	return nil
}

func printLatest(client *http.Client, base, apiKey string) error {
	var snapshot tender.Snapshot
	if err := call(client, http.MethodGet, base+"/v1/tenders/latest", apiKey, &snapshot); err != nil {
		return err
	}

	if snapshot.UpdatedAt == nil {
		fmt.Println("no snapshot yet; a refresh has been triggered, retry shortly")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Title", "Organisation", "Sector", "Deadline", "Value"})
	for _, opp := range snapshot.Items {
		t.AppendRow(table.Row{
			truncate(opp.Title, 60),
			truncate(opp.Organisation, 40),
			string(opp.Sector),
			formatDeadline(opp.Deadline),
			formatValue(opp.ValueLow, opp.ValueHigh),
		})
	}
	t.Render()

	fmt.Printf("%d opportunities, updated at %s\n", len(snapshot.Items), snapshot.UpdatedAt.Format(time.RFC3339))
	return nil
}

func call(client *http.Client, method, url, apiKey string, out any) error {
	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, url, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s: %s", resp.Status, apiErr.Error)
		}
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func formatDeadline(d *time.Time) string {
	if d == nil {
		return "-"
	}
	return d.Format("2006-01-02")
}

func formatValue(low, high *float64) string {
	switch {
	case low == nil && high == nil:
		return "-"
	case low != nil && high != nil && *low != *high:
		return fmt.Sprintf("£%.0f - £%.0f", *low, *high)
	case low != nil:
		return fmt.Sprintf("£%.0f", *low)
	default:
		return fmt.Sprintf("£%.0f", *high)
	}
}

// truncate shortens on rune boundaries so multibyte titles render as
// valid UTF-8 in the table.
func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max-1]) + "…"
}
