// Command peakctl prints the all-time high and record history of a running
// peakwatch tracker.
//
// Usage:
//
//	peakctl [-url http://localhost:3000] [-timeout 5s] [-json]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/HatiCode/peakwatch/pkg/client"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("peakctl", flag.ContinueOnError)
	url := fs.String("url", getEnv("PEAKWATCH_URL", "http://localhost:3000"), "Tracker base URL")
	timeout := fs.Duration("timeout", 5*time.Second, "Request timeout")
	asJSON := fs.Bool("json", false, "Print the raw state as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	c := client.NewTrackerClientWithTimeout(*url, *timeout)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	res, err := c.GetState(ctx)
	if err != nil {
		return fmt.Errorf("get state: %w", err)
	}

	if *asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	fmt.Fprintf(out, "All-time high %s: %d\n", res.Metric, res.State.CurrentHigh)
	if len(res.State.History) == 0 {
		fmt.Fprintln(out, "No records yet.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "VALUE\tOBSERVED")
	for _, r := range res.State.History {
		fmt.Fprintf(w, "%d\t%s\n", r.Value, r.ObservedAt.UTC().Format(time.RFC3339))
	}
	return w.Flush()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
