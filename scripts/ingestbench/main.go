package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"
)

// CLI flags
var (
	apiURL = flag.String("api-url", "http://localhost:8080", "Stockroom API base URL")
	apiKey = flag.String("api-key", "", "API key for authenticated requests")
	brand  = flag.String("brand", "fixture", "Brand slug to ingest (a fixture brand keeps the benchmark off real retailers)")
	srcURL = flag.String("url", "https://fixture.example.com/catalog", "Catalog URL handed to the brand's adapter")
	runs   = flag.Int("runs", 3, "Number of runs per scenario for averaging")
	output = flag.String("output", "ingestbench-results.json", "JSON output file path")
)

// Scenarios: the dry path classifies without writing, the real path
// writes. Running each several times also measures the steady state,
// where an unchanged catalog is all skips.
var scenarios = []struct {
	Label  string
	DryRun bool
}{
	{"Dry run", true},
	{"Ingest", false},
}

// --- Request / Response types (mirrors models package) ---

type ingestRequest struct {
	URL       string `json:"url"`
	BrandSlug string `json:"brand_slug"`
	DryRun    bool   `json:"dry_run"`
	Wait      bool   `json:"wait"`
}

type ingestResponse struct {
	Success bool         `json:"success"`
	Run     *runSnapshot `json:"run,omitempty"`
	Error   *errorDetail `json:"error,omitempty"`
}

type runSnapshot struct {
	ID         string       `json:"id"`
	State      string       `json:"state"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt *time.Time   `json:"finished_at,omitempty"`
	Error      string       `json:"error,omitempty"`
	Report     reportCounts `json:"report"`
}

type reportCounts struct {
	Seen    int `json:"seen"`
	Created int `json:"created"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// --- Benchmark result types ---

type runResult struct {
	Run         int     `json:"run"`
	RequestMs   int64   `json:"request_ms"`
	RunMs       int64   `json:"run_ms"`
	Seen        int     `json:"seen"`
	Created     int     `json:"created"`
	Updated     int     `json:"updated"`
	Skipped     int     `json:"skipped"`
	Failed      int     `json:"failed"`
	ItemsPerSec float64 `json:"items_per_sec"`
	State       string  `json:"state"`
	Success     bool    `json:"success"`
	Error       string  `json:"error,omitempty"`
}

type scenarioAverages struct {
	RequestMs   float64 `json:"request_ms"`
	RunMs       float64 `json:"run_ms"`
	ItemsPerSec float64 `json:"items_per_sec"`
	Seen        float64 `json:"seen"`
}

type scenarioResult struct {
	Label    string            `json:"label"`
	DryRun   bool              `json:"dry_run"`
	Runs     []runResult       `json:"runs"`
	Averages *scenarioAverages `json:"averages,omitempty"`
}

type benchmarkReport struct {
	Timestamp       string           `json:"timestamp"`
	APIURL          string           `json:"api_url"`
	BrandSlug       string           `json:"brand_slug"`
	URL             string           `json:"url"`
	RunsPerScenario int              `json:"runs_per_scenario"`
	Results         []scenarioResult `json:"results"`
}

func main() {
	flag.Parse()

	fmt.Println("=== Stockroom Ingestion Benchmark ===")
	fmt.Printf("API URL:       %s\n", *apiURL)
	fmt.Printf("Brand:         %s\n", *brand)
	fmt.Printf("Catalog URL:   %s\n", *srcURL)
	fmt.Printf("Runs/scenario: %d\n", *runs)
	fmt.Printf("Output:        %s\n", *output)
	fmt.Println()

	// Quick connectivity check.
	if err := checkAPI(*apiURL); err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot reach API at %s: %v\n", *apiURL, err)
		fmt.Fprintf(os.Stderr, "Make sure Stockroom is running and the brand %q is registered\n", *brand)
		os.Exit(1)
	}

	report := benchmarkReport{
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
		APIURL:          *apiURL,
		BrandSlug:       *brand,
		URL:             *srcURL,
		RunsPerScenario: *runs,
	}

	for _, s := range scenarios {
		fmt.Printf("Benchmarking [%s] brand=%s ...\n", s.Label, *brand)
		sr := scenarioResult{Label: s.Label, DryRun: s.DryRun}

		for i := 1; i <= *runs; i++ {
			fmt.Printf("  Run %d/%d ... ", i, *runs)
			rr := benchmarkRun(s.DryRun, i)
			if rr.Success {
				fmt.Printf("OK  %dms  %d items  (c:%d u:%d s:%d f:%d)\n",
					rr.RequestMs, rr.Seen, rr.Created, rr.Updated, rr.Skipped, rr.Failed)
			} else {
				fmt.Printf("FAILED: %s\n", rr.Error)
			}
			sr.Runs = append(sr.Runs, rr)
		}

		sr.Averages = computeAverages(sr.Runs)
		report.Results = append(report.Results, sr)
		fmt.Println()
	}

	// Print summary table.
	printTable(report.Results)

	// Write JSON report.
	if err := writeJSON(*output, report); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing JSON output: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\nDetailed results written to %s\n", *output)
}

func checkAPI(baseURL string) error {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(baseURL + "/api/v1/health")
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func benchmarkRun(dryRun bool, run int) runResult {
	rr := runResult{Run: run}

	reqBody := ingestRequest{
		URL:       *srcURL,
		BrandSlug: *brand,
		DryRun:    dryRun,
		Wait:      true,
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		rr.Error = fmt.Sprintf("marshal error: %v", err)
		return rr
	}

	req, err := http.NewRequest("POST", *apiURL+"/api/v1/ingest", bytes.NewReader(bodyBytes))
	if err != nil {
		rr.Error = fmt.Sprintf("request error: %v", err)
		return rr
	}
	req.Header.Set("Content-Type", "application/json")
	if *apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+*apiKey)
	}

	client := &http.Client{Timeout: 10 * time.Minute}
	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		rr.Error = fmt.Sprintf("request failed: %v", err)
		return rr
	}
	defer resp.Body.Close()
	rr.RequestMs = time.Since(start).Milliseconds()

	var ir ingestResponse
	if err := json.NewDecoder(resp.Body).Decode(&ir); err != nil {
		rr.Error = fmt.Sprintf("decode error: %v", err)
		return rr
	}

	if ir.Error != nil {
		rr.Error = ir.Error.Message
		return rr
	}
	if ir.Run == nil {
		rr.Error = "response carries no run snapshot"
		return rr
	}

	snap := ir.Run
	rr.State = snap.State
	rr.Seen = snap.Report.Seen
	rr.Created = snap.Report.Created
	rr.Updated = snap.Report.Updated
	rr.Skipped = snap.Report.Skipped
	rr.Failed = snap.Report.Failed
	if snap.FinishedAt != nil {
		dur := snap.FinishedAt.Sub(snap.StartedAt)
		rr.RunMs = dur.Milliseconds()
		if dur > 0 {
			rr.ItemsPerSec = float64(rr.Seen) / dur.Seconds()
		}
	}
	rr.Success = ir.Success && snap.State == "completed"
	if !rr.Success && rr.Error == "" {
		rr.Error = snap.Error
	}

	return rr
}

func computeAverages(runs []runResult) *scenarioAverages {
	var successCount int
	var avg scenarioAverages

	for _, r := range runs {
		if !r.Success {
			continue
		}
		successCount++
		avg.RequestMs += float64(r.RequestMs)
		avg.RunMs += float64(r.RunMs)
		avg.ItemsPerSec += r.ItemsPerSec
		avg.Seen += float64(r.Seen)
	}

	if successCount == 0 {
		return nil
	}

	n := float64(successCount)
	avg.RequestMs /= n
	avg.RunMs /= n
	avg.ItemsPerSec /= n
	avg.Seen /= n
	return &avg
}

func printTable(results []scenarioResult) {
	fmt.Println(strings.Repeat("─", 72))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Scenario\tAvg Request\tAvg Run\tItems\tItems/s\tDecisions\n")
	fmt.Fprintf(w, "────────\t───────────\t───────\t─────\t───────\t─────────\n")

	for _, r := range results {
		if r.Averages == nil {
			fmt.Fprintf(w, "%s\tFAILED\t-\t-\t-\t-\n", r.Label)
			continue
		}

		fmt.Fprintf(w, "%s\t%dms\t%dms\t%.0f\t%.1f\t%s\n",
			r.Label,
			int64(r.Averages.RequestMs),
			int64(r.Averages.RunMs),
			r.Averages.Seen,
			r.Averages.ItemsPerSec,
			decisionMix(r.Runs),
		)
	}

	w.Flush()
	fmt.Println(strings.Repeat("─", 72))
}

// decisionMix summarizes the last successful run's decisions; later runs
// of an unchanged catalog show the steady state, which is the number
// that matters.
func decisionMix(runs []runResult) string {
	for i := len(runs) - 1; i >= 0; i-- {
		r := runs[i]
		if r.Success {
			return fmt.Sprintf("c:%d u:%d s:%d f:%d", r.Created, r.Updated, r.Skipped, r.Failed)
		}
	}
	return "-"
}

func writeJSON(path string, report benchmarkReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
