// Benchmark tool for exercising AutoMatch against a CDE directory export.
//
// Usage:
//   go run cmd/benchmark/main.go -csv /path/to/cde_directory.csv -url http://localhost:8080
//
// This tool:
//  1. Reads a CDE directory CSV export (CDFI Fund allocatee format)
//  2. Loads each CDE into AutoMatch via POST /cdes
//  3. Creates synthetic deals across states and sectors
//  4. Runs POST /scan/deal for each and reports latency and match-rate stats
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// CDERecord is one row of the directory export.
type CDERecord struct {
	Name                 string  `json:"name"`
	ServiceAreaType      string  `json:"serviceAreaType,omitempty"`
	PredominantMarket    string  `json:"predominantMarket,omitempty"`
	PredominantFinancing string  `json:"predominantFinancing,omitempty"`
	InnovativeActivities string  `json:"innovativeActivities,omitempty"`
	NonMetroCommitment   float64 `json:"nonMetroCommitment,omitempty"`
	AmountRemaining      float64 `json:"amountRemaining"`
	Year                 int     `json:"year,omitempty"`
	Status               string  `json:"status"`
}

// DealRequest is the POST /deals body.
type DealRequest struct {
	Name              string `json:"name"`
	SponsorID         string `json:"sponsorId"`
	State             string `json:"state"`
	ProjectType       string `json:"projectType"`
	AllocationRequest int    `json:"allocationRequest"`
}

// ScanRequest is the POST /scan/deal body.
type ScanRequest struct {
	DealID string `json:"dealId"`
}

// ScanResponse is the subset of the scan response the benchmark reads.
type ScanResponse struct {
	Count     int `json:"count"`
	Evaluated int `json:"evaluated"`
	Matches   []struct {
		Score    int    `json:"score"`
		Strength string `json:"strength"`
	} `json:"matches"`
}

// Metrics tracks benchmark results.
type Metrics struct {
	ScansRun     int64
	TotalMatches int64
	TotalErrors  int64
	ZeroMatch    int64
}

var benchStates = []string{"IL", "TX", "GA", "OH", "CA", "NY", "MS", "WV", "NM", "AK"}

var benchProjects = []string{
	"community health clinic",
	"charter school facility",
	"grocery store development",
	"manufacturing expansion",
	"mixed use real estate development",
}

func main() {
	csvPath := flag.String("csv", "", "Path to CDE directory CSV export")
	baseURL := flag.String("url", "http://localhost:8080", "AutoMatch base URL")
	deals := flag.Int("deals", 50, "Number of synthetic deals to scan")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	limit := flag.Int("limit", 0, "Maximum CDEs to load (0 = all)")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: benchmark -csv /path/to/cde_directory.csv [-url http://localhost:8080]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("AutoMatch scan benchmark")
	fmt.Printf("  CSV File: %s\n", *csvPath)
	fmt.Printf("  URL:      %s\n", *baseURL)
	fmt.Printf("  Deals:    %d\n", *deals)
	fmt.Printf("  Workers:  %d\n", *workers)
	fmt.Println()

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: AutoMatch not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure AutoMatch is running:")
		fmt.Println("  go run cmd/automatch/main.go")
		os.Exit(1)
	}
	fmt.Println("AutoMatch is healthy")

	fmt.Printf("\nReading directory export from %s...\n", *csvPath)
	records, err := readDirectoryCSV(*csvPath, *limit)
	if err != nil {
		fmt.Printf("ERROR: failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Loaded %d directory records\n", len(records))

	client := &http.Client{Timeout: 30 * time.Second}

	loaded := loadCDEs(client, *baseURL, records, *workers)
	fmt.Printf("Imported %d CDEs\n", loaded)

	dealIDs := createDeals(client, *baseURL, *deals)
	fmt.Printf("Created %d synthetic deals\n", len(dealIDs))

	fmt.Printf("\nScanning with %d workers...\n", *workers)
	start := time.Now()
	metrics, latencies := runScans(client, *baseURL, dealIDs, *workers)
	printResults(metrics, latencies, time.Since(start))
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func readDirectoryCSV(path string, limit int) ([]CDERecord, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[strings.ToLower(strings.TrimSpace(col))] = i
	}

	field := func(record []string, name string) string {
		i, ok := colIndex[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	var records []CDERecord
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue // Skip malformed rows
		}

		name := field(record, "name")
		if name == "" {
			continue
		}

		amount, _ := strconv.ParseFloat(field(record, "amount_remaining"), 64)
		nonMetro, _ := strconv.ParseFloat(field(record, "non_metro_commitment"), 64)
		year, _ := strconv.Atoi(field(record, "year"))

		records = append(records, CDERecord{
			Name:                 name,
			ServiceAreaType:      field(record, "service_area_type"),
			PredominantMarket:    field(record, "predominant_market"),
			PredominantFinancing: field(record, "predominant_financing"),
			InnovativeActivities: field(record, "innovative_activities"),
			NonMetroCommitment:   nonMetro,
			AmountRemaining:      amount,
			Year:                 year,
			Status:               "active",
		})

		if limit > 0 && len(records) >= limit {
			break
		}
	}

	return records, nil
}

func loadCDEs(client *http.Client, baseURL string, records []CDERecord, numWorkers int) int64 {
	var loaded int64
	work := make(chan CDERecord, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for rec := range work {
				if err := postJSON(client, baseURL+"/cdes", rec, nil); err == nil {
					atomic.AddInt64(&loaded, 1)
				}
			}
		}()
	}

	for _, rec := range records {
		work <- rec
	}
	close(work)
	wg.Wait()

	return loaded
}

func createDeals(client *http.Client, baseURL string, count int) []string {
	var ids []string
	for i := 0; i < count; i++ {
		req := DealRequest{
			Name:              fmt.Sprintf("Benchmark Project %03d", i),
			SponsorID:         "benchmark-sponsor",
			State:             benchStates[i%len(benchStates)],
			ProjectType:       benchProjects[i%len(benchProjects)],
			AllocationRequest: 2_000_000 + (i%10)*1_500_000,
		}

		var created struct {
			ID string `json:"id"`
		}
		if err := postJSON(client, baseURL+"/deals", req, &created); err != nil {
			continue
		}
		if created.ID != "" {
			ids = append(ids, created.ID)
		}
	}
	return ids
}

func runScans(client *http.Client, baseURL string, dealIDs []string, numWorkers int) (*Metrics, []time.Duration) {
	metrics := &Metrics{}
	work := make(chan string, 100)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var latencies []time.Duration

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for dealID := range work {
				start := time.Now()

				var resp ScanResponse
				err := postJSON(client, baseURL+"/scan/deal", ScanRequest{DealID: dealID}, &resp)
				elapsed := time.Since(start)

				atomic.AddInt64(&metrics.ScansRun, 1)
				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					continue
				}

				atomic.AddInt64(&metrics.TotalMatches, int64(resp.Count))
				if resp.Count == 0 {
					atomic.AddInt64(&metrics.ZeroMatch, 1)
				}

				mu.Lock()
				latencies = append(latencies, elapsed)
				mu.Unlock()
			}
		}()
	}

	for _, id := range dealIDs {
		work <- id
	}
	close(work)
	wg.Wait()

	return metrics, latencies
}

func postJSON(client *http.Client, url string, body, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("status %d", resp.StatusCode)
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func printResults(m *Metrics, latencies []time.Duration, duration time.Duration) {
	fmt.Println("\nBENCHMARK RESULTS")
	fmt.Printf("  Scans run:      %d\n", m.ScansRun)
	fmt.Printf("  Errors:         %d\n", m.TotalErrors)
	fmt.Printf("  Total matches:  %d\n", m.TotalMatches)
	if m.ScansRun > 0 {
		fmt.Printf("  Avg matches:    %.1f per scan\n", float64(m.TotalMatches)/float64(m.ScansRun))
		fmt.Printf("  Zero-match:     %d scans (%.1f%%)\n", m.ZeroMatch, 100*float64(m.ZeroMatch)/float64(m.ScansRun))
	}

	fmt.Printf("\nPERFORMANCE\n")
	fmt.Printf("  Total duration: %v\n", duration.Round(time.Millisecond))
	if len(latencies) > 0 {
		sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
		var total time.Duration
		for _, l := range latencies {
			total += l
		}
		p := func(q float64) time.Duration {
			i := int(q * float64(len(latencies)-1))
			return latencies[i]
		}
		fmt.Printf("  Avg latency:    %v\n", (total / time.Duration(len(latencies))).Round(time.Microsecond))
		fmt.Printf("  p50:            %v\n", p(0.50).Round(time.Microsecond))
		fmt.Printf("  p95:            %v\n", p(0.95).Round(time.Microsecond))
		fmt.Printf("  p99:            %v\n", p(0.99).Round(time.Microsecond))
		fmt.Printf("  Throughput:     %.1f scans/sec\n", float64(len(latencies))/duration.Seconds())
	}
	fmt.Println()
}
