// Benchmark tool for measuring Tradeproof against labelled presentations.
//
// Usage:
//
//	go run cmd/benchmark/main.go -csv /path/to/presentations.csv -url http://localhost:8080
//
// The CSV holds one presentation per row: LC terms next to the values on
// the commercial invoice, and a label saying whether an examiner refused it.
//
//	trade_id,lc_beneficiary,doc_beneficiary,lc_currency,doc_currency,lc_amount,doc_amount,refused
//
// This tool:
//  1. Reads the labelled presentations
//  2. Sends each one to POST /crosscheck
//  3. Compares DISCREPANCIES_FOUND with the examiner's label
//  4. Calculates precision, recall, F1-score, and confusion matrix
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
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Presentation is one labelled row.
type Presentation struct {
	TradeID        string
	LCBeneficiary  string
	DocBeneficiary string
	LCCurrency     string
	DocCurrency    string
	LCAmount       float64
	DocAmount      string
	Refused        bool
}

// CrossCheckRequest is the Tradeproof API request format.
type CrossCheckRequest struct {
	TradeID   string     `json:"tradeId"`
	LC        LCTerms    `json:"lc"`
	Documents []Document `json:"documents"`
}

type LCTerms struct {
	Reference       string  `json:"lcReference"`
	BeneficiaryName string  `json:"beneficiaryName"`
	Currency        string  `json:"currency"`
	TotalAmount     float64 `json:"totalAmount"`
}

type Document struct {
	Type   string            `json:"type"`
	Fields map[string]string `json:"fields"`
}

// CrossCheckResponse is the subset of the Tradeproof response used here.
type CrossCheckResponse struct {
	ReportID string `json:"reportId"`
	Verdict  string `json:"verdict"`
	Summary  struct {
		PassRate  int `json:"passRate"`
		Criticals int `json:"criticals"`
	} `json:"summary"`
}

// Metrics tracks benchmark results
type Metrics struct {
	TruePositives  int64 // Refused presentation flagged
	FalsePositives int64 // Clean presentation flagged
	TrueNegatives  int64 // Clean presentation passed
	FalseNegatives int64 // Refused presentation passed

	TotalProcessed int64
	TotalRefused   int64
	TotalClean     int64
	TotalErrors    int64

	ProcessingTimeMs int64
}

func main() {
	csvPath := flag.String("csv", "", "Path to labelled presentations CSV")
	baseURL := flag.String("url", "http://localhost:8080", "Tradeproof base URL")
	tenantID := flag.String("tenant", "benchmark-test", "Tenant ID for requests")
	limit := flag.Int("limit", 10000, "Maximum presentations to process (0 = all)")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	verbose := flag.Bool("verbose", false, "Print each presentation result")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: benchmark -csv /path/to/presentations.csv [-url http://localhost:8080]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("TRADEPROOF BENCHMARK - Documentary Discrepancy Detection")
	fmt.Printf("\nCSV File:        %s\n", *csvPath)
	fmt.Printf("Tradeproof URL:  %s\n", *baseURL)
	fmt.Printf("Tenant ID:       %s\n", *tenantID)
	fmt.Printf("Workers:         %d\n", *workers)
	fmt.Printf("Limit:           %d\n", *limit)
	fmt.Println()

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Tradeproof not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Tradeproof is running:")
		fmt.Println("  go run cmd/tradeproof/main.go")
		os.Exit(1)
	}
	fmt.Println("Tradeproof is healthy")

	fmt.Printf("\nReading presentations from %s...\n", *csvPath)
	presentations, err := readPresentations(*csvPath, *limit)
	if err != nil {
		fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	if len(presentations) == 0 {
		fmt.Println("ERROR: no presentations in CSV")
		os.Exit(1)
	}
	fmt.Printf("Loaded %d presentations\n", len(presentations))

	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runBenchmark(presentations, *baseURL, *tenantID, *workers, *verbose)
	duration := time.Since(startTime)

	printResults(metrics, duration)
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

func readPresentations(path string, limit int) ([]Presentation, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[strings.ToLower(strings.TrimSpace(col))] = i
	}
	for _, required := range []string{"trade_id", "lc_beneficiary", "doc_beneficiary", "lc_currency", "doc_currency", "lc_amount", "doc_amount", "refused"} {
		if _, ok := colIndex[required]; !ok {
			return nil, fmt.Errorf("missing column %q", required)
		}
	}

	var out []Presentation
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue // Skip malformed rows
		}

		amount, err := strconv.ParseFloat(record[colIndex["lc_amount"]], 64)
		if err != nil {
			continue
		}

		out = append(out, Presentation{
			TradeID:        record[colIndex["trade_id"]],
			LCBeneficiary:  record[colIndex["lc_beneficiary"]],
			DocBeneficiary: record[colIndex["doc_beneficiary"]],
			LCCurrency:     record[colIndex["lc_currency"]],
			DocCurrency:    record[colIndex["doc_currency"]],
			LCAmount:       amount,
			DocAmount:      record[colIndex["doc_amount"]],
			Refused:        record[colIndex["refused"]] == "1",
		})

		if limit > 0 && len(out) >= limit {
			break
		}
	}

	return out, nil
}

func runBenchmark(presentations []Presentation, baseURL, tenantID string, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{}

	work := make(chan Presentation, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for p := range work {
				start := time.Now()
				result, err := crossCheck(client, baseURL, tenantID, p)
				elapsed := time.Since(start).Milliseconds()

				atomic.AddInt64(&metrics.ProcessingTimeMs, elapsed)
				atomic.AddInt64(&metrics.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %s -> %v\n", p.TradeID, err)
					}
					continue
				}

				if p.Refused {
					atomic.AddInt64(&metrics.TotalRefused, 1)
				} else {
					atomic.AddInt64(&metrics.TotalClean, 1)
				}

				predicted := result.Verdict == "DISCREPANCIES_FOUND"
				actual := p.Refused

				switch {
				case predicted && actual:
					atomic.AddInt64(&metrics.TruePositives, 1)
				case predicted && !actual:
					atomic.AddInt64(&metrics.FalsePositives, 1)
				case !predicted && !actual:
					atomic.AddInt64(&metrics.TrueNegatives, 1)
				default:
					atomic.AddInt64(&metrics.FalseNegatives, 1)
				}

				if verbose {
					status := "ok "
					if predicted != actual {
						status = "MISS"
					}
					fmt.Printf("%s %-14s | %-30s | %s %-12s | refused: %-5v | %s (%d%%)\n",
						status,
						p.TradeID,
						p.DocBeneficiary,
						p.DocCurrency,
						p.DocAmount,
						p.Refused,
						result.Verdict,
						result.Summary.PassRate,
					)
				}
			}
		}()
	}

	for _, p := range presentations {
		work <- p
	}
	close(work)

	wg.Wait()

	return metrics
}

func crossCheck(client *http.Client, baseURL, tenantID string, p Presentation) (*CrossCheckResponse, error) {
	req := CrossCheckRequest{
		TradeID: p.TradeID,
		LC: LCTerms{
			Reference:       "LC-" + p.TradeID,
			BeneficiaryName: p.LCBeneficiary,
			Currency:        p.LCCurrency,
			TotalAmount:     p.LCAmount,
		},
		Documents: []Document{{
			Type: "commercial_invoice",
			Fields: map[string]string{
				"beneficiaryName": p.DocBeneficiary,
				"currency":        p.DocCurrency,
				"totalAmount":     p.DocAmount,
			},
		}},
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/crosscheck", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Tenant-ID", tenantID)

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result CrossCheckResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
}

func ratio(num, den int64) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\nBENCHMARK RESULTS")

	fmt.Printf("\nDATASET STATISTICS\n")
	fmt.Printf("   Total Processed:  %d\n", m.TotalProcessed)
	fmt.Printf("   Refused:          %d\n", m.TotalRefused)
	fmt.Printf("   Clean:            %d\n", m.TotalClean)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)

	fmt.Printf("\nCONFUSION MATRIX\n")
	fmt.Printf("                      Predicted\n")
	fmt.Printf("                  DISCREPANCY   PASS\n")
	fmt.Printf("   Actual REFUSED   %8d   %8d\n", m.TruePositives, m.FalseNegatives)
	fmt.Printf("   Actual CLEAN     %8d   %8d\n", m.FalsePositives, m.TrueNegatives)

	precision := ratio(m.TruePositives, m.TruePositives+m.FalsePositives)
	recall := ratio(m.TruePositives, m.TruePositives+m.FalseNegatives)
	f1 := 0.0
	if precision+recall > 0 {
		f1 = 2 * precision * recall / (precision + recall)
	}
	accuracy := ratio(m.TruePositives+m.TrueNegatives, m.TotalProcessed-m.TotalErrors)

	fmt.Printf("\nPERFORMANCE METRICS\n")
	fmt.Printf("   Precision:  %.4f\n", precision)
	fmt.Printf("   Recall:     %.4f\n", recall)
	fmt.Printf("   F1-Score:   %.4f\n", f1)
	fmt.Printf("   Accuracy:   %.4f\n", accuracy)

	fmt.Printf("\nTIMING\n")
	fmt.Printf("   Wall time:     %s\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		fmt.Printf("   Avg latency:   %.2f ms\n", ratio(m.ProcessingTimeMs, m.TotalProcessed))
		fmt.Printf("   Throughput:    %.1f req/s\n", float64(m.TotalProcessed)/duration.Seconds())
	}
	fmt.Println()
}
