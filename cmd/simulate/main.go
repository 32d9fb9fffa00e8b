// Simulate drives synthetic traffic through a running Kavach server.
//
// Usage:
//
//	go run ./cmd/simulate -url http://localhost:8080 -users 50 -count 2000
//
// This tool:
//  1. Generates habitual and suspicious transactions for a set of users
//  2. Posts each transaction to POST /transactions concurrently
//  3. Compares alerts against the injected labels
//  4. Prints the risk level distribution, anomaly rate and latency
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Assessment is the subset of the POST /transactions response we read.
type Assessment struct {
	TransactionID string `json:"transactionId"`
	Report        struct {
		Analysis struct {
			RiskScore int    `json:"riskScore"`
			RiskLevel string `json:"riskLevel"`
		} `json:"analysis"`
	} `json:"report"`
	Anomaly struct {
		IsAnomalous bool `json:"isAnomalous"`
	} `json:"anomaly"`
	Alert bool `json:"alert"`
}

// Metrics tracks simulation results.
type Metrics struct {
	TruePositives  int64 // suspicious and alerted
	FalsePositives int64 // habitual but alerted
	TrueNegatives  int64
	FalseNegatives int64 // suspicious but missed

	Low, Medium, High int64
	Anomalous         int64

	TotalProcessed   int64
	TotalErrors      int64
	ProcessingTimeMs int64
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "Kavach base URL")
	users := flag.Int("users", 50, "Number of simulated users")
	count := flag.Int("count", 2000, "Number of transactions to send")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	rate := flag.Float64("suspicious", 0.1, "Share of suspicious transactions (0.0-1.0)")
	seed := flag.Uint64("seed", 42, "Generator seed")
	secret := flag.String("jwt-secret", os.Getenv("KAVACH_JWT_SECRET"), "Sign per-user tokens when the server requires auth")
	verbose := flag.Bool("verbose", false, "Print each transaction result")
	flag.Parse()

	if *users <= 0 || *count <= 0 || *workers <= 0 {
		fmt.Println("users, count and workers must be positive")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("+---------------------------------------------------------------+")
	fmt.Println("|               KAVACH SIMULATION - Synthetic Traffic           |")
	fmt.Println("+---------------------------------------------------------------+")
	fmt.Printf("\nKavach URL:  %s\n", *baseURL)
	fmt.Printf("Users:       %d\n", *users)
	fmt.Printf("Count:       %d\n", *count)
	fmt.Printf("Workers:     %d\n", *workers)
	fmt.Printf("Suspicious:  %.2f\n", *rate)
	fmt.Println()

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Kavach not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Kavach is running:")
		fmt.Println("  go run ./cmd/kavach")
		os.Exit(1)
	}
	fmt.Println("Kavach is healthy")

	gen := NewGenerator(*seed, *users, *rate, time.Now().Add(-time.Duration(*count)*7*time.Second))
	samples := gen.Generate(*count)

	var tokens map[string]string
	if *secret != "" {
		var err error
		if tokens, err = signTokens(*secret, gen.Users()); err != nil {
			fmt.Printf("ERROR: failed to sign tokens: %v\n", err)
			os.Exit(1)
		}
	}

	fmt.Printf("\nRunning simulation with %d workers...\n", *workers)
	startTime := time.Now()
	m := run(samples, *baseURL, tokens, *workers, *verbose)
	printResults(m, time.Since(startTime))
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

func signTokens(secret string, users []string) (map[string]string, error) {
	tokens := make(map[string]string, len(users))
	for _, u := range users {
		claims := jwt.RegisteredClaims{
			Subject:   u,
			Issuer:    "kavach-simulate",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}
		signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
		if err != nil {
			return nil, err
		}
		tokens[u] = signed
	}
	return tokens, nil
}

// run sends samples in per-user order: a user's transactions stay on one
// worker so profiles build up in sequence.
func run(samples []Sample, baseURL string, tokens map[string]string, numWorkers int, verbose bool) *Metrics {
	m := &Metrics{}

	queues := make([]chan Sample, numWorkers)
	for i := range queues {
		queues[i] = make(chan Sample, 100)
	}

	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func(work <-chan Sample) {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for s := range work {
				start := time.Now()
				result, err := submit(client, baseURL, tokens[s.Tx.UserID], s.Tx)
				atomic.AddInt64(&m.ProcessingTimeMs, time.Since(start).Milliseconds())
				atomic.AddInt64(&m.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&m.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %s -> %v\n", s.Tx.UserID, err)
					}
					continue
				}
				m.record(s, result)

				if verbose {
					fmt.Printf("%-14s | %-24.24s | Rs %10.2f | %-8s | suspicious: %-5v | %-6s (%3d) | anomalous: %v\n",
						s.Tx.UserID,
						s.Tx.Merchant,
						s.Tx.Amount,
						s.Tx.Time,
						s.Suspicious,
						result.Report.Analysis.RiskLevel,
						result.Report.Analysis.RiskScore,
						result.Anomaly.IsAnomalous,
					)
				}
			}
		}(queues[i])
	}

	index := make(map[string]int)
	for _, s := range samples {
		q, ok := index[s.Tx.UserID]
		if !ok {
			q = len(index) % numWorkers
			index[s.Tx.UserID] = q
		}
		queues[q] <- s
	}
	for _, q := range queues {
		close(q)
	}

	wg.Wait()
	return m
}

func (m *Metrics) record(s Sample, a *Assessment) {
	switch a.Report.Analysis.RiskLevel {
	case "High":
		atomic.AddInt64(&m.High, 1)
	case "Medium":
		atomic.AddInt64(&m.Medium, 1)
	default:
		atomic.AddInt64(&m.Low, 1)
	}
	if a.Anomaly.IsAnomalous {
		atomic.AddInt64(&m.Anomalous, 1)
	}

	switch {
	case a.Alert && s.Suspicious:
		atomic.AddInt64(&m.TruePositives, 1)
	case a.Alert && !s.Suspicious:
		atomic.AddInt64(&m.FalsePositives, 1)
	case !a.Alert && !s.Suspicious:
		atomic.AddInt64(&m.TrueNegatives, 1)
	default:
		atomic.AddInt64(&m.FalseNegatives, 1)
	}
}

func submit(client *http.Client, baseURL, token string, tx Transaction) (*Assessment, error) {
	body, err := json.Marshal(tx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodPost, baseURL+"/transactions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result Assessment
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\n+---------------------------------------------------------------+")
	fmt.Println("|                      SIMULATION RESULTS                       |")
	fmt.Println("+---------------------------------------------------------------+")

	scored := m.TotalProcessed - m.TotalErrors
	pct := func(n int64) float64 {
		if scored == 0 {
			return 0
		}
		return float64(n) / float64(scored) * 100
	}

	fmt.Printf("\nTRAFFIC\n")
	fmt.Printf("   Total Processed:  %d\n", m.TotalProcessed)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)

	fmt.Printf("\nRISK LEVELS\n")
	fmt.Printf("   Low:     %6d (%.2f%%)\n", m.Low, pct(m.Low))
	fmt.Printf("   Medium:  %6d (%.2f%%)\n", m.Medium, pct(m.Medium))
	fmt.Printf("   High:    %6d (%.2f%%)\n", m.High, pct(m.High))
	fmt.Printf("   Anomalous: %d (%.2f%%)\n", m.Anomalous, pct(m.Anomalous))

	fmt.Printf("\nALERTS VS INJECTED LABELS\n")
	fmt.Println("                        Alerted")
	fmt.Println("                    yes         no")
	fmt.Printf("   Suspicious   %8d    %8d   (TP, FN)\n", m.TruePositives, m.FalseNegatives)
	fmt.Printf("   Habitual     %8d    %8d   (FP, TN)\n", m.FalsePositives, m.TrueNegatives)

	precision := float64(0)
	if m.TruePositives+m.FalsePositives > 0 {
		precision = float64(m.TruePositives) / float64(m.TruePositives+m.FalsePositives)
	}
	recall := float64(0)
	if m.TruePositives+m.FalseNegatives > 0 {
		recall = float64(m.TruePositives) / float64(m.TruePositives+m.FalseNegatives)
	}
	fmt.Printf("   Precision:  %.4f\n", precision)
	fmt.Printf("   Recall:     %.4f\n", recall)

	fmt.Printf("\nPERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		avgMs := float64(m.ProcessingTimeMs) / float64(m.TotalProcessed)
		tps := float64(m.TotalProcessed) / duration.Seconds()
		fmt.Printf("   Avg Latency:      %.2f ms\n", avgMs)
		fmt.Printf("   Throughput:       %.2f tx/sec\n", tps)
	}
	fmt.Println()
}
