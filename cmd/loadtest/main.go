package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type Config struct {
	BaseURL     string
	Concurrency int
	Duration    time.Duration
	Limit       int
	Categories  []string
	Queries     []string
}

type Stats struct {
	totalRequests atomic.Int64
	successCount  atomic.Int64
	errorCount    atomic.Int64
	zeroResults   atomic.Int64
	rateLimited   atomic.Int64
	latencies     []time.Duration
	latenciesMu   sync.Mutex
	statusCodes   map[int]int64
	statusCodesMu sync.Mutex
	generations   map[uint64]int64
}

func NewStats() *Stats {
	return &Stats{
		latencies:   make([]time.Duration, 0, 100000),
		statusCodes: make(map[int]int64),
		generations: make(map[uint64]int64),
	}
}

type searchResponse struct {
	TotalHits  int    `json:"total_hits"`
	Generation uint64 `json:"generation"`
}

func (s *Stats) Record(duration time.Duration, statusCode int, body *searchResponse, err error) {
	s.totalRequests.Add(1)
	if err != nil {
		s.errorCount.Add(1)
		return
	}

	switch {
	case statusCode == http.StatusTooManyRequests:
		s.rateLimited.Add(1)
		s.errorCount.Add(1)
	case statusCode >= 200 && statusCode < 300:
		s.successCount.Add(1)
	default:
		s.errorCount.Add(1)
	}

	s.latenciesMu.Lock()
	s.latencies = append(s.latencies, duration)
	s.latenciesMu.Unlock()

	s.statusCodesMu.Lock()
	s.statusCodes[statusCode]++
	if body != nil {
		s.generations[body.Generation]++
		if body.TotalHits == 0 {
			s.zeroResults.Add(1)
		}
	}
	s.statusCodesMu.Unlock()
}

var defaultQueries = []string{
	"eikonal",
	"brgc",
	"gray code",
	"binary reflected",
	"subtuples",
	"tuples",
	"bits",
	"module",
	"documentation",
	"reflect suffix",
	"significant bit",
	"NTuple",
	"Home",
	"nonexistent term",
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the search service")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	limit := flag.Int("limit", 10, "limit parameter sent with every query")
	categories := flag.String("categories", ",method,section", "comma-separated categories to rotate through; empty means unfiltered")
	queryFile := flag.String("queries", "", "file with one query per line (default: built-in doc terms)")
	flag.Parse()

	queries := defaultQueries
	if *queryFile != "" {
		var err error
		if queries, err = readQueries(*queryFile); err != nil {
			fmt.Fprintf(os.Stderr, "failed to read queries: %v\n", err)
			os.Exit(1)
		}
	}

	cfg := Config{
		BaseURL:     strings.TrimRight(*baseURL, "/"),
		Concurrency: *concurrency,
		Duration:    *duration,
		Limit:       *limit,
		Categories:  strings.Split(*categories, ","),
		Queries:     queries,
	}

	fmt.Println("=== Doc Search Load Test ===")
	fmt.Printf("Target:      %s\n", cfg.BaseURL)
	fmt.Printf("Concurrency: %d\n", cfg.Concurrency)
	fmt.Printf("Duration:    %s\n", cfg.Duration)
	fmt.Printf("Queries:     %d unique x %d category filters\n", len(cfg.Queries), len(cfg.Categories))
	fmt.Println()

	stats := runLoadTest(cfg)
	if !printReport(stats, cfg.Duration) {
		os.Exit(1)
	}
}

func readQueries(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if q := strings.TrimSpace(sc.Text()); q != "" && !strings.HasPrefix(q, "#") {
			out = append(out, q)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s contains no queries", path)
	}
	return out, nil
}

// searchURL builds the i-th request, rotating through queries and category
// filters independently so every pair is eventually exercised.
func (c Config) searchURL(i int) string {
	v := url.Values{}
	v.Set("q", c.Queries[i%len(c.Queries)])
	v.Set("limit", fmt.Sprint(c.Limit))
	if cat := strings.TrimSpace(c.Categories[(i/len(c.Queries))%len(c.Categories)]); cat != "" {
		v.Set("category", cat)
	}
	return c.BaseURL + "/api/v1/search?" + v.Encode()
}

func runLoadTest(cfg Config) *Stats {
	stats := NewStats()
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.Concurrency * 2,
			MaxIdleConnsPerHost: cfg.Concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	var wg sync.WaitGroup
	fmt.Print("Running")

	for w := 0; w < cfg.Concurrency; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for i := workerID; ctx.Err() == nil; i += cfg.Concurrency {
				req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.searchURL(i), nil)
				if err != nil {
					stats.Record(0, 0, nil, err)
					return
				}

				start := time.Now()
				resp, err := client.Do(req)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					stats.Record(time.Since(start), 0, nil, err)
					continue
				}
				var body *searchResponse
				if resp.StatusCode == http.StatusOK {
					body = &searchResponse{}
					if json.NewDecoder(resp.Body).Decode(body) != nil {
						body = nil
					}
				}
				resp.Body.Close()
				stats.Record(time.Since(start), resp.StatusCode, body, nil)
			}
		}(w)
	}

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fmt.Print(".")
			}
		}
	}()

	wg.Wait()
	fmt.Println(" done!")
	fmt.Println()
	return stats
}

// printReport writes the summary and reports whether any request completed.
func printReport(stats *Stats, duration time.Duration) bool {
	total := stats.totalRequests.Load()
	success := stats.successCount.Load()
	failed := stats.errorCount.Load()

	fmt.Println("=== Results ===")
	fmt.Printf("Total Requests:  %d\n", total)
	fmt.Printf("Successful:      %d\n", success)
	fmt.Printf("Errors:          %d\n", failed)
	fmt.Printf("Rate Limited:    %d\n", stats.rateLimited.Load())
	if total > 0 {
		fmt.Printf("Error Rate:      %.2f%%\n", float64(failed)/float64(total)*100)
		fmt.Printf("Requests/sec:    %.2f\n", float64(total)/duration.Seconds())
	}
	if success > 0 {
		fmt.Printf("Zero Results:    %.2f%%\n", float64(stats.zeroResults.Load())/float64(success)*100)
	}

	stats.latenciesMu.Lock()
	latencies := make([]time.Duration, len(stats.latencies))
	copy(latencies, stats.latencies)
	stats.latenciesMu.Unlock()

	if len(latencies) > 0 {
		sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

		var sum time.Duration
		for _, l := range latencies {
			sum += l
		}
		avg := sum / time.Duration(len(latencies))

		var sumSquared float64
		for _, l := range latencies {
			diff := float64(l - avg)
			sumSquared += diff * diff
		}

		fmt.Println()
		fmt.Println("=== Latency ===")
		fmt.Printf("Min:    %s\n", latencies[0])
		fmt.Printf("Avg:    %s\n", avg)
		for _, p := range []float64{50, 90, 95, 99} {
			fmt.Printf("P%-5.0f %s\n", p, percentile(latencies, p))
		}
		fmt.Printf("Max:    %s\n", latencies[len(latencies)-1])
		fmt.Printf("StdDev: %s\n", time.Duration(math.Sqrt(sumSquared/float64(len(latencies)))))
	}

	stats.statusCodesMu.Lock()
	defer stats.statusCodesMu.Unlock()

	fmt.Println()
	fmt.Println("=== Status Codes ===")
	codes := make([]int, 0, len(stats.statusCodes))
	for code := range stats.statusCodes {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		fmt.Printf("  %d: %d\n", code, stats.statusCodes[code])
	}

	if len(stats.generations) > 1 {
		fmt.Println()
		fmt.Println("=== Index Generations Seen ===")
		gens := make([]uint64, 0, len(stats.generations))
		for g := range stats.generations {
			gens = append(gens, g)
		}
		sort.Slice(gens, func(i, j int) bool { return gens[i] < gens[j] })
		for _, g := range gens {
			fmt.Printf("  %d: %d\n", g, stats.generations[g])
		}
	}

	if total == 0 {
		fmt.Println()
		fmt.Println("WARNING: No requests completed. Is the service running?")
		return false
	}
	return true
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	idx = max(0, min(idx, len(sorted)-1))
	return sorted[idx]
}
