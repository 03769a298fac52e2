package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/cobra"
)

type loadConfig struct {
	baseURL     string
	concurrency int
	duration    time.Duration
	queries     []string
	limit       int
}

type loadStats struct {
	total   atomic.Int64
	success atomic.Int64
	failed  atomic.Int64

	mu        sync.Mutex
	latencies []time.Duration
	codes     map[int]int64
}

func newLoadStats() *loadStats {
	return &loadStats{
		latencies: make([]time.Duration, 0, 100000),
		codes:     make(map[int]int64),
	}
}

func (s *loadStats) record(d time.Duration, status int, err error) {
	s.total.Add(1)
	if err != nil {
		s.failed.Add(1)
		return
	}
	if status >= 200 && status < 300 {
		s.success.Add(1)
	} else {
		s.failed.Add(1)
	}
	s.mu.Lock()
	s.latencies = append(s.latencies, d)
	s.codes[status]++
	s.mu.Unlock()
}

func newLoadtestCmd() *cobra.Command {
	var c loadConfig
	cmd := &cobra.Command{
		Use:   "loadtest",
		Short: "Drive concurrent lookups against a running serve instance",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if len(c.queries) == 0 {
				c.queries = []string{"func", "return", "import", "package main", "error OR err", "TODO NOT test"}
			}
			if c.concurrency < 1 {
				return fmt.Errorf("concurrency must be at least 1, got %d", c.concurrency)
			}
			stats := runLoad(cmd.Context(), c)
			return printLoadReport(cmd.OutOrStdout(), c, stats)
		},
	}
	cmd.Flags().StringVar(&c.baseURL, "url", "http://localhost:8080", "base URL of the lookup API")
	cmd.Flags().IntVar(&c.concurrency, "concurrency", 10, "number of concurrent clients")
	cmd.Flags().DurationVar(&c.duration, "duration", 30*time.Second, "test duration")
	cmd.Flags().StringArrayVar(&c.queries, "query", nil, "lookup query to cycle through (repeatable)")
	cmd.Flags().IntVar(&c.limit, "limit", 10, "limit parameter sent with each lookup")
	return cmd
}

func runLoad(ctx context.Context, c loadConfig) *loadStats {
	stats := newLoadStats()
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        c.concurrency * 2,
			MaxIdleConnsPerHost: c.concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	ctx, cancel := context.WithTimeout(ctx, c.duration)
	defer cancel()

	p := pool.New().WithMaxGoroutines(c.concurrency).WithContext(ctx)
	for w := 0; w < c.concurrency; w++ {
		p.Go(func(ctx context.Context) error {
			for i := w; ctx.Err() == nil; i++ {
				query := c.queries[i%len(c.queries)]
				target := fmt.Sprintf("%s/api/v1/lookup?q=%s&limit=%d", c.baseURL, url.QueryEscape(query), c.limit)
				req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
				if err != nil {
					return err
				}
				start := time.Now()
				resp, err := client.Do(req)
				elapsed := time.Since(start)
				if err != nil {
					if ctx.Err() != nil {
						return nil
					}
					stats.record(elapsed, 0, err)
					continue
				}
				_, _ = io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
				stats.record(elapsed, resp.StatusCode, nil)
			}
			return nil
		})
	}
	_ = p.Wait()
	return stats
}

var errNoRequests = errors.New("no requests completed; is the service running?")

func printLoadReport(out io.Writer, c loadConfig, s *loadStats) error {
	total := s.total.Load()
	fmt.Fprintf(out, "target:       %s\n", c.baseURL)
	fmt.Fprintf(out, "concurrency:  %d\n", c.concurrency)
	fmt.Fprintf(out, "requests:     %s (%s ok, %s failed)\n",
		humanize.Comma(total), humanize.Comma(s.success.Load()), humanize.Comma(s.failed.Load()))
	if total == 0 {
		return errNoRequests
	}
	fmt.Fprintf(out, "rate:         %s req/s\n", humanize.FormatFloat("#,###.##", float64(total)/c.duration.Seconds()))

	s.mu.Lock()
	latencies := append([]time.Duration(nil), s.latencies...)
	codes := make([]int, 0, len(s.codes))
	for code := range s.codes {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		fmt.Fprintf(out, "status %d:   %s\n", code, humanize.Comma(s.codes[code]))
	}
	s.mu.Unlock()

	if len(latencies) == 0 {
		return nil
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	avg := sum / time.Duration(len(latencies))
	var sq float64
	for _, l := range latencies {
		d := float64(l - avg)
		sq += d * d
	}
	fmt.Fprintf(out, "latency:      min %s  avg %s  p50 %s  p90 %s  p99 %s  max %s  stddev %s\n",
		latencies[0], avg,
		percentile(latencies, 50), percentile(latencies, 90), percentile(latencies, 99),
		latencies[len(latencies)-1],
		time.Duration(math.Sqrt(sq/float64(len(latencies)))),
	)
	return nil
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
