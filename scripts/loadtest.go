//go:build ignore
// +build ignore

// Journey engine load test. Drives the HTTP API with concurrent enrollments
// and stage advances, then triggers an analytics recompute and reports
// throughput and latency percentiles.
//
// Usage:
//
//	go run scripts/loadtest.go \
//	  --base-url=http://localhost:8080 \
//	  --org=11111111-1111-1111-1111-111111111111 \
//	  --enrollments=10000 \
//	  --workers=16
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

var (
	baseURL     = flag.String("base-url", "http://localhost:8080", "API base URL")
	org         = flag.String("org", "11111111-1111-1111-1111-111111111111", "organization id")
	enrollments = flag.Int("enrollments", 10000, "number of contacts to enroll")
	workers     = flag.Int("workers", 16, "concurrent workers")
	advanceRate = flag.Float64("advance-rate", 0.6, "fraction of enrollments advanced one stage")
)

type stage struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type journeyResp struct {
	ID     string  `json:"id"`
	Stages []stage `json:"stages"`
}

type contactJourneyResp struct {
	ID string `json:"id"`
}

type stats struct {
	mu        sync.Mutex
	latencies []time.Duration
	errors    int64
}

func (s *stats) record(d time.Duration) {
	s.mu.Lock()
	s.latencies = append(s.latencies, d)
	s.mu.Unlock()
}

func (s *stats) percentile(p float64) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.latencies) == 0 {
		return 0
	}
	sort.Slice(s.latencies, func(i, k int) bool { return s.latencies[i] < s.latencies[k] })
	idx := int(float64(len(s.latencies)-1) * p)
	return s.latencies[idx]
}

func main() {
	flag.Parse()
	client := &http.Client{Timeout: 30 * time.Second}

	j := setupJourney(client)
	log.Printf("created journey %s with %d stages", j.ID, len(j.Stages))

	var st stats
	ids := make(chan string, *enrollments)
	start := time.Now()

	var wg sync.WaitGroup
	work := make(chan int)
	for w := 0; w < *workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range work {
				t0 := time.Now()
				var cj contactJourneyResp
				err := call(client, http.MethodPost,
					fmt.Sprintf("%s/api/journeys/%s/enrollments", *baseURL, j.ID),
					map[string]string{"contact_id": uuid.New().String()}, &cj)
				st.record(time.Since(t0))
				if err != nil {
					atomic.AddInt64(&st.errors, 1)
					continue
				}
				ids <- cj.ID
			}
		}()
	}
	for i := 0; i < *enrollments; i++ {
		work <- i
	}
	close(work)
	wg.Wait()
	close(ids)
	enrollElapsed := time.Since(start)

	enrolled := make([]string, 0, *enrollments)
	for id := range ids {
		enrolled = append(enrolled, id)
	}
	log.Printf("enrolled %d contacts in %s (%.0f/s, %d errors)",
		len(enrolled), enrollElapsed.Round(time.Millisecond),
		float64(len(enrolled))/enrollElapsed.Seconds(), st.errors)
	log.Printf("enroll latency p50=%s p95=%s p99=%s",
		st.percentile(0.50), st.percentile(0.95), st.percentile(0.99))

	advanceContacts(client, j, enrolled)
	recompute(client, j)
}

func setupJourney(client *http.Client) journeyResp {
	var j journeyResp
	err := call(client, http.MethodPost, *baseURL+"/api/journeys", map[string]interface{}{
		"name": fmt.Sprintf("loadtest-%d", time.Now().Unix()),
		"stages": []map[string]interface{}{
			{"name": "Entry", "order": 0, "is_entry_point": true},
			{"name": "Engaged", "order": 1},
			{"name": "Done", "order": 2, "is_exit_point": true},
		},
	}, &j)
	if err != nil {
		log.Fatalf("create journey: %v", err)
	}
	for i := 0; i < len(j.Stages)-1; i++ {
		err := call(client, http.MethodPost,
			fmt.Sprintf("%s/api/journeys/%s/transitions", *baseURL, j.ID),
			map[string]string{
				"from_stage_id": j.Stages[i].ID,
				"to_stage_id":   j.Stages[i+1].ID,
				"trigger_type":  "event",
			}, nil)
		if err != nil {
			log.Fatalf("create transition: %v", err)
		}
	}
	return j
}

func advanceContacts(client *http.Client, j journeyResp, enrolled []string) {
	n := int(float64(len(enrolled)) * *advanceRate)
	var st stats
	start := time.Now()

	var wg sync.WaitGroup
	work := make(chan string)
	for w := 0; w < *workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range work {
				t0 := time.Now()
				err := call(client, http.MethodPost,
					fmt.Sprintf("%s/api/contact-journeys/%s/advance", *baseURL, id),
					map[string]string{"to_stage_id": j.Stages[1].ID, "trigger_source": "loadtest"}, nil)
				st.record(time.Since(t0))
				if err != nil {
					atomic.AddInt64(&st.errors, 1)
				}
			}
		}()
	}
	for _, id := range enrolled[:n] {
		work <- id
	}
	close(work)
	wg.Wait()

	elapsed := time.Since(start)
	log.Printf("advanced %d contacts in %s (%.0f/s, %d errors)",
		n, elapsed.Round(time.Millisecond), float64(n)/elapsed.Seconds(), st.errors)
	log.Printf("advance latency p50=%s p95=%s p99=%s",
		st.percentile(0.50), st.percentile(0.95), st.percentile(0.99))
}

func recompute(client *http.Client, j journeyResp) {
	t0 := time.Now()
	var snap map[string]interface{}
	err := call(client, http.MethodPost,
		fmt.Sprintf("%s/api/journeys/%s/analytics/recompute", *baseURL, j.ID), nil, &snap)
	if err != nil {
		log.Fatalf("recompute analytics: %v", err)
	}
	log.Printf("analytics recompute took %s (total_contacts=%v)",
		time.Since(t0).Round(time.Millisecond), snap["total_contacts"])
}

func call(client *http.Client, method, url string, body, dst interface{}) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Organization-ID", *org)

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: status %d", method, url, resp.StatusCode)
	}
	if dst != nil {
		return json.NewDecoder(resp.Body).Decode(dst)
	}
	return nil
}
