// Command loadgen dispara uma rajada de requisições de alocação contra um
// flashsale em execução e confere que o número de aceitos não passa do estoque.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/sourcegraph/conc/pool"
)

type result struct {
	mu     sync.Mutex
	byCode map[int]int
	errors int
}

func (r *result) add(code int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.errors++
		return
	}
	r.byCode[code]++
}

type response struct {
	Code int `json:"code"`
}

func main() {
	var (
		baseURL     = flag.String("url", "http://localhost:8080", "flashsale base url")
		activityID  = flag.Int64("activity", 1, "activity id")
		users       = flag.Int("users", 1000, "distinct requesters")
		perUser     = flag.Int("per-user", 1, "requests per requester")
		concurrency = flag.Int("concurrency", 200, "requests in flight")
		expectStock = flag.Int("stock", -1, "fail if accepted exceeds this value (-1 skips the check)")
	)
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client := &http.Client{Timeout: 10 * time.Second}
	res := &result{byCode: make(map[int]int)}

	start := time.Now()
	p := pool.New().WithMaxGoroutines(*concurrency).WithContext(ctx)
	for u := 1; u <= *users; u++ {
		for i := 0; i < *perUser; i++ {
			userID := int64(u)
			p.Go(func(ctx context.Context) error {
				code, err := allocate(ctx, client, *baseURL, userID, *activityID)
				res.add(code, err)
				return nil
			})
		}
	}
	_ = p.Wait()
	elapsed := time.Since(start)

	accepted := res.byCode[200]
	logger.Info("burst finished",
		"requests", (*users)*(*perUser),
		"elapsed", elapsed.String(),
		"accepted", accepted,
		"soldOut", res.byCode[4001],
		"alreadyAllocated", res.byCode[4002],
		"notActive", res.byCode[4003],
		"throttled", res.byCode[4005],
		"unavailable", res.byCode[5003],
		"transportErrors", res.errors,
	)

	if *expectStock >= 0 && accepted > *expectStock {
		logger.Error("oversell detected", "accepted", accepted, "stock", *expectStock)
		os.Exit(1)
	}
}

func allocate(ctx context.Context, client *http.Client, baseURL string, userID, activityID int64) (int, error) {
	body := []byte(`{"user_id":` + strconv.FormatInt(userID, 10) + `,"activity_id":` + strconv.FormatInt(activityID, 10) + `}`)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/api/seckill/do", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Client-Id", "loadgen-"+strconv.FormatInt(userID, 10))

	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	var out response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("decode (status %d): %w", resp.StatusCode, err)
	}
	return out.Code, nil
}
