//go:build stress

package stress

import (
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"dfsgate/test/integration"
)

func newStressEnv(t *testing.T, files map[string][]byte) *integration.DownloadEnv {
	t.Helper()
	env := integration.NewDownloadEnv(t, integration.EnvOptions{BufferSize: 4096})
	for name, data := range files {
		env.Put(name, data)
	}
	return env
}

// fetch is safe to call from worker goroutines; it never touches t.
func fetch(client *http.Client, method, rawURL string, headers ...string) (*http.Response, []byte, error) {
	req, err := http.NewRequest(method, rawURL, nil)
	if err != nil {
		return nil, nil, err
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	res, err := client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("%s %s: %w", method, rawURL, err)
	}
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return res, nil, fmt.Errorf("read %s body: %w", rawURL, err)
	}
	return res, body, nil
}

func runWorkers(t *testing.T, workers int, seed int64, fn func(worker int, rng *rand.Rand) error) {
	t.Helper()
	start := make(chan struct{})
	errCh := make(chan error, workers)
	var wg sync.WaitGroup
	for worker := 0; worker < workers; worker++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed + int64(id)))
			<-start
			errCh <- fn(id, rng)
		}(worker)
	}
	close(start)
	wg.Wait()
	close(errCh)
	for err := range errCh {
		if err != nil {
			t.Fatal(err)
		}
	}
}

func parseStressWorkloadDuration(t *testing.T) time.Duration {
	t.Helper()
	raw := strings.TrimSpace(os.Getenv("STRESS_WORKLOAD_DURATION"))
	if raw == "" {
		return 0
	}
	duration, err := time.ParseDuration(raw)
	if err != nil {
		t.Fatalf("invalid STRESS_WORKLOAD_DURATION %q: %v", raw, err)
	}
	if duration <= 0 {
		t.Fatalf("invalid STRESS_WORKLOAD_DURATION %q: must be > 0", raw)
	}
	return duration
}
