// Package entropy supplies the uniform draws behind clan selection. The
// production source must be unpredictable by clients — reroll outcomes are
// worth real tokens — so it pools true randomness from random.org and falls
// back to crypto/rand. A seeded source exists for simulation and tests.
package entropy

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"io"
	"log/slog"
	mrand "math/rand/v2"
	"net/http"
	"sync"
	"time"
)

// Source yields uniform random values in [0, 1).
type Source interface {
	Float() float64
}

// refillThreshold triggers a pool refill; refillCount is the batch size
// requested from random.org per refill.
const (
	refillThreshold = 10
	refillCount     = 100
)

// Client pools decimal fractions fetched from random.org. Safe for
// concurrent use. A nil Client degrades to crypto/rand.
type Client struct {
	apiKey string
	client *http.Client

	mu   sync.Mutex
	pool []float64
}

// NewClient creates a random.org-backed source. Returns nil if apiKey is
// empty; callers should then use Crypto().
func NewClient(apiKey string) *Client {
	if apiKey == "" {
		return nil
	}
	return &Client{
		apiKey: apiKey,
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

// Float returns a random float64 in [0, 1), refilling the pool from
// random.org when it runs low and falling back to crypto/rand on failure.
func (c *Client) Float() float64 {
	if c == nil {
		return cryptoFloat()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.pool) < refillThreshold {
		c.refill()
	}
	if len(c.pool) == 0 {
		return cryptoFloat()
	}

	val := c.pool[0]
	c.pool = c.pool[1:]
	return val
}

func (c *Client) refill() {
	req := map[string]any{
		"jsonrpc": "2.0",
		"method":  "generateDecimalFractions",
		"params": map[string]any{
			"apiKey":        c.apiKey,
			"n":             refillCount,
			"decimalPlaces": 9,
		},
		"id": 1,
	}

	body, err := json.Marshal(req)
	if err != nil {
		slog.Debug("random.org marshal failed", "error", err)
		return
	}

	resp, err := c.client.Post("https://api.random.org/json-rpc/4/invoke", "application/json", bytes.NewReader(body))
	if err != nil {
		slog.Debug("random.org fetch failed", "error", err)
		return
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		slog.Debug("random.org read failed", "error", err)
		return
	}

	var result struct {
		Result struct {
			Random struct {
				Data []float64 `json:"data"`
			} `json:"random"`
		} `json:"result"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}

	if err := json.Unmarshal(respBody, &result); err != nil {
		slog.Debug("random.org parse failed", "error", err)
		return
	}
	if result.Error != nil {
		slog.Debug("random.org API error", "error", result.Error.Message)
		return
	}

	c.pool = append(c.pool, result.Result.Random.Data...)
	slog.Debug("random.org pool refilled", "count", len(result.Result.Random.Data))
}

// cryptoSource draws from crypto/rand.
type cryptoSource struct{}

func (cryptoSource) Float() float64 {
	return cryptoFloat()
}

// Crypto returns a source backed by crypto/rand. Never fails in practice;
// on a broken system reader it returns 0.5.
func Crypto() Source {
	return cryptoSource{}
}

func cryptoFloat() float64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0.5
	}
	// 53 bits give a uniform float64 in [0, 1).
	n := binary.LittleEndian.Uint64(buf[:]) >> 11
	return float64(n) / float64(1<<53)
}

// seededSource is a deterministic PCG stream for simulation and tests.
// Never use it for live assignments — outcomes would be reproducible.
type seededSource struct {
	mu  sync.Mutex
	rng *mrand.Rand
}

// Seeded returns a deterministic source for the given seed.
func Seeded(seed uint64) Source {
	return &seededSource{rng: mrand.New(mrand.NewPCG(seed, 0))}
}

func (s *seededSource) Float() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64()
}
