package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	minTrades  = 15
	maxTrades  = 150
	numWorkers = 5
	maxRetries = 5
)

var (
	symbols    = []string{"AAPL", "GOOGL", "MSFT", "AMZN", "META", "SPY", "QQQ"}
	sides      = []string{"BUY", "SELL", "SHORT", "COVER"}
	optionKind = []string{"CALL", "PUT", "EQUITY"}
	strategies = []string{"breakout", "pullback", "momentum", "earnings", "scalp"}
	sentiments = []string{"bullish", "bearish", "neutral"}
)

// init configures the logger for the simulation with pretty printing and timestamp
func init() {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// routeStats tracks performance statistics for an API endpoint
type routeStats struct {
	mu         sync.Mutex
	name       string
	durations  []time.Duration
	totalCalls int
	failures   int
}

// addDuration records a new duration measurement for the route
func (rs *routeStats) addDuration(d time.Duration, failed bool) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.durations = append(rs.durations, d)
	rs.totalCalls++
	if failed {
		rs.failures++
	}
}

// calculate computes performance statistics from recorded durations
// Returns min, max, mean, median, 95th percentile, and 99th percentile durations
func (rs *routeStats) calculate() (min, max, mean, median, p95, p99 time.Duration) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if len(rs.durations) == 0 {
		return 0, 0, 0, 0, 0, 0
	}

	sort.Slice(rs.durations, func(i, j int) bool {
		return rs.durations[i] < rs.durations[j]
	})

	min = rs.durations[0]
	max = rs.durations[len(rs.durations)-1]

	var sum time.Duration
	for _, d := range rs.durations {
		sum += d
	}
	mean = sum / time.Duration(len(rs.durations))
	median = rs.durations[len(rs.durations)/2]

	p95idx := int(math.Ceil(float64(len(rs.durations))*0.95)) - 1
	p99idx := int(math.Ceil(float64(len(rs.durations))*0.99)) - 1
	p95 = rs.durations[p95idx]
	p99 = rs.durations[p99idx]

	return
}

// apiResponse mirrors the server's JSON envelope
type apiResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// simulationClient handles HTTP communication with the journal API
type simulationClient struct {
	baseURL string
	client  *http.Client
	stats   map[string]*routeStats
}

func newSimulationClient(baseURL string) *simulationClient {
	return &simulationClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
		stats: map[string]*routeStats{
			"register": {name: "Register"},
			"token":    {name: "Token"},
			"create":   {name: "Create Trade"},
			"list":     {name: "List Trades"},
			"update":   {name: "Update Trade"},
			"delete":   {name: "Delete Trade"},
		},
	}
}

// call sends one request and decodes the envelope. 429 responses are retried
// with a growing pause.
func (sc *simulationClient) call(route, method, path, token string, payload any) (*apiResponse, error) {
	var body []byte
	if payload != nil {
		var err error
		if body, err = json.Marshal(payload); err != nil {
			return nil, err
		}
	}

	for attempt := 0; ; attempt++ {
		req, err := http.NewRequest(method, sc.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}

		start := time.Now()
		resp, err := sc.client.Do(req)
		if err != nil {
			sc.stats[route].addDuration(time.Since(start), true)
			return nil, err
		}
		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		elapsed := time.Since(start)
		if err != nil {
			sc.stats[route].addDuration(elapsed, true)
			return nil, fmt.Errorf("failed to read response body: %w", err)
		}

		if resp.StatusCode == http.StatusTooManyRequests && attempt < maxRetries {
			time.Sleep(time.Duration(attempt+1) * 2 * time.Second)
			continue
		}

		failed := resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated
		sc.stats[route].addDuration(elapsed, failed)
		log.Debug().Str("route", route).Int("status", resp.StatusCode).Str("response", string(respBody)).Msg("API response")

		if failed {
			return nil, fmt.Errorf("%s failed with status %d: %s", route, resp.StatusCode, string(respBody))
		}

		var result apiResponse
		if err := json.Unmarshal(respBody, &result); err != nil {
			return nil, fmt.Errorf("failed to decode response: %w, body: %s", err, string(respBody))
		}
		return &result, nil
	}
}

// signUp registers a fresh user and returns a bearer token for it
func (sc *simulationClient) signUp(username string) (string, error) {
	password := "Sim" + uuid.New().String()[:8] + "1"
	_, err := sc.call("register", http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"username":         username,
		"email":            username + "@example.com",
		"password":         password,
		"confirm_password": password,
	})
	if err != nil {
		return "", err
	}

	res, err := sc.call("token", http.MethodPost, "/api/v1/auth/token", "", map[string]string{
		"username": username,
		"password": password,
	})
	if err != nil {
		return "", err
	}

	var token struct {
		Token string `json:"jwt_token"`
	}
	if err := json.Unmarshal(res.Data, &token); err != nil {
		return "", err
	}
	return token.Token, nil
}

func randomTrade() map[string]any {
	kind := optionKind[rand.Intn(len(optionKind))]
	trade := map[string]any{
		"underlying":     symbols[rand.Intn(len(symbols))],
		"option_type":    kind,
		"side":           sides[rand.Intn(len(sides))],
		"qty":            rand.Intn(20) + 1,
		"price":          fmt.Sprintf("%.2f", rand.Float64()*20),
		"fees":           "0.65",
		"status":         "OPEN",
		"open_ts":        time.Now().UTC().Format(time.RFC3339),
		"strategy_tags":  []string{strategies[rand.Intn(len(strategies))]},
		"sentiment_tags": []string{sentiments[rand.Intn(len(sentiments))]},
	}
	if kind != "EQUITY" {
		trade["strike"] = fmt.Sprintf("%d", (rand.Intn(60)+10)*5)
		trade["expiry"] = time.Now().AddDate(0, 0, 7*(rand.Intn(8)+1)).Format("2006-01-02")
	}
	return trade
}

type workerResult struct {
	created, updated, deleted, listed int
	symbols                           map[string]int
}

// runWorker plays one journal user: record trades, close some, delete a few
// and list the rest
func runWorker(workerID, numTrades int, sc *simulationClient) workerResult {
	res := workerResult{symbols: make(map[string]int)}
	logger := log.With().Int("worker", workerID).Logger()

	username := fmt.Sprintf("sim_%s_%d", uuid.New().String()[:6], workerID)
	token, err := sc.signUp(username)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to sign up")
		return res
	}

	var ids []string
	for i := 0; i < numTrades; i++ {
		trade := randomTrade()
		out, err := sc.call("create", http.MethodPost, "/api/v1/trades", token, trade)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to create trade")
			continue
		}
		var created struct {
			TradeID string `json:"trade_id"`
		}
		if err := json.Unmarshal(out.Data, &created); err != nil || created.TradeID == "" {
			logger.Error().Err(err).Msg("No trade id in response")
			continue
		}
		ids = append(ids, created.TradeID)
		res.created++
		res.symbols[trade["underlying"].(string)]++

		time.Sleep(time.Duration(rand.Intn(200)) * time.Millisecond)
	}

	for i, id := range ids {
		switch {
		case i%3 == 0:
			trade := randomTrade()
			trade["status"] = "CLOSED"
			trade["close_ts"] = time.Now().UTC().Format(time.RFC3339)
			trade["realized_pnl"] = fmt.Sprintf("%.2f", rand.Float64()*400-200)
			if _, err := sc.call("update", http.MethodPut, "/api/v1/trades/"+id, token, trade); err == nil {
				res.updated++
			}
		case i%7 == 0:
			if _, err := sc.call("delete", http.MethodDelete, "/api/v1/trades/"+id, token, nil); err == nil {
				res.deleted++
			}
		}
	}

	out, err := sc.call("list", http.MethodGet, "/api/v1/trades?sort=underlying&order=asc", token, nil)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to list trades")
		return res
	}
	var listed []json.RawMessage
	if err := json.Unmarshal(out.Data, &listed); err == nil {
		res.listed = len(listed)
	}

	logger.Info().
		Str("username", username).
		Int("created", res.created).
		Int("updated", res.updated).
		Int("deleted", res.deleted).
		Int("listed", res.listed).
		Msg("Worker finished")
	return res
}

// printPerformanceStats outputs formatted performance statistics for all API endpoints
func (sc *simulationClient) printPerformanceStats() {
	fmt.Println("\nAPI Performance Statistics")
	fmt.Println(strings.Repeat("-", 100))
	fmt.Printf("%-20s %10s %10s %10s %10s %10s %10s %10s %10s\n",
		"Endpoint", "Calls", "Errors", "Min", "Max", "Mean", "Median", "P95", "P99")
	fmt.Println(strings.Repeat("-", 100))

	keys := make([]string, 0, len(sc.stats))
	for key := range sc.stats {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		stats := sc.stats[key]
		min, max, mean, median, p95, p99 := stats.calculate()
		fmt.Printf("%-20s %10d %10d %10s %10s %10s %10s %10s %10s\n",
			stats.name,
			stats.totalCalls,
			stats.failures,
			min.Round(time.Millisecond),
			max.Round(time.Millisecond),
			mean.Round(time.Millisecond),
			median.Round(time.Millisecond),
			p95.Round(time.Millisecond),
			p99.Round(time.Millisecond))
	}
	fmt.Println(strings.Repeat("-", 100))
}

// main runs the journal simulation against a running server. The server
// address defaults to http://localhost:8080 and can be set with SERVER_ADDRESS.
func main() {
	baseURL := os.Getenv("SERVER_ADDRESS")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	sc := newSimulationClient(baseURL)

	targetTrades := rand.Intn(maxTrades-minTrades) + minTrades
	log.Info().Int("target_trades", targetTrades).Str("server", baseURL).Msg("Starting simulation")

	start := time.Now()
	results := make(chan workerResult, numWorkers)
	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			results <- runWorker(workerID, targetTrades/numWorkers, sc)
		}(i)
	}
	wg.Wait()
	close(results)

	total := workerResult{symbols: make(map[string]int)}
	for res := range results {
		total.created += res.created
		total.updated += res.updated
		total.deleted += res.deleted
		total.listed += res.listed
		for symbol, count := range res.symbols {
			total.symbols[symbol] += count
		}
	}
	duration := time.Since(start)

	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("TRADE JOURNAL SIMULATION SUMMARY")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf(`
Trade Statistics
----------------
Created:   %d
Closed:    %d
Deleted:   %d
Listed:    %d
Duration:  %v

Symbol Distribution
-------------------
`, total.created, total.updated, total.deleted, total.listed, duration.Round(time.Millisecond))

	maxCount := 0
	for _, count := range total.symbols {
		if count > maxCount {
			maxCount = count
		}
	}
	for symbol, count := range total.symbols {
		bar := strings.Repeat("#", int(float64(count)/float64(maxCount)*20))
		fmt.Printf("%-6s: %s (%d)\n", symbol, bar, count)
	}
	fmt.Println("\n" + strings.Repeat("=", 80))

	sc.printPerformanceStats()

	if total.listed != total.created-total.deleted {
		log.Warn().
			Int("listed", total.listed).
			Int("expected", total.created-total.deleted).
			Msg("Listed trades do not match created minus deleted")
	}
}
