package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ivsurface/internal/config"
	"ivsurface/internal/errors"
	"ivsurface/internal/models"
	"ivsurface/internal/quotes"
	"ivsurface/internal/store"
)

var testNow = time.Date(2026, 10, 19, 15, 0, 0, 0, time.UTC)

// chainProvider serves a small, regular call chain around a spot of 100.
type chainProvider struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (p *chainProvider) Name() string { return "chain" }

func (p *chainProvider) FetchChain(ctx context.Context, ticker string) (*models.OptionChainSnapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return testSnapshot(ticker, time.Now()), nil
}

func (p *chainProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func testSnapshot(ticker string, fetchedAt time.Time) *models.OptionChainSnapshot {
	today := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)
	snap := &models.OptionChainSnapshot{Ticker: ticker, SpotPrice: 100, FetchedAt: fetchedAt}
	for _, days := range []int{30, 60, 120, 240} {
		expiry := today.AddDate(0, 0, days)
		for _, strike := range []float64{80, 90, 100, 110, 120} {
			iv := 0.2 + 0.002*(strike-100)*(strike-100)/100 + 0.01*float64(days)/30
			p, ok := models.NewContractPoint(expiry, today, strike, 100, 1, 1.2, iv)
			if ok {
				snap.Points = append(snap.Points, p)
			}
		}
	}
	return snap
}

func testApp(t *testing.T, p quotes.Provider) *App {
	t.Helper()
	cfg := config.Default(t.TempDir())
	cfg.Cache.Backend = "memory"
	cfg.Output.Dir = t.TempDir()
	cfg.Surface.Resolution = 20
	s := store.NewMemoryStore()
	return &App{
		Config:    cfg,
		Logger:    zerolog.Nop(),
		Store:     s,
		Provider:  p,
		Collector: quotes.NewCollector(p, s, cfg.Cache.TTL, zerolog.Nop()),
		Now:       func() time.Time { return testNow },
	}
}

func run(app *App, args ...string) (string, string, error) {
	cmd := NewRootCmd(app)
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

type frameJSON struct {
	Ticker  string     `json:"ticker"`
	YTitle  string     `json:"y_title"`
	ZRange  [2]float64 `json:"z_range"`
	Caption string     `json:"caption"`
	Grid    struct {
		Mode  string       `json:"mode"`
		XAxis []float64    `json:"x_axis"`
		YAxis []float64    `json:"y_axis"`
		Z     [][]*float64 `json:"z_grid"`
	} `json:"grid"`
}

func TestSurfaceCmd_JSONToStdout(t *testing.T) {
	app := testApp(t, &chainProvider{})

	stdout, stderr, err := run(app, "surface", "spy", "--format", "json", "--out", "-", "--mode", "moneyness")
	require.NoError(t, err)

	var f frameJSON
	require.NoError(t, json.Unmarshal([]byte(stdout), &f), "stdout must hold only the surface")
	assert.Equal(t, "SPY", f.Ticker)
	assert.Equal(t, "Moneyness", f.YTitle)
	assert.Equal(t, "moneyness", f.Grid.Mode)
	assert.Equal(t, "Data as of 2026-10-19", f.Caption)
	require.Len(t, f.Grid.XAxis, 20)
	require.Len(t, f.Grid.Z, 20)
	assert.InDelta(t, 0.8, f.Grid.YAxis[0], 1e-9)
	assert.InDelta(t, 1.2, f.Grid.YAxis[19], 1e-9)

	maxIV := 0.0
	for _, row := range f.Grid.Z {
		for _, v := range row {
			if v != nil && *v > maxIV {
				maxIV = *v
			}
		}
	}
	assert.Equal(t, 0.0, f.ZRange[0])
	assert.InDelta(t, maxIV*1.1, f.ZRange[1], 1e-9)
	assert.Contains(t, stderr, "Moneyness surface for SPY written to stdout")
}

func TestSurfaceCmd_DefaultHTMLFile(t *testing.T) {
	app := testApp(t, &chainProvider{})

	stdout, _, err := run(app, "surface")
	require.NoError(t, err)

	path := filepath.Join(app.Config.Output.Dir, "SPY_iv_surface_strike.html")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Implied Volatility Surface for SPY")
	assert.Contains(t, string(data), "Data as of 2026-10-19")
	assert.Contains(t, stdout, path)
	assert.Contains(t, stdout, "across 4 expirations")
}

func TestSurfaceCmd_JSONSummary(t *testing.T) {
	app := testApp(t, &chainProvider{})
	out := filepath.Join(t.TempDir(), "nested", "grid.csv")

	stdout, _, err := run(app, "--json", "surface", "QQQ", "--format", "csv", "--out", out)
	require.NoError(t, err)

	var result surfaceResult
	require.NoError(t, json.Unmarshal([]byte(stdout), &result))
	assert.Equal(t, "QQQ", result.Ticker)
	assert.Equal(t, "Strike", result.Mode)
	assert.Equal(t, 20, result.Contracts)
	assert.Equal(t, 20, result.Resolution)
	assert.Greater(t, result.Coverage, 0.9)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Equal(t, "time_to_expiration,y,implied_volatility", lines[0])
	assert.Len(t, lines, 1+20*20)
}

func TestSurfaceCmd_CachesQuotes(t *testing.T) {
	p := &chainProvider{}
	app := testApp(t, p)

	for i := 0; i < 2; i++ {
		_, _, err := run(app, "surface", "SPY", "--format", "json", "--out", "-")
		require.NoError(t, err)
	}
	assert.Equal(t, 1, p.Calls())

	_, _, err := run(app, "surface", "SPY", "--format", "json", "--out", "-", "--refresh")
	require.NoError(t, err)
	assert.Equal(t, 2, p.Calls())
}

func TestSurfaceCmd_NoData(t *testing.T) {
	p := &chainProvider{err: errors.NewDataError("options", "ZZZZ", "no listed expirations", errors.ErrNoOptionData)}
	app := testApp(t, p)

	_, _, err := run(app, "surface", "ZZZZ")
	require.Error(t, err)
	assert.True(t, errors.IsNoData(err))
	assert.Contains(t, ExplainError(err), "No option data available")

	entries, err := os.ReadDir(app.Config.Output.Dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "nothing is rendered without data")
}

func TestSurfaceCmd_InvalidFlags(t *testing.T) {
	app := testApp(t, &chainProvider{})

	_, _, err := run(app, "surface", "SPY", "--mode", "delta")
	assert.Contains(t, ExplainError(err), "Invalid mode")

	_, _, err = run(app, "surface", "SPY", "--format", "png")
	assert.Contains(t, ExplainError(err), "Invalid format")

	for _, res := range []string{"1", "0", "-5"} {
		_, _, err = run(app, "surface", "SPY", "--resolution="+res, "--out", "-")
		assert.Contains(t, ExplainError(err), "Invalid resolution", "resolution %s", res)
	}

	_, _, err = run(app, "surface", "NOT A TICKER")
	assert.True(t, errors.Is(err, errors.ErrInvalidTicker))
}

func TestQuotesCmd_Table(t *testing.T) {
	app := testApp(t, &chainProvider{})

	stdout, _, err := run(app, "quotes", "SPY")
	require.NoError(t, err)
	assert.Contains(t, stdout, "SPY option chain")
	assert.Contains(t, stdout, "$100.00")
	for _, exp := range []string{"2026-11-18", "2026-12-18", "2027-02-16", "2027-06-16"} {
		assert.Contains(t, stdout, exp)
	}
	assert.Contains(t, stdout, "80.00 - 120.00")
}

func TestQuotesCmd_CSVReplay(t *testing.T) {
	app := testApp(t, &chainProvider{})
	csvPath := filepath.Join(t.TempDir(), "spy.csv")

	_, _, err := run(app, "quotes", "SPY", "--csv", "--out", csvPath)
	require.NoError(t, err)

	offline := testApp(t, &chainProvider{err: fmt.Errorf("offline")})
	stdout, _, err := run(offline, "surface", "SPY", "--from-csv", csvPath, "--format", "json", "--out", "-")
	require.NoError(t, err)

	var f frameJSON
	require.NoError(t, json.Unmarshal([]byte(stdout), &f))
	assert.InDelta(t, 80, f.Grid.YAxis[0], 1e-9)
	assert.InDelta(t, 120, f.Grid.YAxis[len(f.Grid.YAxis)-1], 1e-9)
}

func TestSummarizeExpirations(t *testing.T) {
	summaries := summarizeExpirations(testSnapshot("SPY", testNow).Points)
	require.Len(t, summaries, 4)

	first := summaries[0]
	assert.Equal(t, "2026-11-18", first.Expiration)
	assert.Equal(t, 5, first.Contracts)
	assert.Equal(t, 80.0, first.MinStrike)
	assert.Equal(t, 120.0, first.MaxStrike)
	assert.InDelta(t, 0.21, first.ATMIV, 1e-12)
	assert.Less(t, first.MinIV, first.MaxIV)
	for i := 1; i < len(summaries); i++ {
		assert.Less(t, summaries[i-1].TimeToExpiration, summaries[i].TimeToExpiration)
	}
}

func TestCacheCmd(t *testing.T) {
	app := testApp(t, &chainProvider{})
	ctx := context.Background()
	require.NoError(t, app.Store.SaveSnapshot(ctx, testSnapshot("SPY", testNow.Add(-10*time.Minute))))
	require.NoError(t, app.Store.SaveSnapshot(ctx, testSnapshot("QQQ", testNow.Add(-3*time.Hour))))
	require.NoError(t, app.Store.SaveSnapshot(ctx, testSnapshot("IWM", testNow.Add(-2*time.Hour))))

	stdout, _, err := run(app, "--json", "cache", "list")
	require.NoError(t, err)
	var entries []cacheEntry
	require.NoError(t, json.Unmarshal([]byte(stdout), &entries))
	require.Len(t, entries, 3)
	fresh := map[string]bool{}
	for _, e := range entries {
		fresh[e.Ticker] = e.Fresh
	}
	assert.Equal(t, map[string]bool{"SPY": true, "QQQ": false, "IWM": false}, fresh)

	stdout, _, err = run(app, "cache", "purge")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Purged 2 stale snapshot(s)")

	stdout, _, err = run(app, "cache", "list")
	require.NoError(t, err)
	assert.Contains(t, stdout, "SPY")
	assert.NotContains(t, stdout, "QQQ")

	_, _, err = run(app, "cache", "clear", "spy")
	require.NoError(t, err)
	_, err = app.Store.GetSnapshot(ctx, "SPY")
	assert.True(t, errors.Is(err, errors.ErrDataNotFound))

	require.NoError(t, app.Store.SaveSnapshot(ctx, testSnapshot("DIA", testNow)))
	stdout, _, err = run(app, "--json", "cache", "clear")
	require.NoError(t, err)
	assert.JSONEq(t, `{"cleared": 1}`, stdout)
}

func TestServeCmd_ShutsDownOnCancel(t *testing.T) {
	app := testApp(t, &chainProvider{})
	cmd := NewRootCmd(app)
	var stderr bytes.Buffer
	cmd.SetOut(io.Discard)
	cmd.SetErr(&stderr)
	cmd.SetArgs([]string{"serve", "--addr", "127.0.0.1:0"})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	require.NoError(t, cmd.ExecuteContext(ctx))
	assert.Contains(t, stderr.String(), "Serving on http://127.0.0.1:0")
}

func TestConfigCmd(t *testing.T) {
	app := testApp(t, &chainProvider{})

	stdout, _, err := run(app, "config", "path")
	require.NoError(t, err)
	assert.Equal(t, app.Config.Path()+"\n", stdout)

	stdout, _, err = run(app, "config", "validate")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Configuration is valid")

	app.Config.Surface.DefaultMode = "delta"
	_, _, err = run(app, "config", "validate")
	assert.True(t, errors.Is(err, errors.ErrConfigInvalid))
}

func TestConfigDirFromArgs(t *testing.T) {
	testCases := []struct {
		args []string
		want string
	}{
		{nil, ""},
		{[]string{"surface", "SPY"}, ""},
		{[]string{"--config", "/tmp/iv", "surface"}, "/tmp/iv"},
		{[]string{"surface", "--config=/etc/iv"}, "/etc/iv"},
		{[]string{"surface", "--", "--config", "/x"}, ""},
		{[]string{"surface", "--config"}, ""},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.want, ConfigDirFromArgs(tc.args), "%v", tc.args)
	}
}

func TestExplainError(t *testing.T) {
	testCases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{errors.Wrap(errors.ErrEmptyInput, "build"), "No option data available"},
		{errors.NewDegenerateRangeError("time_to_expiration", 1, nil), "at least two expirations"},
		{errors.NewDegenerateRangeError("xy", -1, nil), "single line"},
		{errors.NewDataError("options", "SPY", "HTTP 503", errors.ErrConnectionFailed), "Could not reach"},
		{errors.NewDataError("options", "SPY", "HTTP 429", errors.ErrRateLimited), "rate limiting"},
		{errors.NewDataError("options", "SPY", "HTTP 401", errors.ErrUnauthorized), "session cookie and crumb"},
		{fmt.Errorf("fetch: %w", context.DeadlineExceeded), "Timed out"},
		{errors.Wrap(errors.ErrConfigInvalid, "cache.ttl"), "Configuration error"},
		{fmt.Errorf("boom"), "Error: boom"},
	}
	for _, tc := range testCases {
		got := ExplainError(tc.err)
		if tc.want == "" {
			assert.Empty(t, got)
			continue
		}
		assert.Contains(t, got, tc.want)
	}
}
