package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"bessmon/internal/config"
	"bessmon/internal/dashboard"
	"bessmon/internal/metrics"
	"bessmon/internal/relay"
	"bessmon/internal/storage"
	"bessmon/internal/transport"
)

type fixture struct {
	srv   *httptest.Server
	loop  *dashboard.Loop
	state *dashboard.State
	store storage.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := config.NewStaticManager(config.DefaultConfig())
	dsn := "file:" + filepath.Join(t.TempDir(), "bess.db")
	store, err := storage.NewStore(config.StorageConfig{Driver: "sqlite", DSN: dsn})
	require.NoError(t, err)
	require.NoError(t, store.Init(context.Background()))
	t.Cleanup(func() { _ = store.Close() })

	m := metrics.New()
	st := dashboard.NewState()
	loop := dashboard.NewLoop(cfg, relay.New[transport.Message](), store, nil, nil, m, nil)
	srv := httptest.NewServer(New(cfg, st, loop, nil, m, nil, "test").Handler())
	t.Cleanup(srv.Close)
	return &fixture{srv: srv, loop: loop, state: st, store: store}
}

func (f *fixture) ingest(t *testing.T, topic string, payloads ...string) {
	t.Helper()
	for _, p := range payloads {
		f.loop.Enqueue(transport.Message{Topic: topic, Payload: []byte(p), ReceivedAt: time.Now().UTC()})
	}
	require.NoError(t, f.loop.Cycle(context.Background(), f.state))
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	return resp.StatusCode
}

func postClear(t *testing.T, url, body string) (int, map[string]any) {
	t.Helper()
	resp, err := http.Post(url+"/admin/clear", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func TestViewFilter(t *testing.T) {
	f := newFixture(t)
	f.ingest(t, config.DefaultReadingsTopic,
		`{"id_bess":"BESS001","tensao":485,"corrente":155,"potencia":75}`,
		`{"id_bess":"BESS002","tensao":220,"corrente":95,"potencia":40}`,
	)

	var all dashboard.View
	require.Equal(t, http.StatusOK, getJSON(t, f.srv.URL+"/api/view", &all))
	require.Equal(t, "Todos", all.Filter)
	require.Len(t, all.Readings, 2)
	require.Equal(t, []string{"Todos", "BESS001", "BESS002"}, all.Devices)

	var one dashboard.View
	require.Equal(t, http.StatusOK, getJSON(t, f.srv.URL+"/api/view?bess=BESS002", &one))
	require.Len(t, one.Readings, 1)
	require.Equal(t, "BESS002", one.Readings[0].BessID)

	var readings struct {
		Count int `json:"count"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, f.srv.URL+"/api/readings?limit=1", &readings))
	require.Equal(t, 1, readings.Count)
}

func TestZeroLimitReturnsEverything(t *testing.T) {
	f := newFixture(t)
	f.ingest(t, config.DefaultReadingsTopic,
		`{"id_bess":"BESS001","tensao":485,"corrente":155,"potencia":75}`,
		`{"id_bess":"BESS002","tensao":220,"corrente":95,"potencia":40}`,
	)
	f.ingest(t, config.DefaultAlarmsTopic,
		`{"id_bess":"BESS002","tipo_alarme":"Subtensão","mensagem":"Tensão de 180.0V está abaixo do limite mínimo de 190.0V."}`)

	var readings, alarms struct {
		Count int `json:"count"`
	}
	for _, q := range []string{"", "?limit=0", "?limit=-3", "?limit=abc"} {
		require.Equal(t, http.StatusOK, getJSON(t, f.srv.URL+"/api/readings"+q, &readings))
		require.Equal(t, 2, readings.Count, "readings%s", q)
		require.Equal(t, http.StatusOK, getJSON(t, f.srv.URL+"/api/alarms"+q, &alarms))
		require.Equal(t, 1, alarms.Count, "alarms%s", q)
	}
}

func TestIndexRendersTables(t *testing.T) {
	f := newFixture(t)
	f.ingest(t, config.DefaultReadingsTopic, `{"id_bess":"BESS001","tensao":500,"corrente":155,"potencia":78}`)
	f.ingest(t, config.DefaultAlarmsTopic, `{"id_bess":"BESS001","tipo_alarme":"Sobretensão","mensagem":"Tensão de 500.0V excedeu o limite máximo de 497.0V."}`)

	resp, err := http.Get(f.srv.URL + "/?bess=BESS001")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	html := string(body)
	require.Contains(t, html, "ID: BESS001 | Tensão: 500.0V")
	require.Contains(t, html, "Tensão de 500.0V excedeu o limite máximo de 497.0V.")
	require.Contains(t, html, "<polyline")
	require.Contains(t, html, `<option value="BESS001" selected>`)

	frag, err := http.Get(f.srv.URL + "/fragment")
	require.NoError(t, err)
	defer frag.Body.Close()
	fragBody, err := io.ReadAll(frag.Body)
	require.NoError(t, err)
	require.NotContains(t, string(fragBody), "<html")
	require.Contains(t, string(fragBody), "Sobretensão")
}

func TestAdminClear(t *testing.T) {
	f := newFixture(t)
	f.ingest(t, config.DefaultReadingsTopic, `{"id_bess":"BESS001","tensao":480}`)

	status, body := postClear(t, f.srv.URL, `{"target":"readings","secret":"nope"}`)
	require.Equal(t, http.StatusForbidden, status)
	require.Equal(t, "invalid admin secret", body["error"])
	n, err := f.store.CountReadings(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)

	status, _ = postClear(t, f.srv.URL, `{"target":"everything","secret":"bess-admin"}`)
	require.Equal(t, http.StatusBadRequest, status)

	status, body = postClear(t, f.srv.URL, `{"secret":"bess-admin"}`)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "readings", body["target"])
	n, err = f.store.CountReadings(context.Background())
	require.NoError(t, err)
	require.Zero(t, n)
	require.Equal(t, "Aguardando a primeira mensagem...", f.state.LastMessage())
}

func TestStatusHealthAndMetrics(t *testing.T) {
	f := newFixture(t)
	f.ingest(t, config.DefaultReadingsTopic, `{"id_bess":"BESS001","tensao":480}`)

	var status statusResponse
	require.Equal(t, http.StatusOK, getJSON(t, f.srv.URL+"/api/status", &status))
	require.Equal(t, "mqtt", status.Broker)
	require.Equal(t, config.DefaultReadingsTopic, status.ReadingsTopic)
	require.Contains(t, status.LastMessage, "BESS001")

	var health map[string]string
	require.Equal(t, http.StatusOK, getJSON(t, f.srv.URL+"/health", &health))
	require.Equal(t, "ok", health["status"])

	resp, err := http.Get(f.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), `bessmon_rows_persisted_total{table="medicoes"} 1`)
}

func TestStartReportsBindError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	srv, err := Start(ctx, "127.0.0.1:0", http.NotFoundHandler(), nil)
	require.NoError(t, err)
	require.NotNil(t, srv)

	_, err = Start(ctx, "127.0.0.1:-1", http.NotFoundHandler(), nil)
	require.Error(t, err)
}

func TestIngestFeedsRenderLoop(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Post(f.srv.URL+"/api/ingest", "application/json", strings.NewReader(
		`[{"id_bess":"BESS001","tensao":480,"corrente":155,"potencia":74},{"tensao":1},{"id_bess":"BESS002","tensao":200}]`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out map[string]int
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Equal(t, 2, out["accepted"])
	require.Equal(t, 1, out["failed"])

	alarm, err := http.Post(f.srv.URL+"/api/ingest?kind=alarm", "application/json", strings.NewReader(
		`{"id_bess":"BESS002","tipo_alarme":"Subtensão","mensagem":"Tensão de 180.0V está abaixo do limite mínimo de 190.0V."}`))
	require.NoError(t, err)
	alarm.Body.Close()

	require.NoError(t, f.loop.Cycle(context.Background(), f.state))
	n, err := f.store.CountReadings(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, n)
	n, err = f.store.CountAlarms(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)

	bad, err := http.Post(f.srv.URL+"/api/ingest", "application/json", strings.NewReader(`[`))
	require.NoError(t, err)
	bad.Body.Close()
	require.Equal(t, http.StatusBadRequest, bad.StatusCode)
}
