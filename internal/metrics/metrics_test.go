package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestMetrics_Gather(t *testing.T) {
	m := New("BTC/USDT")
	m.ObservePoll("ok", 150*time.Millisecond)
	m.ObserveSignal("ENTER_LONG")
	m.ObserveLedgerWrite("csv", nil)
	m.ObserveLedgerWrite("json", errors.New("disk full"))
	m.SetLedgerStale(true)
	m.SetPosition(1)
	m.SetLastPrice(42000.5)
	m.ObserveClose(1.25)

	mfs, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	want := map[string]bool{
		"bot_polls_total":             false,
		"bot_signals_total":           false,
		"bot_ledger_writes_total":     false,
		"bot_ledger_structured_stale": false,
		"bot_position_side":           false,
		"bot_closed_pnl_percent":      false,
	}
	for _, mf := range mfs {
		if _, ok := want[mf.GetName()]; ok {
			want[mf.GetName()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Fatalf("%s metric not found", name)
		}
	}
}

func TestMetrics_Handler(t *testing.T) {
	m := New("ETH/USDT")
	m.SetPosition(-1)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("GET /metrics err=%v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `bot_position_side{symbol="ETH/USDT"} -1`) {
		t.Fatalf("body missing position gauge:\n%s", body)
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.ObservePoll("ok", time.Second)
	m.ObserveSignal("ENTER_SHORT")
	m.ObserveLedgerWrite("csv", nil)
	m.SetLedgerStale(false)
	m.SetPosition(0)
	m.SetLastPrice(1)
	m.ObserveClose(0)
}
