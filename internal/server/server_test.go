package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/guonaihong/gout"
	"github.com/wx-shi/chainsim/internal/config"
	"github.com/wx-shi/chainsim/internal/db"
	"github.com/wx-shi/chainsim/internal/model"
	"github.com/wx-shi/chainsim/internal/node"
	"github.com/wx-shi/chainsim/internal/runner"
	"github.com/wx-shi/chainsim/internal/simulation"
	"github.com/wx-shi/chainsim/internal/streamlet"
	"go.uber.org/zap"
)

type commonReply struct {
	Code int             `json:"code,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
	Msg  string          `json:"msg,omitempty"`
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	logger := zap.NewNop()

	store, err := db.NewDB(&config.DBConfig{Name: "trace", DBType: "memdb"}, logger)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	conf := &config.SimulationConfig{Honest: 3, Sequential: 1, Delay: 10}
	sim := simulation.NewSimulation(conf, logger, store)
	genesis := streamlet.NewGenesis(conf.Participants())
	for i := 0; i < conf.Honest; i++ {
		sim.AddNode(node.NewHonest(logger, genesis))
	}
	sim.AddNode(node.NewSequential(logger))

	r := runner.NewRunner(context.Background(), &config.RunnerConfig{Reward: 50, BlockChanBuf: 4}, 3, logger, sim, store)
	r.Sync()
	select {
	case <-r.Finish:
	case <-time.After(10 * time.Second):
		t.Fatal("runner did not finish")
	}

	s := NewServer(&config.ServerConfig{Host: "127.0.0.1"}, logger, store, r)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func post(t *testing.T, url string, body interface{}, data interface{}) int {
	t.Helper()
	reply := &commonReply{}
	code := 0
	req := gout.POST(url)
	if body != nil {
		req = req.SetJSON(body)
	}
	if err := req.BindJSON(reply).Code(&code).Do(); err != nil {
		t.Fatal(err)
	}
	if code == http.StatusOK && data != nil {
		if err := json.Unmarshal(reply.Data, data); err != nil {
			t.Fatal(err)
		}
	}
	return code
}

func TestLedgerAPI(t *testing.T) {
	ts := newTestServer(t)

	l := &model.LedgerReply{}
	if code := post(t, ts.URL+"/ledger", gout.H{"with_utxos": true}, l); code != http.StatusOK {
		t.Fatalf("unexpected status %d", code)
	}
	if l.Transactions != 3 || l.UTXOCount != 1 || len(l.UTXOs) != 1 {
		t.Fatalf("unexpected ledger %+v", l)
	}

	utxos := model.UTXOReply{}
	post(t, ts.URL+"/utxo", model.UTXORequest{Keys: []string{l.UTXOs[0], "x:1:2"}}, &utxos)
	if !utxos[l.UTXOs[0]] || utxos["x:1:2"] {
		t.Errorf("unexpected utxo reply %v", utxos)
	}

	note := &model.NoteReply{}
	post(t, ts.URL+"/note", model.NoteRequest{Value: 49}, note)
	if note.State != "unspent" || note.Value != "0.00000049" {
		t.Errorf("unexpected note reply %+v", note)
	}

	resp, err := http.Post(ts.URL+"/note", "application/json", strings.NewReader("not an object"))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if code := resp.StatusCode; code != http.StatusBadRequest {
		t.Errorf("expected 400 for malformed body, got %d", code)
	}
}

func TestNodesAPI(t *testing.T) {
	ts := newTestServer(t)

	var status []node.Status
	post(t, ts.URL+"/nodes", nil, &status)
	if len(status) != 4 {
		t.Fatalf("expected 4 nodes, got %d", len(status))
	}
	for _, s := range status[:3] {
		if s.Kind != "honest" || !s.HasFinal || s.FinalEpoch != 2 {
			t.Errorf("unexpected honest status %+v", s)
		}
	}
	if status[3].Kind != "sequential" {
		t.Errorf("unexpected kind %s", status[3].Kind)
	}
}

func TestTraceAPI(t *testing.T) {
	ts := newTestServer(t)

	events := &model.EventsReply{}
	post(t, ts.URL+"/events", model.PageRequest{Page: 0, PageSize: 5}, events)
	if events.TotalSize == 0 || len(events.Events) != 5 {
		t.Fatalf("unexpected events page %+v", events)
	}
	if !strings.HasPrefix(events.Events[0].Content, "propose:1:") {
		t.Errorf("expected the first delivery to be a proposal, got %q", events.Events[0].Content)
	}

	finals := &model.FinalsReply{}
	post(t, ts.URL+"/finals", gout.H{}, finals)
	if finals.TotalSize != 2 || finals.PageSize != defaultPageSize {
		t.Errorf("unexpected finals %+v", finals)
	}

	round := &model.RoundReply{}
	post(t, ts.URL+"/round", nil, round)
	if round.Height != 2 || round.StoreHeight != 2 || round.StoreRound == 0 || round.StoreRound > round.SimRound {
		t.Errorf("unexpected round %+v", round)
	}
}
