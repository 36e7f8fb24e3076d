package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"townsync/config"
	"townsync/protocol"
	"townsync/server"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

// recordedRequest 测试服务器收到的一次请求
type recordedRequest struct {
	Method string
	Path   string
	Body   []byte
}

// testBackend 真实注册中心 + 请求记录
type testBackend struct {
	srv *server.Server
	ts  *httptest.Server

	mu   sync.Mutex
	reqs []recordedRequest
}

func newTestBackend(t *testing.T) *testBackend {
	t.Helper()
	b := &testBackend{srv: server.New(config.DefaultServer(), zap.NewNop().Sugar())}
	b.ts = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		b.mu.Lock()
		b.reqs = append(b.reqs, recordedRequest{Method: r.Method, Path: r.URL.Path, Body: body})
		b.mu.Unlock()
		r.Body = io.NopCloser(bytes.NewReader(body))
		b.srv.Handler().ServeHTTP(w, r)
	}))
	t.Cleanup(b.ts.Close)
	return b
}

func (b *testBackend) requests(method, path string) []recordedRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []recordedRequest
	for _, r := range b.reqs {
		if r.Method == method && r.Path == path {
			out = append(out, r)
		}
	}
	return out
}

func (b *testBackend) sequence() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.reqs))
	for i, r := range b.reqs {
		out[i] = r.Method + " " + r.Path
	}
	return out
}

func testClientConfig(url string) config.Client {
	cfg := config.DefaultClient()
	cfg.ServerURL = url
	cfg.PollInterval = 2 * time.Millisecond
	cfg.SendInterval = 2 * time.Millisecond
	cfg.ChatEvery = 1
	cfg.Heartbeat = 0
	return cfg
}

func newTestAgent(t *testing.T, url string) *Agent {
	t.Helper()
	return mustAgent(t, testClientConfig(url))
}

func mustAgent(t *testing.T, cfg config.Client) *Agent {
	t.Helper()
	a, err := NewAgent(cfg, zap.NewNop().Sugar())
	if err != nil {
		t.Fatalf("NewAgent: %v", err)
	}
	return a
}

func mustRegister(t *testing.T, a *Agent) protocol.PlayerID {
	t.Helper()
	if !a.ensureRegistered(context.Background()) {
		t.Fatal("registration failed")
	}
	return a.PlayerID()
}

func TestSubmitRejectedWhileUnregistered(t *testing.T) {
	a := newTestAgent(t, "http://127.0.0.1:1")
	if a.PlayerID() != protocol.Unregistered {
		t.Fatalf("Expected unregistered, got %d", a.PlayerID())
	}
	if a.SubmitLocalState(1, 2, "town", protocol.DirUp, true) {
		t.Error("Expected submission to be rejected before registration")
	}
	if _, ok := a.session.takePending(); ok {
		t.Error("rejected submission must not fill the pending slot")
	}
}

func TestCoalescingSendsOnlyLatest(t *testing.T) {
	b := newTestBackend(t)
	a := newTestAgent(t, b.ts.URL)
	id := mustRegister(t, a)

	if !a.SubmitLocalState(1, 1, "town", protocol.DirUp, true) {
		t.Fatal("first submission rejected")
	}
	if !a.SubmitLocalState(2, 3, "cave", protocol.DirRight, false) {
		t.Fatal("second submission rejected")
	}
	a.sendOnce(context.Background())

	posts := b.requests(http.MethodPost, "/players")
	if len(posts) != 1 {
		t.Fatalf("Expected exactly one POST, got %d", len(posts))
	}
	var sent protocol.UpdateRequest
	if err := json.Unmarshal(posts[0].Body, &sent); err != nil {
		t.Fatalf("decode sent body: %v", err)
	}
	want := protocol.PlayerState{ID: id, X: 2, Y: 3, Map: "cave", Direction: protocol.DirRight}
	if got := sent.State(); got != want {
		t.Errorf("Expected %+v transmitted, got %+v", want, got)
	}
	if got := b.srv.Registry().List()[id]; got != want {
		t.Errorf("Expected registry %+v, got %+v", want, got)
	}
	if a.Stats().StatesCoalesced != 1 {
		t.Errorf("Expected 1 coalesced update, got %d", a.Stats().StatesCoalesced)
	}

	// 槽已清空，再次发送周期不会重发
	a.sendOnce(context.Background())
	if n := len(b.requests(http.MethodPost, "/players")); n != 1 {
		t.Errorf("Expected no resend of a taken update, got %d POSTs", n)
	}
}

func TestRemotePlayersExcludesSelf(t *testing.T) {
	b := newTestBackend(t)
	a := newTestAgent(t, b.ts.URL)
	self := mustRegister(t, a)
	other := b.srv.Registry().Register()

	a.fetchPlayers(context.Background())
	remote := a.RemotePlayers()
	if _, ok := remote[self]; ok {
		t.Errorf("own id %d present in remote players", self)
	}
	if _, ok := remote[other]; !ok {
		t.Errorf("Expected other player %d, got %+v", other, remote)
	}
}

func TestReRegisterOnStaleSession(t *testing.T) {
	b := newTestBackend(t)
	a := newTestAgent(t, b.ts.URL)
	a.session.setID(7)

	if !a.SubmitLocalState(10, 20, "town", protocol.DirLeft, true) {
		t.Fatal("submission rejected")
	}
	a.sendOnce(context.Background())

	seq := b.sequence()
	wantSeq := []string{"POST /players", "GET /register"}
	if !reflect.DeepEqual(seq, wantSeq) {
		t.Fatalf("Expected requests %v, got %v", wantSeq, seq)
	}
	newID := a.PlayerID()
	if newID == 7 || newID == protocol.Unregistered {
		t.Fatalf("Expected fresh id, got %d", newID)
	}

	// 下一次发送使用新 id，被拒绝的状态重新提交
	a.sendOnce(context.Background())
	got, ok := b.srv.Registry().List()[newID]
	if !ok || got.X != 10 || got.Map != "town" {
		t.Errorf("Expected state under new id, got %+v (present=%v)", got, ok)
	}
}

func TestEnqueueChatBounded(t *testing.T) {
	a := newTestAgent(t, "http://127.0.0.1:1")
	for i := 0; i < OutboundChatCapacity; i++ {
		if !a.EnqueueChat(fmt.Sprintf("msg %d", i)) {
			t.Fatalf("enqueue %d rejected", i)
		}
	}
	if a.EnqueueChat("one too many") {
		t.Error("Expected 51st enqueue to be rejected")
	}
	if a.QueuedChat() != OutboundChatCapacity {
		t.Errorf("Expected queue size %d, got %d", OutboundChatCapacity, a.QueuedChat())
	}
	if a.Stats().ChatRejected != 1 {
		t.Errorf("Expected 1 rejection, got %d", a.Stats().ChatRejected)
	}
}

func TestEnqueueChatRejectsBlank(t *testing.T) {
	a := newTestAgent(t, "http://127.0.0.1:1")
	for _, text := range []string{"", "   ", "\t\n"} {
		if a.EnqueueChat(text) {
			t.Errorf("Expected %q to be rejected", text)
		}
	}
	if a.QueuedChat() != 0 {
		t.Errorf("Expected empty queue, got %d", a.QueuedChat())
	}
}

func TestDrainChatSendsAllInOrder(t *testing.T) {
	b := newTestBackend(t)
	a := newTestAgent(t, b.ts.URL)
	id := mustRegister(t, a)

	for _, text := range []string{"one", " two ", "three"} {
		a.EnqueueChat(text)
	}
	a.sendOnce(context.Background())

	if a.QueuedChat() != 0 {
		t.Errorf("Expected drained queue, got %d", a.QueuedChat())
	}
	recent := b.srv.Chat().Recent()
	if len(recent) != 3 {
		t.Fatalf("Expected 3 messages on server, got %d", len(recent))
	}
	for i, want := range []string{"one", "two", "three"} {
		if recent[i].Text != want || recent[i].From != id {
			t.Errorf("message %d: expected %q from %d, got %+v", i, want, id, recent[i])
		}
	}
}

func TestChatWaitsForRegistration(t *testing.T) {
	a := newTestAgent(t, "http://127.0.0.1:1")
	a.EnqueueChat("hello")
	a.drainChat(context.Background())
	if a.QueuedChat() != 1 {
		t.Errorf("Expected chat kept while unregistered, got queue %d", a.QueuedChat())
	}
}

func TestFetchChatDedup(t *testing.T) {
	b := newTestBackend(t)
	a := newTestAgent(t, b.ts.URL)
	mustRegister(t, a)
	for i := 0; i < 3; i++ {
		b.srv.Chat().Post(5, fmt.Sprint(i))
	}

	a.fetchChat(context.Background())
	a.fetchChat(context.Background())
	got := a.RecentChat(0)
	if len(got) != 3 {
		t.Fatalf("Expected 3 cached messages after repeated fetch, got %d", len(got))
	}
	if a.session.lastSeenChat() != 3 {
		t.Errorf("Expected last seen 3, got %d", a.session.lastSeenChat())
	}

	b.srv.Chat().Post(5, "later")
	a.fetchChat(context.Background())
	got = a.RecentChat(1)
	if len(got) != 1 || got[0].ID != 4 {
		t.Errorf("Expected only newest message, got %+v", got)
	}
}

func TestHeartbeatResendsLastState(t *testing.T) {
	b := newTestBackend(t)
	cfg := testClientConfig(b.ts.URL)
	cfg.Heartbeat = time.Second
	a := mustAgent(t, cfg)
	mustRegister(t, a)

	a.SubmitLocalState(4, 5, "town", protocol.DirDown, false)
	a.sendOnce(context.Background())
	a.sendOnce(context.Background())
	if n := len(b.requests(http.MethodPost, "/players")); n != 1 {
		t.Fatalf("Expected no heartbeat before interval, got %d POSTs", n)
	}

	a.lastSentAt = time.Now().Add(-2 * time.Second)
	a.sendOnce(context.Background())
	if n := len(b.requests(http.MethodPost, "/players")); n != 2 {
		t.Fatalf("Expected heartbeat POST, got %d POSTs", n)
	}
	if a.Stats().Heartbeats != 1 {
		t.Errorf("Expected 1 heartbeat, got %d", a.Stats().Heartbeats)
	}
}

func TestEndToEndTwoClients(t *testing.T) {
	b := newTestBackend(t)
	x := newTestAgent(t, b.ts.URL)
	y := newTestAgent(t, b.ts.URL)

	if id := mustRegister(t, x); id != 1 {
		t.Fatalf("Expected X id 1, got %d", id)
	}
	x.SubmitLocalState(64, 128, "town", protocol.DirLeft, true)
	x.sendOnce(context.Background())

	if id := mustRegister(t, y); id != 2 {
		t.Fatalf("Expected Y id 2, got %d", id)
	}
	y.fetchPlayers(context.Background())

	want := map[protocol.PlayerID]protocol.PlayerState{
		1: {ID: 1, X: 64, Y: 128, Map: "town", Direction: protocol.DirLeft, IsMoving: true},
	}
	if got := y.RemotePlayers(); !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %+v, got %+v", want, got)
	}
}

func TestWorkersLifecycle(t *testing.T) {
	b := newTestBackend(t)
	x := newTestAgent(t, b.ts.URL)
	y := newTestAgent(t, b.ts.URL)

	x.Enter()
	x.Enter() // 重复启动为空操作
	y.Enter()

	waitFor(t, "both registered", func() bool {
		return x.PlayerID() != protocol.Unregistered && y.PlayerID() != protocol.Unregistered
	})
	if x.PlayerID() == y.PlayerID() {
		t.Fatalf("agents share id %d", x.PlayerID())
	}

	x.SubmitLocalState(8, 9, "town", protocol.DirUp, true)
	x.EnqueueChat("hi from x")

	waitFor(t, "y sees x", func() bool {
		p, ok := y.RemotePlayers()[x.PlayerID()]
		return ok && p.X == 8 && p.Map == "town"
	})
	waitFor(t, "y receives chat", func() bool {
		msgs := y.RecentChat(10)
		return len(msgs) == 1 && msgs[0].Text == "hi from x"
	})

	if x.Stats().Registrations != 1 {
		t.Errorf("Expected a single registration for x, got %d", x.Stats().Registrations)
	}

	x.Exit()
	y.Exit()
	x.Exit() // 重复停止为空操作
	done := make(chan struct{})
	go func() {
		x.Wait()
		y.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("workers did not stop")
	}
}

func TestWorkersSurviveServerOutage(t *testing.T) {
	a := newTestAgent(t, "http://127.0.0.1:1")
	a.Enter()
	time.Sleep(20 * time.Millisecond)
	a.Exit()
	a.Wait()

	if a.PlayerID() != protocol.Unregistered {
		t.Errorf("Expected to remain unregistered, got %d", a.PlayerID())
	}
	if len(a.RemotePlayers()) != 0 || len(a.RecentChat(0)) != 0 {
		t.Error("Expected empty snapshots without a server")
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestSubmitNormalisesDirection(t *testing.T) {
	b := newTestBackend(t)
	a := newTestAgent(t, b.ts.URL)
	id := mustRegister(t, a)

	if !a.SubmitLocalState(64, 128, "town", "Left", true) {
		t.Fatal("Expected mixed-case direction to be accepted")
	}
	a.sendOnce(context.Background())

	want := protocol.PlayerState{ID: id, X: 64, Y: 128, Map: "town", Direction: protocol.DirLeft, IsMoving: true}
	if got := b.srv.Registry().List()[id]; got != want {
		t.Errorf("Expected registry %+v, got %+v", want, got)
	}
	if n := a.Stats().SendFailures; n != 0 {
		t.Errorf("Expected no send failures, got %d", n)
	}

	if a.SubmitLocalState(1, 1, "town", "north", false) {
		t.Error("Expected unknown direction to be rejected")
	}
	if _, ok := a.session.takePending(); ok {
		t.Error("rejected submission must not fill the pending slot")
	}
}

func TestFetchChatEveryKthCycle(t *testing.T) {
	const k = 4
	b := newTestBackend(t)
	cfg := testClientConfig(b.ts.URL)
	cfg.ChatEvery = k
	a := mustAgent(t, cfg)

	for tick := 1; tick <= 2*k; tick++ {
		a.fetchOnce(context.Background(), tick)
	}

	if n := len(b.requests(http.MethodGet, "/chat")); n != 2 {
		t.Errorf("Expected 2 chat fetches over %d cycles, got %d", 2*k, n)
	}
	if n := len(b.requests(http.MethodGet, "/players")); n != 2*k {
		t.Errorf("Expected %d player fetches, got %d", 2*k, n)
	}
	if n := len(b.requests(http.MethodGet, "/register")); n != 1 {
		t.Errorf("Expected a single registration, got %d", n)
	}
}

func TestFetchSkipsCycleWhenRegistrationFails(t *testing.T) {
	var mu sync.Mutex
	var paths []string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.Method+" "+r.URL.Path)
		mu.Unlock()
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	cfg := testClientConfig(ts.URL)
	cfg.ChatEvery = 1
	a := mustAgent(t, cfg)
	a.fetchOnce(context.Background(), 1)
	a.fetchOnce(context.Background(), 2)

	mu.Lock()
	defer mu.Unlock()
	want := []string{"GET /register", "GET /register"}
	if !reflect.DeepEqual(paths, want) {
		t.Errorf("Expected %v, got %v", want, paths)
	}
	if a.PlayerID() != protocol.Unregistered {
		t.Errorf("Expected to remain unregistered, got %d", a.PlayerID())
	}
}

func TestNewAgentRejectsBadConfig(t *testing.T) {
	mutate := []func(*config.Client){
		func(c *config.Client) { c.ChatEvery = 0 },
		func(c *config.Client) { c.PollInterval = 0 },
		func(c *config.Client) { c.SendInterval = -time.Millisecond },
		func(c *config.Client) { c.ServerURL = "ftp://example" },
	}
	for i, m := range mutate {
		cfg := testClientConfig("http://127.0.0.1:1")
		m(&cfg)
		if a, err := NewAgent(cfg, zap.NewNop().Sugar()); err == nil || a != nil {
			t.Errorf("case %d: expected error, got agent=%v err=%v", i, a, err)
		}
	}
}
