package completion

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"medreport/internal/models"
)

func TestReplyTextShapes(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"choices", `{"choices":[{"message":{"role":"assistant","content":"hello"}}]}`, "hello"},
		{"choices without content", `{"choices":[{"message":{}}]}`, ""},
		{"response", `{"response":"flat reply"}`, "flat reply"},
		{"content", `{"content":"content reply"}`, "content reply"},
		{"unknown", `{"result":{"text":"x"}}`, `{"result":{"text":"x"}}`},
		{"not json", "plain words", "plain words"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ReplyText([]byte(tc.body)); got != tc.want {
				t.Fatalf("got %q want %q", got, tc.want)
			}
		})
	}
}

func TestHTTPClientSendsModelAndMessages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if req.Model != "llama3.1-8b" || len(req.Messages) != 2 || req.Messages[0].Role != "system" || req.Messages[1].Content != "hi" {
			t.Errorf("unexpected request %+v", req)
		}
		_, _ = io.WriteString(w, `{"choices":[{"message":{"content":"{\"vitals\":[\"HR 72\"]}"}}]}`)
	}))
	defer srv.Close()

	c := NewHTTPClient(HTTPConfig{URL: srv.URL, Model: "llama3.1-8b"}, nil)
	got, err := c.Complete(context.Background(), []models.Message{
		{Role: models.RoleSystem, Content: "sys"},
		{Role: models.RoleUser, Content: "hi"},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got != `{"vitals":["HR 72"]}` {
		t.Fatalf("unexpected reply %q", got)
	}
}

func TestHTTPClientFailuresAreUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/slow" {
			time.Sleep(200 * time.Millisecond)
		}
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := Prompt(context.Background(), NewHTTPClient(HTTPConfig{URL: srv.URL}, nil), "x")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable for 503, got %v", err)
	}

	_, err = Prompt(context.Background(), NewHTTPClient(HTTPConfig{URL: srv.URL + "/slow", Timeout: 20 * time.Millisecond}, nil), "x")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable for timeout, got %v", err)
	}
}

type fakeRunner struct {
	mu     sync.Mutex
	args   []string
	stdout string
	err    error
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.args = append([]string{name}, args...)
	return []byte(f.stdout), nil, f.err
}

func TestLocalModelDownloadsOnceAndCutsAtStop(t *testing.T) {
	var downloads int32
	hub := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/org/repo/resolve/main/model.gguf" {
			http.NotFound(w, r)
			return
		}
		atomic.AddInt32(&downloads, 1)
		_, _ = io.WriteString(w, "GGUF")
	}))
	defer hub.Close()

	path := filepath.Join(t.TempDir(), "models", "model.gguf")
	runner := &fakeRunner{stdout: "  {\"summary\": \"ok\"}\n\n\nextra</s>"}
	m := NewLocalModel(LocalConfig{
		Path:   path,
		Repo:   "org/repo",
		HubURL: hub.URL,
		Binary: "llama-cli",
	}, runner, nil)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := m.Ensure(context.Background()); err != nil {
				t.Errorf("Ensure: %v", err)
			}
		}()
	}
	wg.Wait()
	if n := atomic.LoadInt32(&downloads); n != 1 {
		t.Fatalf("expected exactly one download, got %d", n)
	}
	if data, err := os.ReadFile(path); err != nil || string(data) != "GGUF" {
		t.Fatalf("model file not written: %q %v", data, err)
	}

	got, err := m.Generate(context.Background(), "prompt", 64, DefaultStop)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != `{"summary": "ok"}` {
		t.Fatalf("unexpected output %q", got)
	}
	joined := strings.Join(runner.args, " ")
	if !strings.HasPrefix(joined, "llama-cli -m "+path+" -p prompt -n 64") {
		t.Fatalf("unexpected args %q", joined)
	}
}

func TestLocalModelDownloadFailureIsUnavailable(t *testing.T) {
	hub := httptest.NewServer(http.NotFoundHandler())
	defer hub.Close()

	m := NewLocalModel(LocalConfig{
		Path:   filepath.Join(t.TempDir(), "model.gguf"),
		Repo:   "org/repo",
		HubURL: hub.URL,
		Binary: "llama-cli",
	}, &fakeRunner{}, nil)
	_, err := m.Complete(context.Background(), []models.Message{{Role: models.RoleUser, Content: "x"}})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestInstructPrompt(t *testing.T) {
	got := InstructPrompt([]models.Message{
		{Role: models.RoleSystem, Content: "be brief"},
		{Role: models.RoleUser, Content: "q1"},
		{Role: models.RoleAssistant, Content: "a1"},
		{Role: models.RoleUser, Content: "q2"},
	})
	want := "[INST] be brief\n\nq1 [/INST] a1</s>[INST] q2 [/INST]"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestRouterFallsBackToOnline(t *testing.T) {
	var onlineCalls int
	online := ClientFunc(func(ctx context.Context, m []models.Message) (string, error) {
		onlineCalls++
		return "online", nil
	})
	failing := ClientFunc(func(ctx context.Context, m []models.Message) (string, error) {
		return "", ErrUnavailable
	})
	working := ClientFunc(func(ctx context.Context, m []models.Message) (string, error) {
		return "local", nil
	})

	got, err := NewRouter(online, failing, nil).Complete(context.Background(), "local", nil)
	if err != nil || got != "online" || onlineCalls != 1 {
		t.Fatalf("expected online fallback, got %q %v calls=%d", got, err, onlineCalls)
	}
	got, _ = NewRouter(online, working, nil).For("LOCAL").Complete(context.Background(), nil)
	if got != "local" {
		t.Fatalf("expected local reply, got %q", got)
	}
	got, _ = NewRouter(online, working, nil).Complete(context.Background(), "online", nil)
	if got != "online" {
		t.Fatalf("expected online reply, got %q", got)
	}
}

type fakeChatModel struct {
	got []*schema.Message
	err error
}

func (f *fakeChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	f.got = input
	if f.err != nil {
		return nil, f.err
	}
	return &schema.Message{Role: schema.Assistant, Content: "eino reply"}, nil
}

func (f *fakeChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not implemented")
}

func TestEinoClientConvertsRoles(t *testing.T) {
	fake := &fakeChatModel{}
	c := NewEinoClientFromModel("openai", fake, 0.2, time.Second, nil)
	got, err := c.Complete(context.Background(), []models.Message{
		{Role: models.RoleSystem, Content: "s"},
		{Role: models.RoleUser, Content: "u"},
		{Role: models.RoleAssistant, Content: "a"},
	})
	if err != nil || got != "eino reply" {
		t.Fatalf("unexpected %q %v", got, err)
	}
	if len(fake.got) != 3 || fake.got[0].Role != schema.System || fake.got[1].Role != schema.User || fake.got[2].Role != schema.Assistant {
		t.Fatalf("unexpected conversion %+v", fake.got)
	}

	fake.err = errors.New("boom")
	if _, err := c.Complete(context.Background(), nil); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
