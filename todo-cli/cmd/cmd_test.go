package cmd

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/bytedance/sonic"

	"livetodo/internal/contract"
)

type fakeAPI struct {
	mu   sync.Mutex
	cmds []contract.Command
}

func (f *fakeAPI) server(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/todos", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"todos":[`+
			`{"id":"b","text":"walk dog","completed":true,"creationTime":2},`+
			`{"id":"a","text":"buy milk","completed":false,"creationTime":1}]}`)
	})
	mux.HandleFunc("/api/commands", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var cmds []contract.Command
		if err := sonic.Unmarshal(body, &cmds); err != nil {
			t.Errorf("decode: %v", err)
		}
		f.mu.Lock()
		f.cmds = append(f.cmds, cmds...)
		f.mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
		io.WriteString(w, `{"ids":["new-id"]}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	root, a := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	logFile := filepath.Join(t.TempDir(), "todo.log")
	root.SetArgs(append([]string{"--log-file", logFile}, args...))
	err := execute(context.Background(), root, a)
	return out.String(), err
}

// openHandles counts descriptors of this process that point at path.
func openHandles(t *testing.T, path string) int {
	t.Helper()
	fds, err := os.ReadDir("/proc/self/fd")
	if err != nil {
		t.Skipf("no /proc: %v", err)
	}
	n := 0
	for _, fd := range fds {
		target, err := os.Readlink(filepath.Join("/proc/self/fd", fd.Name()))
		if err == nil && target == path {
			n++
		}
	}
	return n
}

func payload(t *testing.T, cmd contract.Command) contract.CommandData {
	t.Helper()
	var d contract.CommandData
	if err := sonic.Unmarshal(cmd.Data, &d); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	return d
}

func TestLs(t *testing.T) {
	srv := (&fakeAPI{}).server(t)
	out, err := run(t, "--api-url", srv.URL, "ls")
	if err != nil {
		t.Fatalf("ls: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 || !strings.Contains(lines[0], "walk dog") || !strings.Contains(lines[1], "buy milk") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestAdd(t *testing.T) {
	api := &fakeAPI{}
	srv := api.server(t)
	out, err := run(t, "--api-url", srv.URL, "add", "buy", "milk")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if !strings.Contains(out, "created new-id") {
		t.Fatalf("unexpected output %q", out)
	}
	if len(api.cmds) != 1 || api.cmds[0].Type != contract.CreateTodo {
		t.Fatalf("unexpected commands %+v", api.cmds)
	}
	if d := payload(t, api.cmds[0]); d.Text == nil || *d.Text != "buy milk" {
		t.Fatalf("unexpected payload %s", api.cmds[0].Data)
	}
}

func TestPositionalCommands(t *testing.T) {
	cases := []struct {
		args []string
		typ  string
		id   string
	}{
		{[]string{"done", "2"}, contract.MarkTodo, "a"},
		{[]string{"undone", "1"}, contract.MarkTodo, "b"},
		{[]string{"rm", "1"}, contract.DeleteTodo, "b"},
		{[]string{"edit", "2", "buy", "almond", "milk"}, contract.UpdateTodo, "a"},
	}
	for _, tc := range cases {
		api := &fakeAPI{}
		srv := api.server(t)
		if _, err := run(t, append([]string{"--api-url", srv.URL}, tc.args...)...); err != nil {
			t.Fatalf("%v: %v", tc.args, err)
		}
		if len(api.cmds) != 1 || api.cmds[0].Type != tc.typ {
			t.Fatalf("%v: unexpected commands %+v", tc.args, api.cmds)
		}
		d := payload(t, api.cmds[0])
		if d.ID != tc.id {
			t.Fatalf("%v: expected id %s, got %s", tc.args, tc.id, d.ID)
		}
		switch tc.args[0] {
		case "done":
			if d.Completed == nil || !*d.Completed {
				t.Fatalf("done should send completed=true")
			}
		case "undone":
			if d.Completed == nil || *d.Completed {
				t.Fatalf("undone should send completed=false")
			}
		case "edit":
			if d.Text == nil || *d.Text != "buy almond milk" {
				t.Fatalf("unexpected edit payload %s", api.cmds[0].Data)
			}
		}
	}
}

func TestInvalidPosition(t *testing.T) {
	srv := (&fakeAPI{}).server(t)
	for _, arg := range []string{"0", "x", "3"} {
		if _, err := run(t, "--api-url", srv.URL, "rm", arg); err == nil {
			t.Fatalf("rm %s: expected error", arg)
		}
	}
}

func TestFailedCommandClosesLogFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	srv := (&fakeAPI{}).server(t)
	logFile := filepath.Join(t.TempDir(), "todo.log")
	root, a := newRootCmd()
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"--log-file", logFile, "--api-url", srv.URL, "rm", "3"})
	if err := execute(context.Background(), root, a); err == nil {
		t.Fatal("rm 3: expected error")
	}

	data, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), "command failed") {
		t.Fatalf("failure not logged: %q", data)
	}
	if n := openHandles(t, logFile); n != 0 {
		t.Fatalf("log file still open %d times", n)
	}
}

func TestConfigFileAndEnv(t *testing.T) {
	srv := (&fakeAPI{}).server(t)
	cfg := filepath.Join(t.TempDir(), "livetodo.yaml")
	if err := os.WriteFile(cfg, []byte("api-url: "+srv.URL+"\npolicy: retain\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := run(t, "--config", cfg, "ls"); err != nil {
		t.Fatalf("ls with config file: %v", err)
	}

	t.Setenv("LIVETODO_API_URL", srv.URL)
	if _, err := run(t, "ls"); err != nil {
		t.Fatalf("ls with env: %v", err)
	}
}

func TestInvalidPolicy(t *testing.T) {
	if _, err := run(t, "--policy", "sometimes", "ls"); err == nil || !strings.Contains(err.Error(), "policy") {
		t.Fatalf("expected policy error, got %v", err)
	}
}
