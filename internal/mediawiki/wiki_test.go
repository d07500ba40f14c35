package mediawiki

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// call is one API request as seen by the fake wiki.
type call struct {
	Action    string
	Fields    map[string]string
	HasChunk  bool
	Chunk     []byte
	ChunkName string
}

type fakeWiki struct {
	mu     sync.Mutex
	calls  []call
	handle func(call) (int, any)
	server *httptest.Server
}

func newFakeWiki(t *testing.T, handle func(call) (int, any)) *fakeWiki {
	t.Helper()
	w := &fakeWiki{handle: handle}
	w.server = httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(64 << 20); err != nil {
			t.Errorf("request is not multipart: %v", err)
			http.Error(rw, err.Error(), http.StatusBadRequest)
			return
		}
		if r.FormValue("format") != "json" {
			t.Errorf("format=json missing")
		}
		c := call{Action: r.FormValue("action"), Fields: map[string]string{}}
		for k, v := range r.MultipartForm.Value {
			if k != "action" && k != "format" && len(v) > 0 {
				c.Fields[k] = v[0]
			}
		}
		if fhs := r.MultipartForm.File["chunk"]; len(fhs) > 0 {
			f, err := fhs[0].Open()
			if err != nil {
				t.Errorf("open chunk: %v", err)
				return
			}
			c.Chunk, _ = io.ReadAll(f)
			f.Close()
			c.HasChunk = true
			c.ChunkName = fhs[0].Filename
		}
		w.mu.Lock()
		w.calls = append(w.calls, c)
		w.mu.Unlock()

		status, body := w.handle(c)
		rw.Header().Set("Content-Type", "application/json")
		rw.WriteHeader(status)
		if s, ok := body.(string); ok {
			_, _ = io.WriteString(rw, s)
			return
		}
		_ = json.NewEncoder(rw).Encode(body)
	}))
	t.Cleanup(w.server.Close)
	return w
}

func (w *fakeWiki) client() *Client {
	return New(w.server.URL + "/w/api.php")
}

func (w *fakeWiki) Calls(action string) []call {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []call
	for _, c := range w.calls {
		if action == "" || c.Action == action {
			out = append(out, c)
		}
	}
	return out
}

type obj = map[string]any

func missingPage(title string) obj {
	return obj{"query": obj{"pages": obj{"-1": obj{"ns": 6, "title": title, "missing": "", "edittoken": "tok+\\"}}}}
}

func existingPage(title string) obj {
	return obj{"query": obj{"pages": obj{"4711": obj{"pageid": 4711, "ns": 6, "title": title, "edittoken": "tok+\\"}}}}
}
