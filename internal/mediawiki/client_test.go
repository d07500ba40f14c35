package mediawiki

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/lvcoi/youtube2mediawiki/internal/failure"
	"golang.org/x/time/rate"
)

func TestAPISendsMultipartFields(t *testing.T) {
	wiki := newFakeWiki(t, func(c call) (int, any) {
		return http.StatusOK, obj{"query": obj{"general": obj{"sitename": "Test"}}}
	})
	r, err := wiki.client().API(context.Background(), "query", Fields{"meta": "siteinfo"})
	if err != nil {
		t.Fatalf("API: %v", err)
	}
	if got := r.String("query", "general", "sitename"); got != "Test" {
		t.Fatalf("unexpected response %v", r)
	}
	calls := wiki.Calls("query")
	if len(calls) != 1 || calls[0].Fields["meta"] != "siteinfo" {
		t.Fatalf("unexpected calls %+v", calls)
	}
	if _, _, ok := r.Status(); ok {
		t.Fatal("2xx response must not carry a status annotation")
	}
}

func TestAPICapturesHTTPErrors(t *testing.T) {
	wiki := newFakeWiki(t, func(c call) (int, any) {
		return http.StatusInternalServerError, "<html>backend fetch failed</html>"
	})
	r, err := wiki.client().API(context.Background(), "upload", Fields{})
	if err != nil {
		t.Fatalf("http errors must come back as responses, got %v", err)
	}
	code, text, ok := r.Status()
	if !ok || code != 500 || !strings.Contains(text, "Internal Server Error") {
		t.Fatalf("status not captured: %d %q %v", code, text, ok)
	}
	if !strings.Contains(r.String("status", "body"), "backend fetch failed") {
		t.Fatalf("body not kept for diagnostics: %v", r)
	}
}

func TestAPICapturesJSONErrorBody(t *testing.T) {
	wiki := newFakeWiki(t, func(c call) (int, any) {
		return http.StatusServiceUnavailable, obj{"error": obj{"code": "readonly", "info": "The wiki is in read-only mode"}}
	})
	r, err := wiki.client().API(context.Background(), "edit", Fields{})
	if err != nil {
		t.Fatal(err)
	}
	if code, _, _ := r.Status(); code != 503 {
		t.Fatalf("expected 503, got %d", code)
	}
	if e := r.Err(); e == nil || e.Code != "readonly" {
		t.Fatalf("error body lost: %v", r)
	}
}

func TestAPITransportError(t *testing.T) {
	wiki := newFakeWiki(t, func(c call) (int, any) { return http.StatusOK, obj{} })
	c := wiki.client()
	wiki.server.Close()
	_, err := c.API(context.Background(), "query", nil)
	if !failure.Is(err, failure.CategoryTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestAPIUndecodableSuccessBody(t *testing.T) {
	wiki := newFakeWiki(t, func(c call) (int, any) { return http.StatusOK, "not json" })
	_, err := wiki.client().API(context.Background(), "query", nil)
	if !failure.Is(err, failure.CategoryTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if detail, ok := failure.DetailOf(err); !ok || detail != "not json" {
		t.Fatalf("raw body not attached: %v", detail)
	}
}

func TestAPIRateLimitHonorsContext(t *testing.T) {
	wiki := newFakeWiki(t, func(c call) (int, any) { return http.StatusOK, obj{} })
	c := New(wiki.server.URL, WithRateLimit(rate.NewLimiter(rate.Every(time.Hour), 1)))
	if _, err := c.API(context.Background(), "query", nil); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := c.API(ctx, "query", nil); err == nil {
		t.Fatal("expected the limiter to give up before the deadline")
	}
	if n := len(wiki.Calls("")); n != 1 {
		t.Fatalf("expected 1 request on the wire, got %d", n)
	}
}

func TestRedactHidesSecrets(t *testing.T) {
	out := redact(Fields{"lgname": "bob", "lgpassword": "hunter2", "token": "abc"})
	if out["lgpassword"] != "***" || out["token"] != "***" || out["lgname"] != "bob" {
		t.Fatalf("unexpected redaction %v", out)
	}
}

func TestLoginTwoStep(t *testing.T) {
	wiki := newFakeWiki(t, func(c call) (int, any) {
		if c.Fields["lgtoken"] == "" {
			return http.StatusOK, obj{"login": obj{"result": "NeedToken", "token": "lt123"}}
		}
		if c.Fields["lgtoken"] != "lt123" {
			return http.StatusOK, obj{"login": obj{"result": "WrongToken"}}
		}
		return http.StatusOK, obj{"login": obj{"result": "Success", "lgusername": "Bob"}}
	})
	if err := wiki.client().Login(context.Background(), "Bob", "secret"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	calls := wiki.Calls("login")
	if len(calls) != 2 || calls[1].Fields["lgname"] != "Bob" || calls[1].Fields["lgpassword"] != "secret" {
		t.Fatalf("unexpected login calls %+v", calls)
	}
}

func TestLoginFetchesTokenFromMetaTokens(t *testing.T) {
	wiki := newFakeWiki(t, func(c call) (int, any) {
		switch {
		case c.Action == "query":
			return http.StatusOK, obj{"query": obj{"tokens": obj{"logintoken": "meta-lt"}}}
		case c.Fields["lgtoken"] == "meta-lt":
			return http.StatusOK, obj{"login": obj{"result": "Success"}}
		default:
			return http.StatusOK, obj{"login": obj{"result": "Failed", "reason": "Unable to continue login."}}
		}
	})
	if err := wiki.client().Login(context.Background(), "Bob", "secret"); err != nil {
		t.Fatalf("Login: %v", err)
	}
}

func TestLoginFailure(t *testing.T) {
	wiki := newFakeWiki(t, func(c call) (int, any) {
		if c.Fields["lgtoken"] == "" {
			return http.StatusOK, obj{"login": obj{"result": "NeedToken", "token": "lt"}}
		}
		return http.StatusOK, obj{"login": obj{"result": "Failed", "reason": "Incorrect password entered."}}
	})
	err := wiki.client().Login(context.Background(), "Bob", "wrong")
	if !failure.Is(err, failure.CategoryLoginFailed) {
		t.Fatalf("expected login failure, got %v", err)
	}
	if !strings.Contains(err.Error(), "Incorrect password") {
		t.Fatalf("reason missing from %q", err)
	}
}

func TestLoginRequiresCredentials(t *testing.T) {
	err := New("http://unused").Login(context.Background(), "", "")
	if !failure.Is(err, failure.CategoryInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestEditToken(t *testing.T) {
	tests := []struct {
		name      string
		reply     obj
		overwrite bool
		wantErr   failure.Category
	}{
		{"missing page", missingPage("File:A.webm"), false, ""},
		{"existing page with overwrite", existingPage("File:A.webm"), true, ""},
		{"existing page", existingPage("File:A.webm"), false, failure.CategoryTargetExists},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wiki := newFakeWiki(t, func(c call) (int, any) { return http.StatusOK, tt.reply })
			token, err := wiki.client().EditToken(context.Background(), "File:A.webm", tt.overwrite)
			if tt.wantErr != "" {
				if !failure.Is(err, tt.wantErr) {
					t.Fatalf("expected %s, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("EditToken: %v", err)
			}
			if token != "tok+\\" {
				t.Fatalf("unexpected token %q", token)
			}
			calls := wiki.Calls("query")
			if calls[0].Fields["titles"] != "File:A.webm" || calls[0].Fields["intoken"] != "edit" {
				t.Fatalf("unexpected query %+v", calls[0])
			}
		})
	}
}

func TestEditTokenFallsBackToCSRF(t *testing.T) {
	wiki := newFakeWiki(t, func(c call) (int, any) {
		if c.Fields["meta"] == "tokens" {
			return http.StatusOK, obj{"query": obj{"tokens": obj{"csrftoken": "csrf+\\"}}}
		}
		return http.StatusOK, obj{"query": obj{"pages": obj{"-1": obj{"title": "X", "missing": ""}}}}
	})
	token, err := wiki.client().EditToken(context.Background(), "X", false)
	if err != nil || token != "csrf+\\" {
		t.Fatalf("expected csrf token, got %q %v", token, err)
	}
}

func TestEditTokenAnonymousSession(t *testing.T) {
	wiki := newFakeWiki(t, func(c call) (int, any) {
		if c.Fields["meta"] == "tokens" {
			return http.StatusOK, obj{"query": obj{"tokens": obj{"csrftoken": "+\\"}}}
		}
		return http.StatusOK, obj{"query": obj{"pages": obj{"-1": obj{"missing": ""}}}}
	})
	_, err := wiki.client().EditToken(context.Background(), "X", false)
	if !failure.Is(err, failure.CategoryLoginFailed) {
		t.Fatalf("expected login failure for anonymous token, got %v", err)
	}
}

func TestEditPage(t *testing.T) {
	wiki := newFakeWiki(t, func(c call) (int, any) {
		if c.Action == "query" {
			return http.StatusOK, missingPage(c.Fields["titles"])
		}
		return http.StatusOK, obj{"edit": obj{"result": "Success", "title": c.Fields["title"]}}
	})
	err := wiki.client().EditPage(context.Background(), "TimedText:A.webm.en.srt", "0\n00:00:00,000 --> 00:00:02,000\nhi\n\n", "Imported from x", false)
	if err != nil {
		t.Fatalf("EditPage: %v", err)
	}
	edits := wiki.Calls("edit")
	if len(edits) != 1 {
		t.Fatalf("expected one edit, got %d", len(edits))
	}
	e := edits[0].Fields
	if e["title"] != "TimedText:A.webm.en.srt" || e["summary"] != "Imported from x" || e["token"] != "tok+\\" {
		t.Fatalf("unexpected edit fields %v", e)
	}
}

func TestEditPageRejected(t *testing.T) {
	wiki := newFakeWiki(t, func(c call) (int, any) {
		if c.Action == "query" {
			return http.StatusOK, missingPage("X")
		}
		return http.StatusOK, obj{"error": obj{"code": "protectedpage", "info": "This page has been protected"}}
	})
	err := wiki.client().EditPage(context.Background(), "X", "text", "c", false)
	if !failure.Is(err, failure.CategoryEditRejected) {
		t.Fatalf("expected edit rejected, got %v", err)
	}
}

func TestEditPageExisting(t *testing.T) {
	wiki := newFakeWiki(t, func(c call) (int, any) { return http.StatusOK, existingPage("X") })
	err := wiki.client().EditPage(context.Background(), "X", "text", "c", false)
	if !failure.Is(err, failure.CategoryTargetExists) {
		t.Fatalf("expected target exists, got %v", err)
	}
	if len(wiki.Calls("edit")) != 0 {
		t.Fatal("no edit may be attempted on an existing page")
	}
}
