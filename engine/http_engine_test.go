package engine

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHTTPEngine_FetchHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(`<html><head><title>All Products</title></head><body><h1>Catalog</h1></body></html>`))
	}))
	defer srv.Close()

	e := NewHTTPEngine(HTTPOptions{})
	result, err := e.Fetch(context.Background(), &FetchRequest{URL: srv.URL})
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if result.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want 200", result.StatusCode)
	}
	if result.Title != "All Products" {
		t.Errorf("Title = %q, want %q", result.Title, "All Products")
	}
	if !strings.Contains(result.Body, "<h1>Catalog</h1>") {
		t.Error("Body missing page content")
	}
	if result.EngineName != "http" {
		t.Errorf("EngineName = %q, want http", result.EngineName)
	}
}

func TestHTTPEngine_FetchJSON(t *testing.T) {
	var gotAccept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAccept = r.Header.Get("Accept")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"products":[]}`))
	}))
	defer srv.Close()

	e := NewHTTPEngine(HTTPOptions{})
	result, err := e.Fetch(context.Background(), &FetchRequest{URL: srv.URL, Accept: AcceptJSON})
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if !strings.Contains(gotAccept, "application/json") {
		t.Errorf("Accept header = %q, want application/json preference", gotAccept)
	}
	if result.Body != `{"products":[]}` {
		t.Errorf("Body = %q", result.Body)
	}
	if result.Title != "" {
		t.Errorf("Title = %q, want empty for JSON", result.Title)
	}
}

func TestHTTPEngine_JSONContentTypeMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body>not a feed</body></html>`))
	}))
	defer srv.Close()

	e := NewHTTPEngine(HTTPOptions{})
	_, err := e.Fetch(context.Background(), &FetchRequest{URL: srv.URL, Accept: AcceptJSON})
	if err == nil {
		t.Fatal("expected error when a JSON fetch returns HTML")
	}
}

func TestHTTPEngine_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	e := NewHTTPEngine(HTTPOptions{})
	_, err := e.Fetch(context.Background(), &FetchRequest{URL: srv.URL})
	if err == nil {
		t.Fatal("expected error for 404 response")
	}
	if !strings.Contains(err.Error(), "404") {
		t.Errorf("error %q does not mention the status code", err)
	}
}

func TestHTTPEngine_CustomHeadersAndCookies(t *testing.T) {
	var gotUA, gotCookie string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		if c, err := r.Cookie("session"); err == nil {
			gotCookie = c.Value
		}
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head><title>ok</title></head><body></body></html>`))
	}))
	defer srv.Close()

	e := NewHTTPEngine(HTTPOptions{})
	_, err := e.Fetch(context.Background(), &FetchRequest{
		URL:     srv.URL,
		Headers: map[string]string{"User-Agent": "stockroom-test/1.0"},
		Cookies: []http.Cookie{{Name: "session", Value: "abc123"}},
	})
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if gotUA != "stockroom-test/1.0" {
		t.Errorf("User-Agent = %q, custom header was not applied", gotUA)
	}
	if gotCookie != "abc123" {
		t.Errorf("session cookie = %q, want abc123", gotCookie)
	}
}

func TestHTTPEngine_AppShellDetection(t *testing.T) {
	shell := `<html><head><title>Shop</title></head><body><div id="root"></div>` +
		`<script src="/bundle.js"></script></body></html>`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(shell))
	}))
	defer srv.Close()

	detecting := NewHTTPEngine(HTTPOptions{DetectAppShell: true})
	if _, err := detecting.Fetch(context.Background(), &FetchRequest{URL: srv.URL}); err == nil {
		t.Error("expected app shell to be rejected when detection is on")
	}

	plain := NewHTTPEngine(HTTPOptions{})
	if _, err := plain.Fetch(context.Background(), &FetchRequest{URL: srv.URL}); err != nil {
		t.Errorf("detection off: Fetch returned error: %v", err)
	}
}

func TestExtractTitle(t *testing.T) {
	tests := []struct {
		name string
		html string
		want string
	}{
		{"simple", `<html><head><title>Summer Drop</title></head></html>`, "Summer Drop"},
		{"whitespace", "<title>\n  Padded \n</title>", "Padded"},
		{"missing", `<html><body><p>no title</p></body></html>`, ""},
		{"empty element", `<title></title>`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractTitle(tt.html); got != tt.want {
				t.Errorf("extractTitle = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLooksLikeAppShell(t *testing.T) {
	richText := strings.Repeat("Lightweight merino crew neck in four colorways. ", 10)

	tests := []struct {
		name string
		body string
		want bool
	}{
		{
			"empty spa root",
			`<html><body><div id="root"></div><script src="/app.js"></script></body></html>`,
			true,
		},
		{
			"noscript warning",
			`<html><body>` + richText + `<noscript>Please enable JavaScript to continue.</noscript></body></html>`,
			true,
		},
		{
			"server rendered grid",
			`<html><body><div class="grid">` + richText + `</div></body></html>`,
			false,
		},
		{
			"almost no text",
			`<html><body><div></div></body></html>`,
			true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := looksLikeAppShell(tt.body); got != tt.want {
				t.Errorf("looksLikeAppShell = %t, want %t", got, tt.want)
			}
		})
	}
}

func TestContentTypeChecks(t *testing.T) {
	if !isHTMLContentType("text/html; charset=utf-8") {
		t.Error("text/html not recognized as HTML")
	}
	if isHTMLContentType("application/json") {
		t.Error("application/json recognized as HTML")
	}
	if !isJSONContentType("application/json; charset=utf-8") {
		t.Error("application/json not recognized as JSON")
	}
	if !isJSONContentType("application/vnd.shop+json") {
		t.Error("vendor +json type not recognized as JSON")
	}
	if isJSONContentType("text/html") {
		t.Error("text/html recognized as JSON")
	}
}
