package artwork

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/zmb3/spotify/v2"
)

func TestExtractImage(t *testing.T) {
	tests := []struct {
		name string
		page string
		want string
	}{
		{
			name: "background image style attribute",
			page: `<html><body><div class="header-new-background-image" style="background-image: url(https://lastfm.freetls.fastly.net/i/u/ar0/abc.jpg);"></div></body></html>`,
			want: "https://lastfm.freetls.fastly.net/i/u/ar0/abc.jpg",
		},
		{
			name: "quoted url",
			page: `<div style="background-image: url('https://img.example/q.png')"></div>`,
			want: "https://img.example/q.png",
		},
		{
			name: "avatar class substring",
			page: `<html><body><img class="image avatar-large" src="https://img.example/large.png"></body></html>`,
			want: "https://img.example/large.png",
		},
		{
			name: "avatar class",
			page: `<html><body><img class="avatar" src="https://img.example/avatar.png"></body></html>`,
			want: "https://img.example/avatar.png",
		},
		{
			name: "inline style block",
			page: `<html><head><style>.hero { background-image: url(https://img.example/hero.jpg) }</style></head></html>`,
			want: "https://img.example/hero.jpg",
		},
		{
			name: "no image",
			page: `<html><body><p>Nothing here</p></body></html>`,
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := extractImage([]byte(tt.page))
			if got != tt.want {
				t.Errorf("extractImage() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPageScraper_FindImage(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.RawPath
		if gotPath == "" {
			gotPath = r.URL.Path
		}
		if r.Header.Get("User-Agent") != "test-agent" {
			t.Errorf("User-Agent = %q, want test-agent", r.Header.Get("User-Agent"))
		}
		w.Write([]byte(`<div style="background-image: url(https://img.example/daft.jpg)"></div>`))
	}))
	defer server.Close()

	s := NewPageScraper(WithBaseURL(server.URL+"/"), WithHTTPClient(server.Client()), WithUserAgent("test-agent"))

	got := s.FindImage(context.Background(), "Daft Punk")
	if got != "https://img.example/daft.jpg" {
		t.Errorf("FindImage() = %q, want https://img.example/daft.jpg", got)
	}
	if gotPath != "/music/Daft+Punk" {
		t.Errorf("request path = %q, want /music/Daft+Punk", gotPath)
	}
}

func TestPageScraper_Headers(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("User-Agent"); got != "configured-agent" {
			t.Errorf("User-Agent = %q, want configured-agent", got)
		}
		if got := r.Header.Get("X-Trace"); got != "1" {
			t.Errorf("X-Trace = %q, want 1", got)
		}
		w.Write([]byte(`<div style="background-image: url(https://img.example/a.jpg)"></div>`))
	}))
	defer server.Close()

	s := NewPageScraper(
		WithBaseURL(server.URL),
		WithHTTPClient(server.Client()),
		WithUserAgent("default-agent"),
		WithHeaders(map[string]string{"User-Agent": "configured-agent", "X-Trace": "1"}),
	)
	if got := s.FindImage(context.Background(), "Air"); got != "https://img.example/a.jpg" {
		t.Errorf("FindImage() = %q", got)
	}
}

func TestPageScraper_Failures(t *testing.T) {
	tests := []struct {
		name   string
		status int
	}{
		{"not found", http.StatusNotFound},
		{"server error", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			s := NewPageScraper(WithBaseURL(server.URL), WithHTTPClient(server.Client()))
			if got := s.FindImage(context.Background(), "Anyone"); got != "" {
				t.Errorf("FindImage() = %q, want empty", got)
			}
		})
	}
}

func TestPageScraper_BreakerOpens(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	s := NewPageScraper(WithBaseURL(server.URL), WithHTTPClient(server.Client()))
	for i := 0; i < breakerThreshold+3; i++ {
		s.FindImage(context.Background(), "Anyone")
	}

	if got := hits.Load(); got != breakerThreshold {
		t.Errorf("server hits = %d, want %d (breaker should stop further requests)", got, breakerThreshold)
	}
}

func TestChain(t *testing.T) {
	var calls atomic.Int32
	counting := func(url string) Finder {
		return FinderFunc(func(context.Context, string) string {
			calls.Add(1)
			return url
		})
	}

	tests := []struct {
		name      string
		chain     Chain
		want      string
		wantCalls int32
	}{
		{"empty chain", Chain{}, "", 0},
		{"first wins", Chain{counting("a"), counting("b")}, "a", 1},
		{"falls through", Chain{counting(""), counting("b")}, "b", 2},
		{"nil finder skipped", Chain{nil, counting("c")}, "c", 1},
		{"none found", Chain{counting(""), None}, "", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls.Store(0)
			if got := tt.chain.FindImage(context.Background(), "x"); got != tt.want {
				t.Errorf("FindImage() = %q, want %q", got, tt.want)
			}
			if got := calls.Load(); got != tt.wantCalls {
				t.Errorf("calls = %d, want %d", got, tt.wantCalls)
			}
		})
	}
}

func TestPickImage(t *testing.T) {
	artist := func(name string, urls ...string) spotify.FullArtist {
		a := spotify.FullArtist{SimpleArtist: spotify.SimpleArtist{Name: name}}
		for _, u := range urls {
			a.Images = append(a.Images, spotify.Image{URL: u})
		}
		return a
	}

	tests := []struct {
		name string
		page *spotify.FullArtistPage
		want string
	}{
		{"nil page", nil, ""},
		{"exact match", &spotify.FullArtistPage{Artists: []spotify.FullArtist{artist("Radiohead", "big", "small")}}, "big"},
		{"case-insensitive match", &spotify.FullArtistPage{Artists: []spotify.FullArtist{artist("RADIOHEAD", "big")}}, "big"},
		{"skips non-matching result", &spotify.FullArtistPage{Artists: []spotify.FullArtist{artist("Radiohead Tribute", "wrong"), artist("Radiohead", "right")}}, "right"},
		{"match without images", &spotify.FullArtistPage{Artists: []spotify.FullArtist{artist("Radiohead")}}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := pickImage(tt.page, "Radiohead"); got != tt.want {
				t.Errorf("pickImage() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSpotifyFinder_FindImage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" {
			http.NotFound(w, r)
			return
		}
		if r.URL.Query().Get("type") != "artist" {
			t.Errorf("search type = %q, want artist", r.URL.Query().Get("type"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"artists":{"items":[{"name":"Radiohead","images":[{"url":"https://i.scdn.co/image/rh"}]}],"total":1}}`))
	}))
	defer server.Close()

	api := spotify.New(server.Client(), spotify.WithBaseURL(server.URL+"/"))
	f := NewSpotifyFinder(api, nil)

	if got := f.FindImage(context.Background(), "Radiohead"); got != "https://i.scdn.co/image/rh" {
		t.Errorf("FindImage() = %q, want https://i.scdn.co/image/rh", got)
	}
}
