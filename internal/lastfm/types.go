package lastfm

import (
	"bytes"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
)

// Tag represents a Last.fm tag with popularity count.
type Tag struct {
	Name  string `json:"name"`
	Count int    `json:"count,omitempty"`
	URL   string `json:"url"`
}

// ArtistRef is a bare artist reference as returned by list endpoints.
type ArtistRef struct {
	Name string
	// Match is the similarity score in [0,1]; nil when the source has none.
	Match *float32
	URL   string
}

// ArtistInfo is the subset of artist.getInfo the recommender uses.
type ArtistInfo struct {
	Name          string
	URL           string
	Listeners     string
	PlayCount     string
	UserPlayCount int64
	Summary       string // raw, may contain markup
	Tags          []string
}

// Number holds a Last.fm numeric field, which arrives either as a JSON string
// or a JSON number.
type Number string

func (n *Number) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0 || string(b) == "null":
		*n = ""
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*n = Number(strings.TrimSpace(s))
	default:
		*n = Number(b)
	}
	return nil
}

// Int64 returns the value as an integer, or 0 when it is not one.
func (n Number) Int64() int64 {
	v, err := strconv.ParseInt(string(n), 10, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(string(n), 64)
		if ferr != nil {
			return 0
		}
		return int64(f)
	}
	return v
}

// Float32 returns the value and whether it parsed.
func (n Number) Float32() (float32, bool) {
	if n == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(string(n), 32)
	if err != nil {
		return 0, false
	}
	return float32(f), true
}

// OrZero returns the raw string, or "0" when empty.
func (n Number) OrZero() string {
	if n == "" {
		return "0"
	}
	return string(n)
}

// list decodes a Last.fm collection that may be a JSON array, a single object
// (one-element collections), or an empty string.
type list[T any] []T

func (l *list[T]) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		*l = nil
		return nil
	}
	switch b[0] {
	case '[':
		var items []T
		if err := json.Unmarshal(b, &items); err != nil {
			return err
		}
		*l = items
	case '{':
		var item T
		if err := json.Unmarshal(b, &item); err != nil {
			return err
		}
		*l = list[T]{item}
	default:
		*l = nil
	}
	return nil
}

// tagContainer decodes {"tag": [...]}; Last.fm sends "" when an artist has no tags.
type tagContainer struct {
	Tag list[Tag] `json:"tag"`
}

func (t *tagContainer) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || b[0] != '{' {
		t.Tag = nil
		return nil
	}
	var raw struct {
		Tag list[Tag] `json:"tag"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	t.Tag = raw.Tag
	return nil
}

// artistEntry is an element of user.getTopArtists, artist.getSimilar and
// tag.getTopArtists.
type artistEntry struct {
	Name      string `json:"name"`
	URL       string `json:"url"`
	Match     Number `json:"match"`
	PlayCount Number `json:"playcount"`
}

func (e artistEntry) ref() ArtistRef {
	ref := ArtistRef{Name: e.Name, URL: e.URL}
	if m, ok := e.Match.Float32(); ok {
		ref.Match = &m
	}
	return ref
}

// topArtistsResponse is the JSON response for user.getTopArtists and tag.getTopArtists.
type topArtistsResponse struct {
	TopArtists struct {
		Artist list[artistEntry] `json:"artist"`
	} `json:"topartists"`
}

// similarArtistsResponse is the JSON response for artist.getSimilar.
type similarArtistsResponse struct {
	SimilarArtists struct {
		Artist list[artistEntry] `json:"artist"`
	} `json:"similarartists"`
}

// artistInfoResponse is the JSON response for artist.getInfo.
type artistInfoResponse struct {
	Artist *struct {
		Name  string `json:"name"`
		URL   string `json:"url"`
		Stats struct {
			Listeners     Number `json:"listeners"`
			PlayCount     Number `json:"playcount"`
			UserPlayCount Number `json:"userplaycount"`
		} `json:"stats"`
		Bio struct {
			Summary string `json:"summary"`
		} `json:"bio"`
		Tags tagContainer `json:"tags"`
	} `json:"artist"`
}

// artistTracksResponse is the JSON response for user.getArtistTracks.
type artistTracksResponse struct {
	ArtistTracks struct {
		Track list[struct {
			Date struct {
				UTS Number `json:"uts"`
			} `json:"date"`
		}] `json:"track"`
	} `json:"artisttracks"`
}

// topTagsResponse is the JSON response for chart.getTopTags.
type topTagsResponse struct {
	Tags struct {
		Tag list[struct {
			Name string `json:"name"`
			URL  string `json:"url"`
		}] `json:"tag"`
	} `json:"tags"`
}

// apiError represents a Last.fm API error response.
type apiError struct {
	Error   int    `json:"error"`
	Message string `json:"message"`
}
