// Package negotiate picks a response encoding from an Accept header value and
// renders greetings and feeds in it.
//
// Matching is exact string equality against three media types. Wildcards and
// quality values are not parsed. Rendered HTML is not escaped.
package negotiate

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"microfeed/feedsvc/internal/feed"
)

var ErrUnsupported = errors.New("unsupported representation")

type Representation int

const (
	Plain Representation = iota
	HTML
	JSON
)

const (
	mediaPlain = "text/plain"
	mediaHTML  = "text/html"
	mediaJSON  = "application/json"
)

func (r Representation) ContentType() string {
	switch r {
	case HTML:
		return mediaHTML + "; charset=utf-8"
	case JSON:
		return mediaJSON
	default:
		return mediaPlain + "; charset=utf-8"
	}
}

func (r Representation) String() string {
	switch r {
	case HTML:
		return mediaHTML
	case JSON:
		return mediaJSON
	default:
		return mediaPlain
	}
}

// Select maps an Accept header to a Representation. A missing header means
// plain text; a present header must match exactly.
func Select(accept string, present bool) (Representation, error) {
	if !present {
		return Plain, nil
	}
	switch accept {
	case mediaPlain:
		return Plain, nil
	case mediaHTML:
		return HTML, nil
	case mediaJSON:
		return JSON, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupported, accept)
}

type message struct {
	Message string `json:"message"`
}

func Greeting(rep Representation, name string) ([]byte, error) {
	text := "Hello, " + name + "!"
	switch rep {
	case HTML:
		return []byte("<p>" + text + "</p>"), nil
	case JSON:
		return marshal(message{Message: text})
	default:
		return []byte(text), nil
	}
}

func Feed(rep Representation, posts []feed.Post) ([]byte, error) {
	if rep == JSON {
		if posts == nil {
			posts = []feed.Post{}
		}
		return marshal(posts)
	}

	var b strings.Builder
	for _, p := range posts {
		if rep == HTML {
			fmt.Fprintf(&b, "<div class=\"post\">%s: \"%s\"</div>\n", p.Poster, p.Contents)
			continue
		}
		fmt.Fprintf(&b, "%s: \"%s\"\n", p.Poster, p.Contents)
	}
	return []byte(b.String()), nil
}

// marshal encodes compactly with no trailing newline and no HTML escaping.
func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("encode json: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
