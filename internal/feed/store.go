package feed

import "sync"

type Post struct {
	Poster   string `json:"poster"`
	Contents string `json:"contents"`
}

// Store is the shared, append-only feed. It has its own lock, independent of
// the credential store.
type Store struct {
	mu    sync.Mutex
	posts []Post
}

func NewStore() *Store {
	return &Store{}
}

func (s *Store) Append(p Post) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.posts = append(s.posts, p)
}

// List returns a copy of the feed in insertion order.
func (s *Store) List() []Post {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Post, len(s.posts))
	copy(out, s.posts)
	return out
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.posts)
}

var seedPosts = []Post{
	{Poster: "example1", Contents: "hello, world!"},
	{Poster: "example2", Contents: "greetings, earth!"},
	{Poster: "example3", Contents: "howdy, land!"},
	{Poster: "example4", Contents: "hey"},
}

// Seed appends the example posts a fresh process starts with.
func Seed(s *Store) {
	for _, p := range seedPosts {
		s.Append(p)
	}
}
