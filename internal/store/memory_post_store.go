package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/halcyonlabs/skypost/internal/domain"
)

var ErrPostNotFound = errors.New("post not found")

type MemoryPostStore struct {
	mu           sync.RWMutex
	posts        map[string]domain.Post
	publications []domain.Publication
}

func NewMemoryPostStore() *MemoryPostStore {
	return &MemoryPostStore{
		posts: make(map[string]domain.Post),
	}
}

func (s *MemoryPostStore) Create(_ context.Context, post domain.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.posts[post.ID] = post
	return nil
}

func (s *MemoryPostStore) Get(_ context.Context, id string) (domain.Post, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	post, ok := s.posts[id]
	return post, ok, nil
}

func (s *MemoryPostStore) UpdateStatus(_ context.Context, id, status string) (domain.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	post, ok := s.posts[id]
	if !ok {
		return domain.Post{}, ErrPostNotFound
	}

	post.Status = status
	post.UpdatedAt = time.Now().UTC()
	s.posts[id] = post
	return post, nil
}

func (s *MemoryPostStore) MarkPublished(_ context.Context, id, uri, cid string) (domain.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	post, ok := s.posts[id]
	if !ok {
		return domain.Post{}, ErrPostNotFound
	}

	post.Status = domain.PostStatusPublished
	post.PublishedURI = uri
	post.PublishedCID = cid
	post.UpdatedAt = time.Now().UTC()
	s.posts[id] = post
	return post, nil
}

func (s *MemoryPostStore) CreatePublication(_ context.Context, pub domain.Publication) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publications = append(s.publications, pub)
	return nil
}

// Publications returns a copy of the recorded publication log.
func (s *MemoryPostStore) Publications() []domain.Publication {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Publication, len(s.publications))
	copy(out, s.publications)
	return out
}
