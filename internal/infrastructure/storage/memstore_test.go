package storage

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
)

var (
	errMemNoSuchKey    = errors.New("no such key")
	errMemNoSuchUpload = errors.New("no such upload")
	errMemBadPart      = errors.New("invalid part")
)

// memStore is an in-memory bucket shared by the per-driver fakes so every
// driver can be checked against the same observable behavior.
type memStore struct {
	mu       sync.Mutex
	objects  map[string][]byte
	modified map[string]time.Time
	uploads  map[string]*memUpload
	nextID   int
}

type memUpload struct {
	key   string
	parts map[int][]byte
}

func newMemStore() *memStore {
	return &memStore{
		objects:  make(map[string][]byte),
		modified: make(map[string]time.Time),
		uploads:  make(map[string]*memUpload),
	}
}

func etagOf(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

func (m *memStore) put(key string, data []byte) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = slices.Clone(data)
	m.modified[key] = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	return etagOf(data)
}

func (m *memStore) get(key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, errMemNoSuchKey
	}
	return slices.Clone(data), nil
}

func (m *memStore) remove(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	delete(m.objects, key)
	delete(m.modified, key)
	return ok
}

type memObject struct {
	key      string
	size     int64
	etag     string
	modified time.Time
}

func (m *memStore) list(prefix string) []memObject {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []memObject
	for key, data := range m.objects {
		if strings.HasPrefix(key, prefix) {
			out = append(out, memObject{key: key, size: int64(len(data)), etag: etagOf(data), modified: m.modified[key]})
		}
	}
	slices.SortFunc(out, func(a, b memObject) int { return strings.Compare(a.key, b.key) })
	return out
}

func (m *memStore) initUpload(key string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := fmt.Sprintf("upload-%d", m.nextID)
	m.uploads[id] = &memUpload{key: key, parts: make(map[int][]byte)}
	return id
}

// putPart returns an ETag that differs for every part number.
func (m *memStore) putPart(key, uploadID string, partNumber int, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	up, ok := m.uploads[uploadID]
	if !ok || up.key != key {
		return "", errMemNoSuchUpload
	}
	up.parts[partNumber] = slices.Clone(data)
	return fmt.Sprintf("%d-%s", partNumber, etagOf(data)), nil
}

type memPart struct {
	number int
	etag   string
}

func (m *memStore) complete(key, uploadID string, parts []memPart) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	up, ok := m.uploads[uploadID]
	if !ok || up.key != key {
		return errMemNoSuchUpload
	}

	var body []byte
	prev := 0
	for _, p := range parts {
		data, ok := up.parts[p.number]
		if !ok || p.number <= prev || p.etag != fmt.Sprintf("%d-%s", p.number, etagOf(data)) {
			return errMemBadPart
		}
		body = append(body, data...)
		prev = p.number
	}

	delete(m.uploads, uploadID)
	m.objects[key] = body
	m.modified[key] = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	return nil
}

func (m *memStore) abort(uploadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.uploads[uploadID]; !ok {
		return errMemNoSuchUpload
	}
	delete(m.uploads, uploadID)
	return nil
}

func (m *memStore) openUploads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.uploads)
}
