// Package portstest 提供端口的内存实现，供各包测试使用。
package portstest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"cvlm/internal/ports"
)

// FileStore 是线程安全的内存对象存储，可注入错误。
type FileStore struct {
	mu      sync.Mutex
	objects map[string][]byte

	SaveErr   error
	DeleteErr error
	ExistsErr error
	OpenErr   error

	saves   []string
	deletes []string
}

var _ ports.FileStore = (*FileStore)(nil)

func NewFileStore() *FileStore {
	return &FileStore{objects: map[string][]byte{}}
}

func (f *FileStore) Save(_ context.Context, key string, r io.Reader, _ int64, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves = append(f.saves, key)
	if f.SaveErr != nil {
		return "", f.SaveErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	f.objects[key] = data
	return key, nil
}

func (f *FileStore) Open(_ context.Context, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.OpenErr != nil {
		return nil, f.OpenErr
	}
	data, ok := f.objects[key]
	if !ok {
		return nil, fmt.Errorf("object %q: %w", key, ports.ErrObjectNotFound)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *FileStore) Delete(_ context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, key)
	if f.DeleteErr != nil {
		return false, f.DeleteErr
	}
	_, ok := f.objects[key]
	delete(f.objects, key)
	return ok, nil
}

func (f *FileStore) Exists(_ context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ExistsErr != nil {
		return false, f.ExistsErr
	}
	_, ok := f.objects[key]
	return ok, nil
}

func (f *FileStore) PresignedURL(_ context.Context, key string, ttl time.Duration, downloadName string) (string, error) {
	return fmt.Sprintf("https://files.test/%s?ttl=%s&name=%s", key, ttl, downloadName), nil
}

// Put 直接写入对象，不计入 Save 调用。
func (f *FileStore) Put(key string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = data
}

// Keys 返回当前全部对象 key（已排序）。
func (f *FileStore) Keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	keys := make([]string, 0, len(f.objects))
	for k := range f.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (f *FileStore) Has(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[key]
	return ok
}

func (f *FileStore) Saves() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.saves...)
}

func (f *FileStore) Deletes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deletes...)
}
