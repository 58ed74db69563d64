package domain

import (
	"context"
	"errors"
	"sync"
)

type fakeSlots struct {
	mu      sync.Mutex
	data    map[string][]byte
	puts    int
	putErr  error
	getErr  error
	deletes int
}

func newFakeSlots() *fakeSlots {
	return &fakeSlots{data: map[string][]byte{}}
}

func (f *fakeSlots) key(partition, key string) string { return partition + ":" + key }

func (f *fakeSlots) Get(ctx context.Context, partition, key string) ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, false, f.getErr
	}
	v, ok := f.data[f.key(partition, key)]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (f *fakeSlots) Put(ctx context.Context, partition, key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts++
	if f.putErr != nil {
		return f.putErr
	}
	f.data[f.key(partition, key)] = append([]byte(nil), value...)
	return nil
}

func (f *fakeSlots) Delete(ctx context.Context, partition, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes++
	delete(f.data, f.key(partition, key))
	return nil
}

func (f *fakeSlots) Puts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.puts
}

func (f *fakeSlots) raw(partition, key string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return string(f.data[f.key(partition, key)])
}

var errSlotDown = errors.New("slot unavailable")
