package id

import (
	"strings"
	"sync"
	"testing"
)

func TestGenerate(t *testing.T) {
	gen := NewGenerator()

	id1 := gen.Generate()
	id2 := gen.Generate()

	if id1.String() == id2.String() {
		t.Error("Generated IDs should be unique")
	}
}

func TestGenerateString(t *testing.T) {
	gen := NewGenerator()

	id := gen.GenerateString()

	if len(id) != 26 {
		t.Errorf("ULID should be 26 characters, got %d", len(id))
	}
}

func TestNewConnID(t *testing.T) {
	connID := NewConnID()

	if !strings.HasPrefix(string(connID), "conn_") {
		t.Errorf("ConnID should start with 'conn_', got: %s", connID)
	}

	parts := strings.Split(string(connID), "_")
	if len(parts) != 2 {
		t.Fatalf("ConnID should have format 'conn_ulid', got: %s", connID)
	}

	if !IsValid(parts[1]) {
		t.Errorf("ULID part should be valid: %s", parts[1])
	}
}

func TestConcurrentGeneration(t *testing.T) {
	gen := NewGenerator()

	const workers = 8
	const perWorker = 100

	var wg sync.WaitGroup
	seen := make(chan string, workers*perWorker)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				seen <- gen.GenerateString()
			}
		}()
	}

	wg.Wait()
	close(seen)

	unique := make(map[string]struct{}, workers*perWorker)
	for id := range seen {
		if _, dup := unique[id]; dup {
			t.Fatalf("duplicate ULID generated: %s", id)
		}
		unique[id] = struct{}{}
	}
}
