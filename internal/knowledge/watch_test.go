// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package knowledge

import (
	"context"
	"io"
	"testing"
	"time"
)

func TestWatchReingestsChangedTraits(t *testing.T) {
	store, tmpDir := testSetup(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- store.Watch(ctx, nil, 20*time.Millisecond, io.Discard) }()

	// Give the watcher time to register its directories.
	time.Sleep(100 * time.Millisecond)
	writeTraits(t, tmpDir, "basics", sampleTraits())

	deadline := time.Now().Add(5 * time.Second)
	for {
		st, err := store.Stats(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if st.Traits == len(sampleTraits()) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("traits = %d after change, want %d", st.Traits, len(sampleTraits()))
		}
		time.Sleep(20 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Watch returned %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Watch did not stop after cancel")
	}
}
