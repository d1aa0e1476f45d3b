package discovery

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func TestDiscover(t *testing.T) {
	n := 5
	fatal := make(chan error, n)
	for i := range n {
		go func() {
			discover, err := NewWithOptions(fmt.Sprint(i),
				WithPortRange(9100, 9110),
				WithAttempts(20),
				WithInterval(100*time.Millisecond),
			)
			if err != nil {
				fatal <- err
				return
			}
			set := make(map[string]struct{})
			for range n - 1 {
				entry := <-discover.Entries
				t.Logf("from node %d: %v", i, entry)
				set[entry.Info] = struct{}{}
			}
			for j := range n {
				if j == i {
					continue
				}
				if _, ok := set[fmt.Sprint(j)]; !ok {
					fatal <- fmt.Errorf("node %d did not find entry %d", i, j)
					return
				}
			}
			time.Sleep(time.Second)
			fatal <- discover.Close()
		}()
	}
	for range n {
		if err := <-fatal; err != nil {
			t.Fatal(err)
		}
	}
}

func TestLookupTimeout(t *testing.T) {
	d, err := NewWithOptions("alone", WithPort(9120))
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()
	if d.Port() != 9120 {
		t.Fatalf("published on %d", d.Port())
	}
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if _, err := d.Lookup(ctx); err == nil {
		t.Fatal("expected no entry")
	}
}
