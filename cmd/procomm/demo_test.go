package main

import (
	"context"
	"encoding/binary"
	"log/slog"
	"net"
	"slices"
	"testing"
	"time"
)

func TestServeConnect(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()
	fatal := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		fatal <- connect(ctx, l.Addr().String(), 77, slog.Default())
	}()
	r, err := serve(l, 10*time.Second, slog.Default())
	if err != nil {
		t.Fatal(err)
	}
	if err := <-fatal; err != nil {
		t.Fatal(err)
	}
	if r.Elements != dataLength || r.Sum != dataLength*(dataLength-1)/2 {
		t.Fatalf("received %d elements summing to %d", r.Elements, r.Sum)
	}
	if r.RMICalls != 1 || binary.LittleEndian.Uint32(r.RMIArg) != 77 {
		t.Fatalf("rmi ran %d times with %v", r.RMICalls, r.RMIArg)
	}
	t.Log(reportPanel(r))
}

func TestSpawn(t *testing.T) {
	n := 5
	results, err := spawn(n)
	if err != nil {
		t.Fatal(err)
	}
	for i, r := range results {
		if r.Rank != i || r.Records != n || r.Sum != 10 {
			t.Fatalf("rank %d: %+v", i, r)
		}
	}
	if len(spawnTable(results)) != n+1 {
		t.Fatal("table rows missing")
	}
}

func TestMesh(t *testing.T) {
	for _, kind := range []string{"http", "https", "grpc"} {
		t.Run(kind, func(t *testing.T) {
			ranks, err := mesh(3, kind, 30*time.Second)
			if err != nil {
				t.Fatal(err)
			}
			if !slices.Equal(ranks, []int32{0, 1, 2}) {
				t.Fatalf("gathered %v", ranks)
			}
		})
	}
	if _, err := mesh(2, "carrier pigeon", time.Second); err == nil {
		t.Fatal("expected an error for an unknown transport")
	}
}
