package network

import (
	"fmt"
	"testing"

	"github.com/luca-patrignani/procomm/comm"
)

func TestHttpsAllGather(t *testing.T) {
	n := 4
	listeners, addresses := CreateListeners(n)
	certs, err := SelfSignedMesh(addresses)
	if err != nil {
		t.Fatal(err)
	}
	fatal := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			peer := NewPeer(i, addresses, listeners[i], certs[i]...)
			defer func() {
				fatal <- peer.Close()
			}()
			recv, err := comm.AllGather(comm.New(peer), []int32{int32(10 * i)})
			if err != nil {
				fatal <- err
				return
			}
			for j := 0; j < n; j++ {
				if recv[j] != int32(10*j) {
					fatal <- fmt.Errorf("expected %d, actual %d", 10*j, recv[j])
					return
				}
			}
		}()
	}
	for i := 0; i < n; i++ {
		if err := <-fatal; err != nil {
			t.Fatal(err)
		}
	}
}

func TestSelfSignedMeshCoversEveryRank(t *testing.T) {
	addresses := map[int]string{0: "127.0.0.1:9001", 1: "localhost:9002"}
	certs, err := SelfSignedMesh(addresses)
	if err != nil {
		t.Fatal(err)
	}
	for rank := range addresses {
		if len(certs[rank]) != 2 {
			t.Fatalf("rank %d has %d options", rank, len(certs[rank]))
		}
		p := &Peer{}
		for _, opt := range certs[rank] {
			opt(p)
		}
		if len(p.tlsConfig.Certificates) != 1 || p.tlsConfig.RootCAs == nil {
			t.Fatalf("rank %d is not configured for TLS", rank)
		}
	}
	if _, err := SelfSignedMesh(map[int]string{0: "no port"}); err == nil {
		t.Fatal("expected an error for an address without port")
	}
}
