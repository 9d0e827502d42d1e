package connectclient

import (
	"context"
	"net"
	"testing"
	"time"
)

func TestDialFirstSuccessPrefersReachableAddr(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			_ = conn.Close()
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	addrs := []string{"127.0.0.1:1", ln.Addr().String()}
	conn, err := dialFirstSuccess(ctx, addrs)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if conn.RemoteAddr().String() != ln.Addr().String() {
		t.Fatalf("connected to %s, want %s", conn.RemoteAddr(), ln.Addr())
	}
}

func TestDialFirstSuccessAllFail(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := dialFirstSuccess(ctx, []string{"127.0.0.1:1", "127.0.0.1:2"}); err == nil {
		t.Fatal("expected failure when every address is unreachable")
	}
}
