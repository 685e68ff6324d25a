package server

import (
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MrWong99/eclectech/internal/feature"
	"github.com/MrWong99/eclectech/internal/health"
	"github.com/MrWong99/eclectech/internal/pagehost"
	"github.com/MrWong99/eclectech/internal/rewrite"
	"github.com/MrWong99/eclectech/pkg/store/memstore"
)

type echoRewriter struct{}

func (echoRewriter) Rewrite(_ context.Context, base string, _ feature.Set) (string, error) {
	return base, nil
}

func TestServe_ShutdownClosesPages(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	h := health.New()
	s := New(echoRewriter{}, rewrite.NewCache(memstore.New()), WithHealth(h))

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- s.serve(ctx, ln, TLS{}) }()

	base := "http://" + ln.Addr().String()
	dctx, dcancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer dcancel()
	conn, _, err := websocket.Dial(dctx, "ws://"+ln.Addr().String()+"/ws", nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.CloseNow()
	if err := wsjson.Write(dctx, conn, pagehost.Inbound{Type: pagehost.TypeHello, Markup: "<p>x</p>"}); err != nil {
		t.Fatal(err)
	}

	resp, err := http.Get(base + "/readyz")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("readyz = %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-served:
		if err != nil {
			t.Fatalf("serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return")
	}

	// The page connection was ended by the server.
	rctx, rcancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer rcancel()
	for {
		if _, _, err := conn.Read(rctx); err != nil {
			if rctx.Err() != nil {
				t.Fatal("page connection still open after shutdown")
			}
			break
		}
	}
}
