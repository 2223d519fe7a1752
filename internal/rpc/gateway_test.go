package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"go.uber.org/zap"
)

// newTestGateway spins up an httptest daemon answering every call via fn and
// returns a gateway pointed at it.
func newTestGateway(t *testing.T, fn http.HandlerFunc) *Gateway {
	t.Helper()
	srv := httptest.NewServer(fn)
	t.Cleanup(srv.Close)
	return NewGateway(Config{Endpoint: srv.URL}, zap.NewNop(), nil)
}

func TestGatewayCallSuccess(t *testing.T) {
	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("got method %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("got Content-Type %q", ct)
		}

		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.JSONRPC != "2.0" {
			t.Errorf("jsonrpc = %q, want 2.0", req.JSONRPC)
		}
		if req.Method != MethodGetBackupPlan {
			t.Errorf("method = %q", req.Method)
		}
		if req.ID == 0 {
			t.Error("request id missing")
		}

		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%d,"result":{"plan_id":"p1"}}`, req.ID)
	})

	raw, err := gw.Call(context.Background(), MethodGetBackupPlan, map[string]any{"plan_id": "p1"})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}

	var result struct {
		PlanID string `json:"plan_id"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.PlanID != "p1" {
		t.Fatalf("plan_id = %q, want p1", result.PlanID)
	}
}

func TestGatewayCallNilParamsBecomesEmptyObject(t *testing.T) {
	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Params json.RawMessage `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if string(req.Params) != "{}" {
			t.Errorf("params = %s, want {}", req.Params)
		}
		fmt.Fprint(w, `{"jsonrpc":"2.0","id":1,"result":{"plan_ids":[]}}`)
	})

	if _, err := gw.Call(context.Background(), MethodListBackupPlan, nil); err != nil {
		t.Fatalf("Call: %v", err)
	}
}

func TestGatewayCallDaemonError(t *testing.T) {
	gw := newTestGateway(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"jsonrpc":"2.0","id":1,"error":{"code":1004,"message":"plan p9 not found"}}`)
	})

	_, err := gw.Call(context.Background(), MethodGetBackupPlan, map[string]any{"plan_id": "p9"})
	if err == nil {
		t.Fatal("expected an error")
	}

	var callErr *CallError
	if !errors.As(err, &callErr) {
		t.Fatalf("error type %T, want *CallError", err)
	}
	if callErr.Code != CodeNotFound {
		t.Fatalf("code = %d, want %d", callErr.Code, CodeNotFound)
	}
	if !callErr.NotFound() {
		t.Fatal("NotFound() = false for code 1004")
	}
	if callErr.Method != MethodGetBackupPlan {
		t.Fatalf("method not stamped, got %q", callErr.Method)
	}
}

func TestGatewayCallHTTPFailure(t *testing.T) {
	gw := newTestGateway(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	})

	_, err := gw.Call(context.Background(), MethodListBackupPlan, nil)
	if err == nil {
		t.Fatal("expected an error on non-200 status")
	}
	var callErr *CallError
	if errors.As(err, &callErr) {
		t.Fatal("transport failure must not masquerade as a daemon CallError")
	}
}

func TestGatewayCallUnreachable(t *testing.T) {
	gw := NewGateway(Config{Endpoint: "http://127.0.0.1:1/rpc"}, zap.NewNop(), nil)
	if _, err := gw.Call(context.Background(), MethodListBackupPlan, nil); err == nil {
		t.Fatal("expected an error when the daemon is unreachable")
	}
}

func TestGatewayRequestIDsIncrease(t *testing.T) {
	var mu sync.Mutex
	var ids []uint64
	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		mu.Lock()
		ids = append(ids, req.ID)
		mu.Unlock()
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%d,"result":{}}`, req.ID)
	})

	for i := 0; i < 3; i++ {
		if _, err := gw.Call(context.Background(), MethodStatisticsSummary, nil); err != nil {
			t.Fatal(err)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if len(ids) != 3 {
		t.Fatalf("saw %d requests, want 3", len(ids))
	}
	for i := 1; i < len(ids); i++ {
		if ids[i] <= ids[i-1] {
			t.Fatalf("ids not increasing: %v", ids)
		}
	}
}

func TestMutationOK(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    bool
		wantErr bool
	}{
		{"success", `{"result":"success"}`, true, false},
		{"ignored", `{"result":"ignored"}`, false, false},
		{"unknown verdict", `{"result":"maybe"}`, false, false},
		{"missing field", `{}`, false, false},
		{"garbage", `not json`, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MutationOK(json.RawMessage(tt.raw))
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Fatalf("MutationOK() = %v, want %v", got, tt.want)
			}
		})
	}
}
