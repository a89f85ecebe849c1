package tonapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

const (
	depositRaw = "0:8a3c1d4f2b1e9c7a6d5f4e3b2a1908f7e6d5c4b3a29180f7e6d5c4b3a2918001"
	senderRaw  = "0:1111111111111111111111111111111111111111111111111111111111111111"
)

func TestIncomingTransfers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("expected bearer header, got %q", got)
		}
		if r.URL.Query().Get("limit") != "20" {
			t.Errorf("expected limit=20, got %s", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"events":[
			{"event_id":"e1","timestamp":1700000000,"actions":[
				{"type":"TonTransfer","status":"ok","TonTransfer":{"sender":{"address":"` + senderRaw + `"},"recipient":{"address":"` + depositRaw + `"},"amount":5000123456,"comment":"giftcase"}}
			]},
			{"event_id":"e2","timestamp":1700000001,"actions":[
				{"type":"TonTransfer","status":"ok","TonTransfer":{"sender":{"address":"` + depositRaw + `"},"recipient":{"address":"` + senderRaw + `"},"amount":1,"comment":"out"}}
			]},
			{"event_id":"e3","timestamp":1700000002,"is_scam":true,"actions":[
				{"type":"TonTransfer","status":"ok","TonTransfer":{"sender":{"address":"` + senderRaw + `"},"recipient":{"address":"` + depositRaw + `"},"amount":7,"comment":"giftcase"}}
			]},
			{"event_id":"e4","timestamp":1700000003,"actions":[
				{"type":"TonTransfer","status":"failed","TonTransfer":{"sender":{"address":"` + senderRaw + `"},"recipient":{"address":"` + depositRaw + `"},"amount":8,"comment":"giftcase"}}
			]}
		]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret")
	c.minDelay = 0

	transfers, err := c.IncomingTransfers(context.Background(), depositRaw, 20)
	if err != nil {
		t.Fatalf("incoming transfers: %v", err)
	}
	if len(transfers) != 1 {
		t.Fatalf("expected 1 inbound transfer, got %d: %+v", len(transfers), transfers)
	}
	got := transfers[0]
	if got.EventID != "e1" || got.Amount != 5000123456 || got.Comment != "giftcase" || got.Timestamp != 1700000000 {
		t.Fatalf("unexpected transfer %+v", got)
	}
}

func TestAPIErrorKeepsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	c.minDelay = 0

	_, err := c.GetEvents(context.Background(), depositRaw, 10)
	if !errors.Is(err, ErrAPI) {
		t.Fatalf("expected ErrAPI, got %v", err)
	}
}

func TestNormalizeAddressRoundTrip(t *testing.T) {
	friendly := RawToFriendly(depositRaw)
	if friendly == depositRaw {
		t.Fatal("expected friendly form to differ from raw")
	}
	if got := NormalizeAddress(friendly); got != depositRaw {
		t.Fatalf("expected %s, got %s", depositRaw, got)
	}
	if got := NormalizeAddress("not-an-address"); got != "not-an-address" {
		t.Fatalf("expected unparseable input back, got %s", got)
	}
	if ValidAddress("not-an-address") {
		t.Fatal("expected invalid address")
	}
}
