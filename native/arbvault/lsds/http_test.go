package lsds

import (
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"amplifier/core/types"
)

func TestParseKind(t *testing.T) {
	cases := map[string]Kind{
		"eris":   KindEris,
		"Steak":  KindSteak,
		" prism": KindPrism,
	}
	for in, want := range cases {
		got, err := ParseKind(in)
		if err != nil {
			t.Fatalf("ParseKind(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseKind(%q) = %v, want %v", in, got, want)
		}
	}
	if _, err := ParseKind("osmosis"); err == nil {
		t.Fatal("unknown kind should error")
	}
}

func TestHTTPClientQueries(t *testing.T) {
	user := types.Address{0x01}
	mux := http.NewServeMux()
	mux.HandleFunc("/exchange_rate", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"exchange_rate":"1.25"}`))
	})
	mux.HandleFunc("/withdrawable/"+user.Hex(), func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"amount":"450"}`))
	})
	mux.HandleFunc("/pending_batches/"+user.Hex(), func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"batches":[
			{"id":1,"shares":"100","rate_at_request":"1.2","reconciled":false},
			{"id":2,"shares":"50","rate_at_request":"1.1","reconciled":true,"token_amount":"55"}
		]}`))
	})
	mux.HandleFunc("/unbond_requests/"+user.Hex(), func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"ids":[7,9]}`))
	})
	mux.HandleFunc("/unbond_request/7", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"released":true,"amount":"33"}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := NewHTTPClient(server.URL + "/")

	rate, err := client.ExchangeRate()
	if err != nil {
		t.Fatalf("exchange rate: %v", err)
	}
	if rate.String() != "1.25" {
		t.Fatalf("rate = %s, want 1.25", rate)
	}

	withdrawable, err := client.Withdrawable(user)
	if err != nil {
		t.Fatalf("withdrawable: %v", err)
	}
	if withdrawable.Cmp(big.NewInt(450)) != 0 {
		t.Fatalf("withdrawable = %s, want 450", withdrawable)
	}

	batches, err := client.PendingBatches(user)
	if err != nil {
		t.Fatalf("pending batches: %v", err)
	}
	if len(batches) != 2 {
		t.Fatalf("batches = %d, want 2", len(batches))
	}
	if batches[0].Reconciled || batches[0].Shares.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("unexpected first batch: %+v", batches[0])
	}
	if !batches[1].Reconciled || batches[1].TokenAmount.Cmp(big.NewInt(55)) != 0 {
		t.Fatalf("unexpected second batch: %+v", batches[1])
	}

	ids, err := client.UnbondRequestIDs(user)
	if err != nil {
		t.Fatalf("request ids: %v", err)
	}
	if len(ids) != 2 || ids[0] != 7 {
		t.Fatalf("ids = %v, want [7 9]", ids)
	}

	status, err := client.UnbondRequest(7)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if !status.Released || status.Amount.Cmp(big.NewInt(33)) != 0 {
		t.Fatalf("status = %+v", status)
	}
}

func TestHTTPClientSurfacesStatusErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	if _, err := NewHTTPClient(server.URL).ExchangeRate(); err == nil {
		t.Fatal("non-200 response should error")
	}
}
