package payment

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRazorpayCreateOrder(t *testing.T) {
	var got orderRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "rzp_key" || pass != "secret" || r.URL.Path != "/v1/orders" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"order_9","entity":"order","amount":49950,"currency":"INR","receipt":"exam_7","status":"created"}`))
	}))
	defer srv.Close()

	g := NewRazorpay(RazorpayConfig{KeyID: "rzp_key", KeySecret: "secret", BaseURL: srv.URL + "/v1"})
	order, err := g.CreateOrder(context.Background(), 49950, "INR", "exam_7")
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if order.ID != "order_9" || order.Status != "created" {
		t.Fatalf("unexpected order %+v", order)
	}
	if got.Amount != 49950 || got.Receipt != "exam_7" || got.Currency != "INR" {
		t.Fatalf("unexpected request %+v", got)
	}
}

func TestRazorpayCreateOrderGatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	g := NewRazorpay(RazorpayConfig{KeyID: "k", KeySecret: "s", BaseURL: srv.URL})
	if _, err := g.CreateOrder(context.Background(), 100, "INR", "r"); !errors.Is(err, ErrGatewayFailed) {
		t.Fatalf("expected ErrGatewayFailed, got %v", err)
	}
}

func TestRazorpayVerifySignature(t *testing.T) {
	g := NewRazorpay(RazorpayConfig{KeyID: "k", KeySecret: "secret"})
	good := hex.EncodeToString(sign("secret", "order_1", "pay_1"))

	tests := []struct {
		name      string
		orderID   string
		paymentID string
		signature string
		want      bool
	}{
		{name: "valid", orderID: "order_1", paymentID: "pay_1", signature: good, want: true},
		{name: "swapped ids", orderID: "pay_1", paymentID: "order_1", signature: good},
		{name: "other payment", orderID: "order_1", paymentID: "pay_2", signature: good},
		{name: "not hex", orderID: "order_1", paymentID: "pay_1", signature: "zz"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := g.VerifySignature(tc.orderID, tc.paymentID, tc.signature); got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestNewRazorpayRequiresCredentials(t *testing.T) {
	if NewRazorpay(RazorpayConfig{KeyID: "k"}) != nil {
		t.Fatalf("expected nil gateway without secret")
	}
}
