package paytmclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/transfa/payment-service/pkg/checksum"
)

const testKey = "test-merchant-key"

type recordedAttempt struct {
	host    string
	path    string
	query   string
	website string
	body    json.RawMessage
	sig     string
}

type gatewayStub struct {
	mu       sync.Mutex
	attempts []recordedAttempt
	respond  func(attempt int, website string) (int, string)
}

func (g *gatewayStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)
	var req struct {
		Head struct {
			Signature string `json:"signature"`
		} `json:"head"`
		Body json.RawMessage `json:"body"`
	}
	_ = json.Unmarshal(raw, &req)
	var body OrderBody
	_ = json.Unmarshal(req.Body, &body)

	g.mu.Lock()
	g.attempts = append(g.attempts, recordedAttempt{
		host:    r.Host,
		path:    r.URL.Path,
		query:   r.URL.RawQuery,
		website: body.WebsiteName,
		body:    req.Body,
		sig:     req.Head.Signature,
	})
	n := len(g.attempts)
	g.mu.Unlock()

	status, payload := g.respond(n, body.WebsiteName)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(payload))
}

func resultJSON(status, code, msg, token string) string {
	return `{"head":{"responseTimestamp":"1"},"body":{"resultInfo":{"resultStatus":"` + status + `","resultCode":"` + code + `","resultMsg":"` + msg + `"},"txnToken":"` + token + `"}}`
}

func newTestClient(t *testing.T, stub *gatewayStub, website, mid string) *Client {
	t.Helper()
	server := httptest.NewServer(stub)
	t.Cleanup(server.Close)
	return NewClient(Config{
		MerchantID:   mid,
		MerchantKey:  testKey,
		Website:      website,
		CallbackURL:  "https://app.example.com/payment/verify",
		ChannelID:    "WEB",
		IndustryType: "Retail",
		BaseURL:      server.URL,
		Timeout:      2 * time.Second,
	})
}

func proRequest() InitiateRequest {
	return InitiateRequest{
		OrderID:    "ORD1700000000000ABCDEF123456",
		Amount:     decimal.RequireFromString("499"),
		Currency:   "INR",
		CustomerID: "user_123",
	}
}

func TestInitiate_SuccessOnFirstAttempt(t *testing.T) {
	stub := &gatewayStub{respond: func(int, string) (int, string) {
		return http.StatusOK, resultJSON("S", "0000", "Success", "tok_1")
	}}
	client := newTestClient(t, stub, "WEBSTAGING", "MIDstage01")

	res, err := client.Initiate(context.Background(), proRequest())
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if res.TxnToken != "tok_1" || res.Attempts != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(stub.attempts) != 1 {
		t.Fatalf("expected 1 attempt, got %d", len(stub.attempts))
	}

	got := stub.attempts[0]
	if got.path != initiatePath {
		t.Fatalf("unexpected path %q", got.path)
	}
	if got.query != "mid=MIDstage01&orderId=ORD1700000000000ABCDEF123456" {
		t.Fatalf("unexpected query %q", got.query)
	}
	if !checksum.Verify(got.body, got.sig, testKey) {
		t.Fatal("expected head.signature to verify over the exact body bytes")
	}

	var body OrderBody
	if err := json.Unmarshal(got.body, &body); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if body.TxnAmount.Value != "499.00" || body.TxnAmount.Currency != "INR" {
		t.Fatalf("expected amount 499.00 INR, got %+v", body.TxnAmount)
	}
	if body.UserInfo.CustID != "user_123" || body.ChannelID != "WEB" || body.IndustryTypeID != "Retail" {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestInitiate_FallbackPolicy(t *testing.T) {
	tests := []struct {
		name         string
		website      string
		firstCode    string
		wantAttempts int
		wantWebsites []string
		wantErr      error
	}{
		{
			name:         "staging mismatch retries once with DEFAULT",
			website:      "WEBSTAGING",
			firstCode:    "501",
			wantAttempts: 2,
			wantWebsites: []string{"WEBSTAGING", "DEFAULT"},
		},
		{
			name:         "staging other failure does not retry",
			website:      "WEBSTAGING",
			firstCode:    "1001",
			wantAttempts: 1,
			wantWebsites: []string{"WEBSTAGING"},
			wantErr:      ErrGatewayRejected,
		},
		{
			name:         "non-staging mismatch does not retry",
			website:      "WEBPROD",
			firstCode:    "501",
			wantAttempts: 1,
			wantWebsites: []string{"WEBPROD"},
			wantErr:      ErrGatewayRejected,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &gatewayStub{respond: func(n int, website string) (int, string) {
				if n == 1 {
					return http.StatusOK, resultJSON("F", tt.firstCode, "first attempt", "")
				}
				return http.StatusOK, resultJSON("S", "0000", "Success", "tok_fallback")
			}}
			client := newTestClient(t, stub, tt.website, "MID123")

			res, err := client.Initiate(context.Background(), proRequest())
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
			} else if err != nil {
				t.Fatalf("expected nil error, got %v", err)
			} else if res.Website != "DEFAULT" || res.Attempts != 2 {
				t.Fatalf("unexpected result %+v", res)
			}

			if len(stub.attempts) != tt.wantAttempts {
				t.Fatalf("expected %d attempts, got %d", tt.wantAttempts, len(stub.attempts))
			}
			for i, want := range tt.wantWebsites {
				if stub.attempts[i].website != want {
					t.Fatalf("attempt %d: expected website %s, got %s", i+1, want, stub.attempts[i].website)
				}
				if stub.attempts[i].host != stub.attempts[0].host {
					t.Fatalf("attempt %d went to host %s, expected %s", i+1, stub.attempts[i].host, stub.attempts[0].host)
				}
			}
		})
	}
}

func TestInitiate_FallbackFailureIsNotRetriedAgain(t *testing.T) {
	stub := &gatewayStub{respond: func(int, string) (int, string) {
		return http.StatusOK, resultJSON("F", "501", "System Error", "")
	}}
	client := newTestClient(t, stub, "WEBSTAGING", "MID123")

	_, err := client.Initiate(context.Background(), proRequest())
	var rejected *RejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("expected RejectedError, got %v", err)
	}
	if rejected.Code != "501" || rejected.Attempts != 2 {
		t.Fatalf("unexpected rejection %+v", rejected)
	}
	if len(stub.attempts) != 2 {
		t.Fatalf("expected exactly 2 attempts, got %d", len(stub.attempts))
	}
}

func TestInitiate_SuccessStatusWithoutTokenIsRejected(t *testing.T) {
	stub := &gatewayStub{respond: func(int, string) (int, string) {
		return http.StatusOK, resultJSON("S", "0000", "Success", "")
	}}
	client := newTestClient(t, stub, "DEFAULT", "MID123")

	_, err := client.Initiate(context.Background(), proRequest())
	if !errors.Is(err, ErrGatewayRejected) {
		t.Fatalf("expected ErrGatewayRejected, got %v", err)
	}
}

func TestInitiate_MalformedResponseIsParseError(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{name: "not json", payload: "<html>oops</html>"},
		{name: "missing body", payload: `{"head":{}}`},
		{name: "missing result info", payload: `{"body":{"txnToken":"t"}}`},
		{name: "empty status", payload: `{"body":{"resultInfo":{"resultCode":"0000"},"txnToken":"t"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &gatewayStub{respond: func(int, string) (int, string) {
				return http.StatusOK, tt.payload
			}}
			client := newTestClient(t, stub, "WEBSTAGING", "MID123")

			_, err := client.Initiate(context.Background(), proRequest())
			var parseErr *ParseError
			if !errors.As(err, &parseErr) {
				t.Fatalf("expected ParseError, got %v", err)
			}
			if !errors.Is(err, ErrGatewayRejected) {
				t.Fatal("expected ParseError to classify as ErrGatewayRejected")
			}
			if len(stub.attempts) != 1 {
				t.Fatalf("expected 1 attempt, got %d", len(stub.attempts))
			}
		})
	}
}

func TestInitiate_ServerErrorWithoutBodyIsUnavailable(t *testing.T) {
	stub := &gatewayStub{respond: func(int, string) (int, string) {
		return http.StatusBadGateway, "bad gateway"
	}}
	client := newTestClient(t, stub, "WEBSTAGING", "MID123")

	_, err := client.Initiate(context.Background(), proRequest())
	if !errors.Is(err, ErrGatewayUnavailable) {
		t.Fatalf("expected ErrGatewayUnavailable, got %v", err)
	}
}

func TestInitiate_TimeoutIsUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer server.Close()

	client := NewClient(Config{
		MerchantID:  "MID123",
		MerchantKey: testKey,
		Website:     "WEBSTAGING",
		BaseURL:     server.URL,
		Timeout:     50 * time.Millisecond,
	})

	_, err := client.Initiate(context.Background(), proRequest())
	if !errors.Is(err, ErrGatewayUnavailable) {
		t.Fatalf("expected ErrGatewayUnavailable, got %v", err)
	}
	if errors.Is(err, ErrGatewayRejected) {
		t.Fatal("timeout must not classify as a rejection")
	}
}

func TestHostFor(t *testing.T) {
	tests := []struct {
		website string
		mid     string
		want    string
	}{
		{website: "WEBSTAGING", mid: "LIVE123", want: StagingHost},
		{website: "DEFAULT", mid: "MyStageMID", want: StagingHost},
		{website: "DEFAULT", mid: "LIVE123", want: ProductionHost},
	}
	for _, tt := range tests {
		if got := HostFor(tt.website, tt.mid); got != tt.want {
			t.Fatalf("HostFor(%q, %q): expected %s, got %s", tt.website, tt.mid, tt.want, got)
		}
	}

	client := NewClient(Config{MerchantID: "LIVE123", Website: "DEFAULT"})
	if client.BaseURL != "https://"+ProductionHost {
		t.Fatalf("unexpected derived base url %s", client.BaseURL)
	}
}
