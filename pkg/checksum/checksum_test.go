package checksum

import (
	"strings"
	"testing"
)

const testKey = "merchant-key-0123"

func TestSign_IsDeterministic(t *testing.T) {
	payload := []byte(`{"mid":"MID123","orderId":"ORD1"}`)

	first := Sign(payload, testKey)
	second := Sign(payload, testKey)
	if first != second {
		t.Fatalf("expected identical signatures, got %q and %q", first, second)
	}
	if len(first) != 64 {
		t.Fatalf("expected 64 hex characters, got %d", len(first))
	}
	if Sign(payload, "other-key") == first {
		t.Fatal("expected a different key to change the signature")
	}
}

func TestVerify(t *testing.T) {
	payload := []byte(`{"mid":"MID123","orderId":"ORD1"}`)
	signature := Sign(payload, testKey)

	tests := []struct {
		name      string
		payload   []byte
		signature string
		key       string
		want      bool
	}{
		{name: "matching", payload: payload, signature: signature, key: testKey, want: true},
		{name: "uppercase hex", payload: payload, signature: strings.ToUpper(signature), key: testKey, want: true},
		{name: "tampered payload", payload: []byte(`{"mid":"MID123","orderId":"ORD2"}`), signature: signature, key: testKey, want: false},
		{name: "wrong key", payload: payload, signature: signature, key: "wrong", want: false},
		{name: "empty signature", payload: payload, signature: "", key: testKey, want: false},
		{name: "not hex", payload: payload, signature: "zz" + signature[2:], key: testKey, want: false},
		{name: "truncated", payload: payload, signature: signature[:32], key: testKey, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Verify(tt.payload, tt.signature, tt.key); got != tt.want {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestCanonicalJSON_KeepsFieldOrderAndURLs(t *testing.T) {
	body := struct {
		Mid         string `json:"mid"`
		CallbackURL string `json:"callbackUrl"`
		Amount      string `json:"amount"`
	}{
		Mid:         "MID123",
		CallbackURL: "https://app.example.com/payment/verify?a=1&b=2",
		Amount:      "499.00",
	}

	got, err := CanonicalJSON(body)
	if err != nil {
		t.Fatalf("CanonicalJSON returned error: %v", err)
	}
	want := `{"mid":"MID123","callbackUrl":"https://app.example.com/payment/verify?a=1&b=2","amount":"499.00"}`
	if string(got) != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestCanonicalParams_SortsAndExcludes(t *testing.T) {
	params := map[string]string{
		"TXNID":        "T1",
		"ORDERID":      "ORD1",
		"STATUS":       "TXN_SUCCESS",
		"BANKTXNID":    "null",
		"CHECKSUMHASH": "abc",
		"plan":         "king",
	}

	got := string(CanonicalParams(params, "CHECKSUMHASH", "plan"))
	want := "|ORD1|TXN_SUCCESS|T1"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}
