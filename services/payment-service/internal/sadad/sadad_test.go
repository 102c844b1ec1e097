package sadad

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "0123456789abcdef"

func TestSignVerifyRoundTrip(t *testing.T) {
	values := map[string]string{"ORDER_ID": "o-1", "TXN_AMOUNT": "150.00", "merchant_id": "7001"}

	sum, err := Sign(values, testKey)
	require.NoError(t, err)
	require.NoError(t, Verify(values, testKey, sum))

	values["TXN_AMOUNT"] = "1.00"
	assert.ErrorIs(t, Verify(values, testKey, sum), ErrInvalidChecksum)
}

func TestVerifyRejectsWrongKeyAndGarbage(t *testing.T) {
	values := map[string]string{"ORDER_ID": "o-1"}
	sum, err := Sign(values, testKey)
	require.NoError(t, err)

	assert.Error(t, Verify(values, "fedcba9876543210", sum))
	assert.ErrorIs(t, Verify(values, testKey, "not-base64!"), ErrInvalidChecksum)
	assert.ErrorIs(t, Verify(values, testKey, ""), ErrInvalidChecksum)
	_, err = Sign(values, "short")
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestDigestIsKeyOrderedAndIgnoresChecksum(t *testing.T) {
	a := digest(map[string]string{"b": "2", "a": "1", ChecksumField: "x"}, "SALT")
	b := digest(map[string]string{"a": "1", "b": "2"}, "SALT")
	assert.Equal(t, a, b)
	assert.True(t, strings.HasSuffix(a, "SALT"))
	assert.Len(t, a, 64+saltLength)

	// "null" values sign as empty strings.
	assert.Equal(t, digest(map[string]string{"a": ""}, "SALT"), digest(map[string]string{"a": "null"}, "SALT"))
}

func TestSignedFieldsAndCallback(t *testing.T) {
	cfg := Config{
		MerchantID:  "7001",
		MerchantKey: testKey,
		Website:     "glam.qa",
		CallbackURL: "https://api.glam.qa/api/v1/payments/sadad/callback",
		GatewayURL:  "https://sadadqa.com/webpurchase",
	}
	require.NoError(t, cfg.Validate())

	fields, sum, err := cfg.SignedFields(Order{
		OrderID:    "GLAM-1",
		Amount:     99.5,
		CustomerID: "c-1",
		Date:       time.Date(2024, 6, 12, 10, 30, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, "99.50", fields[FieldAmount])
	assert.Equal(t, "2024-06-12 10:30:00", fields[FieldTxnDate])
	assert.Equal(t, "ENG", fields[FieldLanguage])
	assert.Equal(t, sum, fields[ChecksumField])
	require.NoError(t, Verify(fields, testKey, sum))

	cbValues := map[string]string{"ORDERID": "GLAM-1", "STATUS": StatusSuccess, "RESPMSG": "Txn Success", "transaction_number": "T-9", "TXNAMOUNT": "99.50"}
	cbSum, err := Sign(cbValues, testKey)
	require.NoError(t, err)
	form := url.Values{}
	for k, v := range cbValues {
		form.Set(k, v)
	}
	form.Set(ChecksumField, cbSum)

	cb := ParseCallback(form)
	require.NoError(t, cb.Verify(testKey))
	assert.Equal(t, "GLAM-1", cb.OrderID)
	assert.Equal(t, "GLAM-1:T-9:TXN_SUCCESS", cb.EventID())

	form.Set("STATUS", StatusFailure)
	assert.ErrorIs(t, ParseCallback(form).Verify(testKey), ErrInvalidChecksum)

	assert.Error(t, Config{MerchantKey: testKey}.Validate())
}

func TestCreateCheckout(t *testing.T) {
	var got url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		got = r.PostForm
		switch got.Get(FieldOrderID) {
		case "redirect":
			http.Redirect(w, r, "https://sadadqa.com/pay/abc", http.StatusFound)
		case "json":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"redirect_url":"https://sadadqa.com/pay/def"}`))
		default:
			http.Error(w, "bad merchant", http.StatusBadRequest)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	require.True(t, c.Enabled())

	u, err := c.CreateCheckout(context.Background(), map[string]string{FieldOrderID: "redirect", ChecksumField: "sum"})
	require.NoError(t, err)
	assert.Equal(t, "https://sadadqa.com/pay/abc", u)
	assert.Equal(t, "sum", got.Get(ChecksumField))

	u, err = c.CreateCheckout(context.Background(), map[string]string{FieldOrderID: "json"})
	require.NoError(t, err)
	assert.Equal(t, "https://sadadqa.com/pay/def", u)

	_, err = c.CreateCheckout(context.Background(), map[string]string{FieldOrderID: "other"})
	assert.ErrorContains(t, err, "status 400")

	assert.False(t, NewClient("", 0).Enabled())
}
