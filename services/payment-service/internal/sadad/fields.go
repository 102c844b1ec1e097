package sadad

import (
	"errors"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Request field names expected by the web checkout.
const (
	FieldMerchantID  = "merchant_id"
	FieldOrderID     = "ORDER_ID"
	FieldWebsite     = "WEBSITE"
	FieldAmount      = "TXN_AMOUNT"
	FieldCustomerID  = "CUST_ID"
	FieldEmail       = "EMAIL"
	FieldMobile      = "MOBILE_NO"
	FieldCallbackURL = "CALLBACK_URL"
	FieldTxnDate     = "txnDate"
	FieldLanguage    = "SADAD_WEBCHECKOUT_PAGE_LANGUAGE"
)

const txnDateLayout = "2006-01-02 15:04:05"

type Config struct {
	MerchantID  string
	MerchantKey string
	Website     string
	CallbackURL string
	// GatewayURL is where the signed form is posted by a browser.
	GatewayURL string
	// SessionURL, when set, accepts the signed form server-to-server and answers with a redirect.
	SessionURL string
	Language   string
}

func (c Config) Validate() error {
	var missing []string
	if c.MerchantID == "" {
		missing = append(missing, "merchant id")
	}
	if c.Website == "" {
		missing = append(missing, "website")
	}
	if c.CallbackURL == "" {
		missing = append(missing, "callback url")
	}
	if c.GatewayURL == "" {
		missing = append(missing, "gateway url")
	}
	if len(missing) > 0 {
		return errors.New("sadad: missing " + strings.Join(missing, ", "))
	}
	switch len(c.MerchantKey) {
	case 16, 24, 32:
		return nil
	default:
		return ErrInvalidKey
	}
}

type Order struct {
	OrderID    string
	Amount     float64
	CustomerID string
	Email      string
	Mobile     string
	Date       time.Time
}

// Fields builds the unsigned checkout field set for o.
func (c Config) Fields(o Order) map[string]string {
	lang := c.Language
	if lang == "" {
		lang = "ENG"
	}
	return map[string]string{
		FieldMerchantID:  c.MerchantID,
		FieldOrderID:     o.OrderID,
		FieldWebsite:     c.Website,
		FieldAmount:      FormatAmount(o.Amount),
		FieldCustomerID:  o.CustomerID,
		FieldEmail:       o.Email,
		FieldMobile:      o.Mobile,
		FieldCallbackURL: c.CallbackURL,
		FieldTxnDate:     o.Date.Format(txnDateLayout),
		FieldLanguage:    lang,
	}
}

// SignedFields returns Fields plus the checksum field.
func (c Config) SignedFields(o Order) (map[string]string, string, error) {
	fields := c.Fields(o)
	sum, err := Sign(fields, c.MerchantKey)
	if err != nil {
		return nil, "", err
	}
	fields[ChecksumField] = sum
	return fields, sum, nil
}

func FormatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// Callback statuses.
const (
	StatusSuccess = "TXN_SUCCESS"
	StatusFailure = "TXN_FAILURE"
)

type Callback struct {
	OrderID           string
	Status            string
	Message           string
	TransactionNumber string
	Amount            string
	Checksum          string
	Values            map[string]string
}

// ParseCallback flattens the posted form, keeping the first value of each field.
func ParseCallback(form url.Values) Callback {
	values := make(map[string]string, len(form))
	for k, v := range form {
		if len(v) > 0 {
			values[k] = v[0]
		}
	}
	return Callback{
		OrderID:           values["ORDERID"],
		Status:            values["STATUS"],
		Message:           values["RESPMSG"],
		TransactionNumber: values["transaction_number"],
		Amount:            values["TXNAMOUNT"],
		Checksum:          values[ChecksumField],
		Values:            values,
	}
}

// Verify checks the callback checksum under key.
func (cb Callback) Verify(key string) error {
	if cb.Checksum == "" {
		return ErrInvalidChecksum
	}
	return Verify(cb.Values, key, cb.Checksum)
}

// EventID identifies a callback delivery for deduplication.
func (cb Callback) EventID() string {
	return cb.OrderID + ":" + cb.TransactionNumber + ":" + cb.Status
}
