package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/glamhq/glam/libs/config"
	"github.com/glamhq/glam/services/payment-service/internal/sadad"
)

func main() {
	if err := config.Bootstrap(); err != nil {
		fatal(err.Error())
	}

	var (
		baseURL = flag.String("base-url", config.String("BASE_URL", "http://localhost:8080"), "gateway base url")
		orderID = flag.String("order-id", config.String("ORDER_ID", ""), "transaction id used as ORDER_ID at initiation")
		status  = flag.String("status", config.String("SADAD_STATUS", sadad.StatusSuccess), "TXN_SUCCESS or TXN_FAILURE")
		amount  = flag.String("amount", config.String("TXN_AMOUNT", ""), "amount as sent at initiation, e.g. 150.00")
		message = flag.String("message", config.String("RESPMSG", "Txn Success"), "gateway response message")
		key     = flag.String("key", config.String("SADAD_MERCHANT_KEY", ""), "merchant secret key")
	)
	flag.Parse()

	if strings.TrimSpace(*key) == "" {
		fatal("SADAD_MERCHANT_KEY is required")
	}
	if strings.TrimSpace(*orderID) == "" {
		fatal("ORDER_ID is required")
	}
	if strings.TrimSpace(*amount) == "" {
		fatal("TXN_AMOUNT is required")
	}

	values := map[string]string{
		"ORDERID":            *orderID,
		"STATUS":             *status,
		"RESPMSG":            *message,
		"TXNAMOUNT":          *amount,
		"transaction_number": fmt.Sprintf("SIM%d", time.Now().UTC().UnixNano()),
	}
	sum, err := sadad.Sign(values, *key)
	if err != nil {
		fatal(err.Error())
	}

	form := url.Values{}
	for k, v := range values {
		form.Set(k, v)
	}
	form.Set(sadad.ChecksumField, sum)

	client := &http.Client{
		Timeout: 10 * time.Second,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	resp, err := client.PostForm(strings.TrimRight(*baseURL, "/")+"/api/v1/payments/sadad/callback", form)
	if err != nil {
		fatal(err.Error())
	}
	defer resp.Body.Close()

	fmt.Printf("status=%d\n", resp.StatusCode)
	if loc := resp.Header.Get("Location"); loc != "" {
		fmt.Printf("location=%s\n", loc)
		return
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil && !errors.Is(err, io.EOF) {
		fatal(err.Error())
	}
	if len(body) > 0 {
		fmt.Println(strings.TrimSpace(string(body)))
	}
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(2)
}
