package mcp

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Currencies with no sub-units. The API reports amount_spent and balance as
// integers in the smallest currency unit, which is cents for most currencies
// but the base unit for these.
var zeroDecimalCurrencies = map[string]bool{
	"BIF": true, "CLP": true, "DJF": true, "GNF": true,
	"JPY": true, "KMF": true, "KRW": true, "MGA": true,
	"PYG": true, "RWF": true, "UGX": true, "VND": true,
	"VUV": true, "XAF": true, "XOF": true, "XPF": true,
}

// centsToCurrency converts an upstream monetary value to a currency-unit
// string: "12345" in USD becomes "123.45", JPY values pass through.
func centsToCurrency(amount any, currency string) string {
	var cents int64
	switch v := amount.(type) {
	case string:
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return v
		}
		cents = parsed
	case float64:
		cents = int64(v)
	default:
		return fmt.Sprintf("%v", amount)
	}

	if zeroDecimalCurrencies[strings.ToUpper(currency)] {
		return strconv.FormatInt(cents, 10)
	}
	return fmt.Sprintf("%.2f", float64(cents)/100)
}

// normalizeMonetaryFields rewrites amount_spent and balance in place.
func normalizeMonetaryFields(account map[string]any) {
	currency, _ := account["currency"].(string)
	if currency == "" {
		currency = "USD"
	}
	for _, field := range []string{"amount_spent", "balance"} {
		if value, ok := account[field]; ok {
			account[field] = centsToCurrency(value, currency)
		}
	}
}

// normalizeAccount converts the monetary fields of a single account
// response. Responses that don't parse are passed through untouched.
func normalizeAccount(raw []byte) []byte {
	var account map[string]any
	if err := json.Unmarshal(raw, &account); err != nil {
		return raw
	}
	normalizeMonetaryFields(account)

	out, err := json.MarshalIndent(account, "", "  ")
	if err != nil {
		return raw
	}
	return out
}

// normalizeAccountList converts the monetary fields of every account in a
// paged listing response.
func normalizeAccountList(raw []byte) []byte {
	var page map[string]any
	if err := json.Unmarshal(raw, &page); err != nil {
		return raw
	}

	accounts, ok := page["data"].([]any)
	if !ok {
		return raw
	}
	for _, entry := range accounts {
		if account, ok := entry.(map[string]any); ok {
			normalizeMonetaryFields(account)
		}
	}

	out, err := json.MarshalIndent(page, "", "  ")
	if err != nil {
		return raw
	}
	return out
}
