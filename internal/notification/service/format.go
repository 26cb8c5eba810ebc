package service

import (
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/shopspring/decimal"
)

var berlin = loadLocation("Europe/Berlin")

func loadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// formatMoney renders minor units the German way, e.g. "1.234,50 EUR".
func formatMoney(minor int64, currency string) string {
	s := decimal.New(minor, -2).StringFixed(2)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	intPart, frac, _ := strings.Cut(s, ".")
	var grouped strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			grouped.WriteByte('.')
		}
		grouped.WriteRune(r)
	}

	out := grouped.String() + "," + frac
	if neg {
		out = "-" + out
	}
	if currency = strings.ToUpper(strings.TrimSpace(currency)); currency != "" {
		out += " " + currency
	}
	return out
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.In(berlin).Format("02.01.2006")
}

// formatRate turns "0.2" into "20%".
func formatRate(rate string) string {
	d, err := decimal.NewFromString(strings.TrimSpace(rate))
	if err != nil {
		return rate
	}
	return d.Mul(decimal.NewFromInt(100)).String() + "%"
}
