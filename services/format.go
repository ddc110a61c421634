package services

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// DateKeyLayout is the calendar date key of daily ad counters, always in UTC.
const DateKeyLayout = "2006-01-02"

var printer = message.NewPrinter(language.English)

// FormatCoins renders an amount for user-facing messages, e.g. "25,000 coins".
func FormatCoins(n int64) string {
	if n == 1 || n == -1 {
		return printer.Sprintf("%d coin", n)
	}
	return printer.Sprintf("%d coins", n)
}

// CoinsToUSD converts coins at rate, rounded to 5 decimal places.
func CoinsToUSD(coins int64, rate float64) float64 {
	usd, _ := decimal.NewFromInt(coins).Mul(decimal.NewFromFloat(rate)).Round(5).Float64()
	return usd
}

// USDToCoins returns how many whole coins amount buys at rate.
func USDToCoins(amount, rate float64) int64 {
	if rate <= 0 {
		return 0
	}
	return decimal.NewFromFloat(amount).Div(decimal.NewFromFloat(rate)).Floor().IntPart()
}

// Commission is percent of amount, rounded down to whole coins.
func Commission(amount int64, percent float64) int64 {
	if amount <= 0 || percent <= 0 {
		return 0
	}
	return decimal.NewFromInt(amount).
		Mul(decimal.NewFromFloat(percent)).
		Div(decimal.NewFromInt(100)).
		Floor().
		IntPart()
}
