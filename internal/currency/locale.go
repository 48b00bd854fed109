package currency

import "strings"

var countryCurrency = map[string]string{
	"KE": "KES",
	"NG": "NGN",
	"GH": "GHS",
	"TZ": "KES",
	"UG": "KES",
	"UK": "EUR",
	"GB": "EUR",
	"US": "USD",
	"CA": "USD",
	"AU": "USD",
}

var providerPreferences = map[string][]string{
	"KE": {"flutterwave", "stripe", "midtrans"},
	"NG": {"flutterwave", "stripe", "midtrans"},
	"GH": {"flutterwave", "stripe", "midtrans"},
	"TZ": {"flutterwave", "stripe", "midtrans"},
	"UG": {"flutterwave", "stripe", "midtrans"},
}

var defaultProviders = []string{"stripe", "midtrans", "flutterwave"}

// CurrencyForCountry maps an ISO country code to the currency offered first.
func CurrencyForCountry(country string) string {
	if c, ok := countryCurrency[strings.ToUpper(strings.TrimSpace(country))]; ok {
		return c
	}
	return Base
}

// PreferredProviders lists payment providers in the order they should be offered.
func PreferredProviders(country string) []string {
	prefs, ok := providerPreferences[strings.ToUpper(strings.TrimSpace(country))]
	if !ok {
		prefs = defaultProviders
	}
	out := make([]string, len(prefs))
	copy(out, prefs)
	return out
}
