package payments

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectGateway(t *testing.T) {
	tests := []struct {
		method   string
		currency string
		expected string
	}{
		{"mpesa", "KES", Pesapal},
		{"airtel_money", "KES", Pesapal},
		{"mobile_money", "kes", Pesapal},
		{"mpesa", "UGX", Flutterwave},
		{"mobile_money", "TZS", Flutterwave},
		{"card", "KES", Pesapal},
		{"bank", "KES", Pesapal},
		{"", "KES", Pesapal},
		{"card", "USD", Flutterwave},
		{"", "EUR", Flutterwave},
		{"paypal", "KES", Flutterwave},
		{"crypto", "USD", Flutterwave},
	}

	for _, tt := range tests {
		t.Run(tt.method+"/"+tt.currency, func(t *testing.T) {
			assert.Equal(t, tt.expected, SelectGateway(tt.method, tt.currency))
		})
	}
}

func TestRouterResolve(t *testing.T) {
	pesapal := newTestPesapal("", false)
	flutterwave := newTestFlutterwave("", false)
	router := NewRouter(pesapal, flutterwave)

	assert.Equal(t, []string{Flutterwave, Pesapal}, router.Names())

	g, err := router.Resolve("mpesa", "KES", "")
	require.NoError(t, err)
	assert.Equal(t, Pesapal, g.Name())

	g, err = router.Resolve("mpesa", "KES", "Flutterwave")
	require.NoError(t, err)
	assert.Equal(t, Flutterwave, g.Name(), "explicit gateway overrides policy")

	_, err = router.Resolve("card", "USD", "stripe")
	assert.Error(t, err)

	_, ok := router.Get("pesapal")
	assert.True(t, ok)
}

func TestRouterResolveMissingAdapter(t *testing.T) {
	router := NewRouter(newTestPesapal("", false))

	_, err := router.Resolve("card", "USD", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "flutterwave")
}

func TestReturnURL(t *testing.T) {
	assert.Equal(t, "https://example.com/pay?bookingId=abc", returnURL("https://example.com/pay", "abc"))
	assert.Equal(t, "https://example.com/pay?bookingId=abc&lang=en", returnURL("https://example.com/pay?lang=en", "abc"))
	assert.Equal(t, "https://example.com/pay", returnURL("https://example.com/pay", ""))
	assert.Equal(t, "", returnURL("", "abc"))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "Mara", truncate("Mara", 10))
	assert.Equal(t, "Masai", truncate("Masai Mara", 5))
	assert.Equal(t, "", truncate("Mara", 0))

	// 99 ASCII characters followed by multi-byte runes
	desc := strings.Repeat("a", 99) + "ééé"
	out := truncate(desc, 100)
	assert.True(t, utf8.ValidString(out))
	assert.Equal(t, 100, utf8.RuneCountInString(out))
	assert.Equal(t, strings.Repeat("a", 99)+"é", out)

	assert.Equal(t, "Safari 🦁", truncate("Safari 🦁🐘", 8))
}
