package services

import (
	"github.com/safaritrails/booking-backend/internal/config"
	"github.com/safaritrails/booking-backend/pkg/payments"
	"github.com/sirupsen/logrus"
)

// NewGatewayRouter builds the Pesapal and Flutterwave adapters from
// configuration. Return URLs default to the web app's confirmation page.
func NewGatewayRouter(cfg *config.Config, logger *logrus.Logger) *payments.Router {
	confirmationURL := cfg.Server.PublicURL + "/bookings/confirmation"

	pesapal := payments.NewPesapalGateway(payments.PesapalConfig{
		BaseURL:        payments.PesapalBaseURL(cfg.Pesapal.Environment),
		ConsumerKey:    cfg.Pesapal.ConsumerKey,
		ConsumerSecret: cfg.Pesapal.ConsumerSecret,
		IPNID:          cfg.Pesapal.IPNID,
		IPNURL:         cfg.Pesapal.IPNURL,
		CallbackURL:    orDefault(cfg.Pesapal.CallbackURL, confirmationURL),
		DevMode:        cfg.Pesapal.DevMode,
	}, logger)

	flutterwave := payments.NewFlutterwaveGateway(payments.FlutterwaveConfig{
		BaseURL:     cfg.Flutterwave.BaseURL,
		SecretKey:   cfg.Flutterwave.SecretKey,
		SecretHash:  cfg.Flutterwave.SecretHash,
		RedirectURL: orDefault(cfg.Flutterwave.RedirectURL, confirmationURL),
		DevMode:     cfg.Flutterwave.DevMode,
	}, logger)

	if cfg.Pesapal.DevMode || cfg.Flutterwave.DevMode {
		logger.WithFields(logrus.Fields{
			"pesapal_dev_mode":     cfg.Pesapal.DevMode,
			"flutterwave_dev_mode": cfg.Flutterwave.DevMode,
		}).Warn("Payment dev mode enabled: gateways charge test amounts")
	}

	return payments.NewRouter(pesapal, flutterwave)
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
