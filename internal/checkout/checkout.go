// Package checkout builds purchase links that activate a license key once paid.
package checkout

import (
	"context"
	"crypto/rand"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"codecheckout/internal/api"
	"codecheckout/internal/config"
	apperrors "codecheckout/internal/errors"
	"codecheckout/pkg/contracts/domain"
)

const base36 = "0123456789abcdefghijklmnopqrstuvwxyz"

// randomKeyLength is the length of the random part of a generated key
const randomKeyLength = 13

// Params describes a checkout. Empty URLs fall back to the configured defaults
// and an empty LicenseKey is generated.
type Params struct {
	SoftwareID string
	SuccessURL string
	CancelURL  string
	LicenseKey string
	TestMode   bool
}

// Transport issues GET requests against the license authority
type Transport interface {
	Get(ctx context.Context, path string, out any, opts ...api.RequestOption) error
}

// Generator produces checkout sessions
type Generator struct {
	cfg       config.ClientConfig
	transport Transport
	logger    *slog.Logger
	now       func() time.Time
}

// NewGenerator creates a checkout generator
func NewGenerator(cfg config.ClientConfig, transport Transport, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{
		cfg:       cfg,
		transport: transport,
		logger:    logger.With(slog.String("component", "checkout")),
		now:       time.Now,
	}
}

// GenerateURL asks the authority for a checkout URL. When the authority fails
// a URL is built locally from the base URL, so only a missing software id errors.
func (g *Generator) GenerateURL(ctx context.Context, p Params) (domain.CheckoutSession, error) {
	softwareID := p.SoftwareID
	if softwareID == "" {
		softwareID = g.cfg.SoftwareID
	}
	if softwareID == "" {
		return domain.CheckoutSession{}, apperrors.NewValidationError("softwareId is required for checkout", apperrors.ErrMissingSoftwareID)
	}

	licenseKey := p.LicenseKey
	if licenseKey == "" {
		key, err := GenerateLicenseKey(g.now())
		if err != nil {
			return domain.CheckoutSession{}, apperrors.NewAppError(apperrors.ErrTypeUnknown, "failed to generate license key", err)
		}
		licenseKey = key
	}

	successURL := firstNonEmpty(p.SuccessURL, g.cfg.DefaultSuccessURL)
	cancelURL := firstNonEmpty(p.CancelURL, g.cfg.DefaultCancelURL)

	query := url.Values{}
	query.Set("licenseKey", licenseKey)
	if successURL != "" {
		query.Set("successUrl", successURL)
	}
	if cancelURL != "" {
		query.Set("cancelUrl", cancelURL)
	}
	if p.TestMode {
		query.Set("testMode", "true")
	}

	var resp domain.CheckoutURLResponse
	err := g.transport.Get(ctx, "/"+url.PathEscape(softwareID)+"/checkout", &resp, api.WithQuery(query))
	if err == nil && resp.URL != "" {
		return domain.CheckoutSession{LicenseKey: licenseKey, URL: resp.URL}, nil
	}

	if err != nil {
		g.logger.WarnContext(ctx, "Error generating checkout URL, building it locally",
			slog.String("error", err.Error()),
			slog.String("software_id", softwareID))
	} else {
		g.logger.WarnContext(ctx, "Checkout response had no URL, building it locally",
			slog.String("software_id", softwareID))
	}

	query.Set("softwareId", softwareID)
	return domain.CheckoutSession{
		LicenseKey: licenseKey,
		URL:        strings.TrimRight(g.cfg.BaseURL, "/") + "/checkout?" + query.Encode(),
	}, nil
}

// GenerateLicenseKey returns an upper-case key made of the base-36 millisecond
// timestamp and a random base-36 suffix, e.g. "M7Q2K1ZC-4F0J9XQ2B7LKD".
func GenerateLicenseKey(now time.Time) (string, error) {
	buf := make([]byte, randomKeyLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = base36[int(b)%len(base36)]
	}
	key := strconv.FormatInt(now.UnixMilli(), 36) + "-" + string(buf)
	return strings.ToUpper(key), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
