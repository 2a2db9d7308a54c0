package collector

import (
	"fmt"

	"github.com/qepting91/social-scraper/internal/config"
	"github.com/qepting91/social-scraper/internal/domain"
)

// NewCollector selects the adapter for source. The forum adapter follows the
// configured MODE; the microblog is always read through Nitter except in mock mode.
func NewCollector(cfg *config.Config, source domain.Source) (domain.Adapter, error) {
	if cfg.Mode == "mock" {
		return NewMockClient(source), nil
	}

	switch source {
	case domain.SourceMicroblog:
		return NewNitterClient(cfg.Nitter.URL, cfg.Reddit.UserAgent)
	case domain.SourceForum:
	default:
		return nil, fmt.Errorf("%w: unknown source %q", domain.ErrInvalidConfiguration, source)
	}

	rc := cfg.Reddit
	switch cfg.Mode {
	case "api":
		return NewAPIClient(rc.ClientID, rc.ClientSecret, rc.Username, rc.Password, rc.UserAgent)
	case "public":
		if rc.UserAgent == "" {
			return nil, fmt.Errorf("%w: REDDIT_USER_AGENT is required for public mode", domain.ErrInvalidConfiguration)
		}
		return NewPublicClient(rc.UserAgent)
	default:
		return nil, fmt.Errorf("%w: unknown COLLECTOR_MODE: %s (use 'api', 'public', or 'mock')", domain.ErrInvalidConfiguration, cfg.Mode)
	}
}
