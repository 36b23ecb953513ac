package config

import "time"

// API holds the settings for the backend the console talks to.
type API struct {
	BaseURL           string        `env:"API_BASE_URL" envDefault:"http://localhost:8000"`
	Prefix            string        `env:"API_PREFIX" envDefault:"/api/v1"`
	RequestTimeout    time.Duration `env:"API_TIMEOUT" envDefault:"10s"`
	RootCompanyID     int64         `env:"ROOT_COMPANY_ID" envDefault:"1"`
	RefreshCoalescing bool          `env:"API_REFRESH_COALESCING" envDefault:"true"`
	RateLimit         float64       `env:"API_RATE_LIMIT" envDefault:"0"` // requests/second per browser, 0 disables
	RateBurst         int           `env:"API_RATE_BURST" envDefault:"20"`
}

var _ APIConfig = API{}

func (a API) GetAPIBaseURL() string {
	return a.BaseURL
}

func (a API) GetAPIPrefix() string {
	return a.Prefix
}

func (a API) GetRequestTimeout() time.Duration {
	if a.RequestTimeout <= 0 {
		return 10 * time.Second
	}
	return a.RequestTimeout
}

func (a API) GetRootCompanyID() int64 {
	return a.RootCompanyID
}

func (a API) GetRefreshCoalescing() bool {
	return a.RefreshCoalescing
}

func (a API) GetAPIRateLimit() float64 {
	return a.RateLimit
}

func (a API) GetAPIRateBurst() int {
	return a.RateBurst
}
