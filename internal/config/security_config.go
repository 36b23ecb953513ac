package config

import "time"

type SecurityConfig interface {
	GetMaxConsoles() int
	GetBootstrapWait() time.Duration
	GetLoginRate() float64
	GetLoginBurst() int
	GetSecureCookies() bool
}

type Security struct {
	MaxConsoles   int           `env:"MAX_CONSOLES" envDefault:"10000"`
	BootstrapWait time.Duration `env:"BOOTSTRAP_WAIT" envDefault:"3s"`
	LoginRate     float64       `env:"LOGIN_RATE" envDefault:"0.2"`
	LoginBurst    int           `env:"LOGIN_BURST" envDefault:"5"`
	SecureCookies bool          `env:"SECURE_COOKIES" envDefault:"false"`
}

var _ SecurityConfig = Security{}

func (s Security) GetMaxConsoles() int {
	if s.MaxConsoles <= 0 {
		return 10000
	}
	return s.MaxConsoles
}

// GetBootstrapWait bounds how long a page waits on session bootstrap before rendering the placeholder.
func (s Security) GetBootstrapWait() time.Duration {
	return s.BootstrapWait
}

func (s Security) GetLoginRate() float64 {
	return s.LoginRate
}

func (s Security) GetLoginBurst() int {
	return s.LoginBurst
}

func (s Security) GetSecureCookies() bool {
	return s.SecureCookies
}
