package internal

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"http_server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Payment       PaymentConfig       `mapstructure:"payment"`
}

type ServerConfig struct {
	Port              int           `mapstructure:"port"`
	BaseURL           string        `mapstructure:"base_url"`
	AllowedOrigins    string        `mapstructure:"allowed_origins"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"required,min=1"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"required,min=1"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" validate:"required,min=1m"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time" validate:"required,min=1m"`
	Source          string        `mapstructure:"source"`
}

type ObservabilityConfig struct {
	Logging LoggingConfig `mapstructure:"logging"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"required,oneof=json text"`
}

// PaymentConfig describes the payment engine: the hard amount ceiling,
// provider rate tables, per-method fee settings and service charge rules.
// Monetary rates are decimal strings so no float ever touches money.
type PaymentConfig struct {
	MaxAmount       string              `mapstructure:"max_amount"`
	DefaultCurrency string              `mapstructure:"default_currency"`
	AttemptTimeout  time.Duration       `mapstructure:"attempt_timeout"`
	PlatformFeeRate string              `mapstructure:"platform_fee_rate"`
	ServiceCharge   ServiceChargeConfig `mapstructure:"service_charge"`
	Providers       []ProviderConfig    `mapstructure:"providers"`
	MethodSettings  []MethodSettingConfig `mapstructure:"method_settings"`
}

type ServiceChargeConfig struct {
	Enabled             bool              `mapstructure:"enabled"`
	Rate                string            `mapstructure:"rate"`
	RestaurantRates     map[string]string `mapstructure:"restaurant_rates"`
	DisabledRestaurants []string          `mapstructure:"disabled_restaurants"`
}

type ProviderConfig struct {
	Name        string             `mapstructure:"name"`
	BaseURL     string             `mapstructure:"base_url"`
	APIKey      string             `mapstructure:"api_key"`
	Percentage  string             `mapstructure:"percentage"`
	FixedFee    string             `mapstructure:"fixed_fee"`
	Currency    string             `mapstructure:"currency"`
	Methods     []string           `mapstructure:"methods"`
	Restaurants []string           `mapstructure:"restaurants"`
	VolumeTiers []VolumeTierConfig `mapstructure:"volume_tiers"`
}

type VolumeTierConfig struct {
	MinMonthlyVolume string `mapstructure:"min_monthly_volume"`
	Percentage       string `mapstructure:"percentage"`
	FixedFee         string `mapstructure:"fixed_fee"`
}

// MethodSettingConfig is a per-method fee-bearing rule. An empty
// restaurant_id makes the entry the platform default for that method.
type MethodSettingConfig struct {
	Method                             string `mapstructure:"method"`
	RestaurantID                       string `mapstructure:"restaurant_id"`
	CustomerPaysProcessorFeeByDefault  bool   `mapstructure:"customer_pays_processor_fee_by_default"`
	AllowToggleByMerchant              bool   `mapstructure:"allow_toggle_by_merchant"`
	IncludeProcessorFeeInServiceCharge bool   `mapstructure:"include_processor_fee_in_service_charge"`
}

// ----------------- VALIDATION -----------------

func (c *Config) Validate() error {
	var errs []string

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}

	if err := c.Database.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("database config: %v", err))
	}

	if err := c.Payment.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("payment config: %v", err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

func (c *ServerConfig) Validate() error {
	if c.AllowedOrigins != "" {
		origins := strings.Split(c.AllowedOrigins, ",")
		for _, origin := range origins {
			origin = strings.TrimSpace(origin)
			if origin == "*" {
				continue
			}
			if _, err := url.Parse(origin); err != nil {
				return fmt.Errorf("invalid allowed origin %s: %w", origin, err)
			}
		}
	}
	if c.ReadTimeout < c.ReadHeaderTimeout {
		return errors.New("read_timeout must be >= read_header_timeout")
	}
	return nil
}

func (c *DatabaseConfig) Validate() error {
	if c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("max_idle_conns cannot be greater than max_open_conns")
	}
	return nil
}

func (c *DatabaseConfig) GetDSN() string {
	return c.Source
}

func (c *PaymentConfig) Validate() error {
	if _, err := c.MaxAmountDecimal(); err != nil {
		return fmt.Errorf("invalid max_amount: %w", err)
	}
	if c.DefaultCurrency == "" {
		return errors.New("default_currency is required")
	}
	if len(c.DefaultCurrency) != 3 {
		return fmt.Errorf("default_currency must be a 3-letter code, got %q", c.DefaultCurrency)
	}
	if c.PlatformFeeRate != "" {
		if _, err := decimal.NewFromString(c.PlatformFeeRate); err != nil {
			return fmt.Errorf("invalid platform_fee_rate: %w", err)
		}
	}
	if c.ServiceCharge.Rate != "" {
		if _, err := decimal.NewFromString(c.ServiceCharge.Rate); err != nil {
			return fmt.Errorf("invalid service_charge.rate: %w", err)
		}
	}
	for name, rate := range c.ServiceCharge.RestaurantRates {
		if _, err := decimal.NewFromString(rate); err != nil {
			return fmt.Errorf("invalid service_charge.restaurant_rates[%s]: %w", name, err)
		}
	}
	seen := make(map[string]bool, len(c.Providers))
	for _, p := range c.Providers {
		if p.Name == "" {
			return errors.New("provider name is required")
		}
		if seen[p.Name] {
			return fmt.Errorf("duplicate provider %q", p.Name)
		}
		seen[p.Name] = true
		if err := p.Validate(); err != nil {
			return fmt.Errorf("provider %s: %w", p.Name, err)
		}
	}
	return nil
}

func (c *PaymentConfig) MaxAmountDecimal() (decimal.Decimal, error) {
	if c.MaxAmount == "" {
		// reference ceiling when the deployment does not set one
		return decimal.NewFromInt(10000), nil
	}
	max, err := decimal.NewFromString(c.MaxAmount)
	if err != nil {
		return decimal.Zero, err
	}
	if max.IsNegative() || max.IsZero() {
		return decimal.Zero, errors.New("max_amount must be positive")
	}
	return max, nil
}

func (p *ProviderConfig) Validate() error {
	if p.Name != "cash" && p.BaseURL == "" {
		return errors.New("base_url is required")
	}
	if p.Percentage != "" {
		if _, err := decimal.NewFromString(p.Percentage); err != nil {
			return fmt.Errorf("invalid percentage: %w", err)
		}
	}
	if p.FixedFee != "" {
		if _, err := decimal.NewFromString(p.FixedFee); err != nil {
			return fmt.Errorf("invalid fixed_fee: %w", err)
		}
	}
	for i, t := range p.VolumeTiers {
		for _, v := range []string{t.MinMonthlyVolume, t.Percentage, t.FixedFee} {
			if v == "" {
				continue
			}
			if _, err := decimal.NewFromString(v); err != nil {
				return fmt.Errorf("invalid volume_tiers[%d]: %w", i, err)
			}
		}
	}
	return nil
}
