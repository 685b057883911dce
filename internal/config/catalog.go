package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var ErrInvalidCatalog = errors.New("invalid_catalog")

var (
	catalogProducts = []string{"cv", "cover_letter", "bundle"}
	creditKinds     = []string{"cv", "cover_letter"}
)

// Catalog is the sellable product table. Grants maps a product to the
// credits a paid order of it adds, e.g. grants.bundle.cv = 1.
// Holders share the maps; callers must not modify them.
type Catalog struct {
	Currency string                      `mapstructure:"currency"`
	Prices   map[string]int64            `mapstructure:"prices"`
	Grants   map[string]map[string]int64 `mapstructure:"grants"`
}

// Price returns the unit price of product, zero when unknown.
func (c Catalog) Price(product string) int64 {
	return c.Prices[product]
}

type catalogFile struct {
	Catalog Catalog `mapstructure:"catalog"`
}

type CatalogHolder struct {
	current atomic.Value // holds Catalog
}

// NewCatalogHolder reads catalog.yml and keeps it fresh. Without a file the
// env prices apply and no credits are granted. An edit that fails
// validation is logged and the previous catalog stays in effect.
func NewCatalogHolder(cfg Config, log *zap.Logger) (*CatalogHolder, error) {
	log = log.Named("config.catalog")
	v := viper.New()

	v.SetConfigName("catalog")
	v.SetConfigType("yml")
	if dir := strings.TrimSpace(cfg.Catalog.Dir); dir != "" {
		v.AddConfigPath(dir)
	}
	v.AddConfigPath("/etc/orderdesk")
	v.AddConfigPath(".")

	v.SetEnvPrefix("ORDERDESK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("catalog.currency", cfg.Catalog.Currency)
	v.SetDefault("catalog.prices.cv", cfg.Catalog.PriceCV)
	v.SetDefault("catalog.prices.cover_letter", cfg.Catalog.PriceCoverLetter)
	v.SetDefault("catalog.prices.bundle", cfg.Catalog.PriceBundle)

	fromFile := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		fromFile = false
		log.Info("catalog.yml not found, using environment prices without grants")
	}

	catalog, err := decodeCatalog(v)
	if err != nil {
		return nil, err
	}

	holder := &CatalogHolder{}
	holder.current.Store(catalog)

	if fromFile {
		log.Info("catalog loaded", zap.String("file", v.ConfigFileUsed()))
		v.OnConfigChange(func(e fsnotify.Event) {
			updated, err := decodeCatalog(v)
			if err != nil {
				log.Error("catalog reload rejected", zap.String("file", e.Name), zap.Error(err))
				return
			}
			holder.current.Store(updated)
			log.Info("catalog reloaded", zap.String("file", e.Name))
		})
		v.WatchConfig()
	}

	return holder, nil
}

// NewStaticCatalogHolder wraps a fixed catalog.
func NewStaticCatalogHolder(c Catalog) (*CatalogHolder, error) {
	c = normalizeCatalog(c)
	if err := validateCatalog(c); err != nil {
		return nil, err
	}
	holder := &CatalogHolder{}
	holder.current.Store(c)
	return holder, nil
}

func (h *CatalogHolder) Get() Catalog {
	return h.current.Load().(Catalog)
}

func decodeCatalog(v *viper.Viper) (Catalog, error) {
	var file catalogFile
	if err := v.Unmarshal(&file); err != nil {
		return Catalog{}, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}
	catalog := normalizeCatalog(file.Catalog)
	if err := validateCatalog(catalog); err != nil {
		return Catalog{}, err
	}
	return catalog, nil
}

func normalizeCatalog(c Catalog) Catalog {
	c.Currency = strings.ToLower(strings.TrimSpace(c.Currency))
	if c.Prices == nil {
		c.Prices = map[string]int64{}
	}
	if c.Grants == nil {
		c.Grants = map[string]map[string]int64{}
	}
	return c
}

func validateCatalog(c Catalog) error {
	if len(c.Currency) != 3 {
		return fmt.Errorf("%w: currency %q is not an ISO 4217 code", ErrInvalidCatalog, c.Currency)
	}
	for product := range c.Prices {
		if !slices.Contains(catalogProducts, product) {
			return fmt.Errorf("%w: unknown product %q in prices", ErrInvalidCatalog, product)
		}
	}
	for _, product := range catalogProducts {
		if c.Prices[product] <= 0 {
			return fmt.Errorf("%w: prices.%s must be positive", ErrInvalidCatalog, product)
		}
	}
	return validateGrants(c.Grants)
}

func validateGrants(grants map[string]map[string]int64) error {
	for product, credits := range grants {
		if !slices.Contains(catalogProducts, product) {
			return fmt.Errorf("%w: unknown product %q in grants", ErrInvalidCatalog, product)
		}
		for kind, units := range credits {
			if !slices.Contains(creditKinds, kind) {
				return fmt.Errorf("%w: unknown credit kind %q for %s", ErrInvalidCatalog, kind, product)
			}
			if units <= 0 {
				return fmt.Errorf("%w: grants.%s.%s must be positive", ErrInvalidCatalog, product, kind)
			}
		}
	}
	return nil
}
