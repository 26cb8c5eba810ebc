package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// VATEntry is a single country row of the VAT table. Rate is a decimal
// string ("0.20") so that it never passes through a float.
type VATEntry struct {
	Rate     string `mapstructure:"rate"`
	Currency string `mapstructure:"currency"`
}

// VATTable maps ISO country codes to VAT entries. Fallback names the entry
// applied to unknown or missing country codes.
type VATTable struct {
	Fallback  string              `mapstructure:"fallback"`
	Countries map[string]VATEntry `mapstructure:"countries"`
}

func DefaultVATTable() VATTable {
	return VATTable{
		Fallback: "AT",
		Countries: map[string]VATEntry{
			"AT": {Rate: "0.20", Currency: "EUR"},
			"DE": {Rate: "0.19", Currency: "EUR"},
			"CH": {Rate: "0.081", Currency: "CHF"},
			"US": {Rate: "0", Currency: "USD"},
			"GB": {Rate: "0.20", Currency: "GBP"},
			"FR": {Rate: "0.20", Currency: "EUR"},
			"IT": {Rate: "0.22", Currency: "EUR"},
			"NL": {Rate: "0.21", Currency: "EUR"},
		},
	}
}

// Lookup returns the entry for code, normalized to upper case.
func (t VATTable) Lookup(code string) (VATEntry, bool) {
	entry, ok := t.Countries[strings.ToUpper(strings.TrimSpace(code))]
	return entry, ok
}

// FallbackEntry returns the entry named by Fallback.
func (t VATTable) FallbackEntry() (string, VATEntry) {
	code := strings.ToUpper(strings.TrimSpace(t.Fallback))
	return code, t.Countries[code]
}

type VATTableHolder struct {
	current atomic.Value // holds VATTable
}

// NewStaticVATTableHolder wraps a fixed table, used when no file watching is wanted.
func NewStaticVATTableHolder(table VATTable) (*VATTableHolder, error) {
	table = normalizeVATTable(table)
	if err := validateVATTable(table); err != nil {
		return nil, err
	}
	holder := &VATTableHolder{}
	holder.current.Store(table)
	return holder, nil
}

// NewVATTableHolder reads vat.yml when present and reloads it on change.
// Invalid reloads keep the previous table.
func NewVATTableHolder(log *zap.Logger) (*VATTableHolder, error) {
	log = log.Named("config.vat")

	v := viper.New()

	v.SetConfigName("vat")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/coursepay")
	v.AddConfigPath(".")

	v.SetEnvPrefix("COURSEPAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileFound = false
	}

	table := DefaultVATTable()
	if fileFound {
		if err := v.UnmarshalKey("vat", &table); err != nil {
			return nil, err
		}
	}
	holder, err := NewStaticVATTableHolder(table)
	if err != nil {
		return nil, err
	}
	if !fileFound {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated := VATTable{}
		if err := v.UnmarshalKey("vat", &updated); err != nil {
			log.Warn("vat reload failed", zap.Error(err))
			return
		}
		updated = normalizeVATTable(updated)
		if err := validateVATTable(updated); err != nil {
			log.Warn("invalid vat table ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("vat table reloaded", zap.String("file", e.Name), zap.Int("countries", len(updated.Countries)))
	})

	return holder, nil
}

func (h *VATTableHolder) Get() VATTable {
	return h.current.Load().(VATTable)
}

func normalizeVATTable(table VATTable) VATTable {
	out := VATTable{
		Fallback:  strings.ToUpper(strings.TrimSpace(table.Fallback)),
		Countries: make(map[string]VATEntry, len(table.Countries)),
	}
	for code, entry := range table.Countries {
		out.Countries[strings.ToUpper(strings.TrimSpace(code))] = VATEntry{
			Rate:     strings.TrimSpace(entry.Rate),
			Currency: strings.ToUpper(strings.TrimSpace(entry.Currency)),
		}
	}
	return out
}

func validateVATTable(table VATTable) error {
	if len(table.Countries) == 0 {
		return errors.New("vat.countries cannot be empty")
	}
	if table.Fallback == "" {
		return errors.New("vat.fallback is required")
	}
	if _, ok := table.Countries[table.Fallback]; !ok {
		return fmt.Errorf("vat.fallback %q has no entry in vat.countries", table.Fallback)
	}
	for code, entry := range table.Countries {
		if entry.Rate == "" || entry.Currency == "" {
			return fmt.Errorf("vat entry %q requires rate and currency", code)
		}
	}
	return nil
}
