package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Plan describes the entitlements attached to a subscription plan code.
type Plan struct {
	// MonthlyInvoiceLimit caps issued documents per calendar month; <= 0 means unlimited.
	MonthlyInvoiceLimit int64 `mapstructure:"monthlyInvoiceLimit"`
}

type PlanConfig struct {
	DefaultPlan string          `mapstructure:"default"`
	Items       map[string]Plan `mapstructure:"items"`
}

func DefaultPlanConfig() PlanConfig {
	return PlanConfig{
		DefaultPlan: "free",
		Items: map[string]Plan{
			"free":       {MonthlyInvoiceLimit: 10},
			"starter":    {MonthlyInvoiceLimit: 100},
			"growth":     {MonthlyInvoiceLimit: 1000},
			"enterprise": {MonthlyInvoiceLimit: 0},
		},
	}
}

// Resolve returns the plan for code, falling back to the default plan.
func (c PlanConfig) Resolve(code string) (string, Plan) {
	code = strings.ToLower(strings.TrimSpace(code))
	if plan, ok := c.Items[code]; ok {
		return code, plan
	}
	fallback := strings.ToLower(strings.TrimSpace(c.DefaultPlan))
	return fallback, c.Items[fallback]
}

type PlanConfigHolder struct {
	current atomic.Value // holds PlanConfig
}

func NewPlanConfigHolder() (*PlanConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("plans")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/billbook/config")
	v.AddConfigPath("/etc/billbook")
	v.AddConfigPath(".")

	v.SetEnvPrefix("BILLBOOK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	found := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		found = false
		defaults := DefaultPlanConfig()
		items := make(map[string]any, len(defaults.Items))
		for code, plan := range defaults.Items {
			items[code] = map[string]any{"monthlyInvoiceLimit": plan.MonthlyInvoiceLimit}
		}
		v.SetDefault("plans.default", defaults.DefaultPlan)
		v.SetDefault("plans.items", items)
	}

	var cfg PlanConfig
	if err := v.UnmarshalKey("plans", &cfg); err != nil {
		return nil, err
	}
	if err := validatePlanConfig(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticPlanConfigHolder(cfg)
	if !found {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated PlanConfig
		if err := v.UnmarshalKey("plans", &updated); err != nil {
			log.Printf("[plans-config] reload failed: %v", err)
			return
		}
		if err := validatePlanConfig(updated); err != nil {
			log.Printf("[plans-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[plans-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

// NewStaticPlanConfigHolder wraps a fixed plan table.
func NewStaticPlanConfigHolder(cfg PlanConfig) *PlanConfigHolder {
	holder := &PlanConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func (h *PlanConfigHolder) Get() PlanConfig {
	return h.current.Load().(PlanConfig)
}

func validatePlanConfig(cfg PlanConfig) error {
	if len(cfg.Items) == 0 {
		return errors.New("plans.items cannot be empty")
	}
	def := strings.ToLower(strings.TrimSpace(cfg.DefaultPlan))
	if def == "" {
		return errors.New("plans.default is required")
	}
	if _, ok := cfg.Items[def]; !ok {
		return fmt.Errorf("plans.default %q is not a configured plan", def)
	}
	return nil
}
