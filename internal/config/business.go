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

type ResetPolicy string

const (
	ResetNever   ResetPolicy = "never"
	ResetAnnual  ResetPolicy = "annual"
	ResetMonthly ResetPolicy = "monthly"
)

const (
	DocumentOrderSlip       = "order_slip"
	DocumentDeliveryReceipt = "delivery_receipt"
	DocumentPlacement       = "placement"
)

type NumberingScheme struct {
	Template string      `mapstructure:"template"`
	Reset    ResetPolicy `mapstructure:"reset"`
}

type SequenceConfig struct {
	MaxAttempts int `mapstructure:"max_attempts"`
}

type PlacementConfig struct {
	BasisDays       int            `mapstructure:"basis_days"`
	BasisDaysByType map[string]int `mapstructure:"basis_days_by_type"`
}

type AuthorizationConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// BusinessConfig is the hot reloadable policy file (fuelledger.yml).
type BusinessConfig struct {
	Numbering     map[string]NumberingScheme `mapstructure:"numbering"`
	Sequence      SequenceConfig             `mapstructure:"sequence"`
	Placement     PlacementConfig            `mapstructure:"placement"`
	Authorization AuthorizationConfig        `mapstructure:"authorization"`
}

func DefaultBusinessConfig() BusinessConfig {
	return BusinessConfig{
		Numbering: map[string]NumberingScheme{
			DocumentOrderSlip:       {Template: "COS{SEQ10}", Reset: ResetNever},
			DocumentDeliveryReceipt: {Template: "DR{SEQ10}", Reset: ResetNever},
			DocumentPlacement:       {Template: "PLC{YYYY}{SEQ6}", Reset: ResetAnnual},
		},
		Sequence:      SequenceConfig{MaxAttempts: 5},
		Placement:     PlacementConfig{BasisDays: 360, BasisDaysByType: map[string]int{}},
		Authorization: AuthorizationConfig{Enabled: true},
	}
}

// Scheme returns the numbering scheme of a document type.
func (c BusinessConfig) Scheme(documentType string) (NumberingScheme, bool) {
	scheme, ok := c.Numbering[strings.ToLower(strings.TrimSpace(documentType))]
	return scheme, ok
}

// BasisDaysFor returns the day-count basis of a placement type.
func (c BusinessConfig) BasisDaysFor(placementType string) int {
	if days, ok := c.Placement.BasisDaysByType[strings.ToLower(strings.TrimSpace(placementType))]; ok && days > 0 {
		return days
	}
	if c.Placement.BasisDays > 0 {
		return c.Placement.BasisDays
	}
	return 360
}

type BusinessConfigHolder struct {
	current atomic.Value // holds BusinessConfig
}

// NewStaticBusinessConfigHolder holds a fixed configuration.
func NewStaticBusinessConfigHolder(cfg BusinessConfig) *BusinessConfigHolder {
	holder := &BusinessConfigHolder{}
	holder.current.Store(normalizeBusinessConfig(cfg))
	return holder
}

func NewBusinessConfigHolder(appCfg Config, log *zap.Logger) (*BusinessConfigHolder, error) {
	log = log.Named("config.business")
	v := viper.New()

	if appCfg.BusinessConfigPath != "" {
		v.SetConfigFile(appCfg.BusinessConfigPath)
	} else {
		v.SetConfigName("fuelledger")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/fuelledger")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("FUELLEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultBusinessConfig()
	for docType, scheme := range defaults.Numbering {
		v.SetDefault("fuelledger.numbering."+docType+".template", scheme.Template)
		v.SetDefault("fuelledger.numbering."+docType+".reset", string(scheme.Reset))
	}
	v.SetDefault("fuelledger.sequence.max_attempts", defaults.Sequence.MaxAttempts)
	v.SetDefault("fuelledger.placement.basis_days", defaults.Placement.BasisDays)
	v.SetDefault("fuelledger.authorization.enabled", defaults.Authorization.Enabled)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		fileLoaded = false
		log.Info("business config file not found, using defaults")
	}

	cfg, err := decodeBusinessConfig(v)
	if err != nil {
		return nil, err
	}

	holder := &BusinessConfigHolder{}
	holder.current.Store(cfg)

	if fileLoaded {
		v.OnConfigChange(func(e fsnotify.Event) {
			updated, err := decodeBusinessConfig(v)
			if err != nil {
				log.Warn("invalid business config ignored", zap.String("file", e.Name), zap.Error(err))
				return
			}
			holder.current.Store(updated)
			log.Info("business config reloaded", zap.String("file", e.Name))
		})
		v.WatchConfig()
	}

	return holder, nil
}

func (h *BusinessConfigHolder) Get() BusinessConfig {
	return h.current.Load().(BusinessConfig)
}

// Store swaps the active configuration after validation.
func (h *BusinessConfigHolder) Store(cfg BusinessConfig) error {
	cfg = normalizeBusinessConfig(cfg)
	if err := validateBusinessConfig(cfg); err != nil {
		return err
	}
	h.current.Store(cfg)
	return nil
}

func decodeBusinessConfig(v *viper.Viper) (BusinessConfig, error) {
	var cfg BusinessConfig
	if err := v.UnmarshalKey("fuelledger", &cfg); err != nil {
		return BusinessConfig{}, err
	}
	cfg = normalizeBusinessConfig(cfg)
	if err := validateBusinessConfig(cfg); err != nil {
		return BusinessConfig{}, err
	}
	return cfg, nil
}

func normalizeBusinessConfig(cfg BusinessConfig) BusinessConfig {
	defaults := DefaultBusinessConfig()
	numbering := make(map[string]NumberingScheme, len(defaults.Numbering))
	for docType, scheme := range defaults.Numbering {
		numbering[docType] = scheme
	}
	for docType, scheme := range cfg.Numbering {
		key := strings.ToLower(strings.TrimSpace(docType))
		base := numbering[key]
		if strings.TrimSpace(scheme.Template) != "" {
			base.Template = strings.TrimSpace(scheme.Template)
		}
		if scheme.Reset != "" {
			base.Reset = ResetPolicy(strings.ToLower(strings.TrimSpace(string(scheme.Reset))))
		}
		numbering[key] = base
	}
	cfg.Numbering = numbering

	if cfg.Sequence.MaxAttempts == 0 {
		cfg.Sequence.MaxAttempts = defaults.Sequence.MaxAttempts
	}
	if cfg.Placement.BasisDays == 0 {
		cfg.Placement.BasisDays = defaults.Placement.BasisDays
	}
	byType := make(map[string]int, len(cfg.Placement.BasisDaysByType))
	for placementType, days := range cfg.Placement.BasisDaysByType {
		byType[strings.ToLower(strings.TrimSpace(placementType))] = days
	}
	cfg.Placement.BasisDaysByType = byType
	return cfg
}

func validateBusinessConfig(cfg BusinessConfig) error {
	for docType, scheme := range cfg.Numbering {
		if scheme.Template == "" {
			return fmt.Errorf("numbering.%s.template cannot be empty", docType)
		}
		switch scheme.Reset {
		case ResetNever, ResetAnnual, ResetMonthly:
		default:
			return fmt.Errorf("numbering.%s.reset %q is not one of never, annual, monthly", docType, scheme.Reset)
		}
	}
	if cfg.Sequence.MaxAttempts < 1 {
		return errors.New("sequence.max_attempts must be at least 1")
	}
	if cfg.Placement.BasisDays < 1 {
		return errors.New("placement.basis_days must be positive")
	}
	for placementType, days := range cfg.Placement.BasisDaysByType {
		if days < 1 {
			return fmt.Errorf("placement.basis_days_by_type.%s must be positive", placementType)
		}
	}
	return nil
}
