package ops

import (
	"math"
	"time"

	"github.com/spf13/viper"
	"github.com/yanun0323/errors"
)

// Config is the resolved runtime configuration, loaded from the
// environment. Interval and window keys are given in seconds.
type Config struct {
	Symbol   string
	OrderQty float64

	// Static spread band, also the fallback when adaptive spread is off.
	TargetBps float64
	MinBps    float64
	MaxBps    float64

	AdaptiveSpread bool
	RiskEMADecay   float64

	QuickTPBps  float64
	StopLossBps float64
	Hold        time.Duration
	MaxHold     time.Duration

	ReconcileInterval     time.Duration
	HealthInterval        time.Duration
	SilenceThreshold      time.Duration
	BalanceReportInterval time.Duration

	AccessToken string
	APIBaseURL  string
	WSStreamURL string

	TelegramBotToken string
	TelegramChatID   string
	AccountName      string

	PostgresDSN   string
	PyroscopeAddr string

	PriceIncrement float64
	PriceDecimals  int
}

// Load reads the configuration from the environment and validates it.
// Anything contradictory or missing is an error; the caller treats that as
// fatal.
func Load() (Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("SYMBOL", "BTC-USD")
	v.SetDefault("ORDER_QTY", 0.0)
	v.SetDefault("TARGET_BPS", 7.5)
	v.SetDefault("MIN_BPS", 7.0)
	v.SetDefault("MAX_BPS", 10.0)
	v.SetDefault("ADAPTIVE_SPREAD", true)
	v.SetDefault("RISK_EMA_DECAY", 0.3)
	v.SetDefault("QUICK_TP_BPS", 5.0)
	v.SetDefault("STOP_LOSS_BPS", 20.0)
	v.SetDefault("HOLD_SECONDS", 30.0)
	v.SetDefault("MAX_HOLD_SECONDS", 300.0)
	v.SetDefault("RECONCILE_INTERVAL", 30.0)
	v.SetDefault("HEALTH_INTERVAL", 5.0)
	v.SetDefault("SILENCE_THRESHOLD", 30.0)
	v.SetDefault("BALANCE_REPORT_INTERVAL", 3600.0)
	v.SetDefault("ACCESS_TOKEN", "")
	v.SetDefault("API_BASE_URL", "")
	v.SetDefault("WS_STREAM_URL", "")
	v.SetDefault("TELEGRAM_BOT_TOKEN", "")
	v.SetDefault("TELEGRAM_CHAT_ID", "")
	v.SetDefault("ACCOUNT_NAME", "")
	v.SetDefault("POSTGRES_DSN", "")
	v.SetDefault("PYROSCOPE_ADDR", "")
	v.SetDefault("PRICE_INCREMENT", 0.01)

	cfg := Config{
		Symbol:                v.GetString("SYMBOL"),
		OrderQty:              v.GetFloat64("ORDER_QTY"),
		TargetBps:             v.GetFloat64("TARGET_BPS"),
		MinBps:                v.GetFloat64("MIN_BPS"),
		MaxBps:                v.GetFloat64("MAX_BPS"),
		AdaptiveSpread:        v.GetBool("ADAPTIVE_SPREAD"),
		RiskEMADecay:          v.GetFloat64("RISK_EMA_DECAY"),
		QuickTPBps:            v.GetFloat64("QUICK_TP_BPS"),
		StopLossBps:           v.GetFloat64("STOP_LOSS_BPS"),
		Hold:                  secondsToDuration(v.GetFloat64("HOLD_SECONDS")),
		MaxHold:               secondsToDuration(v.GetFloat64("MAX_HOLD_SECONDS")),
		ReconcileInterval:     secondsToDuration(v.GetFloat64("RECONCILE_INTERVAL")),
		HealthInterval:        secondsToDuration(v.GetFloat64("HEALTH_INTERVAL")),
		SilenceThreshold:      secondsToDuration(v.GetFloat64("SILENCE_THRESHOLD")),
		BalanceReportInterval: secondsToDuration(v.GetFloat64("BALANCE_REPORT_INTERVAL")),
		AccessToken:           v.GetString("ACCESS_TOKEN"),
		APIBaseURL:            v.GetString("API_BASE_URL"),
		WSStreamURL:           v.GetString("WS_STREAM_URL"),
		TelegramBotToken:      v.GetString("TELEGRAM_BOT_TOKEN"),
		TelegramChatID:        v.GetString("TELEGRAM_CHAT_ID"),
		AccountName:           v.GetString("ACCOUNT_NAME"),
		PostgresDSN:           v.GetString("POSTGRES_DSN"),
		PyroscopeAddr:         v.GetString("PYROSCOPE_ADDR"),
		PriceIncrement:        v.GetFloat64("PRICE_INCREMENT"),
	}
	cfg.PriceDecimals = decimalsOf(cfg.PriceIncrement)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch {
	case c.Symbol == "":
		return errors.New("SYMBOL must be set")
	case c.AccessToken == "":
		return errors.New("ACCESS_TOKEN must be set")
	case c.OrderQty <= 0:
		return errors.New("ORDER_QTY must be > 0")
	case c.MinBps <= 0 || c.TargetBps < c.MinBps || c.MaxBps < c.TargetBps:
		return errors.Errorf("spread band must satisfy 0 < MIN_BPS <= TARGET_BPS <= MAX_BPS, got %.2f/%.2f/%.2f",
			c.MinBps, c.TargetBps, c.MaxBps)
	case c.RiskEMADecay <= 0 || c.RiskEMADecay > 1:
		return errors.Errorf("RISK_EMA_DECAY must be in (0, 1], got %.3f", c.RiskEMADecay)
	case c.QuickTPBps <= 0 || c.StopLossBps <= 0:
		return errors.New("QUICK_TP_BPS and STOP_LOSS_BPS must be > 0")
	case c.Hold <= 0 || c.MaxHold < c.Hold:
		return errors.New("HOLD_SECONDS must be > 0 and MAX_HOLD_SECONDS >= HOLD_SECONDS")
	case c.PriceIncrement <= 0:
		return errors.New("PRICE_INCREMENT must be > 0")
	}
	return nil
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// decimalsOf counts the decimal places of a tick size, e.g. 0.01 -> 2.
func decimalsOf(increment float64) int {
	decimals := 0
	for increment < 1 && decimals < 8 {
		increment *= 10
		decimals++
	}
	if math.Abs(increment-math.Round(increment)) > 1e-9 {
		decimals++
	}
	return decimals
}
