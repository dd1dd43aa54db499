// internal/workers/recommendation/explain-recommendation/config.go
package explainrecommendation

import (
	"fmt"
	"time"

	"welfare-recommender/internal/common/config"
)

type Config struct {
	Timeout         time.Duration
	DefaultLanguage string
}

func LoadConfig(wcfg config.WorkerConfig) *Config {
	timeout := config.GetDuration(wcfg.Timeout)
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Config{Timeout: timeout, DefaultLanguage: "en"}
}

func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	return nil
}
