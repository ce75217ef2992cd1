package notifier

import "time"

// Config tunes delivery fan-out.
type Config struct {
	// BatchSize caps how many sends run concurrently. A batch must
	// finish before the next one starts.
	BatchSize int `yaml:"batch_size" json:"batch_size"`

	// RatePerSec throttles sends across all batches. Zero disables
	// throttling.
	RatePerSec float64 `yaml:"rate_per_sec" json:"rate_per_sec"`

	// SendTimeout bounds one send attempt.
	SendTimeout time.Duration `yaml:"send_timeout" json:"send_timeout"`

	// RetryMax is how many times a failed send is retried.
	RetryMax int `yaml:"retry_max" json:"retry_max"`
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 15 * time.Second
	}
	if c.RetryMax < 0 {
		c.RetryMax = 0
	}
	return c
}

// Result summarizes one fan-out.
type Result struct {
	// ID correlates log lines of one delivery.
	ID string

	// Duplicate means the message was suppressed before any send.
	Duplicate bool

	Sent    int
	Skipped int
	Failed  int
}
