package iec104

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Defaults and ranges for the session parameters. K, W and T2 follow
// the values commonly shipped on Siemens RTU profiles.
const (
	DefaultSendWindowK   = 12
	DefaultAckThresholdW = 8

	DefaultAckTimeoutT2 = 10 * time.Second
	AckTimeoutT2Min     = 1 * time.Second
	AckTimeoutT2Max     = 255 * time.Second

	DefaultReadTimeout      = 10 * time.Second
	DefaultIdleTestInterval = 25 * time.Second

	DefaultConnectTimeout = 30 * time.Second
)

// ForbiddenTypeIDsDefault blocks the single-command and double-command
// ASDU types (C_SC_NA_1, C_DC_NA_1) from ever leaving the station.
var ForbiddenTypeIDsDefault = []byte{45, 46}

// Duration wraps time.Duration so TOML files can carry values like
// "10s" or "250ms".
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) std() time.Duration { return time.Duration(d) }

/*
Config is the deployment configuration of one RTU link. It is fixed for
the lifetime of the process: built once at startup, validated, and then
only read by the session and the transmit policy.
*/
type Config struct {
	// RemoteAddress is the RTU endpoint, e.g. "192.168.11.93:2404".
	// A scheme may select TLS: "tls://host:port".
	RemoteAddress string `toml:"remote_address"`

	// SendStartDT controls whether STARTDT act is sent once after
	// connecting. Most RTUs send no data until it is.
	SendStartDT bool `toml:"send_startdt"`

	// AckOnly forbids every outgoing frame except S-frame
	// acknowledgements and the STARTDT act handshake.
	AckOnly bool `toml:"ack_only"`

	// SendTestFRWhenIdle enables the TESTFR act keep-alive after
	// IdleTestInterval without traffic. The keep-alive still passes
	// the transmit policy, so it stays blocked while AckOnly is set.
	SendTestFRWhenIdle bool     `toml:"send_testfr_when_idle"`
	IdleTestInterval   Duration `toml:"idle_test_interval"`

	// SendWindowK estimates the remote sender's send window "k";
	// the emergency acknowledgement fires when the estimated
	// outstanding count reaches k-2.
	SendWindowK uint16 `toml:"send_window_k"`

	// AckThresholdW is the mandatory-acknowledge count "w".
	AckThresholdW int `toml:"ack_threshold_w"`

	// AckTimeoutT2 is the acknowledgement coalescing deadline "t2".
	AckTimeoutT2 Duration `toml:"ack_timeout_t2"`

	// ReadTimeout bounds each blocking transport read; expiry is
	// treated as idle, not as an error.
	ReadTimeout Duration `toml:"read_timeout"`

	ConnectTimeout Duration `toml:"connect_timeout"`

	// ForbiddenTypeIDs lists ASDU type identifications the transmit
	// policy rejects on outgoing I-frames.
	ForbiddenTypeIDs []byte `toml:"forbidden_type_ids"`
}

// DefaultConfig provides a configuration with every parameter at its
// default. RemoteAddress must still be set by the caller.
func DefaultConfig() Config {
	return Config{
		SendStartDT:        true,
		AckOnly:            true,
		SendTestFRWhenIdle: false,
		IdleTestInterval:   Duration(DefaultIdleTestInterval),
		SendWindowK:        DefaultSendWindowK,
		AckThresholdW:      DefaultAckThresholdW,
		AckTimeoutT2:       Duration(DefaultAckTimeoutT2),
		ReadTimeout:        Duration(DefaultReadTimeout),
		ConnectTimeout:     Duration(DefaultConnectTimeout),
		ForbiddenTypeIDs:   ForbiddenTypeIDsDefault,
	}
}

// Valid applies defaults and checks configuration validity.
func (sf *Config) Valid() error {
	if sf == nil {
		return errors.New("invalid nil config")
	}
	if sf.RemoteAddress == "" {
		return errors.New("remote address must be configured")
	}

	if sf.SendWindowK == 0 {
		sf.SendWindowK = DefaultSendWindowK
	} else if sf.SendWindowK < 2 || sf.SendWindowK >= seqMod {
		return errors.New("send window k out of range [2, 32767]")
	}

	if sf.AckThresholdW == 0 {
		sf.AckThresholdW = DefaultAckThresholdW
	} else if sf.AckThresholdW < 1 {
		return errors.New("ack threshold w must be positive")
	}
	if sf.AckThresholdW > int(sf.SendWindowK) {
		return errors.New("ack threshold w must not exceed send window k")
	}

	if sf.AckTimeoutT2 == 0 {
		sf.AckTimeoutT2 = Duration(DefaultAckTimeoutT2)
	} else if sf.AckTimeoutT2.std() < AckTimeoutT2Min || sf.AckTimeoutT2.std() > AckTimeoutT2Max {
		return errors.New("ack timeout t2 out of range [1, 255]s")
	}

	if sf.ReadTimeout == 0 {
		sf.ReadTimeout = Duration(DefaultReadTimeout)
	} else if sf.ReadTimeout < 0 {
		return errors.New("read timeout must be positive")
	}

	if sf.IdleTestInterval == 0 {
		sf.IdleTestInterval = Duration(DefaultIdleTestInterval)
	} else if sf.IdleTestInterval < 0 {
		return errors.New("idle test interval must be positive")
	}

	if sf.ConnectTimeout == 0 {
		sf.ConnectTimeout = Duration(DefaultConnectTimeout)
	} else if sf.ConnectTimeout < 0 {
		return errors.New("connect timeout must be positive")
	}

	if sf.ForbiddenTypeIDs == nil {
		sf.ForbiddenTypeIDs = ForbiddenTypeIDsDefault
	}
	return nil
}

// LoadConfig reads and validates a TOML configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	cfg := DefaultConfig()
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	if err := cfg.Valid(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// serverURL normalizes RemoteAddress into a URL: a bare ":port" binds
// to localhost and a missing scheme means plain TCP.
func (sf *Config) serverURL() (*url.URL, error) {
	server := sf.RemoteAddress
	if len(server) > 0 && server[0] == ':' {
		server = "127.0.0.1" + server
	}
	if !strings.Contains(server, "://") {
		server = "tcp://" + server
	}
	return url.Parse(server)
}
