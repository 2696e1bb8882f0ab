// iec104mon supervises an IEC 60870-5-104 RTU link in acknowledgement-only
// mode: it polls the remote station, traces every APDU and never lets a
// command frame reach the wire.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/telwatch/iec104"
)

var (
	configPath string
	remote     string
	ackOnly    bool
	debug      bool
)

var rootCmd = &cobra.Command{
	Use:   "iec104mon",
	Short: "IEC 60870-5-104 ACK-only link monitor",
	Long: `iec104mon connects to an RTU, performs the STARTDT handshake and
acknowledges incoming information frames using window (k), count (w)
and timer (t2) coalescing. Outgoing frames pass a transmit policy that
blocks telecommands.`,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to TOML configuration file")
	rootCmd.Flags().StringVarP(&remote, "remote", "r", "", "RTU address (overrides config)")
	rootCmd.Flags().BoolVar(&ackOnly, "ack-only", true, "block every outgoing frame except acks and STARTDT")
	rootCmd.Flags().BoolVarP(&debug, "debug", "d", false, "enable debug logging (raw APDU hex)")
}

func run(cmd *cobra.Command, args []string) error {
	logger := logrus.New()
	if debug {
		logger.SetLevel(logrus.DebugLevel)
	}
	iec104.SetLogger(logger)

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	cmd.Flags().Visit(func(f *pflag.Flag) {
		logger.Debugf("flag %s=%s", f.Name, f.Value)
	})

	sess, err := iec104.NewSession(cfg)
	if err != nil {
		return err
	}
	logger.Infof("connecting to RTU %s ...", cfg.RemoteAddress)
	if err := sess.Connect(); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer sess.Close()

	err = sess.Run()
	st := sess.Stats()
	logger.Infof("session ended; ack_stats: w=%d t2=%d emergency=%d", st.Count, st.Timer, st.Emergency)
	return err
}

func loadConfig(cmd *cobra.Command) (*iec104.Config, error) {
	var cfg *iec104.Config
	if configPath != "" {
		loaded, err := iec104.LoadConfig(configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		def := iec104.DefaultConfig()
		cfg = &def
	}

	if remote != "" {
		cfg.RemoteAddress = remote
	}
	if cmd.Flags().Changed("ack-only") {
		cfg.AckOnly = ackOnly
	}
	if err := cfg.Valid(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
