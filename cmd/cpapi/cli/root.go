// Package cli implements the cpapi command tree: an example producer
// serving a buffer under a prefix and a consumer fetching it back.
package cli

import (
	"os"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"

	"github.com/named-data/Consumer-Producer-API/log"
)

// Config is the optional YAML configuration shared by the commands.
type Config struct {
	// Face is the forwarder address, e.g. unix:///run/nfd/nfd.sock,
	// tcp://127.0.0.1:6363 or ws://127.0.0.1:9696.
	Face string `yaml:"face"`
	// LogLevel is one of TRACE DEBUG INFO WARN ERROR FATAL.
	LogLevel string `yaml:"log_level"`

	Producer ProducerConfig `yaml:"producer"`
	Consumer ConsumerConfig `yaml:"consumer"`
}

type ProducerConfig struct {
	DataPacketSize int  `yaml:"data_packet_size"`
	DataFreshness  int  `yaml:"data_freshness_ms"`
	FastSigning    bool `yaml:"fast_signing"`
	RcvBufSize     int  `yaml:"rcv_buf_size"`
	SndBufSize     int  `yaml:"snd_buf_size"`
}

type ConsumerConfig struct {
	Protocol         string `yaml:"protocol"`
	InterestLifetime int    `yaml:"interest_lifetime_ms"`
	InterestRetx     int    `yaml:"interest_retx"`
	MinWindowSize    int    `yaml:"min_window_size"`
	MaxWindowSize    int    `yaml:"max_window_size"`
	MustBeFresh      bool   `yaml:"must_be_fresh"`
}

var configPath string
var config = Config{
	Face: "unix:///run/nfd/nfd.sock",
}

var CmdRoot = &cobra.Command{
	Use:   "cpapi",
	Short: "cpapi is the Consumer/Producer API example tool",
	Long: `cpapi publishes and retrieves Application Data Units over an
NDN forwarder using the Consumer/Producer API library.`,
	PersistentPreRunE: loadConfig,
	SilenceUsage:      true,
}

func init() {
	CmdRoot.PersistentFlags().StringVar(&configPath, "config", "", "YAML configuration file")
	CmdRoot.PersistentFlags().StringVar(&config.Face, "face", config.Face, "forwarder address")
	CmdRoot.AddCommand(cmdProduce)
	CmdRoot.AddCommand(cmdConsume)
}

func loadConfig(cmd *cobra.Command, args []string) error {
	if configPath != "" {
		raw, err := os.ReadFile(configPath)
		if err != nil {
			return err
		}
		if err := yaml.Unmarshal(raw, &config); err != nil {
			return err
		}
	}
	if config.LogLevel != "" {
		level, err := log.ParseLevel(config.LogLevel)
		if err != nil {
			return err
		}
		log.Default().SetLevel(level)
	}
	return nil
}
