package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/named-data/Consumer-Producer-API/consumer"
	enc "github.com/named-data/Consumer-Producer-API/encoding"
	"github.com/named-data/Consumer-Producer-API/types/optional"
)

var cmdConsume = &cobra.Command{
	Use:     "consume NAME",
	Short:   "Retrieve one Application Data Unit and write it to stdout",
	Example: `  cpapi consume /my/data > big.bin`,
	Args:    cobra.ExactArgs(1),
	RunE:    runConsume,
}

func init() {
	cmdConsume.Flags().StringVar(&config.Consumer.Protocol, "protocol", "rdr", "retrieval protocol: rdr, udr or sdr")
	cmdConsume.Flags().IntVar(&config.Consumer.InterestLifetime, "lifetime", 0, "interest lifetime in milliseconds (0 uses the default; rdr then tracks RTT)")
	cmdConsume.Flags().IntVar(&config.Consumer.InterestRetx, "retx", 0, "retransmission budget per segment")
	cmdConsume.Flags().IntVar(&config.Consumer.MaxWindowSize, "window", 0, "maximum window size")
	cmdConsume.Flags().BoolVar(&config.Consumer.MustBeFresh, "fresh", false, "request only fresh segments")
}

func runConsume(cmd *cobra.Command, args []string) error {
	name, err := enc.NameFromStr(args[0])
	if err != nil {
		return fmt.Errorf("invalid name %q: %w", args[0], err)
	}

	var proto consumer.Protocol
	switch config.Consumer.Protocol {
	case "rdr", "":
		proto = consumer.RDR
	case "udr":
		proto = consumer.UDR
	case "sdr":
		proto = consumer.SDR
	default:
		return fmt.Errorf("unknown protocol %q", config.Consumer.Protocol)
	}

	engine, err := newEngine()
	if err != nil {
		return err
	}
	defer engine.Stop()

	done := make(chan error, 1)
	opts := consumer.Options{
		MinWindowSize:      config.Consumer.MinWindowSize,
		MaxWindowSize:      config.Consumer.MaxWindowSize,
		MustBeFresh:        config.Consumer.MustBeFresh,
		OnContentRetrieved: func(_ *consumer.Consumer, content []byte) {
			os.Stdout.Write(content)
			done <- nil
		},
		OnError: func(_ *consumer.Consumer, err error) {
			done <- err
		},
	}
	if config.Consumer.InterestLifetime > 0 {
		opts.Lifetime = optional.Some(time.Duration(config.Consumer.InterestLifetime) * time.Millisecond)
	}
	if config.Consumer.InterestRetx > 0 {
		opts.InterestRetx = optional.Some(config.Consumer.InterestRetx)
	}

	c, err := consumer.New(name, proto, opts, engine)
	if err != nil {
		return err
	}
	if err := c.Consume(nil); err != nil {
		return err
	}
	return <-done
}
