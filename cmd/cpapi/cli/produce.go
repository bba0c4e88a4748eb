package cli

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	enc "github.com/named-data/Consumer-Producer-API/encoding"
	"github.com/named-data/Consumer-Producer-API/producer"
)

var produceFile string

var cmdProduce = &cobra.Command{
	Use:     "produce PREFIX",
	Short:   "Publish a buffer under a prefix and answer Interests",
	Example: `  cpapi produce /my/data --file big.bin --fast-signing`,
	Args:    cobra.ExactArgs(1),
	RunE:    runProduce,
}

func init() {
	cmdProduce.Flags().StringVar(&produceFile, "file", "", "file to publish (default stdin)")
	cmdProduce.Flags().IntVar(&config.Producer.DataPacketSize, "packet-size", 0, "data packet size limit")
	cmdProduce.Flags().IntVar(&config.Producer.DataFreshness, "freshness", 0, "data freshness in milliseconds")
	cmdProduce.Flags().BoolVar(&config.Producer.FastSigning, "fast-signing", false, "enable manifest chaining")
}

func runProduce(cmd *cobra.Command, args []string) error {
	prefix, err := enc.NameFromStr(args[0])
	if err != nil {
		return fmt.Errorf("invalid prefix %q: %w", args[0], err)
	}

	var content []byte
	if produceFile != "" {
		content, err = os.ReadFile(produceFile)
	} else {
		content, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		return err
	}

	engine, err := newEngine()
	if err != nil {
		return err
	}
	defer engine.Stop()

	opts := producer.Options{
		DataPacketSize: config.Producer.DataPacketSize,
		DataFreshness:  time.Duration(config.Producer.DataFreshness) * time.Millisecond,
		FastSigning:    config.Producer.FastSigning,
		RcvBufSize:     config.Producer.RcvBufSize,
		SndBufSize:     config.Producer.SndBufSize,
	}

	p, err := producer.New(prefix, opts, engine)
	if err != nil {
		return err
	}
	if err := p.Attach(); err != nil {
		return err
	}
	defer p.Detach()

	if err := p.Produce(nil, content); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "published %d bytes under %s\n", len(content), prefix)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	return nil
}
