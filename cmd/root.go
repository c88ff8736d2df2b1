package cmd

import (
	"context"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/BurntSushi/toml"
	"github.com/creasty/defaults"
	"github.com/ethpandaops/errorfilter/pkg/filter"
	"github.com/ethpandaops/errorfilter/pkg/filter/source"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v2"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "errorfilter",
	Short: "Suppress repeated runtime diagnostics before they reach the debug log",
	Long: `Reads newline-delimited JSON diagnostics from stdin (or --input), drops repeats
seen within the configured window and appends the rest to the debug log.
Diagnostics the filter does not manage are echoed to stderr.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := initCommon()

		f, err := filter.New(log, cfg)
		if err != nil {
			log.WithError(err).Fatal("failed to create filter")
		}

		var in io.Reader = os.Stdin

		if inputFile != "" {
			file, err := os.Open(inputFile)
			if err != nil {
				log.WithError(err).Fatal("failed to open input")
			}
			defer file.Close()

			in = file
		}

		if err := run(f, cfg, in); err != nil {
			log.WithError(err).Fatal("filter stopped with error")
		}
	},
}

var (
	cfgFile   string
	inputFile string
	log       = logrus.New()
)

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config.yaml", "config file (default is config.yaml)")
	rootCmd.Flags().StringVar(&inputFile, "input", "", "read events from this file instead of stdin")
}

func run(f *filter.Filter, cfg *filter.Config, in io.Reader) error {
	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := f.Start(sigCtx); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(sigCtx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	failed := make(chan error, 1)
	ingested := make(chan struct{})

	if cfg.MetricsAddr != "" {
		g.Go(func() error {
			err := f.ServeMetrics(gctx)
			if err != nil {
				failed <- err
			}

			return err
		})
	}

	g.Go(func() error {
		// ingest finishing ends the run
		defer cancel()
		defer close(ingested)

		counts, err := source.NewReader(log, f, os.Stderr).Run(gctx, in)

		log.WithFields(logrus.Fields{
			"read":     counts.Read,
			"handled":  counts.Handled,
			"fallback": counts.Fallback,
			"invalid":  counts.Invalid,
		}).Info("ingest finished")

		if err != nil && gctx.Err() == nil {
			return err
		}

		return nil
	})

	<-gctx.Done()

	var err error

	// the reader can be blocked on stdin, so only wait for it once it has returned
	select {
	case <-ingested:
		err = g.Wait()
	case err = <-failed:
		log.WithError(err).Error("metrics server failed, shutting down")
	default:
		log.Info("caught signal, shutting down")
	}

	if stopErr := f.Stop(context.Background()); stopErr != nil {
		log.WithError(stopErr).Warn("failed to close filter")
	}

	return err
}

func loadConfigFromFile(file string) (*filter.Config, error) {
	if file == "" {
		file = "config.yaml"
	}

	config := &filter.Config{}

	if err := defaults.Set(config); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}

	type plain filter.Config

	if strings.EqualFold(filepath.Ext(file), ".toml") {
		if _, err := toml.Decode(string(data), (*plain)(config)); err != nil {
			return nil, err
		}

		return config, nil
	}

	if err := yaml.Unmarshal(data, (*plain)(config)); err != nil {
		return nil, err
	}

	return config, nil
}

func initCommon() *filter.Config {
	log.SetFormatter(&logrus.TextFormatter{})

	log.WithField("cfgFile", cfgFile).Info("loading config")

	config, err := loadConfigFromFile(cfgFile)
	if err != nil {
		log.Fatal(err)
	}

	if err := config.Validate(); err != nil {
		log.WithError(err).Fatal("invalid config")
	}

	logLevel, err := logrus.ParseLevel(config.LoggingLevel)
	if err != nil {
		log.WithField("logLevel", config.LoggingLevel).Fatal("invalid logging level")
	}

	if config.Debug {
		logLevel = logrus.DebugLevel
	}

	log.SetLevel(logLevel)

	return config
}
