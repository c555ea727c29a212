package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/khanhnv2901/webposture/internal/progress"
	"github.com/khanhnv2901/webposture/internal/safety"
	"github.com/khanhnv2901/webposture/internal/scan"
	"github.com/khanhnv2901/webposture/internal/store"
)

var cfgFile string
var logger *zap.SugaredLogger
var dbPath string
var verbose bool

var rootCmd = &cobra.Command{
	Use:   "webposture",
	Short: "Passive website security posture scanner (for authorized targets only)",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// init config
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			viper.AddConfigPath("$HOME")
			viper.SetConfigName(".webposture")
			viper.SetConfigType("yaml")
		}

		_ = viper.ReadInConfig()
		applyConfigDefaults()
		if dbPath == "" {
			dbPath = viper.GetString("db_path")
		}
		if dbPath == "" {
			dbPath = "./webposture.db"
		}
		if dbPath != ":memory:" {
			if abs, err := filepath.Abs(dbPath); err == nil {
				dbPath = abs
			}
		}

		// init logger
		var l *zap.Logger
		var err error
		if verbose {
			l, err = zap.NewProduction()
		} else {
			l = zap.NewNop()
		}
		if err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}
		logger = l.Sugar()

		logger.Infof("db_path=%s", dbPath)

		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.webposture.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "path to the scan history database (default ./webposture.db)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable structured log output")
}

// scanStack bundles the wired scan pipeline and the resources it owns.
type scanStack struct {
	Service *scan.Service
	Store   *store.SQLiteStore
	Tracker *progress.Tracker
	Gate    *safety.Gate
}

func (s *scanStack) Close() error {
	return s.Store.Close()
}

func newScanStack(path string, l *zap.Logger) (*scanStack, error) {
	if l == nil {
		l = zap.NewNop()
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening scan database: %w", err)
	}
	tracker := progress.NewTracker(st)
	gate := safety.NewGate(l)
	orch := &scan.Orchestrator{
		Probes:  scan.DefaultProbes(),
		Tracker: tracker,
		Logger:  l,
	}
	return &scanStack{
		Service: scan.NewService(gate, orch, tracker, st, l),
		Store:   st,
		Tracker: tracker,
		Gate:    gate,
	}, nil
}
