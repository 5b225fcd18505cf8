package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/aasubsidy/subsidyctl/internal/common"
	"github.com/aasubsidy/subsidyctl/internal/utils"
	"github.com/aasubsidy/subsidyctl/pkg/config"
	"github.com/spf13/cobra"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "subsidyctl",
	Short: "Review contracts and manage fit claims from the command line.",
	Long: `subsidyctl drives the subsidy web application: sort and filter the contract
review table, approve or deny contracts one by one or in bulk, and claim the
doctrine fits you will deliver.

Configure server.base_url and server.session_cookie in ~/.subsidyctl.yaml.`,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		var userErr *common.UserError
		var validation *common.ValidationError
		switch {
		case errors.As(err, &validation):
			fmt.Fprintln(os.Stderr, validation.Error())
		case errors.As(err, &userErr):
			fmt.Fprintln(os.Stderr, userErr.UserMessage)
			utils.Log.Debugf("%v", err)
		default:
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.subsidyctl.yaml)")

	// Global flags
	rootCmd.PersistentFlags().StringP("proxy", "", "", "HTTP Proxy (Useful for debugging. Example: http://127.0.0.1:8080)")
	rootCmd.PersistentFlags().StringP("loglevel", "l", "info", "Set log level. Available: debug, info, warn, error, fatal")
	rootCmd.PersistentFlags().String("base-url", "", "Base URL of the subsidy application (overrides server.base_url)")
	rootCmd.PersistentFlags().String("dbpath", "", "Path to SQLite DB file (default: ~/.config/subsidyctl/subsidyctl.sqlite)")
	rootCmd.PersistentFlags().String("metrics-textfile", "", "Write action counters to this file in Prometheus textfile format")

	viper.BindPFlag("server.base_url", rootCmd.PersistentFlags().Lookup("base-url"))
	viper.BindPFlag("db.path", rootCmd.PersistentFlags().Lookup("dbpath"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		viper.AddConfigPath(home)
		viper.SetConfigName(".subsidyctl")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("subsidyctl")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Defaults go in first so a freshly written config file lists every key.
	config.SetDefaults(viper.GetViper())

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; create it with defaults.
			home, _ := homedir.Dir()
			configPath := home + "/.subsidyctl.yaml"
			if err := viper.SafeWriteConfigAs(configPath); err != nil {
				fmt.Printf("Error creating config file: %s", err)
			}
		}
	}

	// Init log library
	levelString, _ := rootCmd.PersistentFlags().GetString("loglevel")
	utils.SetLogLevel(levelString)
}
