package cmd

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	serverURL    string
	outputFormat string
	cfgFile      string
	modelAPIKey  string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "spdata",
	Short: "CLI for the spdata labeling and QA job server",
	Long:  `spdata is a command line interface for managing AI data-labeling and QA jobs: starting, pausing, resuming and inspecting them.`,
}

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.spdata/config)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "job server URL (default from config or http://localhost:8080)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "output", "table", "output format: table or json")
}

// initConfig reads in config file and ENV variables if set
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			os.Exit(1)
		}
		configDir := filepath.Join(home, ".spdata")
		viper.AddConfigPath(configDir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.AutomaticEnv()

	viper.BindEnv("model_api_key", "SPDATA_MODEL_API_KEY")
	viper.BindEnv("server_url", "SPDATA_SERVER_URL")

	if err := viper.ReadInConfig(); err == nil {
		if viper.GetString("server_url") != "" && serverURL == "" {
			serverURL = viper.GetString("server_url")
		}
	}

	if modelAPIKey == "" && viper.GetString("model_api_key") != "" {
		modelAPIKey = viper.GetString("model_api_key")
	}
	if serverURL == "" && viper.GetString("server_url") != "" {
		serverURL = viper.GetString("server_url")
	}
	if serverURL == "" {
		serverURL = "http://localhost:8080"
	}
}

// GetServerURL returns the configured server URL with trailing slashes removed
func GetServerURL() string {
	return strings.TrimRight(serverURL, "/")
}

// IsJSONOutput returns true if JSON output is requested
func IsJSONOutput() bool {
	return outputFormat == "json"
}

// GetModelAPIKey returns the provider API key used for resuming jobs
func GetModelAPIKey() string {
	return modelAPIKey
}

// GetHTTPClient returns the client used for server requests
func GetHTTPClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}
