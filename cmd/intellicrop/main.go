package main

import (
	"fmt"
	"os"
	"runtime"
	"runtime/debug"

	"github.com/common-nighthawk/go-figure"
	bannercolor "github.com/fatih/color"
	"github.com/intellicrop/weedmask-api/internal/logging"
	"github.com/intellicrop/weedmask-api/internal/notification"
	"github.com/intellicrop/weedmask-api/internal/properties"
	"github.com/spf13/cobra"
)

type globalFlags struct {
	configPath string
	logLevel   string
	jsonLogs   bool
	noBanner   bool
}

func printBanner() {
	figure1 := figure.NewFigure("Intellicrop", "isometric1", true)
	bannercolor.Cyan(figure1.String())
	fmt.Println()
}

func newRootCmd(cfg *properties.Config) *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:           "intellicrop",
		Short:         "Weed mask prediction for multispectral drone captures",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := properties.Load(flags.configPath)
			if err != nil {
				return err
			}
			if flags.logLevel != "" {
				loaded.LogLevel = flags.logLevel
			}
			if flags.jsonLogs {
				loaded.LogJSON = true
			}
			logging.Setup(loaded.LogLevel, loaded.LogJSON)
			if !flags.noBanner && !loaded.LogJSON {
				printBanner()
			}
			*cfg = loaded
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "YAML configuration file")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "debug, info, warn or error")
	root.PersistentFlags().BoolVar(&flags.jsonLogs, "json-logs", false, "emit JSON log lines")
	root.PersistentFlags().BoolVar(&flags.noBanner, "no-banner", false, "skip the startup banner")

	root.AddCommand(
		newIndicesCmd(cfg),
		newAssembleCmd(cfg),
		newPredictCmd(cfg),
		newServeCmd(cfg),
		newModelServerCmd(cfg),
	)
	return root
}

// reportPanic prints the panic location and forwards the stack to the error webhook.
func reportPanic(cfg *properties.Config) {
	r := recover()
	if r == nil {
		return
	}
	pc, file, line, ok := runtime.Caller(3)
	location := "Unknown location"
	if ok {
		location = fmt.Sprintf("%s:%d in %s", file, line, runtime.FuncForPC(pc).Name())
	}

	bannercolor.Red("\nPANIC: %v", r)
	bannercolor.Red("Location: %s", location)
	bannercolor.Red("Exiting...")

	errMessage := fmt.Sprintf("Intellicrop panic:\n\n%v\n\nLocation: %s\n\nStack trace:\n%s", r, location, debug.Stack())
	if err := notification.SendDiscordErrorNotification(cfg.Notifications.DiscordErrorURL, errMessage); err != nil {
		bannercolor.Red("Failed to send notification: %s", err.Error())
	}
	os.Exit(2)
}

func main() {
	cfg := properties.Defaults()
	defer reportPanic(&cfg)

	properties.LoadEnv("../../.env", "../.env", ".env")
	if loaded, err := properties.Load(""); err == nil {
		cfg = loaded
	}

	if err := newRootCmd(&cfg).Execute(); err != nil {
		bannercolor.Red("Error: %s", err.Error())
		os.Exit(1)
	}
}
