package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"sync"

	"github.com/evilsocket/islazy/log"
	"github.com/evilsocket/islazy/tui"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	polyv "github.com/DevLARLEY/gopolyv"
	"github.com/DevLARLEY/gopolyv/services"
)

const (
	appName    = "polyvget"
	appVersion = "1.0.0"
)

var logLevels = map[string]log.Verbosity{
	"debug":   log.DEBUG,
	"info":    log.INFO,
	"warning": log.WARNING,
	"error":   log.ERROR,
}

type options struct {
	subtitles  bool
	maxThreads int
	outputDir  string
	logLevel   string
	resolution string
	insecure   bool
}

func main() {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   appName + " <service> <videoId> [cookie]",
		Short: "Modular PolyV (version 11, 12, 13) downloader",
		Long:  "Modular PolyV (version 11, 12, 13) downloader.\n\n" + servicesHelp(),
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts, args)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Flags().BoolVarP(&opts.subtitles, "subtitles", "s", false, "download the video's subtitles")
	cmd.Flags().IntVarP(&opts.maxThreads, "max-threads", "t", 4, "maximum number of concurrent fragment downloads")
	cmd.Flags().StringVarP(&opts.outputDir, "output-directory", "o", ".", "output directory")
	cmd.Flags().StringVarP(&opts.logLevel, "log-level", "l", "info", "log level (debug, info, warning, error)")
	cmd.Flags().StringVarP(&opts.resolution, "resolution", "r", "", "resolution label to download, highest if empty")
	cmd.Flags().BoolVar(&opts.insecure, "insecure", false, "skip TLS certificate verification")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := cmd.ExecuteContext(ctx); err != nil {
		log.Fatal("%s", err)
	}
}

func servicesHelp() string {
	var sb strings.Builder
	sb.WriteString("Service names and their cookie names:\n")
	for _, name := range services.Names() {
		c, _ := services.New(name, nil)
		sb.WriteString(fmt.Sprintf("  %s: %s\n", name, c.CookieName()))
	}
	return sb.String()
}

func setupLog(level string) error {
	v, ok := logLevels[strings.ToLower(level)]
	if !ok {
		return fmt.Errorf("unknown log level %q", level)
	}

	log.Output = ""
	log.Level = v
	log.OnFatal = log.ExitOnFatal
	log.Format = "[{datetime}] {level:color}{level:name}{reset} {message}"
	return nil
}

func run(ctx context.Context, opts *options, args []string) error {
	if err := setupLog(opts.logLevel); err != nil {
		return err
	}

	fmt.Printf("%s %s\n", tui.Bold(appName+" v"+appVersion), tui.Dim(fmt.Sprintf("(built for %s %s with %s)", runtime.GOOS, runtime.GOARCH, runtime.Version())))

	var clientOpts []polyv.ClientOption
	if opts.insecure {
		clientOpts = append(clientOpts, polyv.WithInsecureSkipVerify())
	}
	client := polyv.NewClient(clientOpts...)

	connector, err := services.New(args[0], client)
	if err != nil {
		return err
	}
	if len(args) == 3 {
		client.SetCookie(connector.CookieName(), args[2], connector.CookieDomain())
	}

	creds, err := polyv.NewCredentials(ctx, polyv.FromConnector(connector, args[1]))
	if err != nil {
		return err
	}

	session := polyv.NewSession(creds,
		polyv.WithClient(client),
		polyv.WithOutputDir(opts.outputDir),
		polyv.WithMaxThreads(opts.maxThreads),
		polyv.WithProgress(newProgress()),
	)

	if err = session.Load(ctx); err != nil {
		return err
	}

	video := session.Video()
	for i := range video.Resolution {
		log.Info("available: %s", video.QualityString(i))
	}

	if _, err = session.Download(ctx, opts.resolution); err != nil {
		return err
	}

	if opts.subtitles {
		log.Info("downloading subtitles...")
		if _, err = session.DownloadSubtitles(ctx); err != nil {
			return err
		}
	}

	log.Info("done")
	return nil
}

// newProgress renders fragment progress. The bar is created on the first
// report since the fragment count is unknown before the playlist is parsed.
func newProgress() polyv.Progress {
	var (
		once sync.Once
		bar  *progressbar.ProgressBar
	)

	return func(_, total int) {
		once.Do(func() {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetDescription("Downloading..."),
				progressbar.OptionShowCount(),
				progressbar.OptionClearOnFinish(),
				progressbar.OptionEnableColorCodes(true),
				progressbar.OptionSetPredictTime(false),
			)
		})
		_ = bar.Add(1)
	}
}
