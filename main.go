package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"github.com/GoldenFealla/SyncPlayerGo/internal/config"
	"github.com/GoldenFealla/SyncPlayerGo/internal/decoder"
	"github.com/GoldenFealla/SyncPlayerGo/internal/logger"
	"github.com/GoldenFealla/SyncPlayerGo/internal/media"
	"github.com/GoldenFealla/SyncPlayerGo/internal/output"
	"github.com/GoldenFealla/SyncPlayerGo/internal/widget"
	"github.com/asticode/go-astiav"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var version = "dev"

var (
	WIDTH  = float32(800)
	HEIGHT = float32(450)
)

var flags struct {
	config   string
	logLevel string
	width    int
	height   int
	volume   float64
}

var rootCmd = &cobra.Command{
	Use:           "syncplayer [flags] <file>",
	Short:         "Play a media file with video synchronized to the audio clock.",
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return play(cmd, args[0])
	},
}

var probeCmd = &cobra.Command{
	Use:   "probe <file>",
	Short: "Print the streams of a media file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return probe(cmd, args[0])
	},
	DisableFlagsInUseLine: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print syncplayer version information",
	RunE: func(cmd *cobra.Command, _ []string) error {
		fmt.Fprintf(cmd.OutOrStdout(), "syncplayer %s\n", version)
		return nil
	},
	DisableFlagsInUseLine: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flags.config, "config", "c", "syncplayer.yaml", "config file")
	pf.StringVar(&flags.logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")

	f := rootCmd.Flags()
	f.IntVar(&flags.width, "width", 0, "output width, 0 keeps the source width")
	f.IntVar(&flags.height, "height", 0, "output height, 0 keeps the source height")
	f.Float64Var(&flags.volume, "volume", 1, "audio volume between 0 and 1")

	rootCmd.SetOut(os.Stdout)
	rootCmd.SetErr(os.Stderr)
	rootCmd.AddCommand(probeCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(flags.config)
	if err != nil {
		return nil, err
	}

	if cmd.Flags().Changed("log-level") {
		cfg.Logging.Level = flags.logLevel
	}
	if cmd.Flags().Changed("width") {
		cfg.Video.Width = flags.width
	}
	if cmd.Flags().Changed("height") {
		cfg.Video.Height = flags.height
	}
	if cmd.Flags().Changed("volume") {
		cfg.Audio.Volume = flags.volume
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setupLogging(cfg *config.Config) zerolog.Logger {
	log := logger.New(cfg.Logging.Level, cfg.Logging.Pretty)

	media.SetLogger(log)
	decoder.SetLogger(log)
	astiav.SetLogLevel(astiav.LogLevelError)

	return log
}

func play(cmd *cobra.Command, path string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := setupLogging(cfg)

	a := app.New()
	w := a.NewWindow(fmt.Sprintf("%s - %s", cfg.Video.Title, filepath.Base(path)))

	vf := widget.NewVideoFrame()
	vf.Attach(w)

	m := media.New(cfg.Media(), media.Collaborators{
		Opener: decoder.NewOpener(decoder.AudioFormat{
			SampleRate: cfg.Audio.SampleRate,
			Channels:   cfg.Audio.Channels,
		}, cfg.Video.Width, cfg.Video.Height),
		Output: output.NewOto(output.Options{
			SampleRate: cfg.Audio.SampleRate,
			Channels:   cfg.Audio.Channels,
			BufferSize: cfg.Audio.Buffer,
			Volume:     cfg.Audio.Volume,
		}, log),
		Surface: vf,
		Events:  vf,
	})

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := m.Start(ctx, path); err != nil {
		return err
	}

	w.Resize(windowSize(cfg, m.Streams()))

	var g errgroup.Group
	g.Go(func() error {
		defer fyne.Do(a.Quit)

		err := m.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	w.ShowAndRun()
	cancel()

	err = errors.Join(g.Wait(), m.Stop())

	st := m.Stats()
	log.Info().
		Int64("packets", st.PacketsRead).
		Int64("decoded", st.FramesDecoded).
		Int64("presented", st.FramesPresented).
		Int64("dropped", st.FramesDropped).
		Int64("underruns", st.AudioUnderruns).
		Int64("decode_errors", st.DecodeErrors).
		Int64("degraded_timestamps", st.DegradedTimestamps).
		Msg("playback summary")

	return err
}

func windowSize(cfg *config.Config, streams []media.StreamInfo) fyne.Size {
	if cfg.Video.Width > 0 && cfg.Video.Height > 0 {
		return fyne.NewSize(float32(cfg.Video.Width), float32(cfg.Video.Height))
	}
	for _, s := range streams {
		if s.Kind == media.KindVideo && s.Width > 0 && s.Height > 0 {
			return fyne.NewSize(float32(s.Width), float32(s.Height))
		}
	}
	return fyne.NewSize(WIDTH, HEIGHT)
}

func probe(cmd *cobra.Command, path string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	setupLogging(cfg)

	in, err := decoder.OpenInput(path)
	if err != nil {
		return err
	}
	defer in.Close()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s\n", path)
	if d := in.Duration(); d > 0 {
		fmt.Fprintf(out, "  duration: %s\n", d)
	}

	for _, s := range in.Streams() {
		switch s.Kind {
		case media.KindVideo:
			fmt.Fprintf(out, "  #%d video: %s %dx%d %.3f fps\n", s.Index, s.Codec, s.Width, s.Height, s.FrameRate)
		case media.KindAudio:
			fmt.Fprintf(out, "  #%d audio: %s %d Hz %d ch\n", s.Index, s.Codec, s.SampleRate, s.Channels)
		}
	}

	video, audio := media.SelectStreams(in.Streams())
	if video == nil && audio == nil {
		return fmt.Errorf("probe: %s: %w", path, media.ErrNoStream)
	}
	return nil
}
