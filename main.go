package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"bulk-watermark/internal/controller"
	"bulk-watermark/internal/events"
	"bulk-watermark/internal/ffmpeg"
	"bulk-watermark/internal/media"
	"bulk-watermark/internal/preset"
	"bulk-watermark/internal/preview"
	"bulk-watermark/internal/processor"
	"bulk-watermark/internal/settings"
	"bulk-watermark/internal/thumbnail"
	"bulk-watermark/pkg/types"
)

var (
	logger zerolog.Logger

	rootCmd = &cobra.Command{
		Use:   "bulk-watermark",
		Short: "Bulk-apply text or image watermarks to photos and videos",
		Long: `bulk-watermark applies a text or image watermark to photos and videos
using an FFmpeg binary, one file at a time.

Examples:
  # Watermark two photos with bottom-right text
  bulk-watermark batch -o ./out --text "© studio" a.jpg b.jpg

  # Apply a stored preset to a directory worth of videos
  bulk-watermark batch -o ./out --preset subtle-corner *.mp4

  # Put a logo at a custom position, 30% of the frame width
  bulk-watermark batch -o ./out --type image --image logo.png \
    --image-scale 30 --position-mode custom --pos-x 0.5 --pos-y 0.9 in.mp4`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := zerolog.InfoLevel
			if verbose {
				level = zerolog.DebugLevel
			}
			logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
				Level(level).
				With().Timestamp().Logger()
		},
	}

	batchCmd = &cobra.Command{
		Use:   "batch [files...]",
		Short: "Watermark a list of files into an output directory",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runBatch,
	}

	singleCmd = &cobra.Command{
		Use:   "single",
		Short: "Watermark one file to an explicit output path",
		RunE:  runSingle,
	}

	previewCmd = &cobra.Command{
		Use:   "preview",
		Short: "Render a still preview of the watermark without FFmpeg encoding",
		RunE:  runPreview,
	}

	inspectCmd = &cobra.Command{
		Use:   "inspect [file]",
		Short: "Show media metadata for a file",
		Args:  cobra.ExactArgs(1),
		RunE:  runInspect,
	}

	presetCmd = &cobra.Command{
		Use:   "preset",
		Short: "Work with stored watermark presets",
	}

	presetListCmd = &cobra.Command{
		Use:   "list",
		Short: "List available presets",
		RunE:  runPresetList,
	}

	presetShowCmd = &cobra.Command{
		Use:   "show [id]",
		Short: "Print a preset's configuration",
		Args:  cobra.ExactArgs(1),
		RunE:  runPresetShow,
	}

	cacheCmd = &cobra.Command{
		Use:   "cache",
		Short: "Manage the video thumbnail cache",
	}

	cacheCleanCmd = &cobra.Command{
		Use:   "clean",
		Short: "Remove old cached thumbnails",
		RunE:  runCacheClean,
	}
)

var (
	verbose      bool
	ffmpegBinary string
	settingsFile string
	presetsDir   string
	presetID     string
	outputDir    string
	inputPath    string
	outputPath   string
	maxAgeDays   int

	flagType         string
	flagText         string
	flagTextColor    string
	flagFontSize     int
	flagFontFamily   string
	flagImage        string
	flagImageScale   int
	flagPosition     string
	flagPositionMode string
	flagPosX         float64
	flagPosY         float64
	flagOpacity      int
)

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&ffmpegBinary, "ffmpeg", "", "Path to the FFmpeg binary")
	rootCmd.PersistentFlags().StringVar(&settingsFile, "settings", "", "Path to the settings file")
	rootCmd.PersistentFlags().StringVar(&presetsDir, "presets-dir", "", "Directory holding preset JSON files")

	for _, cmd := range []*cobra.Command{batchCmd, singleCmd, previewCmd} {
		cmd.Flags().StringVar(&presetID, "preset", "", "Start from a stored preset")
		cmd.Flags().StringVar(&flagType, "type", "", "Watermark type (text or image)")
		cmd.Flags().StringVar(&flagText, "text", "", "Watermark text")
		cmd.Flags().StringVar(&flagTextColor, "text-color", "", "Text color (#rrggbb)")
		cmd.Flags().IntVar(&flagFontSize, "font-size", 0, "Font size in points")
		cmd.Flags().StringVar(&flagFontFamily, "font-family", "", "Font family or font file path")
		cmd.Flags().StringVar(&flagImage, "image", "", "Watermark image path")
		cmd.Flags().IntVar(&flagImageScale, "image-scale", 0, "Image watermark width as percent of source width (1-100)")
		cmd.Flags().StringVar(&flagPosition, "position", "", "Anchor position (e.g. bottom-right, center)")
		cmd.Flags().StringVar(&flagPositionMode, "position-mode", "", "Position mode (preset or custom)")
		cmd.Flags().Float64Var(&flagPosX, "pos-x", 0, "Custom position x in [0,1]")
		cmd.Flags().Float64Var(&flagPosY, "pos-y", 0, "Custom position y in [0,1]")
		cmd.Flags().IntVar(&flagOpacity, "opacity", 0, "Opacity 0-100")
	}

	batchCmd.Flags().StringVarP(&outputDir, "output", "o", "", "Output directory")

	singleCmd.Flags().StringVarP(&inputPath, "input", "i", "", "Input file")
	singleCmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output file")
	singleCmd.MarkFlagRequired("input")
	singleCmd.MarkFlagRequired("output")

	previewCmd.Flags().StringVarP(&inputPath, "input", "i", "", "Input file (photo or video)")
	previewCmd.Flags().StringVarP(&outputPath, "output", "o", "preview.png", "Preview output image")
	previewCmd.MarkFlagRequired("input")

	cacheCleanCmd.Flags().IntVar(&maxAgeDays, "max-age-days", 7, "Delete thumbnails older than this many days")

	presetCmd.AddCommand(presetListCmd)
	presetCmd.AddCommand(presetShowCmd)
	cacheCmd.AddCommand(cacheCleanCmd)

	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(singleCmd)
	rootCmd.AddCommand(previewCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(presetCmd)
	rootCmd.AddCommand(cacheCmd)
}

func loadSettings() (settings.Store, settings.Settings) {
	path := settingsFile
	if path == "" {
		var err error
		path, err = settings.DefaultPath()
		if err != nil {
			logger.Warn().Err(err).Msg("settings unavailable")
			return nil, settings.Settings{}
		}
	}
	store := settings.NewFileStore(path)
	st, err := store.Load()
	if err != nil {
		logger.Warn().Err(err).Msg("failed to load settings, using defaults")
	}
	return store, st
}

func resolvePresetsDir(st settings.Settings) string {
	if presetsDir != "" {
		return presetsDir
	}
	if st.PresetsDir != "" {
		return st.PresetsDir
	}
	return "presets"
}

func resolveBinary(st settings.Settings) string {
	if ffmpegBinary != "" {
		return ffmpegBinary
	}
	return st.FFmpegPath
}

// buildConfig assembles the watermark configuration: defaults, then
// the chosen preset, then explicitly set flags on top.
func buildConfig(cmd *cobra.Command, st settings.Settings) (*types.WatermarkConfig, error) {
	cfg := types.DefaultConfig()

	if presetID != "" {
		loaded, err := preset.Load(resolvePresetsDir(st), presetID)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("type") {
		cfg.WatermarkType = types.WatermarkType(flagType)
	}
	if flags.Changed("text") {
		cfg.Text = flagText
	}
	if flags.Changed("text-color") {
		cfg.TextColor = flagTextColor
	}
	if flags.Changed("font-size") {
		cfg.FontSize = flagFontSize
	}
	if flags.Changed("font-family") {
		cfg.FontFamily = flagFontFamily
	}
	if flags.Changed("image") {
		cfg.ImagePath = flagImage
		if !flags.Changed("type") && presetID == "" {
			cfg.WatermarkType = types.WatermarkImage
		}
	}
	if flags.Changed("image-scale") {
		cfg.ImageScale = flagImageScale
	}
	if flags.Changed("position") {
		cfg.Position = types.Position(flagPosition)
	}
	if flags.Changed("position-mode") {
		cfg.PositionMode = types.PositionMode(flagPositionMode)
	}
	if flags.Changed("pos-x") || flags.Changed("pos-y") {
		cfg.PositionMode = types.PositionCustom
		cfg.CustomPosition = &types.CustomPosition{X: flagPosX, Y: flagPosY}
	}
	if flags.Changed("opacity") {
		cfg.Opacity = flagOpacity
	}

	return cfg, nil
}

func collectFiles(args []string) ([]types.FileItem, error) {
	files := make([]types.FileItem, 0, len(args))
	for _, arg := range args {
		item, err := media.NewFileItem(arg)
		if err != nil {
			return nil, fmt.Errorf("%s: %v", arg, err)
		}
		files = append(files, item)
	}
	return files, nil
}

func runBatch(cmd *cobra.Command, args []string) error {
	store, st := loadSettings()

	cfg, err := buildConfig(cmd, st)
	if err != nil {
		return err
	}
	files, err := collectFiles(args)
	if err != nil {
		return err
	}

	dir := outputDir
	if dir == "" {
		dir = st.OutputDir
	}

	bus := events.NewBus()
	engine := ffmpeg.New(resolveBinary(st), logger)
	orch := processor.New(engine, bus, logger)
	ctrl := controller.New(orch, bus, logger)
	defer ctrl.Close()

	// Live progress output, fed by its own bus subscription.
	sub := bus.Subscribe()
	defer sub.Unsubscribe()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		printProgress(sub)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	defer signal.Stop(sigCh)
	go func() {
		for range sigCh {
			ctrl.Cancel()
		}
	}()

	ctx := cmd.Context()
	if err := ctrl.StartBatch(ctx, files, cfg, dir); err != nil {
		return err
	}

	state, err := ctrl.Wait(ctx)
	if err != nil {
		return err
	}
	sub.Unsubscribe()
	wg.Wait()

	switch state {
	case controller.StateComplete:
		printSummary(ctrl.Result())
		saveSettings(store, st, dir)
		return nil
	case controller.StateCancelled:
		fmt.Println("Cancelled. Files already handed to FFmpeg keep processing in the background.")
		return nil
	default:
		return fmt.Errorf("%s", ctrl.ErrorMessage())
	}
}

func printProgress(sub *events.Subscription) {
	for {
		select {
		case <-sub.Done():
			return
		case ev := <-sub.Events():
			switch ev.Type {
			case events.TypeProgress:
				p := ev.Progress
				switch p.Status {
				case types.ProgressProcessing:
					fmt.Printf("[%d/%d] processing %s\n", p.FileIndex+1, p.TotalFiles, p.FilePath)
				case types.ProgressComplete:
					fmt.Printf("[%d/%d] done\n", p.FileIndex+1, p.TotalFiles)
				case types.ProgressError:
					fmt.Printf("[%d/%d] failed\n", p.FileIndex+1, p.TotalFiles)
				}
			case events.TypeComplete:
				return
			}
		}
	}
}

func printSummary(result *types.BatchResult) {
	if result == nil {
		return
	}
	for _, f := range result.Files {
		if f.Status == types.StatusSuccess {
			fmt.Printf("  ok    %s -> %s\n", f.InputPath, f.OutputPath)
		} else {
			fmt.Printf("  fail  %s: %s\n", f.InputPath, f.Error)
		}
	}
	fmt.Printf("%d of %d files watermarked", result.Successful, result.Total)
	if result.Failed > 0 {
		fmt.Printf(" (%d failed)", result.Failed)
	}
	fmt.Println()
}

func saveSettings(store settings.Store, st settings.Settings, dir string) {
	if store == nil {
		return
	}
	st.OutputDir = dir
	st.LastPreset = presetID
	if ffmpegBinary != "" {
		st.FFmpegPath = ffmpegBinary
	}
	if presetsDir != "" {
		st.PresetsDir = presetsDir
	}
	if err := store.Save(st); err != nil {
		logger.Warn().Err(err).Msg("failed to save settings")
	}
}

func runSingle(cmd *cobra.Command, args []string) error {
	_, st := loadSettings()

	cfg, err := buildConfig(cmd, st)
	if err != nil {
		return err
	}

	bus := events.NewBus()
	engine := ffmpeg.New(resolveBinary(st), logger)
	orch := processor.New(engine, bus, logger)

	result, err := orch.ProcessFile(cmd.Context(), inputPath, outputPath, cfg)
	if err != nil {
		return err
	}
	if result.Status != types.StatusSuccess {
		return fmt.Errorf("%s: %s", result.InputPath, result.Error)
	}
	fmt.Printf("ok %s -> %s\n", result.InputPath, result.OutputPath)
	return nil
}

func runPreview(cmd *cobra.Command, args []string) error {
	_, st := loadSettings()

	cfg, err := buildConfig(cmd, st)
	if err != nil {
		return err
	}

	kind, err := media.Detect(inputPath)
	if err != nil {
		return fmt.Errorf("%s: %v", inputPath, err)
	}

	base := inputPath
	if kind == media.KindVideo {
		engine := ffmpeg.New(resolveBinary(st), logger)
		cache := thumbnail.NewCache("", engine, logger)
		base, err = cache.Thumbnail(cmd.Context(), inputPath)
		if err != nil {
			return err
		}
	}

	if err := preview.Render(cfg, base, outputPath); err != nil {
		return err
	}
	fmt.Printf("preview written to %s\n", outputPath)
	return nil
}

func runInspect(cmd *cobra.Command, args []string) error {
	_, st := loadSettings()

	engine := ffmpeg.New(resolveBinary(st), logger)
	meta, err := engine.Probe(args[0])
	if err != nil {
		return err
	}

	kind, _ := media.Detect(args[0])
	fmt.Printf("kind:       %s\n", kind)
	fmt.Printf("resolution: %dx%d\n", meta.Width, meta.Height)
	fmt.Printf("codec:      %s\n", meta.Codec)
	if meta.Duration > 0 {
		fmt.Printf("duration:   %.2fs\n", meta.Duration)
	}
	return nil
}

func runPresetList(cmd *cobra.Command, args []string) error {
	_, st := loadSettings()

	presets, err := preset.List(resolvePresetsDir(st), logger)
	if err != nil {
		return err
	}
	if len(presets) == 0 {
		fmt.Println("no presets found")
		return nil
	}
	for _, p := range presets {
		fmt.Printf("%-20s %s - %s\n", p.ID, p.Name, p.Description)
	}
	return nil
}

func runPresetShow(cmd *cobra.Command, args []string) error {
	_, st := loadSettings()

	cfg, err := preset.Load(resolvePresetsDir(st), args[0])
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func runCacheClean(cmd *cobra.Command, args []string) error {
	_, st := loadSettings()

	engine := ffmpeg.New(resolveBinary(st), logger)
	cache := thumbnail.NewCache("", engine, logger)

	removed, freed, err := cache.Cleanup(time.Duration(maxAgeDays) * 24 * time.Hour)
	if err != nil {
		return err
	}
	fmt.Printf("Cleaned up %d thumbnails, freed %.2f MB\n", removed, float64(freed)/(1024*1024))
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
