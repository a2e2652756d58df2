package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"convconv/internal/config"
	"convconv/internal/entity"
	"convconv/internal/ffmpeg"
	"convconv/internal/service"
	"convconv/internal/storage"
)

var previewFlags struct {
	input      string
	output     string
	to         string
	codec      string
	bitrate    string
	format     string
	scale      string
	customArgs []string
	asJSON     bool
}

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Print the ffmpeg command a conversion would run",
	RunE: func(cmd *cobra.Command, args []string) error {
		f := previewFlags
		if f.input == "" {
			return errors.New("--input is required")
		}

		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("reading configuration: %w", err)
		}

		output := f.output
		if output == "" {
			if f.to == "" {
				return errors.New("one of --output or --to is required")
			}
			output = storage.New(cfg.Storage.UploadDir, cfg.Storage.OutputDir, cfg.Storage.Retention, nil).OutputPath(f.input, f.to)
		}

		opts := service.WithThreadArgs(entity.ConvertOptions{
			Codec:      f.codec,
			Bitrate:    f.bitrate,
			Format:     f.format,
			Scale:      f.scale,
			CustomArgs: f.customArgs,
		}, cfg.FFmpeg.Threads)

		runner := ffmpeg.NewRunner(ffmpeg.WithBinary(cfg.FFmpeg.Path))
		argv := ffmpeg.BuildArgs(f.input, output, opts)

		out := cmd.OutOrStdout()
		if f.asJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(service.CommandPreview{Command: argv, CommandLine: runner.Preview(argv)})
		}
		_, err = fmt.Fprintln(out, runner.Preview(argv))
		return err
	},
}

func init() {
	fl := previewCmd.Flags()
	fl.StringVarP(&previewFlags.input, "input", "i", "", "input file")
	fl.StringVarP(&previewFlags.output, "output", "o", "", "output file")
	fl.StringVar(&previewFlags.to, "to", "", "output format; derives the output path like the server does")
	fl.StringVar(&previewFlags.codec, "codec", "", "codec override (-c)")
	fl.StringVar(&previewFlags.bitrate, "bitrate", "", "video bitrate (-b:v)")
	fl.StringVar(&previewFlags.format, "format", "", "force container (-f)")
	fl.StringVar(&previewFlags.scale, "scale", "", "WIDTHxHEIGHT")
	fl.StringArrayVar(&previewFlags.customArgs, "arg", nil, "raw trailing argument, repeatable")
	fl.BoolVar(&previewFlags.asJSON, "json", false, "print the argument vector as JSON")
}
