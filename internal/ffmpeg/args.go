package ffmpeg

import (
	"path/filepath"
	"regexp"
	"strings"

	"convconv/internal/entity"
)

var scaleRe = regexp.MustCompile(`^(\d+)x(\d+)$`)

// codecsByExt is the codec selection used when no codec override is given.
var codecsByExt = map[string][]string{
	"mp4":  {"-c:v", "libx264", "-c:a", "aac"},
	"mov":  {"-c:v", "libx264", "-c:a", "aac"},
	"webm": {"-c:v", "libvpx-vp9", "-c:a", "libopus"},
	"mp3":  {"-c:a", "libmp3lame", "-q:a", "2"},
	"aac":  {"-c:a", "aac", "-b:a", "192k"},
	"wav":  {"-c:a", "pcm_s16le"},
	"flac": {"-c:a", "flac"},
}

// BuildArgs assembles the encoder argument vector for a conversion. The order
// is fixed: input, progress redirect, overwrite, scale, codec, bitrate,
// format, custom args, output.
func BuildArgs(inputPath, outputPath string, opts entity.ConvertOptions) []string {
	args := []string{
		"-i", inputPath,
		"-progress", "pipe:2",
		"-y",
	}

	if m := scaleRe.FindStringSubmatch(opts.Scale); m != nil {
		args = append(args, "-vf", "scale="+m[1]+":"+m[2])
	}

	if opts.Codec != "" {
		args = append(args, "-c", opts.Codec)
	} else {
		args = append(args, CodecArgs(outputPath)...)
	}

	if opts.Bitrate != "" {
		args = append(args, "-b:v", opts.Bitrate)
	}
	if opts.Format != "" {
		args = append(args, "-f", opts.Format)
	}
	args = append(args, opts.CustomArgs...)

	return append(args, outputPath)
}

// CodecArgs returns the automatic codec selection for the output extension,
// nil for extensions without a default.
func CodecArgs(outputPath string) []string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(outputPath), "."))
	codecs, ok := codecsByExt[ext]
	if !ok {
		return nil
	}
	return append([]string(nil), codecs...)
}

// Preview renders binary and args as a single command line. Arguments that
// contain whitespace or quotes are wrapped in double quotes.
func Preview(binary string, args []string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, quoteArg(binary))
	for _, a := range args {
		parts = append(parts, quoteArg(a))
	}
	return strings.Join(parts, " ")
}

func quoteArg(s string) string {
	if s == "" {
		return `""`
	}
	if !strings.ContainsAny(s, " \t\n\r\"") {
		return s
	}
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(s) + `"`
}
