package ffmpeg

import (
	"fmt"
	"strconv"
	"strings"

	"convconv/internal/entity"
)

const (
	defaultSineFrequency = 1000
	defaultMetadataFPS   = 25
	overlayStartY        = 10
	overlayLineHeight    = 40
	overlayStyle         = "fontsize=24:fontcolor=white:box=1:boxcolor=black@0.5"
)

// BuildTestSourceArgs assembles the lavfi generation command for a synthetic clip.
func BuildTestSourceArgs(opts entity.TestSourceOptions, outputPath string) []string {
	args := []string{"-hide_banner"}

	args = append(args, "-f", "lavfi", "-i", videoFilter(opts))
	args = append(args, "-f", "lavfi", "-i", audioFilter(opts))
	args = append(args, "-t", formatNumber(opts.Duration))

	if opts.FrameRate > 0 {
		args = append(args, "-r", formatNumber(opts.FrameRate))
	}

	if opts.Codec != "" {
		args = append(args, "-c:v", opts.Codec)
	} else if codec := defaultVideoCodec(opts.Format); codec != "" {
		args = append(args, "-c:v", codec)
	}

	args = append(args, "-c:a", defaultAudioCodec(opts.Format))
	args = append(args, "-ar", strconv.Itoa(opts.SampleRate))
	channels := "1"
	if opts.AudioChannel == entity.ChannelStereo {
		channels = "2"
	}
	args = append(args, "-ac", channels)

	if overlay := overlayFilter(opts); overlay != "" {
		args = append(args, "-vf", overlay)
	}

	args = append(args, "-progress", "pipe:2")
	return append(args, "-y", outputPath)
}

func videoFilter(opts entity.TestSourceOptions) string {
	size := opts.Resolution
	switch opts.Pattern {
	case entity.PatternSMPTE, entity.PatternEBU:
		return "smptebars=size=" + size
	case entity.PatternHD:
		return "smptehdbars=size=" + size
	case entity.PatternGrayscale:
		return "color=gray:size=" + size
	case entity.PatternSolid:
		return "color=white:size=" + size
	case entity.PatternGradient:
		return "gradients=size=" + size
	case entity.PatternCheckerboard:
		return "testsrc2=size=" + size
	case entity.PatternNoise:
		return "noise=alls=20:allf=t+u:size=" + size
	default:
		return "testsrc=size=" + size
	}
}

func audioFilter(opts entity.TestSourceOptions) string {
	rate := strconv.Itoa(opts.SampleRate)
	switch opts.AudioType {
	case entity.AudioSine:
		freq := opts.AudioFrequency
		if freq <= 0 {
			freq = defaultSineFrequency
		}
		return fmt.Sprintf("sine=frequency=%s:sample_rate=%s", formatNumber(freq), rate)
	case entity.AudioWhiteNoise:
		return "anoisesrc=color=white:sample_rate=" + rate
	case entity.AudioPinkNoise:
		return "anoisesrc=color=pink:sample_rate=" + rate
	default:
		return "anullsrc=sample_rate=" + rate
	}
}

func overlayFilter(opts entity.TestSourceOptions) string {
	var filters []string
	y := overlayStartY
	add := func(text string) {
		filters = append(filters, fmt.Sprintf("drawtext=text='%s':x=10:y=%d:%s", text, y, overlayStyle))
		y += overlayLineHeight
	}

	if opts.ShowTimecode {
		add(`%{pts\:hms}`)
	}
	if opts.ShowFrameCounter {
		add(`Frame\: %{n}`)
	}
	if opts.ShowMetadata {
		fps := opts.FrameRate
		if fps <= 0 {
			fps = defaultMetadataFPS
		}
		add(fmt.Sprintf("%s @ %sfps", opts.Resolution, formatNumber(fps)))
	}
	if opts.CustomText != "" {
		add(strings.ReplaceAll(opts.CustomText, "'", `\'`))
	}
	return strings.Join(filters, ",")
}

func defaultVideoCodec(format string) string {
	switch strings.ToLower(format) {
	case "mp4", "mov", "mkv":
		return "libx264"
	case "webm":
		return "libvpx-vp9"
	case "avi":
		return "mpeg4"
	case "mxf":
		return "mpeg2video"
	default:
		return ""
	}
}

func defaultAudioCodec(format string) string {
	switch strings.ToLower(format) {
	case "webm":
		return "libopus"
	case "avi":
		return "mp3"
	case "mxf":
		return "pcm_s16le"
	default:
		return "aac"
	}
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Presets returns the built-in test source presets.
func Presets() []entity.TestSourcePreset {
	return []entity.TestSourcePreset{
		{
			ID:          "broadcast-hd",
			Name:        "Broadcast HD test",
			Description: "Standard HD broadcast test signal",
			IsBuiltIn:   true,
			Options: entity.TestSourceOptions{
				Pattern:        entity.PatternSMPTE,
				Resolution:     "1920x1080",
				Duration:       30,
				FrameRate:      29.97,
				AudioType:      entity.AudioSine,
				AudioFrequency: 1000,
				AudioChannel:   entity.ChannelStereo,
				SampleRate:     48000,
				BitDepth:       16,
				Format:         "mp4",
				ShowTimecode:   true,
			},
		},
		{
			ID:          "web-720p",
			Name:        "Web 720p test",
			Description: "Standard web video test",
			IsBuiltIn:   true,
			Options: entity.TestSourceOptions{
				Pattern:        entity.PatternResolution,
				Resolution:     "1280x720",
				Duration:       10,
				FrameRate:      30,
				AudioType:      entity.AudioSine,
				AudioFrequency: 440,
				AudioChannel:   entity.ChannelStereo,
				SampleRate:     44100,
				BitDepth:       16,
				Format:         "mp4",
			},
		},
		{
			ID:          "4k-test",
			Name:        "4K UHD test",
			Description: "Ultra high definition test pattern",
			IsBuiltIn:   true,
			Options: entity.TestSourceOptions{
				Pattern:      entity.PatternHD,
				Resolution:   "3840x2160",
				Duration:     10,
				FrameRate:    60,
				AudioType:    entity.AudioSilence,
				AudioChannel: entity.ChannelStereo,
				SampleRate:   48000,
				BitDepth:     24,
				Format:       "mp4",
				ShowMetadata: true,
			},
		},
	}
}

// ExpandBatch returns one option set per resolution x pattern x format combination.
func ExpandBatch(batch entity.TestSourceBatch) []entity.TestSourceOptions {
	base := batch.BaseOptions
	resolutions := batch.Variations.Resolutions
	if len(resolutions) == 0 {
		resolutions = []string{base.Resolution}
	}
	patterns := batch.Variations.Patterns
	if len(patterns) == 0 {
		patterns = []entity.TestPattern{base.Pattern}
	}
	formats := batch.Variations.Formats
	if len(formats) == 0 {
		formats = []string{base.Format}
	}

	out := make([]entity.TestSourceOptions, 0, len(resolutions)*len(patterns)*len(formats))
	for _, res := range resolutions {
		for _, pattern := range patterns {
			for _, format := range formats {
				opts := base
				opts.Resolution = res
				opts.Pattern = pattern
				opts.Format = format
				out = append(out, opts)
			}
		}
	}
	return out
}
