package entity

type TestPattern string

const (
	PatternSMPTE        TestPattern = "smpte"
	PatternEBU          TestPattern = "ebu"
	PatternHD           TestPattern = "hd"
	PatternGrayscale    TestPattern = "grayscale"
	PatternResolution   TestPattern = "resolution"
	PatternSolid        TestPattern = "solid"
	PatternGradient     TestPattern = "gradient"
	PatternCheckerboard TestPattern = "checkerboard"
	PatternNoise        TestPattern = "noise"
)

type AudioType string

const (
	AudioSine       AudioType = "sine"
	AudioWhiteNoise AudioType = "white-noise"
	AudioPinkNoise  AudioType = "pink-noise"
	AudioSilence    AudioType = "silence"
)

type AudioChannel string

const (
	ChannelMono   AudioChannel = "mono"
	ChannelStereo AudioChannel = "stereo"
)

// TestSourceOptions describe a synthetic clip rendered from lavfi sources.
type TestSourceOptions struct {
	Pattern    TestPattern `json:"pattern" validate:"required,oneof=smpte ebu hd grayscale resolution solid gradient checkerboard noise"`
	Resolution string      `json:"resolution" validate:"required,resolution"`
	Duration   float64     `json:"duration" validate:"min=1,max=3600"`
	FrameRate  float64     `json:"frameRate,omitempty" validate:"omitempty,min=1,max=120"`

	AudioType      AudioType    `json:"audioType" validate:"required,oneof=sine white-noise pink-noise silence"`
	AudioFrequency float64      `json:"audioFrequency,omitempty" validate:"omitempty,min=20,max=20000"`
	AudioChannel   AudioChannel `json:"audioChannel" validate:"required,oneof=mono stereo"`
	SampleRate     int          `json:"sampleRate" validate:"required,oneof=44100 48000 96000"`
	BitDepth       int          `json:"bitDepth" validate:"required,oneof=16 24"`

	ShowTimecode     bool   `json:"showTimecode,omitempty"`
	ShowFrameCounter bool   `json:"showFrameCounter,omitempty"`
	ShowMetadata     bool   `json:"showMetadata,omitempty"`
	CustomText       string `json:"customText,omitempty" validate:"max=100"`

	Format string `json:"format" validate:"required,alphanum,max=16"`
	Codec  string `json:"codec,omitempty"`
	Preset string `json:"preset,omitempty"`
}

type TestSourcePreset struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Options     TestSourceOptions `json:"options"`
	IsBuiltIn   bool              `json:"isBuiltIn"`
}

// TestSourceVariations multiply a batch's base options; an empty list keeps the base value.
type TestSourceVariations struct {
	Resolutions []string      `json:"resolutions,omitempty" validate:"omitempty,dive,resolution"`
	Patterns    []TestPattern `json:"patterns,omitempty" validate:"omitempty,dive,oneof=smpte ebu hd grayscale resolution solid gradient checkerboard noise"`
	Formats     []string      `json:"formats,omitempty" validate:"omitempty,dive,alphanum,max=16"`
}

type TestSourceBatch struct {
	BaseOptions TestSourceOptions    `json:"baseOptions"`
	Variations  TestSourceVariations `json:"variations"`
}
