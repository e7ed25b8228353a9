package domain

// ─── Generation Requests ────────────────────────────────────────────────────

// Generation defaults. These mirror the settings the image servers are
// tuned for; callers may override steps and cfg scale per request.
const (
	DefaultSteps    = 24
	DefaultCfgScale = 4.5
	DefaultSampler  = "Euler a"
	DefaultWidth    = 1024
	DefaultHeight   = 1024
)

// GenerationRequest describes one text-to-image generation.
type GenerationRequest struct {
	Prompt         string  `json:"prompt"`
	NegativePrompt string  `json:"negative_prompt"`
	Quality        string  `json:"quality,omitempty"`
	Ratio          string  `json:"ratio,omitempty"`
	Steps          int     `json:"steps"`
	CfgScale       float64 `json:"cfg_scale"`
	Width          int     `json:"width"`
	Height         int     `json:"height"`
	Seed           int64   `json:"seed"`
	BatchSize      int     `json:"batch_size"`
	SamplerName    string  `json:"sampler_name"`
}

// Normalize fills defaults and applies the quality and ratio presets.
// The returned request is what actually goes over the wire.
func (r GenerationRequest) Normalize() GenerationRequest {
	out := r

	prompt, negative := EnhancePrompt(r.Prompt, r.Quality)
	out.Prompt = prompt
	if out.NegativePrompt == "" {
		out.NegativePrompt = negative
	}

	out.Width, out.Height = RatioSize(r.Ratio)

	if out.Steps <= 0 {
		out.Steps = DefaultSteps
	}
	if out.CfgScale <= 0 {
		out.CfgScale = DefaultCfgScale
	}
	if out.SamplerName == "" {
		out.SamplerName = DefaultSampler
	}
	if out.BatchSize <= 0 {
		out.BatchSize = 1
	}
	if out.Seed == 0 {
		out.Seed = -1 // random
	}
	return out
}

// ─── Quality Presets ────────────────────────────────────────────────────────

type qualityPreset struct {
	prefix   string // appended after the user prompt
	negative string
}

var qualityPresets = map[string]qualityPreset{
	"low": {
		prefix:   ", masterpiece, best quality, very aesthetic, absurdres",
		negative: "nsfw, lowres, (bad), text, error, fewer, extra, missing, worst quality, jpeg artifacts, low quality, watermark, unfinished, displeasing, oldest, early, chromatic aberration, signature, extra digits, artistic error, username, scan, [abstract]",
	},
	"medium": {
		prefix:   ", (masterpiece), best quality, very aesthetic, perfect face",
		negative: "nsfw, (low quality, worst quality:1.2), very displeasing, 3d, watermark, signature, ugly, poorly drawn",
	},
	"high": {
		prefix:   ", (masterpiece), (best quality), (ultra-detailed), very aesthetic, illustration, disheveled hair, perfect composition, moist skin, intricate details",
		negative: "nsfw, longbody, lowres, bad anatomy, bad hands, missing fingers, pubic hair, extra digit, fewer digits, cropped, worst quality, low quality, very displeasing",
	},
	"none": {
		prefix:   "",
		negative: "nsfw, lowres",
	},
}

// EnhancePrompt applies a quality preset to a prompt. Unknown tiers fall
// back to "none", which only adds the baseline negative prompt.
func EnhancePrompt(prompt, quality string) (string, string) {
	p, ok := qualityPresets[quality]
	if !ok {
		p = qualityPresets["none"]
	}
	return prompt + p.prefix, p.negative
}

// ─── Aspect Ratios ──────────────────────────────────────────────────────────

type ratioSize struct{ width, height int }

var ratioSizes = map[string]ratioSize{
	"1:1":   {1024, 1024},
	"9:7":   {1152, 896},
	"7:9":   {896, 1152},
	"19:13": {1216, 832},
	"13:19": {832, 1216},
	"7:4":   {1344, 768},
	"4:7":   {768, 1344},
	"12:5":  {1536, 640},
	"5:12":  {640, 1536},
}

// RatioSize maps an aspect-ratio name to pixel dimensions.
// Unknown ratios fall back to 1:1.
func RatioSize(ratio string) (width, height int) {
	s, ok := ratioSizes[ratio]
	if !ok {
		s = ratioSizes["1:1"]
	}
	return s.width, s.height
}
