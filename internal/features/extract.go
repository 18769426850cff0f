package features

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"os"

	"github.com/andresmejia3/biogate/internal/types"
	"github.com/go-audio/wav"
	"golang.org/x/image/draw"
)

// ImageSide is the square size images are resized to before flattening.
const ImageSide = 224

// Extractor turns a raw sample file into a FeatureVector.
type Extractor func(path string) (types.FeatureVector, error)

// ExtractImage decodes a JPEG/PNG, resizes it to ImageSide x ImageSide and returns
// the RGB channels in row-major order scaled to [0, 1].
func ExtractImage(path string) (types.FeatureVector, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode image %s: %w", path, err)
	}
	return imageFeatures(src), nil
}

func imageFeatures(src image.Image) types.FeatureVector {
	dst := image.NewRGBA(image.Rect(0, 0, ImageSide, ImageSide))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	vec := make(types.FeatureVector, 0, ImageSide*ImageSide*3)
	for y := 0; y < ImageSide; y++ {
		for x := 0; x < ImageSide; x++ {
			i := dst.PixOffset(x, y)
			vec = append(vec,
				float64(dst.Pix[i])/255.0,
				float64(dst.Pix[i+1])/255.0,
				float64(dst.Pix[i+2])/255.0,
			)
		}
	}
	return vec
}

// WAV format tags the audio extractor understands.
const (
	wavFormatPCM   = 1
	wavFormatFloat = 3
)

// ExtractAudio decodes a PCM or 32-bit float WAV file and returns
// [mean, std, frame count, sample rate] over the samples scaled to [-1, 1].
func ExtractAudio(path string) (types.FeatureVector, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("decode audio %s: not a valid PCM wav file", path)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decode audio %s: %w", path, err)
	}
	samples, err := scaleSamples(buf.Data, int(dec.BitDepth), dec.WavAudioFormat)
	if err != nil {
		return nil, fmt.Errorf("decode audio %s: %w", path, err)
	}

	channels := int(dec.NumChans)
	if channels < 1 {
		channels = 1
	}
	return audioFeatures(samples, channels, int(dec.SampleRate)), nil
}

// scaleSamples maps decoded integer samples onto [-1, 1]. The decoder hands
// back 8-bit PCM unsigned and float samples as their raw bits.
func scaleSamples(data []int, bitDepth int, format uint16) ([]float64, error) {
	out := make([]float64, len(data))
	switch {
	case format == wavFormatFloat && bitDepth == 32:
		for i, s := range data {
			out[i] = float64(math.Float32frombits(uint32(s)))
		}
	case format == wavFormatFloat:
		return nil, fmt.Errorf("unsupported %d-bit float samples", bitDepth)
	case format != wavFormatPCM:
		return nil, fmt.Errorf("unsupported wav format tag %d", format)
	case bitDepth == 8:
		for i, s := range data {
			out[i] = float64(s-128) / 128
		}
	default:
		scale := math.Pow(2, float64(bitDepth-1))
		for i, s := range data {
			out[i] = float64(s) / scale
		}
	}
	return out, nil
}

func audioFeatures(samples []float64, channels, sampleRate int) types.FeatureVector {
	if len(samples) == 0 {
		return types.FeatureVector{0, 0, 0, float64(sampleRate)}
	}

	var sum float64
	for _, s := range samples {
		sum += s
	}
	mean := sum / float64(len(samples))

	var sq float64
	for _, s := range samples {
		d := s - mean
		sq += d * d
	}
	std := math.Sqrt(sq / float64(len(samples)))

	frames := len(samples) / channels
	return types.FeatureVector{mean, std, float64(frames), float64(sampleRate)}
}
