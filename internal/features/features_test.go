package features

import (
	"bytes"
	"encoding/binary"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/andresmejia3/biogate/internal/types"
)

func TestNormalizeKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"loic normal.jpg", "loic_normal"},
		{"loic_normal", "loic_normal"},
		{"Loic Normal.JPG", "loic_normal"},
		{"loic.dat.wav", "loic.dat"},
		{"loic.dat", "loic.dat"},
		{"../Datasets/raw_image files/irene normal.jpg", "irene_normal"},
		{"jollyy.waptt.wav", "jollyy.waptt"},
		{"christine-smile.png", "christine_smile"},
	}
	for _, tt := range tests {
		if got := NormalizeKey(tt.in); got != tt.want {
			t.Errorf("NormalizeKey(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

const faceCSV = `image,member,hist_0,hist_1,hist_2
loic normal.jpg,loic,0.1,0.2,0.3
christine normal.jpg,christine,0.4,0.5,0.6
loic_normal,loic,9,9,9
`

func TestReadTable(t *testing.T) {
	tbl, err := ReadTable(strings.NewReader(faceCSV), TableOptions{KeyColumn: "image", DropColumns: []string{"member"}})
	if err != nil {
		t.Fatalf("ReadTable failed: %v", err)
	}
	if tbl.Len() != 2 {
		t.Fatalf("expected 2 rows (duplicate key dropped), got %d", tbl.Len())
	}
	if len(tbl.Columns) != 3 || tbl.Columns[0] != "hist_0" {
		t.Errorf("unexpected feature columns %v", tbl.Columns)
	}

	vec, ok := tbl.Lookup("loic_normal")
	if !ok {
		t.Fatal("expected to find loic_normal")
	}
	if vec[0] != 0.1 || vec[2] != 0.3 {
		t.Errorf("first row should win, got %v", vec)
	}

	// Lookups hand out copies.
	vec[0] = 42
	again, _ := tbl.Lookup("loic normal.jpg")
	if again[0] != 0.1 {
		t.Error("Lookup returned a shared slice; mutation leaked into the table")
	}

	if _, ok := tbl.Lookup("roxane"); ok {
		t.Error("unexpected row for roxane")
	}
}

func TestReadTableErrors(t *testing.T) {
	tests := []struct {
		name string
		csv  string
		opts TableOptions
	}{
		{"Missing key column", "a,b\n1,2\n", TableOptions{KeyColumn: "image"}},
		{"Non numeric feature", "image,label,f\nx.jpg,loic,0.1\n", TableOptions{KeyColumn: "image"}},
		{"Empty input", "", TableOptions{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ReadTable(strings.NewReader(tt.csv), tt.opts); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoaderPrefersTableThenRawFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "irene normal.jpg"), []byte("raw"), 0644); err != nil {
		t.Fatal(err)
	}

	tbl, err := ReadTable(strings.NewReader(faceCSV), TableOptions{KeyColumn: "image", DropColumns: []string{"member"}})
	if err != nil {
		t.Fatal(err)
	}

	var extracted []string
	l := &Loader{
		Kind:   "face",
		Table:  tbl,
		RawDir: dir,
		Exts:   []string{".jpg"},
		Extract: func(path string) (types.FeatureVector, error) {
			extracted = append(extracted, filepath.Base(path))
			return types.FeatureVector{7, 7, 7}, nil
		},
	}

	vec, err := l.Load("christine_normal")
	if err != nil || vec[0] != 0.4 {
		t.Fatalf("Load(christine_normal) = %v, %v", vec, err)
	}
	if len(extracted) != 0 {
		t.Error("extractor should not run when the CSV has the row")
	}

	vec, err = l.Load("irene_normal")
	if err != nil {
		t.Fatalf("Load(irene_normal) failed: %v", err)
	}
	if vec[0] != 7 || len(extracted) != 1 || extracted[0] != "irene normal.jpg" {
		t.Errorf("expected raw extraction of 'irene normal.jpg', got %v %v", vec, extracted)
	}

	_, err = l.Load("roxane")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	_, err = l.Load("  ")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for blank name, got %v", err)
	}

	samples := l.Samples()
	if len(samples) != 3 {
		t.Errorf("expected 3 samples (2 csv + 1 raw), got %v", samples)
	}
}

func TestLoaderUnreadableFileIsNotFound(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "loic.dat.wav"), []byte("raw"), 0644); err != nil {
		t.Fatal(err)
	}
	l := &Loader{
		Kind:   "voice",
		RawDir: dir,
		Exts:   []string{".wav"},
		Extract: func(path string) (types.FeatureVector, error) {
			return nil, &fs.PathError{Op: "open", Path: path, Err: fs.ErrPermission}
		},
	}

	_, err := l.Load("loic.dat")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if !errors.Is(err, fs.ErrPermission) {
		t.Errorf("cause should be kept, got %v", err)
	}

	l.Extract = func(string) (types.FeatureVector, error) { return nil, errors.New("corrupt header") }
	if _, err := l.Load("loic.dat"); err == nil || errors.Is(err, ErrNotFound) {
		t.Errorf("decode failures should not read as not found, got %v", err)
	}
}

func TestImageFeatures(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 40, 30))
	c := color.RGBA{R: 255, G: 0, B: 51, A: 255}
	for y := 0; y < 30; y++ {
		for x := 0; x < 40; x++ {
			img.Set(x, y, c)
		}
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "face.png")
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}

	vec, err := ExtractImage(path)
	if err != nil {
		t.Fatalf("ExtractImage failed: %v", err)
	}
	if len(vec) != ImageSide*ImageSide*3 {
		t.Fatalf("expected %d values, got %d", ImageSide*ImageSide*3, len(vec))
	}
	want := []float64{1.0, 0.0, 0.2}
	for i := 0; i < len(vec); i += 3 * 997 {
		for ch := 0; ch < 3; ch++ {
			if math.Abs(vec[i+ch]-want[ch]) > 1.0/255 {
				t.Fatalf("pixel %d channel %d = %f, want %f", i/3, ch, vec[i+ch], want[ch])
			}
		}
	}

	if _, err := ExtractImage(filepath.Join(dir, "missing.png")); !os.IsNotExist(err) {
		t.Errorf("expected not-exist error, got %v", err)
	}
}

func TestAudioFeatures(t *testing.T) {
	vec := audioFeatures([]float64{0.5, -0.5, 0.5, -0.5}, 1, 8000)
	want := types.FeatureVector{0, 0.5, 4, 8000}
	for i := range want {
		if math.Abs(vec[i]-want[i]) > 1e-9 {
			t.Errorf("feature %d = %f, want %f", i, vec[i], want[i])
		}
	}

	stereo := audioFeatures([]float64{0.1, 0.1, 0.1, 0.1}, 2, 44100)
	if stereo[2] != 2 {
		t.Errorf("stereo frame count = %f, want 2", stereo[2])
	}

	empty := audioFeatures(nil, 1, 16000)
	if empty[2] != 0 || empty[3] != 16000 {
		t.Errorf("empty audio features = %v", empty)
	}
}

func TestScaleSamples(t *testing.T) {
	tests := []struct {
		name     string
		data     []int
		bitDepth int
		format   uint16
		want     []float64
	}{
		{"16-bit PCM", []int{16384, -16384, 0}, 16, wavFormatPCM, []float64{0.5, -0.5, 0}},
		{"8-bit PCM is unsigned", []int{128, 255, 0, 192}, 8, wavFormatPCM, []float64{0, 127.0 / 128, -1, 0.5}},
		{"32-bit float", []int{int(int32(math.Float32bits(0.25))), int(int32(math.Float32bits(-0.75)))}, 32, wavFormatFloat, []float64{0.25, -0.75}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := scaleSamples(tt.data, tt.bitDepth, tt.format)
			if err != nil {
				t.Fatalf("scaleSamples failed: %v", err)
			}
			for i := range tt.want {
				if math.Abs(got[i]-tt.want[i]) > 1e-9 {
					t.Errorf("sample %d = %f, want %f", i, got[i], tt.want[i])
				}
			}
		})
	}

	if _, err := scaleSamples([]int{0}, 64, wavFormatFloat); err == nil {
		t.Error("expected 64-bit float to be rejected")
	}
	if _, err := scaleSamples([]int{0}, 16, 0x11); err == nil {
		t.Error("expected a compressed format tag to be rejected")
	}
}

func TestExtractAudio8Bit(t *testing.T) {
	silence := bytes.Repeat([]byte{128}, 800)
	path := filepath.Join(t.TempDir(), "silence.wav")
	if err := os.WriteFile(path, rawWav(silence, 1, 8, 8000), 0644); err != nil {
		t.Fatal(err)
	}

	vec, err := ExtractAudio(path)
	if err != nil {
		t.Fatalf("ExtractAudio failed: %v", err)
	}
	want := types.FeatureVector{0, 0, 800, 8000}
	for i := range want {
		if math.Abs(vec[i]-want[i]) > 1e-9 {
			t.Errorf("feature %d = %f, want %f", i, vec[i], want[i])
		}
	}
}

func TestExtractAudio(t *testing.T) {
	samples := []int16{0, 8192, 16384, 8192, 0, -8192, -16384, -8192}
	path := filepath.Join(t.TempDir(), "loic.dat.wav")
	if err := os.WriteFile(path, pcmWav(samples, 16000), 0644); err != nil {
		t.Fatal(err)
	}

	vec, err := ExtractAudio(path)
	if err != nil {
		t.Fatalf("ExtractAudio failed: %v", err)
	}
	if len(vec) != 4 {
		t.Fatalf("expected 4 features, got %d", len(vec))
	}
	if math.Abs(vec[0]) > 1e-9 {
		t.Errorf("mean = %f, want 0", vec[0])
	}
	if vec[2] != float64(len(samples)) || vec[3] != 16000 {
		t.Errorf("frames/sample rate = %f/%f", vec[2], vec[3])
	}
	// std of {0,.25,.5,.25,0,-.25,-.5,-.25} = sqrt(0.75/8)
	if math.Abs(vec[1]-math.Sqrt(0.75/8)) > 1e-9 {
		t.Errorf("std = %f, want %f", vec[1], math.Sqrt(0.75/8))
	}
}

// pcmWav builds a minimal mono 16-bit PCM wav file.
func pcmWav(samples []int16, rate uint32) []byte {
	data := new(bytes.Buffer)
	binary.Write(data, binary.LittleEndian, samples)
	return rawWav(data.Bytes(), 1, 16, rate)
}

// rawWav wraps already-encoded mono sample bytes in a RIFF header.
func rawWav(data []byte, format, bits uint16, rate uint32) []byte {
	blockAlign := bits / 8
	b := new(bytes.Buffer)
	b.WriteString("RIFF")
	binary.Write(b, binary.LittleEndian, uint32(36+len(data)))
	b.WriteString("WAVE")
	b.WriteString("fmt ")
	binary.Write(b, binary.LittleEndian, uint32(16))
	binary.Write(b, binary.LittleEndian, format)
	binary.Write(b, binary.LittleEndian, uint16(1)) // mono
	binary.Write(b, binary.LittleEndian, rate)
	binary.Write(b, binary.LittleEndian, rate*uint32(blockAlign)) // byte rate
	binary.Write(b, binary.LittleEndian, blockAlign)
	binary.Write(b, binary.LittleEndian, bits)
	b.WriteString("data")
	binary.Write(b, binary.LittleEndian, uint32(len(data)))
	b.Write(data)
	return b.Bytes()
}
