package cmd

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/andresmejia3/biogate/internal/features"
	"github.com/andresmejia3/biogate/internal/pipeline"
	"github.com/andresmejia3/biogate/internal/store"
	"github.com/andresmejia3/biogate/internal/types"
	"github.com/spf13/cobra"
)

// fakeRunner answers transactions from a table keyed by "face|voice".
type fakeRunner struct {
	reqs    []pipeline.Request
	answers map[string]pipeline.Transaction
}

func (f *fakeRunner) Run(_ context.Context, req pipeline.Request) (pipeline.Transaction, error) {
	f.reqs = append(f.reqs, req)
	tx, ok := f.answers[req.Face+"|"+req.Voice]
	if !ok {
		return pipeline.Transaction{Request: req}, fmt.Errorf("sample %q: %w", req.Face, features.ErrNotFound)
	}
	tx.Request = req
	return tx, nil
}

func (f *fakeRunner) SampleNames() ([]string, []string) {
	return []string{"loic normal.jpg", "irene normal.jpg"}, []string{"loic.dat.wav", "ireneeo.wav"}
}

func approved(label types.IdentityLabel, category string) pipeline.Transaction {
	return pipeline.Transaction{
		Face:           types.ClassificationResult{Label: label, Confidence: 0.97},
		Voice:          types.ClassificationResult{Label: label, Confidence: 0.95},
		FacePassed:     true,
		VoicePassed:    true,
		Decision:       types.AuthDecision{Authorized: true, Reason: types.ReasonApproved, Identity: label},
		Recommendation: &types.Recommendation{Category: category, Source: "rule:test"},
	}
}

func mismatch() pipeline.Transaction {
	return pipeline.Transaction{
		Face:        types.ClassificationResult{Label: "christine", Confidence: 0.95},
		Voice:       types.ClassificationResult{Label: "roxane", Confidence: 0.80},
		FacePassed:  true,
		VoicePassed: true,
		Decision:    types.AuthDecision{Reason: types.ReasonIdentityMismatch},
	}
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{answers: map[string]pipeline.Transaction{
		"loic_normal|loic.dat":            approved("loic", "Electronics"),
		"christine_normal|roxane":         mismatch(),
		"irene_normal|ireneeo":            approved("irene", "Books"),
		"irene normal.jpg|ireneeo.wav":    approved("irene", "Books"),
		"irene_normal|jollyy.waptt":       {Decision: types.AuthDecision{Reason: types.ReasonVoiceRejected}, FacePassed: true},
		"christine_normal|christine.wav":  mismatch(),
		"loic normal.jpg|loic.dat.wav":    approved("loic", "Electronics"),
		"christine normal.jpg|roxane.wav": mismatch(),
	}}
}

func TestResolveDBURL(t *testing.T) {
	t.Setenv("POSTGRES_HOST", "")
	if got := resolveDBURL("", false); got != "" {
		t.Errorf("optional DB without config should stay empty, got %q", got)
	}
	if got := resolveDBURL("", true); got != "postgres://localhost:5432/biogate" {
		t.Errorf("required DB default = %q", got)
	}
	if got := resolveDBURL("postgres://x/y", false); got != "postgres://x/y" {
		t.Errorf("flag should win, got %q", got)
	}

	t.Setenv("POSTGRES_HOST", "db")
	t.Setenv("POSTGRES_USER", "bio")
	t.Setenv("POSTGRES_PASSWORD", "secret")
	t.Setenv("POSTGRES_DB", "biogate")
	t.Setenv("POSTGRES_PORT", "")
	if got := resolveDBURL("", false); got != "postgres://bio:secret@db:5432/biogate" {
		t.Errorf("env URL = %q", got)
	}
}

func TestManifestPath(t *testing.T) {
	t.Setenv("BIOGATE_MODELS", "")
	if got := manifestPath(""); got != defaultManifest {
		t.Errorf("default = %q", got)
	}
	t.Setenv("BIOGATE_MODELS", "/srv/models/manifest.yaml")
	if got := manifestPath(""); got != "/srv/models/manifest.yaml" {
		t.Errorf("env = %q", got)
	}
	if got := manifestPath("m.yaml"); got != "m.yaml" {
		t.Errorf("flag = %q", got)
	}
}

func newFlagCommand(opts *Options) *cobra.Command {
	c := &cobra.Command{Use: "test"}
	c.Flags().Float64Var(&opts.FaceThreshold, "face-threshold", 0.5, "")
	c.Flags().Float64Var(&opts.VoiceThreshold, "voice-threshold", 0.5, "")
	return c
}

func TestValidateRootFlags(t *testing.T) {
	tests := []struct {
		name    string
		set     map[string]string
		wantErr bool
	}{
		{"Defaults", nil, false},
		{"Valid face threshold", map[string]string{"face-threshold": "0.8"}, false},
		{"Face threshold too high", map[string]string{"face-threshold": "1.5"}, true},
		{"Voice threshold negative", map[string]string{"voice-threshold": "-0.1"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var opts Options
			c := newFlagCommand(&opts)
			for k, v := range tt.set {
				if err := c.Flags().Set(k, v); err != nil {
					t.Fatal(err)
				}
			}
			if err := validateRootFlags(c, &opts); (err != nil) != tt.wantErr {
				t.Errorf("validateRootFlags() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestPipelineOptionsOnlyOverrideWhenSet(t *testing.T) {
	var opts Options
	c := newFlagCommand(&opts)

	po := pipelineOptions(c, opts)
	if po.FaceThreshold != nil || po.VoiceThreshold != nil {
		t.Errorf("unset flags must not override the manifest: %+v", po)
	}
	if po.Profiles != nil || po.Recorder != nil {
		t.Error("no database means no profile source or recorder")
	}

	if err := c.Flags().Set("voice-threshold", "0.75"); err != nil {
		t.Fatal(err)
	}
	po = pipelineOptions(c, opts)
	if po.FaceThreshold != nil || po.VoiceThreshold == nil || *po.VoiceThreshold != 0.75 {
		t.Errorf("unexpected overrides %+v", po)
	}
}

func TestRunMenu(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantDemo  int
		wantInter int
		wantOut   string
	}{
		{"Demo", "1\n", 1, 0, "Choose mode:"},
		{"Interactive after invalid choice", "7\n2\n", 0, 1, "Invalid choice. Please enter 1 or 2."},
		{"End of input", "", 0, 0, "Enter choice (1 or 2):"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var demo, inter int
			var out bytes.Buffer
			err := runMenu(bufio.NewReader(strings.NewReader(tt.input)), &out,
				func() error { demo++; return nil },
				func() error { inter++; return nil },
			)
			if err != nil {
				t.Fatal(err)
			}
			if demo != tt.wantDemo || inter != tt.wantInter {
				t.Errorf("demo=%d interactive=%d, want %d %d", demo, inter, tt.wantDemo, tt.wantInter)
			}
			if !strings.Contains(out.String(), tt.wantOut) {
				t.Errorf("output missing %q:\n%s", tt.wantOut, out.String())
			}
		})
	}
}

func TestRunDemo(t *testing.T) {
	f := newFakeRunner()
	var out bytes.Buffer
	runDemo(context.Background(), f, &out)

	if len(f.reqs) != len(demoSteps) {
		t.Fatalf("ran %d transactions, want %d", len(f.reqs), len(demoSteps))
	}
	for i, step := range demoSteps {
		if f.reqs[i] != step.Req {
			t.Errorf("step %d ran %+v, want %+v", i, f.reqs[i], step.Req)
		}
	}

	s := out.String()
	for _, want := range []string{
		"🔐 TRANSACTION: Unauthorized - Different Users",
		"Reason: Face and voice belong to different users",
		"Authenticated User: LOIC",
		"Recommended: Electronics Product",
		"Reason: Voice not recognized",
		"Authenticated User: IRENE",
		"granted 2, denied 2",
		"DEMONSTRATION COMPLETE",
	} {
		if !strings.Contains(s, want) {
			t.Errorf("demo output missing %q", want)
		}
	}
}

func TestRunDemoStopsWhenCancelled(t *testing.T) {
	f := newFakeRunner()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var out bytes.Buffer
	runDemo(ctx, f, &out)
	if len(f.reqs) != 0 {
		t.Errorf("cancelled demo ran %d transactions", len(f.reqs))
	}
}

func TestRunInteractive(t *testing.T) {
	f := newFakeRunner()
	input := strings.Join([]string{
		"9", "",
		"1", "",
		"2", "",
		"3", "irene normal.jpg", "ireneeo.wav", "",
		"4", "",
		"3", "ghost.jpg", "roxane.wav", "",
		"5",
	}, "\n") + "\n"

	var out bytes.Buffer
	if err := runInteractive(context.Background(), f, bufio.NewReader(strings.NewReader(input)), &out); err != nil {
		t.Fatal(err)
	}

	want := []pipeline.Request{
		{Scenario: "Quick Authorized Test", Face: "loic_normal", Voice: "loic.dat"},
		{Scenario: "Quick Unauthorized Test", Face: "christine_normal", Voice: "roxane"},
		{Scenario: "Custom Test", Face: "irene normal.jpg", Voice: "ireneeo.wav"},
		{Scenario: "Custom Test", Face: "ghost.jpg", Voice: "roxane.wav"},
	}
	if len(f.reqs) != len(want) {
		t.Fatalf("ran %d transactions, want %d: %+v", len(f.reqs), len(want), f.reqs)
	}
	for i := range want {
		if f.reqs[i] != want[i] {
			t.Errorf("request %d = %+v, want %+v", i, f.reqs[i], want[i])
		}
	}

	s := out.String()
	for _, w := range []string{
		"Invalid choice. Please enter 1-5.",
		"Press Enter to continue",
		"📸 Face Images: loic normal.jpg, irene normal.jpg",
		"❌ File not found",
		"Exiting interactive mode...",
	} {
		if !strings.Contains(s, w) {
			t.Errorf("interactive output missing %q", w)
		}
	}
}

func TestRunInteractiveInvalidChoiceWaitsForEnter(t *testing.T) {
	f := newFakeRunner()
	var out bytes.Buffer
	if err := runInteractive(context.Background(), f, bufio.NewReader(strings.NewReader("x\n\n5\n")), &out); err != nil {
		t.Fatal(err)
	}

	s := out.String()
	invalid := strings.Index(s, "Invalid choice. Please enter 1-5.")
	if invalid < 0 {
		t.Fatalf("missing invalid choice message:\n%s", s)
	}
	if !strings.Contains(s[invalid:], "Press Enter to continue") {
		t.Error("invalid choice should be followed by the continue prompt")
	}
	if !strings.Contains(s, "Exiting interactive mode...") {
		t.Error("the line after the continue prompt should be read as the next choice")
	}
}

func TestRunInteractiveEndOfInput(t *testing.T) {
	f := newFakeRunner()
	var out bytes.Buffer
	if err := runInteractive(context.Background(), f, bufio.NewReader(strings.NewReader("3\nloic_normal\n")), &out); err != nil {
		t.Fatal(err)
	}
	if len(f.reqs) != 0 {
		t.Error("a half-entered custom test must not run")
	}
}

func newAuthCommand(out io.Writer) *cobra.Command {
	c := &cobra.Command{Use: "auth"}
	c.SetOut(out)
	c.SetContext(context.Background())
	return c
}

func TestRunAuth(t *testing.T) {
	t.Run("Authorized", func(t *testing.T) {
		var out bytes.Buffer
		err := runAuth(newAuthCommand(&out), newFakeRunner(), authOptions{Face: "loic_normal", Voice: "loic.dat"})
		if err != nil {
			t.Fatalf("expected success, got %v", err)
		}
		if !strings.Contains(out.String(), "✅ AUTHENTICATION SUCCESS") {
			t.Errorf("unexpected output:\n%s", out.String())
		}
	})

	t.Run("Rejected", func(t *testing.T) {
		var out bytes.Buffer
		c := newAuthCommand(&out)
		err := runAuth(c, newFakeRunner(), authOptions{Face: "christine_normal", Voice: "roxane"})
		if !errors.Is(err, errNotAuthorized) {
			t.Fatalf("expected errNotAuthorized, got %v", err)
		}
		if !c.SilenceErrors {
			t.Error("a plain rejection should not print cobra's error banner")
		}
	})

	t.Run("JSON", func(t *testing.T) {
		var out bytes.Buffer
		err := runAuth(newAuthCommand(&out), newFakeRunner(), authOptions{Face: "loic_normal", Voice: "loic.dat", Scenario: "ci", JSON: true})
		if err != nil {
			t.Fatal(err)
		}
		var tx pipeline.Transaction
		if err := json.Unmarshal(out.Bytes(), &tx); err != nil {
			t.Fatalf("output is not JSON: %v\n%s", err, out.String())
		}
		if tx.Request.Scenario != "ci" || tx.Decision.Identity != "loic" || tx.Recommendation.Category != "Electronics" {
			t.Errorf("unexpected transaction %+v", tx)
		}
	})
}

func TestValidateAuthFlags(t *testing.T) {
	if err := validateAuthFlags(&authOptions{Face: "a"}); err == nil {
		t.Error("missing --voice should fail")
	}
	if err := validateAuthFlags(&authOptions{Face: "a", Voice: "b"}); err != nil {
		t.Errorf("unexpected error %v", err)
	}
}

type fakeWriter struct {
	got    []string
	failOn string
}

func (f *fakeWriter) UpsertProfile(_ context.Context, p types.CustomerProfile) error {
	if p.CustomerID == f.failOn {
		return errors.New("unique violation")
	}
	f.got = append(f.got, p.CustomerID)
	return nil
}

func TestImportProfiles(t *testing.T) {
	profiles := []types.CustomerProfile{{CustomerID: "A150"}, {CustomerID: "A178"}, {CustomerID: "A190"}}

	w := &fakeWriter{}
	n, err := importProfiles(context.Background(), w, profiles, io.Discard)
	if err != nil || n != 3 || len(w.got) != 3 {
		t.Errorf("import = %d, %v (%v)", n, err, w.got)
	}

	w = &fakeWriter{failOn: "A178"}
	n, err = importProfiles(context.Background(), w, profiles, io.Discard)
	if err == nil || n != 1 || !strings.Contains(err.Error(), "A178") {
		t.Errorf("expected failure at A178, got %d, %v", n, err)
	}
}

func TestPrintHistory(t *testing.T) {
	var out bytes.Buffer
	printHistory(&out, nil)
	if !strings.Contains(out.String(), "No authentication attempts recorded.") {
		t.Errorf("empty history output %q", out.String())
	}

	out.Reset()
	printHistory(&out, []types.Attempt{{
		FaceSample:     "loic_normal",
		VoiceSample:    "loic.dat",
		Face:           types.ClassificationResult{Label: "loic", Confidence: 0.97},
		Voice:          types.ClassificationResult{Label: "loic", Confidence: 0.95},
		Decision:       types.AuthDecision{Authorized: true, Reason: types.ReasonApproved, Identity: "loic"},
		Recommendation: "Electronics",
		CreatedAt:      time.Now(),
	}, {
		FaceSample:  "christine_normal",
		VoiceSample: "roxane",
		Decision:    types.AuthDecision{Reason: types.ReasonIdentityMismatch},
		CreatedAt:   time.Now(),
	}})
	s := out.String()
	for _, want := range []string{"RECOMMENDED", "loic_normal (loic 0.97)", "✅ approved", "❌ identity_mismatch", "Electronics"} {
		if !strings.Contains(s, want) {
			t.Errorf("history missing %q:\n%s", want, s)
		}
	}
}

func TestPrintProfiles(t *testing.T) {
	var out bytes.Buffer
	printProfiles(&out, []store.ProfileSummary{{CustomerID: "A150", Attributes: 4, Labels: 2, UpdatedAt: time.Now()}})
	if !strings.Contains(out.String(), "A150") || !strings.Contains(out.String(), "CUSTOMER") {
		t.Errorf("unexpected listing:\n%s", out.String())
	}
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
	}
	for _, tt := range tests {
		got := confirm(bufio.NewReader(strings.NewReader(tt.input)), io.Discard, "Drop?")
		if got != tt.want {
			t.Errorf("confirm(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}
