package cmd

import (
	"errors"
	"os"

	"github.com/andresmejia3/biogate/internal/model"
	"github.com/andresmejia3/biogate/internal/pipeline"
	"github.com/andresmejia3/biogate/internal/utils"
	"github.com/andresmejia3/biogate/internal/worker"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// app is everything a command needs to run transactions.
type app struct {
	sys *pipeline.System
}

func manifestPath(flag string) string {
	if flag != "" {
		return flag
	}
	if env := os.Getenv("BIOGATE_MODELS"); env != "" {
		return env
	}
	return defaultManifest
}

// pipelineOptions turns the persistent flags and the DB connection into
// overrides. Thresholds only override the manifest when set explicitly.
func pipelineOptions(cmd *cobra.Command, opts Options) pipeline.Options {
	var po pipeline.Options
	if f := cmd.Flags().Lookup("face-threshold"); f != nil && f.Changed {
		v := opts.FaceThreshold
		po.FaceThreshold = &v
	}
	if f := cmd.Flags().Lookup("voice-threshold"); f != nil && f.Changed {
		v := opts.VoiceThreshold
		po.VoiceThreshold = &v
	}
	// Assign only a non-nil *Store; a typed nil would make the interfaces non-nil.
	if DB != nil {
		po.Profiles = DB
		po.Recorder = DB
	}
	return po
}

// loadApp reads the manifest and starts the models. Missing or broken model
// artifacts are fatal.
func loadApp(cmd *cobra.Command) *app {
	path := manifestPath(rootOpts.ModelsPath)
	m, err := model.LoadManifest(path)
	if err != nil {
		utils.Die("Failed to load model manifest", err, nil)
	}

	ms, err := model.Open(m)
	if err != nil {
		var se *worker.StartError
		if errors.As(err, &se) {
			utils.Die("Failed to start model worker", err, se.Cmd)
		}
		utils.Die("Failed to load models", err, nil)
	}

	sys, err := pipeline.Build(m, ms, pipelineOptions(cmd, rootOpts))
	if err != nil {
		ms.Close()
		utils.Die("Failed to assemble authentication pipeline", err, nil)
	}
	logrus.WithField("manifest", path).Info("models loaded")
	return &app{sys: sys}
}

// withSystem loads the app, runs fn and releases the models afterwards.
func withSystem(cmd *cobra.Command, fn func(a *app) error) error {
	a := loadApp(cmd)
	defer func() {
		if err := a.sys.Close(); err != nil {
			logrus.WithError(err).Warn("failed to stop models cleanly")
		}
	}()
	return fn(a)
}
