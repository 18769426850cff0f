package worker

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/andresmejia3/biogate/internal/utils" // Using the SafeCommand wrapper
)

const (
	statusOK    byte = 0
	statusError byte = 1
)

// maxFrame bounds a single response so a corrupted header can't make us allocate gigabytes.
const maxFrame = 64 * 1024 * 1024

// Config describes how to launch a model worker.
type Config struct {
	Name    string // for logs and error messages ("face", "voice", "recommender")
	Python  string // interpreter, defaults to python3
	Script  string // path to predict_worker.py
	Model   string // pickled estimator
	Encoder string // optional pickled label encoder
}

// Ready is the handshake the worker sends once the model is loaded.
type Ready struct {
	NFeatures int      `json:"n_features"`
	Classes   []string `json:"classes"`
}

// Prediction is one answer from the worker.
type Prediction struct {
	Label      string  `json:"label"`
	Index      int     `json:"index"`
	Confidence float64 `json:"confidence"`
}

type request struct {
	Features []float64 `json:"features"`
}

// StartError is returned when a worker exits before its ready frame.
// Cmd carries the captured stderr so callers can show the Python traceback.
type StartError struct {
	Name string
	Err  error
	Cmd  *utils.SafeCommand
}

func (e *StartError) Error() string {
	return fmt.Sprintf("%s worker did not become ready: %v", e.Name, e.Err)
}

func (e *StartError) Unwrap() error { return e.Err }

// PythonWorker owns a Python process that serves predictions for one pickled model.
type PythonWorker struct {
	Name     string
	Cmd      *utils.SafeCommand
	Stdin    io.WriteCloser
	DataPipe io.ReadCloser
	Info     Ready

	mu sync.Mutex
}

// NewPythonWorker starts the process and waits for its ready frame.
func NewPythonWorker(cfg Config) (*PythonWorker, error) {
	python := cfg.Python
	if python == "" {
		python = "python3"
	}
	args := []string{"-u", cfg.Script, "--model", cfg.Model}
	if cfg.Encoder != "" {
		args = append(args, "--encoder", cfg.Encoder)
	}
	py := utils.NewSafeCommand(python, args...)

	// Create a side-channel pipe (FD 3) for clean data transfer
	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create pipe: %w", err)
	}
	// Pass the write-end to the child process. It will appear as FD 3.
	py.Cmd.ExtraFiles = []*os.File{w}

	stdin, err := py.StdinPipe()
	if err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	if err := py.Start(); err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("%s worker failed to start: %w", cfg.Name, err)
	}

	// Close the write-end in the parent so only the child holds it
	w.Close()

	pw := &PythonWorker{
		Name:     cfg.Name,
		Cmd:      py,
		Stdin:    stdin,
		DataPipe: r,
	}

	if err := pw.awaitReady(); err != nil {
		pw.Close()
		return nil, &StartError{Name: cfg.Name, Err: err, Cmd: py}
	}
	return pw, nil
}

func (w *PythonWorker) awaitReady() error {
	body, err := w.readResponse()
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, &w.Info); err != nil {
		return fmt.Errorf("malformed ready frame: %w", err)
	}
	return nil
}

// Communicate sends one request and returns the raw response body.
// Protocol: [Length][Data] in both directions; responses start with a status byte.
func (w *PythonWorker) Communicate(data []byte) ([]byte, error) {
	if err := binary.Write(w.Stdin, binary.BigEndian, uint32(len(data))); err != nil {
		return nil, err
	}
	if _, err := w.Stdin.Write(data); err != nil {
		return nil, err
	}
	return w.readResponse()
}

func (w *PythonWorker) readResponse() ([]byte, error) {
	header := make([]byte, 4)
	if _, err := io.ReadFull(w.DataPipe, header); err != nil {
		return nil, err // This is where we catch an import error or a crash on load
	}

	respLen := binary.BigEndian.Uint32(header)
	if respLen == 0 {
		return nil, errors.New("empty response frame")
	}
	if respLen > maxFrame {
		return nil, fmt.Errorf("response frame too large: %d bytes", respLen)
	}
	respBody := make([]byte, respLen)
	if _, err := io.ReadFull(w.DataPipe, respBody); err != nil {
		return nil, err
	}

	switch respBody[0] {
	case statusOK:
		return respBody[1:], nil
	case statusError:
		return nil, decodeError(respBody[1:])
	default:
		return nil, fmt.Errorf("unknown status byte %d", respBody[0])
	}
}

func decodeError(body []byte) error {
	rd := bytes.NewReader(body)
	var msgLen uint32
	if err := binary.Read(rd, binary.BigEndian, &msgLen); err != nil {
		return fmt.Errorf("python worker error: <unreadable: %v>", err)
	}
	if int64(msgLen) > int64(rd.Len()) {
		return fmt.Errorf("python worker error: <truncated: message length %d exceeds frame>", msgLen)
	}
	msg := make([]byte, msgLen)
	if _, err := io.ReadFull(rd, msg); err != nil {
		return fmt.Errorf("python worker error: <truncated: %v>", err)
	}
	return fmt.Errorf("python worker error: %s", msg)
}

// Predict sends a feature vector and decodes the worker's answer.
// Calls are serialized; the worker handles one request at a time.
func (w *PythonWorker) Predict(features []float64) (Prediction, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	payload, err := json.Marshal(request{Features: features})
	if err != nil {
		return Prediction{}, err
	}
	resp, err := w.Communicate(payload)
	if err != nil {
		return Prediction{}, err
	}

	var p Prediction
	if err := json.Unmarshal(resp, &p); err != nil {
		return Prediction{}, fmt.Errorf("malformed prediction from %s worker: %w", w.Name, err)
	}
	return p, nil
}

// Close shuts the pipes down and waits for the process to exit.
func (w *PythonWorker) Close() error {
	if w.Stdin != nil {
		w.Stdin.Close()
	}
	if w.DataPipe != nil {
		w.DataPipe.Close()
	}
	if w.Cmd != nil {
		return w.Cmd.Wait()
	}
	return nil
}
