// internal/model/encoder.go
package model

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/amikos-tech/pure-onnx/ort"
)

const (
	defaultInputIDsName      = "input_ids"
	defaultAttentionMaskName = "attention_mask"
	defaultOutputName        = "output"

	// DefaultMaxCachedSessions bounds the per-shape session cache. Each
	// distinct (batch, sequence length) pair needs its own session because
	// the bound tensors are fixed-shape.
	DefaultMaxCachedSessions = 8
)

// EncoderConfig configures an ONNXEncoder.
type EncoderConfig struct {
	ModelPath  string
	Layer      int // layer whose hidden states the exported model emits
	HiddenSize int

	// ONNX graph names; empty fields take the BERT-export defaults.
	InputIDsName      string
	AttentionMaskName string
	OutputName        string

	MaxSessions int // 0 = DefaultMaxCachedSessions
}

// InitRuntime points ort at the onnxruntime shared library and initializes
// the environment. An empty libPath falls back to the ORT_LIB_PATH
// environment variable. Safe to call when already initialized.
func InitRuntime(libPath string) error {
	if ort.IsInitialized() {
		return nil
	}
	if libPath == "" {
		libPath = os.Getenv("ORT_LIB_PATH")
	}
	if libPath == "" {
		return errors.New("model: onnxruntime library not configured (--ort-lib or ORT_LIB_PATH)")
	}
	ort.SetSharedLibraryPath(libPath)
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("model: initialize onnxruntime: %w", err)
	}
	return nil
}

// ShutdownRuntime tears the onnxruntime environment down.
func ShutdownRuntime() {
	if ort.IsInitialized() {
		_ = ort.DestroyEnvironment()
	}
}

// ONNXEncoder runs a transformer encoder exported to ONNX and returns the
// hidden states of its configured layer. The export truncates the model at
// that layer, so requests for any other layer are rejected.
type ONNXEncoder struct {
	cfg         EncoderConfig
	inputNames  []string
	outputNames []string

	// sessions caches one session per unique input shape, LRU-bounded by
	// cfg.MaxSessions.
	sessions map[shapeKey]*encoderSession
	lru      *list.List
	lruIndex map[shapeKey]*list.Element
	mu       sync.Mutex
}

type shapeKey struct {
	batch, seq int
}

type encoderSession struct {
	ids, mask []int64

	idsTensor  *ort.Tensor[int64]
	maskTensor *ort.Tensor[int64]
	outTensor  *ort.Tensor[float32]
	session    *ort.AdvancedSession
}

// NewONNXEncoder validates cfg and prepares an encoder. Sessions are created
// lazily on first use of each input shape.
func NewONNXEncoder(cfg EncoderConfig) (*ONNXEncoder, error) {
	if cfg.ModelPath == "" {
		return nil, errors.New("model: model path cannot be empty")
	}
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("model: model path %q is not usable: %w", cfg.ModelPath, err)
	}
	if cfg.HiddenSize < 1 {
		return nil, fmt.Errorf("model: hidden size must be >= 1, got %d", cfg.HiddenSize)
	}
	if cfg.InputIDsName == "" {
		cfg.InputIDsName = defaultInputIDsName
	}
	if cfg.AttentionMaskName == "" {
		cfg.AttentionMaskName = defaultAttentionMaskName
	}
	if cfg.OutputName == "" {
		cfg.OutputName = defaultOutputName
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = DefaultMaxCachedSessions
	}
	return &ONNXEncoder{
		cfg:         cfg,
		inputNames:  []string{cfg.InputIDsName, cfg.AttentionMaskName},
		outputNames: []string{cfg.OutputName},
		sessions:    make(map[shapeKey]*encoderSession),
		lru:         list.New(),
		lruIndex:    make(map[shapeKey]*list.Element),
	}, nil
}

// Encode runs one padded batch and returns hidden states shaped
// [batch][seq][hidden]. All rows of ids and mask must share one length.
// Inference is serialized internally; callers may share one encoder across
// goroutines.
func (e *ONNXEncoder) Encode(ctx context.Context, ids, mask [][]int64, layer int) ([][][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if layer != e.cfg.Layer {
		return nil, fmt.Errorf("model: export emits layer %d hidden states, layer %d requested", e.cfg.Layer, layer)
	}
	batch := len(ids)
	if batch == 0 {
		return nil, nil
	}
	if len(mask) != batch {
		return nil, fmt.Errorf("model: ids/mask batch mismatch: %d vs %d", batch, len(mask))
	}
	seq := len(ids[0])
	for i := range ids {
		if len(ids[i]) != seq || len(mask[i]) != seq {
			return nil, fmt.Errorf("model: ragged batch at row %d", i)
		}
	}
	if !ort.IsInitialized() {
		return nil, errors.New("model: onnxruntime not initialized")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sessions == nil {
		return nil, errors.New("model: encoder has been closed")
	}

	sess, err := e.sessionForLocked(shapeKey{batch: batch, seq: seq})
	if err != nil {
		return nil, err
	}
	for i := 0; i < batch; i++ {
		copy(sess.ids[i*seq:(i+1)*seq], ids[i])
		copy(sess.mask[i*seq:(i+1)*seq], mask[i])
	}
	if err := sess.session.Run(); err != nil {
		return nil, fmt.Errorf("model: encoder inference failed: %w", err)
	}

	data := sess.outTensor.GetData()
	hidden := e.cfg.HiddenSize
	if want := batch * seq * hidden; len(data) != want {
		return nil, fmt.Errorf("model: output length mismatch: got %d, want %d", len(data), want)
	}
	// Copy out of the session-owned buffer before it is reused.
	out := make([][][]float32, batch)
	for b := 0; b < batch; b++ {
		rows := make([][]float32, seq)
		for t := 0; t < seq; t++ {
			row := make([]float32, hidden)
			copy(row, data[(b*seq+t)*hidden:(b*seq+t+1)*hidden])
			rows[t] = row
		}
		out[b] = rows
	}
	return out, nil
}

// Close destroys every cached session and its tensors.
func (e *ONNXEncoder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var err error
	for key, sess := range e.sessions {
		if derr := sess.destroy(); derr != nil {
			err = errors.Join(err, fmt.Errorf("model: destroy %dx%d session: %w", key.batch, key.seq, derr))
		}
	}
	e.sessions = nil
	e.lru = nil
	e.lruIndex = nil
	return err
}

func (e *ONNXEncoder) sessionForLocked(key shapeKey) (*encoderSession, error) {
	if sess, ok := e.sessions[key]; ok {
		e.touchLocked(key)
		return sess, nil
	}
	if len(e.sessions) >= e.cfg.MaxSessions {
		if err := e.evictLocked(); err != nil {
			return nil, err
		}
	}
	sess, err := e.newSession(key)
	if err != nil {
		return nil, err
	}
	e.sessions[key] = sess
	e.touchLocked(key)
	return sess, nil
}

func (e *ONNXEncoder) touchLocked(key shapeKey) {
	if el := e.lruIndex[key]; el != nil {
		e.lru.MoveToBack(el)
		return
	}
	e.lruIndex[key] = e.lru.PushBack(key)
}

func (e *ONNXEncoder) evictLocked() error {
	oldest := e.lru.Front()
	if oldest == nil {
		return nil
	}
	key := oldest.Value.(shapeKey)
	sess := e.sessions[key]
	delete(e.sessions, key)
	delete(e.lruIndex, key)
	e.lru.Remove(oldest)
	if sess == nil {
		return nil
	}
	if err := sess.destroy(); err != nil {
		return fmt.Errorf("model: evict %dx%d session: %w", key.batch, key.seq, err)
	}
	return nil
}

func (e *ONNXEncoder) newSession(key shapeKey) (*encoderSession, error) {
	total := key.batch * key.seq
	idsBuf := make([]int64, total)
	maskBuf := make([]int64, total)

	shape := ort.Shape{int64(key.batch), int64(key.seq)}
	idsTensor, err := ort.NewTensor[int64](shape, idsBuf)
	if err != nil {
		return nil, fmt.Errorf("model: create input_ids tensor: %w", err)
	}
	maskTensor, err := ort.NewTensor[int64](shape, maskBuf)
	if err != nil {
		_ = idsTensor.Destroy()
		return nil, fmt.Errorf("model: create attention_mask tensor: %w", err)
	}
	outShape := ort.Shape{int64(key.batch), int64(key.seq), int64(e.cfg.HiddenSize)}
	outTensor, err := ort.NewEmptyTensor[float32](outShape)
	if err != nil {
		_ = maskTensor.Destroy()
		_ = idsTensor.Destroy()
		return nil, fmt.Errorf("model: create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(
		e.cfg.ModelPath,
		e.inputNames,
		e.outputNames,
		[]ort.Value{idsTensor, maskTensor},
		[]ort.Value{outTensor},
		nil,
	)
	if err != nil {
		_ = outTensor.Destroy()
		_ = maskTensor.Destroy()
		_ = idsTensor.Destroy()
		return nil, fmt.Errorf("model: create encoder session: %w", err)
	}

	return &encoderSession{
		ids:        idsBuf,
		mask:       maskBuf,
		idsTensor:  idsTensor,
		maskTensor: maskTensor,
		outTensor:  outTensor,
		session:    session,
	}, nil
}

func (s *encoderSession) destroy() error {
	var err error
	if s.session != nil {
		err = errors.Join(err, s.session.Destroy())
	}
	if s.outTensor != nil {
		err = errors.Join(err, s.outTensor.Destroy())
	}
	if s.maskTensor != nil {
		err = errors.Join(err, s.maskTensor.Destroy())
	}
	if s.idsTensor != nil {
		err = errors.Join(err, s.idsTensor.Destroy())
	}
	s.session = nil
	s.outTensor = nil
	s.maskTensor = nil
	s.idsTensor = nil
	return err
}
