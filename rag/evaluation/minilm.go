package evaluation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/mudler/xlog"
	"github.com/nlpodyssey/cybertron/pkg/models/bert"
	"github.com/nlpodyssey/cybertron/pkg/tasks"
	"github.com/nlpodyssey/cybertron/pkg/tasks/textencoding"
)

const (
	// DefaultSentenceModel is the local sentence encoder used for semantic similarity.
	DefaultSentenceModel = "sentence-transformers/all-MiniLM-L6-v2"
	// DefaultEncoderDimensions is the all-MiniLM-L6-v2 vector size.
	DefaultEncoderDimensions = 384
	// DefaultModelsDir is where downloaded models are converted and cached.
	DefaultModelsDir = "models"
)

var errEmptyText = errors.New("cannot encode empty text")

// SentenceEncoderOptions configures a SentenceEncoder.
type SentenceEncoderOptions struct {
	ModelsDir string
	ModelName string
	// HubToken authenticates model downloads from the Hugging Face hub.
	HubToken string
	// Offline only loads models already present in ModelsDir.
	Offline bool
}

// SentenceEncoder embeds text with a sentence-transformers model running in process,
// mean pooling the token embeddings. The model is downloaded and loaded on first use.
type SentenceEncoder struct {
	opts SentenceEncoderOptions

	once    sync.Once
	loadErr error
	mu      sync.Mutex
	model   textencoding.Interface
}

func NewSentenceEncoder(opts SentenceEncoderOptions) *SentenceEncoder {
	if opts.ModelsDir == "" {
		opts.ModelsDir = DefaultModelsDir
	}
	if opts.ModelName == "" {
		opts.ModelName = DefaultSentenceModel
	}
	return &SentenceEncoder{opts: opts}
}

func (e *SentenceEncoder) load() error {
	e.once.Do(func() {
		conf := &tasks.Config{
			ModelsDir:      e.opts.ModelsDir,
			ModelName:      e.opts.ModelName,
			HubAccessToken: e.opts.HubToken,
			DownloadPolicy: tasks.DownloadMissing,
		}
		if e.opts.Offline {
			conf.DownloadPolicy = tasks.DownloadNever
		}

		xlog.Info("Loading sentence encoder", "model", e.opts.ModelName, "dir", e.opts.ModelsDir)
		m, err := tasks.Load[textencoding.Interface](conf)
		if err != nil {
			e.loadErr = fmt.Errorf("failed to load sentence encoder %s: %w", e.opts.ModelName, err)
			return
		}
		e.model = m
	})
	return e.loadErr
}

// Embed encodes text into a single sentence vector.
func (e *SentenceEncoder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errEmptyText
	}
	if err := e.load(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	res, err := e.model.Encode(ctx, text, int(bert.MeanPooling))
	if err != nil {
		return nil, fmt.Errorf("failed to encode text: %w", err)
	}
	return res.Vector.Data().F32(), nil
}
