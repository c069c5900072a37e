package classifier

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/Veraticus/nsfw-sweep/internal/common"
)

// NewModel creates the model selected by cfg.Backend.
func NewModel(cfg Config) (Model, error) {
	switch strings.ToLower(cfg.Backend) {
	case "onnx", "":
		return NewONNXModel(cfg)
	case "http":
		return NewHTTPModel(cfg)
	default:
		return nil, fmt.Errorf("unsupported classifier backend: %s", cfg.Backend)
	}
}

// Open builds the configured model and wraps it in a Classifier.
// A failure here means the tool cannot classify anything.
func Open(cfg Config, logger *slog.Logger) (*Classifier, error) {
	m, err := NewModel(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrModelUnavailable, err)
	}
	return New(m, cfg, logger), nil
}
