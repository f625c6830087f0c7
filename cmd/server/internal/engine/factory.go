package engine

import (
	"fmt"

	"github.com/newrality/transcribe/cmd/server/internal/config"
	"github.com/newrality/transcribe/pkg/models"
)

// New constructs the Engine selected by the whisper configuration.
// Construction performs only static validation (binary present, model file
// on disk); liveness is established separately through HealthCheck.
func New(cfg config.WhisperConfig) (Engine, error) {
	switch cfg.Mode {
	case "server":
		return NewServerEngine(cfg.ServerURL, cfg.Model), nil
	case "cli":
		model, err := models.Resolve(cfg.Model)
		if err != nil {
			return nil, err
		}
		return NewCLIEngine(cfg.ProgramPath, cfg.ModelDir, model.FileName)
	case "mock":
		return NewMock(), nil
	default:
		return nil, fmt.Errorf("unknown whisper mode: %s", cfg.Mode)
	}
}
