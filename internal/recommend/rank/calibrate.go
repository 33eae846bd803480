package rank

import (
	"github.com/yungbote/neurobridge-recommender/internal/config"
	"github.com/yungbote/neurobridge-recommender/internal/recommend"
)

type Calibrator struct {
	cfg config.CalibrationConfig
}

func NewCalibrator(cfg config.CalibrationConfig) *Calibrator {
	return &Calibrator{cfg: cfg}
}

// Penalty applies when the ranking came from a fallback node or the terminal default.
func (c *Calibrator) Penalty(nodeIndex int, terminal bool) float64 {
	switch {
	case terminal:
		return c.cfg.TerminalPenalty
	case nodeIndex > 0:
		return c.cfg.NonPrimaryPenalty
	default:
		return 0
	}
}

// Calibrate returns a confidence in [0,1] for the given signals.
func (c *Calibrator) Calibrate(ext, personalization, urgency, similarity, dataQuality, penalty float64) float64 {
	base := c.cfg.External*recommend.Clamp01(ext) +
		c.cfg.Personalization*recommend.Clamp01(personalization) +
		c.cfg.Urgency*recommend.Clamp01(urgency) +
		c.cfg.Similarity*recommend.Clamp01(similarity)
	return recommend.Clamp01(base*(0.6+0.4*recommend.Clamp01(dataQuality)) - penalty)
}
