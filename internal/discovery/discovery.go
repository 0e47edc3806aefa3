package discovery

import (
	"go.uber.org/zap"
)

// Filter is a single screening step applied to listed object keys.
type Filter interface {
	Name() string
	IsEnabled() bool
	Apply(keys []string) ([]string, Step)
}

// Step describes the result of executing a filtering step.
type Step struct {
	Initial int
	Dropped int
	Left    int
}

// Pipeline runs filters sequentially over a listing.
type Pipeline struct {
	steps  []Filter
	logger *zap.Logger
}

func New(steps []Filter, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{steps: steps, logger: logger}
}

// Default screens out directory markers and, when extensions is non-empty,
// every key whose extension is not listed.
func Default(extensions []string, logger *zap.Logger) *Pipeline {
	return New([]Filter{
		NewDirectoryMarkers(),
		NewExtensions(extensions),
	}, logger)
}

// Run returns the keys that survive every enabled step. Order is preserved.
func (p *Pipeline) Run(keys []string) []string {
	for _, step := range p.steps {
		if !step.IsEnabled() {
			p.logger.Debug("filter disabled", zap.String("name", step.Name()))
			continue
		}

		next, info := step.Apply(keys)

		p.logger.Debug("filter step",
			zap.String("name", step.Name()),
			zap.Int("initial", info.Initial),
			zap.Int("dropped", info.Dropped),
			zap.Int("left", info.Left),
		)

		keys = next
	}

	return keys
}
