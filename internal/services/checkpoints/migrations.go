package checkpoints

import (
	"fmt"

	"github.com/killallgit/podgraph/internal/models"
)

// migration transforms a payload written by one version into the next
type migration func(payload []byte) ([]byte, error)

// migrations is keyed by source version. Loading walks the chain until the
// current version is reached; a gap means the checkpoint is unmigratable and
// gets quarantined.
var migrations = map[string]struct {
	next string
	fn   migration
}{
	// 2.x checkpoints carried the same payload shape under a different
	// metadata envelope, so the payload passes through unchanged.
	"2.0": {next: models.CheckpointVersion, fn: passthrough},
	"2.1": {next: models.CheckpointVersion, fn: passthrough},
}

func passthrough(payload []byte) ([]byte, error) {
	return payload, nil
}

func migrate(version string, payload []byte) ([]byte, error) {
	for version != models.CheckpointVersion {
		step, ok := migrations[version]
		if !ok {
			return nil, fmt.Errorf("no migration from checkpoint version %s", version)
		}
		var err error
		payload, err = step.fn(payload)
		if err != nil {
			return nil, fmt.Errorf("migrating checkpoint from %s: %w", version, err)
		}
		version = step.next
	}
	return payload, nil
}
