package stage

import (
	"anilink/internal/queue"
	"anilink/internal/services"
)

// ResolvedMetadata decodes the metadata a resolve pass stored on the item.
// On failure it returns a services.ErrValidation suitable for stage Execute methods.
func ResolvedMetadata(raw string) (queue.Metadata, error) {
	meta, ok := queue.MetadataFromJSON(raw)
	if !ok {
		return queue.Metadata{}, services.Wrap(
			services.ErrValidation, "stage", "decode metadata",
			"Resolved metadata missing or invalid; rerun resolution", nil)
	}
	return meta, nil
}
