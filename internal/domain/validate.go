package domain

import "fmt"

// ValidateAdd checks an Add batch before it reaches a backend: matching
// lengths, non-empty ids and no id repeated inside the batch.
func ValidateAdd(documents, ids []string) error {
	if len(documents) != len(ids) {
		return fmt.Errorf("%w: %d documents but %d ids", ErrInvalidArgument, len(documents), len(ids))
	}
	if len(ids) == 0 {
		return fmt.Errorf("%w: nothing to add", ErrInvalidArgument)
	}
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id == "" {
			return fmt.Errorf("%w: empty document id", ErrInvalidArgument)
		}
		if _, ok := seen[id]; ok {
			return fmt.Errorf("%w: %q repeated in batch", ErrDuplicateID, id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

// ValidateQuery checks query arguments shared by every backend.
func ValidateQuery(queryTexts []string, nResults int) error {
	if len(queryTexts) == 0 {
		return fmt.Errorf("%w: no query texts", ErrInvalidArgument)
	}
	if nResults <= 0 {
		return fmt.Errorf("%w: n_results must be positive, got %d", ErrInvalidArgument, nResults)
	}
	return nil
}
