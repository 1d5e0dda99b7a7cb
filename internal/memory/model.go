package memory

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bnv-me/webbnv/pkg/host"
)

// ErrNotFound is returned when a memory to delete does not exist.
var ErrNotFound = errors.New("memory not found")

const (
	defaultSearchCount     = 10
	defaultSearchThreshold = 0.8
)

func encodeContent(c host.Content) ([]byte, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshaling content: %w", err)
	}
	return b, nil
}

func decodeContent(b []byte, c *host.Content) error {
	if len(b) == 0 {
		return nil
	}
	if err := json.Unmarshal(b, c); err != nil {
		return fmt.Errorf("unmarshaling content: %w", err)
	}
	return nil
}
