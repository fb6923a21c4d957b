package digest

import (
	"fmt"
	"os"
	"strings"

	"github.com/mesh-intelligence/blindkit/pkg/types"
)

// WritePin writes path's exact digest to path+".sha256", the detached
// pin that travels with a sealed archive.
func WritePin(path string) error {
	sum, err := SumFile(path)
	if err != nil {
		return err
	}
	return os.WriteFile(path+".sha256", []byte(sum+"\n"), 0o644)
}

// ReadPin returns the digest recorded in path's detached pin file.
func ReadPin(path string) (string, error) {
	data, err := os.ReadFile(path + ".sha256")
	if err != nil {
		return "", fmt.Errorf("reading pin for %s: %w", path, err)
	}
	sum := strings.TrimSpace(string(data))
	if len(sum) != 64 {
		return "", fmt.Errorf("pin for %s is not a sha256 digest: %w", path, types.ErrValidation)
	}
	return sum, nil
}
