package router

import (
	"errors"
	"fmt"

	"github.com/cyberdreadx/rougee-play-beats-sub001/purchaser/models"
)

var errEmptySymbol = errors.New("asset symbol must not be empty")

type catalogError struct {
	symbol      string
	reason      string
	unsupported bool
}

func (e *catalogError) Error() string {
	if e.symbol == "" {
		return fmt.Sprintf("asset catalog: %s", e.reason)
	}
	return fmt.Sprintf("asset %q: %s", e.symbol, e.reason)
}

func (e *catalogError) Unwrap() error {
	if e.unsupported {
		return models.ErrUnsupportedAsset
	}
	return nil
}
