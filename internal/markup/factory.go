package markup

import (
	"fmt"

	"threadwatch/internal/config"
	"threadwatch/internal/watch"
)

// NewMarkupFromConfig creates a Markup implementation based on the
// configured parser. The tree parser is the default.
func NewMarkupFromConfig(cfg config.MarkupConfig) (watch.Markup, error) {
	switch cfg.Parser {
	case "", "rich":
		return NewRichMarkup(), nil
	case "basic":
		return NewBasicMarkup(), nil
	default:
		return nil, fmt.Errorf("unknown markup parser: %s", cfg.Parser)
	}
}
