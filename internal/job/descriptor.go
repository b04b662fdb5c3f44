package job

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidDescriptor is returned when a job payload is absent or malformed.
// Jobs carrying such a payload are skipped without touching their state.
var ErrInvalidDescriptor = errors.New("invalid video descriptor")

// defaultProductName is used when the payload carries no product name.
const defaultProductName = "Unknown"

var validate = validator.New(validator.WithRequiredStructEnabled())

// Video is one source clip of a product.
type Video struct {
	URL string `json:"url" validate:"required,url"`
}

// ProductInfo holds the display information of a product.
type ProductInfo struct {
	Name string `json:"name"`
}

// Descriptor is the parsed video payload of a job.
type Descriptor struct {
	// Videos is the ordered list of source clips.
	Videos []Video `json:"videos" validate:"required,min=1,dive"`
	// Product holds the product display information.
	Product ProductInfo `json:"productInfo"`
	// OverlayText is optional caption copy written upstream.
	OverlayText string `json:"overlayText,omitempty"`
}

// ParseDescriptor decodes and validates a job payload.
// A NULL payload, a non-object payload and a payload without videos all
// return an error wrapping ErrInvalidDescriptor.
func ParseDescriptor(raw json.RawMessage) (*Descriptor, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, fmt.Errorf("%w: payload is NULL", ErrInvalidDescriptor)
	}
	if trimmed[0] != '{' {
		return nil, fmt.Errorf("%w: payload is not an object", ErrInvalidDescriptor)
	}

	var d Descriptor
	if err := json.Unmarshal(trimmed, &d); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDescriptor, err)
	}
	if len(d.Videos) == 0 {
		return nil, fmt.Errorf("%w: no videos", ErrInvalidDescriptor)
	}
	if err := validate.Struct(d); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDescriptor, err)
	}

	return &d, nil
}

// ProductName returns the trimmed product name, or "Unknown" when absent.
func (d *Descriptor) ProductName() string {
	name := strings.TrimSpace(d.Product.Name)
	if name == "" {
		return defaultProductName
	}
	return name
}

// URLs returns the source video URLs in order.
func (d *Descriptor) URLs() []string {
	urls := make([]string, len(d.Videos))
	for i, v := range d.Videos {
		urls[i] = v.URL
	}
	return urls
}
