package cart

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// DefaultKeyPrefix namespaces persisted cart snapshots.
const DefaultKeyPrefix = "ecomm-cart"

// ErrMalformed marks a stored value that is not a well-formed cart snapshot.
var ErrMalformed = errors.New("malformed cart snapshot")

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" {
			return f.Name
		}
		return tag
	})
	return v
}

// snapshot is the persisted layout. Derived fields are pointers so that an absent
// field is distinguishable from a zero value.
type snapshot struct {
	Items       []Line   `json:"items" validate:"required,unique=ID,dive"`
	ItemCount   *int     `json:"itemCount" validate:"required,min=0"`
	Subtotal    *float64 `json:"subtotal" validate:"required"`
	TaxAmount   *float64 `json:"taxAmount" validate:"required"`
	TotalAmount *float64 `json:"totalAmount" validate:"required"`
}

// Encode serialises c into the persisted JSON layout.
func Encode(c Cart) (string, error) {
	if c.Items == nil {
		c.Items = []Line{}
	}
	raw, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("encode cart: %w", err)
	}
	return string(raw), nil
}

// Decode parses a persisted snapshot and checks its shape. Errors wrap ErrMalformed.
// The returned cart carries the stored totals unchanged.
func Decode(raw string) (Cart, error) {
	var snap snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return Cart{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := validate.Struct(snap); err != nil {
		return Cart{}, fmt.Errorf("%w: %s", ErrMalformed, describe(err))
	}
	return Cart{
		Items:       snap.Items,
		ItemCount:   *snap.ItemCount,
		Subtotal:    *snap.Subtotal,
		TaxAmount:   *snap.TaxAmount,
		TotalAmount: *snap.TotalAmount,
	}, nil
}

func describe(err error) string {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return err.Error()
	}
	parts := make([]string, 0, len(errs))
	for _, fe := range errs {
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}
