// Package checkout turns a cart snapshot into a backend order and submits it.
package checkout

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/angelmondragon/storefront/internal/backend"
	"github.com/angelmondragon/storefront/internal/cart"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/money"
	"github.com/go-playground/validator/v10"
)

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

// Form is the shopper-supplied part of an order.
type Form struct {
	CustomerID     string  `json:"customerId"`
	PaymentMethod  string  `json:"paymentMethod"`
	DiscountAmount float64 `json:"discountAmount"`
	Address        string  `json:"address"`
}

// BuildPayload maps snapshot lines onto order items. Cart tax rates are percentages;
// the order carries them as fractions in [0, 1].
func BuildPayload(snapshot cart.Cart, form Form) (backend.OrderPayload, error) {
	method := strings.TrimSpace(form.PaymentMethod)
	if method == "" {
		method = backend.PaymentMethodInvoice
	}

	items := make([]backend.OrderItem, 0, len(snapshot.Items))
	for _, line := range snapshot.Items {
		items = append(items, backend.OrderItem{
			ProductID:   line.ID,
			ProductName: line.Name,
			Quantity:    line.Quantity,
			UnitPrice:   line.BasePrice,
			TaxRate:     money.Percent(line.TaxRate),
		})
	}

	payload := backend.OrderPayload{
		CustomerID:     strings.TrimSpace(form.CustomerID),
		Items:          items,
		PaymentMethod:  method,
		DiscountAmount: form.DiscountAmount,
		Address:        strings.TrimSpace(form.Address),
	}
	if err := validate.Struct(payload); err != nil {
		return backend.OrderPayload{}, validationError(err)
	}
	return payload, nil
}

func validationError(err error) error {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order")
	}
	details := map[string]string{}
	for _, fe := range errs {
		field := strings.TrimPrefix(fe.Namespace(), "OrderPayload.")
		details[field] = message(fe)
	}
	return pkgerrors.New(pkgerrors.CodeValidation, "invalid order").WithDetails(details)
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("must contain at least %s item(s)", fe.Param())
		}
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	}
	return "is invalid"
}
