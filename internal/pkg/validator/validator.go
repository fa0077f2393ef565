package validator

import (
	"sync"

	"marketplace/internal/domain"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var once sync.Once

// RegisterBindings adds the custom binding tags to gin's validator. Safe to
// call more than once.
//
//	booking_status  a known domain.BookingStatus
func RegisterBindings() {
	once.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		_ = v.RegisterValidation("booking_status", bookingStatus)
	})
}

func bookingStatus(fl validator.FieldLevel) bool {
	return domain.BookingStatus(fl.Field().String()).Valid()
}
