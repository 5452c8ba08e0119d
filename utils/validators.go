package utils

import (
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

func InitValidator() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterValidation("filename", ValidateFileNameRule)
	}
}

func ValidateFileNameRule(fl validator.FieldLevel) bool {
	return ValidateFileName(fl.Field().String())
}

// ValidateFileName rejects names that could escape the attachment prefix or
// that object storage would choke on.
func ValidateFileName(name string) bool {
	if name == "" || len(name) > 255 {
		return false
	}
	if strings.ContainsAny(name, "/\\") {
		return false
	}
	if strings.Contains(name, "..") {
		return false
	}
	return true
}
