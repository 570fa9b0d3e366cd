// Package validate 基于 go-playground/validator 的实体与请求校验
package validate

import (
	stderrors "errors"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/dumeirei/school-portal-backend/internal/common/utils"
)

var (
	std  *validator.Validate
	once sync.Once
)

// Get 返回已注册自定义规则的校验器
func Get() *validator.Validate {
	once.Do(func() {
		std = validator.New(validator.WithRequiredStructEnabled())
		configure(std)
	})
	return std
}

// SetupGin 让 gin 的绑定校验使用相同的自定义规则
func SetupGin() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		configure(v)
	}
}

func configure(v *validator.Validate) {
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})

	// decimal 按数值参与 gt/gte/lte 比较
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})

	_ = v.RegisterValidation("referral_code", func(fl validator.FieldLevel) bool {
		return utils.ValidUsername(fl.Field().String())
	})
	_ = v.RegisterValidation("ng_phone", func(fl validator.FieldLevel) bool {
		return utils.ValidatePhone(fl.Field().String())
	})
}

// Struct 校验结构体
func Struct(s interface{}) error {
	return Get().Struct(s)
}

// Message 把校验错误转换为可读消息
func Message(err error) string {
	var ves validator.ValidationErrors
	if !stderrors.As(err, &ves) || len(ves) == 0 {
		return "malformed request"
	}
	parts := make([]string, 0, len(ves))
	for _, e := range ves {
		parts = append(parts, e.Field()+": "+fieldMessage(e))
	}
	return strings.Join(parts, "; ")
}

func fieldMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email"
	case "min":
		return "must be at least " + e.Param()
	case "max":
		return "must be at most " + e.Param()
	case "oneof":
		return "must be one of " + e.Param()
	case "gt":
		return "must be greater than " + e.Param()
	case "gte":
		return "must be greater than or equal to " + e.Param()
	case "lte":
		return "must be less than or equal to " + e.Param()
	case "referral_code":
		return "must be 3-30 lowercase letters, digits or underscores"
	case "ng_phone":
		return "must be a valid Nigerian phone number"
	default:
		return "is invalid"
	}
}
