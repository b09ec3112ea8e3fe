package utils

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/warehouse_backend/config"
	"github.com/bsm/redislock"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/ttacon/libphonenumber"
)

var ErrImportInProgress = errors.New("another import of this kind is in progress")

var validate = validator.New()

func ValidatePhoneNumber(phoneNumber, countryCode string) error {
	p, err := libphonenumber.Parse(phoneNumber, countryCode)
	if err != nil {
		return err
	}

	if !libphonenumber.IsValidNumber(p) {
		return fmt.Errorf("phone number is not valid")
	}

	return nil
}

// ValidateStruct runs the `validate` struct tags of input.
func ValidateStruct(input interface{}) error {
	return validate.Struct(input)
}

// DescribeValidationErrors renders validation errors as a single sentence.
func DescribeValidationErrors(err error) string {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err.Error()
	}
	parts := make([]string, 0, len(validationErrors))
	for _, ve := range validationErrors {
		if ve.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s failed %s=%s", ve.Field(), ve.Tag(), ve.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("%s failed %s", ve.Field(), ve.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}

func NewTrue() *bool {
	b := true
	return &b
}

func UniqueSlice[T comparable](slice []T) []T {
	inResult := make(map[T]bool)
	var result []T
	for _, elm := range slice {
		if _, ok := inResult[elm]; !ok {
			inResult[elm] = true
			result = append(result, elm)
		}
	}
	return result
}

// safely dereference pointer of type T, nil pointer return zero value or optional default
func DereferencePtr[T any](ptr *T, defaults ...T) T {
	var defaultValue T
	if len(defaults) > 0 {
		defaultValue = defaults[0]
	}
	if ptr == nil {
		return defaultValue
	}
	return *ptr
}

// ParseDecimal converts a string to a decimal.Decimal value.
func ParseDecimal(value string) (decimal.Decimal, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return decimal.Zero, errors.New("empty decimal string")
	}
	return decimal.NewFromString(value)
}

// ObtainImportLock serializes bulk imports of one kind across instances.
// Without Redis the lock is skipped and the database transaction is the only guard.
func ObtainImportLock(ctx context.Context, kind string, moduleName string, functionName string) (release func(), err error) {
	logger := config.GetLogger()
	locker := config.GetRedisLock()
	noop := func() {}
	if locker == nil {
		logger.WithFields(logrus.Fields{
			"module":   moduleName,
			"funcName": functionName,
			"kind":     kind,
		}).Warn("redis lock not ready; proceeding without import lock")
		return noop, nil
	}

	lockKey := fmt.Sprintf("lock:import:%s", kind)
	obtainCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	lock, err := locker.Obtain(obtainCtx, lockKey, 2*time.Minute, &redislock.Options{
		RetryStrategy: redislock.LinearBackoff(250 * time.Millisecond),
	})
	if errors.Is(err, redislock.ErrNotObtained) || errors.Is(err, context.DeadlineExceeded) {
		config.LogError(logger, moduleName, functionName, "Could not obtain import lock", kind, err)
		return noop, ErrImportInProgress
	} else if err != nil {
		config.LogError(logger, moduleName, functionName, "Error obtaining import lock", kind, err)
		return noop, err
	}

	return func() {
		if releaseErr := lock.Release(context.Background()); releaseErr != nil && !errors.Is(releaseErr, redislock.ErrLockNotHeld) {
			config.LogError(logger, moduleName, functionName, "Releasing import lock", kind, releaseErr)
		}
	}, nil
}
