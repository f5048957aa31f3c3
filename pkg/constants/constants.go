package constants

import (
	"github.com/go-playground/validator/v10"
)

type ContextKey string

const (
	TxKey       ContextKey = "tx"
	PoolKey     ContextKey = "pool"
	TenantIDKey ContextKey = "tenant_id"
	UserIDKey   ContextKey = "user_id"
	LoggerKey   ContextKey = "logger"
	RequestIDKey ContextKey = "request_id"
)

var Validate = validator.New(validator.WithRequiredStructEnabled())
