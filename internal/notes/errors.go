package notes

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
)

var (
	// ErrStorageUnavailable indicates that the embedded database could not be opened or a transaction failed.
	ErrStorageUnavailable = errors.New("notes: storage unavailable")
	// ErrMigrationParse indicates that legacy note data is malformed.
	ErrMigrationParse = errors.New("notes: legacy data malformed")

	errMissingStore      = errors.New("document store is required")
	errMissingOpener     = errors.New("database opener is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
)

// ServiceError carries a stable "<operation>.<reason>" code alongside the cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opStoreOpen     = "notes.store.open"
	opStoreGetAll   = "notes.store.get_all"
	opStorePut      = "notes.store.put"
	opStoreDelete   = "notes.store.delete"
	opCacheNew      = "notes.cache.new"
	opCacheLoad     = "notes.cache.load"
	opCacheCreate   = "notes.cache.create"
	opCachePersist  = "notes.cache.persist"
	opMigrate       = "notes.migrate"
	reasonOpen      = "open_failed"
	reasonQuery     = "query_failed"
	reasonDecode    = "decode_failed"
	reasonEncode    = "encode_failed"
	reasonInvalidID = "invalid_note_id"
	reasonWrite     = "write_failed"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// newStorageError marks cause as ErrStorageUnavailable while keeping it inspectable.
func newStorageError(operation, reason string, cause error) error {
	return newServiceError(operation, reason, fmt.Errorf("%w: %w", ErrStorageUnavailable, cause))
}

func logError(logger *zap.Logger, operation, reason string, err error, fields ...zap.Field) {
	if logger == nil {
		logger = noOpLogger
	}
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	logger.Error("notes service error", attrs...)
}
