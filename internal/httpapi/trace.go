package httpapi

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	RequestIDHeader = "X-Request-Id"

	requestIDContextKey = "ezinfo_request_id"
	requestIDPrefix     = "req_"

	envelopeKeyOK        = "ok"
	envelopeKeyError     = "error"
	envelopeKeyRequestID = "requestId"

	logFieldRequestID = "requestId"
	logFieldRoute     = "route"
	logFieldStatus    = "status"
	logFieldSource    = "source"

	internalServerErrorMessage = "Internal server error"
	invalidJSONBodyMessage     = "Invalid JSON body."
)

// RequestID assigns every request an opaque id, exposes it in the X-Request-Id header and
// makes it available to the handlers through the gin context.
func RequestID() gin.HandlerFunc {
	return func(context *gin.Context) {
		requestID := requestIDFor(context)
		context.Header(RequestIDHeader, requestID)
		context.Next()
	}
}

func requestIDFor(context *gin.Context) string {
	if value, exists := context.Get(requestIDContextKey); exists {
		if requestID, isString := value.(string); isString && requestID != "" {
			return requestID
		}
	}
	requestID := requestIDPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")
	context.Set(requestIDContextKey, requestID)
	return requestID
}

// Trace logs on behalf of one API request and writes its response envelope.
type Trace struct {
	context   *gin.Context
	logger    *zap.Logger
	requestID string
}

// NewTrace binds a logger to the request id, route, method and path of the current request.
func NewTrace(context *gin.Context, logger *zap.Logger, route string) *Trace {
	if logger == nil {
		logger = zap.NewNop()
	}
	requestID := requestIDFor(context)
	return &Trace{
		context:   context,
		requestID: requestID,
		logger: logger.With(
			zap.String(logFieldRequestID, requestID),
			zap.String(logFieldRoute, route),
			zap.String("method", context.Request.Method),
			zap.String("path", context.Request.URL.Path),
		),
	}
}

func (trace *Trace) RequestID() string {
	return trace.requestID
}

func (trace *Trace) Info(message string, fields ...zap.Field) {
	trace.logger.Info(message, fields...)
}

func (trace *Trace) Warn(message string, fields ...zap.Field) {
	trace.logger.Warn(message, fields...)
}

func (trace *Trace) Error(message string, fields ...zap.Field) {
	trace.logger.Error(message, fields...)
}

// Success writes {ok:true, requestId, ...payload} with status 200.
func (trace *Trace) Success(payload gin.H) {
	trace.SuccessWithStatus(http.StatusOK, payload)
}

func (trace *Trace) SuccessWithStatus(status int, payload gin.H) {
	responseKeys := make([]string, 0, len(payload))
	body := gin.H{envelopeKeyOK: true, envelopeKeyRequestID: trace.requestID}
	for key, value := range payload {
		body[key] = value
		responseKeys = append(responseKeys, key)
	}
	trace.logger.Info("Request succeeded", zap.Int(logFieldStatus, status), zap.Strings("responseKeys", responseKeys))
	trace.context.JSON(status, body)
}

// Fail logs message at error level and writes {ok:false, error, requestId} with status.
func (trace *Trace) Fail(status int, message string, fields ...zap.Field) {
	trace.logger.Error(message, append([]zap.Field{zap.Int(logFieldStatus, status)}, fields...)...)
	trace.context.AbortWithStatusJSON(status, failureEnvelope(message, trace.requestID))
}

func failureEnvelope(message string, requestID string) gin.H {
	return gin.H{envelopeKeyOK: false, envelopeKeyError: message, envelopeKeyRequestID: requestID}
}
