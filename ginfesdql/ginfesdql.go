// Package ginfesdql connects a fesdql Registry to gin applications.
package ginfesdql

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/coregx/fesdql"
	"github.com/coregx/fesdql/httpfesdql"
	"github.com/coregx/fesdql/internal/fields"
)

const registryContextName = "fesdql.registry"

// Middleware stores reg in the gin context and the request context, together
// with the client address and request id used by the auditor.
func Middleware(reg *fesdql.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(registryContextName, reg)
		c.Request = c.Request.WithContext(httpfesdql.RequestContext(
			c.Request.Context(), reg, c.ClientIP(), c.GetHeader(httpfesdql.RequestIDHeader)))
		c.Next()
	}
}

// Registry returns the Registry installed by Middleware.
func Registry(c *gin.Context) (*fesdql.Registry, bool) {
	val, ok := c.Get(registryContextName)
	if !ok {
		return nil, false
	}
	reg, ok := val.(*fesdql.Registry)
	return reg, ok && reg != nil
}

// Session returns the session of bind. The empty bind is the default one.
func Session(c *gin.Context, bind string) (*fesdql.Session, error) {
	reg, ok := Registry(c)
	if !ok {
		return nil, httpfesdql.ErrNoRegistry
	}
	return reg.GetSession(c.Request.Context(), bind)
}

// AbortWithError aborts the request with the JSON error response of err.
func AbortWithError(c *gin.Context, err error) {
	status, body := httpfesdql.ErrorResponse(err)
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, body)
}

// Binder binds request bodies with localized field messages.
type Binder struct {
	trans ut.Translator
	useZh bool
}

// NewBinder registers the localized field messages on gin's validator.
func NewBinder(useZh bool) (*Binder, error) {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return nil, fesdql.ErrConfig
	}
	trans, err := fields.Register(v, useZh)
	if err != nil {
		return nil, err
	}
	return &Binder{trans: trans, useZh: useZh}, nil
}

// Bind binds the request into obj. Invalid fields are reported as
// fesdql.FieldErrors.
func (b *Binder) Bind(c *gin.Context, obj any) error {
	return fields.Translate(c.ShouldBind(obj), b.trans, b.useZh)
}

// Run opens reg, serves engine on addr until ctx is done and then shuts both
// down within timeout.
func Run(ctx context.Context, engine *gin.Engine, addr string, reg *fesdql.Registry, timeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return httpfesdql.Serve(ctx, srv, reg, timeout)
}
