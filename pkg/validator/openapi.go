package validator

import (
	"fmt"
	"sync"

	apperrors "provider-messaging/backend/pkg/errors"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/gorillamux"
	"github.com/gin-gonic/gin"
)

// OpenAPIValidator checks incoming requests against an OpenAPI document.
// Routes the document does not describe pass through untouched.
type OpenAPIValidator struct {
	mu         sync.RWMutex
	router     routers.Router
	schemaPath string
}

func NewOpenAPIValidator(schemaPath string) (*OpenAPIValidator, error) {
	router, err := loadRouter(schemaPath)
	if err != nil {
		return nil, err
	}
	return &OpenAPIValidator{router: router, schemaPath: schemaPath}, nil
}

func loadRouter(path string) (routers.Router, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load OpenAPI schema from %s: %w", path, err)
	}
	if err := doc.Validate(loader.Context); err != nil {
		return nil, fmt.Errorf("invalid OpenAPI schema: %w", err)
	}
	router, err := gorillamux.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("error creating OpenAPI router: %w", err)
	}
	return router, nil
}

// ReloadSchema reloads the OpenAPI schema from disk
func (v *OpenAPIValidator) ReloadSchema() error {
	router, err := loadRouter(v.schemaPath)
	if err != nil {
		return err
	}
	v.mu.Lock()
	v.router = router
	v.mu.Unlock()
	return nil
}

// Middleware rejects requests that do not match their documented schema
// with 400 VALIDATION_FAILED.
func (v *OpenAPIValidator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		v.mu.RLock()
		router := v.router
		v.mu.RUnlock()

		route, pathParams, err := router.FindRoute(c.Request)
		if err != nil {
			c.Next()
			return
		}

		input := &openapi3filter.RequestValidationInput{
			Request:    c.Request,
			PathParams: pathParams,
			Route:      route,
			Options: &openapi3filter.Options{
				AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
				MultiError:         false,
			},
		}
		if err := openapi3filter.ValidateRequest(c.Request.Context(), input); err != nil {
			_ = c.Error(apperrors.NewBadRequestError("VALIDATION_FAILED", "Request does not match the API schema").
				WithDetails(err.Error()))
			c.Abort()
			return
		}
		c.Next()
	}
}
