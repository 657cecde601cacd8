package datasource

import (
	"context"
	"errors"
	"fmt"

	"github.com/ekaya-inc/ekaya-federation/pkg/models"
)

// ErrAdapterNotRegistered is returned when a source names a connector type
// that is not compiled in. The orchestrator reports such sources as no_query.
var ErrAdapterNotRegistered = errors.New("datasource adapter not registered")

// ErrNoConnection is returned for sources without connection settings.
var ErrNoConnection = errors.New("no connection settings")

// AdapterFactory creates executors for registry sources.
type AdapterFactory interface {
	// NewQueryExecutor creates a query executor for the given source.
	NewQueryExecutor(ctx context.Context, src *models.SourceDescriptor) (QueryExecutor, error)

	// ListTypes returns info for all registered adapter types.
	ListTypes() []AdapterInfo
}

type registryFactory struct {
	connMgr *ConnectionManager
}

// NewAdapterFactory returns a factory that uses the global registry.
func NewAdapterFactory(connMgr *ConnectionManager) AdapterFactory {
	return &registryFactory{
		connMgr: connMgr,
	}
}

func (f *registryFactory) NewQueryExecutor(ctx context.Context, src *models.SourceDescriptor) (QueryExecutor, error) {
	dsType := src.ConnectorType()
	factory := GetQueryExecutorFactory(dsType)
	if factory == nil {
		return nil, fmt.Errorf("source %s: type %q: %w", src.Name, dsType, ErrAdapterNotRegistered)
	}
	if len(src.Connection) == 0 {
		return nil, fmt.Errorf("source %s: %w", src.Name, ErrNoConnection)
	}
	return factory(ctx, src.Connection, f.connMgr, src.Name)
}

func (f *registryFactory) ListTypes() []AdapterInfo {
	return RegisteredAdapters()
}

// Ensure registryFactory implements AdapterFactory at compile time.
var _ AdapterFactory = (*registryFactory)(nil)
