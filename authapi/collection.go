package authapi

import (
	"context"
	"net/http"
	"strconv"

	"github.com/jrsteele09/go-auth-console/apiclient"
	"github.com/pkg/errors"
)

// Collection is the CRUD surface the backend exposes for every admin entity.
type Collection[T any] struct {
	client *apiclient.Client
	path   string
}

// NewCollection binds a collection to its path, e.g. "/roles".
func NewCollection[T any](client *apiclient.Client, path string) *Collection[T] {
	return &Collection[T]{client: client, path: path}
}

// Path returns the collection path.
func (c *Collection[T]) Path() string {
	return c.path
}

func (c *Collection[T]) itemPath(id int64) string {
	return c.path + "/" + strconv.FormatInt(id, 10)
}

func (c *Collection[T]) List(ctx context.Context, opts ListOptions) ([]T, error) {
	var items []T
	req := apiclient.NewRequest(http.MethodGet, c.path).WithQuery(opts.query())
	if err := c.client.Do(ctx, req, &items); err != nil {
		return nil, errors.Wrapf(err, "[Collection.List] %s", c.path)
	}
	return items, nil
}

func (c *Collection[T]) Get(ctx context.Context, id int64) (*T, error) {
	var item T
	if err := c.client.Get(ctx, c.itemPath(id), &item); err != nil {
		return nil, errors.Wrapf(err, "[Collection.Get] %s", c.path)
	}
	return &item, nil
}

// Create posts in (any JSON-encodable create payload) and returns the stored entity.
func (c *Collection[T]) Create(ctx context.Context, in any) (*T, error) {
	var item T
	if err := c.client.Post(ctx, c.path, in, &item); err != nil {
		return nil, errors.Wrapf(err, "[Collection.Create] %s", c.path)
	}
	return &item, nil
}

func (c *Collection[T]) Update(ctx context.Context, id int64, in any) (*T, error) {
	var item T
	if err := c.client.Put(ctx, c.itemPath(id), in, &item); err != nil {
		return nil, errors.Wrapf(err, "[Collection.Update] %s", c.path)
	}
	return &item, nil
}

func (c *Collection[T]) Delete(ctx context.Context, id int64) error {
	if err := c.client.Delete(ctx, c.itemPath(id)); err != nil {
		return errors.Wrapf(err, "[Collection.Delete] %s", c.path)
	}
	return nil
}
