package asf

import (
	"context"
	"net/url"
	"strconv"

	"github.com/example/go-sarslide/asf/model"
)

// ResultIterator provides streaming access to paginated search results.
type ResultIterator struct {
	client   *Client
	query    url.Values
	pageSize int
	page     int
	index    int
	batch    []model.Product
	lastErr  error
	// last is set once a short or empty page has been fetched.
	last bool
}

func newResultIterator(client *Client, query url.Values, pageSize int) *ResultIterator {
	if pageSize <= 0 {
		pageSize = 100
	}
	return &ResultIterator{
		client:   client,
		query:    cloneValues(query),
		pageSize: pageSize,
		page:     1,
	}
}

// Next fetches the next product. It returns false when iteration is complete or an error occurred.
func (it *ResultIterator) Next(ctx context.Context) bool {
	if it.index < len(it.batch) {
		it.index++
		return true
	}
	if it.lastErr != nil || it.last {
		return false
	}

	if err := it.loadNext(ctx); err != nil {
		it.lastErr = err
		return false
	}
	if len(it.batch) == 0 {
		return false
	}
	it.index = 1
	return true
}

// Product returns the current product. Call after Next returns true.
func (it *ResultIterator) Product() model.Product {
	if it.index == 0 || it.index > len(it.batch) {
		return model.Product{}
	}
	return it.batch[it.index-1]
}

// Err reports any error encountered during iteration.
func (it *ResultIterator) Err() error {
	return it.lastErr
}

func (it *ResultIterator) loadNext(ctx context.Context) error {
	it.query.Set("page", strconv.Itoa(it.page))
	if !hasListQuery(it.query) {
		it.query.Set("maxResults", strconv.Itoa(it.pageSize))
	}

	products, err := it.client.doSearchRequest(ctx, it.query)
	if err != nil {
		return err
	}
	// A server that ignores the page parameter repeats the first page.
	if len(products) > 0 && len(it.batch) > 0 && products[0].ID == it.batch[0].ID {
		products = nil
	}

	it.batch = products
	it.index = 0
	it.page++
	if len(products) < it.pageSize || hasListQuery(it.query) {
		it.last = true
	}
	return nil
}

// hasListQuery reports whether the query looks up explicit granules or products, which the API
// answers in a single page.
func hasListQuery(q url.Values) bool {
	return q.Get("granule_list") != "" || q.Get("product_list") != ""
}

func cloneValues(v url.Values) url.Values {
	cp := make(url.Values, len(v))
	for k, vals := range v {
		dup := make([]string, len(vals))
		copy(dup, vals)
		cp[k] = dup
	}
	return cp
}
