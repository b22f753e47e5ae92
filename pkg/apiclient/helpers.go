package apiclient

import (
	"context"
	"fmt"
	"net/url"
)

// getResource performs a GET request and decodes the body into a T.
func getResource[T any](ctx context.Context, c *Client, path string) (*T, error) {
	var result T
	if err := c.get(ctx, path, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// createResource performs a POST request and decodes the body into a T.
func createResource[T any](ctx context.Context, c *Client, path string, body any) (*T, error) {
	var result T
	if err := c.post(ctx, path, body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// deleteResource performs a DELETE request.
func deleteResource(ctx context.Context, c *Client, path string) error {
	return c.delete(ctx, path, nil)
}

// resourcePath formats a path template, escaping string arguments.
//
//	path := resourcePath("/form-submission-drafts/%s", id)
func resourcePath(format string, args ...any) string {
	escaped := make([]any, len(args))
	for i, a := range args {
		if s, ok := a.(string); ok {
			escaped[i] = url.PathEscape(s)
		} else {
			escaped[i] = a
		}
	}
	return fmt.Sprintf(format, escaped...)
}
