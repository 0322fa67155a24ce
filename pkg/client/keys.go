package client

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
)

// Key is one entry of the bit catalogue.
type Key struct {
	Index   int    `json:"index"`
	Name    string `json:"name"`
	Section int    `json:"section"`
}

// Section is one contiguous range of the layout.
type Section struct {
	Section int    `json:"section"`
	Name    string `json:"name"`
	First   int    `json:"first"`
	Last    int    `json:"last"`
}

// KeysClient wraps /api/v1/keys.
type KeysClient struct {
	client *Client
}

const keysPath = "/api/v1/keys"

// List returns the catalogue, or one section of it when section is 1..7.
func (k *KeysClient) List(ctx context.Context, section int) ([]Key, error) {
	q := url.Values{}
	if section != 0 {
		q.Set("section", strconv.Itoa(section))
	}
	var out []Key
	if _, err := k.client.do(ctx, request{method: http.MethodGet, path: keysPath, query: q}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (k *KeysClient) Get(ctx context.Context, index int) (*Key, error) {
	var out Key
	if _, err := k.client.do(ctx, request{method: http.MethodGet, path: keysPath + "/" + strconv.Itoa(index)}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (k *KeysClient) Sections(ctx context.Context) ([]Section, error) {
	var out []Section
	if _, err := k.client.do(ctx, request{method: http.MethodGet, path: keysPath + "/sections"}, &out); err != nil {
		return nil, err
	}
	return out, nil
}
