package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/eclipse-che/debugd/pkg/logflags"
)

const keysPath = "/keys/"

// HTTPStore keeps values in a remote key-value service reached over REST:
//
//	PUT    <base>/keys/<key>        save the request body
//	GET    <base>/keys/<key>        load, 404 if missing
//	DELETE <base>/keys/<key>        delete
//	GET    <base>/keys/?prefix=<p>  JSON array of keys
//
// NewHandler serves the same protocol.
type HTTPStore struct {
	base   string
	client *http.Client
	log    logflags.Logger
}

// NewHTTPStore returns a store talking to the service at baseURL. A nil
// client uses http.DefaultClient.
func NewHTTPStore(baseURL string, client *http.Client) (*HTTPStore, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported store url %q", baseURL)
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPStore{base: strings.TrimSuffix(baseURL, "/"), client: client, log: logflags.StoreLogger()}, nil
}

// StatusError is returned when the service answers with an unexpected
// status code.
type StatusError struct {
	Method string
	URL    string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.URL, e.Code, e.Body)
}

func (s *HTTPStore) keyURL(key string) string {
	return s.base + keysPath + url.PathEscape(key)
}

func (s *HTTPStore) do(ctx context.Context, method, u string, body []byte) ([]byte, int, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return nil, 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/octet-stream")
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	s.log.Debugf("%s %s -> %d", method, u, resp.StatusCode)
	return data, resp.StatusCode, err
}

func (s *HTTPStore) Save(ctx context.Context, key string, value []byte) error {
	if err := checkKey(key); err != nil {
		return err
	}
	if value == nil {
		value = []byte{}
	}
	u := s.keyURL(key)
	data, code, err := s.do(ctx, http.MethodPut, u, value)
	if err != nil {
		return err
	}
	if code != http.StatusNoContent && code != http.StatusOK && code != http.StatusCreated {
		return &StatusError{http.MethodPut, u, code, string(data)}
	}
	return nil
}

func (s *HTTPStore) Load(ctx context.Context, key string) ([]byte, error) {
	u := s.keyURL(key)
	data, code, err := s.do(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	switch code {
	case http.StatusOK:
		return data, nil
	case http.StatusNotFound:
		return nil, ErrNotFound
	}
	return nil, &StatusError{http.MethodGet, u, code, string(data)}
}

func (s *HTTPStore) Delete(ctx context.Context, key string) error {
	u := s.keyURL(key)
	data, code, err := s.do(ctx, http.MethodDelete, u, nil)
	if err != nil {
		return err
	}
	if code != http.StatusNoContent && code != http.StatusOK && code != http.StatusNotFound {
		return &StatusError{http.MethodDelete, u, code, string(data)}
	}
	return nil
}

func (s *HTTPStore) List(ctx context.Context, prefix string) ([]string, error) {
	u := s.base + keysPath + "?prefix=" + url.QueryEscape(prefix)
	data, code, err := s.do(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	if code != http.StatusOK {
		return nil, &StatusError{http.MethodGet, u, code, string(data)}
	}
	var keys []string
	if err := json.Unmarshal(data, &keys); err != nil {
		return nil, fmt.Errorf("decoding key list: %v", err)
	}
	return keys, nil
}

func (s *HTTPStore) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

// NewHandler serves s over the protocol spoken by HTTPStore.
func NewHandler(s Store) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+keysPath+"{$}", func(w http.ResponseWriter, r *http.Request) {
		keys, err := s.List(r.Context(), r.URL.Query().Get("prefix"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if keys == nil {
			keys = []string{}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(keys)
	})
	mux.HandleFunc("GET "+keysPath+"{key...}", func(w http.ResponseWriter, r *http.Request) {
		v, err := s.Load(r.Context(), r.PathValue("key"))
		switch {
		case errors.Is(err, ErrNotFound):
			http.Error(w, err.Error(), http.StatusNotFound)
		case err != nil:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		default:
			w.Header().Set("Content-Type", "application/octet-stream")
			w.Write(v)
		}
	})
	mux.HandleFunc("PUT "+keysPath+"{key...}", func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := s.Save(r.Context(), r.PathValue("key"), body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("DELETE "+keysPath+"{key...}", func(w http.ResponseWriter, r *http.Request) {
		if err := s.Delete(r.Context(), r.PathValue("key")); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	return mux
}
