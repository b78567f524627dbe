package es

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/elastic/go-elasticsearch/v9"

	"github.com/Skotchmaster/calculator/pkg/config"
	"github.com/Skotchmaster/calculator/pkg/logging"
)

// NewClient connects to ES_URL and checks the cluster answers Info.
func NewClient(ctx context.Context, cfg config.Config) (*elasticsearch.Client, error) {
	if cfg.ESURL == "" {
		return nil, errors.New("es: ES_URL is empty")
	}
	l := logging.FromContext(ctx).With("component", "es")
	l.Info("es_connect", "url", cfg.ESURL)

	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{cfg.ESURL},
		Username:  cfg.ESUser,
		Password:  cfg.ESPassword,
	})
	if err != nil {
		return nil, fmt.Errorf("es: new client: %w", err)
	}

	res, err := client.Info(client.Info.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("es: info: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		l.Error("es_connect_failed", "status", res.StatusCode, "body", string(body))
		return nil, fmt.Errorf("es: info returned %s", res.Status())
	}

	l.Info("es_connected")
	return client, nil
}
