package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"

	"github.com/unkn0wn-root/opscache"
)

// ShopInfo is the shop profile every dashboard screen reads.
type ShopInfo struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Currency string `json:"currency"`
	Timezone string `json:"timezone,omitempty"`
	Address  string `json:"address,omitempty"`
}

const shopInfoKey = "shopInfo"

// fetchShopInfo builds the upstream fetch for the shop profile, authorized
// with token. Each attempt is one span; waiters that join it add none.
func fetchShopInfo(client *http.Client, url, token string) opscache.FetchFunc[ShopInfo] {
	return func(ctx context.Context) (info ShopInfo, err error) {
		ctx, span := otel.Tracer(serviceName).Start(ctx, "shop-info.fetch")
		span.SetAttributes(attribute.String("opscache.key", shopInfoKey))
		defer func() {
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, "fetch failed")
			}
			span.End()
		}()

		if url == "" {
			return ShopInfo{}, opscache.Transport("fetch", shopInfoKey, fmt.Errorf("no upstream configured"))
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return ShopInfo{}, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Accept", "application/json")
		req.Header.Set("X-Request-ID", uuid.NewString())
		otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

		resp, err := client.Do(req)
		if err != nil {
			return ShopInfo{}, opscache.Transport("fetch", shopInfoKey, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
			return ShopInfo{}, opscache.Transport("fetch", shopInfoKey, fmt.Errorf("upstream %s: %s", resp.Status, b))
		}
		var out ShopInfo
		if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
			return ShopInfo{}, opscache.Transport("fetch", shopInfoKey, fmt.Errorf("decode shop info: %w", err))
		}
		return out, nil
	}
}
