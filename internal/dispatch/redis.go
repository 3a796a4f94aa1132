package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/example/ride-lifecycle/internal/models"
)

// RedisChannel stores each ride request as a hash and fans out full
// snapshots over a per-ride Pub/Sub topic. Pub/Sub does not replay history
// and does not serialize concurrent writers, so every published snapshot
// carries the hash's version counter; subscribers drop anything not newer
// than what they last applied.
type RedisChannel struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisChannel(addr, password string) *RedisChannel {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return &RedisChannel{client: c, ttl: 24 * time.Hour}
}

func reqKey(id string) string  { return "ride:req:" + id }
func snapKey(id string) string { return "ride:snap:" + id }

func (r *RedisChannel) Create(ctx context.Context, req models.RideRequest) (models.RideRequest, error) {
	req.ID = uuid.NewString()
	req.Version = 1
	req.CreatedAt = time.Now()

	fields, err := hashFields(req)
	if err != nil {
		return models.RideRequest{}, err
	}
	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, reqKey(req.ID), fields)
	pipe.Expire(ctx, reqKey(req.ID), r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return models.RideRequest{}, fmt.Errorf("dispatch create: %w", err)
	}
	r.publish(ctx, req)
	return req, nil
}

func (r *RedisChannel) Update(ctx context.Context, id string, fields Fields) error {
	set := make(map[string]any)
	if fields.Status != nil {
		set["status"] = string(*fields.Status)
	}
	if fields.Driver != nil {
		b, err := json.Marshal(fields.Driver)
		if err != nil {
			return err
		}
		set["driver"] = string(b)
	}
	if fields.DriverLoc != nil {
		b, err := json.Marshal(fields.DriverLoc)
		if err != nil {
			return err
		}
		set["driver_loc"] = string(b)
	}
	if fields.PickupCode != nil {
		set["pickup_code"] = *fields.PickupCode
	}

	key := reqKey(id)
	exists, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("dispatch update: %w", err)
	}
	if exists == 0 {
		return ErrNotFound
	}

	pipe := r.client.TxPipeline()
	if len(set) > 0 {
		pipe.HSet(ctx, key, set)
	}
	pipe.HIncrBy(ctx, key, "version", 1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("dispatch update: %w", err)
	}

	req, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	r.publish(ctx, req)
	return nil
}

func (r *RedisChannel) Get(ctx context.Context, id string) (models.RideRequest, error) {
	vals, err := r.client.HGetAll(ctx, reqKey(id)).Result()
	if err != nil {
		return models.RideRequest{}, fmt.Errorf("dispatch get: %w", err)
	}
	if len(vals) == 0 {
		return models.RideRequest{}, ErrNotFound
	}
	return requestFromHash(id, vals)
}

func (r *RedisChannel) Subscribe(ctx context.Context, id string) (*Subscription, error) {
	// Pub/Sub has no replay, so the subscription must be live before the
	// head is read; anything published in between arrives twice at most
	// and the consumer's version guard drops the duplicate.
	pubsub := r.client.Subscribe(ctx, snapKey(id))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("dispatch subscribe: %w", err)
	}
	head, err := r.Get(ctx, id)
	if err != nil {
		_ = pubsub.Close()
		return nil, err
	}
	out := make(chan models.RideRequest, 64)

	go func() {
		defer close(out)
		out <- head
		for msg := range pubsub.Channel() {
			var req models.RideRequest
			if err := json.Unmarshal([]byte(msg.Payload), &req); err != nil {
				continue
			}
			out <- req
		}
	}()

	return newSubscription(out, func() { _ = pubsub.Close() }), nil
}

func (r *RedisChannel) publish(ctx context.Context, req models.RideRequest) {
	b, err := json.Marshal(req)
	if err != nil {
		return
	}
	_ = r.client.Publish(ctx, snapKey(req.ID), b).Err()
}

func (r *RedisChannel) Close() error { return r.client.Close() }

func hashFields(req models.RideRequest) (map[string]any, error) {
	origin, err := json.Marshal(req.Origin)
	if err != nil {
		return nil, err
	}
	dest, err := json.Marshal(req.Destination)
	if err != nil {
		return nil, err
	}
	fields := map[string]any{
		"rider_id":       req.RiderID,
		"rider_phone":    req.RiderPhone,
		"origin":         string(origin),
		"destination":    string(dest),
		"service":        req.Service,
		"price_estimate": strconv.FormatFloat(req.PriceEstimate, 'f', -1, 64),
		"status":         string(req.Status),
		"created_at":     req.CreatedAt.Format(time.RFC3339Nano),
		"version":        strconv.FormatInt(req.Version, 10),
	}
	if req.PickupCode != "" {
		fields["pickup_code"] = req.PickupCode
	}
	if req.Driver != nil {
		b, err := json.Marshal(req.Driver)
		if err != nil {
			return nil, err
		}
		fields["driver"] = string(b)
	}
	if req.DriverLoc != nil {
		b, err := json.Marshal(req.DriverLoc)
		if err != nil {
			return nil, err
		}
		fields["driver_loc"] = string(b)
	}
	return fields, nil
}

func requestFromHash(id string, vals map[string]string) (models.RideRequest, error) {
	req := models.RideRequest{
		ID:         id,
		RiderID:    vals["rider_id"],
		RiderPhone: vals["rider_phone"],
		Service:    vals["service"],
		Status:     models.Status(vals["status"]),
		PickupCode: vals["pickup_code"],
	}
	if v := vals["origin"]; v != "" {
		if err := json.Unmarshal([]byte(v), &req.Origin); err != nil {
			return req, fmt.Errorf("dispatch decode origin: %w", err)
		}
	}
	if v := vals["destination"]; v != "" {
		if err := json.Unmarshal([]byte(v), &req.Destination); err != nil {
			return req, fmt.Errorf("dispatch decode destination: %w", err)
		}
	}
	if v := vals["driver"]; v != "" {
		req.Driver = &models.Driver{}
		if err := json.Unmarshal([]byte(v), req.Driver); err != nil {
			return req, fmt.Errorf("dispatch decode driver: %w", err)
		}
	}
	if v := vals["driver_loc"]; v != "" {
		req.DriverLoc = &models.Coord{}
		if err := json.Unmarshal([]byte(v), req.DriverLoc); err != nil {
			return req, fmt.Errorf("dispatch decode driver_loc: %w", err)
		}
	}
	if v := vals["price_estimate"]; v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return req, fmt.Errorf("dispatch decode price: %w", err)
		}
		req.PriceEstimate = f
	}
	if v := vals["version"]; v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return req, fmt.Errorf("dispatch decode version: %w", err)
		}
		req.Version = n
	}
	if v := vals["created_at"]; v != "" {
		t, err := time.Parse(time.RFC3339Nano, v)
		if err == nil {
			req.CreatedAt = t
		}
	}
	return req, nil
}
