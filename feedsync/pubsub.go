package feedsync

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"strings"

	"bitbucket.org/brokerlink/customs_backend/config"
	"bitbucket.org/brokerlink/customs_backend/utils"
	"cloud.google.com/go/pubsub"
	"github.com/gin-gonic/gin"
)

const deliveryHandlerName = "feedsync.delivery"

func PublishDeliveryRun(ctx context.Context, runId uint, sourceSystem string) error {
	topicName := strings.TrimSpace(os.Getenv("FEED_DELIVERY_TOPIC"))
	if topicName == "" {
		topicName = "feed-delivery"
	}

	client, err := config.GetClient(ctx)
	if err != nil {
		return err
	}

	topic := client.Topic(topicName)
	if envBoolDefault("FEED_DELIVERY_CREATE_TOPIC", false) {
		topic, err = config.CreateTopicIfNotExists(client, topicName)
		if err != nil {
			return err
		}
	}

	payload := DeliveryPubSubPayload{
		RunId:        runId,
		SourceSystem: sourceSystem,
	}
	data, _ := json.Marshal(payload)
	res := topic.Publish(ctx, &pubsub.Message{Data: data})
	_, err = res.Get(ctx)
	return err
}

// PubSubPushHandler accepts the push subscription for queued delivery runs.
// Malformed or duplicate pushes ack with 204 so Pub/Sub stops redelivering;
// dedup is the DB-backed idempotency guard's job, not HTTP status codes. The
// one exception is a message another worker is still processing: that returns
// 409 so Pub/Sub redelivers after backoff, and if the holder crashed the stale
// guard row unblocks the redelivery once the in-progress window lapses.
func PubSubPushHandler(engine *Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !envBoolDefault("ENABLE_FEED_PUBSUB_PUSH_ENDPOINT", true) {
			c.Status(204)
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.Status(204)
			return
		}

		var envelope PubSubPushEnvelope
		if err := json.Unmarshal(body, &envelope); err != nil {
			c.Status(204)
			return
		}

		var payload DeliveryPubSubPayload
		if err := json.Unmarshal(envelope.Message.Data, &payload); err != nil {
			c.Status(204)
			return
		}
		if payload.RunId == 0 || payload.SourceSystem == "" {
			c.Status(204)
			return
		}

		ctx := utils.SetSourceSystemInContext(c.Request.Context(), payload.SourceSystem)
		db := config.GetDB()
		if db == nil {
			c.Status(204)
			return
		}

		skip, err := BeginIdempotency(db.WithContext(ctx), payload.SourceSystem, deliveryHandlerName, envelope.Message.ID)
		if err != nil || skip {
			c.Status(beginIdempotencyStatus(skip, err))
			return
		}

		if err := engine.ProcessDeliveryRun(ctx, db, payload.RunId); err != nil {
			config.LogError(config.GetLogger(), "feedsync", "PubSubPushHandler", "process delivery run", payload, err)
			_ = MarkIdempotencyFailed(db.WithContext(ctx), payload.SourceSystem, deliveryHandlerName, envelope.Message.ID, err)
			c.Status(204)
			return
		}
		_ = MarkIdempotencySucceeded(db.WithContext(ctx), payload.SourceSystem, deliveryHandlerName, envelope.Message.ID)
		c.Status(204)
	}
}

// beginIdempotencyStatus maps a BeginIdempotency outcome to the push ack code.
// In-progress must NOT ack: acking would drop the only redelivery of a run
// whose worker crashed mid-flight, leaving it stuck in running forever.
func beginIdempotencyStatus(skip bool, err error) int {
	if errors.Is(err, ErrIdempotencyInProgress) {
		return 409
	}
	return 204
}

func envBoolDefault(key string, def bool) bool {
	val := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch val {
	case "true", "1", "yes", "y", "on":
		return true
	case "false", "0", "no", "n", "off":
		return false
	default:
		return def
	}
}
