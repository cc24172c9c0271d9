package feedsync

import (
	"context"
	"errors"

	"bitbucket.org/brokerlink/customs_backend/utils"
)

// fetchPayloadBytes resolves the raw feed: inline data wins, otherwise the
// object named by the origin locator is downloaded from Cloud Storage.
func fetchPayloadBytes(ctx context.Context, payload DeliveryPayload) ([]byte, error) {
	if len(payload.Data) > 0 {
		return payload.Data, nil
	}
	if payload.OriginBucket == "" || payload.OriginPath == "" {
		return nil, errors.New("delivery carries neither inline data nor an origin object")
	}
	return utils.DownloadObjectFromGCS(ctx, payload.OriginBucket, payload.OriginPath)
}
