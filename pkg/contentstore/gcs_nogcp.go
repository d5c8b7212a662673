//go:build !gcp

package contentstore

import (
	"context"
	"fmt"
)

func newGCSStore(context.Context, Config) (Store, error) {
	return nil, fmt.Errorf("GCS content store is not enabled in this build (use -tags gcp)")
}
